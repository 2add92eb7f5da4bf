// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package disterrors defines the kinds of errors returned by the distributed array packages.
//
// Every error returned by gridshape, dimmap, distribution and dap wraps exactly one of the sentinels below,
// so callers can branch on the kind with errors.Is:
//
//	d, err := distribution.FromShape(10).NumProcesses(4).Done()
//	if errors.Is(err, disterrors.ErrGridInfeasible) { ... }
package disterrors

import (
	"github.com/pkg/errors"
)

var (
	// ErrInvalidArgument is returned for malformed shape, dist or grid inputs.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrGridInfeasible is returned when inputs are individually valid but no process grid satisfies them jointly.
	ErrGridInfeasible = errors.New("process grid infeasible")

	// ErrIndexOutOfRange is returned when a global or local index falls outside its valid bounds,
	// after negative indices are resolved from the end.
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrMalformedDistribution is returned when explicit per-rank data (bounds or unstructured indices)
	// does not exactly partition its dimension.
	ErrMalformedDistribution = errors.New("malformed distribution")

	// ErrMalformedExport is returned for a DAP payload with a missing key or a value of the wrong type.
	ErrMalformedExport = errors.New("malformed export")

	// ErrInternal signals a broken internal invariant. It is not user-actionable: please report it.
	ErrInternal = errors.New("internal error")
)

// kinds lists all sentinels, in the order KindOf checks them.
var kinds = []error{
	ErrInvalidArgument,
	ErrGridInfeasible,
	ErrIndexOutOfRange,
	ErrMalformedDistribution,
	ErrMalformedExport,
	ErrInternal,
}

// InvalidArgumentf returns an error of kind ErrInvalidArgument with the formatted message.
func InvalidArgumentf(format string, args ...any) error {
	return errors.Wrapf(ErrInvalidArgument, format, args...)
}

// GridInfeasiblef returns an error of kind ErrGridInfeasible with the formatted message.
func GridInfeasiblef(format string, args ...any) error {
	return errors.Wrapf(ErrGridInfeasible, format, args...)
}

// IndexOutOfRangef returns an error of kind ErrIndexOutOfRange with the formatted message.
func IndexOutOfRangef(format string, args ...any) error {
	return errors.Wrapf(ErrIndexOutOfRange, format, args...)
}

// MalformedDistributionf returns an error of kind ErrMalformedDistribution with the formatted message.
func MalformedDistributionf(format string, args ...any) error {
	return errors.Wrapf(ErrMalformedDistribution, format, args...)
}

// MalformedExportf returns an error of kind ErrMalformedExport with the formatted message.
func MalformedExportf(format string, args ...any) error {
	return errors.Wrapf(ErrMalformedExport, format, args...)
}

// Internalf returns an error of kind ErrInternal with the formatted message.
func Internalf(format string, args ...any) error {
	return errors.Wrapf(ErrInternal, format, args...)
}

// KindOf returns the sentinel error wrapped by err, or nil if err is nil or not one of the kinds in this package.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
