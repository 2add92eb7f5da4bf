// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package xslices provide missing functionality to the slices package: comma-separated list flags,
// and parsing of lists.
package xslices

import (
	"flag"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ParseList parses a comma-separated list of values using parserFn for each element.
// Spaces around elements are ignored, and an empty (or blank) string is an empty list.
func ParseList[T any](listStr string, parserFn func(valueStr string) (T, error)) ([]T, error) {
	listStr = strings.TrimSpace(listStr)
	if listStr == "" {
		return make([]T, 0), nil
	}
	parts := strings.Split(listStr, ",")
	values := make([]T, len(parts))
	for ii, part := range parts {
		var err error
		values[ii], err = parserFn(strings.TrimSpace(part))
		if err != nil {
			return nil, errors.WithMessagef(err, "element #%d (%q) of list %q", ii, part, listStr)
		}
	}
	return values, nil
}

// Flag creates a flag for []T with the given name, description and default value.
// It takes as input a parser for an individual T value.
//
// The flag is set with a comma-separated list, e.g. "-shape=10,20".
func Flag[T any](name string, defaultValue []T, usage string,
	parserFn func(valueStr string) (T, error)) *[]T {
	f := &sliceFlag[T]{
		parsedSlice: defaultValue,
		parserFn:    parserFn,
	}
	flag.Var(f, name, usage)
	return &f.parsedSlice
}

// sliceFlag implements flag.Value for a list of T.
type sliceFlag[T any] struct {
	parsedSlice []T
	parserFn    func(valueStr string) (T, error)
}

// String implements flag.Value.
func (f *sliceFlag[T]) String() string {
	if f == nil || len(f.parsedSlice) == 0 {
		return ""
	}
	parts := make([]string, len(f.parsedSlice))
	for ii, elem := range f.parsedSlice {
		parts[ii] = fmt.Sprint(elem)
	}
	return strings.Join(parts, ",")
}

// Set implements flag.Value.
func (f *sliceFlag[T]) Set(listStr string) error {
	values, err := ParseList(listStr, f.parserFn)
	if err != nil {
		return err
	}
	f.parsedSlice = values
	return nil
}
