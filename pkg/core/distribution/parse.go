// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package distribution

import (
	"strconv"
	"strings"

	"github.com/gomlx/distarray/pkg/core/disterrors"
)

// ParseSlice parses an index expression in Python notation into a list of AxisSpec.
//
// Axes are separated by commas, and each one is either an integer (element selection), a range
// "start:stop:step" with any of the parts omitted, or "..." (ellipsis). Surrounding brackets are optional.
//
// Examples: "2:6", "[::2, 1]", "..., -1", "::-1, 3:".
func ParseSlice(expr string) ([]AxisSpec, error) {
	expr = strings.TrimSpace(expr)
	expr = strings.TrimPrefix(expr, "[")
	expr = strings.TrimSuffix(expr, "]")
	if strings.TrimSpace(expr) == "" {
		return nil, nil
	}
	parts := strings.Split(expr, ",")
	specs := make([]AxisSpec, 0, len(parts))
	for _, part := range parts {
		spec, err := parseAxisSpec(strings.TrimSpace(part))
		if err != nil {
			return nil, disterrors.InvalidArgumentf("invalid slice expression %q: %v", expr, err)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func parseAxisSpec(part string) (AxisSpec, error) {
	if part == "..." {
		return Ellipsis(), nil
	}
	if !strings.Contains(part, ":") {
		idx, err := strconv.Atoi(part)
		if err != nil {
			return AxisSpec{}, err
		}
		return AxisElem(idx), nil
	}
	fields := strings.Split(part, ":")
	if len(fields) > 3 {
		return AxisSpec{}, disterrors.InvalidArgumentf("too many \":\" in %q", part)
	}
	values := make([]*int, 3)
	for i, field := range fields {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		v, err := strconv.Atoi(field)
		if err != nil {
			return AxisSpec{}, err
		}
		values[i] = &v
	}
	spec := AxisSpec{NoStart: values[0] == nil, NoEnd: values[1] == nil}
	spec.Full = spec.NoStart && spec.NoEnd
	if values[0] != nil {
		spec.Start = *values[0]
	}
	if values[1] != nil {
		spec.End = *values[1]
	}
	if values[2] != nil {
		spec = spec.Stride(*values[2])
	}
	return spec, nil
}
