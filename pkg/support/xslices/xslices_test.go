// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xslices

import (
	"flag"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseList(t *testing.T) {
	values, err := ParseList(" 3, 4,5 ", strconv.Atoi)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4, 5}, values)

	values, err = ParseList("  ", strconv.Atoi)
	require.NoError(t, err)
	assert.Equal(t, []int{}, values)

	_, err = ParseList("3,x", strconv.Atoi)
	require.ErrorIs(t, err, strconv.ErrSyntax)
}

func TestFlag(t *testing.T) {
	f := &sliceFlag[int]{parsedSlice: []int{1, 2}, parserFn: strconv.Atoi}
	assert.Equal(t, "1,2", f.String())
	require.NoError(t, f.Set("7,8,9"))
	assert.Equal(t, []int{7, 8, 9}, f.parsedSlice)
	assert.Equal(t, "7,8,9", f.String())
	require.Error(t, f.Set("7,,9"))
	require.NoError(t, f.Set(""))
	assert.Equal(t, "", f.String())

	var _ flag.Value = f
	shape := Flag("test_xslices_shape", []int{4}, "shape", strconv.Atoi)
	assert.Equal(t, []int{4}, *shape)
	require.NoError(t, flag.Set("test_xslices_shape", "10,20"))
	assert.Equal(t, []int{10, 20}, *shape)
}
