// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"path/filepath"
	"testing"

	"github.com/gomlx/distarray/pkg/core/dap"
	"github.com/gomlx/distarray/pkg/core/disterrors"
	"github.com/gomlx/distarray/pkg/core/distribution"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setFlags(t *testing.T, shape []int, dist string, blockSize []int, procs int) {
	oldShape, oldDist, oldBlockSize, oldProcs := *flagShape, *flagDist, *flagBlockSize, *flagProcs
	t.Cleanup(func() {
		*flagShape, *flagDist, *flagBlockSize, *flagProcs = oldShape, oldDist, oldBlockSize, oldProcs
	})
	*flagShape, *flagDist, *flagBlockSize, *flagProcs = shape, dist, blockSize, procs
}

func TestBuildDistribution(t *testing.T) {
	setFlags(t, []int{53, 77, 99}, "b,b,b", nil, 12)
	d, err := buildDistribution()
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 3}, d.GridShape())

	setFlags(t, []int{16, 3}, "c,n", []int{2, 7}, 4)
	d, err = buildDistribution()
	require.NoError(t, err)
	assert.Equal(t, [][]int{{4, 3}, {4, 3}, {4, 3}, {4, 3}}, d.LocalShapes())

	setFlags(t, []int{10}, "b", nil, 0)
	d, err = buildDistribution()
	require.NoError(t, err)
	assert.Equal(t, 1, d.NumRanks())

	setFlags(t, []int{10, -1}, "", nil, 2)
	_, err = buildDistribution()
	require.ErrorIs(t, err, disterrors.ErrInvalidArgument)
}

func TestVerifyAndExport(t *testing.T) {
	setFlags(t, []int{7, 5}, "b,c", []int{1, 2}, 4)
	d, err := buildDistribution()
	require.NoError(t, err)
	for _, dtype := range []dtypes.DType{dtypes.Float32, dtypes.Int8, dtypes.Complex128} {
		require.NoError(t, verify(d, dtype))
	}
	require.NoError(t, reportLayout(d, dtypes.Float32, -1))
	require.ErrorIs(t, reportLayout(d, dtypes.Float32, 10), disterrors.ErrIndexOutOfRange)
	require.NoError(t, reportAxes(d))
	require.NoError(t, reportAxes(distribution.FromShape().MustDone()))
	require.NoError(t, reportLayout(distribution.FromShape(2, 3).NumProcesses(4).MustDone(), dtypes.Int8, -1))

	dir := t.TempDir()
	require.NoError(t, export(d, dtypes.Float64, dir))
	v, err := dap.Load(filepath.Join(dir, dap.FileName("array", 3)))
	require.NoError(t, err)
	assert.Equal(t, 3, v.Rank())
	assert.Equal(t, dtypes.Float64, v.DType())
}
