// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package gridshape

import (
	"fmt"
	"testing"

	"github.com/gomlx/distarray/pkg/core/dimmap"
	"github.com/gomlx/distarray/pkg/core/disterrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	n = dimmap.NotDistributed
	b = dimmap.Block
	c = dimmap.Cyclic
	u = dimmap.Unstructured
)

func TestFactorizations(t *testing.T) {
	s := NewSolver()
	assert.Equal(t, [][]int{{1, 1, 12}, {1, 2, 6}, {1, 3, 4}, {2, 2, 3}}, s.Factorizations(12, 3))
	assert.Equal(t, [][]int{{1, 7}}, s.Factorizations(7, 2))
	assert.Equal(t, [][]int{{1, 1}}, s.Factorizations(1, 2))
	assert.Equal(t, [][]int{{6}}, s.Factorizations(6, 1))

	// Memoized: the same slice is returned.
	first := s.Factorizations(12, 3)
	second := s.Factorizations(12, 3)
	assert.Same(t, &first[0], &second[0])
}

func TestSolve(t *testing.T) {
	for _, tc := range []struct {
		shape        []int
		kinds        []dimmap.Kind
		numProcesses int
		want         []int
	}{
		// Ratio preference: (2,2,3) tracks the ratios of (53,77,99) best.
		{[]int{53, 77, 99}, []dimmap.Kind{b, b, b}, 12, []int{2, 2, 3}},
		{[]int{10}, []dimmap.Kind{b}, 4, []int{4}},
		{[]int{3}, []dimmap.Kind{b}, 4, []int{3}},
		{[]int{0}, []dimmap.Kind{b}, 4, []int{1}},
		{[]int{10, 20}, []dimmap.Kind{n, n}, 4, []int{1, 1}},
		{[]int{10, 20}, []dimmap.Kind{b, b}, 1, []int{1, 1}},
		{[]int{10, 20}, []dimmap.Kind{b, n}, 4, []int{4, 1}},
		{[]int{10, 20}, []dimmap.Kind{n, c}, 6, []int{1, 6}},
		{[]int{20, 10}, []dimmap.Kind{b, b}, 8, []int{4, 2}},
		{[]int{10, 20}, []dimmap.Kind{b, b}, 8, []int{2, 4}},
		{[]int{16, 16}, []dimmap.Kind{b, c}, 4, []int{2, 2}},
		{[]int{100, 100, 5}, []dimmap.Kind{b, n, b}, 6, []int{6, 1, 1}},
		{[]int{100, 100, 50}, []dimmap.Kind{b, n, b}, 6, []int{3, 1, 2}},
		{[]int{5, 9}, []dimmap.Kind{c, c}, 4, []int{2, 2}},
		{[]int{5, 9}, []dimmap.Kind{u, b}, 7, []int{1, 7}},
	} {
		t.Run(fmt.Sprintf("%v-%v-%d", tc.shape, tc.kinds, tc.numProcesses), func(t *testing.T) {
			grid, err := Solve(tc.shape, tc.kinds, tc.numProcesses)
			require.NoError(t, err)
			assert.Equal(t, tc.want, grid)
		})
	}
}

func TestSolveFeasibility(t *testing.T) {
	s := NewSolver()
	shapes := [][]int{{1, 1}, {2, 3}, {7, 7}, {64, 3}, {100, 1000}, {0, 10}, {3, 5, 7}, {12, 12, 12}}
	for _, shape := range shapes {
		kinds := make([]dimmap.Kind, len(shape))
		for i := range kinds {
			kinds[i] = dimmap.KindValues()[1+i%3]
		}
		for numProcesses := 1; numProcesses <= 24; numProcesses++ {
			grid, err := s.Solve(shape, kinds, numProcesses)
			if err != nil {
				// Only allowed when the dimensions are too small for any factorization.
				require.ErrorIsf(t, err, disterrors.ErrGridInfeasible, "shape=%v, P=%d", shape, numProcesses)
				continue
			}
			require.NoErrorf(t, CheckPostconditions(shape, kinds, numProcesses, grid),
				"shape=%v, P=%d, grid=%v", shape, numProcesses, grid)
		}
	}
}

func TestSolveErrors(t *testing.T) {
	_, err := Solve([]int{10}, []dimmap.Kind{b}, 0)
	require.ErrorIs(t, err, disterrors.ErrInvalidArgument)
	_, err = Solve([]int{10, 10}, []dimmap.Kind{b}, 4)
	require.ErrorIs(t, err, disterrors.ErrInvalidArgument)
	_, err = Solve([]int{-1}, []dimmap.Kind{b}, 4)
	require.ErrorIs(t, err, disterrors.ErrInvalidArgument)
	_, err = Solve([]int{10}, []dimmap.Kind{dimmap.Kind(9)}, 4)
	require.ErrorIs(t, err, disterrors.ErrInvalidArgument)

	// 7 processes can't be split over two dimensions of size 2.
	_, err = Solve([]int{2, 2}, []dimmap.Kind{b, b}, 7)
	require.ErrorIs(t, err, disterrors.ErrGridInfeasible)
}

func TestCheckPostconditions(t *testing.T) {
	shape := []int{4, 6}
	kinds := []dimmap.Kind{b, n}
	require.NoError(t, CheckPostconditions(shape, kinds, 4, []int{4, 1}))
	for _, grid := range [][]int{{4}, {2, 2}, {5, 1}, {0, 1}} {
		require.ErrorIsf(t, CheckPostconditions(shape, kinds, 8, grid), disterrors.ErrInternal, "grid=%v", grid)
	}
	require.ErrorIs(t, CheckPostconditions(shape, kinds, 3, []int{4, 1}), disterrors.ErrInternal)
}

func TestNormalize(t *testing.T) {
	kinds := []dimmap.Kind{b, c, n}
	shape := []int{10, 10, 10}
	grid, err := Normalize([]int{2}, shape, kinds, 4)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1, 1}, grid)

	grid, err = Normalize([]int{2, 2, 1}, shape, kinds, 4)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 1}, grid)

	_, err = Normalize([]int{2, 2, 1, 1}, shape, kinds, 4)
	require.ErrorIs(t, err, disterrors.ErrInvalidArgument)
	_, err = Normalize([]int{-2}, shape, kinds, 4)
	require.ErrorIs(t, err, disterrors.ErrInvalidArgument)
	_, err = Normalize([]int{1, 1, 2}, shape, kinds, 4)
	require.ErrorIs(t, err, disterrors.ErrInvalidArgument)
	_, err = Normalize([]int{3, 2}, shape, kinds, 4)
	require.ErrorIs(t, err, disterrors.ErrGridInfeasible)
}
