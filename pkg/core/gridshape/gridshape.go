// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package gridshape chooses the shape of the process grid used to distribute an array.
//
// The Solver splits the number of processes over the distributed dimensions of the array, so that the
// process grid has an aspect ratio as close as possible to the one of the array. E.g.: an array of shape
// (53, 77, 99) distributed over 12 processes gets the process grid (2, 2, 3).
package gridshape

import (
	"math"
	"slices"
	"sync"

	"github.com/gomlx/distarray/pkg/core/dimmap"
	"github.com/gomlx/distarray/pkg/core/disterrors"
	"golang.org/x/exp/constraints"
	"k8s.io/klog/v2"
)

// factorKey indexes the memoized factorizations.
type factorKey struct {
	n, k int
}

// Solver computes process grid shapes. It memoizes the integer factorizations it enumerates.
//
// It is safe for concurrent use. The zero value is not valid, use NewSolver.
type Solver struct {
	mu             sync.Mutex
	factorizations map[factorKey][][]int
}

// NewSolver returns a Solver with an empty memoization table.
func NewSolver() *Solver {
	return &Solver{factorizations: make(map[factorKey][][]int)}
}

// Solve is a shortcut to NewSolver().Solve(...), for one-off computations.
func Solve(shape []int, kinds []dimmap.Kind, numProcesses int) ([]int, error) {
	return NewSolver().Solve(shape, kinds, numProcesses)
}

// Solve returns the process grid shape for an array of the given shape and per-dimension distribution kinds,
// over numProcesses processes.
//
// Not distributed dimensions always get 1. A single distributed dimension gets min(numProcesses, size)
// processes. With more than one distributed dimension, numProcesses is factorized over them, choosing the
// factorization whose pairwise ratios are closest (in log scale) to the ones of the dimension sizes.
//
// It returns disterrors.ErrInvalidArgument for invalid inputs and disterrors.ErrGridInfeasible if no
// factorization of numProcesses fits in the shape.
func (s *Solver) Solve(shape []int, kinds []dimmap.Kind, numProcesses int) ([]int, error) {
	if numProcesses < 1 {
		return nil, disterrors.InvalidArgumentf("number of processes must be >= 1, got %d", numProcesses)
	}
	if len(shape) != len(kinds) {
		return nil, disterrors.InvalidArgumentf("shape %v has rank %d, but %d distribution kinds were given",
			shape, len(shape), len(kinds))
	}
	var distributed []int
	for axis, size := range shape {
		if size < 0 {
			return nil, disterrors.InvalidArgumentf("negative dimension %d in shape %v", size, shape)
		}
		if !kinds[axis].IsAKind() {
			return nil, disterrors.InvalidArgumentf("invalid distribution kind %d for axis %d", kinds[axis], axis)
		}
		if kinds[axis].IsDistributed() {
			distributed = append(distributed, axis)
		}
	}

	grid := make([]int, len(shape))
	for axis := range grid {
		grid[axis] = 1
	}
	switch {
	case len(distributed) == 0 || numProcesses == 1:
		// All 1s.
	case len(distributed) == 1:
		axis := distributed[0]
		grid[axis] = max(1, min(numProcesses, shape[axis]))
	default:
		sizes := make([]int, len(distributed))
		for i, axis := range distributed {
			sizes[i] = shape[axis]
		}
		extents, err := s.bestFactorization(sizes, numProcesses)
		if err != nil {
			return nil, err
		}
		for i, axis := range distributed {
			grid[axis] = extents[i]
		}
	}

	if err := CheckPostconditions(shape, kinds, numProcesses, grid); err != nil {
		return nil, err
	}
	klog.V(1).Infof("gridshape: shape=%v, kinds=%v, numProcesses=%d -> grid=%v", shape, kinds, numProcesses, grid)
	return grid, nil
}

// bestFactorization returns the extents for the distributed dimensions with the given sizes.
func (s *Solver) bestFactorization(sizes []int, numProcesses int) ([]int, error) {
	target := logRatios(sizes)
	var best []int
	bestDistance := math.Inf(1)
	for _, factors := range s.Factorizations(numProcesses, len(sizes)) {
		extents := mirrorSort(factors, sizes)
		if !fits(extents, sizes) {
			continue
		}
		distance := ratioDistance(logRatios(extents), target)
		if distance < bestDistance {
			best, bestDistance = extents, distance
		}
	}
	if best == nil {
		return nil, disterrors.GridInfeasiblef(
			"no factorization of %d processes in %d factors fits the distributed dimensions %v",
			numProcesses, len(sizes), sizes)
	}
	return best, nil
}

// Factorizations returns all the ways of writing n as a product of k positive factors, each one sorted in
// non-decreasing order, listed in lexicographic order. Factors equal to 1 are included.
//
// E.g.: Factorizations(12, 3) = [[1 1 12] [1 2 6] [1 3 4] [2 2 3]].
//
// Results are memoized per (n, k): the returned value must not be modified.
func (s *Solver) Factorizations(n, k int) [][]int {
	key := factorKey{n, k}
	s.mu.Lock()
	defer s.mu.Unlock()
	if factorizations, found := s.factorizations[key]; found {
		return factorizations
	}
	klog.V(2).Infof("gridshape: enumerating factorizations of %d in %d factors", n, k)
	var factorizations [][]int
	current := make([]int, 0, k)
	var recurse func(remaining, minFactor, slots int)
	recurse = func(remaining, minFactor, slots int) {
		if slots == 1 {
			if remaining >= minFactor {
				factorization := append(slices.Clone(current), remaining)
				factorizations = append(factorizations, factorization)
			}
			return
		}
		for f := minFactor; pow(f, slots) <= remaining; f++ {
			if remaining%f != 0 {
				continue
			}
			current = append(current, f)
			recurse(remaining/f, f, slots-1)
			current = current[:len(current)-1]
		}
	}
	if n >= 1 && k >= 1 {
		recurse(n, 1, k)
	}
	s.factorizations[key] = factorizations
	return factorizations
}

// mirrorSort assigns the sorted factors to the dimensions by the order of their sizes: the largest factor
// goes to the largest dimension. Ties in sizes keep the dimension order (stable).
func mirrorSort(sortedFactors, sizes []int) []int {
	order := make([]int, len(sizes))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int { return sizes[a] - sizes[b] })
	extents := make([]int, len(sizes))
	for rank, dim := range order {
		extents[dim] = sortedFactors[rank]
	}
	return extents
}

// fits returns whether no extent exceeds the size of its (non-empty) dimension.
func fits(extents, sizes []int) bool {
	for i, extent := range extents {
		if sizes[i] > 0 && extent > sizes[i] {
			return false
		}
	}
	return true
}

// logRatios returns log(values[i]/values[j]) for all pairs i < j. Values are clamped to >= 1.
func logRatios(values []int) []float64 {
	ratios := make([]float64, 0, len(values)*(len(values)-1)/2)
	for i := range values {
		for j := i + 1; j < len(values); j++ {
			ratios = append(ratios, math.Log(float64(max(values[i], 1)))-math.Log(float64(max(values[j], 1))))
		}
	}
	return ratios
}

// ratioDistance is the Euclidean distance between two vectors of log-ratios.
func ratioDistance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return math.Sqrt(sum)
}

func pow[T constraints.Integer](base T, exp int) T {
	result := T(1)
	for range exp {
		result *= base
	}
	return result
}

// Product returns the product of the values. The product of an empty list is 1.
func Product[T constraints.Integer](values []T) T {
	result := T(1)
	for _, v := range values {
		result *= v
	}
	return result
}

// CheckPostconditions verifies a solved grid: it has the rank of the shape, not distributed dimensions have
// extent 1, no extent exceeds the size of a non-empty dimension, and the product of the extents is at most
// numProcesses.
//
// Failures are reported as disterrors.ErrInternal, since the Solver should never produce them.
func CheckPostconditions(shape []int, kinds []dimmap.Kind, numProcesses int, grid []int) error {
	if len(grid) != len(shape) {
		return disterrors.Internalf("grid %v has rank %d, but shape %v has rank %d", grid, len(grid), shape, len(shape))
	}
	for axis, extent := range grid {
		if extent < 1 {
			return disterrors.Internalf("grid %v has extent %d < 1 on axis %d", grid, extent, axis)
		}
		if kinds[axis] == dimmap.NotDistributed && extent != 1 {
			return disterrors.Internalf("grid %v has extent %d on not distributed axis %d", grid, extent, axis)
		}
		if shape[axis] > 0 && extent > shape[axis] {
			return disterrors.Internalf("grid %v has extent %d larger than dimension %d (axis %d) of shape %v",
				grid, extent, shape[axis], axis, shape)
		}
	}
	if p := Product(grid); p > numProcesses {
		return disterrors.Internalf("grid %v uses %d processes, only %d available", grid, p, numProcesses)
	}
	return nil
}

// Normalize validates and completes a user given grid shape hint for an array of the given shape and
// distribution kinds: it is padded with 1s up to the rank of the shape.
//
// Negative extents, a hint longer than the shape, or an extent other than 1 on a not distributed dimension
// are disterrors.ErrInvalidArgument. A hint whose extents multiply to more than numProcesses is
// disterrors.ErrGridInfeasible. Extents of 0 are not allowed.
func Normalize(hint []int, shape []int, kinds []dimmap.Kind, numProcesses int) ([]int, error) {
	if len(hint) > len(shape) {
		return nil, disterrors.InvalidArgumentf("grid shape %v has more axes than the array shape %v", hint, shape)
	}
	if len(kinds) != len(shape) {
		return nil, disterrors.InvalidArgumentf("shape %v has rank %d, but %d distribution kinds were given",
			shape, len(shape), len(kinds))
	}
	grid := make([]int, len(shape))
	for axis := range grid {
		grid[axis] = 1
		if axis < len(hint) {
			grid[axis] = hint[axis]
		}
		if grid[axis] < 1 {
			return nil, disterrors.InvalidArgumentf("grid shape %v has invalid extent %d on axis %d", hint, grid[axis], axis)
		}
		if kinds[axis] == dimmap.NotDistributed && grid[axis] != 1 {
			return nil, disterrors.InvalidArgumentf("grid shape %v has extent %d on axis %d, which is not distributed",
				hint, grid[axis], axis)
		}
	}
	if p := Product(grid); p > numProcesses {
		return nil, disterrors.GridInfeasiblef("grid shape %v requires %d processes, but only %d are available",
			grid, p, numProcesses)
	}
	return grid, nil
}
