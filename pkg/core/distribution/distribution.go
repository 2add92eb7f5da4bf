// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package distribution describes how an N-dimensional array is partitioned over a grid of processes.
//
// A Distribution holds the global shape of the array, the shape of the process grid (one extent per axis),
// the per-axis dimmap.Map, and the process ids (targets) of each rank of the grid. Ranks are the row-major
// flattening of the grid coordinates.
//
// Distributions are immutable and safe for concurrent use. Every process that builds one from the same
// inputs gets a bit-identical value (see Distribution.ID), so index translation never requires communication.
//
// Example:
//
//	d, err := distribution.FromShape(10).NumProcesses(4).Done()
//	// d.LocalShapes() == [][]int{{3}, {3}, {2}, {2}}
package distribution

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/distarray/pkg/core/dimmap"
	"github.com/gomlx/distarray/pkg/core/disterrors"
	"github.com/gomlx/distarray/pkg/core/gridshape"
)

// Distribution of an N-dimensional array over a grid of processes.
type Distribution struct {
	shape        []int
	maps         []dimmap.Map
	gridShape    []int
	targets      []int
	numProcesses int
}

// newDistribution assembles a Distribution from its already validated per-axis maps.
func newDistribution(maps []dimmap.Map, targets []int, numProcesses int) *Distribution {
	d := &Distribution{
		shape:        make([]int, len(maps)),
		maps:         maps,
		gridShape:    make([]int, len(maps)),
		targets:      targets,
		numProcesses: numProcesses,
	}
	for axis, m := range maps {
		d.shape[axis] = m.Size()
		d.gridShape[axis] = m.GridSize()
	}
	return d
}

// Shape returns the global shape of the array.
func (d *Distribution) Shape() []int { return slices.Clone(d.shape) }

// Rank returns the number of axes of the array.
func (d *Distribution) Rank() int { return len(d.shape) }

// Size returns the total number of elements of the array.
func (d *Distribution) Size() int { return gridshape.Product(d.shape) }

// Dist returns the distribution kind of each axis.
func (d *Distribution) Dist() []dimmap.Kind {
	kinds := make([]dimmap.Kind, len(d.maps))
	for axis, m := range d.maps {
		kinds[axis] = m.Kind()
	}
	return kinds
}

// GridShape returns the shape of the process grid: one extent per axis, 1 for not distributed axes.
func (d *Distribution) GridShape() []int { return slices.Clone(d.gridShape) }

// NumRanks returns the number of ranks in the process grid, the product of its extents.
func (d *Distribution) NumRanks() int { return gridshape.Product(d.gridShape) }

// NumProcesses returns the number of processes available when the distribution was created.
// It is >= NumRanks.
func (d *Distribution) NumProcesses() int { return d.numProcesses }

// Targets returns the process id of each rank. It may be a strict subset of the processes available.
func (d *Distribution) Targets() []int { return slices.Clone(d.targets) }

// Target returns the process id of the given rank.
func (d *Distribution) Target(rank int) (int, error) {
	if err := d.checkRank(rank); err != nil {
		return 0, err
	}
	return d.targets[rank], nil
}

// RankOfProcess returns the rank of the given process id, or false if the process doesn't participate.
func (d *Distribution) RankOfProcess(processID int) (int, bool) {
	rank := slices.Index(d.targets, processID)
	return rank, rank >= 0
}

// Map returns the per-axis map of the given axis. Negative axes are counted from the end.
func (d *Distribution) Map(axis int) (dimmap.Map, error) {
	adjusted, err := d.adjustAxis(axis)
	if err != nil {
		return nil, err
	}
	return d.maps[adjusted], nil
}

// GlobalDimData returns the rank independent description of every axis, one of the construction forms of a
// Distribution (see FromGlobalDimData).
func (d *Distribution) GlobalDimData() []dimmap.GlobalDimData {
	gds := make([]dimmap.GlobalDimData, len(d.maps))
	for axis, m := range d.maps {
		gds[axis] = m.GlobalDimData()
	}
	return gds
}

func (d *Distribution) adjustAxis(axis int) (int, error) {
	adjusted := axis
	if adjusted < 0 {
		adjusted += len(d.shape)
	}
	if adjusted < 0 || adjusted >= len(d.shape) {
		return 0, disterrors.InvalidArgumentf("axis %d out of range for array of rank %d", axis, len(d.shape))
	}
	return adjusted, nil
}

func (d *Distribution) checkRank(rank int) error {
	if rank < 0 || rank >= d.NumRanks() {
		return disterrors.IndexOutOfRangef("rank %d out of range for process grid %v with %d ranks",
			rank, d.gridShape, d.NumRanks())
	}
	return nil
}

// Unravel converts a flat rank to its coordinates in the grid, in row-major order (the last axis varies fastest).
func Unravel(gridShape []int, rank int) []int {
	coords := make([]int, len(gridShape))
	for axis := len(gridShape) - 1; axis >= 0; axis-- {
		coords[axis] = rank % gridShape[axis]
		rank /= gridShape[axis]
	}
	return coords
}

// Ravel converts grid coordinates to a flat rank, in row-major order. It is the inverse of Unravel.
func Ravel(gridShape []int, coords []int) int {
	rank := 0
	for axis, extent := range gridShape {
		rank = rank*extent + coords[axis]
	}
	return rank
}

// GridCoords returns the coordinates of rank in the process grid.
func (d *Distribution) GridCoords(rank int) ([]int, error) {
	if err := d.checkRank(rank); err != nil {
		return nil, err
	}
	return Unravel(d.gridShape, rank), nil
}

// RankOf returns the rank at the given coordinates of the process grid.
func (d *Distribution) RankOf(coords ...int) (int, error) {
	if len(coords) != len(d.gridShape) {
		return 0, disterrors.InvalidArgumentf("%d grid coordinates given for process grid %v", len(coords), d.gridShape)
	}
	for axis, coord := range coords {
		if coord < 0 || coord >= d.gridShape[axis] {
			return 0, disterrors.IndexOutOfRangef("grid coordinate %d out of range on axis %d of process grid %v",
				coord, axis, d.gridShape)
		}
	}
	return Ravel(d.gridShape, coords), nil
}

// Descriptors returns the resolved per-axis layout of the given rank.
func (d *Distribution) Descriptors(rank int) ([]dimmap.Descriptor, error) {
	if err := d.checkRank(rank); err != nil {
		return nil, err
	}
	coords := Unravel(d.gridShape, rank)
	descs := make([]dimmap.Descriptor, len(d.maps))
	for axis, m := range d.maps {
		desc, err := m.Descriptor(coords[axis])
		if err != nil {
			return nil, disterrors.Internalf("axis %d of rank %d: %v", axis, rank, err)
		}
		descs[axis] = desc
	}
	return descs, nil
}

// DimDataPerRank returns the resolved descriptors of every rank, indexed by rank then axis.
func (d *Distribution) DimDataPerRank() [][]dimmap.Descriptor {
	table := make([][]dimmap.Descriptor, d.NumRanks())
	for rank := range table {
		// Ranks in range can't fail.
		table[rank], _ = d.Descriptors(rank)
	}
	return table
}

// LocalShape returns the shape of the local block of the given rank.
func (d *Distribution) LocalShape(rank int) ([]int, error) {
	descs, err := d.Descriptors(rank)
	if err != nil {
		return nil, err
	}
	return LocalShapeOf(descs), nil
}

// LocalShapes returns the local shape of every rank.
func (d *Distribution) LocalShapes() [][]int {
	shapes := make([][]int, d.NumRanks())
	for rank := range shapes {
		shapes[rank], _ = d.LocalShape(rank)
	}
	return shapes
}

// LocalShapeOf returns the local shape described by the per-axis descriptors.
func LocalShapeOf(descs []dimmap.Descriptor) []int {
	shape := make([]int, len(descs))
	for axis, desc := range descs {
		shape[axis] = desc.LocalSize()
	}
	return shape
}

// Equal returns whether both distributions have the same shape, layout and targets.
func (d *Distribution) Equal(other *Distribution) bool {
	if d == other {
		return true
	}
	if d == nil || other == nil {
		return false
	}
	a, errA := d.MarshalBinary()
	b, errB := other.MarshalBinary()
	return errA == nil && errB == nil && slices.Equal(a, b)
}

// String implements fmt.Stringer.
func (d *Distribution) String() string {
	var sb strings.Builder
	sb.WriteString("Distribution(shape=")
	fmt.Fprint(&sb, d.shape)
	sb.WriteString(", dist=(")
	for axis, m := range d.maps {
		if axis > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(m.Kind().Code())
	}
	fmt.Fprintf(&sb, "), grid=%v, targets=%v)", d.gridShape, d.targets)
	return sb.String()
}
