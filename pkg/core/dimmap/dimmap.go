// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package dimmap describes how one dimension of a distributed array is split along one axis of the
// process grid.
//
// A Map holds the global view of a dimension (which grid rank owns each global index), and a Descriptor
// holds the view of one grid rank (its owned indices and their local positions).
// Maps are immutable once created, and safe for concurrent use.
package dimmap

import (
	"slices"

	"github.com/gomlx/distarray/pkg/core/disterrors"
)

// Map is the global description of how one dimension is laid out over one axis of the process grid.
//
// It is a closed set: NotDistributedMap, BlockMap, CyclicMap and UnstructuredMap.
type Map interface {
	// Kind of the distribution.
	Kind() Kind

	// Size is the global extent of the dimension.
	Size() int

	// GridSize is the extent of the process grid axis the dimension is split over.
	GridSize() int

	// Descriptor returns the layout of the dimension for the given coordinate along the grid axis.
	Descriptor(gridRank int) (Descriptor, error)

	// Owner returns the grid coordinate owning globalIndex, and its local position there.
	// globalIndex must be in [0, Size), negative indices are not converted here.
	Owner(globalIndex int) (gridRank, localIndex int, err error)

	// GlobalDimData returns the description of the whole dimension, from which the Map can be rebuilt
	// with FromGlobalDimData.
	GlobalDimData() GlobalDimData

	// Slice returns the Map of the dimension after selecting the global indices in sel, and for each new grid
	// rank the old grid rank it comes from (grid ranks owning nothing of the selection are dropped).
	Slice(sel Selection) (sliced Map, keep []int, err error)

	isMap()
}

// LocalSizes returns the local size of the dimension for each coordinate of the grid axis.
func LocalSizes(m Map) []int {
	sizes := make([]int, m.GridSize())
	for gridRank := range sizes {
		d, err := m.Descriptor(gridRank)
		if err == nil {
			sizes[gridRank] = d.LocalSize()
		}
	}
	return sizes
}

func checkGridRank(m Map, gridRank int) error {
	if gridRank < 0 || gridRank >= m.GridSize() {
		return disterrors.IndexOutOfRangef("grid rank %d out of range for %s dimension over %d grid ranks",
			gridRank, m.Kind(), m.GridSize())
	}
	return nil
}

func checkGlobal(m Map, globalIndex int) error {
	if globalIndex < 0 || globalIndex >= m.Size() {
		return disterrors.IndexOutOfRangef("index %d out of range for dimension of size %d", globalIndex, m.Size())
	}
	return nil
}

// GlobalDimData is the serializable global description of one dimension.
//
// Which fields are used depends on DistType:
//
//   - NotDistributed: Size.
//   - Block: Bounds (strictly increasing from 0 to Size), or Size and ProcGridSize for a regular split.
//   - Cyclic: Size, ProcGridSize and BlockSize (defaults to 1). Periodic is optional.
//   - Unstructured: Indices, one list of global indices per grid rank. Size defaults to their total count.
type GlobalDimData struct {
	DistType     Kind    `cbor:"dist_type" json:"dist_type"`
	Size         int     `cbor:"size" json:"size"`
	ProcGridSize int     `cbor:"proc_grid_size,omitempty" json:"proc_grid_size,omitempty"`
	Bounds       []int   `cbor:"bounds,omitempty" json:"bounds,omitempty"`
	BlockSize    int     `cbor:"block_size,omitempty" json:"block_size,omitempty"`
	Periodic     bool    `cbor:"periodic,omitempty" json:"periodic,omitempty"`
	Indices      [][]int `cbor:"indices,omitempty" json:"indices,omitempty"`
}

// FromGlobalDimData creates the Map described by gd.
//
// Inconsistent or incomplete descriptions return disterrors.ErrMalformedDistribution.
func FromGlobalDimData(gd GlobalDimData) (Map, error) {
	if gd.Size < 0 {
		return nil, disterrors.MalformedDistributionf("negative size %d for %s dimension", gd.Size, gd.DistType)
	}
	switch gd.DistType {
	case NotDistributed:
		if gd.ProcGridSize > 1 {
			return nil, disterrors.MalformedDistributionf(
				"not distributed dimension with proc_grid_size=%d, it must be 1", gd.ProcGridSize)
		}
		return NewNotDistributedMap(gd.Size), nil

	case Block:
		if len(gd.Bounds) > 0 {
			m, err := NewIrregularBlockMap(gd.Bounds)
			if err != nil {
				return nil, err
			}
			if gd.Size != 0 && gd.Size != m.Size() {
				return nil, disterrors.MalformedDistributionf("block bounds %v end at %d, but size is %d",
					gd.Bounds, m.Size(), gd.Size)
			}
			if gd.ProcGridSize != 0 && gd.ProcGridSize != m.GridSize() {
				return nil, disterrors.MalformedDistributionf("block bounds %v define %d grid ranks, but proc_grid_size is %d",
					gd.Bounds, m.GridSize(), gd.ProcGridSize)
			}
			return m, nil
		}
		if gd.ProcGridSize < 1 {
			return nil, disterrors.MalformedDistributionf("block dimension requires either bounds or proc_grid_size >= 1")
		}
		return NewBlockMap(gd.Size, gd.ProcGridSize, Balanced)

	case Cyclic:
		if gd.ProcGridSize < 1 {
			return nil, disterrors.MalformedDistributionf("cyclic dimension requires proc_grid_size >= 1, got %d",
				gd.ProcGridSize)
		}
		blockSize := gd.BlockSize
		if blockSize == 0 {
			blockSize = 1
		}
		m, err := NewCyclicMap(gd.Size, gd.ProcGridSize, blockSize)
		if err != nil {
			return nil, disterrors.MalformedDistributionf("%v", err)
		}
		m.periodic = gd.Periodic
		return m, nil

	case Unstructured:
		if gd.ProcGridSize != 0 && gd.ProcGridSize != len(gd.Indices) {
			return nil, disterrors.MalformedDistributionf("unstructured dimension with %d lists of indices, but proc_grid_size is %d",
				len(gd.Indices), gd.ProcGridSize)
		}
		size := gd.Size
		if size == 0 {
			for _, indices := range gd.Indices {
				size += len(indices)
			}
		}
		return NewUnstructuredMap(size, gd.Indices)
	}
	return nil, disterrors.MalformedDistributionf("invalid dist_type %d", gd.DistType)
}

// Selection of the global indices Start + i*Step, for i in [0, Count), along one dimension.
//
// It is the normalized form of a slice: Step is never 0, and all selected indices are valid.
type Selection struct {
	Start, Step, Count int
}

// At returns the i-th selected global index.
func (s Selection) At(i int) int {
	return s.Start + i*s.Step
}

// Position returns the position i such that At(i) == globalIndex, if globalIndex is selected.
func (s Selection) Position(globalIndex int) (int, bool) {
	diff := globalIndex - s.Start
	if diff%s.Step != 0 {
		return 0, false
	}
	i := diff / s.Step
	if i < 0 || i >= s.Count {
		return 0, false
	}
	return i, true
}

// isContiguous returns whether the selection is the range [Start, Start+Count).
func (s Selection) isContiguous() bool {
	return s.Step == 1 || s.Count <= 1
}

// compact removes the grid ranks owning nothing from the per-rank lists.
// It returns the kept lists and the old grid rank of each of them.
// If every rank is empty, grid rank 0 is kept, so the dimension keeps a grid size of 1.
func compact(lists [][]int) (kept [][]int, keep []int) {
	for gridRank, list := range lists {
		if len(list) > 0 {
			kept = append(kept, list)
			keep = append(keep, gridRank)
		}
	}
	if len(kept) == 0 {
		return [][]int{{}}, []int{0}
	}
	return
}

// toUnstructured slices any map into an UnstructuredMap: each selected index goes to the grid rank that owned it.
func toUnstructured(m Map, sel Selection) (Map, []int, error) {
	lists := make([][]int, m.GridSize())
	for i := range sel.Count {
		gridRank, _, err := m.Owner(sel.At(i))
		if err != nil {
			return nil, nil, disterrors.Internalf("selection %+v over %s: %v", sel, m.Kind(), err)
		}
		lists[gridRank] = append(lists[gridRank], i)
	}
	kept, keep := compact(lists)
	sliced, err := NewUnstructuredMap(sel.Count, kept)
	if err != nil {
		return nil, nil, disterrors.Internalf("slicing %s dimension: %v", m.Kind(), err)
	}
	return sliced, keep, nil
}

// SliceLocal returns the local positions, in the rank described by d, of the elements kept by sel.
// They are returned in the order they take in the local buffer of the sliced dimension: the same order
// used by Map.Slice.
func SliceLocal(d Descriptor, sel Selection) []int {
	switch dd := d.(type) {
	case BlockDim:
		if sel.isContiguous() {
			lo := max(dd.Start, sel.Start)
			hi := min(dd.Stop, sel.Start+sel.Count)
			return indexRange(lo-dd.Start, hi-dd.Start, 1)
		}
	case UnstructuredDim:
		positions := []int{}
		for local, global := range dd.Owned {
			if _, found := sel.Position(global); found {
				positions = append(positions, local)
			}
		}
		return positions
	}

	// Generic case: sort owned selected elements by their new global position.
	type pair struct{ newGlobal, local int }
	var pairs []pair
	for local, global := range d.Indices() {
		if i, found := sel.Position(global); found {
			pairs = append(pairs, pair{i, local})
		}
	}
	slices.SortFunc(pairs, func(a, b pair) int { return a.newGlobal - b.newGlobal })
	positions := make([]int, len(pairs))
	for i, p := range pairs {
		positions[i] = p.local
	}
	return positions
}
