// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dimmap

import (
	"fmt"

	"github.com/gomlx/distarray/pkg/core/disterrors"
)

// UnstructuredMap holds for each grid rank an explicit list of the global indices it owns, in local order.
// The lists must partition [0, size): every index is owned by exactly one grid rank.
type UnstructuredMap struct {
	size    int
	indices [][]int

	// owner and local are dense lookups from global index to grid rank and local position.
	owner, local []int
}

// NewUnstructuredMap creates an UnstructuredMap of the given size from the per grid rank lists of global indices.
// It returns disterrors.ErrMalformedDistribution if the lists don't partition [0, size).
func NewUnstructuredMap(size int, indices [][]int) (*UnstructuredMap, error) {
	if len(indices) == 0 {
		return nil, disterrors.MalformedDistributionf("unstructured dimension requires at least one list of indices")
	}
	m := &UnstructuredMap{
		size:    size,
		indices: make([][]int, len(indices)),
		owner:   make([]int, size),
		local:   make([]int, size),
	}
	for g := range m.owner {
		m.owner[g] = -1
	}
	for gridRank, list := range indices {
		m.indices[gridRank] = append([]int{}, list...)
		for local, g := range list {
			if g < 0 || g >= size {
				return nil, disterrors.MalformedDistributionf(
					"unstructured index %d (grid rank %d) out of range for dimension of size %d", g, gridRank, size)
			}
			if m.owner[g] >= 0 {
				return nil, disterrors.MalformedDistributionf(
					"unstructured index %d owned by both grid ranks %d and %d", g, m.owner[g], gridRank)
			}
			m.owner[g] = gridRank
			m.local[g] = local
		}
	}
	for g, gridRank := range m.owner {
		if gridRank < 0 {
			return nil, disterrors.MalformedDistributionf("unstructured index %d is not owned by any grid rank", g)
		}
	}
	return m, nil
}

func (*UnstructuredMap) isMap() {}

// Kind implements Map.
func (*UnstructuredMap) Kind() Kind { return Unstructured }

// Size implements Map.
func (m *UnstructuredMap) Size() int { return m.size }

// GridSize implements Map.
func (m *UnstructuredMap) GridSize() int { return len(m.indices) }

// Descriptor implements Map.
func (m *UnstructuredMap) Descriptor(gridRank int) (Descriptor, error) {
	if err := checkGridRank(m, gridRank); err != nil {
		return nil, err
	}
	return NewUnstructuredDim(Axis{Size: m.size, GridSize: m.GridSize(), GridRank: gridRank}, m.indices[gridRank]), nil
}

// Owner implements Map.
func (m *UnstructuredMap) Owner(globalIndex int) (int, int, error) {
	if err := checkGlobal(m, globalIndex); err != nil {
		return 0, 0, err
	}
	return m.owner[globalIndex], m.local[globalIndex], nil
}

// GlobalDimData implements Map.
func (m *UnstructuredMap) GlobalDimData() GlobalDimData {
	indices := make([][]int, len(m.indices))
	for gridRank, list := range m.indices {
		indices[gridRank] = append([]int{}, list...)
	}
	return GlobalDimData{
		DistType:     Unstructured,
		Size:         m.size,
		ProcGridSize: len(m.indices),
		Indices:      indices,
	}
}

// Slice implements Map.
//
// Each grid rank keeps the selected indices it owned, in its original local order, renumbered to their
// position in the selection.
func (m *UnstructuredMap) Slice(sel Selection) (Map, []int, error) {
	lists := make([][]int, len(m.indices))
	for gridRank, list := range m.indices {
		for _, g := range list {
			if i, found := sel.Position(g); found {
				lists[gridRank] = append(lists[gridRank], i)
			}
		}
	}
	kept, keep := compact(lists)
	sliced, err := NewUnstructuredMap(sel.Count, kept)
	if err != nil {
		return nil, nil, disterrors.Internalf("slicing unstructured dimension: %v", err)
	}
	return sliced, keep, nil
}

// String implements fmt.Stringer.
func (m *UnstructuredMap) String() string {
	return fmt.Sprintf("u(size=%d, grid_size=%d)", m.size, len(m.indices))
}
