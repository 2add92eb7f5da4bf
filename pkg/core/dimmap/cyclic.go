// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dimmap

import (
	"fmt"

	"github.com/gomlx/distarray/pkg/core/disterrors"
)

// CyclicMap deals runs of blockSize elements round-robin over the grid ranks: global index g is owned by
// grid rank (g/blockSize) % gridSize.
//
// With blockSize == 1 it is the classic cyclic distribution, and with blockSize >= ceil(size/gridSize)
// it has the same ownership as a Ceil chunked Block distribution.
type CyclicMap struct {
	size, gridSize, blockSize int
	periodic                  bool
}

// NewCyclicMap creates a CyclicMap. blockSize and gridSize must be >= 1.
//
// A blockSize larger than the dimension is reduced to the dimension size (or 1 if empty): the ownership is the
// same, all elements in the first run owned by grid rank 0.
func NewCyclicMap(size, gridSize, blockSize int) (*CyclicMap, error) {
	if size < 0 {
		return nil, disterrors.InvalidArgumentf("negative dimension size %d", size)
	}
	if gridSize < 1 {
		return nil, disterrors.InvalidArgumentf("cyclic dimension requires grid size >= 1, got %d", gridSize)
	}
	if blockSize < 1 {
		return nil, disterrors.InvalidArgumentf("cyclic dimension requires block size >= 1, got %d", blockSize)
	}
	blockSize = min(blockSize, max(size, 1))
	return &CyclicMap{size: size, gridSize: gridSize, blockSize: blockSize}, nil
}

// WithPeriodic returns a copy of the map marked as periodic (or not). It doesn't change the layout.
func (m *CyclicMap) WithPeriodic(periodic bool) *CyclicMap {
	m2 := *m
	m2.periodic = periodic
	return &m2
}

// BlockSize returns the length of the runs dealt to each grid rank.
func (m *CyclicMap) BlockSize() int { return m.blockSize }

// Periodic returns whether the dimension is marked as periodic.
func (m *CyclicMap) Periodic() bool { return m.periodic }

func (*CyclicMap) isMap() {}

// Kind implements Map.
func (*CyclicMap) Kind() Kind { return Cyclic }

// Size implements Map.
func (m *CyclicMap) Size() int { return m.size }

// GridSize implements Map.
func (m *CyclicMap) GridSize() int { return m.gridSize }

// Descriptor implements Map.
func (m *CyclicMap) Descriptor(gridRank int) (Descriptor, error) {
	if err := checkGridRank(m, gridRank); err != nil {
		return nil, err
	}
	return CyclicDim{
		Axis:      Axis{Size: m.size, GridSize: m.gridSize, GridRank: gridRank},
		BlockSize: m.blockSize,
		Start:     gridRank * m.blockSize,
		Periodic:  m.periodic,
	}, nil
}

// Owner implements Map.
func (m *CyclicMap) Owner(globalIndex int) (int, int, error) {
	if err := checkGlobal(m, globalIndex); err != nil {
		return 0, 0, err
	}
	block := globalIndex / m.blockSize
	return block % m.gridSize, (block/m.gridSize)*m.blockSize + globalIndex%m.blockSize, nil
}

// GlobalDimData implements Map.
func (m *CyclicMap) GlobalDimData() GlobalDimData {
	return GlobalDimData{
		DistType:     Cyclic,
		Size:         m.size,
		ProcGridSize: m.gridSize,
		BlockSize:    m.blockSize,
		Periodic:     m.periodic,
	}
}

// Slice implements Map.
//
// A contiguous selection starting at the beginning of a full round (a multiple of blockSize*gridSize) remains
// Cyclic, over as many grid ranks as the selection has runs (at most gridSize). Anything else becomes Unstructured.
func (m *CyclicMap) Slice(sel Selection) (Map, []int, error) {
	round := m.blockSize * m.gridSize
	if sel.Step != 1 || sel.Start%round != 0 {
		return toUnstructured(m, sel)
	}
	gridSize := max(1, min(m.gridSize, ceilDiv(sel.Count, m.blockSize)))
	keep := make([]int, gridSize)
	for r := range keep {
		keep[r] = r
	}
	blockSize := min(m.blockSize, max(sel.Count, 1))
	return &CyclicMap{size: sel.Count, gridSize: gridSize, blockSize: blockSize, periodic: m.periodic}, keep, nil
}

// String implements fmt.Stringer.
func (m *CyclicMap) String() string {
	return fmt.Sprintf("c(size=%d, grid_size=%d, block_size=%d)", m.size, m.gridSize, m.blockSize)
}
