// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dimmap

import (
	"fmt"
	"sort"

	"github.com/gomlx/distarray/pkg/core/disterrors"
)

// NotDistributedMap is a dimension replicated on every process: its grid size is always 1.
type NotDistributedMap struct {
	size int
}

// NewNotDistributedMap creates a NotDistributedMap of the given size.
func NewNotDistributedMap(size int) *NotDistributedMap {
	return &NotDistributedMap{size: size}
}

func (*NotDistributedMap) isMap() {}

// Kind implements Map.
func (*NotDistributedMap) Kind() Kind { return NotDistributed }

// Size implements Map.
func (m *NotDistributedMap) Size() int { return m.size }

// GridSize implements Map.
func (*NotDistributedMap) GridSize() int { return 1 }

// Descriptor implements Map.
func (m *NotDistributedMap) Descriptor(gridRank int) (Descriptor, error) {
	if err := checkGridRank(m, gridRank); err != nil {
		return nil, err
	}
	return NotDistributedDim{Axis{Size: m.size, GridSize: 1}}, nil
}

// Owner implements Map.
func (m *NotDistributedMap) Owner(globalIndex int) (int, int, error) {
	if err := checkGlobal(m, globalIndex); err != nil {
		return 0, 0, err
	}
	return 0, globalIndex, nil
}

// GlobalDimData implements Map.
func (m *NotDistributedMap) GlobalDimData() GlobalDimData {
	return GlobalDimData{DistType: NotDistributed, Size: m.size}
}

// Slice implements Map.
func (m *NotDistributedMap) Slice(sel Selection) (Map, []int, error) {
	return NewNotDistributedMap(sel.Count), []int{0}, nil
}

// String implements fmt.Stringer.
func (m *NotDistributedMap) String() string {
	return fmt.Sprintf("n(size=%d)", m.size)
}

// BlockMap splits a dimension in contiguous chunks: grid rank r owns [bounds[r], bounds[r+1]).
type BlockMap struct {
	bounds []int
}

// BlockBounds returns the chunk bounds of a regular block split of size elements over gridSize ranks.
// The returned slice has gridSize+1 elements, starting at 0 and ending at size.
func BlockBounds(size, gridSize int, chunking Chunking) []int {
	bounds := make([]int, gridSize+1)
	switch chunking {
	case Ceil:
		chunk := ceilDiv(size, gridSize)
		for r := 1; r <= gridSize; r++ {
			bounds[r] = min(r*chunk, size)
		}
	default:
		quotient, remainder := size/gridSize, size%gridSize
		for r := 1; r <= gridSize; r++ {
			bounds[r] = bounds[r-1] + quotient
			if r-1 < remainder {
				bounds[r]++
			}
		}
	}
	return bounds
}

// NewBlockMap creates a regular BlockMap of size elements over gridSize ranks.
// Ranks may own nothing if gridSize > size.
func NewBlockMap(size, gridSize int, chunking Chunking) (*BlockMap, error) {
	if size < 0 {
		return nil, disterrors.InvalidArgumentf("negative dimension size %d", size)
	}
	if gridSize < 1 {
		return nil, disterrors.InvalidArgumentf("block dimension requires grid size >= 1, got %d", gridSize)
	}
	if chunking != Balanced && chunking != Ceil {
		return nil, disterrors.InvalidArgumentf("invalid chunking %d", chunking)
	}
	return &BlockMap{bounds: BlockBounds(size, gridSize, chunking)}, nil
}

// NewIrregularBlockMap creates a BlockMap from explicit bounds: bounds[0] must be 0, and they must be
// non-decreasing. The size of the dimension is the last bound, and the grid size len(bounds)-1.
func NewIrregularBlockMap(bounds []int) (*BlockMap, error) {
	if len(bounds) < 2 {
		return nil, disterrors.MalformedDistributionf("block bounds %v must have at least 2 elements", bounds)
	}
	if bounds[0] != 0 {
		return nil, disterrors.MalformedDistributionf("block bounds %v must start at 0", bounds)
	}
	for r := 1; r < len(bounds); r++ {
		if bounds[r] < bounds[r-1] {
			return nil, disterrors.MalformedDistributionf("block bounds %v are not sorted at position %d", bounds, r)
		}
	}
	return &BlockMap{bounds: append([]int(nil), bounds...)}, nil
}

func (*BlockMap) isMap() {}

// Kind implements Map.
func (*BlockMap) Kind() Kind { return Block }

// Size implements Map.
func (m *BlockMap) Size() int { return m.bounds[len(m.bounds)-1] }

// GridSize implements Map.
func (m *BlockMap) GridSize() int { return len(m.bounds) - 1 }

// Bounds returns a copy of the chunk bounds.
func (m *BlockMap) Bounds() []int { return append([]int(nil), m.bounds...) }

// Descriptor implements Map.
func (m *BlockMap) Descriptor(gridRank int) (Descriptor, error) {
	if err := checkGridRank(m, gridRank); err != nil {
		return nil, err
	}
	return BlockDim{
		Axis:  Axis{Size: m.Size(), GridSize: m.GridSize(), GridRank: gridRank},
		Start: m.bounds[gridRank],
		Stop:  m.bounds[gridRank+1],
	}, nil
}

// Owner implements Map.
func (m *BlockMap) Owner(globalIndex int) (int, int, error) {
	if err := checkGlobal(m, globalIndex); err != nil {
		return 0, 0, err
	}
	// First bound strictly above globalIndex: empty chunks are skipped naturally.
	gridRank := sort.Search(len(m.bounds), func(i int) bool { return m.bounds[i] > globalIndex }) - 1
	return gridRank, globalIndex - m.bounds[gridRank], nil
}

// GlobalDimData implements Map.
func (m *BlockMap) GlobalDimData() GlobalDimData {
	return GlobalDimData{
		DistType:     Block,
		Size:         m.Size(),
		ProcGridSize: m.GridSize(),
		Bounds:       m.Bounds(),
	}
}

// Slice implements Map.
//
// A contiguous selection keeps the dimension as Block, with the chunks clipped to the selection.
// Strided selections become Unstructured.
func (m *BlockMap) Slice(sel Selection) (Map, []int, error) {
	if !sel.isContiguous() {
		return toUnstructured(m, sel)
	}
	lo, hi := sel.Start, sel.Start+sel.Count
	bounds := []int{0}
	var keep []int
	for r := range m.GridSize() {
		n := min(m.bounds[r+1], hi) - max(m.bounds[r], lo)
		if n > 0 {
			bounds = append(bounds, bounds[len(bounds)-1]+n)
			keep = append(keep, r)
		}
	}
	if len(keep) == 0 {
		bounds = append(bounds, 0)
		keep = []int{0}
	}
	return &BlockMap{bounds: bounds}, keep, nil
}

// String implements fmt.Stringer.
func (m *BlockMap) String() string {
	return fmt.Sprintf("b(bounds=%v)", m.bounds)
}
