// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dimmap

import (
	"fmt"

	"github.com/gomlx/distarray/pkg/core/disterrors"
	"golang.org/x/exp/constraints"
)

// Axis holds the fields common to every per-rank dimension descriptor.
type Axis struct {
	// Size is the global extent of the dimension.
	Size int

	// GridSize is the extent of the process grid axis this dimension is split over.
	GridSize int

	// GridRank is the coordinate, along the grid axis, of the rank described.
	GridRank int
}

// Common returns the fields shared by all descriptor variants.
func (a Axis) Common() Axis { return a }

// Descriptor describes how one dimension of the array is laid out in one rank.
//
// It is a closed set: NotDistributedDim, BlockDim, CyclicDim and UnstructuredDim.
type Descriptor interface {
	fmt.Stringer

	// Kind of the distribution of the dimension.
	Kind() Kind

	// Common returns the size, grid size and grid rank of the descriptor.
	Common() Axis

	// LocalSize returns the number of global indices of the dimension owned by the rank.
	LocalSize() int

	// LocalToGlobal converts a local index in [0, LocalSize) to its global index.
	// It returns disterrors.ErrIndexOutOfRange if localIndex is out of range.
	LocalToGlobal(localIndex int) (int, error)

	// GlobalToLocal converts a global index to the local index in this rank.
	// It returns false if the rank doesn't own globalIndex.
	GlobalToLocal(globalIndex int) (localIndex int, owned bool)

	// Indices returns the owned global indices, in local order.
	Indices() []int

	isDescriptor()
}

func localOutOfRange(d Descriptor, localIndex int) error {
	return disterrors.IndexOutOfRangef("local index %d out of range for %s with %d local elements",
		localIndex, d, d.LocalSize())
}

// ceilDiv for a >= 0 and b >= 1, without overflowing for values close to the maximum of T.
func ceilDiv[T constraints.Integer](a, b T) T {
	q := a / b
	if a%b != 0 {
		q++
	}
	return q
}

// NotDistributedDim describes a dimension held entirely by the rank.
type NotDistributedDim struct {
	Axis
}

func (NotDistributedDim) isDescriptor() {}

// Kind implements Descriptor.
func (NotDistributedDim) Kind() Kind { return NotDistributed }

// LocalSize implements Descriptor.
func (d NotDistributedDim) LocalSize() int { return d.Size }

// LocalToGlobal implements Descriptor.
func (d NotDistributedDim) LocalToGlobal(localIndex int) (int, error) {
	if localIndex < 0 || localIndex >= d.Size {
		return 0, localOutOfRange(d, localIndex)
	}
	return localIndex, nil
}

// GlobalToLocal implements Descriptor.
func (d NotDistributedDim) GlobalToLocal(globalIndex int) (int, bool) {
	if globalIndex < 0 || globalIndex >= d.Size {
		return 0, false
	}
	return globalIndex, true
}

// Indices implements Descriptor.
func (d NotDistributedDim) Indices() []int {
	return indexRange(0, d.Size, 1)
}

// String implements fmt.Stringer.
func (d NotDistributedDim) String() string {
	return fmt.Sprintf("n(size=%d)", d.Size)
}

// BlockDim describes the contiguous chunk [Start, Stop) of a Block dimension owned by the rank.
type BlockDim struct {
	Axis
	Start, Stop int
}

func (BlockDim) isDescriptor() {}

// Kind implements Descriptor.
func (BlockDim) Kind() Kind { return Block }

// LocalSize implements Descriptor.
func (d BlockDim) LocalSize() int { return d.Stop - d.Start }

// LocalToGlobal implements Descriptor.
func (d BlockDim) LocalToGlobal(localIndex int) (int, error) {
	if localIndex < 0 || localIndex >= d.LocalSize() {
		return 0, localOutOfRange(d, localIndex)
	}
	return d.Start + localIndex, nil
}

// GlobalToLocal implements Descriptor.
func (d BlockDim) GlobalToLocal(globalIndex int) (int, bool) {
	if globalIndex < d.Start || globalIndex >= d.Stop {
		return 0, false
	}
	return globalIndex - d.Start, true
}

// Indices implements Descriptor.
func (d BlockDim) Indices() []int {
	return indexRange(d.Start, d.Stop, 1)
}

// String implements fmt.Stringer.
func (d BlockDim) String() string {
	return fmt.Sprintf("b[%d:%d)", d.Start, d.Stop)
}

// CyclicDim describes the elements of a Cyclic dimension owned by the rank: the runs of BlockSize elements
// starting at Start + k*GridSize*BlockSize, for k = 0, 1, ...
type CyclicDim struct {
	Axis
	BlockSize int

	// Start is GridRank*BlockSize. It may be >= Size, in which case the rank owns nothing.
	Start int

	// Periodic is carried along for exports, it doesn't change the layout.
	Periodic bool
}

func (CyclicDim) isDescriptor() {}

// Kind implements Descriptor.
func (CyclicDim) Kind() Kind { return Cyclic }

// LocalSize implements Descriptor.
func (d CyclicDim) LocalSize() int {
	return cyclicLocalSize(d.Size, d.GridSize, d.BlockSize, d.GridRank)
}

// cyclicLocalSize is the number of elements owned by gridRank: the full runs it owns, minus the missing part of
// the last (partial) run if it is the owner of it.
func cyclicLocalSize(size, gridSize, blockSize, gridRank int) int {
	numBlocks := ceilDiv(size, blockSize)
	if gridRank >= numBlocks {
		return 0
	}
	runs := ceilDiv(numBlocks-gridRank, gridSize)
	if (numBlocks-1)%gridSize == gridRank {
		lastRun := size - (numBlocks-1)*blockSize
		return (runs-1)*blockSize + lastRun
	}
	return runs * blockSize
}

// LocalToGlobal implements Descriptor.
func (d CyclicDim) LocalToGlobal(localIndex int) (int, error) {
	if localIndex < 0 || localIndex >= d.LocalSize() {
		return 0, localOutOfRange(d, localIndex)
	}
	run := localIndex / d.BlockSize
	return (run*d.GridSize+d.GridRank)*d.BlockSize + localIndex%d.BlockSize, nil
}

// GlobalToLocal implements Descriptor.
func (d CyclicDim) GlobalToLocal(globalIndex int) (int, bool) {
	if globalIndex < 0 || globalIndex >= d.Size {
		return 0, false
	}
	block := globalIndex / d.BlockSize
	if block%d.GridSize != d.GridRank {
		return 0, false
	}
	return (block/d.GridSize)*d.BlockSize + globalIndex%d.BlockSize, true
}

// Indices implements Descriptor.
func (d CyclicDim) Indices() []int {
	n := d.LocalSize()
	indices := make([]int, n)
	for local := range n {
		indices[local], _ = d.LocalToGlobal(local)
	}
	return indices
}

// String implements fmt.Stringer.
func (d CyclicDim) String() string {
	return fmt.Sprintf("c(start=%d, block_size=%d, grid_size=%d)", d.Start, d.BlockSize, d.GridSize)
}

// UnstructuredDim describes an explicit list of global indices owned by the rank, in local order.
type UnstructuredDim struct {
	Axis

	// Owned global indices, in local order. Treat it as read-only.
	Owned []int

	positions map[int]int
}

// NewUnstructuredDim creates an UnstructuredDim owning the given global indices, in the given local order.
func NewUnstructuredDim(axis Axis, owned []int) UnstructuredDim {
	d := UnstructuredDim{Axis: axis, Owned: owned, positions: make(map[int]int, len(owned))}
	for local, global := range owned {
		d.positions[global] = local
	}
	return d
}

func (UnstructuredDim) isDescriptor() {}

// Kind implements Descriptor.
func (UnstructuredDim) Kind() Kind { return Unstructured }

// LocalSize implements Descriptor.
func (d UnstructuredDim) LocalSize() int { return len(d.Owned) }

// LocalToGlobal implements Descriptor.
func (d UnstructuredDim) LocalToGlobal(localIndex int) (int, error) {
	if localIndex < 0 || localIndex >= len(d.Owned) {
		return 0, localOutOfRange(d, localIndex)
	}
	return d.Owned[localIndex], nil
}

// GlobalToLocal implements Descriptor.
func (d UnstructuredDim) GlobalToLocal(globalIndex int) (int, bool) {
	if d.positions == nil {
		// Zero value or manually built: fall back to a linear scan.
		for local, global := range d.Owned {
			if global == globalIndex {
				return local, true
			}
		}
		return 0, false
	}
	local, found := d.positions[globalIndex]
	return local, found
}

// Indices implements Descriptor.
func (d UnstructuredDim) Indices() []int {
	return append([]int(nil), d.Owned...)
}

// String implements fmt.Stringer.
func (d UnstructuredDim) String() string {
	if len(d.Owned) > 8 {
		return fmt.Sprintf("u(%v...; %d indices)", d.Owned[:8], len(d.Owned))
	}
	return fmt.Sprintf("u(%v)", d.Owned)
}

// indexRange returns the range [start, stop) with the given step (> 0).
func indexRange(start, stop, step int) []int {
	if stop <= start {
		return []int{}
	}
	values := make([]int, 0, ceilDiv(stop-start, step))
	for v := start; v < stop; v += step {
		values = append(values, v)
	}
	return values
}
