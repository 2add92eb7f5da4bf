// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dap

import (
	"fmt"

	"github.com/gomlx/distarray/pkg/core/dimmap"
	"github.com/gomlx/distarray/pkg/core/disterrors"
	"github.com/gomlx/distarray/pkg/support/sets"
)

// Indices of the global indices of a dimension owned by a rank.
//
// For NotDistributed and Block dimensions it is the half-open range [Start, Stop) with Step 1. For Cyclic
// dimensions Start is GridRank*BlockSize, Stop is the size of the dimension, and Step is GridSize*BlockSize:
// the rank owns the runs of BlockSize elements starting at Start, Start+Step, ... (below Stop).
// For Unstructured dimensions the owned indices are listed in Explicit, in local order.
type Indices struct {
	Start, Stop, Step int
	Explicit          []int
}

// Padding is the number of ghost (halo) cells before and after the local data of a dimension.
// It is always zero for now.
type Padding [2]int

// DimData is the DAP description of one dimension of the local partition of a rank.
type DimData struct {
	DistType  dimmap.Kind
	Periodic  bool
	DataSize  int
	GridRank  int
	GridSize  int
	Indices   Indices
	BlockSize int
	Padding   Padding
}

// DimDataOf returns the DAP description of the dimension described by desc.
func DimDataOf(desc dimmap.Descriptor) DimData {
	axis := desc.Common()
	dd := DimData{
		DistType:  desc.Kind(),
		DataSize:  axis.Size,
		GridRank:  axis.GridRank,
		GridSize:  axis.GridSize,
		BlockSize: 1,
	}
	switch d := desc.(type) {
	case dimmap.NotDistributedDim:
		dd.Indices = Indices{Start: 0, Stop: d.Size, Step: 1}
	case dimmap.BlockDim:
		dd.Indices = Indices{Start: d.Start, Stop: d.Stop, Step: 1}
	case dimmap.CyclicDim:
		dd.Periodic = d.Periodic
		dd.BlockSize = d.BlockSize
		dd.Indices = Indices{Start: d.Start, Stop: d.Size, Step: d.GridSize * d.BlockSize}
	case dimmap.UnstructuredDim:
		dd.Indices = Indices{Explicit: append([]int{}, d.Owned...)}
	}
	return dd
}

// Descriptor validates the DimData and converts it back to a dimmap.Descriptor.
// Inconsistent values return disterrors.ErrMalformedExport.
func (dd DimData) Descriptor() (dimmap.Descriptor, error) {
	if dd.DataSize < 0 {
		return nil, disterrors.MalformedExportf("negative datasize %d", dd.DataSize)
	}
	if dd.GridSize < 1 || dd.GridRank < 0 || dd.GridRank >= dd.GridSize {
		return nil, disterrors.MalformedExportf("gridrank %d out of range for gridsize %d", dd.GridRank, dd.GridSize)
	}
	if dd.Padding[0] < 0 || dd.Padding[1] < 0 {
		return nil, disterrors.MalformedExportf("negative padding %v", dd.Padding)
	}
	if dd.Periodic && dd.DistType != dimmap.Cyclic {
		return nil, disterrors.MalformedExportf("periodic is only supported for cyclic dimensions, got %s", dd.DistType)
	}
	axis := dimmap.Axis{Size: dd.DataSize, GridSize: dd.GridSize, GridRank: dd.GridRank}
	idx := dd.Indices
	switch dd.DistType {
	case dimmap.NotDistributed:
		if dd.GridSize != 1 {
			return nil, disterrors.MalformedExportf("not distributed dimension with gridsize %d", dd.GridSize)
		}
		if idx.Start != 0 || idx.Stop != dd.DataSize || idx.Step != 1 {
			return nil, disterrors.MalformedExportf("not distributed dimension of size %d with indices %s",
				dd.DataSize, idx)
		}
		return dimmap.NotDistributedDim{Axis: axis}, nil

	case dimmap.Block:
		if idx.Step != 1 || idx.Start < 0 || idx.Start > idx.Stop || idx.Stop > dd.DataSize {
			return nil, disterrors.MalformedExportf("block dimension of size %d with indices %s", dd.DataSize, idx)
		}
		return dimmap.BlockDim{Axis: axis, Start: idx.Start, Stop: idx.Stop}, nil

	case dimmap.Cyclic:
		if dd.BlockSize < 1 {
			return nil, disterrors.MalformedExportf("cyclic dimension with blocksize %d", dd.BlockSize)
		}
		if idx.Start != dd.GridRank*dd.BlockSize || idx.Stop != dd.DataSize || idx.Step != dd.GridSize*dd.BlockSize {
			return nil, disterrors.MalformedExportf(
				"cyclic dimension (size=%d, gridrank=%d, gridsize=%d, blocksize=%d) with inconsistent indices %s",
				dd.DataSize, dd.GridRank, dd.GridSize, dd.BlockSize, idx)
		}
		return dimmap.CyclicDim{Axis: axis, BlockSize: dd.BlockSize, Start: idx.Start, Periodic: dd.Periodic}, nil

	case dimmap.Unstructured:
		seen := sets.Make[int](len(idx.Explicit))
		for _, g := range idx.Explicit {
			if g < 0 || g >= dd.DataSize {
				return nil, disterrors.MalformedExportf("unstructured index %d out of range for datasize %d", g, dd.DataSize)
			}
			if !seen.InsertNew(g) {
				return nil, disterrors.MalformedExportf("unstructured index %d repeated", g)
			}
		}
		return dimmap.NewUnstructuredDim(axis, append([]int{}, idx.Explicit...)), nil
	}
	return nil, disterrors.MalformedExportf("invalid disttype %d", dd.DistType)
}

// String implements fmt.Stringer.
func (idx Indices) String() string {
	if idx.Explicit != nil {
		return fmt.Sprint(idx.Explicit)
	}
	return fmt.Sprintf("{start=%d, stop=%d, step=%d}", idx.Start, idx.Stop, idx.Step)
}
