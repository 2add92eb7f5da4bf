// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dap

import (
	"slices"

	"github.com/gomlx/distarray/pkg/core/dimmap"
	"github.com/gomlx/distarray/pkg/core/disterrors"
	"github.com/gomlx/distarray/pkg/core/distribution"
	"github.com/gomlx/distarray/pkg/core/gridshape"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// Export is the DAP description of a View: the local buffer (element type, local shape and row-major data)
// and the DimData of each dimension.
type Export struct {
	DType   dtypes.DType
	Shape   []int
	Buffer  []byte
	DimData []DimData
}

// Export returns the DAP description of the view. The buffer is shared with the view, not copied.
func (v *View) Export() *Export {
	e := &Export{
		DType:   v.dtype,
		Shape:   slices.Clone(v.localShape),
		Buffer:  v.buffer,
		DimData: make([]DimData, len(v.descs)),
	}
	if e.Shape == nil {
		e.Shape = []int{}
	}
	for axis, desc := range v.descs {
		e.DimData[axis] = DimDataOf(desc)
	}
	return e
}

// Import reconstructs the View described by e, without any other information.
//
// It returns disterrors.ErrMalformedExport if the DimData are invalid, or inconsistent with each other or with
// the buffer. The buffer is shared with e.
//
// The imported view is not bound to a distribution.Distribution: see View.Bind.
func Import(e *Export) (*View, error) {
	if e == nil {
		return nil, disterrors.MalformedExportf("nil export")
	}
	elemSize, err := elementSize(e.DType)
	if err != nil {
		return nil, disterrors.MalformedExportf("%v", err)
	}
	if len(e.Shape) != len(e.DimData) {
		return nil, disterrors.MalformedExportf("buffer of rank %d (shape %v) with %d dimdata entries",
			len(e.Shape), e.Shape, len(e.DimData))
	}
	descs := make([]dimmap.Descriptor, len(e.DimData))
	gridShape := make([]int, len(e.DimData))
	gridCoords := make([]int, len(e.DimData))
	for axis, dd := range e.DimData {
		desc, err := dd.Descriptor()
		if err != nil {
			return nil, errors.WithMessagef(err, "dimdata of axis %d", axis)
		}
		if desc.LocalSize() != e.Shape[axis] {
			return nil, disterrors.MalformedExportf("axis %d: buffer dimension %d, but dimdata %s owns %d elements",
				axis, e.Shape[axis], desc, desc.LocalSize())
		}
		descs[axis] = desc
		gridShape[axis] = dd.GridSize
		gridCoords[axis] = dd.GridRank
	}
	localShape := distribution.LocalShapeOf(descs)
	if memory := gridshape.Product(localShape) * elemSize; len(e.Buffer) != memory {
		return nil, disterrors.MalformedExportf("buffer has %d bytes, expected %d for shape %v of %s",
			len(e.Buffer), memory, localShape, e.DType)
	}
	buffer := e.Buffer
	if buffer == nil {
		buffer = []byte{}
	}
	return &View{
		rank:       distribution.Ravel(gridShape, gridCoords),
		dtype:      e.DType,
		descs:      descs,
		localShape: localShape,
		buffer:     buffer,
	}, nil
}
