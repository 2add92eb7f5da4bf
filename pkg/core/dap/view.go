// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package dap holds the local partition of a distributed array owned by one rank, and its export to (and
// import from) the Distributed Array Protocol (DAP) description: a self-describing record with the local
// buffer and, for each dimension, which global indices the rank owns.
//
// A View is created from a distribution.Distribution and a rank, or imported from an Export. Imported views
// know everything needed to translate indices of their own rank, but must be bound (View.Bind) to the full
// Distribution to be sliced.
package dap

import (
	"slices"
	"unsafe"

	"github.com/gomlx/distarray/pkg/core/dimmap"
	"github.com/gomlx/distarray/pkg/core/disterrors"
	"github.com/gomlx/distarray/pkg/core/distribution"
	"github.com/gomlx/distarray/pkg/core/gridshape"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// View is the local partition of a distributed array owned by one rank: its dimension descriptors and
// a row-major buffer with the local elements.
type View struct {
	dist       *distribution.Distribution
	rank       int
	dtype      dtypes.DType
	descs      []dimmap.Descriptor
	localShape []int
	buffer     []byte
}

// New creates a zero-initialized View of the given rank of dist.
func New(dist *distribution.Distribution, rank int, dtype dtypes.DType) (*View, error) {
	return newView(dist, rank, dtype, nil)
}

// FromBuffer creates a View of the given rank of dist backed by buffer, which holds the local elements in
// row-major order. The buffer is not copied.
func FromBuffer(dist *distribution.Distribution, rank int, dtype dtypes.DType, buffer []byte) (*View, error) {
	if buffer == nil {
		buffer = []byte{}
	}
	return newView(dist, rank, dtype, buffer)
}

func newView(dist *distribution.Distribution, rank int, dtype dtypes.DType, buffer []byte) (*View, error) {
	elemSize, err := elementSize(dtype)
	if err != nil {
		return nil, err
	}
	descs, err := dist.Descriptors(rank)
	if err != nil {
		return nil, err
	}
	localShape := distribution.LocalShapeOf(descs)
	memory := gridshape.Product(localShape) * elemSize
	if buffer == nil {
		buffer = make([]byte, memory)
	} else if len(buffer) != memory {
		return nil, disterrors.InvalidArgumentf("buffer of %d bytes for local shape %v of %s (%d bytes)",
			len(buffer), localShape, dtype, memory)
	}
	return &View{
		dist:       dist,
		rank:       rank,
		dtype:      dtype,
		descs:      descs,
		localShape: localShape,
		buffer:     buffer,
	}, nil
}

// elementSize returns the number of bytes of one element of dtype, or an error if dtype is not byte-addressable.
func elementSize(dtype dtypes.DType) (int, error) {
	if dtype == dtypes.InvalidDType {
		return 0, disterrors.InvalidArgumentf("invalid dtype")
	}
	size := int(dtype.Memory())
	if size <= 0 {
		return 0, disterrors.InvalidArgumentf("dtype %s is not supported for distributed arrays", dtype)
	}
	return size, nil
}

// Distribution returns the distribution the view belongs to, or nil if the view was imported and not bound.
func (v *View) Distribution() *distribution.Distribution { return v.dist }

// Rank returns the (flat) rank owning the view.
func (v *View) Rank() int { return v.rank }

// GridCoords returns the grid coordinates of the rank owning the view.
func (v *View) GridCoords() []int {
	coords := make([]int, len(v.descs))
	for axis, desc := range v.descs {
		coords[axis] = desc.Common().GridRank
	}
	return coords
}

// GridShape returns the shape of the process grid.
func (v *View) GridShape() []int {
	gridShape := make([]int, len(v.descs))
	for axis, desc := range v.descs {
		gridShape[axis] = desc.Common().GridSize
	}
	return gridShape
}

// DType returns the element type.
func (v *View) DType() dtypes.DType { return v.dtype }

// Descriptors returns the descriptors of each dimension of the view.
func (v *View) Descriptors() []dimmap.Descriptor { return slices.Clone(v.descs) }

// LocalShape returns the shape of the local data.
func (v *View) LocalShape() []int { return slices.Clone(v.localShape) }

// GlobalShape returns the shape of the distributed array.
func (v *View) GlobalShape() []int {
	shape := make([]int, len(v.descs))
	for axis, desc := range v.descs {
		shape[axis] = desc.Common().Size
	}
	return shape
}

// Size returns the number of local elements.
func (v *View) Size() int { return gridshape.Product(v.localShape) }

// Buffer returns the local data in row-major order. It is not a copy: changes are visible to the view.
func (v *View) Buffer() []byte { return v.buffer }

// FlatData returns the local data of v as a slice of T, sharing the view's buffer.
// It returns disterrors.ErrInvalidArgument if T doesn't match the view's dtype.
func FlatData[T dtypes.Supported](v *View) ([]T, error) {
	if dtype := dtypes.FromGenericsType[T](); dtype != v.dtype {
		return nil, disterrors.InvalidArgumentf("FlatData[%s] requested for view of dtype %s", dtype, v.dtype)
	}
	if len(v.buffer) == 0 {
		return []T{}, nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(v.buffer))), v.Size()), nil
}

// GlobalToLocal converts a global index (negative values count from the end of the axis) to the local index
// in this view. owned is false if the element belongs to another rank.
func (v *View) GlobalToLocal(global ...int) (local []int, owned bool, err error) {
	if len(global) != len(v.descs) {
		return nil, false, disterrors.InvalidArgumentf("index %v has %d axes, but the array has rank %d",
			global, len(global), len(v.descs))
	}
	local = make([]int, len(global))
	owned = true
	for axis, desc := range v.descs {
		size := desc.Common().Size
		g := global[axis]
		if g < 0 {
			g += size
		}
		if g < 0 || g >= size {
			return nil, false, disterrors.IndexOutOfRangef("index %d out of range for axis %d of size %d",
				global[axis], axis, size)
		}
		l, ok := desc.GlobalToLocal(g)
		if !ok {
			owned = false
			continue
		}
		local[axis] = l
	}
	if !owned {
		return nil, false, nil
	}
	return local, true, nil
}

// LocalToGlobal converts a local index in this view to the global index.
func (v *View) LocalToGlobal(local ...int) ([]int, error) {
	if len(local) != len(v.descs) {
		return nil, disterrors.InvalidArgumentf("local index %v has %d axes, but the array has rank %d",
			local, len(local), len(v.descs))
	}
	global := make([]int, len(local))
	for axis, desc := range v.descs {
		g, err := desc.LocalToGlobal(local[axis])
		if err != nil {
			return nil, errors.WithMessagef(err, "axis %d", axis)
		}
		global[axis] = g
	}
	return global, nil
}

// Bind returns a copy of v (sharing the buffer) attached to dist, after checking that v is the partition of
// one of the ranks of dist.
func (v *View) Bind(dist *distribution.Distribution) (*View, error) {
	if !slices.Equal(dist.Shape(), v.GlobalShape()) || !slices.Equal(dist.GridShape(), v.GridShape()) {
		return nil, disterrors.InvalidArgumentf("view of global shape %v and grid %v cannot be bound to %s",
			v.GlobalShape(), v.GridShape(), dist)
	}
	rank, err := dist.RankOf(v.GridCoords()...)
	if err != nil {
		return nil, err
	}
	descs, err := dist.Descriptors(rank)
	if err != nil {
		return nil, err
	}
	for axis, desc := range descs {
		if !slices.Equal(desc.Indices(), v.descs[axis].Indices()) || desc.Kind() != v.descs[axis].Kind() {
			return nil, disterrors.InvalidArgumentf("axis %d of the view (%s) doesn't match %s of the distribution",
				axis, v.descs[axis], desc)
		}
	}
	bound := *v
	bound.dist = dist
	bound.rank = rank
	bound.descs = descs
	return &bound, nil
}

// Slice returns the local view of the sliced array held by the same process, and the sliced distribution.
//
// The result is computed locally, in agreement with distribution.Distribution.Slice. If the process of this
// view holds no part of the result, the returned view is nil (and the error is nil).
// The data is copied.
func (v *View) Slice(specs ...distribution.AxisSpec) (*View, *distribution.Distribution, error) {
	if v.dist == nil {
		return nil, nil, disterrors.InvalidArgumentf("View.Slice requires a view bound to its distribution, see View.Bind")
	}
	s, err := v.dist.ResolveSlice(specs...)
	if err != nil {
		return nil, nil, err
	}
	sliced, err := v.dist.ApplySlice(s)
	if err != nil {
		return nil, nil, err
	}

	processID, err := v.dist.Target(v.rank)
	if err != nil {
		return nil, nil, err
	}
	newRank, found := sliced.RankOfProcess(processID)
	if !found {
		klog.V(2).Infof("dap: process %d (rank %d) holds nothing of the slice", processID, v.rank)
		return nil, sliced, nil
	}
	result, err := New(sliced, newRank, v.dtype)
	if err != nil {
		return nil, nil, err
	}

	// Local positions selected along each axis.
	positions := make([][]int, len(v.descs))
	var newShape []int
	for axis, desc := range v.descs {
		positions[axis] = dimmap.SliceLocal(desc, s.Selections[axis])
		if !s.Collapsed[axis] {
			newShape = append(newShape, len(positions[axis]))
		}
	}
	if !slices.Equal(newShape, result.localShape) {
		return nil, nil, disterrors.Internalf("sliced local shape %v doesn't match the local shape %v of rank %d of %s",
			newShape, result.localShape, newRank, sliced)
	}

	elemSize := int(v.dtype.Memory())
	strides := rowMajorStrides(v.localShape)
	dst := 0
	forEachIndex(positions, func(index []int) {
		src := 0
		for axis, pos := range index {
			src += pos * strides[axis]
		}
		copy(result.buffer[dst:dst+elemSize], v.buffer[src*elemSize:(src+1)*elemSize])
		dst += elemSize
	})
	return result, sliced, nil
}

// rowMajorStrides returns the number of elements between consecutive indices of each axis.
func rowMajorStrides(shape []int) []int {
	strides := make([]int, len(shape))
	stride := 1
	for axis := len(shape) - 1; axis >= 0; axis-- {
		strides[axis] = stride
		stride *= shape[axis]
	}
	return strides
}

// forEachIndex calls fn for every combination of values of the lists, in row-major order: fn receives
// (values[0][i0], values[1][i1], ...). The index slice passed to fn is reused between calls.
func forEachIndex(values [][]int, fn func(index []int)) {
	for _, list := range values {
		if len(list) == 0 {
			return
		}
	}
	counters := make([]int, len(values))
	index := make([]int, len(values))
	for axis, list := range values {
		index[axis] = list[0]
	}
	for {
		fn(index)
		axis := len(values) - 1
		for ; axis >= 0; axis-- {
			counters[axis]++
			if counters[axis] < len(values[axis]) {
				index[axis] = values[axis][counters[axis]]
				break
			}
			counters[axis] = 0
			index[axis] = values[axis][0]
		}
		if axis < 0 {
			return
		}
	}
}
