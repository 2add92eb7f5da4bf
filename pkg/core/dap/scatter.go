// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dap

import (
	"slices"

	"github.com/gomlx/distarray/internal/workerspool"
	"github.com/gomlx/distarray/pkg/core/dimmap"
	"github.com/gomlx/distarray/pkg/core/disterrors"
	"github.com/gomlx/distarray/pkg/core/distribution"
	"github.com/gomlx/distarray/pkg/core/gridshape"
	"github.com/gomlx/distarray/pkg/support/sets"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Scatter splits a global array (row-major buffer of the full shape of dist) into the views of every rank.
// The views are filled in parallel, using pool (if nil a default pool is used).
func Scatter(pool *workerspool.Pool, dist *distribution.Distribution, dtype dtypes.DType, global []byte) ([]*View, error) {
	elemSize, err := elementSize(dtype)
	if err != nil {
		return nil, err
	}
	if expected := dist.Size() * elemSize; len(global) != expected {
		return nil, disterrors.InvalidArgumentf("global buffer of %d bytes for shape %v of %s (%d bytes)",
			len(global), dist.Shape(), dtype, expected)
	}
	if pool == nil {
		pool = workerspool.New()
	}
	views := make([]*View, dist.NumRanks())
	globalStrides := rowMajorStrides(dist.Shape())
	err = pool.ForEachRank(len(views), func(rank int) error {
		v, err := New(dist, rank, dtype)
		if err != nil {
			return err
		}
		local := 0
		forEachIndex(ownedIndices(v.descs), func(index []int) {
			offset := flatOffset(index, globalStrides) * elemSize
			copy(v.buffer[local:local+elemSize], global[offset:offset+elemSize])
			local += elemSize
		})
		views[rank] = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	klog.V(1).Infof("dap: scattered %s array of shape %v to %d ranks", dtype, dist.Shape(), len(views))
	return views, nil
}

// Gather assembles the global array from the views of all ranks of a distribution, which may have been
// imported (and not bound). It returns the global shape and the row-major buffer.
//
// Every rank of the process grid must be present exactly once, and the indices owned by the views must tile the
// global shape: otherwise it returns disterrors.ErrMalformedExport.
func Gather(pool *workerspool.Pool, views []*View) (shape []int, global []byte, err error) {
	if len(views) == 0 {
		return nil, nil, disterrors.InvalidArgumentf("no views to gather")
	}
	first := views[0]
	shape = first.GlobalShape()
	gridShape := first.GridShape()
	numRanks := gridshape.Product(gridShape)
	if len(views) != numRanks {
		return nil, nil, disterrors.InvalidArgumentf("%d views given for a process grid %v of %d ranks",
			len(views), gridShape, numRanks)
	}
	seen := make([]bool, numRanks)
	for _, v := range views {
		if v.dtype != first.dtype || !slices.Equal(v.GlobalShape(), shape) || !slices.Equal(v.GridShape(), gridShape) {
			return nil, nil, disterrors.InvalidArgumentf("view of rank %d (%s, shape %v, grid %v) doesn't match "+
				"view of rank %d (%s, shape %v, grid %v)", v.rank, v.dtype, v.GlobalShape(), v.GridShape(),
				first.rank, first.dtype, shape, gridShape)
		}
		if seen[v.rank] {
			return nil, nil, disterrors.InvalidArgumentf("rank %d given more than once", v.rank)
		}
		seen[v.rank] = true
	}
	if err := checkTiling(views, shape); err != nil {
		return nil, nil, err
	}

	elemSize := int(first.dtype.Memory())
	global = make([]byte, gridshape.Product(shape)*elemSize)
	globalStrides := rowMajorStrides(shape)
	if pool == nil {
		pool = workerspool.New()
	}
	err = pool.ForEachRank(len(views), func(i int) error {
		v := views[i]
		if len(v.buffer) != v.Size()*elemSize {
			return disterrors.Internalf("view of rank %d has %d bytes for local shape %v",
				v.rank, len(v.buffer), v.localShape)
		}
		local := 0
		forEachIndex(ownedIndices(v.descs), func(index []int) {
			offset := flatOffset(index, globalStrides) * elemSize
			copy(global[offset:offset+elemSize], v.buffer[local:local+elemSize])
			local += elemSize
		})
		return nil
	})
	if err != nil {
		return nil, nil, errors.WithMessage(err, "gathering views")
	}
	return shape, global, nil
}

// checkTiling verifies that, along each axis, views on the same grid coordinate own the same global indices, and
// that the indices of the different grid coordinates partition the axis.
func checkTiling(views []*View, shape []int) error {
	for axis, size := range shape {
		owned := make([]sets.Set[int], views[0].descs[axis].Common().GridSize)
		for _, v := range views {
			desc := v.descs[axis]
			coord := desc.Common().GridRank
			indices := sets.MakeWith(desc.Indices()...)
			if len(indices) != desc.LocalSize() {
				return disterrors.MalformedExportf("view of rank %d owns repeated indices along axis %d: %s",
					v.rank, axis, desc)
			}
			if owned[coord] == nil {
				owned[coord] = indices
				continue
			}
			if !owned[coord].Equal(indices) {
				return disterrors.MalformedExportf("view of rank %d owns indices %v along axis %d, but other views "+
					"on grid coordinate %d own %v", v.rank, sets.Sorted(indices), axis, coord, sets.Sorted(owned[coord]))
			}
		}

		union := sets.Make[int](size)
		for coord, indices := range owned {
			for _, g := range sets.Sorted(indices) {
				if g < 0 || g >= size {
					return disterrors.MalformedExportf("index %d out of range for axis %d of size %d", g, axis, size)
				}
				if !union.InsertNew(g) {
					return disterrors.MalformedExportf("index %d of axis %d owned by more than one grid coordinate "+
						"(%d and another)", g, axis, coord)
				}
			}
		}
		if len(union) != size {
			all := sets.Make[int](size)
			for g := range size {
				all.Insert(g)
			}
			return disterrors.MalformedExportf("indices %v of axis %d not owned by any view",
				sets.Sorted(all.Sub(union)), axis)
		}
	}
	return nil
}

// ownedIndices returns the global indices owned along each axis, in local order.
func ownedIndices(descs []dimmap.Descriptor) [][]int {
	indices := make([][]int, len(descs))
	for axis, desc := range descs {
		indices[axis] = desc.Indices()
	}
	return indices
}

func flatOffset(index, strides []int) int {
	offset := 0
	for axis, i := range index {
		offset += i * strides[axis]
	}
	return offset
}
