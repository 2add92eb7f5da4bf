// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package distribution

import (
	"github.com/gomlx/distarray/pkg/core/disterrors"
)

// NormalizeIndex resolves negative components of a global index from the end of their axis (-1 is the last
// element), and checks that every component is within bounds.
//
// It returns disterrors.ErrInvalidArgument if the index doesn't have one component per axis, and
// disterrors.ErrIndexOutOfRange if a component is out of bounds.
func (d *Distribution) NormalizeIndex(index ...int) ([]int, error) {
	if len(index) != len(d.shape) {
		return nil, disterrors.InvalidArgumentf("index %v has %d components, but the array has rank %d",
			index, len(index), len(d.shape))
	}
	normalized := make([]int, len(index))
	for axis, idx := range index {
		size := d.shape[axis]
		if idx < 0 {
			idx += size
		}
		if idx < 0 || idx >= size {
			return nil, disterrors.IndexOutOfRangef("index %d out of range for axis %d of size %d (shape %v)",
				index[axis], axis, size, d.shape)
		}
		normalized[axis] = idx
	}
	return normalized, nil
}

// GlobalToOwner returns the rank owning the element at the given global index.
// Negative components are counted from the end of their axis.
func (d *Distribution) GlobalToOwner(index ...int) (int, error) {
	rank, _, err := d.GlobalToLocal(index...)
	return rank, err
}

// GlobalToLocal returns the rank owning the element at the given global index, and the index of the element
// in the local block of that rank. Negative components are counted from the end of their axis.
func (d *Distribution) GlobalToLocal(index ...int) (rank int, local []int, err error) {
	normalized, err := d.NormalizeIndex(index...)
	if err != nil {
		return 0, nil, err
	}
	coords := make([]int, len(normalized))
	local = make([]int, len(normalized))
	for axis, g := range normalized {
		coords[axis], local[axis], err = d.maps[axis].Owner(g)
		if err != nil {
			return 0, nil, err
		}
	}
	return Ravel(d.gridShape, coords), local, nil
}

// LocalToGlobal converts an index in the local block of rank to the global index of the element.
func (d *Distribution) LocalToGlobal(rank int, local ...int) ([]int, error) {
	descs, err := d.Descriptors(rank)
	if err != nil {
		return nil, err
	}
	if len(local) != len(descs) {
		return nil, disterrors.InvalidArgumentf("local index %v has %d components, but the array has rank %d",
			local, len(local), len(descs))
	}
	global := make([]int, len(local))
	for axis, desc := range descs {
		global[axis], err = desc.LocalToGlobal(local[axis])
		if err != nil {
			return nil, err
		}
	}
	return global, nil
}
