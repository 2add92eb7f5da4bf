// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package distribution

import (
	"fmt"

	"github.com/gomlx/distarray/pkg/core/dimmap"
	"github.com/gomlx/distarray/pkg/core/disterrors"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// AxisSpec specifies the selection of one axis in Distribution.Slice.
//
// The recommendation is to use AxisRange, AxisElem or Ellipsis (defined below) to create it.
//
// Full means to include the whole range (and ignore Start/End), NoStart means from the beginning of the axis
// (or from the end, for negative strides) and NoEnd means up to the end of the axis (or to the beginning).
// Negative Start and End are counted from the end of the axis, and out of range values are clamped, as in
// Python slices.
//
// IsElem selects only the element Start, and removes the axis from the result.
//
// IsSpacer means this AxisSpec is repeated for all the axes not specified, like an "..." in an index
// expression. Only one spacer is allowed.
type AxisSpec struct {
	Start, End, StrideValue int
	Full, NoStart, NoEnd    bool
	IsElem                  bool
	IsSpacer                bool

	// strideSet distinguishes an explicit Stride(0), which is invalid, from the default stride of 1.
	strideSet bool
}

// Stride returns a copy of the AxisSpec with the stride set to the given value. It can be negative, but not 0.
func (as AxisSpec) Stride(stride int) AxisSpec {
	as2 := as
	as2.StrideValue = stride
	as2.strideSet = true
	return as2
}

// Spacer returns a copy of the AxisSpec marked as a filler for all axes not specified.
func (as AxisSpec) Spacer() AxisSpec {
	as2 := as
	as2.IsSpacer = true
	return as2
}

// AxisRange defines a range to take for an axis.
//
// The indices can have 0, 1 or 2 elements:
//   - If `len(indices) == 0`, it's the full range of the axis.
//   - If `len(indices) == 1`, it's the start, and the range is taken to the end.
//   - If `len(indices) == 2`, they are the start and end indices for the axis.
//   - If `len(indices) > 2`, it panics.
func AxisRange(indices ...int) AxisSpec {
	switch len(indices) {
	case 0:
		return AxisSpec{Full: true, NoStart: true, NoEnd: true}
	case 1:
		return AxisSpec{Start: indices[0], NoEnd: true}
	case 2:
		return AxisSpec{Start: indices[0], End: indices[1]}
	}
	exceptions.Panicf("AxisRange(%v): more than 2 indices provided, that's not supported", indices)
	return AxisSpec{}
}

// AxisRangeToEnd defines a range from the given value to the end of the axis.
func AxisRangeToEnd(from int) AxisSpec {
	return AxisSpec{Start: from, NoEnd: true}
}

// AxisRangeFromStart defines a range from the start of the axis up to the given value.
func AxisRangeFromStart(to int) AxisSpec {
	return AxisSpec{NoStart: true, End: to}
}

// AxisElem selects one element of an axis, and removes the axis from the result.
func AxisElem(index int) AxisSpec {
	return AxisSpec{Start: index, IsElem: true}
}

// Ellipsis takes in full all the axes not specified.
func Ellipsis() AxisSpec {
	return AxisRange().Spacer()
}

// String implements fmt.Stringer, using the Python slice notation.
func (as AxisSpec) String() string {
	if as.IsSpacer {
		return "..."
	}
	if as.IsElem {
		return fmt.Sprint(as.Start)
	}
	var s string
	if !as.Full && !as.NoStart {
		s = fmt.Sprint(as.Start)
	}
	s += ":"
	if !as.Full && !as.NoEnd {
		s += fmt.Sprint(as.End)
	}
	if as.StrideValue != 0 && as.StrideValue != 1 {
		s += fmt.Sprintf(":%d", as.StrideValue)
	}
	return s
}

// Selection resolves the AxisSpec against an axis of the given size.
//
// It returns disterrors.ErrInvalidArgument for a stride of 0, and disterrors.ErrIndexOutOfRange for an
// element selection (IsElem) out of range.
func (as AxisSpec) Selection(size int) (dimmap.Selection, error) {
	if as.IsElem {
		idx := as.Start
		if idx < 0 {
			idx += size
		}
		if idx < 0 || idx >= size {
			return dimmap.Selection{}, disterrors.IndexOutOfRangef("index %d out of range for axis of size %d",
				as.Start, size)
		}
		return dimmap.Selection{Start: idx, Step: 1, Count: 1}, nil
	}
	step := as.StrideValue
	if step == 0 {
		if as.strideSet {
			return dimmap.Selection{}, disterrors.InvalidArgumentf("slice step cannot be zero")
		}
		step = 1
	}

	// Same clamping as Python's slice.indices().
	lower, upper := 0, size
	if step < 0 {
		lower, upper = -1, size-1
	}
	clamp := func(v int) int {
		if v < 0 {
			v += size
			if v < lower {
				v = lower
			}
		} else if v > upper {
			v = upper
		}
		return v
	}
	start, end := lower, upper
	if step < 0 {
		start, end = upper, lower
	}
	if !as.Full && !as.NoStart {
		start = clamp(as.Start)
	}
	if !as.Full && !as.NoEnd {
		end = clamp(as.End)
	}

	count := 0
	if step > 0 && end > start {
		count = (end - start + step - 1) / step
	} else if step < 0 && start > end {
		count = (start - end - step - 1) / (-step)
	}
	if count == 0 {
		return dimmap.Selection{Start: 0, Step: 1, Count: 0}, nil
	}
	return dimmap.Selection{Start: start, Step: step, Count: count}, nil
}

// Slicing is the resolution of a list of AxisSpec against a Distribution: one selection per axis of the
// original array, and whether the axis is removed from the result.
type Slicing struct {
	Selections []dimmap.Selection
	Collapsed  []bool
}

// ResolveSlice expands the ellipsis (if any) and resolves the selection of each axis.
//
// Axes not specified are taken in full. More than one ellipsis is disterrors.ErrInvalidArgument, and more
// specs than axes is disterrors.ErrIndexOutOfRange.
func (d *Distribution) ResolveSlice(specs ...AxisSpec) (Slicing, error) {
	rank := len(d.shape)
	var numSpacers int
	for _, spec := range specs {
		if spec.IsSpacer {
			numSpacers++
		}
	}
	if numSpacers > 1 {
		return Slicing{}, disterrors.InvalidArgumentf("only one ellipsis is allowed, but %d were given: %v",
			numSpacers, specs)
	}
	if len(specs)-numSpacers > rank {
		return Slicing{}, disterrors.IndexOutOfRangef("%d axes specified in slice %v, but the array has rank %d",
			len(specs)-numSpacers, specs, rank)
	}
	expanded := make([]AxisSpec, 0, rank)
	for _, spec := range specs {
		if !spec.IsSpacer {
			expanded = append(expanded, spec)
			continue
		}
		spec.IsSpacer = false
		for range rank - len(specs) + 1 {
			expanded = append(expanded, spec)
		}
	}
	for len(expanded) < rank {
		expanded = append(expanded, AxisRange())
	}

	s := Slicing{
		Selections: make([]dimmap.Selection, rank),
		Collapsed:  make([]bool, rank),
	}
	for axis, spec := range expanded {
		sel, err := spec.Selection(d.shape[axis])
		if err != nil {
			return Slicing{}, errors.WithMessagef(err, "axis %d", axis)
		}
		s.Selections[axis] = sel
		s.Collapsed[axis] = spec.IsElem
	}
	return s, nil
}

// Slice returns the distribution of the array after selecting the given ranges or elements of each axis.
//
// The slice is computed by every process independently, without communication. The kind of each axis
// changes as follows:
//
//   - NotDistributed and Unstructured axes keep their kind.
//   - Block axes remain Block for contiguous (step 1) selections, with the chunks clipped to the selection.
//   - Cyclic axes remain Cyclic for contiguous selections starting at a multiple of BlockSize*GridSize.
//   - Any other selection turns the axis into Unstructured, each rank keeping the selected elements it owned.
//
// Ranks owning nothing along an axis are dropped from the process grid (keeping at least one), so the
// result may have fewer targets than d.
func (d *Distribution) Slice(specs ...AxisSpec) (*Distribution, error) {
	s, err := d.ResolveSlice(specs...)
	if err != nil {
		return nil, err
	}
	return d.ApplySlice(s)
}

// ApplySlice returns the distribution after the resolved slicing s. See Slice.
func (d *Distribution) ApplySlice(s Slicing) (*Distribution, error) {
	if len(s.Selections) != len(d.shape) || len(s.Collapsed) != len(d.shape) {
		return nil, disterrors.InvalidArgumentf("slicing for %d axes applied to array of rank %d",
			len(s.Selections), len(d.shape))
	}
	var maps []dimmap.Map
	keeps := make([][]int, len(d.shape))
	for axis, m := range d.maps {
		sliced, keep, err := m.Slice(s.Selections[axis])
		if err != nil {
			return nil, err
		}
		keeps[axis] = keep
		if s.Collapsed[axis] {
			if len(keep) != 1 {
				return nil, disterrors.Internalf("element selection on axis %d kept %d grid ranks", axis, len(keep))
			}
			continue
		}
		maps = append(maps, sliced)
	}

	// Targets: the old rank at the grid coordinates each new rank came from.
	result := newDistribution(maps, nil, d.numProcesses)
	result.targets = make([]int, result.NumRanks())
	oldCoords := make([]int, len(d.shape))
	for newRank := range result.targets {
		newCoords := Unravel(result.gridShape, newRank)
		newAxis := 0
		for axis := range d.shape {
			if s.Collapsed[axis] {
				oldCoords[axis] = keeps[axis][0]
				continue
			}
			oldCoords[axis] = keeps[axis][newCoords[newAxis]]
			newAxis++
		}
		result.targets[newRank] = d.targets[Ravel(d.gridShape, oldCoords)]
	}
	klog.V(2).Infof("distribution: sliced %s -> %s", d, result)
	return result, nil
}
