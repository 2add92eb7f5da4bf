// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dap

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"unsafe"

	"github.com/fxamacker/cbor/v2"
	"github.com/gomlx/distarray/internal/workerspool"
	"github.com/gomlx/distarray/pkg/core/dimmap"
	"github.com/gomlx/distarray/pkg/core/disterrors"
	"github.com/gomlx/distarray/pkg/core/distribution"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	n = dimmap.NotDistributed
	b = dimmap.Block
	c = dimmap.Cyclic
	u = dimmap.Unstructured
)

func testDistributions() []*distribution.Distribution {
	return []*distribution.Distribution{
		distribution.FromShape(10).NumProcesses(4).MustDone(),
		distribution.FromShape(5, 9).Dist(c, c).GridShape(2, 2).BlockSize(0, 2).BlockSize(1, 2).Periodic(1).MustDone(),
		distribution.FromShape(7, 4, 6).Dist(b, n, c).NumProcesses(6).MustDone(),
		distribution.FromShape(6, 4).Dist(u, b).Unstructured(0, [][]int{{5, 0, 3}, {1, 4, 2}}).NumProcesses(4).MustDone(),
		distribution.FromShape(0, 3).Dist(b, b).NumProcesses(2).MustDone(),
		distribution.FromShape().MustDone(),
	}
}

func asBytes(values []float32) []byte {
	if len(values) == 0 {
		return []byte{}
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(values))), len(values)*4)
}

func asFloat32(data []byte) []float32 {
	if len(data) == 0 {
		return []float32{}
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(unsafe.SliceData(data))), len(data)/4)
}

// iotaGlobal returns the global array where each element holds its row-major flat index.
func iotaGlobal(d *distribution.Distribution) []float32 {
	values := make([]float32, d.Size())
	for i := range values {
		values[i] = float32(i)
	}
	return values
}

func TestNewView(t *testing.T) {
	d := distribution.FromShape(5, 9).Dist(c, c).GridShape(2, 2).BlockSize(0, 2).BlockSize(1, 2).MustDone()
	v, err := New(d, 1, dtypes.Float32)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4}, v.LocalShape())
	assert.Equal(t, []int{5, 9}, v.GlobalShape())
	assert.Equal(t, []int{0, 1}, v.GridCoords())
	assert.Equal(t, []int{2, 2}, v.GridShape())
	assert.Len(t, v.Buffer(), 3*4*4)
	assert.Same(t, d, v.Distribution())

	flat := must.M1(FlatData[float32](v))
	assert.Len(t, flat, 12)
	flat[0] = 7
	assert.Equal(t, float32(7), asFloat32(v.Buffer())[0])

	_, err = FlatData[int32](v)
	require.ErrorIs(t, err, disterrors.ErrInvalidArgument)
	_, err = New(d, 4, dtypes.Float32)
	require.ErrorIs(t, err, disterrors.ErrIndexOutOfRange)
	_, err = New(d, 0, dtypes.InvalidDType)
	require.ErrorIs(t, err, disterrors.ErrInvalidArgument)
	_, err = FromBuffer(d, 0, dtypes.Float32, make([]byte, 10))
	require.ErrorIs(t, err, disterrors.ErrInvalidArgument)
}

func TestViewIndices(t *testing.T) {
	d := distribution.FromShape(6, 4).Dist(u, b).Unstructured(0, [][]int{{5, 0, 3}, {1, 4, 2}}).NumProcesses(4).MustDone()
	require.Equal(t, []int{2, 2}, d.GridShape())
	v := must.M1(New(d, 2, dtypes.Int64))

	local, owned, err := v.GlobalToLocal(4, 1)
	require.NoError(t, err)
	assert.True(t, owned)
	assert.Equal(t, []int{1, 1}, local)
	assert.Equal(t, []int{4, 1}, must.M1(v.LocalToGlobal(1, 1)))

	local, owned, err = v.GlobalToLocal(-4, 0)
	require.NoError(t, err)
	assert.True(t, owned)
	assert.Equal(t, []int{2, 0}, local)

	_, owned, err = v.GlobalToLocal(0, 0)
	require.NoError(t, err)
	assert.False(t, owned)
	_, owned, err = v.GlobalToLocal(1, 3)
	require.NoError(t, err)
	assert.False(t, owned)

	_, _, err = v.GlobalToLocal(6, 0)
	require.ErrorIs(t, err, disterrors.ErrIndexOutOfRange)
	_, _, err = v.GlobalToLocal(1)
	require.ErrorIs(t, err, disterrors.ErrInvalidArgument)
	_, err = v.LocalToGlobal(3, 0)
	require.ErrorIs(t, err, disterrors.ErrIndexOutOfRange)
}

func TestExportImportRoundTrip(t *testing.T) {
	for _, d := range testDistributions() {
		t.Run(d.String(), func(t *testing.T) {
			views := must.M1(Scatter(nil, d, dtypes.Float32, asBytes(iotaGlobal(d))))
			for rank, v := range views {
				e := v.Export()
				require.Len(t, e.DimData, d.Rank())
				data, err := Marshal(e)
				require.NoError(t, err)

				decoded, err := Unmarshal(data)
				require.NoError(t, err)
				imported, err := Import(decoded)
				require.NoError(t, err)
				assert.Nil(t, imported.Distribution())
				assert.Equal(t, rank, imported.Rank())
				assert.Equal(t, v.LocalShape(), imported.LocalShape())

				e2 := imported.Export()
				assert.Equal(t, e.DType, e2.DType)
				assert.Equal(t, e.Shape, e2.Shape)
				assert.Equal(t, e.DimData, e2.DimData)
				assert.Equal(t, e.Buffer, e2.Buffer)
				assert.Equal(t, data, must.M1(Marshal(e2)))

				// Imported views translate indices as the distribution does.
				for local := range v.Size() {
					localIndex := distribution.Unravel(v.LocalShape(), local)
					global := must.M1(imported.LocalToGlobal(localIndex...))
					owner, _, err := d.GlobalToLocal(global...)
					require.NoError(t, err)
					assert.Equal(t, rank, owner)
				}

				bound, err := imported.Bind(d)
				require.NoError(t, err)
				assert.Equal(t, rank, bound.Rank())
				assert.Same(t, d, bound.Distribution())
			}
		})
	}
}

// wireDim is used to inspect the encoded dimdata.
type wireDim struct {
	DistType  string `cbor:"disttype"`
	Periodic  bool   `cbor:"periodic"`
	DataSize  int    `cbor:"datasize"`
	GridRank  int    `cbor:"gridrank"`
	GridSize  int    `cbor:"gridsize"`
	BlockSize int    `cbor:"blocksize"`
	Padding   []int  `cbor:"padding"`

	Indices cbor.RawMessage `cbor:"indices"`
}

func encodedDims(t *testing.T, v *View) []wireDim {
	var record struct {
		DimData []wireDim `cbor:"dimdata"`
	}
	require.NoError(t, cbor.Unmarshal(must.M1(Marshal(v.Export())), &record))
	return record.DimData
}

func TestWireFormat(t *testing.T) {
	t.Run("cyclic", func(t *testing.T) {
		d := distribution.FromShape(5, 9).Dist(c, c).GridShape(2, 2).BlockSize(0, 2).BlockSize(1, 2).Periodic(1).MustDone()
		dims := encodedDims(t, must.M1(New(d, 3, dtypes.Float32)))
		require.Len(t, dims, 2)
		var indices map[string]int
		require.NoError(t, cbor.Unmarshal(dims[0].Indices, &indices))
		assert.Equal(t, map[string]int{"start": 2, "stop": 5, "step": 4}, indices)
		assert.Equal(t, "c", dims[0].DistType)
		assert.Equal(t, 2, dims[0].BlockSize)
		assert.False(t, dims[0].Periodic)
		assert.True(t, dims[1].Periodic)
		assert.Equal(t, 1, dims[1].GridRank)
		assert.Equal(t, 2, dims[1].GridSize)
		assert.Equal(t, 9, dims[1].DataSize)
		assert.Equal(t, []int{0, 0}, dims[1].Padding)
	})

	t.Run("block_and_unstructured", func(t *testing.T) {
		d := distribution.FromShape(6, 4).Dist(u, b).Unstructured(0, [][]int{{5, 0, 3}, {1, 4, 2}}).NumProcesses(4).MustDone()
		dims := encodedDims(t, must.M1(New(d, 1, dtypes.Float32)))
		require.Len(t, dims, 2)
		var explicit []int
		require.NoError(t, cbor.Unmarshal(dims[0].Indices, &explicit))
		assert.Equal(t, "u", dims[0].DistType)
		assert.Equal(t, []int{5, 0, 3}, explicit)

		var indices map[string]int
		require.NoError(t, cbor.Unmarshal(dims[1].Indices, &indices))
		assert.Equal(t, "b", dims[1].DistType)
		assert.Equal(t, map[string]int{"start": 2, "stop": 4, "step": 1}, indices)
		assert.Equal(t, 1, dims[1].BlockSize)
	})

	t.Run("not_distributed", func(t *testing.T) {
		d := distribution.FromShape(3, 4).Dist(b, n).NumProcesses(3).MustDone()
		dims := encodedDims(t, must.M1(New(d, 2, dtypes.Float32)))
		var indices map[string]int
		require.NoError(t, cbor.Unmarshal(dims[1].Indices, &indices))
		assert.Equal(t, "n", dims[1].DistType)
		assert.Equal(t, map[string]int{"start": 0, "stop": 4, "step": 1}, indices)
		assert.Equal(t, 1, dims[1].GridSize)
	})
}

// genericRecord decodes a DAP record into nested map[string]any, to be edited by tests.
func genericRecord(t *testing.T, data []byte) map[string]any {
	decMode := must.M1(cbor.DecOptions{DefaultMapType: reflect.TypeOf(map[string]any(nil))}.DecMode())
	var record map[string]any
	require.NoError(t, decMode.Unmarshal(data, &record))
	return record
}

func TestUnmarshalMalformed(t *testing.T) {
	d := distribution.FromShape(5, 9).Dist(c, u).GridShape(2, 2).BlockSize(0, 2).
		Unstructured(1, [][]int{{0, 2, 4, 6, 8}, {1, 3, 5, 7}}).MustDone()
	data := must.M1(Marshal(must.M1(New(d, 1, dtypes.Float64)).Export()))
	_ = must.M1(Import(must.M1(Unmarshal(data))))

	buffer := func(r map[string]any) map[string]any { return r[KeyBuffer].(map[string]any) }
	dim := func(r map[string]any, axis int) map[string]any {
		return r[KeyDimData].([]any)[axis].(map[string]any)
	}
	testCases := []struct {
		name string
		edit func(r map[string]any)
	}{
		{"missing buffer", func(r map[string]any) { delete(r, KeyBuffer) }},
		{"missing dimdata", func(r map[string]any) { delete(r, KeyDimData) }},
		{"missing dtype", func(r map[string]any) { delete(buffer(r), KeyDType) }},
		{"missing shape", func(r map[string]any) { delete(buffer(r), KeyShape) }},
		{"missing data", func(r map[string]any) { delete(buffer(r), KeyData) }},
		{"missing disttype", func(r map[string]any) { delete(dim(r, 0), KeyDistType) }},
		{"missing gridsize", func(r map[string]any) { delete(dim(r, 1), KeyGridSize) }},
		{"missing periodic", func(r map[string]any) { delete(dim(r, 0), KeyPeriodic) }},
		{"missing padding", func(r map[string]any) { delete(dim(r, 0), KeyPadding) }},
		{"missing indices", func(r map[string]any) { delete(dim(r, 1), KeyIndices) }},
		{"missing step", func(r map[string]any) { delete(dim(r, 0)[KeyIndices].(map[string]any), KeyStep) }},
		{"wrong type gridsize", func(r map[string]any) { dim(r, 0)[KeyGridSize] = "two" }},
		{"wrong type periodic", func(r map[string]any) { dim(r, 0)[KeyPeriodic] = 1 }},
		{"wrong type dimdata", func(r map[string]any) { r[KeyDimData] = "none" }},
		{"wrong type buffer", func(r map[string]any) { r[KeyBuffer] = []int{1, 2} }},
		{"wrong type indices", func(r map[string]any) { dim(r, 1)[KeyIndices] = map[string]any{"start": 0} }},
		{"null datasize", func(r map[string]any) { dim(r, 0)[KeyDataSize] = nil }},
		{"unknown dtype", func(r map[string]any) { buffer(r)[KeyDType] = "Float128" }},
		{"unknown disttype", func(r map[string]any) { dim(r, 0)[KeyDistType] = "x" }},
		{"short padding", func(r map[string]any) { dim(r, 0)[KeyPadding] = []int{0} }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			record := genericRecord(t, data)
			tc.edit(record)
			_, err := Unmarshal(must.M1(cbor.Marshal(record)))
			require.ErrorIs(t, err, disterrors.ErrMalformedExport)
		})
	}

	_, err := Unmarshal([]byte("not cbor"))
	require.ErrorIs(t, err, disterrors.ErrMalformedExport)
}

func TestImportMalformed(t *testing.T) {
	d := distribution.FromShape(5, 9).Dist(c, b).GridShape(2, 2).BlockSize(0, 2).MustDone()
	valid := func() *Export { return must.M1(New(d, 3, dtypes.Int32)).Export() }
	testCases := []struct {
		name string
		edit func(e *Export)
	}{
		{"cyclic start", func(e *Export) { e.DimData[0].Indices.Start = 0 }},
		{"cyclic step", func(e *Export) { e.DimData[0].Indices.Step = 2 }},
		{"cyclic blocksize", func(e *Export) { e.DimData[0].BlockSize = 0 }},
		{"block beyond datasize", func(e *Export) { e.DimData[1].Indices.Stop = 10 }},
		{"block step", func(e *Export) { e.DimData[1].Indices.Step = 2 }},
		{"gridrank", func(e *Export) { e.DimData[1].GridRank = 2 }},
		{"periodic block", func(e *Export) { e.DimData[1].Periodic = true }},
		{"padding", func(e *Export) { e.DimData[1].Padding = Padding{-1, 0} }},
		{"shape mismatch", func(e *Export) { e.Shape[1]++ }},
		{"rank mismatch", func(e *Export) { e.Shape = e.Shape[:1] }},
		{"buffer size", func(e *Export) { e.Buffer = e.Buffer[1:] }},
		{"invalid dtype", func(e *Export) { e.DType = dtypes.InvalidDType }},
		{"unstructured repeated", func(e *Export) {
			e.DimData[1].DistType = u
			e.DimData[1].Indices = Indices{Explicit: []int{5, 5, 6, 7, 8}}
		}},
		{"unstructured out of range", func(e *Export) {
			e.DimData[1].DistType = u
			e.DimData[1].Indices = Indices{Explicit: []int{5, 6, 7, 8, 9}}
		}},
		{"not distributed with grid", func(e *Export) {
			e.DimData[1].DistType = n
			e.DimData[1].Indices = Indices{Start: 0, Stop: 9, Step: 1}
		}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			e := valid()
			_ = must.M1(Import(e))
			tc.edit(e)
			_, err := Import(e)
			require.ErrorIs(t, err, disterrors.ErrMalformedExport)
		})
	}
	_, err := Import(nil)
	require.ErrorIs(t, err, disterrors.ErrMalformedExport)
}

func TestScatterGather(t *testing.T) {
	pool := workerspool.New().SetMaxParallelism(2)
	for _, d := range testDistributions() {
		t.Run(d.String(), func(t *testing.T) {
			global := iotaGlobal(d)
			views, err := Scatter(pool, d, dtypes.Float32, asBytes(global))
			require.NoError(t, err)
			require.Len(t, views, d.NumRanks())
			for rank, v := range views {
				assert.Equal(t, rank, v.Rank())
				flat := must.M1(FlatData[float32](v))
				for local, value := range flat {
					globalIndex := must.M1(v.LocalToGlobal(distribution.Unravel(v.LocalShape(), local)...))
					assert.Equal(t, global[distribution.Ravel(d.Shape(), globalIndex)], value)
				}
			}

			shape, gathered, err := Gather(pool, views)
			require.NoError(t, err)
			assert.Equal(t, d.Shape(), shape)
			assert.Equal(t, global, asFloat32(gathered))
		})
	}

	d := testDistributions()[0]
	_, err := Scatter(pool, d, dtypes.Float32, make([]byte, 8))
	require.ErrorIs(t, err, disterrors.ErrInvalidArgument)
	views := must.M1(Scatter(pool, d, dtypes.Float32, asBytes(iotaGlobal(d))))
	_, _, err = Gather(pool, views[:3])
	require.ErrorIs(t, err, disterrors.ErrInvalidArgument)
	_, _, err = Gather(pool, []*View{views[0], views[1], views[1], views[3]})
	require.ErrorIs(t, err, disterrors.ErrInvalidArgument)
	_, _, err = Gather(pool, nil)
	require.ErrorIs(t, err, disterrors.ErrInvalidArgument)
}

func TestGatherRequiresTiling(t *testing.T) {
	// importedWith exports the view of rank of d, edits the indices of the axis and imports it back.
	importedWith := func(d *distribution.Distribution, rank, axis int, indices Indices) *View {
		e := must.M1(New(d, rank, dtypes.Float32)).Export()
		e.DimData[axis].Indices = indices
		e.Shape[axis] = indices.Stop - indices.Start
		e.Buffer = make([]byte, e.Shape[0]*e.Shape[1]*4)
		return must.M1(Import(e))
	}
	d := distribution.FromShape(4, 3).Dist(b, n).NumProcesses(2).MustDone()
	views := must.M1(Scatter(nil, d, dtypes.Float32, asBytes(iotaGlobal(d))))
	testCases := []struct {
		name    string
		indices Indices
	}{
		{"overlap", Indices{Start: 0, Stop: 2, Step: 1}},
		{"gap", Indices{Start: 3, Stop: 4, Step: 1}},
		{"overlap and gap", Indices{Start: 1, Stop: 3, Step: 1}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Gather(nil, []*View{views[0], importedWith(d, 1, 0, tc.indices)})
			require.ErrorIs(t, err, disterrors.ErrMalformedExport)
		})
	}

	// Views on the same grid row must own the same rows.
	d = distribution.FromShape(4, 4).Dist(b, b).GridShape(2, 2).MustDone()
	views = must.M1(Scatter(nil, d, dtypes.Float32, asBytes(iotaGlobal(d))))
	_, _, err := Gather(nil, []*View{views[0], importedWith(d, 1, 0, Indices{Start: 1, Stop: 3, Step: 1}),
		views[2], views[3]})
	require.ErrorIs(t, err, disterrors.ErrMalformedExport)

	_, gathered, err := Gather(nil, []*View{views[0], importedWith(d, 1, 0, Indices{Start: 0, Stop: 2, Step: 1}),
		views[2], views[3]})
	require.NoError(t, err)
	assert.Len(t, gathered, 16*4)
}

func TestSaveLoad(t *testing.T) {
	dir := t.TempDir()
	d := distribution.FromShape(7, 4, 6).Dist(b, n, c).NumProcesses(6).MustDone()
	global := iotaGlobal(d)
	views := must.M1(Scatter(nil, d, dtypes.Float32, asBytes(global)))
	for _, v := range views {
		path, err := Save(dir, "weights", v)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, fmt.Sprintf("weights_%d.dap", v.Rank())), path)
	}

	loaded := make([]*View, len(views))
	for rank := range views {
		v, err := Load(filepath.Join(dir, FileName("weights", rank)))
		require.NoError(t, err)
		assert.Equal(t, rank, v.Rank())
		loaded[rank] = v
	}
	_, gathered := must.M2(Gather(nil, loaded))
	assert.Equal(t, global, asFloat32(gathered))

	all, err := LoadAll(dir, "weights")
	require.NoError(t, err)
	require.Len(t, all, d.NumRanks())
	_, gathered = must.M2(Gather(nil, all))
	assert.Equal(t, global, asFloat32(gathered))
	_, err = LoadAll(dir, "missing")
	require.ErrorIs(t, err, disterrors.ErrInvalidArgument)
	require.NoError(t, os.Remove(filepath.Join(dir, FileName("weights", 5))))
	_, err = LoadAll(dir, "weights")
	require.ErrorIs(t, err, disterrors.ErrMalformedExport)

	_, err = Load(filepath.Join(dir, "missing_0.dap"))
	require.Error(t, err)
	corrupted := filepath.Join(dir, "corrupted_0.dap")
	require.NoError(t, os.WriteFile(corrupted, []byte{0xa1, 0x61, 0x78, 0x01}, 0o644))
	_, err = Load(corrupted)
	require.ErrorIs(t, err, disterrors.ErrMalformedExport)
}

func TestBind(t *testing.T) {
	d := distribution.FromShape(10).NumProcesses(4).MustDone()
	v := must.M1(Import(must.M1(New(d, 2, dtypes.Float32)).Export()))
	_, _, err := v.Slice(distribution.AxisRange(1, 5))
	require.ErrorIs(t, err, disterrors.ErrInvalidArgument)

	bound := must.M1(v.Bind(d))
	assert.Equal(t, 2, bound.Rank())

	ceil := distribution.FromShape(10).NumProcesses(4).Chunking(dimmap.Ceil).MustDone()
	_, err = v.Bind(ceil)
	require.ErrorIs(t, err, disterrors.ErrInvalidArgument)
	_, err = v.Bind(distribution.FromShape(10).NumProcesses(2).MustDone())
	require.ErrorIs(t, err, disterrors.ErrInvalidArgument)
}

// sliceGlobal slices the global array directly.
func sliceGlobal(d *distribution.Distribution, global []float32, specs []distribution.AxisSpec) []float32 {
	s := must.M1(d.ResolveSlice(specs...))
	lists := make([][]int, len(s.Selections))
	for axis, sel := range s.Selections {
		lists[axis] = []int{}
		for i := range sel.Count {
			lists[axis] = append(lists[axis], sel.At(i))
		}
	}
	strides := rowMajorStrides(d.Shape())
	values := []float32{}
	forEachIndex(lists, func(index []int) {
		values = append(values, global[flatOffset(index, strides)])
	})
	return values
}

func TestViewSlice(t *testing.T) {
	testCases := []struct {
		dist *distribution.Distribution
		expr string
	}{
		{distribution.FromShape(10).NumProcesses(4).MustDone(), "[3:7]"},
		{distribution.FromShape(10).NumProcesses(4).MustDone(), "[1:8:2]"},
		{distribution.FromShape(10).NumProcesses(4).MustDone(), "[::-1]"},
		{distribution.FromShape(10).NumProcesses(4).MustDone(), "[5:2]"},
		{distribution.FromShape(10).NumProcesses(4).MustDone(), "[-1]"},
		{distribution.FromShape(5, 9).Dist(c, c).GridShape(2, 2).BlockSize(0, 2).BlockSize(1, 2).MustDone(), "[2, 1:8:3]"},
		{distribution.FromShape(16).Dist(c).NumProcesses(4).BlockSize(0, 2).MustDone(), "[8:]"},
		{distribution.FromShape(6, 4).Dist(u, b).Unstructured(0, [][]int{{5, 0, 3}, {1, 4, 2}}).NumProcesses(4).MustDone(), "[:, 2]"},
		{distribution.FromShape(6, 4).Dist(u, b).Unstructured(0, [][]int{{5, 0, 3}, {1, 4, 2}}).NumProcesses(4).MustDone(), "[1:5]"},
		{distribution.FromShape(7, 4, 6).Dist(b, n, c).NumProcesses(6).MustDone(), "[1:, ..., ::2]"},
		{distribution.FromShape(7, 4, 6).Dist(b, n, c).NumProcesses(6).MustDone(), "[4, 1, 5]"},
	}
	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%s%s", tc.dist, tc.expr), func(t *testing.T) {
			d := tc.dist
			specs := must.M1(distribution.ParseSlice(tc.expr))
			global := iotaGlobal(d)
			views := must.M1(Scatter(nil, d, dtypes.Float32, asBytes(global)))
			expectedDist := must.M1(d.Slice(specs...))

			var sliced []*View
			for _, v := range views {
				result, resultDist, err := v.Slice(specs...)
				require.NoError(t, err)
				require.True(t, expectedDist.Equal(resultDist))
				if result == nil {
					_, found := resultDist.RankOfProcess(must.M1(d.Target(v.Rank())))
					assert.False(t, found)
					continue
				}
				assert.Equal(t, must.M1(resultDist.LocalShape(result.Rank())), result.LocalShape())
				sliced = append(sliced, result)
			}
			require.Len(t, sliced, expectedDist.NumRanks())

			shape, gathered, err := Gather(nil, sliced)
			require.NoError(t, err)
			assert.Equal(t, expectedDist.Shape(), shape)
			assert.Equal(t, sliceGlobal(d, global, specs), asFloat32(gathered))
		})
	}
}
