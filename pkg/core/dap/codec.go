// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dap

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"
	"github.com/gomlx/distarray/pkg/core/dimmap"
	"github.com/gomlx/distarray/pkg/core/disterrors"
	"github.com/gomlx/distarray/pkg/core/gridshape"
	"github.com/gomlx/distarray/pkg/support/fsutil"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Keys of the DAP record.
const (
	KeyBuffer  = "buffer"
	KeyDimData = "dimdata"

	KeyDType = "dtype"
	KeyShape = "shape"
	KeyData  = "data"

	KeyDistType  = "disttype"
	KeyPeriodic  = "periodic"
	KeyDataSize  = "datasize"
	KeyGridRank  = "gridrank"
	KeyGridSize  = "gridsize"
	KeyIndices   = "indices"
	KeyBlockSize = "blocksize"
	KeyPadding   = "padding"

	KeyStart = "start"
	KeyStop  = "stop"
	KeyStep  = "step"
)

// FileExtension of saved views.
const FileExtension = ".dap"

type wireBuffer struct {
	DType string `cbor:"dtype"`
	Shape []int  `cbor:"shape"`
	Data  []byte `cbor:"data"`
}

type wireRange struct {
	Start int `cbor:"start"`
	Stop  int `cbor:"stop"`
	Step  int `cbor:"step"`
}

type wireDimData struct {
	DistType  string `cbor:"disttype"`
	Periodic  bool   `cbor:"periodic"`
	DataSize  int    `cbor:"datasize"`
	GridRank  int    `cbor:"gridrank"`
	GridSize  int    `cbor:"gridsize"`
	Indices   any    `cbor:"indices"`
	BlockSize int    `cbor:"blocksize"`
	Padding   [2]int `cbor:"padding"`
}

type wireExport struct {
	Buffer  wireBuffer    `cbor:"buffer"`
	DimData []wireDimData `cbor:"dimdata"`
}

var (
	encoding cbor.EncMode
	decoding cbor.DecMode
)

func init() {
	var err error
	encoding, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(errors.Wrap(err, "failed to create CBOR encoding mode for DAP records"))
	}
	decoding, err = cbor.DecOptions{DupMapKey: cbor.DupMapKeyEnforcedAPF}.DecMode()
	if err != nil {
		panic(errors.Wrap(err, "failed to create CBOR decoding mode for DAP records"))
	}
}

// Marshal encodes the export as a (deterministic) CBOR DAP record:
//
//	{"buffer": {"dtype": "Float32", "shape": [...], "data": <bytes>},
//	 "dimdata": [{"disttype": "b", "periodic": false, "datasize": 10, "gridrank": 1, "gridsize": 4,
//	              "indices": {"start": 3, "stop": 6, "step": 1}, "blocksize": 1, "padding": [0, 0]}, ...]}
//
// The indices of unstructured dimensions are an explicit array of global indices.
func Marshal(e *Export) ([]byte, error) {
	w := wireExport{
		Buffer: wireBuffer{
			DType: e.DType.String(),
			Shape: e.Shape,
			Data:  e.Buffer,
		},
		DimData: make([]wireDimData, len(e.DimData)),
	}
	if w.Buffer.Shape == nil {
		w.Buffer.Shape = []int{}
	}
	if w.Buffer.Data == nil {
		w.Buffer.Data = []byte{}
	}
	for axis, dd := range e.DimData {
		wdd := wireDimData{
			DistType:  dd.DistType.Code(),
			Periodic:  dd.Periodic,
			DataSize:  dd.DataSize,
			GridRank:  dd.GridRank,
			GridSize:  dd.GridSize,
			BlockSize: dd.BlockSize,
			Padding:   dd.Padding,
		}
		if dd.DistType == dimmap.Unstructured {
			explicit := dd.Indices.Explicit
			if explicit == nil {
				explicit = []int{}
			}
			wdd.Indices = explicit
		} else {
			wdd.Indices = wireRange{Start: dd.Indices.Start, Stop: dd.Indices.Stop, Step: dd.Indices.Step}
		}
		w.DimData[axis] = wdd
	}
	data, err := encoding.Marshal(w)
	if err != nil {
		return nil, disterrors.Internalf("encoding DAP record: %v", err)
	}
	return data, nil
}

// record is a decoded CBOR map whose values are decoded on demand, so missing keys and values of the wrong
// type are reported precisely.
type record struct {
	what   string
	fields map[string]cbor.RawMessage
}

func decodeRecord(data []byte, what string) (*record, error) {
	var fields map[string]cbor.RawMessage
	if err := decoding.Unmarshal(data, &fields); err != nil {
		return nil, disterrors.MalformedExportf("%s is not a map: %v", what, err)
	}
	if fields == nil {
		return nil, disterrors.MalformedExportf("%s is null", what)
	}
	return &record{what: what, fields: fields}, nil
}

// raw returns the encoded value of a required key.
func (r *record) raw(key string) (cbor.RawMessage, error) {
	raw, found := r.fields[key]
	if !found {
		return nil, disterrors.MalformedExportf("%s: missing key %q", r.what, key)
	}
	// CBOR null (0xf6) and undefined (0xf7) would silently decode to the zero value.
	if bytes.Equal(raw, []byte{0xf6}) || bytes.Equal(raw, []byte{0xf7}) {
		return nil, disterrors.MalformedExportf("%s: key %q is null", r.what, key)
	}
	return raw, nil
}

// get decodes the value of a required key into ptr.
func (r *record) get(key string, ptr any) error {
	raw, err := r.raw(key)
	if err != nil {
		return err
	}
	if err := decoding.Unmarshal(raw, ptr); err != nil {
		return disterrors.MalformedExportf("%s: key %q has a value of the wrong type: %v", r.what, key, err)
	}
	return nil
}

// Unmarshal decodes a DAP record encoded by Marshal, or by any other producer following the same layout.
//
// Missing keys and values of the wrong type return disterrors.ErrMalformedExport. Semantic validation of the
// values happens in Import.
func Unmarshal(data []byte) (*Export, error) {
	top, err := decodeRecord(data, "DAP record")
	if err != nil {
		return nil, err
	}
	e := &Export{}

	rawBuffer, err := top.raw(KeyBuffer)
	if err != nil {
		return nil, err
	}
	buf, err := decodeRecord(rawBuffer, KeyBuffer)
	if err != nil {
		return nil, err
	}
	var dtypeName string
	if err := buf.get(KeyDType, &dtypeName); err != nil {
		return nil, err
	}
	e.DType, err = dtypes.DTypeString(dtypeName)
	if err != nil {
		return nil, disterrors.MalformedExportf("buffer: unknown dtype %q", dtypeName)
	}
	if err := buf.get(KeyShape, &e.Shape); err != nil {
		return nil, err
	}
	if err := buf.get(KeyData, &e.Buffer); err != nil {
		return nil, err
	}

	var rawDims []cbor.RawMessage
	if err := top.get(KeyDimData, &rawDims); err != nil {
		return nil, err
	}
	e.DimData = make([]DimData, len(rawDims))
	for axis, rawDim := range rawDims {
		dd, err := decodeDimData(rawDim, fmt.Sprintf("dimdata[%d]", axis))
		if err != nil {
			return nil, err
		}
		e.DimData[axis] = dd
	}
	if e.Shape == nil {
		e.Shape = []int{}
	}
	if e.Buffer == nil {
		e.Buffer = []byte{}
	}
	return e, nil
}

func decodeDimData(data []byte, what string) (DimData, error) {
	var dd DimData
	r, err := decodeRecord(data, what)
	if err != nil {
		return dd, err
	}
	var code string
	if err := r.get(KeyDistType, &code); err != nil {
		return dd, err
	}
	dd.DistType, err = dimmap.ParseKind(code)
	if err != nil {
		return dd, disterrors.MalformedExportf("%s: invalid disttype %q", what, code)
	}
	fields := []struct {
		key string
		ptr any
	}{
		{KeyPeriodic, &dd.Periodic},
		{KeyDataSize, &dd.DataSize},
		{KeyGridRank, &dd.GridRank},
		{KeyGridSize, &dd.GridSize},
		{KeyBlockSize, &dd.BlockSize},
	}
	for _, field := range fields {
		if err := r.get(field.key, field.ptr); err != nil {
			return dd, err
		}
	}
	var padding []int
	if err := r.get(KeyPadding, &padding); err != nil {
		return dd, err
	}
	if len(padding) != 2 {
		return dd, disterrors.MalformedExportf("%s: padding must have 2 values, got %v", what, padding)
	}
	dd.Padding = Padding{padding[0], padding[1]}

	if dd.DistType == dimmap.Unstructured {
		var explicit []int
		if err := r.get(KeyIndices, &explicit); err != nil {
			return dd, err
		}
		if explicit == nil {
			explicit = []int{}
		}
		dd.Indices.Explicit = explicit
		return dd, nil
	}
	rawIndices, err := r.raw(KeyIndices)
	if err != nil {
		return dd, err
	}
	indices, err := decodeRecord(rawIndices, what+"."+KeyIndices)
	if err != nil {
		return dd, err
	}
	if err := indices.get(KeyStart, &dd.Indices.Start); err != nil {
		return dd, err
	}
	if err := indices.get(KeyStop, &dd.Indices.Stop); err != nil {
		return dd, err
	}
	if err := indices.get(KeyStep, &dd.Indices.Step); err != nil {
		return dd, err
	}
	return dd, nil
}

// FileName returns the name of the file holding the view of the given rank: "<name>_<rank>.dap".
func FileName(name string, rank int) string {
	return fmt.Sprintf("%s_%d%s", name, rank, FileExtension)
}

// Save the DAP record of the view to dir, in the file FileName(name, v.Rank()). It returns the path written.
func Save(dir, name string, v *View) (string, error) {
	data, err := Marshal(v.Export())
	if err != nil {
		return "", err
	}
	dir, err = fsutil.ReplaceTildeInDir(dir)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, FileName(name, v.Rank()))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errors.Wrapf(err, "failed to save view of rank %d to %q", v.Rank(), path)
	}
	klog.V(1).Infof("dap: saved rank %d (%d bytes) to %q", v.Rank(), len(data), path)
	return path, nil
}

// Load the view saved in path by Save. The view is not bound to a distribution, see View.Bind.
func Load(path string) (*View, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load DAP record from %q", path)
	}
	e, err := Unmarshal(data)
	if err != nil {
		return nil, errors.WithMessagef(err, "loading %q", path)
	}
	v, err := Import(e)
	if err != nil {
		return nil, errors.WithMessagef(err, "loading %q", path)
	}
	return v, nil
}

// LoadAll loads the views saved with Save under name in dir, for ranks 0, 1, ... up to the first missing file.
// The number of files must match the process grid of the saved views.
func LoadAll(dir, name string) ([]*View, error) {
	dir, err := fsutil.ReplaceTildeInDir(dir)
	if err != nil {
		return nil, err
	}
	var views []*View
	for rank := 0; ; rank++ {
		path := filepath.Join(dir, FileName(name, rank))
		exists, err := fsutil.FileExists(path)
		if err != nil {
			return nil, err
		}
		if !exists {
			break
		}
		v, err := Load(path)
		if err != nil {
			return nil, err
		}
		if v.Rank() != rank {
			return nil, disterrors.MalformedExportf("file %q holds the view of rank %d", path, v.Rank())
		}
		views = append(views, v)
	}
	if len(views) == 0 {
		return nil, disterrors.InvalidArgumentf("no views %q saved in %q", name, dir)
	}
	if numRanks := gridshape.Product(views[0].GridShape()); numRanks != len(views) {
		return nil, disterrors.MalformedExportf("found %d views %q in %q, but their process grid %v has %d ranks",
			len(views), name, dir, views[0].GridShape(), numRanks)
	}
	return views, nil
}
