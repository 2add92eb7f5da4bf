// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"fmt"
	"os"
	"slices"
	"unsafe"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/distarray/internal/workerspool"
	"github.com/gomlx/distarray/pkg/core/dap"
	"github.com/gomlx/distarray/pkg/core/disterrors"
	"github.com/gomlx/distarray/pkg/core/distribution"
	"github.com/gomlx/distarray/pkg/core/gridshape"
	"github.com/gomlx/distarray/pkg/support/fsutil"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

// progressBatch is the number of elements checked between progress bar updates.
const progressBatch = 4096

// verify checks the distribution element by element, and the scatter/gather and DAP export/import round trips.
func verify(dist *distribution.Distribution, dtype dtypes.DType) error {
	shape := dist.Shape()
	size := dist.Size()
	counts := make([]int, dist.NumRanks())
	bar := progressbar.NewOptions64(int64(size),
		progressbar.OptionSetDescription("Verifying ownership"),
		progressbar.OptionSetTheme(progressbar.ThemeASCII),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionClearOnFinish())
	for flat := range size {
		global := distribution.Unravel(shape, flat)
		rank, local, err := dist.GlobalToLocal(global...)
		if err != nil {
			return errors.WithMessagef(err, "element %v", global)
		}
		back, err := dist.LocalToGlobal(rank, local...)
		if err != nil {
			return errors.WithMessagef(err, "element %v, rank %d local %v", global, rank, local)
		}
		if !slices.Equal(back, global) {
			return disterrors.Internalf("element %v maps to rank %d local %v, which maps back to %v",
				global, rank, local, back)
		}
		counts[rank]++
		if (flat+1)%progressBatch == 0 && !bar.IsFinished() {
			_ = bar.Add(progressBatch) // Prints progress bar line.
		}
	}
	_ = bar.Finish() // Fills the bar with the remainder and clears it.
	for rank, localShape := range dist.LocalShapes() {
		if expected := gridshape.Product(localShape); counts[rank] != expected {
			return disterrors.Internalf("rank %d owns %d elements, but its local shape %v has %d",
				rank, counts[rank], localShape, expected)
		}
	}
	fmt.Printf("✓ %s elements, each owned by exactly one rank\n", humanize.Comma(int64(size)))

	global := iotaBuffer(dtype, size)
	pool := workerspool.New()
	views, err := dap.Scatter(pool, dist, dtype, global)
	if err != nil {
		return err
	}
	imported := make([]*dap.View, len(views))
	var exportedBytes int
	for rank, v := range views {
		data, err := dap.Marshal(v.Export())
		if err != nil {
			return err
		}
		exportedBytes += len(data)
		e, err := dap.Unmarshal(data)
		if err != nil {
			return errors.WithMessagef(err, "rank %d", rank)
		}
		imported[rank], err = dap.Import(e)
		if err != nil {
			return errors.WithMessagef(err, "rank %d", rank)
		}
		if _, err = imported[rank].Bind(dist); err != nil {
			return errors.WithMessagef(err, "rank %d", rank)
		}
	}
	_, gathered, err := dap.Gather(pool, imported)
	if err != nil {
		return err
	}
	if !bytes.Equal(global, gathered) {
		return disterrors.Internalf("gathered array differs from the scattered one")
	}
	fmt.Printf("✓ scatter, DAP export/import (%s) and gather round trip\n", humanize.Bytes(uint64(exportedBytes)))
	klog.V(1).Infof("verified %s", dist)
	return nil
}

// export saves the DAP record of every rank to dir.
func export(dist *distribution.Distribution, dtype dtypes.DType, dir string) error {
	dir, err := fsutil.MakeDir(dir)
	if err != nil {
		return err
	}
	views, err := dap.Scatter(nil, dist, dtype, iotaBuffer(dtype, dist.Size()))
	if err != nil {
		return err
	}
	for _, v := range views {
		path, err := dap.Save(dir, "array", v)
		if err != nil {
			return err
		}
		info, err := os.Stat(path)
		if err != nil {
			return errors.Wrapf(err, "failed to stat %q", path)
		}
		fmt.Printf("Rank %d: saved %s to %q\n", v.Rank(), humanize.Bytes(uint64(info.Size())), path)
	}
	return nil
}

// iotaBuffer returns the row-major buffer of an array of the given dtype where each element holds its flat
// index. For dtypes without a native Go conversion, each element holds the low-order bytes of its index.
func iotaBuffer(dtype dtypes.DType, size int) []byte {
	switch dtype {
	case dtypes.Float32:
		return iotaOf[float32](size)
	case dtypes.Float64:
		return iotaOf[float64](size)
	case dtypes.Int32:
		return iotaOf[int32](size)
	case dtypes.Int64:
		return iotaOf[int64](size)
	case dtypes.Uint32:
		return iotaOf[uint32](size)
	case dtypes.Uint64:
		return iotaOf[uint64](size)
	}
	elemSize := int(dtype.Memory())
	buffer := make([]byte, size*elemSize)
	for i := range size {
		for b := range elemSize {
			buffer[i*elemSize+b] = byte(i >> (8 * b))
		}
	}
	return buffer
}

func iotaOf[T float32 | float64 | int32 | int64 | uint32 | uint64](size int) []byte {
	if size == 0 {
		return []byte{}
	}
	values := make([]T, size)
	for i := range values {
		values[i] = T(i)
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(values))), size*int(unsafe.Sizeof(values[0])))
}
