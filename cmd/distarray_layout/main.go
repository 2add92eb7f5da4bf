// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// distarray_layout prints how an N-dimensional array is partitioned over a grid of processes.
//
// Example:
//
//	distarray_layout -shape=53,77,99 -dist=b,b,b -procs=12
//	distarray_layout -shape=16 -dist=c -block_size=2 -procs=4 -slice='[8:]' -verify
//	distarray_layout -shape=100,100 -procs=4 -export=/tmp/layout -dtype=Float64
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/gomlx/distarray/pkg/core/dimmap"
	"github.com/gomlx/distarray/pkg/core/disterrors"
	"github.com/gomlx/distarray/pkg/core/distribution"
	"github.com/gomlx/distarray/pkg/support/xslices"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/must"
	"github.com/muesli/termenv"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	flagShape = xslices.Flag("shape", []int{}, "Comma-separated global shape of the array, e.g. \"100,50\". "+
		"Empty for a scalar.", strconv.Atoi)
	flagDist = flag.String("dist", "", "Comma-separated distribution type of each axis: "+
		"n (not distributed), b (block), c (cyclic). Defaults to block on the first axis.")
	flagProcs = flag.Int("procs", 0, "Number of processes available. Defaults to the product of -grid, "+
		"or 1.")
	flagGrid = xslices.Flag("grid", []int{}, "Comma-separated process grid shape. If empty it is chosen "+
		"to make the local blocks as close to the global shape proportions as possible.", strconv.Atoi)
	flagBlockSize = xslices.Flag("block_size", []int{}, "Comma-separated block size of each axis, only "+
		"used by cyclic axes. 0 or missing values default to 1.", strconv.Atoi)
	flagPeriodic = xslices.Flag("periodic", []int{}, "Comma-separated list of cyclic axes flagged as periodic.",
		strconv.Atoi)
	flagChunking = flag.String("chunking", "balanced", "How block axes are split: \"balanced\" "+
		"(chunk sizes differ by at most one) or \"ceil\" (all chunks ceil(size/P) except the last).")
	flagRank  = flag.Int("rank", -1, "Only report the given rank. -1 reports all ranks.")
	flagSlice = flag.String("slice", "", "Slice expression applied to the array before reporting, "+
		"e.g. \"[1:, ..., ::2]\".")
	flagVerify = flag.Bool("verify", false, "Verify that every element has exactly one owner and that "+
		"index translation, scatter/gather and DAP export/import round-trip.")
	flagExport = flag.String("export", "", "Directory where to save the DAP record of every rank, "+
		"holding an array with the flat index of each element.")
	flagDType = flag.String("dtype", "Float32", "DType of the array used by -verify and -export.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if os.Getenv("NO_COLOR") != "" {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
	if flag.NArg() > 0 {
		klog.Errorf("Unexpected arguments %q. See 'distarray_layout -help'.", flag.Args())
		os.Exit(1)
	}
	if err := run(); err != nil {
		klog.Errorf("%s: %+v", disterrors.KindOf(err), err)
		os.Exit(1)
	}
}

func run() error {
	dist, err := buildDistribution()
	if err != nil {
		return err
	}
	if *flagSlice != "" {
		specs, err := distribution.ParseSlice(*flagSlice)
		if err != nil {
			return err
		}
		dist, err = dist.Slice(specs...)
		if err != nil {
			return errors.WithMessagef(err, "slicing with %q", *flagSlice)
		}
	}
	dtype := must.M1(dtypes.DTypeString(*flagDType))

	fmt.Println(titleStyle.Render(dist.String()))
	fmt.Printf("Distribution ID: %s\n", dist.ID())
	if err := reportLayout(dist, dtype, *flagRank); err != nil {
		return err
	}
	if *flagVerify {
		if err := verify(dist, dtype); err != nil {
			return err
		}
	}
	if *flagExport != "" {
		if err := export(dist, dtype, *flagExport); err != nil {
			return err
		}
	}
	return nil
}

// buildDistribution creates the distribution configured by the flags.
func buildDistribution() (*distribution.Distribution, error) {
	shape := *flagShape
	config := distribution.FromShape(shape...)
	if *flagDist != "" {
		config.DistString(*flagDist)
	}
	if len(*flagGrid) > 0 {
		config.GridShape(*flagGrid...)
	}
	if *flagProcs > 0 {
		config.NumProcesses(*flagProcs)
	}
	chunking, err := dimmap.ParseChunking(*flagChunking)
	if err != nil {
		return nil, errors.WithMessage(err, "-chunking")
	}
	config.Chunking(chunking)

	if len(*flagBlockSize) > 0 {
		kinds, err := axisKinds(len(shape))
		if err != nil {
			return nil, err
		}
		for axis, blockSize := range *flagBlockSize {
			if blockSize > 0 && axis < len(kinds) && kinds[axis] == dimmap.Cyclic {
				config.BlockSize(axis, blockSize)
			}
		}
	}
	for _, axis := range *flagPeriodic {
		config.Periodic(axis)
	}
	return config.Done()
}

// axisKinds returns the distribution type of each axis set by -dist.
func axisKinds(rank int) ([]dimmap.Kind, error) {
	if *flagDist == "" {
		kinds := make([]dimmap.Kind, rank)
		if rank > 0 {
			kinds[0] = dimmap.Block
		}
		return kinds, nil
	}
	return dimmap.ParseKinds(*flagDist)
}
