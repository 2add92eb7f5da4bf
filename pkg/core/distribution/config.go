// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package distribution

import (
	"slices"

	"github.com/gomlx/distarray/pkg/core/dimmap"
	"github.com/gomlx/distarray/pkg/core/disterrors"
	"github.com/gomlx/distarray/pkg/core/gridshape"
	"github.com/gomlx/distarray/pkg/support/sets"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Config for the creation of a Distribution. Create it with FromShape, set the options with the chained
// methods, and finally call Done.
//
// The first error in the configuration is kept and returned by Done.
type Config struct {
	shape        []int
	kinds        []dimmap.Kind
	distMap      map[int]dimmap.Kind
	gridShape    []int
	numProcesses int
	targets      []int
	blockSizes   map[int]int
	periodic     sets.Set[int]
	chunking     dimmap.Chunking
	unstructured map[int][][]int
	solver       *gridshape.Solver

	err error
}

// FromShape starts the configuration of a Distribution for an array of the given global shape.
//
// By default the first axis is Block distributed (all others not distributed), over NumProcesses (default 1)
// processes, with the process grid chosen by a gridshape.Solver.
func FromShape(shape ...int) *Config {
	c := &Config{
		shape:        slices.Clone(shape),
		blockSizes:   make(map[int]int),
		periodic:     sets.Make[int](),
		unstructured: make(map[int][][]int),
	}
	for _, dim := range shape {
		if dim < 0 {
			c.setError(disterrors.InvalidArgumentf("negative dimension %d in shape %v", dim, shape))
			break
		}
	}
	return c
}

func (c *Config) setError(err error) {
	if c.err == nil {
		c.err = err
	}
}

func (c *Config) axis(axis int, what string) (int, bool) {
	adjusted := axis
	if adjusted < 0 {
		adjusted += len(c.shape)
	}
	if adjusted < 0 || adjusted >= len(c.shape) {
		c.setError(disterrors.InvalidArgumentf("%s: axis %d out of range for shape %v", what, axis, c.shape))
		return 0, false
	}
	return adjusted, true
}

// Dist sets the distribution kind of every axis. It must have one kind per axis.
func (c *Config) Dist(kinds ...dimmap.Kind) *Config {
	if c.distMap != nil {
		c.setError(disterrors.InvalidArgumentf("Dist and DistMap can't be both set"))
		return c
	}
	c.kinds = slices.Clone(kinds)
	return c
}

// DistString sets the distribution kinds from a comma-separated list of codes or names, e.g. "b,n,c".
func (c *Config) DistString(spec string) *Config {
	kinds, err := dimmap.ParseKinds(spec)
	if err != nil {
		c.setError(err)
		return c
	}
	return c.Dist(kinds...)
}

// DistMap sets the distribution kind of some axes: the axes not listed are not distributed.
// Negative axes are counted from the end.
func (c *Config) DistMap(distMap map[int]dimmap.Kind) *Config {
	if c.kinds != nil {
		c.setError(disterrors.InvalidArgumentf("Dist and DistMap can't be both set"))
		return c
	}
	c.distMap = make(map[int]dimmap.Kind, len(distMap))
	for axis, kind := range distMap {
		if adjusted, ok := c.axis(axis, "DistMap"); ok {
			c.distMap[adjusted] = kind
		}
	}
	return c
}

// GridShape sets the shape of the process grid. It is padded with 1s to the rank of the array.
// If not set, it is chosen by the solver.
func (c *Config) GridShape(gridShape ...int) *Config {
	c.gridShape = slices.Clone(gridShape)
	if c.gridShape == nil {
		c.gridShape = []int{}
	}
	return c
}

// NumProcesses sets the number of processes available. It defaults to the number of Targets if they are set,
// or to the product of the GridShape if it is set, or to 1.
func (c *Config) NumProcesses(numProcesses int) *Config {
	if numProcesses < 1 {
		c.setError(disterrors.InvalidArgumentf("number of processes must be >= 1, got %d", numProcesses))
		return c
	}
	c.numProcesses = numProcesses
	return c
}

// Targets sets the ids of the processes that can hold the array, in rank order.
// If the process grid has fewer ranks than targets, only the first ones are used.
func (c *Config) Targets(processIDs ...int) *Config {
	seen := sets.Make[int](len(processIDs))
	for _, id := range processIDs {
		if id < 0 {
			c.setError(disterrors.InvalidArgumentf("negative process id %d in targets %v", id, processIDs))
			return c
		}
		if !seen.InsertNew(id) {
			c.setError(disterrors.InvalidArgumentf("process id %d is repeated in targets %v", id, processIDs))
			return c
		}
	}
	if len(processIDs) == 0 {
		c.setError(disterrors.InvalidArgumentf("empty targets"))
		return c
	}
	c.targets = slices.Clone(processIDs)
	return c
}

// BlockSize sets the length of the runs dealt to each process on a Cyclic axis. The default is 1.
func (c *Config) BlockSize(axis, blockSize int) *Config {
	adjusted, ok := c.axis(axis, "BlockSize")
	if !ok {
		return c
	}
	if blockSize < 1 {
		c.setError(disterrors.InvalidArgumentf("block size for axis %d must be >= 1, got %d", axis, blockSize))
		return c
	}
	c.blockSizes[adjusted] = blockSize
	return c
}

// Periodic marks a Cyclic axis as periodic. It only affects exports.
func (c *Config) Periodic(axis int) *Config {
	if adjusted, ok := c.axis(axis, "Periodic"); ok {
		c.periodic.Insert(adjusted)
	}
	return c
}

// Chunking sets how Block axes are split. The default is dimmap.Balanced.
func (c *Config) Chunking(chunking dimmap.Chunking) *Config {
	c.chunking = chunking
	return c
}

// Unstructured sets the explicit global indices owned by each grid coordinate of an Unstructured axis.
// The number of lists defines the extent of the process grid on that axis.
func (c *Config) Unstructured(axis int, indices [][]int) *Config {
	if adjusted, ok := c.axis(axis, "Unstructured"); ok {
		c.unstructured[adjusted] = indices
	}
	return c
}

// Solver sets the gridshape.Solver used to choose the process grid, so its memoized factorizations
// are shared among many distributions.
func (c *Config) Solver(solver *gridshape.Solver) *Config {
	c.solver = solver
	return c
}

// normalizeKinds returns one kind per axis. The default is Block on the first axis only.
func (c *Config) normalizeKinds() ([]dimmap.Kind, error) {
	rank := len(c.shape)
	if c.kinds != nil {
		if len(c.kinds) != rank {
			return nil, disterrors.InvalidArgumentf("%d distribution kinds given for shape %v", len(c.kinds), c.shape)
		}
		for axis, kind := range c.kinds {
			if !kind.IsAKind() {
				return nil, disterrors.InvalidArgumentf("invalid distribution kind %d for axis %d", kind, axis)
			}
		}
		return c.kinds, nil
	}
	kinds := make([]dimmap.Kind, rank)
	distMap := c.distMap
	if distMap == nil && rank > 0 {
		distMap = map[int]dimmap.Kind{0: dimmap.Block}
	}
	for axis, kind := range distMap {
		if !kind.IsAKind() {
			return nil, disterrors.InvalidArgumentf("invalid distribution kind %d for axis %d", kind, axis)
		}
		kinds[axis] = kind
	}
	return kinds, nil
}

// Done creates the Distribution, or returns the first error of the configuration.
func (c *Config) Done() (*Distribution, error) {
	if c.err != nil {
		return nil, c.err
	}
	kinds, err := c.normalizeKinds()
	if err != nil {
		return nil, err
	}

	// Options that only apply to some kinds.
	for axis := range c.blockSizes {
		if kinds[axis] != dimmap.Cyclic {
			return nil, disterrors.InvalidArgumentf("block size set for axis %d, which is %s, not cyclic", axis, kinds[axis])
		}
	}
	for axis := range c.periodic {
		if kinds[axis] != dimmap.Cyclic {
			return nil, disterrors.InvalidArgumentf("axis %d set as periodic, but it is %s, not cyclic", axis, kinds[axis])
		}
	}
	for axis, kind := range kinds {
		_, found := c.unstructured[axis]
		if found != (kind == dimmap.Unstructured) {
			if found {
				return nil, disterrors.InvalidArgumentf("unstructured indices given for axis %d, which is %s", axis, kind)
			}
			return nil, disterrors.InvalidArgumentf("unstructured axis %d requires its indices", axis)
		}
	}

	numProcesses := c.numProcesses
	if numProcesses == 0 {
		switch {
		case c.targets != nil:
			numProcesses = len(c.targets)
		case c.gridShape != nil:
			numProcesses = max(1, gridshape.Product(c.gridShape))
		default:
			numProcesses = 1
		}
	}
	if c.targets != nil {
		if len(c.targets) > numProcesses {
			return nil, disterrors.InvalidArgumentf("%d targets given, but only %d processes available",
				len(c.targets), numProcesses)
		}
		for _, id := range c.targets {
			if id >= numProcesses {
				return nil, disterrors.InvalidArgumentf("target process id %d >= number of processes %d", id, numProcesses)
			}
		}
	}
	available := numProcesses
	if c.targets != nil {
		available = len(c.targets)
	}

	grid, err := c.resolveGrid(kinds, available)
	if err != nil {
		return nil, err
	}

	maps := make([]dimmap.Map, len(c.shape))
	for axis, size := range c.shape {
		var m dimmap.Map
		switch kinds[axis] {
		case dimmap.NotDistributed:
			m = dimmap.NewNotDistributedMap(size)
		case dimmap.Block:
			m, err = dimmap.NewBlockMap(size, grid[axis], c.chunking)
		case dimmap.Cyclic:
			blockSize := c.blockSizes[axis]
			if blockSize == 0 {
				blockSize = 1
			}
			var cyclic *dimmap.CyclicMap
			cyclic, err = dimmap.NewCyclicMap(size, grid[axis], blockSize)
			if err == nil {
				m = cyclic.WithPeriodic(c.periodic.Has(axis))
			}
		case dimmap.Unstructured:
			m, err = dimmap.NewUnstructuredMap(size, c.unstructured[axis])
		}
		if err != nil {
			return nil, err
		}
		maps[axis] = m
	}

	numRanks := gridshape.Product(grid)
	targets := make([]int, numRanks)
	for rank := range targets {
		targets[rank] = rank
		if c.targets != nil {
			targets[rank] = c.targets[rank]
		}
	}
	d := newDistribution(maps, targets, numProcesses)
	klog.V(1).Infof("distribution: created %s", d)
	return d, nil
}

// resolveGrid validates the grid hint, or solves the grid shape for the available processes.
// Unstructured axes have their extent fixed by the number of index lists.
func (c *Config) resolveGrid(kinds []dimmap.Kind, available int) ([]int, error) {
	if c.gridShape != nil {
		grid, err := gridshape.Normalize(c.gridShape, c.shape, kinds, available)
		if err != nil {
			return nil, err
		}
		for axis, lists := range c.unstructured {
			if grid[axis] != len(lists) {
				return nil, disterrors.InvalidArgumentf(
					"grid shape %v has extent %d on unstructured axis %d, but %d lists of indices were given",
					c.gridShape, grid[axis], axis, len(lists))
			}
		}
		return grid, nil
	}

	// Unstructured axes are not part of the solved factorization.
	fixed := 1
	solvedKinds := slices.Clone(kinds)
	for axis, lists := range c.unstructured {
		if len(lists) == 0 {
			return nil, disterrors.MalformedDistributionf("unstructured axis %d has no lists of indices", axis)
		}
		fixed *= len(lists)
		solvedKinds[axis] = dimmap.NotDistributed
	}
	if fixed > available {
		return nil, disterrors.GridInfeasiblef("unstructured axes require %d processes, only %d available", fixed, available)
	}
	solver := c.solver
	if solver == nil {
		solver = gridshape.NewSolver()
	}
	grid, err := solver.Solve(c.shape, solvedKinds, available/fixed)
	if err != nil {
		return nil, err
	}
	for axis, lists := range c.unstructured {
		grid[axis] = len(lists)
	}
	return grid, nil
}

// MustDone is like Done, but panics with the error in case of failure.
// Use exceptions.TryCatch to recover it.
func (c *Config) MustDone() *Distribution {
	d, err := c.Done()
	if err != nil {
		panic(errors.WithMessage(err, "distribution.MustDone()"))
	}
	return d
}

// FromGlobalDimData creates a Distribution from the explicit description of each axis, over numProcesses
// processes (if 0, the number of ranks of the grid is used). The targets are the first ranks.
//
// It normalizes to the same representation as the equivalent FromShape configuration.
func FromGlobalDimData(numProcesses int, dims ...dimmap.GlobalDimData) (*Distribution, error) {
	maps := make([]dimmap.Map, len(dims))
	for axis, gd := range dims {
		m, err := dimmap.FromGlobalDimData(gd)
		if err != nil {
			return nil, disterrors.MalformedDistributionf("axis %d: %v", axis, err)
		}
		maps[axis] = m
	}
	d := newDistribution(maps, nil, numProcesses)
	numRanks := d.NumRanks()
	if numProcesses == 0 {
		d.numProcesses = numRanks
	} else if numProcesses < 0 {
		return nil, disterrors.InvalidArgumentf("number of processes must be >= 1, got %d", numProcesses)
	} else if numRanks > numProcesses {
		return nil, disterrors.GridInfeasiblef("dim data requires a process grid %v of %d ranks, only %d processes available",
			d.gridShape, numRanks, numProcesses)
	}
	d.targets = make([]int, numRanks)
	for rank := range d.targets {
		d.targets[rank] = rank
	}
	return d, nil
}
