// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package workerspool runs per-rank tasks with bounded parallelism.
//
// It is used to materialize or verify the local views of every rank of a distribution from
// within a single process (tests, diagnostics and the scatter/gather helpers).
package workerspool

import (
	"runtime"
	"sync"
)

// Pool limits the number of goroutines running rank tasks at the same time.
type Pool struct {
	// maxParallelism is the limit of tasks running concurrently.
	maxParallelism int
	mu             sync.Mutex
	cond           sync.Cond // Signaled whenever numRunning is decreased.
	numRunning     int
}

// New returns a new Pool with the default parallelism (runtime.NumCPU()).
func New() *Pool {
	w := &Pool{}
	w.maxParallelism = runtime.NumCPU()
	w.cond = sync.Cond{L: &w.mu}
	return w
}

// MaxParallelism returns the limit of tasks running concurrently.
// If 0 tasks are run inline, and if -1 parallelism is unlimited.
func (w *Pool) MaxParallelism() int {
	return w.maxParallelism
}

// SetMaxParallelism sets the maxParallelism. It returns the Pool, so calls can be chained.
//
// Only change the parallelism before any task starts: changing it during execution is undefined behavior.
func (w *Pool) SetMaxParallelism(maxParallelism int) *Pool {
	w.maxParallelism = maxParallelism
	return w
}

// lockedIsFull returns whether all available workers are in use.
//
// It must be called with Pool.mu acquired.
func (w *Pool) lockedIsFull() bool {
	if w.maxParallelism < 0 {
		return false
	}
	return w.numRunning >= w.maxParallelism
}

// WaitToStart waits until there is a worker available and starts task in a goroutine.
//
// If parallelism is disabled (maxParallelism is 0), it runs the task inline and returns when it is finished.
func (w *Pool) WaitToStart(task func()) {
	if w.maxParallelism < 0 {
		go task()
		return
	} else if w.maxParallelism == 0 {
		task()
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for w.lockedIsFull() {
		w.cond.Wait()
	}
	w.numRunning++
	go func() {
		task()
		w.mu.Lock()
		w.numRunning--
		w.cond.Signal()
		w.mu.Unlock()
	}()
}

// ForEachRank calls task for every rank in [0, numRanks) and waits for all of them to finish.
//
// All ranks are run even if some fail. The returned error is the one of the lowest failing rank,
// so the result does not depend on scheduling.
func (w *Pool) ForEachRank(numRanks int, task func(rank int) error) error {
	errs := make([]error, numRanks)
	var wg sync.WaitGroup
	for rank := range numRanks {
		wg.Add(1)
		w.WaitToStart(func() {
			defer wg.Done()
			errs[rank] = task(rank)
		})
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
