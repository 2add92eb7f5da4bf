// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package workerspool

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForEachRank(t *testing.T) {
	for _, parallelism := range []int{-1, 0, 1, 3} {
		t.Run(fmt.Sprintf("parallelism=%d", parallelism), func(t *testing.T) {
			pool := New().SetMaxParallelism(parallelism)
			const numRanks = 17
			seen := make([]int32, numRanks)
			var running, maxRunning atomic.Int32
			err := pool.ForEachRank(numRanks, func(rank int) error {
				current := running.Add(1)
				for {
					prev := maxRunning.Load()
					if current <= prev || maxRunning.CompareAndSwap(prev, current) {
						break
					}
				}
				atomic.AddInt32(&seen[rank], 1)
				running.Add(-1)
				return nil
			})
			require.NoError(t, err)
			for rank, count := range seen {
				assert.Equalf(t, int32(1), count, "rank %d run %d times", rank, count)
			}
			if parallelism > 0 {
				assert.LessOrEqual(t, int(maxRunning.Load()), parallelism)
			}
		})
	}
}

func TestForEachRankError(t *testing.T) {
	pool := New().SetMaxParallelism(4)
	var calls atomic.Int32
	err := pool.ForEachRank(8, func(rank int) error {
		calls.Add(1)
		if rank == 5 || rank == 2 {
			return fmt.Errorf("rank %d failed", rank)
		}
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, "rank 2 failed", err.Error())
	assert.Equal(t, int32(8), calls.Load(), "all ranks must run even when some fail")
}
