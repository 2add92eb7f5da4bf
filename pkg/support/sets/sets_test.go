// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package sets

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet(t *testing.T) {
	// Sets are created empty.
	s := Make[int](10)
	assert.Len(t, s, 0)

	s.Insert(3, 7)
	assert.Len(t, s, 2)
	assert.True(t, s.Has(3))
	assert.True(t, s.Has(7))
	assert.False(t, s.Has(5))

	s2 := MakeWith(5, 7)
	s3 := s.Sub(s2)
	assert.Len(t, s3, 1)
	assert.True(t, s3.Has(3))

	delete(s, 7)
	assert.True(t, s.Equal(s3))
	assert.False(t, s.Equal(s2))
	assert.False(t, s.Equal(MakeWith(-3)))
}

func TestInsertNew(t *testing.T) {
	owned := Make[int]()
	for _, idx := range []int{29, 38, 18} {
		assert.True(t, owned.InsertNew(idx))
	}
	assert.False(t, owned.InsertNew(38), "38 was inserted before")
	assert.Equal(t, []int{18, 29, 38}, Sorted(owned))
	assert.Empty(t, Sorted(Make[int]()))
}
