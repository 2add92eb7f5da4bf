// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dimmap

import (
	"strings"

	"github.com/gomlx/distarray/pkg/core/disterrors"
)

// Kind of distribution of one dimension of an array across the axis of the process grid.
type Kind int

//go:generate go tool enumer -type=Kind -transform=snake -values -text -output=gen_kind_enumer.go kind.go

const (
	// NotDistributed dimensions are owned entirely by every process: their process grid extent is always 1.
	NotDistributed Kind = iota

	// Block dimensions are split into contiguous chunks, one per process along the grid axis.
	Block

	// Cyclic dimensions are dealt round-robin to the processes along the grid axis, in runs of BlockSize elements.
	Cyclic

	// Unstructured dimensions have an explicit, arbitrary list of global indices for each process along the grid axis.
	Unstructured
)

// kindCodes are the one-letter dist_type codes used in dist specs and in the DAP "disttype" field.
var kindCodes = [...]string{
	NotDistributed: "n",
	Block:          "b",
	Cyclic:         "c",
	Unstructured:   "u",
}

// Code returns the one-letter code of the kind: "n", "b", "c" or "u".
func (k Kind) Code() string {
	if !k.IsAKind() {
		return "?"
	}
	return kindCodes[k]
}

// IsDistributed returns whether the dimension is split across more than one process (potentially).
func (k Kind) IsDistributed() bool {
	return k != NotDistributed
}

// ParseKind accepts a one-letter code ("n", "b", "c", "u") or a kind name ("block", "not_distributed", ...).
func ParseKind(s string) (Kind, error) {
	s = strings.TrimSpace(s)
	for k, code := range kindCodes {
		if s == code {
			return Kind(k), nil
		}
	}
	k, err := KindString(s)
	if err != nil {
		return NotDistributed, disterrors.InvalidArgumentf(
			"dist type %q is not one of \"n\", \"b\", \"c\", \"u\" (or %v)", s, KindStrings())
	}
	return k, nil
}

// ParseKinds parses a comma-separated list of kinds, e.g. "b,n,c".
func ParseKinds(s string) ([]Kind, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	kinds := make([]Kind, len(parts))
	for i, part := range parts {
		k, err := ParseKind(part)
		if err != nil {
			return nil, err
		}
		kinds[i] = k
	}
	return kinds, nil
}

// Chunking selects how a regular Block dimension is split in chunks.
type Chunking int

const (
	// Balanced gives every rank size/gridSize elements, and one extra element to the first size%gridSize ranks.
	// For 10 elements over 4 ranks it yields chunks of 3, 3, 2, 2.
	Balanced Chunking = iota

	// Ceil gives every rank ceil(size/gridSize) elements, except the trailing ones that take what is left
	// (possibly nothing). For 10 elements over 4 ranks it yields chunks of 3, 3, 3, 1.
	Ceil
)

// String implements fmt.Stringer.
func (c Chunking) String() string {
	switch c {
	case Balanced:
		return "balanced"
	case Ceil:
		return "ceil"
	default:
		return "invalid"
	}
}

// ParseChunking converts "balanced" or "ceil" to a Chunking.
func ParseChunking(s string) (Chunking, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "balanced", "":
		return Balanced, nil
	case "ceil":
		return Ceil, nil
	}
	return Balanced, disterrors.InvalidArgumentf("unknown chunking %q, valid values are \"balanced\" and \"ceil\"", s)
}
