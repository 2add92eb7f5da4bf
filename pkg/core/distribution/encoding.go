// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package distribution

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/gomlx/distarray/pkg/core/dimmap"
	"github.com/gomlx/distarray/pkg/core/disterrors"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// encodedDistribution is the serialized form of a Distribution.
type encodedDistribution struct {
	NumProcesses int                    `cbor:"num_processes"`
	Targets      []int                  `cbor:"targets"`
	Dims         []dimmap.GlobalDimData `cbor:"dims"`
}

var (
	// canonicalEncoding sorts map keys and uses the smallest encoding of integers, so equal distributions
	// always encode to the same bytes.
	canonicalEncoding cbor.EncMode

	strictDecoding cbor.DecMode

	// idNamespace is the namespace of the name-based UUIDs returned by Distribution.ID.
	idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/gomlx/distarray/distribution"))
)

func init() {
	var err error
	canonicalEncoding, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(errors.Wrap(err, "failed to create canonical CBOR encoding mode"))
	}
	strictDecoding, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic(errors.Wrap(err, "failed to create strict CBOR decoding mode"))
	}
}

// MarshalBinary implements encoding.BinaryMarshaler. It returns the canonical CBOR encoding of the distribution:
// bit-identical distributions produce identical bytes.
func (d *Distribution) MarshalBinary() ([]byte, error) {
	data, err := canonicalEncoding.Marshal(encodedDistribution{
		NumProcesses: d.numProcesses,
		Targets:      d.targets,
		Dims:         d.GlobalDimData(),
	})
	if err != nil {
		return nil, disterrors.Internalf("encoding distribution: %v", err)
	}
	return data, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
// It validates the decoded distribution as FromGlobalDimData does.
func (d *Distribution) UnmarshalBinary(data []byte) error {
	var encoded encodedDistribution
	if err := strictDecoding.Unmarshal(data, &encoded); err != nil {
		return disterrors.MalformedDistributionf("decoding distribution: %v", err)
	}
	decoded, err := FromGlobalDimData(encoded.NumProcesses, encoded.Dims...)
	if err != nil {
		return err
	}
	if len(encoded.Targets) != decoded.NumRanks() {
		return disterrors.MalformedDistributionf("%d targets for a process grid %v of %d ranks",
			len(encoded.Targets), decoded.gridShape, decoded.NumRanks())
	}
	for _, id := range encoded.Targets {
		if id < 0 || id >= decoded.numProcesses {
			return disterrors.MalformedDistributionf("target process id %d out of range for %d processes",
				id, decoded.numProcesses)
		}
	}
	decoded.targets = encoded.Targets
	*d = *decoded
	return nil
}

// Decode a Distribution encoded with MarshalBinary.
func Decode(data []byte) (*Distribution, error) {
	d := &Distribution{}
	if err := d.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return d, nil
}

// ID returns a deterministic (name-based, SHA1) UUID of the distribution: processes can compare their IDs
// to confirm they hold identical distributions.
func (d *Distribution) ID() uuid.UUID {
	data, err := d.MarshalBinary()
	if err != nil {
		return uuid.Nil
	}
	return uuid.NewSHA1(idNamespace, data)
}
