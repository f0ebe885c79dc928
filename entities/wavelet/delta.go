//                           _       _
// __      _____  __ ___   ___  __ _| |_ ___
// \ \ /\ / / _ \/ _` \ \ / / |/ _` | __/ _ \
//  \ V  V /  __/ (_| |\ V /| | (_| | ||  __/
//   \_/\_/ \___|\__,_| \_/ |_|\__,_|\__\___|
//
//  Copyright © 2016 - 2024 Weaviate B.V. All rights reserved.
//
//  CONTACT: hello@weaviate.io
//

package wavelet

import (
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"

	enterrors "github.com/weaviate/wavestore/entities/errors"
)

type OpType uint8

const (
	OpNoOp OpType = iota
	OpAddParticipant
	OpRemoveParticipant
	OpDocumentInsert
	OpDocumentDelete
)

func (t OpType) String() string {
	switch t {
	case OpNoOp:
		return "noop"
	case OpAddParticipant:
		return "add_participant"
	case OpRemoveParticipant:
		return "remove_participant"
	case OpDocumentInsert:
		return "document_insert"
	case OpDocumentDelete:
		return "document_delete"
	default:
		return "unknown"
	}
}

// Operation is a single wavelet operation. Every operation advances the
// wavelet version by exactly one.
type Operation struct {
	Type        OpType `msgpack:"type"`
	Participant string `msgpack:"participant,omitempty"`
	DocumentID  string `msgpack:"doc,omitempty"`
	Position    int    `msgpack:"pos,omitempty"`
	Length      int    `msgpack:"len,omitempty"`
	Text        string `msgpack:"text,omitempty"`
}

// TransformedDelta is the canonical form of a delta after operational
// transformation, i.e. the form that is replayed to rebuild state.
type TransformedDelta struct {
	AppliedAtVersion     int64       `msgpack:"appliedAt"`
	ResultingVersion     int64       `msgpack:"resulting"`
	Author               string      `msgpack:"author"`
	ApplicationTimestamp int64       `msgpack:"ts"`
	Operations           []Operation `msgpack:"ops"`
}

func (d *TransformedDelta) Validate() error {
	if d.AppliedAtVersion < 0 {
		return enterrors.NewPrecondition("negative applied-at version %d", d.AppliedAtVersion)
	}
	if len(d.Operations) == 0 {
		return enterrors.NewPrecondition("delta at version %d has no operations", d.AppliedAtVersion)
	}
	if want := d.AppliedAtVersion + int64(len(d.Operations)); d.ResultingVersion != want {
		return enterrors.NewPrecondition("delta applied at %d with %d operations must result in %d, got %d",
			d.AppliedAtVersion, len(d.Operations), want, d.ResultingVersion)
	}
	return nil
}

func (d *TransformedDelta) Encode() ([]byte, error) {
	return msgpack.Marshal(d)
}

func DecodeTransformedDelta(data []byte) (*TransformedDelta, error) {
	d := &TransformedDelta{}
	if err := msgpack.Unmarshal(data, d); err != nil {
		return nil, enterrors.NewFormat("decode transformed delta: %v", err)
	}
	return d, nil
}

// DeltaRecord is one entry of the delta log. Applied is the optional
// signed form as received from the origin and may be empty.
type DeltaRecord struct {
	Applied     []byte
	Transformed *TransformedDelta
}

func (r *DeltaRecord) AppliedAtVersion() int64 {
	return r.Transformed.AppliedAtVersion
}

func (r *DeltaRecord) ResultingVersion() int64 {
	return r.Transformed.ResultingVersion
}

func (r *DeltaRecord) HasApplied() bool {
	return len(r.Applied) > 0
}

func (r *DeltaRecord) Validate() error {
	if r == nil || r.Transformed == nil {
		return errors.Wrap(enterrors.ErrPrecondition, "delta record without transformed delta")
	}
	return r.Transformed.Validate()
}
