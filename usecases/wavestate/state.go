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

// Package wavestate reconstructs wavelet state from transformed deltas.
// It provides the accumulating state used to rebuild snapshot histories and
// point-in-time reconstruction from a nearest checkpoint.
package wavestate

import (
	"bytes"
	"sort"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"

	enterrors "github.com/weaviate/wavestore/entities/errors"
	"github.com/weaviate/wavestore/entities/wavelet"
)

// State is the materialized content of one wavelet: participants in order
// of joining and document bodies keyed by document id.
type State struct {
	version          int64
	lastModifiedTime int64
	creator          string
	participants     []string
	documents        map[string]string
}

type stateData struct {
	Creator      string            `msgpack:"creator"`
	Participants []string          `msgpack:"participants"`
	Documents    map[string]string `msgpack:"documents"`
}

func New() *State {
	return &State{documents: map[string]string{}}
}

func FromSnapshot(snap *wavelet.Snapshot) (*State, error) {
	var data stateData
	if err := msgpack.Unmarshal(snap.Data, &data); err != nil {
		return nil, enterrors.NewFormat("decode wavelet state at version %d: %v", snap.Version, err)
	}

	s := New()
	s.version = snap.Version
	s.lastModifiedTime = snap.LastModifiedTime
	s.creator = data.Creator
	s.participants = data.Participants
	for id, body := range data.Documents {
		s.documents[id] = body
	}
	return s, nil
}

func (s *State) Version() int64 {
	return s.version
}

func (s *State) LastModifiedTime() int64 {
	return s.lastModifiedTime
}

func (s *State) Creator() string {
	return s.creator
}

func (s *State) Participants() []string {
	out := make([]string, len(s.participants))
	copy(out, s.participants)
	return out
}

func (s *State) Document(id string) (string, bool) {
	body, ok := s.documents[id]
	return body, ok
}

func (s *State) DocumentIDs() []string {
	ids := make([]string, 0, len(s.documents))
	for id := range s.documents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Apply advances the state by one delta. The delta must be applied at the
// current version. A failing operation leaves the state unchanged.
func (s *State) Apply(d *wavelet.TransformedDelta) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if d.AppliedAtVersion != s.version {
		return enterrors.NewPrecondition("delta applied at version %d does not match state version %d",
			d.AppliedAtVersion, s.version)
	}

	next := s.clone()
	for i, op := range d.Operations {
		if err := next.applyOp(op); err != nil {
			return errors.Wrapf(err, "operation %d (%s) of delta at version %d", i, op.Type, d.AppliedAtVersion)
		}
	}

	if next.version == 0 && next.creator == "" {
		next.creator = d.Author
	}
	next.version = d.ResultingVersion
	next.lastModifiedTime = d.ApplicationTimestamp
	*s = *next
	return nil
}

func (s *State) applyOp(op wavelet.Operation) error {
	switch op.Type {
	case wavelet.OpNoOp:
		return nil
	case wavelet.OpAddParticipant:
		if s.hasParticipant(op.Participant) {
			return enterrors.NewPrecondition("participant %q is already present", op.Participant)
		}
		s.participants = append(s.participants, op.Participant)
		return nil
	case wavelet.OpRemoveParticipant:
		for i, p := range s.participants {
			if p == op.Participant {
				s.participants = append(s.participants[:i], s.participants[i+1:]...)
				return nil
			}
		}
		return enterrors.NewPrecondition("participant %q is not present", op.Participant)
	case wavelet.OpDocumentInsert:
		return s.insert(op.DocumentID, op.Position, op.Text)
	case wavelet.OpDocumentDelete:
		return s.delete(op.DocumentID, op.Position, op.Length)
	default:
		return enterrors.NewPrecondition("unknown operation type %d", op.Type)
	}
}

// positions count runes
func (s *State) insert(docID string, pos int, text string) error {
	body := []rune(s.documents[docID])
	if pos < 0 || pos > len(body) {
		return enterrors.NewPrecondition("insert position %d out of range [0, %d] in document %q",
			pos, len(body), docID)
	}
	if !utf8.ValidString(text) {
		return enterrors.NewPrecondition("insert of invalid utf-8 into document %q", docID)
	}

	var buf bytes.Buffer
	buf.WriteString(string(body[:pos]))
	buf.WriteString(text)
	buf.WriteString(string(body[pos:]))
	s.documents[docID] = buf.String()
	return nil
}

func (s *State) delete(docID string, pos, length int) error {
	body, ok := s.documents[docID]
	if !ok {
		return enterrors.NewPrecondition("delete from unknown document %q", docID)
	}
	runes := []rune(body)
	if pos < 0 || length < 0 || pos+length > len(runes) {
		return enterrors.NewPrecondition("delete range [%d, %d) out of range [0, %d) in document %q",
			pos, pos+length, len(runes), docID)
	}
	s.documents[docID] = string(runes[:pos]) + string(runes[pos+length:])
	return nil
}

func (s *State) hasParticipant(p string) bool {
	for _, existing := range s.participants {
		if existing == p {
			return true
		}
	}
	return false
}

func (s *State) clone() *State {
	c := &State{
		version:          s.version,
		lastModifiedTime: s.lastModifiedTime,
		creator:          s.creator,
		participants:     make([]string, len(s.participants)),
		documents:        make(map[string]string, len(s.documents)),
	}
	copy(c.participants, s.participants)
	for id, body := range s.documents {
		c.documents[id] = body
	}
	return c
}

// Snapshot serializes the state. Equal states produce identical bytes.
func (s *State) Snapshot() (*wavelet.Snapshot, error) {
	participants := s.participants
	if participants == nil {
		participants = []string{}
	}

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(stateData{
		Creator:      s.creator,
		Participants: participants,
		Documents:    s.documents,
	}); err != nil {
		return nil, errors.Wrap(err, "encode wavelet state")
	}

	return &wavelet.Snapshot{
		Version:          s.version,
		LastModifiedTime: s.lastModifiedTime,
		Data:             buf.Bytes(),
	}, nil
}
