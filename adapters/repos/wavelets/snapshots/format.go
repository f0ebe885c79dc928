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

package snapshots

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	enterrors "github.com/weaviate/wavestore/entities/errors"
	"github.com/weaviate/wavestore/entities/wavelet"
)

const (
	recordFormatVersion int32 = 1
	recordHeaderSize          = 8
)

func encodeRecord(s *wavelet.Snapshot) ([]byte, error) {
	payload, err := s.Encode()
	if err != nil {
		return nil, errors.Wrap(err, "encode snapshot")
	}

	buf := make([]byte, recordHeaderSize, recordHeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], uint32(recordFormatVersion))
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(payload)))
	return append(buf, payload...), nil
}

// readRecord reads one snapshot from r, which holds at most remaining bytes.
func readRecord(r io.Reader, remaining int64) (*wavelet.Snapshot, int64, error) {
	header := make([]byte, recordHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, 0, shortRead(err, "snapshot header")
	}

	if v := int32(binary.BigEndian.Uint32(header[0:4])); v != recordFormatVersion {
		return nil, 0, enterrors.NewFormat("unsupported snapshot format version %d", v)
	}
	length := int32(binary.BigEndian.Uint32(header[4:8]))
	if length <= 0 {
		return nil, 0, enterrors.NewFormat("invalid snapshot length %d", length)
	}
	if int64(length) > remaining-recordHeaderSize {
		return nil, 0, enterrors.NewFormat("truncated snapshot payload: header claims %d bytes, %d left",
			length, remaining-recordHeaderSize)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, 0, shortRead(err, "snapshot payload")
	}

	s, err := wavelet.DecodeSnapshot(payload)
	if err != nil {
		return nil, 0, err
	}
	return s, recordHeaderSize + int64(length), nil
}

func readRecordAt(r io.ReaderAt, offset, size int64) (*wavelet.Snapshot, int64, error) {
	if offset < 0 || offset >= size {
		return nil, 0, enterrors.NewFormat("snapshot offset %d out of range [0, %d)", offset, size)
	}
	return readRecord(bufio.NewReader(io.NewSectionReader(r, offset, size-offset)), size-offset)
}

func shortRead(err error, what string) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return enterrors.NewFormat("truncated %s", what)
	}
	return errors.Wrapf(err, "read %s", what)
}
