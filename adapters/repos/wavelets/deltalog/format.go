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

package deltalog

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	enterrors "github.com/weaviate/wavestore/entities/errors"
	"github.com/weaviate/wavestore/entities/wavelet"
)

const (
	fileMagic               = "WAVE"
	fileFormatVersion int32 = 1
	fileHeaderSize          = 8

	recordFormatVersion int32 = 1
	recordHeaderSize          = 12
)

// maxPayloadSize bounds each of the two payloads of a record. Appends above
// it are rejected and headers claiming more are corrupt.
var maxPayloadSize int64 = 1 << 30

func fileHeader() []byte {
	buf := make([]byte, fileHeaderSize)
	copy(buf, fileMagic)
	binary.BigEndian.PutUint32(buf[4:], uint32(fileFormatVersion))
	return buf
}

// checkFileHeader returns torn=true if header holds a strict prefix of a
// valid file header, which is what a crash during file creation leaves
// behind.
func checkFileHeader(header []byte) (torn bool, err error) {
	want := fileHeader()
	if len(header) < fileHeaderSize {
		if bytes.Equal(header, want[:len(header)]) {
			return true, nil
		}
		return false, enterrors.NewFormat("truncated file header")
	}
	if string(header[:4]) != fileMagic {
		return false, enterrors.NewFormat("invalid magic %q", header[:4])
	}
	if v := int32(binary.BigEndian.Uint32(header[4:8])); v != fileFormatVersion {
		return false, enterrors.NewFormat("unsupported delta file format version %d", v)
	}
	return false, nil
}

type recordHeader struct {
	formatVersion  int32
	appliedLen     int32
	transformedLen int32
}

func (h recordHeader) payloadSize() int64 {
	return int64(h.appliedLen) + int64(h.transformedLen)
}

func parseRecordHeader(buf []byte) (recordHeader, error) {
	h := recordHeader{
		formatVersion:  int32(binary.BigEndian.Uint32(buf[0:4])),
		appliedLen:     int32(binary.BigEndian.Uint32(buf[4:8])),
		transformedLen: int32(binary.BigEndian.Uint32(buf[8:12])),
	}
	if h.formatVersion != recordFormatVersion {
		return h, enterrors.NewFormat("unsupported record format version %d", h.formatVersion)
	}
	if h.appliedLen < 0 || int64(h.appliedLen) > maxPayloadSize {
		return h, enterrors.NewFormat("invalid applied delta length %d", h.appliedLen)
	}
	if h.transformedLen <= 0 || int64(h.transformedLen) > maxPayloadSize {
		return h, enterrors.NewFormat("invalid transformed delta length %d", h.transformedLen)
	}
	return h, nil
}

// encodeRecord serializes a record as header, applied payload, transformed
// payload.
func encodeRecord(rec *wavelet.DeltaRecord) ([]byte, error) {
	transformed, err := rec.Transformed.Encode()
	if err != nil {
		return nil, errors.Wrap(err, "encode transformed delta")
	}
	if int64(len(rec.Applied)) > maxPayloadSize {
		return nil, enterrors.NewPrecondition("applied delta of %d bytes exceeds the limit of %d",
			len(rec.Applied), maxPayloadSize)
	}
	if int64(len(transformed)) > maxPayloadSize {
		return nil, enterrors.NewPrecondition("transformed delta of %d bytes exceeds the limit of %d",
			len(transformed), maxPayloadSize)
	}

	buf := make([]byte, recordHeaderSize, recordHeaderSize+len(rec.Applied)+len(transformed))
	binary.BigEndian.PutUint32(buf[0:4], uint32(recordFormatVersion))
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(rec.Applied)))
	binary.BigEndian.PutUint32(buf[8:12], uint32(len(transformed)))
	buf = append(buf, rec.Applied...)
	buf = append(buf, transformed...)
	return buf, nil
}

// readRecord reads one whole record from r, which holds at most remaining
// bytes. Anything short of a complete, decodable record is reported as a
// format error; n is the number of bytes the record occupies on disk.
func readRecord(r io.Reader, remaining int64) (rec *wavelet.DeltaRecord, n int64, err error) {
	headerBuf := make([]byte, recordHeaderSize)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return nil, 0, shortRead(err, "record header")
	}

	header, err := parseRecordHeader(headerBuf)
	if err != nil {
		return nil, 0, err
	}

	if header.payloadSize() > remaining-recordHeaderSize {
		return nil, 0, enterrors.NewFormat("truncated record payload: header claims %d bytes, %d left",
			header.payloadSize(), remaining-recordHeaderSize)
	}

	payload := make([]byte, header.payloadSize())
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, 0, shortRead(err, "record payload")
	}

	transformed, err := wavelet.DecodeTransformedDelta(payload[header.appliedLen:])
	if err != nil {
		return nil, 0, err
	}
	if err := transformed.Validate(); err != nil {
		return nil, 0, enterrors.NewFormat("invalid transformed delta: %v", err)
	}

	rec = &wavelet.DeltaRecord{Transformed: transformed}
	if header.appliedLen > 0 {
		rec.Applied = payload[:header.appliedLen]
	}
	return rec, recordHeaderSize + header.payloadSize(), nil
}

func shortRead(err error, what string) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return enterrors.NewFormat("truncated %s", what)
	}
	return errors.Wrapf(err, "read %s", what)
}

// readRecordAt reads the record starting at offset of a file that is size
// bytes long.
func readRecordAt(r io.ReaderAt, offset, size int64) (*wavelet.DeltaRecord, int64, error) {
	if offset < fileHeaderSize || offset >= size {
		return nil, 0, enterrors.NewFormat("record offset %d out of range [%d, %d)",
			offset, fileHeaderSize, size)
	}
	return readRecord(bufio.NewReader(io.NewSectionReader(r, offset, size-offset)), size-offset)
}
