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

package diskio

import (
	"io"
	"time"
)

type MeteredReaderCallback func(read int64, nanoseconds int64)

// MeteredReader counts the bytes that flow through it. Short reads that end
// in an error (typically io.EOF on a torn record) are counted as well.
type MeteredReader struct {
	r     io.Reader
	cb    MeteredReaderCallback
	total int64
}

func (m *MeteredReader) Read(p []byte) (n int, err error) {
	start := time.Now()
	n, err = m.r.Read(p)
	if n == 0 {
		return
	}

	m.total += int64(n)
	if m.cb != nil {
		m.cb(int64(n), time.Since(start).Nanoseconds())
	}

	return
}

// Total is the number of bytes read so far.
func (m *MeteredReader) Total() int64 {
	return m.total
}

func NewMeteredReader(r io.Reader, cb MeteredReaderCallback) *MeteredReader {
	return &MeteredReader{r: r, cb: cb}
}
