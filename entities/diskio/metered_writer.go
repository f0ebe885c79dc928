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

import "io"

type MeteredWriterCallback func(written int64)

type MeteredWriter struct {
	w  io.Writer
	cb MeteredWriterCallback
}

// Write passes the write through to the underlying writer and reports the
// number of bytes written to the callback, if one is set.
func (m *MeteredWriter) Write(p []byte) (n int, err error) {
	n, err = m.w.Write(p)
	if err != nil {
		return
	}

	if m.cb != nil {
		m.cb(int64(n))
	}

	return
}

func NewMeteredWriter(w io.Writer, cb MeteredWriterCallback) *MeteredWriter {
	return &MeteredWriter{w: w, cb: cb}
}
