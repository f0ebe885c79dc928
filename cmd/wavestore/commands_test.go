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

package main

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaviate/wavestore/entities/wavelet"
	"github.com/weaviate/wavestore/usecases/admin"
	"github.com/weaviate/wavestore/usecases/config"
)

func TestCommands(t *testing.T) {
	logger, _ := test.NewNullLogger()
	opts := &Options{Flags: config.Flags{DataPath: t.TempDir()}}
	b := base{opts: opts, ctx: context.Background(), logger: logger}
	name := wavelet.Name{WaveID: "wave", WaveletID: "wavelet"}

	require.NoError(t, b.run(func(a *app) error {
		deltas, err := a.deltas.Open(name)
		if err != nil {
			return err
		}
		return deltas.Append([]*wavelet.DeltaRecord{{Transformed: &wavelet.TransformedDelta{
			AppliedAtVersion: 0,
			ResultingVersion: 2,
			Author:           "alice@example.com",
			Operations: []wavelet.Operation{
				{Type: wavelet.OpAddParticipant, Participant: "alice@example.com"},
				{Type: wavelet.OpDocumentInsert, DocumentID: "main", Text: "hello"},
			},
		}}})
	}))

	t.Run("list", func(t *testing.T) {
		assert.NoError(t, (&listCommand{base: b}).Execute(nil))
	})

	t.Run("reindex", func(t *testing.T) {
		assert.NoError(t, (&reindexCommand{base: b}).Execute(nil))
	})

	t.Run("remake-snapshots", func(t *testing.T) {
		assert.NoError(t, (&remakeCommand{base: b}).Execute(nil))
	})

	t.Run("dump", func(t *testing.T) {
		cmd := &dumpCommand{base: b, Wave: name.WaveID, Wavelet: name.WaveletID, Version: -1, Blocks: []string{"b+1"}}
		assert.NoError(t, cmd.Execute(nil))

		cmd = &dumpCommand{base: b, Wave: name.WaveID, Wavelet: name.WaveletID, Version: 1}
		assert.Error(t, cmd.Execute(nil))

		cmd = &dumpCommand{base: b, Wave: "", Wavelet: name.WaveletID}
		assert.Error(t, cmd.Execute(nil))
	})
}

func TestPrintReport(t *testing.T) {
	assert.NoError(t, printReport("op", admin.Report{Processed: 2, Failures: map[string]error{}}, nil))

	err := printReport("op", admin.Report{
		Processed: 2,
		Failures:  map[string]error{"wave/wavelet": errors.New("broken")},
	}, nil)
	assert.EqualError(t, err, "op failed for 1 streams")

	inner := errors.New("listing failed")
	assert.Equal(t, inner, printReport("op", admin.Report{}, inner))
}
