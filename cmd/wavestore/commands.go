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
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/weaviate/wavestore/adapters/repos/wavelets/blocks"
	"github.com/weaviate/wavestore/entities/wavelet"
	"github.com/weaviate/wavestore/usecases/admin"
)

type base struct {
	opts   *Options
	ctx    context.Context
	logger logrus.FieldLogger
}

// run executes fn against a freshly wired app and closes it afterwards.
func (b base) run(fn func(a *app) error) (err error) {
	a, err := newApp(b.ctx, b.opts, b.logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(a)
}

type listCommand struct {
	base
}

func (c *listCommand) Execute(args []string) error {
	return c.run(func(a *app) error {
		names, err := a.admin.Streams(c.ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "WAVE\tWAVELET\tEND VERSION\tLAST MODIFIED")
		for _, name := range names {
			deltas, err := a.deltas.Open(name)
			if err != nil {
				return err
			}
			end, err := deltas.EndVersion()
			if err != nil {
				return err
			}
			modified, err := deltas.LastModifiedTime()
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", name.WaveID, name.WaveletID, end, modified.UTC().Format("2006-01-02T15:04:05Z"))
		}
		return w.Flush()
	})
}

type dumpCommand struct {
	base
	Wave    string   `long:"wave" required:"true" description:"wave id of the stream"`
	Wavelet string   `long:"wavelet" required:"true" description:"wavelet id of the stream"`
	Version int64    `long:"version" default:"-1" description:"version to reconstruct, -1 for the latest"`
	Blocks  []string `long:"block" description:"block id to include in the output, may be repeated"`
}

type dumpOutput struct {
	Wave             string                   `json:"wave"`
	Wavelet          string                   `json:"wavelet"`
	Version          int64                    `json:"version"`
	LastModifiedTime int64                    `json:"lastModifiedTime"`
	Creator          string                   `json:"creator"`
	Participants     []string                 `json:"participants"`
	Documents        map[string]string        `json:"documents"`
	Blocks           map[string]*blocks.Block `json:"blocks,omitempty"`
}

func (c *dumpCommand) Execute(args []string) error {
	name, err := wavelet.NewName(c.Wave, c.Wavelet)
	if err != nil {
		return err
	}

	return c.run(func(a *app) error {
		state, err := a.admin.Reconstruct(name, c.Version)
		if err != nil {
			return err
		}

		out := dumpOutput{
			Wave:             name.WaveID,
			Wavelet:          name.WaveletID,
			Version:          state.Version(),
			LastModifiedTime: state.LastModifiedTime(),
			Creator:          state.Creator(),
			Participants:     state.Participants(),
			Documents:        map[string]string{},
		}
		for _, id := range state.DocumentIDs() {
			out.Documents[id], _ = state.Document(id)
		}

		if len(c.Blocks) > 0 {
			access, err := a.blocks.Open(name)
			if err != nil {
				return err
			}
			defer access.Close()
			if out.Blocks, err = access.Read(c.Blocks...); err != nil {
				return err
			}
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	})
}

type reindexCommand struct {
	base
}

func (c *reindexCommand) Execute(args []string) error {
	return c.run(func(a *app) error {
		report, err := a.admin.ReindexDeltas(c.ctx)
		return printReport(admin.OperationReindexDeltas, report, err)
	})
}

type remakeCommand struct {
	base
}

func (c *remakeCommand) Execute(args []string) error {
	return c.run(func(a *app) error {
		report, err := a.admin.RemakeSnapshots(c.ctx)
		return printReport(admin.OperationRemakeSnapshots, report, err)
	})
}

func printReport(operation string, report admin.Report, err error) error {
	if err != nil {
		return err
	}

	fmt.Printf("%s: %d streams processed, %d failed in %s\n",
		operation, report.Processed, report.Failed(), report.Took)
	for _, name := range report.FailedStreams() {
		fmt.Printf("  %s: %v\n", name, report.Failures[name])
	}
	if report.Failed() > 0 {
		return errors.Errorf("%s failed for %d streams", operation, report.Failed())
	}
	return nil
}
