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
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"
	"github.com/sirupsen/logrus"

	"github.com/weaviate/wavestore/usecases/config"
)

// Options are the flags shared by every command.
type Options struct {
	config.Flags
	MetricsListen string `long:"metrics-listen" description:"address to serve /metrics on while the command runs, e.g. :2112"`
}

func main() {
	var opts Options
	log := logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)

	commands := []struct {
		name, short, long string
		data              interface{}
	}{
		{"list", "List streams", "List every stream with a delta log and its end version.",
			&listCommand{base: base{opts: &opts, ctx: ctx, logger: log}}},
		{"dump", "Print the state of a stream", "Reconstruct a stream at a version and print it as JSON.",
			&dumpCommand{base: base{opts: &opts, ctx: ctx, logger: log}}},
		{"reindex", "Rebuild delta indexes", "Rebuild the delta index of every stream from its log.",
			&reindexCommand{base: base{opts: &opts, ctx: ctx, logger: log}}},
		{"remake-snapshots", "Rebuild snapshot histories", "Replay every delta log and rewrite its snapshot history.",
			&remakeCommand{base: base{opts: &opts, ctx: ctx, logger: log}}},
	}
	for _, c := range commands {
		if _, err := parser.AddCommand(c.name, c.short, c.long, c.data); err != nil {
			log.WithError(err).Fatal("register command")
		}
	}

	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			fmt.Println(err)
			return
		}
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// logger is configured from LOG_LEVEL and LOG_FORMAT before the config is
// loaded. Defaults to log level info and json format.
func logger() *logrus.Logger {
	logger := logrus.New()
	if os.Getenv("LOG_FORMAT") != "text" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		logger.SetLevel(logrus.DebugLevel)
	case "trace":
		logger.SetLevel(logrus.TraceLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	return logger
}
