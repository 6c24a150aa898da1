// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Command meaxtd detects spikes, bursts and connectivity in MEA recordings
// stored as EDF files.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/OpenPSG/mea"
	"github.com/OpenPSG/mea/burst"
	"github.com/OpenPSG/mea/config"
	"github.com/OpenPSG/mea/publish"
	"github.com/OpenPSG/mea/session"
	"github.com/OpenPSG/mea/spike"
)

type options struct {
	input      string
	output     string
	dot        string
	graph      bool
	publish    bool
	saveWindow string
	logLevel   string
}

func main() {
	params, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	opts, err := parseFlags(os.Args[1:], &params)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(opts.logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %q\n", opts.logLevel)
		os.Exit(2)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, opts, params); err != nil {
		logger.Error("Analysis failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func parseFlags(args []string, p *config.Params) (*options, error) {
	fs := flag.NewFlagSet("meaxtd", flag.ContinueOnError)

	opts := &options{}
	fs.StringVar(&opts.input, "input", "", "EDF recording to analyse")
	fs.StringVar(&opts.output, "output", "-", "Where to write the JSON result ('-' for stdout)")
	fs.StringVar(&opts.dot, "dot", "", "Write the connectivity graph in Graphviz format to this file")
	fs.BoolVar(&opts.graph, "graph", false, "Build the connectivity graph of the selected burst")
	fs.BoolVar(&opts.publish, "publish", false, "Publish the report to Kafka (KAFKA_* environment)")
	fs.StringVar(&opts.saveWindow, "save-window", "", "Write the analysed window as an EDF file")
	fs.StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	spikeMethod := fs.String("spike-method", string(p.SpikeMethod), "Noise estimator (Median, RMS, std)")
	fs.Float64Var(&p.SpikeCoefficient, "spike-coefficient", p.SpikeCoefficient, "Threshold as a multiple of the noise estimate")
	burstMethod := fs.String("burst-method", string(p.BurstMethod), "Burst detection method (Burstlet, TSR)")
	fs.IntVar(&p.BurstWindowMs, "burst-window-ms", p.BurstWindowMs, "Burst window in milliseconds")
	fs.Float64Var(&p.BurstChannelThreshold, "burst-threshold", p.BurstChannelThreshold, "Channel count (Burstlet) or std multiplier (TSR)")
	fs.IntVar(&p.TSRMinChannels, "tsr-min-channels", p.TSRMinChannels, "Channels a TSR burst must exceed")
	fs.IntVar(&p.WindowStartMin, "window-start", p.WindowStartMin, "Analysis window start in minutes")
	fs.IntVar(&p.WindowEndMin, "window-end", p.WindowEndMin, "Analysis window end in minutes (0 for the end)")
	exclude := fs.String("exclude", "", "Comma separated channels to exclude")
	fs.Float64Var(&p.GraphDeltaMs, "graph-delta-ms", p.GraphDeltaMs, "Connectivity lag bucket width in milliseconds")
	fs.IntVar(&p.GraphNumFrames, "graph-frames", p.GraphNumFrames, "Number of connectivity lag buckets")
	fs.IntVar(&p.GraphCutoffPct, "graph-cutoff", p.GraphCutoffPct, "Percentage of the strongest connections to keep")
	fs.IntVar(&p.BurstID, "burst-id", p.BurstID, "Burst to build the graph for (negative for the longest)")
	fs.TextVar(&p.MaxRecordingSize, "max-size", p.MaxRecordingSize, "Largest recording to load")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if opts.input == "" {
		return nil, errors.New("-input is required")
	}

	p.SpikeMethod = spike.Method(*spikeMethod)
	p.BurstMethod = burst.Method(*burstMethod)
	if *exclude != "" {
		channels, err := config.ParseChannels(*exclude)
		if err != nil {
			return nil, err
		}
		p.ExcludedChannels = channels
	}
	if opts.dot != "" {
		opts.graph = true
	}

	return opts, nil
}

func run(ctx context.Context, logger *slog.Logger, opts *options, params config.Params) error {
	s, err := session.New(nil, params, session.WithLogger(logger))
	if err != nil {
		return err
	}
	if err := s.Load(params.Loader(), opts.input); err != nil {
		return err
	}

	task := s.Start(ctx, mea.ProgressFunc(func(percent int) {
		logger.Debug("Progress", "percent", percent)
	}))
	res, err := task.Wait()
	if err != nil {
		return err
	}

	if opts.graph {
		g, err := s.Graph(ctx, params.BurstID)
		if err != nil {
			return err
		}
		res = s.Result()

		if opts.dot != "" {
			b, err := g.DOT(res.Window().Channels())
			if err != nil {
				return err
			}
			if err := os.WriteFile(opts.dot, b, 0o644); err != nil {
				return fmt.Errorf("error writing graph: %w", err)
			}
		}
	}

	if opts.saveWindow != "" {
		if err := saveWindow(opts.saveWindow, res); err != nil {
			return err
		}
	}

	if err := writeResult(opts.output, res); err != nil {
		return err
	}

	if opts.publish {
		cfg, err := config.NewKafkaConfig()
		if err != nil {
			return err
		}
		p, err := publish.NewKafkaPublisher(cfg, publish.WithLogger(logger))
		if err != nil {
			return err
		}
		defer p.Close()

		if err := p.Publish(ctx, publish.NewReport(opts.input, res)); err != nil {
			return err
		}
	}

	return nil
}

func saveWindow(path string, res *session.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating %s: %w", path, err)
	}
	defer f.Close()

	if err := mea.WriteEDF(f, res.Window(), res.RunID); err != nil {
		return fmt.Errorf("error writing %s: %w", path, err)
	}
	return f.Close()
}

func writeResult(path string, res *session.Result) error {
	var w io.Writer = os.Stdout
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("error creating %s: %w", path, err)
		}
		defer f.Close()
		w = f
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("error writing result: %w", err)
	}
	return nil
}
