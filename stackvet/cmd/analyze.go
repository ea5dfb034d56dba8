// Copyright 2026 The StackVet Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/subcommands"
	"stackvet.dev/stackvet/pkg/cleanup"
	"stackvet.dev/stackvet/pkg/dataflow"
	"stackvet.dev/stackvet/pkg/escape"
	"stackvet.dev/stackvet/pkg/lifetime"
	"stackvet.dev/stackvet/pkg/log"
	"stackvet.dev/stackvet/pkg/prometheus"
	"stackvet.dev/stackvet/pkg/summary"
	"stackvet.dev/stackvet/stackvet/cmd/util"
	"stackvet.dev/stackvet/stackvet/config"
	"stackvet.dev/stackvet/stackvet/flag"
)

// Analyze implements subcommands.Command for the "analyze" command.
type Analyze struct {
	summaries      stringSlice
	overrides      stringSlice
	out            string
	metricsFile    string
	exporterPrefix string
	statsFile      string
}

// Name implements subcommands.Command.Name.
func (*Analyze) Name() string {
	return "analyze"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Analyze) Synopsis() string {
	return "run escape analysis over a graph document and report confined allocation sites"
}

// Usage implements subcommands.Command.Usage.
func (*Analyze) Usage() string {
	return `analyze [flags] <graph.json> - runs escape analysis over the given graph document and writes the verdict report to --out (default stdout).
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (a *Analyze) SetFlags(f *flag.FlagSet) {
	f.Var(&a.summaries, "summaries", "path to a TOML callee summary database. May be repeated; entries are merged.")
	f.Var(&a.overrides, "override", "configuration override in name=value form, applied before the analysis starts. May be repeated. Only tuning flags may be overridden unless --allow-flag-override is set.")
	f.StringVar(&a.out, "out", "", "file path for the verdict report. Defaults to stdout.")
	f.StringVar(&a.metricsFile, "metrics-file", "", "if set, write analysis metrics in Prometheus text format to this file.")
	f.StringVar(&a.exporterPrefix, "exporter-prefix", "stackvet_", "prefix for all metric names, following Prometheus exporter convention.")
	f.StringVar(&a.statsFile, "stats-file", "", "if set, write per-function analysis statistics as JSON to this file.")
}

// Execute implements subcommands.Command.Execute.
func (a *Analyze) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	if err := a.execute(conf, f.Arg(0)); err != nil {
		return util.Errorf("%v", err)
	}
	return subcommands.ExitSuccess
}

func (a *Analyze) execute(conf *config.Config, path string) error {
	for _, pair := range a.overrides {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("invalid -override %q, expected name=value", pair)
		}
		if err := conf.Override(flag.CommandLine, name, value); err != nil {
			return err
		}
	}

	db := summary.NewDB()
	for _, dbPath := range a.summaries {
		if err := db.LoadFile(dbPath); err != nil {
			return err
		}
	}
	log.Debugf("Summary database: %d callees, %d builtins", db.NumCallees(), db.NumBuiltins())

	module, err := dataflow.Load(path)
	if err != nil {
		return err
	}

	verdicts := lifetime.NewMap()
	report, err := escape.Analyze(module, verdicts, &escape.Config{
		ArrayLimit: conf.StackArrayLimit,
		Workers:    conf.Workers,
		Summaries:  db,
	})
	if err != nil {
		return err
	}

	if a.out == "" {
		// Stdout carries the verdict report alone so that it stays
		// parseable by the consuming compiler stage.
		b, err := lifetime.WriteVerdictsToBytes(verdicts)
		if err != nil {
			return err
		}
		b = append(b, '\n')
		if _, err := os.Stdout.Write(b); err != nil {
			return fmt.Errorf("writing verdicts to stdout: %w", err)
		}
	} else {
		if err := lifetime.WriteVerdictsToFile(verdicts, a.out); err != nil {
			return err
		}
	}

	if a.metricsFile != "" {
		if err := a.writeMetrics(report); err != nil {
			return err
		}
	}
	if a.statsFile != "" {
		if err := escape.WriteReportToFile(report, a.statsFile); err != nil {
			return err
		}
	}

	if a.out != "" {
		util.Infof("Analyzed module %q: %d functions, %d confined sites, %d opaque calls", report.Module, len(report.Functions), report.Totals.Confined, report.Totals.OpaqueCalls)
	}
	return nil
}

// writeMetrics renders the report metrics in Prometheus text format.
func (a *Analyze) writeMetrics(report *escape.Report) error {
	out, err := os.Create(a.metricsFile)
	if err != nil {
		return fmt.Errorf("creating metrics file: %w", err)
	}
	// Don't leave a partial metrics file behind on failure, scrapers
	// pick up whatever is at that path.
	cu := cleanup.Make(func() {
		out.Close()
		os.Remove(a.metricsFile)
	})
	defer cu.Clean()

	written, err := prometheus.Write(out, prometheus.ExportOptions{
		CommentHeader: fmt.Sprintf("Escape analysis of module %q.", report.Module),
	}, map[*prometheus.Snapshot]prometheus.SnapshotExportOptions{
		report.Snapshot(): {
			ExporterPrefix: a.exporterPrefix,
			ExtraLabels:    map[string]string{"module": report.Module},
		},
	})
	if err != nil {
		return fmt.Errorf("writing metrics to %q: %w", a.metricsFile, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("writing metrics to %q: %w", a.metricsFile, err)
	}
	cu.Release()
	log.Debugf("Wrote %d bytes of Prometheus metric data to %q", written, a.metricsFile)
	return nil
}
