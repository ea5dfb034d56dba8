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

// Binary uploader reads the statistics written by
// 'stackvet analyze --stats-file', puts them into a schema for
// BigQuery, and sends them to BigQuery. uploader will also initialize
// a table with the analysis run BigQuery schema.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff"
	log "github.com/sirupsen/logrus"
	"stackvet.dev/stackvet/pkg/escape"
	"stackvet.dev/stackvet/stackvet/flag"
	bq "stackvet.dev/stackvet/tools/bigquery"
)

const (
	initString        = "init"
	initDescription   = "initializes a new table with the analysis run schema"
	uploadString      = "upload"
	uploadDescription = "uploads the given stats file to the BigQuery table."
)

var (
	// The init command will create a new dataset/table in the given
	// project and initialize the table with the schema in
	// //tools/bigquery/bigquery.go. If the table/dataset exists or has
	// been initialized, init has no effect and successfully returns.
	initCmd     = flag.NewFlagSet(initString, flag.ContinueOnError)
	initProject = initCmd.String("project", "", "GCP project to send analysis runs.")
	initDataset = initCmd.String("dataset", "", "dataset to send analysis run data.")
	initTable   = initCmd.String("table", "", "table to send analysis run data.")

	// The upload command reads the stats file in `file` and sends it
	// to the requested table.
	uploadCmd     = flag.NewFlagSet(uploadString, flag.ContinueOnError)
	file          = uploadCmd.String("file", "", "stats file to upload, as written by 'stackvet analyze --stats-file'.")
	name          = uploadCmd.String("run_name", "", "name of the analysis run. Defaults to the module name in the stats file.")
	uploadProject = uploadCmd.String("project", "", "GCP project to send analysis runs.")
	uploadDataset = uploadCmd.String("dataset", "", "dataset to send analysis run data.")
	uploadTable   = uploadCmd.String("table", "", "table to send analysis run data.")
	official      = uploadCmd.Bool("official", false, "mark input data as official.")
	toolVersion   = uploadCmd.String("tool_version", "", "version of the analyzer that produced the stats file.")
	timeout       = uploadCmd.Duration("timeout", 2*time.Minute, "total time to retry the upload before giving up.")
	debug         = uploadCmd.Bool("debug", false, "print debug logs")
)

// initRuns initializes a dataset/table in a BigQuery project.
func initRuns(ctx context.Context) error {
	return bq.InitBigQuery(ctx, *initProject, *initDataset, *initTable, nil)
}

// uploadStats reads the given stats file into the BigQuery schema,
// adds some custom conditions for the run, and sends the data to
// BigQuery, retrying transient failures.
func uploadStats(ctx context.Context) error {
	log.Debugf("Reading stats file: %s", *file)
	report, err := escape.ExtractReportFromFile(*file)
	if err != nil {
		return fmt.Errorf("failed to read stats file %s: %v", *file, err)
	}
	log.Debugf("Read stats for %d functions of module %q", len(report.Functions), report.Module)
	if len(report.Functions) < 1 {
		fmt.Fprintf(os.Stderr, "Failed to find function stats in file: %s", *file)
		return nil
	}

	run := makeRun(report)
	log.Debugf("Sending run %q", run.Name)
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = *timeout
	return backoff.Retry(func() error {
		return bq.SendResults(ctx, run, *uploadProject, *uploadDataset, *uploadTable, nil)
	}, backoff.WithContext(b, ctx))
}

// makeRun converts a stats report into the BigQuery schema.
func makeRun(report *escape.Report) *bq.Run {
	runName := *name
	if runName == "" {
		runName = report.Module
	}
	run := bq.NewRun(runName, *official)
	run.AddCondition("module", report.Module)
	run.AddCondition("duration", report.Duration.String())
	if *toolVersion != "" {
		run.AddCondition("version", *toolVersion)
	}

	for _, f := range report.Functions {
		result := bq.NewResult(f.Function, f.Nodes)
		result.AddMetric("constructions", "count", float64(f.Constructions))
		result.AddMetric("confined_sites", "count", float64(f.Confined))
		result.AddMetric("opaque_calls", "count", float64(f.OpaqueCalls))
		run.Results = append(run.Results, result)
	}

	totals := bq.NewResult("total", report.Totals.Nodes)
	totals.AddMetric("constructions", "count", float64(report.Totals.Constructions))
	totals.AddMetric("confined_sites", "count", float64(report.Totals.Confined))
	totals.AddMetric("opaque_calls", "count", float64(report.Totals.OpaqueCalls))
	totals.AddMetric("analysis_time", "s", report.Duration.Seconds())
	run.Results = append(run.Results, totals)
	return run
}

func main() {
	ctx := context.Background()
	switch {
	// the "init" command
	case len(os.Args) >= 2 && os.Args[1] == initString:
		if err := initCmd.Parse(os.Args[2:]); err != nil {
			log.Fatalf("Failed parse flags: %v", err)
		}
		if err := initRuns(ctx); err != nil {
			log.Fatalf("Failed to initialize project: %s dataset: %s table: %s: %v", *initProject, *initDataset, *initTable, err)
		}
	// the "upload" command.
	case len(os.Args) >= 2 && os.Args[1] == uploadString:
		if err := uploadCmd.Parse(os.Args[2:]); err != nil {
			log.Fatalf("Failed parse flags: %v", err)
		}
		if *debug {
			log.SetLevel(log.DebugLevel)
		}
		if err := uploadStats(ctx); err != nil {
			log.Fatalf("Failed to upload stats: %v", err)
		}
	default:
		printUsage()
		os.Exit(1)
	}
}

// printUsage prints the top level usage string.
func printUsage() {
	usage := `Usage: uploader <command> <flags> ...

Available commands:
  %s     %s
  %s     %s
`
	fmt.Printf(usage, initCmd.Name(), initDescription, uploadCmd.Name(), uploadDescription)
}
