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

// Package bigquery defines a BigQuery schema for analysis runs.
//
// This package contains a schema for BigQuery and methods for
// publishing per-function analysis statistics into tables.
package bigquery

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	bq "cloud.google.com/go/bigquery"
	"google.golang.org/api/option"
)

// Run is the top level structure for one analysis invocation over a
// module. BigQuery will infer the schema from this.
type Run struct {
	Name       string       `bq:"name"`
	Conditions []*Condition `bq:"conditions"`
	Results    []*Result    `bq:"results"`
	Official   bool         `bq:"official"`
	Timestamp  time.Time    `bq:"timestamp"`
}

// Result represents the statistics of an individual function in a run.
type Result struct {
	Name      string       `bq:"name"`
	Condition []*Condition `bq:"condition"`
	Metric    []*Metric    `bq:"metric"`
}

// Condition represents qualifiers for the result or run. Run
// conditions include information such as the module name and the
// analyzer version.
type Condition struct {
	Name  string `bq:"name"`
	Value string `bq:"value"`
}

// Metric holds the actual metric data and unit information for this
// result.
type Metric struct {
	Name   string  `bq:"name"`
	Unit   string  `bq:"unit"`
	Sample float64 `bq:"sample"`
}

// InitBigQuery initializes a BigQuery dataset/table in the project. If the dataset/table already exists, it is not duplicated.
func InitBigQuery(ctx context.Context, projectID, datasetID, tableID string, opts []option.ClientOption) error {
	client, err := bq.NewClient(ctx, projectID, opts...)
	if err != nil {
		return fmt.Errorf("failed to initialize client on project %s: %v", projectID, err)
	}
	defer client.Close()

	dataset := client.Dataset(datasetID)
	if err := dataset.Create(ctx, nil); err != nil && !checkDuplicateError(err) {
		return fmt.Errorf("failed to create dataset: %s: %v", datasetID, err)
	}

	table := dataset.Table(tableID)
	schema, err := bq.InferSchema(Run{})
	if err != nil {
		return fmt.Errorf("failed to infer schema: %v", err)
	}

	if err := table.Create(ctx, &bq.TableMetadata{Schema: schema}); err != nil && !checkDuplicateError(err) {
		return fmt.Errorf("failed to create table: %s: %v", tableID, err)
	}
	return nil
}

// AddCondition adds a condition to an existing Result.
func (r *Result) AddCondition(name, value string) {
	r.Condition = append(r.Condition, &Condition{
		Name:  name,
		Value: value,
	})
}

// AddMetric adds a metric to an existing Result.
func (r *Result) AddMetric(metricName, unit string, sample float64) {
	m := &Metric{
		Name:   metricName,
		Unit:   unit,
		Sample: sample,
	}
	r.Metric = append(r.Metric, m)
}

// AddCondition adds a run-level condition.
func (r *Run) AddCondition(name, value string) {
	r.Conditions = append(r.Conditions, &Condition{
		Name:  name,
		Value: value,
	})
}

// NewResult initializes a new result for a function analyzed over the
// given number of graph nodes.
func NewResult(name string, nodes int) *Result {
	return &Result{
		Name:   name,
		Metric: make([]*Metric, 0),
		Condition: []*Condition{
			{
				Name:  "nodes",
				Value: strconv.Itoa(nodes),
			},
		},
	}
}

// NewRun initializes a new Run.
func NewRun(name string, official bool) *Run {
	return &Run{
		Name:       name,
		Timestamp:  time.Now().UTC(),
		Results:    make([]*Result, 0),
		Conditions: make([]*Condition, 0),
		Official:   official,
	}
}

// SendResults sends the run to the BigQuery dataset/table.
func SendResults(ctx context.Context, run *Run, projectID, datasetID, tableID string, opts []option.ClientOption) error {
	client, err := bq.NewClient(ctx, projectID, opts...)
	if err != nil {
		return fmt.Errorf("failed to initialize client on project: %s: %v", projectID, err)
	}
	defer client.Close()

	uploader := client.Dataset(datasetID).Table(tableID).Uploader()
	if err = uploader.Put(ctx, run); err != nil {
		return fmt.Errorf("failed to upload run %s to project %s, table %s.%s: %v", run.Name, projectID, datasetID, tableID, err)
	}

	return nil
}

// BigQuery will error "409" for duplicate tables and datasets.
func checkDuplicateError(err error) bool {
	return strings.Contains(err.Error(), "googleapi: Error 409: Already Exists")
}
