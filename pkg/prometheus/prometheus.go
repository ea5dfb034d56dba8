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

// Package prometheus renders metric snapshots in the Prometheus text
// exposition format. It carries no dependency on the official client
// library: producers build Data points by hand and Write emits them,
// which keeps the exporter usable from short-lived command invocations
// that only ever write one snapshot to a file.
package prometheus

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"reflect"
	"sort"
	"strings"
	"time"
)

// timeNow is the time.Now() function. Can be mocked in tests.
var timeNow = time.Now

// Type is a Prometheus metric type.
type Type int

// List of supported Prometheus metric types.
const (
	TypeUntyped = Type(iota)
	TypeGauge
	TypeCounter
)

// Metric is Prometheus metric metadata.
type Metric struct {
	// Name is the Prometheus metric name.
	Name string

	// Type is the type of the metric.
	Type Type

	// Help is an optional string explaining what the metric is about.
	Help string
}

// writeHeaderTo writes the metric comment header to the given writer.
func (m *Metric) writeHeaderTo(w io.Writer, options SnapshotExportOptions) error {
	if m.Help != "" {
		// Only backslashes and line breaks need escaping in help text.
		escaped := strings.ReplaceAll(strings.ReplaceAll(m.Help, "\\", "\\\\"), "\n", "\\n")
		if _, err := fmt.Fprintf(w, "# HELP %s%s %s\n", options.ExporterPrefix, m.Name, escaped); err != nil {
			return err
		}
	}
	var metricType string
	switch m.Type {
	case TypeGauge:
		metricType = "gauge"
	case TypeCounter:
		metricType = "counter"
	case TypeUntyped:
		metricType = "untyped"
	}
	if metricType != "" {
		if _, err := fmt.Fprintf(w, "# TYPE %s%s %s\n", options.ExporterPrefix, m.Name, metricType); err != nil {
			return err
		}
	}
	return nil
}

// Number is a numerical metric value. Prometheus expresses all numbers
// as float64s at export time, but integer values are carried as int64
// until then so counters stay precise.
type Number struct {
	// Float is the float value of this number. Mutually exclusive with
	// Int.
	Float float64

	// Int is the integer value of this number. Mutually exclusive with
	// Float.
	Int int64
}

// IsInteger returns whether this number carries an integer value.
func (n *Number) IsInteger() bool {
	if n.Float == 0 {
		return true
	}
	if math.IsNaN(n.Float) || n.Float == math.Inf(-1) || n.Float == math.Inf(1) {
		return false
	}
	return math.Round(n.Float) == n.Float
}

// String implements fmt.Stringer.String.
func (n *Number) String() string {
	var s strings.Builder
	if err := n.writeTo(&s); err != nil {
		panic(err)
	}
	return s.String()
}

// writeTo writes the number to the given writer.
func (n *Number) writeTo(w io.Writer) error {
	var s string
	switch {
	case n.Int == 0 && n.Float == 0:
		s = "0"
	case n.Int != 0:
		s = fmt.Sprintf("%d", n.Int)
	case n.Float == math.Inf(-1):
		s = "-Inf"
	case n.Float == math.Inf(1):
		s = "+Inf"
	case math.IsNaN(n.Float):
		s = "NaN"
	default:
		s = fmt.Sprintf("%f", n.Float)
	}
	_, err := io.WriteString(w, s)
	return err
}

// Data is an observation of the value of a single metric at a certain
// point in time.
type Data struct {
	// Metric is the metric for which the value is being reported.
	Metric *Metric

	// Labels is a key-value pair representing the labels set on this
	// observation. This may be merged with other labels during export.
	Labels map[string]string

	// Number is the observed value.
	Number *Number
}

// NewIntData returns a new Data struct with the given metric and value.
func NewIntData(metric *Metric, val int64) *Data {
	return &Data{Metric: metric, Number: &Number{Int: val}}
}

// LabeledIntData returns a new Data struct with the given metric,
// labels, and value.
func LabeledIntData(metric *Metric, labels map[string]string, val int64) *Data {
	return &Data{Metric: metric, Labels: labels, Number: &Number{Int: val}}
}

// NewFloatData returns a new Data struct with the given metric and
// value.
func NewFloatData(metric *Metric, val float64) *Data {
	return &Data{Metric: metric, Number: &Number{Float: val}}
}

// ExportOptions controls how metric data is exported across all
// snapshots of a single Write call.
type ExportOptions struct {
	// CommentHeader is prepended as a comment before any metric data.
	CommentHeader string

	// MetricsWritten memoizes written metric preambles (help and type
	// comments) by metric name. If specified, it can be shared across
	// Write calls to avoid duplicate preambles. It is modified in
	// place.
	MetricsWritten map[string]bool
}

// SnapshotExportOptions controls how metric data is exported for one
// Snapshot.
type SnapshotExportOptions struct {
	// ExporterPrefix is prepended to all metric names.
	ExporterPrefix string

	// ExtraLabels is added as labels for all metric values.
	ExtraLabels map[string]string
}

// OrderedLabels returns the list of 'label_key="label_value"' in
// sorted order, erroring out on duplicate label names.
func OrderedLabels(labels ...map[string]string) ([]string, error) {
	total := 0
	for _, labelMap := range labels {
		total += len(labelMap)
	}
	keys := make(map[string]struct{}, total)
	ordered := make([]string, 0, total)
	for _, labelMap := range labels {
		for k, v := range labelMap {
			if _, found := keys[k]; found {
				return nil, fmt.Errorf("duplicate label name %q", k)
			}
			keys[k] = struct{}{}
			ordered = append(ordered, fmt.Sprintf("%s=%q", k, v))
		}
	}
	sort.Strings(ordered)
	return ordered, nil
}

// writeMetricPreambleTo writes the metric name, preceded by the help
// and type comments if they have not been written yet.
func (d *Data) writeMetricPreambleTo(w io.Writer, options SnapshotExportOptions, metricsWritten map[string]bool) error {
	if !metricsWritten[d.Metric.Name] {
		// Extra newline before each preamble for readability.
		if _, err := io.WriteString(w, "\n"); err != nil {
			return err
		}
		if err := d.Metric.writeHeaderTo(w, options); err != nil {
			return err
		}
		metricsWritten[d.Metric.Name] = true
	}
	if options.ExporterPrefix != "" {
		if _, err := io.WriteString(w, options.ExporterPrefix); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, d.Metric.Name)
	return err
}

// writeLabelsTo writes the merged set of metric labels.
func (d *Data) writeLabelsTo(w io.Writer, extraLabels map[string]string) error {
	if len(d.Labels) == 0 && len(extraLabels) == 0 {
		return nil
	}
	ordered, err := OrderedLabels(d.Labels, extraLabels)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, "{"); err != nil {
		return err
	}
	for i, keyVal := range ordered {
		if i != 0 {
			if _, err := io.WriteString(w, ","); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, keyVal); err != nil {
			return err
		}
	}
	_, err = io.WriteString(w, "}")
	return err
}

// writeTo writes one sample line to the given writer.
func (d *Data) writeTo(w io.Writer, when time.Time, options SnapshotExportOptions, metricsWritten map[string]bool) error {
	switch d.Metric.Type {
	case TypeUntyped, TypeGauge, TypeCounter:
	default:
		return fmt.Errorf("unknown metric type for metric %s: %v", d.Metric.Name, d.Metric.Type)
	}
	if err := d.writeMetricPreambleTo(w, options, metricsWritten); err != nil {
		return err
	}
	if err := d.writeLabelsTo(w, options.ExtraLabels); err != nil {
		return err
	}
	if _, err := io.WriteString(w, " "); err != nil {
		return err
	}
	if err := d.Number.writeTo(w); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, " %d\n", when.UnixMilli())
	return err
}

// Snapshot is the values of a set of metrics at a certain point in
// time.
type Snapshot struct {
	// When is the timestamp at which the snapshot was taken.
	// Prometheus ultimately encodes timestamps as millisecond-precision
	// int64s from epoch.
	When time.Time

	// Data is the whole snapshot data. Each Data must be a unique
	// combination of (Metric, Labels) within a Snapshot.
	Data []*Data
}

// NewSnapshot returns a new Snapshot at the current time.
func NewSnapshot() *Snapshot {
	return &Snapshot{When: timeNow()}
}

// Add adds data point(s) to the snapshot. Returns itself for
// chainability.
func (s *Snapshot) Add(data ...*Data) *Snapshot {
	s.Data = append(s.Data, data...)
	return s
}

// countingWriter implements io.Writer and counts the number of bytes
// written to it.
type countingWriter struct {
	w       *bufio.Writer
	written int
}

// Write implements io.Writer.Write.
func (w *countingWriter) Write(b []byte) (int, error) {
	written, err := w.w.Write(b)
	w.written += written
	return written, err
}

// Written returns the number of bytes written to the underlying writer
// (minus buffered writes).
func (w *countingWriter) Written() int {
	return w.written - w.w.Buffered()
}

// writeSingleMetric writes the samples of one metric to the given
// writer.
func (s *Snapshot) writeSingleMetric(w io.Writer, options SnapshotExportOptions, metricName string, metricsWritten map[string]bool) error {
	if !strings.HasPrefix(metricName, options.ExporterPrefix) {
		return nil
	}
	wantMetricName := strings.TrimPrefix(metricName, options.ExporterPrefix)
	for _, d := range s.Data {
		if d.Metric.Name != wantMetricName {
			continue
		}
		if err := d.writeTo(w, s.When, options, metricsWritten); err != nil {
			return err
		}
	}
	return nil
}

// Write writes one or more snapshots to the writer. Same-name metrics
// across different snapshots are printed together, as the exposition
// format requires. It returns the number of bytes written.
func Write(w io.Writer, options ExportOptions, snapshotsToOptions map[*Snapshot]SnapshotExportOptions) (int, error) {
	if len(snapshotsToOptions) == 0 {
		return 0, nil
	}
	cw := &countingWriter{w: bufio.NewWriter(w)}
	if options.CommentHeader != "" {
		for _, commentLine := range strings.Split(options.CommentHeader, "\n") {
			if _, err := fmt.Fprintf(cw, "# %s\n", commentLine); err != nil {
				return cw.Written(), err
			}
		}
	}
	snapshots := make([]*Snapshot, 0, len(snapshotsToOptions))
	for snapshot := range snapshotsToOptions {
		snapshots = append(snapshots, snapshot)
	}
	switch len(snapshots) {
	case 1:
		if _, err := fmt.Fprintf(cw, "# Writing data from snapshot containing %d data points taken at %v.\n", len(snapshots[0].Data), snapshots[0].When); err != nil {
			return cw.Written(), err
		}
	default:
		// Provide a consistent ordering of snapshots.
		sort.Slice(snapshots, func(i, j int) bool {
			return reflect.ValueOf(snapshots[i]).Pointer() < reflect.ValueOf(snapshots[j]).Pointer()
		})
		if _, err := fmt.Fprintf(cw, "# Writing data from %d snapshots:\n", len(snapshots)); err != nil {
			return cw.Written(), err
		}
		for _, snapshot := range snapshots {
			if _, err := fmt.Fprintf(cw, "#   - Snapshot with %d data points taken at %v: %v\n", len(snapshot.Data), snapshot.When, snapshotsToOptions[snapshot].ExtraLabels); err != nil {
				return cw.Written(), err
			}
		}
	}
	if _, err := io.WriteString(cw, "\n"); err != nil {
		return cw.Written(), err
	}
	if options.MetricsWritten == nil {
		options.MetricsWritten = make(map[string]bool)
	}
	metricNamesMap := make(map[string]bool)
	metricNames := make([]string, 0)
	for _, snapshot := range snapshots {
		for _, data := range snapshot.Data {
			metricName := snapshotsToOptions[snapshot].ExporterPrefix + data.Metric.Name
			if !metricNamesMap[metricName] {
				metricNamesMap[metricName] = true
				metricNames = append(metricNames, metricName)
			}
		}
	}
	sort.Strings(metricNames)
	for _, metricName := range metricNames {
		for _, snapshot := range snapshots {
			if err := snapshot.writeSingleMetric(cw, snapshotsToOptions[snapshot], metricName, options.MetricsWritten); err != nil {
				return cw.Written(), err
			}
		}
	}
	if _, err := io.WriteString(cw, "\n# End of metric data.\n"); err != nil {
		return cw.Written(), err
	}
	if err := cw.w.Flush(); err != nil {
		return cw.Written(), err
	}
	return cw.Written(), nil
}
