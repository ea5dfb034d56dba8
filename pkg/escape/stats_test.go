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

package escape

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/common/expfmt"

	"stackvet.dev/stackvet/pkg/prometheus"
)

func testReport() *Report {
	return &Report{
		Module: "mod",
		Functions: []FunctionStat{
			{Function: "f", Nodes: 9, Constructions: 3, Confined: 2, OpaqueCalls: 1},
			{Function: "g", Nodes: 4, Constructions: 1, Confined: 1},
		},
		Totals:   FunctionStat{Nodes: 13, Constructions: 4, Confined: 3, OpaqueCalls: 1},
		Duration: 1500 * time.Millisecond,
	}
}

func TestReportSnapshot(t *testing.T) {
	var buf bytes.Buffer
	written, err := prometheus.Write(&buf, prometheus.ExportOptions{}, map[*prometheus.Snapshot]prometheus.SnapshotExportOptions{
		testReport().Snapshot(): {ExporterPrefix: "stackvet_"},
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if written != buf.Len() {
		t.Errorf("Write reported %d bytes, wrote %d", written, buf.Len())
	}

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(&buf)
	if err != nil {
		t.Fatalf("TextToMetricFamilies: %v", err)
	}

	for name, want := range map[string]float64{
		"stackvet_functions_analyzed": 2,
		"stackvet_nodes_visited":      13,
		"stackvet_constructions":      4,
		"stackvet_opaque_calls":       1,
		"stackvet_analysis_seconds":   1.5,
	} {
		family, ok := families[name]
		if !ok {
			t.Errorf("metric %s missing from export", name)
			continue
		}
		if family.GetMetric()[0].GetGauge() == nil {
			t.Errorf("metric %s is not a gauge", name)
			continue
		}
		if got := family.GetMetric()[0].GetGauge().GetValue(); got != want {
			t.Errorf("metric %s: got %v, want %v", name, got, want)
		}
	}

	confined, ok := families["stackvet_confined_sites"]
	if !ok {
		t.Fatalf("metric stackvet_confined_sites missing from export")
	}
	byFunction := map[string]float64{}
	var total float64
	for _, m := range confined.GetMetric() {
		labeled := false
		for _, l := range m.GetLabel() {
			if l.GetName() == "function" {
				byFunction[l.GetValue()] = m.GetGauge().GetValue()
				labeled = true
			}
		}
		if !labeled {
			total = m.GetGauge().GetValue()
		}
	}
	if total != 3 {
		t.Errorf("total confined sites: got %v, want 3", total)
	}
	if diff := cmp.Diff(map[string]float64{"f": 2, "g": 1}, byFunction); diff != "" {
		t.Errorf("per-function confined sites mismatch (-want +got):\n%s", diff)
	}
}

func TestReportFileRoundTrip(t *testing.T) {
	want := testReport()
	path := filepath.Join(t.TempDir(), "report.json")
	if err := WriteReportToFile(want, path); err != nil {
		t.Fatalf("WriteReportToFile: %v", err)
	}
	got, err := ExtractReportFromFile(path)
	if err != nil {
		t.Fatalf("ExtractReportFromFile: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractReportMissing(t *testing.T) {
	if _, err := ExtractReportFromFile(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Errorf("ExtractReportFromFile of a missing file succeeded")
	}
}
