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
	"encoding/json"
	"fmt"
	"os"
	"time"

	"stackvet.dev/stackvet/pkg/prometheus"
)

// FunctionStat summarizes one analyzed function.
type FunctionStat struct {
	// Function is the function identifier; empty in totals.
	Function string `json:"function,omitempty"`

	// Nodes is the number of graph nodes, sentinels included.
	Nodes int `json:"nodes"`

	// Constructions is the number of construction nodes seen.
	Constructions int `json:"constructions"`

	// Confined is the number of sites proven stack-eligible.
	Confined int `json:"confined"`

	// OpaqueCalls is the number of calls treated worst case because
	// nothing useful was known about the callee.
	OpaqueCalls int `json:"opaqueCalls"`
}

func (s *FunctionStat) accumulate(o FunctionStat) {
	s.Nodes += o.Nodes
	s.Constructions += o.Constructions
	s.Confined += o.Confined
	s.OpaqueCalls += o.OpaqueCalls
}

// Report is the outcome of a whole-module run.
type Report struct {
	// Module is the analyzed module's name.
	Module string `json:"module"`

	// Functions holds per-function statistics, sorted by identifier.
	Functions []FunctionStat `json:"functions,omitempty"`

	// Totals aggregates Functions.
	Totals FunctionStat `json:"totals"`

	// Duration is the wall time of the run.
	Duration time.Duration `json:"duration"`
}

// WriteReportToFile writes the report to the given path.
func WriteReportToFile(r *Report, path string) error {
	content, err := WriteReportToBytes(r)
	if err != nil {
		return err
	}
	return os.WriteFile(path, content, 0644)
}

// WriteReportToBytes serializes the report as indented JSON.
func WriteReportToBytes(r *Report) ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// ExtractReportFromFile loads a report from the given path.
func ExtractReportFromFile(path string) (*Report, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading report: %w", err)
	}
	var r Report
	if err := json.Unmarshal(content, &r); err != nil {
		return nil, fmt.Errorf("decoding report: %w", err)
	}
	return &r, nil
}

// Metrics describing a whole-module run.
var (
	functionsAnalyzed = prometheus.Metric{
		Name: "functions_analyzed",
		Type: prometheus.TypeGauge,
		Help: "Number of functions classified in the last run.",
	}
	nodesVisited = prometheus.Metric{
		Name: "nodes_visited",
		Type: prometheus.TypeGauge,
		Help: "Total graph nodes across all analyzed functions.",
	}
	constructionsSeen = prometheus.Metric{
		Name: "constructions",
		Type: prometheus.TypeGauge,
		Help: "Construction nodes seen across all analyzed functions.",
	}
	sitesConfined = prometheus.Metric{
		Name: "confined_sites",
		Type: prometheus.TypeGauge,
		Help: "Allocation sites proven confined to their activation.",
	}
	opaqueCallsSeen = prometheus.Metric{
		Name: "opaque_calls",
		Type: prometheus.TypeGauge,
		Help: "Calls classified worst case for lack of callee knowledge.",
	}
	analysisSeconds = prometheus.Metric{
		Name: "analysis_seconds",
		Type: prometheus.TypeGauge,
		Help: "Wall time of the last run in seconds.",
	}
)

// Snapshot renders the report as a metric snapshot: module-wide
// totals, plus per-function confined counts labeled by function
// identifier.
func (r *Report) Snapshot() *prometheus.Snapshot {
	snapshot := prometheus.NewSnapshot()
	snapshot.Add(
		prometheus.NewIntData(&functionsAnalyzed, int64(len(r.Functions))),
		prometheus.NewIntData(&nodesVisited, int64(r.Totals.Nodes)),
		prometheus.NewIntData(&constructionsSeen, int64(r.Totals.Constructions)),
		prometheus.NewIntData(&sitesConfined, int64(r.Totals.Confined)),
		prometheus.NewIntData(&opaqueCallsSeen, int64(r.Totals.OpaqueCalls)),
		prometheus.NewFloatData(&analysisSeconds, r.Duration.Seconds()),
	)
	for i := range r.Functions {
		f := &r.Functions[i]
		snapshot.Add(prometheus.LabeledIntData(&sitesConfined, map[string]string{"function": f.Function}, int64(f.Confined)))
	}
	return snapshot
}
