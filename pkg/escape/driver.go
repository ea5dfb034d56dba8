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
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"stackvet.dev/stackvet/pkg/dataflow"
	"stackvet.dev/stackvet/pkg/lifetime"
)

// Analyze classifies every function in m and records the proven
// verdicts in lm. The map must start empty: this pass owns the whole
// map, so a pre-populated one means the caller wired two passes to one
// output.
//
// Functions are analyzed concurrently, bounded by the configured
// worker count, and never share analysis state. Results are merged in
// sorted function order, so the report and any failure are
// deterministic regardless of scheduling.
func Analyze(m *dataflow.Module, lm *lifetime.Map, conf *Config) (*Report, error) {
	if n := lm.Len(); n != 0 {
		return nil, fmt.Errorf("module %q: lifetime map must start empty, has %d verdicts", m.Name(), n)
	}

	start := time.Now()
	fns := m.Functions()
	results := make([]*FunctionResult, len(fns))
	errs := make([]error, len(fns))

	var group errgroup.Group
	group.SetLimit(conf.workers())
	for i, f := range fns {
		group.Go(func() error {
			results[i], errs[i] = AnalyzeFunction(f, conf)
			return errs[i]
		})
	}
	if group.Wait() != nil {
		// Report the first failure in function order, not in completion
		// order.
		for _, err := range errs {
			if err != nil {
				return nil, fmt.Errorf("module %q: %w", m.Name(), err)
			}
		}
	}

	report := &Report{Module: m.Name()}
	for _, r := range results {
		for _, site := range r.Confined {
			if err := lm.Record(site, lifetime.Confined); err != nil {
				return nil, fmt.Errorf("module %q: function %q: %w", m.Name(), r.Function, err)
			}
		}
		report.Functions = append(report.Functions, r.Stats)
		report.Totals.accumulate(r.Stats)
	}
	report.Duration = time.Since(start)

	conf.logger().Infof("escape: module %q: %d functions, %d confined sites in %v", m.Name(), len(fns), report.Totals.Confined, report.Duration)
	return report, nil
}
