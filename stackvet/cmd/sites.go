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
	"text/tabwriter"

	"github.com/google/subcommands"
	"stackvet.dev/stackvet/pkg/dataflow"
	"stackvet.dev/stackvet/stackvet/cmd/util"
	"stackvet.dev/stackvet/stackvet/flag"
)

// Sites implements subcommands.Command for the "sites" command.
type Sites struct {
	candidates bool
}

// Name implements subcommands.Command.Name.
func (*Sites) Name() string {
	return "sites"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Sites) Synopsis() string {
	return "list the construction sites of a graph document"
}

// Usage implements subcommands.Command.Usage.
func (*Sites) Usage() string {
	return `sites [flags] <graph.json> - lists every construction site in the graph document with its constructed type, for checking the labels and type shapes a frontend emits.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (s *Sites) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&s.candidates, "candidates", false, "only list sites whose type shape is eligible for stack placement.")
}

// Execute implements subcommands.Command.Execute.
func (s *Sites) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	module, err := dataflow.Load(f.Arg(0))
	if err != nil {
		return util.Errorf("%v", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FUNCTION\tSITE\tTYPE\tSHAPE\tPLACEMENT")
	total, candidates := 0, 0
	for _, fn := range module.Functions() {
		for _, n := range fn.Nodes() {
			alloc, ok := n.(*dataflow.New)
			if !ok {
				continue
			}
			total++
			// Only fixed-size arrays can ever be placed on the stack,
			// everything else goes to the heap regardless of how it is
			// used.
			shape, placement := "object", "heap"
			switch {
			case alloc.Type.FixedArray():
				shape, placement = "fixed array", "stack candidate"
				candidates++
			case alloc.Type.Array:
				shape = "array"
			}
			if s.candidates && !alloc.Type.FixedArray() {
				continue
			}
			site := string(alloc.Site)
			if site == "" {
				// Unlabeled sites never receive a verdict.
				site = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", fn.Name(), site, alloc.Type.Name, shape, placement)
		}
	}
	if err := w.Flush(); err != nil {
		return util.Errorf("writing site table: %v", err)
	}
	util.Infof("%d construction sites, %d stack candidates", total, candidates)
	return subcommands.ExitSuccess
}
