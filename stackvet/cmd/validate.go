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

	"github.com/google/subcommands"
	"stackvet.dev/stackvet/pkg/dataflow"
	"stackvet.dev/stackvet/stackvet/cmd/util"
	"stackvet.dev/stackvet/stackvet/flag"
)

// Validate implements subcommands.Command for the "validate" command.
type Validate struct{}

// Name implements subcommands.Command.Name.
func (*Validate) Name() string {
	return "validate"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Validate) Synopsis() string {
	return "check graph documents against the schema and semantic rules"
}

// Usage implements subcommands.Command.Usage.
func (*Validate) Usage() string {
	return `validate <graph.json> [<graph.json>...] - parses each graph document without analyzing it, reporting the errors found. Exits non-zero if any document is invalid.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Validate) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Validate) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() < 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	exit := subcommands.ExitSuccess
	for _, path := range f.Args() {
		module, err := dataflow.Load(path)
		if err != nil {
			exit = util.Errorf("%v", err)
			continue
		}
		nodes := 0
		for _, fn := range module.Functions() {
			nodes += fn.NumNodes()
		}
		util.Infof("%s: module %q is valid (%d functions, %d nodes)", path, module.Name(), module.NumFunctions(), nodes)
	}
	return exit
}
