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
)

// State is a node's escape classification. States form a total order
// with the most restrictive first, so a plain minimum implements the
// lattice merge.
type State int32

const (
	// GlobalEscape marks a node reachable from a persistent root, such
	// as a static field or a process-wide singleton.
	GlobalEscape State = iota

	// ArgEscape marks a node that leaves the function through an
	// argument, the return value, or a throw.
	ArgEscape

	// NoEscape marks a node provably confined to the activation. It is
	// the starting state of every node.
	NoEscape
)

// Merge returns the more restrictive of two states.
func Merge(a, b State) State {
	if a < b {
		return a
	}
	return b
}

// String implements fmt.Stringer.String.
func (s State) String() string {
	switch s {
	case GlobalEscape:
		return "global escape"
	case ArgEscape:
		return "arg escape"
	case NoEscape:
		return "no escape"
	default:
		panic(fmt.Sprintf("unknown state %d", s))
	}
}
