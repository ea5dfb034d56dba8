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

// Package summary describes per-callee escape behavior supplied by
// earlier pipeline stages.
//
// A summary is a bitmask over argument positions: bit i set means
// argument i may escape into the callee. Summaries let the analysis
// treat known callees precisely instead of assuming every argument
// escapes.
package summary

import (
	"fmt"
	"strconv"
	"strings"
)

// Mask is a per-argument escape summary.
type Mask uint64

// MaxArgs is the number of argument positions a Mask can describe.
const MaxArgs = 64

// FromPositions builds a Mask from the escaping argument positions.
func FromPositions(positions []int) (Mask, error) {
	var m Mask
	for _, p := range positions {
		if p < 0 || p >= MaxArgs {
			return 0, fmt.Errorf("argument position %d out of range [0, %d)", p, MaxArgs)
		}
		m |= 1 << uint(p)
	}
	return m, nil
}

// MaskOf is FromPositions for known-good positions; it panics on
// out-of-range values.
func MaskOf(positions ...int) Mask {
	m, err := FromPositions(positions)
	if err != nil {
		panic(err.Error())
	}
	return m
}

// Escapes reports whether argument i may escape. Positions the mask
// cannot describe report true: the summary cannot prove them safe.
func (m Mask) Escapes(i int) bool {
	if i < 0 || i >= MaxArgs {
		return true
	}
	return m&(1<<uint(i)) != 0
}

// String implements fmt.Stringer.String.
func (m Mask) String() string {
	if m == 0 {
		return "none"
	}
	var positions []string
	for i := 0; i < MaxArgs; i++ {
		if m&(1<<uint(i)) != 0 {
			positions = append(positions, strconv.Itoa(i))
		}
	}
	return strings.Join(positions, ",")
}
