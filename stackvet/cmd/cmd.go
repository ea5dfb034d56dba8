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

// Package cmd holds implementations of the stackvet commands.
package cmd

import (
	"fmt"
)

// stringSlice can be used with string flags that appear multiple times.
type stringSlice []string

// String implements flag.Value.
func (s *stringSlice) String() string {
	return fmt.Sprintf("%v", *s)
}

// Get implements flag.Getter.
func (s *stringSlice) Get() any {
	return s
}

// Set implements flag.Value.
func (s *stringSlice) Set(v string) error {
	*s = append(*s, v)
	return nil
}
