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
	"runtime"

	"stackvet.dev/stackvet/pkg/log"
	"stackvet.dev/stackvet/pkg/summary"
)

// DefaultArrayLimit is the largest fixed-array element count eligible
// for stack placement when the configuration does not override it.
const DefaultArrayLimit = 64

// Config tunes the analysis. The zero value and a nil pointer both
// select the defaults.
type Config struct {
	// ArrayLimit is the largest element count a fixed array may request
	// and still be stack-placed. Values below one select
	// DefaultArrayLimit.
	ArrayLimit int

	// Workers bounds the number of functions analyzed concurrently.
	// Values below one select GOMAXPROCS.
	Workers int

	// Summaries resolves targets whose graphs carry no inline callee
	// description. May be nil, in which case every such target is
	// treated as unknown.
	Summaries *summary.DB

	// Logger receives analysis traces. Nil selects the process logger.
	Logger log.Logger
}

func (c *Config) arrayLimit() int64 {
	if c == nil || c.ArrayLimit < 1 {
		return DefaultArrayLimit
	}
	return int64(c.ArrayLimit)
}

func (c *Config) workers() int {
	if c == nil || c.Workers < 1 {
		return runtime.GOMAXPROCS(0)
	}
	return c.Workers
}

func (c *Config) summaries() *summary.DB {
	if c == nil {
		return nil
	}
	return c.Summaries
}

func (c *Config) logger() log.Logger {
	if c == nil || c.Logger == nil {
		return log.Log()
	}
	return c.Logger
}
