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

// Package config provides basic infrastructure to set configuration
// settings for stackvet. The configuration is set by flags to the
// command line. They can also propagate to a different invocation
// using the same flags.
package config

import (
	"fmt"
	"reflect"

	"stackvet.dev/stackvet/pkg/log"
)

// Config holds configuration that is not part of the graph document
// and is configurable by the user. Config fields that map to command
// line flags carry a "flag" tag naming the flag.
type Config struct {
	// LogFilename is the filename to log to, if set.
	LogFilename string `flag:"log"`

	// LogFormat is the log format.
	LogFormat string `flag:"log-format"`

	// Debug indicates that debug logging should be enabled.
	Debug bool `flag:"debug"`

	// DebugLog is the path to log debug information to, if specified.
	DebugLog string `flag:"debug-log"`

	// DebugLogFormat is the log format for debug.
	DebugLogFormat string `flag:"debug-log-format"`

	// AlsoLogToStderr allows to send log messages to stderr.
	AlsoLogToStderr bool `flag:"alsologtostderr"`

	// AllowFlagOverride allows analysis overrides to change any flag,
	// not just the ones on the override allowlist.
	AllowFlagOverride bool `flag:"allow-flag-override"`

	// Workers bounds the number of functions analyzed concurrently.
	// Zero uses all available CPUs.
	Workers int `flag:"workers"`

	// StackArrayLimit is the largest fixed-array element count still
	// eligible for stack placement.
	StackArrayLimit int `flag:"stack-array-limit"`
}

func (c *Config) validate() error {
	if err := validateLogFormat(c.LogFormat); err != nil {
		return fmt.Errorf("flag --log-format: %w", err)
	}
	if err := validateLogFormat(c.DebugLogFormat); err != nil {
		return fmt.Errorf("flag --debug-log-format: %w", err)
	}
	if c.Workers < 0 {
		return fmt.Errorf("flag --workers must not be negative, got %d", c.Workers)
	}
	if c.StackArrayLimit < 0 {
		return fmt.Errorf("flag --stack-array-limit must not be negative, got %d", c.StackArrayLimit)
	}
	return nil
}

func validateLogFormat(format string) error {
	switch format {
	case "text", "json":
		return nil
	default:
		return fmt.Errorf("invalid log format %q, must be 'text' or 'json'", format)
	}
}

// Log logs important aspects of the configuration to the debug log.
func (c *Config) Log() {
	if !log.IsLogging(log.Debug) {
		// Config is dumped at debug level, so skip work if debug
		// logging is not enabled.
		return
	}
	obj := reflect.ValueOf(c).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		if flagName, ok := f.Tag.Lookup("flag"); ok {
			log.Debugf("Config.%s (--%s): %v", f.Name, flagName, obj.Field(i).Interface())
		} else {
			log.Debugf("Config.%s: %v", f.Name, obj.Field(i).Interface())
		}
	}
}
