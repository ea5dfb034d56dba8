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

package summary

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// DB maps callee symbols to escape summaries and records the set of
// recognized safe builtin operators. A DB is read-only once loaded and
// may be shared between concurrent analyses.
type DB struct {
	callees  map[string]Mask
	builtins map[string]struct{}
}

// NewDB returns an empty database.
func NewDB() *DB {
	return &DB{
		callees:  make(map[string]Mask),
		builtins: make(map[string]struct{}),
	}
}

// Add records the summary for a callee symbol. Conflicting duplicates
// are rejected: summaries come from independent pipeline stages and a
// silent overwrite could hide a soundness bug.
func (d *DB) Add(name string, m Mask) error {
	if name == "" {
		return fmt.Errorf("callee name must not be empty")
	}
	if old, ok := d.callees[name]; ok && old != m {
		return fmt.Errorf("conflicting summaries for callee %q: %v and %v", name, old, m)
	}
	d.callees[name] = m
	return nil
}

// AddBuiltin records a recognized safe builtin operator.
func (d *DB) AddBuiltin(name string) {
	d.builtins[name] = struct{}{}
}

// Lookup returns the summary for the given callee symbol.
func (d *DB) Lookup(name string) (Mask, bool) {
	m, ok := d.callees[name]
	return m, ok
}

// Builtin reports whether the symbol names a recognized safe builtin
// operator.
func (d *DB) Builtin(name string) bool {
	_, ok := d.builtins[name]
	return ok
}

// NumCallees returns the number of summarized callees.
func (d *DB) NumCallees() int {
	return len(d.callees)
}

// NumBuiltins returns the number of recognized builtins.
func (d *DB) NumBuiltins() int {
	return len(d.builtins)
}

// dbFileVersion is the only file format version understood.
const dbFileVersion = 1

// dbFile is the TOML layout of a summary database file:
//
//	version = 1
//	builtins = ["rt.math.abs"]
//
//	[[callee]]
//	name = "rt.list.append"
//	escapes = [0, 1]
type dbFile struct {
	Version  int           `toml:"version"`
	Builtins []string      `toml:"builtins"`
	Callees  []calleeEntry `toml:"callee"`
}

type calleeEntry struct {
	Name    string `toml:"name"`
	Escapes []int  `toml:"escapes"`
}

// LoadFile merges the entries of a TOML database file into the DB.
func (d *DB) LoadFile(path string) error {
	var f dbFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return fmt.Errorf("decoding summary database %q: %w", path, err)
	}
	if f.Version != dbFileVersion {
		return fmt.Errorf("summary database %q: unsupported version %d, want %d", path, f.Version, dbFileVersion)
	}
	for _, entry := range f.Callees {
		m, err := FromPositions(entry.Escapes)
		if err != nil {
			return fmt.Errorf("summary database %q: callee %q: %w", path, entry.Name, err)
		}
		if err := d.Add(entry.Name, m); err != nil {
			return fmt.Errorf("summary database %q: %w", path, err)
		}
	}
	for _, b := range f.Builtins {
		d.AddBuiltin(b)
	}
	return nil
}

// Load reads a single TOML database file into a fresh DB.
func Load(path string) (*DB, error) {
	d := NewDB()
	if err := d.LoadFile(path); err != nil {
		return nil, err
	}
	return d, nil
}
