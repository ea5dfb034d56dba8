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

// Package lifetime records per-site allocation verdicts.
//
// The analysis proves properties about allocation sites, not nodes: a
// site that never leaks its frame is recorded as Confined, and later
// pipeline stages use the map to rewrite those allocations. Verdicts
// are write-once; a second verdict for the same site indicates the
// producer analyzed a function twice and is always an error.
package lifetime

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/google/btree"

	"stackvet.dev/stackvet/pkg/dataflow"
	"stackvet.dev/stackvet/pkg/sync"
)

// Verdict is the proven lifetime property of an allocation site.
type Verdict int32

const (
	// Confined marks an allocation that never outlives the frame of
	// the function that performed it.
	Confined Verdict = iota
)

// String implements fmt.Stringer.String.
func (v Verdict) String() string {
	switch v {
	case Confined:
		return "confined"
	default:
		panic(fmt.Sprintf("unknown verdict %d", v))
	}
}

// MarshalJSON implements json.Marshaler.MarshalJSON.
func (v Verdict) MarshalJSON() ([]byte, error) {
	switch v {
	case Confined:
		return []byte(`"confined"`), nil
	default:
		return nil, fmt.Errorf("unknown verdict %d", v)
	}
}

// UnmarshalJSON implements json.Unmarshaler.UnmarshalJSON. It accepts
// both string and numeric forms.
func (v *Verdict) UnmarshalJSON(b []byte) error {
	switch s := strings.ToLower(strings.Trim(string(b), `"`)); s {
	case "0", "confined":
		*v = Confined
	default:
		return fmt.Errorf("unknown verdict %q", s)
	}
	return nil
}

// Entry is one site verdict.
type Entry struct {
	Site    dataflow.SiteID `json:"site"`
	Verdict Verdict         `json:"verdict"`
}

// mapDegree is the branching factor of the verdict tree.
const mapDegree = 16

// Map holds site verdicts ordered by site, so traversal order never
// depends on insertion order. It is safe for concurrent use.
type Map struct {
	mu      sync.Mutex
	entries *btree.BTreeG[Entry]
}

// NewMap returns an empty verdict map.
func NewMap() *Map {
	return &Map{
		entries: btree.NewG(mapDegree, func(a, b Entry) bool { return a.Site < b.Site }),
	}
}

// Record adds a verdict for site. Sites must be non-empty and may
// receive at most one verdict.
func (lm *Map) Record(site dataflow.SiteID, v Verdict) error {
	if site == "" {
		return fmt.Errorf("allocation site must not be empty")
	}
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if _, ok := lm.entries.Get(Entry{Site: site}); ok {
		return fmt.Errorf("site %q already has a verdict", site)
	}
	lm.entries.ReplaceOrInsert(Entry{Site: site, Verdict: v})
	return nil
}

// Lookup returns the verdict for site, if any.
func (lm *Map) Lookup(site dataflow.SiteID) (Verdict, bool) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	e, ok := lm.entries.Get(Entry{Site: site})
	return e.Verdict, ok
}

// Len returns the number of recorded verdicts.
func (lm *Map) Len() int {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return lm.entries.Len()
}

// Ascend calls fn for each entry in ascending site order until fn
// returns false.
func (lm *Map) Ascend(fn func(Entry) bool) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.entries.Ascend(btree.ItemIteratorG[Entry](fn))
}

// Entries returns a snapshot of all verdicts in ascending site order.
func (lm *Map) Entries() []Entry {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	out := make([]Entry, 0, lm.entries.Len())
	lm.entries.Ascend(func(e Entry) bool {
		out = append(out, e)
		return true
	})
	return out
}

// WriteVerdictsToFile writes the verdict map to the given path.
func WriteVerdictsToFile(lm *Map, path string) error {
	content, err := WriteVerdictsToBytes(lm)
	if err != nil {
		return err
	}
	return os.WriteFile(path, content, 0644)
}

// WriteVerdictsToBytes serializes the verdict map as a JSON array in
// ascending site order.
func WriteVerdictsToBytes(lm *Map) ([]byte, error) {
	return json.Marshal(lm.Entries())
}

// ExtractVerdictsFromFile loads a verdict map from the given path.
func ExtractVerdictsFromFile(path string) (*Map, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading verdicts: %w", err)
	}
	return ExtractVerdictsFromBytes(content)
}

// ExtractVerdictsFromBytes loads a verdict map from serialized form.
func ExtractVerdictsFromBytes(content []byte) (*Map, error) {
	var entries []Entry
	if err := json.Unmarshal(content, &entries); err != nil {
		return nil, fmt.Errorf("decoding verdicts: %w", err)
	}
	lm := NewMap()
	for _, e := range entries {
		if err := lm.Record(e.Site, e.Verdict); err != nil {
			return nil, err
		}
	}
	return lm, nil
}
