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

package dataflow

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"stackvet.dev/stackvet/pkg/summary"
)

func TestBuilder(t *testing.T) {
	b := NewBuilder("demo")
	p0 := b.Param()
	p1 := b.Param()
	hold := b.Construct("demo:1", TypeRef{Name: "Hold"}, "Hold.init", External{Builtin: true})
	b.StoreField(hold, "next", p0)
	v := b.LoadField(hold, "next")
	count := b.IntConst(10)
	arr := b.Construct("demo:4", TypeRef{Name: "int[]", Array: true, FixedElem: true}, "", nil, count)
	b.StoreElem(arr, p1)
	e := b.LoadElem(arr)
	b.Singleton("Runtime")
	r := b.Variable(v)
	b.AddSource(r, e)
	b.Call("sink", Summarized{Mask: summary.MaskOf(0)}, r)
	b.Return(r)
	b.Throw(p1)

	f, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got, want := f.Name(), "demo"; got != want {
		t.Errorf("Name: got %q, want %q", got, want)
	}
	if got, want := f.NumNodes(), 14; got != want {
		t.Errorf("NumNodes: got %d, want %d", got, want)
	}

	ret, ok := f.Node(f.Return()).(*Variable)
	if !ok {
		t.Fatalf("return sentinel is %T, want *Variable", f.Node(f.Return()))
	}
	if diff := cmp.Diff([]NodeID{r}, ret.Sources); diff != "" {
		t.Errorf("return sentinel sources mismatch (-want +got):\n%s", diff)
	}
	throw, ok := f.Node(f.Throw()).(*Variable)
	if !ok {
		t.Fatalf("throw sentinel is %T, want *Variable", f.Node(f.Throw()))
	}
	if diff := cmp.Diff([]NodeID{p1}, throw.Sources); diff != "" {
		t.Errorf("throw sentinel sources mismatch (-want +got):\n%s", diff)
	}

	h, ok := f.Node(hold).(*New)
	if !ok {
		t.Fatalf("node %d is %T, want *New", hold, f.Node(hold))
	}
	if got, want := h.Site, SiteID("demo:1"); got != want {
		t.Errorf("construction site: got %q, want %q", got, want)
	}
	if h.Type.FixedArray() {
		t.Errorf("construction of %q reported as a fixed array", h.Type.Name)
	}
	a := f.Node(arr).(*New)
	if !a.Type.FixedArray() {
		t.Errorf("construction of %q not reported as a fixed array", a.Type.Name)
	}
	if diff := cmp.Diff([]NodeID{count}, a.Args); diff != "" {
		t.Errorf("array construction args mismatch (-want +got):\n%s", diff)
	}

	merged := f.Node(r).(*Variable)
	if diff := cmp.Diff([]NodeID{v, e}, merged.Sources); diff != "" {
		t.Errorf("AddSource result mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildErrors(t *testing.T) {
	for _, tc := range []struct {
		name  string
		build func(b *Builder)
		want  string
	}{
		{
			name: "dangling source",
			build: func(b *Builder) {
				b.Variable(99)
			},
			want: "references missing node 99",
		},
		{
			name: "dangling argument",
			build: func(b *Builder) {
				b.Call("f", nil, 7)
			},
			want: "references missing node 7",
		},
		{
			name: "dangling store value",
			build: func(b *Builder) {
				obj := b.Param()
				b.StoreField(obj, "f", 42)
			},
			want: "references missing node 42",
		},
		{
			name: "array construction without count",
			build: func(b *Builder) {
				b.Construct("s", TypeRef{Name: "byte[]", Array: true, FixedElem: true}, "", nil)
			},
			want: "missing the element count",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			b := NewBuilder("broken")
			tc.build(b)
			if _, err := b.Build(); err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("Build: got %v, want error containing %q", err, tc.want)
			}
		})
	}
}

func TestAddSourceNonVariable(t *testing.T) {
	b := NewBuilder("demo")
	c := b.IntConst(1)
	defer func() {
		if recover() == nil {
			t.Errorf("AddSource on a constant did not panic")
		}
	}()
	b.AddSource(c, c)
}

func TestModule(t *testing.T) {
	m := NewModule("mod")
	for _, name := range []string{"b", "a", "c"} {
		f, err := NewBuilder(name).Build()
		if err != nil {
			t.Fatalf("Build(%q): %v", name, err)
		}
		if err := m.AddFunction(f); err != nil {
			t.Fatalf("AddFunction(%q): %v", name, err)
		}
	}
	if got, want := m.NumFunctions(), 3; got != want {
		t.Errorf("NumFunctions: got %d, want %d", got, want)
	}

	var got []string
	for _, f := range m.Functions() {
		got = append(got, f.Name())
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, got); diff != "" {
		t.Errorf("Functions not sorted by identifier (-want +got):\n%s", diff)
	}

	if m.Function("b") == nil {
		t.Errorf("Function(b) returned nil")
	}
	if f := m.Function("nope"); f != nil {
		t.Errorf("Function(nope) returned %v, want nil", f)
	}

	dup, err := NewBuilder("a").Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := m.AddFunction(dup); err == nil {
		t.Errorf("AddFunction accepted a duplicate identifier")
	}
	anon, err := NewBuilder("").Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := m.AddFunction(anon); err == nil {
		t.Errorf("AddFunction accepted an empty identifier")
	}
}
