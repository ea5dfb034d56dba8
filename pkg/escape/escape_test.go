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
	"testing"

	"github.com/google/go-cmp/cmp"

	"stackvet.dev/stackvet/pkg/dataflow"
	"stackvet.dev/stackvet/pkg/summary"
)

// fixedArray is a stack-placement candidate type.
var fixedArray = dataflow.TypeRef{Name: "int[]", Array: true, FixedElem: true}

// safeNew is the callee description of a trusted allocator intrinsic.
var safeNew = dataflow.External{Builtin: true}

func build(t *testing.T, b *dataflow.Builder) *dataflow.Function {
	t.Helper()
	f, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return f
}

// run drives the per-function pipeline and returns the analysis so
// tests can inspect final classifications.
func run(t *testing.T, f *dataflow.Function, conf *Config) *analysis {
	t.Helper()
	a := newAnalysis(f, conf)
	a.evaluate()
	a.propagate()
	return a
}

func checkSites(t *testing.T, a *analysis, want ...dataflow.SiteID) {
	t.Helper()
	got := a.extract()
	if len(want) == 0 {
		if len(got) != 0 {
			t.Errorf("extract: got %v, want none", got)
		}
		return
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("extract mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeOrder(t *testing.T) {
	for _, tc := range []struct {
		a, b, want State
	}{
		{GlobalEscape, ArgEscape, GlobalEscape},
		{ArgEscape, GlobalEscape, GlobalEscape},
		{GlobalEscape, NoEscape, GlobalEscape},
		{NoEscape, GlobalEscape, GlobalEscape},
		{ArgEscape, NoEscape, ArgEscape},
		{NoEscape, ArgEscape, ArgEscape},
		{NoEscape, NoEscape, NoEscape},
	} {
		if got := Merge(tc.a, tc.b); got != tc.want {
			t.Errorf("Merge(%v, %v): got %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{
		GlobalEscape: "global escape",
		ArgEscape:    "arg escape",
		NoEscape:     "no escape",
	} {
		if got := s.String(); got != want {
			t.Errorf("String(%d): got %q, want %q", int32(s), got, want)
		}
	}
	defer func() {
		if recover() == nil {
			t.Errorf("String on an unknown state did not panic")
		}
	}()
	_ = State(99).String()
}

func TestSingletonEscapes(t *testing.T) {
	b := dataflow.NewBuilder("f")
	s := b.Singleton("Runtime")
	a := run(t, build(t, b), nil)
	if got := a.state[s]; got != GlobalEscape {
		t.Errorf("uncoupled singleton: got %v, want %v", got, GlobalEscape)
	}
}

// TestMonotonicity feeds a global-escaping node into the return
// sentinel: the later arg flood must not demote it.
func TestMonotonicity(t *testing.T) {
	b := dataflow.NewBuilder("f")
	s := b.Singleton("Runtime")
	b.Return(s)
	a := run(t, build(t, b), nil)
	if got := a.state[s]; got != GlobalEscape {
		t.Errorf("returned singleton: got %v, want %v", got, GlobalEscape)
	}
}

// TestGlobalFloodsBeforeArg builds a node seeded global with an edge
// to a node seeded arg: the target must end global, which depends on
// the global flood running first.
func TestGlobalFloodsBeforeArg(t *testing.T) {
	b := dataflow.NewBuilder("f")
	obj := b.LoadField(dataflow.NoNode, "Registry")
	val := b.Param()
	b.Call("unknown", nil, val)
	b.StoreField(obj, "slot", val)
	a := run(t, build(t, b), nil)
	if got := a.state[obj]; got != GlobalEscape {
		t.Fatalf("static field load: got %v, want %v", got, GlobalEscape)
	}
	if got := a.state[val]; got != GlobalEscape {
		t.Errorf("value stored into a global object: got %v, want %v", got, GlobalEscape)
	}
}

func TestSentinelForcing(t *testing.T) {
	for _, tc := range []struct {
		name string
		emit func(b *dataflow.Builder, id dataflow.NodeID)
	}{
		{"return", func(b *dataflow.Builder, id dataflow.NodeID) { b.Return(id) }},
		{"throw", func(b *dataflow.Builder, id dataflow.NodeID) { b.Throw(id) }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			b := dataflow.NewBuilder("f")
			count := b.IntConst(8)
			arr := b.Construct("f.j:1", fixedArray, "", safeNew, count)
			tc.emit(b, arr)
			a := run(t, build(t, b), nil)
			if got := a.state[arr]; got != ArgEscape {
				t.Errorf("sole %s contributor: got %v, want %v", tc.name, got, ArgEscape)
			}
			checkSites(t, a)
		})
	}
}

func TestArrayEligibility(t *testing.T) {
	for _, tc := range []struct {
		name     string
		conf     *Config
		count    func(b *dataflow.Builder) dataflow.NodeID
		want     State
		wantSite bool
	}{
		{
			name:     "small literal",
			count:    func(b *dataflow.Builder) dataflow.NodeID { return b.IntConst(10) },
			want:     NoEscape,
			wantSite: true,
		},
		{
			name:     "zero length",
			count:    func(b *dataflow.Builder) dataflow.NodeID { return b.IntConst(0) },
			want:     NoEscape,
			wantSite: true,
		},
		{
			name:     "limit exactly",
			count:    func(b *dataflow.Builder) dataflow.NodeID { return b.IntConst(DefaultArrayLimit) },
			want:     NoEscape,
			wantSite: true,
		},
		{
			name:  "just over limit",
			count: func(b *dataflow.Builder) dataflow.NodeID { return b.IntConst(DefaultArrayLimit + 1) },
			want:  GlobalEscape,
		},
		{
			name:  "huge literal",
			count: func(b *dataflow.Builder) dataflow.NodeID { return b.IntConst(1000) },
			want:  GlobalEscape,
		},
		{
			name:  "negative literal",
			count: func(b *dataflow.Builder) dataflow.NodeID { return b.IntConst(-1) },
			want:  GlobalEscape,
		},
		{
			name:  "non-integer constant",
			count: func(b *dataflow.Builder) dataflow.NodeID { return b.Const() },
			want:  GlobalEscape,
		},
		{
			name: "single-source merge",
			count: func(b *dataflow.Builder) dataflow.NodeID {
				return b.Variable(b.IntConst(10))
			},
			want:     NoEscape,
			wantSite: true,
		},
		{
			name: "merge chain",
			count: func(b *dataflow.Builder) dataflow.NodeID {
				return b.Variable(b.Variable(b.IntConst(10)))
			},
			want:     NoEscape,
			wantSite: true,
		},
		{
			name: "multi-source merge",
			count: func(b *dataflow.Builder) dataflow.NodeID {
				return b.Variable(b.IntConst(10), b.IntConst(12))
			},
			want: GlobalEscape,
		},
		{
			name: "merge cycle",
			count: func(b *dataflow.Builder) dataflow.NodeID {
				v := b.Param()
				b.AddSource(v, v)
				return v
			},
			want: GlobalEscape,
		},
		{
			name:  "tightened limit",
			conf:  &Config{ArrayLimit: 4},
			count: func(b *dataflow.Builder) dataflow.NodeID { return b.IntConst(10) },
			want:  GlobalEscape,
		},
		{
			name:     "raised limit",
			conf:     &Config{ArrayLimit: 2048},
			count:    func(b *dataflow.Builder) dataflow.NodeID { return b.IntConst(1000) },
			want:     NoEscape,
			wantSite: true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			b := dataflow.NewBuilder("f")
			count := tc.count(b)
			arr := b.Construct("f.j:1", fixedArray, "", safeNew, count)
			a := run(t, build(t, b), tc.conf)
			if got := a.state[arr]; got != tc.want {
				t.Errorf("construction: got %v, want %v", got, tc.want)
			}
			if tc.wantSite {
				checkSites(t, a, "f.j:1")
			} else {
				checkSites(t, a)
			}
		})
	}
}

// TestConstructionNeverEligible covers the non-array construction
// kinds: they are forced global even with zero couplings.
func TestConstructionNeverEligible(t *testing.T) {
	for _, tc := range []struct {
		name string
		typ  dataflow.TypeRef
	}{
		{"plain object", dataflow.TypeRef{Name: "Box"}},
		{"reference-element array", dataflow.TypeRef{Name: "Box[]", Array: true}},
		{"fixed elements but not an array", dataflow.TypeRef{Name: "Pod", FixedElem: true}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			b := dataflow.NewBuilder("f")
			n := b.Construct("f.j:1", tc.typ, "Box.init", safeNew)
			a := run(t, build(t, b), nil)
			if got := a.state[n]; got != GlobalEscape {
				t.Errorf("construction: got %v, want %v", got, GlobalEscape)
			}
			checkSites(t, a)
		})
	}
}

// TestWriteCouplingDirection pins the one-directional store rule: the
// object's escape covers the stored value, never the reverse.
func TestWriteCouplingDirection(t *testing.T) {
	t.Run("object drags field value", func(t *testing.T) {
		b := dataflow.NewBuilder("f")
		obj := b.LoadField(dataflow.NoNode, "Registry")
		count := b.IntConst(8)
		val := b.Construct("f.j:1", fixedArray, "", safeNew, count)
		b.StoreField(obj, "slot", val)
		a := run(t, build(t, b), nil)
		if got := a.state[val]; got != GlobalEscape {
			t.Errorf("stored value: got %v, want %v", got, GlobalEscape)
		}
		checkSites(t, a)
	})
	t.Run("field value does not drag object", func(t *testing.T) {
		b := dataflow.NewBuilder("f")
		count := b.IntConst(8)
		obj := b.Construct("f.j:1", fixedArray, "", safeNew, count)
		val := b.LoadField(dataflow.NoNode, "Registry")
		b.StoreField(obj, "slot", val)
		a := run(t, build(t, b), nil)
		if got := a.state[obj]; got != NoEscape {
			t.Errorf("written-into object: got %v, want %v", got, NoEscape)
		}
		checkSites(t, a, "f.j:1")
	})
	t.Run("array drags element value", func(t *testing.T) {
		b := dataflow.NewBuilder("f")
		arr := b.LoadField(dataflow.NoNode, "Registry")
		count := b.IntConst(8)
		val := b.Construct("f.j:1", fixedArray, "", safeNew, count)
		b.StoreElem(arr, val)
		a := run(t, build(t, b), nil)
		if got := a.state[val]; got != GlobalEscape {
			t.Errorf("stored element: got %v, want %v", got, GlobalEscape)
		}
		checkSites(t, a)
	})
	t.Run("element value does not drag array", func(t *testing.T) {
		b := dataflow.NewBuilder("f")
		count := b.IntConst(8)
		arr := b.Construct("f.j:1", fixedArray, "", safeNew, count)
		val := b.LoadField(dataflow.NoNode, "Registry")
		b.StoreElem(arr, val)
		a := run(t, build(t, b), nil)
		if got := a.state[arr]; got != NoEscape {
			t.Errorf("written-into array: got %v, want %v", got, NoEscape)
		}
		checkSites(t, a, "f.j:1")
	})
}

func TestStaticStore(t *testing.T) {
	b := dataflow.NewBuilder("f")
	count := b.IntConst(8)
	val := b.Construct("f.j:1", fixedArray, "", safeNew, count)
	st := b.StoreField(dataflow.NoNode, "Cache", val)
	a := run(t, build(t, b), nil)
	if got := a.state[val]; got != GlobalEscape {
		t.Errorf("statically stored value: got %v, want %v", got, GlobalEscape)
	}
	if got := a.state[st]; got != GlobalEscape {
		t.Errorf("static store node: got %v, want %v", got, GlobalEscape)
	}
	checkSites(t, a)
}

func TestFieldLoadCouplesReceiver(t *testing.T) {
	b := dataflow.NewBuilder("f")
	obj := b.Param()
	b.Call("unknown", nil, obj)
	v := b.LoadField(obj, "data")
	a := run(t, build(t, b), nil)
	if got := a.state[v]; got != ArgEscape {
		t.Errorf("value loaded from an escaping object: got %v, want %v", got, ArgEscape)
	}
}

// TestElementLoadCouplesArray pins the reversed read rule: an escaping
// element load drags the array, not the other way around.
func TestElementLoadCouplesArray(t *testing.T) {
	b := dataflow.NewBuilder("f")
	count := b.IntConst(8)
	arr := b.Construct("f.j:1", fixedArray, "", safeNew, count)
	e := b.LoadElem(arr)
	b.Call("unknown", nil, e)
	a := run(t, build(t, b), nil)
	if got := a.state[arr]; got != ArgEscape {
		t.Errorf("array with an escaping element load: got %v, want %v", got, ArgEscape)
	}
	checkSites(t, a)
}

func TestOpaqueCallAliasing(t *testing.T) {
	b := dataflow.NewBuilder("f")
	g := b.LoadField(dataflow.NoNode, "Registry")
	call := b.Call("transform", dataflow.External{}, g)
	a := run(t, build(t, b), nil)
	if got := a.state[call]; got != GlobalEscape {
		t.Errorf("opaque call fed a global argument: got %v, want %v", got, GlobalEscape)
	}
}

func TestCalleeSummaries(t *testing.T) {
	db := summary.NewDB()
	if err := db.Add("keep", 0); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := db.Add("leak", summary.MaskOf(0)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	db.AddBuiltin("intrinsic")
	conf := &Config{Summaries: db}

	for _, tc := range []struct {
		name     string
		target   string
		callee   dataflow.Callee
		want     State
		wantSite bool
	}{
		{"database holds nothing escapes", "keep", nil, NoEscape, true},
		{"database leaks the argument", "leak", nil, ArgEscape, false},
		{"database marks a builtin", "intrinsic", nil, NoEscape, true},
		{"database miss is worst case", "mystery", nil, ArgEscape, false},
		{"inline summary beats the database", "leak", dataflow.Summarized{}, NoEscape, true},
		{"inline external is opaque", "keep", dataflow.External{}, ArgEscape, false},
		{"inline builtin is safe", "mystery", dataflow.External{Builtin: true}, NoEscape, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			b := dataflow.NewBuilder("f")
			count := b.IntConst(8)
			arr := b.Construct("f.j:1", fixedArray, "", safeNew, count)
			b.Call(tc.target, tc.callee, arr)
			a := run(t, build(t, b), conf)
			if got := a.state[arr]; got != tc.want {
				t.Errorf("argument: got %v, want %v", got, tc.want)
			}
			if tc.wantSite {
				checkSites(t, a, "f.j:1")
			} else {
				checkSites(t, a)
			}
		})
	}
}

func TestSummaryPositions(t *testing.T) {
	b := dataflow.NewBuilder("f")
	c0 := b.IntConst(8)
	a0 := b.Construct("f.j:1", fixedArray, "", safeNew, c0)
	c1 := b.IntConst(8)
	a1 := b.Construct("f.j:2", fixedArray, "", safeNew, c1)
	b.Call("mixed", dataflow.Summarized{Mask: summary.MaskOf(1)}, a0, a1)
	a := run(t, build(t, b), nil)
	if got := a.state[a0]; got != NoEscape {
		t.Errorf("argument 0: got %v, want %v", got, NoEscape)
	}
	if got := a.state[a1]; got != ArgEscape {
		t.Errorf("argument 1: got %v, want %v", got, ArgEscape)
	}
	checkSites(t, a, "f.j:1")
}

func TestAnalyzeFunctionIdempotent(t *testing.T) {
	b := dataflow.NewBuilder("f")
	count := b.IntConst(8)
	kept := b.Construct("f.j:1", fixedArray, "", safeNew, count)
	b.StoreElem(kept, b.Param())
	count2 := b.IntConst(8)
	leaked := b.Construct("f.j:2", fixedArray, "", safeNew, count2)
	b.Return(leaked)
	b.Construct("f.j:3", dataflow.TypeRef{Name: "Box"}, "Box.init", safeNew)
	f := build(t, b)

	first, err := AnalyzeFunction(f, nil)
	if err != nil {
		t.Fatalf("AnalyzeFunction: %v", err)
	}
	second, err := AnalyzeFunction(f, nil)
	if err != nil {
		t.Fatalf("AnalyzeFunction: %v", err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("repeated analysis diverged (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff([]dataflow.SiteID{"f.j:1"}, first.Confined); diff != "" {
		t.Errorf("confined sites mismatch (-want +got):\n%s", diff)
	}
	wantStats := FunctionStat{Function: "f", Nodes: f.NumNodes(), Constructions: 3, Confined: 1}
	if diff := cmp.Diff(wantStats, first.Stats); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
}

// TestBuilderDocumentEquivalence analyzes the same function built
// programmatically and decoded from its wire form: the two ingestion
// paths must produce identical results.
func TestBuilderDocumentEquivalence(t *testing.T) {
	b := dataflow.NewBuilder("same")
	p := b.Param()
	count := b.IntConst(8)
	arr := b.Construct("same.j:1", fixedArray, "", safeNew, count)
	b.Construct("same.j:2", dataflow.TypeRef{Name: "Box"}, "Box.init", safeNew)
	b.StoreElem(arr, p)
	b.LoadElem(arr)
	b.Return(p)
	built := build(t, b)

	wireCount := int64(8)
	wireArr, wireVal := int32(2), int32(0)
	m, err := dataflow.Decode(&dataflow.Document{
		Module: "mod",
		Functions: []dataflow.FunctionDoc{
			{
				Name: "same",
				Nodes: []dataflow.NodeDoc{
					{Kind: "param"},
					{Kind: "const", Int: &wireCount},
					{Kind: "new", Type: &dataflow.TypeDoc{Name: "int[]", Array: true, Fixed: true}, Site: "same.j:1", Args: []int32{1}, External: true, Builtin: true},
					{Kind: "new", Type: &dataflow.TypeDoc{Name: "Box"}, Site: "same.j:2", Target: "Box.init", External: true, Builtin: true},
					{Kind: "storeelem", Array: &wireArr, Value: &wireVal},
					{Kind: "loadelem", Array: &wireArr},
				},
				Return: []int32{0},
			},
		},
	})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	decoded := m.Function("same")
	if decoded == nil {
		t.Fatalf("function missing after decode")
	}

	fromBuilder, err := AnalyzeFunction(built, nil)
	if err != nil {
		t.Fatalf("AnalyzeFunction(built): %v", err)
	}
	fromWire, err := AnalyzeFunction(decoded, nil)
	if err != nil {
		t.Fatalf("AnalyzeFunction(decoded): %v", err)
	}
	if diff := cmp.Diff(fromBuilder, fromWire); diff != "" {
		t.Errorf("builder and wire analyses diverged (-builder +wire):\n%s", diff)
	}
	if diff := cmp.Diff([]dataflow.SiteID{"same.j:1"}, fromBuilder.Confined); diff != "" {
		t.Errorf("confined sites mismatch (-want +got):\n%s", diff)
	}
}

func TestConfigDefaults(t *testing.T) {
	var c *Config
	if got := c.arrayLimit(); got != DefaultArrayLimit {
		t.Errorf("nil arrayLimit: got %d, want %d", got, DefaultArrayLimit)
	}
	if got := c.workers(); got < 1 {
		t.Errorf("nil workers: got %d, want at least 1", got)
	}
	if c.logger() == nil {
		t.Errorf("nil logger: got nil")
	}
	if c.summaries() != nil {
		t.Errorf("nil summaries: got %v, want nil", c.summaries())
	}

	c = &Config{ArrayLimit: 10, Workers: 3}
	if got := c.arrayLimit(); got != 10 {
		t.Errorf("arrayLimit: got %d, want 10", got)
	}
	if got := c.workers(); got != 3 {
		t.Errorf("workers: got %d, want 3", got)
	}
}
