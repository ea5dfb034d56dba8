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

// Package escape decides which allocations may live on the stack.
//
// The analysis is local: each function's data-flow graph is classified
// on its own, with callees reduced to summaries. Every node starts
// provably confined and two kinds of facts move it toward escaping.
// Per-node rules handle the immediate cases: a singleton is reachable
// forever, a static store publishes its value, an opaque callee may
// retain its arguments. Coupling edges handle the transitive cases: a
// restrictive classification floods along them, so an escaping object
// drags along the values stored into it and a returned merge drags
// along its contributors. After two ordered flood passes, construction
// nodes still confined name the stack-eligible allocation sites.
//
// The pass trades precision for soundness. Anything unknown escapes,
// and only fixed arrays with a small provable element count are ever
// stack candidates: a wrong confinement verdict corrupts generated
// code, while a wrong escape verdict only costs a heap allocation.
package escape

import (
	"fmt"
	"time"

	"stackvet.dev/stackvet/pkg/dataflow"
	"stackvet.dev/stackvet/pkg/log"
	"stackvet.dev/stackvet/pkg/sync"
)

var (
	missingSummaryOnce   sync.Once
	missingSummaryLogger log.Logger
)

// warnMissingSummary reports a callee the analysis had to treat worst
// case. Modules with sparse summary coverage hit this once per call
// node, so the warnings are rate limited. The wrapper is built on
// first use so it attaches to the logger the command line configured
// rather than the process default.
func warnMissingSummary(target string) {
	missingSummaryOnce.Do(func() {
		missingSummaryLogger = log.BasicRateLimitedLogger(time.Minute)
	})
	missingSummaryLogger.Warningf("escape: no summary for callee %q, every argument is assumed to escape", target)
}

// analysis is the per-function state: one classification and one
// adjacency list per node, indexed densely by NodeID. An analysis is
// built, run, and discarded within a single AnalyzeFunction call.
type analysis struct {
	f    *dataflow.Function
	conf *Config

	// state holds the current classification per node. Merges are
	// monotone, states only ever become more restrictive.
	state []State

	// coupled[n] lists the nodes that must end up at least as
	// restrictive as n. Built once by evaluate and immutable during
	// propagation, which only mutates state.
	coupled [][]dataflow.NodeID

	constructions int
	opaqueCalls   int
}

func newAnalysis(f *dataflow.Function, conf *Config) *analysis {
	a := &analysis{
		f:       f,
		conf:    conf,
		state:   make([]State, f.NumNodes()),
		coupled: make([][]dataflow.NodeID, f.NumNodes()),
	}
	for i := range a.state {
		a.state[i] = NoEscape
	}
	return a
}

// merge lowers the node toward the more restrictive state.
func (a *analysis) merge(id dataflow.NodeID, s State) {
	a.state[id] = Merge(a.state[id], s)
}

// couple records an edge along which any restriction of from flows to
// to during propagation.
func (a *analysis) couple(from, to dataflow.NodeID) {
	a.coupled[from] = append(a.coupled[from], to)
}

// evaluate applies the per-node rules in id order. Rules only set
// states and record couplings, never read another node's current
// classification, so the outcome is independent of iteration order.
func (a *analysis) evaluate() {
	for _, n := range a.f.Nodes() {
		switch n := n.(type) {
		case *dataflow.Const:
			// Immediates hold no references.
		case *dataflow.Variable:
			// A restricted merge restricts every value it may have
			// come from.
			for _, src := range n.Sources {
				a.couple(n.ID(), src)
			}
		case *dataflow.New:
			a.evalCallArgs(&n.Call)
			a.evalConstruction(n)
		case *dataflow.Call:
			a.evalCallArgs(n)
		case *dataflow.Singleton:
			// Process-wide instances are reachable forever.
			a.merge(n.ID(), GlobalEscape)
		case *dataflow.LoadField:
			if n.Object != dataflow.NoNode {
				// The loaded value lives inside the object: the
				// object's escape covers it.
				a.couple(n.Object, n.ID())
			} else {
				a.merge(n.ID(), GlobalEscape)
			}
		case *dataflow.StoreField:
			if n.Object != dataflow.NoNode {
				// Storing into an escaping object publishes the
				// value. The reverse does not hold.
				a.couple(n.Object, n.Value)
			} else {
				a.merge(n.ID(), GlobalEscape)
				a.merge(n.Value, GlobalEscape)
			}
		case *dataflow.LoadElem:
			// An escaping element load aliases an element, which
			// conservatively makes the whole array escape.
			a.couple(n.ID(), n.Array)
		case *dataflow.StoreElem:
			a.couple(n.Array, n.Value)
		}
	}

	// Anything reaching a sentinel leaves the activation.
	a.merge(a.f.Return(), ArgEscape)
	a.merge(a.f.Throw(), ArgEscape)
}

// evalCallArgs classifies the arguments of a call by what is known
// about the callee.
func (a *analysis) evalCallArgs(c *dataflow.Call) {
	switch callee := a.resolveCallee(c).(type) {
	case dataflow.Summarized:
		for i, arg := range c.Args {
			if callee.Mask.Escapes(i) {
				a.merge(arg, ArgEscape)
			}
		}
	case dataflow.External:
		if callee.Builtin {
			// Recognized safe operator: arguments stay put.
			return
		}
		a.opaqueCalls++
		for _, arg := range c.Args {
			// The callee may retain any argument, and the result may
			// alias any argument.
			a.couple(arg, c.ID())
			a.merge(arg, ArgEscape)
		}
	default:
		// Nothing known about the target. Soundness demands the worst
		// case.
		warnMissingSummary(c.Target)
		a.opaqueCalls++
		for _, arg := range c.Args {
			a.merge(arg, ArgEscape)
		}
	}
}

// resolveCallee produces the best available description of the call's
// target: the inline one if the frontend attached it, otherwise
// whatever the summary database knows about the target symbol.
func (a *analysis) resolveCallee(c *dataflow.Call) dataflow.Callee {
	if c.Callee != nil {
		return c.Callee
	}
	db := a.conf.summaries()
	if db == nil {
		return nil
	}
	if m, ok := db.Lookup(c.Target); ok {
		return dataflow.Summarized{Mask: m}
	}
	if db.Builtin(c.Target) {
		return dataflow.External{Builtin: true}
	}
	return nil
}

// evalConstruction classifies the construction node itself. Only fixed
// arrays with a small provable element count may stay on the stack;
// every other construction is forced global by this local pass.
func (a *analysis) evalConstruction(n *dataflow.New) {
	a.constructions++
	if !n.Type.FixedArray() {
		a.merge(n.ID(), GlobalEscape)
		return
	}
	count, ok := a.resolveCount(n.Args[0], nil)
	if !ok || count < 0 || count > a.conf.arrayLimit() {
		a.merge(n.ID(), GlobalEscape)
	}
}

// resolveCount constant-folds an element count. Literal integers
// resolve directly and a merge with exactly one source resolves to
// that source. Anything else stays unresolved, including source
// cycles, which the seen set breaks.
func (a *analysis) resolveCount(id dataflow.NodeID, seen map[dataflow.NodeID]bool) (int64, bool) {
	switch n := a.f.Node(id).(type) {
	case *dataflow.Const:
		if n.Integer {
			return n.Value, true
		}
	case *dataflow.Variable:
		if len(n.Sources) != 1 || seen[id] {
			return 0, false
		}
		if seen == nil {
			seen = make(map[dataflow.NodeID]bool)
		}
		seen[id] = true
		return a.resolveCount(n.Sources[0], seen)
	}
	return 0, false
}

// propagate floods classifications along the coupling edges to the
// least fixed point. The global flood must finish before the arg
// flood, so that a node reachable from seeds of both kinds ends at the
// more restrictive state.
func (a *analysis) propagate() {
	a.flood(GlobalEscape)
	a.flood(ArgEscape)
}

// flood runs one depth-first pass from every node currently holding
// exactly s, merging s into everything reachable. Seeds are scanned in
// ascending id order and each node is visited at most once, which
// keeps the traversal deterministic and terminates it on cyclic
// graphs. An explicit stack keeps large functions off the goroutine
// stack.
func (a *analysis) flood(s State) {
	visited := make([]bool, len(a.state))
	var stack []dataflow.NodeID
	for id := range a.state {
		if a.state[id] != s || visited[id] {
			continue
		}
		visited[id] = true
		stack = append(stack[:0], dataflow.NodeID(id))
		for len(stack) > 0 {
			n := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			a.merge(n, s)
			for _, next := range a.coupled[n] {
				if !visited[next] {
					visited[next] = true
					stack = append(stack, next)
				}
			}
		}
	}
}

// extract returns the sites of constructions still provably confined,
// in node order. Constructions without a site cannot be traced back to
// a source construct; they are skipped and simply stay on the heap.
func (a *analysis) extract() []dataflow.SiteID {
	var sites []dataflow.SiteID
	for id, s := range a.state {
		if s != NoEscape {
			continue
		}
		n, ok := a.f.Node(dataflow.NodeID(id)).(*dataflow.New)
		if !ok || n.Site == "" {
			continue
		}
		sites = append(sites, n.Site)
	}
	return sites
}

// FunctionResult is the outcome of analyzing one function.
type FunctionResult struct {
	// Function is the analyzed function's identifier.
	Function string

	// Confined lists the construction sites proven confined to the
	// activation, in node order.
	Confined []dataflow.SiteID

	// Stats summarizes the function for reporting.
	Stats FunctionStat
}

// AnalyzeFunction classifies every node of f and returns the
// construction sites proven confined. It never mutates f and is safe
// to call concurrently for distinct functions.
func AnalyzeFunction(f *dataflow.Function, conf *Config) (*FunctionResult, error) {
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("function %q: %w", f.Name(), err)
	}
	a := newAnalysis(f, conf)
	a.evaluate()
	a.propagate()
	sites := a.extract()

	conf.logger().Debugf("escape: function %q: %d nodes, %d constructions, %d confined", f.Name(), f.NumNodes(), a.constructions, len(sites))

	return &FunctionResult{
		Function: f.Name(),
		Confined: sites,
		Stats: FunctionStat{
			Function:      f.Name(),
			Nodes:         f.NumNodes(),
			Constructions: a.constructions,
			Confined:      len(sites),
			OpaqueCalls:   a.opaqueCalls,
		},
	}, nil
}
