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
	"fmt"
)

// Function is one function body: a dense node slice plus the return and
// throw sentinels. Functions are immutable once built and safe for
// concurrent readers.
type Function struct {
	name  string
	nodes []Node
	ret   NodeID
	throw NodeID
}

// Name returns the function identifier.
func (f *Function) Name() string { return f.name }

// NumNodes returns the number of nodes.
func (f *Function) NumNodes() int { return len(f.nodes) }

// Node returns the node with the given id. The id must be valid.
func (f *Function) Node(id NodeID) Node { return f.nodes[id] }

// Nodes returns the node slice, in id order. Callers must not mutate
// it.
func (f *Function) Nodes() []Node { return f.nodes }

// Return returns the id of the return sentinel, a Variable holding
// every returned value.
func (f *Function) Return() NodeID { return f.ret }

// Throw returns the id of the throw sentinel, a Variable holding every
// thrown value.
func (f *Function) Throw() NodeID { return f.throw }

// Validate checks the structural integrity of the function: every node
// reference must resolve, sentinels must be Variables, and array
// constructions must carry their element count. Analyses rely on
// Validate so they can index nodes without further checks.
func (f *Function) Validate() error {
	inRange := func(id NodeID) bool {
		return id >= 0 && int(id) < len(f.nodes)
	}
	checkRef := func(at NodeID, what string, id NodeID) error {
		if !inRange(id) {
			return fmt.Errorf("node %d: %s references missing node %d", at, what, id)
		}
		return nil
	}

	for _, n := range f.nodes {
		switch n := n.(type) {
		case *Const, *Singleton:
			// No references.
		case *Variable:
			for _, src := range n.Sources {
				if err := checkRef(n.ID(), "source", src); err != nil {
					return err
				}
			}
		case *New:
			for _, arg := range n.Args {
				if err := checkRef(n.ID(), "argument", arg); err != nil {
					return err
				}
			}
			if n.Type.FixedArray() && len(n.Args) == 0 {
				return fmt.Errorf("node %d: array construction of %s missing the element count argument", n.ID(), n.Type.Name)
			}
		case *Call:
			for _, arg := range n.Args {
				if err := checkRef(n.ID(), "argument", arg); err != nil {
					return err
				}
			}
		case *LoadField:
			if n.Object != NoNode {
				if err := checkRef(n.ID(), "object", n.Object); err != nil {
					return err
				}
			}
		case *StoreField:
			if n.Object != NoNode {
				if err := checkRef(n.ID(), "object", n.Object); err != nil {
					return err
				}
			}
			if err := checkRef(n.ID(), "value", n.Value); err != nil {
				return err
			}
		case *LoadElem:
			if err := checkRef(n.ID(), "array", n.Array); err != nil {
				return err
			}
		case *StoreElem:
			if err := checkRef(n.ID(), "array", n.Array); err != nil {
				return err
			}
			if err := checkRef(n.ID(), "value", n.Value); err != nil {
				return err
			}
		default:
			return fmt.Errorf("node %d: unknown node kind %T", n.ID(), n)
		}
	}

	for _, sentinel := range []struct {
		what string
		id   NodeID
	}{
		{"return sentinel", f.ret},
		{"throw sentinel", f.throw},
	} {
		if !inRange(sentinel.id) {
			return fmt.Errorf("%s %d out of range", sentinel.what, sentinel.id)
		}
		if _, ok := f.nodes[sentinel.id].(*Variable); !ok {
			return fmt.Errorf("%s %d is not a variable node", sentinel.what, sentinel.id)
		}
	}
	return nil
}

// Module is a set of functions keyed by identifier.
type Module struct {
	name  string
	funcs map[string]*Function
}

// NewModule returns an empty module with the given name.
func NewModule(name string) *Module {
	return &Module{
		name:  name,
		funcs: make(map[string]*Function),
	}
}

// Name returns the module name.
func (m *Module) Name() string { return m.name }

// NumFunctions returns the number of functions.
func (m *Module) NumFunctions() int { return len(m.funcs) }

// AddFunction adds a function to the module. Function identifiers must
// be unique.
func (m *Module) AddFunction(f *Function) error {
	if f.name == "" {
		return fmt.Errorf("function identifier must not be empty")
	}
	if _, ok := m.funcs[f.name]; ok {
		return fmt.Errorf("duplicate function %q", f.name)
	}
	m.funcs[f.name] = f
	return nil
}

// Function returns the named function, or nil.
func (m *Module) Function(name string) *Function {
	return m.funcs[name]
}

// Functions returns all functions sorted by identifier, so module-wide
// iteration is deterministic.
func (m *Module) Functions() []*Function {
	fns := make([]*Function, 0, len(m.funcs))
	for _, name := range sortedKeys(m.funcs) {
		fns = append(fns, m.funcs[name])
	}
	return fns
}
