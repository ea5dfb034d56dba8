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

// Builder constructs a Function node by node. Methods return the new
// node's id; ids may be referenced before the target node exists (loop
// variables), since Build validates all references at the end.
type Builder struct {
	name   string
	nodes  []Node
	rets   []NodeID
	throws []NodeID
}

// NewBuilder returns a builder for a function with the given
// identifier.
func NewBuilder(name string) *Builder {
	return &Builder{name: name}
}

func (b *Builder) append(n Node) NodeID {
	id := NodeID(len(b.nodes))
	b.nodes = append(b.nodes, n)
	return id
}

// IntConst adds an integer constant.
func (b *Builder) IntConst(value int64) NodeID {
	return b.append(&Const{node: node{NodeID(len(b.nodes))}, Value: value, Integer: true})
}

// Const adds a non-integer immediate value.
func (b *Builder) Const() NodeID {
	return b.append(&Const{node: node{NodeID(len(b.nodes))}})
}

// Param adds a parameter: a variable with no in-function sources.
func (b *Builder) Param() NodeID {
	return b.append(&Variable{node: node{NodeID(len(b.nodes))}})
}

// Variable adds a control-flow merge over the given sources.
func (b *Builder) Variable(sources ...NodeID) NodeID {
	return b.append(&Variable{node: node{NodeID(len(b.nodes))}, Sources: sources})
}

// AddSource appends a source to an existing Variable, for loops whose
// merged value is produced after the merge point.
func (b *Builder) AddSource(v NodeID, src NodeID) {
	n, ok := b.nodes[v].(*Variable)
	if !ok {
		panic(fmt.Sprintf("AddSource: node %d is %T, not a variable", v, b.nodes[v]))
	}
	n.Sources = append(n.Sources, src)
}

// Call adds a call node. callee may be nil if nothing is known about
// the target.
func (b *Builder) Call(target string, callee Callee, args ...NodeID) NodeID {
	return b.append(&Call{
		node:   node{NodeID(len(b.nodes))},
		Target: target,
		Args:   args,
		Callee: callee,
	})
}

// Construct adds a construction of typ originating at site. For
// fixed-size-element array types the first argument is the requested
// element count.
func (b *Builder) Construct(site SiteID, typ TypeRef, target string, callee Callee, args ...NodeID) NodeID {
	return b.append(&New{
		Call: Call{
			node:   node{NodeID(len(b.nodes))},
			Target: target,
			Args:   args,
			Callee: callee,
		},
		Type: typ,
		Site: site,
	})
}

// Singleton adds a reference to a process-wide unique instance.
func (b *Builder) Singleton(name string) NodeID {
	return b.append(&Singleton{node: node{NodeID(len(b.nodes))}, Name: name})
}

// LoadField adds a field read. object is NoNode for static fields.
func (b *Builder) LoadField(object NodeID, field string) NodeID {
	return b.append(&LoadField{node: node{NodeID(len(b.nodes))}, Object: object, Field: field})
}

// StoreField adds a field write. object is NoNode for static fields.
func (b *Builder) StoreField(object NodeID, field string, value NodeID) NodeID {
	return b.append(&StoreField{node: node{NodeID(len(b.nodes))}, Object: object, Field: field, Value: value})
}

// LoadElem adds an array element read.
func (b *Builder) LoadElem(array NodeID) NodeID {
	return b.append(&LoadElem{node: node{NodeID(len(b.nodes))}, Array: array})
}

// StoreElem adds an array element write.
func (b *Builder) StoreElem(array NodeID, value NodeID) NodeID {
	return b.append(&StoreElem{node: node{NodeID(len(b.nodes))}, Array: array, Value: value})
}

// Return marks v as a contributor to the function's return sentinel.
func (b *Builder) Return(v NodeID) {
	b.rets = append(b.rets, v)
}

// Throw marks v as a contributor to the function's throw sentinel.
func (b *Builder) Throw(v NodeID) {
	b.throws = append(b.throws, v)
}

// Build materializes the sentinels, validates the function, and returns
// it. The builder must not be reused afterwards.
func (b *Builder) Build() (*Function, error) {
	f := &Function{
		name:  b.name,
		nodes: b.nodes,
	}
	// The sentinels are ordinary merge nodes appended last, possibly
	// with no contributors.
	f.ret = NodeID(len(f.nodes))
	f.nodes = append(f.nodes, &Variable{node: node{f.ret}, Sources: b.rets})
	f.throw = NodeID(len(f.nodes))
	f.nodes = append(f.nodes, &Variable{node: node{f.throw}, Sources: b.throws})

	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("function %q: %w", b.name, err)
	}
	return f, nil
}
