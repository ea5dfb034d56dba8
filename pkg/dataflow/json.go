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
	"encoding/json"
	"fmt"
	"os"

	"stackvet.dev/stackvet/pkg/summary"
)

// Document is the JSON wire form of a Module, as emitted by compiler
// frontends. Node references are indices into the enclosing function's
// node array; the return and throw sentinels are implicit and must not
// appear as nodes.
type Document struct {
	Module    string        `json:"module"`
	Functions []FunctionDoc `json:"functions"`
}

// FunctionDoc is the wire form of one function graph.
type FunctionDoc struct {
	Name  string    `json:"name"`
	Nodes []NodeDoc `json:"nodes"`

	// Return and Throw list the nodes feeding the respective sentinel.
	Return []int32 `json:"return,omitempty"`
	Throw  []int32 `json:"throw,omitempty"`
}

// TypeDoc is the wire form of a TypeRef.
type TypeDoc struct {
	Name  string `json:"name"`
	Array bool   `json:"array,omitempty"`
	Fixed bool   `json:"fixed,omitempty"`
}

// NodeDoc is the wire form of a single node. Kind selects the node
// variant and determines which of the remaining fields apply:
//
//	const      int (omitted for non-integer constants)
//	param      -
//	variable   sources
//	call       target, args, and one of escapes or external/builtin
//	new        type, site, plus the call fields
//	singleton  name
//	loadfield  object (omitted for static fields), field
//	storefield object (omitted for static fields), field, value
//	loadelem   array
//	storeelem  array, value
//
// The escapes list gives the argument positions the callee may leak
// and implies a summarized callee; external marks a callee outside the
// module, builtin an external callee known to be safe. Omitting all
// three leaves the callee unresolved.
type NodeDoc struct {
	Kind     string   `json:"kind"`
	Int      *int64   `json:"int,omitempty"`
	Sources  []int32  `json:"sources,omitempty"`
	Target   string   `json:"target,omitempty"`
	Args     []int32  `json:"args,omitempty"`
	Escapes  []int    `json:"escapes,omitempty"`
	External bool     `json:"external,omitempty"`
	Builtin  bool     `json:"builtin,omitempty"`
	Type     *TypeDoc `json:"type,omitempty"`
	Site     string   `json:"site,omitempty"`
	Object   *int32   `json:"object,omitempty"`
	Field    string   `json:"field,omitempty"`
	Array    *int32   `json:"array,omitempty"`
	Value    *int32   `json:"value,omitempty"`
	Name     string   `json:"name,omitempty"`
}

// Load reads and parses the graph document at path.
func Load(path string) (*Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading module: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return m, nil
}

// Parse validates data against the document schema and decodes it into
// a Module.
func Parse(data []byte) (*Module, error) {
	if err := ValidateBytes(data); err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}
	return Decode(&doc)
}

// Decode converts a wire document into a Module, checking the semantic
// constraints the schema cannot express.
func Decode(doc *Document) (*Module, error) {
	if doc.Module == "" {
		return nil, fmt.Errorf("module name must not be empty")
	}
	m := NewModule(doc.Module)
	for i := range doc.Functions {
		f, err := decodeFunction(&doc.Functions[i])
		if err != nil {
			return nil, err
		}
		if err := m.AddFunction(f); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func decodeFunction(d *FunctionDoc) (*Function, error) {
	b := NewBuilder(d.Name)
	for i := range d.Nodes {
		if err := decodeNode(b, &d.Nodes[i]); err != nil {
			return nil, fmt.Errorf("function %q: node %d: %w", d.Name, i, err)
		}
	}
	for _, id := range d.Return {
		b.Return(NodeID(id))
	}
	for _, id := range d.Throw {
		b.Throw(NodeID(id))
	}
	return b.Build()
}

func decodeNode(b *Builder, d *NodeDoc) error {
	switch d.Kind {
	case "const":
		if d.Int != nil {
			b.IntConst(*d.Int)
		} else {
			b.Const()
		}
	case "param":
		if len(d.Sources) > 0 {
			return fmt.Errorf("parameters take no sources")
		}
		b.Param()
	case "variable":
		if len(d.Sources) == 0 {
			return fmt.Errorf("variables need at least one source")
		}
		b.Variable(ids(d.Sources)...)
	case "call":
		callee, err := decodeCallee(d)
		if err != nil {
			return err
		}
		b.Call(d.Target, callee, ids(d.Args)...)
	case "new":
		callee, err := decodeCallee(d)
		if err != nil {
			return err
		}
		if d.Type == nil {
			return fmt.Errorf("constructions need a type")
		}
		typ := TypeRef{Name: d.Type.Name, Array: d.Type.Array, FixedElem: d.Type.Fixed}
		b.Construct(SiteID(d.Site), typ, d.Target, callee, ids(d.Args)...)
	case "singleton":
		if d.Name == "" {
			return fmt.Errorf("singletons need a name")
		}
		b.Singleton(d.Name)
	case "loadfield":
		b.LoadField(ref(d.Object), d.Field)
	case "storefield":
		if d.Value == nil {
			return fmt.Errorf("field stores need a value")
		}
		b.StoreField(ref(d.Object), d.Field, NodeID(*d.Value))
	case "loadelem":
		if d.Array == nil {
			return fmt.Errorf("element loads need an array")
		}
		b.LoadElem(NodeID(*d.Array))
	case "storeelem":
		if d.Array == nil || d.Value == nil {
			return fmt.Errorf("element stores need an array and a value")
		}
		b.StoreElem(NodeID(*d.Array), NodeID(*d.Value))
	default:
		return fmt.Errorf("unknown node kind %q", d.Kind)
	}
	return nil
}

// decodeCallee maps the callee fields of a call or new node. The
// escapes list and the external flag describe incompatible kinds of
// knowledge about the target, so at most one may be present.
func decodeCallee(d *NodeDoc) (Callee, error) {
	if d.Escapes != nil && d.External {
		return nil, fmt.Errorf("escapes and external are mutually exclusive")
	}
	if d.Builtin && !d.External {
		return nil, fmt.Errorf("builtin requires external")
	}
	if d.Escapes != nil {
		mask, err := summary.FromPositions(d.Escapes)
		if err != nil {
			return nil, err
		}
		return Summarized{Mask: mask}, nil
	}
	if d.External {
		return External{Builtin: d.Builtin}, nil
	}
	return nil, nil
}

func ids(in []int32) []NodeID {
	out := make([]NodeID, len(in))
	for i, id := range in {
		out[i] = NodeID(id)
	}
	return out
}

// ref maps an optional object reference; absence means a static access.
func ref(p *int32) NodeID {
	if p == nil {
		return NoNode
	}
	return NodeID(*p)
}
