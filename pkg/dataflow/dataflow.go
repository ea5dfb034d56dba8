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

// Package dataflow models a function body as a data-flow graph: a dense
// slice of value-producing and value-consuming nodes connected by
// NodeID references.
//
// Graphs are produced by compiler frontends, either programmatically
// through a Builder or as JSON graph documents (see Parse). Node
// identities are plain indices, never pointers, so graphs with cycles
// (loop-carried variables, objects with back references) stay cheap to
// traverse and deterministic to iterate.
package dataflow

import (
	"slices"

	"golang.org/x/exp/constraints"

	"stackvet.dev/stackvet/pkg/summary"
)

// NodeID identifies a node within its function. IDs are dense indices
// into the function's node slice and are only meaningful within that
// function.
type NodeID int32

// NoNode marks an absent optional node reference, such as the receiver
// of a static field access.
const NoNode NodeID = -1

// SiteID identifies the source construct that performed an allocation.
// It is assigned by the frontend and names the original program point,
// not the internal node; an empty SiteID means the construction cannot
// be traced back to a source construct.
type SiteID string

// TypeRef describes a constructed type.
type TypeRef struct {
	// Name is the frontend's name for the type.
	Name string

	// Array is true if the type is an array type.
	Array bool

	// FixedElem is true if the element representation has a statically
	// known, uniform size (non-reference elements).
	FixedElem bool
}

// FixedArray reports whether the type is an array of fixed-size
// elements, the only shape eligible for stack placement.
func (t TypeRef) FixedArray() bool {
	return t.Array && t.FixedElem
}

// Node is a single point in a function body.
type Node interface {
	// ID returns the node's identity within its function.
	ID() NodeID

	// isNode closes the set of node kinds.
	isNode()
}

// node is the common implementation embedded in every kind.
type node struct {
	id NodeID
}

// ID implements Node.ID.
func (n node) ID() NodeID { return n.id }

func (node) isNode() {}

// Const is an immediate value. Only integer constants can serve as
// array element counts.
type Const struct {
	node

	// Value is the integer value, meaningful only if Integer is set.
	Value int64

	// Integer is true if the constant is an integer.
	Integer bool
}

// Variable is a parameter or a control-flow merge point: it holds the
// ordered set of nodes the value may have come from. Parameters have no
// sources. The function's return and throw sentinels are Variables
// listing their contributors.
type Variable struct {
	node

	// Sources are the possible origins of the value.
	Sources []NodeID
}

// Callee describes what is known about a call's target.
type Callee interface {
	isCallee()
}

// Summarized is a callee with a known per-argument escape summary.
type Summarized struct {
	// Mask records which argument positions may escape.
	Mask summary.Mask
}

func (Summarized) isCallee() {}

// External is an externally defined callee. If Builtin is set, the
// callee is a recognized safe operator whose arguments do not escape.
type External struct {
	Builtin bool
}

func (External) isCallee() {}

// Call invokes a callee with an ordered argument list. A nil Callee
// means nothing is known about the target; the analysis may resolve it
// through a summary database by Target symbol.
type Call struct {
	node

	// Target is the callee symbol.
	Target string

	// Args are the argument nodes, in call order.
	Args []NodeID

	// Callee describes the target, if known.
	Callee Callee
}

// New is a construction: a Call that allocates an instance of Type. If
// Type is a fixed-size-element array, the first argument is the
// requested element count.
type New struct {
	Call

	// Type is the constructed type.
	Type TypeRef

	// Site names the originating source construct, if identifiable.
	Site SiteID
}

// Singleton is a reference to a process-wide unique instance.
type Singleton struct {
	node

	// Name identifies the instance.
	Name string
}

// LoadField reads a field. Object is NoNode for static fields.
type LoadField struct {
	node

	Object NodeID
	Field  string
}

// StoreField writes Value into a field. Object is NoNode for static
// fields.
type StoreField struct {
	node

	Object NodeID
	Field  string
	Value  NodeID
}

// LoadElem reads an element of Array.
type LoadElem struct {
	node

	Array NodeID
}

// StoreElem writes Value into an element of Array.
type StoreElem struct {
	node

	Array NodeID
	Value NodeID
}

// sortedKeys returns m's keys in ascending order.
func sortedKeys[K constraints.Ordered, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
