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
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"stackvet.dev/stackvet/pkg/sync"
)

// documentSchema is the wire contract for graph documents. Each node
// kind is a closed object, so stray fields are rejected at the schema
// level rather than silently ignored by the JSON decoder.
const documentSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "graph document",
  "type": "object",
  "required": ["module", "functions"],
  "additionalProperties": false,
  "properties": {
    "module": {"type": "string", "minLength": 1},
    "functions": {
      "type": "array",
      "items": {"$ref": "#/definitions/function"}
    }
  },
  "definitions": {
    "id": {"type": "integer", "minimum": 0},
    "idList": {"type": "array", "items": {"$ref": "#/definitions/id"}},
    "position": {"type": "integer", "minimum": 0, "maximum": 63},
    "type": {
      "type": "object",
      "required": ["name"],
      "additionalProperties": false,
      "properties": {
        "name": {"type": "string"},
        "array": {"type": "boolean"},
        "fixed": {"type": "boolean"}
      }
    },
    "function": {
      "type": "object",
      "required": ["name", "nodes"],
      "additionalProperties": false,
      "properties": {
        "name": {"type": "string", "minLength": 1},
        "nodes": {
          "type": "array",
          "items": {"$ref": "#/definitions/node"}
        },
        "return": {"$ref": "#/definitions/idList"},
        "throw": {"$ref": "#/definitions/idList"}
      }
    },
    "node": {
      "oneOf": [
        {
          "type": "object",
          "required": ["kind"],
          "additionalProperties": false,
          "properties": {
            "kind": {"const": "const"},
            "int": {"type": "integer"}
          }
        },
        {
          "type": "object",
          "required": ["kind"],
          "additionalProperties": false,
          "properties": {
            "kind": {"const": "param"}
          }
        },
        {
          "type": "object",
          "required": ["kind", "sources"],
          "additionalProperties": false,
          "properties": {
            "kind": {"const": "variable"},
            "sources": {
              "type": "array",
              "items": {"$ref": "#/definitions/id"},
              "minItems": 1
            }
          }
        },
        {
          "type": "object",
          "required": ["kind", "target"],
          "additionalProperties": false,
          "properties": {
            "kind": {"const": "call"},
            "target": {"type": "string", "minLength": 1},
            "args": {"$ref": "#/definitions/idList"},
            "escapes": {
              "type": "array",
              "items": {"$ref": "#/definitions/position"}
            },
            "external": {"type": "boolean"},
            "builtin": {"type": "boolean"}
          }
        },
        {
          "type": "object",
          "required": ["kind", "type"],
          "additionalProperties": false,
          "properties": {
            "kind": {"const": "new"},
            "type": {"$ref": "#/definitions/type"},
            "site": {"type": "string"},
            "target": {"type": "string"},
            "args": {"$ref": "#/definitions/idList"},
            "escapes": {
              "type": "array",
              "items": {"$ref": "#/definitions/position"}
            },
            "external": {"type": "boolean"},
            "builtin": {"type": "boolean"}
          }
        },
        {
          "type": "object",
          "required": ["kind", "name"],
          "additionalProperties": false,
          "properties": {
            "kind": {"const": "singleton"},
            "name": {"type": "string", "minLength": 1}
          }
        },
        {
          "type": "object",
          "required": ["kind", "field"],
          "additionalProperties": false,
          "properties": {
            "kind": {"const": "loadfield"},
            "object": {"$ref": "#/definitions/id"},
            "field": {"type": "string"}
          }
        },
        {
          "type": "object",
          "required": ["kind", "field", "value"],
          "additionalProperties": false,
          "properties": {
            "kind": {"const": "storefield"},
            "object": {"$ref": "#/definitions/id"},
            "field": {"type": "string"},
            "value": {"$ref": "#/definitions/id"}
          }
        },
        {
          "type": "object",
          "required": ["kind", "array"],
          "additionalProperties": false,
          "properties": {
            "kind": {"const": "loadelem"},
            "array": {"$ref": "#/definitions/id"}
          }
        },
        {
          "type": "object",
          "required": ["kind", "array", "value"],
          "additionalProperties": false,
          "properties": {
            "kind": {"const": "storeelem"},
            "array": {"$ref": "#/definitions/id"},
            "value": {"$ref": "#/definitions/id"}
          }
        }
      ]
    }
  }
}`

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(documentSchema))
	})
	return schema, schemaErr
}

// ValidateBytes checks data against the graph document schema without
// decoding it. A nil error means the document is structurally sound;
// the semantic checks the schema cannot express (reference ranges,
// callee consistency, duplicate function names) happen in Decode.
func ValidateBytes(data []byte) error {
	s, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compiling document schema: %w", err)
	}
	result, err := s.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("validating document: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("invalid document: %s", strings.Join(msgs, "; "))
	}
	return nil
}
