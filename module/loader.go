// Copyright 2024 The Raya Authors
// This file is part of Raya.
//
// Raya is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Raya is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Raya. If not, see <http://www.gnu.org/licenses/>.

package module

import (
	"encoding/base64"
	"encoding/json"

	"github.com/rayalang/raya/class"
	"github.com/rayalang/raya/rerrors"
)

// JSON module encoding (spec §6: "the precise binary layout is not
// normative; a re-implementation may pick any encoding so long as it
// round-trips these fields"). This is the one loader format cmd/rayavm
// understands; nothing in the interpreter or scheduler depends on it.

type functionJSON struct {
	Name       string `json:"name"`
	ParamCount int    `json:"param_count"`
	LocalCount int    `json:"local_count"`
	Bytecode   string `json:"bytecode"` // base64
	File       string `json:"file,omitempty"`
	StartLine  int    `json:"start_line,omitempty"`
	EndLine    int    `json:"end_line,omitempty"`
}

type fieldAttrJSON struct {
	Name     string `json:"name"`
	ReadOnly bool   `json:"read_only,omitempty"`
	Static   bool   `json:"static,omitempty"`
}

type methodAttrJSON struct {
	Name       string `json:"name"`
	Async      bool   `json:"async,omitempty"`
	Static     bool   `json:"static,omitempty"`
	ParamCount int    `json:"param_count,omitempty"`
}

type classJSON struct {
	Name              string           `json:"name"`
	FieldCount        int              `json:"field_count"`
	ParentName        string           `json:"parent_name,omitempty"`
	VTable            []uint32         `json:"vtable,omitempty"`
	IsAbstract        bool             `json:"is_abstract,omitempty"`
	FieldNames        []string         `json:"field_names,omitempty"`
	MethodNames       []string         `json:"method_names,omitempty"`
	StaticFieldNames  []string         `json:"static_field_names,omitempty"`
	StaticMethodNames []string         `json:"static_method_names,omitempty"`
	Interfaces        []string         `json:"interfaces,omitempty"`
	FieldAttrs        []fieldAttrJSON  `json:"field_attrs,omitempty"`
	MethodAttrs       []methodAttrJSON `json:"method_attrs,omitempty"`
}

type constJSON struct {
	Kind   string  `json:"kind"` // "string", "number", "bool", "null"
	Str    string  `json:"str,omitempty"`
	Number float64 `json:"number,omitempty"`
	Bool   bool    `json:"bool,omitempty"`
}

type moduleJSON struct {
	Functions     []functionJSON `json:"functions"`
	Classes       []classJSON    `json:"classes"`
	Constants     []constJSON    `json:"constants"`
	NativesNeeded []string       `json:"natives_needed"`
}

// LoadJSON decodes data in the JSON module encoding into a Module, the
// same functions[]/classes[]/constants[]/natives-needed[] shape spec §6
// names, with bytecode arrays carried as base64 strings.
func LoadJSON(data []byte) (*Module, error) {
	var doc moduleJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, rerrors.RuntimeError("module: invalid JSON: %v", err)
	}

	functions := make([]Function, len(doc.Functions))
	for i, f := range doc.Functions {
		code, err := base64.StdEncoding.DecodeString(f.Bytecode)
		if err != nil {
			return nil, rerrors.RuntimeError("module: function %q has invalid bytecode encoding: %v", f.Name, err)
		}
		functions[i] = Function{
			Name:       f.Name,
			ParamCount: f.ParamCount,
			LocalCount: f.LocalCount,
			Bytecode:   code,
			DebugSpan:  DebugSpan{File: f.File, StartLine: f.StartLine, EndLine: f.EndLine},
		}
	}

	defs := make([]ClassDef, len(doc.Classes))
	for i, c := range doc.Classes {
		fieldAttrs := make([]class.FieldAttr, len(c.FieldAttrs))
		for j, fa := range c.FieldAttrs {
			fieldAttrs[j] = class.FieldAttr{Name: fa.Name, ReadOnly: fa.ReadOnly, Static: fa.Static}
		}
		methodAttrs := make([]class.MethodAttr, len(c.MethodAttrs))
		for j, ma := range c.MethodAttrs {
			methodAttrs[j] = class.MethodAttr{Name: ma.Name, Async: ma.Async, Static: ma.Static, ParamCount: ma.ParamCount}
		}
		defs[i] = ClassDef{
			Name:       c.Name,
			FieldCount: c.FieldCount,
			ParentName: c.ParentName,
			VTable:     c.VTable,
			IsAbstract: c.IsAbstract,
			Metadata: class.Metadata{
				FieldNames:        c.FieldNames,
				MethodNames:       c.MethodNames,
				StaticFieldNames:  c.StaticFieldNames,
				StaticMethodNames: c.StaticMethodNames,
				Interfaces:        c.Interfaces,
				FieldAttrs:        fieldAttrs,
				MethodAttrs:       methodAttrs,
			},
		}
	}

	constants := make([]Const, len(doc.Constants))
	for i, c := range doc.Constants {
		switch c.Kind {
		case "string":
			constants[i] = Const{Kind: ConstString, Str: c.Str}
		case "number":
			constants[i] = Const{Kind: ConstNumber, Number: c.Number}
		case "bool":
			constants[i] = Const{Kind: ConstBool, Bool: c.Bool}
		case "null", "":
			constants[i] = Const{Kind: ConstNull}
		default:
			return nil, rerrors.RuntimeError("module: constant %d has unknown kind %q", i, c.Kind)
		}
	}

	return NewModule(functions, defs, constants, doc.NativesNeeded)
}
