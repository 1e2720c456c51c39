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

// Package module defines the loaded, read-only Module (spec §3.4, §6): a
// function table, a static class table, a constant pool, and the
// native-name -> native-id resolution performed once at link time.
//
// A Module's binary encoding is not normative (spec §6); this package
// accepts an in-memory Module built by a loader (or, for tests, built by
// hand) and makes no assumption about where the bytes came from. Grounded
// on probe-lang/integration/engine.go's Contract/constant-pool decode
// shape, generalized to Raya's function/class/constant/native layout.
package module

import (
	"github.com/rayalang/raya/class"
	"github.com/rayalang/raya/rerrors"
	"github.com/rayalang/raya/value"
)

// Function is one entry in a Module's function table: bytecode, arity,
// local-slot count, and a debug span for diagnostics.
type Function struct {
	Name       string
	ParamCount int
	LocalCount int
	Bytecode   []byte
	DebugSpan  DebugSpan
}

// DebugSpan locates a function's source extent for diagnostics. Lines are
// 1-based; zero values mean "unknown".
type DebugSpan struct {
	File      string
	StartLine int
	EndLine   int
}

// ConstKind discriminates a constant-pool entry.
type ConstKind uint8

const (
	ConstString ConstKind = iota
	ConstNumber
	ConstBool
	ConstNull
)

// Const is one constant-pool entry referenced by PushConst(idx).
type Const struct {
	Kind   ConstKind
	Str    string
	Number float64
	Bool   bool
}

// ClassDef is the on-disk shape of a class declaration before it is
// registered into a class.Registry (spec §6: "classes[] (name,
// field_count, parent_id optional, vtable function-ids, is_abstract)").
type ClassDef struct {
	Name       string
	FieldCount int
	ParentName string // "" if none
	VTable     []uint32
	IsAbstract bool
	Metadata   class.Metadata
}

// Module is a loaded, read-only unit of compiled Raya code.
type Module struct {
	Functions     []Function
	Classes       *class.Registry
	Constants     []Const
	NativesNeeded []string

	// globalNames maps a global variable name to its slot in the globals
	// table; globalSlots is that table's mutable storage (globals are the
	// one part of a "read-only at runtime" Module that the interpreter
	// writes through StoreGlobal).
	globalNames map[string]int
	globalSlots []value.Value
}

// NewModule builds a Module from its loader-facing parts: a function
// table, a flat list of class declarations (processed in order, so a
// class's ParentName must already have been declared earlier in defs),
// a constant pool, and the list of native names the module needs resolved
// at link time (spec §6).
func NewModule(functions []Function, defs []ClassDef, constants []Const, natives []string) (*Module, error) {
	registry := class.NewRegistry()
	for _, def := range defs {
		c := &class.Class{
			ID:         registry.NextID(),
			Name:       def.Name,
			FieldCount: def.FieldCount,
			VTable:     def.VTable,
			IsAbstract: def.IsAbstract,
		}
		if def.ParentName != "" {
			parent, ok := registry.GetByName(def.ParentName)
			if !ok {
				return nil, rerrors.RuntimeError("class %q: parent %q not yet declared", def.Name, def.ParentName)
			}
			pid := parent.ID
			c.ParentID = &pid
		}
		meta := def.Metadata
		if err := registry.Register(c, &meta); err != nil {
			return nil, err
		}
	}
	return &Module{
		Functions:     functions,
		Classes:       registry,
		Constants:     constants,
		NativesNeeded: natives,
		globalNames:   make(map[string]int),
	}, nil
}

// DefineGlobal reserves a new global slot named name, initialized to
// null, and returns its index. Redefining an existing name is an error —
// globals are declared once at load time.
func (m *Module) DefineGlobal(name string) (int, error) {
	if _, exists := m.globalNames[name]; exists {
		return 0, rerrors.RuntimeError("global %q already defined", name)
	}
	idx := len(m.globalSlots)
	m.globalNames[name] = idx
	m.globalSlots = append(m.globalSlots, value.Null())
	return idx, nil
}

// GlobalIndex resolves a global's name to its slot index.
func (m *Module) GlobalIndex(name string) (int, bool) {
	idx, ok := m.globalNames[name]
	return idx, ok
}

// LoadGlobal reads the global at idx.
func (m *Module) LoadGlobal(idx int) (value.Value, error) {
	if idx < 0 || idx >= len(m.globalSlots) {
		return value.Value{}, rerrors.UnresolvedSymbol("global index %d out of range [0,%d)", idx, len(m.globalSlots))
	}
	return m.globalSlots[idx], nil
}

// StoreGlobal writes v to the global at idx.
func (m *Module) StoreGlobal(idx int, v value.Value) error {
	if idx < 0 || idx >= len(m.globalSlots) {
		return rerrors.UnresolvedSymbol("global index %d out of range [0,%d)", idx, len(m.globalSlots))
	}
	m.globalSlots[idx] = v
	return nil
}

// VisitRoots visits every global Value, satisfying heap.RootSource so the
// GC traces module-level state same as any task stack.
func (m *Module) VisitRoots(visitor func(value.Value)) {
	for _, v := range m.globalSlots {
		visitor(v)
	}
}

// AddFunction appends fn to the function table and returns its index,
// usable immediately as a Call target. This is the one loader-time-looking
// mutation a reflectapi BytecodeBuilder performs after a Module is already
// loaded: a dynamically assembled function joins the same table a
// statically compiled one lives in, so Call/CallIndirect need not
// distinguish the two.
func (m *Module) AddFunction(fn Function) int {
	m.Functions = append(m.Functions, fn)
	return len(m.Functions) - 1
}

// FunctionByName resolves a function by its declared name, used for
// link-time resolution of call targets that reference functions by name
// rather than by table index.
func (m *Module) FunctionByName(name string) (int, *Function, bool) {
	for i := range m.Functions {
		if m.Functions[i].Name == name {
			return i, &m.Functions[i], true
		}
	}
	return 0, nil, false
}

// Function looks up a function by table index.
func (m *Module) Function(idx int) (*Function, error) {
	if idx < 0 || idx >= len(m.Functions) {
		return nil, rerrors.RuntimeError("function index %d out of range [0,%d)", idx, len(m.Functions))
	}
	return &m.Functions[idx], nil
}

// Const looks up a constant-pool entry by index.
func (m *Module) Const(idx int) (*Const, error) {
	if idx < 0 || idx >= len(m.Constants) {
		return nil, rerrors.RuntimeError("constant index %d out of range [0,%d)", idx, len(m.Constants))
	}
	return &m.Constants[idx], nil
}
