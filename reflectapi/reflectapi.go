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

// Package reflectapi is the runtime reflection surface (spec §4.4's
// "reflect" native family, §4.6 dynamic builders, §4.7 permissions): the
// metadata store, class introspection, field/method access, object
// creation, type utilities, circular-safe object inspection, dynamic
// class/function/module builders, the permission store, and the decorator
// registry.
//
// Grounded on the Rust original's
// raya-engine/src/vm/interpreter/handlers/reflect.rs and
// raya-engine/src/vm/vm/handlers/reflect.rs for operation names and the
// native-id groupings this package's natives.go assigns within
// nativeabi.RangeReflect. Every exported Reflector method takes and
// returns plain Go types or value.Value directly, the same split the
// builtins packages use between a testable core function and the
// table.Register wiring that adapts it to the NativeCall ABI.
package reflectapi

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru"
	"github.com/google/uuid"

	"github.com/rayalang/raya/class"
	"github.com/rayalang/raya/heap"
	"github.com/rayalang/raya/module"
	"github.com/rayalang/raya/rerrors"
	"github.com/rayalang/raya/rlog"
	"github.com/rayalang/raya/value"
)

// Reflector owns every process-wide reflective registry (spec §4.5's
// "shared resources": class registry, metadata registry, decorator
// registry, metadata store, permission store, dynamic artifact
// registries). It holds the same *class.Registry and *heap.Heap the
// engine hands to the interpreter, so a builder's finalize call and a
// running task's NewObject both mutate (or read) the one live registry.
type Reflector struct {
	classes *class.Registry
	heap    *heap.Heap
	module  *module.Module
	log     *rlog.Logger

	metadata     *metadataStore
	permissions  *PermissionStore
	decorators   *DecoratorRegistry
	specialCache *lru.Cache

	constructors map[uint32]uint32 // classID -> functionID, populated by builders and RegisterConstructor

	classBuilders   map[uuid.UUID]*ClassBuilder
	funcBuilders    map[uuid.UUID]*BytecodeBuilder
	moduleBuilders  map[uuid.UUID]*DynamicModule
}

// New creates a Reflector over the engine's shared class registry, heap,
// and loaded Module.
func New(classes *class.Registry, h *heap.Heap, mod *module.Module) *Reflector {
	cache, _ := lru.New(1024)
	r := &Reflector{
		classes:        classes,
		heap:           h,
		module:         mod,
		log:            rlog.Default.With("component", "reflectapi"),
		metadata:       newMetadataStore(),
		permissions:    newPermissionStore(),
		decorators:     newDecoratorRegistry(),
		specialCache:   cache,
		constructors:   make(map[uint32]uint32),
		classBuilders:  make(map[uuid.UUID]*ClassBuilder),
		funcBuilders:   make(map[uuid.UUID]*BytecodeBuilder),
		moduleBuilders: make(map[uuid.UUID]*DynamicModule),
	}
	r.permissions.classes = classes
	h.RegisterRoot(r.metadata)
	return r
}

// RegisterConstructor records functionID as classID's constructor.
// Construct reports this id alongside the allocated instance; it does not
// run the constructor. FinalizeClass registers a builder's constructor
// here; classes loaded from a Module are not registered.
func (r *Reflector) RegisterConstructor(classID, functionID uint32) {
	r.constructors[classID] = functionID
}

// classOf resolves the class.Class backing a Value, failing with
// TypeError if v is not an Object.
func (r *Reflector) classOf(v value.Value) (*class.Class, *class.Metadata, error) {
	obj, ok := heap.AsObject(v)
	if !ok {
		return nil, nil, rerrors.TypeError("reflect: value is not a class instance")
	}
	c, ok := r.classes.Get(obj.ClassID)
	if !ok {
		return nil, nil, rerrors.RuntimeError("reflect: instance references unknown class id %d", obj.ClassID)
	}
	m, ok := r.classes.Metadata(obj.ClassID)
	if !ok {
		return nil, nil, rerrors.RuntimeError("reflect: class %q has no registered metadata", c.Name)
	}
	return c, m, nil
}

// fieldSlot resolves name to a field slot index via c/m, or (-1, false) if
// unknown.
func fieldSlot(m *class.Metadata, name string) (int, bool) {
	for i, n := range m.FieldNames {
		if n == name {
			return i, true
		}
	}
	return -1, false
}

// methodSlot resolves name to a vtable slot index via m, or (-1, false) if
// unknown.
func methodSlot(m *class.Metadata, name string) (int, bool) {
	for i, n := range m.MethodNames {
		if n == name {
			return i, true
		}
	}
	return -1, false
}

// TypeOf implements spec §4.2's universal type_name(v), extended (spec
// §4.4 typeUtilities) to report the concrete class name instead of plain
// "object" when v is a class instance.
func (r *Reflector) TypeOf(v value.Value) string {
	switch {
	case v.IsNull():
		return "null"
	case v.IsBool():
		return "boolean"
	case v.IsI32(), v.IsF64(), v.IsU64(), v.IsI64():
		return "number"
	case v.IsPtr():
		switch v.Kind() {
		case value.KindString:
			return "string"
		case value.KindArray:
			return "array"
		case value.KindClosure:
			return "function"
		case value.KindObject:
			c, _, err := r.classOf(v)
			if err != nil {
				return "object"
			}
			return class.TypeName(c)
		default:
			return v.Kind().String()
		}
	default:
		return "object"
	}
}

// identityLabel formats a Value's identity for diagnostic text: the heap
// object id for pointers, or a literal rendering for primitives.
func identityLabel(v value.Value) string {
	if v.IsPtr() {
		if o := heap.ObjAt(v); o != nil {
			return fmt.Sprintf("#%d", o.Hdr().ID())
		}
		return "#?"
	}
	if v.IsNull() {
		return "null"
	}
	if b, ok := v.AsBool(); ok {
		return fmt.Sprintf("%v", b)
	}
	if n, ok := v.NumericValue(); ok {
		return fmt.Sprintf("%v", n)
	}
	return "?"
}
