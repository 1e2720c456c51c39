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

// Package class implements the class table and per-class metadata (spec
// §3.3): layout (field count, vtable) and the non-layout metadata a
// reflective runtime needs (field/method names, attributes, interfaces).
//
// Classes loaded from a Module are static and immutable once registered;
// the reflectapi package's ClassBuilder produces additional Classes at
// runtime through the same Registry.
package class

import (
	"fmt"

	"github.com/rayalang/raya/rerrors"
)

// FieldAttr describes one declared field slot.
type FieldAttr struct {
	Name           string
	ReadOnly       bool
	Static         bool
	DeclaringClass uint32
}

// MethodAttr describes one vtable slot.
type MethodAttr struct {
	Name           string
	Async          bool
	Static         bool
	DeclaringClass uint32
	ParamCount     int
}

// Class is the layout half of a class definition (spec §3.3): an id, a
// name, how many instance fields it declares, an optional parent, an
// append-only vtable of function ids, and whether it can be instantiated
// directly.
type Class struct {
	ID         uint32
	Name       string
	FieldCount int
	ParentID   *uint32
	VTable     []uint32
	IsAbstract bool
}

// Metadata is the non-layout half of a class definition (spec §3.3):
// ordered names aligned positionally with Class.FieldCount/len(VTable),
// plus static members, interfaces, and per-slot attributes.
type Metadata struct {
	FieldNames        []string
	MethodNames       []string
	StaticFieldNames  []string
	StaticMethodNames []string
	Interfaces        []string
	FieldAttrs        []FieldAttr
	MethodAttrs       []MethodAttr
}

// validate checks the §3.3 alignment invariants that don't require
// knowledge of the parent class (those are checked in Registry.Register,
// which has the parent in hand).
func (m *Metadata) validate(c *Class) error {
	if len(m.FieldNames) != c.FieldCount {
		return rerrors.RuntimeError("class %q: %d field names for field_count %d", c.Name, len(m.FieldNames), c.FieldCount)
	}
	if len(m.MethodNames) != len(c.VTable) {
		return rerrors.RuntimeError("class %q: %d method names for vtable length %d", c.Name, len(m.MethodNames), len(c.VTable))
	}
	if len(m.FieldAttrs) != c.FieldCount {
		return rerrors.RuntimeError("class %q: %d field attrs for field_count %d", c.Name, len(m.FieldAttrs), c.FieldCount)
	}
	if len(m.MethodAttrs) != len(c.VTable) {
		return rerrors.RuntimeError("class %q: %d method attrs for vtable length %d", c.Name, len(m.MethodAttrs), len(c.VTable))
	}
	return nil
}

// Registry is the class table: every Class known to the runtime, static
// (module-loaded) or dynamic (built via ClassBuilder), keyed by both id
// and name.
type Registry struct {
	byID   map[uint32]*Class
	byName map[string]*Class
	meta   map[uint32]*Metadata
	nextID uint32
}

// NewRegistry creates an empty class table.
func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[uint32]*Class),
		byName: make(map[string]*Class),
		meta:   make(map[uint32]*Metadata),
	}
}

// NextID reserves and returns the next unused class id, used by
// ClassBuilder to allocate an id before the class is finalized.
func (r *Registry) NextID() uint32 {
	r.nextID++
	return r.nextID
}

// Register adds c to the table under a freshly validated invariant set
// (spec §3.3):
//
//	field_count >= parent's field_count; inherited field indices match
//	the parent's; vtable[i] of a subclass equals the parent's vtable[i]
//	or is an override with identical arity; metadata name arrays align
//	positionally with field/vtable indices.
func (r *Registry) Register(c *Class, m *Metadata) error {
	if _, exists := r.byID[c.ID]; exists {
		return rerrors.RuntimeError("class id %d already registered", c.ID)
	}
	if _, exists := r.byName[c.Name]; exists {
		return rerrors.RuntimeError("class name %q already registered", c.Name)
	}
	if err := m.validate(c); err != nil {
		return err
	}
	if c.ParentID != nil {
		parent, ok := r.byID[*c.ParentID]
		if !ok {
			return rerrors.RuntimeError("class %q: unknown parent id %d", c.Name, *c.ParentID)
		}
		if c.FieldCount < parent.FieldCount {
			return rerrors.RuntimeError("class %q: field_count %d less than parent %q's %d", c.Name, c.FieldCount, parent.Name, parent.FieldCount)
		}
		if len(c.VTable) < len(parent.VTable) {
			return rerrors.RuntimeError("class %q: vtable shorter than parent %q's", c.Name, parent.Name)
		}
		parentMeta := r.meta[*c.ParentID]
		for i, pFn := range parent.VTable {
			if c.VTable[i] != pFn {
				// An override: arity must match exactly.
				if m.MethodAttrs[i].ParamCount != parentMeta.MethodAttrs[i].ParamCount {
					return rerrors.RuntimeError("class %q: method %q overrides %q with different arity (%d vs %d)",
						c.Name, m.MethodNames[i], parentMeta.MethodNames[i], m.MethodAttrs[i].ParamCount, parentMeta.MethodAttrs[i].ParamCount)
				}
			}
		}
		for i := 0; i < parent.FieldCount; i++ {
			if m.FieldNames[i] != parentMeta.FieldNames[i] {
				return rerrors.RuntimeError("class %q: inherited field slot %d name %q does not match parent's %q",
					c.Name, i, m.FieldNames[i], parentMeta.FieldNames[i])
			}
		}
	}
	r.byID[c.ID] = c
	r.byName[c.Name] = c
	r.meta[c.ID] = m
	return nil
}

// Get returns the Class with the given id.
func (r *Registry) Get(id uint32) (*Class, bool) {
	c, ok := r.byID[id]
	return c, ok
}

// GetByName returns the Class with the given name.
func (r *Registry) GetByName(name string) (*Class, bool) {
	c, ok := r.byName[name]
	return c, ok
}

// Metadata returns the Metadata registered alongside class id.
func (r *Registry) Metadata(id uint32) (*Metadata, bool) {
	m, ok := r.meta[id]
	return m, ok
}

// All returns every registered Class, in registration order by id.
func (r *Registry) All() []*Class {
	out := make([]*Class, 0, len(r.byID))
	for id := uint32(1); id <= r.nextID; id++ {
		if c, ok := r.byID[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

// IsSubclassOf reports whether child is class or a (possibly transitive)
// subclass of ancestor.
func (r *Registry) IsSubclassOf(child, ancestor uint32) bool {
	cur, ok := r.byID[child]
	for ok {
		if cur.ID == ancestor {
			return true
		}
		if cur.ParentID == nil {
			return false
		}
		cur, ok = r.byID[*cur.ParentID]
	}
	return false
}

// Hierarchy returns id's ancestor chain starting with id itself and ending
// at the root class (the one with no parent).
func (r *Registry) Hierarchy(id uint32) ([]*Class, error) {
	var chain []*Class
	cur, ok := r.byID[id]
	if !ok {
		return nil, rerrors.RuntimeError("unknown class id %d", id)
	}
	for {
		chain = append(chain, cur)
		if cur.ParentID == nil {
			return chain, nil
		}
		next, ok := r.byID[*cur.ParentID]
		if !ok {
			return nil, rerrors.RuntimeError("class %q: dangling parent id %d", cur.Name, *cur.ParentID)
		}
		cur = next
	}
}

// TypeName returns the display name class c should report for typeof and
// diagnostics (spec §4.2).
func TypeName(c *Class) string {
	if c == nil {
		return "object"
	}
	return c.Name
}

func (c *Class) String() string {
	return fmt.Sprintf("class %s#%d(fields=%d, methods=%d, abstract=%v)", c.Name, c.ID, c.FieldCount, len(c.VTable), c.IsAbstract)
}
