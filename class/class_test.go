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

package class

import "testing"

func mustRegister(t *testing.T, r *Registry, c *Class, m *Metadata) {
	t.Helper()
	if err := r.Register(c, m); err != nil {
		t.Fatalf("Register(%s): %v", c.Name, err)
	}
}

func TestRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	id := r.NextID()
	c := &Class{ID: id, Name: "Point", FieldCount: 2, VTable: nil}
	m := &Metadata{FieldNames: []string{"x", "y"}, FieldAttrs: []FieldAttr{{Name: "x"}, {Name: "y"}}}
	mustRegister(t, r, c, m)

	got, ok := r.Get(id)
	if !ok || got.Name != "Point" {
		t.Fatalf("Get(%d) = (%v, %v)", id, got, ok)
	}
	byName, ok := r.GetByName("Point")
	if !ok || byName.ID != id {
		t.Fatalf("GetByName(Point) = (%v, %v)", byName, ok)
	}
	if _, ok := r.GetByName("Nope"); ok {
		t.Error("GetByName(Nope) reported ok for an unregistered name")
	}
}

func TestRegisterRejectsDuplicateIDAndName(t *testing.T) {
	r := NewRegistry()
	id := r.NextID()
	mustRegister(t, r, &Class{ID: id, Name: "A"}, &Metadata{FieldNames: nil, FieldAttrs: nil})

	dup := &Class{ID: id, Name: "B"}
	if err := r.Register(dup, &Metadata{}); err == nil {
		t.Error("Register with a duplicate id: want error, got nil")
	}

	sameName := &Class{ID: r.NextID(), Name: "A"}
	if err := r.Register(sameName, &Metadata{}); err == nil {
		t.Error("Register with a duplicate name: want error, got nil")
	}
}

func TestRegisterValidatesMetadataAlignment(t *testing.T) {
	r := NewRegistry()
	c := &Class{ID: r.NextID(), Name: "Bad", FieldCount: 2}
	m := &Metadata{FieldNames: []string{"only-one"}, FieldAttrs: []FieldAttr{{Name: "only-one"}}}
	if err := r.Register(c, m); err == nil {
		t.Error("Register with mismatched FieldNames length: want error, got nil")
	}
}

func TestInheritanceFieldAndVTablePrefix(t *testing.T) {
	r := NewRegistry()
	parentID := r.NextID()
	mustRegister(t, r, &Class{ID: parentID, Name: "Animal", FieldCount: 1, VTable: []uint32{10}},
		&Metadata{
			FieldNames:  []string{"name"},
			MethodNames: []string{"speak"},
			FieldAttrs:  []FieldAttr{{Name: "name"}},
			MethodAttrs: []MethodAttr{{Name: "speak", ParamCount: 0}},
		})

	childID := r.NextID()
	child := &Class{ID: childID, Name: "Dog", ParentID: &parentID, FieldCount: 2, VTable: []uint32{10, 20}}
	childMeta := &Metadata{
		FieldNames:  []string{"name", "breed"},
		MethodNames: []string{"speak", "fetch"},
		FieldAttrs:  []FieldAttr{{Name: "name"}, {Name: "breed"}},
		MethodAttrs: []MethodAttr{{Name: "speak", ParamCount: 0}, {Name: "fetch", ParamCount: 0}},
	}
	mustRegister(t, r, child, childMeta)

	if !r.IsSubclassOf(childID, parentID) {
		t.Error("Dog should be a subclass of Animal")
	}
	if !r.IsSubclassOf(childID, childID) {
		t.Error("IsSubclassOf should be reflexive")
	}
	if r.IsSubclassOf(parentID, childID) {
		t.Error("Animal must not be a subclass of Dog")
	}

	chain, err := r.Hierarchy(childID)
	if err != nil {
		t.Fatalf("Hierarchy: %v", err)
	}
	if len(chain) != 2 || chain[0].ID != childID || chain[1].ID != parentID {
		t.Fatalf("Hierarchy(Dog) = %v; want [Dog Animal]", chain)
	}
}

func TestInheritanceRejectsFieldSlotMismatch(t *testing.T) {
	r := NewRegistry()
	parentID := r.NextID()
	mustRegister(t, r, &Class{ID: parentID, Name: "Animal", FieldCount: 1},
		&Metadata{FieldNames: []string{"name"}, FieldAttrs: []FieldAttr{{Name: "name"}}})

	child := &Class{ID: r.NextID(), Name: "Dog", ParentID: &parentID, FieldCount: 1}
	// Reuses the inherited slot 0 under a different name: violates the
	// "inherited field indices match the parent's" invariant.
	childMeta := &Metadata{FieldNames: []string{"different"}, FieldAttrs: []FieldAttr{{Name: "different"}}}
	if err := r.Register(child, childMeta); err == nil {
		t.Error("Register with a renamed inherited field slot: want error, got nil")
	}
}

func TestInheritanceRejectsArityMismatchOverride(t *testing.T) {
	r := NewRegistry()
	parentID := r.NextID()
	mustRegister(t, r, &Class{ID: parentID, Name: "Base", VTable: []uint32{10}},
		&Metadata{MethodNames: []string{"run"}, MethodAttrs: []MethodAttr{{Name: "run", ParamCount: 1}}})

	child := &Class{ID: r.NextID(), Name: "Derived", ParentID: &parentID, VTable: []uint32{20}}
	childMeta := &Metadata{MethodNames: []string{"run"}, MethodAttrs: []MethodAttr{{Name: "run", ParamCount: 2}}}
	if err := r.Register(child, childMeta); err == nil {
		t.Error("Register overriding a method with different arity: want error, got nil")
	}
}

func TestAllReturnsRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	var ids []uint32
	for _, name := range []string{"A", "B", "C"} {
		id := r.NextID()
		mustRegister(t, r, &Class{ID: id, Name: name}, &Metadata{})
		ids = append(ids, id)
	}
	all := r.All()
	if len(all) != 3 {
		t.Fatalf("len(All()) = %d; want 3", len(all))
	}
	for i, c := range all {
		if c.ID != ids[i] {
			t.Errorf("All()[%d].ID = %d; want %d", i, c.ID, ids[i])
		}
	}
}

func TestTypeName(t *testing.T) {
	if got := TypeName(nil); got != "object" {
		t.Errorf("TypeName(nil) = %q; want %q", got, "object")
	}
	c := &Class{Name: "Widget"}
	if got := TypeName(c); got != "Widget" {
		t.Errorf("TypeName(Widget) = %q; want %q", got, "Widget")
	}
}
