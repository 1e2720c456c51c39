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

package reflectapi

import (
	"github.com/rayalang/raya/class"
	"github.com/rayalang/raya/heap"
	"github.com/rayalang/raya/nativeabi"
	"github.com/rayalang/raya/rerrors"
	"github.com/rayalang/raya/value"
)

// permLevel is one write-permission entry: allowed unless sealed, in which
// case every write is refused regardless of the allowed flag.
type permLevel struct {
	allowed bool
	sealed  bool
	set     bool // true once explicitly configured, distinguishing "allow" from "never visited"
}

func (p permLevel) resolve() bool {
	if p.sealed {
		return false
	}
	return p.allowed
}

// PermissionStore resolves whether a field write is allowed at one of four
// levels, checked from most to least specific: per-object, per-class (and
// its ancestors, nearest first), per-module, and a process-wide default. A
// sealed entry at any level refuses the write outright; resolution stops at
// the first level that names the field at all, sealed or not.
type PermissionStore struct {
	classes *class.Registry // wired by Reflector.New once the shared registry exists

	object map[any]map[string]permLevel // keyed by instance identity
	class  map[uint32]map[string]permLevel
	module map[string]permLevel // module scope has no name, one process-wide map
	global permLevel
}

func newPermissionStore() *PermissionStore {
	return &PermissionStore{
		object: make(map[any]map[string]permLevel),
		class:  make(map[uint32]map[string]permLevel),
		module: make(map[string]permLevel),
		global: permLevel{allowed: true, set: true},
	}
}

// errSealed is returned when a write targets a permission entry that was
// already sealed: a sealed entry refuses every subsequent write, including
// another sealed one (spec §4.7).
func errSealed(field string) error {
	return rerrors.PermissionDenied("permission entry for field %q is sealed and cannot be modified", field)
}

// SetObjectPermission configures field's write permission on one specific
// instance, identified by its heap identity.
func (p *PermissionStore) SetObjectPermission(instance value.Value, field string, allowed, sealed bool) error {
	key := instance.IdentityKey()
	m, ok := p.object[key]
	if !ok {
		m = make(map[string]permLevel)
		p.object[key] = m
	}
	if prev, ok := m[field]; ok && prev.sealed {
		return errSealed(field)
	}
	m[field] = permLevel{allowed: allowed, sealed: sealed, set: true}
	return nil
}

// SetClassPermission configures field's write permission for every instance
// of classID that has no more specific object-level override.
func (p *PermissionStore) SetClassPermission(classID uint32, field string, allowed, sealed bool) error {
	m, ok := p.class[classID]
	if !ok {
		m = make(map[string]permLevel)
		p.class[classID] = m
	}
	if prev, ok := m[field]; ok && prev.sealed {
		return errSealed(field)
	}
	m[field] = permLevel{allowed: allowed, sealed: sealed, set: true}
	return nil
}

// SetModulePermission configures field's write permission as the module-wide
// default, below class level but above the global default.
func (p *PermissionStore) SetModulePermission(field string, allowed, sealed bool) error {
	if prev, ok := p.module[field]; ok && prev.sealed {
		return errSealed(field)
	}
	p.module[field] = permLevel{allowed: allowed, sealed: sealed, set: true}
	return nil
}

// SetGlobalPermission configures the process-wide default applied when no
// object, class, or module entry names field at all.
func (p *PermissionStore) SetGlobalPermission(allowed, sealed bool) error {
	if p.global.sealed {
		return errSealed("<global>")
	}
	p.global = permLevel{allowed: allowed, sealed: sealed, set: true}
	return nil
}

// CanWrite resolves whether field may be written on target, an instance of
// classID (spec §4.7's resolution order: object, then classID's ancestor
// chain nearest-first, then module, then the global default).
func (p *PermissionStore) CanWrite(target value.Value, classID uint32, field string) bool {
	if m, ok := p.object[target.IdentityKey()]; ok {
		if lvl, ok := m[field]; ok {
			return lvl.resolve()
		}
	}
	for _, cid := range p.classHierarchy(classID) {
		if m, ok := p.class[cid]; ok {
			if lvl, ok := m[field]; ok {
				return lvl.resolve()
			}
		}
	}
	if lvl, ok := p.module[field]; ok {
		return lvl.resolve()
	}
	return p.global.resolve()
}

// classHierarchy returns classID's ancestor chain, classID itself first,
// falling back to a single-element chain if the shared registry was never
// wired (e.g. in a PermissionStore built for standalone testing).
func (p *PermissionStore) classHierarchy(classID uint32) []uint32 {
	if p.classes == nil {
		return []uint32{classID}
	}
	chain, err := p.classes.Hierarchy(classID)
	if err != nil {
		return []uint32{classID}
	}
	ids := make([]uint32, len(chain))
	for i, c := range chain {
		ids[i] = c.ID
	}
	return ids
}

// SetGlobalPermission configures the process-wide default write permission,
// delegating to the Reflector's PermissionStore (same split fields.go's
// SetField uses internally: Reflector methods are the package's public
// surface, the store underneath is private bookkeeping).
func (r *Reflector) SetGlobalPermission(allowed, sealed bool) error {
	return r.permissions.SetGlobalPermission(allowed, sealed)
}

// SetModulePermission configures field's module-wide default write
// permission.
func (r *Reflector) SetModulePermission(field string, allowed, sealed bool) error {
	return r.permissions.SetModulePermission(field, allowed, sealed)
}

// SetClassPermission configures field's write permission for classID and
// its instances.
func (r *Reflector) SetClassPermission(classID uint32, field string, allowed, sealed bool) error {
	return r.permissions.SetClassPermission(classID, field, allowed, sealed)
}

// SetObjectPermission configures field's write permission on one instance.
func (r *Reflector) SetObjectPermission(instance value.Value, field string, allowed, sealed bool) error {
	return r.permissions.SetObjectPermission(instance, field, allowed, sealed)
}

func registerPermissions(table *nativeabi.Table, r *Reflector) {
	table.Register(RangePermissions, "reflect.setObjectPermission", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		if len(args) < 4 {
			return nativeabi.Result{}, rerrors.ArgumentCountMismatch("reflect.setObjectPermission expects (instance, field, allowed, sealed)")
		}
		field, err := argString(args, 1, "reflect.setObjectPermission")
		if err != nil {
			return nativeabi.Result{}, err
		}
		allowed, _ := args[2].AsBool()
		sealed, _ := args[3].AsBool()
		if err := r.permissions.SetObjectPermission(args[0], field, allowed, sealed); err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(value.Null()), nil
	})

	table.Register(RangePermissions+1, "reflect.setClassPermission", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		if len(args) < 4 {
			return nativeabi.Result{}, rerrors.ArgumentCountMismatch("reflect.setClassPermission expects (classId, field, allowed, sealed)")
		}
		classID, err := argClassID(args, 0, "reflect.setClassPermission")
		if err != nil {
			return nativeabi.Result{}, err
		}
		field, err := argString(args, 1, "reflect.setClassPermission")
		if err != nil {
			return nativeabi.Result{}, err
		}
		allowed, _ := args[2].AsBool()
		sealed, _ := args[3].AsBool()
		if err := r.permissions.SetClassPermission(classID, field, allowed, sealed); err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(value.Null()), nil
	})

	table.Register(RangePermissions+2, "reflect.setModulePermission", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		if len(args) < 3 {
			return nativeabi.Result{}, rerrors.ArgumentCountMismatch("reflect.setModulePermission expects (field, allowed, sealed)")
		}
		field, err := argString(args, 0, "reflect.setModulePermission")
		if err != nil {
			return nativeabi.Result{}, err
		}
		allowed, _ := args[1].AsBool()
		sealed, _ := args[2].AsBool()
		if err := r.permissions.SetModulePermission(field, allowed, sealed); err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(value.Null()), nil
	})

	table.Register(RangePermissions+3, "reflect.setGlobalPermission", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		if len(args) < 2 {
			return nativeabi.Result{}, rerrors.ArgumentCountMismatch("reflect.setGlobalPermission expects (allowed, sealed)")
		}
		allowed, _ := args[0].AsBool()
		sealed, _ := args[1].AsBool()
		if err := r.permissions.SetGlobalPermission(allowed, sealed); err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(value.Null()), nil
	})

	table.Register(RangePermissions+4, "reflect.canWrite", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		if len(args) < 2 {
			return nativeabi.Result{}, rerrors.ArgumentCountMismatch("reflect.canWrite expects (instance, field)")
		}
		field, err := argString(args, 1, "reflect.canWrite")
		if err != nil {
			return nativeabi.Result{}, err
		}
		obj, ok := heap.AsObject(args[0])
		if !ok {
			return nativeabi.Result{}, rerrors.TypeError("reflect.canWrite: argument 0 is not a class instance")
		}
		return nativeabi.Pushed(value.Bool(r.permissions.CanWrite(args[0], obj.ClassID, field))), nil
	})
}
