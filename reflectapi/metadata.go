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
	lru "github.com/hashicorp/golang-lru"

	"github.com/rayalang/raya/heap"
	"github.com/rayalang/raya/nativeabi"
	"github.com/rayalang/raya/rerrors"
	"github.com/rayalang/raya/value"
)

// metaKey identifies one (target identity, property qualifier) pair the
// metadata store tracks. propertyKey is "" for metadata attached to the
// target itself rather than one of its members.
type metaKey struct {
	target      any
	propertyKey string
}

// metadataStore implements spec §4.4's metadata store: defineMetadata /
// getMetadata / hasMetadata / deleteMetadata / getMetadataKeys, keyed by
// the identity of the target Value (value.Value.IdentityKey()) and an
// optional property-key qualifier.
//
// Unlike a JS WeakMap, entries do not keep their target Value reachable —
// only the stored metadata *values* are GC roots (VisitRoots below);
// a metadata entry whose target has been collected simply becomes
// unreachable by identity and stays in the store until deleteMetadata
// removes its keys. keyNames is an LRU cache of each
// metaKey's defined metadata-key names, so getMetadataKeys does not have
// to scan the whole store; backed by github.com/hashicorp/golang-lru, the
// same bounded recent-entries cache shape used for consensus snapshot
// caches elsewhere in the ecosystem.
type metadataStore struct {
	entries  map[metaKey]map[string]value.Value
	keyNames *lru.Cache
}

func newMetadataStore() *metadataStore {
	cache, _ := lru.New(4096)
	return &metadataStore{
		entries:  make(map[metaKey]map[string]value.Value),
		keyNames: cache,
	}
}

// VisitRoots visits every metadata payload Value currently stored, so the
// GC keeps metadata-referenced objects alive even if nothing else in the
// program still points at them (spec §5's root enumeration contract).
func (s *metadataStore) VisitRoots(visitor func(value.Value)) {
	for _, byKey := range s.entries {
		for _, v := range byKey {
			visitor(v)
		}
	}
}

func (s *metadataStore) cacheNames(k metaKey) {
	byKey, ok := s.entries[k]
	if !ok {
		s.keyNames.Remove(k)
		return
	}
	names := make([]string, 0, len(byKey))
	for name := range byKey {
		names = append(names, name)
	}
	s.keyNames.Add(k, names)
}

// Define records metadataKey -> v for target (qualified by propertyKey,
// "" for the target itself).
func (s *metadataStore) Define(metadataKey string, v value.Value, target value.Value, propertyKey string) {
	k := metaKey{target: target.IdentityKey(), propertyKey: propertyKey}
	byKey, ok := s.entries[k]
	if !ok {
		byKey = make(map[string]value.Value)
		s.entries[k] = byKey
	}
	byKey[metadataKey] = v
	s.cacheNames(k)
}

// Get returns the Value stored under metadataKey for target/propertyKey,
// or (Null, false) if absent.
func (s *metadataStore) Get(metadataKey string, target value.Value, propertyKey string) (value.Value, bool) {
	k := metaKey{target: target.IdentityKey(), propertyKey: propertyKey}
	byKey, ok := s.entries[k]
	if !ok {
		return value.Null(), false
	}
	v, ok := byKey[metadataKey]
	return v, ok
}

// Has reports whether metadataKey is defined for target/propertyKey.
func (s *metadataStore) Has(metadataKey string, target value.Value, propertyKey string) bool {
	_, ok := s.Get(metadataKey, target, propertyKey)
	return ok
}

// Delete removes metadataKey from target/propertyKey, returning whether
// anything was removed.
func (s *metadataStore) Delete(metadataKey string, target value.Value, propertyKey string) bool {
	k := metaKey{target: target.IdentityKey(), propertyKey: propertyKey}
	byKey, ok := s.entries[k]
	if !ok {
		return false
	}
	if _, ok := byKey[metadataKey]; !ok {
		return false
	}
	delete(byKey, metadataKey)
	if len(byKey) == 0 {
		delete(s.entries, k)
	}
	s.cacheNames(k)
	return true
}

// Keys returns every metadata-key name defined for target/propertyKey, in
// no particular order.
func (s *metadataStore) Keys(target value.Value, propertyKey string) []string {
	k := metaKey{target: target.IdentityKey(), propertyKey: propertyKey}
	if cached, ok := s.keyNames.Get(k); ok {
		return cached.([]string)
	}
	byKey, ok := s.entries[k]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(byKey))
	for name := range byKey {
		names = append(names, name)
	}
	s.keyNames.Add(k, names)
	return names
}

// DefineMetadata, GetMetadata, HasMetadata, DeleteMetadata, and
// GetMetadataKeys are the Reflector-level entry points the native
// handlers below call; kept as thin forwarders so tests can exercise the
// store without going through the NativeCall ABI.
func (r *Reflector) DefineMetadata(metadataKey string, v value.Value, target value.Value, propertyKey string) {
	r.metadata.Define(metadataKey, v, target, propertyKey)
}

func (r *Reflector) GetMetadata(metadataKey string, target value.Value, propertyKey string) (value.Value, bool) {
	return r.metadata.Get(metadataKey, target, propertyKey)
}

func (r *Reflector) HasMetadata(metadataKey string, target value.Value, propertyKey string) bool {
	return r.metadata.Has(metadataKey, target, propertyKey)
}

func (r *Reflector) DeleteMetadata(metadataKey string, target value.Value, propertyKey string) bool {
	return r.metadata.Delete(metadataKey, target, propertyKey)
}

func (r *Reflector) GetMetadataKeys(target value.Value, propertyKey string) []string {
	return r.metadata.Keys(target, propertyKey)
}

// Native ids for the metadata-store family (spec §4.4).
const (
	MetaDefine NativeID = RangeMetadata + iota
	MetaGet
	MetaHas
	MetaDelete
	MetaGetKeys
)

func argString(args []value.Value, i int, what string) (string, error) {
	if i >= len(args) {
		return "", rerrors.ArgumentCountMismatch("%s: missing argument %d", what, i)
	}
	s, ok := heap.AsString(args[i])
	if !ok {
		return "", rerrors.TypeError("%s: argument %d must be a string", what, i)
	}
	return s.String(), nil
}

func argOr(args []value.Value, i int) value.Value {
	if i >= len(args) {
		return value.Null()
	}
	return args[i]
}

func registerMetadata(table *nativeabi.Table, r *Reflector) {
	table.Register(MetaDefine, "reflect.defineMetadata", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		key, err := argString(args, 0, "reflect.defineMetadata")
		if err != nil {
			return nativeabi.Result{}, err
		}
		v := argOr(args, 1)
		target := argOr(args, 2)
		prop, _ := argString(args, 3, "reflect.defineMetadata")
		r.DefineMetadata(key, v, target, prop)
		return nativeabi.Pushed(value.Null()), nil
	})

	table.Register(MetaGet, "reflect.getMetadata", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		key, err := argString(args, 0, "reflect.getMetadata")
		if err != nil {
			return nativeabi.Result{}, err
		}
		target := argOr(args, 1)
		prop, _ := argString(args, 2, "reflect.getMetadata")
		v, ok := r.GetMetadata(key, target, prop)
		if !ok {
			return nativeabi.Pushed(value.Null()), nil
		}
		return nativeabi.Pushed(v), nil
	})

	table.Register(MetaHas, "reflect.hasMetadata", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		key, err := argString(args, 0, "reflect.hasMetadata")
		if err != nil {
			return nativeabi.Result{}, err
		}
		target := argOr(args, 1)
		prop, _ := argString(args, 2, "reflect.hasMetadata")
		return nativeabi.Pushed(value.Bool(r.HasMetadata(key, target, prop))), nil
	})

	table.Register(MetaDelete, "reflect.deleteMetadata", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		key, err := argString(args, 0, "reflect.deleteMetadata")
		if err != nil {
			return nativeabi.Result{}, err
		}
		target := argOr(args, 1)
		prop, _ := argString(args, 2, "reflect.deleteMetadata")
		return nativeabi.Pushed(value.Bool(r.DeleteMetadata(key, target, prop))), nil
	})

	table.Register(MetaGetKeys, "reflect.getMetadataKeys", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		target := argOr(args, 0)
		prop, _ := argString(args, 1, "reflect.getMetadataKeys")
		names := r.GetMetadataKeys(target, prop)
		arrVal, err := ctx.Heap.NewArray(len(names))
		if err != nil {
			return nativeabi.Result{}, err
		}
		arr, _ := heap.AsArray(arrVal)
		for i, n := range names {
			sv, err := ctx.Heap.NewString(n)
			if err != nil {
				return nativeabi.Result{}, err
			}
			arr.Set(i, sv)
		}
		return nativeabi.Pushed(arrVal), nil
	})
}
