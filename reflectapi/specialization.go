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
	"strings"

	"github.com/rayalang/raya/nativeabi"
	"github.com/rayalang/raya/rerrors"
	"github.com/rayalang/raya/value"
)

// specializationKey is (function id, argument shape) — a cheap structural
// fingerprint of the call's argument kinds, not their values, so two calls
// with the same shape but different numbers hit the same cache entry.
type specializationKey struct {
	functionID uint32
	shape      string
}

// shapeOf renders args' kinds as a compact string key.
func shapeOf(args []value.Value) string {
	var b strings.Builder
	for i, a := range args {
		if i > 0 {
			b.WriteByte(',')
		}
		switch {
		case a.IsNull():
			b.WriteString("null")
		case a.IsBool():
			b.WriteString("bool")
		case a.IsI32(), a.IsF64(), a.IsU64(), a.IsI64():
			b.WriteString("num")
		case a.IsPtr():
			b.WriteString(a.Kind().String())
		default:
			b.WriteByte('?')
		}
	}
	return b.String()
}

// SpecializationEntry is one cached specialization: the function id it
// specializes, the argument shape it was compiled for, and an opaque
// payload (e.g. a dynamically-built function id from a BytecodeBuilder,
// or a host-defined tag) a compiler/JIT layer above this package attaches.
type SpecializationEntry struct {
	FunctionID uint32
	Shape      string
	Payload    value.Value
}

// LookupSpecialization returns a previously cached specialization for
// (functionID, args' shape), if any. The LRU bound on Reflector.specialCache
// means a cold shape evicts the least-recently-used entry rather than
// growing the cache unboundedly (spec's "optional" specialization cache:
// a cache miss just means recompute, never an error).
func (r *Reflector) LookupSpecialization(functionID uint32, args []value.Value) (SpecializationEntry, bool) {
	key := specializationKey{functionID: functionID, shape: shapeOf(args)}
	v, ok := r.specialCache.Get(key)
	if !ok {
		return SpecializationEntry{}, false
	}
	return v.(SpecializationEntry), true
}

// StoreSpecialization records payload as the specialization for
// (functionID, args' shape).
func (r *Reflector) StoreSpecialization(functionID uint32, args []value.Value, payload value.Value) {
	shape := shapeOf(args)
	r.specialCache.Add(specializationKey{functionID: functionID, shape: shape}, SpecializationEntry{
		FunctionID: functionID,
		Shape:      shape,
		Payload:    payload,
	})
}

// InvalidateSpecialization drops every cached specialization for
// functionID, e.g. after a BytecodeBuilder re-finalizes it.
func (r *Reflector) InvalidateSpecialization(functionID uint32) {
	for _, k := range r.specialCache.Keys() {
		sk, ok := k.(specializationKey)
		if ok && sk.functionID == functionID {
			r.specialCache.Remove(k)
		}
	}
}

func registerSpecialize(table *nativeabi.Table, r *Reflector) {
	table.Register(RangeSpecialize, "reflect.lookupSpecialization", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		if len(args) < 1 {
			return nativeabi.Result{}, rerrors.ArgumentCountMismatch("reflect.lookupSpecialization expects (functionId, ...callArgs)")
		}
		fnID, err := argClassID(args, 0, "reflect.lookupSpecialization")
		if err != nil {
			return nativeabi.Result{}, err
		}
		entry, ok := r.LookupSpecialization(fnID, args[1:])
		if !ok {
			return nativeabi.Pushed(value.Null()), nil
		}
		return nativeabi.Pushed(entry.Payload), nil
	})

	table.Register(RangeSpecialize+1, "reflect.storeSpecialization", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		if len(args) < 2 {
			return nativeabi.Result{}, rerrors.ArgumentCountMismatch("reflect.storeSpecialization expects (functionId, payload, ...callArgs)")
		}
		fnID, err := argClassID(args, 0, "reflect.storeSpecialization")
		if err != nil {
			return nativeabi.Result{}, err
		}
		payload := args[1]
		r.StoreSpecialization(fnID, args[2:], payload)
		return nativeabi.Pushed(value.Null()), nil
	})

	table.Register(RangeSpecialize+2, "reflect.invalidateSpecialization", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		fnID, err := argClassID(args, 0, "reflect.invalidateSpecialization")
		if err != nil {
			return nativeabi.Result{}, err
		}
		r.InvalidateSpecialization(fnID)
		return nativeabi.Pushed(value.Null()), nil
	})
}
