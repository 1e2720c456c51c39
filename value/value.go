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

// Package value implements the tagged Value that flows through every stack
// slot, local, field, and native-call argument in the Raya VM.
//
// A Value is either a primitive (null, boolean, 32-bit integer, 64-bit
// float, 64-bit unsigned handle, 64-bit signed integer) or a non-null
// pointer into the heap,
// discriminated by a HeapKind tag carried alongside the pointer. Unlike a
// register-machine word backed by plain uint64 registers, Value must
// self-describe its type, because the interpreter, the GC, and
// the reflection surface all need to answer "what is this" without any
// other context. Copying a Value is a flat struct copy — no refcounting.
package value

import "unsafe"

// HeapKind discriminates the concrete heap object a pointer Value addresses.
type HeapKind uint8

const (
	KindObject HeapKind = iota
	KindArray
	KindString
	KindClosure
	KindMap
	KindSet
	KindBuffer
	KindDate
	KindRegExp
	KindChannel
	KindProxy
	KindJSON
	KindTask
)

func (k HeapKind) String() string {
	switch k {
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	case KindString:
		return "string"
	case KindClosure:
		return "function"
	case KindMap:
		return "map"
	case KindSet:
		return "set"
	case KindBuffer:
		return "buffer"
	case KindDate:
		return "date"
	case KindRegExp:
		return "regexp"
	case KindChannel:
		return "channel"
	case KindProxy:
		return "proxy"
	case KindJSON:
		return "json"
	case KindTask:
		return "task"
	default:
		return "unknown"
	}
}

type tag uint8

const (
	tagNull tag = iota
	tagBool
	tagI32
	tagF64
	tagU64
	tagI64
	tagPtr
)

// Value is the uniform 64-bit-payload tagged value. The struct is larger
// than one machine word (tag + payload + pointer + heap-kind) because Go
// offers no portable way to steal spare bits out of a real pointer the way
// a hand-rolled NaN-boxing scheme would; what the spec asks for — cheap
// branch-based discrimination and a flat, refcount-free copy — is preserved
// exactly, just laid out as a small struct rather than packed into 64 bits.
type Value struct {
	t    tag
	bits uint64
	ptr  unsafe.Pointer
	kind HeapKind
}

// Null is the distinct null singleton primitive.
func Null() Value { return Value{t: tagNull} }

// Bool constructs a boolean primitive.
func Bool(b bool) Value {
	var bits uint64
	if b {
		bits = 1
	}
	return Value{t: tagBool, bits: bits}
}

// I32 constructs a 32-bit integer primitive.
func I32(i int32) Value { return Value{t: tagI32, bits: uint64(uint32(i))} }

// F64 constructs a 64-bit float primitive.
func F64(f float64) Value { return Value{t: tagF64, bits: float64bits(f)} }

// U64 constructs a 64-bit unsigned handle primitive (used for opaque ids:
// object identities, builder handles, task ids).
func U64(u uint64) Value { return Value{t: tagU64, bits: u} }

// I64 constructs a 64-bit signed integer primitive (millisecond timestamps,
// wide arithmetic results).
func I64(i int64) Value { return Value{t: tagI64, bits: uint64(i)} }

// Ptr constructs a pointer Value addressing a live heap object of the given
// kind. addr must be non-nil — a boxed pointer is never null per the
// invariant in spec §3.1.
func Ptr(kind HeapKind, addr unsafe.Pointer) Value {
	if addr == nil {
		panic("value: Ptr called with nil address")
	}
	return Value{t: tagPtr, kind: kind, ptr: addr}
}

func float64bits(f float64) uint64 {
	return *(*uint64)(unsafe.Pointer(&f))
}

func bitsFloat64(b uint64) float64 {
	return *(*float64)(unsafe.Pointer(&b))
}

// IsNull reports whether v is the null singleton.
func (v Value) IsNull() bool { return v.t == tagNull }

// IsPtr reports whether v addresses a heap object.
func (v Value) IsPtr() bool { return v.t == tagPtr }

// IsBool, IsI32, IsF64, IsU64, IsI64 report the primitive tag of v.
func (v Value) IsBool() bool { return v.t == tagBool }
func (v Value) IsI32() bool  { return v.t == tagI32 }
func (v Value) IsF64() bool  { return v.t == tagF64 }
func (v Value) IsU64() bool  { return v.t == tagU64 }
func (v Value) IsI64() bool  { return v.t == tagI64 }

// AsBool returns (b, true) if v is a boolean, else (false, false).
func (v Value) AsBool() (bool, bool) {
	if v.t != tagBool {
		return false, false
	}
	return v.bits != 0, true
}

// AsI32 returns (i, true) if v is a 32-bit integer, else (0, false).
func (v Value) AsI32() (int32, bool) {
	if v.t != tagI32 {
		return 0, false
	}
	return int32(uint32(v.bits)), true
}

// AsF64 returns (f, true) if v is a 64-bit float, else (0, false).
func (v Value) AsF64() (float64, bool) {
	if v.t != tagF64 {
		return 0, false
	}
	return bitsFloat64(v.bits), true
}

// AsU64 returns (u, true) if v is a 64-bit handle, else (0, false).
func (v Value) AsU64() (uint64, bool) {
	if v.t != tagU64 {
		return 0, false
	}
	return v.bits, true
}

// AsI64 returns (i, true) if v is a 64-bit signed integer, else (0, false).
func (v Value) AsI64() (int64, bool) {
	if v.t != tagI64 {
		return 0, false
	}
	return int64(v.bits), true
}

// Kind returns the HeapKind of a pointer Value. Only meaningful if IsPtr().
func (v Value) Kind() HeapKind { return v.kind }

// Ptr returns the raw heap address of a pointer Value. Only meaningful if
// IsPtr(); callers downcast through the heap package's typed accessors,
// which re-check Kind() before reinterpreting the address.
func (v Value) Ptr() unsafe.Pointer { return v.ptr }

// AsPtr returns (addr, true) if v is a pointer of exactly the given kind.
func (v Value) AsPtr(want HeapKind) (unsafe.Pointer, bool) {
	if v.t != tagPtr || v.kind != want {
		return nil, false
	}
	return v.ptr, true
}

// NumericValue returns the f64 value of any numeric Value (i32, f64, u64,
// i64), used for the spec's "numeric values of different precision are
// compared by their f64 value" equality rule.
func (v Value) NumericValue() (float64, bool) {
	switch v.t {
	case tagI32:
		return float64(int32(uint32(v.bits))), true
	case tagF64:
		return bitsFloat64(v.bits), true
	case tagU64:
		return float64(v.bits), true
	case tagI64:
		return float64(int64(v.bits)), true
	}
	return 0, false
}

// IsNumeric reports whether v holds one of the numeric primitive tags.
func (v Value) IsNumeric() bool {
	switch v.t {
	case tagI32, tagF64, tagU64, tagI64:
		return true
	}
	return false
}

// StrictEquals implements the interpreter's strict-equality opcode: value
// equality on primitives (with cross-precision numeric comparison), and
// pointer identity on heap values. It never coerces between primitive
// kinds (e.g. bool vs number) and never coerces a pointer to a primitive.
func (a Value) StrictEquals(b Value) bool {
	if a.IsNull() && b.IsNull() {
		return true
	}
	if a.IsNumeric() && b.IsNumeric() {
		av, _ := a.NumericValue()
		bv, _ := b.NumericValue()
		return av == bv
	}
	if a.t != b.t {
		return false
	}
	switch a.t {
	case tagBool:
		return a.bits == b.bits
	case tagPtr:
		return a.kind == b.kind && a.ptr == b.ptr
	}
	return false
}

// IdentityKey returns a stable, comparable Go value suitable for use as a
// map key identifying this Value's identity: the pointer bits for a heap
// value, or a tagged encoding of the primitive otherwise. Used by the
// metadata store (spec §4.4) to key entries on "the identity of the Value
// passed in".
func (v Value) IdentityKey() any {
	if v.t == tagPtr {
		return v.ptr
	}
	return struct {
		t    tag
		bits uint64
	}{v.t, v.bits}
}
