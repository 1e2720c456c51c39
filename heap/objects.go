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

package heap

import (
	"encoding/binary"
	"math"
	"unsafe"

	mapset "github.com/deckarep/golang-set"
	"golang.org/x/crypto/sha3"

	"github.com/rayalang/raya/rerrors"
	"github.com/rayalang/raya/value"
)

// ---- Object -----------------------------------------------------------

// Object is a class instance: a class id plus a fixed-length field array,
// zero-initialized to null (spec §3.2).
type Object struct {
	Header
	ClassID uint32
	Fields  []value.Value
}

func (o *Object) Hdr() *Header       { return &o.Header }
func (o *Object) Refs() []value.Value { return o.Fields }

// NewObject allocates an Object of classID with fieldCount null fields.
func (h *Heap) NewObject(classID uint32, fieldCount int) (value.Value, error) {
	size := uint64(16 + fieldCount*24)
	hdr, err := h.admit(value.KindObject, size)
	if err != nil {
		return value.Value{}, err
	}
	o := &Object{Header: *hdr, ClassID: classID, Fields: make([]value.Value, fieldCount)}
	h.register(o)
	return value.Ptr(value.KindObject, unsafe.Pointer(o)), nil
}

// AsObject downcasts v to *Object, returning ok=false on kind mismatch.
func AsObject(v value.Value) (*Object, bool) {
	p, ok := v.AsPtr(value.KindObject)
	if !ok {
		return nil, false
	}
	return (*Object)(p), true
}

// ---- Array --------------------------------------------------------------

// Array is a dynamic Value sequence.
type Array struct {
	Header
	elems []value.Value
}

func (a *Array) Hdr() *Header        { return &a.Header }
func (a *Array) Refs() []value.Value { return a.elems }
func (a *Array) Len() int            { return len(a.elems) }

func (a *Array) Get(i int) (value.Value, bool) {
	if i < 0 || i >= len(a.elems) {
		return value.Value{}, false
	}
	return a.elems[i], true
}

func (a *Array) Set(i int, v value.Value) bool {
	if i < 0 || i >= len(a.elems) {
		return false
	}
	a.elems[i] = v
	return true
}

func (a *Array) Push(v value.Value) { a.elems = append(a.elems, v) }

// NewArray allocates an Array with count null elements.
func (h *Heap) NewArray(count int) (value.Value, error) {
	hdr, err := h.admit(value.KindArray, uint64(16+count*24))
	if err != nil {
		return value.Value{}, err
	}
	elems := make([]value.Value, count)
	for i := range elems {
		elems[i] = value.Null()
	}
	a := &Array{Header: *hdr, elems: elems}
	h.register(a)
	return value.Ptr(value.KindArray, unsafe.Pointer(a)), nil
}

func AsArray(v value.Value) (*Array, bool) {
	p, ok := v.AsPtr(value.KindArray)
	if !ok {
		return nil, false
	}
	return (*Array)(p), true
}

// ---- RayaString -----------------------------------------------------------

// RayaString is an immutable, content-hashable UTF-8 byte sequence.
type RayaString struct {
	Header
	bytes []byte
	hash  uint64
	once  bool
}

func (s *RayaString) Hdr() *Header        { return &s.Header }
func (s *RayaString) Refs() []value.Value { return nil }
func (s *RayaString) String() string      { return string(s.bytes) }
func (s *RayaString) Bytes() []byte       { return s.bytes }
func (s *RayaString) Len() int            { return len(s.bytes) }

// Hash returns a content hash of the string, memoized on first use.
// Computed with sha3 and truncated to 64 bits for use as a map/identity
// key.
func (s *RayaString) Hash() uint64 {
	if s.once {
		return s.hash
	}
	sum := sha3.Sum256(s.bytes)
	s.hash = binary.LittleEndian.Uint64(sum[:8])
	s.once = true
	return s.hash
}

// NewString allocates an immutable RayaString from the given text.
func (h *Heap) NewString(text string) (value.Value, error) {
	hdr, err := h.admit(value.KindString, uint64(24+len(text)))
	if err != nil {
		return value.Value{}, err
	}
	s := &RayaString{Header: *hdr, bytes: []byte(text)}
	h.register(s)
	return value.Ptr(value.KindString, unsafe.Pointer(s)), nil
}

func AsString(v value.Value) (*RayaString, bool) {
	p, ok := v.AsPtr(value.KindString)
	if !ok {
		return nil, false
	}
	return (*RayaString)(p), true
}

// ---- Closure ------------------------------------------------------------

// Closure pairs a function id with its captured Values.
type Closure struct {
	Header
	FunctionID   uint32
	Captures     []value.Value
}

func (c *Closure) Hdr() *Header        { return &c.Header }
func (c *Closure) Refs() []value.Value { return c.Captures }

// NewClosure allocates a Closure over functionID with the given captures.
func (h *Heap) NewClosure(functionID uint32, captures []value.Value) (value.Value, error) {
	hdr, err := h.admit(value.KindClosure, uint64(16+len(captures)*24))
	if err != nil {
		return value.Value{}, err
	}
	cp := make([]value.Value, len(captures))
	copy(cp, captures)
	c := &Closure{Header: *hdr, FunctionID: functionID, Captures: cp}
	h.register(c)
	return value.Ptr(value.KindClosure, unsafe.Pointer(c)), nil
}

func AsClosure(v value.Value) (*Closure, bool) {
	p, ok := v.AsPtr(value.KindClosure)
	if !ok {
		return nil, false
	}
	return (*Closure)(p), true
}

// ---- MapObject ------------------------------------------------------------

type mapEntry struct {
	key value.Value
	val value.Value
}

// MapObject is an insertion-ordered Value -> Value mapping.
type MapObject struct {
	Header
	entries []mapEntry
	index   map[any]int
}

func (m *MapObject) Hdr() *Header { return &m.Header }

func (m *MapObject) Refs() []value.Value {
	out := make([]value.Value, 0, len(m.entries)*2)
	for _, e := range m.entries {
		out = append(out, e.key, e.val)
	}
	return out
}

func (m *MapObject) Size() int { return len(m.entries) }

func (m *MapObject) Get(key value.Value) (value.Value, bool) {
	i, ok := m.index[key.IdentityKey()]
	if !ok {
		return value.Value{}, false
	}
	return m.entries[i].val, true
}

func (m *MapObject) Has(key value.Value) bool {
	_, ok := m.index[key.IdentityKey()]
	return ok
}

// Set inserts or updates key -> val, returning true if key was newly added.
func (m *MapObject) Set(key, val value.Value) bool {
	k := key.IdentityKey()
	if i, ok := m.index[k]; ok {
		m.entries[i].val = val
		return false
	}
	m.index[k] = len(m.entries)
	m.entries = append(m.entries, mapEntry{key: key, val: val})
	return true
}

// Delete removes key, preserving insertion order of the remaining entries.
func (m *MapObject) Delete(key value.Value) bool {
	k := key.IdentityKey()
	i, ok := m.index[k]
	if !ok {
		return false
	}
	m.entries = append(m.entries[:i], m.entries[i+1:]...)
	delete(m.index, k)
	for j := i; j < len(m.entries); j++ {
		m.index[m.entries[j].key.IdentityKey()] = j
	}
	return true
}

func (m *MapObject) Clear() {
	m.entries = nil
	m.index = make(map[any]int)
}

func (m *MapObject) Keys() []value.Value {
	out := make([]value.Value, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.key
	}
	return out
}

func (m *MapObject) Values() []value.Value {
	out := make([]value.Value, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.val
	}
	return out
}

func (m *MapObject) Entries() [][2]value.Value {
	out := make([][2]value.Value, len(m.entries))
	for i, e := range m.entries {
		out[i] = [2]value.Value{e.key, e.val}
	}
	return out
}

// NewMap allocates an empty MapObject.
func (h *Heap) NewMap() (value.Value, error) {
	hdr, err := h.admit(value.KindMap, 48)
	if err != nil {
		return value.Value{}, err
	}
	m := &MapObject{Header: *hdr, index: make(map[any]int)}
	h.register(m)
	return value.Ptr(value.KindMap, unsafe.Pointer(m)), nil
}

func AsMap(v value.Value) (*MapObject, bool) {
	p, ok := v.AsPtr(value.KindMap)
	if !ok {
		return nil, false
	}
	return (*MapObject)(p), true
}

// ---- SetObject ------------------------------------------------------------

// SetObject is an insertion-ordered set of Values. Membership and set
// algebra (union/intersection/difference) are delegated to
// github.com/deckarep/golang-set; a parallel order slice preserves
// insertion order for Values(), which mapset's internal map does not.
type SetObject struct {
	Header
	order []value.Value
	set   mapset.Set
}

func (s *SetObject) Hdr() *Header        { return &s.Header }
func (s *SetObject) Refs() []value.Value { return s.order }
func (s *SetObject) Size() int           { return s.set.Cardinality() }

func (s *SetObject) Has(v value.Value) bool { return s.set.Contains(v) }

// Add inserts v, returning true if it was newly added.
func (s *SetObject) Add(v value.Value) bool {
	if s.set.Contains(v) {
		return false
	}
	s.set.Add(v)
	s.order = append(s.order, v)
	return true
}

func (s *SetObject) Delete(v value.Value) bool {
	if !s.set.Contains(v) {
		return false
	}
	s.set.Remove(v)
	for i, e := range s.order {
		if e.StrictEquals(v) {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *SetObject) Clear() {
	s.set = mapset.NewSet()
	s.order = nil
}

func (s *SetObject) Values() []value.Value {
	out := make([]value.Value, len(s.order))
	copy(out, s.order)
	return out
}

// NewSet allocates an empty SetObject.
func (h *Heap) NewSet() (value.Value, error) {
	hdr, err := h.admit(value.KindSet, 48)
	if err != nil {
		return value.Value{}, err
	}
	s := &SetObject{Header: *hdr, set: mapset.NewSet()}
	h.register(s)
	return value.Ptr(value.KindSet, unsafe.Pointer(s)), nil
}

// NewSetFrom allocates a SetObject seeded with elems, used by Union /
// Intersection / Difference to build their result set.
func (h *Heap) NewSetFrom(elems []value.Value) (value.Value, error) {
	v, err := h.NewSet()
	if err != nil {
		return value.Value{}, err
	}
	s, _ := AsSet(v)
	for _, e := range elems {
		s.Add(e)
	}
	return v, nil
}

func AsSet(v value.Value) (*SetObject, bool) {
	p, ok := v.AsPtr(value.KindSet)
	if !ok {
		return nil, false
	}
	return (*SetObject)(p), true
}

// Union, Intersection, and Difference return the algebraic Value slice
// (caller allocates the result SetObject via NewSetFrom) — delegated to
// mapset's set algebra rather than hand-rolled loops.
func (s *SetObject) Union(other *SetObject) []value.Value {
	return toValues(s.set.Union(other.set))
}

func (s *SetObject) Intersection(other *SetObject) []value.Value {
	return toValues(s.set.Intersect(other.set))
}

func (s *SetObject) Difference(other *SetObject) []value.Value {
	return toValues(s.set.Difference(other.set))
}

func toValues(set mapset.Set) []value.Value {
	items := set.ToSlice()
	out := make([]value.Value, len(items))
	for i, it := range items {
		out[i] = it.(value.Value)
	}
	return out
}

// ---- Buffer ---------------------------------------------------------------

// Buffer is a mutable byte buffer with little-endian i32/f64 view ops.
type Buffer struct {
	Header
	Data []byte
}

func (b *Buffer) Hdr() *Header        { return &b.Header }
func (b *Buffer) Refs() []value.Value { return nil }
func (b *Buffer) Len() int            { return len(b.Data) }

func (b *Buffer) GetByte(i int) (byte, error) {
	if i < 0 || i >= len(b.Data) {
		return 0, rerrors.RuntimeError("buffer index %d out of range [0,%d)", i, len(b.Data))
	}
	return b.Data[i], nil
}

func (b *Buffer) SetByte(i int, v byte) error {
	if i < 0 || i >= len(b.Data) {
		return rerrors.RuntimeError("buffer index %d out of range [0,%d)", i, len(b.Data))
	}
	b.Data[i] = v
	return nil
}

func (b *Buffer) GetInt32(offset int) (int32, error) {
	if offset < 0 || offset+4 > len(b.Data) {
		return 0, rerrors.RuntimeError("buffer int32 read at %d out of range", offset)
	}
	return int32(binary.LittleEndian.Uint32(b.Data[offset:])), nil
}

func (b *Buffer) SetInt32(offset int, v int32) error {
	if offset < 0 || offset+4 > len(b.Data) {
		return rerrors.RuntimeError("buffer int32 write at %d out of range", offset)
	}
	binary.LittleEndian.PutUint32(b.Data[offset:], uint32(v))
	return nil
}

func (b *Buffer) GetFloat64(offset int) (float64, error) {
	if offset < 0 || offset+8 > len(b.Data) {
		return 0, rerrors.RuntimeError("buffer float64 read at %d out of range", offset)
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b.Data[offset:])), nil
}

func (b *Buffer) SetFloat64(offset int, v float64) error {
	if offset < 0 || offset+8 > len(b.Data) {
		return rerrors.RuntimeError("buffer float64 write at %d out of range", offset)
	}
	binary.LittleEndian.PutUint64(b.Data[offset:], math.Float64bits(v))
	return nil
}

func (b *Buffer) Slice(start, end int) ([]byte, error) {
	if start < 0 || end > len(b.Data) || start > end {
		return nil, rerrors.RuntimeError("buffer slice [%d:%d] out of range", start, end)
	}
	out := make([]byte, end-start)
	copy(out, b.Data[start:end])
	return out, nil
}

func (b *Buffer) CopyFrom(offset int, src []byte) error {
	if offset < 0 || offset+len(src) > len(b.Data) {
		return rerrors.RuntimeError("buffer copy at %d (len %d) out of range", offset, len(src))
	}
	copy(b.Data[offset:], src)
	return nil
}

// NewBuffer allocates a zeroed Buffer of size bytes.
func (h *Heap) NewBuffer(size int) (value.Value, error) {
	hdr, err := h.admit(value.KindBuffer, uint64(16+size))
	if err != nil {
		return value.Value{}, err
	}
	b := &Buffer{Header: *hdr, Data: make([]byte, size)}
	h.register(b)
	return value.Ptr(value.KindBuffer, unsafe.Pointer(b)), nil
}

func AsBuffer(v value.Value) (*Buffer, bool) {
	p, ok := v.AsPtr(value.KindBuffer)
	if !ok {
		return nil, false
	}
	return (*Buffer)(p), true
}

// ---- DateObject -------------------------------------------------------

// DateObject wraps an i64 millisecond timestamp.
type DateObject struct {
	Header
	Millis int64
}

func (d *DateObject) Hdr() *Header        { return &d.Header }
func (d *DateObject) Refs() []value.Value { return nil }

// NewDate allocates a DateObject at the given millisecond timestamp.
func (h *Heap) NewDate(millis int64) (value.Value, error) {
	hdr, err := h.admit(value.KindDate, 24)
	if err != nil {
		return value.Value{}, err
	}
	d := &DateObject{Header: *hdr, Millis: millis}
	h.register(d)
	return value.Ptr(value.KindDate, unsafe.Pointer(d)), nil
}

func AsDate(v value.Value) (*DateObject, bool) {
	p, ok := v.AsPtr(value.KindDate)
	if !ok {
		return nil, false
	}
	return (*DateObject)(p), true
}

// ---- RegExpObject -----------------------------------------------------

// RegExpObject is a compiled pattern plus its source and flag bits. The
// concrete compiled form (*regexp2.Regexp) is opaque here to avoid a
// heap -> builtins/regexp import cycle; builtins/regexp populates Compiled
// right after NewRegExp returns.
type RegExpObject struct {
	Header
	Source   string
	Flags    string
	Compiled any
}

func (r *RegExpObject) Hdr() *Header        { return &r.Header }
func (r *RegExpObject) Refs() []value.Value { return nil }

func (r *RegExpObject) HasFlag(f byte) bool {
	for i := 0; i < len(r.Flags); i++ {
		if r.Flags[i] == f {
			return true
		}
	}
	return false
}

// NewRegExp allocates a RegExpObject with no compiled form yet attached.
func (h *Heap) NewRegExp(source, flags string) (value.Value, error) {
	hdr, err := h.admit(value.KindRegExp, uint64(32+len(source)+len(flags)))
	if err != nil {
		return value.Value{}, err
	}
	r := &RegExpObject{Header: *hdr, Source: source, Flags: flags}
	h.register(r)
	return value.Ptr(value.KindRegExp, unsafe.Pointer(r)), nil
}

func AsRegExp(v value.Value) (*RegExpObject, bool) {
	p, ok := v.AsPtr(value.KindRegExp)
	if !ok {
		return nil, false
	}
	return (*RegExpObject)(p), true
}

// ---- ChannelObject ----------------------------------------------------

// WaiterID identifies a task parked on a ChannelObject's sender or receiver
// queue. It mirrors scheduler.TaskID without importing the scheduler
// package (which itself holds Values and would cycle back through heap).
type WaiterID uint64

// ChannelObject is a bounded Value queue with FIFO sender/receiver
// waitsets, closable exactly once.
type ChannelObject struct {
	Header
	Capacity  int
	queue     []value.Value
	closed    bool
	senders   []WaiterID
	receivers []WaiterID
}

func (c *ChannelObject) Hdr() *Header        { return &c.Header }
func (c *ChannelObject) Refs() []value.Value { return c.queue }

func (c *ChannelObject) Len() int       { return len(c.queue) }
func (c *ChannelObject) IsClosed() bool { return c.closed }

func (c *ChannelObject) TryEnqueue(v value.Value) bool {
	if len(c.queue) >= c.Capacity {
		return false
	}
	c.queue = append(c.queue, v)
	return true
}

func (c *ChannelObject) TryDequeue() (value.Value, bool) {
	if len(c.queue) == 0 {
		return value.Value{}, false
	}
	v := c.queue[0]
	c.queue = c.queue[1:]
	return v, true
}

func (c *ChannelObject) Close() { c.closed = true }

func (c *ChannelObject) ParkSender(id WaiterID)   { c.senders = append(c.senders, id) }
func (c *ChannelObject) ParkReceiver(id WaiterID) { c.receivers = append(c.receivers, id) }

// PopSender / PopReceiver drain waiters FIFO (spec §9: FIFO-drain on close
// and on ordinary wakeup alike).
func (c *ChannelObject) PopSender() (WaiterID, bool) {
	if len(c.senders) == 0 {
		return 0, false
	}
	id := c.senders[0]
	c.senders = c.senders[1:]
	return id, true
}

func (c *ChannelObject) PopReceiver() (WaiterID, bool) {
	if len(c.receivers) == 0 {
		return 0, false
	}
	id := c.receivers[0]
	c.receivers = c.receivers[1:]
	return id, true
}

func (c *ChannelObject) RemoveWaiter(id WaiterID) {
	c.senders = removeWaiter(c.senders, id)
	c.receivers = removeWaiter(c.receivers, id)
}

func removeWaiter(list []WaiterID, id WaiterID) []WaiterID {
	out := list[:0]
	for _, w := range list {
		if w != id {
			out = append(out, w)
		}
	}
	return out
}

// NewChannel allocates a ChannelObject with the given bounded capacity.
func (h *Heap) NewChannel(capacity int) (value.Value, error) {
	hdr, err := h.admit(value.KindChannel, uint64(32+capacity*24))
	if err != nil {
		return value.Value{}, err
	}
	c := &ChannelObject{Header: *hdr, Capacity: capacity}
	h.register(c)
	return value.Ptr(value.KindChannel, unsafe.Pointer(c)), nil
}

func AsChannel(v value.Value) (*ChannelObject, bool) {
	p, ok := v.AsPtr(value.KindChannel)
	if !ok {
		return nil, false
	}
	return (*ChannelObject)(p), true
}

// ---- Proxy --------------------------------------------------------------

// Proxy pairs a target Value with a handler Value implementing trap
// functions (interception is implemented by the interpreter/native layer;
// heap only owns the pairing).
type Proxy struct {
	Header
	Target  value.Value
	Handler value.Value
}

func (p *Proxy) Hdr() *Header        { return &p.Header }
func (p *Proxy) Refs() []value.Value { return []value.Value{p.Target, p.Handler} }

// NewProxy allocates a Proxy over target with handler.
func (h *Heap) NewProxy(target, handler value.Value) (value.Value, error) {
	hdr, err := h.admit(value.KindProxy, 48)
	if err != nil {
		return value.Value{}, err
	}
	p := &Proxy{Header: *hdr, Target: target, Handler: handler}
	h.register(p)
	return value.Ptr(value.KindProxy, unsafe.Pointer(p)), nil
}

func AsProxy(v value.Value) (*Proxy, bool) {
	p, ok := v.AsPtr(value.KindProxy)
	if !ok {
		return nil, false
	}
	return (*Proxy)(p), true
}
