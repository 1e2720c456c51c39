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

// Package heap is the Raya object heap and tracing garbage collector.
//
// Every heap-allocated value (Object, Array, RayaString, Closure, MapObject,
// SetObject, Buffer, DateObject, RegExpObject, ChannelObject, Proxy) is
// registered here at allocation time and carries a stable identity id for
// its lifetime. Collect runs a precise mark-sweep over a set of registered
// RootSources (each Task's stack, captures, and the reflection metadata
// store) — never a conservative scan — per spec §5.
//
// The heap is touched only by the single scheduler thread (spec §5), so no
// internal locking guards object storage; allocation admission uses a
// semaphore purely as a byte-budget counter, grounded on the teacher's
// go.mod dependency on golang.org/x/sync.
package heap

import (
	"golang.org/x/sync/semaphore"

	"github.com/rayalang/raya/rerrors"
	"github.com/rayalang/raya/value"
)

// DefaultLimit is the default total-allocated-bytes ceiling (16 MiB),
// generalized from the teacher's 4 MiB single-VM arena limit
// (probe-lang/lang/vm/memory.go's DefaultMemoryLimit) to the larger,
// multi-task Raya heap.
const DefaultLimit uint64 = 16 * 1024 * 1024

// Header is embedded in every heap object. It carries the GC mark bit, the
// stable identity id, and the object's declared byte size (for
// getObjectSize / getRetainedSize).
type Header struct {
	id     uint64
	kind   value.HeapKind
	size   uint64
	marked bool
}

// ID returns the object's stable identity id (spec P3: stable across GC
// cycles while the object remains reachable).
func (h *Header) ID() uint64 { return h.id }

// Kind returns the heap object's discriminator.
func (h *Header) Kind() value.HeapKind { return h.kind }

// Size returns the object's declared byte size.
func (h *Header) Size() uint64 { return h.size }

// Obj is implemented by every concrete heap object type. Refs reports the
// Values this object directly holds, for GC tracing and for reflection's
// getReferences.
type Obj interface {
	Hdr() *Header
	Refs() []value.Value
}

// RootSource is anything the GC must treat as a source of root Values: a
// Task's stack (operand slots + locals), a Task's capture list, or the
// reflection metadata store's value side.
type RootSource interface {
	VisitRoots(func(value.Value))
}

// Heap owns every live object and the registered root sources that keep
// them alive.
type Heap struct {
	objects   map[uint64]Obj
	nextID    uint64
	used      uint64
	limit     uint64
	admission *semaphore.Weighted
	roots     []RootSource

	stats Stats
}

// Stats summarizes the heap for reflection's getHeapStats.
type Stats struct {
	LiveObjects  int
	BytesUsed    uint64
	BytesLimit   uint64
	Collections  uint64
	LastFreed    int
	LastFreedPct float64
}

// New creates a Heap with the given byte limit (DefaultLimit if 0).
func New(limit uint64) *Heap {
	if limit == 0 {
		limit = DefaultLimit
	}
	return &Heap{
		objects:   make(map[uint64]Obj),
		limit:     limit,
		admission: semaphore.NewWeighted(int64(limit)),
	}
}

// RegisterRoot adds a RootSource the GC must trace from. Typically called
// once per Task at spawn time and once for the metadata store.
func (h *Heap) RegisterRoot(rs RootSource) { h.roots = append(h.roots, rs) }

// UnregisterRoot removes a previously registered RootSource (called when a
// Task is reaped after COMPLETED/FAILED/CANCELLED, per spec P9).
func (h *Heap) UnregisterRoot(rs RootSource) {
	for i, r := range h.roots {
		if r == rs {
			h.roots = append(h.roots[:i], h.roots[i+1:]...)
			return
		}
	}
}

// admit reserves size bytes from the heap's byte budget and returns a new
// Header carrying a fresh id; the caller inserts the finished object into
// the live-object table with register.
func (h *Heap) admit(kind value.HeapKind, size uint64) (*Header, error) {
	if !h.admission.TryAcquire(int64(size)) {
		return nil, rerrors.RuntimeError("heap: out of memory (limit %d bytes)", h.limit)
	}
	h.used += size
	h.nextID++
	return &Header{id: h.nextID, kind: kind, size: size}, nil
}

// register inserts obj into the live-object table under its header id.
func (h *Heap) register(o Obj) {
	h.objects[o.Hdr().id] = o
}

// Lookup returns the live object with the given identity id, if any.
func (h *Heap) Lookup(id uint64) (Obj, bool) {
	o, ok := h.objects[id]
	return o, ok
}

// Used returns the current number of allocated bytes.
func (h *Heap) Used() uint64 { return h.used }

// Limit returns the configured byte ceiling.
func (h *Heap) Limit() uint64 { return h.limit }

// LiveCount returns the number of currently-registered live objects.
func (h *Heap) LiveCount() int { return len(h.objects) }

// VisitObjects calls visit once for every currently-live object, in no
// particular order. Used by reflection's heap-introspection family
// (getHeapStats, findInstances, getReferrers), which need to scan the
// whole live set rather than start from a single root.
func (h *Heap) VisitObjects(visit func(id uint64, o Obj)) {
	for id, o := range h.objects {
		visit(id, o)
	}
}

// Stats returns a snapshot of heap statistics (reflection's getHeapStats).
func (h *Heap) Stats() Stats {
	s := h.stats
	s.LiveObjects = len(h.objects)
	s.BytesUsed = h.used
	s.BytesLimit = h.limit
	return s
}

// Collect runs one precise mark-sweep cycle: mark every Value reachable
// from a registered root, then drop every unmarked object from the live
// table (releasing its byte budget and letting the host Go GC reclaim the
// backing memory once nothing else references it).
func (h *Heap) Collect() Stats {
	for _, o := range h.objects {
		o.Hdr().marked = false
	}
	for _, rs := range h.roots {
		rs.VisitRoots(func(v value.Value) { h.mark(v) })
	}
	freed := 0
	var freedBytes uint64
	for id, o := range h.objects {
		if !o.Hdr().marked {
			delete(h.objects, id)
			freedBytes += o.Hdr().size
			freed++
		}
	}
	if freedBytes > 0 {
		h.admission.Release(int64(freedBytes))
		h.used -= freedBytes
	}
	h.stats.Collections++
	h.stats.LastFreed = freed
	if len(h.objects)+freed > 0 {
		h.stats.LastFreedPct = 100 * float64(freed) / float64(len(h.objects)+freed)
	}
	return h.Stats()
}

// mark marks v (and everything it transitively references) reachable.
func (h *Heap) mark(v value.Value) {
	if !v.IsPtr() {
		return
	}
	o, ok := h.objects[h.idOf(v)]
	if !ok || o.Hdr().marked {
		return
	}
	o.Hdr().marked = true
	for _, ref := range o.Refs() {
		h.mark(ref)
	}
}

// idOf resolves a pointer Value to its registered object's header id by
// reading the Header embedded at the pointer address directly — every
// concrete heap type embeds Header as its first field, a contract each
// constructor in this package upholds.
func (h *Heap) idOf(v value.Value) uint64 {
	o := objAt(v)
	if o == nil {
		return 0
	}
	return o.Hdr().id
}

// objAt reinterprets v's raw address as the concrete Obj its Kind implies.
// Centralizing the switch here means every other accessor (AsObject,
// AsArray, ...) can stay a one-line kind check.
func objAt(v value.Value) Obj {
	ptr := v.Ptr()
	if ptr == nil {
		return nil
	}
	switch v.Kind() {
	case value.KindObject:
		return (*Object)(ptr)
	case value.KindArray:
		return (*Array)(ptr)
	case value.KindString:
		return (*RayaString)(ptr)
	case value.KindClosure:
		return (*Closure)(ptr)
	case value.KindMap:
		return (*MapObject)(ptr)
	case value.KindSet:
		return (*SetObject)(ptr)
	case value.KindBuffer:
		return (*Buffer)(ptr)
	case value.KindDate:
		return (*DateObject)(ptr)
	case value.KindRegExp:
		return (*RegExpObject)(ptr)
	case value.KindChannel:
		return (*ChannelObject)(ptr)
	case value.KindProxy:
		return (*Proxy)(ptr)
	default:
		return nil
	}
}

// ObjAt is the exported form of objAt, used by reflection and GC-adjacent
// callers (e.g. scheduler reaping a Task's captures) that need the generic
// Obj view of a pointer Value without importing a concrete type.
func ObjAt(v value.Value) Obj { return objAt(v) }
