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

// Package nativeabi is the native-call dispatch layer (spec §4.4, §6):
// a fixed, versioned registry of bit-stable 16-bit NativeIDs grouped by
// domain, plus the per-Module resolved-natives table that ModuleNativeCall
// indexes into.
//
// Domain handlers themselves (channel, buffer, map, set, date, regexp,
// json) live in builtins/ and register into the Table built here;
// reflectapi registers its own much larger id range the same way. Keeping
// registration external to this package is what lets nativeabi stay free
// of a dependency on either without an import cycle.
//
// Id ranges are grounded on the Rust original's
// raya-engine/src/vm/interpreter/opcodes/native.rs layout, kept bit-stable
// within this deployed runtime per spec §6 even though the ranges
// themselves are not required to match another implementation's.
package nativeabi

import (
	"github.com/rayalang/raya/heap"
	"github.com/rayalang/raya/module"
	"github.com/rayalang/raya/rerrors"
	"github.com/rayalang/raya/scheduler"
	"github.com/rayalang/raya/value"
)

// NativeID is a bit-stable 16-bit native operation id.
type NativeID uint16

// Id ranges, one base per domain family (spec §6).
const (
	RangeChannel NativeID = 0x0000
	RangeBuffer  NativeID = 0x0100
	RangeMutex   NativeID = 0x0200
	RangeMap     NativeID = 0x0300
	RangeSet     NativeID = 0x0400
	RangeReflect NativeID = 0x0500 // through 0x0E2F
	RangeDate    NativeID = 0x0F00
	RangeRegExp  NativeID = 0x0F80
	RangeNumber  NativeID = 0x0A00
	RangeObject  NativeID = 0x0B00
	RangeJSON    NativeID = 0x0C00
	RangeTask    NativeID = 0x0D00
	RangeError   NativeID = 0x0E30
)

// Well-known ids within each range.
const (
	ChannelSend NativeID = RangeChannel + iota
	ChannelReceive
	ChannelTryReceive
	ChannelClose
	ChannelIsClosed
	ChannelLen
)

const (
	MutexAcquire NativeID = RangeMutex + iota
	MutexRelease
	MutexTryAcquire
)

const (
	MapGet NativeID = RangeMap + iota
	MapSet
	MapHas
	MapDelete
	MapSize
	MapKeys
	MapValues
	MapClear
)

const (
	SetAdd NativeID = RangeSet + iota
	SetHas
	SetDelete
	SetSize
	SetValues
	SetUnion
	SetIntersection
	SetDifference
	SetClear
)

const (
	DateNow NativeID = RangeDate + iota
	DateGetTime
	DateGetYear
	DateGetMonth
	DateGetDate
	DateGetHours
	DateGetMinutes
	DateGetSeconds
	DateGetMilliseconds
)

const (
	RegExpTest NativeID = RangeRegExp + iota
	RegExpExec
	RegExpSource
	RegExpFlags
)

const (
	NumberToString NativeID = RangeNumber + iota
	NumberParseFloat
	NumberParseInt
	NumberIsInteger
)

const (
	ObjectIdentity NativeID = RangeObject + iota
	ObjectEquals
	ObjectTypeName
)

const (
	JSONStringify NativeID = RangeJSON + iota
	JSONParse
)

const (
	TaskSpawnHandleState NativeID = RangeTask + iota
	TaskCancel
	TaskIsCancelled
)

const (
	ErrorStackTrace NativeID = RangeError + iota
	ErrorMessage
)

// Context is what every native handler receives: the running Task, the
// heap it may allocate through, the Module it was called from (for
// constants/classes), and the scheduler it may suspend into.
type Context struct {
	Heap      *heap.Heap
	Module    *module.Module
	Scheduler *scheduler.Scheduler
	Task      *scheduler.Task
}

// Result is what a native handler returns: either a Value to push, or a
// suspension reason (Value is ignored when Suspend is non-nil).
type Result struct {
	Value   value.Value
	Suspend *scheduler.Reason
}

// Pushed constructs a plain, non-suspending Result.
func Pushed(v value.Value) Result { return Result{Value: v} }

// Suspended constructs a suspending Result.
func Suspended(reason scheduler.Reason) Result { return Result{Suspend: &reason} }

// Handler implements one NativeID. args holds exactly the argc Values
// popped from the stack, ephemeral beyond this call per spec §4.4.
type Handler func(ctx *Context, args []value.Value) (Result, error)

// Table is the fixed, versioned native-call registry (dispatch path 1 of
// spec §4.4): a map from NativeID to Handler, built once
// at engine startup and never mutated at task-execution time, so
// dispatch is an O(1) lookup with no locking.
type Table struct {
	handlers map[NativeID]Handler
	names    map[string]NativeID
}

// NewTable creates an empty Table.
func NewTable() *Table {
	return &Table{handlers: make(map[NativeID]Handler), names: make(map[string]NativeID)}
}

// Register installs handler under id, additionally indexing it by name so
// ModuleNativeCall's link-time natives-needed[] resolution (spec §6) can
// look native ids up by the name a compiled Module references.
func (t *Table) Register(id NativeID, name string, handler Handler) {
	t.handlers[id] = handler
	if name != "" {
		t.names[name] = id
	}
}

// Dispatch invokes the handler registered for id.
func (t *Table) Dispatch(id NativeID, ctx *Context, args []value.Value) (Result, error) {
	h, ok := t.handlers[id]
	if !ok {
		return Result{}, rerrors.UnresolvedSymbol("no native handler registered for id 0x%04X", id)
	}
	return h(ctx, args)
}

// Resolve looks up the NativeID a native was registered under by name,
// used to build a Module's resolved-natives table from its
// NativesNeeded[] list at link time.
func (t *Table) Resolve(name string) (NativeID, bool) {
	id, ok := t.names[name]
	return id, ok
}

// ResolvedModuleTable is the per-Module resolved-natives table
// ModuleNativeCall(local_idx, argc) indexes into (dispatch path 2 of spec
// §4.4), built once at load time from a Module's NativesNeeded[] list.
type ResolvedModuleTable struct {
	ids []NativeID
}

// BuildResolvedModuleTable resolves every name in needed against table,
// failing fast (link-time, not call-time) on any name the table doesn't
// recognize.
func BuildResolvedModuleTable(table *Table, needed []string) (*ResolvedModuleTable, error) {
	ids := make([]NativeID, len(needed))
	for i, name := range needed {
		id, ok := table.Resolve(name)
		if !ok {
			return nil, rerrors.UnresolvedSymbol("module-native %q has no registered handler", name)
		}
		ids[i] = id
	}
	return &ResolvedModuleTable{ids: ids}, nil
}

// Dispatch invokes the handler at local_idx through table.
func (r *ResolvedModuleTable) Dispatch(table *Table, localIdx int, ctx *Context, args []value.Value) (Result, error) {
	if localIdx < 0 || localIdx >= len(r.ids) {
		return Result{}, rerrors.UnresolvedSymbol("module-native local index %d out of range [0,%d)", localIdx, len(r.ids))
	}
	return table.Dispatch(r.ids[localIdx], ctx, args)
}
