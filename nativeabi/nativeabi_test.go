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

package nativeabi

import (
	"testing"

	"github.com/rayalang/raya/heap"
	"github.com/rayalang/raya/rerrors"
	"github.com/rayalang/raya/scheduler"
	"github.com/rayalang/raya/stack"
	"github.com/rayalang/raya/value"
)

type fakeClock struct{ nowMs int64 }

func (c *fakeClock) NowMs() int64 { return c.nowMs }

func newTestContext(t *testing.T) *Context {
	t.Helper()
	h := heap.New(0)
	s := scheduler.New(&fakeClock{}, nil)
	task := s.Spawn(stack.New(), 0)
	task, _ = s.NextReady()
	return &Context{Heap: h, Scheduler: s, Task: task}
}

func TestTableDispatchUnknownID(t *testing.T) {
	table := NewTable()
	if _, err := table.Dispatch(NativeID(0xFFFF), &Context{}, nil); rerrors.KindOf(err) != rerrors.KindUnresolvedSymbol {
		t.Fatalf("Dispatch(unregistered id): kind = %v; want UnresolvedSymbol", rerrors.KindOf(err))
	}
}

func TestTableResolveAndBuildResolvedModuleTable(t *testing.T) {
	table := NewTable()
	table.Register(ObjectIdentity, "object.identity", func(ctx *Context, args []value.Value) (Result, error) {
		return Pushed(value.I32(1)), nil
	})

	id, ok := table.Resolve("object.identity")
	if !ok || id != ObjectIdentity {
		t.Fatalf("Resolve(object.identity) = (%v, %v); want (%v, true)", id, ok, ObjectIdentity)
	}

	resolved, err := BuildResolvedModuleTable(table, []string{"object.identity"})
	if err != nil {
		t.Fatalf("BuildResolvedModuleTable: %v", err)
	}
	res, err := resolved.Dispatch(table, 0, &Context{}, nil)
	if err != nil {
		t.Fatalf("resolved Dispatch: %v", err)
	}
	if n, _ := res.Value.AsI32(); n != 1 {
		t.Errorf("resolved Dispatch result = %d; want 1", n)
	}

	if _, err := BuildResolvedModuleTable(table, []string{"no.such.native"}); err == nil {
		t.Error("BuildResolvedModuleTable with an unregistered name: want error, got nil")
	}
}

func TestResolvedModuleTableOutOfRange(t *testing.T) {
	table := NewTable()
	resolved, err := BuildResolvedModuleTable(table, nil)
	if err != nil {
		t.Fatalf("BuildResolvedModuleTable: %v", err)
	}
	if _, err := resolved.Dispatch(table, 0, &Context{}, nil); err == nil {
		t.Error("Dispatch at an out-of-range local index: want error, got nil")
	}
}

func TestChannelReceiveUnbufferedSuspends(t *testing.T) {
	table := NewTable()
	RegisterCore(table)
	ctx := newTestContext(t)

	chVal, err := ctx.Heap.NewChannel(0)
	if err != nil {
		t.Fatalf("NewChannel: %v", err)
	}

	res, err := table.Dispatch(ChannelReceive, ctx, []value.Value{chVal})
	if err != nil {
		t.Fatalf("channel.receive on an empty unbuffered channel: %v", err)
	}
	if res.Suspend == nil || res.Suspend.Kind != scheduler.ReasonChannelReceive {
		t.Fatalf("channel.receive with nothing queued should suspend as ReasonChannelReceive, got %+v", res)
	}
}

func TestChannelSendToBufferedChannelDoesNotSuspend(t *testing.T) {
	table := NewTable()
	RegisterCore(table)
	ctx := newTestContext(t)

	chVal, err := ctx.Heap.NewChannel(1)
	if err != nil {
		t.Fatalf("NewChannel: %v", err)
	}
	res, err := table.Dispatch(ChannelSend, ctx, []value.Value{chVal, value.I32(5)})
	if err != nil {
		t.Fatalf("channel.send: %v", err)
	}
	if res.Suspend != nil {
		t.Fatalf("channel.send into available buffer capacity should not suspend, got %+v", res)
	}

	ch, _ := heap.AsChannel(chVal)
	if ch.Len() != 1 {
		t.Errorf("channel length after send = %d; want 1", ch.Len())
	}

	res, err = table.Dispatch(ChannelReceive, ctx, []value.Value{chVal})
	if err != nil {
		t.Fatalf("channel.receive: %v", err)
	}
	if n, _ := res.Value.AsI32(); n != 5 {
		t.Errorf("channel.receive result = %d; want 5", n)
	}
}

func TestChannelSendOnClosedChannelErrors(t *testing.T) {
	table := NewTable()
	RegisterCore(table)
	ctx := newTestContext(t)

	chVal, _ := ctx.Heap.NewChannel(1)
	ch, _ := heap.AsChannel(chVal)
	ch.Close()

	if _, err := table.Dispatch(ChannelSend, ctx, []value.Value{chVal, value.Null()}); err == nil {
		t.Error("channel.send on a closed channel: want error, got nil")
	}
}

func TestMutexAcquireReleaseRoundTrip(t *testing.T) {
	table := NewTable()
	RegisterCore(table)
	ctx := newTestContext(t)

	res, err := table.Dispatch(MutexAcquire, ctx, []value.Value{value.U64(9)})
	if err != nil {
		t.Fatalf("mutex.acquire: %v", err)
	}
	if res.Suspend != nil {
		t.Fatal("mutex.acquire uncontended should not suspend")
	}
	if !ctx.Task.HeldMutexes[9] {
		t.Error("mutex.acquire should record the mutex in the task's HeldMutexes")
	}

	if _, err := table.Dispatch(MutexRelease, ctx, []value.Value{value.U64(9)}); err != nil {
		t.Fatalf("mutex.release: %v", err)
	}
	if ctx.Task.HeldMutexes[9] {
		t.Error("mutex.release should clear the task's HeldMutexes entry")
	}
}

func TestMutexTryAcquireContended(t *testing.T) {
	table := NewTable()
	RegisterCore(table)
	ctx := newTestContext(t)

	if _, err := table.Dispatch(MutexAcquire, ctx, []value.Value{value.U64(1)}); err != nil {
		t.Fatalf("mutex.acquire: %v", err)
	}

	otherTask := ctx.Scheduler.Spawn(stack.New(), 0)
	otherTask, _ = ctx.Scheduler.NextReady()
	otherCtx := &Context{Heap: ctx.Heap, Scheduler: ctx.Scheduler, Task: otherTask}

	res, err := table.Dispatch(MutexTryAcquire, otherCtx, []value.Value{value.U64(1)})
	if err != nil {
		t.Fatalf("mutex.tryAcquire: %v", err)
	}
	if acquired, _ := res.Value.AsBool(); acquired {
		t.Error("mutex.tryAcquire on a held mutex should report false")
	}
}

func TestObjectIdentityEqualsTypeName(t *testing.T) {
	table := NewTable()
	RegisterCore(table)
	ctx := newTestContext(t)

	strVal, err := ctx.Heap.NewString("hi")
	if err != nil {
		t.Fatalf("NewString: %v", err)
	}

	res, err := table.Dispatch(ObjectIdentity, ctx, []value.Value{strVal})
	if err != nil {
		t.Fatalf("object.identity: %v", err)
	}
	if _, ok := res.Value.AsU64(); !ok {
		t.Error("object.identity should return a u64 handle")
	}

	res, err = table.Dispatch(ObjectEquals, ctx, []value.Value{value.I32(3), value.F64(3)})
	if err != nil {
		t.Fatalf("object.equals: %v", err)
	}
	if eq, _ := res.Value.AsBool(); !eq {
		t.Error("object.equals(3, 3.0) should be true: numeric cross-precision equality")
	}

	res, err = table.Dispatch(ObjectTypeName, ctx, []value.Value{strVal})
	if err != nil {
		t.Fatalf("object.typeName: %v", err)
	}
	name, _ := heap.AsString(res.Value)
	if name.String() != "string" {
		t.Errorf("object.typeName(string) = %q; want %q", name.String(), "string")
	}
}

func TestNumberConversions(t *testing.T) {
	table := NewTable()
	RegisterCore(table)
	ctx := newTestContext(t)

	res, err := table.Dispatch(NumberToString, ctx, []value.Value{value.F64(3.5)})
	if err != nil {
		t.Fatalf("number.toString: %v", err)
	}
	s, _ := heap.AsString(res.Value)
	if s.String() != "3.5" {
		t.Errorf("number.toString(3.5) = %q; want %q", s.String(), "3.5")
	}

	strVal, _ := ctx.Heap.NewString("42")
	res, err = table.Dispatch(NumberParseInt, ctx, []value.Value{strVal})
	if err != nil {
		t.Fatalf("number.parseInt: %v", err)
	}
	if n, _ := res.Value.AsI32(); n != 42 {
		t.Errorf("number.parseInt(\"42\") = %d; want 42", n)
	}

	res, err = table.Dispatch(NumberIsInteger, ctx, []value.Value{value.I32(1)})
	if err != nil {
		t.Fatalf("number.isInteger: %v", err)
	}
	if isInt, _ := res.Value.AsBool(); !isInt {
		t.Error("number.isInteger(I32) should be true")
	}
}

func TestTaskStateCancel(t *testing.T) {
	table := NewTable()
	RegisterCore(table)
	ctx := newTestContext(t)

	other := ctx.Scheduler.Spawn(stack.New(), 0)

	res, err := table.Dispatch(TaskCancel, ctx, []value.Value{value.U64(uint64(other.ID))})
	if err != nil {
		t.Fatalf("task.cancel: %v", err)
	}
	_ = res

	res, err = table.Dispatch(TaskIsCancelled, ctx, []value.Value{value.U64(uint64(other.ID))})
	if err != nil {
		t.Fatalf("task.isCancelled: %v", err)
	}
	if cancelled, _ := res.Value.AsBool(); !cancelled {
		t.Error("task.isCancelled should report true after task.cancel")
	}
}

func TestErrorMessageAndStackTrace(t *testing.T) {
	table := NewTable()
	RegisterCore(table)
	ctx := newTestContext(t)

	strVal, _ := ctx.Heap.NewString("boom")
	res, err := table.Dispatch(ErrorMessage, ctx, []value.Value{strVal})
	if err != nil {
		t.Fatalf("error.message: %v", err)
	}
	s, _ := heap.AsString(res.Value)
	if s.String() != "boom" {
		t.Errorf("error.message(string) = %q; want %q", s.String(), "boom")
	}

	res, err = table.Dispatch(ErrorStackTrace, ctx, nil)
	if err != nil {
		t.Fatalf("error.stackTrace: %v", err)
	}
	arr, ok := heap.AsArray(res.Value)
	if !ok {
		t.Fatal("error.stackTrace should return an array")
	}
	if arr.Len() != ctx.Task.Stack.FrameCount() {
		t.Errorf("error.stackTrace array length = %d; want %d (FrameCount)", arr.Len(), ctx.Task.Stack.FrameCount())
	}
}

func TestTypeNameHelper(t *testing.T) {
	if got := TypeName(value.Null()); got != "null" {
		t.Errorf("TypeName(null) = %q; want %q", got, "null")
	}
	if got := TypeName(value.Bool(true)); got != "boolean" {
		t.Errorf("TypeName(bool) = %q; want %q", got, "boolean")
	}
	if got := TypeName(value.I32(1)); got != "number" {
		t.Errorf("TypeName(i32) = %q; want %q", got, "number")
	}
}
