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

// Core natives: channel, mutex, number, object identity, task, and error
// families (spec §4.4). These stay in nativeabi rather than builtins/
// because the channel, mutex, and task families drive the scheduler
// directly, not just heap object manipulation.
package nativeabi

import (
	"strconv"

	"github.com/rayalang/raya/heap"
	"github.com/rayalang/raya/rerrors"
	"github.com/rayalang/raya/scheduler"
	"github.com/rayalang/raya/value"
)

func asChannel(args []value.Value, i int) (*heap.ChannelObject, error) {
	if i >= len(args) {
		return nil, rerrors.ArgumentCountMismatch("channel native: missing argument %d", i)
	}
	c, ok := heap.AsChannel(args[i])
	if !ok {
		return nil, rerrors.TypeError("channel native: argument %d is not a channel", i)
	}
	return c, nil
}

// RegisterCore installs the channel, mutex, number, object, task, and
// error native families into table.
func RegisterCore(table *Table) {
	registerChannel(table)
	registerMutex(table)
	registerNumber(table)
	registerObject(table)
	registerTask(table)
	registerError(table)
}

func registerChannel(table *Table) {
	table.Register(ChannelSend, "channel.send", func(ctx *Context, args []value.Value) (Result, error) {
		ch, err := asChannel(args, 0)
		if err != nil {
			return Result{}, err
		}
		if len(args) < 2 {
			return Result{}, rerrors.ArgumentCountMismatch("channel.send expects (channel, value)")
		}
		if ch.IsClosed() {
			return Result{}, rerrors.RuntimeError("send on closed channel")
		}
		if recvID, ok := ctx.Scheduler.PopReceiverWaiter(ch.Hdr().ID()); ok {
			ctx.Scheduler.WakeChannelWaiter(recvID, args[1])
			return Pushed(value.Null()), nil
		}
		if ch.TryEnqueue(args[1]) {
			return Pushed(value.Null()), nil
		}
		return Suspended(scheduler.Reason{Kind: scheduler.ReasonChannelSend, ChannelID: ch.Hdr().ID(), SendValue: args[1]}), nil
	})

	table.Register(ChannelReceive, "channel.receive", func(ctx *Context, args []value.Value) (Result, error) {
		ch, err := asChannel(args, 0)
		if err != nil {
			return Result{}, err
		}
		if v, ok := ch.TryDequeue(); ok {
			if senderID, ok := ctx.Scheduler.PopSenderWaiter(ch.Hdr().ID()); ok {
				ctx.Scheduler.WakeChannelWaiter(senderID, value.Null())
			}
			return Pushed(v), nil
		}
		if ch.IsClosed() {
			return Pushed(value.Null()), nil
		}
		return Suspended(scheduler.Reason{Kind: scheduler.ReasonChannelReceive, ChannelID: ch.Hdr().ID()}), nil
	})

	table.Register(ChannelTryReceive, "channel.tryReceive", func(ctx *Context, args []value.Value) (Result, error) {
		ch, err := asChannel(args, 0)
		if err != nil {
			return Result{}, err
		}
		if v, ok := ch.TryDequeue(); ok {
			return Pushed(v), nil
		}
		return Pushed(value.Null()), nil
	})

	table.Register(ChannelClose, "channel.close", func(ctx *Context, args []value.Value) (Result, error) {
		ch, err := asChannel(args, 0)
		if err != nil {
			return Result{}, err
		}
		ch.Close()
		// FIFO-drain every parked waiter on close (spec Open Question
		// decision recorded in SPEC_FULL.md §6): receivers first get a
		// null wakeup, then senders are resumed with a thrown RuntimeError
		// string.
		for {
			id, ok := ctx.Scheduler.PopReceiverWaiter(ch.Hdr().ID())
			if !ok {
				break
			}
			ctx.Scheduler.WakeChannelWaiter(id, value.Null())
		}
		for {
			id, ok := ctx.Scheduler.PopSenderWaiter(ch.Hdr().ID())
			if !ok {
				break
			}
			excVal, err := ctx.Heap.NewString(rerrors.RuntimeError("send on closed channel").Error())
			if err != nil {
				return Result{}, err
			}
			ctx.Scheduler.WakeChannelWaiter(id, excVal)
			if t, ok := ctx.Scheduler.Get(id); ok && t.HasResume {
				t.ResumeIsThrow = true
			}
		}
		return Pushed(value.Null()), nil
	})

	table.Register(ChannelIsClosed, "channel.isClosed", func(ctx *Context, args []value.Value) (Result, error) {
		ch, err := asChannel(args, 0)
		if err != nil {
			return Result{}, err
		}
		return Pushed(value.Bool(ch.IsClosed())), nil
	})

	table.Register(ChannelLen, "channel.len", func(ctx *Context, args []value.Value) (Result, error) {
		ch, err := asChannel(args, 0)
		if err != nil {
			return Result{}, err
		}
		return Pushed(value.I32(int32(ch.Len()))), nil
	})
}

func registerMutex(table *Table) {
	table.Register(MutexAcquire, "mutex.acquire", func(ctx *Context, args []value.Value) (Result, error) {
		if len(args) < 1 {
			return Result{}, rerrors.ArgumentCountMismatch("mutex.acquire expects (mutexId)")
		}
		id, ok := args[0].AsU64()
		if !ok {
			return Result{}, rerrors.TypeError("mutex.acquire: argument must be a mutex handle")
		}
		if ctx.Scheduler.AcquireMutex(id, ctx.Task) {
			if ctx.Task.HeldMutexes == nil {
				ctx.Task.HeldMutexes = make(map[uint64]bool)
			}
			ctx.Task.HeldMutexes[id] = true
			return Pushed(value.Null()), nil
		}
		return Suspended(scheduler.Reason{Kind: scheduler.ReasonMutexAcquire, MutexID: id}), nil
	})

	table.Register(MutexRelease, "mutex.release", func(ctx *Context, args []value.Value) (Result, error) {
		if len(args) < 1 {
			return Result{}, rerrors.ArgumentCountMismatch("mutex.release expects (mutexId)")
		}
		id, ok := args[0].AsU64()
		if !ok {
			return Result{}, rerrors.TypeError("mutex.release: argument must be a mutex handle")
		}
		delete(ctx.Task.HeldMutexes, id)
		ctx.Scheduler.ReleaseMutex(id)
		return Pushed(value.Null()), nil
	})

	table.Register(MutexTryAcquire, "mutex.tryAcquire", func(ctx *Context, args []value.Value) (Result, error) {
		if len(args) < 1 {
			return Result{}, rerrors.ArgumentCountMismatch("mutex.tryAcquire expects (mutexId)")
		}
		id, ok := args[0].AsU64()
		if !ok {
			return Result{}, rerrors.TypeError("mutex.tryAcquire: argument must be a mutex handle")
		}
		acquired := ctx.Scheduler.AcquireMutex(id, ctx.Task)
		if acquired {
			if ctx.Task.HeldMutexes == nil {
				ctx.Task.HeldMutexes = make(map[uint64]bool)
			}
			ctx.Task.HeldMutexes[id] = true
		}
		return Pushed(value.Bool(acquired)), nil
	})
}

func registerNumber(table *Table) {
	table.Register(NumberToString, "number.toString", func(ctx *Context, args []value.Value) (Result, error) {
		if len(args) < 1 {
			return Result{}, rerrors.ArgumentCountMismatch("number.toString expects (n)")
		}
		f, ok := args[0].NumericValue()
		if !ok {
			return Result{}, rerrors.TypeError("number.toString: argument must be numeric")
		}
		v, err := ctx.Heap.NewString(strconv.FormatFloat(f, 'g', -1, 64))
		if err != nil {
			return Result{}, err
		}
		return Pushed(v), nil
	})

	table.Register(NumberParseFloat, "number.parseFloat", func(ctx *Context, args []value.Value) (Result, error) {
		s, ok := heap.AsString(orNullArg(args, 0))
		if !ok {
			return Pushed(value.F64(nan())), nil
		}
		f, err := strconv.ParseFloat(s.String(), 64)
		if err != nil {
			return Pushed(value.F64(nan())), nil
		}
		return Pushed(value.F64(f)), nil
	})

	table.Register(NumberParseInt, "number.parseInt", func(ctx *Context, args []value.Value) (Result, error) {
		s, ok := heap.AsString(orNullArg(args, 0))
		if !ok {
			return Pushed(value.F64(nan())), nil
		}
		i, err := strconv.ParseInt(s.String(), 10, 32)
		if err != nil {
			return Pushed(value.F64(nan())), nil
		}
		return Pushed(value.I32(int32(i))), nil
	})

	table.Register(NumberIsInteger, "number.isInteger", func(ctx *Context, args []value.Value) (Result, error) {
		if len(args) < 1 {
			return Result{}, rerrors.ArgumentCountMismatch("number.isInteger expects (n)")
		}
		if args[0].IsI32() {
			return Pushed(value.Bool(true)), nil
		}
		if f, ok := args[0].AsF64(); ok {
			return Pushed(value.Bool(f == float64(int64(f)))), nil
		}
		return Pushed(value.Bool(false)), nil
	})
}

func orNullArg(args []value.Value, i int) value.Value {
	if i >= len(args) {
		return value.Null()
	}
	return args[i]
}

func nan() float64 {
	var zero float64
	return zero / zero
}

func registerObject(table *Table) {
	table.Register(ObjectIdentity, "object.identity", func(ctx *Context, args []value.Value) (Result, error) {
		if len(args) < 1 {
			return Result{}, rerrors.ArgumentCountMismatch("object.identity expects (value)")
		}
		if !args[0].IsPtr() {
			return Result{}, rerrors.TypeError("object.identity: argument must be a heap value")
		}
		obj := heap.ObjAt(args[0])
		if obj == nil {
			return Result{}, rerrors.RuntimeError("object.identity: value is not a live heap object")
		}
		return Pushed(value.U64(obj.Hdr().ID())), nil
	})

	table.Register(ObjectEquals, "object.equals", func(ctx *Context, args []value.Value) (Result, error) {
		if len(args) < 2 {
			return Result{}, rerrors.ArgumentCountMismatch("object.equals expects (a, b)")
		}
		return Pushed(value.Bool(args[0].StrictEquals(args[1]))), nil
	})

	table.Register(ObjectTypeName, "object.typeName", func(ctx *Context, args []value.Value) (Result, error) {
		if len(args) < 1 {
			return Result{}, rerrors.ArgumentCountMismatch("object.typeName expects (value)")
		}
		v, err := ctx.Heap.NewString(TypeName(args[0]))
		if err != nil {
			return Result{}, err
		}
		return Pushed(v), nil
	})
}

// TypeName implements the universal typeof surface of spec §4.2: one of
// {null, boolean, number, string, array, function, object, <class-name>}.
// Class-name resolution for Object values is left to callers with access
// to a class.Registry (interp/reflectapi); this fallback reports "object".
func TypeName(v value.Value) string {
	switch {
	case v.IsNull():
		return "null"
	case v.IsBool():
		return "boolean"
	case v.IsI32(), v.IsF64(), v.IsU64(), v.IsI64():
		return "number"
	case v.IsPtr():
		switch v.Kind() {
		case value.KindString:
			return "string"
		case value.KindArray:
			return "array"
		case value.KindClosure:
			return "function"
		default:
			return "object"
		}
	default:
		return "object"
	}
}

func registerTask(table *Table) {
	table.Register(TaskSpawnHandleState, "task.state", func(ctx *Context, args []value.Value) (Result, error) {
		if len(args) < 1 {
			return Result{}, rerrors.ArgumentCountMismatch("task.state expects (taskId)")
		}
		id, ok := args[0].AsU64()
		if !ok {
			return Result{}, rerrors.TypeError("task.state: argument must be a task handle")
		}
		t, ok := ctx.Scheduler.Get(scheduler.TaskID(id))
		if !ok {
			return Result{}, rerrors.RuntimeError("task.state: unknown task id %d", id)
		}
		v, err := ctx.Heap.NewString(t.State.String())
		if err != nil {
			return Result{}, err
		}
		return Pushed(v), nil
	})

	table.Register(TaskCancel, "task.cancel", func(ctx *Context, args []value.Value) (Result, error) {
		if len(args) < 1 {
			return Result{}, rerrors.ArgumentCountMismatch("task.cancel expects (taskId)")
		}
		id, ok := args[0].AsU64()
		if !ok {
			return Result{}, rerrors.TypeError("task.cancel: argument must be a task handle")
		}
		t, ok := ctx.Scheduler.Get(scheduler.TaskID(id))
		if !ok {
			return Result{}, rerrors.RuntimeError("task.cancel: unknown task id %d", id)
		}
		ctx.Scheduler.Cancel(t)
		return Pushed(value.Null()), nil
	})

	table.Register(TaskIsCancelled, "task.isCancelled", func(ctx *Context, args []value.Value) (Result, error) {
		if len(args) < 1 {
			return Result{}, rerrors.ArgumentCountMismatch("task.isCancelled expects (taskId)")
		}
		id, ok := args[0].AsU64()
		if !ok {
			return Result{}, rerrors.TypeError("task.isCancelled: argument must be a task handle")
		}
		t, ok := ctx.Scheduler.Get(scheduler.TaskID(id))
		if !ok {
			return Result{}, rerrors.RuntimeError("task.isCancelled: unknown task id %d", id)
		}
		return Pushed(value.Bool(t.CancelRequested)), nil
	})
}

func registerError(table *Table) {
	table.Register(ErrorMessage, "error.message", func(ctx *Context, args []value.Value) (Result, error) {
		if len(args) < 1 {
			return Result{}, rerrors.ArgumentCountMismatch("error.message expects (error)")
		}
		if s, ok := heap.AsString(args[0]); ok {
			v, err := ctx.Heap.NewString(s.String())
			if err != nil {
				return Result{}, err
			}
			return Pushed(v), nil
		}
		v, err := ctx.Heap.NewString(TypeName(args[0]))
		if err != nil {
			return Result{}, err
		}
		return Pushed(v), nil
	})

	table.Register(ErrorStackTrace, "error.stackTrace", func(ctx *Context, args []value.Value) (Result, error) {
		frames := ctx.Task.Stack.Frames()
		arrVal, err := ctx.Heap.NewArray(len(frames))
		if err != nil {
			return Result{}, err
		}
		arr, _ := heap.AsArray(arrVal)
		for i, f := range frames {
			line, err := ctx.Heap.NewString(strconv.FormatUint(uint64(f.FunctionID), 10) + "@" + strconv.FormatUint(uint64(f.ReturnIP), 10))
			if err != nil {
				return Result{}, err
			}
			arr.Set(i, line)
		}
		return Pushed(arrVal), nil
	})
}
