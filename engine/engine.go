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

// Package engine wires the class registry, heap, loaded module, native
// table, reflector, and scheduler into one runnable unit, and drives the
// scheduler's cooperative run loop to completion.
//
// Grounded on probe-lang/integration/engine.go's role as the seam between a
// decoded Contract and the VM: that file's Execute(contract, ctx) builds a
// VM, runs it, and reports a result. Engine generalizes the same shape to a
// Module with many concurrently-scheduled Tasks instead of a single linear
// contract call, since spec §4.5 requires cooperative multitasking the
// teacher's single-VM-per-call model doesn't have.
package engine

import (
	"context"
	"time"

	"github.com/rayalang/raya/builtins/buffer"
	"github.com/rayalang/raya/builtins/date"
	"github.com/rayalang/raya/builtins/json"
	"github.com/rayalang/raya/builtins/mapv"
	"github.com/rayalang/raya/builtins/regexp"
	"github.com/rayalang/raya/builtins/set"
	"github.com/rayalang/raya/heap"
	"github.com/rayalang/raya/interp"
	"github.com/rayalang/raya/module"
	"github.com/rayalang/raya/nativeabi"
	"github.com/rayalang/raya/reflectapi"
	"github.com/rayalang/raya/rerrors"
	"github.com/rayalang/raya/rlog"
	"github.com/rayalang/raya/scheduler"
	"github.com/rayalang/raya/stack"
	"github.com/rayalang/raya/value"
)

// Config holds the engine's construction-time knobs (spec §3's "ambient
// configuration", carried as a plain struct rather than a config-file
// format, which is out of scope).
type Config struct {
	// StackMaxSize bounds every Task's operand+frame stack depth
	// (stack.DefaultMaxSize if zero).
	StackMaxSize int
	// HeapByteLimit bounds total live heap bytes (heap.DefaultLimit if
	// zero).
	HeapByteLimit uint64
	// DefaultPermissionAllowed/DefaultPermissionSealed seed the
	// reflector's process-wide permission default (spec §4.7); both zero
	// means "deny, unsealed".
	DefaultPermissionAllowed bool
	DefaultPermissionSealed  bool
}

// wallClock implements scheduler.Clock over real time, used outside tests.
type wallClock struct{}

func (wallClock) NowMs() int64 { return time.Now().UnixMilli() }

// Engine owns every shared registry for one loaded Module and runs its
// tasks to completion.
type Engine struct {
	Module    *module.Module
	Heap      *heap.Heap
	Natives   *nativeabi.Table
	Reflector *reflectapi.Reflector
	Scheduler *scheduler.Scheduler
	Interp    *interp.Interpreter

	stackMaxSize int
	log          *rlog.Logger
}

// New builds an Engine around mod: allocates the heap and native table,
// registers every native family (core, builtins, reflectapi), resolves
// mod's needed natives, and constructs the scheduler and interpreter.
// reactor may be nil if mod declares no I/O-capable natives.
func New(mod *module.Module, cfg Config, reactor scheduler.Reactor) (*Engine, error) {
	h := heap.New(cfg.HeapByteLimit)

	table := nativeabi.NewTable()
	nativeabi.RegisterCore(table)
	buffer.Register(table)
	set.Register(table)
	mapv.Register(table)
	regexp.Register(table)
	date.Register(table, wallClock{}.NowMs)
	json.Register(table, func(classID uint32) (string, []string, bool) {
		c, ok := mod.Classes.Get(classID)
		if !ok {
			return "", nil, false
		}
		m, ok := mod.Classes.Metadata(classID)
		if !ok {
			return c.Name, nil, true
		}
		return c.Name, m.FieldNames, true
	})

	r := reflectapi.New(mod.Classes, h, mod)
	if err := r.SetGlobalPermission(cfg.DefaultPermissionAllowed, cfg.DefaultPermissionSealed); err != nil {
		return nil, err
	}
	reflectapi.RegisterAll(table, r)

	moduleNatives, err := nativeabi.BuildResolvedModuleTable(table, mod.NativesNeeded)
	if err != nil {
		return nil, err
	}

	sched := scheduler.New(wallClock{}, reactor)
	it := interp.New(mod, h, table, moduleNatives, sched)

	maxStack := cfg.StackMaxSize
	if maxStack <= 0 {
		maxStack = stack.DefaultMaxSize
	}

	return &Engine{
		Module:       mod,
		Heap:         h,
		Natives:      table,
		Reflector:    r,
		Scheduler:    sched,
		Interp:       it,
		stackMaxSize: maxStack,
		log:          rlog.Default.With("component", "engine"),
	}, nil
}

// Spawn starts a new Task at functionIndex with args pushed onto a fresh
// stack, registers that stack as a GC root, and returns the Task. args are
// left on the bare stack rather than already framed: Interpreter.Run's own
// zero-frame bootstrap (mirroring the Call opcode's own convention) pops
// exactly functionIndex's ParamCount values off the top to build the entry
// frame's locals, so Spawn's job is only to push them in argument order.
func (e *Engine) Spawn(functionIndex int, args []value.Value) (*scheduler.Task, error) {
	fn, err := e.Module.Function(functionIndex)
	if err != nil {
		return nil, err
	}
	if len(args) != fn.ParamCount {
		return nil, rerrors.ArgumentCountMismatch("%s expects %d argument(s), got %d", fn.Name, fn.ParamCount, len(args))
	}
	st := stack.WithCapacity(e.stackMaxSize)
	for _, a := range args {
		if err := st.Push(a); err != nil {
			return nil, err
		}
	}
	e.Heap.RegisterRoot(st)
	t := e.Scheduler.Spawn(st, functionIndex)
	return t, nil
}

// pollInterval bounds how long Run sleeps between ready-queue checks while
// waiting on a Sleep timer or reactor completion neither has fired yet;
// NextReady itself drains both on every call, so this only governs latency
// when the ready queue is briefly empty.
const pollInterval = time.Millisecond

// Run starts reactor as needed and drives every runnable Task to
// completion: it dequeues READY tasks through the interpreter (NextReady
// drains elapsed timers and reactor completions on each call), stopping
// once root reaches a terminal Outcome, no Task remains live, or ctx is
// cancelled. It returns root's terminal Outcome.
func (e *Engine) Run(ctx context.Context, root *scheduler.Task) (interp.Outcome, error) {
	e.Scheduler.StartReactor(ctx)
	defer e.Scheduler.StopReactor()

	for {
		select {
		case <-ctx.Done():
			return interp.OutcomeCancelled, ctx.Err()
		default:
		}

		t, ok := e.Scheduler.NextReady()
		if !ok {
			if e.Scheduler.LiveTaskCount() == 0 {
				return interp.OutcomeSuspended, nil
			}
			select {
			case <-ctx.Done():
				return interp.OutcomeCancelled, ctx.Err()
			case <-time.After(pollInterval):
			}
			continue
		}

		outcome, err := e.Interp.Run(t)
		if t.ID == root.ID && outcome != interp.OutcomeSuspended {
			return outcome, err
		}
		if err != nil {
			e.log.Error("task run failed", "task", t.ID, "err", err)
		}
	}
}
