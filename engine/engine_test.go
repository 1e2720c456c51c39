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

package engine

import (
	"context"
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/rayalang/raya/interp"
	"github.com/rayalang/raya/module"
	"github.com/rayalang/raya/value"
)

// ---- Bytecode builder helpers ----

func u16(v uint16) []byte { b := make([]byte, 2); binary.LittleEndian.PutUint16(b, v); return b }
func i32(v int32) []byte  { b := make([]byte, 4); binary.LittleEndian.PutUint32(b, uint32(v)); return b }
func f64bits(v float64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, math.Float64bits(v))
	return b
}

func program(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func op(o interp.Op) []byte { return []byte{byte(o)} }

func mustModule(t *testing.T, functions []module.Function) *module.Module {
	t.Helper()
	mod, err := module.NewModule(functions, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewModule: %v", err)
	}
	return mod
}

func mustEngine(t *testing.T, mod *module.Module) *Engine {
	t.Helper()
	eng, err := New(mod, Config{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return eng
}

// TestEngineReturnsConstant spawns and runs a function that pushes a
// literal and returns it: PUSH_I32 42; RETURN.
func TestEngineReturnsConstant(t *testing.T) {
	code := program(
		op(interp.OpPushI32), i32(42),
		op(interp.OpReturn),
	)
	mod := mustModule(t, []module.Function{{Name: "main", Bytecode: code}})
	eng := mustEngine(t, mod)

	root, err := eng.Spawn(0, nil)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	outcome, err := eng.Run(ctx, root)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome != interp.OutcomeCompleted {
		t.Fatalf("outcome = %s; want COMPLETED", outcome)
	}
	n, ok := root.Result.NumericValue()
	if !ok || n != 42 {
		t.Errorf("result = %v; want 42", root.Result)
	}
}

// TestEngineArithmetic exercises local storage and a binary op: the entry
// function takes one argument, doubles it via ADD, and returns it.
func TestEngineArithmetic(t *testing.T) {
	code := program(
		op(interp.OpLoadLocal), u16(0),
		op(interp.OpLoadLocal), u16(0),
		op(interp.OpAdd),
		op(interp.OpReturn),
	)
	mod := mustModule(t, []module.Function{{Name: "double", ParamCount: 1, LocalCount: 1, Bytecode: code}})
	eng := mustEngine(t, mod)

	root, err := eng.Spawn(0, []value.Value{value.I32(21)})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	outcome, err := eng.Run(ctx, root)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome != interp.OutcomeCompleted {
		t.Fatalf("outcome = %s; want COMPLETED", outcome)
	}
	n, ok := root.Result.NumericValue()
	if !ok || n != 42 {
		t.Errorf("result = %v; want 42", root.Result)
	}
}

// TestEngineFloatReturn confirms the F64 push/return path round-trips a
// non-integral value.
func TestEngineFloatReturn(t *testing.T) {
	code := program(
		op(interp.OpPushF64), f64bits(3.5),
		op(interp.OpReturn),
	)
	mod := mustModule(t, []module.Function{{Name: "half", Bytecode: code}})
	eng := mustEngine(t, mod)

	root, err := eng.Spawn(0, nil)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	outcome, err := eng.Run(ctx, root)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome != interp.OutcomeCompleted {
		t.Fatalf("outcome = %s; want COMPLETED", outcome)
	}
	n, ok := root.Result.NumericValue()
	if !ok || n != 3.5 {
		t.Errorf("result = %v; want 3.5", root.Result)
	}
}

// TestEngineSpawnArgMismatch confirms Spawn rejects an argument count that
// disagrees with the entry function's declared arity instead of silently
// truncating or zero-padding.
func TestEngineSpawnArgMismatch(t *testing.T) {
	mod := mustModule(t, []module.Function{{Name: "needsOne", ParamCount: 1, LocalCount: 1, Bytecode: program(op(interp.OpReturnVoid))}})
	eng := mustEngine(t, mod)

	if _, err := eng.Spawn(0, nil); err == nil {
		t.Fatal("Spawn with wrong arg count: want error, got nil")
	}
}

// TestEngineThrowUncaught confirms an uncaught Throw fails the task and
// surfaces the thrown value through FailValue.
func TestEngineThrowUncaught(t *testing.T) {
	code := program(
		op(interp.OpPushI32), i32(7),
		op(interp.OpThrow),
	)
	mod := mustModule(t, []module.Function{{Name: "boom", Bytecode: code}})
	eng := mustEngine(t, mod)

	root, err := eng.Spawn(0, nil)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	outcome, _ := eng.Run(ctx, root)
	if outcome != interp.OutcomeFailed {
		t.Fatalf("outcome = %s; want FAILED", outcome)
	}
	n, ok := root.FailValue.NumericValue()
	if !ok || n != 7 {
		t.Errorf("FailValue = %v; want 7", root.FailValue)
	}
}

// TestEngineSleepCompletes confirms a task that sleeps is driven through
// the scheduler's timer wheel to completion rather than hanging Run.
func TestEngineSleepCompletes(t *testing.T) {
	code := program(
		op(interp.OpPushI32), i32(5),
		op(interp.OpSleep),
		op(interp.OpPushI32), i32(99),
		op(interp.OpReturn),
	)
	mod := mustModule(t, []module.Function{{Name: "napper", Bytecode: code}})
	eng := mustEngine(t, mod)

	root, err := eng.Spawn(0, nil)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	outcome, err := eng.Run(ctx, root)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome != interp.OutcomeCompleted {
		t.Fatalf("outcome = %s; want COMPLETED", outcome)
	}
	n, ok := root.Result.NumericValue()
	if !ok || n != 99 {
		t.Errorf("result = %v; want 99", root.Result)
	}
}
