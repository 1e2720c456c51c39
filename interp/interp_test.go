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

package interp

import (
	"encoding/binary"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/rayalang/raya/class"
	"github.com/rayalang/raya/heap"
	"github.com/rayalang/raya/module"
	"github.com/rayalang/raya/nativeabi"
	"github.com/rayalang/raya/scheduler"
	"github.com/rayalang/raya/stack"
	"github.com/rayalang/raya/value"
)

// ---- bytecode builder helpers ----

func u16(v uint16) []byte { b := make([]byte, 2); binary.LittleEndian.PutUint16(b, v); return b }
func u8(v byte) []byte    { return []byte{v} }
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

func op(o Op) []byte { return []byte{byte(o)} }

type testFixture struct {
	mod   *module.Module
	heap  *heap.Heap
	sched *scheduler.Scheduler
	it    *Interpreter
}

type fakeClock struct{ nowMs int64 }

func (c *fakeClock) NowMs() int64 { return c.nowMs }

func newFixture(t *testing.T, functions []module.Function, defs []module.ClassDef) *testFixture {
	t.Helper()
	mod, err := module.NewModule(functions, defs, nil, nil)
	if err != nil {
		t.Fatalf("NewModule: %v", err)
	}
	h := heap.New(0)
	sched := scheduler.New(&fakeClock{}, nil)
	table := nativeabi.NewTable()
	nativeabi.RegisterCore(table)
	moduleNatives, err := nativeabi.BuildResolvedModuleTable(table, mod.NativesNeeded)
	if err != nil {
		t.Fatalf("BuildResolvedModuleTable: %v", err)
	}
	return &testFixture{mod: mod, heap: h, sched: sched, it: New(mod, h, table, moduleNatives, sched)}
}

func (f *testFixture) spawn(t *testing.T, functionIndex int, args []value.Value) *scheduler.Task {
	t.Helper()
	st := stack.New()
	for _, a := range args {
		if err := st.Push(a); err != nil {
			t.Fatalf("push arg: %v", err)
		}
	}
	f.heap.RegisterRoot(st)
	return f.sched.Spawn(st, functionIndex)
}

// runToTerminal drives NextReady/Run until task reaches a terminal Outcome
// or maxSteps is exceeded (guards against an infinite loop in a broken
// test rather than hanging the suite).
func runToTerminal(t *testing.T, f *testFixture, task *scheduler.Task) Outcome {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ready, ok := f.sched.NextReady()
		if !ok {
			if f.sched.LiveTaskCount() == 0 {
				t.Fatal("no ready task and no live tasks: nothing will ever progress")
			}
			continue
		}
		outcome, err := f.it.Run(ready)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if ready.ID == task.ID && outcome != OutcomeSuspended {
			return outcome
		}
	}
	t.Fatal("runToTerminal: deadline exceeded")
	return OutcomeFailed
}

func TestObjectFieldLoadStore(t *testing.T) {
	defs := []module.ClassDef{{
		Name:       "Point",
		FieldCount: 2,
		Metadata:   class.Metadata{FieldNames: []string{"x", "y"}, FieldAttrs: []class.FieldAttr{{Name: "x"}, {Name: "y"}}},
	}}
	code := program(
		op(OpNewObject), u16(1),
		op(OpDup),
		op(OpPushI32), i32(10),
		op(OpStoreField), u16(1), u16(0),
		op(OpLoadField), u16(1), u16(0),
		op(OpReturn),
	)
	f := newFixture(t, []module.Function{{Name: "main", Bytecode: code}}, defs)
	task := f.spawn(t, 0, nil)

	outcome := runToTerminal(t, f, task)
	if outcome != OutcomeCompleted {
		t.Fatalf("outcome = %s; want COMPLETED", outcome)
	}
	n, ok := task.Result.NumericValue()
	if !ok || n != 10 {
		t.Errorf("result = %v; want 10", task.Result)
	}
}

func TestArrayIndexLoadStore(t *testing.T) {
	code := program(
		op(OpPushI32), i32(1),
		op(OpPushI32), i32(2),
		op(OpPushI32), i32(3),
		op(OpNewArray), u16(3),
		op(OpDup),
		op(OpPushI32), i32(0),
		op(OpPushI32), i32(99),
		op(OpStoreIndex),
		op(OpPushI32), i32(0),
		op(OpLoadIndex),
		op(OpReturn),
	)
	f := newFixture(t, []module.Function{{Name: "main", Bytecode: code}}, nil)
	task := f.spawn(t, 0, nil)

	outcome := runToTerminal(t, f, task)
	if outcome != OutcomeCompleted {
		t.Fatalf("outcome = %s; want COMPLETED", outcome)
	}
	n, ok := task.Result.NumericValue()
	if !ok || n != 99 {
		t.Errorf("result = %v; want 99", task.Result)
	}
}

// TestJumpIfFalseBranch confirms a false condition takes the jump, skipping
// the then-branch's push.
func TestJumpIfFalseBranch(t *testing.T) {
	// if (false) { push 1 } else push 2; return
	thenBranch := program(op(OpPushI32), i32(1))
	elseBranch := program(op(OpPushI32), i32(2))
	condLen := len(program(op(OpPushBool), u8(0)))
	jumpLen := len(program(op(OpJumpIfFalse), i32(0)))
	jumpFalseTarget := int32(condLen + jumpLen + len(thenBranch)) // skip past then-branch, land on else
	code := program(
		op(OpPushBool), u8(0),
		op(OpJumpIfFalse), i32(jumpFalseTarget),
		thenBranch,
		elseBranch,
		op(OpReturn),
	)
	f := newFixture(t, []module.Function{{Name: "main", Bytecode: code}}, nil)
	task := f.spawn(t, 0, nil)

	outcome := runToTerminal(t, f, task)
	if outcome != OutcomeCompleted {
		t.Fatalf("outcome = %s; want COMPLETED", outcome)
	}
	n, ok := task.Result.NumericValue()
	if !ok || n != 2 {
		t.Errorf("result = %v; want 2 (else branch taken)", task.Result)
	}
}

// TestTryCatchHandlesThrow confirms TryBegin/Throw unwinds to the handler
// IP with the thrown value left on the stack.
func TestTryCatchHandlesThrow(t *testing.T) {
	tryBody := program(
		op(OpPushI32), i32(7),
		op(OpThrow),
	)
	unreached := program(op(OpReturn)) // never executed: the throw jumps past it
	bodyLen := 5 + len(tryBody) + len(unreached)
	handlerIP := int32(bodyLen)
	code := program(
		op(OpTryBegin), i32(handlerIP),
		tryBody,
		unreached,
		op(OpReturn), // handler: return the caught value as-is
	)
	f := newFixture(t, []module.Function{{Name: "main", Bytecode: code}}, nil)
	task := f.spawn(t, 0, nil)

	outcome := runToTerminal(t, f, task)
	if outcome != OutcomeCompleted {
		t.Fatalf("outcome = %s; want COMPLETED (caught, not propagated)", outcome)
	}
	n, ok := task.Result.NumericValue()
	if !ok || n != 7 {
		t.Errorf("result = %v; want 7 (the thrown value)", task.Result)
	}
}

// TestThrowUncaughtFailsTask confirms a Throw with no active TryHandler
// fails the task with the thrown value as FailValue.
func TestThrowUncaughtFailsTask(t *testing.T) {
	code := program(op(OpPushI32), i32(13), op(OpThrow))
	f := newFixture(t, []module.Function{{Name: "main", Bytecode: code}}, nil)
	task := f.spawn(t, 0, nil)

	outcome := runToTerminal(t, f, task)
	if outcome != OutcomeFailed {
		t.Fatalf("outcome = %s; want FAILED", outcome)
	}
	n, ok := task.FailValue.NumericValue()
	if !ok || n != 13 {
		t.Errorf("FailValue = %v; want 13", task.FailValue)
	}
}

// TestClosureCaptureAndCallIndirect builds a closure over one captured
// local and invokes it through CallIndirect. The callee's single explicit
// parameter occupies local 0; the capture lands in the local slot right
// after the declared params, per OpCallIndirect's capture-placement rule.
func TestClosureCaptureAndCallIndirect(t *testing.T) {
	// adder(a): return a + captured  (function index 1, arity 1, 1 capture)
	adderCode := program(
		op(OpLoadLocal), u16(0),
		op(OpLoadLocal), u16(1),
		op(OpAdd),
		op(OpReturn),
	)
	// main(): capture local 0 (=10) into a closure over adder, call it
	// with one explicit arg (5), return the sum.
	mainCode := program(
		op(OpPushI32), i32(10),
		op(OpStoreLocal), u16(0),
		op(OpLoadLocal), u16(0), // capture source
		op(OpMakeClosure), u16(1), u8(1),
		op(OpPushI32), i32(5),
		op(OpCallIndirect), u8(1),
		op(OpReturn),
	)
	functions := []module.Function{
		{Name: "main", LocalCount: 1, Bytecode: mainCode},
		{Name: "adder", ParamCount: 1, LocalCount: 2, Bytecode: adderCode},
	}
	f := newFixture(t, functions, nil)
	task := f.spawn(t, 0, nil)

	outcome := runToTerminal(t, f, task)
	if outcome != OutcomeCompleted {
		t.Fatalf("outcome = %s; want COMPLETED", outcome)
	}
	n, ok := task.Result.NumericValue()
	if !ok || n != 15 {
		t.Errorf("result = %v; want 15 (5 + captured 10)", task.Result)
	}
}

// TestI32ArithmeticOverflowPromotesToF64 confirms OpAdd/OpSub/OpMul promote
// to f64 when the true result overflows int32 range, instead of wrapping.
func TestI32ArithmeticOverflowPromotesToF64(t *testing.T) {
	cases := []struct {
		name string
		op   Op
		a, b int32
		want float64
	}{
		{"add overflow", OpAdd, math.MaxInt32, 1, float64(math.MaxInt32) + 1},
		{"sub overflow", OpSub, math.MinInt32, 1, float64(math.MinInt32) - 1},
		{"mul overflow", OpMul, math.MaxInt32, 2, float64(math.MaxInt32) * 2},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			code := program(
				op(OpPushI32), i32(c.a),
				op(OpPushI32), i32(c.b),
				op(c.op),
				op(OpReturn),
			)
			f := newFixture(t, []module.Function{{Name: "main", Bytecode: code}}, nil)
			task := f.spawn(t, 0, nil)

			outcome := runToTerminal(t, f, task)
			if outcome != OutcomeCompleted {
				t.Fatalf("outcome = %s; want COMPLETED", outcome)
			}
			if !task.Result.IsF64() {
				t.Fatalf("result = %v; want an F64 (overflow should promote)", task.Result)
			}
			n, ok := task.Result.NumericValue()
			if !ok || n != c.want {
				t.Errorf("result = %v; want %v", n, c.want)
			}
		})
	}
}

// TestI32ArithmeticNoOverflowStaysI32 confirms in-range results stay i32
// rather than always promoting to f64.
func TestI32ArithmeticNoOverflowStaysI32(t *testing.T) {
	code := program(
		op(OpPushI32), i32(10),
		op(OpPushI32), i32(3),
		op(OpMul),
		op(OpReturn),
	)
	f := newFixture(t, []module.Function{{Name: "main", Bytecode: code}}, nil)
	task := f.spawn(t, 0, nil)

	outcome := runToTerminal(t, f, task)
	if outcome != OutcomeCompleted {
		t.Fatalf("outcome = %s; want COMPLETED", outcome)
	}
	if !task.Result.IsI32() {
		t.Fatalf("result = %v; want an I32 (no overflow)", task.Result)
	}
	n, ok := task.Result.NumericValue()
	if !ok || n != 30 {
		t.Errorf("result = %v; want 30", n)
	}
}

// TestNativeCallDispatch exercises OpNativeCall against a real core
// native (object.equals).
func TestNativeCallDispatch(t *testing.T) {
	code := program(
		op(OpPushI32), i32(4),
		op(OpPushF64), f64bits(4),
		op(OpNativeCall), u16(uint16(nativeabi.ObjectEquals)), u8(2),
		op(OpReturn),
	)
	f := newFixture(t, []module.Function{{Name: "main", Bytecode: code}}, nil)
	task := f.spawn(t, 0, nil)

	outcome := runToTerminal(t, f, task)
	if outcome != OutcomeCompleted {
		t.Fatalf("outcome = %s; want COMPLETED", outcome)
	}
	eq, ok := task.Result.AsBool()
	if !ok || !eq {
		t.Errorf("result = %v; want true (4 strict-equals 4.0)", task.Result)
	}
}

// TestSpawnAndAwaitReturnsChildResult confirms Spawn pushes a task handle
// and Await suspends until the child completes, resuming with its Result.
func TestSpawnAndAwaitReturnsChildResult(t *testing.T) {
	// child(): return 21 + 21
	childCode := program(
		op(OpPushI32), i32(21),
		op(OpPushI32), i32(21),
		op(OpAdd),
		op(OpReturn),
	)
	// main(): spawn child, await its handle, return the result.
	mainCode := program(
		op(OpSpawn), u16(1), u8(0),
		op(OpAwait),
		op(OpReturn),
	)
	functions := []module.Function{
		{Name: "main", Bytecode: mainCode},
		{Name: "child", Bytecode: childCode},
	}
	f := newFixture(t, functions, nil)
	task := f.spawn(t, 0, nil)

	outcome := runToTerminal(t, f, task)
	if outcome != OutcomeCompleted {
		t.Fatalf("outcome = %s; want COMPLETED", outcome)
	}
	n, ok := task.Result.NumericValue()
	if !ok || n != 42 {
		t.Errorf("result = %v; want 42 (child's result)", task.Result)
	}
}

// TestAwaitOnFailedChildPropagatesThrow confirms a child that fails
// propagates as a thrown value to the awaiting parent instead of a plain
// resume value.
func TestAwaitOnFailedChildPropagatesThrow(t *testing.T) {
	childCode := program(op(OpPushI32), i32(-1), op(OpThrow))
	mainCode := program(
		op(OpSpawn), u16(1), u8(0),
		op(OpAwait),
		op(OpReturn),
	)
	functions := []module.Function{
		{Name: "main", Bytecode: mainCode},
		{Name: "child", Bytecode: childCode},
	}
	f := newFixture(t, functions, nil)
	task := f.spawn(t, 0, nil)

	outcome := runToTerminal(t, f, task)
	if outcome != OutcomeFailed {
		t.Fatalf("outcome = %s; want FAILED (child's failure propagates uncaught)", outcome)
	}
	n, ok := task.FailValue.NumericValue()
	if !ok || n != -1 {
		t.Errorf("FailValue = %v; want -1", task.FailValue)
	}
}

// TestAwaitOnCancelledChildThrowsCancellationError confirms that awaiting a
// task which gets cancelled while suspended fails the awaiter with a thrown
// RuntimeError carrying the "task was cancelled" message, rather than
// resuming it with a null result.
func TestAwaitOnCancelledChildThrowsCancellationError(t *testing.T) {
	// child(): sleep long enough that the test can cancel it before it
	// wakes on its own.
	childCode := program(
		op(OpPushI32), i32(1_000_000),
		op(OpSleep),
		op(OpPushI32), i32(0),
		op(OpReturn),
	)
	mainCode := program(
		op(OpSpawn), u16(1), u8(0),
		op(OpAwait),
		op(OpReturn),
	)
	functions := []module.Function{
		{Name: "main", Bytecode: mainCode},
		{Name: "child", Bytecode: childCode},
	}
	f := newFixture(t, functions, nil)
	task := f.spawn(t, 0, nil)

	// Drive main until it suspends on the Await, then child until it
	// suspends on its Sleep, then cancel the child directly.
	for i := 0; i < 2; i++ {
		ready, ok := f.sched.NextReady()
		if !ok {
			t.Fatalf("step %d: no ready task", i)
		}
		if _, err := f.it.Run(ready); err != nil {
			t.Fatalf("step %d: Run: %v", i, err)
		}
	}

	child, ok := f.sched.Get(task.ID + 1)
	if !ok {
		t.Fatal("could not find spawned child task")
	}
	f.sched.Cancel(child)
	if !f.sched.CheckCancelled(child) {
		t.Fatal("CheckCancelled should report true for a cancel-requested, non-terminal task")
	}

	outcome := runToTerminal(t, f, task)
	if outcome != OutcomeFailed {
		t.Fatalf("outcome = %s; want FAILED (await of a cancelled task throws)", outcome)
	}
	str, ok := heap.AsString(task.FailValue)
	if !ok {
		t.Fatalf("FailValue = %v; want a thrown string", task.FailValue)
	}
	if msg := str.String(); !strings.Contains(msg, "task was cancelled") {
		t.Errorf("FailValue message = %q; want it to mention the task was cancelled", msg)
	}
}

func TestYieldReturnsControlThenResumes(t *testing.T) {
	code := program(
		op(OpYield),
		op(OpPushI32), i32(1),
		op(OpReturn),
	)
	f := newFixture(t, []module.Function{{Name: "main", Bytecode: code}}, nil)
	task := f.spawn(t, 0, nil)

	outcome := runToTerminal(t, f, task)
	if outcome != OutcomeCompleted {
		t.Fatalf("outcome = %s; want COMPLETED", outcome)
	}
	n, ok := task.Result.NumericValue()
	if !ok || n != 1 {
		t.Errorf("result = %v; want 1", task.Result)
	}
}
