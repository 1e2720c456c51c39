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

package stack

import (
	"testing"

	"github.com/rayalang/raya/rerrors"
	"github.com/rayalang/raya/value"
)

func mustPush(t *testing.T, s *Stack, v value.Value) {
	t.Helper()
	if err := s.Push(v); err != nil {
		t.Fatalf("Push(%v): %v", v, err)
	}
}

func TestPushPopOrder(t *testing.T) {
	s := New()
	mustPush(t, s, value.I32(1))
	mustPush(t, s, value.I32(2))
	mustPush(t, s, value.I32(3))

	for _, want := range []int32{3, 2, 1} {
		v, err := s.Pop()
		if err != nil {
			t.Fatalf("Pop: %v", err)
		}
		got, _ := v.AsI32()
		if got != want {
			t.Errorf("Pop() = %d; want %d", got, want)
		}
	}
	if !s.IsEmpty() {
		t.Error("stack should be empty after popping every pushed value")
	}
}

func TestPopUnderflow(t *testing.T) {
	s := New()
	if _, err := s.Pop(); rerrors.KindOf(err) != rerrors.KindStackUnderflow {
		t.Fatalf("Pop() on empty stack: kind = %v; want StackUnderflow", rerrors.KindOf(err))
	}
}

func TestPushOverflow(t *testing.T) {
	s := WithCapacity(2)
	mustPush(t, s, value.I32(1))
	mustPush(t, s, value.I32(2))
	if err := s.Push(value.I32(3)); rerrors.KindOf(err) != rerrors.KindStackOverflow {
		t.Fatalf("Push beyond capacity: kind = %v; want StackOverflow", rerrors.KindOf(err))
	}
}

func TestPeekDoesNotPop(t *testing.T) {
	s := New()
	mustPush(t, s, value.I32(10))
	mustPush(t, s, value.I32(20))

	top, err := s.Peek()
	if err != nil {
		t.Fatalf("Peek: %v", err)
	}
	if n, _ := top.AsI32(); n != 20 {
		t.Errorf("Peek() = %d; want 20", n)
	}
	if s.Depth() != 2 {
		t.Errorf("Depth() after Peek = %d; want 2 (unchanged)", s.Depth())
	}

	second, err := s.PeekN(1)
	if err != nil {
		t.Fatalf("PeekN(1): %v", err)
	}
	if n, _ := second.AsI32(); n != 10 {
		t.Errorf("PeekN(1) = %d; want 10", n)
	}
}

func TestPeekAtAndSetAt(t *testing.T) {
	s := New()
	mustPush(t, s, value.I32(1))
	mustPush(t, s, value.I32(2))

	v, err := s.PeekAt(0)
	if err != nil {
		t.Fatalf("PeekAt(0): %v", err)
	}
	if n, _ := v.AsI32(); n != 1 {
		t.Errorf("PeekAt(0) = %d; want 1", n)
	}

	if err := s.SetAt(0, value.I32(99)); err != nil {
		t.Fatalf("SetAt(0): %v", err)
	}
	v, _ = s.PeekAt(0)
	if n, _ := v.AsI32(); n != 99 {
		t.Errorf("after SetAt(0, 99), PeekAt(0) = %d; want 99", n)
	}

	if _, err := s.PeekAt(5); rerrors.KindOf(err) != rerrors.KindStackUnderflow {
		t.Errorf("PeekAt(5) out of range: kind = %v; want StackUnderflow", rerrors.KindOf(err))
	}
}

func TestFrameLocalsIsolatedFromCaller(t *testing.T) {
	s := New()
	mustPush(t, s, value.I32(7)) // caller operand, below the callee's frame

	if err := s.PushFrame(1, 0, 2, 0); err != nil {
		t.Fatalf("PushFrame: %v", err)
	}
	if s.FrameCount() != 1 {
		t.Fatalf("FrameCount() = %d; want 1", s.FrameCount())
	}

	if err := s.StoreLocal(0, value.I32(100)); err != nil {
		t.Fatalf("StoreLocal(0): %v", err)
	}
	if err := s.StoreLocal(1, value.I32(200)); err != nil {
		t.Fatalf("StoreLocal(1): %v", err)
	}

	v, err := s.LoadLocal(0)
	if err != nil {
		t.Fatalf("LoadLocal(0): %v", err)
	}
	if n, _ := v.AsI32(); n != 100 {
		t.Errorf("LoadLocal(0) = %d; want 100", n)
	}

	if _, err := s.LoadLocal(2); err == nil {
		t.Error("LoadLocal(2) out of the frame's declared local count: want error")
	}

	frame, err := s.PopFrame()
	if err != nil {
		t.Fatalf("PopFrame: %v", err)
	}
	if frame.LocalCount != 2 {
		t.Errorf("popped frame LocalCount = %d; want 2", frame.LocalCount)
	}
	if s.FrameCount() != 0 {
		t.Errorf("FrameCount() after PopFrame = %d; want 0", s.FrameCount())
	}

	// The caller's operand below the frame must survive untouched.
	v, err = s.Pop()
	if err != nil {
		t.Fatalf("Pop after PopFrame: %v", err)
	}
	if n, _ := v.AsI32(); n != 7 {
		t.Errorf("caller operand after PopFrame = %d; want 7", n)
	}
}

func TestPopFrameNoActiveFrame(t *testing.T) {
	s := New()
	if _, err := s.PopFrame(); err == nil {
		t.Fatal("PopFrame() with no active frame: want error, got nil")
	}
}

func TestNestedFrames(t *testing.T) {
	s := New()
	if err := s.PushFrame(1, 0, 1, 0); err != nil {
		t.Fatalf("PushFrame(outer): %v", err)
	}
	s.StoreLocal(0, value.I32(1))

	if err := s.PushFrame(2, 0, 1, 0); err != nil {
		t.Fatalf("PushFrame(inner): %v", err)
	}
	s.StoreLocal(0, value.I32(2))

	v, _ := s.LoadLocal(0)
	if n, _ := v.AsI32(); n != 2 {
		t.Errorf("inner frame LoadLocal(0) = %d; want 2", n)
	}

	if _, err := s.PopFrame(); err != nil {
		t.Fatalf("PopFrame(inner): %v", err)
	}
	v, _ = s.LoadLocal(0)
	if n, _ := v.AsI32(); n != 1 {
		t.Errorf("outer frame LoadLocal(0) after inner pop = %d; want 1", n)
	}
}

func TestVisitRootsCoversLiveSlotsOnly(t *testing.T) {
	s := New()
	mustPush(t, s, value.I32(1))
	mustPush(t, s, value.I32(2))
	s.Pop() // sp now 1; the popped slot must not be visited

	var seen []int32
	s.VisitRoots(func(v value.Value) {
		n, _ := v.AsI32()
		seen = append(seen, n)
	})
	if len(seen) != 1 || seen[0] != 1 {
		t.Errorf("VisitRoots saw %v; want [1]", seen)
	}
}
