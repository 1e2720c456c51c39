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

package scheduler

import (
	"testing"

	"github.com/rayalang/raya/stack"
	"github.com/rayalang/raya/value"
)

// fakeClock lets tests advance "now" deterministically instead of depending
// on wall-clock time.
type fakeClock struct{ nowMs int64 }

func (c *fakeClock) NowMs() int64 { return c.nowMs }

func newTestTask(s *Scheduler) *Task {
	return s.Spawn(stack.New(), 0)
}

func TestSpawnFIFOOrder(t *testing.T) {
	s := New(&fakeClock{}, nil)
	a := newTestTask(s)
	b := newTestTask(s)

	first, ok := s.NextReady()
	if !ok || first.ID != a.ID {
		t.Fatalf("first ready task = %v; want %v", first, a)
	}
	second, ok := s.NextReady()
	if !ok || second.ID != b.ID {
		t.Fatalf("second ready task = %v; want %v", second, b)
	}
	if _, ok := s.NextReady(); ok {
		t.Error("NextReady() with no more ready tasks reported ok")
	}
}

func TestNextReadyTransitionsToRunning(t *testing.T) {
	s := New(&fakeClock{}, nil)
	a := newTestTask(s)
	got, _ := s.NextReady()
	if got.State != StateRunning {
		t.Errorf("State after NextReady = %v; want RUNNING", got.State)
	}
	_ = a
}

func TestSleepWakesOnTimerExpiry(t *testing.T) {
	clock := &fakeClock{nowMs: 1000}
	s := New(clock, nil)
	task := newTestTask(s)
	task, _ = s.NextReady()

	s.Suspend(task, Reason{Kind: ReasonSleep, UntilMs: 1500})
	if task.State != StateSuspended {
		t.Fatalf("State after Suspend = %v; want SUSPENDED", task.State)
	}

	if _, ok := s.NextReady(); ok {
		t.Fatal("task became ready before its sleep deadline")
	}

	clock.nowMs = 1500
	ready, ok := s.NextReady()
	if !ok || ready.ID != task.ID {
		t.Fatalf("NextReady() after deadline = (%v, %v); want the slept task", ready, ok)
	}
	if !task.HasResume || task.ResumeKind != ReasonSleep {
		t.Errorf("ResumeKind = %v HasResume = %v; want Sleep/true", task.ResumeKind, task.HasResume)
	}
}

func TestAwaitTaskResolvesOnCompletion(t *testing.T) {
	s := New(&fakeClock{}, nil)
	target := newTestTask(s)
	target, _ = s.NextReady()

	waiter := newTestTask(s)
	waiter, _ = s.NextReady()

	s.Suspend(waiter, Reason{Kind: ReasonAwaitTask, TaskID: target.ID})
	if _, ok := s.NextReady(); ok {
		t.Fatal("waiter became ready before the awaited task completed")
	}

	s.CompleteTask(target, value.I32(42))

	ready, ok := s.NextReady()
	if !ok || ready.ID != waiter.ID {
		t.Fatalf("waiter did not become ready after the awaited task completed")
	}
	n, _ := waiter.ResumeValue.AsI32()
	if n != 42 {
		t.Errorf("ResumeValue = %d; want 42", n)
	}
	if waiter.ResumeIsThrow {
		t.Error("ResumeIsThrow should be false for a completed (non-failed) await target")
	}
}

func TestAwaitTaskPropagatesFailure(t *testing.T) {
	s := New(&fakeClock{}, nil)
	target := newTestTask(s)
	target, _ = s.NextReady()

	waiter := newTestTask(s)
	waiter, _ = s.NextReady()

	s.Suspend(waiter, Reason{Kind: ReasonAwaitTask, TaskID: target.ID})
	s.FailTask(target, value.I32(-1))

	ready, ok := s.NextReady()
	if !ok || ready.ID != waiter.ID {
		t.Fatal("waiter did not wake after the awaited task failed")
	}
	if !waiter.ResumeIsThrow {
		t.Error("ResumeIsThrow should be true when the awaited task failed")
	}
	n, _ := waiter.ResumeValue.AsI32()
	if n != -1 {
		t.Errorf("ResumeValue = %d; want -1 (the target's FailValue)", n)
	}
}

func TestAwaitTaskOnCancelledTargetThrows(t *testing.T) {
	s := New(&fakeClock{}, nil)
	target := newTestTask(s)
	target, _ = s.NextReady()

	waiter := newTestTask(s)
	waiter, _ = s.NextReady()

	s.Suspend(waiter, Reason{Kind: ReasonAwaitTask, TaskID: target.ID})

	target.CancelRequested = true
	s.CheckCancelled(target)

	ready, ok := s.NextReady()
	if !ok || ready.ID != waiter.ID {
		t.Fatal("waiter did not wake after the awaited task was cancelled")
	}
	if !waiter.ResumeIsThrow {
		t.Error("ResumeIsThrow should be true when the awaited task was cancelled")
	}
	if !waiter.ResumeThrowIsTaskCancelled {
		t.Error("ResumeThrowIsTaskCancelled should mark the pending throw as a cancellation")
	}
}

func TestAwaitAllResolvesOnceEveryTargetIsTerminal(t *testing.T) {
	s := New(&fakeClock{}, nil)
	t1 := newTestTask(s)
	t1, _ = s.NextReady()
	t2 := newTestTask(s)
	t2, _ = s.NextReady()

	waiter := newTestTask(s)
	waiter, _ = s.NextReady()

	s.Suspend(waiter, Reason{Kind: ReasonAwaitAll, TaskIDs: []TaskID{t1.ID, t2.ID}})

	s.CompleteTask(t1, value.I32(1))
	if _, ok := s.NextReady(); ok {
		t.Fatal("AwaitAll resolved before every target task completed")
	}

	s.CompleteTask(t2, value.I32(2))
	ready, ok := s.NextReady()
	if !ok || ready.ID != waiter.ID {
		t.Fatal("AwaitAll did not resolve once every target completed")
	}
}

func TestAwaitAllWithACancelledTargetThrows(t *testing.T) {
	s := New(&fakeClock{}, nil)
	t1 := newTestTask(s)
	t1, _ = s.NextReady()
	t2 := newTestTask(s)
	t2, _ = s.NextReady()

	waiter := newTestTask(s)
	waiter, _ = s.NextReady()

	s.Suspend(waiter, Reason{Kind: ReasonAwaitAll, TaskIDs: []TaskID{t1.ID, t2.ID}})

	t1.CancelRequested = true
	s.CheckCancelled(t1)
	s.CompleteTask(t2, value.I32(2))

	ready, ok := s.NextReady()
	if !ok || ready.ID != waiter.ID {
		t.Fatal("AwaitAll did not resolve after one target was cancelled")
	}
	if !waiter.ResumeIsThrow || !waiter.ResumeThrowIsTaskCancelled {
		t.Error("AwaitAll with a cancelled target should resume the waiter as a cancellation throw")
	}
}

func TestAwaitTaskOnAlreadyTerminalTargetResolvesImmediately(t *testing.T) {
	s := New(&fakeClock{}, nil)
	target := newTestTask(s)
	target, _ = s.NextReady()
	s.CompleteTask(target, value.I32(7))

	waiter := newTestTask(s)
	waiter, _ = s.NextReady()
	s.Suspend(waiter, Reason{Kind: ReasonAwaitTask, TaskID: target.ID})

	ready, ok := s.NextReady()
	if !ok || ready.ID != waiter.ID {
		t.Fatal("awaiting an already-completed task should resolve without blocking")
	}
}

func TestMutexAcquireReleaseFIFO(t *testing.T) {
	s := New(&fakeClock{}, nil)
	holder := newTestTask(s)
	holder, _ = s.NextReady()
	if !s.AcquireMutex(1, holder) {
		t.Fatal("first AcquireMutex should succeed uncontended")
	}

	waiter := newTestTask(s)
	waiter, _ = s.NextReady()
	if s.AcquireMutex(1, waiter) {
		t.Fatal("AcquireMutex should fail while the mutex is held")
	}
	s.Suspend(waiter, Reason{Kind: ReasonMutexAcquire, MutexID: 1})

	s.ReleaseMutex(1)
	ready, ok := s.NextReady()
	if !ok || ready.ID != waiter.ID {
		t.Fatal("ReleaseMutex should wake the FIFO head of the wait queue")
	}
}

func TestCheckCancelledTransitionsAndReleasesMutex(t *testing.T) {
	s := New(&fakeClock{}, nil)
	holder := newTestTask(s)
	holder, _ = s.NextReady()
	s.AcquireMutex(5, holder)
	holder.HeldMutexes = map[uint64]bool{5: true}

	waiter := newTestTask(s)
	waiter, _ = s.NextReady()
	s.Suspend(waiter, Reason{Kind: ReasonMutexAcquire, MutexID: 5})

	s.Cancel(holder)
	if !s.CheckCancelled(holder) {
		t.Fatal("CheckCancelled should report true for a cancel-requested task")
	}
	if holder.State != StateCancelled {
		t.Errorf("State = %v; want CANCELLED", holder.State)
	}

	ready, ok := s.NextReady()
	if !ok || ready.ID != waiter.ID {
		t.Fatal("cancelling the mutex holder should release it to the next waiter")
	}
}

func TestCheckCancelledIsNoOpOnTerminalTask(t *testing.T) {
	s := New(&fakeClock{}, nil)
	task := newTestTask(s)
	task, _ = s.NextReady()
	s.CompleteTask(task, value.Null())

	s.Cancel(task)
	if s.CheckCancelled(task) {
		t.Error("CheckCancelled on an already-terminal task should report false")
	}
}

func TestLiveTaskCount(t *testing.T) {
	s := New(&fakeClock{}, nil)
	a := newTestTask(s)
	newTestTask(s)
	if got := s.LiveTaskCount(); got != 2 {
		t.Fatalf("LiveTaskCount() = %d; want 2", got)
	}

	a, _ = s.NextReady()
	s.CompleteTask(a, value.Null())
	if got := s.LiveTaskCount(); got != 1 {
		t.Errorf("LiveTaskCount() after one completion = %d; want 1", got)
	}
}
