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

// Package scheduler implements the cooperative, single-threaded task
// scheduler (spec §4.5, §5): Task lifecycle, suspension reasons, FIFO
// waitsets on channels and mutexes, a timer wheel for Sleep, and the I/O
// reactor boundary.
//
// Grounded on miner/worker.go's channel-driven task-loop pattern
// (independent goroutines coordinated over buffered channels), generalized
// from "one mining worker" to "N cooperative tasks plus one reactor".
// golang.org/x/sync/errgroup supervises the reactor goroutine's lifecycle.
package scheduler

import (
	"container/heap"
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/rayalang/raya/rlog"
	"github.com/rayalang/raya/stack"
	"github.com/rayalang/raya/value"
)

// State is a Task's lifecycle state (spec §3.5).
type State uint8

const (
	StateReady State = iota
	StateRunning
	StateSuspended
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "READY"
	case StateRunning:
		return "RUNNING"
	case StateSuspended:
		return "SUSPENDED"
	case StateCompleted:
		return "COMPLETED"
	case StateFailed:
		return "FAILED"
	case StateCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether s is one of the three states a Task never
// transitions out of.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// ReasonKind discriminates why a Task is SUSPENDED.
type ReasonKind uint8

const (
	ReasonChannelSend ReasonKind = iota
	ReasonChannelReceive
	ReasonMutexAcquire
	ReasonSleep
	ReasonAwaitTask
	ReasonAwaitAll
	ReasonIoWait
)

// Reason is the suspension payload for a parked Task (spec §4.5).
type Reason struct {
	Kind      ReasonKind
	ChannelID uint64
	SendValue value.Value
	MutexID   uint64
	UntilMs   int64
	TaskID    TaskID
	TaskIDs   []TaskID
}

// TaskID identifies a Task for its whole lifetime.
type TaskID uint64

// TryHandler records one active exception-handling scope: the bytecode
// offset to jump to on Throw, and the stack/frame depth to unwind to
// before jumping there (spec §4.3's TryBegin/TryEnd).
type TryHandler struct {
	HandlerIP  uint32
	StackDepth int
	FrameDepth int
}

// Task owns its own Stack, instruction pointer, and scheduling state
// (spec §3.5).
type Task struct {
	ID              TaskID
	Stack           *stack.Stack
	IP              uint32
	FunctionIndex   int
	State           State
	CancelRequested bool
	HeldMutexes     map[uint64]bool
	SuspendReason   *Reason
	Result          value.Value
	FailValue       value.Value
	Captures        []value.Value
	TryHandlers     []TryHandler

	// Resume* carries the outcome of whatever the Task was last suspended
	// for, so the interpreter knows what to push (or throw) when it next
	// runs this Task. Set immediately before SuspendReason is cleared;
	// consumed and cleared by the interpreter itself on resumption.
	HasResume     bool
	ResumeKind    ReasonKind
	ResumeValue   value.Value
	ResumeIsThrow bool
	ResumeTaskIDs []TaskID

	// ResumeThrowIsTaskCancelled marks a pending throw resume whose value
	// hasn't been allocated yet: an Await of a CANCELLED task throws a
	// RuntimeError carrying a "task was cancelled" message, but building
	// that message needs heap access the scheduler doesn't have, so the
	// interpreter builds it lazily when it consumes the resume.
	ResumeThrowIsTaskCancelled bool

	waiters []TaskID // tasks parked on AwaitTask/AwaitAll for this task's completion
}

// VisitRoots visits every root Value owned by this Task: its operand
// stack and its captures (spec §5's root enumeration contract).
func (t *Task) VisitRoots(visitor func(value.Value)) {
	t.Stack.VisitRoots(visitor)
	for _, c := range t.Captures {
		visitor(c)
	}
	visitor(t.Result)
	visitor(t.FailValue)
}

// timerEntry is one pending Sleep, ordered by UntilMs in the timer heap.
type timerEntry struct {
	untilMs int64
	taskID  TaskID
	index   int
}

type timerQueue []*timerEntry

func (q timerQueue) Len() int            { return len(q) }
func (q timerQueue) Less(i, j int) bool  { return q[i].untilMs < q[j].untilMs }
func (q timerQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i]; q[i].index = i; q[j].index = j }
func (q *timerQueue) Push(x interface{}) {
	e := x.(*timerEntry)
	e.index = len(*q)
	*q = append(*q, e)
}
func (q *timerQueue) Pop() interface{} {
	old := *q
	n := len(old)
	e := old[n-1]
	*q = old[:n-1]
	return e
}

// mutexState is the registry entry for one user-level mutex.
type mutexState struct {
	held   bool
	holder TaskID
	queue  []TaskID
}

// channelWaiters tracks the FIFO sender/receiver queues for one
// ChannelObject by its heap identity id. The channel's data queue and
// closed flag live on the heap.ChannelObject itself; the scheduler only
// owns which tasks are parked on it.
type channelWaiters struct {
	senders   []TaskID
	receivers []TaskID
}

// Clock abstracts "now" in milliseconds so tests can drive the timer wheel
// deterministically instead of depending on wall-clock time.
type Clock interface {
	NowMs() int64
}

// Reactor delivers asynchronous I/O completions back into the scheduler.
// Implementations run on their own goroutine and send on the channel
// returned by Completions when a submitted operation finishes; the
// scheduler drains that channel.
type Reactor interface {
	// Run processes submissions until ctx is cancelled.
	Run(ctx context.Context) error
	// Completions returns the channel the scheduler drains for IoWait
	// wakeups: (task id, result value, error).
	Completions() <-chan IoCompletion
}

// IoCompletion is one reactor completion event.
type IoCompletion struct {
	TaskID TaskID
	Value  value.Value
	Err    error
}

// Scheduler runs Tasks cooperatively to completion, one instruction
// sequence at a time, handing control back at every documented suspension
// point (spec §4.5).
type Scheduler struct {
	tasks     map[TaskID]*Task
	ready     []TaskID
	nextID    TaskID
	clock     Clock
	timers    timerQueue
	mutexes   map[uint64]*mutexState
	channels  map[uint64]*channelWaiters
	reactor   Reactor
	group     *errgroup.Group
	groupCtx  context.Context
	cancelRun context.CancelFunc
	log       *rlog.Logger
}

// New creates a Scheduler. clock supplies the wall-clock time for Sleep;
// reactor may be nil if no I/O-capable natives are wired in.
func New(clock Clock, reactor Reactor) *Scheduler {
	return &Scheduler{
		tasks:    make(map[TaskID]*Task),
		clock:    clock,
		mutexes:  make(map[uint64]*mutexState),
		channels: make(map[uint64]*channelWaiters),
		reactor:  reactor,
		log:      rlog.Default.With("component", "scheduler"),
	}
}

// NowMs returns the scheduler's clock time in milliseconds, used by natives
// and the interpreter's Sleep opcode to compute an absolute wake deadline.
func (s *Scheduler) NowMs() int64 { return s.clock.NowMs() }

// Yield puts t back on the ready queue immediately, with no suspension
// reason recorded — the cooperative-yield case spec §4.5 distinguishes
// from the seven blocking ReasonKinds: the task isn't waiting on anything,
// it's just giving up its turn.
func (s *Scheduler) Yield(t *Task) {
	t.State = StateReady
	s.ready = append(s.ready, t.ID)
}

// Spawn registers a new Task in state READY with the given initial Stack.
func (s *Scheduler) Spawn(st *stack.Stack, functionIndex int) *Task {
	s.nextID++
	t := &Task{ID: s.nextID, Stack: st, FunctionIndex: functionIndex, State: StateReady}
	s.tasks[t.ID] = t
	s.ready = append(s.ready, t.ID)
	s.log.Debug("task spawned", "taskID", t.ID, "functionIndex", functionIndex)
	return t
}

// Get returns the Task with the given id.
func (s *Scheduler) Get(id TaskID) (*Task, bool) {
	t, ok := s.tasks[id]
	return t, ok
}

// StartReactor launches the I/O reactor goroutine, supervised by an
// errgroup so a reactor failure surfaces through Wait rather than being
// silently dropped.
func (s *Scheduler) StartReactor(ctx context.Context) {
	if s.reactor == nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRun = cancel
	group, groupCtx := errgroup.WithContext(runCtx)
	s.group = group
	s.groupCtx = groupCtx
	group.Go(func() error { return s.reactor.Run(groupCtx) })
}

// StopReactor cancels the reactor goroutine and waits for it to exit.
func (s *Scheduler) StopReactor() error {
	if s.cancelRun == nil {
		return nil
	}
	s.cancelRun()
	return s.group.Wait()
}

// Ready reports whether any Task is READY to run.
func (s *Scheduler) Ready() bool { return len(s.ready) > 0 }

// NextReady dequeues and returns the next READY Task, transitioning it to
// RUNNING, or (nil, false) if none is ready.
func (s *Scheduler) NextReady() (*Task, bool) {
	s.drainTimers()
	s.drainReactor()
	if len(s.ready) == 0 {
		return nil, false
	}
	id := s.ready[0]
	s.ready = s.ready[1:]
	t := s.tasks[id]
	t.State = StateRunning
	return t, true
}

// drainTimers moves any Task whose Sleep deadline has passed back to READY.
func (s *Scheduler) drainTimers() {
	now := s.clock.NowMs()
	for len(s.timers) > 0 && s.timers[0].untilMs <= now {
		e := heap.Pop(&s.timers).(*timerEntry)
		s.wake(e.taskID, value.Null())
	}
}

// drainReactor pulls any pending I/O completions without blocking.
func (s *Scheduler) drainReactor() {
	if s.reactor == nil {
		return
	}
	for {
		select {
		case ev := <-s.reactor.Completions():
			if ev.Err != nil {
				s.failTask(ev.TaskID, value.Null())
				continue
			}
			s.wake(ev.TaskID, ev.Value)
		default:
			return
		}
	}
}

// Suspend parks t for the given Reason, registering it on the appropriate
// waitset (spec §4.5's per-reason contracts).
func (s *Scheduler) Suspend(t *Task, reason Reason) {
	t.State = StateSuspended
	t.SuspendReason = &reason
	switch reason.Kind {
	case ReasonSleep:
		heap.Push(&s.timers, &timerEntry{untilMs: reason.UntilMs, taskID: t.ID})
	case ReasonChannelSend:
		cw := s.channelWaiters(reason.ChannelID)
		cw.senders = append(cw.senders, t.ID)
	case ReasonChannelReceive:
		cw := s.channelWaiters(reason.ChannelID)
		cw.receivers = append(cw.receivers, t.ID)
	case ReasonMutexAcquire:
		m := s.mutexState(reason.MutexID)
		m.queue = append(m.queue, t.ID)
	case ReasonAwaitTask:
		if target, ok := s.tasks[reason.TaskID]; ok && !target.State.IsTerminal() {
			target.waiters = append(target.waiters, t.ID)
		} else {
			s.resolveAwaitTask(t, reason.TaskID)
		}
	case ReasonAwaitAll:
		pending := false
		for _, id := range reason.TaskIDs {
			if target, ok := s.tasks[id]; ok && !target.State.IsTerminal() {
				target.waiters = append(target.waiters, t.ID)
				pending = true
			}
		}
		if !pending {
			s.resolveAwaitAll(t, reason.TaskIDs)
		}
	case ReasonIoWait:
		// Nothing to register; drainReactor matches completions by TaskID.
	}
}

func (s *Scheduler) channelWaiters(channelID uint64) *channelWaiters {
	cw, ok := s.channels[channelID]
	if !ok {
		cw = &channelWaiters{}
		s.channels[channelID] = cw
	}
	return cw
}

func (s *Scheduler) mutexState(mutexID uint64) *mutexState {
	m, ok := s.mutexes[mutexID]
	if !ok {
		m = &mutexState{}
		s.mutexes[mutexID] = m
	}
	return m
}

// wake transitions a SUSPENDED task back to READY, recording result as
// its ResumeValue (interpretation of how that value is consumed — e.g.
// pushed on the operand stack — is the interp package's job).
func (s *Scheduler) wake(id TaskID, result value.Value) {
	t, ok := s.tasks[id]
	if !ok || t.State != StateSuspended {
		return
	}
	if t.SuspendReason != nil {
		t.ResumeKind = t.SuspendReason.Kind
		if t.SuspendReason.Kind == ReasonAwaitAll {
			t.ResumeTaskIDs = t.SuspendReason.TaskIDs
		}
	}
	t.ResumeValue = result
	t.ResumeIsThrow = false
	t.HasResume = true
	t.State = StateReady
	t.SuspendReason = nil
	s.ready = append(s.ready, id)
}

// CompleteTask transitions t to COMPLETED with the given result, waking
// every AwaitTask/AwaitAll waiter.
func (s *Scheduler) CompleteTask(t *Task, result value.Value) {
	t.State = StateCompleted
	t.Result = result
	s.log.Debug("task completed", "taskID", t.ID)
	s.notifyWaiters(t)
}

// FailTask transitions t to FAILED with the given thrown value.
func (s *Scheduler) FailTask(t *Task, failValue value.Value) {
	t.State = StateFailed
	t.FailValue = failValue
	s.log.Debug("task failed", "taskID", t.ID)
	s.notifyWaiters(t)
}

func (s *Scheduler) failTask(id TaskID, failValue value.Value) {
	if t, ok := s.tasks[id]; ok {
		s.FailTask(t, failValue)
	}
}

func (s *Scheduler) notifyWaiters(t *Task) {
	waiters := t.waiters
	t.waiters = nil
	for _, wid := range waiters {
		w, ok := s.tasks[wid]
		if !ok || w.State != StateSuspended || w.SuspendReason == nil {
			continue
		}
		switch w.SuspendReason.Kind {
		case ReasonAwaitTask:
			s.resolveAwaitTask(w, t.ID)
		case ReasonAwaitAll:
			s.maybeResolveAwaitAll(w)
		}
	}
}

func (s *Scheduler) resolveAwaitTask(w *Task, targetID TaskID) {
	target, ok := s.tasks[targetID]
	if !ok {
		s.wake(w.ID, value.Null())
		return
	}
	if target.State == StateFailed {
		w.ResumeKind = ReasonAwaitTask
		w.ResumeIsThrow = true
		w.ResumeValue = target.FailValue
		w.HasResume = true
		w.State = StateReady
		w.SuspendReason = nil
		s.ready = append(s.ready, w.ID)
		return
	}
	if target.State == StateCancelled {
		w.ResumeKind = ReasonAwaitTask
		w.ResumeIsThrow = true
		w.ResumeThrowIsTaskCancelled = true
		w.HasResume = true
		w.State = StateReady
		w.SuspendReason = nil
		s.ready = append(s.ready, w.ID)
		return
	}
	s.wake(w.ID, target.Result)
}

func (s *Scheduler) maybeResolveAwaitAll(w *Task) {
	ids := w.SuspendReason.TaskIDs
	for _, id := range ids {
		if t, ok := s.tasks[id]; ok && !t.State.IsTerminal() {
			return // still waiting on at least one
		}
	}
	s.resolveAwaitAll(w, ids)
}

func (s *Scheduler) resolveAwaitAll(w *Task, ids []TaskID) {
	for _, id := range ids {
		t, ok := s.tasks[id]
		if !ok {
			continue
		}
		if t.State == StateFailed {
			w.ResumeKind = ReasonAwaitAll
			w.ResumeIsThrow = true
			w.ResumeValue = t.FailValue
			w.HasResume = true
			w.State = StateReady
			w.SuspendReason = nil
			s.ready = append(s.ready, w.ID)
			return
		}
		if t.State == StateCancelled {
			w.ResumeKind = ReasonAwaitAll
			w.ResumeIsThrow = true
			w.ResumeThrowIsTaskCancelled = true
			w.HasResume = true
			w.State = StateReady
			w.SuspendReason = nil
			s.ready = append(s.ready, w.ID)
			return
		}
	}
	// AwaitAll's array-of-results construction (needs heap access to
	// allocate an Array) is done by the interp package on resumption; the
	// scheduler just marks the task ready.
	s.wake(w.ID, value.Null())
}

// ReleaseMutex releases mutexID, promoting the FIFO head of its wait
// queue (if any) to READY and recording it as the new holder.
func (s *Scheduler) ReleaseMutex(mutexID uint64) {
	m, ok := s.mutexes[mutexID]
	if !ok {
		return
	}
	m.held = false
	if len(m.queue) == 0 {
		return
	}
	next := m.queue[0]
	m.queue = m.queue[1:]
	m.held = true
	m.holder = next
	s.wake(next, value.Null())
}

// AcquireMutex attempts to acquire mutexID for t without blocking,
// returning true on success; on failure the caller must Suspend t with a
// MutexAcquire reason.
func (s *Scheduler) AcquireMutex(mutexID uint64, t *Task) bool {
	m := s.mutexState(mutexID)
	if !m.held {
		m.held = true
		m.holder = t.ID
		return true
	}
	return false
}

// PopSenderWaiter/PopReceiverWaiter pop the FIFO head waiting on a channel's
// send/receive side, pairing it with a counterpart arrival; used by
// nativeabi's channel handlers to hand off directly when a waiter is
// already parked instead of going through the data queue.
func (s *Scheduler) PopSenderWaiter(channelID uint64) (TaskID, bool) {
	cw, ok := s.channels[channelID]
	if !ok || len(cw.senders) == 0 {
		return 0, false
	}
	id := cw.senders[0]
	cw.senders = cw.senders[1:]
	return id, true
}

func (s *Scheduler) PopReceiverWaiter(channelID uint64) (TaskID, bool) {
	cw, ok := s.channels[channelID]
	if !ok || len(cw.receivers) == 0 {
		return 0, false
	}
	id := cw.receivers[0]
	cw.receivers = cw.receivers[1:]
	return id, true
}

// WakeChannelWaiter wakes a specific Task parked on a channel (either
// side) with the given resumption value, e.g. after a direct send/receive
// handoff or a channel close drains its waitsets FIFO.
func (s *Scheduler) WakeChannelWaiter(taskID TaskID, result value.Value) {
	s.wake(taskID, result)
}

// Cancel sets t's cancellation flag. Observation happens at the points
// enumerated in spec §4.5 (loop back-edges, before Call, before native
// calls, at suspension sites) — driven by the interp package calling
// CheckCancelled.
func (s *Scheduler) Cancel(t *Task) {
	t.CancelRequested = true
}

// CheckCancelled observes t's cancellation flag at a defined observation
// point. If set and t is not already terminal, it transitions t to
// CANCELLED, releases its held mutexes, and removes it from any channel
// waitset, returning true.
func (s *Scheduler) CheckCancelled(t *Task) bool {
	if !t.CancelRequested || t.State.IsTerminal() {
		return false
	}
	t.State = StateCancelled
	s.log.Debug("task cancelled", "taskID", t.ID)
	for mutexID, held := range t.HeldMutexes {
		if held {
			s.ReleaseMutex(mutexID)
		}
	}
	for _, cw := range s.channels {
		cw.senders = removeTask(cw.senders, t.ID)
		cw.receivers = removeTask(cw.receivers, t.ID)
	}
	s.notifyWaiters(t)
	return true
}

func removeTask(list []TaskID, id TaskID) []TaskID {
	out := list[:0]
	for _, w := range list {
		if w != id {
			out = append(out, w)
		}
	}
	return out
}

// LiveTaskCount returns the number of Tasks not yet in a terminal state.
func (s *Scheduler) LiveTaskCount() int {
	n := 0
	for _, t := range s.tasks {
		if !t.State.IsTerminal() {
			n++
		}
	}
	return n
}
