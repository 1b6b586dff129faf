// Package decision implements single-outstanding-decision coordination:
// an agent hands a question to a human operator and resumes once the
// operator answers. At most one decision is pending at any time.
package decision

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors returned by slot operations. Callers branch on these
// with errors.Is instead of relying on error strings.
var (
	// ErrConflict means a create attempt found a live decision.
	ErrConflict = errors.New("pending decision already exists")
	// ErrTimeout means no answer arrived before the deadline.
	ErrTimeout = errors.New("timed out waiting for answer")
	// ErrCancelled means the decision was cancelled while waiting.
	ErrCancelled = errors.New("decision cancelled")
	// ErrNotFound means the given id does not identify the slot's decision.
	ErrNotFound = errors.New("decision not found")
)

// Status describes what Peek knows about a request id.
type Status int

const (
	// StatusUnknown - the id is not the live decision nor a remembered answered one.
	StatusUnknown Status = iota
	// StatusPending - the decision exists and has no answer yet.
	StatusPending
	// StatusAnswered - the decision has been resolved.
	StatusAnswered
)

type outcome int

const (
	outcomeUnset outcome = iota
	outcomeAnswered
	outcomeCancelled
)

// pendingDecision is owned exclusively by the slot. Its outcome is a
// single-assignment cell: written under the slot mutex exactly once,
// immediately before done is closed.
type pendingDecision struct {
	id       string
	question string
	options  []string
	done     chan struct{}
	outcome  outcome
	answer   string
}

// Slot is the single-occupancy holder of at most one pending decision.
// All mutations are serialized under one mutex; waiting happens outside
// the mutex on the decision's done channel, so a waiter never blocks
// resolution.
type Slot struct {
	mu  sync.Mutex
	cur *pendingDecision
}

// NewSlot creates an empty answer slot.
func NewSlot() *Slot {
	return &Slot{}
}

// Create installs a new pending decision and returns its id. It fails with
// ErrConflict if a non-terminal decision already occupies the slot. Any
// prior terminal state is discarded.
func (s *Slot) Create(question string, options []string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cur != nil && s.cur.outcome == outcomeUnset {
		return "", ErrConflict
	}

	opts := make([]string, len(options))
	copy(opts, options)

	s.cur = &pendingDecision{
		id:       uuid.New().String(),
		question: question,
		options:  opts,
		done:     make(chan struct{}),
	}
	return s.cur.id, nil
}

// Await suspends the caller until the decision identified by id is answered,
// cancelled, or the timeout elapses, whichever comes first. On timeout the
// slot is NOT cleared; that is the caller's responsibility.
func (s *Slot) Await(ctx context.Context, id string, timeout time.Duration) (string, error) {
	s.mu.Lock()
	d := s.cur
	if d == nil || d.id != id {
		s.mu.Unlock()
		return "", ErrNotFound
	}
	s.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-d.done:
	case <-timer.C:
		return "", ErrTimeout
	case <-ctx.Done():
		return "", ErrCancelled
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if d.outcome == outcomeAnswered {
		return d.answer, nil
	}
	return "", ErrCancelled
}

// Resolve records the answer for the decision identified by id and wakes all
// waiters. It returns false when the id does not match the live decision or
// the decision is already terminal: the first resolution wins, and an answer
// mapped against one decision can never land on its successor.
func (s *Slot) Resolve(id, text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cur == nil || s.cur.id != id || s.cur.outcome != outcomeUnset {
		return false
	}
	s.cur.answer = text
	s.cur.outcome = outcomeAnswered
	close(s.cur.done)
	return true
}

// Peek reports what is known about the given id without suspending.
// A stale or foreign id yields StatusUnknown, never another decision's
// answer.
func (s *Slot) Peek(id string) (string, Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cur == nil || s.cur.id != id {
		return "", StatusUnknown
	}
	switch s.cur.outcome {
	case outcomeAnswered:
		return s.cur.answer, StatusAnswered
	case outcomeUnset:
		return "", StatusPending
	default:
		return "", StatusUnknown
	}
}

// Cancel marks the decision identified by id cancelled, wakes its waiters,
// and clears the slot. A foreign or stale id leaves the slot untouched, so a
// late canceller never tears down a successor decision. Idempotent.
func (s *Slot) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cur == nil || s.cur.id != id || s.cur.outcome != outcomeUnset {
		return
	}
	s.cur.outcome = outcomeCancelled
	close(s.cur.done)
	s.cur = nil
}

// Preempt cancels whatever decision currently occupies the slot, wakes its
// waiters, and clears the slot, returning the cancelled id. Only the
// synchronous path uses this: a new synchronous question supersedes a stale
// one regardless of who created it.
func (s *Slot) Preempt() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cur == nil || s.cur.outcome != outcomeUnset {
		return "", false
	}
	id := s.cur.id
	s.cur.outcome = outcomeCancelled
	close(s.cur.done)
	s.cur = nil
	return id, true
}

// Clear discards the decision identified by id, terminal or not known to be.
// Used by the synchronous path once the waiter has consumed the answer; a
// mismatched id leaves the slot untouched.
func (s *Slot) Clear(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cur != nil && s.cur.id == id && s.cur.outcome != outcomeUnset {
		s.cur = nil
	}
}

// Pending reports whether a non-terminal decision occupies the slot.
func (s *Slot) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur != nil && s.cur.outcome == outcomeUnset
}

// Snapshot captures the live decision's id and a copy of its options in one
// critical section, so reply mapping and resolution can target the same
// decision even when a preempting ask runs in between.
func (s *Slot) Snapshot() (string, []string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cur == nil || s.cur.outcome != outcomeUnset {
		return "", nil, false
	}
	opts := make([]string, len(s.cur.options))
	copy(opts, s.cur.options)
	return s.cur.id, opts, true
}

// Options returns a copy of the live decision's options, or nil when no
// decision is pending.
func (s *Slot) Options() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cur == nil || s.cur.outcome != outcomeUnset {
		return nil
	}
	opts := make([]string, len(s.cur.options))
	copy(opts, s.cur.options)
	return opts
}

// Question returns the live decision's prompt text, or "" when no decision
// is pending.
func (s *Slot) Question() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cur == nil || s.cur.outcome != outcomeUnset {
		return ""
	}
	return s.cur.question
}
