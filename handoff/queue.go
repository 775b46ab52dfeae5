package handoff

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// operation is a named unit of retryable, suspendable work: split a
// partition to a new owner, destroy a batch of duplicate activations,
// re-register a batch of existing activations after a takeover.
type operation struct {
	name   string
	action func(context.Context) error
}

// dequeueOutcome tells the executor loop what to do after reporting
// one attempt's result.
type dequeueOutcome int

const (
	outcomeStop dequeueOutcome = iota
	outcomeContinue
	outcomeRetryAfterDelay
)

// enqueueOp appends an operation to the pending queue. Must only be
// called from inside the mailbox goroutine (i.e. from within a
// ProcessSiloAddEvent/ProcessSiloRemoveEvent/etc. closure, or via
// EnqueueOperation for external callers). If the queue was empty, this
// is the only place a new executor goroutine gets spawned — exactly
// one consumer ever runs at a time.
func (m *Manager) enqueueOp(name string, action func(context.Context) error) {
	wasEmpty := len(m.pendingOps) == 0
	m.pendingOps = append(m.pendingOps, operation{name: name, action: action})
	m.metrics.SetPendingOps(len(m.pendingOps))
	if wasEmpty {
		go m.executePendingOperations()
	}
}

// EnqueueOperation lets external callers (e.g. an RPC handler that
// wants to schedule follow-up work through the same executor) submit
// an operation from outside the mailbox goroutine.
func (m *Manager) EnqueueOperation(name string, action func(context.Context) error) {
	m.do(func() { m.enqueueOp(name, action) })
}

// peekOp returns the head of the queue without removing it, marking
// one more dequeue attempt against it. ok is false when the queue is
// empty, telling the executor to exit.
func (m *Manager) peekOp() (operation, bool) {
	var op operation
	var ok bool
	m.do(func() {
		if len(m.pendingOps) == 0 {
			return
		}
		op = m.pendingOps[0]
		ok = true
		m.dequeueCount++
	})
	return op, ok
}

// reportOpResult applies the outcome of one attempt at the current
// head-of-queue operation: on success it dequeues and resets the
// attempt counter; on failure it retries in place up to maxDequeue
// attempts total, then drops the operation and logs a terminal
// warning.
func (m *Manager) reportOpResult(name string, err error) dequeueOutcome {
	var outcome dequeueOutcome
	m.do(func() {
		if len(m.pendingOps) == 0 {
			outcome = outcomeStop
			return
		}
		switch {
		case err == nil:
			m.dequeueCount = 0
			m.pendingOps = m.pendingOps[1:]
		case m.dequeueCount < m.maxDequeue:
			m.logger.Warn("handoff operation failed, retrying",
				zap.String("op", name), zap.Int("attempt", m.dequeueCount), zap.Error(err))
			m.metrics.IncRetry()
			outcome = outcomeRetryAfterDelay
		default:
			m.logger.Warn("handoff operation failed, exhausted retries, dropping",
				zap.String("op", name), zap.Int("attempts", m.dequeueCount), zap.Error(err))
			m.metrics.IncDropped()
			m.pendingOps = m.pendingOps[1:]
			m.dequeueCount = 0
		}
		m.metrics.SetPendingOps(len(m.pendingOps))
		if outcome != outcomeRetryAfterDelay {
			if len(m.pendingOps) == 0 {
				outcome = outcomeStop
			} else {
				outcome = outcomeContinue
			}
		}
	})
	return outcome
}

// executePendingOperations is the single consumer of the pending
// queue. Exactly one instance runs at a time (enqueueOp only spawns it
// when handing it a previously-empty queue); it runs the head
// operation's action outside the mailbox — so a slow or blocked RPC
// never stalls event handling — and posts the result back through
// reportOpResult before deciding what to do next.
func (m *Manager) executePendingOperations() {
	for {
		op, ok := m.peekOp()
		if !ok {
			return
		}

		err := op.action(context.Background())

		switch m.reportOpResult(op.name, err) {
		case outcomeStop:
			return
		case outcomeContinue:
			continue
		case outcomeRetryAfterDelay:
			select {
			case <-time.After(m.retryDelay):
			case <-m.stopCh:
				return
			}
		}
	}
}
