// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package egress

import (
	"log/slog"
	"sync"
	"time"
)

// BreakerState is the current state of the circuit breaker.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

// String returns the lowercase state name.
func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Breaker refusal reasons returned by CanProceed.
const (
	ReasonCircuitOpen       = "circuit_open"
	ReasonHalfOpenSaturated = "half_open_saturated"
)

// BreakerStats is a point-in-time snapshot of the breaker.
type BreakerStats struct {
	State        string `json:"state"`
	FailureCount int    `json:"failure_count"`
	OpenedAt     int64  `json:"opened_at,omitempty"`
}

// CircuitBreaker is a three-state fault isolator for the cloud caption tier.
//
// Description:
//
//	CLOSED passes everything through and counts consecutive failures.
//	Reaching the threshold opens the circuit; while OPEN all calls are
//	refused until the timeout elapses, at which point the breaker moves to
//	HALF_OPEN and admits a bounded number of probes. A probe success closes
//	the circuit and clears the counters; a probe failure re-opens it.
//	Local model failures never touch the breaker.
//
// Thread Safety: Safe for concurrent use. All state mutates under a mutex.
type CircuitBreaker struct {
	mu sync.Mutex

	threshold   int
	timeout     time.Duration
	halfOpenMax int

	state            BreakerState
	failureCount     int
	openedAt         time.Time
	halfOpenInflight int

	logger *slog.Logger
	now    func() time.Time
}

// NewCircuitBreaker creates a breaker in the CLOSED state. Non-positive
// parameters fall back to the defaults (threshold 5, timeout 60s, 1 probe).
func NewCircuitBreaker(threshold int, timeout time.Duration, halfOpenMax int, logger *slog.Logger) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if halfOpenMax <= 0 {
		halfOpenMax = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CircuitBreaker{
		threshold:   threshold,
		timeout:     timeout,
		halfOpenMax: halfOpenMax,
		state:       StateClosed,
		logger:      logger,
		now:         time.Now,
	}
}

// CanProceed reports whether a cloud call may be attempted right now.
//
// Description:
//
//	CLOSED always admits. OPEN refuses until the timeout elapses, then
//	transitions to HALF_OPEN. HALF_OPEN admits up to halfOpenMax probes;
//	each admitted probe counts against the inflight cap, so callers that
//	proceed must resolve the probe with RecordSuccess or RecordFailure.
//
// Outputs:
//
//	bool   - True when the call may proceed.
//	string - Refusal reason (circuit_open, half_open_saturated) when false.
func (b *CircuitBreaker) CanProceed() (bool, string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true, ""
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.timeout {
			breakerRejectionsTotal.Inc()
			return false, ReasonCircuitOpen
		}
		b.transitionLocked(StateHalfOpen)
		b.halfOpenInflight = 0
		fallthrough
	case StateHalfOpen:
		if b.halfOpenInflight >= b.halfOpenMax {
			breakerRejectionsTotal.Inc()
			return false, ReasonHalfOpenSaturated
		}
		b.halfOpenInflight++
		return true, ""
	}
	return true, ""
}

// RecordSuccess marks a cloud call as succeeded. A success while HALF_OPEN
// closes the circuit and clears the failure count.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.transitionLocked(StateClosed)
		b.failureCount = 0
		b.halfOpenInflight = 0
	case StateClosed:
		b.failureCount = 0
	}
}

// RecordFailure marks a cloud call as failed. Reaching the threshold while
// CLOSED, or any failure while HALF_OPEN, opens the circuit.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failureCount++
		if b.failureCount >= b.threshold {
			b.openLocked()
		}
	case StateHalfOpen:
		b.openLocked()
	}
}

// CancelProbe releases a half-open probe slot admitted by CanProceed when
// the guarded call was refused downstream and never executed.
func (b *CircuitBreaker) CancelProbe() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen && b.halfOpenInflight > 0 {
		b.halfOpenInflight--
	}
}

// Reset forces the breaker back to CLOSED with cleared counters.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.transitionLocked(StateClosed)
	b.failureCount = 0
	b.halfOpenInflight = 0
	b.openedAt = time.Time{}
}

// Stats returns a snapshot of the breaker state.
func (b *CircuitBreaker) Stats() BreakerStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := BreakerStats{
		State:        b.state.String(),
		FailureCount: b.failureCount,
	}
	if !b.openedAt.IsZero() {
		s.OpenedAt = b.openedAt.Unix()
	}
	return s
}

// openLocked moves to OPEN and stamps openedAt. Caller must hold b.mu.
func (b *CircuitBreaker) openLocked() {
	b.openedAt = b.now()
	b.halfOpenInflight = 0
	b.transitionLocked(StateOpen)
}

// transitionLocked changes state and publishes the transition metrics.
// Caller must hold b.mu.
func (b *CircuitBreaker) transitionLocked(to BreakerState) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	breakerTransitionsTotal.WithLabelValues(to.String()).Inc()
	breakerStateGauge.Set(float64(to))
	b.logger.Warn("circuit breaker state change",
		slog.String("from", from.String()),
		slog.String("to", to.String()),
		slog.Int("failure_count", b.failureCount),
	)
}
