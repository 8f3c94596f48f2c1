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
	"testing"
	"time"
)

func TestCircuitBreaker_OpensAtThreshold(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Minute, 1, nil)

	for i := 0; i < 2; i++ {
		cb.RecordFailure()
		if ok, _ := cb.CanProceed(); !ok {
			t.Fatalf("breaker should stay closed below threshold (failure %d)", i+1)
		}
	}

	cb.RecordFailure()
	ok, reason := cb.CanProceed()
	if ok {
		t.Fatal("breaker should be open after threshold failures")
	}
	if reason != ReasonCircuitOpen {
		t.Errorf("reason = %q, want %q", reason, ReasonCircuitOpen)
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Minute, 1, nil)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()

	// Consecutive counting: the earlier failures must not linger.
	cb.RecordFailure()
	cb.RecordFailure()
	if ok, _ := cb.CanProceed(); !ok {
		t.Fatal("breaker should still be closed, failure count was reset")
	}
}

func TestCircuitBreaker_HalfOpenAfterTimeout(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Minute, 1, nil)
	base := time.Now()
	cb.now = func() time.Time { return base }

	cb.RecordFailure()
	if ok, _ := cb.CanProceed(); ok {
		t.Fatal("breaker should be open")
	}

	cb.now = func() time.Time { return base.Add(61 * time.Second) }
	ok, _ := cb.CanProceed()
	if !ok {
		t.Fatal("breaker should admit a probe after the timeout")
	}

	// Single-probe cap: a second concurrent probe is refused.
	ok, reason := cb.CanProceed()
	if ok {
		t.Fatal("second probe should be refused while half-open")
	}
	if reason != ReasonHalfOpenSaturated {
		t.Errorf("reason = %q, want %q", reason, ReasonHalfOpenSaturated)
	}
}

func TestCircuitBreaker_ProbeSuccessCloses(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Minute, 1, nil)
	base := time.Now()
	cb.now = func() time.Time { return base }

	cb.RecordFailure()
	cb.now = func() time.Time { return base.Add(2 * time.Minute) }
	if ok, _ := cb.CanProceed(); !ok {
		t.Fatal("probe should be admitted")
	}

	cb.RecordSuccess()
	stats := cb.Stats()
	if stats.State != "closed" {
		t.Errorf("state = %q, want closed", stats.State)
	}
	if stats.FailureCount != 0 {
		t.Errorf("failure_count = %d, want 0", stats.FailureCount)
	}
	if ok, _ := cb.CanProceed(); !ok {
		t.Error("closed breaker should admit freely")
	}
}

func TestCircuitBreaker_ProbeFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Minute, 1, nil)
	base := time.Now()
	cb.now = func() time.Time { return base }

	cb.RecordFailure()
	cb.now = func() time.Time { return base.Add(2 * time.Minute) }
	if ok, _ := cb.CanProceed(); !ok {
		t.Fatal("probe should be admitted")
	}

	cb.RecordFailure()
	ok, reason := cb.CanProceed()
	if ok {
		t.Fatal("breaker should re-open after a failed probe")
	}
	if reason != ReasonCircuitOpen {
		t.Errorf("reason = %q, want %q", reason, ReasonCircuitOpen)
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Minute, 1, nil)

	cb.RecordFailure()
	cb.Reset()

	if ok, _ := cb.CanProceed(); !ok {
		t.Fatal("reset breaker should admit")
	}
	if got := cb.Stats().State; got != "closed" {
		t.Errorf("state = %q, want closed", got)
	}
}
