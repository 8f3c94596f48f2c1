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

func TestRateLimiter_AdmitDoesNotConsume(t *testing.T) {
	rl := NewRateLimiter(2, 100, 10.0)

	// Admit any number of times without Record; capacity must not drain.
	for i := 0; i < 50; i++ {
		ok, reason := rl.Admit(0.001)
		if !ok {
			t.Fatalf("admit %d refused without any recorded calls: %s", i+1, reason)
		}
	}
	if got := rl.Stats().RequestsLastMinute; got != 0 {
		t.Errorf("window should be empty after admit-only traffic, got %d", got)
	}
}

func TestRateLimiter_PerMinuteWindow(t *testing.T) {
	rl := NewRateLimiter(3, 100, 10.0)

	for i := 0; i < 3; i++ {
		ok, _ := rl.Admit(0.001)
		if !ok {
			t.Fatalf("request %d should be within the minute cap", i+1)
		}
		rl.Record(0.001)
	}

	ok, reason := rl.Admit(0.001)
	if ok {
		t.Fatal("fourth request should exceed the minute cap")
	}
	if reason != ReasonPerMinuteExceeded {
		t.Errorf("reason = %q, want %q", reason, ReasonPerMinuteExceeded)
	}
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	rl := NewRateLimiter(1, 100, 10.0)
	base := time.Now()
	rl.now = func() time.Time { return base }

	rl.Record(0.001)
	if ok, _ := rl.Admit(0.001); ok {
		t.Fatal("second request inside the window should be refused")
	}

	// Advance past the 60s window; the old timestamp must be pruned.
	rl.now = func() time.Time { return base.Add(61 * time.Second) }
	if ok, reason := rl.Admit(0.001); !ok {
		t.Errorf("request after window slide should be admitted, got %s", reason)
	}
}

func TestRateLimiter_PerDayCap(t *testing.T) {
	rl := NewRateLimiter(100, 2, 10.0)
	base := time.Now()
	rl.now = func() time.Time { return base }

	rl.Record(0.001)
	// Move the second call outside the minute window so only the day cap binds.
	rl.now = func() time.Time { return base.Add(2 * time.Minute) }
	rl.Record(0.001)

	rl.now = func() time.Time { return base.Add(4 * time.Minute) }
	ok, reason := rl.Admit(0.001)
	if ok {
		t.Fatal("third request should exceed the day cap")
	}
	if reason != ReasonPerDayExceeded {
		t.Errorf("reason = %q, want %q", reason, ReasonPerDayExceeded)
	}
}

func TestRateLimiter_DailyReset(t *testing.T) {
	rl := NewRateLimiter(100, 1, 0.005)
	base := time.Now()
	rl.now = func() time.Time { return base }
	rl.lastReset = base

	rl.Record(0.005)
	if ok, _ := rl.Admit(0.001); ok {
		t.Fatal("request should be refused with day cap and budget spent")
	}

	// Count and cost reset together after the rolling 24h elapses.
	rl.now = func() time.Time { return base.Add(25 * time.Hour) }
	if ok, reason := rl.Admit(0.001); !ok {
		t.Errorf("request after daily reset should be admitted, got %s", reason)
	}
	stats := rl.Stats()
	if stats.RequestsToday != 0 || stats.DailyCostUSD != 0 {
		t.Errorf("daily counters should reset together, got count=%d cost=%f",
			stats.RequestsToday, stats.DailyCostUSD)
	}
}

func TestRateLimiter_BudgetExhausted(t *testing.T) {
	rl := NewRateLimiter(60, 10000, 0.001)

	ok, _ := rl.Admit(0.001)
	if !ok {
		t.Fatal("first request should fit exactly in the budget")
	}
	rl.Record(0.001)

	ok, reason := rl.Admit(0.001)
	if ok {
		t.Fatal("request beyond the daily budget should be refused")
	}
	if reason != ReasonBudgetExceeded {
		t.Errorf("reason = %q, want %q", reason, ReasonBudgetExceeded)
	}
	if got := rl.Stats().BudgetRemainingUSD; got != 0 {
		t.Errorf("budget_remaining_usd = %f, want 0", got)
	}
}

func TestRateLimiter_BudgetCheckedBeforeWindows(t *testing.T) {
	rl := NewRateLimiter(1, 1, 0.001)
	rl.Record(0.001)

	// Every cap is exhausted; the budget reason must win.
	_, reason := rl.Admit(0.001)
	if reason != ReasonBudgetExceeded {
		t.Errorf("reason = %q, want %q", reason, ReasonBudgetExceeded)
	}
}
