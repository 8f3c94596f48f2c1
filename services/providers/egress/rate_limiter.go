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
	"sync"
	"time"
)

// Admission refusal reasons returned by RateLimiter.Admit.
const (
	ReasonBudgetExceeded    = "budget_exceeded"
	ReasonPerMinuteExceeded = "per_minute_exceeded"
	ReasonPerDayExceeded    = "per_day_exceeded"
)

// LimiterStats is a point-in-time snapshot of the limiter windows.
type LimiterStats struct {
	RequestsLastMinute int     `json:"requests_last_minute"`
	RequestsToday      int     `json:"requests_today"`
	DailyCostUSD       float64 `json:"daily_cost_usd"`
	BudgetRemainingUSD float64 `json:"budget_remaining_usd"`
	MaxPerMinute       int     `json:"max_per_minute"`
	MaxPerDay          int     `json:"max_per_day"`
	DailyBudgetUSD     float64 `json:"daily_budget_usd"`
}

// RateLimiter applies per-minute, per-day, and per-USD-budget admission
// control to cloud caption calls.
//
// Description:
//
//	Admit is pure inspection: it prunes the sliding window and the rolling
//	24h window, then answers without consuming capacity. Record consumes
//	capacity and must be called exactly once per admitted request that
//	actually executed. Refusal is a normal outcome, never an error.
//
// Thread Safety: Safe for concurrent use. All state mutates under a mutex.
type RateLimiter struct {
	mu sync.Mutex

	maxPerMinute   int
	maxPerDay      int
	dailyBudgetUSD float64

	minuteWindow []time.Time
	dayCount     int
	dailyCostUSD float64
	lastReset    time.Time

	now func() time.Time
}

// NewRateLimiter creates a limiter with the given caps. Non-positive caps
// fall back to the defaults (60/min, 10000/day, 10 USD/day).
func NewRateLimiter(maxPerMinute, maxPerDay int, dailyBudgetUSD float64) *RateLimiter {
	if maxPerMinute <= 0 {
		maxPerMinute = 60
	}
	if maxPerDay <= 0 {
		maxPerDay = 10000
	}
	if dailyBudgetUSD < 0 {
		dailyBudgetUSD = 10.0
	}
	l := &RateLimiter{
		maxPerMinute:   maxPerMinute,
		maxPerDay:      maxPerDay,
		dailyBudgetUSD: dailyBudgetUSD,
		now:            time.Now,
	}
	l.lastReset = l.now()
	return l
}

// Admit reports whether a cloud call with the given estimated cost may
// proceed right now.
//
// Description:
//
//	Prunes both windows, then checks budget first (cheapest to evaluate),
//	then the per-minute window, then the per-day count. Does not consume
//	capacity; callers that proceed must follow up with Record.
//
// Outputs:
//
//	bool   - True when the call may proceed.
//	string - Refusal reason (budget_exceeded, per_minute_exceeded,
//	         per_day_exceeded) when false, empty otherwise.
func (l *RateLimiter) Admit(estimatedCostUSD float64) (bool, string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.refreshLocked(now)

	if l.dailyCostUSD+estimatedCostUSD > l.dailyBudgetUSD {
		limiterBlockedTotal.WithLabelValues(ReasonBudgetExceeded).Inc()
		return false, ReasonBudgetExceeded
	}
	if len(l.minuteWindow) >= l.maxPerMinute {
		limiterBlockedTotal.WithLabelValues(ReasonPerMinuteExceeded).Inc()
		return false, ReasonPerMinuteExceeded
	}
	if l.dayCount >= l.maxPerDay {
		limiterBlockedTotal.WithLabelValues(ReasonPerDayExceeded).Inc()
		return false, ReasonPerDayExceeded
	}
	return true, ""
}

// Record consumes capacity for one executed cloud call and accumulates its
// actual cost. Must be called exactly once per admitted request that ran.
func (l *RateLimiter) Record(actualCostUSD float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.refreshLocked(now)

	l.minuteWindow = append(l.minuteWindow, now)
	l.dayCount++
	l.dailyCostUSD += actualCostUSD
	l.updateGaugesLocked()
}

// Stats returns a snapshot of the current windows.
func (l *RateLimiter) Stats() LimiterStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refreshLocked(l.now())
	remaining := l.dailyBudgetUSD - l.dailyCostUSD
	if remaining < 0 {
		remaining = 0
	}
	return LimiterStats{
		RequestsLastMinute: len(l.minuteWindow),
		RequestsToday:      l.dayCount,
		DailyCostUSD:       l.dailyCostUSD,
		BudgetRemainingUSD: remaining,
		MaxPerMinute:       l.maxPerMinute,
		MaxPerDay:          l.maxPerDay,
		DailyBudgetUSD:     l.dailyBudgetUSD,
	}
}

// refreshLocked prunes the sliding 60s window and performs the rolling 24h
// reset. The daily count and cost reset together. Caller must hold l.mu.
func (l *RateLimiter) refreshLocked(now time.Time) {
	cutoff := now.Add(-time.Minute)
	keep := l.minuteWindow[:0]
	for _, ts := range l.minuteWindow {
		if ts.After(cutoff) {
			keep = append(keep, ts)
		}
	}
	l.minuteWindow = keep

	if now.Sub(l.lastReset) > 24*time.Hour {
		l.dayCount = 0
		l.dailyCostUSD = 0
		l.lastReset = now
	}
	l.updateGaugesLocked()
}

// updateGaugesLocked publishes the window gauges. Caller must hold l.mu.
func (l *RateLimiter) updateGaugesLocked() {
	remaining := l.dailyBudgetUSD - l.dailyCostUSD
	if remaining < 0 {
		remaining = 0
	}
	limiterRequestsLastMinute.Set(float64(len(l.minuteWindow)))
	limiterRequestsToday.Set(float64(l.dayCount))
	limiterDailyCostUSD.Set(l.dailyCostUSD)
	limiterBudgetRemainingUSD.Set(remaining)
}
