package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

// DailyLimit is the number of AI classification calls allowed per day across
// the whole deployment.
const DailyLimit = 1000

const (
	quotaCountKey = "gemini_daily_requests"
	quotaResetKey = "gemini_daily_reset"

	// The daily budget resets at midnight Pacific, matching the upstream
	// API's accounting day.
	resetTimezone = "America/Los_Angeles"
)

// QuotaTracker meters the global daily budget of AI classification calls
// against a shared counter. Increments are best-effort under concurrency: a
// slight overshoot past the limit is tolerated, but a successful RecordUse
// always persists its increment before returning.
type QuotaTracker struct {
	Store  Store
	Logger *slog.Logger

	// Limit defaults to DailyLimit.
	Limit int
	// Location defaults to America/Los_Angeles.
	Location *time.Location
	// Now is overridable in tests. Defaults to time.Now.
	Now func() time.Time
}

// CanProceed reports whether an AI call is still within today's budget.
func (q *QuotaTracker) CanProceed(ctx context.Context) bool {
	return q.count(ctx) < q.limit()
}

// LimitReached is the inverse of CanProceed.
func (q *QuotaTracker) LimitReached(ctx context.Context) bool {
	return !q.CanProceed(ctx)
}

// RecordUse increments the daily counter. The counter and the reset marker
// both expire at the next reset boundary, so expiry doubles as the reset.
func (q *QuotaTracker) RecordUse(ctx context.Context) error {
	count := q.count(ctx) + 1
	ttl := q.untilReset(q.nowIn())

	if err := q.Store.Put(ctx, quotaCountKey, strconv.Itoa(count), ttl); err != nil {
		return fmt.Errorf("store quota count: %w", err)
	}

	has, err := q.Store.Has(ctx, quotaResetKey)
	if err != nil {
		return fmt.Errorf("check reset marker: %w", err)
	}
	if !has {
		reset := q.nextReset(q.nowIn())
		if err := q.Store.Put(ctx, quotaResetKey, strconv.FormatInt(reset.Unix(), 10), ttl); err != nil {
			return fmt.Errorf("store reset marker: %w", err)
		}
	}

	q.logger().Info("AI quota use recorded",
		"current_count", count,
		"limit", q.limit(),
		"remaining", q.limit()-count,
	)
	return nil
}

// Remaining returns how many AI calls are left today, never below zero.
func (q *QuotaTracker) Remaining(ctx context.Context) int {
	return max(0, q.limit()-q.count(ctx))
}

// SecondsUntilReset returns the time until the daily counter resets, derived
// from the stored reset marker when one exists.
func (q *QuotaTracker) SecondsUntilReset(ctx context.Context) int {
	if v, ok, err := q.Store.Get(ctx, quotaResetKey); err == nil && ok {
		if ts, err := strconv.ParseInt(v, 10, 64); err == nil {
			return max(0, int(ts-q.nowIn().Unix()))
		}
	}
	return int(q.untilReset(q.nowIn()) / time.Second)
}

// StatusMessage is a human-readable summary of the quota state, used on
// user-facing error surfaces.
func (q *QuotaTracker) StatusMessage(ctx context.Context) string {
	if q.LimitReached(ctx) {
		return fmt.Sprintf("Daily AI moderation limit reached. Chirps cannot be posted or edited until the limit resets at Pacific midnight in %s.",
			formatDuration(q.SecondsUntilReset(ctx)))
	}
	return "AI moderation is available for your chirps."
}

func (q *QuotaTracker) count(ctx context.Context) int {
	v, ok, err := q.Store.Get(ctx, quotaCountKey)
	if err != nil {
		q.logger().Error("Could not read quota counter", "error", err.Error())
		return 0
	}
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		q.logger().Error("Malformed quota counter", "value", v)
		return 0
	}
	return n
}

// nextReset returns the upcoming midnight in the reset timezone.
func (q *QuotaTracker) nextReset(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
}

func (q *QuotaTracker) untilReset(now time.Time) time.Duration {
	return q.nextReset(now).Sub(now)
}

func (q *QuotaTracker) nowIn() time.Time {
	now := time.Now()
	if q.Now != nil {
		now = q.Now()
	}
	return now.In(q.location())
}

func (q *QuotaTracker) limit() int {
	if q.Limit > 0 {
		return q.Limit
	}
	return DailyLimit
}

func (q *QuotaTracker) location() *time.Location {
	if q.Location != nil {
		return q.Location
	}
	loc, err := time.LoadLocation(resetTimezone)
	if err != nil {
		q.logger().Error("Could not load reset timezone, using UTC", "error", err.Error())
		loc = time.UTC
	}
	q.Location = loc
	return loc
}

func (q *QuotaTracker) logger() *slog.Logger {
	if q.Logger != nil {
		return q.Logger
	}
	return slog.Default()
}

func formatDuration(seconds int) string {
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	if hours > 0 {
		return fmt.Sprintf("%d hours and %d minutes", hours, minutes)
	}
	return fmt.Sprintf("%d minutes", minutes)
}
