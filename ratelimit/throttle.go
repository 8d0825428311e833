package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

const (
	// HourlyChirpLimit is the number of chirps a single user may submit per
	// rolling hour.
	HourlyChirpLimit = 10

	throttleWindow = time.Hour

	throttleKeyPrefix      = "chirp_rate_limit_"
	throttleResetKeyPrefix = "chirp_rate_limit_reset_"
)

// An Outcome is the result of asking the throttle to admit a submission.
type Outcome struct {
	Allowed           bool
	RetryAfterSeconds int
}

// Throttle caps chirp submissions per user over a rolling window. Its counter
// lifecycle is independent of the AI quota: the window starts at the first
// submission after any prior reset and expiry clears it. Unauthenticated
// callers are never throttled; they are rejected upstream before the throttle
// is consulted.
type Throttle struct {
	Store  Store
	Logger *slog.Logger

	// Limit defaults to HourlyChirpLimit.
	Limit int
	// Window defaults to one hour.
	Window time.Duration
	// Now is overridable in tests. Defaults to time.Now.
	Now func() time.Time
}

// Admit decides whether the user may submit another chirp and, when denied,
// how long to wait.
func (t *Throttle) Admit(ctx context.Context, userID string) (Outcome, error) {
	key := throttleKeyPrefix + userID
	resetKey := throttleResetKeyPrefix + userID

	count := 0
	if v, ok, err := t.Store.Get(ctx, key); err != nil {
		return Outcome{}, fmt.Errorf("read throttle counter: %w", err)
	} else if ok {
		if n, err := strconv.Atoi(v); err == nil {
			count = n
		}
	}

	if count >= t.limit() {
		retryAfter := int(t.window() / time.Second)
		if v, ok, err := t.Store.Get(ctx, resetKey); err == nil && ok {
			if ts, err := strconv.ParseInt(v, 10, 64); err == nil {
				retryAfter = max(0, int(ts-t.now().Unix()))
			}
		}
		t.logger().Info("Chirp submission throttled", "user_id", userID, "retry_after_seconds", retryAfter)
		return Outcome{Allowed: false, RetryAfterSeconds: retryAfter}, nil
	}

	if err := t.Store.Put(ctx, key, strconv.Itoa(count+1), t.window()); err != nil {
		return Outcome{}, fmt.Errorf("store throttle counter: %w", err)
	}

	has, err := t.Store.Has(ctx, resetKey)
	if err != nil {
		return Outcome{}, fmt.Errorf("check throttle reset: %w", err)
	}
	if !has {
		reset := t.now().Add(t.window()).Unix()
		if err := t.Store.Put(ctx, resetKey, strconv.FormatInt(reset, 10), t.window()); err != nil {
			return Outcome{}, fmt.Errorf("store throttle reset: %w", err)
		}
	}

	return Outcome{Allowed: true}, nil
}

func (t *Throttle) limit() int {
	if t.Limit > 0 {
		return t.Limit
	}
	return HourlyChirpLimit
}

func (t *Throttle) window() time.Duration {
	if t.Window > 0 {
		return t.Window
	}
	return throttleWindow
}

func (t *Throttle) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

func (t *Throttle) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.Default()
}
