package moderation

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Reasons recorded when a verdict could not be produced and the chirp is
// approved by default. Default-to-approve is deliberate: content must never
// be silently suppressed because moderation itself broke.
const (
	defaultApproveReason   = "Moderation failed - approved by default"
	jobFailedApproveReason = "Moderation job failed - approved by default"
)

// An AIClassifier produces a verdict for content, or ErrUnavailable when it
// cannot.
type AIClassifier interface {
	Classify(ctx context.Context, content string) (Verdict, error)
}

// A QuotaGate meters calls to the external classification service.
type QuotaGate interface {
	CanProceed(ctx context.Context) bool
	RecordUse(ctx context.Context) error
}

// A ChirpStore loads chirps and persists moderation outcomes.
type ChirpStore interface {
	Find(ctx context.Context, id string) (Chirp, error)
	// SetModeration records the verdict unconditionally.
	SetModeration(ctx context.Context, id string, v Verdict, at time.Time) error
	// ResolvePending records the verdict only if the chirp is still pending
	// and reports whether a row was updated.
	ResolvePending(ctx context.Context, id string, v Verdict, at time.Time) (bool, error)
}

// A ChirpCache keeps approved chirps available to the read path.
type ChirpCache interface {
	InsertChirp(ctx context.Context, c Chirp, v Verdict, at time.Time) error
	RemoveChirp(ctx context.Context, id string) error
}

// Moderator sequences quota check, AI classification, heuristic fallback and
// state persistence for a single chirp. It is a plain value over explicit
// dependencies so each piece can be swapped in tests.
type Moderator struct {
	Logger *slog.Logger
	Quota  QuotaGate
	AI     AIClassifier
	Store  ChirpStore
	Cache  ChirpCache

	// Now is overridable in tests. Defaults to time.Now.
	Now func() time.Time
}

// Classify produces a verdict for content. The AI classifier is consulted
// while daily quota remains; quota is only consumed on definitive verdicts,
// so failed or unparsable calls cost nothing. Any AI failure degrades to the
// heuristic rules, which always answer.
func (m *Moderator) Classify(ctx context.Context, content string) Verdict {
	if m.Quota.CanProceed(ctx) {
		v, err := m.AI.Classify(ctx, content)
		if err == nil {
			if err := m.Quota.RecordUse(ctx); err != nil {
				m.Logger.Warn("Could not record quota use", "error", err.Error())
			}
			return v
		}
		m.Logger.Warn("AI classification unavailable, using fallback rules", "error", err.Error())
	} else {
		m.Logger.Info("Daily AI moderation quota exhausted, using fallback rules")
	}
	return ClassifyHeuristic(content)
}

// Moderate resolves the moderation state of the chirp with the given ID.
// Whatever goes wrong, the chirp does not stay pending: unexpected faults
// force an approve-by-default transition before the error is returned.
func (m *Moderator) Moderate(ctx context.Context, chirpID string) error {
	m.Logger.Info("Starting moderation", "chirp_id", chirpID)

	c, err := m.Store.Find(ctx, chirpID)
	if err != nil {
		return m.forceApprove(ctx, chirpID, fmt.Errorf("find chirp: %w", err))
	}

	verdict := m.Classify(ctx, c.Message)
	at := m.now()

	if err := m.Store.SetModeration(ctx, chirpID, verdict, at); err != nil {
		return m.forceApprove(ctx, chirpID, fmt.Errorf("persist verdict: %w", err))
	}

	m.Logger.Info("Moderation completed",
		"chirp_id", chirpID,
		"status", verdict.Status,
		"reason", verdict.Reason,
		"confidence", verdict.Confidence,
	)

	switch verdict.Status {
	case StatusApproved:
		if err := m.Cache.InsertChirp(ctx, c, verdict, at); err != nil {
			m.Logger.Error("Could not cache approved chirp", "chirp_id", chirpID, "error", err.Error())
		}
	case StatusRejected:
		if err := m.Cache.RemoveChirp(ctx, chirpID); err != nil {
			m.Logger.Error("Could not evict rejected chirp", "chirp_id", chirpID, "error", err.Error())
		}
		// Observability only: record the rejection for downstream human review.
		m.Logger.Warn("Chirp rejected by moderation",
			"chirp_id", chirpID,
			"user_id", c.UserID,
			"message_preview", preview(c.Message, 50),
		)
	}

	return nil
}

// Failed is the terminal failure handler invoked by the job runner after all
// attempts are exhausted. It is a no-op when the chirp already left pending.
func (m *Moderator) Failed(ctx context.Context, chirpID string) error {
	v := Verdict{
		Status: StatusApproved,
		Reason: jobFailedApproveReason,
	}
	resolved, err := m.Store.ResolvePending(ctx, chirpID, v, m.now())
	if err != nil {
		return fmt.Errorf("resolve failed chirp %s: %w", chirpID, err)
	}
	if resolved {
		m.Logger.Error("Moderation failed permanently, chirp approved by default", "chirp_id", chirpID)
	}
	return nil
}

func (m *Moderator) forceApprove(ctx context.Context, chirpID string, cause error) error {
	v := Verdict{
		Status: StatusApproved,
		Reason: defaultApproveReason,
	}
	if err := m.Store.SetModeration(ctx, chirpID, v, m.now()); err != nil {
		m.Logger.Error("Could not force-approve chirp", "chirp_id", chirpID, "error", err.Error())
	}
	return fmt.Errorf("moderate chirp %s: %w", chirpID, cause)
}

func (m *Moderator) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
