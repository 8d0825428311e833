// Package moderation implements the chirp moderation pipeline: a heuristic
// rule classifier, a Gemini-backed AI classifier, and the moderator that
// composes them with the daily API quota and persists the outcome.
package moderation

import "time"

// A Status is the moderation state of a chirp.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// A Verdict is the outcome of classifying a piece of content. It is produced
// by either the AI classifier or the heuristic rules and is immutable once
// returned.
type Verdict struct {
	Status     Status
	Reason     string
	Confidence float64
}

// A Chirp is the subset of a stored chirp the moderation pipeline operates on.
type Chirp struct {
	ID        string
	UserID    string
	Message   string
	CreatedAt time.Time
}
