package api

import (
	"time"

	"github.com/chirper/chirper/moderation"
)

// A Chirp represents a persisted chirp. Only approved chirps are visible to
// readers; a chirp re-enters the pending state on every edit.
type Chirp struct {
	ID               string            `json:"id"`
	UserID           string            `json:"user_id"`
	Message          string            `json:"message"`
	ModerationStatus moderation.Status `json:"moderation_status"`
	ModerationReason string            `json:"moderation_reason,omitempty"`
	ModeratedAt      *time.Time        `json:"moderated_at,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}
