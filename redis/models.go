package redis

import (
	"time"

	"github.com/chirper/chirper/api"
	"github.com/chirper/chirper/moderation"
)

// A chirp represents an approved chirp cached in Redis.
type chirp struct {
	ID               string    `redis:"id"`
	UserID           string    `redis:"user_id"`
	Message          string    `redis:"message"`
	ModerationStatus string    `redis:"moderation_status"`
	ModerationReason string    `redis:"moderation_reason"`
	ModeratedAt      time.Time `redis:"moderated_at"`
	CreatedAt        time.Time `redis:"created_at"`
}

func (c chirp) APIChirp() api.Chirp {
	out := api.Chirp{
		ID:               c.ID,
		UserID:           c.UserID,
		Message:          c.Message,
		ModerationStatus: moderation.Status(c.ModerationStatus),
		ModerationReason: c.ModerationReason,
		CreatedAt:        c.CreatedAt,
	}
	if !c.ModeratedAt.IsZero() {
		at := c.ModeratedAt
		out.ModeratedAt = &at
	}
	return out
}
