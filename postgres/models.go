package postgres

import (
	"database/sql"
	"time"

	"github.com/chirper/chirper/api"
	"github.com/chirper/chirper/moderation"
)

// A chirp represents a chirp row in the database. moderation_reason and
// moderated_at are set together exactly when the status leaves pending.
type chirp struct {
	ID               string         `bun:",pk,type:uuid,default:uuid_generate_v4()"`
	UserID           string         `bun:",notnull"`
	Message          string         `bun:"message,notnull"`
	ModerationStatus string         `bun:"moderation_status,notnull,default:'pending'"`
	ModerationReason sql.NullString `bun:"moderation_reason"`
	ModeratedAt      *time.Time     `bun:"moderated_at,nullzero"`
	CreatedAt        time.Time      `bun:",nullzero,default:now()"`
}

func (c chirp) APIChirp() api.Chirp {
	out := api.Chirp{
		ID:               c.ID,
		UserID:           c.UserID,
		Message:          c.Message,
		ModerationStatus: moderation.Status(c.ModerationStatus),
		ModeratedAt:      c.ModeratedAt,
		CreatedAt:        c.CreatedAt,
	}
	if c.ModerationReason.Valid {
		out.ModerationReason = c.ModerationReason.String
	}
	return out
}

func (c chirp) ModerationChirp() moderation.Chirp {
	return moderation.Chirp{
		ID:        c.ID,
		UserID:    c.UserID,
		Message:   c.Message,
		CreatedAt: c.CreatedAt,
	}
}
