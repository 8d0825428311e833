package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/chirper/chirper/api"
	"github.com/chirper/chirper/moderation"
)

// Postgres provides chirp storage in PostgreSQL.
type Postgres struct {
	bun *bun.DB
}

// Connect connects to the database and pings the DB to ensure the connection
// is working.
func Connect(ctx context.Context, connStr string) (*Postgres, error) {
	sqlDB := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(connStr)))
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	db := bun.NewDB(sqlDB, pgdialect.New())
	return &Postgres{
		bun: db,
	}, nil
}

// ListApprovedChirps returns approved chirps, newest first. Chirps whose IDs
// are in excludeIDs are skipped so cached entries are not returned twice.
func (pg *Postgres) ListApprovedChirps(ctx context.Context, limit, offset int, excludeIDs ...string) ([]api.Chirp, error) {
	var chirps []chirp
	q := pg.bun.NewSelect().
		Model(&chirps).
		Where("moderation_status = ?", string(moderation.StatusApproved)).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset)

	if len(excludeIDs) > 0 {
		q = q.Where("id NOT IN (?)", bun.In(excludeIDs))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	out := make([]api.Chirp, len(chirps))
	for i, c := range chirps {
		out[i] = c.APIChirp()
	}

	return out, nil
}

// InsertChirp inserts a chirp in the pending state. The returned chirp holds
// auto generated fields, such as the chirp id.
func (pg *Postgres) InsertChirp(ctx context.Context, c api.Chirp) (api.Chirp, error) {
	m := &chirp{
		UserID:           c.UserID,
		Message:          c.Message,
		ModerationStatus: string(moderation.StatusPending),
	}
	if _, err := pg.bun.NewInsert().Model(m).Exec(ctx); err != nil {
		return api.Chirp{}, fmt.Errorf("insert: %w", err)
	}
	return m.APIChirp(), nil
}

// GetChirp returns a single chirp by ID.
func (pg *Postgres) GetChirp(ctx context.Context, id string) (api.Chirp, error) {
	var c chirp
	err := pg.bun.NewSelect().Model(&c).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return api.Chirp{}, api.ErrNotFound
	}
	if err != nil {
		return api.Chirp{}, fmt.Errorf("scan: %w", err)
	}
	return c.APIChirp(), nil
}

// UpdateChirpMessage replaces the chirp's message and puts it back into the
// pending state, clearing the previous moderation outcome so the edit
// re-enters the pipeline.
func (pg *Postgres) UpdateChirpMessage(ctx context.Context, id, message string) (api.Chirp, error) {
	m := &chirp{
		ID:               id,
		Message:          message,
		ModerationStatus: string(moderation.StatusPending),
	}
	_, err := pg.bun.NewUpdate().
		Model(m).
		Column("message", "moderation_status", "moderation_reason", "moderated_at").
		Where("id = ?", id).
		Returning("*").
		Exec(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return api.Chirp{}, api.ErrNotFound
	}
	if err != nil {
		return api.Chirp{}, fmt.Errorf("update: %w", err)
	}
	return m.APIChirp(), nil
}

// DeleteChirp removes a chirp.
func (pg *Postgres) DeleteChirp(ctx context.Context, id string) error {
	if _, err := pg.bun.NewDelete().Model((*chirp)(nil)).Where("id = ?", id).Exec(ctx); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}

// Find returns the moderation view of a chirp.
func (pg *Postgres) Find(ctx context.Context, id string) (moderation.Chirp, error) {
	var c chirp
	if err := pg.bun.NewSelect().Model(&c).Where("id = ?", id).Scan(ctx); err != nil {
		return moderation.Chirp{}, fmt.Errorf("scan: %w", err)
	}
	return c.ModerationChirp(), nil
}

// SetModeration records a verdict on the chirp in a single update.
func (pg *Postgres) SetModeration(ctx context.Context, id string, v moderation.Verdict, at time.Time) error {
	m := &chirp{
		ID:               id,
		ModerationStatus: string(v.Status),
		ModerationReason: sql.NullString{String: v.Reason, Valid: true},
		ModeratedAt:      &at,
	}
	_, err := pg.bun.NewUpdate().
		Model(m).
		Column("moderation_status", "moderation_reason", "moderated_at").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}
	return nil
}

// ResolvePending records a verdict only if the chirp is still pending and
// reports whether a row changed. Re-running it on a resolved chirp is a
// no-op.
func (pg *Postgres) ResolvePending(ctx context.Context, id string, v moderation.Verdict, at time.Time) (bool, error) {
	m := &chirp{
		ID:               id,
		ModerationStatus: string(v.Status),
		ModerationReason: sql.NullString{String: v.Reason, Valid: true},
		ModeratedAt:      &at,
	}
	res, err := pg.bun.NewUpdate().
		Model(m).
		Column("moderation_status", "moderation_reason", "moderated_at").
		Where("id = ?", id).
		Where("moderation_status = ?", string(moderation.StatusPending)).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}
