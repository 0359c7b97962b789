package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

// ProfileRepository abstracts profile persistence.
type ProfileRepository interface {
	GetProfile(ctx context.Context, userID string) (models.Profile, error)
	UpsertProfile(ctx context.Context, profile models.Profile) (models.Profile, error)
}

// ProfileRepo is a sqlx implementation of ProfileRepository.
type ProfileRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewProfileRepo constructs a ProfileRepo.
func NewProfileRepo(db *sqlx.DB, timeout time.Duration) *ProfileRepo {
	return &ProfileRepo{db: db, timeout: timeout}
}

// GetProfile fetches a profile by user id.
func (r *ProfileRepo) GetProfile(ctx context.Context, userID string) (models.Profile, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	var profile models.Profile
	err := r.db.GetContext(ctx, &profile, `SELECT user_id, name, avatar_url, updated_at FROM profiles WHERE user_id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Profile{}, ErrProfileNotFound
	}
	if err != nil {
		return models.Profile{}, readErr("get profile", err)
	}
	return profile, nil
}

// UpsertProfile creates or replaces the caller's display metadata.
func (r *ProfileRepo) UpsertProfile(ctx context.Context, profile models.Profile) (models.Profile, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	var saved models.Profile
	err := r.db.QueryRowxContext(ctx, `INSERT INTO profiles (user_id, name, avatar_url) VALUES ($1, $2, $3)
        ON CONFLICT (user_id) DO UPDATE SET name = EXCLUDED.name, avatar_url = EXCLUDED.avatar_url, updated_at = NOW()
        RETURNING user_id, name, avatar_url, updated_at`, profile.UserID, profile.Name, profile.AvatarURL).StructScan(&saved)
	if err != nil {
		return models.Profile{}, writeErr("upsert profile", err)
	}
	return saved, nil
}
