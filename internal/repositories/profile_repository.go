package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"market-chat/internal/models"
)

var ErrProfileNotFound = errors.New("profile not found")

// ProfileRepository resolves user identities from the relational store.
type ProfileRepository interface {
	Get(ctx context.Context, userID int) (models.Profile, error)
	BulkProfiles(ctx context.Context, userIDs []int) ([]models.Profile, error)
}

// ProfileRepo is a sqlx implementation of ProfileRepository.
type ProfileRepo struct {
	db *sqlx.DB
}

// NewProfileRepo constructs a ProfileRepo.
func NewProfileRepo(db *sqlx.DB) *ProfileRepo {
	return &ProfileRepo{db: db}
}

// Get fetches one profile by id.
func (r *ProfileRepo) Get(ctx context.Context, userID int) (models.Profile, error) {
	var profile models.Profile
	err := r.db.GetContext(ctx, &profile, `SELECT id, username, avatar_url FROM profiles WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Profile{}, ErrProfileNotFound
	}
	return profile, err
}

// BulkProfiles fetches profiles for the id set in one query.
func (r *ProfileRepo) BulkProfiles(ctx context.Context, userIDs []int) ([]models.Profile, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT id, username, avatar_url FROM profiles WHERE id IN (?)`, userIDs)
	if err != nil {
		return nil, err
	}
	query = r.db.Rebind(query)

	var profiles []models.Profile
	err = r.db.SelectContext(ctx, &profiles, query, args...)
	return profiles, err
}
