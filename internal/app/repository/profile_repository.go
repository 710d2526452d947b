package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrProfileNotFound signals that the owner has no profile row.
var ErrProfileNotFound = errors.New("profile not found")

// ProfileRepository looks up public owner attribution.
type ProfileRepository interface {
	// DisplayName returns the owner's full name, or "" when it is unset.
	DisplayName(ctx context.Context, userID uuid.UUID) (string, error)
}

type profileRepository struct {
	pool *pgxpool.Pool
}

// NewProfileRepository returns a pgx-backed ProfileRepository.
func NewProfileRepository(pool *pgxpool.Pool) ProfileRepository {
	return &profileRepository{pool: pool}
}

const selectDisplayName = `SELECT full_name FROM profiles WHERE id = $1`

func (r *profileRepository) DisplayName(ctx context.Context, userID uuid.UUID) (string, error) {
	var name *string
	if err := r.pool.QueryRow(ctx, selectDisplayName, userID.String()).Scan(&name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrProfileNotFound
		}
		return "", err
	}
	if name == nil {
		return "", nil
	}
	return *name, nil
}
