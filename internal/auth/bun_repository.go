package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/redmonkez12/auth-service/internal/database"
)

// BunRepository persists refresh token records in Postgres.
type BunRepository struct {
	db *bun.DB
}

func NewBunRepository(db *bun.DB) *BunRepository {
	return &BunRepository{db: db}
}

// Insert creates a refresh token record and returns it with the generated id.
func (r *BunRepository) Insert(ctx context.Context, userID uuid.UUID, expiresAt time.Time) (*RefreshToken, error) {
	dbToken := &database.RefreshToken{
		UserID:    userID,
		ExpiresAt: expiresAt,
	}

	_, err := r.db.NewInsert().
		Model(dbToken).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return &RefreshToken{
		ID:        dbToken.ID,
		UserID:    dbToken.UserID,
		ExpiresAt: dbToken.ExpiresAt,
		CreatedAt: dbToken.CreatedAt,
	}, nil
}

// ExistsByID reports whether an unexpired record with the given id exists.
// Expired rows that have not been swept yet do not count.
func (r *BunRepository) ExistsByID(ctx context.Context, id uuid.UUID) (bool, error) {
	exists, err := r.db.NewSelect().
		Model((*database.RefreshToken)(nil)).
		Where("id = ?", id).
		Where("expires_at > NOW()").
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check refresh token: %w", err)
	}

	return exists, nil
}

// DeleteByID removes a refresh token record. Missing rows are not an error.
func (r *BunRepository) DeleteByID(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.NewDelete().
		Model((*database.RefreshToken)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete refresh token: %w", err)
	}

	return nil
}

// DeleteExpired removes up to limit rows past their expiry. Revocation works
// via row existence rather than a revoked flag, so expired-but-undeleted rows
// accumulate until this sweep runs.
func (r *BunRepository) DeleteExpired(ctx context.Context, limit int) (int64, error) {
	subq := r.db.NewSelect().
		Model((*database.RefreshToken)(nil)).
		Column("id").
		Where("expires_at < NOW()").
		Limit(limit)

	result, err := r.db.NewDelete().
		Model((*database.RefreshToken)(nil)).
		Where("id IN (?)", subq).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired tokens: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}

	return rowsAffected, nil
}
