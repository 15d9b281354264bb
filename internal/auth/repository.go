package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
)

// RefreshToken is the revocation handle for one issued refresh token. Its ID
// is used verbatim as the refresh JWT's jti claim: a signed refresh token is
// honored only while a record with a matching id still exists and is
// unexpired. Deleting the record revokes the token immediately.
type RefreshToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	ExpiresAt time.Time
	CreatedAt time.Time
}

// RefreshTokenRepository defines the interface for refresh token record
// storage. Implementations must make Insert and DeleteByID atomic so token
// rotation never depends on application-level check-then-act.
type RefreshTokenRepository interface {
	// Insert creates a new record expiring at expiresAt and returns it with
	// its generated id.
	Insert(ctx context.Context, userID uuid.UUID, expiresAt time.Time) (*RefreshToken, error)
	// ExistsByID reports whether an unexpired record with the given id exists.
	ExistsByID(ctx context.Context, id uuid.UUID) (bool, error)
	// DeleteByID removes a record. Deleting a nonexistent id is not an error;
	// logout and rotation may race or be retried.
	DeleteByID(ctx context.Context, id uuid.UUID) error
	// DeleteExpired removes up to limit records past their expiry and returns
	// how many were removed. Backends that expire records natively may no-op.
	DeleteExpired(ctx context.Context, limit int) (int64, error)
}
