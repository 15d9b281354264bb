package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/redmonkez12/auth-service/internal/user"
)

const (
	testSecret    = "test-refresh-secret"
	testAccessTTL = time.Hour
)

// writeTestKey generates an RSA key pair and writes the private half as PEM,
// returning the path and the key.
func writeTestKey(t *testing.T) (string, *rsa.PrivateKey) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	pemBytes := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})

	path := filepath.Join(t.TempDir(), "private.pem")
	require.NoError(t, os.WriteFile(path, pemBytes, 0o600))

	return path, key
}

// newTestTokenService builds a TokenService over a fresh key pair and the
// given repository.
func newTestTokenService(t *testing.T, repo RefreshTokenRepository) *TokenService {
	t.Helper()

	path, _ := writeTestKey(t)
	return NewTokenService(path, []byte(testSecret), testAccessTTL, 365*24*time.Hour, repo)
}

func mustParseUUID(t *testing.T, s string) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(s)
	require.NoError(t, err)
	return id
}

func newTestUser() *user.User {
	now := time.Now()
	return &user.User{
		ID:        uuid.New(),
		FirstName: "A",
		LastName:  "B",
		Email:     "a@b.com",
		Role:      user.RoleCustomer,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// fakeRefreshRepo is an in-memory RefreshTokenRepository.
type fakeRefreshRepo struct {
	mu      sync.Mutex
	records map[uuid.UUID]*RefreshToken
}

func newFakeRefreshRepo() *fakeRefreshRepo {
	return &fakeRefreshRepo{records: make(map[uuid.UUID]*RefreshToken)}
}

func (f *fakeRefreshRepo) Insert(ctx context.Context, userID uuid.UUID, expiresAt time.Time) (*RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	record := &RefreshToken{
		ID:        uuid.New(),
		UserID:    userID,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
	f.records[record.ID] = record
	return record, nil
}

func (f *fakeRefreshRepo) ExistsByID(ctx context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	record, ok := f.records[id]
	if !ok {
		return false, nil
	}
	return record.ExpiresAt.After(time.Now()), nil
}

func (f *fakeRefreshRepo) DeleteByID(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.records, id)
	return nil
}

func (f *fakeRefreshRepo) DeleteExpired(ctx context.Context, limit int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var removed int64
	for id, record := range f.records {
		if removed >= int64(limit) {
			break
		}
		if record.ExpiresAt.Before(time.Now()) {
			delete(f.records, id)
			removed++
		}
	}
	return removed, nil
}

func (f *fakeRefreshRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

// fakeUserRepo is an in-memory UserRepository enforcing email uniqueness the
// way the database's unique constraint does.
type fakeUserRepo struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]*user.User
	byEmail map[string]*user.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		byID:    make(map[uuid.UUID]*user.User),
		byEmail: make(map[string]*user.User),
	}
}

func (f *fakeUserRepo) Create(ctx context.Context, firstName, lastName, email, passwordHash string, role user.Role) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.byEmail[email]; ok {
		return nil, user.ErrDuplicateEmail
	}

	now := time.Now()
	u := &user.User{
		ID:           uuid.New(),
		FirstName:    firstName,
		LastName:     lastName,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	f.byID[u.ID] = u
	f.byEmail[u.Email] = u
	return u, nil
}

func (f *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.byEmail[email]
	if !ok {
		return nil, user.ErrNotFound
	}
	return u, nil
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.byID[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return u, nil
}

func (f *fakeUserRepo) delete(id uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if u, ok := f.byID[id]; ok {
		delete(f.byEmail, u.Email)
		delete(f.byID, id)
	}
}

func (f *fakeUserRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byID)
}
