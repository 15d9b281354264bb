package http

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/redmonkez12/auth-service/internal/auth"
	"github.com/redmonkez12/auth-service/internal/config"
	"github.com/redmonkez12/auth-service/internal/logging"
	"github.com/redmonkez12/auth-service/internal/user"
)

// memUserRepo enforces email uniqueness like the database constraint does.
type memUserRepo struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]*user.User
	byEmail map[string]*user.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{
		byID:    make(map[uuid.UUID]*user.User),
		byEmail: make(map[string]*user.User),
	}
}

func (m *memUserRepo) Create(ctx context.Context, firstName, lastName, email, passwordHash string, role user.Role) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byEmail[email]; ok {
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
	m.byID[u.ID] = u
	m.byEmail[u.Email] = u
	return u, nil
}

func (m *memUserRepo) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.byEmail[email]
	if !ok {
		return nil, user.ErrNotFound
	}
	return u, nil
}

func (m *memUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.byID[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return u, nil
}

func (m *memUserRepo) delete(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if u, ok := m.byID[id]; ok {
		delete(m.byEmail, u.Email)
		delete(m.byID, id)
	}
}

func (m *memUserRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

// memRefreshRepo is an in-memory auth.RefreshTokenRepository.
type memRefreshRepo struct {
	mu      sync.Mutex
	records map[uuid.UUID]*auth.RefreshToken
}

func newMemRefreshRepo() *memRefreshRepo {
	return &memRefreshRepo{records: make(map[uuid.UUID]*auth.RefreshToken)}
}

func (m *memRefreshRepo) Insert(ctx context.Context, userID uuid.UUID, expiresAt time.Time) (*auth.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record := &auth.RefreshToken{
		ID:        uuid.New(),
		UserID:    userID,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
	m.records[record.ID] = record
	return record, nil
}

func (m *memRefreshRepo) ExistsByID(ctx context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[id]
	return ok && record.ExpiresAt.After(time.Now()), nil
}

func (m *memRefreshRepo) DeleteByID(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.records, id)
	return nil
}

func (m *memRefreshRepo) DeleteExpired(ctx context.Context, limit int) (int64, error) {
	return 0, nil
}

func (m *memRefreshRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

type testEnv struct {
	router   http.Handler
	users    *memUserRepo
	sessions *memRefreshRepo
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	keyPath := filepath.Join(t.TempDir(), "private.pem")
	require.NoError(t, os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}), 0o600))

	cfg := &config.Config{}
	cfg.Server.Env = "prod"

	users := newMemUserRepo()
	sessions := newMemRefreshRepo()

	tokens := auth.NewTokenService(keyPath, []byte("test-secret"), time.Hour, 365*24*time.Hour, sessions)
	hasher := auth.NewPasswordHasher(bcrypt.MinCost)
	logger := logging.NewLogger(true)

	service := auth.NewService(users, tokens, hasher, logger)
	cookies := auth.NewCookieWriter("", false, time.Hour, 365*24*time.Hour)
	handler := auth.NewHandler(service, cookies, logger)
	middleware := auth.NewMiddleware(tokens, sessions)

	return &testEnv{
		router:   NewRouter(cfg, handler, middleware, auth.JWKSHandler(tokens), logger),
		users:    users,
		sessions: sessions,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	for _, c := range cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) register(t *testing.T) (uuid.UUID, []*http.Cookie) {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/auth/register", map[string]string{
		"firstName": "A",
		"lastName":  "B",
		"email":     "a@b.com",
		"password":  "12345678",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var body struct {
		ID uuid.UUID `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	return body.ID, rec.Result().Cookies()
}

func sessionCookies(t *testing.T, cookies []*http.Cookie) (access, refresh *http.Cookie) {
	t.Helper()
	for _, c := range cookies {
		switch c.Name {
		case "accessToken":
			access = c
		case "refreshToken":
			refresh = c
		}
	}
	require.NotNil(t, access, "accessToken cookie not set")
	require.NotNil(t, refresh, "refreshToken cookie not set")
	return access, refresh
}

func TestRegister(t *testing.T) {
	env := newTestEnv(t)

	id, cookies := env.register(t)
	assert.NotEqual(t, uuid.Nil, id)

	access, refresh := sessionCookies(t, cookies)
	for _, c := range []*http.Cookie{access, refresh} {
		assert.True(t, c.HttpOnly, "%s must be HTTP-only", c.Name)
		assert.Equal(t, http.SameSiteStrictMode, c.SameSite)
	}

	assert.Equal(t, 1, env.users.count())
	assert.Equal(t, 1, env.sessions.count())
}

func TestRegister_DuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	env.register(t)

	rec := env.do(t, http.MethodPost, "/auth/register", map[string]string{
		"firstName": "C",
		"lastName":  "D",
		"email":     "a@b.com",
		"password":  "12345678",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "email already exists")
	assert.Equal(t, 1, env.users.count(), "no second user row")
}

func TestRegister_Validation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/auth/register", map[string]string{
		"firstName": "A",
		"lastName":  "B",
		"email":     "a@b.com",
		"password":  "short",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, env.users.count())
	assert.Equal(t, 0, env.sessions.count(), "no tokens issued on failure")
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	id, _ := env.register(t)

	rec := env.do(t, http.MethodPost, "/auth/login", map[string]string{
		"email":    "a@b.com",
		"password": "12345678",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		ID uuid.UUID `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, id, body.ID)

	sessionCookies(t, rec.Result().Cookies())
}

func TestLogin_TrimmedEmailMatches(t *testing.T) {
	env := newTestEnv(t)
	env.register(t)

	rec := env.do(t, http.MethodPost, "/auth/login", map[string]string{
		"email":    " a@b.com ",
		"password": "12345678",
	})

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogin_GenericFailure(t *testing.T) {
	env := newTestEnv(t)
	env.register(t)

	wrongPassword := env.do(t, http.MethodPost, "/auth/login", map[string]string{
		"email":    "a@b.com",
		"password": "wrong-password",
	})
	unknownEmail := env.do(t, http.MethodPost, "/auth/login", map[string]string{
		"email":    "nobody@b.com",
		"password": "12345678",
	})

	assert.Equal(t, http.StatusBadRequest, wrongPassword.Code)
	assert.Equal(t, http.StatusBadRequest, unknownEmail.Code)
	// Identical body shape and message: no account enumeration.
	assert.JSONEq(t, wrongPassword.Body.String(), unknownEmail.Body.String())
}

func TestSelf(t *testing.T) {
	env := newTestEnv(t)
	id, cookies := env.register(t)
	access, _ := sessionCookies(t, cookies)

	rec := env.do(t, http.MethodGet, "/auth/self", nil, access)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, id.String(), body["id"])
	assert.Equal(t, "A", body["firstName"])
	assert.Equal(t, "customer", body["role"])

	// The credential never leaves the service in any shape.
	assert.NotContains(t, body, "password")
	assert.NotContains(t, body, "passwordHash")
	assert.NotContains(t, rec.Body.String(), "$2a$")
}

func TestSelf_UserGone(t *testing.T) {
	env := newTestEnv(t)
	id, cookies := env.register(t)
	access, _ := sessionCookies(t, cookies)

	env.users.delete(id)

	// The token is still valid; the account behind it is not.
	rec := env.do(t, http.MethodGet, "/auth/self", nil, access)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSelf_Unauthenticated(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/auth/self", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/auth/self", nil, &http.Cookie{Name: "accessToken", Value: "garbage"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefresh_RotationIsSingleUse(t *testing.T) {
	env := newTestEnv(t)
	id, cookies := env.register(t)
	_, oldRefresh := sessionCookies(t, cookies)

	rec := env.do(t, http.MethodPost, "/auth/refresh", nil, oldRefresh)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		ID uuid.UUID `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, id, body.ID)

	_, newRefresh := sessionCookies(t, rec.Result().Cookies())
	assert.NotEqual(t, oldRefresh.Value, newRefresh.Value)
	assert.Equal(t, 1, env.sessions.count(), "old record superseded, not accumulated")

	// Replaying the rotated-away cookie fails even though its signature
	// and expiry are still cryptographically fine.
	replay := env.do(t, http.MethodPost, "/auth/refresh", nil, oldRefresh)
	assert.Equal(t, http.StatusUnauthorized, replay.Code)

	// The freshly rotated cookie still works.
	next := env.do(t, http.MethodPost, "/auth/refresh", nil, newRefresh)
	assert.Equal(t, http.StatusOK, next.Code)
}

func TestRefresh_MissingCookie(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/auth/refresh", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogout_RevokesSession(t *testing.T) {
	env := newTestEnv(t)
	_, cookies := env.register(t)
	access, refresh := sessionCookies(t, cookies)

	rec := env.do(t, http.MethodPost, "/auth/logout", nil, access, refresh)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Cookies come back cleared.
	for _, c := range rec.Result().Cookies() {
		assert.Empty(t, c.Value)
		assert.Negative(t, c.MaxAge)
	}
	assert.Equal(t, 0, env.sessions.count())

	// The revoked refresh token is dead on arrival everywhere.
	replayRefresh := env.do(t, http.MethodPost, "/auth/refresh", nil, refresh)
	assert.Equal(t, http.StatusUnauthorized, replayRefresh.Code)

	replayLogout := env.do(t, http.MethodPost, "/auth/logout", nil, access, refresh)
	assert.Equal(t, http.StatusUnauthorized, replayLogout.Code)
}

func TestLogout_RequiresBothTokens(t *testing.T) {
	env := newTestEnv(t)
	_, cookies := env.register(t)
	access, refresh := sessionCookies(t, cookies)

	rec := env.do(t, http.MethodPost, "/auth/logout", nil, access)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/auth/logout", nil, refresh)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestJWKSIsServed(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/.well-known/jwks.json", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var doc struct {
		Keys []map[string]string `json:"keys"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	require.Len(t, doc.Keys, 1)
	assert.Equal(t, "RS256", doc.Keys[0]["alg"])
}

func TestSecurityHeaders(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}
