package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/redmonkez12/auth-service/internal/user"
)

// Issuer is the iss claim on every token this service signs, and the only
// issuer its verifiers accept.
const Issuer = "auth-service"

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrExpiredToken  = errors.New("token has expired")
	ErrKeySetup      = errors.New("could not load access token signing key")
	ErrSecretMissing = errors.New("refresh token secret is not configured")
)

// TokenClaims carries the identity claims embedded in both token kinds.
// Refresh tokens additionally set RegisteredClaims.ID (jti) to the persisted
// record id, which is the sole link between the signature and revocability.
type TokenClaims struct {
	jwt.RegisteredClaims
	Role      string `json:"role"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

// TokenService is the only component that signs and persists tokens.
//
// Access tokens are RS256: the public key can be handed to any service that
// needs to verify sessions without trusting it to mint them. Refresh tokens
// are HS256 under a secret that never leaves this service. The two kinds use
// different algorithms on purpose so one can never be replayed as the other,
// even if an attacker controls the alg header.
type TokenService struct {
	privateKeyPath string
	refreshSecret  []byte
	accessTTL      time.Duration
	refreshTTL     time.Duration
	repo           RefreshTokenRepository

	keyOnce    sync.Once
	privateKey *rsa.PrivateKey
	keyErr     error
}

func NewTokenService(
	privateKeyPath string,
	refreshSecret []byte,
	accessTTL time.Duration,
	refreshTTL time.Duration,
	repo RefreshTokenRepository,
) *TokenService {
	return &TokenService{
		privateKeyPath: privateKeyPath,
		refreshSecret:  refreshSecret,
		accessTTL:      accessTTL,
		refreshTTL:     refreshTTL,
		repo:           repo,
	}
}

// loadPrivateKey reads the PEM key once; it is immutable for the process
// lifetime afterwards. Failure is an operator problem, not a client error.
func (s *TokenService) loadPrivateKey() (*rsa.PrivateKey, error) {
	s.keyOnce.Do(func() {
		pemBytes, err := os.ReadFile(s.privateKeyPath)
		if err != nil {
			s.keyErr = fmt.Errorf("%w: %v", ErrKeySetup, err)
			return
		}

		key, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
		if err != nil {
			s.keyErr = fmt.Errorf("%w: %v", ErrKeySetup, err)
			return
		}

		s.privateKey = key
	})

	return s.privateKey, s.keyErr
}

// PublicKey returns the verification half of the signing key. Verifiers only
// ever receive this; the private key stays inside GenerateAccessToken.
func (s *TokenService) PublicKey() (*rsa.PublicKey, error) {
	key, err := s.loadPrivateKey()
	if err != nil {
		return nil, err
	}
	return &key.PublicKey, nil
}

// GenerateAccessToken signs a short-lived RS256 token for the user.
func (s *TokenService) GenerateAccessToken(u *user.User) (string, error) {
	key, err := s.loadPrivateKey()
	if err != nil {
		return "", err
	}

	now := time.Now()
	claims := TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID.String(),
			Issuer:    Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
		Role:      string(u.Role),
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}

	return signed, nil
}

// GenerateRefreshToken signs a long-lived HS256 token whose jti is the id of
// an already-persisted refresh token record.
func (s *TokenService) GenerateRefreshToken(u *user.User, recordID uuid.UUID) (string, error) {
	if len(s.refreshSecret) == 0 {
		return "", ErrSecretMissing
	}

	now := time.Now()
	claims := TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        recordID.String(),
			Subject:   u.ID.String(),
			Issuer:    Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.refreshTTL)),
		},
		Role:      string(u.Role),
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.refreshSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign refresh token: %w", err)
	}

	return signed, nil
}

// PersistRefreshToken creates the revocation record for a new refresh token.
// Its id must be signed into the token as jti afterwards.
func (s *TokenService) PersistRefreshToken(ctx context.Context, u *user.User) (*RefreshToken, error) {
	record, err := s.repo.Insert(ctx, u.ID, time.Now().Add(s.refreshTTL))
	if err != nil {
		return nil, fmt.Errorf("failed to persist refresh token: %w", err)
	}
	return record, nil
}

// DeleteRefreshToken revokes the record with the given id. Idempotent.
func (s *TokenService) DeleteRefreshToken(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeleteByID(ctx, id)
}

// VerifyAccessToken validates an access token against the public key. The
// algorithm and issuer are pinned; a token-supplied alg is never trusted.
func (s *TokenService) VerifyAccessToken(tokenStr string) (*TokenClaims, error) {
	pub, err := s.PublicKey()
	if err != nil {
		return nil, err
	}

	claims := new(TokenClaims)
	_, err = jwt.ParseWithClaims(tokenStr, claims,
		func(token *jwt.Token) (any, error) { return pub, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, mapJWTError(err)
	}

	return claims, nil
}

// VerifyRefreshToken validates a refresh token against the symmetric secret.
// Cryptographic validity is necessary but not sufficient: callers must also
// confirm the record named by jti still exists.
func (s *TokenService) VerifyRefreshToken(tokenStr string) (*TokenClaims, error) {
	if len(s.refreshSecret) == 0 {
		return nil, ErrSecretMissing
	}

	claims := new(TokenClaims)
	_, err := jwt.ParseWithClaims(tokenStr, claims,
		func(token *jwt.Token) (any, error) { return s.refreshSecret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, mapJWTError(err)
	}

	if claims.ID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// mapJWTError collapses jwt library errors into the service's sentinel
// errors. Expired keeps its own sentinel for logging; clients see no
// distinction between expired and forged.
func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return ErrExpiredToken
	}
	return ErrInvalidToken
}
