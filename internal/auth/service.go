package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"github.com/redmonkez12/auth-service/internal/logging"
	"github.com/redmonkez12/auth-service/internal/user"
)

var (
	// ErrInvalidCredentials is deliberately generic: callers never learn
	// whether the email or the password was wrong.
	ErrInvalidCredentials = errors.New("email or password does not match")

	ErrFirstNameRequired  = errors.New("first name is required")
	ErrLastNameRequired   = errors.New("last name is required")
	ErrEmailRequired      = errors.New("email is required")
	ErrInvalidEmailFormat = errors.New("invalid email format")
	ErrPasswordRequired   = errors.New("password is required")
	ErrPasswordTooShort   = errors.New("password must be at least 8 characters")
)

// UserRepository defines the user storage this service consumes.
type UserRepository interface {
	Create(ctx context.Context, firstName, lastName, email, passwordHash string, role user.Role) (*user.User, error)
	GetByEmail(ctx context.Context, email string) (*user.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
}

// RegisterInput is the payload for creating a new account.
type RegisterInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// TokenPair is one issued access/refresh token pair.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Service orchestrates credential verification and token issuance.
type Service struct {
	users  UserRepository
	tokens *TokenService
	hasher *PasswordHasher
	logger *logging.Logger
}

func NewService(users UserRepository, tokens *TokenService, hasher *PasswordHasher, logger *logging.Logger) *Service {
	return &Service{
		users:  users,
		tokens: tokens,
		hasher: hasher,
		logger: logger,
	}
}

// Register creates a user and issues their first session. Email uniqueness
// comes from the store's constraint: there is no pre-insert existence check,
// so two racing registrations cannot both succeed.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*user.User, *TokenPair, error) {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = strings.TrimSpace(in.Email)

	if err := validateRegisterInput(in); err != nil {
		return nil, nil, err
	}

	passwordHash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to hash password: %w", err)
	}

	newUser, err := s.users.Create(ctx, in.FirstName, in.LastName, in.Email, passwordHash, user.RoleCustomer)
	if err != nil {
		if errors.Is(err, user.ErrDuplicateEmail) {
			return nil, nil, user.ErrDuplicateEmail
		}
		return nil, nil, fmt.Errorf("failed to create user: %w", err)
	}

	pair, err := s.issueTokens(ctx, newUser)
	if err != nil {
		return nil, nil, err
	}

	return newUser, pair, nil
}

// Login verifies credentials and issues a session. Unknown email and wrong
// password both return ErrInvalidCredentials so accounts cannot be
// enumerated.
func (s *Service) Login(ctx context.Context, email, password string) (*user.User, *TokenPair, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, nil, ErrInvalidCredentials
	}

	existingUser, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, fmt.Errorf("failed to get user: %w", err)
	}

	if !s.hasher.Verify(password, existingUser.PasswordHash) {
		return nil, nil, ErrInvalidCredentials
	}

	pair, err := s.issueTokens(ctx, existingUser)
	if err != nil {
		return nil, nil, err
	}

	return existingUser, pair, nil
}

// Self loads the full user record behind a verified access token. A valid
// token whose user is gone yields user.ErrNotFound, never an internal error.
func (s *Service) Self(ctx context.Context, userID uuid.UUID) (*user.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// Refresh rotates a session: issue a fresh pair backed by a new record, then
// delete the record behind the token just used. Each refresh token is
// single-use; replaying one fails at the middleware because its record no
// longer exists.
func (s *Service) Refresh(ctx context.Context, claims *TokenClaims) (*user.User, *TokenPair, error) {
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	oldRecordID, err := uuid.Parse(claims.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: bad jti", ErrInvalidToken)
	}

	existingUser, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, nil, user.ErrNotFound
		}
		return nil, nil, fmt.Errorf("failed to get user: %w", err)
	}

	pair, err := s.issueTokens(ctx, existingUser)
	if err != nil {
		return nil, nil, err
	}

	if err := s.tokens.DeleteRefreshToken(ctx, oldRecordID); err != nil {
		return nil, nil, fmt.Errorf("failed to rotate refresh token: %w", err)
	}

	return existingUser, pair, nil
}

// Logout revokes the refresh record behind the current session. Idempotent:
// a record already gone is not an error.
func (s *Service) Logout(ctx context.Context, claims *TokenClaims) error {
	recordID, err := uuid.Parse(claims.ID)
	if err != nil {
		return fmt.Errorf("%w: bad jti", ErrInvalidToken)
	}
	return s.tokens.DeleteRefreshToken(ctx, recordID)
}

// issueTokens persists the revocation record first, then signs both tokens.
// A persistence failure therefore never leaves a signed token pointing at a
// nonexistent record.
func (s *Service) issueTokens(ctx context.Context, u *user.User) (*TokenPair, error) {
	record, err := s.tokens.PersistRefreshToken(ctx, u)
	if err != nil {
		return nil, err
	}

	accessToken, err := s.tokens.GenerateAccessToken(u)
	if err != nil {
		return nil, err
	}

	refreshToken, err := s.tokens.GenerateRefreshToken(u, record.ID)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

func validateRegisterInput(in RegisterInput) error {
	if in.FirstName == "" {
		return ErrFirstNameRequired
	}
	if in.LastName == "" {
		return ErrLastNameRequired
	}
	if in.Email == "" {
		return ErrEmailRequired
	}
	if len(in.Email) > 254 {
		return ErrInvalidEmailFormat
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return ErrInvalidEmailFormat
	}
	if in.Password == "" {
		return ErrPasswordRequired
	}
	if len(in.Password) < 8 {
		return ErrPasswordTooShort
	}
	return nil
}
