package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/redmonkez12/auth-service/internal/httputil"
	"github.com/redmonkez12/auth-service/internal/logging"
	"github.com/redmonkez12/auth-service/internal/user"
)

// Handler contains HTTP handlers for authentication endpoints
type Handler struct {
	service *Service
	cookies *CookieWriter
	logger  *logging.Logger
}

func NewHandler(service *Service, cookies *CookieWriter, logger *logging.Logger) *Handler {
	return &Handler{
		service: service,
		cookies: cookies,
		logger:  logger,
	}
}

// RegisterRequest represents the registration request body
type RegisterRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// IDResponse carries just the id of the user the session belongs to.
type IDResponse struct {
	ID uuid.UUID `json:"id"`
}

// UserResponse is the user projection returned by /auth/self. It is built by
// projection, so the password hash can never leak into a response.
type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Email     string    `json:"email"`
	Role      user.Role `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func newUserResponse(u *user.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// Register handles user registration
// @Summary      Register a new user
// @Description  Create a new user account and start a session. Session tokens are set as HTTP-only cookies.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body RegisterRequest true "Registration details"
// @Success      201 {object} IDResponse
// @Failure      400 {object} httputil.ErrorResponse "Validation error or email already in use"
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /auth/register [post]
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid registration request body", "error", err.Error())
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	logger = logger.WithFields(map[string]any{"email": req.Email})

	newUser, pair, err := h.service.Register(r.Context(), RegisterInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
	})
	if err != nil {
		if errors.Is(err, user.ErrDuplicateEmail) {
			logger.Warn("registration failed: email already in use")
			httputil.RespondErrorWithCode(w, "email already exists", httputil.CodeEmailAlreadyExists, http.StatusBadRequest)
			return
		}
		if isValidationError(err) {
			logger.Warn("registration failed: validation error", "error", err.Error())
			httputil.RespondErrorWithCode(w, err.Error(), httputil.CodeValidationFailed, http.StatusBadRequest)
			return
		}
		logger.Error("registration failed: internal error", "error", err.Error())
		httputil.RespondErrorWithCode(w, "failed to register user", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	logger.Info("user registered successfully", "user_id", newUser.ID)

	h.cookies.SetAuthCookies(w, pair.AccessToken, pair.RefreshToken)
	httputil.RespondJSON(w, IDResponse{ID: newUser.ID}, http.StatusCreated)
}

// Login handles user login
// @Summary      User login
// @Description  Authenticate with email and password. Session tokens are set as HTTP-only cookies.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body LoginRequest true "Login credentials"
// @Success      200 {object} IDResponse
// @Failure      400 {object} httputil.ErrorResponse "Email or password does not match"
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid login request body", "error", err.Error())
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	logger = logger.WithFields(map[string]any{"email": req.Email})

	existingUser, pair, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			logger.Warn("login failed: invalid credentials")
			httputil.RespondErrorWithCode(w, ErrInvalidCredentials.Error(), httputil.CodeInvalidCredentials, http.StatusBadRequest)
			return
		}
		logger.Error("login failed: internal error", "error", err.Error())
		httputil.RespondErrorWithCode(w, "failed to login", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	logger.Info("user logged in successfully", "user_id", existingUser.ID)

	h.cookies.SetAuthCookies(w, pair.AccessToken, pair.RefreshToken)
	httputil.RespondJSON(w, IDResponse{ID: existingUser.ID}, http.StatusOK)
}

// Self returns the authenticated user
// @Summary      Current user
// @Description  Return the user record behind the access token, without credentials.
// @Tags         auth
// @Produce      json
// @Success      200 {object} UserResponse
// @Failure      401 {object} httputil.ErrorResponse "Missing or invalid access token"
// @Failure      404 {object} httputil.ErrorResponse "User no longer exists"
// @Router       /auth/self [get]
func (h *Handler) Self(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	claims, ok := GetAccessClaimsFromContext(r.Context())
	if !ok {
		respondUnauthenticated(w)
		return
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		respondUnauthenticated(w)
		return
	}

	u, err := h.service.Self(r.Context(), userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			logger.Warn("self lookup failed: user gone", "user_id", userID)
			httputil.RespondErrorWithCode(w, "user not found", httputil.CodeUserNotFound, http.StatusNotFound)
			return
		}
		logger.Error("self lookup failed: internal error", "error", err.Error())
		httputil.RespondErrorWithCode(w, "failed to load user", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	httputil.RespondJSON(w, newUserResponse(u), http.StatusOK)
}

// Refresh rotates the session
// @Summary      Refresh session
// @Description  Issue a new token pair from a valid refresh token. The used refresh token is invalidated.
// @Tags         auth
// @Produce      json
// @Success      200 {object} IDResponse
// @Failure      401 {object} httputil.ErrorResponse "Missing, invalid, or already-used refresh token"
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /auth/refresh [post]
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	claims, ok := GetRefreshClaimsFromContext(r.Context())
	if !ok {
		respondUnauthenticated(w)
		return
	}

	existingUser, pair, err := h.service.Refresh(r.Context(), claims)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) || errors.Is(err, ErrInvalidToken) {
			// The token checked out but the session can no longer be renewed.
			logger.Warn("refresh failed: session not renewable", "error", err.Error())
			respondUnauthenticated(w)
			return
		}
		logger.Error("refresh failed: internal error", "error", err.Error())
		httputil.RespondErrorWithCode(w, "failed to refresh session", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	logger.Info("session refreshed", "user_id", existingUser.ID)

	h.cookies.SetAuthCookies(w, pair.AccessToken, pair.RefreshToken)
	httputil.RespondJSON(w, IDResponse{ID: existingUser.ID}, http.StatusOK)
}

// Logout ends the session
// @Summary      User logout
// @Description  Revoke the current refresh token and clear session cookies.
// @Tags         auth
// @Produce      json
// @Success      200 {object} map[string]string
// @Failure      401 {object} httputil.ErrorResponse "Missing or invalid tokens"
// @Router       /auth/logout [post]
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	claims, ok := GetRefreshClaimsFromContext(r.Context())
	if !ok {
		respondUnauthenticated(w)
		return
	}

	if err := h.service.Logout(r.Context(), claims); err != nil {
		logger.Warn("failed to revoke refresh token", "error", err.Error())
		// Still clear cookies; revocation can be retried on the next logout.
	}

	h.cookies.ClearAuthCookies(w)

	logger.Info("user logged out successfully")

	httputil.RespondJSON(w, map[string]string{"message": "logged out"}, http.StatusOK)
}

func isValidationError(err error) bool {
	return errors.Is(err, ErrFirstNameRequired) ||
		errors.Is(err, ErrLastNameRequired) ||
		errors.Is(err, ErrEmailRequired) ||
		errors.Is(err, ErrInvalidEmailFormat) ||
		errors.Is(err, ErrPasswordRequired) ||
		errors.Is(err, ErrPasswordTooShort)
}
