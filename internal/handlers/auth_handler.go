package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"passreset/internal/models"
	"passreset/internal/services"
)

type AuthHandler struct {
	auth *services.AuthService
	v    *validator.Validate
}

func NewAuthHandler(auth *services.AuthService) *AuthHandler {
	return &AuthHandler{
		auth: auth,
		v:    validator.New(),
	}
}

// @Tags Authentication
// @Summary Register a new user account
// @Accept json
// @Produce json
// @Param body body models.RegisterRequest true "Registration request"
// @Success 201 {object} models.User
// @Failure 400 {object} map[string]interface{}
// @Router /api/auth/register [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if err := h.v.Struct(req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	u, err := h.auth.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrDuplicateEmail) {
			writeJSONError(w, http.StatusBadRequest, "duplicate_email", "Email already registered")
			return
		}
		writeJSONError(w, http.StatusInternalServerError, "registration_failed", "Failed to create user")
		return
	}

	writeJSON(w, http.StatusCreated, u)
}

// @Tags Authentication
// @Summary Login with email and password
// @Accept json
// @Produce json
// @Param body body models.LoginRequest true "Login request"
// @Success 200 {object} models.LoginResponse
// @Failure 401 {object} map[string]interface{}
// @Failure 403 {object} map[string]interface{}
// @Router /api/auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if err := h.v.Struct(req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	u, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidCredentials):
			writeJSONError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password")
		case errors.Is(err, services.ErrAccountInactive):
			writeJSONError(w, http.StatusForbidden, "account_inactive", "Account is inactive")
		default:
			writeJSONError(w, http.StatusInternalServerError, "login_failed", "Failed to login")
		}
		return
	}

	writeJSON(w, http.StatusOK, models.LoginResponse{Message: "Login successful", User: u})
}

// @Tags Authentication
// @Summary Initiate password reset
// @Description Always returns the same response whether or not the email is registered.
// @Accept json
// @Produce json
// @Param body body models.ForgotPasswordRequest true "Forgot password request"
// @Success 200 {object} map[string]interface{}
// @Router /api/auth/forgot-password [post]
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req models.ForgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if err := h.v.Struct(req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	if err := h.auth.ForgotPassword(r.Context(), req.Email); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "forgot_password_failed", "Failed to process request")
		return
	}

	writeJSONMessage(w, http.StatusOK, "If the email exists, a password reset link has been sent")
}

// @Tags Authentication
// @Summary Validate a password reset token
// @Produce json
// @Param token path string true "Password reset token"
// @Success 200 {object} models.TokenValidationResponse
// @Router /api/auth/validate-token/{token} [get]
func (h *AuthHandler) ValidateToken(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	resp, err := h.auth.ValidateToken(r.Context(), token)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "validation_failed", "Failed to validate token")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// @Tags Authentication
// @Summary Reset password using a valid token
// @Accept json
// @Produce json
// @Param body body models.ResetPasswordRequest true "Reset password request"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/auth/reset-password [post]
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req models.ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if err := h.v.Struct(req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	if err := h.auth.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, services.ErrTokenNotFound):
			writeJSONError(w, http.StatusBadRequest, "token_not_found", "Invalid or expired token")
		case errors.Is(err, services.ErrTokenAlreadyUsed):
			writeJSONError(w, http.StatusBadRequest, "token_already_used", "This reset link has already been used")
		case errors.Is(err, services.ErrTokenExpired):
			writeJSONError(w, http.StatusBadRequest, "token_expired", "This reset link has expired")
		case errors.Is(err, services.ErrUserNotFound):
			writeJSONError(w, http.StatusNotFound, "user_not_found", "User not found")
		default:
			writeJSONError(w, http.StatusInternalServerError, "reset_failed", "Failed to reset password")
		}
		return
	}

	writeJSONMessage(w, http.StatusOK, "Password has been reset successfully")
}
