package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"pulse/internal/config"
	"pulse/internal/middleware"
	"pulse/internal/models"
	"pulse/internal/repository"
	"pulse/internal/services"
	"pulse/internal/tokens"
)

// redeemTimeout bounds the wait on the token store so a stuck effect
// cannot hold a token in limbo; a timeout counts as a redemption failure
// and leaves the token unused.
const redeemTimeout = 10 * time.Second

type AuthHandler struct {
	users   repository.UserRepository
	resets  repository.PasswordResetRepository
	invites repository.InvitationRepository
	mailer  services.EmailSender
	cfg     *config.Config
	v       *validator.Validate
	now     func() time.Time
}

func NewAuthHandler(
	users repository.UserRepository,
	resets repository.PasswordResetRepository,
	invites repository.InvitationRepository,
	mailer services.EmailSender,
	cfg *config.Config,
) *AuthHandler {
	return &AuthHandler{
		users:   users,
		resets:  resets,
		invites: invites,
		mailer:  mailer,
		cfg:     cfg,
		v:       validator.New(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// @Tags Auth
// @Summary Log in
// @Accept json
// @Produce json
// @Param request body models.LoginRequest true "Credentials"
// @Success 200 {object} models.LoginResponse
// @Failure 401 {object} map[string]interface{}
// @Router /api/v1/auth/login [post]
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

	u, err := h.users.GetByIdentifier(r.Context(), req.Identifier)
	if err != nil {
		writeJSONError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid credentials")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		writeJSONError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid credentials")
		return
	}

	resp, err := h.issueSession(u)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "login_failed", "Failed to login")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// @Tags Auth
// @Summary Current session
// @Security BearerAuth
// @Produce json
// @Success 200 {object} models.SessionResponse
// @Router /api/v1/auth/session [get]
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.SessionResponse{
		UserID:    middleware.UserID(r.Context()),
		Email:     middleware.Email(r.Context()),
		ExpiresAt: middleware.ExpiresAt(r.Context()),
	})
}

// Refresh exchanges a valid, possibly near-expiry credential for a fresh
// one. Issuing is stateless and keyed on the presented subject, so
// concurrent refreshes of the same session are harmless.
//
// @Tags Auth
// @Summary Refresh session
// @Security BearerAuth
// @Produce json
// @Success 200 {object} models.LoginResponse
// @Failure 401 {object} map[string]interface{}
// @Router /api/v1/auth/refresh [post]
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.GetByID(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		writeJSONError(w, http.StatusUnauthorized, "invalid_session", "Session subject no longer exists")
		return
	}

	resp, err := h.issueSession(u)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "refresh_failed", "Failed to refresh session")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *AuthHandler) issueSession(u *models.User) (*models.LoginResponse, error) {
	expiresIn := h.cfg.JWTExpiresInSeconds
	if expiresIn <= 0 {
		expiresIn = 86400
	}

	now := h.now()
	expiresAt := now.Add(time.Duration(expiresIn) * time.Second)
	claims := jwt.MapClaims{
		"sub":   u.ID,
		"email": u.Email,
		"iat":   now.Unix(),
		"exp":   expiresAt.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(h.cfg.JWTSecret))
	if err != nil {
		return nil, err
	}

	return &models.LoginResponse{
		AccessToken: signed,
		ExpiresIn:   expiresIn,
		ExpiresAt:   expiresAt,
		Email:       u.Email,
		Name:        u.Name,
		Role:        u.Role,
		Department:  u.Department,
	}, nil
}

// ForgotPassword always acknowledges with the same envelope. A token is
// issued, and a reset link mailed, only when the email matches an account;
// the response never reveals which case occurred.
//
// @Tags Auth
// @Summary Request password reset
// @Accept json
// @Produce json
// @Param request body models.ForgotPasswordRequest true "Account email"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/auth/forgot-password [post]
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

	ctx, cancel := context.WithTimeout(r.Context(), redeemTimeout)
	defer cancel()

	ack := map[string]any{
		"success": true,
		"message": "If that account exists, a reset link has been sent",
	}

	u, err := h.users.GetByEmail(ctx, req.Email)
	if err != nil {
		writeJSON(w, http.StatusOK, ack)
		return
	}

	raw, hash, err := tokens.New()
	if err != nil {
		log.Printf("forgot-password: token generation failed: %v", err)
		writeJSON(w, http.StatusOK, ack)
		return
	}

	now := h.now()
	prt := &models.PasswordResetToken{
		ID:        uuid.NewString(),
		UserID:    u.ID,
		TokenHash: hash,
		ExpiresAt: now.Add(h.resetTTL()),
		CreatedAt: now,
	}
	if err := h.resets.Create(ctx, prt); err != nil {
		log.Printf("forgot-password: store failed: %v", err)
		writeJSON(w, http.StatusOK, ack)
		return
	}

	// Delivery failure never invalidates the issued token.
	subject, body := services.PasswordResetEmail(h.cfg.AppBaseURL, raw)
	if err := h.mailer.Send(ctx, u.Email, subject, body); err != nil {
		log.Printf("forgot-password: mail dispatch failed for user %s: %v", u.ID, err)
	}

	writeJSON(w, http.StatusOK, ack)
}

// @Tags Auth
// @Summary Redeem password reset token
// @Accept json
// @Produce json
// @Param request body models.ResetPasswordRequest true "Token and new password"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Router /api/v1/auth/reset-password [post]
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

	pwHash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "reset_failed", "Failed to reset password")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), redeemTimeout)
	defer cancel()

	userID, err := h.resets.Redeem(ctx, tokens.Hash(req.Token), h.now(), string(pwHash))
	if err != nil {
		if tokens.IsInvalid(err) {
			// Reason stays in the log; the caller gets the generic shape.
			log.Printf("reset-password: rejected: %v", err)
			writeJSONError(w, http.StatusBadRequest, "invalid_token", tokens.GenericInvalidMessage)
			return
		}
		log.Printf("reset-password: store failure: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "reset_failed", "Could not reset password, please try again")
		return
	}

	log.Printf("reset-password: credential updated for user %s", userID)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Password reset successful",
	})
}

// Signup redeems an invitation token and materializes the invited account
// in the same transaction.
//
// @Tags Auth
// @Summary Sign up with an invitation token
// @Accept json
// @Produce json
// @Param request body models.SignupRequest true "Invitation token and account details"
// @Success 201 {object} models.User
// @Failure 400 {object} map[string]interface{}
// @Router /api/v1/auth/signup [post]
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req models.SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if err := h.v.Struct(req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), redeemTimeout)
	defer cancel()

	now := h.now()
	hash := tokens.Hash(req.Token)

	// The identity check happens before redemption; the invitation's email
	// is immutable, so the check still holds at redeem time.
	inv, err := h.invites.GetByTokenHash(ctx, hash)
	if err != nil && !tokens.IsInvalid(err) {
		log.Printf("signup: store failure: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "signup_failed", "Could not complete signup, please try again")
		return
	}
	if verr := tokens.VerifyInvitation(inv, req.Email, now); verr != nil {
		log.Printf("signup: invitation rejected: %v", verr)
		writeJSONError(w, http.StatusBadRequest, "invalid_token", tokens.GenericInvalidMessage)
		return
	}

	pwHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "signup_failed", "Failed to create user")
		return
	}

	created, err := h.invites.Redeem(ctx, hash, now, &models.User{
		ID:           uuid.NewString(),
		Name:         req.Name,
		PasswordHash: string(pwHash),
		CreatedAt:    now,
	})
	if err != nil {
		if tokens.IsInvalid(err) {
			log.Printf("signup: redemption rejected: %v", err)
			writeJSONError(w, http.StatusBadRequest, "invalid_token", tokens.GenericInvalidMessage)
			return
		}
		log.Printf("signup: redemption failed: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "signup_failed", "Could not complete signup, please try again")
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *AuthHandler) resetTTL() time.Duration {
	if h.cfg.ResetTokenTTL > 0 {
		return h.cfg.ResetTokenTTL
	}
	return tokens.DefaultResetTTL
}
