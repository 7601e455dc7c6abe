package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"pulse/internal/config"
	"pulse/internal/middleware"
	"pulse/internal/models"
	"pulse/internal/repository"
	"pulse/internal/services"
	"pulse/internal/tokens"
)

type InvitationHandler struct {
	invites repository.InvitationRepository
	users   repository.UserRepository
	mailer  services.EmailSender
	cfg     *config.Config
	v       *validator.Validate
	now     func() time.Time
}

func NewInvitationHandler(
	invites repository.InvitationRepository,
	users repository.UserRepository,
	mailer services.EmailSender,
	cfg *config.Config,
) *InvitationHandler {
	return &InvitationHandler{
		invites: invites,
		users:   users,
		mailer:  mailer,
		cfg:     cfg,
		v:       validator.New(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// @Tags Invitations
// @Summary Invite a new member
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body models.InviteRequest true "Invitee details"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Router /api/v1/invitations [post]
func (h *InvitationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.InviteRequest
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

	raw, hash, err := tokens.New()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "invite_failed", "Failed to create invitation")
		return
	}

	invitedBy := middleware.UserID(r.Context())
	now := h.now()
	inv := &models.Invitation{
		ID:         uuid.NewString(),
		TokenHash:  hash,
		Email:      req.Email,
		Name:       req.Name,
		Role:       req.Role,
		Department: req.Department,
		InvitedBy:  invitedBy,
		ExpiresAt:  now.Add(h.invitationTTL()),
		CreatedAt:  now,
	}
	if err := h.invites.Create(ctx, inv); err != nil {
		log.Printf("invite: store failed: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "invite_failed", "Failed to create invitation")
		return
	}

	inviterName := middleware.Email(r.Context())
	if inviter, err := h.users.GetByID(ctx, invitedBy); err == nil && inviter.Name != "" {
		inviterName = inviter.Name
	}

	// Dispatch failure is logged only; the invitation stays valid and the
	// link can be re-sent by issuing a fresh one.
	subject, body := services.InvitationEmail(h.cfg.AppBaseURL, req.Email, raw, inviterName)
	if err := h.mailer.Send(ctx, req.Email, subject, body); err != nil {
		log.Printf("invite: mail dispatch failed for invitation %s: %v", inv.ID, err)
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success":      true,
		"invitationId": inv.ID,
	})
}

// Verify is the read-only validity check a signup form runs before asking
// for a password. Every failure mode collapses to {"valid": false}.
//
// @Tags Invitations
// @Summary Verify an invitation token
// @Accept json
// @Produce json
// @Param request body models.VerifyInvitationRequest true "Token and email"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/invitations/verify [post]
func (h *InvitationHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req models.VerifyInvitationRequest
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

	inv, err := h.invites.GetByTokenHash(ctx, tokens.Hash(req.Token))
	if err != nil && !tokens.IsInvalid(err) {
		log.Printf("verify-invitation: store failure: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "verify_failed", "Could not verify invitation, please try again")
		return
	}
	if verr := tokens.VerifyInvitation(inv, req.Email, h.now()); verr != nil {
		log.Printf("verify-invitation: rejected: %v", verr)
		writeJSON(w, http.StatusOK, map[string]any{"valid": false})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"valid": true,
		"invitation": map[string]any{
			"email":      inv.Email,
			"name":       inv.Name,
			"role":       inv.Role,
			"department": inv.Department,
		},
	})
}

func (h *InvitationHandler) invitationTTL() time.Duration {
	if h.cfg.InvitationTTL > 0 {
		return h.cfg.InvitationTTL
	}
	return tokens.DefaultInvitationTTL
}
