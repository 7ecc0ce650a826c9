package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/eduaventuras/apiserver/internal/i18n"
	"github.com/eduaventuras/apiserver/internal/services"
)

// PasswordHandler serves password recovery and change.
type PasswordHandler struct {
	passwords *services.PasswordService
	bundle    *i18n.Bundle
	logger    logrus.FieldLogger
}

// NewPasswordHandler constructs a handler for the recovery flow.
func NewPasswordHandler(passwords *services.PasswordService, bundle *i18n.Bundle, logger logrus.FieldLogger) *PasswordHandler {
	return &PasswordHandler{passwords: passwords, bundle: bundle, logger: logger}
}

// PasswordRouter registers password recovery and change routes.
func PasswordRouter(r chi.Router, passwords *services.PasswordService, bundle *i18n.Bundle, logger logrus.FieldLogger) {
	handler := NewPasswordHandler(passwords, bundle, logger)

	r.Post("/recuperar", handler.Recover)
	r.Post("/validar-token", handler.ValidateToken)
	r.Post("/restablecer", handler.Reset)
	r.Post("/cambiar", handler.Change)
}

// RecoverRequest starts a recovery.
type RecoverRequest struct {
	Email string `json:"email"`
}

type TokenRequest struct {
	Token string `json:"token"`
}

// ResetRequest sets a new password with a recovery token.
type ResetRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// ChangePasswordRequest changes the caller's password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type TokenStatus struct {
	Valid bool `json:"valid"`
}

// Recover answers with the same message whether or not the e-mail is registered.
// The token travels only through the message queue.
func (h *PasswordHandler) Recover(w http.ResponseWriter, r *http.Request) {
	var req RecoverRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	lang := requestLanguage(h.bundle, r)
	if err := h.passwords.RequestRecovery(r.Context(), req.Email, lang); err != nil {
		writeServiceError(w, h.logger, err, "failed to request password recovery")
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: h.bundle.Message("password.recovery_sent", lang, nil)})
}

func (h *PasswordHandler) ValidateToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, TokenStatus{Valid: h.passwords.ValidateToken(r.Context(), req.Token)})
}

func (h *PasswordHandler) Reset(w http.ResponseWriter, r *http.Request) {
	var req ResetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.passwords.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		writeServiceError(w, h.logger, err, "failed to reset password")
		return
	}
	lang := requestLanguage(h.bundle, r)
	writeJSON(w, http.StatusOK, MessageResponse{Message: h.bundle.Message("password.reset_success", lang, nil)})
}

func (h *PasswordHandler) Change(w http.ResponseWriter, r *http.Request) {
	identity, ok := currentIdentity(w, r)
	if !ok {
		return
	}
	var req ChangePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.passwords.ChangePassword(r.Context(), identity.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		writeServiceError(w, h.logger, err, "failed to change password")
		return
	}
	lang := requestLanguage(h.bundle, r)
	writeJSON(w, http.StatusOK, MessageResponse{Message: h.bundle.Message("password.changed", lang, nil)})
}
