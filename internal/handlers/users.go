package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/eduaventuras/apiserver/internal/services"
	"github.com/eduaventuras/apiserver/types"
)

// UserHandler serves registration, login and account administration.
type UserHandler struct {
	users  *services.UserService
	logger logrus.FieldLogger
}

// NewUserHandler constructs a handler with the provided service.
func NewUserHandler(users *services.UserService, logger logrus.FieldLogger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

// UserRouter registers account routes. Access is enforced by the gate.
func UserRouter(r chi.Router, users *services.UserService, logger logrus.FieldLogger) {
	handler := NewUserHandler(users, logger)

	r.Post("/registro", handler.Register)
	r.Post("/login", handler.Login)
	r.Get("/me", handler.Me)

	r.Get("/", handler.List)
	r.Get("/estadisticas", handler.Stats)
	r.Get("/rol/{role}", handler.ListByRole)
	r.Route("/{userID}", func(r chi.Router) {
		r.Get("/", handler.Get)
		r.Put("/estado", handler.SetActive)
		r.Put("/rol", handler.SetRole)
		r.Delete("/", handler.Delete)
	})
}

// RegisterRequest is the self-registration body. Role defaults to STUDENT.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	LastName string `json:"last_name"`
	Role     string `json:"role"`
}

// LoginRequest carries credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SetActiveRequest enables or disables an account.
type SetActiveRequest struct {
	Active *bool `json:"active"`
}

// SetRoleRequest changes the role of an account.
type SetRoleRequest struct {
	Role string `json:"role"`
}

// Register creates a STUDENT or TEACHER account and returns a bearer token.
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	session, err := h.users.Register(r.Context(), services.Registration{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		LastName: req.LastName,
		Role:     req.Role,
	})
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to register user")
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

// Login verifies credentials and returns a bearer token.
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	session, err := h.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to authenticate")
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// Me returns the current authenticated user.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := currentIdentity(w, r)
	if !ok {
		return
	}
	user, err := h.users.GetByID(r.Context(), identity.UserID)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to load user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	var (
		users []types.User
		err   error
	)
	if role := strings.TrimSpace(r.URL.Query().Get("role")); role != "" {
		users, err = h.users.ListByRole(r.Context(), role)
	} else {
		users, err = h.users.List(r.Context())
	}
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *UserHandler) ListByRole(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListByRole(r.Context(), chi.URLParam(r, "role"))
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// Stats returns the number of accounts per role.
func (h *UserHandler) Stats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.users.RoleCounts(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to count users")
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "userID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to load user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	identity, ok := currentIdentity(w, r)
	if !ok {
		return
	}
	id, err := parseIDParam(r, "userID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req SetActiveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Active == nil {
		writeError(w, http.StatusBadRequest, "active is required")
		return
	}
	user, err := h.users.SetActive(r.Context(), identity.UserID, id, *req.Active)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to update user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	identity, ok := currentIdentity(w, r)
	if !ok {
		return
	}
	id, err := parseIDParam(r, "userID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req SetRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, err := h.users.SetRole(r.Context(), identity.UserID, id, req.Role)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to update user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// Delete removes an account permanently.
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity, ok := currentIdentity(w, r)
	if !ok {
		return
	}
	id, err := parseIDParam(r, "userID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.users.DeletePermanent(r.Context(), identity.UserID, id); err != nil {
		writeServiceError(w, h.logger, err, "failed to delete user")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
