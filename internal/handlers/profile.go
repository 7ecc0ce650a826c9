package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/eduaventuras/apiserver/internal/services"
)

const formFieldPhoto = "foto"

// ProfileHandler serves the caller's own profile.
type ProfileHandler struct {
	users     *services.UserService
	resources *services.ResourceService
	maxImage  int64
	logger    logrus.FieldLogger
}

// NewProfileHandler constructs a handler for the caller's own profile.
func NewProfileHandler(users *services.UserService, resources *services.ResourceService, maxImage int64, logger logrus.FieldLogger) *ProfileHandler {
	return &ProfileHandler{users: users, resources: resources, maxImage: maxImage, logger: logger}
}

// ProfileRouter registers profile, photo and download history routes.
func ProfileRouter(r chi.Router, users *services.UserService, resources *services.ResourceService, maxImage int64, logger logrus.FieldLogger) {
	handler := NewProfileHandler(users, resources, maxImage, logger)

	r.Get("/", handler.Get)
	r.Put("/", handler.Update)
	r.Post("/foto", handler.UploadPhoto)
	r.Delete("/foto", handler.DeletePhoto)
	r.Get("/foto/{userID}", handler.Photo)
	r.Get("/descargas", handler.Downloads)
}

// ProfileRequest carries the editable profile fields. Omitted fields are kept.
type ProfileRequest struct {
	Name              *string `json:"name"`
	LastName          *string `json:"last_name"`
	Bio               *string `json:"bio"`
	FavoriteSubjectID *int    `json:"favorite_subject_id"`
}

func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity, ok := currentIdentity(w, r)
	if !ok {
		return
	}
	user, err := h.users.GetByID(r.Context(), identity.UserID)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to load profile")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	identity, ok := currentIdentity(w, r)
	if !ok {
		return
	}
	var req ProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, err := h.users.UpdateProfile(r.Context(), identity.UserID, services.ProfileUpdate{
		Name:              req.Name,
		LastName:          req.LastName,
		Bio:               req.Bio,
		FavoriteSubjectID: req.FavoriteSubjectID,
	})
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to update profile")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// UploadPhoto accepts a multipart form with the image under "foto" (or "file").
func (h *ProfileHandler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	identity, ok := currentIdentity(w, r)
	if !ok {
		return
	}
	file, err := parseUpload(w, r, h.maxImage, formFieldPhoto, formFieldFileAlt)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to read upload")
		return
	}
	user, err := h.users.UploadAvatar(r.Context(), identity.UserID, file.Data, file.ContentType, file.Filename)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to store profile photo")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *ProfileHandler) DeletePhoto(w http.ResponseWriter, r *http.Request) {
	identity, ok := currentIdentity(w, r)
	if !ok {
		return
	}
	user, err := h.users.RemoveAvatar(r.Context(), identity.UserID)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to remove profile photo")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// Photo serves any user's profile photo without authentication.
func (h *ProfileHandler) Photo(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "userID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	data, contentType, err := h.users.Avatar(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to load profile photo")
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=300")
	writeFile(w, data, contentType, "", "")
}

// Downloads returns the caller's download history.
func (h *ProfileHandler) Downloads(w http.ResponseWriter, r *http.Request) {
	identity, ok := currentIdentity(w, r)
	if !ok {
		return
	}
	limit, err := parseOptionalInt(r.URL.Query().Get("limit"))
	if err != nil || limit < 0 {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	history, err := h.resources.DownloadsByUser(r.Context(), identity.UserID, limit)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to load downloads")
		return
	}
	writeJSON(w, http.StatusOK, history)
}
