package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/eduaventuras/apiserver/internal/services"
)

// SubjectHandler serves the subject catalog.
type SubjectHandler struct {
	subjects *services.SubjectService
	logger   logrus.FieldLogger
}

// NewSubjectHandler constructs a handler with the provided service.
func NewSubjectHandler(subjects *services.SubjectService, logger logrus.FieldLogger) *SubjectHandler {
	return &SubjectHandler{subjects: subjects, logger: logger}
}

// SubjectRouter registers subject routes on the given router.
func SubjectRouter(r chi.Router, subjects *services.SubjectService, logger logrus.FieldLogger) {
	handler := NewSubjectHandler(subjects, logger)

	r.Get("/", handler.List)
	r.Post("/", handler.Create)
	r.Get("/todas", handler.ListAll)
	r.Route("/{subjectID}", func(r chi.Router) {
		r.Get("/", handler.Get)
		r.Put("/", handler.Update)
		r.Delete("/", handler.Delete)
	})
}

// SubjectRequest is the body of subject create and update.
type SubjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

func (req SubjectRequest) input() services.SubjectInput {
	return services.SubjectInput{Name: req.Name, Description: req.Description, Icon: req.Icon}
}

func (h *SubjectHandler) List(w http.ResponseWriter, r *http.Request) {
	subjects, err := h.subjects.List(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to list subjects")
		return
	}
	writeJSON(w, http.StatusOK, subjects)
}

func (h *SubjectHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	subjects, err := h.subjects.ListAll(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to list subjects")
		return
	}
	writeJSON(w, http.StatusOK, subjects)
}

func (h *SubjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "subjectID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	subject, err := h.subjects.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to fetch subject")
		return
	}
	writeJSON(w, http.StatusOK, subject)
}

func (h *SubjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req SubjectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	subject, err := h.subjects.Create(r.Context(), req.input())
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to create subject")
		return
	}
	writeJSON(w, http.StatusCreated, subject)
}

func (h *SubjectHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "subjectID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req SubjectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	subject, err := h.subjects.Update(r.Context(), id, req.input())
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to update subject")
		return
	}
	writeJSON(w, http.StatusOK, subject)
}

// Delete deactivates the subject.
func (h *SubjectHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "subjectID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.subjects.Delete(r.Context(), id); err != nil {
		writeServiceError(w, h.logger, err, "failed to delete subject")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
