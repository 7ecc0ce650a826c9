package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/eduaventuras/apiserver/internal/services"
)

const (
	formFieldFile    = "archivo"
	formFieldFileAlt = "file"
	formFieldTitle   = "titulo"
	formFieldDesc    = "descripcion"
	formFieldSubject = "materiaId"
)

// ResourceHandler serves resource browsing, upload and download.
type ResourceHandler struct {
	resources *services.ResourceService
	maxUpload int64
	logger    logrus.FieldLogger
}

// NewResourceHandler constructs a handler with the provided service.
func NewResourceHandler(resources *services.ResourceService, maxUpload int64, logger logrus.FieldLogger) *ResourceHandler {
	return &ResourceHandler{resources: resources, maxUpload: maxUpload, logger: logger}
}

// ResourceRouter registers resource routes on the given router.
func ResourceRouter(r chi.Router, resources *services.ResourceService, maxUpload int64, logger logrus.FieldLogger) {
	handler := NewResourceHandler(resources, maxUpload, logger)

	r.Get("/", handler.List)
	r.Get("/todos", handler.ListAll)
	r.Get("/materia/{subjectID}", handler.ListBySubject)
	r.Post("/subir", handler.Upload)
	r.Route("/{resourceID}", func(r chi.Router) {
		r.Get("/", handler.Get)
		r.Get("/descargar", handler.Download)
		r.Put("/", handler.Update)
		r.Delete("/", handler.Delete)
	})
}

// ResourceUpdateRequest edits resource metadata.
type ResourceUpdateRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	SubjectID   *int    `json:"subject_id"`
}

func (h *ResourceHandler) List(w http.ResponseWriter, r *http.Request) {
	subjectID, err := parseOptionalInt(r.URL.Query().Get("subject_id"))
	if err != nil || subjectID < 0 {
		writeError(w, http.StatusBadRequest, "invalid subject_id")
		return
	}
	if subjectID > 0 {
		resources, err := h.resources.ListBySubject(r.Context(), subjectID)
		if err != nil {
			writeServiceError(w, h.logger, err, "failed to list resources")
			return
		}
		writeJSON(w, http.StatusOK, resources)
		return
	}
	resources, err := h.resources.ListActive(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to list resources")
		return
	}
	writeJSON(w, http.StatusOK, resources)
}

func (h *ResourceHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	resources, err := h.resources.ListAll(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to list resources")
		return
	}
	writeJSON(w, http.StatusOK, resources)
}

func (h *ResourceHandler) ListBySubject(w http.ResponseWriter, r *http.Request) {
	subjectID, err := parseIDParam(r, "subjectID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resources, err := h.resources.ListBySubject(r.Context(), subjectID)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to list resources")
		return
	}
	writeJSON(w, http.StatusOK, resources)
}

func (h *ResourceHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "resourceID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resource, err := h.resources.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to fetch resource")
		return
	}
	writeJSON(w, http.StatusOK, resource)
}

// Upload accepts a multipart form with the PDF under "archivo" (or "file").
func (h *ResourceHandler) Upload(w http.ResponseWriter, r *http.Request) {
	identity, ok := currentIdentity(w, r)
	if !ok {
		return
	}
	file, err := parseUpload(w, r, h.maxUpload, formFieldFile, formFieldFileAlt)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to read upload")
		return
	}
	subjectID, err := parseOptionalInt(firstFormValue(r, formFieldSubject, "subject_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid subject id")
		return
	}

	resource, err := h.resources.Upload(r.Context(), identity, services.Upload{
		Title:       firstFormValue(r, formFieldTitle, "title"),
		Description: firstFormValue(r, formFieldDesc, "description"),
		SubjectID:   subjectID,
		Filename:    file.Filename,
		ContentType: file.ContentType,
		Data:        file.Data,
	})
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to upload resource")
		return
	}
	writeJSON(w, http.StatusCreated, resource)
}

// Download streams the PDF and records the download.
func (h *ResourceHandler) Download(w http.ResponseWriter, r *http.Request) {
	identity, ok := currentIdentity(w, r)
	if !ok {
		return
	}
	id, err := parseIDParam(r, "resourceID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resource, data, err := h.resources.Download(r.Context(), id, identity.UserID)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to download resource")
		return
	}
	writeFile(w, data, "application/pdf", "attachment", resource.OriginalFilename)
}

func (h *ResourceHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "resourceID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req ResourceUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resource, err := h.resources.Update(r.Context(), id, services.ResourceUpdate{
		Title:       req.Title,
		Description: req.Description,
		SubjectID:   req.SubjectID,
	})
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to update resource")
		return
	}
	writeJSON(w, http.StatusOK, resource)
}

func (h *ResourceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity, ok := currentIdentity(w, r)
	if !ok {
		return
	}
	id, err := parseIDParam(r, "resourceID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.resources.Delete(r.Context(), identity, id); err != nil {
		writeServiceError(w, h.logger, err, "failed to delete resource")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func firstFormValue(r *http.Request, keys ...string) string {
	for _, key := range keys {
		if value := strings.TrimSpace(r.FormValue(key)); value != "" {
			return value
		}
	}
	return ""
}
