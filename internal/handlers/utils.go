package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/eduaventuras/apiserver/internal/apperr"
	"github.com/eduaventuras/apiserver/internal/auth"
)

const (
	maxJSONBytes       = 1 << 20
	maxMultipartMemory = 32 << 20
	multipartOverhead  = 1 << 20
)

// ErrorResponse is a simple error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse carries a user-facing confirmation.
type MessageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeServiceError is the single translation point from service errors to
// HTTP responses. Unclassified errors are logged and hidden behind fallback.
func writeServiceError(w http.ResponseWriter, logger logrus.FieldLogger, err error, fallback string) {
	status := http.StatusInternalServerError
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindUnauthorized:
		status = http.StatusUnauthorized
	case apperr.KindForbidden:
		status = http.StatusForbidden
	case apperr.KindConflict:
		status = http.StatusConflict
	case apperr.KindValidation, apperr.KindExpired, apperr.KindInvalidToken:
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		logger.WithError(err).Error(fallback)
		writeError(w, status, fallback)
		return
	}
	writeError(w, status, apperr.Message(err, fallback))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBytes))
	if err := dec.Decode(dst); err != nil {
		return errors.New("invalid request")
	}
	return nil
}

func parseIDParam(r *http.Request, name string) (int, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}

func parseOptionalInt(value string) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	return strconv.Atoi(value)
}

// currentIdentity returns the identity attached by the gate.
func currentIdentity(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return auth.Identity{}, false
	}
	return identity, true
}

// UploadedFile is a file read from a multipart form.
type UploadedFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// parseUpload reads the first file found under any of fields. Files larger
// than limit are read up to limit+1 bytes so the size check downstream fails.
func parseUpload(w http.ResponseWriter, r *http.Request, limit int64, fields ...string) (UploadedFile, error) {
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return UploadedFile{}, apperr.Validation("file is too large")
		}
		return UploadedFile{}, apperr.Validation("invalid multipart form")
	}

	var header *multipart.FileHeader
	for _, field := range fields {
		if files := r.MultipartForm.File[field]; len(files) > 0 {
			header = files[0]
			break
		}
	}
	if header == nil {
		return UploadedFile{}, apperr.Validation("file is required")
	}

	file, err := header.Open()
	if err != nil {
		return UploadedFile{}, fmt.Errorf("failed to read uploaded file: %w", err)
	}
	data, err := readFileLimited(file, limit+1)
	_ = file.Close()
	if err != nil {
		return UploadedFile{}, err
	}
	return UploadedFile{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func readFileLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit))
	if err != nil {
		return nil, fmt.Errorf("failed to read uploaded file: %w", err)
	}
	return data, nil
}

func writeFile(w http.ResponseWriter, data []byte, contentType, disposition, filename string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if filename != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, filename))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
