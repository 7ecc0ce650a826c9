package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/eduaventuras/apiserver/config"
	"github.com/eduaventuras/apiserver/internal/apperr"
	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	DefaultMaxDocumentBytes int64 = 10 << 20
	DefaultMaxImageBytes    int64 = 5 << 20

	documentPrefix = "recursos"
	imagePrefix    = "perfiles"
	pdfContentType = "application/pdf"
)

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// DocumentStore validates uploads and persists them on an ObjectStorage backend.
// Paths it returns are backend keys relative to the bucket or root directory.
type DocumentStore struct {
	backend          ObjectStorage
	maxDocumentBytes int64
	maxImageBytes    int64
	newName          func() string
}

// NewDocumentStore constructs a DocumentStore with the configured size ceilings.
func NewDocumentStore(backend ObjectStorage, cfg config.StorageConfig) *DocumentStore {
	store := &DocumentStore{
		backend:          backend,
		maxDocumentBytes: cfg.MaxDocumentBytes,
		maxImageBytes:    cfg.MaxImageBytes,
		newName:          func() string { return uuid.NewString() },
	}
	if store.maxDocumentBytes <= 0 {
		store.maxDocumentBytes = DefaultMaxDocumentBytes
	}
	if store.maxImageBytes <= 0 {
		store.maxImageBytes = DefaultMaxImageBytes
	}
	return store
}

// MaxDocumentBytes returns the document size ceiling.
func (s *DocumentStore) MaxDocumentBytes() int64 { return s.maxDocumentBytes }

// MaxImageBytes returns the profile image size ceiling.
func (s *DocumentStore) MaxImageBytes() int64 { return s.maxImageBytes }

// SaveDocument stores a PDF under recursos/<normalized subject>/<uuid>.pdf.
func (s *DocumentStore) SaveDocument(ctx context.Context, data []byte, contentType, filename, subject string) (string, error) {
	if len(data) == 0 {
		return "", apperr.Validation("file is empty")
	}
	if int64(len(data)) > s.maxDocumentBytes {
		return "", apperr.Validation(fmt.Sprintf("file exceeds the %s limit", formatSize(s.maxDocumentBytes)))
	}
	declaredPDF := mediaType(contentType) == pdfContentType || strings.EqualFold(filepath.Ext(filename), ".pdf")
	if !declaredPDF || http.DetectContentType(data) != pdfContentType {
		return "", apperr.Validation("file must be a PDF")
	}

	key := path.Join(documentPrefix, NormalizeSubject(subject), s.newName()+".pdf")
	if err := s.create(ctx, key, data, pdfContentType); err != nil {
		return "", err
	}
	return key, nil
}

// SaveImage stores a profile image under perfiles/<uuid><ext>.
func (s *DocumentStore) SaveImage(ctx context.Context, data []byte, contentType, filename string) (string, error) {
	if len(data) == 0 {
		return "", apperr.Validation("file is empty")
	}
	if int64(len(data)) > s.maxImageBytes {
		return "", apperr.Validation(fmt.Sprintf("image exceeds the %s limit", formatSize(s.maxImageBytes)))
	}
	detected := http.DetectContentType(data)
	ext, ok := imageExtensions[detected]
	if !ok {
		return "", apperr.Validation("image must be JPEG, PNG, GIF or WebP")
	}
	if declared := mediaType(contentType); declared != "" && declared != "application/octet-stream" && !strings.HasPrefix(declared, "image/") {
		return "", apperr.Validation("image must be JPEG, PNG, GIF or WebP")
	}

	key := path.Join(imagePrefix, s.newName()+ext)
	if err := s.create(ctx, key, data, detected); err != nil {
		return "", err
	}
	return key, nil
}

// Read returns the bytes stored under key.
func (s *DocumentStore) Read(ctx context.Context, key string) ([]byte, error) {
	if strings.TrimSpace(key) == "" {
		return nil, apperr.NotFound("file not found")
	}
	reader, err := s.backend.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return nil, apperr.NotFound("file not found")
		}
		return nil, apperr.IO("failed to read file", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, apperr.IO("failed to read file", err)
	}
	return data, nil
}

// Delete removes the object stored under key. Deleting a missing object succeeds.
func (s *DocumentStore) Delete(ctx context.Context, key string) error {
	if strings.TrimSpace(key) == "" {
		return nil
	}
	if err := s.backend.Delete(ctx, key); err != nil {
		return apperr.IO("failed to delete file", err)
	}
	return nil
}

func (s *DocumentStore) create(ctx context.Context, key string, data []byte, contentType string) error {
	err := s.backend.Create(ctx, key, bytes.NewReader(data), int64(len(data)), contentType)
	if err == nil {
		return nil
	}
	// Backends may leave a partial object behind on failure.
	if !errors.Is(err, ErrObjectExists) {
		_ = s.backend.Delete(context.WithoutCancel(ctx), key)
	}
	return apperr.IO("failed to store file", err)
}

// NormalizeSubject folds a subject name into a directory name: accents are
// stripped, letters lowercased and anything outside [a-z0-9] becomes "_".
func NormalizeSubject(name string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), name)
	if err != nil {
		folded = name
	}
	folded = strings.ToLower(strings.TrimSpace(folded))

	var b strings.Builder
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "general"
	}
	return b.String()
}

func mediaType(contentType string) string {
	if strings.TrimSpace(contentType) == "" {
		return ""
	}
	parsed, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return parsed
}

func formatSize(n int64) string {
	if n%(1<<20) == 0 {
		return fmt.Sprintf("%d MB", n>>20)
	}
	return fmt.Sprintf("%d bytes", n)
}
