package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eduaventuras/apiserver/internal/apperr"
	"github.com/eduaventuras/apiserver/internal/auth"
	"github.com/eduaventuras/apiserver/internal/storage"
	"github.com/eduaventuras/apiserver/internal/store"
	"github.com/eduaventuras/apiserver/types"
)

// ResourceRepository defines persistence operations for resources.
type ResourceRepository interface {
	List(ctx context.Context, filter store.ResourceFilter) ([]types.Resource, error)
	Get(ctx context.Context, id int) (types.Resource, error)
	Create(ctx context.Context, resource types.Resource) (types.Resource, error)
	Update(ctx context.Context, resource types.Resource) (types.Resource, error)
	Deactivate(ctx context.Context, id int) error
}

// DownloadRepository defines persistence operations for download records.
type DownloadRepository interface {
	Record(ctx context.Context, resourceID, userID int) (types.Download, error)
	Recent(ctx context.Context, userID, limit int) ([]types.DownloadEntry, error)
	Popular(ctx context.Context, limit int) ([]types.PopularResource, error)
	Summary(ctx context.Context) (types.Summary, error)
}

// TransferRecorder counts uploads and downloads.
type TransferRecorder interface {
	Upload(kind string, err error)
	Download()
}

// Upload is a document submitted by a teacher or administrator.
type Upload struct {
	Title       string
	Description string
	SubjectID   int
	Filename    string
	ContentType string
	Data        []byte
}

// ResourceUpdate carries editable metadata. Nil fields are left unchanged.
type ResourceUpdate struct {
	Title       *string
	Description *string
	SubjectID   *int
}

// ResourceService encapsulates resource use-cases.
type ResourceService struct {
	repo      ResourceRepository
	subjects  SubjectRepository
	downloads DownloadRepository
	documents *storage.DocumentStore
	recorder  TransferRecorder
	logger    logrus.FieldLogger
	now       func() time.Time
}

// NewResourceService constructs the resource service. recorder and logger may be nil.
func NewResourceService(repo ResourceRepository, subjects SubjectRepository, downloads DownloadRepository, documents *storage.DocumentStore, recorder TransferRecorder, logger logrus.FieldLogger) *ResourceService {
	return &ResourceService{
		repo:      repo,
		subjects:  subjects,
		downloads: downloads,
		documents: documents,
		recorder:  recorder,
		logger:    orDiscard(logger),
		now:       time.Now,
	}
}

// Upload validates and stores a document, then records it. The stored file is
// removed again when the record cannot be written.
func (s *ResourceService) Upload(ctx context.Context, uploader auth.Identity, upload Upload) (types.Resource, error) {
	resource, err := s.upload(ctx, uploader, upload)
	if s.recorder != nil {
		s.recorder.Upload("document", err)
	}
	return resource, err
}

func (s *ResourceService) upload(ctx context.Context, uploader auth.Identity, upload Upload) (types.Resource, error) {
	if uploader.Role != types.RoleTeacher && uploader.Role != types.RoleAdmin {
		return types.Resource{}, apperr.Forbidden("only teachers and administrators can upload resources")
	}
	title := strings.TrimSpace(upload.Title)
	if title == "" {
		return types.Resource{}, apperr.Validation("title is required")
	}
	subject, err := s.activeSubject(ctx, upload.SubjectID)
	if err != nil {
		return types.Resource{}, err
	}

	key, err := s.documents.SaveDocument(ctx, upload.Data, upload.ContentType, upload.Filename, subject.Name)
	if err != nil {
		return types.Resource{}, err
	}

	resource, err := s.repo.Create(ctx, types.Resource{
		Title:            title,
		Description:      strings.TrimSpace(upload.Description),
		OriginalFilename: cleanFilename(upload.Filename),
		StoragePath:      key,
		SubjectID:        subject.ID,
		UploaderID:       uploader.UserID,
		SizeBytes:        int64(len(upload.Data)),
		UploadedAt:       s.now(),
		Active:           true,
	})
	if err != nil {
		if delErr := s.documents.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			s.logger.WithError(delErr).WithField("key", key).Error("failed to roll back uploaded file")
		}
		return types.Resource{}, err
	}
	resource.SubjectName = subject.Name
	s.logger.WithFields(logrus.Fields{
		"resource_id": resource.ID,
		"subject_id":  subject.ID,
		"uploader_id": uploader.UserID,
		"size_bytes":  resource.SizeBytes,
	}).Info("resource uploaded")
	return resource, nil
}

// ListActive returns active resources, newest first.
func (s *ResourceService) ListActive(ctx context.Context) ([]types.Resource, error) {
	return s.repo.List(ctx, store.ResourceFilter{})
}

// ListAll includes deactivated resources.
func (s *ResourceService) ListAll(ctx context.Context) ([]types.Resource, error) {
	return s.repo.List(ctx, store.ResourceFilter{IncludeInactive: true})
}

// ListBySubject returns the active resources of an active subject.
func (s *ResourceService) ListBySubject(ctx context.Context, subjectID int) ([]types.Resource, error) {
	if _, err := s.activeSubject(ctx, subjectID); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, store.ResourceFilter{SubjectID: subjectID})
}

// Get returns an active resource.
func (s *ResourceService) Get(ctx context.Context, id int) (types.Resource, error) {
	resource, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.Resource{}, err
	}
	if !resource.Active {
		return types.Resource{}, apperr.NotFound("resource not found")
	}
	return resource, nil
}

// Update edits metadata. The stored file is never moved.
func (s *ResourceService) Update(ctx context.Context, id int, update ResourceUpdate) (types.Resource, error) {
	resource, err := s.Get(ctx, id)
	if err != nil {
		return types.Resource{}, err
	}
	if update.Title != nil {
		title := strings.TrimSpace(*update.Title)
		if title == "" {
			return types.Resource{}, apperr.Validation("title is required")
		}
		resource.Title = title
	}
	if update.Description != nil {
		resource.Description = strings.TrimSpace(*update.Description)
	}
	if update.SubjectID != nil && *update.SubjectID != resource.SubjectID {
		subject, err := s.activeSubject(ctx, *update.SubjectID)
		if err != nil {
			return types.Resource{}, err
		}
		resource.SubjectID = subject.ID
		resource.SubjectName = subject.Name
	}
	return s.repo.Update(ctx, resource)
}

// Download returns the file of an active resource and records the download.
func (s *ResourceService) Download(ctx context.Context, id, userID int) (types.Resource, []byte, error) {
	resource, err := s.Get(ctx, id)
	if err != nil {
		return types.Resource{}, nil, err
	}
	data, err := s.documents.Read(ctx, resource.StoragePath)
	if err != nil {
		return types.Resource{}, nil, err
	}
	if _, err := s.downloads.Record(ctx, resource.ID, userID); err != nil {
		return types.Resource{}, nil, err
	}
	if s.recorder != nil {
		s.recorder.Download()
	}
	return resource, data, nil
}

// Delete soft-deletes a resource and removes its file. Teachers may only
// delete their own uploads.
func (s *ResourceService) Delete(ctx context.Context, actor auth.Identity, id int) error {
	resource, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	switch actor.Role {
	case types.RoleAdmin:
	case types.RoleTeacher:
		if resource.UploaderID != actor.UserID {
			return apperr.Forbidden("teachers can only delete their own resources")
		}
	default:
		return apperr.Forbidden("insufficient role")
	}

	if err := s.repo.Deactivate(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("resource not found")
		}
		return err
	}
	if err := s.documents.Delete(context.WithoutCancel(ctx), resource.StoragePath); err != nil {
		s.logger.WithError(err).WithField("resource_id", id).Warn("resource deactivated but file removal failed")
	}
	s.logger.WithFields(logrus.Fields{"resource_id": id, "actor_id": actor.UserID}).Info("resource deleted")
	return nil
}

// DownloadsByUser returns the download history of userID, newest first.
func (s *ResourceService) DownloadsByUser(ctx context.Context, userID, limit int) ([]types.DownloadEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	return s.downloads.Recent(ctx, userID, limit)
}

func (s *ResourceService) activeSubject(ctx context.Context, id int) (types.Subject, error) {
	if id <= 0 {
		return types.Subject{}, apperr.Validation("subject is required")
	}
	subject, err := s.subjects.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Subject{}, apperr.NotFound("subject not found")
		}
		return types.Subject{}, err
	}
	if !subject.Active {
		return types.Subject{}, apperr.NotFound("subject not found")
	}
	return subject, nil
}

func cleanFilename(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	if name == "" {
		return "documento.pdf"
	}
	return name
}
