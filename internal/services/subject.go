package services

import (
	"context"
	"errors"
	"strings"

	"github.com/eduaventuras/apiserver/internal/apperr"
	"github.com/eduaventuras/apiserver/internal/store"
	"github.com/eduaventuras/apiserver/types"
)

// SubjectRepository defines persistence operations for subjects.
type SubjectRepository interface {
	List(ctx context.Context, includeInactive bool) ([]types.Subject, error)
	Get(ctx context.Context, id int) (types.Subject, error)
	Create(ctx context.Context, subject types.Subject) (types.Subject, error)
	Update(ctx context.Context, subject types.Subject) (types.Subject, error)
	Deactivate(ctx context.Context, id int) error
	ResourceCounts(ctx context.Context) ([]types.SubjectResourceCount, error)
}

// SubjectInput is the editable part of a subject.
type SubjectInput struct {
	Name        string
	Description string
	Icon        string
}

// SubjectService encapsulates catalog use-cases.
type SubjectService struct {
	repo SubjectRepository
}

// NewSubjectService constructs the subject service.
func NewSubjectService(repo SubjectRepository) *SubjectService {
	return &SubjectService{repo: repo}
}

// List returns active subjects ordered by name.
func (s *SubjectService) List(ctx context.Context) ([]types.Subject, error) {
	return s.repo.List(ctx, false)
}

// ListAll includes deactivated subjects.
func (s *SubjectService) ListAll(ctx context.Context) ([]types.Subject, error) {
	return s.repo.List(ctx, true)
}

// Get returns an active subject.
func (s *SubjectService) Get(ctx context.Context, id int) (types.Subject, error) {
	subject, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.Subject{}, err
	}
	if !subject.Active {
		return types.Subject{}, apperr.NotFound("subject not found")
	}
	return subject, nil
}

// Create adds an active subject. Names are unique.
func (s *SubjectService) Create(ctx context.Context, input SubjectInput) (types.Subject, error) {
	subject, err := input.subject()
	if err != nil {
		return types.Subject{}, err
	}
	subject.Active = true
	created, err := s.repo.Create(ctx, subject)
	if errors.Is(err, store.ErrConflict) {
		return types.Subject{}, apperr.Conflict("subject already exists")
	}
	return created, err
}

// Update replaces the editable fields of a subject.
func (s *SubjectService) Update(ctx context.Context, id int, input SubjectInput) (types.Subject, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.Subject{}, err
	}
	subject, err := input.subject()
	if err != nil {
		return types.Subject{}, err
	}
	subject.ID = existing.ID
	subject.Active = existing.Active
	updated, err := s.repo.Update(ctx, subject)
	if errors.Is(err, store.ErrConflict) {
		return types.Subject{}, apperr.Conflict("subject already exists")
	}
	return updated, err
}

// Delete deactivates a subject. Subjects with active resources are kept.
func (s *SubjectService) Delete(ctx context.Context, id int) error {
	err := s.repo.Deactivate(ctx, id)
	if errors.Is(err, store.ErrConflict) {
		return apperr.Conflict("subject has active resources")
	}
	return err
}

func (in SubjectInput) subject() (types.Subject, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return types.Subject{}, apperr.Validation("name is required")
	}
	if len(name) > 100 {
		return types.Subject{}, apperr.Validation("name must be at most 100 characters")
	}
	return types.Subject{
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Icon:        strings.TrimSpace(in.Icon),
	}, nil
}
