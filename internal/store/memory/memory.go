// Package memory is an in-process datastore with the same behaviour as the SQL
// repositories: unique e-mails, subject names and storage paths, joined reads
// and ON DELETE SET NULL for removed users.
package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/eduaventuras/apiserver/internal/store"
	"github.com/eduaventuras/apiserver/types"
)

// DB holds every table behind one lock.
type DB struct {
	mu        sync.RWMutex
	users     map[int]types.User
	subjects  map[int]types.Subject
	resources map[int]types.Resource
	downloads []types.Download
	seq       struct{ user, subject, resource, download int }
	now       func() time.Time
}

// New returns an empty datastore.
func New() *DB {
	return &DB{
		users:     make(map[int]types.User),
		subjects:  make(map[int]types.Subject),
		resources: make(map[int]types.Resource),
		now:       time.Now,
	}
}

// Repository accessors share the same tables.
func (db *DB) Users() *UserRepository         { return &UserRepository{db: db} }
func (db *DB) Subjects() *SubjectRepository   { return &SubjectRepository{db: db} }
func (db *DB) Resources() *ResourceRepository { return &ResourceRepository{db: db} }
func (db *DB) Downloads() *DownloadRepository { return &DownloadRepository{db: db} }

// UserRepository mirrors store.UserRepository.
type UserRepository struct{ db *DB }

func (r *UserRepository) GetByID(_ context.Context, id int) (types.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	user, ok := r.db.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *UserRepository) GetByEmail(_ context.Context, email string) (types.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	for _, user := range r.db.users {
		if user.Email == email {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *UserRepository) List(_ context.Context, role types.Role) ([]types.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	users := make([]types.User, 0, len(r.db.users))
	for _, user := range r.db.users {
		if role == "" || user.Role == role {
			users = append(users, user)
		}
	}
	sortNewestUsers(users)
	return users, nil
}

func (r *UserRepository) Recent(ctx context.Context, limit int) ([]types.User, error) {
	users, _ := r.List(ctx, "")
	return truncate(users, limit), nil
}

func (r *UserRepository) CountByRole(_ context.Context) (types.RoleCounts, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var counts types.RoleCounts
	for _, user := range r.db.users {
		switch user.Role {
		case types.RoleStudent:
			counts.Students++
		case types.RoleTeacher:
			counts.Teachers++
		case types.RoleAdmin:
			counts.Admins++
		}
		counts.Total++
	}
	return counts, nil
}

func (r *UserRepository) Create(_ context.Context, user types.User) (types.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, existing := range r.db.users {
		if existing.Email == user.Email {
			return types.User{}, store.ErrConflict
		}
	}
	r.db.seq.user++
	now := r.db.now()
	user.ID = r.db.seq.user
	user.RegisteredAt = now
	user.UpdatedAt = now
	r.db.users[user.ID] = user
	return user, nil
}

// mutate applies fn to the stored row of id under the write lock.
func (r *UserRepository) mutate(id int, fn func(*types.User)) (types.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	user, ok := r.db.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	fn(&user)
	user.UpdatedAt = r.db.now()
	r.db.users[id] = user
	return user, nil
}

func (r *UserRepository) UpdateProfile(_ context.Context, id int, changes types.ProfileChanges) (types.User, error) {
	return r.mutate(id, func(user *types.User) {
		if changes.Name != nil {
			user.Name = *changes.Name
		}
		if changes.LastName != nil {
			user.LastName = *changes.LastName
		}
		if changes.Bio != nil {
			user.Bio = *changes.Bio
		}
		switch {
		case changes.ClearFavorite:
			user.FavoriteSubjectID = nil
		case changes.FavoriteSubjectID != nil:
			favorite := *changes.FavoriteSubjectID
			user.FavoriteSubjectID = &favorite
		}
	})
}

func (r *UserRepository) SetActive(_ context.Context, id int, active bool) (types.User, error) {
	return r.mutate(id, func(user *types.User) { user.Active = active })
}

func (r *UserRepository) SetRole(_ context.Context, id int, role types.Role) (types.User, error) {
	return r.mutate(id, func(user *types.User) { user.Role = role })
}

func (r *UserRepository) SetPasswordHash(_ context.Context, id int, hash string) error {
	_, err := r.mutate(id, func(user *types.User) { user.PasswordHash = hash })
	return err
}

func (r *UserRepository) SetAvatar(_ context.Context, id int, key string) (string, types.User, error) {
	var previous string
	user, err := r.mutate(id, func(user *types.User) {
		previous = user.AvatarPath
		user.AvatarPath = key
	})
	return previous, user, err
}

func (r *UserRepository) Delete(_ context.Context, id int) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.db.users, id)
	for resourceID, resource := range r.db.resources {
		if resource.UploaderID == id {
			resource.UploaderID = 0
			r.db.resources[resourceID] = resource
		}
	}
	for i := range r.db.downloads {
		if r.db.downloads[i].UserID == id {
			r.db.downloads[i].UserID = 0
		}
	}
	return nil
}

// SubjectRepository mirrors store.SubjectRepository.
type SubjectRepository struct{ db *DB }

func (r *SubjectRepository) List(_ context.Context, includeInactive bool) ([]types.Subject, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	subjects := make([]types.Subject, 0, len(r.db.subjects))
	for _, subject := range r.db.subjects {
		if includeInactive || subject.Active {
			subjects = append(subjects, r.db.subjectView(subject))
		}
	}
	slices.SortFunc(subjects, func(a, b types.Subject) int { return strings.Compare(a.Name, b.Name) })
	return subjects, nil
}

func (r *SubjectRepository) Get(_ context.Context, id int) (types.Subject, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	subject, ok := r.db.subjects[id]
	if !ok {
		return types.Subject{}, store.ErrNotFound
	}
	return r.db.subjectView(subject), nil
}

func (r *SubjectRepository) Create(_ context.Context, subject types.Subject) (types.Subject, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.subjectNameTaken(subject.Name, 0) {
		return types.Subject{}, store.ErrConflict
	}
	r.db.seq.subject++
	subject.ID = r.db.seq.subject
	subject.ResourceCount = 0
	r.db.subjects[subject.ID] = subject
	return subject, nil
}

func (r *SubjectRepository) Update(_ context.Context, subject types.Subject) (types.Subject, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.subjects[subject.ID]; !ok {
		return types.Subject{}, store.ErrNotFound
	}
	if r.db.subjectNameTaken(subject.Name, subject.ID) {
		return types.Subject{}, store.ErrConflict
	}
	r.db.subjects[subject.ID] = subject
	return subject, nil
}

func (r *SubjectRepository) Deactivate(_ context.Context, id int) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	subject, ok := r.db.subjects[id]
	if !ok {
		return store.ErrNotFound
	}
	if r.db.activeResourceCount(id) > 0 {
		return store.ErrConflict
	}
	subject.Active = false
	r.db.subjects[id] = subject
	return nil
}

func (r *SubjectRepository) ResourceCounts(_ context.Context) ([]types.SubjectResourceCount, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	counts := make([]types.SubjectResourceCount, 0, len(r.db.subjects))
	for _, subject := range r.db.subjects {
		if !subject.Active {
			continue
		}
		counts = append(counts, types.SubjectResourceCount{
			SubjectID:     subject.ID,
			SubjectName:   subject.Name,
			ResourceCount: r.db.activeResourceCount(subject.ID),
		})
	}
	slices.SortFunc(counts, func(a, b types.SubjectResourceCount) int {
		if c := cmp.Compare(b.ResourceCount, a.ResourceCount); c != 0 {
			return c
		}
		return strings.Compare(a.SubjectName, b.SubjectName)
	})
	return counts, nil
}

// ResourceRepository mirrors store.ResourceRepository.
type ResourceRepository struct{ db *DB }

func (r *ResourceRepository) List(_ context.Context, filter store.ResourceFilter) ([]types.Resource, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	resources := make([]types.Resource, 0)
	for _, resource := range r.db.resources {
		if !filter.IncludeInactive && !resource.Active {
			continue
		}
		if filter.SubjectID != 0 && resource.SubjectID != filter.SubjectID {
			continue
		}
		if filter.UploaderID != 0 && resource.UploaderID != filter.UploaderID {
			continue
		}
		resources = append(resources, r.db.resourceView(resource))
	}
	slices.SortFunc(resources, func(a, b types.Resource) int {
		if c := b.UploadedAt.Compare(a.UploadedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return truncate(resources, filter.Limit), nil
}

func (r *ResourceRepository) Get(_ context.Context, id int) (types.Resource, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	resource, ok := r.db.resources[id]
	if !ok {
		return types.Resource{}, store.ErrNotFound
	}
	return r.db.resourceView(resource), nil
}

func (r *ResourceRepository) Create(_ context.Context, resource types.Resource) (types.Resource, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.subjects[resource.SubjectID]; !ok {
		return types.Resource{}, store.ErrNotFound
	}
	for _, existing := range r.db.resources {
		if existing.StoragePath == resource.StoragePath {
			return types.Resource{}, store.ErrConflict
		}
	}
	r.db.seq.resource++
	resource.ID = r.db.seq.resource
	r.db.resources[resource.ID] = resource
	return resource, nil
}

func (r *ResourceRepository) Update(_ context.Context, resource types.Resource) (types.Resource, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	existing, ok := r.db.resources[resource.ID]
	if !ok {
		return types.Resource{}, store.ErrNotFound
	}
	existing.Title = resource.Title
	existing.Description = resource.Description
	existing.SubjectID = resource.SubjectID
	existing.Active = resource.Active
	r.db.resources[resource.ID] = existing
	return r.db.resourceView(existing), nil
}

func (r *ResourceRepository) Deactivate(_ context.Context, id int) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	resource, ok := r.db.resources[id]
	if !ok || !resource.Active {
		return store.ErrNotFound
	}
	resource.Active = false
	r.db.resources[id] = resource
	return nil
}

// DownloadRepository mirrors store.DownloadRepository.
type DownloadRepository struct{ db *DB }

func (r *DownloadRepository) Record(_ context.Context, resourceID, userID int) (types.Download, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.resources[resourceID]; !ok {
		return types.Download{}, store.ErrNotFound
	}
	r.db.seq.download++
	download := types.Download{
		ID:           r.db.seq.download,
		ResourceID:   resourceID,
		UserID:       userID,
		DownloadedAt: r.db.now(),
	}
	r.db.downloads = append(r.db.downloads, download)
	return download, nil
}

func (r *DownloadRepository) Recent(_ context.Context, userID, limit int) ([]types.DownloadEntry, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	entries := make([]types.DownloadEntry, 0)
	for i := len(r.db.downloads) - 1; i >= 0; i-- {
		download := r.db.downloads[i]
		if userID != 0 && download.UserID != userID {
			continue
		}
		entry := types.DownloadEntry{
			ResourceID:    download.ResourceID,
			ResourceTitle: r.db.resources[download.ResourceID].Title,
			UserID:        download.UserID,
			DownloadedAt:  download.DownloadedAt,
		}
		if user, ok := r.db.users[download.UserID]; ok {
			entry.UserName = user.FullName()
		}
		entries = append(entries, entry)
	}
	return truncate(entries, limit), nil
}

func (r *DownloadRepository) Popular(_ context.Context, limit int) ([]types.PopularResource, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	counts := make(map[int]int)
	for _, download := range r.db.downloads {
		counts[download.ResourceID]++
	}
	popular := make([]types.PopularResource, 0, len(counts))
	for resourceID, n := range counts {
		resource := r.db.resources[resourceID]
		if !resource.Active {
			continue
		}
		popular = append(popular, types.PopularResource{
			ResourceID:    resourceID,
			Title:         resource.Title,
			SubjectName:   r.db.subjects[resource.SubjectID].Name,
			DownloadCount: n,
		})
	}
	slices.SortFunc(popular, func(a, b types.PopularResource) int {
		if c := cmp.Compare(b.DownloadCount, a.DownloadCount); c != 0 {
			return c
		}
		return cmp.Compare(a.ResourceID, b.ResourceID)
	})
	return truncate(popular, limit), nil
}

func (r *DownloadRepository) Summary(_ context.Context) (types.Summary, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	summary := types.Summary{
		TotalUsers:     len(r.db.users),
		TotalDownloads: len(r.db.downloads),
	}
	for _, subject := range r.db.subjects {
		if subject.Active {
			summary.TotalSubjects++
		}
	}
	for _, resource := range r.db.resources {
		if resource.Active {
			summary.TotalResources++
		}
	}
	return summary, nil
}

// The helpers below expect the caller to hold db.mu.

func (db *DB) subjectView(subject types.Subject) types.Subject {
	subject.ResourceCount = db.activeResourceCount(subject.ID)
	return subject
}

func (db *DB) resourceView(resource types.Resource) types.Resource {
	resource.SubjectName = db.subjects[resource.SubjectID].Name
	if uploader, ok := db.users[resource.UploaderID]; ok {
		resource.UploaderName = uploader.FullName()
	} else {
		resource.UploaderName = ""
	}
	resource.DownloadCount = 0
	for _, download := range db.downloads {
		if download.ResourceID == resource.ID {
			resource.DownloadCount++
		}
	}
	return resource
}

func (db *DB) activeResourceCount(subjectID int) int {
	n := 0
	for _, resource := range db.resources {
		if resource.SubjectID == subjectID && resource.Active {
			n++
		}
	}
	return n
}

func (db *DB) subjectNameTaken(name string, exceptID int) bool {
	for _, subject := range db.subjects {
		if subject.ID != exceptID && subject.Name == name {
			return true
		}
	}
	return false
}

func sortNewestUsers(users []types.User) {
	slices.SortFunc(users, func(a, b types.User) int {
		if c := b.RegisteredAt.Compare(a.RegisteredAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
