package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/eduaventuras/apiserver/types"
)

// ResourceRepository handles persistence for resources. Reads join the subject,
// the uploader and the download count so callers never load relations lazily.
type ResourceRepository struct {
	db *sql.DB
}

// NewResourceRepository constructs a repository over db.
func NewResourceRepository(db *sql.DB) *ResourceRepository {
	return &ResourceRepository{db: db}
}

// ResourceFilter narrows List.
type ResourceFilter struct {
	SubjectID       int
	UploaderID      int
	IncludeInactive bool
	Limit           int
}

const resourceSelect = `
	SELECT r.id, r.title, r.description, r.original_filename, r.storage_path,
		r.subject_id, s.name,
		COALESCE(r.uploader_id, 0), COALESCE(TRIM(u.name || ' ' || u.last_name), ''),
		r.size_bytes, r.uploaded_at, r.active,
		(SELECT COUNT(1) FROM downloads d WHERE d.resource_id = r.id) AS download_count
	FROM resources r
	JOIN subjects s ON s.id = r.subject_id
	LEFT JOIN users u ON u.id = r.uploader_id`

func scanResource(row rowScanner) (types.Resource, error) {
	var resource types.Resource
	err := row.Scan(
		&resource.ID,
		&resource.Title,
		&resource.Description,
		&resource.OriginalFilename,
		&resource.StoragePath,
		&resource.SubjectID,
		&resource.SubjectName,
		&resource.UploaderID,
		&resource.UploaderName,
		&resource.SizeBytes,
		&resource.UploadedAt,
		&resource.Active,
		&resource.DownloadCount,
	)
	return resource, err
}

// List returns resources newest first.
func (r *ResourceRepository) List(ctx context.Context, filter ResourceFilter) ([]types.Resource, error) {
	const query = resourceSelect + `
		WHERE ($1 OR r.active)
			AND ($2 = 0 OR r.subject_id = $2)
			AND ($3 = 0 OR r.uploader_id = $3)
		ORDER BY r.uploaded_at DESC, r.id DESC
		LIMIT NULLIF($4, 0)`
	rows, err := r.db.QueryContext(ctx, query, filter.IncludeInactive, filter.SubjectID, filter.UploaderID, filter.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	resources := make([]types.Resource, 0)
	for rows.Next() {
		resource, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		resources = append(resources, resource)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return resources, nil
}

func (r *ResourceRepository) Get(ctx context.Context, id int) (types.Resource, error) {
	const query = resourceSelect + ` WHERE r.id = $1`
	resource, err := scanResource(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Resource{}, ErrNotFound
		}
		return types.Resource{}, err
	}
	return resource, nil
}

func (r *ResourceRepository) Create(ctx context.Context, resource types.Resource) (types.Resource, error) {
	const query = `
		INSERT INTO resources (title, description, original_filename, storage_path, subject_id, uploader_id, size_bytes, uploaded_at, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		resource.Title,
		resource.Description,
		resource.OriginalFilename,
		resource.StoragePath,
		resource.SubjectID,
		resource.UploaderID,
		resource.SizeBytes,
		resource.UploadedAt,
		resource.Active,
	).Scan(&resource.ID); err != nil {
		return types.Resource{}, mapWriteError(err)
	}
	return resource, nil
}

// Update persists metadata and the active flag. The storage path is never rewritten.
func (r *ResourceRepository) Update(ctx context.Context, resource types.Resource) (types.Resource, error) {
	const query = `
		UPDATE resources
		SET title = $1,
			description = $2,
			subject_id = $3,
			active = $4
		WHERE id = $5`
	result, err := r.db.ExecContext(
		ctx,
		query,
		resource.Title,
		resource.Description,
		resource.SubjectID,
		resource.Active,
		resource.ID,
	)
	if err != nil {
		return types.Resource{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Resource{}, err
	}
	if affected == 0 {
		return types.Resource{}, ErrNotFound
	}
	return resource, nil
}

// Deactivate soft-deletes an active resource. It reports ErrNotFound when the
// resource is absent or already inactive, so concurrent deletes remove the file once.
func (r *ResourceRepository) Deactivate(ctx context.Context, id int) error {
	const query = `UPDATE resources SET active = FALSE WHERE id = $1 AND active`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
