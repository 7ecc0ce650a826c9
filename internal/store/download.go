package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/eduaventuras/apiserver/types"
)

// DownloadRepository appends and aggregates download records.
type DownloadRepository struct {
	db *sql.DB
}

// NewDownloadRepository constructs a repository over db.
func NewDownloadRepository(db *sql.DB) *DownloadRepository {
	return &DownloadRepository{db: db}
}

// Record appends a download. Records are never updated or deleted.
func (r *DownloadRepository) Record(ctx context.Context, resourceID, userID int) (types.Download, error) {
	download := types.Download{
		ResourceID:   resourceID,
		UserID:       userID,
		DownloadedAt: time.Now(),
	}
	const query = `
		INSERT INTO downloads (resource_id, user_id, downloaded_at)
		VALUES ($1, $2, $3)
		RETURNING id`
	if err := r.db.QueryRowContext(ctx, query, resourceID, userID, download.DownloadedAt).Scan(&download.ID); err != nil {
		return types.Download{}, err
	}
	return download, nil
}

// Recent returns the latest downloads with resource and user names. A
// non-zero userID restricts the result to that user.
func (r *DownloadRepository) Recent(ctx context.Context, userID, limit int) ([]types.DownloadEntry, error) {
	const query = `
		SELECT d.resource_id, r.title, COALESCE(d.user_id, 0),
			COALESCE(TRIM(u.name || ' ' || u.last_name), ''), d.downloaded_at
		FROM downloads d
		JOIN resources r ON r.id = d.resource_id
		LEFT JOIN users u ON u.id = d.user_id
		WHERE $1 = 0 OR d.user_id = $1
		ORDER BY d.downloaded_at DESC, d.id DESC
		LIMIT NULLIF($2, 0)`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]types.DownloadEntry, 0)
	for rows.Next() {
		var entry types.DownloadEntry
		if err := rows.Scan(
			&entry.ResourceID,
			&entry.ResourceTitle,
			&entry.UserID,
			&entry.UserName,
			&entry.DownloadedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Popular ranks active resources by download count.
func (r *DownloadRepository) Popular(ctx context.Context, limit int) ([]types.PopularResource, error) {
	const query = `
		SELECT r.id, r.title, s.name, COUNT(d.id) AS downloads
		FROM resources r
		JOIN subjects s ON s.id = r.subject_id
		JOIN downloads d ON d.resource_id = r.id
		WHERE r.active
		GROUP BY r.id, r.title, s.name
		ORDER BY downloads DESC, r.id
		LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	popular := make([]types.PopularResource, 0, limit)
	for rows.Next() {
		var item types.PopularResource
		if err := rows.Scan(&item.ResourceID, &item.Title, &item.SubjectName, &item.DownloadCount); err != nil {
			return nil, err
		}
		popular = append(popular, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return popular, nil
}

// Summary counts users, active subjects, active resources and downloads.
func (r *DownloadRepository) Summary(ctx context.Context) (types.Summary, error) {
	const query = `
		SELECT
			(SELECT COUNT(1) FROM users),
			(SELECT COUNT(1) FROM subjects WHERE active),
			(SELECT COUNT(1) FROM resources WHERE active),
			(SELECT COUNT(1) FROM downloads)`
	var summary types.Summary
	err := r.db.QueryRowContext(ctx, query).Scan(
		&summary.TotalUsers,
		&summary.TotalSubjects,
		&summary.TotalResources,
		&summary.TotalDownloads,
	)
	if err != nil {
		return types.Summary{}, err
	}
	return summary, nil
}
