package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/eduaventuras/apiserver/types"
)

// SubjectRepository handles persistence for subjects.
type SubjectRepository struct {
	db *sql.DB
}

// NewSubjectRepository constructs a repository over db.
func NewSubjectRepository(db *sql.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

const subjectSelect = `
	SELECT s.id, s.name, s.description, s.icon, s.active,
		(SELECT COUNT(1) FROM resources r WHERE r.subject_id = s.id AND r.active) AS resource_count
	FROM subjects s`

func scanSubject(row rowScanner) (types.Subject, error) {
	var subject types.Subject
	err := row.Scan(
		&subject.ID,
		&subject.Name,
		&subject.Description,
		&subject.Icon,
		&subject.Active,
		&subject.ResourceCount,
	)
	return subject, err
}

// List returns subjects ordered by name, only active ones unless includeInactive.
func (r *SubjectRepository) List(ctx context.Context, includeInactive bool) ([]types.Subject, error) {
	const query = subjectSelect + `
		WHERE $1 OR s.active
		ORDER BY s.name`
	rows, err := r.db.QueryContext(ctx, query, includeInactive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subjects := make([]types.Subject, 0)
	for rows.Next() {
		subject, err := scanSubject(rows)
		if err != nil {
			return nil, err
		}
		subjects = append(subjects, subject)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return subjects, nil
}

func (r *SubjectRepository) Get(ctx context.Context, id int) (types.Subject, error) {
	const query = subjectSelect + ` WHERE s.id = $1`
	subject, err := scanSubject(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Subject{}, ErrNotFound
		}
		return types.Subject{}, err
	}
	return subject, nil
}

func (r *SubjectRepository) Create(ctx context.Context, subject types.Subject) (types.Subject, error) {
	const query = `
		INSERT INTO subjects (name, description, icon, active)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		subject.Name,
		subject.Description,
		subject.Icon,
		subject.Active,
	).Scan(&subject.ID); err != nil {
		return types.Subject{}, mapWriteError(err)
	}
	return subject, nil
}

func (r *SubjectRepository) Update(ctx context.Context, subject types.Subject) (types.Subject, error) {
	const query = `
		UPDATE subjects
		SET name = $1,
			description = $2,
			icon = $3,
			active = $4
		WHERE id = $5`
	result, err := r.db.ExecContext(
		ctx,
		query,
		subject.Name,
		subject.Description,
		subject.Icon,
		subject.Active,
		subject.ID,
	)
	if err != nil {
		return types.Subject{}, mapWriteError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Subject{}, err
	}
	if affected == 0 {
		return types.Subject{}, ErrNotFound
	}
	return subject, nil
}

// Deactivate soft-deletes a subject unless it still has active resources.
// The check and the update run in one statement.
func (r *SubjectRepository) Deactivate(ctx context.Context, id int) error {
	const query = `
		UPDATE subjects
		SET active = FALSE
		WHERE id = $1
			AND NOT EXISTS (SELECT 1 FROM resources WHERE subject_id = $1 AND active)`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return ErrConflict
}

// ResourceCounts returns the active resource count of every active subject.
func (r *SubjectRepository) ResourceCounts(ctx context.Context) ([]types.SubjectResourceCount, error) {
	const query = `
		SELECT s.id, s.name, COUNT(r.id)
		FROM subjects s
		LEFT JOIN resources r ON r.subject_id = s.id AND r.active
		WHERE s.active
		GROUP BY s.id, s.name
		ORDER BY COUNT(r.id) DESC, s.name`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make([]types.SubjectResourceCount, 0)
	for rows.Next() {
		var count types.SubjectResourceCount
		if err := rows.Scan(&count.SubjectID, &count.SubjectName, &count.ResourceCount); err != nil {
			return nil, err
		}
		counts = append(counts, count)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return counts, nil
}
