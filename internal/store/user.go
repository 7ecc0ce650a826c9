package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/eduaventuras/apiserver/types"
)

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository constructs a repository over db.
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, name, last_name, role, active, password_hash, bio, avatar_path, favorite_subject_id, registered_at, updated_at`

const qualifiedUserColumns = `u.id, u.email, u.name, u.last_name, u.role, u.active, u.password_hash, u.bio, u.avatar_path, u.favorite_subject_id, u.registered_at, u.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// leadingScanner scans one extra column placed before the user columns.
type leadingScanner struct {
	row   rowScanner
	first any
}

func withLeading(row rowScanner, first any) rowScanner {
	return leadingScanner{row: row, first: first}
}

func (s leadingScanner) Scan(dest ...any) error {
	return s.row.Scan(append([]any{s.first}, dest...)...)
}

func scanUser(row rowScanner) (types.User, error) {
	var user types.User
	var favorite sql.NullInt64
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.LastName,
		&user.Role,
		&user.Active,
		&user.PasswordHash,
		&user.Bio,
		&user.AvatarPath,
		&favorite,
		&user.RegisteredAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return types.User{}, err
	}
	if favorite.Valid {
		id := int(favorite.Int64)
		user.FavoriteSubjectID = &id
	}
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int) (types.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

// List returns every user, newest first. An empty role lists all roles.
func (r *UserRepository) List(ctx context.Context, role types.Role) ([]types.User, error) {
	const query = `SELECT ` + userColumns + `
		FROM users
		WHERE $1 = '' OR role = $1
		ORDER BY registered_at DESC, id DESC`
	return r.queryUsers(ctx, query, string(role))
}

// Recent returns the most recently registered users.
func (r *UserRepository) Recent(ctx context.Context, limit int) ([]types.User, error) {
	const query = `SELECT ` + userColumns + `
		FROM users
		ORDER BY registered_at DESC, id DESC
		LIMIT $1`
	return r.queryUsers(ctx, query, limit)
}

func (r *UserRepository) queryUsers(ctx context.Context, query string, args ...any) ([]types.User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]types.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// CountByRole aggregates users per role.
func (r *UserRepository) CountByRole(ctx context.Context) (types.RoleCounts, error) {
	const query = `SELECT role, COUNT(1) FROM users GROUP BY role`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return types.RoleCounts{}, err
	}
	defer rows.Close()

	var counts types.RoleCounts
	for rows.Next() {
		var role types.Role
		var n int
		if err := rows.Scan(&role, &n); err != nil {
			return types.RoleCounts{}, err
		}
		switch role {
		case types.RoleStudent:
			counts.Students = n
		case types.RoleTeacher:
			counts.Teachers = n
		case types.RoleAdmin:
			counts.Admins = n
		}
		counts.Total += n
	}
	if err := rows.Err(); err != nil {
		return types.RoleCounts{}, err
	}
	return counts, nil
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now()
	user.RegisteredAt = now
	user.UpdatedAt = now

	const query = `
		INSERT INTO users (email, name, last_name, role, active, password_hash, bio, avatar_path, favorite_subject_id, registered_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		user.Email,
		user.Name,
		user.LastName,
		user.Role,
		user.Active,
		user.PasswordHash,
		user.Bio,
		user.AvatarPath,
		nullableID(user.FavoriteSubjectID),
		user.RegisteredAt,
		user.UpdatedAt,
	).Scan(&user.ID); err != nil {
		return types.User{}, mapWriteError(err)
	}
	return user, nil
}

// UpdateProfile overwrites only the profile columns set in changes.
func (r *UserRepository) UpdateProfile(ctx context.Context, id int, changes types.ProfileChanges) (types.User, error) {
	const query = `
		UPDATE users
		SET name = COALESCE($1, name),
			last_name = COALESCE($2, last_name),
			bio = COALESCE($3, bio),
			favorite_subject_id = CASE WHEN $4::boolean THEN NULL ELSE COALESCE($5, favorite_subject_id) END,
			updated_at = $6
		WHERE id = $7
		RETURNING ` + userColumns
	return r.updateReturning(ctx, query,
		nullableString(changes.Name),
		nullableString(changes.LastName),
		nullableString(changes.Bio),
		changes.ClearFavorite,
		nullableID(changes.FavoriteSubjectID),
		time.Now(),
		id,
	)
}

// SetActive enables or disables an account.
func (r *UserRepository) SetActive(ctx context.Context, id int, active bool) (types.User, error) {
	const query = `UPDATE users SET active = $1, updated_at = $2 WHERE id = $3 RETURNING ` + userColumns
	return r.updateReturning(ctx, query, active, time.Now(), id)
}

// SetRole changes the role of an account.
func (r *UserRepository) SetRole(ctx context.Context, id int, role types.Role) (types.User, error) {
	const query = `UPDATE users SET role = $1, updated_at = $2 WHERE id = $3 RETURNING ` + userColumns
	return r.updateReturning(ctx, query, role, time.Now(), id)
}

// SetPasswordHash replaces the stored password hash.
func (r *UserRepository) SetPasswordHash(ctx context.Context, id int, hash string) error {
	const query = `UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, hash, time.Now(), id)
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

// SetAvatar stores a new avatar key and returns the key it replaced. The row
// is locked so concurrent uploads each see the key they overwrote.
func (r *UserRepository) SetAvatar(ctx context.Context, id int, key string) (string, types.User, error) {
	const query = `
		UPDATE users AS u
		SET avatar_path = $1, updated_at = $2
		FROM (SELECT id, avatar_path FROM users WHERE id = $3 FOR UPDATE) AS old
		WHERE u.id = old.id
		RETURNING old.avatar_path, ` + qualifiedUserColumns
	var previous string
	user, err := scanUser(withLeading(r.db.QueryRowContext(ctx, query, key, time.Now(), id), &previous))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", types.User{}, ErrNotFound
		}
		return "", types.User{}, err
	}
	return previous, user, nil
}

func (r *UserRepository) updateReturning(ctx context.Context, query string, args ...any) (types.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, mapWriteError(err)
	}
	return user, nil
}

func (r *UserRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM users WHERE id = $1`
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

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullableID(id *int) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*id), Valid: true}
}
