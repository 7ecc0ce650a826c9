package services

import (
	"context"
	"errors"
	"mime"
	"net/mail"
	"path"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/eduaventuras/apiserver/internal/apperr"
	"github.com/eduaventuras/apiserver/internal/auth"
	"github.com/eduaventuras/apiserver/internal/storage"
	"github.com/eduaventuras/apiserver/internal/store"
	"github.com/eduaventuras/apiserver/types"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 6

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	List(ctx context.Context, role types.Role) ([]types.User, error)
	Recent(ctx context.Context, limit int) ([]types.User, error)
	CountByRole(ctx context.Context) (types.RoleCounts, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	UpdateProfile(ctx context.Context, id int, changes types.ProfileChanges) (types.User, error)
	SetActive(ctx context.Context, id int, active bool) (types.User, error)
	SetRole(ctx context.Context, id int, role types.Role) (types.User, error)
	SetPasswordHash(ctx context.Context, id int, hash string) error
	SetAvatar(ctx context.Context, id int, key string) (previous string, user types.User, err error)
	Delete(ctx context.Context, id int) error
}

// Registration is the input of Register and CreateAdmin.
type Registration struct {
	Email    string
	Password string
	Name     string
	LastName string
	Role     string
}

// Session is an authenticated user together with a bearer token.
type Session struct {
	Token string     `json:"token"`
	User  types.User `json:"user"`
}

// ProfileUpdate carries the editable profile fields. Nil fields are left
// unchanged; a FavoriteSubjectID pointing at 0 clears the favorite.
type ProfileUpdate struct {
	Name              *string
	LastName          *string
	Bio               *string
	FavoriteSubjectID *int
}

// UserService encapsulates account use-cases.
type UserService struct {
	repo      UserRepository
	subjects  SubjectRepository
	hasher    *auth.Hasher
	issuer    *auth.Issuer
	documents *storage.DocumentStore
	logger    logrus.FieldLogger
}

// NewUserService constructs the account service. issuer and documents may be
// nil for callers that only create accounts.
func NewUserService(repo UserRepository, subjects SubjectRepository, hasher *auth.Hasher, issuer *auth.Issuer, documents *storage.DocumentStore, logger logrus.FieldLogger) *UserService {
	return &UserService{
		repo:      repo,
		subjects:  subjects,
		hasher:    hasher,
		issuer:    issuer,
		documents: documents,
		logger:    orDiscard(logger),
	}
}

// Register creates a STUDENT or TEACHER account and signs a token for it.
func (s *UserService) Register(ctx context.Context, input Registration) (Session, error) {
	role := types.RoleStudent
	if strings.TrimSpace(input.Role) != "" {
		parsed, ok := types.ParseRole(input.Role)
		if !ok || parsed == types.RoleAdmin {
			return Session{}, apperr.Validation("role must be STUDENT or TEACHER")
		}
		role = parsed
	}

	user, err := s.create(ctx, input, role)
	if err != nil {
		return Session{}, err
	}
	s.logger.WithFields(logrus.Fields{"user_id": user.ID, "role": user.Role}).Info("user registered")
	return s.session(user)
}

// CreateAdmin creates an ADMIN account. It is only reachable from the CLI.
func (s *UserService) CreateAdmin(ctx context.Context, input Registration) (types.User, error) {
	return s.create(ctx, input, types.RoleAdmin)
}

func (s *UserService) create(ctx context.Context, input Registration, role types.Role) (types.User, error) {
	email, err := normalizeEmail(input.Email)
	if err != nil {
		return types.User{}, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return types.User{}, apperr.Validation("name is required")
	}
	hash, err := s.hashPassword(input.Password)
	if err != nil {
		return types.User{}, err
	}

	user, err := s.repo.Create(ctx, types.User{
		Email:        email,
		Name:         name,
		LastName:     strings.TrimSpace(input.LastName),
		Role:         role,
		Active:       true,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return types.User{}, apperr.Conflict("email already registered")
		}
		return types.User{}, err
	}
	return user, nil
}

// Authenticate checks credentials and signs a token. Unknown e-mails, wrong
// passwords and disabled accounts are all Unauthorized.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return Session{}, apperr.Validation("email and password are required")
	}
	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, apperr.Unauthorized("invalid credentials")
		}
		return Session{}, err
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		return Session{}, apperr.Unauthorized("invalid credentials")
	}
	if !user.Active {
		return Session{}, apperr.Unauthorized("account is disabled")
	}
	return s.session(user)
}

func (s *UserService) session(user types.User) (Session, error) {
	token, err := s.issuer.Issue(user.Email, user.Role)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, User: user}, nil
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (types.User, error) {
	return s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
}

// List returns every account, newest first.
func (s *UserService) List(ctx context.Context) ([]types.User, error) {
	return s.repo.List(ctx, "")
}

// ListByRole returns the accounts holding role.
func (s *UserService) ListByRole(ctx context.Context, role string) ([]types.User, error) {
	parsed, ok := types.ParseRole(role)
	if !ok {
		return nil, apperr.Validation("unknown role")
	}
	return s.repo.List(ctx, parsed)
}

func (s *UserService) RoleCounts(ctx context.Context) (types.RoleCounts, error) {
	return s.repo.CountByRole(ctx)
}

// UpdateProfile edits the caller's own profile. Only the fields present in
// update are written.
func (s *UserService) UpdateProfile(ctx context.Context, userID int, update ProfileUpdate) (types.User, error) {
	var changes types.ProfileChanges
	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return types.User{}, apperr.Validation("name is required")
		}
		changes.Name = &name
	}
	if update.LastName != nil {
		lastName := strings.TrimSpace(*update.LastName)
		changes.LastName = &lastName
	}
	if update.Bio != nil {
		bio := strings.TrimSpace(*update.Bio)
		changes.Bio = &bio
	}
	if update.FavoriteSubjectID != nil {
		if *update.FavoriteSubjectID == 0 {
			changes.ClearFavorite = true
		} else {
			subject, err := s.subjects.Get(ctx, *update.FavoriteSubjectID)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return types.User{}, apperr.Validation("favorite subject does not exist")
				}
				return types.User{}, err
			}
			changes.FavoriteSubjectID = &subject.ID
		}
	}
	return s.repo.UpdateProfile(ctx, userID, changes)
}

// ChangePassword replaces the password after checking the current one.
func (s *UserService) ChangePassword(ctx context.Context, userID int, current, next string) error {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(current, user.PasswordHash) {
		return apperr.Unauthorized("current password is incorrect")
	}
	hash, err := s.hashPassword(next)
	if err != nil {
		return err
	}
	return s.repo.SetPasswordHash(ctx, user.ID, hash)
}

// SetPassword replaces the password of the account owning email.
func (s *UserService) SetPassword(ctx context.Context, email, password string) error {
	hash, err := s.hashPassword(password)
	if err != nil {
		return err
	}
	user, err := s.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	return s.repo.SetPasswordHash(ctx, user.ID, hash)
}

// ValidatePassword applies the password policy without hashing.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return apperr.Validation("password must be at least 6 characters")
	}
	if len(password) > auth.MaxPasswordBytes {
		return apperr.Validation("password must be at most 72 bytes")
	}
	return nil
}

func (s *UserService) hashPassword(password string) (string, error) {
	if err := ValidatePassword(password); err != nil {
		return "", err
	}
	return s.hasher.Hash(password)
}

// UploadAvatar stores a new profile photo and removes the previous one.
func (s *UserService) UploadAvatar(ctx context.Context, userID int, data []byte, contentType, filename string) (types.User, error) {
	if _, err := s.repo.GetByID(ctx, userID); err != nil {
		return types.User{}, err
	}
	key, err := s.documents.SaveImage(ctx, data, contentType, filename)
	if err != nil {
		return types.User{}, err
	}

	previous, updated, err := s.repo.SetAvatar(ctx, userID, key)
	if err != nil {
		if delErr := s.documents.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			s.logger.WithError(delErr).WithField("key", key).Warn("failed to roll back avatar")
		}
		return types.User{}, err
	}
	s.removeFile(ctx, previous)
	return updated, nil
}

// Avatar returns the profile photo of userID and its content type.
func (s *UserService) Avatar(ctx context.Context, userID int) ([]byte, string, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, "", err
	}
	if user.AvatarPath == "" {
		return nil, "", apperr.NotFound("user has no profile photo")
	}
	data, err := s.documents.Read(ctx, user.AvatarPath)
	if err != nil {
		return nil, "", err
	}
	contentType := mime.TypeByExtension(path.Ext(user.AvatarPath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return data, contentType, nil
}

// RemoveAvatar clears the profile photo and deletes its file.
func (s *UserService) RemoveAvatar(ctx context.Context, userID int) (types.User, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return types.User{}, err
	}
	if user.AvatarPath == "" {
		return user, nil
	}
	previous, updated, err := s.repo.SetAvatar(ctx, userID, "")
	if err != nil {
		return types.User{}, err
	}
	s.removeFile(ctx, previous)
	return updated, nil
}

// SetActive enables or disables an account. Administrators cannot disable themselves.
func (s *UserService) SetActive(ctx context.Context, actorID, userID int, active bool) (types.User, error) {
	if actorID == userID && !active {
		return types.User{}, apperr.Validation("you cannot deactivate your own account")
	}
	return s.repo.SetActive(ctx, userID, active)
}

// SetRole changes the role of an account. Administrators cannot demote themselves.
func (s *UserService) SetRole(ctx context.Context, actorID, userID int, role string) (types.User, error) {
	parsed, ok := types.ParseRole(role)
	if !ok {
		return types.User{}, apperr.Validation("unknown role")
	}
	if actorID == userID && parsed != types.RoleAdmin {
		return types.User{}, apperr.Validation("you cannot change your own role")
	}
	return s.repo.SetRole(ctx, userID, parsed)
}

// DeletePermanent removes an account and its profile photo. Resources and
// downloads it owned are kept with the reference cleared.
func (s *UserService) DeletePermanent(ctx context.Context, actorID, userID int) error {
	if actorID == userID {
		return apperr.Validation("you cannot delete your own account")
	}
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, userID); err != nil {
		return err
	}
	s.removeFile(ctx, user.AvatarPath)
	s.logger.WithField("user_id", userID).Info("user deleted")
	return nil
}

func (s *UserService) removeFile(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.documents.Delete(context.WithoutCancel(ctx), key); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("failed to remove stored file")
	}
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", apperr.Validation("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperr.Validation("email is not valid")
	}
	return email, nil
}
