package services

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/eduaventuras/apiserver/internal/apperr"
	"github.com/eduaventuras/apiserver/internal/mq"
	"github.com/eduaventuras/apiserver/internal/recovery"
	"github.com/eduaventuras/apiserver/internal/store"
)

// RecoveryPublisher delivers recovery tokens out-of-band.
type RecoveryPublisher interface {
	PublishRecovery(ctx context.Context, msg mq.RecoveryMessage) (string, error)
}

// PasswordService runs password recovery and change.
type PasswordService struct {
	users     *UserService
	registry  *recovery.Registry
	publisher RecoveryPublisher
	resetURL  string
	logger    logrus.FieldLogger
}

// NewPasswordService constructs the recovery service. resetURL is the page the
// e-mail links to; the token is appended as a query parameter.
func NewPasswordService(users *UserService, registry *recovery.Registry, publisher RecoveryPublisher, resetURL string, logger logrus.FieldLogger) *PasswordService {
	return &PasswordService{
		users:     users,
		registry:  registry,
		publisher: publisher,
		resetURL:  resetURL,
		logger:    orDiscard(logger),
	}
}

// RequestRecovery issues a token for email and publishes it to the mailer.
// The outcome is the same whether or not the account exists; only the logs
// tell the cases apart.
func (s *PasswordService) RequestRecovery(ctx context.Context, email, language string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return apperr.Validation("email is required")
	}
	log := s.logger.WithField("email_domain", emailDomain(email))

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Info("password recovery requested for unknown email")
			return nil
		}
		return err
	}
	if !user.Active {
		log.WithField("user_id", user.ID).Info("password recovery requested for disabled account")
		return nil
	}

	ticket, err := s.registry.IssueToken(ctx, user.Email)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			log.Info("password recovery requested for unknown email")
			return nil
		}
		return err
	}

	_, err = s.publisher.PublishRecovery(ctx, mq.RecoveryMessage{
		Email:     ticket.Email,
		Name:      user.FullName(),
		Token:     ticket.Token,
		ResetURL:  s.resetLink(ticket.Token),
		ExpiresAt: ticket.ExpiresAt,
		Language:  language,
	})
	if err != nil {
		log.WithError(err).WithField("user_id", user.ID).Error("failed to publish recovery message")
		return nil
	}
	log.WithField("user_id", user.ID).Info("password recovery token issued")
	return nil
}

// ValidateToken reports whether a recovery token is live.
func (s *PasswordService) ValidateToken(ctx context.Context, token string) bool {
	return s.registry.ValidateToken(ctx, strings.TrimSpace(token))
}

// ResetPassword redeems token and sets a new password. The password policy is
// checked first so a rejected password does not burn the token.
func (s *PasswordService) ResetPassword(ctx context.Context, token, password string) error {
	if err := ValidatePassword(password); err != nil {
		return err
	}
	err := s.registry.ConsumeAndReset(ctx, strings.TrimSpace(token), func(ctx context.Context, email string) error {
		return s.users.SetPassword(ctx, email, password)
	})
	if err != nil {
		return err
	}
	s.logger.Info("password reset with recovery token")
	return nil
}

// ChangePassword replaces the password of an authenticated user.
func (s *PasswordService) ChangePassword(ctx context.Context, userID int, current, next string) error {
	return s.users.ChangePassword(ctx, userID, current, next)
}

func (s *PasswordService) resetLink(token string) string {
	if s.resetURL == "" {
		return ""
	}
	u, err := url.Parse(s.resetURL)
	if err != nil {
		return ""
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

func emailDomain(email string) string {
	if i := strings.LastIndex(email, "@"); i >= 0 {
		return email[i+1:]
	}
	return ""
}
