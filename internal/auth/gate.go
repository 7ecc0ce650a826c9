package auth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/eduaventuras/apiserver/internal/apperr"
	"github.com/eduaventuras/apiserver/types"
	"github.com/sirupsen/logrus"
)

// CredentialLookup loads the stored account behind a token subject.
type CredentialLookup interface {
	GetByEmail(ctx context.Context, email string) (types.User, error)
}

// RejectionRecorder counts gate rejections by reason.
type RejectionRecorder interface {
	AuthRejected(reason string)
}

// Gate authenticates and authorizes every request against the route table.
type Gate struct {
	classifier *Classifier
	issuer     *Issuer
	users      CredentialLookup
	logger     logrus.FieldLogger
	recorder   RejectionRecorder
	now        func() time.Time
}

// NewGate constructs a Gate. logger and recorder may be nil.
func NewGate(classifier *Classifier, issuer *Issuer, users CredentialLookup, logger logrus.FieldLogger, recorder RejectionRecorder) *Gate {
	if logger == nil {
		nop := logrus.New()
		nop.SetOutput(io.Discard)
		logger = nop
	}
	return &Gate{
		classifier: classifier,
		issuer:     issuer,
		users:      users,
		logger:     logger,
		recorder:   recorder,
		now:        time.Now,
	}
}

// Classifier returns the route table the gate enforces.
func (g *Gate) Classifier() *Classifier {
	return g.classifier
}

// GateError is the body written when the gate rejects a request.
type GateError struct {
	Error     string `json:"error"`
	Status    int    `json:"status"`
	Timestamp string `json:"timestamp"`
}

// Middleware enforces the route table. It runs at most once per request.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if gateProcessed(ctx) {
			next.ServeHTTP(w, r)
			return
		}
		ctx = markProcessed(ctx)
		r = r.WithContext(ctx)

		routePath := RoutingPath(r.URL)
		if MalformedPath(routePath) {
			g.reject(w, r, http.StatusBadRequest, "malformed_path", "malformed request path")
			return
		}
		requirement := g.classifier.Classify(r.Method, routePath)
		if requirement.Access == AccessPublic {
			next.ServeHTTP(w, r)
			return
		}

		tokenString, err := bearerToken(r)
		if err != nil {
			g.reject(w, r, http.StatusUnauthorized, "missing_token", "authentication required")
			return
		}

		claims, err := g.issuer.Verify(tokenString)
		if err != nil {
			reason := "invalid_token"
			if errors.Is(err, ErrTokenExpired) {
				reason = "expired_token"
			}
			g.reject(w, r, http.StatusUnauthorized, reason, "invalid or expired token")
			return
		}

		user, err := g.users.GetByEmail(ctx, claims.Email)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				g.reject(w, r, http.StatusUnauthorized, "unknown_user", "invalid or expired token")
				return
			}
			g.logger.WithError(err).WithField("path", r.URL.Path).Error("credential lookup failed")
			g.reject(w, r, http.StatusInternalServerError, "lookup_failed", "failed to authenticate")
			return
		}
		if !strings.EqualFold(user.Email, claims.Email) {
			g.reject(w, r, http.StatusUnauthorized, "subject_mismatch", "invalid or expired token")
			return
		}
		if !user.Active {
			g.reject(w, r, http.StatusUnauthorized, "inactive_user", "account is disabled")
			return
		}

		// Authorization uses the stored role so role changes apply before token expiry.
		identity := Identity{UserID: user.ID, Email: user.Email, Role: user.Role}
		if !requirement.Allows(identity.Role) {
			g.reject(w, r, http.StatusForbidden, "insufficient_role", "insufficient permissions")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, identity)))
	})
}

func (g *Gate) reject(w http.ResponseWriter, r *http.Request, status int, reason, message string) {
	if g.recorder != nil {
		g.recorder.AuthRejected(reason)
	}
	g.logger.WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
		"status": status,
		"reason": reason,
	}).Info("request rejected")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(GateError{
		Error:     message,
		Status:    status,
		Timestamp: g.now().UTC().Format(time.RFC3339),
	})
}

func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
