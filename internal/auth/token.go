package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/eduaventuras/apiserver/types"
	"github.com/golang-jwt/jwt/v5"
)

const (
	DefaultTokenTTL = 24 * time.Hour
	tokenIssuer     = "eduaventuras"
)

var (
	// ErrTokenInvalid covers bad signatures, malformed tokens and missing claims.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired is returned once the token's expiry has passed.
	ErrTokenExpired = errors.New("token expired")
)

// Claims are the verified contents of a bearer token.
type Claims struct {
	Email     string
	Role      types.Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// UntrustedClaims are decoded without signature or expiry checks.
// They are only suitable for diagnostics and never identify a caller.
type UntrustedClaims struct {
	Subject   string
	Role      string
	ExpiresAt time.Time
}

type tokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 bearer tokens with a server-held secret.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// IssuerOption customises an Issuer.
type IssuerOption func(*Issuer)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) {
		i.now = now
	}
}

// NewIssuer constructs an Issuer. A non-positive ttl selects DefaultTokenTTL.
func NewIssuer(secret string, ttl time.Duration, opts ...IssuerOption) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	issuer := &Issuer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(issuer)
	}
	return issuer
}

// TTL returns the lifetime of issued tokens.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue signs a token for email carrying the role claim.
func (i *Issuer) Issue(email string, role types.Role) (string, error) {
	email = normalizeEmail(email)
	if email == "" {
		return "", errors.New("email is required")
	}

	now := i.now()
	claims := tokenClaims{
		Role: role.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Verify checks signature, issuer and expiry and returns the trusted claims.
// It is the only way to obtain claims that may be used for authorization.
func (i *Issuer) Verify(tokenString string) (Claims, error) {
	claims := tokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrTokenInvalid
	}
	if !token.Valid {
		return Claims{}, ErrTokenInvalid
	}

	email := normalizeEmail(claims.Subject)
	if email == "" {
		return Claims{}, ErrTokenInvalid
	}
	role, ok := types.ParseRole(claims.Role)
	if !ok {
		return Claims{}, ErrTokenInvalid
	}

	verified := Claims{Email: email, Role: role}
	if claims.IssuedAt != nil {
		verified.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		verified.ExpiresAt = claims.ExpiresAt.Time
	}
	return verified, nil
}

// Validate reports whether the token verifies and was issued to expectedEmail.
func (i *Issuer) Validate(tokenString, expectedEmail string) bool {
	claims, err := i.Verify(tokenString)
	if err != nil {
		return false
	}
	expected := normalizeEmail(expectedEmail)
	return expected != "" && claims.Email == expected
}

// Decode parses the token without verifying it.
func (i *Issuer) Decode(tokenString string) (UntrustedClaims, error) {
	claims := tokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, &claims); err != nil {
		return UntrustedClaims{}, ErrTokenInvalid
	}
	decoded := UntrustedClaims{Subject: claims.Subject, Role: claims.Role}
	if claims.ExpiresAt != nil {
		decoded.ExpiresAt = claims.ExpiresAt.Time
	}
	return decoded, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
