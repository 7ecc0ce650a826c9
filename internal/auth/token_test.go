package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/eduaventuras/apiserver/types"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = strings.Repeat("x", 32)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newTestIssuer(clock *fakeClock) *Issuer {
	return NewIssuer(testSecret, time.Hour, WithClock(clock.Now))
}

func TestIssueAndVerify(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	issuer := newTestIssuer(clock)

	token, err := issuer.Issue(" Ana@Example.com ", types.RoleTeacher)
	require.NoError(t, err)

	claims, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", claims.Email)
	assert.Equal(t, types.RoleTeacher, claims.Role)
	assert.True(t, clock.now.Equal(claims.IssuedAt))
	assert.True(t, clock.now.Add(time.Hour).Equal(claims.ExpiresAt))
}

func TestValidateExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	issuer := newTestIssuer(clock)

	token, err := issuer.Issue("ana@example.com", types.RoleStudent)
	require.NoError(t, err)
	assert.True(t, issuer.Validate(token, "ana@example.com"))

	clock.now = clock.now.Add(59 * time.Minute)
	assert.True(t, issuer.Validate(token, "ana@example.com"))

	clock.now = clock.now.Add(time.Minute)
	assert.False(t, issuer.Validate(token, "ana@example.com"))

	_, err = issuer.Verify(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestValidateWrongEmail(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	issuer := newTestIssuer(clock)

	token, err := issuer.Issue("ana@example.com", types.RoleAdmin)
	require.NoError(t, err)

	assert.False(t, issuer.Validate(token, "bob@example.com"))
	assert.False(t, issuer.Validate(token, ""))
	assert.True(t, issuer.Validate(token, "ANA@example.com"))
}

func TestVerifyRejectsForeignTokens(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	issuer := newTestIssuer(clock)
	other := NewIssuer(strings.Repeat("y", 32), time.Hour, WithClock(clock.Now))

	foreign, err := other.Issue("ana@example.com", types.RoleAdmin)
	require.NoError(t, err)

	_, err = issuer.Verify(foreign)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = issuer.Verify("not.a.token")
	assert.ErrorIs(t, err, ErrTokenInvalid)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, tokenClaims{
		Role: "ADMIN",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   "ana@example.com",
			ExpiresAt: jwt.NewNumericDate(clock.now.Add(time.Hour)),
		},
	})
	none, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = issuer.Verify(none)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyRejectsUnknownRole(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	issuer := newTestIssuer(clock)

	token, err := issuer.Issue("ana@example.com", types.Role("ROLE_ADMIN"))
	require.NoError(t, err)

	_, err = issuer.Verify(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestDecodeIsUntrusted(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	issuer := newTestIssuer(clock)
	token, err := issuer.Issue("ana@example.com", types.RoleStudent)
	require.NoError(t, err)

	clock.now = clock.now.Add(2 * time.Hour)
	decoded, err := issuer.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", decoded.Subject)
	assert.Equal(t, "STUDENT", decoded.Role)
	assert.False(t, issuer.Validate(token, decoded.Subject))

	_, err = issuer.Decode("garbage")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestIssueRequiresEmail(t *testing.T) {
	issuer := NewIssuer(testSecret, 0)
	assert.Equal(t, DefaultTokenTTL, issuer.TTL())

	_, err := issuer.Issue("  ", types.RoleStudent)
	assert.Error(t, err)
}
