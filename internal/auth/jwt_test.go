package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spartak030506-hash/shop-backend/internal/domain"
)

const (
	testAccessSecret  = "test-access-secret-with-enough-length"
	testRefreshSecret = "test-refresh-secret-with-enough-length"
)

func newTestManager() *TokenManager {
	return NewTokenManager(testAccessSecret, testRefreshSecret, 15*time.Minute, 7*24*time.Hour, "shop-backend")
}

func testUser() *domain.User {
	return &domain.User{
		ID:    uuid.New(),
		Email: "alice@example.com",
		Role:  domain.RoleCustomer,
	}
}

func TestGenerateAndValidateAccessToken(t *testing.T) {
	m := newTestManager()
	user := testUser()

	token, err := m.GenerateAccessToken(user)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := m.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, user.Email, claims.Email)
	assert.Equal(t, user.Role, claims.Role)
	assert.Equal(t, "shop-backend", claims.Issuer)
	assert.NotEmpty(t, claims.ID)
}

func TestGenerateAndValidateRefreshToken(t *testing.T) {
	m := newTestManager()
	user := testUser()

	token, err := m.GenerateRefreshToken(user)
	require.NoError(t, err)

	claims, err := m.ValidateRefreshToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Empty(t, claims.Email)
	assert.Empty(t, claims.Role)
}

func TestValidate_RejectsWrongTokenType(t *testing.T) {
	m := newTestManager()
	user := testUser()

	access, err := m.GenerateAccessToken(user)
	require.NoError(t, err)
	refresh, err := m.GenerateRefreshToken(user)
	require.NoError(t, err)

	_, err = m.ValidateRefreshToken(access)
	assert.Error(t, err)

	_, err = m.ValidateAccessToken(refresh)
	assert.Error(t, err)
}

func TestValidate_RejectsWrongSecret(t *testing.T) {
	m := newTestManager()
	other := NewTokenManager("another-access-secret-entirely-here", "another-refresh-secret-entirely-her", 15*time.Minute, 7*24*time.Hour, "shop-backend")
	user := testUser()

	token, err := m.GenerateAccessToken(user)
	require.NoError(t, err)

	_, err = other.ValidateAccessToken(token)
	assert.Error(t, err)
}

func TestValidate_RejectsExpiredToken(t *testing.T) {
	m := NewTokenManager(testAccessSecret, testRefreshSecret, -time.Minute, -time.Minute, "shop-backend")
	user := testUser()

	token, err := m.GenerateAccessToken(user)
	require.NoError(t, err)

	_, err = newTestManager().ValidateAccessToken(token)
	assert.Error(t, err)
}

func TestValidate_RejectsMalformedToken(t *testing.T) {
	m := newTestManager()

	for _, tok := range []string{"", "not-a-jwt", "a.b.c"} {
		_, err := m.ValidateAccessToken(tok)
		assert.Error(t, err)
	}
}

// Tokens with an absent or garbage subject must yield a controlled error,
// not a panic deeper in the request path.
func TestValidate_RejectsBadSubject(t *testing.T) {
	m := newTestManager()
	now := time.Now()

	sign := func(subject string) string {
		claims := Claims{
			Type: tokenTypeAccess,
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   subject,
				Issuer:    "shop-backend",
				ID:        uuid.New().String(),
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
			},
		}
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		signed, err := token.SignedString([]byte(testAccessSecret))
		require.NoError(t, err)
		return signed
	}

	for _, subject := range []string{"", "null", "not-a-uuid", "12345"} {
		_, err := m.ValidateAccessToken(sign(subject))
		assert.Error(t, err, "subject %q", subject)
	}
}

func TestValidate_RejectsUnsignedAlgorithm(t *testing.T) {
	m := newTestManager()

	claims := Claims{
		Type: tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = m.ValidateAccessToken(signed)
	assert.Error(t, err)
}

func TestGeneratePair(t *testing.T) {
	m := newTestManager()
	user := testUser()

	pair, err := m.GeneratePair(user)
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)
	assert.Equal(t, "bearer", pair.TokenType)
	assert.Equal(t, int64(900), pair.ExpiresIn)
}

func TestHashToken(t *testing.T) {
	h1 := HashToken("some-token")
	h2 := HashToken("some-token")
	h3 := HashToken("other-token")

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 64)
	assert.NotContains(t, h1, "some-token")
}
