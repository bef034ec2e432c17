package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/spartak030506-hash/shop-backend/internal/domain"
	apperrors "github.com/spartak030506-hash/shop-backend/pkg/errors"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// Claims represents the JWT claims carried by both token kinds. The Type
// field discriminates access from refresh tokens so neither can stand in
// for the other.
type Claims struct {
	UserID uuid.UUID `json:"-"`
	Email  string    `json:"email,omitempty"`
	Role   string    `json:"role,omitempty"`
	Type   string    `json:"type"`
	jwt.RegisteredClaims
}

// TokenManager issues and validates access/refresh token pairs. The two
// token kinds are signed with independent secrets so a leaked refresh
// secret cannot forge access tokens and vice versa.
type TokenManager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
}

// NewTokenManager creates a TokenManager.
func NewTokenManager(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration, issuer string) *TokenManager {
	return &TokenManager{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		issuer:        issuer,
	}
}

// AccessTTL returns the configured access token lifetime.
func (m *TokenManager) AccessTTL() time.Duration { return m.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (m *TokenManager) RefreshTTL() time.Duration { return m.refreshTTL }

// GenerateAccessToken creates a signed access token for the user.
func (m *TokenManager) GenerateAccessToken(user *domain.User) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: user.Email,
		Role:  user.Role,
		Type:  tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    m.issuer,
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.accessSecret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// GenerateRefreshToken creates a signed refresh token for the user. Refresh
// tokens carry only the subject, no email or role, since their sole purpose
// is redemption.
func (m *TokenManager) GenerateRefreshToken(user *domain.User) (string, error) {
	now := time.Now()
	claims := Claims{
		Type: tokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    m.issuer,
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.refreshTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.refreshSecret)
	if err != nil {
		return "", fmt.Errorf("sign refresh token: %w", err)
	}
	return signed, nil
}

// GeneratePair issues a fresh access/refresh pair for the user.
func (m *TokenManager) GeneratePair(user *domain.User) (*domain.TokenPair, error) {
	access, err := m.GenerateAccessToken(user)
	if err != nil {
		return nil, err
	}
	refresh, err := m.GenerateRefreshToken(user)
	if err != nil {
		return nil, err
	}
	return &domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int64(m.accessTTL.Seconds()),
	}, nil
}

// ValidateAccessToken parses and validates an access token.
func (m *TokenManager) ValidateAccessToken(tokenString string) (*Claims, error) {
	return m.validate(tokenString, tokenTypeAccess, m.accessSecret)
}

// ValidateRefreshToken parses and validates a refresh token.
func (m *TokenManager) ValidateRefreshToken(tokenString string) (*Claims, error) {
	return m.validate(tokenString, tokenTypeRefresh, m.refreshSecret)
}

func (m *TokenManager) validate(tokenString, wantType string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, apperrors.Unauthorized("invalid or expired token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, apperrors.Unauthorized("invalid token claims")
	}

	if claims.Type != wantType {
		return nil, apperrors.Unauthorized("invalid token type")
	}

	// The subject is untrusted input until proven a well-formed UUID. A
	// missing, null or malformed subject is a client error, never a panic.
	if claims.Subject == "" {
		return nil, apperrors.Unauthorized("token missing subject")
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, apperrors.Unauthorized("invalid token subject")
	}
	claims.UserID = userID

	return claims, nil
}

// HashToken returns the SHA-256 hex digest of a raw token. The digest, not
// the token itself, is what the refresh session store persists.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
