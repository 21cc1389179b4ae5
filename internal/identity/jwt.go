package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tuapuikia/dispatch/internal/domain"
)

// JWTConfig holds token issuance settings.
type JWTConfig struct {
	Secret               string
	Issuer               string
	AccessTokenDuration  time.Duration
	RefreshTokenDuration time.Duration
}

// accessClaims are the claims carried by access tokens. Email and role ride
// along so the middleware never needs a database round trip.
type accessClaims struct {
	jwt.RegisteredClaims
	Email string      `json:"email"`
	Role  domain.Role `json:"role"`
}

// JWTAuthenticator issues HMAC-signed access tokens and opaque rotating
// refresh tokens.
type JWTAuthenticator struct {
	config JWTConfig
	secret []byte
	repo   Repository
}

// NewJWTAuthenticator creates the authenticator. The signing secret is
// required.
func NewJWTAuthenticator(config JWTConfig, repo Repository) (*JWTAuthenticator, error) {
	if config.Secret == "" {
		return nil, errors.New("jwt authenticator: secret is required")
	}
	if config.Issuer == "" {
		config.Issuer = "dispatch"
	}
	if config.AccessTokenDuration == 0 {
		config.AccessTokenDuration = 15 * time.Minute
	}
	if config.RefreshTokenDuration == 0 {
		config.RefreshTokenDuration = 30 * 24 * time.Hour
	}

	return &JWTAuthenticator{
		config: config,
		secret: []byte(config.Secret),
		repo:   repo,
	}, nil
}

// GenerateTokens issues an access/refresh pair for the user.
func (a *JWTAuthenticator) GenerateTokens(ctx context.Context, user *domain.User) (*TokenPair, error) {
	now := time.Now().UTC()

	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    a.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.config.AccessTokenDuration)),
			ID:        uuid.NewString(),
		},
		Email: user.Email,
		Role:  user.Role,
	}

	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refreshToken, err := generateRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	if err := a.repo.SaveRefreshToken(ctx, &domain.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: hashToken(refreshToken),
		ExpiresAt: now.Add(a.config.RefreshTokenDuration),
	}); err != nil {
		return nil, fmt.Errorf("save refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(a.config.AccessTokenDuration.Seconds()),
	}, nil
}

// ValidateAccessToken parses and verifies an access token.
func (a *JWTAuthenticator) ValidateAccessToken(_ context.Context, token string) (string, string, domain.Role, error) {
	var claims accessClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", "", "", ErrInvalidToken
	}

	return claims.Subject, claims.Email, claims.Role, nil
}

// RefreshTokens rotates a refresh token: the presented token is consumed
// and a fresh pair is issued.
func (a *JWTAuthenticator) RefreshTokens(ctx context.Context, refreshToken string) (*TokenPair, error) {
	hash := hashToken(refreshToken)

	stored, err := a.repo.GetRefreshToken(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("get refresh token: %w", err)
	}

	if time.Now().UTC().After(stored.ExpiresAt) {
		_ = a.repo.DeleteRefreshToken(ctx, hash)
		return nil, ErrInvalidToken
	}

	user, err := a.repo.GetUserByID(ctx, stored.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// Account deleted since the token was issued
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	// Rotate: the old token stops working the moment the new pair exists.
	if err := a.repo.DeleteRefreshToken(ctx, hash); err != nil {
		return nil, fmt.Errorf("delete refresh token: %w", err)
	}

	return a.GenerateTokens(ctx, user)
}

// RevokeRefreshToken deletes the token. Revoking an unknown token is a
// no-op.
func (a *JWTAuthenticator) RevokeRefreshToken(ctx context.Context, refreshToken string) error {
	err := a.repo.DeleteRefreshToken(ctx, hashToken(refreshToken))
	if err != nil && !errors.Is(err, ErrInvalidToken) {
		return err
	}
	return nil
}

func generateRefreshToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
