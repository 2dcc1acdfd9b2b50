package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"vidtube/internal/models"
)

type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

var (
	// ErrTokenExpired means the signature checked out but the token has
	// lapsed. Callers use this to branch into the refresh flow.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid covers everything else: bad signature, wrong kind,
	// malformed token.
	ErrTokenInvalid = errors.New("token invalid")
)

// Claims carries account identity inside signed tokens. Access tokens embed
// the full identity; refresh tokens carry only the user ID.
type Claims struct {
	UserID   string    `json:"userId"`
	Email    string    `json:"email,omitempty"`
	Username string    `json:"username,omitempty"`
	FullName string    `json:"fullName,omitempty"`
	Kind     TokenKind `json:"kind"`
	jwt.RegisteredClaims
}

// TokenService mints and verifies access and refresh tokens. The two kinds
// are signed with distinct secrets so a compromise of one cannot forge the
// other.
type TokenService struct {
	accessSecret    []byte
	refreshSecret   []byte
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
}

func NewTokenService(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *TokenService {
	return &TokenService{
		accessSecret:    []byte(accessSecret),
		refreshSecret:   []byte(refreshSecret),
		accessTokenTTL:  accessTTL,
		refreshTokenTTL: refreshTTL,
	}
}

func (s *TokenService) IssueAccess(user *models.User) (string, time.Time, error) {
	expiry := time.Now().Add(s.accessTokenTTL)
	claims := Claims{
		UserID:   user.ID,
		Email:    user.Email,
		Username: user.Username,
		FullName: user.FullName,
		Kind:     TokenKindAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(expiry),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.accessSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing access token: %w", err)
	}
	return signed, expiry, nil
}

func (s *TokenService) IssueRefresh(user *models.User) (string, time.Time, error) {
	expiry := time.Now().Add(s.refreshTokenTTL)
	claims := Claims{
		UserID: user.ID,
		Kind:   TokenKindRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(expiry),
			// Unique per mint: iat has second precision, and rotation
			// depends on the new token differing from the one it replaces.
			ID: uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.refreshSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing refresh token: %w", err)
	}
	return signed, expiry, nil
}

// Verify parses tokenString against the secret for the expected kind and
// returns its claims. Expired tokens return ErrTokenExpired; anything else
// that fails returns ErrTokenInvalid.
func (s *TokenService) Verify(tokenString string, kind TokenKind) (*Claims, error) {
	secret := s.accessSecret
	if kind == TokenKindRefresh {
		secret = s.refreshSecret
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	if !token.Valid || claims.Kind != kind || claims.UserID == "" {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

func (s *TokenService) AccessTokenTTL() time.Duration  { return s.accessTokenTTL }
func (s *TokenService) RefreshTokenTTL() time.Duration { return s.refreshTokenTTL }
