package utils

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	TokenCookieName = "token"
	TokenTTL        = 24 * time.Hour
)

var (
	ErrMissingAuthHeader = errors.New("missing or malformed Authorization header")
	ErrMissingToken      = errors.New("authentication required")
	ErrInvalidToken      = errors.New("invalid or expired token")
)

// UserClaims is the identity claim issued at login and consumed by the
// auth middleware and the sync client.
type UserClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

func IssueToken(userID uint, username string, secret []byte, now time.Time) (string, error) {
	claims := &UserClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func ValidateToken(tokenString string, secret []byte) (*UserClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &UserClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*UserClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// UserIDFromClaims parses the numeric subject back into a user id.
func UserIDFromClaims(claims *UserClaims) (uint, error) {
	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad subject %q", ErrInvalidToken, claims.Subject)
	}
	return uint(id), nil
}

func ExtractTokenFromHeader(authHeader string) (string, error) {
	if authHeader == "" {
		return "", ErrMissingAuthHeader
	}
	if len(authHeader) < 7 || authHeader[:7] != "Bearer " {
		return "", ErrMissingAuthHeader
	}
	return strings.TrimSpace(authHeader[7:]), nil
}

// TokenFromRequest prefers the session cookie and falls back to the
// Authorization header.
func TokenFromRequest(r *http.Request) (string, error) {
	if c, err := r.Cookie(TokenCookieName); err == nil && c.Value != "" {
		return c.Value, nil
	}
	if r.Header.Get("Authorization") == "" {
		return "", ErrMissingToken
	}
	return ExtractTokenFromHeader(r.Header.Get("Authorization"))
}
