// Package functions implements named remote callables: a JSON-over-HTTP
// request/response protocol authenticated with short-lived HS256 tokens.
//
// Request:  POST {base}/functions/{name}  {"data": <payload>}
// Response: 200 {"result": <value>}  or  4xx/5xx {"error": {"status", "message"}}
package functions

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer is the iss claim on every call token.
const Issuer = "impacthub"

const tokenTTL = time.Minute

// Error statuses.
const (
	StatusInvalidArgument = "invalid-argument"
	StatusUnauthenticated = "unauthenticated"
	StatusNotFound        = "not-found"
	StatusInternal        = "internal"
)

// Error is a callable failure as carried on the wire.
type Error struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (e *Error) Error() string { return e.Status + ": " + e.Message }

// Errorf builds an Error with the given status.
func Errorf(status, format string, args ...any) *Error {
	return &Error{Status: status, Message: fmt.Sprintf(format, args...)}
}

func httpStatus(status string) int {
	switch status {
	case StatusInvalidArgument:
		return http.StatusBadRequest
	case StatusUnauthenticated:
		return http.StatusUnauthorized
	case StatusNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Claims identifies the function a token was minted for.
type Claims struct {
	jwt.RegisteredClaims
	Function string `json:"fn"`
}

// Sign mints a call token for fn.
func Sign(secret []byte, fn string, now time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
		Function: fn,
	})
	s, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign call token: %w", err)
	}
	return s, nil
}

// Verify checks a call token's signature, expiry and issuer, and that it
// was minted for fn.
func Verify(secret []byte, tokenString, fn string) error {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("wrong signing method %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithIssuer(Issuer), jwt.WithExpirationRequired())
	if err != nil {
		return fmt.Errorf("failed to parse call token: %w", err)
	}
	if !token.Valid {
		return errors.New("call token is invalid")
	}
	if claims.Function != fn {
		return fmt.Errorf("call token minted for %q, not %q", claims.Function, fn)
	}
	return nil
}
