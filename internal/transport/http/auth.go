package httptransport

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	dErrors "chartforge/pkg/domain-errors"
	"chartforge/pkg/platform/httputil"
)

// TokenValidator checks bearer tokens on destructive endpoints.
type TokenValidator interface {
	ValidateToken(tokenString string) (subject string, err error)
}

// HMACValidator validates HS256 tokens signed with a shared secret.
type HMACValidator struct {
	secret []byte
}

// NewHMACValidator constructs a validator for the given signing secret.
func NewHMACValidator(secret string) (*HMACValidator, error) {
	if secret == "" {
		return nil, fmt.Errorf("signing secret is required")
	}
	return &HMACValidator{secret: []byte(secret)}, nil
}

func (v *HMACValidator) ValidateToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return "", fmt.Errorf("token is not valid")
	}
	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", fmt.Errorf("token has no subject")
	}
	return subject, nil
}

// RequireAuth gates a route on a valid bearer token.
func RequireAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			const bearerPrefix = "Bearer "
			if !strings.HasPrefix(header, bearerPrefix) {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "bearer token required"))
				return
			}

			subject, err := validator.ValidateToken(strings.TrimPrefix(header, bearerPrefix))
			if err != nil {
				if logger != nil {
					logger.Warn("rejected bearer token", "path", r.URL.Path, "error", err)
				}
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid bearer token"))
				return
			}

			r.Header.Set("X-Operator", subject)
			next.ServeHTTP(w, r)
		})
	}
}
