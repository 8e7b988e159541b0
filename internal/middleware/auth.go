package middleware

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"net/http"
	"slices"

	apierrors "github.com/lapolinarweb/contracts/internal/pkg/errors"
	"github.com/lapolinarweb/contracts/internal/pkg/response"
)

type contextKey string

const scopesKey contextKey = "scopes"

// ScopeFactory lets the caller initialize accounts.
const ScopeFactory = "factory"

// APIKeyHeader carries the caller's API key.
const APIKeyHeader = "X-API-Key"

var errUnknownAPIKey = errors.New("unknown api key")

// APIKeyValidator validates an API key and returns its scopes.
type APIKeyValidator func(ctx context.Context, apiKey string) (scopes []string, err error)

// StaticAPIKeys returns a validator granting scopes to each of keys.
func StaticAPIKeys(keys []string, scopes ...string) APIKeyValidator {
	digests := make([][sha256.Size]byte, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			digests = append(digests, sha256.Sum256([]byte(k)))
		}
	}
	return func(_ context.Context, apiKey string) ([]string, error) {
		got := sha256.Sum256([]byte(apiKey))
		match := 0
		for _, d := range digests {
			match |= subtle.ConstantTimeCompare(got[:], d[:])
		}
		if match == 0 {
			return nil, errUnknownAPIKey
		}
		return scopes, nil
	}
}

// APIKeyAuth attaches the scopes of a valid X-API-Key to the request
// context. Requests without a key pass through unscoped; requests with an
// unknown key are rejected.
func APIKeyAuth(validator APIKeyValidator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := r.Header.Get(APIKeyHeader)
			if apiKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			if validator == nil {
				response.Error(w, apierrors.ErrUnauthorized)
				return
			}

			scopes, err := validator(r.Context(), apiKey)
			if err != nil {
				response.Error(w, apierrors.ErrUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithScopes(r.Context(), scopes...)))
		})
	}
}

// WithScopes returns a context carrying scopes.
func WithScopes(ctx context.Context, scopes ...string) context.Context {
	return context.WithValue(ctx, scopesKey, scopes)
}

// HasScope reports whether the request context carries scope.
func HasScope(ctx context.Context, scope string) bool {
	scopes, _ := ctx.Value(scopesKey).([]string)
	return slices.Contains(scopes, scope)
}
