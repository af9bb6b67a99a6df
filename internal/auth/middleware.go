package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// contextKey is unexported so only this package can read or write the
// identity stored in a request context.
type contextKey string

const identityKey contextKey = "identity"

// Access guard failure messages.
const (
	msgNoHeader     = "Key not found. Please Login First"
	msgNoToken      = "Token not found. Please Login First"
	msgBadToken     = "Unauthorized. Key expired"
	msgAdminOnly    = "Only admin can access this resource"
	msgNoIdentity   = "Failed to authenticate. Please login"
	authHeader      = "Authorization"
	bearerScheme    = "Bearer"
	bearerSeparator = " "
)

// RequireAuth verifies "Authorization: Bearer <token>" against the access
// token service and stores the Identity in the request context. Expired and
// invalid tokens are both answered with 401 "Unauthorized. Key expired".
// No automatic refresh happens here.
func RequireAuth(access *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get(authHeader)
			if header == "" {
				writeGuardError(w, http.StatusUnauthorized, msgNoHeader)
				return
			}

			token := tokenFromHeader(header)
			if token == "" {
				writeGuardError(w, http.StatusUnauthorized, msgNoToken)
				return
			}

			id, err := access.Verify(token)
			if err != nil {
				writeGuardError(w, http.StatusUnauthorized, msgBadToken)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// RequireAdmin must run after RequireAuth. Non-admins get 403.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		if !ok {
			writeGuardError(w, http.StatusUnauthorized, msgNoIdentity)
			return
		}
		if !id.IsAdmin() {
			writeGuardError(w, http.StatusForbidden, msgAdminOnly)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the identity attached by RequireAuth.
// ok is false for anonymous requests.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok && id.UserID != ""
}

// tokenFromHeader returns the token of a Bearer header, "Bearer abc" -> "abc".
// The scheme is matched case-insensitively. Any other scheme, or a header
// without a second part, yields "".
func tokenFromHeader(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), bearerSeparator)
	if !ok || !strings.EqualFold(scheme, bearerScheme) {
		return ""
	}
	return strings.TrimSpace(token)
}

// writeGuardError writes the same {success:false, message} envelope as the
// handler package.
func writeGuardError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"message": message,
	})
}
