// Package auth guards the sync trigger endpoint. A request is allowed either
// by the scheduler's shared secret or by an interactive portal session whose
// role is owner or manager.
package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/christmasair/ops-sync/internal/db"
)

// SecretHeader carries the scheduler's shared secret.
const SecretHeader = "X-Sync-Secret"

// allowedRoles may trigger a sync interactively.
var allowedRoles = map[string]bool{
	"owner":   true,
	"manager": true,
}

// RoleSource resolves a session token to a portal role. An empty role with a
// nil error means the session is unknown or expired.
type RoleSource interface {
	SessionRole(ctx context.Context, token string) (string, error)
}

// Middleware rejects requests that carry neither a valid shared secret nor
// an owner/manager session.
func Middleware(sharedSecret string, roles RoleSource) func(http.Handler) http.Handler {
	log := zap.L().With(zap.String("component", "auth"))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if sharedSecret != "" {
				got := r.Header.Get(SecretHeader)
				if got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(sharedSecret)) == 1 {
					next.ServeHTTP(w, r)
					return
				}
			}

			if token := sessionToken(r); token != "" && roles != nil {
				role, err := roles.SessionRole(r.Context(), token)
				if err != nil {
					log.Warn("session role lookup failed", zap.Error(err))
					writeJSONError(w, http.StatusInternalServerError, "session lookup failed")
					return
				}
				if allowedRoles[role] {
					next.ServeHTTP(w, r)
					return
				}
			}

			writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		})
	}
}

// sessionToken pulls the portal session from a bearer header or cookie.
func sessionToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if c, err := r.Cookie("portal_session"); err == nil {
		return c.Value
	}
	return ""
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// PgRoleSource resolves session roles from the portal's session tables.
type PgRoleSource struct {
	pool db.Pool
}

// NewPgRoleSource creates a RoleSource backed by the given pool.
func NewPgRoleSource(pool db.Pool) *PgRoleSource {
	return &PgRoleSource{pool: pool}
}

// SessionRole returns the role attached to an unexpired portal session.
func (p *PgRoleSource) SessionRole(ctx context.Context, token string) (string, error) {
	var role string
	err := p.pool.QueryRow(ctx,
		`SELECT u.role
		 FROM portal.sessions s
		 JOIN portal.users u ON u.id = s.user_id
		 WHERE s.token = $1 AND s.expires_at > now()`,
		token,
	).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrap(err, "auth: session role lookup")
	}
	return role, nil
}
