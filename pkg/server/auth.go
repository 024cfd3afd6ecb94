package server

import (
	"context"
	"net/http"

	"github.com/zevbilling/zevbilling/pkg/types"
)

// Authentication happens upstream (an identity-aware proxy terminates it); the
// server trusts the forwarded principal headers.
const (
	userIDHeader   = "X-User-ID"
	userRoleHeader = "X-User-Role"
)

type contextKey string

const principalContextKey contextKey = "principal"

// principal is the resolved caller of a request.
type principal struct {
	UserID string
	Role   string
}

func (p principal) Admin() bool {
	return p.Role == types.RoleAdmin
}

// authMiddleware resolves the caller from the trusted proxy headers and
// rejects requests that arrive without one.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := principal{
			UserID: r.Header.Get(userIDHeader),
			Role:   r.Header.Get(userRoleHeader),
		}
		if p.UserID == "" {
			writeJSONError(w, "unauthenticated", http.StatusUnauthorized)
			return
		}
		if p.Role == "" {
			p.Role = types.RoleUser
		}
		ctx := contextWithPrincipal(r.Context(), p)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAdmin wraps a handler so only admins reach it.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.getPrincipal(r).Admin() {
			writeJSONError(w, "forbidden", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

func contextWithPrincipal(ctx context.Context, p principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

func (s *Server) getPrincipal(r *http.Request) principal {
	if p, ok := r.Context().Value(principalContextKey).(principal); ok {
		return p
	}
	// we want a stack trace when a handler runs outside the middleware
	panic("no principal in context")
}
