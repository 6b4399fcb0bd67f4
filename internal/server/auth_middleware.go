package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/skourtis/boomtown/internal/domain"
	"github.com/skourtis/boomtown/internal/modules/auth"
)

type contextKey string

const (
	ctxUser   contextKey = "user"
	ctxClaims contextKey = "claims"
)

// currentUser returns the authenticated user from the request context.
func currentUser(r *http.Request) *auth.User {
	u, _ := r.Context().Value(ctxUser).(*auth.User)
	return u
}

// currentClaims returns the token claims from the request context.
func currentClaims(r *http.Request) *auth.Claims {
	c, _ := r.Context().Value(ctxClaims).(*auth.Claims)
	return c
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	// Websocket clients cannot set headers from browsers; accept a query
	// parameter there.
	return r.URL.Query().Get("token")
}

// requireAuth validates the bearer token and attaches the user to the
// request context.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			s.writeError(w, domain.E(domain.KindUnauthenticated, "missing bearer token"))
			return
		}
		user, claims, err := s.authService.Authenticate(token)
		if err != nil {
			s.writeError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), ctxUser, user)
		ctx = context.WithValue(ctx, ctxClaims, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRole allows only the listed roles through. Master admin always
// passes.
func (s *Server) requireRole(roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u := currentUser(r)
			if u == nil {
				s.writeError(w, domain.E(domain.KindUnauthenticated, "authentication required"))
				return
			}
			if u.Role == auth.RoleMasterAdmin {
				next.ServeHTTP(w, r)
				return
			}
			for _, role := range roles {
				if u.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			s.writeError(w, domain.E(domain.KindForbidden, "insufficient role"))
		})
	}
}

// requirePage checks page-level access for the authenticated user.
func (s *Server) requirePage(page string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u := currentUser(r)
			if u == nil {
				s.writeError(w, domain.E(domain.KindUnauthenticated, "authentication required"))
				return
			}
			ok, err := s.authzService.CanAccess(u, page)
			if err != nil {
				s.writeError(w, err)
				return
			}
			if !ok {
				s.writeError(w, domain.E(domain.KindForbidden, "page not accessible"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// userKey keys authenticated rate limits by user id, falling back to IP for
// requests that failed authentication later in the chain.
func userKey(r *http.Request) string {
	if u := currentUser(r); u != nil {
		return u.ID
	}
	return clientIP(r)
}
