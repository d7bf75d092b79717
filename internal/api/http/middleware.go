package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"dairy-credit-ledger/internal/config"
	"dairy-credit-ledger/internal/logger"
)

type contextKey int

const actorKey contextKey = iota

// ActorFromContext returns the authenticated actor id, or nil on public routes.
func ActorFromContext(ctx context.Context) *int64 {
	id, ok := ctx.Value(actorKey).(int64)
	if !ok {
		return nil
	}
	return &id
}

// authenticate validates the bearer token for every route that is not
// public and stores the actor id in the request context.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := ""
		if current := mux.CurrentRoute(r); current != nil {
			route = current.GetName()
		}
		if config.GetSecurityLevel(route) == config.SecurityPublic {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("Authorization")
		if token == "" {
			writeErrorMessage(w, http.StatusUnauthorized, "UNAUTHENTICATED", "authorization token is not provided")
			return
		}
		// Remove Bearer prefix if present
		if len(token) > 7 && strings.ToUpper(token[0:7]) == "BEARER " {
			token = token[7:]
		}

		claims, err := s.tokens.ValidateToken(token)
		if err != nil {
			logger.Debug("Rejected token", "route", route, "error", err)
			writeErrorMessage(w, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid token: "+err.Error())
			return
		}

		ctx := context.WithValue(r.Context(), actorKey, claims.ActorID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
