package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/rpattn/recordport/internal/auth"
)

const (
	organizationHeader = "X-Organization-Id"
	actorHeader        = "X-Actor"
)

// OrganizationScopeMiddleware reads the organization and actor headers, when
// present, into the request context. Handlers enforce the scope against the
// organization each request names; the actor feeds audit stamping.
func OrganizationScopeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if raw := strings.TrimSpace(r.Header.Get(organizationHeader)); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				http.Error(w, "invalid organization header", http.StatusBadRequest)
				return
			}
			ctx = auth.ContextWithOrganizationID(ctx, id)
		}
		if actor := strings.TrimSpace(r.Header.Get(actorHeader)); actor != "" {
			ctx = auth.ContextWithActor(ctx, actor)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
