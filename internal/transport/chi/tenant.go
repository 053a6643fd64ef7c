package chi

import (
	"context"
	"net/http"

	"github.com/lorehound/lorehound/internal/domain"
)

type tenantKey struct{}

// TenantMiddleware resolves the request's tenant: the X-User header wins,
// then the user query parameter, then the default tenant. The resolved
// tenant is placed in the request context for handlers.
func TenantMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get("X-User")
			if raw == "" {
				raw = r.URL.Query().Get("user")
			}
			ctx := context.WithValue(r.Context(), tenantKey{}, domain.TenantOrDefault(raw))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TenantFromContext extracts the resolved tenant. Falls back to the default
// tenant when the middleware did not run (tests, internal calls).
func TenantFromContext(ctx context.Context) domain.Tenant {
	if t, ok := ctx.Value(tenantKey{}).(domain.Tenant); ok {
		return t
	}
	return domain.DefaultTenant
}
