package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

const OrganizationIDHeader = "X-Organization-Id"

var errMissingTenant = errors.New("organization not resolved")

// TenantResolver returns the organization the request acts for.
type TenantResolver func(r *http.Request) (string, error)

func OrganizationIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyOrganizationID).(string)
	return v
}

func WithOrganizationID(ctx context.Context, id string) context.Context {
	if fields, ok := ctx.Value(ctxKeyAccessLog).(*accessLogFields); ok {
		fields.organizationID = id
	}
	return context.WithValue(ctx, ctxKeyOrganizationID, id)
}

// HeaderTenant trusts X-Organization-Id as set by an authenticating gateway.
func HeaderTenant(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.Header.Get(OrganizationIDHeader))
	if id == "" {
		return "", errMissingTenant
	}
	return id, nil
}

// FirstTenant tries each resolver in order and returns the first success.
func FirstTenant(resolvers ...TenantResolver) TenantResolver {
	return func(r *http.Request) (string, error) {
		err := errMissingTenant
		for _, resolve := range resolvers {
			id, e := resolve(r)
			if e == nil && id != "" {
				return id, nil
			}
			if e != nil {
				err = e
			}
		}
		return "", err
	}
}

// WithTenant rejects requests whose organization cannot be resolved.
func WithTenant(resolve TenantResolver) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := resolve(r)
			if err != nil || id == "" {
				WriteError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithOrganizationID(r.Context(), id)))
		})
	}
}
