// Package tenant carries the tenant domain of a request through its context.
package tenant

import (
	"context"
	"net/http"
	"strings"
)

// DefaultDomain is the shared base tenant every other tenant overlays.
const DefaultDomain = ""

// Header is the HTTP header carrying the tenant domain.
const Header = "X-Tenant-Domain"

type domainKey struct{}

// WithDomain returns a copy of ctx scoped to domain.
func WithDomain(ctx context.Context, domain string) context.Context {
	return context.WithValue(ctx, domainKey{}, Normalize(domain))
}

// Domain returns the tenant domain of ctx, or DefaultDomain when none is set.
func Domain(ctx context.Context) string {
	if ctx == nil {
		return DefaultDomain
	}
	if d, ok := ctx.Value(domainKey{}).(string); ok {
		return d
	}
	return DefaultDomain
}

// IsDefault reports whether domain is the default tenant.
func IsDefault(domain string) bool {
	return domain == DefaultDomain
}

// Normalize trims and lower-cases a domain name.
func Normalize(domain string) string {
	return strings.ToLower(strings.TrimSpace(domain))
}

// FromRequest scopes the request context to the domain named in the Header.
func FromRequest(r *http.Request) context.Context {
	return WithDomain(r.Context(), r.Header.Get(Header))
}

// Label renders a domain for logs and metric labels.
func Label(domain string) string {
	if domain == DefaultDomain {
		return "default"
	}
	return domain
}
