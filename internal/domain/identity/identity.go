// Package identity carries the caller identity through request contexts.
package identity

import (
	"context"
	"net/http"
	"strings"
)

// Request headers set by the fronting identity provider.
const (
	HeaderUserID = "X-User-ID"
	HeaderRole   = "X-User-Role"
)

// Identity is the authenticated caller.
type Identity struct {
	UserID string
	Role   string
}

// Anonymous reports whether no user id is present.
func (i Identity) Anonymous() bool { return i.UserID == "" }

type ctxKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored in ctx, or the anonymous identity.
func FromContext(ctx context.Context) Identity {
	id, _ := ctx.Value(ctxKey{}).(Identity)
	return id
}

// FromRequest reads the identity headers.
func FromRequest(r *http.Request) Identity {
	return Identity{
		UserID: strings.TrimSpace(r.Header.Get(HeaderUserID)),
		Role:   strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderRole))),
	}
}
