package unifier

import (
	"context"
	"net/http"
	"strings"

	"github.com/c360/unigate/auth"
	"github.com/c360/unigate/errors"
	"github.com/c360/unigate/route"
)

// RouteAuthorizer enforces a route's authRequirement against the inbound
// request before any backend call is attempted. Credential verification
// against an identity provider is an external concern; implementations
// plug in via WithAuthorizer.
type RouteAuthorizer interface {
	Authorize(ctx context.Context, requirement route.AuthRequirement, r *http.Request, identity auth.Identity) error
}

// RouteAuthorizerFunc adapts a function to the RouteAuthorizer interface
type RouteAuthorizerFunc func(ctx context.Context, requirement route.AuthRequirement, r *http.Request, identity auth.Identity) error

// Authorize calls the wrapped function
func (f RouteAuthorizerFunc) Authorize(ctx context.Context, requirement route.AuthRequirement, r *http.Request, identity auth.Identity) error {
	return f(ctx, requirement, r, identity)
}

// HeaderAuthorizer is the default authorizer. It checks that the inbound
// request carries well-formed credential material of the required shape:
// a Bearer token for bearer routes, a decodable Basic header for basic
// routes, and a Bearer token plus a user identity for delegated routes.
type HeaderAuthorizer struct{}

// Authorize checks credential presence for the given requirement
func (HeaderAuthorizer) Authorize(_ context.Context, requirement route.AuthRequirement, r *http.Request, identity auth.Identity) error {
	switch requirement {
	case "", route.AuthRequirementNone:
		return nil

	case route.AuthRequirementBearer:
		if bearerToken(r) == "" {
			return errors.Wrap(errors.ErrRouteAuthFailure, "HeaderAuthorizer", "Authorize",
				"missing bearer token")
		}
		return nil

	case route.AuthRequirementBasic:
		username, _, ok := r.BasicAuth()
		if !ok || username == "" {
			return errors.Wrap(errors.ErrRouteAuthFailure, "HeaderAuthorizer", "Authorize",
				"missing or malformed basic credentials")
		}
		return nil

	case route.AuthRequirementDelegated:
		if bearerToken(r) == "" {
			return errors.Wrap(errors.ErrRouteAuthFailure, "HeaderAuthorizer", "Authorize",
				"missing bearer token for delegated route")
		}
		if identity.UserID == "" {
			return errors.Wrap(errors.ErrRouteAuthFailure, "HeaderAuthorizer", "Authorize",
				"missing user identity for delegated route")
		}
		return nil

	default:
		return errors.WrapInvalid(errors.ErrRouteAuthFailure, "HeaderAuthorizer", "Authorize",
			"unknown auth requirement "+string(requirement))
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
