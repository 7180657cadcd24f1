package auth

import (
	"context"
	"encoding/base64"
	"log/slog"
	"time"

	"github.com/c360/unigate/errors"
	"github.com/c360/unigate/pkg/cache"
	"github.com/c360/unigate/route"
)

// Identity carries the inbound caller identity consumed by credential
// resolution. All fields are optional; the token source decides what it
// requires.
type Identity struct {
	RequestID string
	UserID    string
	OrgID     string
}

// Token is one resolved credential. ExpiresIn of zero means the source did
// not report an expiry and the propagator's default cache TTL applies.
type Token struct {
	Value     string
	ExpiresIn time.Duration
}

// TokenSource is the external collaborator that resolves bearer and
// delegated tokens. Token minting is out of the gateway's hands - the
// source is injected, the propagator only caches and attaches.
type TokenSource interface {
	Token(ctx context.Context, kind route.AuthKind, authRef string, identity Identity) (Token, error)
}

// BasicCredential is one configured username/password pair
type BasicCredential struct {
	Username string
	Password string
}

// Propagator resolves and injects outbound Authorization headers according
// to each service definition's authKind.
type Propagator struct {
	tokens TokenSource
	basic  map[string]BasicCredential
	cache  *cache.TTL[string]
	logger *slog.Logger
}

// Option configures the propagator
type Option func(*Propagator)

// WithTokenSource sets the bearer/delegated token collaborator
func WithTokenSource(source TokenSource) Option {
	return func(p *Propagator) { p.tokens = source }
}

// WithBasicCredentials sets the configured credential pairs keyed by authRef
func WithBasicCredentials(creds map[string]BasicCredential) Option {
	return func(p *Propagator) { p.basic = creds }
}

// WithLogger sets a structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(p *Propagator) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPropagator creates a propagator. Resolved tokens are cached for their
// reported expiry, or one minute when the source reports none.
func NewPropagator(opts ...Option) *Propagator {
	p := &Propagator{
		basic:  map[string]BasicCredential{},
		cache:  cache.New[string](time.Minute, time.Minute),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Close releases the token cache
func (p *Propagator) Close() {
	p.cache.Close()
}

// Attach resolves the credential for one service definition and returns the
// header additions for its outbound call. A missing required credential is
// an error for that single call only; the dispatcher records it as that
// service's error marker.
func (p *Propagator) Attach(ctx context.Context, svc *route.ServiceDefinition, identity Identity) (map[string]string, error) {
	switch svc.AuthKind {
	case route.AuthKindNone, "":
		return nil, nil

	case route.AuthKindBasic:
		cred, ok := p.basic[svc.AuthRef]
		if !ok {
			return nil, errors.Wrap(errors.ErrCredentialMissing, "Propagator", "Attach",
				"no basic credential configured for "+svc.AuthRef)
		}
		raw := base64.StdEncoding.EncodeToString([]byte(cred.Username + ":" + cred.Password))
		return map[string]string{"Authorization": "Basic " + raw}, nil

	case route.AuthKindBearer, route.AuthKindDelegated:
		token, err := p.resolveToken(ctx, svc.AuthKind, svc.AuthRef, identity)
		if err != nil {
			return nil, err
		}
		return map[string]string{"Authorization": "Bearer " + token}, nil

	default:
		// Unreachable for validated routes
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Propagator", "Attach",
			"unknown authKind "+string(svc.AuthKind))
	}
}

// resolveToken consults the cache, then the token source. Bearer tokens are
// service credentials cached per authRef; delegated tokens act on behalf of
// the caller and are cached per (authRef, user, org).
func (p *Propagator) resolveToken(ctx context.Context, kind route.AuthKind, authRef string, identity Identity) (string, error) {
	if p.tokens == nil {
		return "", errors.Wrap(errors.ErrCredentialMissing, "Propagator", "resolveToken",
			"no token source configured")
	}

	key := cacheKey(kind, authRef, identity)
	if token, ok := p.cache.Get(key); ok {
		return token, nil
	}

	token, err := p.tokens.Token(ctx, kind, authRef, identity)
	if err != nil {
		return "", errors.Wrap(errors.ErrCredentialMissing, "Propagator", "resolveToken",
			"token source for "+authRef+": "+err.Error())
	}
	if token.Value == "" {
		return "", errors.Wrap(errors.ErrCredentialMissing, "Propagator", "resolveToken",
			"token source returned empty token for "+authRef)
	}

	if token.ExpiresIn > 0 {
		p.cache.SetWithTTL(key, token.Value, token.ExpiresIn)
	} else {
		p.cache.Set(key, token.Value)
	}
	return token.Value, nil
}

func cacheKey(kind route.AuthKind, authRef string, identity Identity) string {
	if kind == route.AuthKindDelegated {
		return string(kind) + "|" + authRef + "|" + identity.UserID + "|" + identity.OrgID
	}
	return string(kind) + "|" + authRef
}
