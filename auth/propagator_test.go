package auth

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/c360/unigate/errors"
	"github.com/c360/unigate/route"
)

// fakeTokenSource counts calls and returns canned tokens
type fakeTokenSource struct {
	calls  atomic.Int64
	token  Token
	err    error
	lastID Identity
}

func (f *fakeTokenSource) Token(_ context.Context, _ route.AuthKind, _ string, identity Identity) (Token, error) {
	f.calls.Add(1)
	f.lastID = identity
	return f.token, f.err
}

func svcWithAuth(kind route.AuthKind, ref string) *route.ServiceDefinition {
	return &route.ServiceDefinition{ID: "svc", AuthKind: kind, AuthRef: ref}
}

func TestAttachNone(t *testing.T) {
	p := NewPropagator()
	defer p.Close()

	headers, err := p.Attach(context.Background(), svcWithAuth(route.AuthKindNone, ""), Identity{})
	require.NoError(t, err)
	assert.Empty(t, headers)
}

func TestAttachBasic(t *testing.T) {
	p := NewPropagator(WithBasicCredentials(map[string]BasicCredential{
		"orders-svc": {Username: "gw", Password: "s3cret"},
	}))
	defer p.Close()

	headers, err := p.Attach(context.Background(), svcWithAuth(route.AuthKindBasic, "orders-svc"), Identity{})
	require.NoError(t, err)

	// base64("gw:s3cret")
	assert.Equal(t, "Basic Z3c6czNjcmV0", headers["Authorization"])
}

func TestAttachBasicMissingCredential(t *testing.T) {
	p := NewPropagator()
	defer p.Close()

	_, err := p.Attach(context.Background(), svcWithAuth(route.AuthKindBasic, "unknown"), Identity{})
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, pkgerrors.ErrCredentialMissing))
}

func TestAttachBearer(t *testing.T) {
	source := &fakeTokenSource{token: Token{Value: "tok-123"}}
	p := NewPropagator(WithTokenSource(source))
	defer p.Close()

	headers, err := p.Attach(context.Background(), svcWithAuth(route.AuthKindBearer, "orders-svc"), Identity{UserID: "u-1"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-123", headers["Authorization"])
}

func TestAttachBearerNoSource(t *testing.T) {
	p := NewPropagator()
	defer p.Close()

	_, err := p.Attach(context.Background(), svcWithAuth(route.AuthKindBearer, "orders-svc"), Identity{})
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, pkgerrors.ErrCredentialMissing))
}

func TestAttachBearerEmptyToken(t *testing.T) {
	source := &fakeTokenSource{token: Token{Value: ""}}
	p := NewPropagator(WithTokenSource(source))
	defer p.Close()

	_, err := p.Attach(context.Background(), svcWithAuth(route.AuthKindBearer, "orders-svc"), Identity{})
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, pkgerrors.ErrCredentialMissing))
}

func TestBearerTokensCachedPerAuthRef(t *testing.T) {
	source := &fakeTokenSource{token: Token{Value: "tok-123"}}
	p := NewPropagator(WithTokenSource(source))
	defer p.Close()

	svc := svcWithAuth(route.AuthKindBearer, "orders-svc")
	for i := 0; i < 5; i++ {
		_, err := p.Attach(context.Background(), svc, Identity{UserID: "u-1"})
		require.NoError(t, err)
	}
	// Bearer tokens are service credentials: identity does not split the
	// cache
	_, err := p.Attach(context.Background(), svc, Identity{UserID: "u-2"})
	require.NoError(t, err)

	assert.Equal(t, int64(1), source.calls.Load())
}

func TestDelegatedTokensCachedPerIdentity(t *testing.T) {
	source := &fakeTokenSource{token: Token{Value: "tok-123"}}
	p := NewPropagator(WithTokenSource(source))
	defer p.Close()

	svc := svcWithAuth(route.AuthKindDelegated, "orders-svc")

	_, err := p.Attach(context.Background(), svc, Identity{UserID: "u-1", OrgID: "o-1"})
	require.NoError(t, err)
	_, err = p.Attach(context.Background(), svc, Identity{UserID: "u-1", OrgID: "o-1"})
	require.NoError(t, err)
	_, err = p.Attach(context.Background(), svc, Identity{UserID: "u-2", OrgID: "o-1"})
	require.NoError(t, err)

	assert.Equal(t, int64(2), source.calls.Load())
}

func TestTokenSourceExpiryHonored(t *testing.T) {
	source := &fakeTokenSource{token: Token{Value: "tok-123", ExpiresIn: 10 * time.Millisecond}}
	p := NewPropagator(WithTokenSource(source))
	defer p.Close()

	svc := svcWithAuth(route.AuthKindBearer, "orders-svc")

	_, err := p.Attach(context.Background(), svc, Identity{})
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	_, err = p.Attach(context.Background(), svc, Identity{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), source.calls.Load())
}

func TestTokenSourceFailure(t *testing.T) {
	source := &fakeTokenSource{err: stderrors.New("sts unreachable")}
	p := NewPropagator(WithTokenSource(source))
	defer p.Close()

	_, err := p.Attach(context.Background(), svcWithAuth(route.AuthKindBearer, "orders-svc"), Identity{})
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, pkgerrors.ErrCredentialMissing))
}
