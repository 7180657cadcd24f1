package unifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/unigate/auth"
	"github.com/c360/unigate/configstore"
	"github.com/c360/unigate/dispatch"
	"github.com/c360/unigate/registry"
	"github.com/c360/unigate/route"
	"github.com/c360/unigate/transform"
)

// countingClient counts outbound calls so tests can assert that terminal
// failures never reach a backend
type countingClient struct {
	calls atomic.Int32
	inner *http.Client
}

func (c *countingClient) Do(req *http.Request) (*http.Response, error) {
	c.calls.Add(1)
	return c.inner.Do(req)
}

type fixture struct {
	unifier *Unifier
	store   *configstore.MemoryStore
	client  *countingClient
}

func newFixture(t *testing.T, routes ...route.Route) *fixture {
	t.Helper()

	store := configstore.NewMemoryStore()
	for _, r := range routes {
		store.Put(r)
	}

	reg, err := registry.New(store, nil, nil)
	require.NoError(t, err)
	_, err = reg.Reload(context.Background())
	require.NoError(t, err)

	client := &countingClient{inner: &http.Client{Timeout: 5 * time.Second}}
	propagator := auth.NewPropagator()
	pipeline := transform.NewPipeline(transform.NewScriptRegistry())

	dispatcher, err := dispatch.NewDispatcher(4, 16, propagator, pipeline,
		dispatch.WithHTTPClient(client))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, dispatcher.Start(ctx))
	t.Cleanup(func() {
		_ = dispatcher.Stop(time.Second)
		cancel()
	})

	u, err := New(reg, dispatcher, pipeline)
	require.NoError(t, err)

	return &fixture{unifier: u, store: store, client: client}
}

func (f *fixture) do(t *testing.T, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for name, value := range headers {
		req.Header.Set(name, value)
	}

	rec := httptest.NewRecorder()
	mux := http.NewServeMux()
	f.unifier.RegisterHandlers(mux)
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var tree map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tree))
	return tree
}

func TestBasicAggregation(t *testing.T) {
	srvA := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"x":1}`))
	}))
	t.Cleanup(srvA.Close)
	srvB := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"y":2}`))
	}))
	t.Cleanup(srvB.Close)

	f := newFixture(t, route.Route{
		ID: "agg", Path: "/agg", Method: "GET",
		Services: []route.ServiceDefinition{
			{ID: "a", Endpoint: srvA.URL, Method: "GET"},
			{ID: "b", Endpoint: srvB.URL, Method: "GET"},
		},
		RouteTransform: &route.TransformSpec{Mappings: []route.FieldMapping{
			{Source: "a.x", Target: "out.x"},
			{Source: "b.y", Target: "out.y"},
		}},
	})

	rec := f.do(t, "GET", "/agg", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	tree := decodeJSON(t, rec)
	assert.Equal(t, map[string]any{"x": float64(1), "y": float64(2)}, tree["out"])
}

func TestPartialFailureStaysSuccessful(t *testing.T) {
	srvA := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"x":1}`))
	}))
	t.Cleanup(srvA.Close)
	srvB := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	t.Cleanup(srvB.Close)

	f := newFixture(t, route.Route{
		ID: "agg", Path: "/agg", Method: "GET",
		Services: []route.ServiceDefinition{
			{ID: "a", Endpoint: srvA.URL, Method: "GET"},
			{ID: "b", Endpoint: srvB.URL, Method: "GET", TimeoutStr: "150ms"},
		},
		RouteTransform: &route.TransformSpec{Mappings: []route.FieldMapping{
			{Source: "a.x", Target: "out.x"},
			{Source: "b.y", Target: "out.y"},
		}},
	})

	rec := f.do(t, "GET", "/agg", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	tree := decodeJSON(t, rec)
	assert.Equal(t, map[string]any{"x": float64(1), "y": nil}, tree["out"])
}

func TestUnknownRouteMakesNoBackendCalls(t *testing.T) {
	f := newFixture(t, route.Route{
		ID: "agg", Path: "/agg", Method: "GET",
		Services: []route.ServiceDefinition{
			{ID: "a", Endpoint: "http://localhost:1/never", Method: "GET"},
		},
	})

	rec := f.do(t, "GET", "/nope", "", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, int32(0), f.client.calls.Load(), "no outbound call may be attempted")
	tree := decodeJSON(t, rec)
	assert.Equal(t, "route not found", tree["error"])
}

func TestRouteAuthFailureMakesNoBackendCalls(t *testing.T) {
	f := newFixture(t, route.Route{
		ID: "locked", Path: "/locked", Method: "GET",
		AuthRequirement: route.AuthRequirementBearer,
		Services: []route.ServiceDefinition{
			{ID: "a", Endpoint: "http://localhost:1/never", Method: "GET"},
		},
	})

	rec := f.do(t, "GET", "/locked", "", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, int32(0), f.client.calls.Load())
}

func TestRouteAuthBearerAccepted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(srv.Close)

	f := newFixture(t, route.Route{
		ID: "locked", Path: "/locked", Method: "GET",
		AuthRequirement: route.AuthRequirementBearer,
		Services: []route.ServiceDefinition{
			{ID: "a", Endpoint: srv.URL, Method: "GET"},
		},
	})

	rec := f.do(t, "GET", "/locked", "", map[string]string{
		"Authorization": "Bearer caller-token",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	tree := decodeJSON(t, rec)
	assert.Equal(t, map[string]any{"ok": true}, tree["a"])
}

func TestPathParamsFlowIntoTemplates(t *testing.T) {
	var gotPath atomic.Pointer[string]
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := r.URL.Path
		gotPath.Store(&p)
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)

	f := newFixture(t, route.Route{
		ID: "user", Path: "/users/:id", Method: "GET",
		Services: []route.ServiceDefinition{
			{ID: "a", Endpoint: srv.URL + "/v2/users/${params.id}", Method: "GET"},
		},
	})

	rec := f.do(t, "GET", "/users/1234", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, gotPath.Load())
	assert.Equal(t, "/v2/users/1234", *gotPath.Load())
}

func TestAdditionalPayloadAvailableToTemplates(t *testing.T) {
	var gotHeader atomic.Pointer[string]
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("X-Channel")
		gotHeader.Store(&h)
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)

	f := newFixture(t, route.Route{
		ID: "chan", Path: "/chan", Method: "GET",
		AdditionalPayload: map[string]any{"channel": "mobile"},
		Services: []route.ServiceDefinition{
			{ID: "a", Endpoint: srv.URL, Method: "GET",
				Headers: map[string]string{"X-Channel": "${payload.channel}"}},
		},
	})

	rec := f.do(t, "GET", "/chan", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, gotHeader.Load())
	assert.Equal(t, "mobile", *gotHeader.Load())
}

func TestRequestIDEchoedAndGenerated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)

	f := newFixture(t, route.Route{
		ID: "echo", Path: "/echo", Method: "GET",
		Services: []route.ServiceDefinition{
			{ID: "a", Endpoint: srv.URL, Method: "GET"},
		},
	})

	rec := f.do(t, "GET", "/echo", "", map[string]string{"X-Request-ID": "req-42"})
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))

	rec = f.do(t, "GET", "/echo", "", nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestBodySizeLimit(t *testing.T) {
	f := newFixture(t, route.Route{
		ID: "post", Path: "/post", Method: "POST",
		Services: []route.ServiceDefinition{
			{ID: "a", ResponseKind: route.ResponseKindStatic,
				StaticResponse: map[string]any{"ok": true}},
		},
	})
	f.unifier.maxRequestSize = 16

	rec := f.do(t, "POST", "/post", `{"data":"`+strings.Repeat("x", 64)+`"}`, nil)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, int32(0), f.client.calls.Load())
}

func TestMalformedBodyRejected(t *testing.T) {
	f := newFixture(t, route.Route{
		ID: "post", Path: "/post", Method: "POST",
		Services: []route.ServiceDefinition{
			{ID: "a", ResponseKind: route.ResponseKindStatic,
				StaticResponse: map[string]any{"ok": true}},
		},
	})

	rec := f.do(t, "POST", "/post", `{not json`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReloadEndpoint(t *testing.T) {
	f := newFixture(t, route.Route{
		ID: "r1", Path: "/one", Method: "GET",
		Services: []route.ServiceDefinition{
			{ID: "a", ResponseKind: route.ResponseKindStatic,
				StaticResponse: map[string]any{"n": 1}},
		},
	})

	rec := f.do(t, "POST", "/reload", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	tree := decodeJSON(t, rec)
	assert.Equal(t, float64(2), tree["version"], "fixture reload plus endpoint reload")
	assert.Equal(t, float64(1), tree["routes"])

	// Tombstoning a route and reloading frees its path
	require.True(t, f.store.MarkDeleted("r1"))
	rec = f.do(t, "POST", "/reload", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	tree = decodeJSON(t, rec)
	assert.Equal(t, float64(3), tree["version"])
	assert.Equal(t, float64(0), tree["routes"])

	rec = f.do(t, "GET", "/one", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReloadRejectsInvalidSetKeepsServing(t *testing.T) {
	f := newFixture(t, route.Route{
		ID: "good", Path: "/good", Method: "GET",
		Services: []route.ServiceDefinition{
			{ID: "a", ResponseKind: route.ResponseKindStatic,
				StaticResponse: map[string]any{"ok": true}},
		},
	})

	// A second document claiming the same (method, path) poisons the set
	f.store.Put(route.Route{
		ID: "dup", Path: "/good", Method: "GET",
		Services: []route.ServiceDefinition{
			{ID: "a", ResponseKind: route.ResponseKindStatic,
				StaticResponse: map[string]any{"ok": false}},
		},
	})

	rec := f.do(t, "POST", "/reload", "", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	// Previous snapshot still serves
	rec = f.do(t, "GET", "/good", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, route.Route{
		ID: "r1", Path: "/one", Method: "GET",
		Services: []route.ServiceDefinition{
			{ID: "a", ResponseKind: route.ResponseKindStatic,
				StaticResponse: map[string]any{"n": 1}},
		},
	})

	rec := f.do(t, "GET", "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	tree := decodeJSON(t, rec)
	assert.Equal(t, "ok", tree["status"])
	assert.Equal(t, float64(1), tree["routes"])
}
