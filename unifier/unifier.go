package unifier

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/c360/unigate/auth"
	"github.com/c360/unigate/dispatch"
	"github.com/c360/unigate/errors"
	"github.com/c360/unigate/metric"
	"github.com/c360/unigate/registry"
	"github.com/c360/unigate/route"
	"github.com/c360/unigate/transform"
)

// defaultMaxRequestSize caps the inbound body read when no limit is configured
const defaultMaxRequestSize = 4 * 1024 * 1024

// errBodyTooLarge marks an inbound body that exceeded the size guard
var errBodyTooLarge = stderrors.New("request body too large")

// Unifier coordinates a single request through its phases: match the route
// in the current registry snapshot, authorize the caller at the route
// level, fan out to the backends, apply the route-level transform, and
// serialize the unified body. Matching and authorization failures are
// terminal; dispatch and transform phases always produce a response,
// carrying per-service failures inside the body.
type Unifier struct {
	registry   *registry.Registry
	dispatcher *dispatch.Dispatcher
	pipeline   *transform.Pipeline
	authorizer RouteAuthorizer
	metrics    *metric.Metrics
	logger     *slog.Logger

	maxRequestSize int64
	scrapeHandler  http.Handler
}

// Option configures the unifier
type Option func(*Unifier)

// WithLogger sets a structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(u *Unifier) {
		if logger != nil {
			u.logger = logger
		}
	}
}

// WithMetrics sets the shared gateway metrics
func WithMetrics(m *metric.Metrics) Option {
	return func(u *Unifier) { u.metrics = m }
}

// WithMaxRequestSize caps the inbound request body in bytes
func WithMaxRequestSize(limit int64) Option {
	return func(u *Unifier) {
		if limit > 0 {
			u.maxRequestSize = limit
		}
	}
}

// WithAuthorizer replaces the default header-presence authorizer
func WithAuthorizer(authorizer RouteAuthorizer) Option {
	return func(u *Unifier) {
		if authorizer != nil {
			u.authorizer = authorizer
		}
	}
}

// WithScrapeHandler mounts a metrics scrape handler at GET /metrics
func WithScrapeHandler(handler http.Handler) Option {
	return func(u *Unifier) { u.scrapeHandler = handler }
}

// New creates a unifier over the given registry, dispatcher and pipeline
func New(reg *registry.Registry, dispatcher *dispatch.Dispatcher, pipeline *transform.Pipeline, opts ...Option) (*Unifier, error) {
	if reg == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Unifier", "New",
			"route registry is required")
	}
	if dispatcher == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Unifier", "New",
			"dispatcher is required")
	}
	if pipeline == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Unifier", "New",
			"transform pipeline is required")
	}

	u := &Unifier{
		registry:       reg,
		dispatcher:     dispatcher,
		pipeline:       pipeline,
		authorizer:     HeaderAuthorizer{},
		logger:         slog.Default(),
		maxRequestSize: defaultMaxRequestSize,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u, nil
}

// RegisterHandlers mounts the dynamic route handler and the administrative
// endpoints on the mux
func (u *Unifier) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("POST /reload", u.handleReload)
	mux.HandleFunc("GET /healthz", u.handleHealthz)
	if u.scrapeHandler != nil {
		mux.Handle("GET /metrics", u.scrapeHandler)
	}
	mux.HandleFunc("/", u.ServeHTTP)
}

// ServeHTTP handles one dynamic route request
func (u *Unifier) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := requestIDFor(r)
	w.Header().Set("X-Request-ID", requestID)

	routeID, status := u.handle(w, r, requestID)

	if u.metrics != nil {
		u.metrics.RequestsTotal.WithLabelValues(routeID, strconv.Itoa(status)).Inc()
		u.metrics.RequestDuration.WithLabelValues(routeID).Observe(time.Since(start).Seconds())
	}
}

// handle runs the request phases and returns the matched route ID and the
// response status for metrics
func (u *Unifier) handle(w http.ResponseWriter, r *http.Request, requestID string) (string, int) {
	defer r.Body.Close()

	// Matching. No route means no backend call is ever attempted.
	matched, params, ok := u.registry.Lookup(r.Method, r.URL.Path)
	if !ok {
		u.writeError(w, http.StatusNotFound, "route not found")
		return "unknown", http.StatusNotFound
	}

	identity := identityFor(r, requestID)

	// Authorizing, at the route level. Per-service credentials are a
	// separate concern handled during dispatch.
	if err := u.authorizer.Authorize(r.Context(), matched.AuthRequirement, r, identity); err != nil {
		u.logger.Debug("route authorization failed",
			"request_id", requestID,
			"route", matched.ID,
			"error", err)
		u.writeError(w, http.StatusUnauthorized, "authorization required")
		return matched.ID, http.StatusUnauthorized
	}

	reqCtx, err := u.buildRequestContext(r, matched, params, identity)
	if err != nil {
		status := httpStatusFor(err)
		if stderrors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		u.writeError(w, status, sanitize(err))
		return matched.ID, status
	}

	// Dispatching. Per-service failures are downgraded to error markers
	// inside the keyed result, never a request-level failure.
	result := u.dispatcher.Execute(r.Context(), matched, reqCtx)
	merged := result.MergedTree()

	// Transforming. Only a broken route-level transform is terminal,
	// because the final shape cannot be produced without it.
	body, err := u.pipeline.Apply(matched.RouteTransform, merged)
	if err != nil {
		u.logger.Error("route transform failed",
			"request_id", requestID,
			"route", matched.ID,
			"error", err)
		u.writeError(w, http.StatusInternalServerError, "response transformation failed")
		return matched.ID, http.StatusInternalServerError
	}

	if result.Partial() {
		u.logger.Info("request completed with partial results",
			"request_id", requestID,
			"route", matched.ID,
			"services", len(matched.Services))
	}

	u.writeJSON(w, http.StatusOK, body)
	return matched.ID, http.StatusOK
}

// buildRequestContext assembles the per-request resolution tree: parsed
// body, inbound headers, bound path parameters, query values, the route's
// additional payload and the caller identity
func (u *Unifier) buildRequestContext(r *http.Request, matched *route.Route, params map[string]string, identity auth.Identity) (*dispatch.RequestContext, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, u.maxRequestSize+1))
	if err != nil {
		return nil, errors.WrapInvalid(err, "Unifier", "buildRequestContext",
			"read request body")
	}
	if int64(len(data)) > u.maxRequestSize {
		return nil, errors.WrapInvalid(errBodyTooLarge, "Unifier", "buildRequestContext",
			fmt.Sprintf("limit is %d bytes", u.maxRequestSize))
	}

	var body any = map[string]any{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &body); err != nil {
			return nil, errors.WrapInvalid(err, "Unifier", "buildRequestContext",
				"parse request body")
		}
	}

	headers := make(map[string]any, len(r.Header))
	for name := range r.Header {
		headers[name] = r.Header.Get(name)
	}

	paramTree := make(map[string]any, len(params))
	for name, value := range params {
		paramTree[name] = value
	}

	query := make(map[string]any)
	for name, values := range r.URL.Query() {
		if len(values) > 0 {
			query[name] = values[0]
		}
	}

	tree := map[string]any{
		"body":    body,
		"headers": headers,
		"params":  paramTree,
		"query":   query,
		"identity": map[string]any{
			"request_id": identity.RequestID,
			"user":       identity.UserID,
			"org":        identity.OrgID,
		},
	}
	if len(matched.AdditionalPayload) > 0 {
		payload := make(map[string]any, len(matched.AdditionalPayload))
		for key, value := range matched.AdditionalPayload {
			payload[key] = value
		}
		tree["payload"] = payload
	}

	return &dispatch.RequestContext{Tree: tree, Identity: identity}, nil
}

// ReloadStatus is the body returned by the hot-reload operation
type ReloadStatus struct {
	Version uint64 `json:"version"`
	Routes  int    `json:"routes"`
}

// Reload refreshes the registry from the configuration store and returns
// the new snapshot version and route count
func (u *Unifier) Reload(ctx context.Context) (ReloadStatus, error) {
	snapshot, err := u.registry.Reload(ctx)
	if err != nil {
		return ReloadStatus{}, err
	}
	return ReloadStatus{Version: snapshot.Version, Routes: snapshot.Len()}, nil
}

func (u *Unifier) handleReload(w http.ResponseWriter, r *http.Request) {
	resp, err := u.Reload(r.Context())
	if err != nil {
		u.logger.Warn("reload rejected", "error", err)
		status := http.StatusUnprocessableEntity
		if !errors.IsInvalid(err) {
			status = http.StatusServiceUnavailable
		}
		u.writeError(w, status, sanitize(err))
		return
	}

	u.logger.Info("routes reloaded", "version", resp.Version, "routes", resp.Routes)
	u.writeJSON(w, http.StatusOK, resp)
}

func (u *Unifier) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	snapshot := u.registry.Current()
	u.writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"snapshot":       snapshot.Version,
		"routes":         snapshot.Len(),
		"store_revision": snapshot.StoreRevision,
		"pool":           u.dispatcher.PoolStats(),
	})
}

// httpStatusFor maps a classified error to a response status
func httpStatusFor(err error) int {
	switch {
	case stderrors.Is(err, errors.ErrRouteNotFound):
		return http.StatusNotFound
	case stderrors.Is(err, errors.ErrRouteAuthFailure):
		return http.StatusUnauthorized
	case errors.IsInvalid(err):
		return http.StatusBadRequest
	case errors.IsTransient(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// sanitize returns a client-safe message, never internal detail
func sanitize(err error) string {
	switch {
	case stderrors.Is(err, errors.ErrRouteNotFound):
		return "route not found"
	case stderrors.Is(err, errors.ErrRouteAuthFailure):
		return "authorization required"
	case stderrors.Is(err, errors.ErrReloadValidation):
		return "route validation failed"
	case errors.IsInvalid(err):
		return "invalid request"
	case errors.IsTransient(err):
		return "service temporarily unavailable"
	default:
		return "internal server error"
	}
}

func (u *Unifier) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		u.logger.Debug("response write failed", "error", err)
	}
}

func (u *Unifier) writeError(w http.ResponseWriter, status int, message string) {
	u.writeJSON(w, status, map[string]any{
		"error":  message,
		"status": status,
	})
}

// requestIDFor extracts the inbound request ID or generates a new one
func requestIDFor(r *http.Request) string {
	if id := r.Header.Get("X-Request-ID"); id != "" {
		return id
	}
	return uuid.NewString()
}

// identityFor builds the caller identity from the optional inbound
// identity headers
func identityFor(r *http.Request, requestID string) auth.Identity {
	return auth.Identity{
		RequestID: requestID,
		UserID:    r.Header.Get("X-User-ID"),
		OrgID:     r.Header.Get("X-Org-ID"),
	}
}
