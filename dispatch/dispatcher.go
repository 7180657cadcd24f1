package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/c360/unigate/auth"
	"github.com/c360/unigate/errors"
	"github.com/c360/unigate/metric"
	"github.com/c360/unigate/pkg/retry"
	"github.com/c360/unigate/pkg/worker"
	"github.com/c360/unigate/route"
	"github.com/c360/unigate/template"
	"github.com/c360/unigate/transform"
)

// maxResponseSize caps how much of a backend response body is read
const maxResponseSize = 10 * 1024 * 1024

// RequestContext is the per-request scratch data consumed by template
// resolution and credential propagation. It is created per request by the
// façade and never shared or mutated across requests.
type RequestContext struct {
	// Tree is the resolution context: parsed inbound body under "body",
	// inbound headers under "headers", bound path parameters under
	// "params", query values under "query", the route's additional
	// payload under "payload" and identity fields under "identity".
	Tree map[string]any

	// Identity carries the caller identity for credential resolution
	Identity auth.Identity
}

// HTTPDoer is the HTTP client boundary. The concrete connection pool is an
// external collaborator; *http.Client satisfies this.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// EventPublisher is the downstream messaging boundary for FIRE_AND_FORGET
// services. natsclient.Client satisfies this.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Dispatcher executes a route's backend fan-out on a bounded worker pool
// shared across requests. Each service call is isolated: its own timeout,
// its own result key, its own error marker on failure.
type Dispatcher struct {
	pool       *worker.Pool[*task]
	httpClient HTTPDoer
	publisher  EventPublisher
	propagator *auth.Propagator
	pipeline   *transform.Pipeline
	metrics    *metric.Metrics
	logger     *slog.Logger

	poolRegistry *metric.MetricsRegistry
}

// task is one scheduled backend call. It carries its own request-scoped
// context because the pool's context spans the process, not the request.
type task struct {
	ctx     context.Context
	svc     *route.ServiceDefinition
	reqCtx  *RequestContext
	results chan<- keyedEntry
}

type keyedEntry struct {
	id    string
	entry ResultEntry
}

// Option configures the dispatcher
type Option func(*Dispatcher)

// WithHTTPClient sets the outbound HTTP client
func WithHTTPClient(client HTTPDoer) Option {
	return func(d *Dispatcher) { d.httpClient = client }
}

// WithEventPublisher sets the fire-and-forget publisher
func WithEventPublisher(publisher EventPublisher) Option {
	return func(d *Dispatcher) { d.publisher = publisher }
}

// WithMetrics sets the shared gateway metrics
func WithMetrics(m *metric.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithPoolMetrics registers the worker pool's own metrics under the
// "fanout" prefix
func WithPoolMetrics(registry *metric.MetricsRegistry) Option {
	return func(d *Dispatcher) { d.poolRegistry = registry }
}

// WithLogger sets a structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher creates a dispatcher running fan-out tasks on a pool of
// the given size. propagator and pipeline are required; the HTTP client
// defaults to http.DefaultClient.
func NewDispatcher(workers, queueSize int, propagator *auth.Propagator, pipeline *transform.Pipeline, opts ...Option) (*Dispatcher, error) {
	if propagator == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Dispatcher", "NewDispatcher",
			"auth propagator is required")
	}
	if pipeline == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Dispatcher", "NewDispatcher",
			"transform pipeline is required")
	}

	d := &Dispatcher{
		httpClient: http.DefaultClient,
		propagator: propagator,
		pipeline:   pipeline,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}

	var poolOpts []worker.Option[*task]
	if d.poolRegistry != nil {
		poolOpts = append(poolOpts, worker.WithMetricsRegistry[*task](d.poolRegistry, "fanout"))
	}
	d.pool = worker.NewPool(workers, queueSize, d.process, poolOpts...)
	return d, nil
}

// Start launches the worker pool
func (d *Dispatcher) Start(ctx context.Context) error {
	return d.pool.Start(ctx)
}

// Stop drains the worker pool
func (d *Dispatcher) Stop(timeout time.Duration) error {
	return d.pool.Stop(timeout)
}

// PoolStats exposes worker pool statistics for health reporting
func (d *Dispatcher) PoolStats() worker.PoolStats {
	return d.pool.Stats()
}

// Execute fans out every service definition of the route concurrently and
// joins on all of them, bounded by the route's overall deadline. Result
// order is irrelevant - entries are keyed by service ID. A failed or
// timed-out call yields an error entry for its key and never cancels
// sibling calls; calls still outstanding at the overall deadline are
// recorded as timeouts and abandoned to best-effort cancellation.
func (d *Dispatcher) Execute(ctx context.Context, r *route.Route, reqCtx *RequestContext) ExecutionResult {
	overallCtx, cancel := context.WithTimeout(ctx, r.Deadline())
	defer cancel()

	results := make(chan keyedEntry, len(r.Services))
	result := make(ExecutionResult, len(r.Services))

	submitted := 0
	for i := range r.Services {
		svc := &r.Services[i]
		t := &task{ctx: overallCtx, svc: svc, reqCtx: reqCtx, results: results}

		if err := d.pool.SubmitWait(overallCtx, t); err != nil {
			// Queue saturated past the deadline, or pool stopped
			result[svc.ID] = ResultEntry{Err: errors.WrapTransient(err, "Dispatcher", "Execute",
				"submit call for "+svc.ID)}
			continue
		}
		submitted++
	}

	joinResults(overallCtx, r.Services, results, result, submitted)

	if d.metrics != nil && result.Partial() {
		d.metrics.PartialResults.Inc()
	}
	return result
}

// joinResults receives keyed entries into result until all submitted calls
// have reported or the overall deadline fires. On deadline it first drains
// entries already delivered to the channel, so a call that completed before
// the deadline is never misreported as a timeout, then records timeout
// markers for the keys still outstanding.
func joinResults(ctx context.Context, services []route.ServiceDefinition, results <-chan keyedEntry, result ExecutionResult, submitted int) {
	received := 0
	for received < submitted {
		select {
		case ke := <-results:
			result[ke.id] = ke.entry
			received++
		case <-ctx.Done():
			for received < submitted {
				select {
				case ke := <-results:
					result[ke.id] = ke.entry
					received++
					continue
				default:
				}
				break
			}
			// The tasks still outstanding observe the cancelled context
			// and abort; their late writes land in the buffered channel
			// and are dropped with it.
			for i := range services {
				svc := &services[i]
				if _, ok := result[svc.ID]; !ok {
					result[svc.ID] = ResultEntry{Err: errors.WrapTransient(
						errors.ErrServiceTimeout, "Dispatcher", "Execute",
						"overall deadline elapsed for "+svc.ID)}
				}
			}
			return
		}
	}
}

// process runs one task on a pool worker. The pool context is ignored for
// call scoping - the task context carries the request's deadline.
func (d *Dispatcher) process(_ context.Context, t *task) error {
	start := time.Now()
	entry := d.invoke(t.ctx, t.svc, t.reqCtx)
	entry.Duration = time.Since(start)

	if d.metrics != nil {
		kind := string(t.svc.ResponseKind)
		status := "success"
		if entry.Failed() {
			status = "error"
		}
		d.metrics.FanoutCalls.WithLabelValues(kind, status).Inc()
		d.metrics.FanoutDuration.WithLabelValues(kind).Observe(entry.Duration.Seconds())
	}
	if entry.Failed() {
		d.logger.Debug("service call failed",
			"service", t.svc.ID,
			"kind", t.svc.ResponseKind,
			"error", entry.Err)
	}

	select {
	case t.results <- keyedEntry{id: t.svc.ID, entry: entry}:
	case <-t.ctx.Done():
		// Execute already recorded a timeout marker for this key
	}

	if entry.Failed() {
		return entry.Err
	}
	return nil
}

// invoke branches on the closed responseKind set and applies the
// per-service transform to the raw result. Running the transform here, not
// in the aggregate stage, keeps a slow or failing transform attributable
// to its own service.
func (d *Dispatcher) invoke(ctx context.Context, svc *route.ServiceDefinition, reqCtx *RequestContext) ResultEntry {
	if err := ctx.Err(); err != nil {
		return ResultEntry{Err: errors.WrapTransient(errors.ErrServiceTimeout, "Dispatcher", "invoke",
			"call for "+svc.ID+" cancelled before start")}
	}

	var raw any
	var err error
	switch svc.ResponseKind {
	case route.ResponseKindStatic:
		raw = svc.StaticResponse
	case route.ResponseKindFireAndForget:
		raw, err = d.publish(ctx, svc, reqCtx)
	default:
		raw, err = d.call(ctx, svc, reqCtx)
	}
	if err != nil {
		return ResultEntry{Err: err}
	}

	transformed, err := d.pipeline.Apply(svc.Transform, raw)
	if err != nil {
		return ResultEntry{Err: err}
	}
	return ResultEntry{Value: transformed}
}

// publish resolves the event subject and body and hands the event to the
// messaging collaborator. Success is synthesized after best-effort enqueue;
// delivery confirmation is not awaited.
func (d *Dispatcher) publish(ctx context.Context, svc *route.ServiceDefinition, reqCtx *RequestContext) (any, error) {
	if d.publisher == nil {
		return nil, errors.Wrap(errors.ErrEventPublish, "Dispatcher", "publish",
			"no event publisher configured for "+svc.ID)
	}

	subject, err := template.Resolve(svc.Endpoint, reqCtx.Tree)
	if err != nil || subject == "" {
		return nil, errors.Wrap(errors.ErrEventPublish, "Dispatcher", "publish",
			"unresolved subject template for "+svc.ID)
	}

	payload := reqCtx.Tree["body"]
	if svc.Body != nil {
		payload = template.ResolveTree(svc.Body, reqCtx.Tree)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Dispatcher", "publish",
			"marshal event payload for "+svc.ID)
	}

	if err := d.publisher.Publish(ctx, subject, data); err != nil {
		return nil, errors.Wrap(errors.ErrEventPublish, "Dispatcher", "publish",
			"enqueue event for "+svc.ID+": "+err.Error())
	}
	return map[string]any{"published": true, "subject": subject}, nil
}

// call issues one HTTP backend call with its own timeout
func (d *Dispatcher) call(ctx context.Context, svc *route.ServiceDefinition, reqCtx *RequestContext) (any, error) {
	callCtx, cancel := context.WithTimeout(ctx, svc.Timeout())
	defer cancel()

	req, err := d.buildRequest(callCtx, svc, reqCtx)
	if err != nil {
		return nil, err
	}

	var body any
	do := func() error {
		var innerErr error
		body, innerErr = d.roundTrip(req)
		return innerErr
	}

	if svc.Retries > 0 {
		err = retry.Do(callCtx, retry.Config{
			MaxAttempts:  svc.Retries + 1,
			InitialDelay: 50 * time.Millisecond,
			MaxDelay:     time.Second,
			Multiplier:   2.0,
			AddJitter:    true,
		}, do)
	} else {
		err = do()
	}
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) || callCtx.Err() != nil {
			return nil, errors.WrapTransient(errors.ErrServiceTimeout, "Dispatcher", "call",
				"call for "+svc.ID+" timed out")
		}
		return nil, err
	}
	return body, nil
}

// buildRequest resolves templates and credentials into the outbound request
func (d *Dispatcher) buildRequest(ctx context.Context, svc *route.ServiceDefinition, reqCtx *RequestContext) (*http.Request, error) {
	// Unresolved endpoint placeholders keep the lenient empty-string
	// substitution; URL validity is checked below either way
	endpoint, _ := template.Resolve(svc.Endpoint, reqCtx.Tree)
	target, err := url.Parse(endpoint)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, errors.WrapInvalid(errors.ErrServiceCallFailed, "Dispatcher", "buildRequest",
			fmt.Sprintf("invalid endpoint %q for %s", endpoint, svc.ID))
	}

	// Unresolved query parameters are dropped
	if len(svc.QueryParams) > 0 {
		query := target.Query()
		for _, param := range svc.QueryParams {
			value, err := template.Resolve(param.Template, reqCtx.Tree)
			if err != nil {
				continue
			}
			query.Set(param.Name, value)
		}
		target.RawQuery = query.Encode()
	}

	var bodyReader io.Reader
	if svc.Body != nil && svc.Method != http.MethodGet {
		resolved := template.ResolveTree(svc.Body, reqCtx.Tree)
		data, err := json.Marshal(resolved)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Dispatcher", "buildRequest",
				"marshal body for "+svc.ID)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, svc.Method, target.String(), bodyReader)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Dispatcher", "buildRequest",
			"build request for "+svc.ID)
	}
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if reqCtx.Identity.RequestID != "" {
		req.Header.Set("X-Request-ID", reqCtx.Identity.RequestID)
	}

	// Unresolved header templates are dropped
	for name, tmpl := range svc.Headers {
		value, err := template.Resolve(tmpl, reqCtx.Tree)
		if err != nil {
			continue
		}
		req.Header.Set(name, value)
	}

	// Credential failure is a hard error for this one call
	authHeaders, err := d.propagator.Attach(ctx, svc, reqCtx.Identity)
	if err != nil {
		return nil, err
	}
	for name, value := range authHeaders {
		req.Header.Set(name, value)
	}

	return req, nil
}

// roundTrip performs the call and decodes the response
func (d *Dispatcher) roundTrip(req *http.Request) (any, error) {
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, errors.WrapTransient(errors.ErrServiceCallFailed, "Dispatcher", "roundTrip",
			req.URL.Host+": "+err.Error())
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, errors.WrapTransient(errors.ErrServiceCallFailed, "Dispatcher", "roundTrip",
			"read response from "+req.URL.Host)
	}

	if resp.StatusCode >= 400 {
		return nil, errors.WrapTransient(errors.ErrServiceCallFailed, "Dispatcher", "roundTrip",
			fmt.Sprintf("%s returned status %d", req.URL.Host, resp.StatusCode))
	}

	return decodeBody(data), nil
}

// decodeBody parses a JSON response, falling back to the raw string for
// non-JSON backends
func decodeBody(data []byte) any {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return map[string]any{}
	}

	var tree any
	if err := json.Unmarshal([]byte(trimmed), &tree); err != nil {
		return trimmed
	}
	return tree
}
