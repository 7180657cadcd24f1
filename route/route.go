package route

import (
	"fmt"
	"strings"
	"time"

	"github.com/c360/unigate/errors"
)

// AuthRequirement is the route-level authorization demanded of the inbound
// caller before any backend call is attempted.
type AuthRequirement string

// Route-level authorization requirements
const (
	AuthRequirementNone      AuthRequirement = "none"
	AuthRequirementBearer    AuthRequirement = "bearer"
	AuthRequirementBasic     AuthRequirement = "basic"
	AuthRequirementDelegated AuthRequirement = "delegated"
)

// AuthKind selects the credential material injected into one outbound call.
type AuthKind string

// Outbound credential kinds
const (
	AuthKindNone      AuthKind = "none"
	AuthKindBasic     AuthKind = "basic"
	AuthKindBearer    AuthKind = "bearer"
	AuthKindDelegated AuthKind = "delegated"
)

// ResponseKind is the closed set of backend invocation variants. Adding a
// kind is a controlled extension point handled by explicit branching in the
// dispatcher.
type ResponseKind string

// Backend invocation variants
const (
	// ResponseKindHTTP issues a real HTTP call through the injected client
	ResponseKindHTTP ResponseKind = "HTTP"
	// ResponseKindStatic returns the configured static body with no network call
	ResponseKindStatic ResponseKind = "STATIC"
	// ResponseKindFireAndForget publishes an event to the downstream
	// messaging collaborator and synthesizes an empty success result
	ResponseKindFireAndForget ResponseKind = "FIRE_AND_FORGET"
)

// FieldMapping copies the value at Source (a dotted path into the keyed
// result map) to Target (a dotted path in the output tree).
type FieldMapping struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// TransformSpec describes how to reshape a JSON-like tree: either a
// declarative ordered field mapping or a reference to a named, sandboxed
// transform function with a fixed tree-in/tree-out contract. Exactly one of
// the two forms may be set.
type TransformSpec struct {
	Mappings []FieldMapping `json:"mappings,omitempty"`
	Script   string         `json:"script,omitempty"`
}

// Validate ensures the transform spec selects exactly one form
func (ts *TransformSpec) Validate() error {
	if len(ts.Mappings) > 0 && ts.Script != "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "TransformSpec", "Validate",
			"mappings and script are mutually exclusive")
	}
	if len(ts.Mappings) == 0 && ts.Script == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "TransformSpec", "Validate",
			"either mappings or script is required")
	}
	for i, m := range ts.Mappings {
		if m.Source == "" || m.Target == "" {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "TransformSpec", "Validate",
				fmt.Sprintf("mapping %d: source and target are required", i))
		}
	}
	return nil
}

// Param is one name→template pair. Query parameters are an ordered list so
// that resolution order is deterministic.
type Param struct {
	Name     string `json:"name"`
	Template string `json:"template"`
}

// ServiceDefinition is one backend call template.
//
// For FIRE_AND_FORGET services the Endpoint template resolves to the event
// subject instead of a URL.
type ServiceDefinition struct {
	// ID keys this service's entry in the execution result map. It must be
	// unique within the owning route's service list.
	ID string `json:"id"`

	// Endpoint is the URL template (or event subject template) with
	// ${name} placeholders
	Endpoint string `json:"endpoint"`

	// Method is the outbound HTTP method
	Method string `json:"httpMethod"`

	// Headers are header-name→template pairs
	Headers map[string]string `json:"headers,omitempty"`

	// QueryParams are ordered name→template pairs appended to the URL
	QueryParams []Param `json:"queryParams,omitempty"`

	// Body is the structured body template resolved with
	// template.ResolveTree (POST/PUT/PATCH only)
	Body any `json:"body,omitempty"`

	// ResponseKind selects the invocation variant
	ResponseKind ResponseKind `json:"responseKind"`

	// StaticResponse is returned verbatim when ResponseKind is STATIC
	StaticResponse any `json:"staticResponse,omitempty"`

	// AuthKind and AuthRef select the outbound credential
	AuthKind AuthKind `json:"authKind,omitempty"`
	AuthRef  string   `json:"authRef,omitempty"`

	// Transform is applied to the raw response before it is stored in the
	// result map
	Transform *TransformSpec `json:"transform,omitempty"`

	// TimeoutStr is the per-call timeout (default "5s")
	TimeoutStr string `json:"timeout,omitempty"`

	// Retries is the number of additional attempts for idempotent (GET)
	// calls on transient failure. Zero disables retry.
	Retries int `json:"retries,omitempty"`

	// timeout is the parsed duration (internal use)
	timeout time.Duration
}

// validMethods is the accepted HTTP method set for both routes and services
var validMethods = map[string]bool{
	"GET":    true,
	"POST":   true,
	"PUT":    true,
	"DELETE": true,
	"PATCH":  true,
}

var validAuthKinds = map[AuthKind]bool{
	AuthKindNone:      true,
	AuthKindBasic:     true,
	AuthKindBearer:    true,
	AuthKindDelegated: true,
}

var validResponseKinds = map[ResponseKind]bool{
	ResponseKindHTTP:          true,
	ResponseKindStatic:        true,
	ResponseKindFireAndForget: true,
}

// Validate ensures the service definition is well-formed and parses its
// timeout. Empty AuthKind and ResponseKind default to "none" and HTTP.
func (s *ServiceDefinition) Validate() error {
	if s.ID == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "ServiceDefinition", "Validate",
			"id cannot be empty")
	}

	if s.ResponseKind == "" {
		s.ResponseKind = ResponseKindHTTP
	}
	if !validResponseKinds[s.ResponseKind] {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "ServiceDefinition", "Validate",
			fmt.Sprintf("service %s: invalid responseKind: %s", s.ID, s.ResponseKind))
	}

	switch s.ResponseKind {
	case ResponseKindStatic:
		if s.StaticResponse == nil {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "ServiceDefinition", "Validate",
				fmt.Sprintf("service %s: STATIC requires staticResponse", s.ID))
		}
	default:
		if s.Endpoint == "" {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "ServiceDefinition", "Validate",
				fmt.Sprintf("service %s: endpoint cannot be empty", s.ID))
		}
	}

	if s.ResponseKind == ResponseKindHTTP {
		if s.Method == "" {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "ServiceDefinition", "Validate",
				fmt.Sprintf("service %s: httpMethod cannot be empty", s.ID))
		}
		if !validMethods[s.Method] {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "ServiceDefinition", "Validate",
				fmt.Sprintf("service %s: invalid HTTP method: %s", s.ID, s.Method))
		}
	}

	if s.AuthKind == "" {
		s.AuthKind = AuthKindNone
	}
	if !validAuthKinds[s.AuthKind] {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "ServiceDefinition", "Validate",
			fmt.Sprintf("service %s: invalid authKind: %s", s.ID, s.AuthKind))
	}
	if s.AuthKind != AuthKindNone && s.AuthRef == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "ServiceDefinition", "Validate",
			fmt.Sprintf("service %s: authKind %s requires authRef", s.ID, s.AuthKind))
	}

	if s.Transform != nil {
		if err := s.Transform.Validate(); err != nil {
			return errors.WrapInvalid(err, "ServiceDefinition", "Validate",
				fmt.Sprintf("service %s: invalid transform", s.ID))
		}
	}

	if s.Retries < 0 || s.Retries > 3 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "ServiceDefinition", "Validate",
			fmt.Sprintf("service %s: retries must be between 0 and 3", s.ID))
	}
	if s.Retries > 0 && s.Method != "GET" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "ServiceDefinition", "Validate",
			fmt.Sprintf("service %s: retries are only allowed for GET calls", s.ID))
	}

	// Parse per-call timeout
	if s.TimeoutStr == "" {
		s.timeout = 5 * time.Second
	} else {
		parsed, err := time.ParseDuration(s.TimeoutStr)
		if err != nil {
			return errors.WrapInvalid(err, "ServiceDefinition", "Validate",
				fmt.Sprintf("service %s: invalid timeout format: %s", s.ID, s.TimeoutStr))
		}
		s.timeout = parsed
	}
	if s.timeout < 100*time.Millisecond || s.timeout > 30*time.Second {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "ServiceDefinition", "Validate",
			fmt.Sprintf("service %s: timeout must be between 100ms and 30s", s.ID))
	}

	return nil
}

// Timeout returns the parsed per-call timeout
func (s *ServiceDefinition) Timeout() time.Duration {
	return s.timeout
}

// Route is one externally addressable endpoint mapping to an ordered list
// of backend call templates and a response shape.
type Route struct {
	ID string `json:"id"`

	// Path is the inbound path pattern. Segments starting with a colon
	// (":id") bind that segment's value into the request context.
	Path string `json:"path"`

	// Method is the inbound HTTP method
	Method string `json:"httpMethod"`

	// AuthRequirement gates the route before any backend call
	AuthRequirement AuthRequirement `json:"authRequirement,omitempty"`

	// Services are the backend calls fanned out for this route
	Services []ServiceDefinition `json:"services"`

	// RouteTransform reshapes the merged keyed result map into the final
	// response tree
	RouteTransform *TransformSpec `json:"routeTransform,omitempty"`

	// AdditionalPayload is a static mapping merged into every request
	// context under "payload"
	AdditionalPayload map[string]any `json:"additionalPayload,omitempty"`

	// Deleted marks the document as tombstoned; deleted routes are
	// excluded from snapshots
	Deleted bool `json:"deleted,omitempty"`

	// Version is the monotonic token set by the configuration store
	Version uint64 `json:"version,omitempty"`

	// DeadlineStr is the overall fan-out deadline for the route
	// (default "10s")
	DeadlineStr string `json:"deadline,omitempty"`

	// deadline is the parsed duration (internal use)
	deadline time.Duration
}

// Validate ensures the route and all its service definitions are
// well-formed. Service IDs must be unique within the route because they key
// the execution result map.
func (r *Route) Validate() error {
	if r.ID == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Route", "Validate",
			"id cannot be empty")
	}

	if r.Path == "" || !strings.HasPrefix(r.Path, "/") {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Route", "Validate",
			fmt.Sprintf("route %s: path must start with /", r.ID))
	}

	if r.Method == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Route", "Validate",
			fmt.Sprintf("route %s: httpMethod cannot be empty", r.ID))
	}
	if !validMethods[r.Method] {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Route", "Validate",
			fmt.Sprintf("route %s: invalid HTTP method: %s", r.ID, r.Method))
	}

	if r.AuthRequirement == "" {
		r.AuthRequirement = AuthRequirementNone
	}
	switch r.AuthRequirement {
	case AuthRequirementNone, AuthRequirementBearer, AuthRequirementBasic, AuthRequirementDelegated:
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Route", "Validate",
			fmt.Sprintf("route %s: invalid authRequirement: %s", r.ID, r.AuthRequirement))
	}

	if len(r.Services) == 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Route", "Validate",
			fmt.Sprintf("route %s: at least one service is required", r.ID))
	}

	seen := make(map[string]bool, len(r.Services))
	for i := range r.Services {
		svc := &r.Services[i]
		if err := svc.Validate(); err != nil {
			return errors.WrapInvalid(err, "Route", "Validate",
				fmt.Sprintf("route %s: invalid service at index %d", r.ID, i))
		}
		if seen[svc.ID] {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Route", "Validate",
				fmt.Sprintf("route %s: duplicate service id: %s", r.ID, svc.ID))
		}
		seen[svc.ID] = true
	}

	if r.RouteTransform != nil {
		if err := r.RouteTransform.Validate(); err != nil {
			return errors.WrapInvalid(err, "Route", "Validate",
				fmt.Sprintf("route %s: invalid routeTransform", r.ID))
		}
	}

	// Parse overall fan-out deadline
	if r.DeadlineStr == "" {
		r.deadline = 10 * time.Second
	} else {
		parsed, err := time.ParseDuration(r.DeadlineStr)
		if err != nil {
			return errors.WrapInvalid(err, "Route", "Validate",
				fmt.Sprintf("route %s: invalid deadline format: %s", r.ID, r.DeadlineStr))
		}
		r.deadline = parsed
	}
	if r.deadline < 100*time.Millisecond || r.deadline > 60*time.Second {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Route", "Validate",
			fmt.Sprintf("route %s: deadline must be between 100ms and 60s", r.ID))
	}

	return nil
}

// Deadline returns the parsed overall fan-out deadline
func (r *Route) Deadline() time.Duration {
	return r.deadline
}

// Key returns the (method, path) identity used for snapshot indexing
func (r *Route) Key() string {
	return r.Method + " " + r.Path
}
