package transform

import (
	"github.com/c360/unigate/errors"
	"github.com/c360/unigate/route"
)

// Pipeline applies transform specs to JSON-like trees. The same mechanism
// serves both stages: per-service transforms run inside the dispatcher
// against one raw response, the route-level transform runs in the façade
// against the merged keyed result map.
type Pipeline struct {
	scripts *ScriptRegistry
}

// NewPipeline creates a pipeline. scripts may be nil when no scripted
// transforms are configured; declarative mappings always work.
func NewPipeline(scripts *ScriptRegistry) *Pipeline {
	return &Pipeline{scripts: scripts}
}

// Apply runs one transform spec against an input tree. A nil spec is the
// identity transform.
//
// Declarative mappings tolerate missing source paths by writing an
// explicit null marker at the target - a failed sibling service must show
// up as null in the unified response, not abort it. Script failures are
// returned wrapping ErrTransformFailed; for the route-level stage that is
// terminal for the request because the final shape cannot be produced.
func (p *Pipeline) Apply(spec *route.TransformSpec, input any) (any, error) {
	if spec == nil {
		return input, nil
	}

	if spec.Script != "" {
		if p.scripts == nil {
			return nil, errors.WrapInvalid(errors.ErrTransformFailed, "Pipeline", "Apply",
				"script "+spec.Script+" referenced but no script registry configured")
		}
		output, err := p.scripts.apply(spec.Script, input)
		if err != nil {
			return nil, errors.Wrap(errors.ErrTransformFailed, "Pipeline", "Apply", err.Error())
		}
		return output, nil
	}

	tree, ok := input.(map[string]any)
	if !ok {
		// Field mappings address into a keyed tree; wrap scalar and list
		// inputs so "value" can be mapped
		tree = map[string]any{"value": input}
	}

	out := make(map[string]any)
	for _, m := range spec.Mappings {
		value, found := Get(tree, m.Source)
		if !found {
			value = nil
		}
		Set(out, m.Target, value)
	}
	return out, nil
}
