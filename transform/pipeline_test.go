package transform

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/c360/unigate/errors"
	"github.com/c360/unigate/route"
)

func TestSetCreatesIntermediateMaps(t *testing.T) {
	out := map[string]any{}
	Set(out, "a.b.c", 1)

	assert.Equal(t, map[string]any{
		"a": map[string]any{"b": map[string]any{"c": 1}},
	}, out)
}

func TestSetLaterMappingWins(t *testing.T) {
	out := map[string]any{}
	Set(out, "a", "scalar")
	Set(out, "a.b", 1)

	assert.Equal(t, map[string]any{"a": map[string]any{"b": 1}}, out)
}

func TestApplyNilSpecIsIdentity(t *testing.T) {
	p := NewPipeline(nil)

	input := map[string]any{"x": 1}
	out, err := p.Apply(nil, input)
	require.NoError(t, err)
	assert.Equal(t, input, out)
}

func TestApplyFieldMapping(t *testing.T) {
	p := NewPipeline(nil)

	input := map[string]any{
		"A": map[string]any{"x": float64(1)},
		"B": map[string]any{"y": float64(2)},
	}
	spec := &route.TransformSpec{Mappings: []route.FieldMapping{
		{Source: "A.x", Target: "out.x"},
		{Source: "B.y", Target: "out.y"},
	}}

	out, err := p.Apply(spec, input)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"out": map[string]any{"x": float64(1), "y": float64(2)},
	}, out)
}

func TestApplyFieldMappingMissingSourceMapsToNull(t *testing.T) {
	p := NewPipeline(nil)

	input := map[string]any{
		"A": map[string]any{"x": float64(1)},
	}
	spec := &route.TransformSpec{Mappings: []route.FieldMapping{
		{Source: "A.x", Target: "out.x"},
		{Source: "B.y", Target: "out.y"},
	}}

	out, err := p.Apply(spec, input)
	require.NoError(t, err)

	tree := out.(map[string]any)["out"].(map[string]any)
	assert.Equal(t, float64(1), tree["x"])

	value, present := tree["y"]
	assert.True(t, present)
	assert.Nil(t, value)
}

func TestApplyFieldMappingOnScalarInput(t *testing.T) {
	p := NewPipeline(nil)

	spec := &route.TransformSpec{Mappings: []route.FieldMapping{
		{Source: "value", Target: "wrapped"},
	}}

	out, err := p.Apply(spec, "raw-body")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"wrapped": "raw-body"}, out)
}

func TestScriptRegistryRegisterAndApply(t *testing.T) {
	scripts := NewScriptRegistry()
	require.NoError(t, scripts.Register("pick-name", `{"name": input.user.name}`))

	p := NewPipeline(scripts)
	out, err := p.Apply(&route.TransformSpec{Script: "pick-name"}, map[string]any{
		"user": map[string]any{"name": "ada", "secret": "x"},
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"name": "ada"}, out)
}

func TestScriptRegistryCompileError(t *testing.T) {
	scripts := NewScriptRegistry()
	err := scripts.Register("broken", `{"name": `)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsInvalid(err))
}

func TestScriptRegistryEmptyName(t *testing.T) {
	scripts := NewScriptRegistry()
	assert.Error(t, scripts.Register("", "input"))
}

func TestApplyUnknownScript(t *testing.T) {
	p := NewPipeline(NewScriptRegistry())

	_, err := p.Apply(&route.TransformSpec{Script: "ghost"}, map[string]any{})
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, pkgerrors.ErrTransformFailed))
}

func TestApplyScriptWithoutRegistry(t *testing.T) {
	p := NewPipeline(nil)

	_, err := p.Apply(&route.TransformSpec{Script: "any"}, map[string]any{})
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, pkgerrors.ErrTransformFailed))
}

func TestScriptRuntimeErrorWrapsTransformFailed(t *testing.T) {
	scripts := NewScriptRegistry()
	require.NoError(t, scripts.Register("divide", `1 / input.divisor`))

	p := NewPipeline(scripts)
	_, err := p.Apply(&route.TransformSpec{Script: "divide"}, map[string]any{"divisor": 0})
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, pkgerrors.ErrTransformFailed))
}

func TestScriptNames(t *testing.T) {
	scripts := NewScriptRegistry()
	require.NoError(t, scripts.Register("a", "input"))
	require.NoError(t, scripts.Register("b", "input"))

	assert.ElementsMatch(t, []string{"a", "b"}, scripts.Names())
}
