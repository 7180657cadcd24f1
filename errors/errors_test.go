package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClassString(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(99), "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.class.String())
	}
}

func TestWrapConvention(t *testing.T) {
	base := stderrors.New("connection refused")
	err := Wrap(base, "Dispatcher", "execute", "backend call")

	require.Error(t, err)
	assert.Equal(t, "Dispatcher.execute: backend call failed: connection refused", err.Error())
	assert.True(t, stderrors.Is(err, base))
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "c", "m", "a"))
	assert.NoError(t, WrapTransient(nil, "c", "m", "a"))
	assert.NoError(t, WrapInvalid(nil, "c", "m", "a"))
	assert.NoError(t, WrapFatal(nil, "c", "m", "a"))
}

func TestClassifiedWrappersPreserveSentinels(t *testing.T) {
	err := WrapTransient(ErrServiceTimeout, "Dispatcher", "call", "backend call")

	var ce *ClassifiedError
	require.True(t, stderrors.As(err, &ce))
	assert.Equal(t, ErrorTransient, ce.Class)
	assert.Equal(t, "Dispatcher", ce.Component)
	assert.True(t, stderrors.Is(err, ErrServiceTimeout))
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"timeout sentinel", ErrServiceTimeout, true},
		{"call failure sentinel", ErrServiceCallFailed, true},
		{"store unavailable", ErrStoreUnavailable, true},
		{"queue full", ErrQueueFull, true},
		{"context deadline", context.DeadlineExceeded, true},
		{"timeout pattern", stderrors.New("i/o timeout"), true},
		{"invalid config", ErrInvalidConfig, false},
		{"route not found", ErrRouteNotFound, false},
		{"classified transient", WrapTransient(stderrors.New("x"), "c", "m", "a"), true},
		{"classified invalid", WrapInvalid(stderrors.New("network down"), "c", "m", "a"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsTransient(tt.err))
		})
	}
}

func TestIsInvalid(t *testing.T) {
	assert.True(t, IsInvalid(ErrRouteNotFound))
	assert.True(t, IsInvalid(ErrRouteAuthFailure))
	assert.True(t, IsInvalid(ErrReloadValidation))
	assert.True(t, IsInvalid(fmt.Errorf("load: %w", ErrReloadValidation)))
	assert.False(t, IsInvalid(ErrServiceTimeout))
	assert.False(t, IsInvalid(nil))
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(ErrInvalidConfig))
	assert.True(t, IsFatal(ErrMissingConfig))
	assert.True(t, IsFatal(WrapFatal(stderrors.New("x"), "c", "m", "a")))
	assert.False(t, IsFatal(ErrServiceTimeout))
	assert.False(t, IsFatal(nil))
}

func TestIsTerminal(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"route not found", ErrRouteNotFound, true},
		{"route auth failure", ErrRouteAuthFailure, true},
		{"transform failed", ErrTransformFailed, true},
		{"wrapped terminal", Wrap(ErrRouteNotFound, "Facade", "handle", "lookup"), true},
		{"service failure is local", ErrServiceCallFailed, false},
		{"service timeout is local", ErrServiceTimeout, false},
		{"template unresolved is local", ErrTemplateUnresolved, false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsTerminal(tt.err))
		})
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ErrorInvalid, Classify(ErrRouteNotFound))
	assert.Equal(t, ErrorFatal, Classify(ErrMissingConfig))
	assert.Equal(t, ErrorTransient, Classify(ErrServiceTimeout))
	assert.Equal(t, ErrorTransient, Classify(stderrors.New("something else")))
}
