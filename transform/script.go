package transform

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/c360/unigate/errors"
)

// ScriptRegistry holds named, sandboxed transform functions. Each script is
// an expr expression compiled once at registration; at apply time it
// receives the variable "input" (the tree being transformed) and must
// evaluate to the output tree.
//
// expr programs cannot perform I/O or mutate their environment, which is
// exactly the fixed pure-function contract scripted transforms carry.
type ScriptRegistry struct {
	mu       sync.RWMutex
	programs map[string]*vm.Program
}

// NewScriptRegistry creates an empty script registry
func NewScriptRegistry() *ScriptRegistry {
	return &ScriptRegistry{programs: make(map[string]*vm.Program)}
}

// Register compiles and stores a named transform. Registering an existing
// name replaces it.
func (r *ScriptRegistry) Register(name, src string) error {
	if name == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "ScriptRegistry", "Register",
			"script name cannot be empty")
	}

	program, err := expr.Compile(src)
	if err != nil {
		return errors.WrapInvalid(err, "ScriptRegistry", "Register",
			fmt.Sprintf("compile script %q", name))
	}

	r.mu.Lock()
	r.programs[name] = program
	r.mu.Unlock()
	return nil
}

// Names returns the registered script names
func (r *ScriptRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.programs))
	for name := range r.programs {
		names = append(names, name)
	}
	return names
}

// apply runs a named script against an input tree
func (r *ScriptRegistry) apply(name string, input any) (any, error) {
	r.mu.RLock()
	program, ok := r.programs[name]
	r.mu.RUnlock()

	if !ok {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "ScriptRegistry", "apply",
			fmt.Sprintf("unknown script %q", name))
	}

	output, err := expr.Run(program, map[string]any{"input": input})
	if err != nil {
		return nil, errors.Wrap(err, "ScriptRegistry", "apply",
			fmt.Sprintf("run script %q", name))
	}
	return output, nil
}
