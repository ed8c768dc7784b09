package upstream

import (
	"context"
	"fmt"
	"strings"

	"github.com/dop251/goja"
)

// ScriptAuthority evaluates a JavaScript release rule locally. The source is
// the body of a function receiving from and to (upper-cased location names)
// and returning a truthy value to allow the release:
//
//	return !(to === "G05" && from.startsWith("IN"));
type ScriptAuthority struct {
	program *goja.Program
}

// NewScriptAuthority compiles the rule body.
func NewScriptAuthority(source string) (*ScriptAuthority, error) {
	if strings.TrimSpace(source) == "" {
		return nil, ErrNoScript
	}
	wrapped := fmt.Sprintf("(function(from, to) { %s\n})", source)
	program, err := goja.Compile("release.js", wrapped, true)
	if err != nil {
		return nil, fmt.Errorf("compile release script: %w", err)
	}
	return &ScriptAuthority{program: program}, nil
}

// MayRelease runs the rule in a fresh runtime. Cancelling ctx interrupts it.
func (s *ScriptAuthority) MayRelease(ctx context.Context, from, to string) (bool, error) {
	vm := goja.New()
	stop := context.AfterFunc(ctx, func() { vm.Interrupt(ctx.Err()) })
	defer stop()

	val, err := vm.RunProgram(s.program)
	if err != nil {
		return false, fmt.Errorf("load release script: %w", err)
	}
	fn, ok := goja.AssertFunction(val)
	if !ok {
		return false, fmt.Errorf("release script did not produce a function")
	}
	res, err := fn(goja.Undefined(),
		vm.ToValue(strings.ToUpper(strings.TrimSpace(from))),
		vm.ToValue(strings.ToUpper(strings.TrimSpace(to))))
	if err != nil {
		return false, fmt.Errorf("JavaScript error: %w", err)
	}
	return res.ToBoolean(), nil
}
