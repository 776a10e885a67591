package code

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dop251/goja"
)

// javaScriptRuntime evaluates code as the body of an async function called
// with (ctx, state, input, nodes, render).
type javaScriptRuntime struct{}

func (r *javaScriptRuntime) Run(ctx context.Context, source string, env Env) (any, error) {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	timer := time.AfterFunc(env.Timeout, func() {
		vm.Interrupt(ErrTimeout)
	})
	defer timer.Stop()

	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt(ctx.Err())
	})
	defer stop()

	wrapped := "(async function(ctx, state, input, nodes, render) {\n" + source + "\n})"

	fnValue, err := vm.RunString(wrapped)
	if err != nil {
		return nil, jsError(err, env.Timeout)
	}

	fn, ok := goja.AssertFunction(fnValue)
	if !ok {
		return nil, errors.New("code did not compile to a function")
	}

	ret, err := fn(goja.Undefined(),
		r.nodeContext(ctx, vm, env),
		vm.ToValue(env.State),
		vm.ToValue(env.Input),
		vm.ToValue(env.Nodes),
		vm.ToValue(func(tpl string, scope map[string]any) string {
			return env.NodeCtx.Render(tpl, scope)
		}),
	)
	if err != nil {
		return nil, jsError(err, env.Timeout)
	}

	promise, ok := ret.Export().(*goja.Promise)
	if !ok {
		return ret.Export(), nil
	}

	switch promise.State() {
	case goja.PromiseStateFulfilled:
		return promise.Result().Export(), nil
	case goja.PromiseStateRejected:
		return nil, fmt.Errorf("code threw: %v", promise.Result())
	default:
		return nil, errors.New("code returned a promise that never settled")
	}
}

func (r *javaScriptRuntime) nodeContext(ctx context.Context, vm *goja.Runtime, env Env) goja.Value {
	nctx := env.NodeCtx
	obj := vm.NewObject()

	_ = obj.Set("executionId", nctx.ExecutionID())
	_ = obj.Set("workflowId", nctx.WorkflowID())
	_ = obj.Set("nodeId", nctx.NodeID())
	_ = obj.Set("runId", nctx.RunID())
	_ = obj.Set("log", func(msg string, data map[string]any) {
		nctx.Log(ctx, slog.LevelInfo, msg, data)
	})
	_ = obj.Set("saveState", func(patch map[string]any) error {
		return nctx.SaveState(ctx, patch)
	})

	return obj
}

func jsError(err error, timeout time.Duration) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if cause, ok := interrupted.Value().(error); ok && errors.Is(cause, ErrTimeout) {
			return fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}

		return fmt.Errorf("code execution interrupted: %v", interrupted.Value())
	}

	return fmt.Errorf("code threw: %w", err)
}
