package code

import (
	"context"
	"errors"
	"fmt"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/object"
)

// risorRuntime evaluates code as a Risor script. The value of the last
// expression is the result.
type risorRuntime struct{}

func (r *risorRuntime) Run(ctx context.Context, source string, env Env) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, env.Timeout)
	defer cancel()

	render := object.NewBuiltin("render", func(_ context.Context, args ...object.Object) object.Object {
		if len(args) == 0 {
			return object.NewArgsError("render", 1, len(args))
		}

		tpl, ok := args[0].(*object.String)
		if !ok {
			return object.TypeErrorf("type error: render() expected a string (%s given)", args[0].Type())
		}

		var scope map[string]any
		if len(args) > 1 {
			scope, _ = fromRisor(args[1]).(map[string]any)
		}

		return object.NewString(env.NodeCtx.Render(tpl.Value(), scope))
	})

	result, err := risor.Eval(ctx, source, risor.WithGlobals(map[string]any{
		"state":  env.State,
		"input":  env.Input,
		"nodes":  env.Nodes,
		"render": render,
	}))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, env.Timeout)
		}

		return nil, fmt.Errorf("code threw: %w", err)
	}

	return fromRisor(result), nil
}

func fromRisor(obj object.Object) any {
	switch o := obj.(type) {
	case *object.String:
		return o.Value()
	case *object.Int:
		return o.Value()
	case *object.Float:
		return o.Value()
	case *object.Bool:
		return o.Value()
	case *object.Time:
		return o.Value()
	case *object.NilType:
		return nil
	case *object.List:
		result := make([]any, 0, len(o.Value()))
		for _, item := range o.Value() {
			result = append(result, fromRisor(item))
		}

		return result
	case *object.Map:
		result := make(map[string]any, len(o.Value()))
		for key, value := range o.Value() {
			result[key] = fromRisor(value)
		}

		return result
	default:
		return obj.Inspect()
	}
}
