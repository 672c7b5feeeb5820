// Package commands routes write intents to their handlers through a
// middleware-wrappable bus.
package commands

import (
	"context"
	"errors"
)

var (
	ErrHandlerNotFound = errors.New("commands: handler not found")
	ErrInvalidCommand  = errors.New("commands: invalid command for handler")
	ErrResultType      = errors.New("commands: result type mismatch")
	ErrNilBus          = errors.New("commands: nil bus")
)

// Command is a routable write intent. Key identifies the handler.
type Command interface {
	Key() string
}

type Handler[C Command, R any] interface {
	Handle(ctx context.Context, cmd C) (R, error)
}

// HandlerFunc adapts a plain function into a Handler.
type HandlerFunc[C Command, R any] func(ctx context.Context, cmd C) (R, error)

func (f HandlerFunc[C, R]) Handle(ctx context.Context, cmd C) (R, error) {
	return f(ctx, cmd)
}

// Bus dispatches a command to its registered handler. Middleware layers
// implement Bus and delegate inward.
type Bus interface {
	Dispatch(ctx context.Context, cmd Command) (any, error)
}

// Dispatch sends cmd through bus and asserts the result type, hiding the
// any-typed bus surface from callers.
func Dispatch[C Command, R any](ctx context.Context, bus Bus, cmd C) (R, error) {
	var zero R
	if bus == nil {
		return zero, ErrNilBus
	}
	raw, err := bus.Dispatch(ctx, cmd)
	if err != nil {
		return zero, err
	}
	if raw == nil {
		return zero, nil
	}
	result, ok := raw.(R)
	if !ok {
		return zero, ErrResultType
	}
	return result, nil
}
