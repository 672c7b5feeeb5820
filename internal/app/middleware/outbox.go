package middleware

import (
	"context"

	"motorent/internal/app/commands"
	"motorent/internal/app/outbox"
)

// OutboxFlush pushes buffered event records once the wrapped command
// succeeds. Flush errors are not surfaced: the worker re-reads the store.
func OutboxFlush(box outbox.Outbox) CommandMiddleware {
	if box == nil {
		panic("middleware: outbox required")
	}
	return func(next commands.Bus) commands.Bus {
		nextFn := wrapCommand(next)
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			res, err := nextFn(ctx, cmd)
			if err != nil {
				return nil, err
			}
			_ = box.Flush(ctx)
			return res, nil
		})
	}
}
