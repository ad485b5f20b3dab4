package tools

import "context"

// ToolFunc defines a function executed asynchronously.
type ToolFunc func(ctx context.Context) error

// Dispatch runs the provided work in a separate goroutine. fire-and-forget:
// outcomes land in the artifact registry, not on this return path.
func Dispatch(ctx context.Context, _ string, fn ToolFunc) {
	go func() {
		_ = fn(ctx)
	}()
}
