// Package genai generates short text payloads through a chat-completion
// backend. The workload generator uses it to synthesize work item bodies
// and the processor uses it to enrich them.
package genai

import "context"

// Client produces a completion for a single prompt.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Func adapts a plain function to the Client interface.
type Func func(ctx context.Context, prompt string) (string, error)

func (f Func) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
