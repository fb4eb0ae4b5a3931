// Package llm defines the text completion capability used by the suggestion
// engine. No retry or fallback policy lives here; callers own that.
package llm

import "context"

// Message roles.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message is one chat turn sent to the provider.
type Message struct {
	Role    string
	Content string
}

// Provider produces a single completion for a conversation. Implementations
// surface connect, timeout and status errors as-is; the deadline comes from
// ctx.
type Provider interface {
	// Complete returns the raw assistant text for the given messages. The
	// provider is configured for JSON output.
	Complete(ctx context.Context, messages []Message) (string, error)
	// Ping reports whether the backend is reachable. Used for health checks
	// only; unreachability is informational, never fatal.
	Ping(ctx context.Context) error
}
