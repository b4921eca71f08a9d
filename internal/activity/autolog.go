package activity

import (
	"context"
	"time"
)

// Scope is the ambient logging context inherited by Tool and WrapTool
// calls. It travels on the context.Context so concurrent sub-agents
// cannot pollute each other's scope.
type Scope struct {
	Source    string
	RelatedID string
	SessionID string
}

type scopeKey struct{}

// WithScope attaches an ambient logging scope to the context.
func WithScope(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// ScopeFrom retrieves the ambient scope, or a zero scope.
func ScopeFrom(ctx context.Context) Scope {
	if scope, ok := ctx.Value(scopeKey{}).(Scope); ok {
		return scope
	}
	return Scope{}
}

// Tool records a tool invocation under the ambient scope. It never
// returns or raises an error: observability must not break a tool.
func (l *Log) Tool(ctx context.Context, tool, description string, metadata map[string]any) {
	defer func() { recover() }()

	scope := ScopeFrom(ctx)
	err := l.Append(ctx, Entry{
		Action:      "tool_" + tool,
		Category:    "tool",
		Description: description,
		Metadata:    metadata,
		SessionID:   scope.SessionID,
		Source:      scope.Source,
		RelatedID:   scope.RelatedID,
	})
	if err != nil {
		l.logger.Debug("tool log dropped: %v", err)
	}
}

// WrapTool instruments fn, logging start and end with duration and a
// success flag. Logging failures are swallowed; fn's error is returned
// untouched.
func (l *Log) WrapTool(ctx context.Context, tool string, fn func(context.Context) error) error {
	l.Tool(ctx, tool, "started", nil)
	start := time.Now()

	err := fn(ctx)

	l.Tool(ctx, tool, "finished", map[string]any{
		"duration_ms": time.Since(start).Milliseconds(),
		"success":     err == nil,
	})
	return err
}
