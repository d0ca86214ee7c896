// Package tracing records nested timing spans for a single request. Spans
// travel in the context, share the request ID as their trace ID, and the root
// span logs the whole tree through slog when it ends.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/pkg/logger"
)

type contextKey struct{}

// Span is one timed stage of a request.
type Span struct {
	Name     string
	TraceID  string
	Start    time.Time
	Duration time.Duration

	mu       sync.Mutex
	parent   *Span
	children []*Span
	attrs    []any
	log      *slog.Logger
}

// Start opens a span under the one already in ctx, or a root span whose
// trace ID is the request ID carried by ctx.
func Start(ctx context.Context, name string) (context.Context, *Span) {
	span := &Span{Name: name, Start: time.Now()}
	if parent := FromContext(ctx); parent != nil {
		span.parent = parent
		span.TraceID = parent.TraceID
		parent.mu.Lock()
		parent.children = append(parent.children, span)
		parent.mu.Unlock()
	} else {
		span.TraceID = logger.RequestID(ctx)
		span.log = logger.FromContext(ctx)
	}
	return context.WithValue(ctx, contextKey{}, span), span
}

// FromContext returns the innermost span in ctx, or nil.
func FromContext(ctx context.Context) *Span {
	span, _ := ctx.Value(contextKey{}).(*Span)
	return span
}

// SetAttr attaches a key/value logged with the span.
func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.attrs = append(s.attrs, key, value)
	s.mu.Unlock()
}

// End stops the clock. Ending a root span logs the tree at debug level.
func (s *Span) End() {
	s.mu.Lock()
	s.Duration = time.Since(s.Start)
	s.mu.Unlock()
	if s.parent == nil && s.log != nil && s.log.Enabled(context.Background(), slog.LevelDebug) {
		s.emit(s.log, 0)
	}
}

// Children returns a copy of the spans opened directly under s.
func (s *Span) Children() []*Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Span(nil), s.children...)
}

func (s *Span) emit(log *slog.Logger, depth int) {
	s.mu.Lock()
	attrs := append([]any{
		"trace_id", s.TraceID,
		"span", s.Name,
		"duration", s.Duration,
		"depth", depth,
	}, s.attrs...)
	children := append([]*Span(nil), s.children...)
	s.mu.Unlock()

	log.Debug("span", attrs...)
	for _, child := range children {
		child.emit(log, depth+1)
	}
}
