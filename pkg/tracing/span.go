// Package tracing records lightweight in-process span trees carried through
// contexts. A finished tree is logged as one structured slog record.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/recipe-search/pkg/logger"
)

type contextKey struct{}

// Span is one timed operation. Children started from a context holding the
// span are attached to it.
type Span struct {
	Name     string
	TraceID  string
	Start    time.Time
	Duration time.Duration

	mu       sync.Mutex
	children []*Span
	attrs    []slog.Attr
	now      func() time.Time
}

// Start begins a span. When ctx already carries one the new span becomes its
// child; otherwise it is a root whose trace id is the request id, or a
// fresh uuid outside a request.
func Start(ctx context.Context, name string) (context.Context, *Span) {
	parent := FromContext(ctx)
	span := &Span{Name: name, now: time.Now}
	if parent != nil {
		span.TraceID = parent.TraceID
		span.now = parent.now
		parent.mu.Lock()
		parent.children = append(parent.children, span)
		parent.mu.Unlock()
	} else {
		span.TraceID = logger.RequestID(ctx)
		if span.TraceID == "" {
			span.TraceID = uuid.NewString()
		}
	}
	span.Start = span.now()
	return context.WithValue(ctx, contextKey{}, span), span
}

// Child starts a child of the span in ctx and returns nil when ctx carries
// none. Span methods accept a nil receiver, so untraced callers pay nothing.
func Child(ctx context.Context, name string) *Span {
	if FromContext(ctx) == nil {
		return nil
	}
	_, span := Start(ctx, name)
	return span
}

// FromContext returns the current span, or nil.
func FromContext(ctx context.Context) *Span {
	span, _ := ctx.Value(contextKey{}).(*Span)
	return span
}

func (s *Span) End() {
	if s == nil {
		return
	}
	s.Duration = s.now().Sub(s.Start)
}

func (s *Span) SetAttr(key string, value any) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.attrs = append(s.attrs, slog.Any(key, value))
	s.mu.Unlock()
}

// Children returns the direct children in start order.
func (s *Span) Children() []*Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Span, len(s.children))
	copy(out, s.children)
	return out
}

// LogValue renders the span tree as nested groups keyed by span name, so
// siblings need distinct names.
func (s *Span) LogValue() slog.Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	attrs := make([]slog.Attr, 0, 2+len(s.attrs)+len(s.children))
	attrs = append(attrs, slog.Float64("ms", float64(s.Duration.Microseconds())/1000))
	attrs = append(attrs, s.attrs...)
	for _, child := range s.children {
		attrs = append(attrs, slog.Any(child.Name, child))
	}
	return slog.GroupValue(attrs...)
}

// Log writes the tree at debug level.
func (s *Span) Log(ctx context.Context, l *slog.Logger) {
	l.DebugContext(ctx, "trace", "trace_id", s.TraceID, s.Name, s)
}
