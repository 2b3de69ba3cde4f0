package engine

import (
	"context"
	"time"
)

// Logger is the minimal leveled logging interface the engine emits through.
// Args are alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger discards all log output. Used when no logger is configured.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MetricsRecorder receives one observation per engine operation.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer starts spans around engine operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan terminates one trace span.
type TraceSpan interface {
	End(err error)
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithLogger installs a logger. Nil restores the noop default.
func WithLogger(l Logger) Option {
	return func(e *Engine) {
		if l == nil {
			l = noopLogger{}
		}
		e.logger = l
	}
}

// WithMetricsRecorder installs a metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithTracer installs a tracer.
func WithTracer(t Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// instrument wraps one named engine operation with tracing and metrics.
func (e *Engine) instrument(ctx context.Context, operation string, fn func(context.Context) error) error {
	var span TraceSpan
	if e.tracer != nil {
		ctx, span = e.tracer.Start(ctx, operation)
	}
	start := time.Now()
	err := fn(ctx)
	if e.metrics != nil {
		e.metrics.Observe(ctx, operation, err == nil, time.Since(start))
	}
	if span != nil {
		span.End(err)
	}
	return err
}
