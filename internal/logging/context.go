package logging

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	workerKey ctxKey = iota
	itemKey
	requestIDKey
)

type itemRef struct {
	id          int64
	businessKey string
}

// WithWorker tags ctx with a worker identity.
func WithWorker(ctx context.Context, worker string) context.Context {
	return context.WithValue(ctx, workerKey, worker)
}

// WithItem tags ctx with the queue item being processed.
func WithItem(ctx context.Context, id int64, businessKey string) context.Context {
	return context.WithValue(ctx, itemKey, itemRef{id: id, businessKey: businessKey})
}

// WithRequestID tags ctx with a per-claim correlation id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// WorkerFromContext returns the worker identity stored on ctx.
func WorkerFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	worker, ok := ctx.Value(workerKey).(string)
	return worker, ok && worker != ""
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if worker, ok := WorkerFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldWorker, worker))
	}
	if ref, ok := ctx.Value(itemKey).(itemRef); ok {
		fields = append(fields, slog.Int64(FieldItemID, ref.id))
		if ref.businessKey != "" {
			fields = append(fields, slog.String(FieldBusinessKey, ref.businessKey))
		}
	}
	if rid, ok := ctx.Value(requestIDKey).(string); ok && rid != "" {
		fields = append(fields, slog.String(FieldRequestID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	args := make([]any, 0, len(fields))
	for _, f := range fields {
		args = append(args, f)
	}
	return logger.With(args...)
}
