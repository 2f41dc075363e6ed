package ctxutil

import "context"

type traceDataKey struct{}
type operatorKey struct{}

type TraceData struct {
	TraceID   string
	RequestID string
}

// Operator identifies the authenticated caller of a mutating API request.
type Operator struct {
	Subject string
}

// Default returns context.Background() when ctx is nil.
func Default(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(Default(ctx), traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	if ctx == nil {
		return nil
	}
	if td, ok := ctx.Value(traceDataKey{}).(*TraceData); ok {
		return td
	}
	return nil
}

func WithOperator(ctx context.Context, op *Operator) context.Context {
	return context.WithValue(Default(ctx), operatorKey{}, op)
}

func GetOperator(ctx context.Context) *Operator {
	if ctx == nil {
		return nil
	}
	if op, ok := ctx.Value(operatorKey{}).(*Operator); ok {
		return op
	}
	return nil
}
