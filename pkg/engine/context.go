package engine

import "context"

type wfCtxKey struct{}

type activityCtxKey struct{}

// WithWorkflowContext returns a child context carrying wf, so activity
// handlers invoked from it can recover the originating WorkflowContext if
// they need it (e.g. to emit workflow-scoped telemetry).
func WithWorkflowContext(ctx context.Context, wf WorkflowContext) context.Context {
	return context.WithValue(ctx, wfCtxKey{}, wf)
}

// WithActivityContext marks ctx as originating from an activity invocation.
func WithActivityContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, activityCtxKey{}, true)
}

// IsActivityContext reports whether ctx was marked by WithActivityContext.
func IsActivityContext(ctx context.Context) bool {
	b, ok := ctx.Value(activityCtxKey{}).(bool)
	return ok && b
}

// WorkflowContextFromContext extracts the WorkflowContext stashed by
// WithWorkflowContext, or nil if none is present.
func WorkflowContextFromContext(ctx context.Context) WorkflowContext {
	if wf, ok := ctx.Value(wfCtxKey{}).(WorkflowContext); ok {
		return wf
	}
	return nil
}
