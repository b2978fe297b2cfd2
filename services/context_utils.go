package services

import "context"

// persistentContext keeps ctx values but drops its cancellation, for writes
// that must land after the caller gave up.
func persistentContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return context.WithoutCancel(ctx)
}
