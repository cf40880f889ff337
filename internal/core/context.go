package core

import "context"

type contextKey string

const ctxKeyClient contextKey = "import_client"

// ClientInfo identifies the caller that drives a session. It is attached to
// session logs only.
type ClientInfo struct {
	IP        string
	UserAgent string
}

// ContextWithClient attaches caller information to ctx.
func ContextWithClient(ctx context.Context, c ClientInfo) context.Context {
	return context.WithValue(ctx, ctxKeyClient, c)
}

// ClientFromContext returns the caller attached by ContextWithClient.
func ClientFromContext(ctx context.Context) (ClientInfo, bool) {
	c, ok := ctx.Value(ctxKeyClient).(ClientInfo)
	return c, ok
}
