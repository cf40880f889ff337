package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/pharmaimport/internal/core"
)

// withClient attaches the caller's address and user agent for session logs.
// RemoteAddr has already been rewritten by TrustedRealIP.
func withClient(ctx context.Context, r *http.Request) context.Context {
	return core.ContextWithClient(ctx, core.ClientInfo{
		IP:        r.RemoteAddr,
		UserAgent: r.UserAgent(),
	})
}
