package web

import (
	"context"
	"net"
	"net/http"

	"github.com/JonMunkholm/gradebook/internal/core"
)

// withClient records the caller's address and user agent for import
// reports. RemoteAddr has already been rewritten by TrustedRealIP.
func withClient(r *http.Request) context.Context {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return core.ContextWithClient(r.Context(), ip, r.UserAgent())
}
