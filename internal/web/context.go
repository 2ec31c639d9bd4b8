package web

import (
	"context"
	"net"
	"net/http"

	"github.com/jangddae83-design/Legato-OCR-Exel-converter/internal/core"
)

// WithRequestMetadata adds the client address and User-Agent to ctx so
// conversion history can record who asked.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ip := r.RemoteAddr // already rewritten by TrustedRealIP
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return core.WithRequestMeta(ctx, core.RequestMeta{ClientIP: ip, UserAgent: r.UserAgent()})
}
