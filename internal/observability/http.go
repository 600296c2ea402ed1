package observability

import (
	"net"
	"net/http"
	"strings"
)

// ClientMeta is the caller metadata attached to session events.
type ClientMeta struct {
	DeviceID  string
	RequestID string
	IP        string
}

// ClientFromRequest reads device, request id and the originating address.
// The first X-Forwarded-For hop wins, then X-Real-Ip, then the socket peer.
func ClientFromRequest(r *http.Request) ClientMeta {
	return ClientMeta{
		DeviceID:  r.Header.Get("X-Device-Id"),
		RequestID: r.Header.Get("X-Request-Id"),
		IP:        clientIP(r),
	}
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-Ip")); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
