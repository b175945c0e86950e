package ws

import (
	"net"
	"net/http"
	"strings"
	"time"
)

// ConnInfo describes one connected device session.
type ConnInfo struct {
	ConnID      string
	UserID      int64
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

// handshakeInfo extracts the per-device metadata recorded on a new session.
// The client ip honors the first hop of X-Forwarded-For when a proxy sits in
// front of the gateway.
func handshakeInfo(r *http.Request) (deviceID, requestID, ip string) {
	deviceID = r.Header.Get("X-Device-Id")
	requestID = r.Header.Get("X-Request-Id")
	ip = clientIP(r)
	return
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
