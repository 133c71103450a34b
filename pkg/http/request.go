package http

import (
	"net"
	"net/http"
)

// PeerIP returns the address of the connection's peer, or nil when
// RemoteAddr holds no IP. Forwarding headers are never consulted.
func PeerIP(r *http.Request) net.IP {
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return net.ParseIP(host)
}

// IsLoopbackPeer reports whether the request was sent from this machine.
func IsLoopbackPeer(r *http.Request) bool {
	ip := PeerIP(r)
	return ip != nil && ip.IsLoopback()
}
