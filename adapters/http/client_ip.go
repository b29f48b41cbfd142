package authhttp

import (
	"net/http"
	"net/netip"
	"strings"
)

// ClientIPFunc extracts the address used for rate-limit keys and change-log rows.
// An empty result means the address is unknown; rate limiting is then skipped.
type ClientIPFunc func(r *http.Request) string

// DefaultClientIP uses the TCP peer and only when it is a public address. A private
// peer is almost always an ingress, and keying on it would throttle every client at once.
func DefaultClientIP() ClientIPFunc {
	return func(r *http.Request) string {
		peer, ok := peerAddr(r)
		if !ok || !routable(peer) {
			return ""
		}
		return peer.String()
	}
}

// ClientIPFromForwardedHeaders honours CF-Connecting-IP and X-Forwarded-For when the
// peer sits inside one of trusted. X-Forwarded-For is walked from the right and the
// first hop outside trusted wins, so a client cannot spoof its way past the proxy.
func ClientIPFromForwardedHeaders(trusted []netip.Prefix) ClientIPFunc {
	isTrusted := func(a netip.Addr) bool {
		for _, p := range trusted {
			if p.Contains(a) {
				return true
			}
		}
		return false
	}
	return func(r *http.Request) string {
		peer, ok := peerAddr(r)
		if !ok {
			return ""
		}
		if !isTrusted(peer) {
			if routable(peer) {
				return peer.String()
			}
			return ""
		}
		if a, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("CF-Connecting-IP"))); err == nil && routable(a) {
			return a.Unmap().String()
		}
		hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			a, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				break
			}
			a = a.Unmap()
			if isTrusted(a) {
				continue
			}
			if routable(a) {
				return a.String()
			}
			break
		}
		return ""
	}
}

// ParseTrustedProxies turns CIDRs or bare addresses into prefixes.
func ParseTrustedProxies(values []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if strings.Contains(v, "/") {
			p, err := netip.ParsePrefix(v)
			if err != nil {
				return nil, err
			}
			out = append(out, p.Masked())
			continue
		}
		a, err := netip.ParseAddr(v)
		if err != nil {
			return nil, err
		}
		out = append(out, netip.PrefixFrom(a, a.BitLen()))
	}
	return out, nil
}

func peerAddr(r *http.Request) (netip.Addr, bool) {
	if r == nil || r.RemoteAddr == "" {
		return netip.Addr{}, false
	}
	if ap, err := netip.ParseAddrPort(r.RemoteAddr); err == nil {
		return ap.Addr().Unmap(), true
	}
	a, err := netip.ParseAddr(r.RemoteAddr)
	if err != nil {
		return netip.Addr{}, false
	}
	return a.Unmap(), true
}

func routable(a netip.Addr) bool {
	switch {
	case !a.IsValid(), a.IsUnspecified(), a.IsLoopback(), a.IsPrivate():
		return false
	case a.IsLinkLocalUnicast(), a.IsLinkLocalMulticast(), a.IsMulticast():
		return false
	}
	return true
}
