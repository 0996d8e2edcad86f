package middleware

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// TrustedProxies rewrites RemoteAddr from forwarding headers, but only for
// requests whose immediate peer is a listed proxy. A nil or empty set
// trusts nobody and leaves RemoteAddr untouched. True-Client-IP is never
// consulted.
type TrustedProxies struct {
	prefixes []netip.Prefix
}

// NewTrustedProxies parses entries given as CIDR prefixes or bare addresses.
func NewTrustedProxies(entries []string) (*TrustedProxies, error) {
	p := &TrustedProxies{}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		prefix, err := parseProxyEntry(entry)
		if err != nil {
			return nil, err
		}
		p.prefixes = append(p.prefixes, prefix)
	}
	return p, nil
}

// parseProxyEntry parses a single trusted proxy as a prefix. A bare
// address becomes a single-host prefix.
func parseProxyEntry(entry string) (netip.Prefix, error) {
	if strings.Contains(entry, "/") {
		prefix, err := netip.ParsePrefix(entry)
		if err != nil {
			return netip.Prefix{}, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
		}
		return prefix.Masked(), nil
	}
	addr, err := netip.ParseAddr(entry)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

func (p *TrustedProxies) trusts(addr netip.Addr) bool {
	if p == nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range p.prefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// RealIP replaces RemoteAddr with the client address reported by a trusted
// proxy. X-Forwarded-For is walked from the right and the first hop that is
// not itself a trusted proxy wins. X-Real-IP is used when X-Forwarded-For
// is absent.
func (p *TrustedProxies) RealIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if peer, ok := peerAddr(r.RemoteAddr); ok && p.trusts(peer) {
			if client, ok := p.forwardedClient(r.Header); ok {
				r.RemoteAddr = client.String()
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (p *TrustedProxies) forwardedClient(h http.Header) (netip.Addr, bool) {
	var hops []string
	for _, v := range h.Values("X-Forwarded-For") {
		hops = append(hops, strings.Split(v, ",")...)
	}

	if len(hops) == 0 {
		addr, err := netip.ParseAddr(strings.TrimSpace(h.Get("X-Real-IP")))
		if err != nil {
			return netip.Addr{}, false
		}
		return addr.Unmap(), true
	}

	var last netip.Addr
	for i := len(hops) - 1; i >= 0; i-- {
		addr, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
		if err != nil {
			// A malformed hop ends the chain we can vouch for.
			break
		}
		addr = addr.Unmap()
		if !p.trusts(addr) {
			return addr, true
		}
		last = addr
	}
	if last.IsValid() {
		return last, true
	}
	return netip.Addr{}, false
}

func peerAddr(remote string) (netip.Addr, bool) {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		host = remote
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr, true
}
