package security

import (
	"fmt"
	"net/netip"
	"strings"
)

// IPAllowList restricts webhook sources. An empty list allows every address.
type IPAllowList struct {
	allowAll bool
	addrs    map[netip.Addr]struct{}
	prefixes []netip.Prefix
}

// NewIPAllowList parses entries of the form "*", "10.0.0.7" or "10.0.0.0/24".
func NewIPAllowList(entries []string) (*IPAllowList, error) {
	l := &IPAllowList{addrs: make(map[netip.Addr]struct{})}
	if len(entries) == 0 {
		l.allowAll = true
		return l, nil
	}
	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		switch {
		case entry == "":
			continue
		case entry == "*":
			l.allowAll = true
		case strings.Contains(entry, "/"):
			p, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("security: invalid CIDR %q: %w", entry, err)
			}
			l.prefixes = append(l.prefixes, p.Masked())
		default:
			a, err := netip.ParseAddr(entry)
			if err != nil {
				return nil, fmt.Errorf("security: invalid IP %q: %w", entry, err)
			}
			l.addrs[a.Unmap()] = struct{}{}
		}
	}
	return l, nil
}

// Allowed reports whether ip may call the webhook endpoints.
func (l *IPAllowList) Allowed(ip string) bool {
	if l == nil || l.allowAll {
		return true
	}
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	if _, ok := l.addrs[addr]; ok {
		return true
	}
	for _, p := range l.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
