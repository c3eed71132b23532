package http

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// IPConfig holds the proxies whose forwarding headers are trusted
type IPConfig struct {
	trusted []*net.IPNet
}

// NewIPConfig parses trusted proxy CIDR ranges. Bare addresses are accepted as /32 or /128.
func NewIPConfig(trustedProxies []string) (*IPConfig, error) {
	cfg := &IPConfig{}
	for _, cidr := range trustedProxies {
		if !strings.Contains(cidr, "/") {
			ip := net.ParseIP(cidr)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q", cidr)
			}
			bits := 128
			if ip.To4() != nil {
				bits = 32
			}
			cidr = fmt.Sprintf("%s/%d", cidr, bits)
		}
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", cidr, err)
		}
		cfg.trusted = append(cfg.trusted, ipNet)
	}
	return cfg, nil
}

// ExtractClientIP resolves the client key for a request.
// Forwarding headers are only honored when the direct peer is a trusted proxy,
// and X-Forwarded-For is read right to left, skipping trusted hops, so a
// client cannot choose its own key by prepending addresses.
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	remoteIP := getRemoteAddr(r)

	if config == nil || !config.isTrusted(remoteIP) {
		return remoteIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if !isValidIP(hop) {
				break
			}
			if !config.isTrusted(hop) {
				return normalizeIP(hop)
			}
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); isValidIP(xri) {
		return normalizeIP(xri)
	}

	return remoteIP
}

// getRemoteAddr extracts the IP address from RemoteAddr (removing port if present)
func getRemoteAddr(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "unknown"
	}
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		host = h
	}
	if isValidIP(host) {
		return normalizeIP(host)
	}
	return host
}

func (c *IPConfig) isTrusted(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, n := range c.trusted {
		if n.Contains(parsed) {
			return true
		}
	}
	return false
}

// normalizeIP gives every spelling of an address the same client key
func normalizeIP(ip string) string {
	return net.ParseIP(ip).String()
}

func isValidIP(ip string) bool {
	return net.ParseIP(ip) != nil
}

// NormalizeClientKey returns the canonical form of an IP address client key
func NormalizeClientKey(key string) (string, bool) {
	key = strings.TrimSpace(key)
	if !isValidIP(key) {
		return "", false
	}
	return normalizeIP(key), true
}
