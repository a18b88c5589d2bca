package middleware

import (
	"net"
	"strings"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/dbus-service/types"
)

// trustedProxies holds the peers whose X-Forwarded-For and X-Real-IP headers
// are believed. An empty list means the socket address is always used.
type trustedProxies []*net.IPNet

// newTrustedProxies accepts bare IPs and CIDR ranges. Unparseable entries are
// logged and skipped.
func newTrustedProxies(entries []string, logger types.Logger) trustedProxies {
	proxies := make(trustedProxies, 0, len(entries))

	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				logger.Warn("Ignoring invalid trusted proxy", zap.String("entry", entry))
				continue
			}
			bits := 128
			if v4 := ip.To4(); v4 != nil {
				ip, bits = v4, 32
			}
			proxies = append(proxies, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}

		_, network, err := net.ParseCIDR(entry)
		if err != nil {
			logger.Warn("Ignoring invalid trusted proxy", zap.String("entry", entry), zap.Error(err))
			continue
		}
		proxies = append(proxies, network)
	}

	return proxies
}

func (t trustedProxies) trusts(ip net.IP) bool {
	for _, network := range t {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// clientAddr returns the socket address unless the peer is a trusted proxy.
// For a trusted peer the X-Forwarded-For chain is read right to left and the
// first hop that is not itself a trusted proxy wins.
func (t trustedProxies) clientAddr(ctx *fasthttp.RequestCtx) string {
	peer := ctx.RemoteIP()
	if len(t) == 0 || !t.trusts(peer) {
		return peer.String()
	}

	if forwarded := string(ctx.Request.Header.Peek("X-Forwarded-For")); forwarded != "" {
		hops := strings.Split(forwarded, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := net.ParseIP(strings.TrimSpace(hops[i]))
			if hop == nil {
				break
			}
			if i == 0 || !t.trusts(hop) {
				return hop.String()
			}
		}
	}

	if realIP := net.ParseIP(strings.TrimSpace(string(ctx.Request.Header.Peek("X-Real-IP")))); realIP != nil {
		return realIP.String()
	}

	return peer.String()
}
