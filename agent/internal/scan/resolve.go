// Package scan implements the agent-side scan executor: the nine-step
// pipeline that turns one claimed queue item into a result bundle —
// SSRF-guarded resolve, optional SRV lookup, SLP probe, server-mode
// classification, bot connect with auto-auth, plugin detection, and
// result emission.
package scan

import (
	"context"
	"net"
	"strconv"

	"reconmc/shared/ssrf"
)

// DefaultMinecraftPort is the well-known Java Edition port; SRV lookup
// only applies when the claimed port is this default, since an explicit
// non-default port is assumed deliberate.
const DefaultMinecraftPort = 25565

// resolveAndGuard re-validates the claimed address against the SSRF guard
// before dialing it. The coordinator already screened the address at
// insertion time, but the agent re-checks independently — insertion-time
// and scan-time DNS answers can differ, and a defense this cheap is worth
// applying twice.
func resolveAndGuard(ctx context.Context, host string) error {
	if err := ssrf.CheckHost(host); err != nil {
		return err
	}
	if net.ParseIP(host) != nil {
		return nil // literal IP already checked above
	}

	resolver := net.DefaultResolver
	addrs, err := resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return err
	}
	for _, a := range addrs {
		if err := ssrf.CheckIP(a.IP); err != nil {
			return err
		}
	}
	return nil
}

// resolveSRV looks up _minecraft._tcp.<hostname> to find the real target
// host/port a DNS-based server-address redirect points to. Only
// meaningful when dialing directly (no proxy) on the default port — when
// a SOCKS proxy is in play, the proxy performs its own remote resolution
// and never exposes this record to the agent.
func resolveSRV(ctx context.Context, hostname string, port int, usingProxy bool) (string, int, bool) {
	if port != DefaultMinecraftPort || usingProxy {
		return hostname, port, false
	}

	_, addrs, err := net.DefaultResolver.LookupSRV(ctx, "minecraft", "tcp", hostname)
	if err != nil || len(addrs) == 0 {
		return hostname, port, false
	}

	target := addrs[0]
	host := trimTrailingDot(target.Target)
	return host, int(target.Port), true
}

func trimTrailingDot(s string) string {
	if len(s) > 0 && s[len(s)-1] == '.' {
		return s[:len(s)-1]
	}
	return s
}

func formatAddr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
