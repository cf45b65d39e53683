// Package ssrf implements the private-address guard used both by the
// coordinator when accepting a batch of scan targets and by the agent when
// resolving a hostname immediately before dialing it. Both call sites must
// apply exactly the same rules, so the logic lives here rather than being
// duplicated.
package ssrf

import (
	"fmt"
	"net"
	"strings"
)

// PrivateIPError indicates an address was rejected by the guard. It carries
// the offending literal so callers can log or count it without re-deriving
// the reason.
type PrivateIPError struct {
	Address string
	Reason  string
}

func (e *PrivateIPError) Error() string {
	return fmt.Sprintf("ssrf: %s is not a routable public address (%s)", e.Address, e.Reason)
}

// metadataIP is the cloud metadata endpoint, reachable from inside most
// hosting providers' networks and never a legitimate Minecraft server.
const metadataIP = "169.254.169.254"

// cgnatBlock is the carrier-grade NAT range (RFC 6598), not covered by any
// of net.IP's built-in classifiers.
var cgnatBlock = mustParseCIDR("100.64.0.0/10")

func mustParseCIDR(s string) *net.IPNet {
	_, n, err := net.ParseCIDR(s)
	if err != nil {
		panic(err)
	}
	return n
}

// CheckHost validates a hostname or literal IP address before it is ever
// resolved for real (coordinator insertion) or dialed (agent scan). For a
// hostname, only the textual denylist applies — resolution happens
// separately and CheckIP must be applied to the result.
func CheckHost(host string) error {
	h := strings.ToLower(strings.TrimSpace(host))
	if h == "" {
		return &PrivateIPError{Address: host, Reason: "empty address"}
	}
	if h == "localhost" || h == "0.0.0.0" {
		return &PrivateIPError{Address: host, Reason: "reserved hostname"}
	}
	if strings.HasSuffix(h, ".local") {
		return &PrivateIPError{Address: host, Reason: "mDNS/.local suffix"}
	}

	if ip := net.ParseIP(h); ip != nil {
		return CheckIP(ip)
	}
	return nil
}

// CheckIP validates a resolved or literal IP address. Rejects loopback,
// RFC1918 private ranges, link-local, CGNAT, the documentation/test-net
// ranges, multicast/reserved addresses, the cloud metadata IP, and the
// IPv6 analogues (ULA, link-local, multicast).
func CheckIP(ip net.IP) error {
	if ip == nil {
		return &PrivateIPError{Address: "", Reason: "unparseable address"}
	}

	if ip.String() == metadataIP {
		return &PrivateIPError{Address: ip.String(), Reason: "cloud metadata endpoint"}
	}
	if ip.IsLoopback() {
		return &PrivateIPError{Address: ip.String(), Reason: "loopback"}
	}
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return &PrivateIPError{Address: ip.String(), Reason: "link-local"}
	}
	if ip.IsMulticast() {
		return &PrivateIPError{Address: ip.String(), Reason: "multicast"}
	}
	if ip.IsUnspecified() {
		return &PrivateIPError{Address: ip.String(), Reason: "unspecified"}
	}
	if ip.IsPrivate() {
		// covers RFC1918 (10/8, 172.16/12, 192.168/16) and IPv6 ULA (fc00::/7)
		return &PrivateIPError{Address: ip.String(), Reason: "private range"}
	}
	if cgnatBlock.Contains(ip) {
		return &PrivateIPError{Address: ip.String(), Reason: "carrier-grade NAT (100.64/10)"}
	}
	if v4 := ip.To4(); v4 != nil {
		if v4[0] >= 240 {
			return &PrivateIPError{Address: ip.String(), Reason: "reserved (240/4)"}
		}
		for _, n := range testNetBlocks {
			if n.Contains(v4) {
				return &PrivateIPError{Address: ip.String(), Reason: "documentation/test-net range"}
			}
		}
	}
	return nil
}

// testNetBlocks are the IPv4 ranges reserved for documentation (RFC 5737):
// 192.0.2.0/24, 198.51.100.0/24, 203.0.113.0/24. No production Minecraft
// server legitimately lives in one of these.
var testNetBlocks = []*net.IPNet{
	mustParseCIDR("192.0.2.0/24"),
	mustParseCIDR("198.51.100.0/24"),
	mustParseCIDR("203.0.113.0/24"),
}
