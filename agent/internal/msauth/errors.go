// Package msauth implements the Microsoft → Xbox Live → XSTS → Minecraft
// token refresh chain: five HTTP steps against endpoints that reject any
// deviation from their exact historical request shape, wrapped in the
// combinatorial client-id/scope fallback the upstream's ongoing churn
// requires and a bounded, TTL'd cache of whichever combination last worked.
package msauth

import (
	"fmt"

	"reconmc/shared/types"
)

// ErrNoXboxAccount indicates the XSTS step returned 401: the Microsoft
// account has no linked Xbox profile, or no Minecraft entitlement. This is
// terminal — no other client-id/scope combination will change the answer,
// so the chain stops immediately rather than exhausting the cross-product.
var ErrNoXboxAccount = &types.ScanError{
	Kind:    types.KindAuth,
	Code:    types.CodeAccountMismatch,
	Message: "microsoft account has no linked Xbox Live / Minecraft entitlement",
}

// errStep wraps a failed HTTP step as a types.KindAuth error carrying the
// step name, HTTP status, and a truncated response body.
func errStep(step string, status int, body string) error {
	return &types.ScanError{
		Kind:    types.KindAuth,
		Message: fmt.Sprintf("%s failed: status %d: %s", step, status, truncate(body, 300)),
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
