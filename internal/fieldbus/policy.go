package fieldbus

import (
	"context"
	"fmt"
	"log/slog"
)

// policyPreference is the negotiation order: strongest offered policy
// wins.
var policyPreference = []string{PolicyBasic256Sha256, PolicyBasic128Rsa15, PolicyNone}

// NegotiatePolicy asks the server which security policies it offers and
// picks the most preferred one. The discovery request itself runs
// unsecured.
func NegotiatePolicy(ctx context.Context, dialer Dialer, endpoint string) (string, error) {
	offered, err := dialer.SecurityPolicies(ctx, endpoint)
	if err != nil {
		return "", fmt.Errorf("enumerate endpoints of %s: %w", endpoint, err)
	}

	offeredSet := make(map[string]bool, len(offered))
	for _, policy := range offered {
		offeredSet[policy] = true
	}

	for _, policy := range policyPreference {
		if offeredSet[policy] {
			slog.Debug("negotiated security policy", "endpoint", endpoint, "policy", policy)

			return policy, nil
		}
	}

	return "", fmt.Errorf("no supported security policy offered by %s (offered: %v)", endpoint, offered)
}
