package fieldbus

import (
	"fmt"
	"strings"
)

// ResolveNodeID expands a configured node id against the resolved
// namespace index. Fully qualified ids (ns=...) pass through unchanged;
// bare numeric ids become numeric node ids, anything else becomes a
// string node id.
func ResolveNodeID(nsIndex uint16, raw string) string {
	if strings.HasPrefix(raw, "ns=") {
		return raw
	}

	if isDigits(raw) {
		return fmt.Sprintf("ns=%d;i=%s", nsIndex, raw)
	}

	return fmt.Sprintf("ns=%d;s=%s", nsIndex, raw)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}

	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}

	return true
}
