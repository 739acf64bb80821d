package domain

import "strings"

// SupportedChain is the entity form of ChainConfig (see cache.go), as
// returned by the indexer's getSupportedChains query and as persisted by
// the administrative refresh handler's response.
type SupportedChain = ChainConfig

// NormalizeAddress lowercases a hex address for internal storage and
// comparison. Callers at the HTTP boundary render the EIP-55 checksum form
// separately; internally every address is compared lowercase.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
