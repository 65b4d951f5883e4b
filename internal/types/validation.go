package types

import (
	"strings"
)

// Wallet addresses are accepted in EVM form: "0x" followed by 40 hex
// characters. Addresses are normalized to lower case before any lookup so
// that checksummed and plain forms resolve to the same identity.
const (
	walletAddrPrefix = "0x"
	walletAddrHexLen = 40
	maxChainIDLength = 32
)

// NormalizeWalletAddress lower-cases a wallet address after validating its
// shape. Malformed input is rejected with validation_invalid_wallet_address
// before any resolution is attempted.
func NormalizeWalletAddress(addr string) (string, error) {
	a := strings.TrimSpace(addr)
	if !strings.HasPrefix(a, walletAddrPrefix) || len(a) != len(walletAddrPrefix)+walletAddrHexLen {
		return "", NewAppError(
			ErrCodeValidationInvalidAddress,
			"wallet address must be 0x followed by 40 hex characters",
			nil,
		)
	}
	for _, r := range a[len(walletAddrPrefix):] {
		if !isHexDigit(r) {
			return "", NewAppError(
				ErrCodeValidationInvalidAddress,
				"wallet address contains non-hex characters",
				nil,
			)
		}
	}
	return strings.ToLower(a), nil
}

// NormalizeChainID validates and lower-cases a chain identifier. Chain IDs
// are short lowercase slugs ("eth", "polygon", "arbitrum").
func NormalizeChainID(chainID string) (string, error) {
	c := strings.ToLower(strings.TrimSpace(chainID))
	if c == "" || len(c) > maxChainIDLength {
		return "", NewAppError(
			ErrCodeValidationInvalidChain,
			"chain id must be a non-empty slug of at most 32 characters",
			nil,
		)
	}
	for _, r := range c {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' && r != '_' {
			return "", NewAppError(
				ErrCodeValidationInvalidChain,
				"chain id may contain only lowercase letters, digits, '-' and '_'",
				nil,
			)
		}
	}
	return c, nil
}

func isHexDigit(r rune) bool {
	switch {
	case r >= '0' && r <= '9':
		return true
	case r >= 'a' && r <= 'f':
		return true
	case r >= 'A' && r <= 'F':
		return true
	default:
		return false
	}
}
