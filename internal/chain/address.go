// Package chain handles chain-specific address parsing and normalization.
package chain

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"
	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/rawblock/token-risk-guard/pkg/models"
)

const (
	solanaAddressMinLen = 32
	solanaAddressMaxLen = 44
)

// NormalizeAddress validates tokenAddr against chain's native address
// format and returns its canonical form: lowercase-0x for EVM chains,
// byte-exact base58 for Solana. Normalization is idempotent — applying
// it twice yields the same result as applying it once.
func NormalizeAddress(c models.Chain, tokenAddr string) (string, error) {
	if c.IsEVM() {
		return normalizeEVM(tokenAddr)
	}
	if c == models.ChainSolana {
		return normalizeSolana(tokenAddr)
	}
	return "", fmt.Errorf("chain: unsupported chain %q", c)
}

func normalizeEVM(addr string) (string, error) {
	if !ethcommon.IsHexAddress(addr) {
		return "", fmt.Errorf("chain: %q is not a valid EVM address", addr)
	}
	// A caller that submits mixed-case hex is asserting an EIP-55
	// checksum, so mismatched casing must be rejected rather than
	// silently re-encoded. The canonical form fed into cache and dedup
	// keys is lower-hex regardless of how the caller cased the input.
	checksummed := ethcommon.HexToAddress(addr).Hex()
	if isMixedCaseHex(addr) && addr != checksummed {
		return "", fmt.Errorf("chain: %q fails EIP-55 checksum validation", addr)
	}
	return strings.ToLower(checksummed), nil
}

// isMixedCaseHex reports whether addr's hex digits use both upper and
// lower case letters, meaning the caller intended an EIP-55 checksum
// rather than an all-lower or all-upper address with no casing claim.
func isMixedCaseHex(addr string) bool {
	hasUpper, hasLower := false, false
	for _, r := range addr {
		switch {
		case r >= 'a' && r <= 'f':
			hasLower = true
		case r >= 'A' && r <= 'F':
			hasUpper = true
		}
	}
	return hasUpper && hasLower
}

func normalizeSolana(addr string) (string, error) {
	trimmed := strings.TrimSpace(addr)
	if len(trimmed) < solanaAddressMinLen || len(trimmed) > solanaAddressMaxLen {
		return "", fmt.Errorf("chain: %q is not a valid Solana address length", addr)
	}
	decoded := base58.Decode(trimmed)
	if len(decoded) != 32 {
		return "", fmt.Errorf("chain: %q does not decode to a 32-byte Solana pubkey", addr)
	}
	return trimmed, nil
}
