package crypto

import (
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// ValidateAddress checks 0x-prefixed 20-byte hex. Mixed-case input must carry a valid
// EIP-55 checksum; all-lower or all-upper input is accepted as unchecksummed.
func ValidateAddress(address string) bool {
	if !strings.HasPrefix(address, "0x") || !ethcommon.IsHexAddress(address) {
		return false
	}

	body := address[2:]
	if body == strings.ToLower(body) || body == strings.ToUpper(body) {
		return true
	}
	return ethcommon.HexToAddress(address).Hex() == address
}

// Hash returns a one-way Keccak-256 fingerprint of sensitive data
func Hash(data []byte) ethcommon.Hash {
	return ethcrypto.Keccak256Hash(data)
}
