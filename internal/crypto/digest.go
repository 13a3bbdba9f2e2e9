package crypto

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	ethcommon "github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// AuthorizationDigest is keccak256(abi.encodePacked(chainId, wallet, dest, value, data, nonce)).
// uint256 fields are 32-byte big-endian, addresses 20 bytes, data raw. The wallet contract
// recomputes exactly this tuple in this order.
func AuthorizationDigest(chainID *big.Int, wallet, dest ethcommon.Address, value *big.Int, data []byte, nonce *big.Int) ethcommon.Hash {
	return ethcrypto.Keccak256Hash(
		uint256Bytes(chainID),
		wallet.Bytes(),
		dest.Bytes(),
		uint256Bytes(value),
		data,
		uint256Bytes(nonce),
	)
}

func uint256Bytes(v *big.Int) []byte {
	if v == nil {
		return make([]byte, 32)
	}
	return ethcommon.LeftPadBytes(v.Bytes(), 32)
}

// SignAuthorization signs the digest as an EIP-191 personal message and returns r||s||v
// with v in {27, 28}, the form ecrecover-based wallet contracts expect.
func SignAuthorization(material *WalletKeyMaterial, digest ethcommon.Hash) ([]byte, error) {
	key, err := material.ECDSA()
	if err != nil {
		return nil, err
	}

	sig, err := ethcrypto.Sign(accounts.TextHash(digest.Bytes()), key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign authorization: %w", err)
	}
	sig[64] += 27
	return sig, nil
}

// RecoverAuthorizer returns the address that produced sig over digest
func RecoverAuthorizer(digest ethcommon.Hash, sig []byte) (ethcommon.Address, error) {
	if len(sig) != 65 {
		return ethcommon.Address{}, errors.New("invalid signature length")
	}
	normalized := make([]byte, 65)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}

	pub, err := ethcrypto.SigToPub(accounts.TextHash(digest.Bytes()), normalized)
	if err != nil {
		return ethcommon.Address{}, fmt.Errorf("failed to recover signer: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}
