package crypto

import (
	"math/big"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthorizationDigestPacking(t *testing.T) {
	chainID := big.NewInt(137)
	wallet := ethcommon.HexToAddress("0x1111111111111111111111111111111111111111")
	dest := ethcommon.HexToAddress("0x2222222222222222222222222222222222222222")
	value := big.NewInt(1000)
	data := []byte{0xde, 0xad}
	nonce := big.NewInt(7)

	var packed []byte
	packed = append(packed, ethcommon.LeftPadBytes(chainID.Bytes(), 32)...)
	packed = append(packed, wallet.Bytes()...)
	packed = append(packed, dest.Bytes()...)
	packed = append(packed, ethcommon.LeftPadBytes(value.Bytes(), 32)...)
	packed = append(packed, data...)
	packed = append(packed, ethcommon.LeftPadBytes(nonce.Bytes(), 32)...)

	assert.Len(t, packed, 32+20+20+32+2+32)
	assert.Equal(t, ethcrypto.Keccak256Hash(packed), AuthorizationDigest(chainID, wallet, dest, value, data, nonce))

	// Any field change changes the digest
	assert.NotEqual(t,
		AuthorizationDigest(chainID, wallet, dest, value, data, nonce),
		AuthorizationDigest(chainID, wallet, dest, value, data, big.NewInt(8)))
	assert.NotEqual(t,
		AuthorizationDigest(chainID, wallet, dest, value, data, nonce),
		AuthorizationDigest(big.NewInt(1), wallet, dest, value, data, nonce))
}

func TestSignAuthorization(t *testing.T) {
	codec := NewCodec()
	material, err := codec.Recover(abandonMnemonic)
	require.NoError(t, err)

	digest := AuthorizationDigest(big.NewInt(1), material.Address, material.Address, big.NewInt(1), nil, big.NewInt(0))
	sig, err := SignAuthorization(material, digest)
	require.NoError(t, err)
	require.Len(t, sig, 65)
	assert.Contains(t, []byte{27, 28}, sig[64])

	signer, err := RecoverAuthorizer(digest, sig)
	require.NoError(t, err)
	assert.Equal(t, material.Address, signer)

	other := AuthorizationDigest(big.NewInt(1), material.Address, material.Address, big.NewInt(2), nil, big.NewInt(0))
	signer, err = RecoverAuthorizer(other, sig)
	require.NoError(t, err)
	assert.NotEqual(t, material.Address, signer)

	_, err = RecoverAuthorizer(digest, sig[:64])
	assert.Error(t, err)
}

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		address string
		want    bool
	}{
		{"0x9858EfFD232B4033E47d90003D41EC34EcaEda94", true},
		{"0x9858effd232b4033e47d90003d41ec34ecaeda94", true},
		{"0x9858EFFD232B4033E47D90003D41EC34ECAEDA94", true},
		{"0x9858EfFD232B4033E47d90003D41EC34EcaEda95", true},
		{"0x9858efFD232B4033E47d90003D41EC34EcaEda94", false},
		{"9858EfFD232B4033E47d90003D41EC34EcaEda94", false},
		{"0x9858EfFD232B4033E47d90003D41EC34EcaEda9", false},
		{"0xzz58EfFD232B4033E47d90003D41EC34EcaEda94", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidateAddress(tt.address))
		})
	}
}

func TestHash(t *testing.T) {
	a := Hash([]byte(abandonMnemonic))
	b := Hash([]byte(abandonMnemonic))
	c := Hash([]byte("other"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
