package client

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

const walletABI = `[
	{"type":"function","name":"execute","stateMutability":"nonpayable","inputs":[
		{"name":"dest","type":"address"},
		{"name":"value","type":"uint256"},
		{"name":"data","type":"bytes"},
		{"name":"signature","type":"bytes"}],"outputs":[]},
	{"type":"function","name":"nonce","stateMutability":"view","inputs":[],"outputs":[
		{"name":"","type":"uint256"}]}
]`

// ExecuteCall is a decoded execute(dest, value, data, signature) call
type ExecuteCall struct {
	Dest      common.Address
	Value     *big.Int
	Data      []byte
	Signature []byte
}

// WalletContract encodes calls to the smart-contract wallet and derives its address.
// The wallet is deployed by a factory with CREATE2, salt = keccak256(owner).
type WalletContract struct {
	abi          abi.ABI
	factory      common.Address
	initCodeHash common.Hash
}

// NewWalletContract parses the wallet ABI
func NewWalletContract(factory common.Address, initCodeHash common.Hash) (*WalletContract, error) {
	parsed, err := abi.JSON(strings.NewReader(walletABI))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse wallet abi")
	}
	return &WalletContract{abi: parsed, factory: factory, initCodeHash: initCodeHash}, nil
}

// AddressFor returns the counterfactual wallet address of owner
func (w *WalletContract) AddressFor(owner common.Address) common.Address {
	salt := crypto.Keccak256Hash(owner.Bytes())
	return crypto.CreateAddress2(w.factory, salt, w.initCodeHash.Bytes())
}

// PackExecute encodes execute(dest, value, data, signature)
func (w *WalletContract) PackExecute(dest common.Address, value *big.Int, data, signature []byte) ([]byte, error) {
	if data == nil {
		data = []byte{}
	}
	input, err := w.abi.Pack("execute", dest, value, data, signature)
	if err != nil {
		return nil, errors.Wrap(err, "failed to pack execute")
	}
	return input, nil
}

// UnpackExecute decodes execute call data
func (w *WalletContract) UnpackExecute(input []byte) (*ExecuteCall, error) {
	if len(input) < 4 {
		return nil, errors.New("call data too short")
	}
	method, err := w.abi.MethodById(input[:4])
	if err != nil {
		return nil, errors.Wrap(err, "unknown method")
	}
	if method.Name != "execute" {
		return nil, errors.Errorf("unexpected method %s", method.Name)
	}

	args, err := method.Inputs.Unpack(input[4:])
	if err != nil {
		return nil, errors.Wrap(err, "failed to unpack execute")
	}
	if len(args) != 4 {
		return nil, errors.Errorf("unexpected argument count: %d", len(args))
	}

	dest, ok1 := args[0].(common.Address)
	value, ok2 := args[1].(*big.Int)
	data, ok3 := args[2].([]byte)
	signature, ok4 := args[3].([]byte)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil, errors.New("unexpected execute argument types")
	}
	return &ExecuteCall{Dest: dest, Value: value, Data: data, Signature: signature}, nil
}

// IsNonceCall reports whether input is a nonce() call
func (w *WalletContract) IsNonceCall(input []byte) bool {
	return len(input) >= 4 && string(input[:4]) == string(w.abi.Methods["nonce"].ID)
}

// PackNonce encodes nonce()
func (w *WalletContract) PackNonce() ([]byte, error) {
	input, err := w.abi.Pack("nonce")
	if err != nil {
		return nil, errors.Wrap(err, "failed to pack nonce")
	}
	return input, nil
}

// UnpackNonce decodes the nonce() return value. Empty output (no code yet) is zero.
func (w *WalletContract) UnpackNonce(output []byte) (*big.Int, error) {
	if len(output) == 0 {
		return new(big.Int), nil
	}
	values, err := w.abi.Unpack("nonce", output)
	if err != nil {
		return nil, errors.Wrap(err, "failed to unpack nonce")
	}
	nonce, ok := values[0].(*big.Int)
	if !ok {
		return nil, errors.New("unexpected nonce type")
	}
	return nonce, nil
}

// PackNonceResult encodes a nonce() return value
func (w *WalletContract) PackNonceResult(nonce *big.Int) ([]byte, error) {
	out, err := w.abi.Methods["nonce"].Outputs.Pack(nonce)
	if err != nil {
		return nil, errors.Wrap(err, "failed to pack nonce result")
	}
	return out, nil
}
