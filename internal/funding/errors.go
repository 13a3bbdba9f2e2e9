package funding

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/AlexZinkM/relay-wallet/internal/common"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

var (
	// ErrRelayerKeyExists is returned when relayer-init finds a sealed relayer key
	ErrRelayerKeyExists = errors.New("relayer key already exists")

	// ErrFundingReverted is returned when the funding transfer is mined but failed
	ErrFundingReverted = errors.New("funding transfer reverted")
)

// RelayerUnderfundedError is returned when the relayer cannot cover a fee or funding
// transfer. It carries the shortfall so an operator can top up manually.
type RelayerUnderfundedError struct {
	Required     *big.Int
	Available    *big.Int
	TopUpAddress ethcommon.Address
}

func (e *RelayerUnderfundedError) Error() string {
	return fmt.Sprintf("relayer underfunded: required %s, available %s, top up %s",
		common.WeiToNative(e.Required), common.WeiToNative(e.Available), e.TopUpAddress.Hex())
}

// Shortfall is Required minus Available
func (e *RelayerUnderfundedError) Shortfall() *big.Int {
	return new(big.Int).Sub(e.Required, e.Available)
}

// IsRelayerUnderfunded checks if error is RelayerUnderfundedError
func IsRelayerUnderfunded(err error) bool {
	var target *RelayerUnderfundedError
	return errors.As(err, &target)
}
