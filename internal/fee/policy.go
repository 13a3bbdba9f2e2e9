package fee

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/params"
)

// Kind selects the price band
type Kind int

const (
	Normal Kind = iota
	// Aggressive targets periods where inclusion needs a materially higher price
	Aggressive
)

func (k Kind) String() string {
	if k == Aggressive {
		return "aggressive"
	}
	return "normal"
}

// Band bounds the unit price of one quote kind. MultiplierPercent is the safety
// margin added after clamping.
type Band struct {
	Min               *big.Int
	Max               *big.Int
	MultiplierPercent int64
}

func (b Band) validate(name string) error {
	if b.Min == nil || b.Max == nil {
		return fmt.Errorf("%s band bounds must be set", name)
	}
	if b.Min.Sign() <= 0 {
		return fmt.Errorf("%s band min must be positive", name)
	}
	if b.Max.Cmp(b.Min) < 0 {
		return fmt.Errorf("%s band max is below min", name)
	}
	if b.MultiplierPercent < 0 {
		return fmt.Errorf("%s band multiplier cannot be negative", name)
	}
	return nil
}

// FeePolicy is the fee and sponsorship configuration of one network.
// Amounts are in wei.
type FeePolicy struct {
	Normal     Band
	Aggressive Band

	// Fees strictly above this are always paid by the relayer
	SponsorThreshold *big.Int
	// Extra funding on top of the fee cost when sponsoring
	FundingMarginPercent int64
	// Relayer balance kept back for its own gas
	RelayerGasReserve *big.Int
	// Used when the live price cannot be read
	FallbackPrice *big.Int

	GasBufferPercent int64
	BumpPercent      int64

	RetryAttempts uint
	RetryInitial  time.Duration
}

// DefaultFeePolicy returns the policy used when nothing is configured
func DefaultFeePolicy() FeePolicy {
	return FeePolicy{
		Normal: Band{
			Min:               gwei(1),
			Max:               gwei(100),
			MultiplierPercent: 10,
		},
		Aggressive: Band{
			Min:               gwei(30),
			Max:               gwei(500),
			MultiplierPercent: 20,
		},
		SponsorThreshold:     big.NewInt(params.Ether),
		FundingMarginPercent: 10,
		RelayerGasReserve:    new(big.Int).Div(big.NewInt(params.Ether), big.NewInt(100)),
		FallbackPrice:        gwei(50),
		GasBufferPercent:     20,
		BumpPercent:          20,
		RetryAttempts:        3,
		RetryInitial:         200 * time.Millisecond,
	}
}

// Validate checks the policy at startup
func (p FeePolicy) Validate() error {
	if err := p.Normal.validate("normal"); err != nil {
		return err
	}
	if err := p.Aggressive.validate("aggressive"); err != nil {
		return err
	}
	if p.SponsorThreshold == nil || p.SponsorThreshold.Sign() <= 0 {
		return errors.New("sponsor threshold must be positive")
	}
	if p.FallbackPrice == nil || p.FallbackPrice.Sign() <= 0 {
		return errors.New("fallback price must be positive")
	}
	if p.RelayerGasReserve == nil || p.RelayerGasReserve.Sign() < 0 {
		return errors.New("relayer gas reserve cannot be negative")
	}
	if p.FundingMarginPercent < 0 || p.GasBufferPercent < 0 || p.BumpPercent < 0 {
		return errors.New("percentages cannot be negative")
	}
	if p.RetryAttempts == 0 {
		return errors.New("retry attempts must be at least 1")
	}
	return nil
}

// Band returns the band for kind
func (p FeePolicy) Band(kind Kind) Band {
	if kind == Aggressive {
		return p.Aggressive
	}
	return p.Normal
}

func gwei(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(params.GWei))
}
