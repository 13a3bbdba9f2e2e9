package funding

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/AlexZinkM/relay-wallet/internal/client"
	"github.com/AlexZinkM/relay-wallet/internal/common"
	"github.com/AlexZinkM/relay-wallet/internal/fee"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog/log"
)

// FundingResult describes what EnsureFunded did
type FundingResult struct {
	AlreadyFunded bool
	Amount        *big.Int
	TxID          ethcommon.Hash
}

// Agent decides and performs gas sponsorship from the relayer account
type Agent struct {
	// Serializes balance checks with the transfers they justify
	mu       sync.Mutex
	chain    client.Chain
	relayer  *Relayer
	oracle   *fee.Oracle
	policy   fee.FeePolicy
	// Relay fees held by sends that have not been mined yet
	reserved *big.Int
}

// Reservation holds part of the relayer balance for one relayed call
type Reservation struct {
	agent  *Agent
	amount *big.Int
	once   sync.Once
}

// Release returns the held amount. Calling it more than once is a no-op.
func (r *Reservation) Release() {
	if r == nil {
		return
	}
	r.once.Do(func() {
		r.agent.mu.Lock()
		r.agent.reserved.Sub(r.agent.reserved, r.amount)
		r.agent.mu.Unlock()
	})
}

// NewAgent creates an Agent using the oracle's policy
func NewAgent(chain client.Chain, relayer *Relayer, oracle *fee.Oracle) *Agent {
	return &Agent{
		chain:    chain,
		relayer:  relayer,
		oracle:   oracle,
		policy:   oracle.Policy(),
		reserved: new(big.Int),
	}
}

// Relayer returns the relayer account used for sponsorship
func (a *Agent) Relayer() *Relayer {
	return a.relayer
}

// Reserve is the relayer balance kept back for its own gas
func (a *Agent) Reserve() *big.Int {
	return new(big.Int).Set(a.policy.RelayerGasReserve)
}

// ShouldSponsor is true when the fee alone exceeds the sponsorship threshold.
// Wallet balance and transfer amount do not change the decision.
func (a *Agent) ShouldSponsor(feeCost, walletBalance, transferAmount *big.Int) bool {
	return feeCost != nil && feeCost.Cmp(a.policy.SponsorThreshold) > 0
}

// RequiredFunding is feeCost plus the funding margin
func (a *Agent) RequiredFunding(feeCost *big.Int) *big.Int {
	return common.AddPercent(feeCost, a.policy.FundingMarginPercent)
}

// RelayerBalance reads the relayer balance
func (a *Agent) RelayerBalance(ctx context.Context) (*big.Int, error) {
	balance, err := a.relayer.Balance(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get relayer balance: %w", err)
	}
	return balance, nil
}

// WalletBalance reads a wallet balance
func (a *Agent) WalletBalance(ctx context.Context, address ethcommon.Address) (*big.Int, error) {
	balance, err := a.chain.GetBalance(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet balance: %w", err)
	}
	return balance, nil
}

// Available is the relayer balance minus its gas reserve, never negative
func (a *Agent) Available(ctx context.Context) (*big.Int, error) {
	balance, err := a.RelayerBalance(ctx)
	if err != nil {
		return nil, err
	}
	return a.available(balance), nil
}

func (a *Agent) available(balance *big.Int) *big.Int {
	available := new(big.Int).Sub(balance, a.policy.RelayerGasReserve)
	if available.Sign() < 0 {
		return new(big.Int)
	}
	return available
}

// Reserved is the relayer balance currently held for in-flight relays
func (a *Agent) Reserved() *big.Int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return new(big.Int).Set(a.reserved)
}

// ReserveRelay holds cost of the relayer balance until the returned reservation
// is released. It fails with RelayerUnderfundedError when the balance left after
// the gas reserve and other reservations is short.
func (a *Agent) ReserveRelay(ctx context.Context, cost *big.Int) (*Reservation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	available, err := a.Available(ctx)
	if err != nil {
		return nil, err
	}
	required := new(big.Int).Add(cost, a.reserved)
	if available.Cmp(required) < 0 {
		return nil, a.underfunded(required, available)
	}

	a.reserved.Add(a.reserved, cost)
	return &Reservation{agent: a, amount: new(big.Int).Set(cost)}, nil
}

// EnsureFunded tops up wallet so it holds feeCost plus the funding margin.
// The relayer must afford the transfer, its gas and all reservations, which
// include the caller's own relay fee when it reserved one first.
// It waits for the transfer receipt; ctx bounds the wait.
func (a *Agent) EnsureFunded(ctx context.Context, wallet ethcommon.Address, feeCost *big.Int) (*FundingResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	required := a.RequiredFunding(feeCost)

	walletBalance, err := a.WalletBalance(ctx, wallet)
	if err != nil {
		return nil, err
	}
	if walletBalance.Cmp(required) >= 0 {
		log.Debug().Str("wallet", wallet.Hex()).Str("balance", walletBalance.String()).Msg("wallet already funded")
		return &FundingResult{AlreadyFunded: true, Amount: new(big.Int)}, nil
	}

	units, err := a.chain.EstimateExecutionCost(ctx, a.relayer.Address(), wallet, required, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to estimate funding transfer: %w", err)
	}
	quote, err := a.oracle.Quote(ctx, fee.Normal, units)
	if err != nil {
		return nil, err
	}

	// The transfer, its own gas and every held relay fee come out of one balance
	available, err := a.Available(ctx)
	if err != nil {
		return nil, err
	}
	total := new(big.Int).Add(required, quote.TotalCost)
	total.Add(total, a.reserved)
	if available.Cmp(total) < 0 {
		return nil, a.underfunded(total, available)
	}

	txID, err := a.relayer.Send(ctx, Call{
		To:       wallet,
		Value:    required,
		GasLimit: quote.BufferedUnits,
		GasPrice: quote.UnitPrice,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to send funding transfer: %w", err)
	}

	receipt, err := a.chain.WaitForReceipt(ctx, txID)
	if err != nil {
		return nil, fmt.Errorf("failed to confirm funding transfer %s: %w", txID.Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: %s", ErrFundingReverted, txID.Hex())
	}

	log.Info().
		Str("wallet", wallet.Hex()).
		Str("amount", common.WeiToNative(required)).
		Str("tx_id", txID.Hex()).
		Msg("wallet funded by relayer")
	return &FundingResult{Amount: required, TxID: txID}, nil
}

func (a *Agent) underfunded(required, available *big.Int) error {
	err := &RelayerUnderfundedError{
		Required:     new(big.Int).Set(required),
		Available:    new(big.Int).Set(available),
		TopUpAddress: a.relayer.Address(),
	}
	log.Warn().
		Str("required", required.String()).
		Str("available", available.String()).
		Str("top_up_address", err.TopUpAddress.Hex()).
		Msg("relayer underfunded")
	return err
}
