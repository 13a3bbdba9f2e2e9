package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/AlexZinkM/relay-wallet/internal/client"
	"github.com/AlexZinkM/relay-wallet/internal/crypto"
	"github.com/AlexZinkM/relay-wallet/internal/directory"
	"github.com/AlexZinkM/relay-wallet/internal/fee"
	"github.com/AlexZinkM/relay-wallet/internal/funding"
	"github.com/AlexZinkM/relay-wallet/internal/model"
	"github.com/AlexZinkM/relay-wallet/internal/vault"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog/log"
)

// State is a step of one send
type State string

const (
	StateIdle         State = "idle"
	StateResolvingKey State = "resolving_key"
	StateSigning      State = "signing"
	StateQuoting      State = "quoting"
	StateSponsoring   State = "sponsoring"
	StateRelaying     State = "relaying"
	StateConfirming   State = "confirming"
	StateDone         State = "done"
	StateFailed       State = "failed"
)

// Status is the outcome of SendTransaction when it returns no error
type Status string

const (
	StatusConfirmed   Status = "confirmed"
	StatusPinRequired Status = "pin_required"
)

// Intent is a transfer request from a wallet
type Intent struct {
	WalletID string
	To       ethcommon.Address
	Amount   *big.Int
	Data     []byte
}

// SendResult is a completed send or a request for the PIN
type SendResult struct {
	Status    Status
	TxID      ethcommon.Hash
	Nonce     *big.Int
	Sponsored bool
	Funding   *funding.FundingResult
	Quote     *fee.FeeQuote
	// FeeCost is gas used times the effective price, as paid by the relayer
	FeeCost *big.Int
}

// Directory resolves wallet records
type Directory interface {
	Lookup(ctx context.Context, id string) (*model.WalletRecord, error)
}

// Config holds the orchestrator timings
type Config struct {
	ChainID        *big.Int
	ReceiptTimeout time.Duration
	SettleDelay    time.Duration
}

// Orchestrator runs the resolve, sign, quote, sponsor and relay pipeline
type Orchestrator struct {
	cfg       Config
	session   *vault.SessionContext
	vault     *vault.KeyVault
	chain     client.Chain
	contract  *client.WalletContract
	oracle    *fee.Oracle
	agent     *funding.Agent
	directory Directory
	locks     *keyedMutex
}

// New creates an Orchestrator
func New(
	cfg Config,
	session *vault.SessionContext,
	keys *vault.KeyVault,
	chain client.Chain,
	contract *client.WalletContract,
	oracle *fee.Oracle,
	agent *funding.Agent,
	dir Directory,
) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		session:   session,
		vault:     keys,
		chain:     chain,
		contract:  contract,
		oracle:    oracle,
		agent:     agent,
		directory: dir,
		locks:     newKeyedMutex(),
	}
}

// sendState carries what one attempt learned into the next
type sendState struct {
	walletID string
	wallet   ethcommon.Address
	material *crypto.WalletKeyMaterial
	funding  *funding.FundingResult
	// set after an underpriced rejection
	rejected *fee.FeeQuote
	state    State
}

// SendTransaction relays intent through the wallet's smart-contract wallet.
// Sends for one wallet run one at a time. A wallet whose key is only sealed yields
// StatusPinRequired and no error; unseal it and retry the same intent.
func (o *Orchestrator) SendTransaction(ctx context.Context, intent Intent) (*SendResult, error) {
	if err := validateIntent(intent); err != nil {
		return nil, err
	}

	unlock := o.locks.Lock(intent.WalletID)
	defer unlock()

	started := o.session.CurrentTime()
	st := &sendState{walletID: intent.WalletID, state: StateIdle}

	result, err := o.send(ctx, intent, st)
	if err != nil {
		o.transition(st, StateFailed)
		log.Error().Err(err).
			Str("wallet_id", intent.WalletID).
			Dur("elapsed", o.session.CurrentTime().Sub(started)).
			Msg("send failed")
		return nil, err
	}
	if result.Status == StatusPinRequired {
		log.Info().Str("wallet_id", intent.WalletID).Msg("pin required to send")
		return result, nil
	}

	o.transition(st, StateDone)
	log.Info().
		Str("wallet_id", intent.WalletID).
		Str("tx_id", result.TxID.Hex()).
		Str("nonce", result.Nonce.String()).
		Bool("sponsored", result.Sponsored).
		Str("fee_cost", result.FeeCost.String()).
		Dur("elapsed", o.session.CurrentTime().Sub(started)).
		Msg("send confirmed")
	return result, nil
}

func (o *Orchestrator) send(ctx context.Context, intent Intent, st *sendState) (*SendResult, error) {
	o.transition(st, StateResolvingKey)
	res, err := o.vault.Resolve(ctx, intent.WalletID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve key: %w", err)
	}
	switch res.Status {
	case vault.StatusPinRequired:
		return &SendResult{Status: StatusPinRequired}, nil
	case vault.StatusNotFound:
		return nil, ErrWalletNotFound
	}
	st.material = res.Material
	defer st.material.Wipe()

	record, err := o.directory.Lookup(ctx, intent.WalletID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to look up wallet: %w", err)
	}
	if !strings.EqualFold(record.OwnerAddress, st.material.Address.Hex()) {
		return nil, ErrOwnerMismatch
	}
	st.wallet = ethcommon.HexToAddress(record.WalletAddress)

	var sequenceRetried, relayerNonceRetried, feeRetried bool
	for {
		result, err := o.attempt(ctx, intent, st)
		if err == nil {
			return result, nil
		}

		var underpriced *FeeUnderpricedError
		switch {
		case IsSequenceNumberError(err) && !sequenceRetried:
			sequenceRetried = true
			log.Warn().Err(err).Str("wallet_id", intent.WalletID).Msg("retrying with fresh sequence number")
		case IsRelayerNonceError(err) && !relayerNonceRetried:
			relayerNonceRetried = true
			log.Warn().Err(err).Str("wallet_id", intent.WalletID).Msg("retrying after relayer nonce resync")
		case errors.As(err, &underpriced) && !feeRetried:
			feeRetried = true
			st.rejected = underpriced.Quote
			log.Warn().Err(err).Str("wallet_id", intent.WalletID).Msg("retrying with bumped fee")
		default:
			return nil, err
		}
	}
}

// attempt is one pass from the sequence read to the receipt
func (o *Orchestrator) attempt(ctx context.Context, intent Intent, st *sendState) (*SendResult, error) {
	o.transition(st, StateSigning)
	nonce, err := o.chain.GetSequenceNumber(ctx, st.wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sequence number: %w", err)
	}

	digest := crypto.AuthorizationDigest(o.cfg.ChainID, st.wallet, intent.To, intent.Amount, intent.Data, nonce)
	signature, err := crypto.SignAuthorization(st.material, digest)
	if err != nil {
		return nil, err
	}
	input, err := o.contract.PackExecute(intent.To, intent.Amount, intent.Data, signature)
	if err != nil {
		return nil, err
	}

	o.transition(st, StateQuoting)
	relayer := o.agent.Relayer()
	units, err := o.chain.EstimateExecutionCost(ctx, relayer.Address(), st.wallet, new(big.Int), input)
	if err != nil {
		if errors.Is(err, client.ErrInvalidSequence) {
			return nil, &SequenceNumberError{WalletID: st.walletID, Nonce: nonce, Err: err}
		}
		return nil, fmt.Errorf("failed to estimate execution cost: %w", err)
	}

	var quote *fee.FeeQuote
	if st.rejected != nil {
		quote = o.oracle.Bump(st.rejected)
	} else {
		quote, err = o.oracle.Quote(ctx, fee.Aggressive, units)
		if err != nil {
			return nil, err
		}
	}

	// Held until the receipt so a sponsorship for this or another wallet
	// cannot spend the relay fee first
	reservation, err := o.agent.ReserveRelay(ctx, quote.TotalCost)
	if err != nil {
		return nil, err
	}
	defer reservation.Release()

	sponsored, err := o.ensureBalance(ctx, intent, st, quote)
	if err != nil {
		return nil, err
	}

	o.transition(st, StateRelaying)
	txID, err := relayer.Send(ctx, funding.Call{
		To:       st.wallet,
		Data:     input,
		GasLimit: quote.BufferedUnits,
		GasPrice: quote.UnitPrice,
	})
	if err != nil {
		switch {
		case errors.Is(err, client.ErrNonceTooLow):
			return nil, &RelayerNonceError{Relayer: relayer.Address(), Err: err}
		case errors.Is(err, client.ErrInvalidSequence):
			return nil, &SequenceNumberError{WalletID: st.walletID, Nonce: nonce, Err: err}
		case errors.Is(err, client.ErrUnderpriced):
			return nil, &FeeUnderpricedError{Quote: quote, Err: err}
		}
		return nil, err
	}

	o.transition(st, StateConfirming)
	receipt, err := o.waitForReceipt(ctx, txID)
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, &RelayRevertedError{TxID: txID}
	}

	return &SendResult{
		Status:    StatusConfirmed,
		TxID:      txID,
		Nonce:     nonce,
		Sponsored: sponsored,
		Funding:   st.funding,
		Quote:     quote,
		FeeCost:   realizedFee(receipt, quote),
	}, nil
}

// ensureBalance sponsors the wallet when the fee calls for it and checks the wallet
// can cover the transfer amount
func (o *Orchestrator) ensureBalance(ctx context.Context, intent Intent, st *sendState, quote *fee.FeeQuote) (bool, error) {
	balance, err := o.agent.WalletBalance(ctx, st.wallet)
	if err != nil {
		return false, err
	}

	if !o.agent.ShouldSponsor(quote.TotalCost, balance, intent.Amount) {
		if balance.Cmp(intent.Amount) < 0 {
			return false, &InsufficientBalanceError{Required: intent.Amount, Available: balance}
		}
		return false, nil
	}

	o.transition(st, StateSponsoring)
	result, err := o.agent.EnsureFunded(ctx, st.wallet, quote.TotalCost)
	if err != nil {
		return true, err
	}
	if st.funding == nil || !result.AlreadyFunded {
		st.funding = result
	}

	if !result.AlreadyFunded && o.cfg.SettleDelay > 0 {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case <-time.After(o.cfg.SettleDelay):
		}
	}

	balance, err = o.agent.WalletBalance(ctx, st.wallet)
	if err != nil {
		return true, err
	}
	if balance.Cmp(intent.Amount) < 0 {
		return true, &InsufficientBalanceError{Required: intent.Amount, Available: balance, Sponsored: true}
	}
	return true, nil
}

func (o *Orchestrator) waitForReceipt(ctx context.Context, txID ethcommon.Hash) (*types.Receipt, error) {
	waitCtx := ctx
	if o.cfg.ReceiptTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, o.cfg.ReceiptTimeout)
		defer cancel()
	}

	receipt, err := o.chain.WaitForReceipt(waitCtx, txID)
	if err != nil {
		return nil, &ReceiptTimeoutError{TxID: txID, Err: err}
	}
	return receipt, nil
}

func (o *Orchestrator) transition(st *sendState, to State) {
	log.Debug().
		Str("wallet_id", st.walletID).
		Str("from", string(st.state)).
		Str("to", string(to)).
		Msg("send state")
	st.state = to
}

func realizedFee(receipt *types.Receipt, quote *fee.FeeQuote) *big.Int {
	if receipt.EffectiveGasPrice == nil || receipt.GasUsed == 0 {
		return new(big.Int).Set(quote.TotalCost)
	}
	return new(big.Int).Mul(receipt.EffectiveGasPrice, new(big.Int).SetUint64(receipt.GasUsed))
}

func validateIntent(intent Intent) error {
	if strings.TrimSpace(intent.WalletID) == "" {
		return fmt.Errorf("%w: wallet id is required", ErrInvalidIntent)
	}
	if intent.Amount == nil || intent.Amount.Sign() < 0 {
		return fmt.Errorf("%w: amount must be non-negative", ErrInvalidIntent)
	}
	if intent.To == (ethcommon.Address{}) {
		return fmt.Errorf("%w: destination is required", ErrInvalidIntent)
	}
	return nil
}
