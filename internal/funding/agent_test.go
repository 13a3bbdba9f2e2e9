package funding

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/AlexZinkM/relay-wallet/internal/client"
	"github.com/AlexZinkM/relay-wallet/internal/crypto"
	"github.com/AlexZinkM/relay-wallet/internal/fee"
	"github.com/AlexZinkM/relay-wallet/internal/testchain"
	"github.com/AlexZinkM/relay-wallet/internal/vault"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testChainID = big.NewInt(1337)

func ether(f string) *big.Int {
	r, ok := new(big.Rat).SetString(f)
	if !ok {
		panic(f)
	}
	r.Mul(r, new(big.Rat).SetInt(big.NewInt(params.Ether)))
	return new(big.Int).Quo(r.Num(), r.Denom())
}

type setup struct {
	chain   *testchain.Chain
	relayer *Relayer
	agent   *Agent
}

// transferGasCost is the Normal-band quote for a plain transfer at the default
// 20 gwei network price: 22 gwei * 25200 buffered units
var transferGasCost = new(big.Int).Mul(big.NewInt(22*params.GWei), big.NewInt(25_200))

func newSetup(t *testing.T, relayerBalance *big.Int) *setup {
	t.Helper()
	contract, err := client.NewWalletContract(ethcommon.HexToAddress("0xfa"), ethcommon.Hash{1})
	require.NoError(t, err)
	chain := testchain.New(testChainID, contract)

	material, err := crypto.NewCodec().Generate()
	require.NoError(t, err)
	relayer, err := NewRelayer(chain, material, testChainID)
	require.NoError(t, err)
	chain.SetBalance(relayer.Address(), relayerBalance)

	policy := fee.DefaultFeePolicy()
	policy.RetryInitial = time.Millisecond
	agent := NewAgent(chain, relayer, fee.NewOracle(chain, policy))
	return &setup{chain: chain, relayer: relayer, agent: agent}
}

func TestShouldSponsor(t *testing.T) {
	s := newSetup(t, ether("10"))

	tests := []struct {
		name    string
		fee     *big.Int
		balance *big.Int
		amount  *big.Int
		want    bool
	}{
		{"above threshold, empty wallet", ether("1.2"), big.NewInt(0), ether("0.5"), true},
		{"above threshold, rich wallet", ether("1.2"), ether("1000"), ether("0.5"), true},
		{"at threshold", ether("1"), big.NewInt(0), ether("0.5"), false},
		{"below threshold, empty wallet", ether("0.5"), big.NewInt(0), ether("5"), false},
		{"nil fee", nil, big.NewInt(0), big.NewInt(0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.agent.ShouldSponsor(tt.fee, tt.balance, tt.amount))
		})
	}
}

func TestEnsureFundedTransfersFeePlusMargin(t *testing.T) {
	s := newSetup(t, ether("10"))
	wallet := ethcommon.HexToAddress("0x1234567890123456789012345678901234567890")

	feeCost := ether("1.2")
	require.True(t, s.agent.ShouldSponsor(feeCost, big.NewInt(0), ether("0.1")))

	res, err := s.agent.EnsureFunded(context.Background(), wallet, feeCost)
	require.NoError(t, err)
	assert.False(t, res.AlreadyFunded)
	assert.Equal(t, ether("1.32"), res.Amount)
	assert.NotEqual(t, ethcommon.Hash{}, res.TxID)

	assert.Equal(t, ether("1.32"), s.chain.Balance(wallet))

	// Relayer paid the transfer plus its own gas
	spent := new(big.Int).Sub(ether("10"), s.chain.Balance(s.relayer.Address()))
	assert.Equal(t, 1, spent.Cmp(ether("1.32")))
}

func TestEnsureFundedAlreadyFunded(t *testing.T) {
	s := newSetup(t, ether("10"))
	wallet := ethcommon.HexToAddress("0x1234567890123456789012345678901234567890")
	s.chain.SetBalance(wallet, ether("1.32"))

	res, err := s.agent.EnsureFunded(context.Background(), wallet, ether("1.2"))
	require.NoError(t, err)
	assert.True(t, res.AlreadyFunded)
	assert.Zero(t, res.Amount.Sign())
	assert.Equal(t, 0, s.chain.Receipts())
	assert.Equal(t, ether("10"), s.chain.Balance(s.relayer.Address()))
}

func TestEnsureFundedRelayerUnderfunded(t *testing.T) {
	s := newSetup(t, ether("1"))
	wallet := ethcommon.HexToAddress("0x1234567890123456789012345678901234567890")

	_, err := s.agent.EnsureFunded(context.Background(), wallet, ether("1.2"))
	require.Error(t, err)
	require.True(t, IsRelayerUnderfunded(err))

	var underfunded *RelayerUnderfundedError
	require.ErrorAs(t, err, &underfunded)
	assert.Equal(t, new(big.Int).Add(ether("1.32"), transferGasCost), underfunded.Required)
	assert.Equal(t, ether("0.99"), underfunded.Available)
	assert.Equal(t, new(big.Int).Add(ether("0.33"), transferGasCost), underfunded.Shortfall())
	assert.Equal(t, s.relayer.Address(), underfunded.TopUpAddress)
	assert.Contains(t, err.Error(), s.relayer.Address().Hex())

	assert.Equal(t, 0, s.chain.Receipts())
	assert.Zero(t, s.chain.Balance(wallet).Sign())
}

func TestEnsureFundedCountsReservedRelayFee(t *testing.T) {
	ctx := context.Background()
	wallet := ethcommon.HexToAddress("0x1234567890123456789012345678901234567890")
	feeCost := ether("1.2")

	tests := []struct {
		name           string
		relayerBalance *big.Int
		wantFunded     bool
	}{
		// 0.01 gas reserve + 1.2 relay fee + 1.32 funding + transfer gas
		{"covers relay fee and funding", ether("2.54"), true},
		{"covers funding but not relay fee", ether("2.5"), false},
		{"covers relay fee only", ether("1.3"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSetup(t, tt.relayerBalance)

			reservation, err := s.agent.ReserveRelay(ctx, feeCost)
			require.NoError(t, err)
			defer reservation.Release()

			res, err := s.agent.EnsureFunded(ctx, wallet, feeCost)
			if tt.wantFunded {
				require.NoError(t, err)
				assert.Equal(t, ether("1.32"), res.Amount)
				return
			}

			var underfunded *RelayerUnderfundedError
			require.ErrorAs(t, err, &underfunded)
			want := new(big.Int).Add(ether("2.52"), transferGasCost)
			assert.Equal(t, want, underfunded.Required)
			assert.Equal(t, 0, s.chain.Receipts())
			assert.Zero(t, s.chain.Balance(wallet).Sign())
			assert.Equal(t, tt.relayerBalance, s.chain.Balance(s.relayer.Address()))
		})
	}
}

func TestReserveRelay(t *testing.T) {
	ctx := context.Background()
	s := newSetup(t, ether("0.005"))

	available, err := s.agent.Available(ctx)
	require.NoError(t, err)
	assert.Zero(t, available.Sign())

	_, err = s.agent.ReserveRelay(ctx, big.NewInt(1))
	assert.True(t, IsRelayerUnderfunded(err))

	s.chain.SetBalance(s.relayer.Address(), ether("1"))
	first, err := s.agent.ReserveRelay(ctx, ether("0.5"))
	require.NoError(t, err)
	assert.Equal(t, ether("0.5"), s.agent.Reserved())

	// 0.49 left after the gas reserve and the first hold
	_, err = s.agent.ReserveRelay(ctx, ether("0.5"))
	var underfunded *RelayerUnderfundedError
	require.ErrorAs(t, err, &underfunded)
	assert.Equal(t, ether("1"), underfunded.Required)
	assert.Equal(t, ether("0.99"), underfunded.Available)

	first.Release()
	first.Release()
	assert.Zero(t, s.agent.Reserved().Sign())

	second, err := s.agent.ReserveRelay(ctx, ether("0.99"))
	require.NoError(t, err)
	second.Release()
	assert.Zero(t, s.agent.Reserved().Sign())
}

func TestReserveRelayConcurrent(t *testing.T) {
	ctx := context.Background()
	// room for exactly three holds of 0.3 after the 0.01 gas reserve
	s := newSetup(t, ether("0.91"))

	const callers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	var held []*Reservation
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := s.agent.ReserveRelay(ctx, ether("0.3"))
			if err != nil {
				assert.True(t, IsRelayerUnderfunded(err))
				return
			}
			mu.Lock()
			held = append(held, r)
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, held, 3)
	assert.Equal(t, ether("0.9"), s.agent.Reserved())
	for _, r := range held {
		r.Release()
	}
	assert.Zero(t, s.agent.Reserved().Sign())
}

func TestRelayerSerializesNonces(t *testing.T) {
	s := newSetup(t, ether("10"))
	dest := ethcommon.HexToAddress("0x1234567890123456789012345678901234567890")

	const sends = 10
	var wg sync.WaitGroup
	errs := make(chan error, sends)
	for i := 0; i < sends; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.relayer.Send(context.Background(), Call{
				To:       dest,
				Value:    big.NewInt(1),
				GasLimit: testchain.TransferGas,
				GasPrice: big.NewInt(params.GWei),
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, sends, s.chain.Receipts())
	assert.Equal(t, big.NewInt(sends), s.chain.Balance(dest))

	nonce, err := s.chain.PendingNonce(context.Background(), s.relayer.Address())
	require.NoError(t, err)
	assert.Equal(t, uint64(sends), nonce)
}

func TestRelayerKeyLifecycle(t *testing.T) {
	ctx := context.Background()
	codec := crypto.NewCodec(crypto.WithKDFParams(crypto.LightKDFParams()))
	store := vault.NewMemoryStore()

	address, err := CreateRelayerKey(ctx, codec, store, []byte("operator"))
	require.NoError(t, err)

	_, err = CreateRelayerKey(ctx, codec, store, []byte("operator"))
	assert.ErrorIs(t, err, ErrRelayerKeyExists)

	material, err := LoadRelayerKey(ctx, codec, store, []byte("operator"))
	require.NoError(t, err)
	assert.Equal(t, address, material.Address)

	_, err = LoadRelayerKey(ctx, codec, store, []byte("wrong"))
	assert.ErrorIs(t, err, vault.ErrVaultUnseal)
}
