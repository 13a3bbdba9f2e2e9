package orchestrator

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/AlexZinkM/relay-wallet/internal/client"
	"github.com/AlexZinkM/relay-wallet/internal/crypto"
	"github.com/AlexZinkM/relay-wallet/internal/directory"
	"github.com/AlexZinkM/relay-wallet/internal/fee"
	"github.com/AlexZinkM/relay-wallet/internal/funding"
	"github.com/AlexZinkM/relay-wallet/internal/model"
	"github.com/AlexZinkM/relay-wallet/internal/testchain"
	"github.com/AlexZinkM/relay-wallet/internal/vault"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testChainID = big.NewInt(1337)
	dest        = ethcommon.HexToAddress("0x00000000000000000000000000000000000000d1")
	testPin     = []byte("123456")
)

func ether(f string) *big.Int {
	r, ok := new(big.Rat).SetString(f)
	if !ok {
		panic(f)
	}
	r.Mul(r, new(big.Rat).SetInt(big.NewInt(params.Ether)))
	return new(big.Int).Quo(r.Num(), r.Denom())
}

func gwei(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(params.GWei))
}

type fixture struct {
	codec    *crypto.Codec
	chain    *testchain.Chain
	contract *client.WalletContract
	keys     *vault.KeyVault
	dir      *directory.Store
	relayer  *funding.Relayer
	agent    *funding.Agent
	orch     *Orchestrator
}

func newFixture(t *testing.T, policyFn func(*fee.FeePolicy), cfgFn func(*Config)) *fixture {
	t.Helper()

	contract, err := client.NewWalletContract(ethcommon.HexToAddress("0xfa"), ethcommon.Hash{1})
	require.NoError(t, err)
	chain := testchain.New(testChainID, contract)

	codec := crypto.NewCodec(crypto.WithKDFParams(crypto.LightKDFParams()))
	session := vault.NewSessionContext(time.Hour)
	keys := vault.New(codec, vault.NewMemoryStore(), session)

	dir, err := directory.Open(filepath.Join(t.TempDir(), "directory.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = dir.Close() })

	relayerKey, err := codec.Generate()
	require.NoError(t, err)
	relayer, err := funding.NewRelayer(chain, relayerKey, testChainID)
	require.NoError(t, err)
	chain.SetBalance(relayer.Address(), ether("10"))

	policy := fee.DefaultFeePolicy()
	policy.RetryInitial = time.Millisecond
	if policyFn != nil {
		policyFn(&policy)
	}
	require.NoError(t, policy.Validate())
	oracle := fee.NewOracle(chain, policy)
	agent := funding.NewAgent(chain, relayer, oracle)

	cfg := Config{ChainID: testChainID, ReceiptTimeout: time.Second}
	if cfgFn != nil {
		cfgFn(&cfg)
	}

	return &fixture{
		codec:    codec,
		chain:    chain,
		contract: contract,
		keys:     keys,
		dir:      dir,
		relayer:  relayer,
		agent:    agent,
		orch:     New(cfg, session, keys, chain, contract, oracle, agent, dir),
	}
}

// addWallet registers a wallet with a sealed key; cached also unlocks it
func (f *fixture) addWallet(t *testing.T, id string, balance *big.Int, cached bool) ethcommon.Address {
	t.Helper()
	ctx := context.Background()

	material, err := f.codec.Generate()
	require.NoError(t, err)

	wallet := f.contract.AddressFor(material.Address)
	f.chain.RegisterWallet(wallet, material.Address)
	f.chain.SetBalance(wallet, balance)

	require.NoError(t, f.dir.Register(ctx, model.WalletRecord{
		ID:            id,
		OwnerAddress:  material.Address.Hex(),
		WalletAddress: wallet.Hex(),
		MnemonicHash:  crypto.Hash([]byte(material.Mnemonic)).Hex(),
	}))
	require.NoError(t, f.keys.Seal(ctx, id, material, testPin))
	if cached {
		require.NoError(t, f.keys.CacheForSession(id, material))
	}
	return wallet
}

func TestSendConfirmed(t *testing.T) {
	f := newFixture(t, nil, nil)
	wallet := f.addWallet(t, "alice", ether("1"), true)

	res, err := f.orch.SendTransaction(context.Background(), Intent{
		WalletID: "alice",
		To:       dest,
		Amount:   ether("0.1"),
	})
	require.NoError(t, err)

	assert.Equal(t, StatusConfirmed, res.Status)
	assert.NotEqual(t, ethcommon.Hash{}, res.TxID)
	assert.Equal(t, int64(0), res.Nonce.Int64())
	assert.False(t, res.Sponsored)
	assert.Nil(t, res.Funding)

	// 20 gwei raw, clamped to 30 gwei, plus 20%
	assert.Equal(t, gwei(36), res.Quote.UnitPrice)
	assert.Equal(t, uint64(testchain.ExecuteGas*120/100), res.Quote.BufferedUnits)
	assert.Equal(t, res.Quote.TotalCost, res.FeeCost)

	assert.Equal(t, ether("0.1"), f.chain.Balance(dest))
	assert.Equal(t, ether("0.9"), f.chain.Balance(wallet))
	assert.Equal(t, uint64(1), f.chain.Sequence(wallet))
}

func TestSendPinRequired(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.addWallet(t, "alice", ether("1"), false)
	intent := Intent{WalletID: "alice", To: dest, Amount: ether("0.1")}

	res, err := f.orch.SendTransaction(context.Background(), intent)
	require.NoError(t, err)
	assert.Equal(t, StatusPinRequired, res.Status)
	assert.Empty(t, f.chain.SequenceReads())
	assert.Equal(t, 0, f.chain.Receipts())

	_, err = f.keys.Unseal(context.Background(), "alice", testPin)
	require.NoError(t, err)

	res, err = f.orch.SendTransaction(context.Background(), intent)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, res.Status)
}

func TestSendUnknownWallet(t *testing.T) {
	f := newFixture(t, nil, nil)

	_, err := f.orch.SendTransaction(context.Background(), Intent{WalletID: "nobody", To: dest, Amount: big.NewInt(1)})
	assert.ErrorIs(t, err, ErrWalletNotFound)
}

func TestSendOwnerMismatch(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.addWallet(t, "alice", ether("1"), false)

	other, err := f.codec.Generate()
	require.NoError(t, err)
	require.NoError(t, f.keys.CacheForSession("alice", other))

	_, err = f.orch.SendTransaction(context.Background(), Intent{WalletID: "alice", To: dest, Amount: big.NewInt(1)})
	assert.ErrorIs(t, err, ErrOwnerMismatch)
	assert.Equal(t, 0, f.chain.Receipts())
}

func TestSendInvalidIntent(t *testing.T) {
	f := newFixture(t, nil, nil)

	tests := []struct {
		name   string
		intent Intent
	}{
		{"no wallet", Intent{To: dest, Amount: big.NewInt(1)}},
		{"no amount", Intent{WalletID: "alice", To: dest}},
		{"negative amount", Intent{WalletID: "alice", To: dest, Amount: big.NewInt(-1)}},
		{"no destination", Intent{WalletID: "alice", Amount: big.NewInt(1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.orch.SendTransaction(context.Background(), tt.intent)
			assert.ErrorIs(t, err, ErrInvalidIntent)
		})
	}
}

func TestSendSponsored(t *testing.T) {
	f := newFixture(t, func(p *fee.FeePolicy) {
		p.SponsorThreshold = ether("0.001")
	}, nil)
	wallet := f.addWallet(t, "alice", ether("0.001"), true)

	res, err := f.orch.SendTransaction(context.Background(), Intent{
		WalletID: "alice",
		To:       dest,
		Amount:   ether("0.005"),
	})
	require.NoError(t, err)

	assert.True(t, res.Sponsored)
	require.NotNil(t, res.Funding)
	assert.False(t, res.Funding.AlreadyFunded)

	// fee 36 gwei * 108000 units, plus 10%
	expectedFunding := new(big.Int).Mul(gwei(36), big.NewInt(108_000))
	expectedFunding.Mul(expectedFunding, big.NewInt(110)).Div(expectedFunding, big.NewInt(100))
	assert.Equal(t, expectedFunding, res.Funding.Amount)

	assert.Equal(t, ether("0.005"), f.chain.Balance(dest))
	remaining := new(big.Int).Add(ether("0.001"), expectedFunding)
	remaining.Sub(remaining, ether("0.005"))
	assert.Equal(t, remaining, f.chain.Balance(wallet))
}

func TestSendSponsoredStillInsufficient(t *testing.T) {
	f := newFixture(t, func(p *fee.FeePolicy) {
		p.SponsorThreshold = ether("0.001")
	}, nil)
	f.addWallet(t, "alice", big.NewInt(0), true)

	_, err := f.orch.SendTransaction(context.Background(), Intent{WalletID: "alice", To: dest, Amount: ether("1")})
	require.Error(t, err)

	var insufficient *InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.True(t, insufficient.Sponsored)
	assert.Equal(t, ether("1"), insufficient.Required)
	assert.Zero(t, f.chain.Balance(dest).Sign())
}

func TestSendInsufficientBalance(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.addWallet(t, "alice", ether("0.05"), true)

	_, err := f.orch.SendTransaction(context.Background(), Intent{WalletID: "alice", To: dest, Amount: ether("0.1")})
	require.Error(t, err)
	assert.True(t, IsInsufficientBalanceError(err))
	assert.False(t, IsSequenceNumberError(err))
	assert.Equal(t, 0, f.chain.Receipts())
}

func TestSendRelayerUnderfunded(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.addWallet(t, "alice", ether("1"), true)
	f.chain.SetBalance(f.relayer.Address(), ether("0.01"))

	_, err := f.orch.SendTransaction(context.Background(), Intent{WalletID: "alice", To: dest, Amount: ether("0.1")})
	require.Error(t, err)

	var underfunded *funding.RelayerUnderfundedError
	require.ErrorAs(t, err, &underfunded)
	assert.Equal(t, f.relayer.Address(), underfunded.TopUpAddress)
	assert.Zero(t, underfunded.Available.Sign())
	assert.Equal(t, 0, f.chain.Receipts())
}

func TestSendSponsoredRelayerCannotCoverFundingAndFee(t *testing.T) {
	f := newFixture(t, func(p *fee.FeePolicy) {
		p.SponsorThreshold = ether("0.001")
		p.RelayerGasReserve = ether("0.001")
	}, nil)
	wallet := f.addWallet(t, "alice", ether("0.002"), true)
	f.chain.SetBalance(f.relayer.Address(), ether("0.0065"))

	_, err := f.orch.SendTransaction(context.Background(), Intent{WalletID: "alice", To: dest, Amount: ether("0.001")})
	require.Error(t, err)

	var underfunded *funding.RelayerUnderfundedError
	require.ErrorAs(t, err, &underfunded)

	// relay fee 36 gwei * 108000, funding at +10%, transfer 22 gwei * 25200
	relayFee := new(big.Int).Mul(gwei(36), big.NewInt(108_000))
	fundingAmount := new(big.Int).Div(new(big.Int).Mul(relayFee, big.NewInt(110)), big.NewInt(100))
	transferGas := new(big.Int).Mul(gwei(22), big.NewInt(25_200))
	required := new(big.Int).Add(relayFee, fundingAmount)
	required.Add(required, transferGas)
	assert.Equal(t, required, underfunded.Required)
	assert.Equal(t, ether("0.0055"), underfunded.Available)

	assert.Equal(t, 0, f.chain.Receipts())
	assert.Equal(t, ether("0.002"), f.chain.Balance(wallet))
	assert.Equal(t, ether("0.0065"), f.chain.Balance(f.relayer.Address()))
	assert.Zero(t, f.agent.Reserved().Sign())
}

func TestSendSponsoredRelayerCoversFundingAndFee(t *testing.T) {
	relayFee := new(big.Int).Mul(gwei(36), big.NewInt(108_000))
	fundingAmount := new(big.Int).Div(new(big.Int).Mul(relayFee, big.NewInt(110)), big.NewInt(100))
	transferGas := new(big.Int).Mul(gwei(22), big.NewInt(25_200))

	exact := new(big.Int).Add(relayFee, fundingAmount)
	exact.Add(exact, transferGas)
	exact.Add(exact, ether("0.001"))

	tests := []struct {
		name    string
		balance *big.Int
		wantErr bool
	}{
		{"exactly enough", exact, false},
		{"one wei short", new(big.Int).Sub(exact, big.NewInt(1)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, func(p *fee.FeePolicy) {
				p.SponsorThreshold = ether("0.001")
				p.RelayerGasReserve = ether("0.001")
			}, nil)
			wallet := f.addWallet(t, "alice", ether("0.002"), true)
			f.chain.SetBalance(f.relayer.Address(), tt.balance)

			res, err := f.orch.SendTransaction(context.Background(), Intent{WalletID: "alice", To: dest, Amount: ether("0.001")})
			if tt.wantErr {
				assert.True(t, funding.IsRelayerUnderfunded(err))
				assert.Equal(t, ether("0.002"), f.chain.Balance(wallet))
				assert.Equal(t, 0, f.chain.Receipts())
			} else {
				require.NoError(t, err)
				assert.True(t, res.Sponsored)
				assert.Equal(t, 2, f.chain.Receipts())
				assert.Equal(t, ether("0.001"), f.chain.Balance(dest))
			}
			assert.Zero(t, f.agent.Reserved().Sign())
		})
	}
}

func TestConcurrentSendsUseDistinctSequenceNumbers(t *testing.T) {
	f := newFixture(t, nil, nil)
	wallet := f.addWallet(t, "alice", ether("1"), true)

	const sends = 2
	var wg sync.WaitGroup
	results := make(chan *SendResult, sends)
	errs := make(chan error, sends)
	for i := 0; i < sends; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.orch.SendTransaction(context.Background(), Intent{WalletID: "alice", To: dest, Amount: ether("0.1")})
			if err != nil {
				errs <- err
				return
			}
			results <- res
		}()
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	var nonces []int64
	for res := range results {
		nonces = append(nonces, res.Nonce.Int64())
	}
	sort.Slice(nonces, func(i, j int) bool { return nonces[i] < nonces[j] })
	assert.Equal(t, []int64{0, 1}, nonces)

	reads := f.chain.SequenceReads()
	require.Len(t, reads, sends)
	assert.NotEqual(t, reads[0].Nonce, reads[1].Nonce)
	assert.Equal(t, uint64(sends), f.chain.Sequence(wallet))
	assert.Equal(t, ether("0.2"), f.chain.Balance(dest))
}

func TestSendsForDifferentWalletsProceed(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.addWallet(t, "alice", ether("1"), true)
	f.addWallet(t, "bob", ether("1"), true)

	var wg sync.WaitGroup
	for _, id := range []string{"alice", "bob"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			res, err := f.orch.SendTransaction(context.Background(), Intent{WalletID: id, To: dest, Amount: ether("0.1")})
			assert.NoError(t, err)
			if res != nil {
				assert.Equal(t, int64(0), res.Nonce.Int64())
			}
		}(id)
	}
	wg.Wait()
	assert.Equal(t, ether("0.2"), f.chain.Balance(dest))
}

func TestSendRetriesStaleSequenceOnce(t *testing.T) {
	f := newFixture(t, nil, nil)
	wallet := f.addWallet(t, "alice", ether("1"), true)

	// Another relay consumes nonce 0 right after our first read
	var once sync.Once
	f.chain.OnSequenceRead = func(w ethcommon.Address, _ uint64) {
		once.Do(func() { f.chain.SetSequence(w, 1) })
	}

	res, err := f.orch.SendTransaction(context.Background(), Intent{WalletID: "alice", To: dest, Amount: ether("0.1")})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Nonce.Int64())
	assert.Len(t, f.chain.SequenceReads(), 2)
	assert.Equal(t, uint64(2), f.chain.Sequence(wallet))
}

func TestSendStaleSequenceTwiceFails(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.addWallet(t, "alice", ether("1"), true)

	f.chain.OnSequenceRead = func(w ethcommon.Address, n uint64) {
		f.chain.SetSequence(w, n+1)
	}

	_, err := f.orch.SendTransaction(context.Background(), Intent{WalletID: "alice", To: dest, Amount: ether("0.1")})
	require.Error(t, err)
	assert.True(t, IsSequenceNumberError(err))
	assert.ErrorIs(t, err, client.ErrInvalidSequence)
	assert.Len(t, f.chain.SequenceReads(), 2)
	assert.Equal(t, 0, f.chain.Receipts())
}

func TestSendRetriesRelayerNonceTooLow(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.addWallet(t, "alice", ether("1"), true)
	f.chain.FailNextSubmit(errors.New("nonce too low: next nonce 3, tx nonce 2"))

	res, err := f.orch.SendTransaction(context.Background(), Intent{WalletID: "alice", To: dest, Amount: ether("0.1")})
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, res.Status)
	assert.Len(t, f.chain.SequenceReads(), 2)
}

func TestSendRelayerNonceIsNotWalletSequence(t *testing.T) {
	tests := []struct {
		name      string
		failures  []error
		wantErr   func(error) bool
		wantReads int
	}{
		{
			name: "relayer nonce twice",
			failures: []error{
				errors.New("nonce too low: next nonce 3, tx nonce 2"),
				errors.New("nonce too low: next nonce 4, tx nonce 3"),
			},
			wantErr:   IsRelayerNonceError,
			wantReads: 2,
		},
		{
			name: "relayer nonce then wallet sequence keep separate retries",
			failures: []error{
				errors.New("nonce too low: next nonce 3, tx nonce 2"),
				errors.New("execution reverted: invalid nonce"),
			},
			wantReads: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil, nil)
			f.addWallet(t, "alice", ether("1"), true)
			f.chain.FailNextSubmit(tt.failures...)

			res, err := f.orch.SendTransaction(context.Background(), Intent{WalletID: "alice", To: dest, Amount: ether("0.1")})
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, tt.wantErr(err))
				assert.False(t, IsSequenceNumberError(err))

				var nonceErr *RelayerNonceError
				require.ErrorAs(t, err, &nonceErr)
				assert.Equal(t, f.relayer.Address(), nonceErr.Relayer)
			} else {
				require.NoError(t, err)
				assert.Equal(t, StatusConfirmed, res.Status)
			}
			assert.Len(t, f.chain.SequenceReads(), tt.wantReads)
			assert.Zero(t, f.agent.Reserved().Sign())
		})
	}
}

func TestSendBumpsUnderpricedFee(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.addWallet(t, "alice", ether("1"), true)
	f.chain.SetMinGasPrice(gwei(40))

	res, err := f.orch.SendTransaction(context.Background(), Intent{WalletID: "alice", To: dest, Amount: ether("0.1")})
	require.NoError(t, err)

	// 36 gwei rejected, bumped by 20%
	expected := new(big.Int).Div(new(big.Int).Mul(gwei(36), big.NewInt(120)), big.NewInt(100))
	assert.Equal(t, expected, res.Quote.UnitPrice)
	assert.Equal(t, 1, f.chain.Receipts())
}

func TestSendUnderpricedTwiceFails(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.addWallet(t, "alice", ether("1"), true)
	f.chain.SetMinGasPrice(gwei(100))

	_, err := f.orch.SendTransaction(context.Background(), Intent{WalletID: "alice", To: dest, Amount: ether("0.1")})
	require.Error(t, err)
	assert.True(t, IsFeeUnderpricedError(err))
	assert.ErrorIs(t, err, client.ErrUnderpriced)
	assert.Equal(t, 0, f.chain.Receipts())
}

func TestSendReceiptTimeout(t *testing.T) {
	f := newFixture(t, nil, func(c *Config) {
		c.ReceiptTimeout = 20 * time.Millisecond
	})
	wallet := f.addWallet(t, "alice", ether("1"), true)
	f.chain.HoldReceipts(true)

	_, err := f.orch.SendTransaction(context.Background(), Intent{WalletID: "alice", To: dest, Amount: ether("0.1")})
	require.Error(t, err)

	var timeout *ReceiptTimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.NotEqual(t, ethcommon.Hash{}, timeout.TxID)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The transaction still landed
	assert.Equal(t, uint64(1), f.chain.Sequence(wallet))
}

func TestSendReverted(t *testing.T) {
	f := newFixture(t, nil, nil)
	wallet := f.addWallet(t, "alice", ether("1"), true)
	f.chain.RevertNext(1)

	_, err := f.orch.SendTransaction(context.Background(), Intent{WalletID: "alice", To: dest, Amount: ether("0.1")})
	require.Error(t, err)
	assert.True(t, IsRelayRevertedError(err))
	assert.Equal(t, uint64(0), f.chain.Sequence(wallet))
	assert.Equal(t, ether("1"), f.chain.Balance(wallet))
	assert.Equal(t, 1, f.chain.Receipts())
}

func TestKeyedMutexReleasesKeys(t *testing.T) {
	k := newKeyedMutex()
	unlock := k.Lock("a")
	unlockB := k.Lock("b")
	unlockB()
	unlock()

	k.mu.Lock()
	defer k.mu.Unlock()
	assert.Empty(t, k.locks)
}
