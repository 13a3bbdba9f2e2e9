package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/AlexZinkM/relay-wallet/internal/client"
	"github.com/AlexZinkM/relay-wallet/internal/config"
	"github.com/AlexZinkM/relay-wallet/internal/crypto"
	"github.com/AlexZinkM/relay-wallet/internal/directory"
	"github.com/AlexZinkM/relay-wallet/internal/fee"
	"github.com/AlexZinkM/relay-wallet/internal/funding"
	"github.com/AlexZinkM/relay-wallet/internal/orchestrator"
	"github.com/AlexZinkM/relay-wallet/internal/vault"
	"github.com/AlexZinkM/relay-wallet/wallet"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// services are the long-lived dependencies of the server
type services struct {
	wallet  *wallet.Service
	closers []func() error
}

func (s *services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			log.Warn().Err(err).Msg("failed to close resource")
		}
	}
}

// openVaultStore returns the durable store selected by VAULT_BACKEND
func openVaultStore(ctx context.Context, cfg *config.Config) (vault.DurableStore, func() error, error) {
	switch cfg.VaultBackend {
	case config.VaultBackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return vault.NewRedisStore(rdb), rdb.Close, nil
	case config.VaultBackendMemory:
		log.Warn().Msg("memory vault backend: sealed keys are lost on restart")
		return vault.NewMemoryStore(), func() error { return nil }, nil
	default:
		store, err := vault.NewFileStore(cfg.VaultFilePath, cfg.Network())
		if err != nil {
			return nil, nil, err
		}
		return store, func() error { return nil }, nil
	}
}

func relayerStore(cfg *config.Config) (*vault.FileStore, error) {
	return vault.NewFileStore(cfg.RelayerKeyFile, cfg.Network())
}

// buildServices connects to the chain and opens every store
func buildServices(ctx context.Context, cfg *config.Config, passphrase []byte) (_ *services, err error) {
	s := &services{}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	policy, err := cfg.FeePolicy()
	if err != nil {
		return nil, err
	}
	contract, err := client.NewWalletContract(cfg.FactoryAddress(), cfg.InitCodeHash())
	if err != nil {
		return nil, err
	}

	chain, err := client.NewEVMClient(ctx, cfg.RPCURL, contract)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, func() error { chain.Close(); return nil })

	chainID, err := chain.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	if chainID.Cmp(cfg.ChainIDBig()) != 0 {
		return nil, fmt.Errorf("RPC serves chain %s, configured CHAIN_ID is %d", chainID, cfg.ChainID)
	}

	codec := crypto.NewCodec()

	keyFile, err := relayerStore(cfg)
	if err != nil {
		return nil, err
	}
	relayerKey, err := funding.LoadRelayerKey(ctx, codec, keyFile, passphrase)
	if err != nil {
		if errors.Is(err, vault.ErrNoVaultEntry) {
			return nil, fmt.Errorf("no relayer key in %s: run relaywallet relayer-init", cfg.RelayerKeyFile)
		}
		return nil, err
	}
	relayer, err := funding.NewRelayer(chain, relayerKey, chainID)
	relayerKey.Wipe()
	if err != nil {
		return nil, err
	}

	store, closeStore, err := openVaultStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, closeStore)

	dir, err := directory.Open(cfg.DirectoryPath)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, dir.Close)

	session := vault.NewSessionContext(cfg.SessionTTL)
	keys := vault.New(codec, store, session)
	oracle := fee.NewOracle(chain, policy)
	agent := funding.NewAgent(chain, relayer, oracle)
	orch := orchestrator.New(orchestrator.Config{
		ChainID:        chainID,
		ReceiptTimeout: cfg.ReceiptTimeout,
		SettleDelay:    cfg.FundingSettleDelay,
	}, session, keys, chain, contract, oracle, agent, dir)

	var prices wallet.PriceSource
	if cfg.PriceAPIURL != "" {
		prices = client.NewCoinGeckoClient(cfg.PriceAPIURL, cfg.PriceCoinID, cfg.PriceVsCurrency)
	}

	s.wallet = wallet.NewService(wallet.Deps{
		Codec:        codec,
		Keys:         keys,
		Directory:    dir,
		Contract:     contract,
		Chain:        chain,
		Agent:        agent,
		Orchestrator: orch,
		Prices:       prices,
	})

	log.Info().
		Str("chain_id", chainID.String()).
		Str("relayer", relayer.Address().Hex()).
		Str("vault_backend", cfg.VaultBackend).
		Msg("services ready")
	return s, nil
}
