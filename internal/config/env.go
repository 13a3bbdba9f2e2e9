package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/AlexZinkM/relay-wallet/internal/common"
	"github.com/AlexZinkM/relay-wallet/internal/fee"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

// Vault backends
const (
	VaultBackendFile   = "file"
	VaultBackendRedis  = "redis"
	VaultBackendMemory = "memory"
)

// Config contains all configuration parameters for the application.
// Note: the relayer passphrase is prompted at runtime - use PromptForPassword()
type Config struct {
	Port string `envconfig:"PORT" default:"8080"`

	RPCURL               string `envconfig:"RPC_URL" default:"http://127.0.0.1:8545"`
	ChainID              int64  `envconfig:"CHAIN_ID" required:"true"`
	WalletFactoryAddress string `envconfig:"WALLET_FACTORY_ADDRESS" required:"true"`
	WalletInitCodeHash   string `envconfig:"WALLET_INIT_CODE_HASH" required:"true"`

	RelayerKeyFile string `envconfig:"RELAYER_KEY_FILE" default:"relayer.json"`
	VaultBackend   string `envconfig:"VAULT_BACKEND" default:"file"`
	VaultFilePath  string `envconfig:"VAULT_FILE_PATH" default:"vault.json"`
	RedisAddr      string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	RedisPassword  string `envconfig:"REDIS_PASSWORD"`
	RedisDB        int    `envconfig:"REDIS_DB" default:"0"`
	DirectoryPath  string `envconfig:"DIRECTORY_PATH" default:"directory.db"`

	SessionTTL         time.Duration `envconfig:"SESSION_TTL" default:"30m"`
	ReceiptTimeout     time.Duration `envconfig:"RECEIPT_TIMEOUT" default:"2m"`
	FundingSettleDelay time.Duration `envconfig:"FUNDING_SETTLE_DELAY" default:"2s"`

	Fee FeeConfig `envconfig:"FEE"`

	JWTSecret string `envconfig:"JWT_SECRET"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty bool   `envconfig:"LOG_PRETTY" default:"false"`

	PriceAPIURL     string `envconfig:"PRICE_API_URL" default:"https://api.coingecko.com/api/v3"`
	PriceCoinID     string `envconfig:"PRICE_COIN_ID" default:"ethereum"`
	PriceVsCurrency string `envconfig:"PRICE_VS_CURRENCY" default:"usd"`
}

// FeeConfig overrides the fee policy. Prices are in gwei, amounts in native units.
type FeeConfig struct {
	NormalMinGwei        int64         `envconfig:"NORMAL_MIN_GWEI" default:"1"`
	NormalMaxGwei        int64         `envconfig:"NORMAL_MAX_GWEI" default:"100"`
	NormalMultiplier     int64         `envconfig:"NORMAL_MULTIPLIER_PERCENT" default:"10"`
	AggressiveMinGwei    int64         `envconfig:"AGGRESSIVE_MIN_GWEI" default:"30"`
	AggressiveMaxGwei    int64         `envconfig:"AGGRESSIVE_MAX_GWEI" default:"500"`
	AggressiveMultiplier int64         `envconfig:"AGGRESSIVE_MULTIPLIER_PERCENT" default:"20"`
	SponsorThreshold     string        `envconfig:"SPONSOR_THRESHOLD" default:"1"`
	FundingMarginPercent int64         `envconfig:"FUNDING_MARGIN_PERCENT" default:"10"`
	RelayerGasReserve    string        `envconfig:"RELAYER_GAS_RESERVE" default:"0.01"`
	FallbackGwei         int64         `envconfig:"FALLBACK_GWEI" default:"50"`
	GasBufferPercent     int64         `envconfig:"GAS_BUFFER_PERCENT" default:"20"`
	BumpPercent          int64         `envconfig:"BUMP_PERCENT" default:"20"`
	RetryAttempts        uint          `envconfig:"RETRY_ATTEMPTS" default:"3"`
	RetryInitial         time.Duration `envconfig:"RETRY_INITIAL" default:"200ms"`
}

// cfg is the global configuration instance
var cfg *Config

// Init loads configuration from environment variables.
func Init() error {
	c, err := Load()
	if err != nil {
		return err
	}
	cfg = c
	return nil
}

// Load reads and validates configuration without touching the global instance
func Load() (*Config, error) {
	c := &Config{}
	if err := envconfig.Process("", c); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Get returns the global configuration instance.
// Panics if Init() was not called.
func Get() *Config {
	if cfg == nil {
		panic("config not initialized, call Init() first")
	}
	return cfg
}

func (c *Config) validate() error {
	if c.ChainID <= 0 {
		return errors.New("CHAIN_ID must be positive")
	}
	if !ethcommon.IsHexAddress(c.WalletFactoryAddress) {
		return fmt.Errorf("WALLET_FACTORY_ADDRESS %q is not an address", c.WalletFactoryAddress)
	}
	if len(strings.TrimPrefix(c.WalletInitCodeHash, "0x")) != 2*ethcommon.HashLength {
		return fmt.Errorf("WALLET_INIT_CODE_HASH must be %d bytes of hex", ethcommon.HashLength)
	}
	switch c.VaultBackend {
	case VaultBackendFile, VaultBackendRedis, VaultBackendMemory:
	default:
		return fmt.Errorf("unknown VAULT_BACKEND %q", c.VaultBackend)
	}
	if c.SessionTTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}
	if c.ReceiptTimeout <= 0 {
		return errors.New("RECEIPT_TIMEOUT must be positive")
	}
	if _, err := c.FeePolicy(); err != nil {
		return err
	}
	return nil
}

// ChainIDBig returns the chain id as a big integer
func (c *Config) ChainIDBig() *big.Int {
	return big.NewInt(c.ChainID)
}

// FactoryAddress returns the wallet factory address
func (c *Config) FactoryAddress() ethcommon.Address {
	return ethcommon.HexToAddress(c.WalletFactoryAddress)
}

// InitCodeHash returns the wallet init code hash
func (c *Config) InitCodeHash() ethcommon.Hash {
	return ethcommon.HexToHash(c.WalletInitCodeHash)
}

// Network names the chain in vault files, so a file is never read against the wrong chain
func (c *Config) Network() string {
	return fmt.Sprintf("eip155:%d", c.ChainID)
}

// FeePolicy builds the fee policy from the FEE_* settings
func (c *Config) FeePolicy() (fee.FeePolicy, error) {
	f := c.Fee
	threshold, err := common.NativeToWei(f.SponsorThreshold)
	if err != nil {
		return fee.FeePolicy{}, fmt.Errorf("invalid FEE_SPONSOR_THRESHOLD: %w", err)
	}
	reserve, err := common.NativeToWei(f.RelayerGasReserve)
	if err != nil {
		return fee.FeePolicy{}, fmt.Errorf("invalid FEE_RELAYER_GAS_RESERVE: %w", err)
	}

	policy := fee.FeePolicy{
		Normal: fee.Band{
			Min:               gwei(f.NormalMinGwei),
			Max:               gwei(f.NormalMaxGwei),
			MultiplierPercent: f.NormalMultiplier,
		},
		Aggressive: fee.Band{
			Min:               gwei(f.AggressiveMinGwei),
			Max:               gwei(f.AggressiveMaxGwei),
			MultiplierPercent: f.AggressiveMultiplier,
		},
		SponsorThreshold:     threshold,
		FundingMarginPercent: f.FundingMarginPercent,
		RelayerGasReserve:    reserve,
		FallbackPrice:        gwei(f.FallbackGwei),
		GasBufferPercent:     f.GasBufferPercent,
		BumpPercent:          f.BumpPercent,
		RetryAttempts:        f.RetryAttempts,
		RetryInitial:         f.RetryInitial,
	}
	if err := policy.Validate(); err != nil {
		return fee.FeePolicy{}, fmt.Errorf("invalid fee policy: %w", err)
	}
	return policy, nil
}

func gwei(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(params.GWei))
}

// SetupLogging configures the global zerolog logger from LOG_LEVEL and LOG_PRETTY
func (c *Config) SetupLogging() error {
	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339
	if c.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	return nil
}

// PromptForPassword prompts in the terminal for a secret without echoing it.
// Caller must zero the returned slice after use for security.
func PromptForPassword(prompt string) ([]byte, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, errors.New("stdin is not a terminal: run the app interactively to enter password")
	}
	fmt.Fprint(os.Stderr, prompt)
	defer fmt.Fprintln(os.Stderr)

	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	if len(raw) == 0 {
		return nil, errors.New("password cannot be empty")
	}
	return raw, nil
}
