package config

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"fluxgate/internal/wei"
)

// FileConfig models fluxgate.json, the externally injected feature
// configuration.
type FileConfig struct {
	LockRecipientAddress  string `json:"lockRecipientAddress"`
	LockAmountEth         string `json:"lockAmountEth"`
	FaucetCooldownSeconds int    `json:"faucetCooldownSeconds"`
	FaucetClaimAmount     string `json:"faucetClaimAmount"`
	WhitelistBonusAmount  string `json:"whitelistBonusAmount"`
	VerifyPollSeconds     int    `json:"verifyPollSeconds"`
	Ledger                struct {
		BaseURL string `json:"baseUrl"`
		APIKey  string `json:"apiKey"`
	} `json:"ledger"`
	RealtimeDSN string `json:"realtimeDsn"`
}

// ServiceConfig holds the daemon's own knobs, env-driven.
type ServiceConfig struct {
	HTTPPort         int
	HMACSecret       string
	HMACClockSkew    time.Duration
	ReceiptStorePath string
	UserAgent        string
}

// WalletConfig configures the local signing provider. Secrets come from the
// environment only, never from the config file.
type WalletConfig struct {
	PrivateKey string
	ChainID    int64
	RPCURL     string
}

// AppConfig ties together file + env configuration.
type AppConfig struct {
	File    FileConfig
	Service ServiceConfig
	Wallet  WalletConfig
}

const defaultConfigPath = "./fluxgate.json"

// Load aggregates configuration from disk and environment. Only an
// unreadable file is a hard error; malformed values are reported by
// Problems so they can surface as standing notices instead of failing
// individual actions.
func Load() (*AppConfig, error) {
	path := envOr("FLUXGATE_CONFIG", defaultConfigPath)

	fileCfg, err := loadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	serviceCfg := ServiceConfig{
		HTTPPort:         envOrInt("FLUXGATE_HTTP_PORT", 3100),
		HMACSecret:       envOr("FLUXGATE_HMAC_SECRET", ""),
		HMACClockSkew:    time.Duration(envOrInt("FLUXGATE_HMAC_CLOCK_SKEW_SECONDS", 60)) * time.Second,
		ReceiptStorePath: envOr("FLUXGATE_RECEIPT_STORE_PATH", filepath.Join(os.TempDir(), "fluxgate-receipts.json")),
		UserAgent:        envOr("FLUXGATE_USER_AGENT", "fluxgate/1"),
	}

	walletCfg := WalletConfig{
		PrivateKey: envOr("FLUXGATE_WALLET_PRIVATE_KEY", ""),
		ChainID:    int64(envOrInt("FLUXGATE_CHAIN_ID", 1)),
		RPCURL:     envOr("FLUXGATE_CHAIN_RPC_URL", ""),
	}

	return &AppConfig{
		File:    *fileCfg,
		Service: serviceCfg,
		Wallet:  walletCfg,
	}, nil
}

// PollInterval returns the verification poll cadence, with a default.
func (c *AppConfig) PollInterval() time.Duration {
	if c.File.VerifyPollSeconds <= 0 {
		return 12 * time.Second
	}
	return time.Duration(c.File.VerifyPollSeconds) * time.Second
}

// Problems validates the configuration surface once at startup. Each entry
// becomes a standing, non-dismissible notice.
func (c *AppConfig) Problems() []string {
	var problems []string

	if !common.IsHexAddress(c.File.LockRecipientAddress) {
		problems = append(problems, fmt.Sprintf("lockRecipientAddress %q is not a valid 0x address", c.File.LockRecipientAddress))
	}
	if _, err := wei.FromEthPositive(c.File.LockAmountEth); err != nil {
		problems = append(problems, fmt.Sprintf("lockAmountEth: %v", err))
	}
	if c.File.FaucetCooldownSeconds <= 0 {
		problems = append(problems, fmt.Sprintf("faucetCooldownSeconds %d must be a positive integer", c.File.FaucetCooldownSeconds))
	}
	if !isPositiveDecimal(c.File.FaucetClaimAmount) {
		problems = append(problems, fmt.Sprintf("faucetClaimAmount %q must be a positive decimal", c.File.FaucetClaimAmount))
	}
	if !isNonNegativeDecimal(c.File.WhitelistBonusAmount) {
		problems = append(problems, fmt.Sprintf("whitelistBonusAmount %q must be a non-negative decimal", c.File.WhitelistBonusAmount))
	}
	return problems
}

func loadFile(path string) (*FileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg FileConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func isPositiveDecimal(s string) bool {
	r, ok := new(big.Rat).SetString(s)
	return ok && r.Sign() > 0
}

func isNonNegativeDecimal(s string) bool {
	r, ok := new(big.Rat).SetString(s)
	return ok && r.Sign() >= 0
}

func envOr(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
	}
	return fallback
}
