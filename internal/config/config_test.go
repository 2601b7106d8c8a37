package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fluxgate.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("FLUXGATE_CONFIG", path)
}

func TestLoadValidConfigHasNoProblems(t *testing.T) {
	writeConfig(t, `{
		"lockRecipientAddress": "0x1111000000000000000000000000000000001111",
		"lockAmountEth": "0.1",
		"faucetCooldownSeconds": 86400,
		"faucetClaimAmount": "50",
		"whitelistBonusAmount": "100",
		"verifyPollSeconds": 12,
		"ledger": {"baseUrl": "https://ledger.example", "apiKey": "k"}
	}`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if problems := cfg.Problems(); len(problems) != 0 {
		t.Fatalf("unexpected problems: %v", problems)
	}
	if cfg.PollInterval().Seconds() != 12 {
		t.Fatalf("unexpected poll interval %v", cfg.PollInterval())
	}
}

func TestProblemsCollectsEveryMalformedField(t *testing.T) {
	writeConfig(t, `{
		"lockRecipientAddress": "not-an-address",
		"lockAmountEth": "-0.1",
		"faucetCooldownSeconds": 0,
		"faucetClaimAmount": "zero",
		"whitelistBonusAmount": "-5"
	}`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	problems := cfg.Problems()
	if len(problems) != 5 {
		t.Fatalf("expected 5 problems, got %d: %v", len(problems), problems)
	}
	joined := strings.Join(problems, "\n")
	for _, field := range []string{
		"lockRecipientAddress",
		"lockAmountEth",
		"faucetCooldownSeconds",
		"faucetClaimAmount",
		"whitelistBonusAmount",
	} {
		if !strings.Contains(joined, field) {
			t.Fatalf("problems missing %s: %v", field, problems)
		}
	}
}

func TestEnvOverrides(t *testing.T) {
	writeConfig(t, `{
		"lockRecipientAddress": "0x1111000000000000000000000000000000001111",
		"lockAmountEth": "0.1",
		"faucetCooldownSeconds": 86400,
		"faucetClaimAmount": "50",
		"whitelistBonusAmount": "0"
	}`)
	t.Setenv("FLUXGATE_HTTP_PORT", "4000")
	t.Setenv("FLUXGATE_CHAIN_ID", "11155111")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Service.HTTPPort != 4000 {
		t.Fatalf("port override ignored: %d", cfg.Service.HTTPPort)
	}
	if cfg.Wallet.ChainID != 11155111 {
		t.Fatalf("chain id override ignored: %d", cfg.Wallet.ChainID)
	}
	if cfg.PollInterval().Seconds() != 12 {
		t.Fatalf("expected default poll interval, got %v", cfg.PollInterval())
	}
}
