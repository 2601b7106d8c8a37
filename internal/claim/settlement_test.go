package claim

import (
	"context"
	"strings"
	"testing"
	"time"

	"fluxgate/internal/ledger"
	"fluxgate/internal/wallet"
)

const settlementKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestBuildSettlementMessageContents(t *testing.T) {
	provider, err := wallet.NewLocalProvider(context.Background(), wallet.LocalProviderConfig{
		PrivateKeyHex: settlementKeyHex,
		ChainID:       11155111,
	})
	if err != nil {
		t.Fatalf("provider: %v", err)
	}
	session := provider.Session()
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	s, err := BuildSettlement(context.Background(), session, session.Address.Hex(), "50", 86400, now)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	lines := strings.Split(s.SignedMessage, "\n")
	if lines[0] != "FLUX Faucet Claim" {
		t.Fatalf("missing protocol label, got %q", lines[0])
	}
	for _, want := range []string{
		"Wallet: " + session.Address.Hex(),
		"Amount: 50 FLUX",
		"Cooldown: 86400 seconds",
		"Chain ID: 11155111",
		"Nonce: " + s.MessageNonce,
		"Issued At: 2026-09-01T12:00:00Z",
	} {
		if !strings.Contains(s.SignedMessage, want) {
			t.Fatalf("message missing %q:\n%s", want, s.SignedMessage)
		}
	}
	if s.ChainID != 11155111 {
		t.Fatalf("chain id not carried, got %d", s.ChainID)
	}
	if len(s.MessageNonce) != 32 {
		t.Fatalf("expected 16-byte hex nonce, got %q", s.MessageNonce)
	}
}

func TestBuildSettlementSignatureBindsWallet(t *testing.T) {
	provider, err := wallet.NewLocalProvider(context.Background(), wallet.LocalProviderConfig{
		PrivateKeyHex: settlementKeyHex,
		ChainID:       1,
	})
	if err != nil {
		t.Fatalf("provider: %v", err)
	}
	session := provider.Session()

	s, err := BuildSettlement(context.Background(), session, session.Address.Hex(), "50", 86400, time.Now())
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	signer, err := wallet.RecoverSigner([]byte(s.SignedMessage), s.Signature)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if signer != session.Address {
		t.Fatalf("signature recovers to %s, want %s", signer.Hex(), session.Address.Hex())
	}
}

func TestBuildSettlementNoncesAreUnique(t *testing.T) {
	provider, err := wallet.NewLocalProvider(context.Background(), wallet.LocalProviderConfig{
		PrivateKeyHex: settlementKeyHex,
		ChainID:       1,
	})
	if err != nil {
		t.Fatalf("provider: %v", err)
	}
	session := provider.Session()

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		s, err := BuildSettlement(context.Background(), session, session.Address.Hex(), "50", 86400, time.Now())
		if err != nil {
			t.Fatalf("build %d: %v", i, err)
		}
		if seen[s.MessageNonce] {
			t.Fatalf("nonce %s repeated", s.MessageNonce)
		}
		seen[s.MessageNonce] = true
	}
}

func TestAttachSettlementKeepsVariantsDisjoint(t *testing.T) {
	var msgReq ledger.FaucetClaimRequest
	if err := attachSettlement(&msgReq, MessageSettlement{
		SignedMessage: "m",
		Signature:     "0xsig",
		MessageNonce:  "n",
		ChainID:       1,
	}); err != nil {
		t.Fatalf("attach message: %v", err)
	}
	if msgReq.SettlementKind != "offchain_message" || msgReq.Signature != "0xsig" {
		t.Fatalf("message fields not mapped: %+v", msgReq)
	}
	if msgReq.TxHash != "" {
		t.Fatalf("message settlement must not carry a tx hash")
	}

	var txReq ledger.FaucetClaimRequest
	if err := attachSettlement(&txReq, TransactionSettlement{
		TxHash:  "0xabc",
		ChainID: 1,
		Status:  "confirmed",
	}); err != nil {
		t.Fatalf("attach tx: %v", err)
	}
	if txReq.SettlementKind != "onchain_transaction" || txReq.TxHash != "0xabc" {
		t.Fatalf("tx fields not mapped: %+v", txReq)
	}
	if txReq.SignedMessage != "" || txReq.Signature != "" {
		t.Fatalf("tx settlement must not carry message fields")
	}
}
