package wallet

import (
	"context"
	"encoding/json"
	"testing"
)

const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestLocalProviderAccountsAndChainID(t *testing.T) {
	p, err := NewLocalProvider(context.Background(), LocalProviderConfig{
		PrivateKeyHex: testKeyHex,
		ChainID:       11155111,
	})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	raw, err := p.Request(context.Background(), "eth_accounts")
	if err != nil {
		t.Fatalf("eth_accounts: %v", err)
	}
	var accounts []string
	if err := json.Unmarshal(raw, &accounts); err != nil {
		t.Fatalf("decode accounts: %v", err)
	}
	if len(accounts) != 1 || accounts[0] != p.address.Hex() {
		t.Fatalf("unexpected accounts %v", accounts)
	}

	raw, err = p.Request(context.Background(), "eth_chainId")
	if err != nil {
		t.Fatalf("eth_chainId: %v", err)
	}
	var chainID string
	_ = json.Unmarshal(raw, &chainID)
	if chainID != "0xaa36a7" {
		t.Fatalf("unexpected chain id %s", chainID)
	}
}

func TestLocalProviderPersonalSignRoundTrip(t *testing.T) {
	p, err := NewLocalProvider(context.Background(), LocalProviderConfig{
		PrivateKeyHex: testKeyHex,
		ChainID:       1,
	})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	msg := "FLUX Faucet Claim\nnonce: abc123"
	raw, err := p.Request(context.Background(), "personal_sign", msg, p.address.Hex())
	if err != nil {
		t.Fatalf("personal_sign: %v", err)
	}
	var sig string
	_ = json.Unmarshal(raw, &sig)

	signer, err := RecoverSigner([]byte(msg), sig)
	if err != nil {
		t.Fatalf("recover signer: %v", err)
	}
	if signer != p.address {
		t.Fatalf("recovered %s, want %s", signer.Hex(), p.address.Hex())
	}
}

func TestLocalProviderRejectsUnknownMethod(t *testing.T) {
	p, err := NewLocalProvider(context.Background(), LocalProviderConfig{
		PrivateKeyHex: testKeyHex,
		ChainID:       1,
	})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if _, err := p.Request(context.Background(), "eth_signTypedData_v4"); err == nil {
		t.Fatalf("expected unsupported method error")
	}
}

func TestSendTransactionRequiresUpstreamRPC(t *testing.T) {
	p, err := NewLocalProvider(context.Background(), LocalProviderConfig{
		PrivateKeyHex: testKeyHex,
		ChainID:       1,
	})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	_, err = p.Request(context.Background(), "eth_sendTransaction", TxParams{
		From:  p.address.Hex(),
		To:    p.address.Hex(),
		Value: "0x1",
	})
	if err == nil {
		t.Fatalf("expected error without rpc client")
	}
}
