package claim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"fluxgate/internal/ledger"
	"fluxgate/internal/receipts"
	"fluxgate/internal/wallet"
)

const walletA = "0xaAaA00000000000000000000000000000000Aaaa"

type stubGate bool

func (g stubGate) Unlocked() bool { return bool(g) }

type signingProvider struct {
	signCalls int32
	signErr   error
}

func (p *signingProvider) Request(_ context.Context, method string, params ...any) (json.RawMessage, error) {
	if method != "personal_sign" {
		return nil, fmt.Errorf("unexpected method %s", method)
	}
	atomic.AddInt32(&p.signCalls, 1)
	if p.signErr != nil {
		return nil, p.signErr
	}
	return json.Marshal("0x" + strings.Repeat("ab", 65))
}

func sessionFor(addr string, p wallet.Provider) wallet.SessionAccessor {
	return wallet.StaticAccessor{Session: &wallet.Session{
		Address:  common.HexToAddress(addr),
		ChainID:  1,
		Provider: p,
	}}
}

func testConfig() Config {
	return Config{
		ClaimAmount:          "50",
		CooldownSeconds:      86400,
		WhitelistBonusAmount: "100",
		UserAgent:            "fluxgate-test",
	}
}

func newTestCoordinator(fake *ledger.FakeLedger, gate Gate, provider wallet.Provider, store receipts.Store) *Coordinator {
	return NewCoordinator(testConfig(), walletA, sessionFor(walletA, provider), fake, gate, store, nil)
}

func TestClaimBlockedWhenNotUnlocked(t *testing.T) {
	fake := ledger.NewFakeLedger()
	provider := &signingProvider{}
	c := newTestCoordinator(fake, stubGate(false), provider, nil)

	if c.CanClaim() {
		t.Fatalf("CanClaim must be false without an effective lock")
	}
	if _, err := c.Claim(context.Background()); !errors.Is(err, ErrNotUnlocked) {
		t.Fatalf("expected ErrNotUnlocked, got %v", err)
	}
	if atomic.LoadInt32(&provider.signCalls) != 0 {
		t.Fatalf("gated claim must not ask the wallet to sign")
	}
	if fake.Calls("record_flux_faucet_claim") != 0 {
		t.Fatalf("gated claim must not reach the ledger")
	}
}

func TestLocalCooldownGateIssuesNoNetworkCall(t *testing.T) {
	fake := ledger.NewFakeLedger()
	provider := &signingProvider{}
	c := newTestCoordinator(fake, stubGate(true), provider, nil)

	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }
	fake.Now = c.now

	if _, err := c.Claim(context.Background()); err != nil {
		t.Fatalf("first claim: %v", err)
	}

	// 1000ms into an 86400s cooldown: locally gated, zero network traffic.
	c.now = func() time.Time { return base.Add(time.Second) }
	if c.CanClaim() {
		t.Fatalf("CanClaim must be false inside the cooldown window")
	}
	if _, err := c.Claim(context.Background()); !errors.Is(err, ErrCooldown) {
		t.Fatalf("expected ErrCooldown, got %v", err)
	}
	if n := fake.Calls("record_flux_faucet_claim"); n != 1 {
		t.Fatalf("cooldown-gated claim reached the ledger (%d calls)", n)
	}
	if n := atomic.LoadInt32(&provider.signCalls); n != 1 {
		t.Fatalf("cooldown-gated claim asked the wallet to sign (%d calls)", n)
	}
}

func TestClaimIdempotentAcrossRetries(t *testing.T) {
	fake := ledger.NewFakeLedger()
	now := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	fake.Now = func() time.Time { return now }

	// Two coordinators simulate a client that lost local state mid-retry;
	// the deterministic key makes the ledger recognize the duplicate.
	first := newTestCoordinator(fake, stubGate(true), &signingProvider{}, nil)
	first.now = fake.Now
	second := newTestCoordinator(fake, stubGate(true), &signingProvider{}, nil)
	second.now = fake.Now

	balA, err := first.Claim(context.Background())
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	balB, err := second.Claim(context.Background())
	if err != nil {
		t.Fatalf("retried claim: %v", err)
	}

	if balA.AvailableBalance != "50" || balB.AvailableBalance != "50" {
		t.Fatalf("retry must not double-credit: got %s then %s",
			balA.AvailableBalance, balB.AvailableBalance)
	}
}

func TestClaimReplayedFromLocalReceipt(t *testing.T) {
	fake := ledger.NewFakeLedger()
	now := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	fake.Now = func() time.Time { return now }
	store := receipts.NewMemoryStore()

	first := newTestCoordinator(fake, stubGate(true), &signingProvider{}, store)
	first.now = fake.Now
	if _, err := first.Claim(context.Background()); err != nil {
		t.Fatalf("first claim: %v", err)
	}

	// Same store, fresh coordinator: a restart within the same UTC day.
	provider := &signingProvider{}
	restarted := newTestCoordinator(fake, stubGate(true), provider, store)
	restarted.now = fake.Now

	bal, err := restarted.Claim(context.Background())
	if err != nil {
		t.Fatalf("replayed claim: %v", err)
	}
	if bal.AvailableBalance != "50" {
		t.Fatalf("replayed balance = %s, want 50", bal.AvailableBalance)
	}
	if n := fake.Calls("record_flux_faucet_claim"); n != 1 {
		t.Fatalf("receipt replay must not resubmit (%d ledger calls)", n)
	}
	if atomic.LoadInt32(&provider.signCalls) != 0 {
		t.Fatalf("receipt replay must not request a signature")
	}
}

type blockingLedger struct {
	*ledger.FakeLedger
	entered chan struct{}
	release chan struct{}
}

func (b *blockingLedger) RecordFluxFaucetClaim(ctx context.Context, req ledger.FaucetClaimRequest) (*ledger.FluxBalance, error) {
	b.entered <- struct{}{}
	<-b.release
	return b.FakeLedger.RecordFluxFaucetClaim(ctx, req)
}

func TestNoOptimisticBalanceIncrement(t *testing.T) {
	fake := ledger.NewFakeLedger()
	blocking := &blockingLedger{
		FakeLedger: fake,
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	c := newTestCoordinator(fake, stubGate(true), &signingProvider{}, nil)
	c.ledger = blocking

	if _, err := c.SyncBalance(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if bal := c.Balance(); bal.AvailableBalance != "0" {
		t.Fatalf("expected zero starting balance, got %s", bal.AvailableBalance)
	}

	done := make(chan error, 1)
	go func() {
		_, err := c.Claim(context.Background())
		done <- err
	}()

	<-blocking.entered
	// Claim is in flight: the UI sees a syncing indicator, never a
	// speculative higher number.
	if !c.Syncing() {
		t.Fatalf("expected syncing indicator while claim is in flight")
	}
	if bal := c.Balance(); bal.AvailableBalance != "0" {
		t.Fatalf("balance incremented before server acknowledgment: %s", bal.AvailableBalance)
	}

	close(blocking.release)
	if err := <-done; err != nil {
		t.Fatalf("claim: %v", err)
	}
	if bal := c.Balance(); bal.AvailableBalance != "50" {
		t.Fatalf("expected authoritative balance 50, got %s", bal.AvailableBalance)
	}
	if c.Syncing() {
		t.Fatalf("syncing indicator should clear after settlement")
	}
}

func TestIdempotencyKeyDeterministic(t *testing.T) {
	day := time.Date(2026, 9, 1, 23, 59, 0, 0, time.UTC)
	a := IdempotencyKey(walletA, day)

	if a != IdempotencyKey(walletA, day.Add(-time.Hour)) {
		t.Fatalf("same UTC day must produce the same key")
	}
	if a == IdempotencyKey(walletA, day.Add(2*time.Minute)) {
		t.Fatalf("key must roll over at UTC midnight")
	}
	if a != IdempotencyKey(strings.ToLower(walletA), day) {
		t.Fatalf("key must be case-insensitive over the wallet address")
	}
	if !strings.HasSuffix(a, ":2026-09-01") {
		t.Fatalf("key should embed the UTC calendar day, got %s", a)
	}
}

func TestSessionMismatchAbortsClaim(t *testing.T) {
	fake := ledger.NewFakeLedger()
	other := "0xbBbB00000000000000000000000000000000bBBB"
	c := NewCoordinator(testConfig(), walletA, sessionFor(other, &signingProvider{}), fake, stubGate(true), nil, nil)

	if _, err := c.Claim(context.Background()); err == nil {
		t.Fatalf("expected session mismatch error")
	}
	if fake.Calls("record_flux_faucet_claim") != 0 {
		t.Fatalf("mismatched claim must not reach the ledger")
	}
}
