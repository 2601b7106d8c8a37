package ledger

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"
)

// FakeLedger is an in-memory stand-in for the backend used by tests and by
// dev mode when no ledger URL is configured. It mirrors the backend's
// contract: one upserted submission row per wallet, wholesale balance
// responses, and idempotency-key deduplication of claims.
type FakeLedger struct {
	mu       sync.Mutex
	subs     map[string]*LockSubmission
	balances map[string]*FluxBalance
	claims   map[string]FluxBalance
	calls    map[string]int

	// VerifyScript is consumed one status per VerifyEthLock call; when
	// exhausted the last status repeats. Defaults to verifying.
	VerifyScript []Status
	verifyIdx    int

	// verifyErr, when set, fails every VerifyEthLock call.
	verifyErr error

	Now func() time.Time
}

// SetVerifyError makes every subsequent VerifyEthLock call fail with err.
func (f *FakeLedger) SetVerifyError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifyErr = err
}

func NewFakeLedger() *FakeLedger {
	return &FakeLedger{
		subs:     make(map[string]*LockSubmission),
		balances: make(map[string]*FluxBalance),
		claims:   make(map[string]FluxBalance),
		calls:    make(map[string]int),
		Now:      time.Now,
	}
}

// Calls reports how many times a procedure has been invoked.
func (f *FakeLedger) Calls(procedure string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[procedure]
}

// SetLockActive flips the administrative active flag on a wallet's record.
func (f *FakeLedger) SetLockActive(walletAddress string, active bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sub, ok := f.subs[NormalizeWallet(walletAddress)]; ok {
		sub.IsLockActive = active
		sub.UpdatedAt = f.Now()
	}
}

// SubmissionCount reports how many distinct submission rows exist.
func (f *FakeLedger) SubmissionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *FakeLedger) RecordEthLockSent(_ context.Context, req RecordLockSentRequest) (*LockSubmission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["record_eth_lock_sent"]++

	wallet := NormalizeWallet(req.WalletAddress)
	now := f.Now().UTC()

	sub, ok := f.subs[wallet]
	if !ok {
		sub = &LockSubmission{
			WalletAddress: wallet,
			AuthUserID:    "user-" + wallet,
			IsLockActive:  true,
			CreatedAt:     now,
		}
		f.subs[wallet] = sub
	}

	sub.TxHash = req.TxHash
	sub.ChainID = req.ChainID
	sub.FromAddress = NormalizeWallet(req.FromAddress)
	sub.ToAddress = NormalizeWallet(req.ToAddress)
	sub.AmountWei = req.AmountWei
	sub.Status = StatusSent
	sub.LastError = ""
	ts := req.ClientTimestamp.UTC()
	sub.TxSubmittedAt = &ts
	sub.UpdatedAt = now

	cp := *sub
	return &cp, nil
}

func (f *FakeLedger) VerifyEthLock(_ context.Context, walletAddress, txHash string) (Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["verify_eth_lock"]++

	if f.verifyErr != nil {
		return "", f.verifyErr
	}

	sub, ok := f.subs[NormalizeWallet(walletAddress)]
	if !ok {
		return "", fmt.Errorf("no submission for wallet %s", walletAddress)
	}
	if !strings.EqualFold(sub.TxHash, txHash) {
		return "", fmt.Errorf("tx hash mismatch for wallet %s", walletAddress)
	}

	status := StatusVerifying
	if len(f.VerifyScript) > 0 {
		if f.verifyIdx >= len(f.VerifyScript) {
			status = f.VerifyScript[len(f.VerifyScript)-1]
		} else {
			status = f.VerifyScript[f.verifyIdx]
			f.verifyIdx++
		}
	}

	sub.Status = status
	now := f.Now().UTC()
	sub.UpdatedAt = now
	if status == StatusConfirmed && sub.ConfirmedAt == nil {
		sub.ConfirmedAt = &now
	}
	return status, nil
}

func (f *FakeLedger) GetLockSubmission(_ context.Context, walletAddress string) (*LockSubmission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["get_eth_lock"]++

	sub, ok := f.subs[NormalizeWallet(walletAddress)]
	if !ok {
		return nil, nil
	}
	cp := *sub
	return &cp, nil
}

func (f *FakeLedger) SyncWalletFluxBalance(_ context.Context, req SyncBalanceRequest) (*FluxBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["sync_wallet_flux_balance"]++

	bal := f.ensureBalance(NormalizeWallet(req.WalletAddress))

	sub := f.subs[bal.WalletAddress]
	locked := sub != nil && sub.Status == StatusConfirmed && sub.IsLockActive
	if locked && bal.WhitelistBonusGrantedAt == nil && isPositiveDecimal(req.WhitelistBonusAmount) {
		bal.AvailableBalance = addDecimal(bal.AvailableBalance, req.WhitelistBonusAmount)
		bal.LifetimeClaimed = addDecimal(bal.LifetimeClaimed, req.WhitelistBonusAmount)
		now := f.Now().UTC()
		bal.WhitelistBonusGrantedAt = &now
		bal.UpdatedAt = now
	}

	cp := *bal
	return &cp, nil
}

func (f *FakeLedger) RecordFluxFaucetClaim(_ context.Context, req FaucetClaimRequest) (*FluxBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["record_flux_faucet_claim"]++

	if req.IdempotencyKey == "" {
		return nil, fmt.Errorf("idempotency key required")
	}
	if prior, ok := f.claims[req.IdempotencyKey]; ok {
		cp := prior
		return &cp, nil
	}

	bal := f.ensureBalance(NormalizeWallet(req.WalletAddress))
	bal.AvailableBalance = addDecimal(bal.AvailableBalance, req.ClaimAmount)
	bal.LifetimeClaimed = addDecimal(bal.LifetimeClaimed, req.ClaimAmount)
	now := f.Now().UTC()
	bal.LastFaucetClaimedAt = &now
	bal.UpdatedAt = now

	f.claims[req.IdempotencyKey] = *bal
	cp := *bal
	return &cp, nil
}

func (f *FakeLedger) ensureBalance(wallet string) *FluxBalance {
	bal, ok := f.balances[wallet]
	if !ok {
		now := f.Now().UTC()
		bal = &FluxBalance{
			WalletAddress:    wallet,
			AuthUserID:       "user-" + wallet,
			AvailableBalance: "0",
			LifetimeClaimed:  "0",
			LifetimeSpent:    "0",
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		f.balances[wallet] = bal
	}
	return bal
}

func addDecimal(a, b string) string {
	sum := new(big.Rat)
	x, okA := new(big.Rat).SetString(a)
	y, okB := new(big.Rat).SetString(b)
	if okA {
		sum.Add(sum, x)
	}
	if okB {
		sum.Add(sum, y)
	}
	if sum.IsInt() {
		return sum.Num().String()
	}
	return strings.TrimRight(sum.FloatString(18), "0")
}

func isPositiveDecimal(s string) bool {
	r, ok := new(big.Rat).SetString(s)
	return ok && r.Sign() > 0
}
