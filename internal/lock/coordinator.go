package lock

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"fluxgate/internal/fault"
	"fluxgate/internal/ledger"
	"fluxgate/internal/notify"
	"fluxgate/internal/wallet"
	"fluxgate/internal/wei"
)

var txHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// Config is the lock feature's slice of the application configuration.
type Config struct {
	RecipientAddress string
	AmountEth        string
	UserAgent        string
}

// Coordinator drives the ETH-lock lifecycle for one authenticated wallet:
// submitting the lock transaction, polling verification, and projecting the
// effective entitlement state.
type Coordinator struct {
	cfg      Config
	wallet   string // expected authenticated address, normalized
	sessions wallet.SessionAccessor
	ledger   ledger.Client
	notices  *notify.Center

	// inFlight serializes verification refreshes across the timer, the
	// realtime push handler and user-triggered refreshes. A caller that
	// finds it held no-ops instead of queueing.
	inFlight atomic.Bool

	mu           sync.Mutex
	submitting   bool
	disconnected bool
	current      *ledger.LockSubmission
	sawConfirmed bool

	// refetchPending means the last authoritative refetch failed after a
	// verify response was already patched in. The poll loop must keep
	// ticking until a refetch lands, even if the patched status reads
	// terminal.
	refetchPending bool

	// OnConfirmed runs once per transition into confirmed.
	OnConfirmed func(sub *ledger.LockSubmission)
	// OnRefresh observes each completed poll, for metrics.
	OnRefresh func(result string)

	now func() time.Time
}

func NewCoordinator(cfg Config, walletAddress string, sessions wallet.SessionAccessor, cli ledger.Client, notices *notify.Center) *Coordinator {
	return &Coordinator{
		cfg:      cfg,
		wallet:   ledger.NormalizeWallet(walletAddress),
		sessions: sessions,
		ledger:   cli,
		notices:  notices,
		now:      time.Now,
	}
}

// Current returns a copy of the raw submission record, nil if none is known.
func (c *Coordinator) Current() *ledger.LockSubmission {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	cp := *c.current
	return &cp
}

// EffectiveStatus is the gating-relevant projection of the current record.
func (c *Coordinator) EffectiveStatus() ledger.Status {
	return Effective(c.Current())
}

// Unlocked reports whether the wallet passes the lock gate.
func (c *Coordinator) Unlocked() bool {
	return Unlocked(c.Current())
}

// SubmitLock converts the configured ETH amount to exact wei, requests the
// transaction from the wallet and persists the attempt. Resubmission is
// allowed whenever the effective state reads not-locked; the backend upsert
// keeps one record per wallet either way.
func (c *Coordinator) SubmitLock(ctx context.Context) (*ledger.LockSubmission, error) {
	c.mu.Lock()
	if c.submitting {
		c.mu.Unlock()
		return nil, fault.Newf(fault.Unknown, "submit lock", "a submission is already in progress")
	}
	c.submitting = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.submitting = false
		c.mu.Unlock()
	}()

	if !common.IsHexAddress(c.cfg.RecipientAddress) {
		return nil, fault.Newf(fault.Configuration, "submit lock", "invalid lock recipient address %q", c.cfg.RecipientAddress)
	}
	amountWei, err := wei.FromEthPositive(c.cfg.AmountEth)
	if err != nil {
		return nil, fault.New(fault.Configuration, "submit lock", err)
	}

	session, err := c.sessions.Active(ctx)
	if err != nil {
		return nil, fault.New(fault.Unknown, "submit lock", err)
	}
	if ledger.NormalizeWallet(session.Address.Hex()) != c.wallet {
		return nil, fault.Newf(fault.SessionMismatch, "submit lock",
			"session wallet %s does not match authenticated wallet %s", session.Address.Hex(), c.wallet)
	}

	raw, err := session.Provider.Request(ctx, "eth_sendTransaction", wallet.TxParams{
		From:  session.Address.Hex(),
		To:    c.cfg.RecipientAddress,
		Value: wei.ToHex(amountWei),
	})
	if err != nil {
		if wallet.IsUserRejection(err) {
			return nil, fault.New(fault.WalletRejected, "submit lock", err)
		}
		return nil, fault.New(fault.Unknown, "submit lock", err)
	}

	txHash, err := decodeTxHash(raw)
	if err != nil {
		return nil, fault.New(fault.Unknown, "submit lock", err)
	}

	// The address the wallet actually signs from must be the authenticated
	// one. Checked after the send and before any persistence; a mismatch
	// aborts with no side effects.
	signer, err := c.activeAccount(ctx, session)
	if err != nil {
		return nil, fault.New(fault.Unknown, "submit lock", err)
	}
	if signer != c.wallet {
		return nil, fault.Newf(fault.SessionMismatch, "submit lock",
			"transaction signed from %s, expected %s", signer, c.wallet)
	}

	sub, err := c.ledger.RecordEthLockSent(ctx, ledger.RecordLockSentRequest{
		WalletAddress:   c.wallet,
		TxHash:          txHash,
		ChainID:         session.ChainID,
		FromAddress:     signer,
		ToAddress:       ledger.NormalizeWallet(c.cfg.RecipientAddress),
		AmountWei:       amountWei.String(),
		ClientTimestamp: c.now().UTC(),
		UserAgent:       c.cfg.UserAgent,
	})
	if err != nil {
		return nil, fmt.Errorf("persist lock submission: %w", err)
	}

	c.mu.Lock()
	c.current = sub
	c.sawConfirmed = false
	c.disconnected = false
	c.mu.Unlock()

	// Kick verification immediately; failures are logged, not fatal. The
	// poll timer retries on its own schedule.
	go func() {
		if _, err := c.TryRefresh(context.Background()); err != nil {
			log.Printf("lock: initial verification kick failed: %v", err)
		}
	}()

	cp := *sub
	return &cp, nil
}

// TryRefresh runs one verification/refetch cycle unless another one is in
// flight, in which case it no-ops and reports false.
func (c *Coordinator) TryRefresh(ctx context.Context) (bool, error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		return false, nil
	}
	defer c.inFlight.Store(false)
	err := c.refresh(ctx)
	if c.OnRefresh != nil {
		if err != nil {
			c.OnRefresh("error")
		} else {
			c.OnRefresh("ok")
		}
	}
	return true, err
}

// refresh verifies an in-flight submission and then refetches the record.
// The verify response is patched in optimistically to cut visible latency;
// the refetch that follows is the source of truth and replaces the record
// wholesale.
func (c *Coordinator) refresh(ctx context.Context) error {
	snapshot := c.Current()

	if snapshot != nil && snapshot.Status.InFlight() && snapshot.TxHash != "" {
		status, err := c.ledger.VerifyEthLock(ctx, c.wallet, snapshot.TxHash)
		if err != nil {
			return fault.New(fault.VerificationTransient, "verify lock", err)
		}
		c.mu.Lock()
		if c.current != nil && !c.disconnected {
			c.current.Status = status
		}
		c.mu.Unlock()
	}

	sub, err := c.ledger.GetLockSubmission(ctx, c.wallet)
	if err != nil {
		c.mu.Lock()
		c.refetchPending = true
		c.mu.Unlock()
		return fault.New(fault.VerificationTransient, "refetch lock", err)
	}
	c.apply(sub)
	return nil
}

// needsRefetch reports whether an authoritative refetch is still owed.
func (c *Coordinator) needsRefetch() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refetchPending
}

// apply installs an authoritative record. Last authoritative response wins;
// results for a disconnected or mismatched wallet are discarded.
func (c *Coordinator) apply(sub *ledger.LockSubmission) {
	c.mu.Lock()
	c.refetchPending = false
	if c.disconnected || (sub != nil && ledger.NormalizeWallet(sub.WalletAddress) != c.wallet) {
		c.mu.Unlock()
		return
	}
	c.current = sub
	confirmedNow := sub != nil && sub.Status == ledger.StatusConfirmed && !c.sawConfirmed
	if confirmedNow {
		c.sawConfirmed = true
	}
	c.mu.Unlock()

	if confirmedNow {
		if c.notices != nil {
			c.notices.Transient(notify.LevelSuccess, "ETH lock confirmed. Faucet unlocked.")
		}
		if c.OnConfirmed != nil {
			c.OnConfirmed(sub)
		}
	}
}

// Disconnect dismisses session-scoped notices and resets the in-flight
// guard. Requests already on the wire are left to resolve; their results are
// discarded by apply.
func (c *Coordinator) Disconnect() {
	c.mu.Lock()
	c.disconnected = true
	c.submitting = false
	c.current = nil
	c.refetchPending = false
	c.mu.Unlock()
	c.inFlight.Store(false)
	if c.notices != nil {
		c.notices.DismissTransient()
	}
}

func (c *Coordinator) activeAccount(ctx context.Context, session *wallet.Session) (string, error) {
	raw, err := session.Provider.Request(ctx, "eth_accounts")
	if err != nil {
		return "", fmt.Errorf("eth_accounts: %w", err)
	}
	var accounts []string
	if err := json.Unmarshal(raw, &accounts); err != nil {
		return "", fmt.Errorf("decode eth_accounts: %w", err)
	}
	if len(accounts) == 0 {
		return "", fmt.Errorf("wallet reports no accounts")
	}
	return ledger.NormalizeWallet(accounts[0]), nil
}

func decodeTxHash(raw json.RawMessage) (string, error) {
	var hash string
	if err := json.Unmarshal(raw, &hash); err != nil {
		return "", fmt.Errorf("decode tx hash: %w", err)
	}
	hash = strings.TrimSpace(hash)
	if !txHashPattern.MatchString(hash) {
		return "", fmt.Errorf("wallet returned malformed tx hash %q", hash)
	}
	return strings.ToLower(hash), nil
}
