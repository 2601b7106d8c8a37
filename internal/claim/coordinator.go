package claim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"fluxgate/internal/fault"
	"fluxgate/internal/ledger"
	"fluxgate/internal/notify"
	"fluxgate/internal/receipts"
	"fluxgate/internal/wallet"
)

var (
	// ErrNotUnlocked means the wallet has no effective ETH lock.
	ErrNotUnlocked = errors.New("wallet is not unlocked for faucet claims")
	// ErrCooldown means the cooldown window since the last claim has not
	// elapsed. Detected locally; no request is sent.
	ErrCooldown = errors.New("faucet cooldown has not elapsed")
)

// Gate answers whether the wallet currently passes the lock gate. The lock
// coordinator satisfies it.
type Gate interface {
	Unlocked() bool
}

// Config is the faucet feature's slice of the application configuration.
type Config struct {
	ClaimAmount          string
	CooldownSeconds      int
	WhitelistBonusAmount string
	UserAgent            string
}

// Coordinator submits idempotent faucet claims gated by lock status and
// cooldown, and reconciles the authoritative balance returned by the ledger.
type Coordinator struct {
	cfg      Config
	wallet   string // normalized
	sessions wallet.SessionAccessor
	ledger   ledger.Client
	gate     Gate
	store    receipts.Store
	notices  *notify.Center

	mu      sync.Mutex
	balance *ledger.FluxBalance
	syncing bool

	// OnClaim observes claim outcomes, for metrics.
	OnClaim func(result string)

	now func() time.Time
}

func NewCoordinator(cfg Config, walletAddress string, sessions wallet.SessionAccessor, cli ledger.Client, gate Gate, store receipts.Store, notices *notify.Center) *Coordinator {
	if store == nil {
		store = receipts.NewMemoryStore()
	}
	return &Coordinator{
		cfg:      cfg,
		wallet:   ledger.NormalizeWallet(walletAddress),
		sessions: sessions,
		ledger:   cli,
		gate:     gate,
		store:    store,
		notices:  notices,
		now:      time.Now,
	}
}

// Balance returns the last authoritative snapshot, nil before the first sync.
func (c *Coordinator) Balance() *ledger.FluxBalance {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.balance == nil {
		return nil
	}
	cp := *c.balance
	return &cp
}

// Syncing reports whether a claim or sync is awaiting the ledger. The UI
// shows this as a pending indicator; it never shows a speculative balance.
func (c *Coordinator) Syncing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.syncing
}

// CanClaim is the local gate: a pure function of already-known state, no
// network. Both the lock gate and the cooldown window must pass.
func (c *Coordinator) CanClaim() bool {
	return c.claimGate() == nil
}

// NextClaimAt reports when the cooldown window reopens; zero when claimable
// now or when no claim has happened yet.
func (c *Coordinator) NextClaimAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.balance == nil || c.balance.LastFaucetClaimedAt == nil {
		return time.Time{}
	}
	next := c.balance.LastFaucetClaimedAt.Add(c.cooldown())
	if !next.After(c.now()) {
		return time.Time{}
	}
	return next
}

func (c *Coordinator) claimGate() error {
	if !c.gate.Unlocked() {
		return ErrNotUnlocked
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.balance != nil && c.balance.LastFaucetClaimedAt != nil {
		if c.now().Sub(*c.balance.LastFaucetClaimedAt) < c.cooldown() {
			return ErrCooldown
		}
	}
	return nil
}

func (c *Coordinator) cooldown() time.Duration {
	return time.Duration(c.cfg.CooldownSeconds) * time.Second
}

// IdempotencyKey derives the deterministic key for one logical claim: the
// wallet plus the current UTC calendar day. A retry of the same day's claim
// reproduces the key, so the ledger recognizes the duplicate and returns the
// existing balance instead of crediting twice.
func IdempotencyKey(walletAddress string, now time.Time) string {
	return "faucet:" + ledger.NormalizeWallet(walletAddress) + ":" + now.UTC().Format("2006-01-02")
}

// Claim runs one faucet claim attempt. The local gate is checked first with
// zero network traffic; the displayed balance is only ever updated from the
// ledger's authoritative response.
func (c *Coordinator) Claim(ctx context.Context) (*ledger.FluxBalance, error) {
	if err := c.claimGate(); err != nil {
		c.observe("gated")
		return nil, err
	}

	c.setSyncing(true)
	defer c.setSyncing(false)

	key := IdempotencyKey(c.wallet, c.now())

	// A live local receipt means this exact claim already settled, likely
	// before a restart. Answer from it without touching the network.
	if rec, err := c.store.Get(ctx, key); err == nil && rec != nil {
		var bal ledger.FluxBalance
		if err := json.Unmarshal(rec.Payload, &bal); err == nil {
			c.applyBalance(&bal)
			c.observe("replayed")
			return c.Balance(), nil
		}
	}

	session, err := c.sessions.Active(ctx)
	if err != nil {
		c.observe("failed")
		return nil, fault.New(fault.Unknown, "claim", err)
	}
	if ledger.NormalizeWallet(session.Address.Hex()) != c.wallet {
		c.observe("failed")
		return nil, fault.Newf(fault.SessionMismatch, "claim",
			"session wallet %s does not match authenticated wallet %s", session.Address.Hex(), c.wallet)
	}

	settlement, err := BuildSettlement(ctx, session, c.wallet, c.cfg.ClaimAmount, c.cfg.CooldownSeconds, c.now())
	if err != nil {
		c.observe("failed")
		return nil, err
	}

	req := ledger.FaucetClaimRequest{
		WalletAddress:        c.wallet,
		ClaimAmount:          c.cfg.ClaimAmount,
		CooldownSeconds:      c.cfg.CooldownSeconds,
		WhitelistBonusAmount: c.cfg.WhitelistBonusAmount,
		ClientTimestamp:      c.now().UTC(),
		UserAgent:            c.cfg.UserAgent,
		IdempotencyKey:       key,
	}
	if err := attachSettlement(&req, settlement); err != nil {
		c.observe("failed")
		return nil, err
	}

	bal, err := c.ledger.RecordFluxFaucetClaim(ctx, req)
	if err != nil {
		c.observe("failed")
		return nil, fmt.Errorf("record faucet claim: %w", err)
	}

	c.applyBalance(bal)
	c.saveReceipt(ctx, key, bal)
	c.observe("settled")
	if c.notices != nil {
		c.notices.Transient(notify.LevelSuccess, fmt.Sprintf("Claimed %s FLUX.", c.cfg.ClaimAmount))
	}
	return c.Balance(), nil
}

// SyncBalance refetches the authoritative balance and replaces the snapshot
// wholesale.
func (c *Coordinator) SyncBalance(ctx context.Context) (*ledger.FluxBalance, error) {
	c.setSyncing(true)
	defer c.setSyncing(false)

	bal, err := c.ledger.SyncWalletFluxBalance(ctx, ledger.SyncBalanceRequest{
		WalletAddress:        c.wallet,
		WhitelistBonusAmount: c.cfg.WhitelistBonusAmount,
		ClientTimestamp:      c.now().UTC(),
		UserAgent:            c.cfg.UserAgent,
	})
	if err != nil {
		return nil, fmt.Errorf("sync balance: %w", err)
	}
	c.applyBalance(bal)
	return c.Balance(), nil
}

// Disconnect drops session-scoped state.
func (c *Coordinator) Disconnect() {
	c.mu.Lock()
	c.balance = nil
	c.syncing = false
	c.mu.Unlock()
}

// attachSettlement maps the settlement variant onto the wire request. The
// switch is exhaustive over the sealed interface; an unknown variant is a
// programming error.
func attachSettlement(req *ledger.FaucetClaimRequest, s Settlement) error {
	switch v := s.(type) {
	case MessageSettlement:
		req.SettlementKind = v.Kind()
		req.SettlementStatus = "signed"
		req.SignedMessage = v.SignedMessage
		req.Signature = v.Signature
		req.MessageNonce = v.MessageNonce
		req.ChainID = v.ChainID
	case TransactionSettlement:
		req.SettlementKind = v.Kind()
		req.SettlementStatus = v.Status
		req.TxHash = v.TxHash
		req.ChainID = v.ChainID
	default:
		return fmt.Errorf("unknown settlement variant %T", s)
	}
	return nil
}

func (c *Coordinator) applyBalance(bal *ledger.FluxBalance) {
	if bal == nil || ledger.NormalizeWallet(bal.WalletAddress) != c.wallet {
		return
	}
	c.mu.Lock()
	c.balance = bal
	c.mu.Unlock()
}

func (c *Coordinator) saveReceipt(ctx context.Context, key string, bal *ledger.FluxBalance) {
	payload, err := json.Marshal(bal)
	if err != nil {
		return
	}
	rec := receipts.Record{
		Payload:   payload,
		ClaimedAt: c.now().UTC(),
		ExpiresAt: c.now().UTC().Add(2 * c.cooldown()),
	}
	if err := c.store.Save(ctx, key, rec); err != nil {
		log.Printf("claim: save receipt: %v", err)
	}
}

func (c *Coordinator) setSyncing(v bool) {
	c.mu.Lock()
	c.syncing = v
	c.mu.Unlock()
}

func (c *Coordinator) observe(result string) {
	if c.OnClaim != nil {
		c.OnClaim(result)
	}
}
