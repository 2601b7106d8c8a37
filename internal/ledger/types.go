package ledger

import (
	"strings"
	"time"
)

// Status is the raw lifecycle state of a lock submission as stored by the
// backend. Effective gating state is derived elsewhere; raw status is kept
// verbatim for display and audit.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusVerifying Status = "verifying"
	StatusError     Status = "error"
	StatusConfirmed Status = "confirmed"
)

// InFlight reports whether a submission still needs verification polling.
func (s Status) InFlight() bool {
	return s == StatusSent || s == StatusVerifying
}

// LockSubmission is the single logical ETH-lock record for one wallet.
// Resubmissions update this record in place; the backend upsert keeps the
// one-row-per-wallet invariant.
type LockSubmission struct {
	WalletAddress string     `json:"wallet_address"`
	AuthUserID    string     `json:"auth_user_id"`
	TxHash        string     `json:"tx_hash,omitempty"`
	ChainID       int64      `json:"chain_id,omitempty"`
	BlockNumber   uint64     `json:"block_number,omitempty"`
	FromAddress   string     `json:"from_address,omitempty"`
	ToAddress     string     `json:"to_address,omitempty"`
	AmountWei     string     `json:"amount_wei,omitempty"`
	AmountEth     string     `json:"amount_eth,omitempty"`
	Status        Status     `json:"status"`
	IsLockActive  bool       `json:"is_lock_active"`
	LastError     string     `json:"last_error,omitempty"`
	TxSubmittedAt *time.Time `json:"tx_submitted_at,omitempty"`
	ConfirmedAt   *time.Time `json:"confirmed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// FluxBalance is the authoritative ledger balance for a wallet. The client
// only ever holds snapshots of it; every successful RPC response replaces
// the previous snapshot wholesale.
type FluxBalance struct {
	WalletAddress           string     `json:"wallet_address"`
	AuthUserID              string     `json:"auth_user_id"`
	AvailableBalance        string     `json:"available_balance"`
	LifetimeClaimed         string     `json:"lifetime_claimed"`
	LifetimeSpent           string     `json:"lifetime_spent"`
	LastFaucetClaimedAt     *time.Time `json:"last_faucet_claimed_at,omitempty"`
	WhitelistBonusGrantedAt *time.Time `json:"whitelist_bonus_granted_at,omitempty"`
	CreatedAt               time.Time  `json:"created_at"`
	UpdatedAt               time.Time  `json:"updated_at"`
}

// NormalizeWallet lower-cases an address so wallet keys compare and filter
// consistently across the backend, the realtime channel and local state.
func NormalizeWallet(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
