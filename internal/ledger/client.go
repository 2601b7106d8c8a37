package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"fluxgate/internal/fault"
)

// Client abstracts the backend ledger's remote procedures. The ledger's
// internal implementation is not owned here; this is its RPC contract.
type Client interface {
	RecordEthLockSent(ctx context.Context, req RecordLockSentRequest) (*LockSubmission, error)
	VerifyEthLock(ctx context.Context, walletAddress, txHash string) (Status, error)
	GetLockSubmission(ctx context.Context, walletAddress string) (*LockSubmission, error)
	SyncWalletFluxBalance(ctx context.Context, req SyncBalanceRequest) (*FluxBalance, error)
	RecordFluxFaucetClaim(ctx context.Context, req FaucetClaimRequest) (*FluxBalance, error)
}

type RecordLockSentRequest struct {
	WalletAddress   string    `json:"wallet_address"`
	TxHash          string    `json:"tx_hash"`
	ChainID         int64     `json:"chain_id"`
	FromAddress     string    `json:"from_address"`
	ToAddress       string    `json:"to_address"`
	AmountWei       string    `json:"amount_wei"`
	ClientTimestamp time.Time `json:"client_timestamp"`
	UserAgent       string    `json:"user_agent"`
}

type SyncBalanceRequest struct {
	WalletAddress        string    `json:"wallet_address"`
	WhitelistBonusAmount string    `json:"whitelist_bonus_amount"`
	ClientTimestamp      time.Time `json:"client_timestamp"`
	UserAgent            string    `json:"user_agent"`
}

// FaucetClaimRequest carries one claim attempt. The settlement fields are
// populated from the claim package's settlement variant; exactly one of the
// message or transaction field sets is present, selected by SettlementKind.
type FaucetClaimRequest struct {
	WalletAddress        string    `json:"wallet_address"`
	ClaimAmount          string    `json:"claim_amount"`
	CooldownSeconds      int       `json:"cooldown_seconds"`
	SettlementKind       string    `json:"settlement_kind"`
	SettlementStatus     string    `json:"settlement_status"`
	SignedMessage        string    `json:"signed_message,omitempty"`
	Signature            string    `json:"signature,omitempty"`
	MessageNonce         string    `json:"message_nonce,omitempty"`
	TxHash               string    `json:"tx_hash,omitempty"`
	ChainID              int64     `json:"chain_id,omitempty"`
	WhitelistBonusAmount string    `json:"whitelist_bonus_amount"`
	ClientTimestamp      time.Time `json:"client_timestamp"`
	UserAgent            string    `json:"user_agent"`
	IdempotencyKey       string    `json:"idempotency_key"`
}

// HTTPClient speaks JSON to the ledger's rpc endpoints.
type HTTPClient struct {
	baseURL   string
	apiKey    string
	userAgent string
	http      *http.Client
}

func NewHTTPClient(baseURL, apiKey, userAgent string) *HTTPClient {
	return &HTTPClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		userAgent: userAgent,
		http:      &http.Client{},
	}
}

func (c *HTTPClient) RecordEthLockSent(ctx context.Context, req RecordLockSentRequest) (*LockSubmission, error) {
	var sub LockSubmission
	if err := c.call(ctx, "record_eth_lock_sent", req, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

func (c *HTTPClient) VerifyEthLock(ctx context.Context, walletAddress, txHash string) (Status, error) {
	payload := map[string]string{
		"wallet_address": NormalizeWallet(walletAddress),
		"tx_hash":        txHash,
	}
	var out struct {
		Status Status `json:"status"`
	}
	if err := c.call(ctx, "verify_eth_lock", payload, &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

func (c *HTTPClient) GetLockSubmission(ctx context.Context, walletAddress string) (*LockSubmission, error) {
	payload := map[string]string{"wallet_address": NormalizeWallet(walletAddress)}
	var sub LockSubmission
	if err := c.call(ctx, "get_eth_lock", payload, &sub); err != nil {
		return nil, err
	}
	if sub.WalletAddress == "" {
		return nil, nil
	}
	return &sub, nil
}

func (c *HTTPClient) SyncWalletFluxBalance(ctx context.Context, req SyncBalanceRequest) (*FluxBalance, error) {
	var bal FluxBalance
	if err := c.call(ctx, "sync_wallet_flux_balance", req, &bal); err != nil {
		return nil, err
	}
	return &bal, nil
}

func (c *HTTPClient) RecordFluxFaucetClaim(ctx context.Context, req FaucetClaimRequest) (*FluxBalance, error) {
	var bal FluxBalance
	if err := c.call(ctx, "record_flux_faucet_claim", req, &bal); err != nil {
		return nil, err
	}
	return &bal, nil
}

// Ping checks the ledger's health endpoint.
func (c *HTTPClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("ledger health returned %d", resp.StatusCode)
	}
	return nil
}

func (c *HTTPClient) call(ctx context.Context, procedure string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", procedure, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rpc/"+procedure, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", procedure, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fault.New(fault.BackendUnavailable, procedure, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fault.New(fault.BackendUnavailable, procedure, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.mapError(procedure, resp.StatusCode, raw)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fault.Newf(fault.BackendUnavailable, procedure, "decode response: %v", err)
	}
	return nil
}

// mapError distinguishes a not-yet-migrated schema from a generic backend
// failure so the boundary can show an actionable message.
func (c *HTTPClient) mapError(procedure string, status int, raw []byte) error {
	var rpcErr struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(raw, &rpcErr)

	msg := rpcErr.Message
	if msg == "" {
		msg = strings.TrimSpace(string(raw))
	}
	if isSchemaMissing(rpcErr.Code, msg) {
		return fault.Newf(fault.SchemaMissing, procedure, "status %d: %s", status, msg)
	}
	return fault.Newf(fault.BackendUnavailable, procedure, "status %d: %s", status, msg)
}

func isSchemaMissing(code, message string) bool {
	// 42P01 is Postgres undefined_table; PGRST2xx are PostgREST schema cache
	// misses. Both mean the migration has not been applied yet.
	if code == "42P01" || strings.HasPrefix(code, "PGRST2") {
		return true
	}
	lower := strings.ToLower(message)
	return strings.Contains(lower, "does not exist") ||
		strings.Contains(lower, "schema cache")
}
