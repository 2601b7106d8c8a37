package realtime

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/jackc/pgx/v5"

	"fluxgate/internal/ledger"
)

// Channel carries row-level change notifications for the lock-submission
// table. The backend raises NOTIFY on every insert or update.
const Channel = "lock_submission_changes"

// Event is one change notification payload.
type Event struct {
	WalletAddress string        `json:"wallet_address"`
	Status        ledger.Status `json:"status"`
	IsLockActive  bool          `json:"is_lock_active"`
}

// Listener subscribes to lock-submission changes for a single wallet and
// forwards matching events. It is a latency shortcut only: the verification
// poll timer remains the resilience fallback, so every failure here is
// logged and retried, never surfaced.
type Listener struct {
	dsn     string
	wallet  string // normalized filter
	onEvent func(Event)

	// backoff between reconnect attempts.
	retryDelay time.Duration
}

func NewListener(dsn, walletAddress string, onEvent func(Event)) *Listener {
	return &Listener{
		dsn:        dsn,
		wallet:     ledger.NormalizeWallet(walletAddress),
		onEvent:    onEvent,
		retryDelay: 5 * time.Second,
	}
}

// Run listens until ctx is cancelled, reconnecting on any failure.
func (l *Listener) Run(ctx context.Context) {
	for {
		if err := l.listen(ctx); err != nil && ctx.Err() == nil {
			log.Printf("realtime: channel dropped, reconnecting: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(l.retryDelay):
		}
	}
}

func (l *Listener) listen(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.dsn)
	if err != nil {
		return err
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+Channel); err != nil {
		return err
	}

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		l.handlePayload(notification.Payload)
	}
}

// handlePayload decodes one notification and forwards it when it concerns
// this listener's wallet. Malformed payloads are dropped.
func (l *Listener) handlePayload(payload string) {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		log.Printf("realtime: malformed payload: %v", err)
		return
	}
	if ledger.NormalizeWallet(ev.WalletAddress) != l.wallet {
		return
	}
	if l.onEvent != nil {
		l.onEvent(ev)
	}
}
