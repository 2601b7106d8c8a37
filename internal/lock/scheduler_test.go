package lock

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"fluxgate/internal/ledger"
	"fluxgate/internal/notify"
)

func TestSchedulerPushShortensLatency(t *testing.T) {
	fake := ledger.NewFakeLedger()
	fake.VerifyScript = []ledger.Status{ledger.StatusConfirmed}
	provider := &stubProvider{accounts: []string{walletA}, sendHash: testTxHash}
	c := NewCoordinator(testConfig(), walletA, sessionFor(walletA, provider), fake, nil)

	if _, err := c.SubmitLock(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Interval long enough that only the push can drive the refresh.
	s := NewScheduler(c, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.Notify()
		if cur := c.Current(); cur != nil && cur.Status == ledger.StatusConfirmed {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("push notification did not drive the refresh")
}

type refetchFlakyLedger struct {
	*ledger.FakeLedger
	failuresLeft int32
}

func (l *refetchFlakyLedger) GetLockSubmission(ctx context.Context, walletAddress string) (*ledger.LockSubmission, error) {
	if atomic.AddInt32(&l.failuresLeft, -1) >= 0 {
		return nil, errors.New("rpc timeout")
	}
	return l.FakeLedger.GetLockSubmission(ctx, walletAddress)
}

func TestTimerRetriesFailedAuthoritativeRefetch(t *testing.T) {
	fake := ledger.NewFakeLedger()
	fake.VerifyScript = []ledger.Status{ledger.StatusConfirmed}
	// The verify call confirms, but the authoritative refetch right after it
	// fails once. The optimistically patched record reads terminal; the
	// timer must still retry until a refetch lands.
	flaky := &refetchFlakyLedger{FakeLedger: fake, failuresLeft: 1}
	provider := &stubProvider{accounts: []string{walletA}, sendHash: testTxHash}
	notices := notify.NewCenter()
	c := NewCoordinator(testConfig(), walletA, sessionFor(walletA, provider), flaky, notices)

	var confirmed int32
	c.OnConfirmed = func(*ledger.LockSubmission) { atomic.AddInt32(&confirmed, 1) }

	if _, err := c.SubmitLock(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}

	s := NewScheduler(c, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		cur := c.Current()
		if atomic.LoadInt32(&confirmed) == 1 && len(notices.List()) > 0 &&
			cur != nil && cur.Status == ledger.StatusConfirmed && cur.IsLockActive {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timer never recovered the failed refetch: confirmed=%d notices=%d current=%+v",
		atomic.LoadInt32(&confirmed), len(notices.List()), c.Current())
}

func TestSchedulerTimerIsFallback(t *testing.T) {
	fake := ledger.NewFakeLedger()
	fake.VerifyScript = []ledger.Status{ledger.StatusConfirmed}
	provider := &stubProvider{accounts: []string{walletA}, sendHash: testTxHash}
	c := NewCoordinator(testConfig(), walletA, sessionFor(walletA, provider), fake, nil)

	if _, err := c.SubmitLock(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}

	// No pushes at all; the fixed interval alone must converge.
	s := NewScheduler(c, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cur := c.Current(); cur != nil && cur.Status == ledger.StatusConfirmed {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timer alone did not drive the refresh")
}
