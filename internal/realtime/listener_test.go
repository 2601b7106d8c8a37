package realtime

import (
	"testing"

	"fluxgate/internal/ledger"
)

func TestHandlePayloadFiltersByWallet(t *testing.T) {
	var got []Event
	l := NewListener("", "0xAAAA0000000000000000000000000000000000aa", func(ev Event) {
		got = append(got, ev)
	})

	// Different wallet: dropped.
	l.handlePayload(`{"wallet_address":"0xbbbb0000000000000000000000000000000000bb","status":"confirmed","is_lock_active":true}`)
	if len(got) != 0 {
		t.Fatalf("event for another wallet must be filtered out")
	}

	// Same wallet, different casing: forwarded.
	l.handlePayload(`{"wallet_address":"0xAAAA0000000000000000000000000000000000AA","status":"verifying","is_lock_active":true}`)
	if len(got) != 1 {
		t.Fatalf("expected one forwarded event, got %d", len(got))
	}
	if got[0].Status != ledger.StatusVerifying {
		t.Fatalf("unexpected status %s", got[0].Status)
	}
}

func TestHandlePayloadDropsMalformedJSON(t *testing.T) {
	called := false
	l := NewListener("", "0xaaaa0000000000000000000000000000000000aa", func(Event) {
		called = true
	})
	l.handlePayload(`not json`)
	if called {
		t.Fatalf("malformed payload must not invoke the callback")
	}
}
