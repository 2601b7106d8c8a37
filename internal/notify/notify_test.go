package notify

import "testing"

func TestStandingNoticeReplacesById(t *testing.T) {
	c := NewCenter()
	c.Standing("config-0", LevelError, "lockRecipientAddress is missing")
	c.Standing("config-0", LevelError, "lockRecipientAddress is invalid")

	list := c.List()
	if len(list) != 1 {
		t.Fatalf("expected one standing notice, got %d", len(list))
	}
	if list[0].Message != "lockRecipientAddress is invalid" {
		t.Fatalf("replacement did not win: %q", list[0].Message)
	}
	if !list[0].Standing {
		t.Fatalf("notice lost its standing flag")
	}
}

func TestDismissIgnoresStandingNotices(t *testing.T) {
	c := NewCenter()
	c.Standing("config-0", LevelError, "misconfigured")
	c.Dismiss("config-0")

	if got := len(c.List()); got != 1 {
		t.Fatalf("standing notice must survive Dismiss, %d left", got)
	}
}

func TestDismissTransientKeepsStandingNotices(t *testing.T) {
	c := NewCenter()
	c.Standing("config-0", LevelError, "misconfigured")
	c.Transient(LevelSuccess, "ETH lock confirmed. Faucet unlocked.")
	c.Transient(LevelInfo, "Claimed 50 FLUX.")

	c.DismissTransient()

	list := c.List()
	if len(list) != 1 {
		t.Fatalf("expected only the standing notice to survive, got %d", len(list))
	}
	if list[0].ID != "config-0" {
		t.Fatalf("wrong survivor %q", list[0].ID)
	}
}

func TestTransientNoticesGetDistinctIds(t *testing.T) {
	c := NewCenter()
	c.Transient(LevelInfo, "one")
	c.Transient(LevelInfo, "two")

	list := c.List()
	if len(list) != 2 {
		t.Fatalf("expected two notices, got %d", len(list))
	}
	if list[0].ID == list[1].ID {
		t.Fatalf("transient ids must be distinct, both %q", list[0].ID)
	}

	c.Dismiss(list[0].ID)
	if got := c.List(); len(got) != 1 || got[0].ID != list[1].ID {
		t.Fatalf("dismiss removed the wrong notice: %+v", got)
	}
}
