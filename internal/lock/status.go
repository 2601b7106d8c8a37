package lock

import "fluxgate/internal/ledger"

// Project derives the gating-relevant status from a raw submission status
// and the administrative active flag. A confirmed record whose lock has been
// deactivated reads as pending for every gating decision, while the raw
// record keeps its confirmation for display and audit.
func Project(raw ledger.Status, isLockActive bool) ledger.Status {
	if raw == ledger.StatusConfirmed && !isLockActive {
		return ledger.StatusPending
	}
	return raw
}

// Effective applies Project to a submission record; a nil record is pending.
func Effective(sub *ledger.LockSubmission) ledger.Status {
	if sub == nil {
		return ledger.StatusPending
	}
	return Project(sub.Status, sub.IsLockActive)
}

// Unlocked reports whether the wallet passes the lock gate.
func Unlocked(sub *ledger.LockSubmission) bool {
	return Effective(sub) == ledger.StatusConfirmed
}
