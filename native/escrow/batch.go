package escrow

import (
	"math/big"

	"bountyvault/observability"
)

// BatchLockFunds locks funds for up to MaxBatchSize bounties in one
// invocation. Every item is validated before any write: duplicate ids inside
// the batch, existing bounties, non-positive amounts and stale deadlines all
// reject the whole call. Processing is all-or-nothing; a failure while
// committing reverts the invocation snapshot, so no record from a failed
// batch is ever persisted. Returns the number of bounties locked.
func (e *Engine) BatchLockFunds(items []LockFundsItem) (uint32, error) {
	var locked uint32
	err := e.withGuard("batch_lock_funds", func() error {
		if len(items) == 0 || len(items) > MaxBatchSize {
			return ErrInvalidBatchSize
		}
		if err := e.requireInitialized(); err != nil {
			return err
		}
		// Rate-limit each distinct depositor once per invocation.
		seen := make(map[[20]byte]struct{}, len(items))
		for _, item := range items {
			if _, ok := seen[item.Depositor]; ok {
				continue
			}
			seen[item.Depositor] = struct{}{}
			if err := e.checkRateLimit(item.Depositor); err != nil {
				return err
			}
		}

		now := e.now()
		ids := make(map[uint64]struct{}, len(items))
		records := make([]*Escrow, 0, len(items))
		for _, item := range items {
			if _, dup := ids[item.BountyID]; dup {
				return ErrDuplicateBountyID
			}
			ids[item.BountyID] = struct{}{}
			esc, err := e.buildLock(item, now)
			if err != nil {
				return err
			}
			records = append(records, esc)
		}

		total := big.NewInt(0)
		vault := VaultAddress()
		for _, esc := range records {
			if err := e.transfer(esc.Depositor, vault, esc.Amount); err != nil {
				return err
			}
			if err := e.state.EscrowPut(esc); err != nil {
				return err
			}
			e.emit(NewFundsLockedEvent(esc))
			total.Add(total, esc.Amount)
			locked++
		}
		e.emit(NewBatchLockedEvent(locked, total, now))
		observability.EscrowMetrics().ObserveAmount("batch_lock_funds", total)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return locked, nil
}

// BatchReleaseFunds releases up to MaxBatchSize bounties to their
// beneficiaries in one invocation. Admin only. Validation runs for every
// item before any write and processing is all-or-nothing, like
// BatchLockFunds. Returns the number of bounties released.
func (e *Engine) BatchReleaseFunds(caller [20]byte, items []ReleaseFundsItem) (uint32, error) {
	var released uint32
	err := e.withGuard("batch_release_funds", func() error {
		if len(items) == 0 || len(items) > MaxBatchSize {
			return ErrInvalidBatchSize
		}
		if err := e.checkRateLimit(caller); err != nil {
			return err
		}
		if err := e.requireAdmin(caller); err != nil {
			return err
		}

		ids := make(map[uint64]struct{}, len(items))
		for _, item := range items {
			if _, dup := ids[item.BountyID]; dup {
				return ErrDuplicateBountyID
			}
			ids[item.BountyID] = struct{}{}
			esc, ok, err := e.state.EscrowGet(item.BountyID)
			if err != nil {
				return err
			}
			if !ok {
				return ErrBountyNotFound
			}
			if esc.Status != StatusLocked && esc.Status != StatusPartiallyRefunded {
				return ErrFundsNotLocked
			}
		}

		now := e.now()
		total := big.NewInt(0)
		for _, item := range items {
			esc, payout, err := e.settleRelease(item.BountyID)
			if err != nil {
				return err
			}
			if err := e.transfer(VaultAddress(), item.Beneficiary, payout); err != nil {
				return err
			}
			e.emit(NewFundsReleasedEvent(esc, item.Beneficiary, payout, now))
			total.Add(total, payout)
			released++
		}
		e.emit(NewBatchReleasedEvent(released, total, now))
		observability.EscrowMetrics().ObserveAmount("batch_release_funds", total)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return released, nil
}
