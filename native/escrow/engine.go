package escrow

import (
	"fmt"
	"math/big"
	"time"

	"bountyvault/core/events"
	"bountyvault/native/common"
	"bountyvault/observability"
)

var errNilState = fmt.Errorf("escrow engine: state not configured")

// engineState is the record-store surface the engine mutates. The state
// manager implements it; tests may substitute their own backend.
//
// Snapshot/RevertToSnapshot expose the host's whole-invocation rollback: the
// engine snapshots on entry and reverts on any error, so a failed call (batch
// included) leaves no partial writes behind.
type engineState interface {
	EscrowPut(*Escrow) error
	EscrowGet(id uint64) (*Escrow, bool, error)
	RefundApprovalPut(*RefundApproval) error
	RefundApprovalGet(id uint64) (*RefundApproval, bool, error)
	RefundApprovalRemove(id uint64) error

	AdminGet() ([20]byte, bool, error)
	AdminSet([20]byte) error
	TokenGet() ([20]byte, bool, error)
	TokenSet([20]byte) error

	AbuseConfigGet() (common.AbuseConfig, bool, error)
	AbuseConfigSet(common.AbuseConfig) error
	AbuseStateGet(addr [20]byte) (common.AbuseState, error)
	AbuseStatePut(addr [20]byte, st common.AbuseState) error
	Whitelisted(addr [20]byte) (bool, error)
	SetWhitelisted(addr [20]byte, whitelisted bool) error

	Balance(addr [20]byte) (*big.Int, error)
	SetBalance(addr [20]byte, amount *big.Int) error

	Snapshot() int
	RevertToSnapshot(int)
}

// Engine wires the escrow settlement logic with external state and event
// emitters. All mutating entry points run behind the reentrancy guard and the
// per-address rate limiter, and either commit in full or revert in full.
type Engine struct {
	state   engineState
	emitter events.Emitter
	guard   common.ReentrancyGuard
	nowFn   func() uint64
}

// NewEngine creates an escrow engine with a no-op emitter. Callers can
// override the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() uint64 { return uint64(time.Now().Unix()) },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() uint64) {
	if now == nil {
		e.nowFn = func() uint64 { return uint64(time.Now().Unix()) }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(evt *events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) now() uint64 {
	if e == nil || e.nowFn == nil {
		return uint64(time.Now().Unix())
	}
	return e.nowFn()
}

// withGuard runs fn behind the reentrancy guard and a state snapshot. Any
// error reverts every write fn performed, mirroring the host ledger's atomic
// transaction semantics.
func (e *Engine) withGuard(op string, fn func() error) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	release, err := e.guard.Enter()
	if err != nil {
		observability.EscrowMetrics().Observe(op, err)
		return err
	}
	defer release()
	snap := e.state.Snapshot()
	if err := fn(); err != nil {
		e.state.RevertToSnapshot(snap)
		observability.EscrowMetrics().Observe(op, err)
		return err
	}
	observability.EscrowMetrics().Observe(op, nil)
	return nil
}

// checkRateLimit enforces the sliding-window limits for the caller and
// records the updated counters. Whitelisted addresses bypass the check. The
// counter write participates in the invocation snapshot, so a failed call
// does not consume quota.
func (e *Engine) checkRateLimit(caller [20]byte) error {
	listed, err := e.state.Whitelisted(caller)
	if err != nil {
		return err
	}
	if listed {
		return nil
	}
	cfg, ok, err := e.state.AbuseConfigGet()
	if err != nil {
		return err
	}
	if !ok {
		cfg = common.DefaultAbuseConfig()
	}
	prev, err := e.state.AbuseStateGet(caller)
	if err != nil {
		return err
	}
	next, err := common.CheckRateLimit(cfg, e.now(), prev)
	if err != nil {
		return err
	}
	return e.state.AbuseStatePut(caller, next)
}

// requireAdmin ensures the instance is initialised and the caller is the
// admin address recorded at init.
func (e *Engine) requireAdmin(caller [20]byte) error {
	admin, ok, err := e.state.AdminGet()
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotInitialized
	}
	if admin != caller {
		return ErrUnauthorized
	}
	return nil
}

func (e *Engine) requireInitialized() error {
	_, ok, err := e.state.AdminGet()
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotInitialized
	}
	return nil
}

// Init records the admin and token addresses. It can be called exactly once
// per instance; re-initialisation fails so the admin cannot be taken over.
func (e *Engine) Init(admin, token [20]byte) error {
	return e.withGuard("init", func() error {
		if err := e.checkRateLimit(admin); err != nil {
			return err
		}
		if _, ok, err := e.state.AdminGet(); err != nil {
			return err
		} else if ok {
			return ErrAlreadyInitialized
		}
		if err := e.state.AdminSet(admin); err != nil {
			return err
		}
		if err := e.state.TokenSet(token); err != nil {
			return err
		}
		e.emit(NewInitializedEvent(admin, token, e.now()))
		return nil
	})
}

// LockFunds transfers amount from the depositor into the vault and creates
// the escrow record in Locked state.
func (e *Engine) LockFunds(depositor [20]byte, bountyID uint64, amount *big.Int, deadline uint64) error {
	return e.withGuard("lock_funds", func() error {
		if err := e.checkRateLimit(depositor); err != nil {
			return err
		}
		if err := e.requireInitialized(); err != nil {
			return err
		}
		esc, err := e.buildLock(LockFundsItem{BountyID: bountyID, Depositor: depositor, Amount: amount, Deadline: deadline}, e.now())
		if err != nil {
			return err
		}
		if err := e.transfer(depositor, VaultAddress(), esc.Amount); err != nil {
			return err
		}
		if err := e.state.EscrowPut(esc); err != nil {
			return err
		}
		e.emit(NewFundsLockedEvent(esc))
		observability.EscrowMetrics().ObserveAmount("lock_funds", esc.Amount)
		return nil
	})
}

// buildLock validates one lock request and returns the record to persist.
// Shared by the single and batch lock paths.
func (e *Engine) buildLock(item LockFundsItem, now uint64) (*Escrow, error) {
	amt := cloneBigInt(item.Amount)
	if amt.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if item.Deadline <= now {
		return nil, ErrInvalidDeadline
	}
	if _, ok, err := e.state.EscrowGet(item.BountyID); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrBountyExists
	}
	return &Escrow{
		BountyID:        item.BountyID,
		Depositor:       item.Depositor,
		Amount:          amt,
		RemainingAmount: cloneBigInt(amt),
		Status:          StatusLocked,
		Deadline:        item.Deadline,
		CreatedAt:       now,
		RefundHistory:   []RefundRecord{},
	}, nil
}

// ReleaseFunds settles the remaining escrowed amount in favour of the
// beneficiary. Admin only. The record is committed as Released before the
// outbound transfer so a reentrant call cannot observe stale locked state.
//
// A PartiallyRefunded record is eligible for release of the remainder; this
// matches the documented status check and is pending product confirmation.
func (e *Engine) ReleaseFunds(caller [20]byte, bountyID uint64, beneficiary [20]byte) error {
	return e.withGuard("release_funds", func() error {
		if err := e.checkRateLimit(caller); err != nil {
			return err
		}
		if err := e.requireAdmin(caller); err != nil {
			return err
		}
		esc, payout, err := e.settleRelease(bountyID)
		if err != nil {
			return err
		}
		if err := e.transfer(VaultAddress(), beneficiary, payout); err != nil {
			return err
		}
		e.emit(NewFundsReleasedEvent(esc, beneficiary, payout, e.now()))
		observability.EscrowMetrics().ObserveAmount("release_funds", payout)
		return nil
	})
}

// settleRelease validates the record and commits the Released state, handing
// back the amount still owed to the beneficiary. Shared by the single and
// batch release paths.
func (e *Engine) settleRelease(bountyID uint64) (*Escrow, *big.Int, error) {
	esc, ok, err := e.state.EscrowGet(bountyID)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, ErrBountyNotFound
	}
	switch esc.Status {
	case StatusLocked, StatusPartiallyRefunded:
	case StatusReleased, StatusRefunded:
		return nil, nil, ErrFundsNotLocked
	default:
		return nil, nil, fmt.Errorf("escrow: invalid status %d for bounty %d", esc.Status, bountyID)
	}
	payout := cloneBigInt(esc.RemainingAmount)
	if payout.Sign() <= 0 {
		return nil, nil, ErrInsufficientFunds
	}
	esc.Status = StatusReleased
	esc.RemainingAmount = big.NewInt(0)
	if err := e.state.EscrowPut(esc); err != nil {
		return nil, nil, err
	}
	return esc, payout, nil
}

// ApproveRefund stores (or overwrites) the pending refund approval for the
// bounty. Admin only. The approval authorises one refund that would otherwise
// be disallowed and is consumed on use.
func (e *Engine) ApproveRefund(caller [20]byte, bountyID uint64, amount *big.Int, recipient [20]byte, mode RefundMode) error {
	return e.withGuard("approve_refund", func() error {
		if err := e.checkRateLimit(caller); err != nil {
			return err
		}
		if err := e.requireAdmin(caller); err != nil {
			return err
		}
		if !mode.Valid() {
			return fmt.Errorf("escrow: unsupported refund mode %d", mode)
		}
		esc, ok, err := e.state.EscrowGet(bountyID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrBountyNotFound
		}
		if esc.Status != StatusLocked && esc.Status != StatusPartiallyRefunded {
			return ErrFundsNotLocked
		}
		amt := cloneBigInt(amount)
		if amt.Sign() <= 0 || amt.Cmp(esc.RemainingAmount) > 0 {
			return ErrInvalidAmount
		}
		return e.state.RefundApprovalPut(&RefundApproval{
			BountyID:   bountyID,
			Amount:     amt,
			Recipient:  recipient,
			Mode:       mode,
			ApprovedBy: caller,
			ApprovedAt: e.now(),
		})
	})
}

// Refund disburses escrowed value back out of the vault according to the
// requested mode:
//
//   - RefundFull: the entire remaining amount to the depositor.
//   - RefundPartial: the requested amount (default: all remaining) to the
//     depositor.
//   - RefundCustom: the requested amount to the requested recipient.
//
// Full and Partial refunds are permissionless once the deadline has passed;
// before the deadline they require a matching admin approval. Custom refunds
// always require a matching approval. A consumed approval is cleared.
func (e *Engine) Refund(caller [20]byte, bountyID uint64, amount *big.Int, recipient *[20]byte, mode RefundMode) error {
	return e.withGuard("refund", func() error {
		if err := e.checkRateLimit(caller); err != nil {
			return err
		}
		if err := e.requireInitialized(); err != nil {
			return err
		}
		esc, ok, err := e.state.EscrowGet(bountyID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrBountyNotFound
		}
		if esc.Status != StatusLocked && esc.Status != StatusPartiallyRefunded {
			return ErrFundsNotLocked
		}
		now := e.now()
		deadlinePassed := now >= esc.Deadline

		var refundAmount *big.Int
		var refundRecipient [20]byte
		switch mode {
		case RefundFull:
			refundAmount = cloneBigInt(esc.RemainingAmount)
			refundRecipient = esc.Depositor
		case RefundPartial:
			if amount == nil {
				refundAmount = cloneBigInt(esc.RemainingAmount)
			} else {
				refundAmount = cloneBigInt(amount)
			}
			refundRecipient = esc.Depositor
		case RefundCustom:
			if amount == nil || recipient == nil {
				return ErrInvalidAmount
			}
			refundAmount = cloneBigInt(amount)
			refundRecipient = *recipient
		default:
			return fmt.Errorf("escrow: unsupported refund mode %d", mode)
		}
		if refundAmount.Sign() <= 0 || refundAmount.Cmp(esc.RemainingAmount) > 0 {
			return ErrInvalidAmount
		}

		// Custom refunds always need an approval; Full/Partial only before
		// the deadline.
		needsApproval := mode == RefundCustom || !deadlinePassed
		if needsApproval {
			approval, ok, err := e.state.RefundApprovalGet(bountyID)
			if err != nil {
				return err
			}
			if !ok {
				if mode == RefundCustom {
					return ErrRefundNotApproved
				}
				return ErrDeadlineNotPassed
			}
			if approval.Mode != mode || approval.Recipient != refundRecipient || approval.Amount == nil || approval.Amount.Cmp(refundAmount) != 0 {
				return ErrRefundNotApproved
			}
			if err := e.state.RefundApprovalRemove(bountyID); err != nil {
				return err
			}
		}

		vault := VaultAddress()
		vaultBalance, err := e.state.Balance(vault)
		if err != nil {
			return err
		}
		if vaultBalance.Cmp(refundAmount) < 0 {
			return ErrInsufficientFunds
		}

		record := RefundRecord{
			Amount:    refundAmount,
			Mode:      mode,
			Recipient: refundRecipient,
			Timestamp: now,
		}
		esc.RemainingAmount = new(big.Int).Sub(esc.RemainingAmount, refundAmount)
		esc.RefundHistory = append(esc.RefundHistory, record)
		if esc.RemainingAmount.Sign() == 0 {
			esc.Status = StatusRefunded
		} else {
			esc.Status = StatusPartiallyRefunded
		}
		if err := e.state.EscrowPut(esc); err != nil {
			return err
		}
		if err := e.transfer(vault, refundRecipient, refundAmount); err != nil {
			return err
		}
		e.emit(NewFundsRefundedEvent(esc, record))
		observability.EscrowMetrics().ObserveAmount("refund", refundAmount)
		return nil
	})
}

// SetAbuseConfig replaces the anti-abuse limits. Admin only.
func (e *Engine) SetAbuseConfig(caller [20]byte, cfg common.AbuseConfig) error {
	return e.withGuard("set_abuse_config", func() error {
		if err := e.requireAdmin(caller); err != nil {
			return err
		}
		return e.state.AbuseConfigSet(cfg)
	})
}

// SetWhitelisted adds or removes an address from the anti-abuse whitelist.
// Admin only.
func (e *Engine) SetWhitelisted(caller, addr [20]byte, whitelisted bool) error {
	return e.withGuard("set_whitelisted", func() error {
		if err := e.requireAdmin(caller); err != nil {
			return err
		}
		return e.state.SetWhitelisted(addr, whitelisted)
	})
}

// EscrowInfo returns a copy of the escrow record for the bounty.
func (e *Engine) EscrowInfo(bountyID uint64) (*Escrow, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	esc, ok, err := e.state.EscrowGet(bountyID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrBountyNotFound
	}
	return esc, nil
}

// RefundHistory returns the ordered refund entries recorded for the bounty.
func (e *Engine) RefundHistory(bountyID uint64) ([]RefundRecord, error) {
	esc, err := e.EscrowInfo(bountyID)
	if err != nil {
		return nil, err
	}
	return esc.RefundHistory, nil
}

// RefundEligibility describes whether and how a bounty can currently be
// refunded.
type RefundEligibility struct {
	CanRefund      bool
	DeadlinePassed bool
	Remaining      *big.Int
	Approval       *RefundApproval
}

// RefundEligibilityOf reports the refund posture of the bounty: whether a
// refund is currently possible, whether the deadline has passed, the
// undisbursed remainder and any pending approval.
func (e *Engine) RefundEligibilityOf(bountyID uint64) (*RefundEligibility, error) {
	esc, err := e.EscrowInfo(bountyID)
	if err != nil {
		return nil, err
	}
	approval, ok, err := e.state.RefundApprovalGet(bountyID)
	if err != nil {
		return nil, err
	}
	if !ok {
		approval = nil
	}
	deadlinePassed := e.now() >= esc.Deadline
	refundable := esc.Status == StatusLocked || esc.Status == StatusPartiallyRefunded
	return &RefundEligibility{
		CanRefund:      refundable && (deadlinePassed || approval != nil),
		DeadlinePassed: deadlinePassed,
		Remaining:      cloneBigInt(esc.RemainingAmount),
		Approval:       approval,
	}, nil
}

// Balance returns the vault's custody balance.
func (e *Engine) Balance() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if _, ok, err := e.state.TokenGet(); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrNotInitialized
	}
	return e.state.Balance(VaultAddress())
}
