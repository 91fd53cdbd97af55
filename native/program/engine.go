package program

import (
	"fmt"
	"math/big"
	"time"

	"bountyvault/core/events"
	"bountyvault/native/common"
	"bountyvault/observability"
)

var errNilState = fmt.Errorf("program engine: state not configured")

// engineState is the record-store surface the program engine mutates. The
// state manager implements it.
type engineState interface {
	ProgramPut(*Program) error
	ProgramGet() (*Program, bool, error)

	AbuseConfigGet() (common.AbuseConfig, bool, error)
	AbuseStateGet(addr [20]byte) (common.AbuseState, error)
	AbuseStatePut(addr [20]byte, st common.AbuseState) error
	Whitelisted(addr [20]byte) (bool, error)

	Balance(addr [20]byte) (*big.Int, error)
	SetBalance(addr [20]byte, amount *big.Int) error

	Snapshot() int
	RevertToSnapshot(int)
}

// Engine manages the single-pool program escrow: one funded pool drawn down
// by the authorized payout key, with the same guard and rollback discipline
// as the bounty engine.
type Engine struct {
	state   engineState
	emitter events.Emitter
	guard   common.ReentrancyGuard
	nowFn   func() uint64
}

// NewEngine creates a program engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() uint64 { return uint64(time.Now().Unix()) },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source, primarily for tests.
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

func (e *Engine) withGuard(op string, fn func() error) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	release, err := e.guard.Enter()
	if err != nil {
		observability.ProgramMetrics().Observe(op, err)
		return err
	}
	defer release()
	snap := e.state.Snapshot()
	if err := fn(); err != nil {
		e.state.RevertToSnapshot(snap)
		observability.ProgramMetrics().Observe(op, err)
		return err
	}
	observability.ProgramMetrics().Observe(op, nil)
	return nil
}

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

func (e *Engine) loadProgram() (*Program, error) {
	p, ok, err := e.state.ProgramGet()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	return p, nil
}

// InitProgram creates the program pool with its authorized payout key. It can
// be called exactly once per deployment.
func (e *Engine) InitProgram(programID string, authorizedKey, token [20]byte) error {
	return e.withGuard("init_program", func() error {
		if err := e.checkRateLimit(authorizedKey); err != nil {
			return err
		}
		if programID == "" {
			return fmt.Errorf("program: id must not be empty")
		}
		if _, ok, err := e.state.ProgramGet(); err != nil {
			return err
		} else if ok {
			return ErrAlreadyInitialized
		}
		p := &Program{
			ProgramID:        programID,
			AuthorizedKey:    authorizedKey,
			Token:            token,
			TotalFunds:       big.NewInt(0),
			RemainingBalance: big.NewInt(0),
			PayoutHistory:    []Payout{},
		}
		if err := e.state.ProgramPut(p); err != nil {
			return err
		}
		e.emit(NewInitializedEvent(p, e.now()))
		return nil
	})
}

// LockProgramFunds moves amount from the funder into the pool, growing both
// total funds and the remaining balance.
func (e *Engine) LockProgramFunds(funder [20]byte, amount *big.Int) error {
	return e.withGuard("lock_program_funds", func() error {
		if err := e.checkRateLimit(funder); err != nil {
			return err
		}
		p, err := e.loadProgram()
		if err != nil {
			return err
		}
		amt := cloneBigInt(amount)
		if amt.Sign() <= 0 {
			return ErrInvalidAmount
		}
		if err := e.transfer(funder, VaultAddress(), amt); err != nil {
			return err
		}
		p.TotalFunds = new(big.Int).Add(p.TotalFunds, amt)
		p.RemainingBalance = new(big.Int).Add(p.RemainingBalance, amt)
		if err := e.state.ProgramPut(p); err != nil {
			return err
		}
		e.emit(NewFundedEvent(p, funder, amt, e.now()))
		observability.ProgramMetrics().ObserveAmount("lock_program_funds", amt)
		return nil
	})
}

// SinglePayout draws amount from the pool to the recipient. Only the
// authorized payout key may call it. State is committed before the outbound
// transfer.
func (e *Engine) SinglePayout(caller, recipient [20]byte, amount *big.Int) error {
	return e.withGuard("single_payout", func() error {
		if err := e.checkRateLimit(caller); err != nil {
			return err
		}
		p, err := e.loadProgram()
		if err != nil {
			return err
		}
		if caller != p.AuthorizedKey {
			return ErrUnauthorized
		}
		payout, err := e.applyPayout(p, recipient, cloneBigInt(amount), e.now())
		if err != nil {
			return err
		}
		if err := e.state.ProgramPut(p); err != nil {
			return err
		}
		if err := e.transfer(VaultAddress(), recipient, payout.Amount); err != nil {
			return err
		}
		e.emit(NewPayoutEvent(p, payout))
		observability.ProgramMetrics().ObserveAmount("single_payout", payout.Amount)
		return nil
	})
}

// BatchPayout draws up to MaxBatchSize payouts from the pool in one
// invocation. Recipients and amounts are parallel slices. The batch total is
// summed and checked against the remaining balance before any write; an
// insufficient pool fails the whole batch. Returns the number of payouts
// made.
func (e *Engine) BatchPayout(caller [20]byte, recipients [][20]byte, amounts []*big.Int) (uint32, error) {
	var paid uint32
	err := e.withGuard("batch_payout", func() error {
		if len(recipients) != len(amounts) {
			return ErrBatchSizeMismatch
		}
		if len(recipients) == 0 || len(recipients) > MaxBatchSize {
			return ErrInvalidBatchSize
		}
		if err := e.checkRateLimit(caller); err != nil {
			return err
		}
		p, err := e.loadProgram()
		if err != nil {
			return err
		}
		if caller != p.AuthorizedKey {
			return ErrUnauthorized
		}

		total := big.NewInt(0)
		for _, amount := range amounts {
			amt := cloneBigInt(amount)
			if amt.Sign() <= 0 {
				return ErrInvalidAmount
			}
			total.Add(total, amt)
		}
		if total.Cmp(p.RemainingBalance) > 0 {
			return ErrInsufficientFunds
		}

		now := e.now()
		for i, recipient := range recipients {
			payout, err := e.applyPayout(p, recipient, cloneBigInt(amounts[i]), now)
			if err != nil {
				return err
			}
			if err := e.state.ProgramPut(p); err != nil {
				return err
			}
			if err := e.transfer(VaultAddress(), recipient, payout.Amount); err != nil {
				return err
			}
			e.emit(NewPayoutEvent(p, payout))
			paid++
		}
		e.emit(NewBatchPayoutEvent(p, paid, total, now))
		observability.ProgramMetrics().ObserveAmount("batch_payout", total)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return paid, nil
}

// applyPayout validates one draw-down and mutates the in-memory record:
// remaining balance decremented and history appended. Callers persist and
// transfer.
func (e *Engine) applyPayout(p *Program, recipient [20]byte, amount *big.Int, now uint64) (Payout, error) {
	if amount.Sign() <= 0 {
		return Payout{}, ErrInvalidAmount
	}
	if amount.Cmp(p.RemainingBalance) > 0 {
		return Payout{}, ErrInsufficientFunds
	}
	payout := Payout{Recipient: recipient, Amount: amount, Timestamp: now}
	p.RemainingBalance = new(big.Int).Sub(p.RemainingBalance, amount)
	p.PayoutHistory = append(p.PayoutHistory, payout)
	return payout, nil
}

// transfer moves value of the pooled asset between two accounts in the
// state-backed balance ledger.
func (e *Engine) transfer(from, to [20]byte, amount *big.Int) error {
	amt := cloneBigInt(amount)
	if amt.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amt.Sign() == 0 {
		return nil
	}
	fromBal, err := e.state.Balance(from)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amt) < 0 {
		return ErrInsufficientFunds
	}
	toBal, err := e.state.Balance(to)
	if err != nil {
		return err
	}
	if err := e.state.SetBalance(from, new(big.Int).Sub(fromBal, amt)); err != nil {
		return err
	}
	return e.state.SetBalance(to, new(big.Int).Add(toBal, amt))
}

// ProgramInfo returns a copy of the program record.
func (e *Engine) ProgramInfo() (*Program, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.loadProgram()
}

// PayoutHistory returns the ordered payouts drawn from the pool.
func (e *Engine) PayoutHistory() ([]Payout, error) {
	p, err := e.ProgramInfo()
	if err != nil {
		return nil, err
	}
	return p.PayoutHistory, nil
}

// Balance returns the pool vault's custody balance.
func (e *Engine) Balance() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if _, err := e.loadProgram(); err != nil {
		return nil, err
	}
	return e.state.Balance(VaultAddress())
}
