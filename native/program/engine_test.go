package program_test

import (
	"errors"
	"math/big"
	"testing"

	"bountyvault/core/events"
	"bountyvault/core/state"
	"bountyvault/native/program"
	"bountyvault/storage"
)

const baseTime = uint64(1_700_000_000)

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

type testEnv struct {
	engine   *program.Engine
	manager  *state.Manager
	recorder *events.Recorder
	key      [20]byte
	funder   [20]byte
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	mgr := state.NewManager(db)

	key := newTestAddress(0xAA)
	funder := newTestAddress(0x01)
	for _, addr := range [][20]byte{key, funder} {
		if err := mgr.SetWhitelisted(addr, true); err != nil {
			t.Fatalf("whitelist: %v", err)
		}
	}

	recorder := &events.Recorder{}
	engine := program.NewEngine()
	engine.SetState(mgr)
	engine.SetEmitter(recorder)
	engine.SetNowFunc(func() uint64 { return baseTime })

	if err := engine.InitProgram("grants-2026", key, newTestAddress(0x70)); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := mgr.SetBalance(funder, big.NewInt(10_000)); err != nil {
		t.Fatalf("fund: %v", err)
	}
	recorder.Reset()

	return &testEnv{engine: engine, manager: mgr, recorder: recorder, key: key, funder: funder}
}

func (env *testEnv) balance(t *testing.T, addr [20]byte) *big.Int {
	t.Helper()
	bal, err := env.manager.Balance(addr)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return bal
}

func checkConservation(t *testing.T, p *program.Program) {
	t.Helper()
	paid := big.NewInt(0)
	for _, payout := range p.PayoutHistory {
		paid.Add(paid, payout.Amount)
	}
	expected := new(big.Int).Sub(p.TotalFunds, paid)
	if p.RemainingBalance.Cmp(expected) != 0 {
		t.Fatalf("conservation violated: remaining %s, total-paid %s", p.RemainingBalance, expected)
	}
}

func TestInitProgramOnce(t *testing.T) {
	env := newTestEnv(t)
	err := env.engine.InitProgram("grants-2026", env.key, newTestAddress(0x70))
	if !errors.Is(err, program.ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}
}

func TestOperationsBeforeInit(t *testing.T) {
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	mgr := state.NewManager(db)
	funder := newTestAddress(0x01)
	if err := mgr.SetWhitelisted(funder, true); err != nil {
		t.Fatalf("whitelist: %v", err)
	}

	engine := program.NewEngine()
	engine.SetState(mgr)

	err := engine.LockProgramFunds(funder, big.NewInt(100))
	if !errors.Is(err, program.ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if _, err := engine.ProgramInfo(); !errors.Is(err, program.ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

func TestLockProgramFunds(t *testing.T) {
	env := newTestEnv(t)

	if err := env.engine.LockProgramFunds(env.funder, big.NewInt(4000)); err != nil {
		t.Fatalf("lock: %v", err)
	}
	// Top-ups accumulate.
	if err := env.engine.LockProgramFunds(env.funder, big.NewInt(1000)); err != nil {
		t.Fatalf("top-up: %v", err)
	}

	p, err := env.engine.ProgramInfo()
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if p.TotalFunds.Cmp(big.NewInt(5000)) != 0 || p.RemainingBalance.Cmp(big.NewInt(5000)) != 0 {
		t.Fatalf("unexpected pool: total %s remaining %s", p.TotalFunds, p.RemainingBalance)
	}
	if got := env.balance(t, program.VaultAddress()); got.Cmp(big.NewInt(5000)) != 0 {
		t.Fatalf("vault balance: %s", got)
	}
	checkConservation(t, p)

	err = env.engine.LockProgramFunds(env.funder, big.NewInt(0))
	if !errors.Is(err, program.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	err = env.engine.LockProgramFunds(env.funder, big.NewInt(1_000_000))
	if !errors.Is(err, program.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestSinglePayout(t *testing.T) {
	env := newTestEnv(t)
	recipient := newTestAddress(0x02)

	if err := env.engine.LockProgramFunds(env.funder, big.NewInt(5000)); err != nil {
		t.Fatalf("lock: %v", err)
	}

	err := env.engine.SinglePayout(env.funder, recipient, big.NewInt(1000))
	if !errors.Is(err, program.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for non-key caller, got %v", err)
	}

	if err := env.engine.SinglePayout(env.key, recipient, big.NewInt(1000)); err != nil {
		t.Fatalf("payout: %v", err)
	}
	if got := env.balance(t, recipient); got.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("recipient balance: %s", got)
	}

	p, err := env.engine.ProgramInfo()
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if p.RemainingBalance.Cmp(big.NewInt(4000)) != 0 {
		t.Fatalf("remaining: %s", p.RemainingBalance)
	}
	if len(p.PayoutHistory) != 1 || p.PayoutHistory[0].Recipient != recipient {
		t.Fatalf("unexpected history: %+v", p.PayoutHistory)
	}
	checkConservation(t, p)

	err = env.engine.SinglePayout(env.key, recipient, big.NewInt(5000))
	if !errors.Is(err, program.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	err = env.engine.SinglePayout(env.key, recipient, big.NewInt(0))
	if !errors.Is(err, program.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestBatchPayout(t *testing.T) {
	env := newTestEnv(t)
	r1 := newTestAddress(0x02)
	r2 := newTestAddress(0x03)

	if err := env.engine.LockProgramFunds(env.funder, big.NewInt(5000)); err != nil {
		t.Fatalf("lock: %v", err)
	}

	paid, err := env.engine.BatchPayout(env.key,
		[][20]byte{r1, r2},
		[]*big.Int{big.NewInt(1000), big.NewInt(2000)})
	if err != nil {
		t.Fatalf("batch payout: %v", err)
	}
	if paid != 2 {
		t.Fatalf("unexpected count: %d", paid)
	}
	if got := env.balance(t, r1); got.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("r1 balance: %s", got)
	}
	if got := env.balance(t, r2); got.Cmp(big.NewInt(2000)) != 0 {
		t.Fatalf("r2 balance: %s", got)
	}

	p, err := env.engine.ProgramInfo()
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if p.RemainingBalance.Cmp(big.NewInt(2000)) != 0 {
		t.Fatalf("remaining: %s", p.RemainingBalance)
	}
	if len(p.PayoutHistory) != 2 {
		t.Fatalf("unexpected history length: %d", len(p.PayoutHistory))
	}
	checkConservation(t, p)
}

func TestBatchPayoutValidation(t *testing.T) {
	env := newTestEnv(t)
	r1 := newTestAddress(0x02)

	if err := env.engine.LockProgramFunds(env.funder, big.NewInt(1000)); err != nil {
		t.Fatalf("lock: %v", err)
	}

	_, err := env.engine.BatchPayout(env.key,
		[][20]byte{r1},
		[]*big.Int{big.NewInt(100), big.NewInt(200)})
	if !errors.Is(err, program.ErrBatchSizeMismatch) {
		t.Fatalf("expected ErrBatchSizeMismatch, got %v", err)
	}

	_, err = env.engine.BatchPayout(env.key, nil, nil)
	if !errors.Is(err, program.ErrInvalidBatchSize) {
		t.Fatalf("expected ErrInvalidBatchSize for empty batch, got %v", err)
	}

	recipients := make([][20]byte, program.MaxBatchSize+1)
	amounts := make([]*big.Int, program.MaxBatchSize+1)
	for i := range recipients {
		recipients[i] = r1
		amounts[i] = big.NewInt(1)
	}
	_, err = env.engine.BatchPayout(env.key, recipients, amounts)
	if !errors.Is(err, program.ErrInvalidBatchSize) {
		t.Fatalf("expected ErrInvalidBatchSize for oversized batch, got %v", err)
	}

	_, err = env.engine.BatchPayout(env.funder,
		[][20]byte{r1}, []*big.Int{big.NewInt(100)})
	if !errors.Is(err, program.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestBatchPayoutAtomicity(t *testing.T) {
	env := newTestEnv(t)
	r1 := newTestAddress(0x02)
	r2 := newTestAddress(0x03)

	if err := env.engine.LockProgramFunds(env.funder, big.NewInt(1000)); err != nil {
		t.Fatalf("lock: %v", err)
	}

	// The batch total exceeds the pool: nothing is paid out.
	_, err := env.engine.BatchPayout(env.key,
		[][20]byte{r1, r2},
		[]*big.Int{big.NewInt(800), big.NewInt(800)})
	if !errors.Is(err, program.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if got := env.balance(t, r1); got.Sign() != 0 {
		t.Fatalf("r1 credited by failed batch: %s", got)
	}

	// A zero amount anywhere in the batch fails the whole call.
	_, err = env.engine.BatchPayout(env.key,
		[][20]byte{r1, r2},
		[]*big.Int{big.NewInt(100), big.NewInt(0)})
	if !errors.Is(err, program.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if got := env.balance(t, r1); got.Sign() != 0 {
		t.Fatalf("r1 credited by failed batch: %s", got)
	}

	p, err := env.engine.ProgramInfo()
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if p.RemainingBalance.Cmp(big.NewInt(1000)) != 0 || len(p.PayoutHistory) != 0 {
		t.Fatalf("pool mutated by failed batches: %+v", p)
	}
}

func TestProgramEvents(t *testing.T) {
	env := newTestEnv(t)
	recipient := newTestAddress(0x02)

	if err := env.engine.LockProgramFunds(env.funder, big.NewInt(2000)); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if err := env.engine.SinglePayout(env.key, recipient, big.NewInt(500)); err != nil {
		t.Fatalf("payout: %v", err)
	}

	evts := env.recorder.Events()
	if len(evts) != 2 {
		t.Fatalf("unexpected event count: %d", len(evts))
	}
	if evts[0].Type != program.EventTypeFunded || evts[1].Type != program.EventTypePayout {
		t.Fatalf("unexpected event types: %s, %s", evts[0].Type, evts[1].Type)
	}
	if evts[1].Attributes["amount"] != "500" {
		t.Fatalf("unexpected payout amount: %s", evts[1].Attributes["amount"])
	}
}

func TestPayoutHistoryQuery(t *testing.T) {
	env := newTestEnv(t)
	recipient := newTestAddress(0x02)

	if err := env.engine.LockProgramFunds(env.funder, big.NewInt(2000)); err != nil {
		t.Fatalf("lock: %v", err)
	}
	for i := int64(1); i <= 3; i++ {
		if err := env.engine.SinglePayout(env.key, recipient, big.NewInt(i*100)); err != nil {
			t.Fatalf("payout %d: %v", i, err)
		}
	}

	history, err := env.engine.PayoutHistory()
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("unexpected history length: %d", len(history))
	}
	if history[2].Amount.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("unexpected last payout: %s", history[2].Amount)
	}

	bal, err := env.engine.Balance()
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.Cmp(big.NewInt(1400)) != 0 {
		t.Fatalf("vault balance: %s", bal)
	}
}
