package program

import (
	"errors"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrAlreadyInitialized = errors.New("program: already initialized")
	ErrNotInitialized     = errors.New("program: not initialized")
	ErrUnauthorized       = errors.New("program: unauthorized")
	ErrInvalidAmount      = errors.New("program: invalid amount")
	ErrInsufficientFunds  = errors.New("program: insufficient funds")
	ErrBatchSizeMismatch  = errors.New("program: batch size mismatch")
	ErrInvalidBatchSize   = errors.New("program: invalid batch size")
)

// Payout is one entry of the program's append-only payout history.
type Payout struct {
	Recipient [20]byte
	Amount    *big.Int
	Timestamp uint64
}

// Program is the single pooled escrow managed per deployment. There is no
// per-id state machine; the pool itself carries the conservation invariant
// remaining = total - sum(payouts).
type Program struct {
	ProgramID        string
	AuthorizedKey    [20]byte
	Token            [20]byte
	TotalFunds       *big.Int
	RemainingBalance *big.Int
	PayoutHistory    []Payout
}

// Clone returns a deep copy of the program record.
func (p *Program) Clone() *Program {
	if p == nil {
		return nil
	}
	clone := *p
	clone.TotalFunds = cloneBigInt(p.TotalFunds)
	clone.RemainingBalance = cloneBigInt(p.RemainingBalance)
	if p.PayoutHistory != nil {
		clone.PayoutHistory = make([]Payout, len(p.PayoutHistory))
		for i, payout := range p.PayoutHistory {
			clone.PayoutHistory[i] = payout
			clone.PayoutHistory[i].Amount = cloneBigInt(payout.Amount)
		}
	}
	return &clone
}

// SanitizeProgram validates the supplied record, returning a cloned instance
// with non-nil amount fields. The original value is not mutated.
func SanitizeProgram(p *Program) (*Program, error) {
	if p == nil {
		return nil, fmt.Errorf("program: nil record")
	}
	clone := p.Clone()
	if clone.ProgramID == "" {
		return nil, fmt.Errorf("program: id must not be empty")
	}
	if clone.TotalFunds.Sign() < 0 {
		return nil, fmt.Errorf("program: total funds must be non-negative")
	}
	if clone.RemainingBalance.Sign() < 0 || clone.RemainingBalance.Cmp(clone.TotalFunds) > 0 {
		return nil, fmt.Errorf("program: remaining balance out of range")
	}
	for _, payout := range clone.PayoutHistory {
		if payout.Amount == nil || payout.Amount.Sign() <= 0 {
			return nil, fmt.Errorf("program: payout amount must be positive")
		}
	}
	return clone, nil
}

// MaxBatchSize caps the number of payouts a single batch invocation may
// carry.
const MaxBatchSize = 100

// VaultAddress returns the module account pooling the program's funds.
func VaultAddress() [20]byte {
	var addr [20]byte
	hash := ethcrypto.Keccak256([]byte("bountyvault/program-vault"))
	copy(addr[:], hash[12:])
	return addr
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
