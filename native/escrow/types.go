package escrow

import (
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Status represents the lifecycle states of locked bounty funds.
//
// Transitions: none -> Locked -> {Released, Refunded, PartiallyRefunded};
// PartiallyRefunded -> {Released, Refunded, PartiallyRefunded}. Released and
// Refunded are terminal.
type Status uint8

const (
	StatusLocked Status = iota
	StatusReleased
	StatusRefunded
	StatusPartiallyRefunded
)

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	switch s {
	case StatusLocked, StatusReleased, StatusRefunded, StatusPartiallyRefunded:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	switch s {
	case StatusLocked:
		return "locked"
	case StatusReleased:
		return "released"
	case StatusRefunded:
		return "refunded"
	case StatusPartiallyRefunded:
		return "partially_refunded"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Terminal reports whether the status accepts no further transitions.
func (s Status) Terminal() bool {
	return s == StatusReleased || s == StatusRefunded
}

// RefundMode selects how much is refunded and to whom.
type RefundMode uint8

const (
	// RefundFull refunds the entire remaining amount to the depositor.
	RefundFull RefundMode = iota
	// RefundPartial refunds a caller-specified amount to the depositor.
	RefundPartial
	// RefundCustom refunds a specified amount to an arbitrary recipient and
	// always requires an admin approval.
	RefundCustom
)

// Valid reports whether the mode value is within the supported range.
func (m RefundMode) Valid() bool {
	switch m {
	case RefundFull, RefundPartial, RefundCustom:
		return true
	default:
		return false
	}
}

func (m RefundMode) String() string {
	switch m {
	case RefundFull:
		return "full"
	case RefundPartial:
		return "partial"
	case RefundCustom:
		return "custom"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// RefundRecord is one entry of an escrow's append-only refund history.
type RefundRecord struct {
	Amount    *big.Int
	Mode      RefundMode
	Recipient [20]byte
	Timestamp uint64
}

// RefundApproval is an admin-issued, single-use authorisation overriding the
// default deadline and recipient restrictions for one bounty. At most one
// approval is outstanding per bounty; re-approving overwrites it and a
// successful refund consumes it.
type RefundApproval struct {
	BountyID   uint64
	Amount     *big.Int
	Recipient  [20]byte
	Mode       RefundMode
	ApprovedBy [20]byte
	ApprovedAt uint64
}

// Escrow captures the persisted state of one locked-fund commitment, keyed by
// bounty identifier. Records are never deleted; terminal statuses freeze the
// record as a permanent audit trail.
type Escrow struct {
	BountyID        uint64
	Depositor       [20]byte
	Amount          *big.Int
	RemainingAmount *big.Int
	Status          Status
	Deadline        uint64
	CreatedAt       uint64
	RefundHistory   []RefundRecord
}

// Clone returns a deep copy of the escrow so callers can safely mutate the
// copy without affecting the stored instance.
func (e *Escrow) Clone() *Escrow {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Amount = cloneBigInt(e.Amount)
	clone.RemainingAmount = cloneBigInt(e.RemainingAmount)
	if e.RefundHistory != nil {
		clone.RefundHistory = make([]RefundRecord, len(e.RefundHistory))
		for i, rec := range e.RefundHistory {
			clone.RefundHistory[i] = rec
			clone.RefundHistory[i].Amount = cloneBigInt(rec.Amount)
		}
	}
	return &clone
}

// ReleasedAmount derives the quantity disbursed to a beneficiary from the
// conservation identity amount - remaining = released + sum(refunds).
func (e *Escrow) ReleasedAmount() *big.Int {
	if e == nil {
		return big.NewInt(0)
	}
	released := new(big.Int).Sub(cloneBigInt(e.Amount), cloneBigInt(e.RemainingAmount))
	for _, rec := range e.RefundHistory {
		released.Sub(released, cloneBigInt(rec.Amount))
	}
	return released
}

// SanitizeEscrow validates the supplied record, returning a cloned instance
// with non-nil amount fields. The original value is not mutated.
func SanitizeEscrow(e *Escrow) (*Escrow, error) {
	if e == nil {
		return nil, fmt.Errorf("escrow: nil record")
	}
	clone := e.Clone()
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("escrow: invalid status %d", clone.Status)
	}
	if clone.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("escrow: amount must be positive")
	}
	if clone.RemainingAmount.Sign() < 0 || clone.RemainingAmount.Cmp(clone.Amount) > 0 {
		return nil, fmt.Errorf("escrow: remaining amount out of range")
	}
	for _, rec := range clone.RefundHistory {
		if !rec.Mode.Valid() {
			return nil, fmt.Errorf("escrow: invalid refund mode %d", rec.Mode)
		}
		if rec.Amount == nil || rec.Amount.Sign() <= 0 {
			return nil, fmt.Errorf("escrow: refund history amount must be positive")
		}
	}
	return clone, nil
}

// LockFundsItem is one entry of a batch lock request.
type LockFundsItem struct {
	BountyID  uint64
	Depositor [20]byte
	Amount    *big.Int
	Deadline  uint64
}

// ReleaseFundsItem is one entry of a batch release request.
type ReleaseFundsItem struct {
	BountyID    uint64
	Beneficiary [20]byte
}

// MaxBatchSize caps the number of items a single batch invocation may carry.
const MaxBatchSize = 100

// VaultAddress returns the module account holding escrowed funds. The address
// is derived deterministically so every deployment custodies value under the
// same account.
func VaultAddress() [20]byte {
	var addr [20]byte
	hash := ethcrypto.Keccak256([]byte("bountyvault/escrow-vault"))
	copy(addr[:], hash[12:])
	return addr
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
