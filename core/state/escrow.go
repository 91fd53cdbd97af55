package state

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"bountyvault/native/common"
	"bountyvault/native/escrow"
)

var (
	escrowAdminKey       = []byte("escrow/admin")
	escrowTokenKey       = []byte("escrow/token")
	escrowRecordPrefix   = []byte("escrow/record/")
	refundApprovalPrefix = []byte("escrow/approval/")
	abuseConfigKey       = []byte("abuse/config")
	abuseStatePrefix     = []byte("abuse/state/")
	whitelistPrefix      = []byte("abuse/whitelist/")
	balancePrefix        = []byte("balance/")
)

func escrowRecordKey(id uint64) []byte {
	buf := make([]byte, len(escrowRecordPrefix)+8)
	copy(buf, escrowRecordPrefix)
	binary.BigEndian.PutUint64(buf[len(escrowRecordPrefix):], id)
	return buf
}

func refundApprovalKey(id uint64) []byte {
	buf := make([]byte, len(refundApprovalPrefix)+8)
	copy(buf, refundApprovalPrefix)
	binary.BigEndian.PutUint64(buf[len(refundApprovalPrefix):], id)
	return buf
}

func addrKey(prefix []byte, addr [20]byte) []byte {
	buf := make([]byte, len(prefix)+len(addr))
	copy(buf, prefix)
	copy(buf[len(prefix):], addr[:])
	return buf
}

// EscrowPut validates and persists the escrow record.
func (m *Manager) EscrowPut(e *escrow.Escrow) error {
	sanitized, err := escrow.SanitizeEscrow(e)
	if err != nil {
		return err
	}
	return m.KVPut(escrowRecordKey(sanitized.BountyID), sanitized)
}

// EscrowGet loads the escrow record for the bounty id. The returned record is
// a private copy; mutating it does not affect stored state.
func (m *Manager) EscrowGet(id uint64) (*escrow.Escrow, bool, error) {
	stored := new(escrow.Escrow)
	ok, err := m.KVGet(escrowRecordKey(id), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	if stored.RefundHistory == nil {
		stored.RefundHistory = []escrow.RefundRecord{}
	}
	return stored, true, nil
}

// RefundApprovalPut stores the pending approval for its bounty id,
// overwriting any previous approval.
func (m *Manager) RefundApprovalPut(a *escrow.RefundApproval) error {
	if a == nil {
		return fmt.Errorf("state: nil refund approval")
	}
	if a.Amount == nil || a.Amount.Sign() <= 0 {
		return fmt.Errorf("state: refund approval amount must be positive")
	}
	return m.KVPut(refundApprovalKey(a.BountyID), a)
}

// RefundApprovalGet loads the pending approval for the bounty id.
func (m *Manager) RefundApprovalGet(id uint64) (*escrow.RefundApproval, bool, error) {
	stored := new(escrow.RefundApproval)
	ok, err := m.KVGet(refundApprovalKey(id), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return stored, true, nil
}

// RefundApprovalRemove clears the pending approval for the bounty id.
func (m *Manager) RefundApprovalRemove(id uint64) error {
	return m.KVDelete(refundApprovalKey(id))
}

// AdminGet returns the admin address recorded at initialisation.
func (m *Manager) AdminGet() ([20]byte, bool, error) {
	var addr [20]byte
	ok, err := m.KVGet(escrowAdminKey, &addr)
	return addr, ok, err
}

// AdminSet records the admin address. Set once at init.
func (m *Manager) AdminSet(addr [20]byte) error {
	return m.KVPut(escrowAdminKey, addr)
}

// TokenGet returns the escrowed asset's contract address.
func (m *Manager) TokenGet() ([20]byte, bool, error) {
	var addr [20]byte
	ok, err := m.KVGet(escrowTokenKey, &addr)
	return addr, ok, err
}

// TokenSet records the escrowed asset's contract address. Set once at init.
func (m *Manager) TokenSet(addr [20]byte) error {
	return m.KVPut(escrowTokenKey, addr)
}

// AbuseConfigGet returns the stored anti-abuse limits, reporting false when
// no admin override exists.
func (m *Manager) AbuseConfigGet() (common.AbuseConfig, bool, error) {
	var cfg common.AbuseConfig
	ok, err := m.KVGet(abuseConfigKey, &cfg)
	return cfg, ok, err
}

// AbuseConfigSet stores the anti-abuse limits.
func (m *Manager) AbuseConfigSet(cfg common.AbuseConfig) error {
	return m.KVPut(abuseConfigKey, cfg)
}

// AbuseStateGet returns the usage counters for the caller, zero-valued when
// the address has no history.
func (m *Manager) AbuseStateGet(addr [20]byte) (common.AbuseState, error) {
	var st common.AbuseState
	_, err := m.KVGet(addrKey(abuseStatePrefix, addr), &st)
	return st, err
}

// AbuseStatePut stores the usage counters for the caller.
func (m *Manager) AbuseStatePut(addr [20]byte, st common.AbuseState) error {
	return m.KVPut(addrKey(abuseStatePrefix, addr), st)
}

// Whitelisted reports whether the address bypasses the anti-abuse limits.
func (m *Manager) Whitelisted(addr [20]byte) (bool, error) {
	return m.KVHas(addrKey(whitelistPrefix, addr))
}

// SetWhitelisted adds or removes the address from the anti-abuse whitelist.
func (m *Manager) SetWhitelisted(addr [20]byte, whitelisted bool) error {
	key := addrKey(whitelistPrefix, addr)
	if whitelisted {
		return m.KVPut(key, true)
	}
	return m.KVDelete(key)
}

// Balance returns the asset balance of the address. Missing accounts hold
// zero.
func (m *Manager) Balance(addr [20]byte) (*big.Int, error) {
	balance := new(big.Int)
	ok, err := m.KVGet(addrKey(balancePrefix, addr), balance)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return balance, nil
}

// SetBalance stores the asset balance of the address. Negative balances are
// rejected.
func (m *Manager) SetBalance(addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: balance must be non-negative")
	}
	return m.KVPut(addrKey(balancePrefix, addr), amount)
}
