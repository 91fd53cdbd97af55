package escrow

import "math/big"

// transfer moves value of the single escrowed asset between two accounts in
// the state-backed balance ledger. This is the only primitive through which
// funds enter or leave the vault; every settlement pairs one transfer with
// one state commit.
func (e *Engine) transfer(from, to [20]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
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
