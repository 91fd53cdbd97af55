package state

import (
	"bountyvault/native/program"
)

var programRecordKey = []byte("program/record")

// ProgramPut validates and persists the program pool record.
func (m *Manager) ProgramPut(p *program.Program) error {
	sanitized, err := program.SanitizeProgram(p)
	if err != nil {
		return err
	}
	return m.KVPut(programRecordKey, sanitized)
}

// ProgramGet loads the program pool record. The returned record is a private
// copy; mutating it does not affect stored state.
func (m *Manager) ProgramGet() (*program.Program, bool, error) {
	stored := new(program.Program)
	ok, err := m.KVGet(programRecordKey, stored)
	if err != nil || !ok {
		return nil, false, err
	}
	if stored.PayoutHistory == nil {
		stored.PayoutHistory = []program.Payout{}
	}
	return stored, true, nil
}
