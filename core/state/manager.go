package state

import (
	"fmt"
	"sort"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"bountyvault/storage"
)

// Manager provides keyed access to the escrow host's persistent state. Values
// are RLP encoded and keys are keccak256-hashed before they reach the backing
// store, matching the key discipline used across the codebase.
//
// Writes accumulate in an in-memory overlay until Commit flushes them to the
// backing database. Snapshot/RevertToSnapshot expose the host ledger's
// whole-invocation rollback: a failed call reverts every write it performed,
// including partial batch writes.
//
// Manager is not safe for concurrent use; the host serialises invocations.
type Manager struct {
	db      storage.Database
	overlay map[string][]byte
	journal []journalEntry
}

type journalEntry struct {
	key     string
	prev    []byte
	hadPrev bool
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{
		db:      db,
		overlay: make(map[string][]byte),
	}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func (m *Manager) record(hashed string) {
	prev, had := m.overlay[hashed]
	entry := journalEntry{key: hashed, hadPrev: had}
	if had && prev != nil {
		entry.prev = append([]byte(nil), prev...)
	}
	m.journal = append(m.journal, entry)
}

// KVPut stores the provided value under the supplied key using RLP encoding.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	hashed := string(kvKey(key))
	m.record(hashed)
	m.overlay[hashed] = encoded
	return nil
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the
// key existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	hashed := string(kvKey(key))
	data, ok := m.overlay[hashed]
	if ok {
		if data == nil {
			return false, nil
		}
	} else {
		exists, err := m.db.Has([]byte(hashed))
		if err != nil {
			return false, err
		}
		if !exists {
			return false, nil
		}
		data, err = m.db.Get([]byte(hashed))
		if err != nil {
			return false, err
		}
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVHas reports whether the key exists in state without decoding its value.
func (m *Manager) KVHas(key []byte) (bool, error) {
	return m.KVGet(key, nil)
}

// KVDelete removes the value stored under the supplied key.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	hashed := string(kvKey(key))
	m.record(hashed)
	m.overlay[hashed] = nil
	return nil
}

// Snapshot marks the current overlay position. The returned identifier can be
// handed to RevertToSnapshot to discard every write performed after the mark.
func (m *Manager) Snapshot() int {
	return len(m.journal)
}

// RevertToSnapshot unwinds the overlay back to the supplied snapshot,
// restoring the state observed when Snapshot was taken. Reverting to an
// unknown snapshot is a programming error and panics, mirroring the behaviour
// of ledger state databases.
func (m *Manager) RevertToSnapshot(id int) {
	if id < 0 || id > len(m.journal) {
		panic(fmt.Sprintf("state: invalid snapshot id %d", id))
	}
	for i := len(m.journal) - 1; i >= id; i-- {
		entry := m.journal[i]
		if entry.hadPrev {
			m.overlay[entry.key] = entry.prev
		} else {
			delete(m.overlay, entry.key)
		}
	}
	m.journal = m.journal[:id]
}

// Commit flushes the overlay to the backing database and resets the journal.
// Keys are flushed in sorted order so the write sequence is deterministic.
func (m *Manager) Commit() error {
	keys := make([]string, 0, len(m.overlay))
	for k := range m.overlay {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := m.overlay[k]
		if v == nil {
			if err := m.db.Delete([]byte(k)); err != nil {
				return err
			}
			continue
		}
		if err := m.db.Put([]byte(k), v); err != nil {
			return err
		}
	}
	m.overlay = make(map[string][]byte)
	m.journal = nil
	return nil
}

// Discard drops every uncommitted write.
func (m *Manager) Discard() {
	m.overlay = make(map[string][]byte)
	m.journal = nil
}
