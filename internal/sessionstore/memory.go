package sessionstore

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/telemq/telemq/internal/codec"
)

// FileStore is the default Session Store: an in-memory map behind a
// read-write lock (spec.md §5 "the Session Store is behind a read-write
// lock"), committed to a JSON file at Path only on graceful shutdown.
// Grounded on the teacher's in-memory session store, replacing its
// Save/Load/Delete/Exists/List surface with spec.md §4.5's
// save_state/take_state/new_publish/commit/load.
type FileStore struct {
	mu     sync.RWMutex
	states map[string]*State
	path   string
}

// NewFileStore creates a file-backed store. Path is the fixed location
// Commit writes to and Load reads from (spec.md §6 default
// "./session_state_store.json").
func NewFileStore(path string) *FileStore {
	return &FileStore{
		states: make(map[string]*State),
		path:   path,
	}
}

func (f *FileStore) SaveState(state *State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[state.ClientID] = state
	return nil
}

func (f *FileStore) TakeState(clientID string) (*State, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.states[clientID]
	if ok {
		delete(f.states, clientID)
	}
	return s, ok
}

func (f *FileStore) NewPublish(clientID string, pkt *codec.Publish) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.states[clientID]
	if !ok {
		return nil
	}
	s.Pending = append(s.Pending, PublishToPending(pkt))
	return nil
}

func (f *FileStore) Commit() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	data, err := json.Marshal(f.states)
	if err != nil {
		return errors.Wrap(err, "marshal session store")
	}

	return os.WriteFile(f.path, data, 0o600)
}

// Load attempts to read f.path. Per spec.md §4.5, a missing or corrupt
// file is treated as empty rather than as a fatal error; the caller is
// expected to log err if non-nil.
func (f *FileStore) Load() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "read session store file")
	}

	var snapshot map[string]*State
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return errors.Wrap(err, "unmarshal session store file")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for clientID, s := range snapshot {
		f.states[clientID] = s
	}
	return nil
}
