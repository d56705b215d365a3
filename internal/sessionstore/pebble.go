package sessionstore

import (
	"encoding/json"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"

	"github.com/telemq/telemq/internal/codec"
)

// PebbleStore is a Pebble-backed Session Store, for deployments that want
// the store's commit to spill to an LSM rather than a single JSON file.
// Grounded on the teacher's generic store.Store[T] Pebble implementation;
// rekeyed for client ids and switched from cbor to JSON encoding (DESIGN.md
// declines fxamacker/cbor/v2). Sessions still live in memory while a
// client is online (spec.md §4.5 invariant); Pebble only backs Commit/Load.
type PebbleStore struct {
	db   *pebble.DB
	mu   sync.RWMutex
	live map[string]*State
}

// NewPebbleStore opens (or creates) the Pebble database at path.
func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrap(err, "open pebble session store")
	}
	return &PebbleStore{db: db, live: make(map[string]*State)}, nil
}

func (p *PebbleStore) SaveState(state *State) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.live[state.ClientID] = state
	return nil
}

func (p *PebbleStore) TakeState(clientID string) (*State, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.live[clientID]
	if ok {
		delete(p.live, clientID)
	}
	return s, ok
}

func (p *PebbleStore) NewPublish(clientID string, pkt *codec.Publish) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.live[clientID]
	if !ok {
		return nil
	}
	s.Pending = append(s.Pending, PublishToPending(pkt))
	return nil
}

func (p *PebbleStore) Commit() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	batch := p.db.NewBatch()
	defer batch.Close()

	for clientID, s := range p.live {
		data, err := json.Marshal(s)
		if err != nil {
			return errors.Wrap(err, "marshal session state")
		}
		if err := batch.Set([]byte(clientID), data, nil); err != nil {
			return errors.Wrap(err, "stage session state")
		}
	}
	return batch.Commit(pebble.Sync)
}

func (p *PebbleStore) Load() error {
	iter, err := p.db.NewIter(nil)
	if err != nil {
		return errors.Wrap(err, "iterate session store")
	}
	defer iter.Close()

	p.mu.Lock()
	defer p.mu.Unlock()

	for iter.First(); iter.Valid(); iter.Next() {
		var s State
		if err := json.Unmarshal(iter.Value(), &s); err != nil {
			continue
		}
		p.live[string(iter.Key())] = &s
	}
	return nil
}

// Close releases the underlying Pebble database.
func (p *PebbleStore) Close() error {
	return p.db.Close()
}
