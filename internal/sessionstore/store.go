// Package sessionstore implements spec.md §4.5's Session Store: durable
// offline-session persistence behind a read-write lock, with a
// best-effort commit-on-shutdown-only durability model.
package sessionstore

import (
	"github.com/cockroachdb/errors"

	"github.com/telemq/telemq/internal/codec"
)

// ErrNotFound is returned by implementations that need to distinguish
// "no state" from a transport error; Store.TakeState itself reports
// absence via its bool return instead (spec.md's take_state -> Option).
var ErrNotFound = errors.New("sessionstore: not found")

// Store is spec.md §4.5's Session Store interface.
type Store interface {
	// SaveState inserts or replaces the stored state for state.ClientID.
	SaveState(state *State) error

	// TakeState atomically removes and returns the stored state for
	// clientID. The bool is false if none was stored.
	TakeState(clientID string) (*State, bool)

	// NewPublish appends pkt to the pending queue of the stored state for
	// clientID, if one exists; otherwise it is silently discarded.
	NewPublish(clientID string, pkt *codec.Publish) error

	// Commit serializes every stored state to durable storage. Called
	// only on graceful shutdown.
	Commit() error

	// Load attempts to populate the store from durable storage. It does
	// not log; a failure is returned for the caller to log, and the store
	// keeps whatever it held before the failure.
	Load() error
}
