package session

import "github.com/telemq/telemq/internal/codec"

// Will holds a declared will message, cleared after its first publication
// per spec.md §4.2 "Will data extraction" / §9 will-semantics note.
type Will struct {
	Topic   string
	QoS     codec.QoS
	Payload []byte
	Retain  bool
}

// State is spec.md §3's SessionConnectedState: the durable record for one
// client, resumable across reconnects when CleanSession is false.
type State struct {
	ClientID     string
	CleanSession bool

	// Subscriptions maps topic filter -> granted QoS.
	Subscriptions map[string]codec.QoS

	Transactions *Transactions

	// Pending holds publishes queued for an offline client, FIFO.
	Pending []*codec.Publish

	Will *Will
}

// NewState creates a fresh session state for a newly connecting client.
func NewState(clientID string, cleanSession bool) *State {
	return &State{
		ClientID:      clientID,
		CleanSession:  cleanSession,
		Subscriptions: make(map[string]codec.QoS),
		Transactions:  NewTransactions(),
	}
}

// TakeWill returns the declared will, if any (nil otherwise), and clears
// it so a later reconnect-then-crash cannot double-publish it (spec.md §9).
func (s *State) TakeWill() *Will {
	w := s.Will
	s.Will = nil
	return w
}

// EnqueuePending appends a publish for later delivery to a reconnecting
// client (spec.md §4.5 new_publish).
func (s *State) EnqueuePending(p *codec.Publish) {
	s.Pending = append(s.Pending, p)
}
