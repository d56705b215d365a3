// Package broker implements the router (control plane) described in
// spec.md §4.3: a single-task command actor owning the subscription tree
// and retained-message table.
package broker

import "github.com/telemq/telemq/internal/codec"

// Outbox is a session's inbound mailbox, owned by the router per spec.md
// §5 ("a session receives messages on its own unbounded inbox owned by
// the router"). It is a bounded, buffered channel whose capacity the
// creator chooses. The router never blocks sending to it: every send is a
// non-blocking select, and a message that finds the buffer full is dropped
// with a warning logged.
type Outbox chan OutboxMessage

// OutboxMessage is whatever the router sends to a session.
type OutboxMessage interface{ isOutboxMessage() }

// Deliver asks the session to forward Packet to the client. Filter, when
// non-empty, names the specific subscription filter this delivery is for
// (used for retained-message replay, spec.md §4.3's "forward it back to
// the client with the originating filter identifier"); when empty, the
// session matches Packet's topic against all of its own subscriptions.
type Deliver struct {
	Packet *codec.Publish
	Filter string
}

func (Deliver) isOutboxMessage() {}

// OutboxDisconnect tells a displaced session to exit without publishing
// its will (spec.md §4.2 "Second CONNECT with same client id").
type OutboxDisconnect struct{}

func (OutboxDisconnect) isOutboxMessage() {}

// OutboxShutDown tells a session the broker is shutting down; the session
// should persist its state (if not clean) and exit.
type OutboxShutDown struct{}

func (OutboxShutDown) isOutboxMessage() {}

// Command is a message sent to the router from a session, listener, or
// the stats component (spec.md §4.3).
type Command interface{ isCommand() }

// ClientConnected registers outbox as the live mailbox for clientID,
// displacing any prior registration.
type ClientConnected struct {
	ClientID     string
	CleanSession bool
	Outbox       Outbox
}

func (ClientConnected) isCommand() {}

// AddSubscriptions inserts filters into the subscription tree for
// clientID, then replays matching retained messages.
type AddSubscriptions struct {
	ClientID string
	Filters  []string
}

func (AddSubscriptions) isCommand() {}

// RemoveSubscriptions removes filters from the subscription tree.
type RemoveSubscriptions struct {
	ClientID string
	Filters  []string
}

func (RemoveSubscriptions) isCommand() {}

// Publish fans a packet out to matching subscribers, updating the
// retained-message table first if the retain flag is set.
type Publish struct {
	Packet *codec.Publish
}

func (Publish) isCommand() {}

// ClientDisconnected unregisters clientID's outbox (if it still matches
// Outbox — see spec.md §9's duplicate-CONNECT open question) and
// publishes WillPacket if present.
type ClientDisconnected struct {
	ClientID     string
	CleanSession bool
	WillPacket   *codec.Publish
	Outbox       Outbox
}

func (ClientDisconnected) isCommand() {}

// ShutDown asks the router to commit the session store and notify every
// connected session, then signal Done once every session has
// disconnected.
type ShutDown struct {
	Done chan struct{}
}

func (ShutDown) isCommand() {}
