package session

import (
	"sync"

	"github.com/telemq/telemq/internal/codec"
)

// OutboundState is the lifecycle of a publish the broker sent to a client.
type OutboundState int

const (
	OutboundNonAcked OutboundState = iota
	OutboundPubReced
)

// InboundState is the lifecycle of a publish a client sent to the broker.
type InboundState int

const (
	InboundNonAcked InboundState = iota
	InboundPubReled
)

// OutboundTransaction tracks one in-flight QoS>0 publish the broker sent.
// Packet is retained so it can be resent with DUP=1 on resume.
type OutboundTransaction struct {
	PacketID uint16
	Packet   *codec.Publish
	State    OutboundState
}

// InboundTransaction tracks one in-flight QoS>0 publish a client sent.
type InboundTransaction struct {
	PacketID uint16
	QoS      codec.QoS
	State    InboundState
}

// Transactions holds a session's inbound and outbound transaction tables.
// spec.md §3 invariant: a packet id appears in at most one of the two
// tables. Outbound allocation skips ids present in either table; PutInbound
// stores a client-chosen id without checking the outbound table, so an id
// can be present in both tables at once.
type Transactions struct {
	mu       sync.Mutex
	inbound  map[uint16]*InboundTransaction
	outbound map[uint16]*OutboundTransaction
}

func NewTransactions() *Transactions {
	return &Transactions{
		inbound:  make(map[uint16]*InboundTransaction),
		outbound: make(map[uint16]*OutboundTransaction),
	}
}

// AllocateOutboundID finds the lowest packet id in [0x0001, 0xFFFF] not
// currently present in either transaction table. Linear search is O(n) in
// the number of in-flight packets; acceptable per spec.md §9 since MQTT
// 3.1.1's packet-id space is only 16 bits.
func (tx *Transactions) AllocateOutboundID() (uint16, bool) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	for id := uint32(1); id <= 0xFFFF; id++ {
		pid := uint16(id)
		if _, inUse := tx.outbound[pid]; inUse {
			continue
		}
		if _, inUse := tx.inbound[pid]; inUse {
			continue
		}
		return pid, true
	}
	return 0, false
}

func (tx *Transactions) PutOutbound(t *OutboundTransaction) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.outbound[t.PacketID] = t
}

func (tx *Transactions) Outbound(id uint16) (*OutboundTransaction, bool) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	t, ok := tx.outbound[id]
	return t, ok
}

func (tx *Transactions) RemoveOutbound(id uint16) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	delete(tx.outbound, id)
}

func (tx *Transactions) PutInbound(t *InboundTransaction) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.inbound[t.PacketID] = t
}

func (tx *Transactions) Inbound(id uint16) (*InboundTransaction, bool) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	t, ok := tx.inbound[id]
	return t, ok
}

func (tx *Transactions) RemoveInbound(id uint16) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	delete(tx.inbound, id)
}

// OutboundSnapshot returns a copy of all outbound transactions, used when
// replaying on resume (spec.md §4.2 "Resume/retransmission").
func (tx *Transactions) OutboundSnapshot() []*OutboundTransaction {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	out := make([]*OutboundTransaction, 0, len(tx.outbound))
	for _, t := range tx.outbound {
		out = append(out, t)
	}
	return out
}

// InboundSnapshot returns a copy of all inbound transactions, used when
// serializing a session for durable storage.
func (tx *Transactions) InboundSnapshot() []*InboundTransaction {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	out := make([]*InboundTransaction, 0, len(tx.inbound))
	for _, t := range tx.inbound {
		out = append(out, t)
	}
	return out
}
