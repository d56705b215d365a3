package session

import (
	"github.com/telemq/telemq/internal/codec"
	"github.com/telemq/telemq/internal/sessionstore"
)

// ToStoreState converts a runtime State into the Session Store's at-rest
// shape, for save_state/commit (spec.md §4.5).
func (s *State) ToStoreState() *sessionstore.State {
	subs := make(map[string]byte, len(s.Subscriptions))
	for filter, qos := range s.Subscriptions {
		subs[filter] = byte(qos)
	}

	var outbound []sessionstore.OutboundTransaction
	for _, t := range s.Transactions.OutboundSnapshot() {
		outbound = append(outbound, sessionstore.OutboundTransaction{
			PacketID: t.PacketID,
			Packet:   sessionstore.PublishToPending(t.Packet),
			State:    int(t.State),
		})
	}

	var inbound []sessionstore.InboundTransaction
	for _, t := range s.Transactions.InboundSnapshot() {
		inbound = append(inbound, sessionstore.InboundTransaction{
			PacketID: t.PacketID,
			QoS:      byte(t.QoS),
			State:    int(t.State),
		})
	}

	pending := make([]*sessionstore.PendingPublish, 0, len(s.Pending))
	for _, p := range s.Pending {
		pending = append(pending, sessionstore.PublishToPending(p))
	}

	var will *sessionstore.Will
	if s.Will != nil {
		will = &sessionstore.Will{
			Topic:   s.Will.Topic,
			QoS:     byte(s.Will.QoS),
			Payload: s.Will.Payload,
			Retain:  s.Will.Retain,
		}
	}

	return &sessionstore.State{
		ClientID:      s.ClientID,
		CleanSession:  s.CleanSession,
		Subscriptions: subs,
		Outbound:      outbound,
		Inbound:       inbound,
		Pending:       pending,
		Will:          will,
	}
}

// FromStoreState rebuilds a runtime State from a Session Store record,
// for the resume path of CONNECT handling (spec.md §4.2 step 3).
func FromStoreState(stored *sessionstore.State) *State {
	s := NewState(stored.ClientID, stored.CleanSession)
	for filter, qos := range stored.Subscriptions {
		s.Subscriptions[filter] = codec.QoS(qos)
	}
	for _, t := range stored.Outbound {
		s.Transactions.PutOutbound(&OutboundTransaction{
			PacketID: t.PacketID,
			Packet:   t.Packet.ToPublish(),
			State:    OutboundState(t.State),
		})
	}
	for _, t := range stored.Inbound {
		s.Transactions.PutInbound(&InboundTransaction{
			PacketID: t.PacketID,
			QoS:      codec.QoS(t.QoS),
			State:    InboundState(t.State),
		})
	}
	for _, p := range stored.Pending {
		s.EnqueuePending(p.ToPublish())
	}
	if stored.Will != nil {
		s.Will = &Will{
			Topic:   stored.Will.Topic,
			QoS:     codec.QoS(stored.Will.QoS),
			Payload: stored.Will.Payload,
			Retain:  stored.Will.Retain,
		}
	}
	return s
}
