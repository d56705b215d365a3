package sessionstore

import "github.com/telemq/telemq/internal/codec"

// PendingPublish is a queued or in-flight publish, in the store's own
// at-rest shape (spec.md §6 persisted state file format).
type PendingPublish struct {
	DUP      bool   `json:"dup"`
	QoS      byte   `json:"qos"`
	Retain   bool   `json:"retain"`
	Topic    string `json:"topic"`
	PacketID uint16 `json:"packet_id"`
	Payload  []byte `json:"payload"`
}

// ToPublish converts a stored publish back to a wire packet.
func (p *PendingPublish) ToPublish() *codec.Publish {
	if p == nil {
		return nil
	}
	return &codec.Publish{
		DUP:      p.DUP,
		QoS:      codec.QoS(p.QoS),
		Retain:   p.Retain,
		Topic:    p.Topic,
		PacketID: p.PacketID,
		Payload:  p.Payload,
	}
}

// PublishToPending converts a wire packet to the store's at-rest shape.
func PublishToPending(p *codec.Publish) *PendingPublish {
	if p == nil {
		return nil
	}
	return &PendingPublish{
		DUP:      p.DUP,
		QoS:      byte(p.QoS),
		Retain:   p.Retain,
		Topic:    p.Topic,
		PacketID: p.PacketID,
		Payload:  p.Payload,
	}
}

// OutboundTransaction is a stored in-flight broker-to-client publish.
type OutboundTransaction struct {
	PacketID uint16          `json:"packet_id"`
	Packet   *PendingPublish `json:"packet"`
	// State mirrors session.OutboundState (0 = NonAcked, 1 = PubReced).
	State int `json:"state"`
}

// InboundTransaction is a stored in-flight client-to-broker publish.
type InboundTransaction struct {
	PacketID uint16 `json:"packet_id"`
	QoS      byte   `json:"qos"`
	// State mirrors session.InboundState (0 = NonAcked, 1 = PubReled).
	State int `json:"state"`
}

// Will is a stored will declaration.
type Will struct {
	Topic   string `json:"topic"`
	QoS     byte   `json:"qos"`
	Payload []byte `json:"payload"`
	Retain  bool   `json:"retain"`
}

// State is the Session Store's own at-rest shape for spec.md §3's
// SessionConnectedState (spec.md §4.5/§6: "serializes the full
// client-id -> state map as JSON"). Deliberately independent of
// internal/session's runtime State type — the engine converts between
// the two at the SaveState/TakeState boundary — so that this package
// never needs to import internal/session, which itself needs to import
// this package to persist state.
type State struct {
	ClientID      string                 `json:"client_id"`
	CleanSession  bool                   `json:"clean_session"`
	Subscriptions map[string]byte        `json:"subscriptions"`
	Outbound      []OutboundTransaction  `json:"outbound"`
	Inbound       []InboundTransaction   `json:"inbound"`
	Pending       []*PendingPublish      `json:"pending"`
	Will          *Will                  `json:"will,omitempty"`
}
