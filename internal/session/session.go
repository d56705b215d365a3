package session

import (
	"bufio"
	"io"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/telemq/telemq/internal/auth"
	"github.com/telemq/telemq/internal/broker"
	"github.com/telemq/telemq/internal/codec"
	"github.com/telemq/telemq/internal/sessionstore"
	"github.com/telemq/telemq/internal/topic"
)

// Lifecycle is a Session's coarse protocol state, per spec.md §3.
type Lifecycle int

const (
	NonConnected Lifecycle = iota
	Connected
	Closed
)

// Session drives one client connection end to end: CONNECT handling,
// packet dispatch, keep-alive enforcement, and the eventual DISCONNECT or
// abnormal-disconnect path (spec.md §4.2). Run starts a background
// goroutine that reads packets from the connection; Run's own goroutine
// handles those packets and drains the outbox in one select loop, since
// MQTT 3.1.1 has no server-initiated message outside of what the router
// delivers through the outbox.
type Session struct {
	conn   Conn
	router chan<- broker.Command
	authn  auth.Authenticator
	store  sessionstore.Store
	log    *slog.Logger

	lifecycle Lifecycle
	state     *State
	outbox    broker.Outbox

	keepAlive time.Duration
	idleTimer *time.Timer
	timedOut  chan struct{}
}

// New creates a Session bound to conn. Run drives it to completion.
func New(conn Conn, router chan<- broker.Command, authn auth.Authenticator, store sessionstore.Store, log *slog.Logger) *Session {
	return &Session{
		conn:     conn,
		router:   router,
		authn:    authn,
		store:    store,
		log:      log,
		outbox:   make(broker.Outbox, 256),
		timedOut: make(chan struct{}),
	}
}

// Run reads and handles packets from the connection until it closes,
// the client disconnects, or the session is displaced or timed out. It
// always returns after the will (if any) has been resolved and any
// durable state has been saved or discarded.
func (s *Session) Run() error {
	defer s.conn.Close()

	r := bufio.NewReader(s.conn)

	first, err := readPacket(r)
	if err != nil {
		return errors.Wrap(err, "read first packet")
	}
	connect, ok := first.(*codec.Connect)
	if !ok {
		return errors.New("first packet was not CONNECT")
	}

	returnCode, sessionPresent := s.handleConnect(connect)
	if err := writePacket(s.conn, &codec.Connack{SessionPresent: sessionPresent, ReturnCode: returnCode}); err != nil {
		return errors.Wrap(err, "write CONNACK")
	}
	if returnCode != codec.ConnectAccepted {
		return nil
	}

	s.lifecycle = Connected
	s.resetKeepAlive()
	defer s.stopKeepAlive()

	s.replayOnResume()

	packets := make(chan codec.Packet)
	readErrs := make(chan error, 1)
	go func() {
		for {
			pkt, err := readPacket(r)
			if err != nil {
				readErrs <- err
				return
			}
			packets <- pkt
		}
	}()

	abnormal := true
	for {
		select {
		case pkt := <-packets:
			s.resetKeepAlive()
			if pkt.Type() == codec.DISCONNECT {
				abnormal = false
				s.finish(false)
				return nil
			}
			if err := s.dispatch(pkt); err != nil {
				s.log.Warn("malformed packet, closing connection", "client_id", s.state.ClientID, "error", err)
				s.finish(abnormal)
				return err
			}

		case msg := <-s.outbox:
			// handleOutbox resolves persistence/disconnect itself for the
			// cases that end the session, so Run only needs to know
			// whether to stop.
			if s.handleOutbox(msg) {
				return nil
			}

		case readErr := <-readErrs:
			s.finish(abnormal)
			if errors.Is(readErr, io.EOF) {
				return nil
			}
			return readErr

		case <-s.timedOut:
			s.log.Info("client timed out", "client_id", s.state.ClientID)
			s.finish(abnormal)
			return errors.New("keep-alive timeout")
		}
	}
}

// handleConnect implements spec.md §4.2 step 1-3: authenticate, then
// either resume a stored session (CleanSession=false, prior state exists)
// or start fresh.
func (s *Session) handleConnect(c *codec.Connect) (codec.ConnackReturnCode, bool) {
	decision := s.authn.Connect(auth.ConnectRequest{
		ClientID:   c.ClientID,
		Username:   c.Username,
		Password:   string(c.Password),
		RemoteAddr: s.conn.RemoteAddr(),
	})
	if !decision.Allowed {
		if decision.Unavailable {
			return codec.ConnectServerUnavailable, false
		}
		return codec.ConnectNotAuthorized, false
	}

	sessionPresent := false
	if !c.CleanSession {
		if stored, ok := s.store.TakeState(c.ClientID); ok {
			s.state = FromStoreState(stored)
			sessionPresent = true
		}
	}
	if s.state == nil {
		s.state = NewState(c.ClientID, c.CleanSession)
	}

	if c.WillFlag {
		s.state.Will = &Will{Topic: c.WillTopic, QoS: c.WillQoS, Payload: c.WillMessage, Retain: c.WillRetain}
	}

	s.keepAlive = time.Duration(c.KeepAlive) * time.Second * 3 / 2

	s.router <- broker.ClientConnected{ClientID: c.ClientID, CleanSession: c.CleanSession, Outbox: s.outbox}

	return codec.ConnectAccepted, sessionPresent
}

// replayOnResume resends unacknowledged outbound transactions and queued
// publishes from a resumed session, per spec.md §4.2 "Resume/retransmission".
func (s *Session) replayOnResume() {
	for _, t := range s.state.Transactions.OutboundSnapshot() {
		switch t.State {
		case OutboundNonAcked:
			dup := *t.Packet
			dup.DUP = true
			if err := writePacket(s.conn, &dup); err != nil {
				s.log.Warn("resend publish failed", "client_id", s.state.ClientID, "error", err)
			}
		case OutboundPubReced:
			if err := writePacket(s.conn, &codec.Pubrel{PacketID: t.PacketID}); err != nil {
				s.log.Warn("resend pubrel failed", "client_id", s.state.ClientID, "error", err)
			}
		}
	}

	pending := s.state.Pending
	s.state.Pending = nil
	for _, p := range pending {
		s.deliver(p, "")
	}
}

func (s *Session) resetKeepAlive() {
	if s.keepAlive <= 0 {
		return
	}
	if s.idleTimer == nil {
		s.idleTimer = time.AfterFunc(s.keepAlive, func() {
			select {
			case s.timedOut <- struct{}{}:
			default:
			}
		})
		return
	}
	s.idleTimer.Reset(s.keepAlive)
}

func (s *Session) stopKeepAlive() {
	if s.idleTimer != nil {
		s.idleTimer.Stop()
	}
}

// dispatch handles one inbound packet after CONNECT, per spec.md §4.2.
func (s *Session) dispatch(pkt codec.Packet) error {
	switch p := pkt.(type) {
	case *codec.Subscribe:
		return s.handleSubscribe(p)
	case *codec.Unsubscribe:
		return s.handleUnsubscribe(p)
	case *codec.Publish:
		return s.handlePublishIn(p)
	case *codec.Puback:
		s.state.Transactions.RemoveOutbound(p.PacketID)
		return nil
	case *codec.Pubrec:
		return s.handlePubrec(p)
	case *codec.Pubrel:
		return s.handlePubrel(p)
	case *codec.Pubcomp:
		s.state.Transactions.RemoveOutbound(p.PacketID)
		return nil
	case *codec.Pingreq:
		return writePacket(s.conn, &codec.Pingresp{})
	default:
		return errors.Newf("unexpected packet type %s after CONNECT", pkt.Type())
	}
}

// handleSubscribe implements spec.md §4.2's SUBSCRIBE handling: an ACL
// check per filter, a SUBACK with one return code per filter in order,
// and an AddSubscriptions command for every granted filter.
func (s *Session) handleSubscribe(p *codec.Subscribe) error {
	codes := make([]byte, len(p.Subscriptions))
	var granted []string
	for i, sub := range p.Subscriptions {
		if !s.authn.Authorize(s.state.ClientID, sub.Filter).CanRead() {
			codes[i] = codec.SubackFailure
			continue
		}
		codes[i] = byte(sub.QoS)
		s.state.Subscriptions[sub.Filter] = sub.QoS
		granted = append(granted, sub.Filter)
	}

	if len(granted) > 0 {
		s.router <- broker.AddSubscriptions{ClientID: s.state.ClientID, Filters: granted}
	}

	return writePacket(s.conn, &codec.Suback{PacketID: p.PacketID, ReturnCodes: codes})
}

func (s *Session) handleUnsubscribe(p *codec.Unsubscribe) error {
	for _, filter := range p.TopicFilters {
		delete(s.state.Subscriptions, filter)
	}
	s.router <- broker.RemoveSubscriptions{ClientID: s.state.ClientID, Filters: p.TopicFilters}
	return writePacket(s.conn, &codec.Unsuback{PacketID: p.PacketID})
}

// handlePublishIn implements spec.md §4.2's inbound PUBLISH handling: an
// ACL write check (silent drop on denial, no PUBACK error per spec.md §7),
// forwarding to the router, and the QoS-dependent acknowledgement.
func (s *Session) handlePublishIn(p *codec.Publish) error {
	if !s.authn.Authorize(s.state.ClientID, p.Topic).CanWrite() {
		return nil
	}

	switch p.QoS {
	case codec.QoS0:
		s.router <- broker.Publish{Packet: p}
		return nil

	case codec.QoS1:
		s.router <- broker.Publish{Packet: p}
		return writePacket(s.conn, &codec.Puback{PacketID: p.PacketID})

	case codec.QoS2:
		if _, inFlight := s.state.Transactions.Inbound(p.PacketID); !inFlight {
			s.router <- broker.Publish{Packet: p}
			s.state.Transactions.PutInbound(&InboundTransaction{PacketID: p.PacketID, QoS: p.QoS, State: InboundNonAcked})
		}
		return writePacket(s.conn, &codec.Pubrec{PacketID: p.PacketID})

	default:
		return errors.Newf("invalid QoS %d", p.QoS)
	}
}

func (s *Session) handlePubrec(p *codec.Pubrec) error {
	t, ok := s.state.Transactions.Outbound(p.PacketID)
	if !ok {
		s.log.Warn("PUBREC for unknown packet id", "client_id", s.state.ClientID, "packet_id", p.PacketID)
		return nil
	}
	t.State = OutboundPubReced
	s.state.Transactions.PutOutbound(t)
	return writePacket(s.conn, &codec.Pubrel{PacketID: p.PacketID})
}

func (s *Session) handlePubrel(p *codec.Pubrel) error {
	if _, ok := s.state.Transactions.Inbound(p.PacketID); !ok {
		s.log.Warn("PUBREL for unknown packet id", "client_id", s.state.ClientID, "packet_id", p.PacketID)
	}
	s.state.Transactions.RemoveInbound(p.PacketID)
	return writePacket(s.conn, &codec.Pubcomp{PacketID: p.PacketID})
}

// handleOutbox processes one router-originated message. It returns true
// when Run should stop driving this connection without publishing a will.
func (s *Session) handleOutbox(msg broker.OutboxMessage) bool {
	switch m := msg.(type) {
	case broker.Deliver:
		s.deliver(m.Packet, m.Filter)
		return false
	case broker.OutboxDisconnect:
		return true
	case broker.OutboxShutDown:
		s.finish(false)
		return true
	default:
		s.log.Warn("unknown outbox message", "client_id", s.state.ClientID)
		return false
	}
}

// deliver forwards a matched publish to the client, downgrading QoS to
// the minimum of the publish's QoS and the subscription's granted QoS
// (spec.md §4.4), and allocating a packet id for QoS>0 forwards.
func (s *Session) deliver(p *codec.Publish, filter string) {
	subQoS := p.QoS
	if filter != "" {
		if qos, ok := s.state.Subscriptions[filter]; ok {
			subQoS = qos
		}
	} else if qos, ok := s.bestMatchingQoS(p.Topic); ok {
		subQoS = qos
	}

	qos := p.QoS
	if subQoS < qos {
		qos = subQoS
	}

	out := &codec.Publish{QoS: qos, Retain: p.Retain, Topic: p.Topic, Payload: p.Payload}
	if qos > codec.QoS0 {
		id, ok := s.state.Transactions.AllocateOutboundID()
		if !ok {
			s.log.Warn("no free packet id, dropping forward", "client_id", s.state.ClientID, "topic", p.Topic)
			return
		}
		out.PacketID = id
		s.state.Transactions.PutOutbound(&OutboundTransaction{PacketID: id, Packet: out, State: OutboundNonAcked})
	}

	if err := writePacket(s.conn, out); err != nil {
		s.log.Warn("deliver failed", "client_id", s.state.ClientID, "error", err)
	}
}

// bestMatchingQoS finds the highest granted QoS among the client's current
// subscriptions matching topicName, used whenever a publish arrives without
// its originating filter (live router deliveries and resumed Pending
// publishes). If no subscription still
// matches (the client unsubscribed while offline), the publish's own QoS
// passes through unchanged.
func (s *Session) bestMatchingQoS(topicName string) (codec.QoS, bool) {
	best := codec.QoS0
	found := false
	for filter, qos := range s.state.Subscriptions {
		if topic.Matches(filter, topicName) {
			if !found || qos > best {
				best = qos
				found = true
			}
		}
	}
	return best, found
}

// finish resolves the session on exit: publishes the will on an abnormal
// disconnect, tells the router it has disconnected, and persists or
// discards durable state per CleanSession (spec.md §4.2's DISCONNECT and
// abnormal-disconnect paths).
func (s *Session) finish(abnormal bool) {
	if s.lifecycle == Closed {
		return
	}
	s.lifecycle = Closed

	var willPacket *codec.Publish
	if abnormal {
		if w := s.state.TakeWill(); w != nil {
			willPacket = &codec.Publish{QoS: w.QoS, Retain: w.Retain, Topic: w.Topic, Payload: w.Payload}
		}
	}

	s.router <- broker.ClientDisconnected{
		ClientID:     s.state.ClientID,
		CleanSession: s.state.CleanSession,
		WillPacket:   willPacket,
		Outbox:       s.outbox,
	}

	if s.state.CleanSession {
		return
	}
	if err := s.store.SaveState(s.state.ToStoreState()); err != nil {
		s.log.Error("save session state failed", "client_id", s.state.ClientID, "error", err)
	}
}
