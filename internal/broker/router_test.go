package broker

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telemq/telemq/internal/codec"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	r := NewRouter(nil, testLogger())
	go r.Run()
	t.Cleanup(func() {
		done := make(chan struct{})
		r.Commands() <- ShutDown{Done: done}
		<-done
	})
	return r
}

func connectClient(t *testing.T, r *Router, clientID string, cleanSession bool) Outbox {
	t.Helper()
	outbox := make(Outbox, 16)
	r.Commands() <- ClientConnected{ClientID: clientID, CleanSession: cleanSession, Outbox: outbox}
	// Runs before newTestRouter's ShutDown cleanup (cleanups are LIFO), so
	// the router has no outboxes left and can close Done.
	t.Cleanup(func() {
		r.Commands() <- ClientDisconnected{ClientID: clientID, Outbox: outbox}
	})
	return outbox
}

func recvDeliver(t *testing.T, outbox Outbox) Deliver {
	t.Helper()
	select {
	case msg := <-outbox:
		d, ok := msg.(Deliver)
		require.True(t, ok, "expected Deliver, got %T", msg)
		return d
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Deliver")
		return Deliver{}
	}
}

func assertNoMessage(t *testing.T, outbox Outbox) {
	t.Helper()
	select {
	case msg := <-outbox:
		t.Fatalf("expected no message, got %#v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRouterPublishDeliversToSubscriber(t *testing.T) {
	r := newTestRouter(t)

	outbox := connectClient(t, r, "sub-1", true)
	r.Commands() <- AddSubscriptions{ClientID: "sub-1", Filters: []string{"a/b"}}
	// AddSubscriptions and Publish both flow through the same FIFO command
	// channel, so the subscription is installed before the publish is
	// handled.
	time.Sleep(10 * time.Millisecond)

	r.Commands() <- Publish{Packet: &codec.Publish{Topic: "a/b", Payload: []byte("hi")}}

	d := recvDeliver(t, outbox)
	assert.Equal(t, "a/b", d.Packet.Topic)
	assert.Equal(t, []byte("hi"), d.Packet.Payload)
}

func TestRouterPublishDoesNotDeliverToNonMatchingSubscriber(t *testing.T) {
	r := newTestRouter(t)

	outbox := connectClient(t, r, "sub-1", true)
	r.Commands() <- AddSubscriptions{ClientID: "sub-1", Filters: []string{"x/y"}}
	time.Sleep(10 * time.Millisecond)

	r.Commands() <- Publish{Packet: &codec.Publish{Topic: "a/b", Payload: []byte("hi")}}

	assertNoMessage(t, outbox)
}

func TestRouterRetainedMessageReplaysOnSubscribe(t *testing.T) {
	r := newTestRouter(t)

	r.Commands() <- Publish{Packet: &codec.Publish{Topic: "a/b", Retain: true, Payload: []byte("retained")}}
	time.Sleep(10 * time.Millisecond)

	outbox := connectClient(t, r, "sub-1", true)
	r.Commands() <- AddSubscriptions{ClientID: "sub-1", Filters: []string{"a/b"}}

	d := recvDeliver(t, outbox)
	assert.Equal(t, []byte("retained"), d.Packet.Payload)
	assert.Equal(t, "a/b", d.Filter)
}

func TestRouterRetainedMessageWithEmptyPayloadClears(t *testing.T) {
	r := newTestRouter(t)

	r.Commands() <- Publish{Packet: &codec.Publish{Topic: "a/b", Retain: true, Payload: []byte("retained")}}
	r.Commands() <- Publish{Packet: &codec.Publish{Topic: "a/b", Retain: true, Payload: nil}}
	time.Sleep(10 * time.Millisecond)

	outbox := connectClient(t, r, "sub-1", true)
	r.Commands() <- AddSubscriptions{ClientID: "sub-1", Filters: []string{"a/b"}}

	assertNoMessage(t, outbox)
}

func TestRouterRemoveSubscriptionsStopsDelivery(t *testing.T) {
	r := newTestRouter(t)

	outbox := connectClient(t, r, "sub-1", true)
	r.Commands() <- AddSubscriptions{ClientID: "sub-1", Filters: []string{"a/b"}}
	time.Sleep(10 * time.Millisecond)
	r.Commands() <- RemoveSubscriptions{ClientID: "sub-1", Filters: []string{"a/b"}}
	time.Sleep(10 * time.Millisecond)

	r.Commands() <- Publish{Packet: &codec.Publish{Topic: "a/b", Payload: []byte("hi")}}

	assertNoMessage(t, outbox)
}

func TestRouterSecondConnectDisplacesFirst(t *testing.T) {
	r := newTestRouter(t)

	first := connectClient(t, r, "dup", false)
	second := connectClient(t, r, "dup", false)
	time.Sleep(10 * time.Millisecond)

	select {
	case msg := <-first:
		_, ok := msg.(OutboxDisconnect)
		assert.True(t, ok, "expected OutboxDisconnect on the displaced outbox, got %#v", msg)
	case <-time.After(time.Second):
		t.Fatal("displaced outbox never received OutboxDisconnect")
	}

	assertNoMessage(t, second)
}

func TestRouterClientDisconnectedIgnoresStaleOutbox(t *testing.T) {
	r := newTestRouter(t)

	staleOutbox := connectClient(t, r, "dup", false)
	freshOutbox := connectClient(t, r, "dup", false)
	time.Sleep(10 * time.Millisecond)
	<-staleOutbox // drain the OutboxDisconnect sent to the displaced outbox

	// A disconnect carrying the stale (displaced) outbox must not tear
	// down the fresh connection's registration.
	r.Commands() <- ClientDisconnected{ClientID: "dup", Outbox: staleOutbox}
	time.Sleep(10 * time.Millisecond)

	r.Commands() <- AddSubscriptions{ClientID: "dup", Filters: []string{"a/b"}}
	time.Sleep(10 * time.Millisecond)
	r.Commands() <- Publish{Packet: &codec.Publish{Topic: "a/b", Payload: []byte("hi")}}

	d := recvDeliver(t, freshOutbox)
	assert.Equal(t, []byte("hi"), d.Packet.Payload)
}

func TestRouterClientDisconnectedPublishesWill(t *testing.T) {
	r := newTestRouter(t)

	subOutbox := connectClient(t, r, "sub-1", true)
	r.Commands() <- AddSubscriptions{ClientID: "sub-1", Filters: []string{"will/topic"}}
	time.Sleep(10 * time.Millisecond)

	clientOutbox := connectClient(t, r, "will-client", true)
	time.Sleep(10 * time.Millisecond)

	will := &codec.Publish{Topic: "will/topic", Payload: []byte("bye")}
	r.Commands() <- ClientDisconnected{ClientID: "will-client", Outbox: clientOutbox, WillPacket: will}

	d := recvDeliver(t, subOutbox)
	assert.Equal(t, []byte("bye"), d.Packet.Payload)
}

func TestRouterShutDownSignalsDoneAfterOutboxesDrain(t *testing.T) {
	r := NewRouter(nil, testLogger())
	go r.Run()

	outbox := connectClient(t, r, "client-1", true)

	done := make(chan struct{})
	r.Commands() <- ShutDown{Done: done}

	select {
	case msg := <-outbox:
		_, ok := msg.(OutboxShutDown)
		require.True(t, ok, "expected OutboxShutDown, got %#v", msg)
	case <-time.After(time.Second):
		t.Fatal("never received OutboxShutDown")
	}

	select {
	case <-done:
		t.Fatal("Done closed before the last session disconnected")
	case <-time.After(50 * time.Millisecond):
	}

	r.Commands() <- ClientDisconnected{ClientID: "client-1", Outbox: outbox}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Done was never closed after the last session disconnected")
	}
}
