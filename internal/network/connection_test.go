package network

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConnectionDefaults(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	conn := NewConnection(server, "conn-1", nil)
	require.NotNil(t, conn)
	assert.Equal(t, "conn-1", conn.ID())
	assert.Equal(t, StateConnected, conn.State())
	assert.False(t, conn.IsTLS())
	assert.NotNil(t, conn.RemoteAddr())
}

func TestConnectionReadWriteTracksByteCounters(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	conn := NewConnection(server, "conn-2", nil)

	go client.Write([]byte("hello"))
	buf := make([]byte, 5)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.EqualValues(t, 5, conn.BytesRead())

	go func() {
		readBuf := make([]byte, 3)
		client.Read(readBuf)
	}()
	n, err = conn.Write([]byte("bye"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.EqualValues(t, 3, conn.BytesWritten())
}

func TestConnectionCloseIsIdempotent(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	conn := NewConnection(server, "conn-3", nil)
	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	assert.Equal(t, StateClosed, conn.State())

	_, err := conn.Read(make([]byte, 1))
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func TestConnectionMetadata(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	conn := NewConnection(server, "conn-4", nil)
	_, ok := conn.GetMetadata("missing")
	assert.False(t, ok)

	conn.SetMetadata("username", "alice")
	val, ok := conn.GetMetadata("username")
	require.True(t, ok)
	assert.Equal(t, "alice", val)
}

func TestRegistryTracksConnections(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	reg := NewRegistry()
	conn := NewConnection(server, "reg-1", nil)
	reg.Add(conn)

	got, ok := reg.Get("reg-1")
	require.True(t, ok)
	assert.Same(t, conn, got)
	assert.Equal(t, 1, reg.Count())

	var visited []string
	reg.ForEach(func(c *Connection) bool {
		visited = append(visited, c.ID())
		return true
	})
	assert.Equal(t, []string{"reg-1"}, visited)

	reg.Remove("reg-1")
	assert.Equal(t, 0, reg.Count())
	_, ok = reg.Get("reg-1")
	assert.False(t, ok)
}

func TestListenerAcceptsAndDispatches(t *testing.T) {
	handled := make(chan string, 1)
	ln, err := NewListener(DefaultListenerConfig("127.0.0.1:0"), nil, func(c *Connection) error {
		buf := make([]byte, 4)
		n, _ := c.Read(buf)
		handled <- string(buf[:n])
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, ln.Start())
	defer ln.Close()

	client, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Write([]byte("ping"))
	require.NoError(t, err)

	select {
	case msg := <-handled:
		assert.Equal(t, "ping", msg)
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not invoked")
	}

	stats := ln.Stats()
	assert.EqualValues(t, 1, stats.Accepted)
}

func TestNewListenerRejectsNilHandler(t *testing.T) {
	_, err := NewListener(DefaultListenerConfig("127.0.0.1:0"), nil, nil)
	assert.Error(t, err)
}

func TestNewListenerRejectsEmptyAddress(t *testing.T) {
	_, err := NewListener(&ListenerConfig{}, nil, func(*Connection) error { return nil })
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestRegistryTotalBytesSurvivesRemoval(t *testing.T) {
	reg := NewRegistry()

	serverA, clientA := net.Pipe()
	defer clientA.Close()
	connA := NewConnection(serverA, "a", nil)
	reg.Add(connA)
	go clientA.Write([]byte("hello"))
	_, err := connA.Read(make([]byte, 5))
	require.NoError(t, err)

	serverB, clientB := net.Pipe()
	defer serverB.Close()
	defer clientB.Close()
	connB := NewConnection(serverB, "b", nil)
	reg.Add(connB)
	go clientB.Write([]byte("hi"))
	_, err = connB.Read(make([]byte, 2))
	require.NoError(t, err)

	reg.Remove("a")
	connA.Close()

	read, _ := reg.TotalBytes()
	assert.EqualValues(t, 7, read)
	assert.Equal(t, 1, reg.Count())
}
