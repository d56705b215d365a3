package network

import (
	"bufio"
	"crypto/sha1"
	"crypto/tls"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
)

const websocketAcceptMagic = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// WSListener accepts MQTT-over-WebSocket connections (spec.md §1's
// "WebSocket, and secure WebSocket" transports) on an http.Server,
// upgrading each request by hand: the pack carries no WebSocket library,
// so this is RFC 6455's handshake and binary framing written directly
// against net/http and the hijacked net.Conn.
type WSListener struct {
	server    *http.Server
	tlsConfig *tls.Config
	ln        net.Listener
	registry  *Registry
	handler   ConnectionHandler
	connSeq   atomic.Uint64
}

// NewWSListener builds a WebSocket listener for addr, accepting the MQTT
// subprotocol ("mqtt") on path. A non-nil tlsConfig serves secure
// WebSocket (wss://) instead of plain ws://.
func NewWSListener(addr, path string, tlsConfig *tls.Config, registry *Registry, handler ConnectionHandler) *WSListener {
	if registry == nil {
		registry = NewRegistry()
	}
	w := &WSListener{registry: registry, handler: handler, tlsConfig: tlsConfig}

	mux := http.NewServeMux()
	mux.HandleFunc(path, w.upgrade)
	w.server = &http.Server{Addr: addr, Handler: mux}
	return w
}

func (w *WSListener) Start() error {
	ln, err := net.Listen("tcp", w.server.Addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", w.server.Addr)
	}
	if w.tlsConfig != nil {
		ln = tls.NewListener(ln, w.tlsConfig)
	}
	w.ln = ln
	go w.server.Serve(ln)
	return nil
}

func (w *WSListener) Close() error {
	if w.ln != nil {
		return w.server.Close()
	}
	return nil
}

func (w *WSListener) Addr() net.Addr {
	if w.ln != nil {
		return w.ln.Addr()
	}
	return nil
}

func (w *WSListener) upgrade(rw http.ResponseWriter, req *http.Request) {
	key := req.Header.Get("Sec-WebSocket-Key")
	if key == "" || req.Header.Get("Upgrade") != "websocket" {
		http.Error(rw, "expected websocket upgrade", http.StatusBadRequest)
		return
	}

	hijacker, ok := rw.(http.Hijacker)
	if !ok {
		http.Error(rw, "websocket upgrade unsupported", http.StatusInternalServerError)
		return
	}
	netConn, brw, err := hijacker.Hijack()
	if err != nil {
		return
	}

	accept := wsAcceptKey(key)
	response := "HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Protocol: mqtt\r\n" +
		"Sec-WebSocket-Accept: " + accept + "\r\n\r\n"
	if _, err := brw.WriteString(response); err != nil || brw.Flush() != nil {
		netConn.Close()
		return
	}

	seq := w.connSeq.Add(1)
	framed := &wsFrameConn{Conn: netConn, r: brw.Reader}
	conn := NewConnection(framed, fmt.Sprintf("ws-%d-%d", time.Now().UnixNano(), seq), nil)

	// The *tls.Conn, if any, is the hijacked net.Conn itself, not the
	// wsFrameConn wrapping it — NewConnection's own type assertion can't
	// see through that wrapper, so secure WebSocket identity is recovered
	// here instead.
	if tlsConn, ok := netConn.(*tls.Conn); ok {
		conn.tlsConn = tlsConn
		conn.isTLS = true
	}

	w.registry.Add(conn)
	defer w.registry.Remove(conn.ID())

	_ = w.handler(conn)
}

func wsAcceptKey(clientKey string) string {
	h := sha1.New()
	io.WriteString(h, clientKey)
	io.WriteString(h, websocketAcceptMagic)
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// wsFrameConn adapts a hijacked HTTP connection to io.Reader/io.Writer by
// unwrapping/wrapping RFC 6455 binary frames, so the MQTT codec above it
// never needs to know it is running over WebSocket rather than raw TCP.
type wsFrameConn struct {
	net.Conn
	r        *bufio.Reader
	leftover []byte
}

func (c *wsFrameConn) Read(p []byte) (int, error) {
	if len(c.leftover) > 0 {
		n := copy(p, c.leftover)
		c.leftover = c.leftover[n:]
		return n, nil
	}

	payload, err := c.readFrame()
	if err != nil {
		return 0, err
	}

	n := copy(p, payload)
	if n < len(payload) {
		c.leftover = payload[n:]
	}
	return n, nil
}

func (c *wsFrameConn) readFrame() ([]byte, error) {
	for {
		header := make([]byte, 2)
		if _, err := io.ReadFull(c.r, header); err != nil {
			return nil, err
		}

		opcode := header[0] & 0x0F
		masked := header[1]&0x80 != 0
		length := uint64(header[1] & 0x7F)

		switch length {
		case 126:
			ext := make([]byte, 2)
			if _, err := io.ReadFull(c.r, ext); err != nil {
				return nil, err
			}
			length = uint64(binary.BigEndian.Uint16(ext))
		case 127:
			ext := make([]byte, 8)
			if _, err := io.ReadFull(c.r, ext); err != nil {
				return nil, err
			}
			length = binary.BigEndian.Uint64(ext)
		}

		var maskKey [4]byte
		if masked {
			if _, err := io.ReadFull(c.r, maskKey[:]); err != nil {
				return nil, err
			}
		}

		payload := make([]byte, length)
		if _, err := io.ReadFull(c.r, payload); err != nil {
			return nil, err
		}
		if masked {
			for i := range payload {
				payload[i] ^= maskKey[i%4]
			}
		}

		switch opcode {
		case 0x8: // close
			return nil, io.EOF
		case 0x9: // ping: reply pong, keep reading for the real frame
			_ = c.writeFrame(0xA, payload)
			continue
		case 0xA: // pong: no payload for us, keep reading
			continue
		default: // 0x1 text, 0x2 binary, 0x0 continuation
			return payload, nil
		}
	}
}

func (c *wsFrameConn) Write(p []byte) (int, error) {
	if err := c.writeFrame(0x2, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsFrameConn) writeFrame(opcode byte, payload []byte) error {
	var header []byte
	header = append(header, 0x80|opcode)

	n := len(payload)
	switch {
	case n <= 125:
		header = append(header, byte(n))
	case n <= 0xFFFF:
		ext := make([]byte, 2)
		binary.BigEndian.PutUint16(ext, uint16(n))
		header = append(header, 126)
		header = append(header, ext...)
	default:
		ext := make([]byte, 8)
		binary.BigEndian.PutUint64(ext, uint64(n))
		header = append(header, 127)
		header = append(header, ext...)
	}

	if _, err := c.Conn.Write(header); err != nil {
		return err
	}
	_, err := c.Conn.Write(payload)
	return err
}
