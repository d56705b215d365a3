package network

import "github.com/cockroachdb/errors"

var (
	ErrConnectionClosed = errors.New("network: connection closed")
	ErrInvalidTLSConfig = errors.New("network: invalid TLS configuration")
	ErrInvalidAddress   = errors.New("network: invalid address")
	ErrListenerClosed   = errors.New("network: listener closed")
)
