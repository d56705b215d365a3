// Package auth implements spec.md §4.6's Authenticator: a shared,
// read-write-lock-protected singleton consulted on CONNECT and on every
// inbound SUBSCRIBE/PUBLISH for ACL enforcement.
package auth

import "net"

// Access is the ACL access mode granted for a topic filter. Grounded on
// original_source/telemq/src/authenticator/authenticator_file.rs's
// AccessType enum (Read/Write/ReadWrite/Deny); the teacher's own
// hook-based ACL type lacked Deny as an explicit value, added here so a
// rule can state an explicit denial. Authorize returns AccessDeny both for
// such a rule and when no rule matches.
type Access int

const (
	AccessDeny Access = iota
	AccessRead
	AccessWrite
	AccessReadWrite
)

// CanRead reports whether a reads (SUBSCRIBE) the topic.
func (a Access) CanRead() bool { return a == AccessRead || a == AccessReadWrite }

// CanWrite reports whether a writes (PUBLISH) the topic.
func (a Access) CanWrite() bool { return a == AccessWrite || a == AccessReadWrite }

// ConnectRequest carries everything the Authenticator needs to decide
// whether to admit a connecting client (spec.md §4.2 step 1: "client id,
// credentials, and remote address").
type ConnectRequest struct {
	ClientID   string
	Username   string
	Password   string
	RemoteAddr net.Addr
}

// Decision is the Authenticator's verdict on a ConnectRequest.
type Decision struct {
	Allowed bool
	// Unavailable distinguishes a backend failure from a credential
	// denial, per spec.md §4.2 step 2's CONNACK return-code choice.
	Unavailable bool
}

// TopicRule is one ACL entry: filter, with first-match-wins evaluation
// order (spec.md §4.6).
type TopicRule struct {
	Filter string
	Access Access
}

// Authenticator is spec.md §4.6's component. Implementations must be
// safe for concurrent use; the broker holds a single shared instance
// behind a read-write lock (spec.md §5).
type Authenticator interface {
	// Connect decides whether to admit the client described by req.
	Connect(req ConnectRequest) Decision

	// Authorize evaluates the ACL for clientID against filter, in the
	// order described in spec.md §4.6: first matching rule wins; if no
	// rule matches, deny; if the client has no ACL at all, allow.
	Authorize(clientID, filter string) Access
}
