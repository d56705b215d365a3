package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/telemq/telemq/internal/topic"
)

// HTTPAuthenticator is spec.md §4.6's remote backend: a login POST to a
// fixed endpoint per connection attempt, with the returned topic ACL
// cached per client id for subsequent SUBSCRIBE/PUBLISH checks. No pack
// example carries an HTTP client library beyond net/http for a simple
// POST/JSON round trip, so stdlib is used here (DESIGN.md).
type HTTPAuthenticator struct {
	endpoint  string
	brokerID  string
	clusterID string
	accountID string
	client    *http.Client

	mu    sync.RWMutex
	acls  map[string][]TopicRule
}

// NewHTTPAuthenticator creates an authenticator that POSTs login
// requests to endpoint.
func NewHTTPAuthenticator(endpoint, brokerID, clusterID, accountID string) *HTTPAuthenticator {
	return &HTTPAuthenticator{
		endpoint:  endpoint,
		brokerID:  brokerID,
		clusterID: clusterID,
		accountID: accountID,
		client:    &http.Client{Timeout: 5 * time.Second},
		acls:      make(map[string][]TopicRule),
	}
}

type loginRequest struct {
	BrokerID   string `json:"brokerId"`
	ClusterID  string `json:"clusterId"`
	AccountID  string `json:"accountId"`
	SocketAddr string `json:"socketAddr"`
	ClientID   string `json:"clientId"`
	Username   string `json:"username,omitempty"`
	Password   string `json:"password,omitempty"`
}

type aclEntry struct {
	Topic  string `json:"topic"`
	Access string `json:"access"`
}

type loginResponse struct {
	ConnectionAllowed bool       `json:"connectionAllowed"`
	TopicsACL         []aclEntry `json:"topicsAcl"`
	MaxPacketSize     *uint32    `json:"maxPacketSize"`
}

// Connect POSTs a login request per spec.md §6's documented shape and
// caches the returned ACL, if any, for Authorize.
func (h *HTTPAuthenticator) Connect(req ConnectRequest) Decision {
	var remote string
	if req.RemoteAddr != nil {
		remote = req.RemoteAddr.String()
	}

	body, err := json.Marshal(loginRequest{
		BrokerID:   h.brokerID,
		ClusterID:  h.clusterID,
		AccountID:  h.accountID,
		SocketAddr: remote,
		ClientID:   req.ClientID,
		Username:   req.Username,
		Password:   req.Password,
	})
	if err != nil {
		return Decision{Allowed: false, Unavailable: true}
	}

	httpReq, err := http.NewRequest(http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return Decision{Allowed: false, Unavailable: true}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return Decision{Allowed: false, Unavailable: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Decision{Allowed: false, Unavailable: true}
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return Decision{Allowed: false, Unavailable: true}
	}

	if lr.ConnectionAllowed && len(lr.TopicsACL) > 0 {
		rules := make([]TopicRule, 0, len(lr.TopicsACL))
		for _, e := range lr.TopicsACL {
			rules = append(rules, TopicRule{Filter: e.Topic, Access: parseAccess(e.Access)})
		}
		h.mu.Lock()
		h.acls[req.ClientID] = rules
		h.mu.Unlock()
	}

	return Decision{Allowed: lr.ConnectionAllowed}
}

// Authorize evaluates the ACL cached from the last successful Connect
// call for clientID, per spec.md §4.6's first-match-wins rule.
func (h *HTTPAuthenticator) Authorize(clientID, filter string) Access {
	h.mu.RLock()
	rules, ok := h.acls[clientID]
	h.mu.RUnlock()

	if !ok {
		return AccessReadWrite
	}

	for _, rule := range rules {
		if topic.FilterCovers(rule.Filter, filter) {
			return rule.Access
		}
	}
	return AccessDeny
}
