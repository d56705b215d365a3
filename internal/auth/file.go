package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/telemq/telemq/internal/topic"
)

const clientIDToken = "{client_id}"

// FileCredential is one entry in the credentials table.
type FileCredential struct {
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	// Password is the SHA-256 hex digest, not the raw password.
	Password string `yaml:"password"`
}

// FileTopicRule is a raw ACL rule as it appears in the authentication
// file, before `{client_id}` token expansion.
type FileTopicRule struct {
	Topic  string `yaml:"topic"`
	Access string `yaml:"access"`
}

// FileClientRules is one client id's topic ACL.
type FileClientRules struct {
	ClientID   string          `yaml:"client_id"`
	TopicRules []FileTopicRule `yaml:"topic_rules"`
}

// FileConfig is the on-disk shape of the authentication file. Grounded on
// original_source/telemq/src/authenticator/authenticator_file.rs's
// AuthenticatorFileSrc (IP allow/deny CIDRs, a flat credentials table,
// per-client topic ACLs); re-expressed as YAML per this repo's ambient
// config format rather than the original's TOML.
type FileConfig struct {
	AnonymousAllowed bool              `yaml:"anonymous_allowed"`
	Credentials      []FileCredential  `yaml:"credentials"`
	TopicClientRules []FileClientRules `yaml:"topic_client_rules"`
	IPWhitelist      []string          `yaml:"ip_whitelist"`
	IPBlacklist      []string          `yaml:"ip_blacklist"`
}

// FileAuthenticator is spec.md §4.6's local-file backend.
type FileAuthenticator struct {
	mu sync.RWMutex

	anonymousAllowed bool
	credentials      []FileCredential
	clientRules      map[string][]TopicRule
	whitelist        []*net.IPNet
	blacklist        []*net.IPNet
}

// LoadFileAuthenticator reads and parses the authentication file at path.
func LoadFileAuthenticator(path string) (*FileAuthenticator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read authentication file")
	}

	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "parse authentication file")
	}

	return NewFileAuthenticator(cfg)
}

// NewFileAuthenticator builds an authenticator from an already-parsed
// FileConfig, expanding the {client_id} token in every client's topic
// rules.
func NewFileAuthenticator(cfg FileConfig) (*FileAuthenticator, error) {
	whitelist, err := parseCIDRs(cfg.IPWhitelist)
	if err != nil {
		return nil, errors.Wrap(err, "parse ip_whitelist")
	}
	blacklist, err := parseCIDRs(cfg.IPBlacklist)
	if err != nil {
		return nil, errors.Wrap(err, "parse ip_blacklist")
	}

	clientRules := make(map[string][]TopicRule, len(cfg.TopicClientRules))
	for _, client := range cfg.TopicClientRules {
		rules := make([]TopicRule, 0, len(client.TopicRules))
		for _, r := range client.TopicRules {
			rules = append(rules, TopicRule{
				Filter: strings.ReplaceAll(r.Topic, clientIDToken, client.ClientID),
				Access: parseAccess(r.Access),
			})
		}
		clientRules[client.ClientID] = rules
	}

	return &FileAuthenticator{
		anonymousAllowed: cfg.AnonymousAllowed,
		credentials:      cfg.Credentials,
		clientRules:      clientRules,
		whitelist:        whitelist,
		blacklist:        blacklist,
	}, nil
}

func parseCIDRs(entries []string) ([]*net.IPNet, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	nets := make([]*net.IPNet, 0, len(entries))
	for _, entry := range entries {
		_, ipNet, err := net.ParseCIDR(entry)
		if err != nil {
			ip := net.ParseIP(entry)
			if ip == nil {
				return nil, errors.Newf("invalid CIDR or IP: %q", entry)
			}
			bits := 32
			if ip.To4() == nil {
				bits = 128
			}
			ipNet = &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}
		}
		nets = append(nets, ipNet)
	}
	return nets, nil
}

func parseAccess(s string) Access {
	switch s {
	case "Read":
		return AccessRead
	case "Write":
		return AccessWrite
	case "ReadWrite":
		return AccessReadWrite
	default:
		return AccessDeny
	}
}

func hashPassword(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func ipContainsAny(nets []*net.IPNet, ip net.IP) bool {
	for _, n := range nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// Connect implements spec.md §4.6's IP-check-then-credential-check order.
func (f *FileAuthenticator) Connect(req ConnectRequest) Decision {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var ip net.IP
	if tcpAddr, ok := req.RemoteAddr.(*net.TCPAddr); ok {
		ip = tcpAddr.IP
	} else if req.RemoteAddr != nil {
		if host, _, err := net.SplitHostPort(req.RemoteAddr.String()); err == nil {
			ip = net.ParseIP(host)
		}
	}

	if ip != nil {
		if ipContainsAny(f.blacklist, ip) {
			return Decision{Allowed: false}
		}
		if len(f.whitelist) > 0 && !ipContainsAny(f.whitelist, ip) {
			return Decision{Allowed: false}
		}
	}

	if len(f.credentials) == 0 {
		return Decision{Allowed: f.anonymousAllowed}
	}

	if req.Username == "" && req.Password == "" {
		return Decision{Allowed: false}
	}

	hashed := hashPassword(req.Password)
	for _, c := range f.credentials {
		if c.ClientID == req.ClientID && c.Username == req.Username && c.Password == hashed {
			return Decision{Allowed: true}
		}
	}
	return Decision{Allowed: false}
}

// Authorize implements spec.md §4.6's ACL evaluation: first matching
// rule wins, no match denies, no ACL at all allows.
func (f *FileAuthenticator) Authorize(clientID, filter string) Access {
	f.mu.RLock()
	defer f.mu.RUnlock()

	rules, ok := f.clientRules[clientID]
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
