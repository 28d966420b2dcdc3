// Package auth provides the credentials used to answer authentication challenges.
//
//go:generate mockgen -destination=./mocks/auth.go . Authenticator
package auth

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// Authenticator applies a credential to an outgoing request.
type Authenticator interface {
	Apply(req *http.Request) error
	Type() Type
}

// BasicAuth represents HTTP Basic Authentication credentials.
type BasicAuth struct {
	Username string
	Password string
}

// HeaderAuth represents authentication via custom HTTP headers.
type HeaderAuth struct {
	Headers map[string]string
}

// BearerAuth represents Bearer token authentication.
type BearerAuth struct {
	Token string
}

// Type represents the type of authentication.
type Type string

// Authentication types.
const (
	BasicAuthType  Type = "basic"
	HeaderAuthType Type = "header"
	BearerAuthType Type = "bearer"
)

// Apply adds Basic Authentication headers to the HTTP request.
func (b BasicAuth) Apply(req *http.Request) error {
	req.SetBasicAuth(b.Username, b.Password)
	return nil
}

// Type returns BasicAuthType.
func (b BasicAuth) Type() Type { return BasicAuthType }

// Apply adds custom headers to the HTTP request.
func (h HeaderAuth) Apply(req *http.Request) error {
	for k, v := range h.Headers {
		req.Header.Set(k, v)
	}
	return nil
}

// Type returns HeaderAuthType.
func (h HeaderAuth) Type() Type { return HeaderAuthType }

// Apply sets a Bearer token in the Authorization header.
func (b BearerAuth) Apply(req *http.Request) error {
	req.Header.Set("Authorization", "Bearer "+b.Token)
	return nil
}

// Type returns BearerAuthType.
func (b BearerAuth) Type() Type { return BearerAuthType }

// FromURL returns the Basic credential embedded in u, if any.
func FromURL(u *url.URL) (Authenticator, bool) {
	if u == nil || u.User == nil {
		return nil, false
	}
	password, _ := u.User.Password()
	return BasicAuth{Username: u.User.Username(), Password: password}, true
}

// Store holds default credentials per host. It is safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	hosts map[string]Authenticator
}

// NewStore creates a store from a host to credential map.
func NewStore(hosts map[string]Authenticator) *Store {
	s := &Store{hosts: make(map[string]Authenticator, len(hosts))}
	for host, a := range hosts {
		s.hosts[normalizeHost(host)] = a
	}
	return s
}

// Set stores the credential for host, replacing any previous one.
func (s *Store) Set(host string, a Authenticator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hosts[normalizeHost(host)] = a
}

// Lookup returns the credential for host. An entry with a port takes
// precedence over the bare hostname.
func (s *Store) Lookup(host string) (Authenticator, bool) {
	if s == nil {
		return nil, false
	}
	host = normalizeHost(host)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if a, ok := s.hosts[host]; ok {
		return a, true
	}
	if i := strings.LastIndexByte(host, ':'); i > 0 && !strings.HasSuffix(host, "]") {
		a, ok := s.hosts[host[:i]]
		return a, ok
	}
	return nil, false
}

// Len returns the number of stored hosts.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.hosts)
}

func normalizeHost(host string) string {
	return strings.ToLower(strings.TrimSpace(host))
}
