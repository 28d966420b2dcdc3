package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/glorpus-work/fanfetch/pkg/auth"
)

// AuthConfigContainer defines the interface for authentication configuration types that can be converted to an Authenticator.
type AuthConfigContainer interface {
	ToAuthenticator() auth.Authenticator
}

// HostConfig holds settings for one host.
type HostConfig struct {
	// Host is a hostname, optionally with a port.
	Host string      `yaml:"host"`
	Auth *AuthConfig `yaml:"auth,omitempty"`
}

// AuthConfig holds exactly one authentication method.
type AuthConfig struct {
	BasicAuth  *BasicAuth  `yaml:"basic,omitempty"`
	HeaderAuth *HeaderAuth `yaml:"header,omitempty"`
	BearerAuth *BearerAuth `yaml:"bearer,omitempty"`
}

// BasicAuth holds configuration for HTTP Basic Authentication.
type BasicAuth struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// HeaderAuth holds configuration for custom header-based authentication.
type HeaderAuth struct {
	Headers map[string]string `yaml:"headers"`
}

// BearerAuth holds configuration for Bearer token authentication.
type BearerAuth struct {
	Token string `yaml:"token"`
}

// ToAuthenticator builds the credential. Secrets may reference environment
// variables as $NAME or ${NAME}; they are expanded here, never when saving.
func (b *BasicAuth) ToAuthenticator() auth.Authenticator {
	return auth.BasicAuth{Username: os.ExpandEnv(b.Username), Password: os.ExpandEnv(b.Password)}
}

// ToAuthenticator builds the credential with expanded header values.
func (h *HeaderAuth) ToAuthenticator() auth.Authenticator {
	headers := make(map[string]string, len(h.Headers))
	for k, v := range h.Headers {
		headers[k] = os.ExpandEnv(v)
	}
	return auth.HeaderAuth{Headers: headers}
}

// ToAuthenticator converts the BearerAuth configuration to an Authenticator.
func (b *BearerAuth) ToAuthenticator() auth.Authenticator {
	return auth.BearerAuth{Token: os.ExpandEnv(b.Token)}
}

func (a *AuthConfig) container() (AuthConfigContainer, int) {
	var found AuthConfigContainer
	n := 0
	if a.BasicAuth != nil {
		found, n = a.BasicAuth, n+1
	}
	if a.HeaderAuth != nil {
		found, n = a.HeaderAuth, n+1
	}
	if a.BearerAuth != nil {
		found, n = a.BearerAuth, n+1
	}
	return found, n
}

// ToAuthMap converts the host authentication configurations to a map of hosts
// to Authenticators. Returns nil if no host has authentication configured.
func (c *Config) ToAuthMap() map[string]auth.Authenticator {
	results := make(map[string]auth.Authenticator, len(c.Hosts))
	for _, h := range c.Hosts {
		if h == nil || h.Auth == nil {
			continue
		}
		if ac, n := h.Auth.container(); n == 1 {
			results[h.Host] = ac.ToAuthenticator()
		}
	}
	if len(results) == 0 {
		return nil
	}
	return results
}

func validateHosts(hosts []*HostConfig) error {
	seen := make(map[string]bool, len(hosts))
	for i, h := range hosts {
		if h == nil || strings.TrimSpace(h.Host) == "" {
			return fmt.Errorf("host %d: name cannot be empty", i)
		}
		name := strings.ToLower(h.Host)
		if strings.Contains(name, "/") {
			return fmt.Errorf("host %q: must not contain a path or scheme", h.Host)
		}
		if seen[name] {
			return fmt.Errorf("host %q: duplicate entry", h.Host)
		}
		seen[name] = true
		if h.Auth != nil {
			if _, n := h.Auth.container(); n != 1 {
				return fmt.Errorf("host %q: exactly one auth method must be set, got %d", h.Host, n)
			}
		}
	}
	return nil
}
