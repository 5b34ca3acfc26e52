// Package auth applies package source credentials to outgoing HTTP requests.
package auth

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/glorpus-work/extly/pkg/errors"
)

// Authenticator adds credentials to a request.
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

func (b BasicAuth) Type() Type { return BasicAuthType }

// Apply adds custom headers to the HTTP request.
func (h HeaderAuth) Apply(req *http.Request) error {
	for k, v := range h.Headers {
		req.Header.Set(k, v)
	}
	return nil
}

func (h HeaderAuth) Type() Type { return HeaderAuthType }

// Apply adds a Bearer token to the Authorization header of the HTTP request.
func (b BearerAuth) Apply(req *http.Request) error {
	req.Header.Set("Authorization", "Bearer "+b.Token)
	return nil
}

func (b BearerAuth) Type() Type { return BearerAuthType }

// Settings is the configured form of a credential. Every value may
// reference environment variables as $NAME or ${NAME}.
type Settings struct {
	Type     string
	Username string
	Password string
	Token    string
	Headers  map[string]string
}

// New builds the authenticator described by s after expanding environment
// references. A credential that expands to nothing is rejected.
func New(s Settings) (Authenticator, error) {
	switch Type(strings.ToLower(strings.TrimSpace(s.Type))) {
	case BasicAuthType:
		user := os.ExpandEnv(s.Username)
		if user == "" {
			return nil, fmt.Errorf("%w: basic auth needs a username", errors.ErrInvalidAuth)
		}
		return BasicAuth{Username: user, Password: os.ExpandEnv(s.Password)}, nil
	case BearerAuthType:
		token := os.ExpandEnv(s.Token)
		if token == "" {
			return nil, fmt.Errorf("%w: bearer auth needs a token", errors.ErrInvalidAuth)
		}
		return BearerAuth{Token: token}, nil
	case HeaderAuthType:
		if len(s.Headers) == 0 {
			return nil, fmt.Errorf("%w: header auth needs at least one header", errors.ErrInvalidAuth)
		}
		headers := make(map[string]string, len(s.Headers))
		for k, v := range s.Headers {
			headers[k] = os.ExpandEnv(v)
		}
		return HeaderAuth{Headers: headers}, nil
	default:
		return nil, fmt.Errorf("%w: unknown type %q", errors.ErrInvalidAuth, s.Type)
	}
}

// ValidType reports whether t names a supported authentication type.
func ValidType(t string) bool {
	switch Type(strings.ToLower(strings.TrimSpace(t))) {
	case BasicAuthType, BearerAuthType, HeaderAuthType:
		return true
	}
	return false
}

// hostScoped applies its credentials only to requests for one host.
type hostScoped struct {
	host  string
	inner Authenticator
}

// ForHost restricts a to requests whose host equals host, so archives served
// from another origin never see the source credentials.
func ForHost(host string, a Authenticator) Authenticator {
	if a == nil {
		return nil
	}
	return hostScoped{host: strings.ToLower(host), inner: a}
}

func (h hostScoped) Apply(req *http.Request) error {
	if req.URL == nil || !strings.EqualFold(req.URL.Host, h.host) {
		return nil
	}
	return h.inner.Apply(req)
}

func (h hostScoped) Type() Type { return h.inner.Type() }
