// Package sas generates shared access signature tokens used as MQTT passwords.
package sas

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/amenzhinsky/iothub/common"
)

// DefaultLifetime is the token lifetime used when none is configured.
const DefaultLifetime = time.Hour

var (
	// ErrInvalidKey is returned for keys that are empty or not base64.
	ErrInvalidKey = errors.New("sas: invalid key")
	// ErrEmptyResource is returned when no resource URI is given.
	ErrEmptyResource = errors.New("sas: empty resource uri")
)

// Token signs resourceURI with the base64 key and returns a token valid until expiry.
// keyName is optional and only set for shared access policies.
//
// Example: SharedAccessSignature sr=hub.example.net%2Fdevices%2Fd1&sig=...&se=1767225600
func Token(resourceURI, key, keyName string, expiry time.Time) (string, error) {
	if resourceURI == "" {
		return "", ErrEmptyResource
	}
	if key == "" {
		return "", ErrInvalidKey
	}
	if _, err := base64.StdEncoding.DecodeString(key); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	sas, err := common.NewSharedAccessSignature(resourceURI, keyName, key, expiry)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s: %w", resourceURI, err)
	}
	return sas.String(), nil
}

// Provider mints tokens for one resource, so every MQTT reconnect can
// present a fresh password.
type Provider struct {
	ResourceURI string
	Key         string
	KeyName     string
	Lifetime    time.Duration

	now func() time.Time
}

// Token returns a token expiring Lifetime from now.
func (p *Provider) Token() (string, error) {
	now := time.Now
	if p.now != nil {
		now = p.now
	}
	lifetime := p.Lifetime
	if lifetime <= 0 {
		lifetime = DefaultLifetime
	}
	return Token(p.ResourceURI, p.Key, p.KeyName, now().Add(lifetime))
}
