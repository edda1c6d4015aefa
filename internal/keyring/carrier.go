// Package keyring holds the request-scoped content key. A Carrier is
// constructed once per inbound request by the key-window middleware and
// destroyed on every exit path before the response handling completes,
// so the key never outlives the request that supplied it.
package keyring

import (
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap/zapcore"

	"github.com/looplj/memvault/internal/crypto"
)

var (
	// ErrKeyDestroyed is returned by Use after Destroy has run.
	ErrKeyDestroyed = errors.New("content key destroyed")

	// ErrInvalidKey is returned for malformed or wrongly sized key values.
	ErrInvalidKey = errors.New("invalid content key")
)

// Carrier is a transient capability value wrapping the tenant's content
// key. It deliberately has no accessor that returns the key bytes: the
// only way to reach them is Use, whose closure must not retain them.
// Wiping on Destroy is best-effort risk reduction, not an absolute
// guarantee, since the runtime may copy memory.
type Carrier struct {
	mu        sync.Mutex
	key       []byte
	destroyed bool
}

// New copies key into a fresh carrier. The caller keeps ownership of its
// own slice and should wipe it.
func New(key []byte) (*Carrier, error) {
	if len(key) != crypto.KeySize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidKey, len(key), crypto.KeySize)
	}

	c := &Carrier{key: make([]byte, len(key))}
	copy(c.key, key)

	return c, nil
}

// FromHeader decodes the dedicated transport header value (standard or
// raw-URL base64) into a carrier.
func FromHeader(value string) (*Carrier, error) {
	if value == "" {
		return nil, fmt.Errorf("%w: empty header", ErrInvalidKey)
	}

	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		raw, err = base64.RawURLEncoding.DecodeString(value)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}

	defer crypto.Wipe(raw)

	return New(raw)
}

// Use invokes fn with the key bytes while holding the carrier lock. fn
// must not retain the slice or pass it across a boundary that outlives
// the request.
func (c *Carrier) Use(fn func(key []byte) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.destroyed {
		return ErrKeyDestroyed
	}

	return fn(c.key)
}

// Destroy wipes the backing bytes. Idempotent; runs on every request
// exit path including panics.
func (c *Carrier) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.destroyed {
		return
	}

	crypto.Wipe(c.key)
	c.key = nil
	c.destroyed = true
}

// Destroyed reports whether the key has been wiped.
func (c *Carrier) Destroyed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.destroyed
}

const redacted = "[REDACTED]"

// String implements fmt.Stringer so formatting a carrier never prints
// key material.
func (c *Carrier) String() string { return redacted }

// GoString guards the %#v verb as well.
func (c *Carrier) GoString() string { return redacted }

// MarshalJSON keeps the key out of serialized error payloads.
func (c *Carrier) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}

// MarshalLogObject keeps the key out of structured logs.
func (c *Carrier) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("key", redacted)
	return nil
}
