package biz

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/looplj/memvault/internal/crypto"
	"github.com/looplj/memvault/internal/keyring"
	"github.com/looplj/memvault/internal/metrics"
)

// sealPayload marshals v and seals it inside the carrier's key window.
// The plaintext buffer is wiped before returning.
func sealPayload(ctx context.Context, carrier *keyring.Carrier, v any) ([]byte, error) {
	if carrier == nil {
		return nil, ErrKeyMissing
	}

	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	defer crypto.Wipe(plaintext)

	var blob []byte

	err = carrier.Use(func(key []byte) error {
		var sealErr error

		blob, sealErr = crypto.Seal(key, plaintext)

		return sealErr
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordSeal(ctx)

	return blob, nil
}

// openPayload opens a sealed blob and unmarshals it into v. A failed
// open maps to ErrAccessDenied: the key is the access check, and the
// caller cannot distinguish wrong-key from corruption.
func openPayload(ctx context.Context, carrier *keyring.Carrier, blob []byte, v any) error {
	if carrier == nil {
		return ErrKeyMissing
	}

	err := carrier.Use(func(key []byte) error {
		plaintext, openErr := crypto.Open(key, blob)
		if openErr != nil {
			return openErr
		}
		defer crypto.Wipe(plaintext)

		return json.Unmarshal(plaintext, v)
	})
	if err != nil {
		metrics.RecordOpen(ctx, true)

		return fmt.Errorf("%w: %w", ErrAccessDenied, err)
	}

	metrics.RecordOpen(ctx, false)

	return nil
}
