package contexts

import (
	"context"

	"github.com/looplj/memvault/internal/keyring"
)

// WithKeyCarrier stores the request's key carrier in the context. The
// carrier is owned and destroyed by the key-window middleware; nothing
// reached through the context may retain it past the request.
func WithKeyCarrier(ctx context.Context, carrier *keyring.Carrier) context.Context {
	container := getContainer(ctx)
	container.Carrier = carrier

	return withContainer(ctx, container)
}

// GetKeyCarrier retrieves the request's key carrier from the context.
func GetKeyCarrier(ctx context.Context) (*keyring.Carrier, bool) {
	container := getContainer(ctx)
	return container.Carrier, container.Carrier != nil
}

// WithRotationCarrier stores the rotation target key carrier in the
// context. Present only on key rotation requests.
func WithRotationCarrier(ctx context.Context, carrier *keyring.Carrier) context.Context {
	container := getContainer(ctx)
	container.RotationCarrier = carrier

	return withContainer(ctx, container)
}

// GetRotationCarrier retrieves the rotation target key carrier from the context.
func GetRotationCarrier(ctx context.Context) (*keyring.Carrier, bool) {
	container := getContainer(ctx)
	return container.RotationCarrier, container.RotationCarrier != nil
}
