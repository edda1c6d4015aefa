package crypto

import (
	"crypto/sha256"

	"golang.org/x/crypto/pbkdf2"
)

// DefaultKDFIterations is the iteration count published to newly
// provisioned tenants. Deliberately expensive.
const DefaultKDFIterations = 600_000

// DeriveKey derives a KeySize-byte symmetric key from a password and the
// tenant's salt. The server never calls this on the request path; it is
// the published edge contract for clients that derive the content key
// before each request.
func DeriveKey(password, salt []byte, iterations int) []byte {
	return pbkdf2.Key(password, salt, iterations, KeySize, sha256.New)
}
