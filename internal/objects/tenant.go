package objects

import "time"

type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "active"
	TenantStatusSuspended TenantStatus = "suspended"
)

// Tenant is the structural tenant record. Salt and KDFIterations are the
// published key-derivation contract for the tenant's clients; no key
// material is ever stored.
type Tenant struct {
	ID            int          `json:"id"`
	Name          string       `json:"name"`
	Salt          string       `json:"salt"`
	KDFIterations int          `json:"kdf_iterations"`
	Status        TenantStatus `json:"status"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}
