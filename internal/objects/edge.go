package objects

import "time"

type EdgeKind string

const (
	EdgeKindRelated  EdgeKind = "related"
	EdgeKindDerived  EdgeKind = "derived"
	EdgeKindInferred EdgeKind = "inferred"
)

func (k EdgeKind) Valid() bool {
	switch k {
	case EdgeKindRelated, EdgeKindDerived, EdgeKindInferred:
		return true
	default:
		return false
	}
}

// Edge is a structural relation between two topics of one tenant.
type Edge struct {
	ID        int       `json:"id"`
	TenantID  int       `json:"tenant_id"`
	SrcID     int       `json:"src_id"`
	DstID     int       `json:"dst_id"`
	Kind      EdgeKind  `json:"kind"`
	Weight    float64   `json:"weight"`
	CreatedAt time.Time `json:"created_at"`
}
