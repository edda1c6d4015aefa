package objects

import "time"

// ActionKind enumerates the closed set of deferred, content-dependent
// maintenance actions. Dispatch is a switch over this set, never an
// open-ended lookup.
type ActionKind string

const (
	ActionMergeExecution     ActionKind = "merge-execution"
	ActionReExtraction       ActionKind = "re-extraction"
	ActionAnchorRegeneration ActionKind = "anchor-regeneration"
)

// Valid reports whether k is a known action kind.
func (k ActionKind) Valid() bool {
	switch k {
	case ActionMergeExecution, ActionReExtraction, ActionAnchorRegeneration:
		return true
	default:
		return false
	}
}

type ActionStatus string

const (
	ActionStatusPending    ActionStatus = "pending"
	ActionStatusInProgress ActionStatus = "in_progress"
	ActionStatusDone       ActionStatus = "done"
	ActionStatusFailed     ActionStatus = "failed"
)

// PendingAction is a queued content-dependent work item. LastError holds
// a structural message only, never decrypted content.
type PendingAction struct {
	ID        int          `json:"id"`
	TenantID  int          `json:"tenant_id"`
	Kind      ActionKind   `json:"kind"`
	TargetIDs []int        `json:"target_ids"`
	Status    ActionStatus `json:"status"`
	Attempts  int          `json:"attempts"`
	LastError string       `json:"last_error,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}
