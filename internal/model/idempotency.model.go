package model

import "time"

// ClaimState is the lifecycle state of an idempotency claim row.
type ClaimState string

const (
	ClaimStateClaimed            ClaimState = "claimed"
	ClaimStateProcessed          ClaimState = "processed"
	ClaimStateProcessedWithError ClaimState = "processed_with_error"
)

// ClaimOutcome is what a Claim call tells the caller to do.
type ClaimOutcome string

const (
	// ClaimOutcomeClaimed means the caller owns the key and must proceed.
	ClaimOutcomeClaimed ClaimOutcome = "claimed"
	// ClaimOutcomeReplay means another attempt already owns or completed this
	// key. The caller must skip the side effect.
	ClaimOutcomeReplay ClaimOutcome = "replay"
	// ClaimOutcomeConflict means the same key arrived with a different request
	// hash. The caller must skip and log; the stored row is never overwritten.
	ClaimOutcomeConflict ClaimOutcome = "conflict"
)

// IdempotencyClaim is a database-backed mutex for a side-effecting operation.
// Key is composite: operation + entity + sub-type, e.g.
// "invoice_reminder:42:overdue".
type IdempotencyClaim struct {
	ID          int64      `json:"id"`
	Key         string     `json:"key"`
	RequestHash string     `json:"request_hash"`
	State       ClaimState `json:"state"`
	Result      string     `json:"result,omitempty"`
	ExpiresAt   time.Time  `json:"expires_at"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
