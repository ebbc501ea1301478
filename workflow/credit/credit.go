// Package credit provides credit accounting for workflow executions.
//
// Every execution runs against a workspace credit balance. The lifecycle is
// reserve-accrue-finalize: before an execution starts, the engine estimates
// total cost and reserves that amount with a safety margin; as each node
// completes, credits accrue against the reservation; when the execution
// reaches a terminal state (or pauses), the reservation is finalized against
// the actual accrued total and the difference refunded.
//
// The Service interface decouples the engine from the billing backend. The
// in-memory implementation in this package is suitable for testing and
// single-tenant deployments; production deployments implement Service over
// their own ledger.
package credit

import (
	"context"
	"errors"
	"math"
	"time"
)

// ErrInsufficientBalance is returned by ReserveCredits when the workspace
// balance cannot cover the requested reservation.
var ErrInsufficientBalance = errors.New("insufficient credit balance")

// ErrUnknownReservation is returned when finalizing or releasing a
// reservation that does not exist or was already settled.
var ErrUnknownReservation = errors.New("unknown reservation")

// ReservationMargin is the safety multiplier applied to estimates when
// reserving. Reserving 20% over the estimate absorbs variance in LLM token
// usage without blocking executions that would have fit the balance.
const ReservationMargin = 1.2

// GraceOverdraftRatio bounds how far actual usage may exceed the reservation
// before mid-execution accrual is rejected. Under 10% overdraft the execution
// is allowed to finish; the overage settles at finalization.
const GraceOverdraftRatio = 0.10

// Estimate is a pre-execution cost projection for a workflow.
type Estimate struct {
	// TotalCredits is the projected cost of executing every node once.
	TotalCredits int64 `json:"totalCredits"`

	// Breakdown maps node ID to its projected cost.
	Breakdown map[string]int64 `json:"breakdown"`

	// Confidence is "exact" when no LLM nodes contribute, "estimated"
	// otherwise. LLM costs depend on runtime token counts.
	Confidence string `json:"confidence"`
}

// EntryKind classifies ledger entries.
type EntryKind string

// Ledger entry kinds.
const (
	EntryReserve  EntryKind = "reserve"
	EntryRelease  EntryKind = "release"
	EntryFinalize EntryKind = "finalize"
)

// LedgerEntry records one credit operation against a workspace.
type LedgerEntry struct {
	Kind          EntryKind `json:"kind"`
	Amount        int64     `json:"amount"`
	ActualAmount  int64     `json:"actualAmount,omitempty"`
	OperationType string    `json:"operationType"`
	OperationID   string    `json:"operationId"`
	WorkspaceID   string    `json:"workspaceId"`
	Timestamp     time.Time `json:"timestamp"`
}

// Service is the billing backend contract used by the engine.
//
// All amounts are whole credits. Implementations must be safe for concurrent
// use; the engine may accrue from multiple executions at once.
type Service interface {
	// ShouldAllowExecution reports whether the workspace balance covers the
	// estimated cost. It does not reserve anything.
	ShouldAllowExecution(ctx context.Context, workspaceID string, estimated int64) (bool, error)

	// ReserveCredits places a hold for the operation. The hold amount is the
	// caller's responsibility (typically estimate with margin). Returns
	// ErrInsufficientBalance when the balance cannot cover the hold.
	ReserveCredits(ctx context.Context, workspaceID string, amount int64, operationType, operationID string) error

	// ReleaseCredits cancels a hold without charging, e.g. when an execution
	// fails before any node runs.
	ReleaseCredits(ctx context.Context, workspaceID, operationID string) error

	// FinalizeCredits settles a hold against the actual cost: the workspace
	// is charged actual, and the remainder of the hold is refunded. When
	// actual exceeds the hold the difference is charged from the balance.
	FinalizeCredits(ctx context.Context, workspaceID, operationID string, actual int64) error

	// Balance returns the available (unreserved) balance for a workspace.
	Balance(ctx context.Context, workspaceID string) (int64, error)
}

// ReservationAmount converts an estimate into a hold amount by applying the
// reservation margin, rounding up.
func ReservationAmount(estimated int64) int64 {
	if estimated <= 0 {
		return 0
	}
	return int64(math.Ceil(float64(estimated) * ReservationMargin))
}

// WithinGrace reports whether accruing next against a reservation stays
// within the grace overdraft window.
func WithinGrace(reserved, accrued, next int64) bool {
	if reserved <= 0 {
		return false
	}
	limit := int64(math.Ceil(float64(reserved) * (1 + GraceOverdraftRatio)))
	return accrued+next <= limit
}
