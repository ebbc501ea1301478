package workflow

import (
	"context"
	"fmt"

	"github.com/nbaghiro/flowmaestro/workflow/credit"
)

// EstimateWorkflow projects the credit cost of executing every node of the
// workflow once, with loop bodies counted once per allowed iteration.
//
// Confidence is "estimated" when any LLM-backed node contributes (actual cost
// depends on runtime token usage), "exact" otherwise.
func EstimateWorkflow(wf *BuiltWorkflow) credit.Estimate {
	est := credit.Estimate{
		Breakdown:  make(map[string]int64, len(wf.Nodes)),
		Confidence: "exact",
	}
	owned := wf.loopBodyMembership()
	for id, node := range wf.Nodes {
		cost := credit.CalculateNodeCredits(string(node.Type))
		if loopID := owned[id]; loopID != "" {
			if lc := wf.LoopContexts[loopID]; lc != nil && lc.MaxIterations > 1 {
				cost *= int64(lc.MaxIterations)
			}
		}
		est.Breakdown[id] = cost
		est.TotalCredits += cost
		if node.Type == NodeLLM || node.Type == NodeAgent || node.Type == NodeVision {
			est.Confidence = "estimated"
		}
	}
	return est
}

// estimateRemaining projects the credit cost of the work still ahead of a
// restored queue: nodes that are pending or ready, plus the bodies of loops
// that have not yet run.
func estimateRemaining(wf *BuiltWorkflow, q *QueueState) int64 {
	owned := wf.loopBodyMembership()
	var total int64
	for id, node := range wf.Nodes {
		cost := credit.CalculateNodeCredits(string(node.Type))
		if loopID := owned[id]; loopID != "" {
			if st := q.Status(loopID); st == StatusPending || st == StatusReady {
				if lc := wf.LoopContexts[loopID]; lc != nil && lc.MaxIterations > 1 {
					cost *= int64(lc.MaxIterations)
				}
				total += cost
			}
			continue
		}
		if st := q.Status(id); st == StatusPending || st == StatusReady {
			total += cost
		}
	}
	return total
}

// creditTracker carries the reserve-accrue-finalize lifecycle for one
// execution. A nil tracker (no service, no workspace, or skipCreditCheck with
// no service) disables all accounting.
//
// The engine guarantees that for every reservation it initiates, exactly one
// finalize or release is attempted before Run returns.
type creditTracker struct {
	svc         credit.Service
	workspaceID string
	operationID string

	reserved int64
	accrued  int64
	settled  bool
}

// newCreditTracker returns nil when accounting is disabled for this run.
func newCreditTracker(svc credit.Service, workspaceID, executionID string) *creditTracker {
	if svc == nil || workspaceID == "" {
		return nil
	}
	return &creditTracker{
		svc:         svc,
		workspaceID: workspaceID,
		operationID: executionID,
	}
}

// preflight pre-checks and reserves against an estimate. The reservation
// carries a 20% margin over the estimate; when the balance falls short by
// strictly less than 10% of the reservation, the execution is still admitted
// and the hold shrinks to the available balance (grace overdraft).
//
// Returns ErrInsufficientCredits when the workspace cannot cover the run.
func (t *creditTracker) preflight(ctx context.Context, estimated int64, skipCheck bool) error {
	if t == nil || skipCheck {
		return nil
	}
	reservation := credit.ReservationAmount(estimated)
	if reservation == 0 {
		return nil
	}

	allowed, err := t.svc.ShouldAllowExecution(ctx, t.workspaceID, reservation)
	if err != nil {
		return fmt.Errorf("credit pre-check: %w", err)
	}
	hold := reservation
	if !allowed {
		balance, berr := t.svc.Balance(ctx, t.workspaceID)
		if berr != nil {
			return fmt.Errorf("credit balance: %w", berr)
		}
		shortfall := reservation - balance
		if float64(shortfall) >= float64(reservation)*credit.GraceOverdraftRatio || balance < 0 {
			return fmt.Errorf("%w: need %d, have %d", ErrInsufficientCredits, reservation, balance)
		}
		hold = balance
	}

	if err := t.svc.ReserveCredits(ctx, t.workspaceID, hold, "workflow_execution", t.operationID); err != nil {
		return fmt.Errorf("%w: %v", ErrInsufficientCredits, err)
	}
	t.reserved = hold
	return nil
}

// accrue charges one successful node completion against the running total.
// Priority: executor cost override, then reported token usage, then the
// node-type default.
func (t *creditTracker) accrue(node *Node, result Result) int64 {
	if t == nil {
		return 0
	}
	cost := nodeCost(node, result)
	t.accrued += cost
	return cost
}

// nodeCost prices one node execution from its result.
func nodeCost(node *Node, result Result) int64 {
	if s := result.Signals; s != nil {
		if s.CreditCost > 0 {
			return s.CreditCost
		}
		if u := s.TokenUsage; u != nil {
			return credit.CalculateLLMCredits(u.Model, int64(u.PromptTokens), int64(u.CompletionTokens))
		}
	}
	return credit.CalculateNodeCredits(string(node.Type))
}

// finalize settles the reservation against the accrued total, exactly once.
// Safe to call when nothing was reserved.
func (t *creditTracker) finalize(ctx context.Context) error {
	if t == nil || t.settled || t.reserved == 0 {
		return nil
	}
	t.settled = true
	if err := t.svc.FinalizeCredits(ctx, t.workspaceID, t.operationID, t.accrued); err != nil {
		return fmt.Errorf("finalize credits: %w", err)
	}
	return nil
}

// release cancels the reservation without charging, exactly once. Used when
// the execution terminates before any node ran.
func (t *creditTracker) release(ctx context.Context) error {
	if t == nil || t.settled || t.reserved == 0 {
		return nil
	}
	t.settled = true
	if err := t.svc.ReleaseCredits(ctx, t.workspaceID, t.operationID); err != nil {
		return fmt.Errorf("release credits: %w", err)
	}
	return nil
}

// total returns the credits accrued so far.
func (t *creditTracker) total() int64 {
	if t == nil {
		return 0
	}
	return t.accrued
}
