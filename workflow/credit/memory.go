package credit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemService is an in-memory credit Service.
//
// Designed for testing and single-tenant deployments. Balances and holds are
// tracked per workspace; every operation appends a ledger entry, which tests
// inspect to assert the reserve-finalize lifecycle.
//
// MemService is thread-safe.
type MemService struct {
	mu       sync.Mutex
	balances map[string]int64
	holds    map[string]hold
	ledger   []LedgerEntry
	now      func() time.Time
}

type hold struct {
	workspaceID   string
	amount        int64
	operationType string
}

// NewMemService creates an in-memory credit service with no balances.
func NewMemService() *MemService {
	return &MemService{
		balances: make(map[string]int64),
		holds:    make(map[string]hold),
		now:      time.Now,
	}
}

// SetBalance sets the available balance for a workspace.
func (m *MemService) SetBalance(workspaceID string, amount int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[workspaceID] = amount
}

// ShouldAllowExecution reports whether the balance covers the estimate.
func (m *MemService) ShouldAllowExecution(_ context.Context, workspaceID string, estimated int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[workspaceID] >= estimated, nil
}

// ReserveCredits moves amount from the balance into a named hold.
func (m *MemService) ReserveCredits(_ context.Context, workspaceID string, amount int64, operationType, operationID string) error {
	if amount < 0 {
		return fmt.Errorf("negative reservation amount %d", amount)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.holds[operationID]; exists {
		return fmt.Errorf("reservation %s already exists", operationID)
	}
	if m.balances[workspaceID] < amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, m.balances[workspaceID], amount)
	}
	m.balances[workspaceID] -= amount
	m.holds[operationID] = hold{workspaceID: workspaceID, amount: amount, operationType: operationType}
	m.ledger = append(m.ledger, LedgerEntry{
		Kind:          EntryReserve,
		Amount:        amount,
		OperationType: operationType,
		OperationID:   operationID,
		WorkspaceID:   workspaceID,
		Timestamp:     m.now(),
	})
	return nil
}

// ReleaseCredits cancels a hold and returns the full amount to the balance.
func (m *MemService) ReleaseCredits(_ context.Context, workspaceID, operationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.holds[operationID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownReservation, operationID)
	}
	delete(m.holds, operationID)
	m.balances[h.workspaceID] += h.amount
	m.ledger = append(m.ledger, LedgerEntry{
		Kind:          EntryRelease,
		Amount:        h.amount,
		OperationType: h.operationType,
		OperationID:   operationID,
		WorkspaceID:   workspaceID,
		Timestamp:     m.now(),
	})
	return nil
}

// FinalizeCredits settles a hold against the actual cost. Unused reservation
// is refunded; overdraft beyond the hold is charged from the balance, which
// may go negative for grace-window overruns.
func (m *MemService) FinalizeCredits(_ context.Context, workspaceID, operationID string, actual int64) error {
	if actual < 0 {
		return fmt.Errorf("negative actual amount %d", actual)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.holds[operationID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownReservation, operationID)
	}
	delete(m.holds, operationID)
	m.balances[h.workspaceID] += h.amount - actual
	m.ledger = append(m.ledger, LedgerEntry{
		Kind:          EntryFinalize,
		Amount:        h.amount,
		ActualAmount:  actual,
		OperationType: h.operationType,
		OperationID:   operationID,
		WorkspaceID:   workspaceID,
		Timestamp:     m.now(),
	})
	return nil
}

// Balance returns the available balance for a workspace.
func (m *MemService) Balance(_ context.Context, workspaceID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[workspaceID], nil
}

// Ledger returns a copy of all recorded entries in order.
func (m *MemService) Ledger() []LedgerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]LedgerEntry, len(m.ledger))
	copy(out, m.ledger)
	return out
}

// HeldAmount returns the outstanding hold for an operation, or 0 when the
// reservation does not exist.
func (m *MemService) HeldAmount(operationID string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.holds[operationID].amount
}
