// Package lifecycle moves inventory items between statuses. Legal moves come from
// the transition matrix stored alongside the data; moves that touch a sale have
// side effects on the sale the item is linked to.
package lifecycle

import (
	"context"
	"fmt"
	"sync"

	"github.com/collectr/collectr/internal/domain"
	"github.com/collectr/collectr/internal/remote"
)

// TransitionsTable holds the matrix rows.
const TransitionsTable = "inventory_status_transitions"

type pair struct {
	from, to domain.InventoryStatus
}

// Matrix is the set of allowed (from, to) status pairs.
type Matrix struct {
	mu    sync.RWMutex
	rules map[pair]domain.StatusTransition
}

// NewMatrix builds a matrix from its rows.
func NewMatrix(rows []domain.StatusTransition) *Matrix {
	m := &Matrix{}
	m.Replace(rows)
	return m
}

// LoadMatrix reads the matrix from the remote store.
func LoadMatrix(ctx context.Context, store remote.Store) (*Matrix, error) {
	m := &Matrix{}
	if err := m.Reload(ctx, store); err != nil {
		return nil, err
	}
	return m, nil
}

// Reload replaces the rules with the rows currently stored.
func (m *Matrix) Reload(ctx context.Context, store remote.Store) error {
	rows, err := store.Select(ctx, TransitionsTable, remote.Query{})
	if err != nil {
		return fmt.Errorf("load transition matrix: %w", err)
	}
	transitions, err := remote.DecodeAll[domain.StatusTransition](rows)
	if err != nil {
		return fmt.Errorf("decode transition matrix: %w", err)
	}
	m.Replace(transitions)
	return nil
}

// Replace swaps in a new set of rules.
func (m *Matrix) Replace(rows []domain.StatusTransition) {
	rules := make(map[pair]domain.StatusTransition, len(rows))
	for _, r := range rows {
		rules[pair{r.FromStatus, r.ToStatus}] = r
	}
	m.mu.Lock()
	m.rules = rules
	m.mu.Unlock()
}

// Allowed reports whether the matrix has a row for (from, to).
func (m *Matrix) Allowed(from, to domain.InventoryStatus) bool {
	_, ok := m.Rule(from, to)
	return ok
}

// Rule returns the matrix row for (from, to).
func (m *Matrix) Rule(from, to domain.InventoryStatus) (domain.StatusTransition, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rules[pair{from, to}]
	return r, ok
}

// Targets returns the statuses reachable from from, in display order.
func (m *Matrix) Targets(from domain.InventoryStatus) []domain.InventoryStatus {
	var out []domain.InventoryStatus
	for _, to := range domain.InventoryStatuses {
		if m.Allowed(from, to) {
			out = append(out, to)
		}
	}
	return out
}
