// Package store provides in-memory store implementations for tests and dev.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/recurrence-engine/recurring"
)

// =============================================================================
// MEMORY TEMPLATE STORE
// =============================================================================

type MemoryTemplates struct {
	mu        sync.RWMutex
	templates map[recurring.UserID]map[recurring.TemplateID]recurring.RecurringTemplate

	// ListErr, when set, is returned by ListActive. For failure-path tests.
	ListErr error
}

func NewMemoryTemplates() *MemoryTemplates {
	return &MemoryTemplates{
		templates: make(map[recurring.UserID]map[recurring.TemplateID]recurring.RecurringTemplate),
	}
}

// Put inserts or replaces a template. Test seeding helper; the engine
// itself never creates templates.
func (m *MemoryTemplates) Put(tpl recurring.RecurringTemplate) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byID := m.templates[tpl.UserID]
	if byID == nil {
		byID = make(map[recurring.TemplateID]recurring.RecurringTemplate)
		m.templates[tpl.UserID] = byID
	}
	byID[tpl.ID] = tpl
}

// Get returns a copy of a stored template. Test inspection helper.
func (m *MemoryTemplates) Get(userID recurring.UserID, id recurring.TemplateID) (recurring.RecurringTemplate, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tpl, ok := m.templates[userID][id]
	return tpl, ok
}

func (m *MemoryTemplates) ListActive(_ context.Context, userID recurring.UserID) ([]recurring.RecurringTemplate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.ListErr != nil {
		return nil, m.ListErr
	}

	var result []recurring.RecurringTemplate
	for _, tpl := range m.templates[userID] {
		if tpl.Status == recurring.StatusActive {
			result = append(result, tpl)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *MemoryTemplates) ListUsers(_ context.Context) ([]recurring.UserID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]recurring.UserID, 0, len(m.templates))
	for userID := range m.templates {
		users = append(users, userID)
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	return users, nil
}

func (m *MemoryTemplates) UpdateNextRun(_ context.Context, userID recurring.UserID, id recurring.TemplateID, next recurring.Date) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tpl, ok := m.templates[userID][id]
	if !ok {
		return recurring.ErrTemplateNotFound
	}
	tpl.NextRun = next
	tpl.HasNextRun = true
	m.templates[userID][id] = tpl
	return nil
}

func (m *MemoryTemplates) ClaimNextRun(_ context.Context, userID recurring.UserID, id recurring.TemplateID, expect, next recurring.Date) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tpl, ok := m.templates[userID][id]
	if !ok {
		return recurring.ErrTemplateNotFound
	}
	if !tpl.HasNextRun || !tpl.NextRun.Equal(expect) {
		return recurring.ErrClaimConflict
	}
	tpl.NextRun = next
	m.templates[userID][id] = tpl
	return nil
}

// =============================================================================
// MEMORY LEDGER STORE
// =============================================================================

type MemoryLedger struct {
	mu           sync.RWMutex
	transactions map[recurring.UserID][]recurring.Transaction

	// InsertErr, when set, is returned by Insert. For failure-path tests.
	InsertErr error
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		transactions: make(map[recurring.UserID][]recurring.Transaction),
	}
}

func (m *MemoryLedger) HasTransactionOn(_ context.Context, userID recurring.UserID, templateID recurring.TemplateID, day recurring.Date) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, tx := range m.transactions[userID] {
		if tx.TemplateID == templateID && tx.Date.Equal(day) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryLedger) Insert(_ context.Context, tx recurring.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.InsertErr != nil {
		return m.InsertErr
	}
	for _, existing := range m.transactions[tx.UserID] {
		if existing.TemplateID == tx.TemplateID && existing.Date.Equal(tx.Date) && tx.TemplateID != "" {
			return recurring.ErrDuplicateOccurrence
		}
	}
	m.transactions[tx.UserID] = append(m.transactions[tx.UserID], tx)
	return nil
}

func (m *MemoryLedger) ListByUser(_ context.Context, userID recurring.UserID, limit int) ([]recurring.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	txs := m.transactions[userID]
	result := make([]recurring.Transaction, len(txs))
	copy(result, txs)
	sort.SliceStable(result, func(i, j int) bool { return result[i].Date.After(result[j].Date) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// =============================================================================
// MEMORY RUN STORE
// =============================================================================

type MemoryRuns struct {
	mu   sync.RWMutex
	runs []recurring.RunRecord
}

func NewMemoryRuns() *MemoryRuns {
	return &MemoryRuns{}
}

func (m *MemoryRuns) SaveRun(_ context.Context, run recurring.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

func (m *MemoryRuns) ListRuns(_ context.Context, limit int) ([]recurring.RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]recurring.RunRecord, len(m.runs))
	copy(result, m.runs)
	sort.SliceStable(result, func(i, j int) bool { return result[i].StartedAt.After(result[j].StartedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
