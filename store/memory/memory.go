// Package memory provides an in-memory implementation of every store the
// labor engine consumes (for testing/dev).
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/warp/labor-ledger/labor"
	"github.com/warp/labor-ledger/ledger"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type Memory struct {
	mu sync.RWMutex
	state
}

type state struct {
	employees map[ledger.EmployeeID]labor.Employee
	projects  map[ledger.ProjectID]labor.Project
	entries   map[ledger.TimeEntryID]labor.TimeEntry
	records   []ledger.ExpenseRecord
	recordIdx map[ledger.RecordID]int
	reversed  map[ledger.RecordID]ledger.RecordID
	snapshots map[ledger.ProjectID]ledger.CostBasis
}

func newState() state {
	return state{
		employees: make(map[ledger.EmployeeID]labor.Employee),
		projects:  make(map[ledger.ProjectID]labor.Project),
		entries:   make(map[ledger.TimeEntryID]labor.TimeEntry),
		recordIdx: make(map[ledger.RecordID]int),
		reversed:  make(map[ledger.RecordID]ledger.RecordID),
		snapshots: make(map[ledger.ProjectID]ledger.CostBasis),
	}
}

func NewMemory() *Memory {
	return &Memory{state: newState()}
}

// Reset drops everything.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = newState()
	return nil
}

// =============================================================================
// DIRECTORY - employees and projects
// =============================================================================

func (m *Memory) SaveEmployee(_ context.Context, emp labor.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.employees[emp.ID] = emp
	return nil
}

func (m *Memory) LookupEmployee(_ context.Context, id ledger.EmployeeID) (*labor.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	emp, ok := m.employees[id]
	if !ok {
		return nil, nil
	}
	return &emp, nil
}

// ListEmployees returns every employee ordered by name, then ID.
func (m *Memory) ListEmployees(_ context.Context) ([]labor.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]labor.Employee, 0, len(m.employees))
	for _, e := range m.employees {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) SaveProject(_ context.Context, p labor.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[p.ID] = p
	return nil
}

func (m *Memory) LookupProject(_ context.Context, id ledger.ProjectID) (*labor.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// ListProjects returns every project ordered by ID.
func (m *Memory) ListProjects(_ context.Context) ([]labor.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]labor.Project, 0, len(m.projects))
	for _, p := range m.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) ProjectBudget(_ context.Context, id ledger.ProjectID) (decimal.Decimal, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[id]
	if !ok || !p.HasBudget {
		return decimal.Zero, false, nil
	}
	return p.Budget, true, nil
}

// =============================================================================
// TIME ENTRIES
// =============================================================================

func (m *Memory) InsertTimeEntry(_ context.Context, e labor.TimeEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertEntryLocked(e)
}

func (m *Memory) GetTimeEntry(_ context.Context, id ledger.TimeEntryID) (*labor.TimeEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getEntryLocked(id), nil
}

func (m *Memory) ListTimeEntries(_ context.Context, filter labor.TimeEntryFilter) ([]labor.TimeEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listEntriesLocked(filter), nil
}

func (m *Memory) UpdateTimeEntry(_ context.Context, e labor.TimeEntry, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateEntryLocked(e, expectedVersion)
}

func (m *Memory) DeleteTimeEntry(_ context.Context, id ledger.TimeEntryID, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteEntryLocked(id, expectedVersion)
}

func (s *state) insertEntryLocked(e labor.TimeEntry) error {
	if _, ok := s.entries[e.ID]; ok {
		return ledger.ErrDuplicate
	}
	s.entries[e.ID] = e
	return nil
}

func (s *state) getEntryLocked(id ledger.TimeEntryID) *labor.TimeEntry {
	e, ok := s.entries[id]
	if !ok {
		return nil
	}
	return &e
}

func (s *state) listEntriesLocked(filter labor.TimeEntryFilter) []labor.TimeEntry {
	out := []labor.TimeEntry{}
	for _, e := range s.entries {
		if filter.Matches(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *state) updateEntryLocked(e labor.TimeEntry, expectedVersion int64) error {
	cur, ok := s.entries[e.ID]
	if !ok {
		return ledger.NotFound("time entry", string(e.ID))
	}
	if cur.Version != expectedVersion {
		return ledger.ErrConcurrentModification
	}
	e.Version = expectedVersion + 1
	e.CreatedAt = cur.CreatedAt
	s.entries[e.ID] = e
	return nil
}

func (s *state) deleteEntryLocked(id ledger.TimeEntryID, expectedVersion int64) error {
	cur, ok := s.entries[id]
	if !ok {
		return ledger.NotFound("time entry", string(id))
	}
	if cur.Version != expectedVersion {
		return ledger.ErrConcurrentModification
	}
	delete(s.entries, id)
	return nil
}

// =============================================================================
// LEDGER - Append-only
// =============================================================================

func (m *Memory) Append(_ context.Context, rec ledger.ExpenseRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(rec)
}

func (m *Memory) Query(_ context.Context, filter ledger.ExpenseFilter) ([]ledger.ExpenseRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.queryLocked(filter), nil
}

func (m *Memory) GetRecord(_ context.Context, id ledger.RecordID) (*ledger.ExpenseRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getRecordLocked(id), nil
}

func (m *Memory) IsReversed(_ context.Context, id ledger.RecordID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.reversed[id]
	return ok, nil
}

func (s *state) appendLocked(rec ledger.ExpenseRecord) error {
	if _, ok := s.recordIdx[rec.ID]; ok {
		return ledger.ErrDuplicate
	}
	if rec.ReversesID != "" {
		if _, ok := s.reversed[rec.ReversesID]; ok {
			return ledger.ErrDuplicate
		}
	}

	// Binary search for insertion point by (CreatedAt, ID)
	i := sort.Search(len(s.records), func(i int) bool {
		r := s.records[i]
		if !r.CreatedAt.Equal(rec.CreatedAt) {
			return r.CreatedAt.After(rec.CreatedAt)
		}
		return r.ID > rec.ID
	})
	s.records = append(s.records, ledger.ExpenseRecord{})
	copy(s.records[i+1:], s.records[i:])
	s.records[i] = rec
	for j := i; j < len(s.records); j++ {
		s.recordIdx[s.records[j].ID] = j
	}

	if rec.ReversesID != "" {
		s.reversed[rec.ReversesID] = rec.ID
	}
	return nil
}

func (s *state) queryLocked(filter ledger.ExpenseFilter) []ledger.ExpenseRecord {
	out := []ledger.ExpenseRecord{}
	for _, r := range s.records {
		if filter.Matches(r) {
			out = append(out, r)
		}
	}
	return out
}

func (s *state) getRecordLocked(id ledger.RecordID) *ledger.ExpenseRecord {
	i, ok := s.recordIdx[id]
	if !ok {
		return nil
	}
	r := s.records[i]
	return &r
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

func (m *Memory) SaveSnapshot(_ context.Context, snap ledger.CostBasis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[snap.ProjectID] = snap
	return nil
}

func (m *Memory) LatestSnapshot(_ context.Context, id ledger.ProjectID) (*ledger.CostBasis, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snapshots[id]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(_ context.Context, fn func(labor.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()

	if err := fn(&txMemoryView{parent: tm}); err != nil {
		tm.state = snapshot
		return err
	}
	return nil
}

// snapshot copies the mutable parts written inside a transaction.
func (tm *TxMemory) snapshot() state {
	s := tm.state

	s.entries = make(map[ledger.TimeEntryID]labor.TimeEntry, len(tm.entries))
	for k, v := range tm.entries {
		s.entries[k] = v
	}
	s.records = append([]ledger.ExpenseRecord(nil), tm.records...)
	s.recordIdx = make(map[ledger.RecordID]int, len(tm.recordIdx))
	for k, v := range tm.recordIdx {
		s.recordIdx[k] = v
	}
	s.reversed = make(map[ledger.RecordID]ledger.RecordID, len(tm.reversed))
	for k, v := range tm.reversed {
		s.reversed[k] = v
	}
	return s
}

// txMemoryView runs with the parent's lock already held.
type txMemoryView struct {
	parent *TxMemory
}

func (tv *txMemoryView) InsertTimeEntry(_ context.Context, e labor.TimeEntry) error {
	return tv.parent.insertEntryLocked(e)
}

func (tv *txMemoryView) GetTimeEntry(_ context.Context, id ledger.TimeEntryID) (*labor.TimeEntry, error) {
	return tv.parent.getEntryLocked(id), nil
}

func (tv *txMemoryView) ListTimeEntries(_ context.Context, filter labor.TimeEntryFilter) ([]labor.TimeEntry, error) {
	return tv.parent.listEntriesLocked(filter), nil
}

func (tv *txMemoryView) UpdateTimeEntry(_ context.Context, e labor.TimeEntry, expectedVersion int64) error {
	return tv.parent.updateEntryLocked(e, expectedVersion)
}

func (tv *txMemoryView) DeleteTimeEntry(_ context.Context, id ledger.TimeEntryID, expectedVersion int64) error {
	return tv.parent.deleteEntryLocked(id, expectedVersion)
}

func (tv *txMemoryView) Append(_ context.Context, rec ledger.ExpenseRecord) error {
	return tv.parent.appendLocked(rec)
}

func (tv *txMemoryView) Query(_ context.Context, filter ledger.ExpenseFilter) ([]ledger.ExpenseRecord, error) {
	return tv.parent.queryLocked(filter), nil
}

func (tv *txMemoryView) GetRecord(_ context.Context, id ledger.RecordID) (*ledger.ExpenseRecord, error) {
	return tv.parent.getRecordLocked(id), nil
}

func (tv *txMemoryView) IsReversed(_ context.Context, id ledger.RecordID) (bool, error) {
	_, ok := tv.parent.reversed[id]
	return ok, nil
}
