/*
memory.go - In-memory store

PURPOSE:
  Reference implementation of engine.TxStore backed by maps. Used by tests
  and the demo server. Transactions are simulated with a full snapshot:
  WithTx copies the maps, runs fn, and restores the copy on error. Correct
  for single-process use under the store mutex; the SQLite store is the
  real thing.
*/
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/avincentLoyco/yalty-backend-sub001/engine"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type Memory struct {
	mu sync.RWMutex

	entries     map[string]*engine.BalanceEntry
	assignments map[string]*engine.PolicyAssignment
	policies    map[string]*engine.TimeOffPolicy
	categories  map[string]*engine.Category
	timeOffs    map[string]*engine.TimeOff
	runs        map[string]*engine.RecomputeRun

	// Designated reset policy id, by category.
	resetPolicies map[string]string
}

func NewMemory() *Memory {
	return &Memory{
		entries:       map[string]*engine.BalanceEntry{},
		assignments:   map[string]*engine.PolicyAssignment{},
		policies:      map[string]*engine.TimeOffPolicy{},
		categories:    map[string]*engine.Category{},
		timeOffs:      map[string]*engine.TimeOff{},
		runs:          map[string]*engine.RecomputeRun{},
		resetPolicies: map[string]string{},
	}
}

var (
	_ engine.TxStore  = (*Memory)(nil)
	_ engine.RunStore = (*Memory)(nil)
)

// =============================================================================
// TRANSACTIONS - snapshot and restore
// =============================================================================

// WithTx runs fn under the store lock against a lock-free view; on error
// every map is restored from a pre-fn snapshot. Run records are exempt
// from rollback on purpose: failed runs must stay observable.
func (m *Memory) WithTx(ctx context.Context, fn func(engine.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(txView{m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memSnapshot struct {
	entries     map[string]*engine.BalanceEntry
	assignments map[string]*engine.PolicyAssignment
	policies    map[string]*engine.TimeOffPolicy
	categories  map[string]*engine.Category
	timeOffs    map[string]*engine.TimeOff
	resets      map[string]string
}

func (m *Memory) snapshot() memSnapshot {
	snap := memSnapshot{
		entries:     make(map[string]*engine.BalanceEntry, len(m.entries)),
		assignments: make(map[string]*engine.PolicyAssignment, len(m.assignments)),
		policies:    make(map[string]*engine.TimeOffPolicy, len(m.policies)),
		categories:  make(map[string]*engine.Category, len(m.categories)),
		timeOffs:    make(map[string]*engine.TimeOff, len(m.timeOffs)),
		resets:      make(map[string]string, len(m.resetPolicies)),
	}
	for categoryID, policyID := range m.resetPolicies {
		snap.resets[categoryID] = policyID
	}
	for id, e := range m.entries {
		c := *e
		snap.entries[id] = &c
	}
	for id, a := range m.assignments {
		c := *a
		snap.assignments[id] = &c
	}
	for id, p := range m.policies {
		c := *p
		snap.policies[id] = &c
	}
	for id, cat := range m.categories {
		c := *cat
		snap.categories[id] = &c
	}
	for id, t := range m.timeOffs {
		c := *t
		snap.timeOffs[id] = &c
	}
	return snap
}

func (m *Memory) restore(snap memSnapshot) {
	m.entries = snap.entries
	m.assignments = snap.assignments
	m.policies = snap.policies
	m.categories = snap.categories
	m.timeOffs = snap.timeOffs
	m.resetPolicies = snap.resets
}

// txView bypasses the outer lock; it only exists inside WithTx.
type txView struct{ m *Memory }

// =============================================================================
// ENTRY STORE
// =============================================================================

func (m *Memory) CreateEntry(ctx context.Context, e *engine.BalanceEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createEntry(e)
}

func (m *Memory) createEntry(e *engine.BalanceEntry) error {
	c := *e
	m.entries[e.ID] = &c
	return nil
}

func (m *Memory) UpdateEntry(ctx context.Context, e *engine.BalanceEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createEntry(e)
}

func (m *Memory) DeleteEntry(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}

func (m *Memory) GetEntry(ctx context.Context, id string) (*engine.BalanceEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getEntry(id), nil
}

func (m *Memory) getEntry(id string) *engine.BalanceEntry {
	e, ok := m.entries[id]
	if !ok {
		return nil
	}
	c := *e
	return &c
}

func (m *Memory) EntriesByCategory(ctx context.Context, employeeID, categoryID string) ([]engine.BalanceEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entriesByCategory(employeeID, categoryID, false), nil
}

func (m *Memory) EntriesBeingProcessed(ctx context.Context, employeeID, categoryID string) ([]engine.BalanceEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entriesByCategory(employeeID, categoryID, true), nil
}

func (m *Memory) entriesByCategory(employeeID, categoryID string, flaggedOnly bool) []engine.BalanceEntry {
	var out []engine.BalanceEntry
	for _, e := range m.entries {
		if e.EmployeeID != employeeID || e.CategoryID != categoryID {
			continue
		}
		if flaggedOnly && !e.BeingProcessed {
			continue
		}
		out = append(out, *e)
	}
	engine.SortEntries(out)
	return out
}

// =============================================================================
// ASSIGNMENT STORE
// =============================================================================

func (m *Memory) SaveAssignment(ctx context.Context, a *engine.PolicyAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *a
	m.assignments[a.ID] = &c
	return nil
}

func (m *Memory) DeleteAssignment(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.assignments, id)
	return nil
}

func (m *Memory) GetAssignment(ctx context.Context, id string) (*engine.PolicyAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.assignments[id]
	if !ok {
		return nil, nil
	}
	c := *a
	return &c, nil
}

func (m *Memory) AssignmentsByEmployee(ctx context.Context, employeeID string, kind engine.ResourceKind, categoryID string) ([]engine.PolicyAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []engine.PolicyAssignment
	for _, a := range m.assignments {
		if a.EmployeeID != employeeID || a.Kind != kind {
			continue
		}
		if categoryID != "" && a.CategoryID != categoryID {
			continue
		}
		out = append(out, *a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EffectiveAt.Before(out[j].EffectiveAt)
	})
	return out, nil
}

// =============================================================================
// POLICY / CATEGORY STORE
// =============================================================================

func (m *Memory) SavePolicy(ctx context.Context, p *engine.TimeOffPolicy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *p
	m.policies[p.ID] = &c
	if p.Reset {
		m.resetPolicies[p.CategoryID] = p.ID
	}
	return nil
}

func (m *Memory) GetPolicy(ctx context.Context, id string) (*engine.TimeOffPolicy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.policies[id]
	if !ok {
		return nil, nil
	}
	c := *p
	return &c, nil
}

func (m *Memory) ResetPolicy(ctx context.Context, categoryID string) (*engine.TimeOffPolicy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.resetPolicies[categoryID]
	if !ok {
		return nil, nil
	}
	p, ok := m.policies[id]
	if !ok {
		return nil, nil
	}
	c := *p
	return &c, nil
}

func (m *Memory) SaveCategory(ctx context.Context, c *engine.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cc := *c
	m.categories[c.ID] = &cc
	return nil
}

func (m *Memory) GetCategory(ctx context.Context, id string) (*engine.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.categories[id]
	if !ok {
		return nil, nil
	}
	cc := *c
	return &cc, nil
}

func (m *Memory) Categories(ctx context.Context) ([]engine.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []engine.Category
	for _, c := range m.categories {
		out = append(out, *c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// =============================================================================
// TIME-OFF STORE
// =============================================================================

func (m *Memory) SaveTimeOff(ctx context.Context, t *engine.TimeOff) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *t
	m.timeOffs[t.ID] = &c
	return nil
}

func (m *Memory) DeleteTimeOff(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.timeOffs, id)
	return nil
}

func (m *Memory) GetTimeOff(ctx context.Context, id string) (*engine.TimeOff, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.timeOffs[id]
	if !ok {
		return nil, nil
	}
	c := *t
	return &c, nil
}

func (m *Memory) TimeOffsByEmployee(ctx context.Context, employeeID, categoryID string) ([]engine.TimeOff, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []engine.TimeOff
	for _, t := range m.timeOffs {
		if t.EmployeeID != employeeID {
			continue
		}
		if categoryID != "" && t.CategoryID != categoryID {
			continue
		}
		out = append(out, *t)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

// =============================================================================
// RUN STORE
// =============================================================================

func (m *Memory) SaveRun(ctx context.Context, run *engine.RecomputeRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *run
	m.runs[run.ID] = &c
	return nil
}

func (m *Memory) RunsByStatus(ctx context.Context, status engine.RunStatus) ([]engine.RecomputeRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []engine.RecomputeRun
	for _, r := range m.runs {
		if r.Status == status {
			out = append(out, *r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

// =============================================================================
// TX VIEW - lock-free delegates used inside WithTx
// =============================================================================

func (v txView) CreateEntry(ctx context.Context, e *engine.BalanceEntry) error { return v.m.createEntry(e) }
func (v txView) UpdateEntry(ctx context.Context, e *engine.BalanceEntry) error { return v.m.createEntry(e) }
func (v txView) DeleteEntry(ctx context.Context, id string) error {
	delete(v.m.entries, id)
	return nil
}
func (v txView) GetEntry(ctx context.Context, id string) (*engine.BalanceEntry, error) {
	return v.m.getEntry(id), nil
}
func (v txView) EntriesByCategory(ctx context.Context, employeeID, categoryID string) ([]engine.BalanceEntry, error) {
	return v.m.entriesByCategory(employeeID, categoryID, false), nil
}
func (v txView) EntriesBeingProcessed(ctx context.Context, employeeID, categoryID string) ([]engine.BalanceEntry, error) {
	return v.m.entriesByCategory(employeeID, categoryID, true), nil
}

func (v txView) SaveAssignment(ctx context.Context, a *engine.PolicyAssignment) error {
	c := *a
	v.m.assignments[a.ID] = &c
	return nil
}
func (v txView) DeleteAssignment(ctx context.Context, id string) error {
	delete(v.m.assignments, id)
	return nil
}
func (v txView) GetAssignment(ctx context.Context, id string) (*engine.PolicyAssignment, error) {
	a, ok := v.m.assignments[id]
	if !ok {
		return nil, nil
	}
	c := *a
	return &c, nil
}
func (v txView) AssignmentsByEmployee(ctx context.Context, employeeID string, kind engine.ResourceKind, categoryID string) ([]engine.PolicyAssignment, error) {
	var out []engine.PolicyAssignment
	for _, a := range v.m.assignments {
		if a.EmployeeID != employeeID || a.Kind != kind {
			continue
		}
		if categoryID != "" && a.CategoryID != categoryID {
			continue
		}
		out = append(out, *a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EffectiveAt.Before(out[j].EffectiveAt)
	})
	return out, nil
}

func (v txView) SavePolicy(ctx context.Context, p *engine.TimeOffPolicy) error {
	c := *p
	v.m.policies[p.ID] = &c
	if p.Reset {
		v.m.resetPolicies[p.CategoryID] = p.ID
	}
	return nil
}
func (v txView) GetPolicy(ctx context.Context, id string) (*engine.TimeOffPolicy, error) {
	p, ok := v.m.policies[id]
	if !ok {
		return nil, nil
	}
	c := *p
	return &c, nil
}
func (v txView) ResetPolicy(ctx context.Context, categoryID string) (*engine.TimeOffPolicy, error) {
	id, ok := v.m.resetPolicies[categoryID]
	if !ok {
		return nil, nil
	}
	p, ok := v.m.policies[id]
	if !ok {
		return nil, nil
	}
	c := *p
	return &c, nil
}
func (v txView) SaveCategory(ctx context.Context, c *engine.Category) error {
	cc := *c
	v.m.categories[c.ID] = &cc
	return nil
}
func (v txView) GetCategory(ctx context.Context, id string) (*engine.Category, error) {
	c, ok := v.m.categories[id]
	if !ok {
		return nil, nil
	}
	cc := *c
	return &cc, nil
}
func (v txView) Categories(ctx context.Context) ([]engine.Category, error) {
	var out []engine.Category
	for _, c := range v.m.categories {
		out = append(out, *c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (v txView) SaveTimeOff(ctx context.Context, t *engine.TimeOff) error {
	c := *t
	v.m.timeOffs[t.ID] = &c
	return nil
}
func (v txView) DeleteTimeOff(ctx context.Context, id string) error {
	delete(v.m.timeOffs, id)
	return nil
}
func (v txView) GetTimeOff(ctx context.Context, id string) (*engine.TimeOff, error) {
	t, ok := v.m.timeOffs[id]
	if !ok {
		return nil, nil
	}
	c := *t
	return &c, nil
}
func (v txView) TimeOffsByEmployee(ctx context.Context, employeeID, categoryID string) ([]engine.TimeOff, error) {
	var out []engine.TimeOff
	for _, t := range v.m.timeOffs {
		if t.EmployeeID != employeeID {
			continue
		}
		if categoryID != "" && t.CategoryID != categoryID {
			continue
		}
		out = append(out, *t)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}
