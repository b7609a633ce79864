// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"experimentcore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Experiment aliases domain.Experiment for in-memory persistence operations.
	Experiment = domain.Experiment
	// Evidence aliases domain.Evidence.
	Evidence = domain.Evidence
	// Comment aliases domain.Comment.
	Comment = domain.Comment
	// AuditEntry aliases domain.AuditEntry.
	AuditEntry = domain.AuditEntry
	// Template aliases domain.Template.
	Template = domain.Template
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	experiments map[string]Experiment
	evidence    map[string]Evidence
	comments    map[string]Comment
	audit       map[string]AuditEntry
	templates   map[string]Template
	auditSeq    int64
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Experiments map[string]Experiment `json:"experiments"`
	Evidence    map[string]Evidence   `json:"evidence"`
	Comments    map[string]Comment    `json:"comments"`
	Audit       map[string]AuditEntry `json:"audit"`
	Templates   map[string]Template   `json:"templates"`
	AuditSeq    int64                 `json:"audit_seq"`
}

func newMemoryState() memoryState {
	return memoryState{
		experiments: make(map[string]Experiment),
		evidence:    make(map[string]Evidence),
		comments:    make(map[string]Comment),
		audit:       make(map[string]AuditEntry),
		templates:   make(map[string]Template),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	snap := Snapshot{
		Experiments: make(map[string]Experiment, len(state.experiments)),
		Evidence:    make(map[string]Evidence, len(state.evidence)),
		Comments:    make(map[string]Comment, len(state.comments)),
		Audit:       make(map[string]AuditEntry, len(state.audit)),
		Templates:   make(map[string]Template, len(state.templates)),
		AuditSeq:    state.auditSeq,
	}
	for k, v := range state.experiments {
		snap.Experiments[k] = cloneExperiment(v)
	}
	for k, v := range state.evidence {
		snap.Evidence[k] = v
	}
	for k, v := range state.comments {
		snap.Comments[k] = v
	}
	for k, v := range state.audit {
		snap.Audit[k] = v
	}
	for k, v := range state.templates {
		snap.Templates[k] = cloneTemplate(v)
	}
	return snap
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Experiments {
		state.experiments[k] = cloneExperiment(v)
	}
	for k, v := range s.Evidence {
		state.evidence[k] = v
	}
	for k, v := range s.Comments {
		state.comments[k] = v
	}
	for k, v := range s.Audit {
		state.audit[k] = v
	}
	for k, v := range s.Templates {
		state.templates[k] = cloneTemplate(v)
	}
	state.auditSeq = s.AuditSeq
	for _, entry := range state.audit {
		if entry.Seq > state.auditSeq {
			state.auditSeq = entry.Seq
		}
	}
	return state
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.experiments {
		cloned.experiments[k] = cloneExperiment(v)
	}
	for k, v := range s.evidence {
		cloned.evidence[k] = v
	}
	for k, v := range s.comments {
		cloned.comments[k] = v
	}
	for k, v := range s.audit {
		cloned.audit[k] = v
	}
	for k, v := range s.templates {
		cloned.templates[k] = cloneTemplate(v)
	}
	cloned.auditSeq = s.auditSeq
	return cloned
}

func cloneExperiment(e Experiment) Experiment {
	cp := e
	cp.Links = append([]string(nil), e.Links...)
	if e.TargetValue != nil {
		v := *e.TargetValue
		cp.TargetValue = &v
	}
	if e.ObservedValue != nil {
		v := *e.ObservedValue
		cp.ObservedValue = &v
	}
	if e.StartDate != nil {
		t := *e.StartDate
		cp.StartDate = &t
	}
	if e.EndDate != nil {
		t := *e.EndDate
		cp.EndDate = &t
	}
	return cp
}

func cloneTemplate(t Template) Template {
	cp := t
	cp.Checklist = append([]domain.ChecklistItem(nil), t.Checklist...)
	if t.TargetValue != nil {
		v := *t.TargetValue
		cp.TargetValue = &v
	}
	return cp
}

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string {
	return uuid.NewString()
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// SetNowFunc overrides the time provider. Intended for tests.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

// transaction represents a mutation set applied to the store state.
type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

// transactionView exposes a read-only snapshot of the transactional state to rules.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// ListExperiments returns all experiments within the snapshot.
func (v transactionView) ListExperiments() []Experiment {
	out := make([]Experiment, 0, len(v.state.experiments))
	for _, e := range v.state.experiments {
		out = append(out, cloneExperiment(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListEvidence returns the evidence attached to one experiment, oldest first.
func (v transactionView) ListEvidence(experimentID string) []Evidence {
	out := make([]Evidence, 0)
	for _, ev := range v.state.evidence {
		if ev.ExperimentID == experimentID {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ListComments returns the comments of one experiment, oldest first.
func (v transactionView) ListComments(experimentID string) []Comment {
	out := make([]Comment, 0)
	for _, c := range v.state.comments {
		if c.ExperimentID == experimentID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ListAuditEntries returns the audit trail of one experiment ordered by
// append sequence, oldest first.
func (v transactionView) ListAuditEntries(experimentID string) []AuditEntry {
	out := make([]AuditEntry, 0)
	for _, entry := range v.state.audit {
		if entry.ExperimentID == experimentID {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// ListTemplates returns all templates.
func (v transactionView) ListTemplates() []Template {
	out := make([]Template, 0, len(v.state.templates))
	for _, t := range v.state.templates {
		out = append(out, cloneTemplate(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// FindExperiment retrieves an experiment by ID from the snapshot.
func (v transactionView) FindExperiment(id string) (Experiment, bool) {
	e, ok := v.state.experiments[id]
	if !ok {
		return Experiment{}, false
	}
	return cloneExperiment(e), true
}

// FindEvidence retrieves an evidence record by ID from the snapshot.
func (v transactionView) FindEvidence(id string) (Evidence, bool) {
	ev, ok := v.state.evidence[id]
	return ev, ok
}

// FindTemplate retrieves a template by ID from the snapshot.
func (v transactionView) FindTemplate(id string) (Template, bool) {
	t, ok := v.state.templates[id]
	if !ok {
		return Template{}, false
	}
	return cloneTemplate(t), true
}

// RunInTransaction executes fn within a transactional copy of the store state.
// The copy replaces the committed state only when fn succeeds and no blocking
// rule violation is raised, so audit entries and the mutations they describe
// commit as one unit.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	return fn(newTransactionView(&snapshot))
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot exposes the transactional state for gate checks within fn.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// FindExperiment retrieves an experiment from the transactional state.
func (tx *transaction) FindExperiment(id string) (Experiment, bool) {
	e, ok := tx.state.experiments[id]
	if !ok {
		return Experiment{}, false
	}
	return cloneExperiment(e), true
}

// FindEvidence retrieves an evidence record from the transactional state.
func (tx *transaction) FindEvidence(id string) (Evidence, bool) {
	ev, ok := tx.state.evidence[id]
	return ev, ok
}

// FindTemplate retrieves a template from the transactional state.
func (tx *transaction) FindTemplate(id string) (Template, bool) {
	t, ok := tx.state.templates[id]
	if !ok {
		return Template{}, false
	}
	return cloneTemplate(t), true
}

// CreateExperiment stores a new experiment within the transaction.
func (tx *transaction) CreateExperiment(e Experiment) (Experiment, error) {
	if e.ID == "" {
		e.ID = tx.store.newID()
	}
	if _, exists := tx.state.experiments[e.ID]; exists {
		return Experiment{}, fmt.Errorf("experiment %q already exists", e.ID)
	}
	e.CreatedAt = tx.now
	e.UpdatedAt = tx.now
	e.Version = 1
	tx.state.experiments[e.ID] = cloneExperiment(e)
	tx.recordChange(Change{Entity: domain.EntityExperiment, Action: domain.ActionCreate, After: cloneExperiment(e)})
	return cloneExperiment(e), nil
}

// UpdateExperiment mutates an experiment using the provided mutator function.
func (tx *transaction) UpdateExperiment(id string, mutator func(*Experiment) error) (Experiment, error) {
	current, ok := tx.state.experiments[id]
	if !ok {
		return Experiment{}, domain.NotFoundError{Entity: domain.EntityExperiment, ID: id}
	}
	before := cloneExperiment(current)
	if err := mutator(&current); err != nil {
		return Experiment{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	current.Version = before.Version + 1
	tx.state.experiments[id] = cloneExperiment(current)
	tx.recordChange(Change{Entity: domain.EntityExperiment, Action: domain.ActionUpdate, Before: before, After: cloneExperiment(current)})
	return cloneExperiment(current), nil
}

// CreateEvidence stores a new evidence record.
func (tx *transaction) CreateEvidence(ev Evidence) (Evidence, error) {
	if ev.ID == "" {
		ev.ID = tx.store.newID()
	}
	if _, exists := tx.state.evidence[ev.ID]; exists {
		return Evidence{}, fmt.Errorf("evidence %q already exists", ev.ID)
	}
	if _, ok := tx.state.experiments[ev.ExperimentID]; !ok {
		return Evidence{}, domain.NotFoundError{Entity: domain.EntityExperiment, ID: ev.ExperimentID}
	}
	ev.CreatedAt = tx.now
	ev.UpdatedAt = tx.now
	tx.state.evidence[ev.ID] = ev
	tx.recordChange(Change{Entity: domain.EntityEvidence, Action: domain.ActionCreate, After: ev})
	return ev, nil
}

// DeleteEvidence removes an evidence record. No cascade to other entities.
func (tx *transaction) DeleteEvidence(id string) error {
	current, ok := tx.state.evidence[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityEvidence, ID: id}
	}
	delete(tx.state.evidence, id)
	tx.recordChange(Change{Entity: domain.EntityEvidence, Action: domain.ActionDelete, Before: current})
	return nil
}

// CreateComment stores a new comment.
func (tx *transaction) CreateComment(c Comment) (Comment, error) {
	if c.ID == "" {
		c.ID = tx.store.newID()
	}
	if _, exists := tx.state.comments[c.ID]; exists {
		return Comment{}, fmt.Errorf("comment %q already exists", c.ID)
	}
	if _, ok := tx.state.experiments[c.ExperimentID]; !ok {
		return Comment{}, domain.NotFoundError{Entity: domain.EntityExperiment, ID: c.ExperimentID}
	}
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	tx.state.comments[c.ID] = c
	tx.recordChange(Change{Entity: domain.EntityComment, Action: domain.ActionCreate, After: c})
	return c, nil
}

// AppendAuditEntry records an immutable audit entry. Entries are independent
// appends; the log itself is never read-modify-written.
func (tx *transaction) AppendAuditEntry(entry AuditEntry) (AuditEntry, error) {
	if entry.ID == "" {
		entry.ID = tx.store.newID()
	}
	if _, exists := tx.state.audit[entry.ID]; exists {
		return AuditEntry{}, fmt.Errorf("audit entry %q already exists", entry.ID)
	}
	tx.state.auditSeq++
	entry.Seq = tx.state.auditSeq
	entry.CreatedAt = tx.now
	entry.UpdatedAt = tx.now
	tx.state.audit[entry.ID] = entry
	tx.recordChange(Change{Entity: domain.EntityAuditEntry, Action: domain.ActionCreate, After: entry})
	return entry, nil
}

// CreateTemplate stores a new template record.
func (tx *transaction) CreateTemplate(t Template) (Template, error) {
	if t.ID == "" {
		t.ID = tx.store.newID()
	}
	if _, exists := tx.state.templates[t.ID]; exists {
		return Template{}, fmt.Errorf("template %q already exists", t.ID)
	}
	t.CreatedAt = tx.now
	t.UpdatedAt = tx.now
	tx.state.templates[t.ID] = cloneTemplate(t)
	tx.recordChange(Change{Entity: domain.EntityTemplate, Action: domain.ActionCreate, After: cloneTemplate(t)})
	return cloneTemplate(t), nil
}

// UpdateTemplate mutates an existing template record.
func (tx *transaction) UpdateTemplate(id string, mutator func(*Template) error) (Template, error) {
	current, ok := tx.state.templates[id]
	if !ok {
		return Template{}, domain.NotFoundError{Entity: domain.EntityTemplate, ID: id}
	}
	before := cloneTemplate(current)
	if err := mutator(&current); err != nil {
		return Template{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.templates[id] = cloneTemplate(current)
	tx.recordChange(Change{Entity: domain.EntityTemplate, Action: domain.ActionUpdate, Before: before, After: cloneTemplate(current)})
	return cloneTemplate(current), nil
}

// Read helpers ---------------------------------------------------------------

// GetExperiment retrieves an experiment by ID from committed state.
func (s *Store) GetExperiment(id string) (Experiment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.state.experiments[id]
	if !ok {
		return Experiment{}, false
	}
	return cloneExperiment(e), true
}

// ListExperiments returns all experiments from committed state.
func (s *Store) ListExperiments() []Experiment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListExperiments()
}

// ListEvidence returns the evidence attached to an experiment.
func (s *Store) ListEvidence(experimentID string) []Evidence {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListEvidence(experimentID)
}

// ListComments returns the comments of an experiment.
func (s *Store) ListComments(experimentID string) []Comment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListComments(experimentID)
}

// ListAuditEntries returns the audit trail of an experiment, oldest first.
func (s *Store) ListAuditEntries(experimentID string) []AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListAuditEntries(experimentID)
}

// ListTemplates returns all templates.
func (s *Store) ListTemplates() []Template {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListTemplates()
}
