package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope. Audit entries appended here commit or
// roll back with the mutations they describe.
type Transaction interface {
	Snapshot() TransactionView
	CreateExperiment(Experiment) (Experiment, error)
	UpdateExperiment(id string, mutator func(*Experiment) error) (Experiment, error)
	CreateEvidence(Evidence) (Evidence, error)
	DeleteEvidence(id string) error
	CreateComment(Comment) (Comment, error)
	AppendAuditEntry(AuditEntry) (AuditEntry, error)
	CreateTemplate(Template) (Template, error)
	UpdateTemplate(id string, mutator func(*Template) error) (Template, error)
	FindExperiment(id string) (Experiment, bool)
	FindEvidence(id string) (Evidence, bool)
	FindTemplate(id string) (Template, bool)
}

// TransactionView provides read-only access to snapshot data for rules and
// gate checks.
type TransactionView interface {
	ListExperiments() []Experiment
	ListEvidence(experimentID string) []Evidence
	ListComments(experimentID string) []Comment
	ListAuditEntries(experimentID string) []AuditEntry
	ListTemplates() []Template
	FindExperiment(id string) (Experiment, bool)
	FindEvidence(id string) (Evidence, bool)
	FindTemplate(id string) (Template, bool)
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetExperiment(id string) (Experiment, bool)
	ListExperiments() []Experiment
	ListEvidence(experimentID string) []Evidence
	ListComments(experimentID string) []Comment
	ListAuditEntries(experimentID string) []AuditEntry
	ListTemplates() []Template
}
