// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by experimentcore.
package domain

import (
	"time"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityExperiment identifies a marketing experiment record.
	EntityExperiment EntityType = "experiment"
	// EntityEvidence identifies an evidence attachment record.
	EntityEvidence EntityType = "evidence"
	// EntityComment identifies a comment record.
	EntityComment EntityType = "comment"
	// EntityAuditEntry identifies an audit trail record.
	EntityAuditEntry EntityType = "audit_entry"
	// EntityTemplate identifies a reusable experiment template record.
	EntityTemplate EntityType = "template"
)

// Status represents the canonical experiment lifecycle states.
type Status string

// Canonical lifecycle statuses driving transition validation and reporting.
const (
	// StatusPlanned indicates a drafted experiment not yet launched.
	StatusPlanned Status = "planned"
	// StatusRunning indicates the experiment is live.
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusConcluded Status = "concluded"
	StatusCanceled  Status = "canceled"
)

// Validation captures the qualitative verdict assigned at conclusion.
type Validation string

// Canonical validation outcomes. Everything outside concluded implies in-test.
const (
	ValidationInTest       Validation = "in_test"
	ValidationGood         Validation = "good"
	ValidationBad          Validation = "bad"
	ValidationInconclusive Validation = "inconclusive"
)

// ExperimentType classifies what the experiment varies.
type ExperimentType string

// Recognised experiment types.
const (
	TypeCreative    ExperimentType = "creative"
	TypeCopy        ExperimentType = "copy"
	TypeAudience    ExperimentType = "audience"
	TypeLandingPage ExperimentType = "landing_page"
	TypeBidBudget   ExperimentType = "bid_budget"
	TypeOther       ExperimentType = "other"
)

// Channel identifies the marketing channel the experiment runs on.
type Channel string

// Recognised channels.
const (
	ChannelPaidSocial Channel = "paid_social"
	ChannelSearch     Channel = "search"
	ChannelEmail      Channel = "email"
	ChannelOrganic    Channel = "organic"
	ChannelOther      Channel = "other"
)

// EvidenceKind distinguishes uploaded images from recorded links.
type EvidenceKind string

// Evidence kinds.
const (
	EvidenceImage EvidenceKind = "image"
	EvidenceLink  EvidenceKind = "link"
)

// AuditAction enumerates the actions captured in the audit trail.
type AuditAction string

// Audit action kinds. Values are kept in the vocabulary of the operations
// console this core serves.
const (
	AuditCreated           AuditAction = "criado"
	AuditEdited            AuditAction = "editado"
	AuditStatusChanged     AuditAction = "status_alterado"
	AuditValidationChanged AuditAction = "validacao_alterada"
	AuditArchived          AuditAction = "arquivado"
	AuditCommentAdded      AuditAction = "comentario_adicionado"
	AuditDuplicated        AuditAction = "duplicado"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// MaxReferenceLinks caps the external reference links an experiment carries.
const MaxReferenceLinks = 3

// Base bundles the identity and timestamps shared by all records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Experiment is a tracked marketing trial measuring one hypothesis against
// one metric.
type Experiment struct {
	Base
	Name              string         `json:"name"`
	OwnerID           string         `json:"owner_id"`
	ClientID          string         `json:"client_id"`
	Funnel            string         `json:"funnel"`
	Type              ExperimentType `json:"type"`
	Channel           Channel        `json:"channel"`
	Status            Status         `json:"status"`
	Validation        Validation     `json:"validation"`
	MetricKind        string         `json:"metric_kind"`
	TargetValue       *float64       `json:"target_value,omitempty"`
	ObservedValue     *float64       `json:"observed_value,omitempty"`
	Hypothesis        string         `json:"hypothesis"`
	ChangeDescription string         `json:"change_description"`
	TeamObservation   string         `json:"team_observation"`
	Notes             string         `json:"notes"`
	Learnings         string         `json:"learnings"`
	NextExperiments   string         `json:"next_experiments"`
	Links             []string       `json:"links"`
	StartDate         *time.Time     `json:"start_date,omitempty"`
	EndDate           *time.Time     `json:"end_date,omitempty"`
	Archived          bool           `json:"archived"`
	// Version increments on every committed write and backs the optional
	// optimistic-concurrency check on updates.
	Version int `json:"version"`
}

// Validate checks the required construction fields and returns a
// ValidationError naming the first missing one.
func (e Experiment) Validate() error {
	switch {
	case e.Name == "":
		return ValidationError{Field: "name", Reason: "required"}
	case e.OwnerID == "":
		return ValidationError{Field: "owner_id", Reason: "required"}
	case e.ClientID == "":
		return ValidationError{Field: "client_id", Reason: "required"}
	case e.Type == "":
		return ValidationError{Field: "type", Reason: "required"}
	case e.Channel == "":
		return ValidationError{Field: "channel", Reason: "required"}
	}
	if len(e.Links) > MaxReferenceLinks {
		return ValidationError{Field: "links", Reason: "at most three reference links"}
	}
	return nil
}

// HasReferenceLink reports whether any reference link field is non-empty.
func (e Experiment) HasReferenceLink() bool {
	for _, l := range e.Links {
		if l != "" {
			return true
		}
	}
	return false
}

// Evidence is a supporting artifact owned exclusively by one experiment.
type Evidence struct {
	Base
	ExperimentID string       `json:"experiment_id"`
	Kind         EvidenceKind `json:"kind"`
	URL          string       `json:"url"`
	Description  string       `json:"description,omitempty"`
	// BlobKey names the stored object for image evidence so removal can
	// release it. Empty for link evidence.
	BlobKey string `json:"blob_key,omitempty"`
}

// Comment is an append-only remark attached to an experiment.
type Comment struct {
	Base
	ExperimentID string `json:"experiment_id"`
	AuthorID     string `json:"author_id"`
	Text         string `json:"text"`
}

// AuditEntry is an immutable record of one action taken against an experiment.
// Seq is a store-assigned monotonic sequence so entries order deterministically
// even when several are appended within the same timestamp.
type AuditEntry struct {
	Base
	Seq          int64       `json:"seq"`
	ExperimentID string      `json:"experiment_id"`
	Action       AuditAction `json:"action"`
	Field        string      `json:"field,omitempty"`
	Before       string      `json:"before,omitempty"`
	After        string      `json:"after,omitempty"`
	ActorID      string      `json:"actor_id"`
}

// ChecklistItem is one entry of a template checklist.
type ChecklistItem struct {
	Text    string `json:"text"`
	Checked bool   `json:"checked"`
}

// Template is a reusable preset that pre-fills common experiment fields.
type Template struct {
	Base
	Name        string          `json:"name"`
	Type        ExperimentType  `json:"type,omitempty"`
	Channel     Channel         `json:"channel,omitempty"`
	Hypothesis  string          `json:"hypothesis,omitempty"`
	MetricKind  string          `json:"metric_kind,omitempty"`
	TargetValue *float64        `json:"target_value,omitempty"`
	Checklist   []ChecklistItem `json:"checklist"`
	Active      bool            `json:"active"`
}

// Validate checks template construction fields.
func (t Template) Validate() error {
	if t.Name == "" {
		return ValidationError{Field: "name", Reason: "required"}
	}
	return nil
}

// Actor identifies the collaborator issuing a command together with their role.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Role Role   `json:"role"`
}
