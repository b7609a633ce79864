package core

import "experimentcore/pkg/domain"

type (
	EntityType         = domain.EntityType
	Status             = domain.Status
	Validation         = domain.Validation
	ExperimentType     = domain.ExperimentType
	Channel            = domain.Channel
	EvidenceKind       = domain.EvidenceKind
	AuditAction        = domain.AuditAction
	Severity           = domain.Severity
	Base               = domain.Base
	Experiment         = domain.Experiment
	Evidence           = domain.Evidence
	Comment            = domain.Comment
	AuditEntry         = domain.AuditEntry
	Template           = domain.Template
	ChecklistItem      = domain.ChecklistItem
	Actor              = domain.Actor
	Role               = domain.Role
	Capabilities       = domain.Capabilities
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
	Rule               = domain.Rule
	RuleView           = domain.RuleView
	RulesEngine        = domain.RulesEngine
	Filter             = domain.Filter
	Sort               = domain.Sort
	Page               = domain.Page
	ExperimentPage     = domain.ExperimentPage
)

const (
	EntityExperiment = domain.EntityExperiment
	EntityEvidence   = domain.EntityEvidence
	EntityComment    = domain.EntityComment
	EntityAuditEntry = domain.EntityAuditEntry
	EntityTemplate   = domain.EntityTemplate
)

const (
	StatusPlanned   = domain.StatusPlanned
	StatusRunning   = domain.StatusRunning
	StatusPaused    = domain.StatusPaused
	StatusConcluded = domain.StatusConcluded
	StatusCanceled  = domain.StatusCanceled
)

const (
	ValidationInTest       = domain.ValidationInTest
	ValidationGood         = domain.ValidationGood
	ValidationBad          = domain.ValidationBad
	ValidationInconclusive = domain.ValidationInconclusive
)

const (
	AuditCreated           = domain.AuditCreated
	AuditEdited            = domain.AuditEdited
	AuditStatusChanged     = domain.AuditStatusChanged
	AuditValidationChanged = domain.AuditValidationChanged
	AuditArchived          = domain.AuditArchived
	AuditCommentAdded      = domain.AuditCommentAdded
	AuditDuplicated        = domain.AuditDuplicated
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)

const (
	RoleAdmin   = domain.RoleAdmin
	RoleManager = domain.RoleManager
	RoleViewer  = domain.RoleViewer
)

// NewRulesEngine constructs an empty rules engine.
func NewRulesEngine() *RulesEngine { return domain.NewRulesEngine() }
