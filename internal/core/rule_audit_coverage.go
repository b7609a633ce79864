package core

import (
	"context"
	"fmt"
)

// NewAuditCoverageRule warns when a transaction mutates an experiment
// without appending any audit entry. The warning surfaces code paths that
// bypass the controller; it never blocks the commit.
func NewAuditCoverageRule() Rule {
	return auditCoverageRule{}
}

type auditCoverageRule struct{}

func (auditCoverageRule) Name() string { return "audit_coverage" }

func (auditCoverageRule) Evaluate(_ context.Context, _ RuleView, changes []Change) (Result, error) {
	appended := false
	mutated := map[string]bool{}
	for _, change := range changes {
		switch change.Entity {
		case EntityAuditEntry:
			appended = true
		case EntityExperiment:
			if experiment, ok := change.After.(Experiment); ok {
				mutated[experiment.ID] = true
			}
		}
	}
	res := Result{}
	if len(mutated) > 0 && !appended {
		for id := range mutated {
			res.Violations = append(res.Violations, Violation{
				Rule:     "audit_coverage",
				Severity: SeverityWarn,
				Message:  fmt.Sprintf("experiment %s mutated without an audit entry in the same transaction", id),
				Entity:   EntityExperiment,
				EntityID: id,
			})
		}
	}
	return res, nil
}
