package core

import (
	"context"
	"fmt"

	"experimentcore/pkg/domain"
)

// NewValidationConsistencyRule blocks commits that leave an experiment with a
// definite validation outcome while its status is anything but concluded.
func NewValidationConsistencyRule() Rule {
	return validationConsistencyRule{}
}

type validationConsistencyRule struct{}

func (validationConsistencyRule) Name() string { return "validation_consistency" }

func (validationConsistencyRule) Evaluate(_ context.Context, _ RuleView, changes []Change) (Result, error) {
	res := Result{}
	for _, change := range changes {
		if change.Entity != EntityExperiment {
			continue
		}
		experiment, ok := change.After.(Experiment)
		if !ok {
			continue
		}
		if experiment.Validation != ValidationInTest && experiment.Status != StatusConcluded {
			res.Violations = append(res.Violations, Violation{
				Rule:     "validation_consistency",
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("experiment %s has outcome %s while status is %s", experiment.ID, experiment.Validation, experiment.Status),
				Entity:   EntityExperiment,
				EntityID: experiment.ID,
			})
		}
	}
	return res, nil
}

var _ domain.Rule = validationConsistencyRule{}
