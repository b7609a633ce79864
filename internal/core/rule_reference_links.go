package core

import (
	"context"
	"fmt"
	"net/url"

	"experimentcore/pkg/domain"
)

// NewReferenceLinksRule blocks commits where an experiment carries more than
// the allowed number of reference links or a link that is not an absolute
// URL.
func NewReferenceLinksRule() Rule {
	return referenceLinksRule{}
}

type referenceLinksRule struct{}

func (referenceLinksRule) Name() string { return "reference_links" }

func (referenceLinksRule) Evaluate(_ context.Context, _ RuleView, changes []Change) (Result, error) {
	res := Result{}
	for _, change := range changes {
		if change.Entity != EntityExperiment {
			continue
		}
		experiment, ok := change.After.(Experiment)
		if !ok {
			continue
		}
		if len(experiment.Links) > domain.MaxReferenceLinks {
			res.Violations = append(res.Violations, Violation{
				Rule:     "reference_links",
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("experiment %s has %d reference links (max %d)", experiment.ID, len(experiment.Links), domain.MaxReferenceLinks),
				Entity:   EntityExperiment,
				EntityID: experiment.ID,
			})
		}
		for _, link := range experiment.Links {
			if link == "" {
				continue
			}
			parsed, err := url.Parse(link)
			if err != nil || !parsed.IsAbs() || parsed.Host == "" {
				res.Violations = append(res.Violations, Violation{
					Rule:     "reference_links",
					Severity: SeverityBlock,
					Message:  fmt.Sprintf("experiment %s reference link %q is not an absolute URL", experiment.ID, link),
					Entity:   EntityExperiment,
					EntityID: experiment.ID,
				})
			}
		}
	}
	return res, nil
}
