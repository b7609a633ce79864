package core

import (
	"context"

	"experimentcore/pkg/domain"
)

// CreateTemplate registers a reusable experiment preset. Template management
// is capability-gated; templates are not experiments and carry no audit
// trail of their own.
func (s *Service) CreateTemplate(ctx context.Context, actor Actor, template Template) (Template, error) {
	var created Template
	err := s.instrument(ctx, "create_template", func(ctx context.Context) (Result, error) {
		if err := requireCapability(actor, "manage_templates", actor.Capabilities().CanManageTemplates); err != nil {
			return Result{}, err
		}
		if err := template.Validate(); err != nil {
			return Result{}, err
		}
		template.Active = true
		return s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			created, err = tx.CreateTemplate(template)
			return err
		})
	})
	if err != nil {
		return Template{}, err
	}
	return created, nil
}

// UpdateTemplate applies the mutator to an existing template.
func (s *Service) UpdateTemplate(ctx context.Context, actor Actor, id string, mutator func(*Template) error) (Template, error) {
	var updated Template
	err := s.instrument(ctx, "update_template", func(ctx context.Context) (Result, error) {
		if err := requireCapability(actor, "manage_templates", actor.Capabilities().CanManageTemplates); err != nil {
			return Result{}, err
		}
		return s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			updated, err = tx.UpdateTemplate(id, func(t *Template) error {
				if err := mutator(t); err != nil {
					return err
				}
				return t.Validate()
			})
			return err
		})
	})
	if err != nil {
		return Template{}, err
	}
	return updated, nil
}

// DeactivateTemplate soft-deletes a template. The record is retained so
// existing references keep resolving.
func (s *Service) DeactivateTemplate(ctx context.Context, actor Actor, id string) (Template, error) {
	return s.UpdateTemplate(ctx, actor, id, func(t *Template) error {
		t.Active = false
		return nil
	})
}

// ListTemplates returns templates, active ones only unless includeInactive.
func (s *Service) ListTemplates(ctx context.Context, includeInactive bool) []Template {
	all := s.store.ListTemplates()
	if includeInactive {
		return all
	}
	active := make([]Template, 0, len(all))
	for _, t := range all {
		if t.Active {
			active = append(active, t)
		}
	}
	return active
}

// ApplyTemplate merges a stored template into a draft and returns the
// result. The template record is never mutated by application.
func (s *Service) ApplyTemplate(ctx context.Context, draft Experiment, templateID string) (Experiment, error) {
	var template Template
	err := s.store.View(ctx, func(view TransactionView) error {
		t, ok := view.FindTemplate(templateID)
		if !ok {
			return domain.NotFoundError{Entity: EntityTemplate, ID: templateID}
		}
		template = t
		return nil
	})
	if err != nil {
		return Experiment{}, err
	}
	return MergeTemplate(draft, template), nil
}

// MergeTemplate overwrites the draft fields the template defines and leaves
// everything else untouched. Pure; both inputs are taken by value.
func MergeTemplate(draft Experiment, template Template) Experiment {
	if template.Type != "" {
		draft.Type = template.Type
	}
	if template.Channel != "" {
		draft.Channel = template.Channel
	}
	if template.Hypothesis != "" {
		draft.Hypothesis = template.Hypothesis
	}
	if template.MetricKind != "" {
		draft.MetricKind = template.MetricKind
	}
	if template.TargetValue != nil {
		v := *template.TargetValue
		draft.TargetValue = &v
	}
	return draft
}
