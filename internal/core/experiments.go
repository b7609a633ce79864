package core

import (
	"context"
	"strings"
	"time"

	"experimentcore/pkg/domain"
)

// CreateExperiment persists a new planned experiment authored by the actor.
// The draft is validated at construction; status and validation outcome are
// forced to their initial values regardless of input.
func (s *Service) CreateExperiment(ctx context.Context, actor Actor, draft Experiment) (Experiment, error) {
	var created Experiment
	err := s.instrument(ctx, "create_experiment", func(ctx context.Context) (Result, error) {
		if err := requireCapability(actor, "create", actor.Capabilities().CanCreate); err != nil {
			return Result{}, err
		}
		draft.Status = StatusPlanned
		draft.Validation = ValidationInTest
		draft.Archived = false
		draft.EndDate = nil
		if draft.OwnerID == "" {
			draft.OwnerID = actor.ID
		}
		if err := draft.Validate(); err != nil {
			return Result{}, err
		}
		return s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			created, err = tx.CreateExperiment(draft)
			if err != nil {
				return err
			}
			_, err = tx.AppendAuditEntry(AuditEntry{
				ExperimentID: created.ID,
				Action:       AuditCreated,
				ActorID:      actor.ID,
			})
			return err
		})
	})
	if err != nil {
		return Experiment{}, err
	}
	return created, nil
}

// UpdateExperiment applies the mutator to an existing experiment. Status,
// archived flag and ownership are not editable here; transitions and
// archiving have their own commands. expectedVersion enables the optimistic
// concurrency check; zero skips it. The audit kind is validacao_alterada
// when the mutation changes the validation outcome, editado otherwise.
func (s *Service) UpdateExperiment(ctx context.Context, actor Actor, id string, expectedVersion int, mutator func(*Experiment) error) (Experiment, error) {
	var updated Experiment
	err := s.instrument(ctx, "update_experiment", func(ctx context.Context) (Result, error) {
		return s.store.RunInTransaction(ctx, func(tx Transaction) error {
			before, ok := tx.FindExperiment(id)
			if !ok {
				return domain.NotFoundError{Entity: EntityExperiment, ID: id}
			}
			if err := requireEdit(actor, before.OwnerID); err != nil {
				return err
			}
			if expectedVersion != 0 && expectedVersion != before.Version {
				return domain.ConflictError{Entity: EntityExperiment, ID: id, Expected: expectedVersion, Actual: before.Version}
			}
			var err error
			updated, err = tx.UpdateExperiment(id, func(e *Experiment) error {
				if err := mutator(e); err != nil {
					return err
				}
				// Lifecycle and archival state go through their own commands.
				e.Status = before.Status
				e.Archived = before.Archived
				e.OwnerID = before.OwnerID
				return e.Validate()
			})
			if err != nil {
				return err
			}
			entry := AuditEntry{
				ExperimentID: id,
				Action:       AuditEdited,
				Field:        strings.Join(changedFields(before, updated), ","),
				ActorID:      actor.ID,
			}
			if before.Validation != updated.Validation {
				entry.Action = AuditValidationChanged
				entry.Field = "validation"
				entry.Before = string(before.Validation)
				entry.After = string(updated.Validation)
			}
			_, err = tx.AppendAuditEntry(entry)
			return err
		})
	})
	if err != nil {
		return Experiment{}, err
	}
	return updated, nil
}

// GetExperiment returns one experiment by id.
func (s *Service) GetExperiment(ctx context.Context, id string) (Experiment, error) {
	if e, ok := s.store.GetExperiment(id); ok {
		return e, nil
	}
	return Experiment{}, domain.NotFoundError{Entity: EntityExperiment, ID: id}
}

// ListExperiments returns a filtered, sorted page of experiments. Archived
// records are excluded unless the filter asks for them.
func (s *Service) ListExperiments(ctx context.Context, filter Filter, sort Sort, page Page) ExperimentPage {
	list := domain.FilterExperiments(s.store.ListExperiments(), filter)
	domain.SortExperiments(list, sort)
	return domain.Paginate(list, page)
}

// changedFields names the scalar experiment fields whose value differs
// between two revisions, in a stable order.
func changedFields(before, after Experiment) []string {
	var fields []string
	add := func(name string, changed bool) {
		if changed {
			fields = append(fields, name)
		}
	}
	add("name", before.Name != after.Name)
	add("client_id", before.ClientID != after.ClientID)
	add("funnel", before.Funnel != after.Funnel)
	add("type", before.Type != after.Type)
	add("channel", before.Channel != after.Channel)
	add("validation", before.Validation != after.Validation)
	add("metric_kind", before.MetricKind != after.MetricKind)
	add("target_value", !equalFloat(before.TargetValue, after.TargetValue))
	add("observed_value", !equalFloat(before.ObservedValue, after.ObservedValue))
	add("hypothesis", before.Hypothesis != after.Hypothesis)
	add("change_description", before.ChangeDescription != after.ChangeDescription)
	add("team_observation", before.TeamObservation != after.TeamObservation)
	add("notes", before.Notes != after.Notes)
	add("learnings", before.Learnings != after.Learnings)
	add("next_experiments", before.NextExperiments != after.NextExperiments)
	add("links", !equalStrings(before.Links, after.Links))
	add("start_date", !equalTimePtr(before.StartDate, after.StartDate))
	add("end_date", !equalTimePtr(before.EndDate, after.EndDate))
	return fields
}

func equalFloat(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
