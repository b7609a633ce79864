package core

import (
	"context"

	"experimentcore/pkg/domain"
)

// transitions is the canonical action table. Anything outside it is rejected
// with InvalidTransitionError and produces no write.
var transitions = map[string]map[Status]Status{
	"start":    {StatusPlanned: StatusRunning},
	"pause":    {StatusRunning: StatusPaused},
	"resume":   {StatusPaused: StatusRunning},
	"conclude": {StatusRunning: StatusConcluded},
	"cancel": {
		StatusPlanned: StatusCanceled,
		StatusRunning: StatusCanceled,
		StatusPaused:  StatusCanceled,
	},
	"reopen": {
		StatusConcluded: StatusRunning,
		StatusCanceled:  StatusRunning,
	},
}

// transition runs one lifecycle action atomically: authorize, validate the
// table (and, on conclude, the evidence gate), write the new state and append
// one status_alterado audit entry. sideEffects mutates the experiment after
// the status flip and before commit.
func (s *Service) transition(ctx context.Context, actor Actor, id, action string, sideEffects func(tx Transaction, e *Experiment) error) (Experiment, error) {
	var updated Experiment
	err := s.instrument(ctx, action+"_experiment", func(ctx context.Context) (Result, error) {
		return s.store.RunInTransaction(ctx, func(tx Transaction) error {
			before, ok := tx.FindExperiment(id)
			if !ok {
				return domain.NotFoundError{Entity: EntityExperiment, ID: id}
			}
			if err := requireEdit(actor, before.OwnerID); err != nil {
				return err
			}
			target, ok := transitions[action][before.Status]
			if !ok {
				return domain.InvalidTransitionError{From: before.Status, Action: action}
			}
			if action == "conclude" {
				if err := s.evidenceGate(tx, before); err != nil {
					return err
				}
			}
			var err error
			updated, err = tx.UpdateExperiment(id, func(e *Experiment) error {
				e.Status = target
				if sideEffects != nil {
					return sideEffects(tx, e)
				}
				return nil
			})
			if err != nil {
				return err
			}
			_, err = tx.AppendAuditEntry(AuditEntry{
				ExperimentID: id,
				Action:       AuditStatusChanged,
				Field:        "status",
				Before:       string(before.Status),
				After:        string(target),
				ActorID:      actor.ID,
			})
			return err
		})
	})
	if err != nil {
		return Experiment{}, err
	}
	s.notifyStatusChange(updated, actor)
	return updated, nil
}

// evidenceGate rejects a conclude when the experiment has no evidence record
// and no non-empty reference link. It reads the live transaction snapshot,
// never a cached count.
func (s *Service) evidenceGate(tx Transaction, e Experiment) error {
	if e.HasReferenceLink() {
		return nil
	}
	if len(tx.Snapshot().ListEvidence(e.ID)) > 0 {
		return nil
	}
	return domain.EvidenceRequiredError{ExperimentID: e.ID}
}

// StartExperiment moves a planned experiment to running, stamping the start
// date when it is unset.
func (s *Service) StartExperiment(ctx context.Context, actor Actor, id string) (Experiment, error) {
	return s.transition(ctx, actor, id, "start", func(_ Transaction, e *Experiment) error {
		if e.StartDate == nil {
			now := s.now()
			e.StartDate = &now
		}
		return nil
	})
}

// PauseExperiment suspends a running experiment.
func (s *Service) PauseExperiment(ctx context.Context, actor Actor, id string) (Experiment, error) {
	return s.transition(ctx, actor, id, "pause", nil)
}

// ResumeExperiment returns a paused experiment to running.
func (s *Service) ResumeExperiment(ctx context.Context, actor Actor, id string) (Experiment, error) {
	return s.transition(ctx, actor, id, "resume", nil)
}

// ConcludeInput carries the verdict recorded when an experiment concludes.
type ConcludeInput struct {
	Validation        Validation `json:"validation"`
	ResultDescription string     `json:"result_description"`
	ObservedValue     *float64   `json:"observed_value,omitempty"`
	Learnings         string     `json:"learnings,omitempty"`
}

// ConcludeExperiment finishes a running experiment. It requires a definite
// validation outcome, a non-empty result description and a passing evidence
// gate; the result description is additionally recorded as a comment by the
// actor within the same transaction.
func (s *Service) ConcludeExperiment(ctx context.Context, actor Actor, id string, input ConcludeInput) (Experiment, error) {
	switch input.Validation {
	case ValidationGood, ValidationBad, ValidationInconclusive:
	default:
		return Experiment{}, domain.ValidationError{Field: "validation", Reason: "must be good, bad or inconclusive"}
	}
	if input.ResultDescription == "" {
		return Experiment{}, domain.ValidationError{Field: "result_description", Reason: "required"}
	}
	return s.transition(ctx, actor, id, "conclude", func(tx Transaction, e *Experiment) error {
		e.Validation = input.Validation
		if input.ObservedValue != nil {
			e.ObservedValue = input.ObservedValue
		}
		if input.Learnings != "" {
			e.Learnings = input.Learnings
		}
		now := s.now()
		e.EndDate = &now
		_, err := tx.CreateComment(Comment{
			ExperimentID: e.ID,
			AuthorID:     actor.ID,
			Text:         input.ResultDescription,
		})
		return err
	})
}

// CancelExperiment cancels any non-terminal experiment, stamping the end
// date.
func (s *Service) CancelExperiment(ctx context.Context, actor Actor, id string) (Experiment, error) {
	return s.transition(ctx, actor, id, "cancel", func(_ Transaction, e *Experiment) error {
		now := s.now()
		e.EndDate = &now
		return nil
	})
}

// ReopenExperiment returns a concluded or canceled experiment to running,
// clearing the end date and resetting the validation outcome.
func (s *Service) ReopenExperiment(ctx context.Context, actor Actor, id string) (Experiment, error) {
	return s.transition(ctx, actor, id, "reopen", func(_ Transaction, e *Experiment) error {
		e.EndDate = nil
		e.Validation = ValidationInTest
		return nil
	})
}

// ArchiveExperiment hides an experiment from default listings and reports.
// Archival is admin-gated, retains the record forever and is not a lifecycle
// transition.
func (s *Service) ArchiveExperiment(ctx context.Context, actor Actor, id string) (Experiment, error) {
	var updated Experiment
	err := s.instrument(ctx, "archive_experiment", func(ctx context.Context) (Result, error) {
		if err := requireCapability(actor, "archive", actor.Capabilities().CanArchive); err != nil {
			return Result{}, err
		}
		return s.store.RunInTransaction(ctx, func(tx Transaction) error {
			current, ok := tx.FindExperiment(id)
			if !ok {
				return domain.NotFoundError{Entity: EntityExperiment, ID: id}
			}
			if current.Archived {
				// already archived, nothing to record
				updated = current
				return nil
			}
			var err error
			updated, err = tx.UpdateExperiment(id, func(e *Experiment) error {
				e.Archived = true
				return nil
			})
			if err != nil {
				return err
			}
			_, err = tx.AppendAuditEntry(AuditEntry{
				ExperimentID: id,
				Action:       AuditArchived,
				Field:        "archived",
				Before:       "false",
				After:        "true",
				ActorID:      actor.ID,
			})
			return err
		})
	})
	if err != nil {
		return Experiment{}, err
	}
	return updated, nil
}

// DuplicateExperiment creates a fresh planned experiment copying the
// descriptive fields of the source. Evidence, comments and audit history are
// not copied; the new record starts its own trail with a duplicado entry.
func (s *Service) DuplicateExperiment(ctx context.Context, actor Actor, id string) (Experiment, error) {
	var created Experiment
	err := s.instrument(ctx, "duplicate_experiment", func(ctx context.Context) (Result, error) {
		if err := requireCapability(actor, "create", actor.Capabilities().CanCreate); err != nil {
			return Result{}, err
		}
		return s.store.RunInTransaction(ctx, func(tx Transaction) error {
			source, ok := tx.FindExperiment(id)
			if !ok {
				return domain.NotFoundError{Entity: EntityExperiment, ID: id}
			}
			copyExp := Experiment{
				Name:              source.Name,
				OwnerID:           actor.ID,
				ClientID:          source.ClientID,
				Funnel:            source.Funnel,
				Type:              source.Type,
				Channel:           source.Channel,
				Status:            StatusPlanned,
				Validation:        ValidationInTest,
				MetricKind:        source.MetricKind,
				TargetValue:       source.TargetValue,
				Hypothesis:        source.Hypothesis,
				ChangeDescription: source.ChangeDescription,
			}
			var err error
			created, err = tx.CreateExperiment(copyExp)
			if err != nil {
				return err
			}
			_, err = tx.AppendAuditEntry(AuditEntry{
				ExperimentID: created.ID,
				Action:       AuditDuplicated,
				Field:        "source",
				Before:       source.ID,
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
