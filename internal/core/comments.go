package core

import (
	"context"

	"experimentcore/pkg/domain"
)

// AddComment appends a remark to an experiment's discussion. Comments are
// append-only and open to any identified actor; the paired audit entry is
// comentario_adicionado.
func (s *Service) AddComment(ctx context.Context, actor Actor, experimentID, text string) (Comment, error) {
	var created Comment
	err := s.instrument(ctx, "add_comment", func(ctx context.Context) (Result, error) {
		if actor.ID == "" {
			return Result{}, domain.PermissionError{ActorID: actor.ID, Capability: "comment"}
		}
		if text == "" {
			return Result{}, domain.ValidationError{Field: "text", Reason: "required"}
		}
		return s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if _, ok := tx.FindExperiment(experimentID); !ok {
				return domain.NotFoundError{Entity: EntityExperiment, ID: experimentID}
			}
			var err error
			created, err = tx.CreateComment(Comment{
				ExperimentID: experimentID,
				AuthorID:     actor.ID,
				Text:         text,
			})
			if err != nil {
				return err
			}
			_, err = tx.AppendAuditEntry(AuditEntry{
				ExperimentID: experimentID,
				Action:       AuditCommentAdded,
				ActorID:      actor.ID,
			})
			return err
		})
	})
	if err != nil {
		return Comment{}, err
	}
	return created, nil
}

// ListComments returns the comments of an experiment in append order.
func (s *Service) ListComments(ctx context.Context, experimentID string) []Comment {
	return s.store.ListComments(experimentID)
}
