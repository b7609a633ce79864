package core

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"time"

	"github.com/google/uuid"

	"experimentcore/internal/blob"
	"experimentcore/pkg/domain"
)

// AddLinkEvidence records a link artifact against an experiment. Link
// evidence needs no upload and is committed synchronously.
func (s *Service) AddLinkEvidence(ctx context.Context, actor Actor, experimentID, url, description string) (Evidence, error) {
	var created Evidence
	err := s.instrument(ctx, "add_evidence", func(ctx context.Context) (Result, error) {
		if url == "" {
			return Result{}, domain.ValidationError{Field: "url", Reason: "required"}
		}
		return s.store.RunInTransaction(ctx, func(tx Transaction) error {
			return s.createEvidence(tx, actor, &created, Evidence{
				ExperimentID: experimentID,
				Kind:         domain.EvidenceLink,
				URL:          url,
				Description:  description,
			})
		})
	})
	if err != nil {
		return Evidence{}, err
	}
	return created, nil
}

// AddImageEvidence uploads an image payload to object storage and records the
// evidence only once the durable URL is known. A failed upload leaves no
// record and no audit entry; a failed commit releases the uploaded object.
func (s *Service) AddImageEvidence(ctx context.Context, actor Actor, experimentID, filename, contentType string, payload io.Reader, description string) (Evidence, error) {
	var created Evidence
	err := s.instrument(ctx, "add_evidence", func(ctx context.Context) (Result, error) {
		if s.blobs == nil {
			return Result{}, fmt.Errorf("no object storage configured for image evidence")
		}
		experiment, ok := s.store.GetExperiment(experimentID)
		if !ok {
			return Result{}, domain.NotFoundError{Entity: EntityExperiment, ID: experimentID}
		}
		if err := requireEdit(actor, experiment.OwnerID); err != nil {
			return Result{}, err
		}
		key := evidenceKey(experimentID, filename)
		info, err := s.blobs.Put(ctx, key, payload, blob.PutOptions{
			ContentType: contentType,
			Metadata:    map[string]string{"experiment": experimentID},
		})
		if err != nil {
			return Result{}, fmt.Errorf("upload evidence: %w", err)
		}
		res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			return s.createEvidence(tx, actor, &created, Evidence{
				ExperimentID: experimentID,
				Kind:         domain.EvidenceImage,
				URL:          info.URL,
				Description:  description,
				BlobKey:      key,
			})
		})
		if err != nil {
			s.releaseBlob(key)
		}
		return res, err
	})
	if err != nil {
		return Evidence{}, err
	}
	return created, nil
}

// createEvidence is the shared transactional tail of both evidence kinds:
// authorize against the owning experiment, insert the record and append one
// editado audit entry naming the evidence collection.
func (s *Service) createEvidence(tx Transaction, actor Actor, out *Evidence, ev Evidence) error {
	experiment, ok := tx.FindExperiment(ev.ExperimentID)
	if !ok {
		return domain.NotFoundError{Entity: EntityExperiment, ID: ev.ExperimentID}
	}
	if err := requireEdit(actor, experiment.OwnerID); err != nil {
		return err
	}
	created, err := tx.CreateEvidence(ev)
	if err != nil {
		return err
	}
	*out = created
	_, err = tx.AppendAuditEntry(AuditEntry{
		ExperimentID: ev.ExperimentID,
		Action:       AuditEdited,
		Field:        "evidencias",
		After:        created.URL,
		ActorID:      actor.ID,
	})
	return err
}

// RemoveEvidence deletes an evidence record. The owning experiment is
// untouched; for image evidence the stored object is released best-effort
// after the record delete commits.
func (s *Service) RemoveEvidence(ctx context.Context, actor Actor, evidenceID string) error {
	var blobKey string
	err := s.instrument(ctx, "remove_evidence", func(ctx context.Context) (Result, error) {
		return s.store.RunInTransaction(ctx, func(tx Transaction) error {
			ev, ok := tx.FindEvidence(evidenceID)
			if !ok {
				return domain.NotFoundError{Entity: EntityEvidence, ID: evidenceID}
			}
			experiment, ok := tx.FindExperiment(ev.ExperimentID)
			if !ok {
				return domain.NotFoundError{Entity: EntityExperiment, ID: ev.ExperimentID}
			}
			if err := requireEdit(actor, experiment.OwnerID); err != nil {
				return err
			}
			if err := tx.DeleteEvidence(evidenceID); err != nil {
				return err
			}
			blobKey = ev.BlobKey
			_, err := tx.AppendAuditEntry(AuditEntry{
				ExperimentID: ev.ExperimentID,
				Action:       AuditEdited,
				Field:        "evidencias",
				Before:       ev.URL,
				ActorID:      actor.ID,
			})
			return err
		})
	})
	if err != nil {
		return err
	}
	if blobKey != "" {
		s.releaseBlob(blobKey)
	}
	return nil
}

// ListEvidence returns the evidence records of an experiment.
func (s *Service) ListEvidence(ctx context.Context, experimentID string) []Evidence {
	return s.store.ListEvidence(experimentID)
}

// releaseBlob deletes a stored object, logging failures instead of
// propagating them.
func (s *Service) releaseBlob(key string) {
	if s.blobs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := s.blobs.Delete(ctx, key); err != nil {
		s.logger.Error("release evidence blob failed",
			slog.String("key", key),
			slog.String("error", err.Error()))
	}
}

// evidenceKey namespaces stored objects per experiment with a random suffix
// so repeated filenames never collide.
func evidenceKey(experimentID, filename string) string {
	name := path.Base(filename)
	if name == "." || name == "/" || name == "" {
		name = "upload"
	}
	return fmt.Sprintf("evidence/%s/%s-%s", experimentID, uuid.NewString(), name)
}
