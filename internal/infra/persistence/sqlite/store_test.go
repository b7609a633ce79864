package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"experimentcore/pkg/domain"
)

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "core.db")
	s := openTestStore(t, path)

	var created domain.Experiment
	if _, err := s.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var err error
		created, err = tx.CreateExperiment(domain.Experiment{Name: "Alpha", OwnerID: "u1", ClientID: "c1", Status: domain.StatusPlanned, Validation: domain.ValidationInTest})
		if err != nil {
			return err
		}
		if _, err := tx.AppendAuditEntry(domain.AuditEntry{ExperimentID: created.ID, Action: domain.AuditCreated, ActorID: "u1"}); err != nil {
			return err
		}
		_, err = tx.CreateComment(domain.Comment{ExperimentID: created.ID, AuthorID: "u1", Text: "kickoff"})
		return err
	}); err != nil {
		t.Fatalf("seed transaction: %v", err)
	}

	reloaded := openTestStore(t, path)
	got, ok := reloaded.GetExperiment(created.ID)
	if !ok || got.Name != "Alpha" {
		t.Fatalf("experiment not persisted: %+v ok=%v", got, ok)
	}
	if entries := reloaded.ListAuditEntries(created.ID); len(entries) != 1 || entries[0].Action != domain.AuditCreated {
		t.Fatalf("audit trail not persisted: %+v", entries)
	}
	if comments := reloaded.ListComments(created.ID); len(comments) != 1 {
		t.Fatalf("comments not persisted: %+v", comments)
	}

	// Audit sequence continues across restarts.
	if _, err := reloaded.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.AppendAuditEntry(domain.AuditEntry{ExperimentID: created.ID, Action: domain.AuditEdited, ActorID: "u1"})
		return err
	}); err != nil {
		t.Fatalf("append after reload: %v", err)
	}
	entries := reloaded.ListAuditEntries(created.ID)
	if len(entries) != 2 || entries[1].Seq <= entries[0].Seq {
		t.Fatalf("sequence broken across restart: %+v", entries)
	}
}

func TestFailedTransactionDoesNotPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "core.db")
	s := openTestStore(t, path)

	_, err := s.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.CreateExperiment(domain.Experiment{Name: "Ghost", OwnerID: "u1", ClientID: "c1"}); err != nil {
			return err
		}
		return domain.ValidationError{Field: "name", Reason: "rejected"}
	})
	if err == nil {
		t.Fatalf("expected error")
	}

	reloaded := openTestStore(t, path)
	if got := reloaded.ListExperiments(); len(got) != 0 {
		t.Fatalf("failed transaction leaked to disk: %+v", got)
	}
}

func TestDefaultPathAndAccessors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "core.db")
	s := openTestStore(t, path)
	if s.Path() != path {
		t.Fatalf("unexpected path %s", s.Path())
	}
	if s.DB() == nil {
		t.Fatalf("expected db handle")
	}
}
