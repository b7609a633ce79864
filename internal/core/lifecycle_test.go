package core

import (
	"context"
	"errors"
	"testing"

	"experimentcore/pkg/domain"
)

// driveTo walks a fresh experiment to the requested status.
func driveTo(t *testing.T, svc *Service, actor Actor, id string, target Status) {
	t.Helper()
	ctx := context.Background()
	var err error
	switch target {
	case StatusPlanned:
	case StatusRunning:
		_, err = svc.StartExperiment(ctx, actor, id)
	case StatusPaused:
		if _, err = svc.StartExperiment(ctx, actor, id); err == nil {
			_, err = svc.PauseExperiment(ctx, actor, id)
		}
	case StatusConcluded:
		concludeWithLink(t, svc, actor, id)
	case StatusCanceled:
		_, err = svc.CancelExperiment(ctx, actor, id)
	}
	if err != nil {
		t.Fatalf("drive to %s: %v", target, err)
	}
}

func TestTransitionTableRejectsEverythingElse(t *testing.T) {
	ctx := context.Background()
	actions := map[string]func(*Service, string) error{
		"start": func(svc *Service, id string) error {
			_, err := svc.StartExperiment(ctx, manager, id)
			return err
		},
		"pause": func(svc *Service, id string) error {
			_, err := svc.PauseExperiment(ctx, manager, id)
			return err
		},
		"resume": func(svc *Service, id string) error {
			_, err := svc.ResumeExperiment(ctx, manager, id)
			return err
		},
		"conclude": func(svc *Service, id string) error {
			_, err := svc.ConcludeExperiment(ctx, manager, id, ConcludeInput{
				Validation:        ValidationGood,
				ResultDescription: "done",
			})
			return err
		},
		"cancel": func(svc *Service, id string) error {
			_, err := svc.CancelExperiment(ctx, manager, id)
			return err
		},
		"reopen": func(svc *Service, id string) error {
			_, err := svc.ReopenExperiment(ctx, manager, id)
			return err
		},
	}
	statuses := []Status{StatusPlanned, StatusRunning, StatusPaused, StatusConcluded, StatusCanceled}

	for _, from := range statuses {
		for action, invoke := range actions {
			_, allowed := transitions[action][from]
			t.Run(string(from)+"_"+action, func(t *testing.T) {
				svc, _ := newTestService(t)
				created := mustCreate(t, svc, manager, draftExperiment(manager.ID))
				driveTo(t, svc, manager, created.ID, from)
				if action == "conclude" && allowed {
					if _, err := svc.AddLinkEvidence(ctx, manager, created.ID, "https://ads.example/1", ""); err != nil {
						t.Fatalf("add evidence: %v", err)
					}
				}
				before, _ := svc.GetExperiment(ctx, created.ID)
				trailBefore := len(svc.AuditHistory(ctx, created.ID))

				err := invoke(svc, created.ID)
				if allowed {
					if err != nil {
						t.Fatalf("expected %s from %s to succeed: %v", action, from, err)
					}
					after, _ := svc.GetExperiment(ctx, created.ID)
					if after.Status != transitions[action][from] {
						t.Fatalf("expected status %s, got %s", transitions[action][from], after.Status)
					}
					return
				}
				var ite domain.InvalidTransitionError
				if !errors.As(err, &ite) {
					t.Fatalf("expected InvalidTransitionError for %s from %s, got %v", action, from, err)
				}
				if ite.From != from || ite.Action != action {
					t.Fatalf("unexpected error detail %+v", ite)
				}
				after, _ := svc.GetExperiment(ctx, created.ID)
				if after.Status != before.Status || after.Version != before.Version {
					t.Fatalf("state changed on rejected transition: %+v", after)
				}
				if len(svc.AuditHistory(ctx, created.ID)) != trailBefore {
					t.Fatal("audit trail grew on rejected transition")
				}
			})
		}
	}
}

func TestStartStampsStartDateOnce(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	created := mustCreate(t, svc, manager, draftExperiment(manager.ID))

	started, err := svc.StartExperiment(ctx, manager, created.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.StartDate == nil {
		t.Fatal("expected start date set")
	}
	first := *started.StartDate

	if _, err := svc.PauseExperiment(ctx, manager, created.ID); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := svc.ResumeExperiment(ctx, manager, created.ID); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if _, err := svc.CancelExperiment(ctx, manager, created.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := svc.ReopenExperiment(ctx, manager, created.ID); err != nil {
		t.Fatalf("reopen: %v", err)
	}

	got, _ := svc.GetExperiment(ctx, created.ID)
	if got.StartDate == nil || !got.StartDate.Equal(first) {
		t.Fatalf("start date changed: %v vs %v", got.StartDate, first)
	}
}

func TestConcludeRequiresOutcomeAndDescription(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	created := mustCreate(t, svc, manager, draftExperiment(manager.ID))
	if _, err := svc.StartExperiment(ctx, manager, created.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	var ve domain.ValidationError
	_, err := svc.ConcludeExperiment(ctx, manager, created.ID, ConcludeInput{ResultDescription: "done"})
	if !errors.As(err, &ve) || ve.Field != "validation" {
		t.Fatalf("expected validation error on outcome, got %v", err)
	}
	_, err = svc.ConcludeExperiment(ctx, manager, created.ID, ConcludeInput{Validation: ValidationInTest, ResultDescription: "done"})
	if !errors.As(err, &ve) || ve.Field != "validation" {
		t.Fatalf("expected in_test to be rejected, got %v", err)
	}
	_, err = svc.ConcludeExperiment(ctx, manager, created.ID, ConcludeInput{Validation: ValidationGood})
	if !errors.As(err, &ve) || ve.Field != "result_description" {
		t.Fatalf("expected validation error on description, got %v", err)
	}
}

func TestEvidenceGate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	created := mustCreate(t, svc, manager, draftExperiment(manager.ID))
	if _, err := svc.StartExperiment(ctx, manager, created.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	_, err := svc.ConcludeExperiment(ctx, manager, created.ID, ConcludeInput{
		Validation:        ValidationGood,
		ResultDescription: "CTR +30%",
	})
	var ere domain.EvidenceRequiredError
	if !errors.As(err, &ere) || ere.ExperimentID != created.ID {
		t.Fatalf("expected EvidenceRequiredError, got %v", err)
	}
	got, _ := svc.GetExperiment(ctx, created.ID)
	if got.Status != StatusRunning {
		t.Fatal("rejected conclude changed status")
	}

	// A non-empty reference link satisfies the gate without evidence records.
	if _, err := svc.UpdateExperiment(ctx, manager, created.ID, 0, func(e *Experiment) error {
		e.Links = []string{"https://ads.example/report"}
		return nil
	}); err != nil {
		t.Fatalf("set link: %v", err)
	}
	if _, err := svc.ConcludeExperiment(ctx, manager, created.ID, ConcludeInput{
		Validation:        ValidationGood,
		ResultDescription: "CTR +30%",
	}); err != nil {
		t.Fatalf("conclude with link: %v", err)
	}
}

func TestConcludeRecordsCommentAndSingleAuditEntry(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	created := mustCreate(t, svc, manager, draftExperiment(manager.ID))

	concluded := concludeWithLink(t, svc, manager, created.ID)

	if concluded.Status != StatusConcluded || concluded.Validation != ValidationGood {
		t.Fatalf("unexpected conclusion %+v", concluded)
	}
	if concluded.EndDate == nil {
		t.Fatal("expected end date")
	}

	comments := svc.ListComments(ctx, created.ID)
	if len(comments) != 1 || comments[0].Text != "CTR +30%" || comments[0].AuthorID != manager.ID {
		t.Fatalf("expected result comment, got %+v", comments)
	}

	// criado + status_alterado(start) + editado(evidence) + status_alterado(conclude)
	history := svc.AuditHistory(ctx, created.ID)
	if len(history) != 4 {
		t.Fatalf("expected 4 audit entries, got %d", len(history))
	}
	last := history[len(history)-1]
	if last.Action != AuditStatusChanged || last.After != string(StatusConcluded) {
		t.Fatalf("unexpected final entry %+v", last)
	}
}

func TestReopenResetsOutcomeAndEndDate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	created := mustCreate(t, svc, manager, draftExperiment(manager.ID))
	concludeWithLink(t, svc, manager, created.ID)

	reopened, err := svc.ReopenExperiment(ctx, manager, created.ID)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.Status != StatusRunning {
		t.Fatalf("expected running, got %s", reopened.Status)
	}
	if reopened.Validation != ValidationInTest {
		t.Fatalf("expected in_test after reopen, got %s", reopened.Validation)
	}
	if reopened.EndDate != nil {
		t.Fatal("expected end date cleared")
	}

	// Canceled experiments reopen the same way.
	other := mustCreate(t, svc, manager, draftExperiment(manager.ID))
	if _, err := svc.CancelExperiment(ctx, manager, other.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	reopened, err = svc.ReopenExperiment(ctx, manager, other.ID)
	if err != nil {
		t.Fatalf("reopen canceled: %v", err)
	}
	if reopened.Status != StatusRunning || reopened.EndDate != nil {
		t.Fatalf("unexpected reopened state %+v", reopened)
	}
}

func TestCancelStampsEndDate(t *testing.T) {
	svc, _ := newTestService(t)
	created := mustCreate(t, svc, manager, draftExperiment(manager.ID))
	canceled, err := svc.CancelExperiment(context.Background(), manager, created.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if canceled.Status != StatusCanceled || canceled.EndDate == nil {
		t.Fatalf("unexpected canceled state %+v", canceled)
	}
}

func TestArchiveIsAdminOnly(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	created := mustCreate(t, svc, manager, draftExperiment(manager.ID))

	_, err := svc.ArchiveExperiment(ctx, manager, created.ID)
	var pe domain.PermissionError
	if !errors.As(err, &pe) || pe.Capability != "archive" {
		t.Fatalf("expected archive PermissionError, got %v", err)
	}

	archived, err := svc.ArchiveExperiment(ctx, admin, created.ID)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if !archived.Archived {
		t.Fatal("expected archived flag")
	}
	latest := svc.AuditTrail(ctx, created.ID)[0]
	if latest.Action != AuditArchived {
		t.Fatalf("expected arquivado, got %s", latest.Action)
	}
	if latest.Before != "false" || latest.After != "true" {
		t.Fatalf("unexpected archive transition values: %q -> %q", latest.Before, latest.After)
	}
}

func TestArchiveAlreadyArchivedIsNoOp(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	created := mustCreate(t, svc, manager, draftExperiment(manager.ID))

	archived, err := svc.ArchiveExperiment(ctx, admin, created.ID)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	again, err := svc.ArchiveExperiment(ctx, admin, created.ID)
	if err != nil {
		t.Fatalf("second archive: %v", err)
	}
	if !again.Archived || again.Version != archived.Version {
		t.Fatalf("second archive must change nothing, got %+v", again)
	}
	var entries int
	for _, entry := range svc.AuditHistory(ctx, created.ID) {
		if entry.Action == AuditArchived {
			entries++
		}
	}
	if entries != 1 {
		t.Fatalf("expected a single arquivado entry, got %d", entries)
	}
}

func TestDuplicateExperiment(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	source := mustCreate(t, svc, manager, draftExperiment(manager.ID))
	concludeWithLink(t, svc, manager, source.ID)
	if _, err := svc.AddComment(ctx, manager, source.ID, "good run"); err != nil {
		t.Fatalf("comment: %v", err)
	}

	dup, err := svc.DuplicateExperiment(ctx, admin, source.ID)
	if err != nil {
		t.Fatalf("duplicate: %v", err)
	}
	if dup.ID == source.ID {
		t.Fatal("expected a new id")
	}
	if dup.Status != StatusPlanned || dup.Validation != ValidationInTest {
		t.Fatalf("unexpected initial state %+v", dup)
	}
	if dup.Name != source.Name || dup.Type != source.Type || dup.Channel != source.Channel ||
		dup.ClientID != source.ClientID || dup.Funnel != source.Funnel ||
		dup.Hypothesis != source.Hypothesis {
		t.Fatalf("descriptive fields not copied: %+v", dup)
	}
	if dup.OwnerID != admin.ID {
		t.Fatalf("expected duplicating actor as owner, got %s", dup.OwnerID)
	}
	if dup.EndDate != nil || dup.StartDate != nil || dup.Archived {
		t.Fatalf("timeline state copied: %+v", dup)
	}

	if len(svc.ListEvidence(ctx, dup.ID)) != 0 || len(svc.ListComments(ctx, dup.ID)) != 0 {
		t.Fatal("evidence or comments copied to duplicate")
	}
	history := svc.AuditHistory(ctx, dup.ID)
	if len(history) != 1 || history[0].Action != AuditDuplicated {
		t.Fatalf("expected single duplicado entry, got %+v", history)
	}
	if history[0].Before != source.ID {
		t.Fatalf("expected source reference, got %q", history[0].Before)
	}
}

func TestTransitionsRequireEditPermission(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	created := mustCreate(t, svc, manager, draftExperiment(manager.ID))

	other := Actor{ID: "u-other", Role: RoleManager}
	_, err := svc.StartExperiment(ctx, other, created.ID)
	var pe domain.PermissionError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PermissionError, got %v", err)
	}
	got, _ := svc.GetExperiment(ctx, created.ID)
	if got.Status != StatusPlanned {
		t.Fatal("status changed despite permission failure")
	}
}

/// The end-to-end walkthrough: plan, start, blocked foreign edit, gated
// conclude, evidence, conclusion, report.
func TestHeadlineABScenario(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	u1 := Actor{ID: "U1", Role: RoleManager}
	u2 := Actor{ID: "U2", Role: RoleManager}

	draft := draftExperiment(u1.ID)
	draft.ClientID = "C1"
	exp := mustCreate(t, svc, u1, draft)

	started, err := svc.StartExperiment(ctx, u1, exp.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.Status != StatusRunning || started.StartDate == nil {
		t.Fatalf("unexpected started state %+v", started)
	}
	if trail := svc.AuditTrail(ctx, exp.ID); trail[0].Action != AuditStatusChanged {
		t.Fatalf("expected status_alterado, got %s", trail[0].Action)
	}

	if _, err := svc.UpdateExperiment(ctx, u2, exp.ID, 0, func(e *Experiment) error {
		e.Notes = "U2 was here"
		return nil
	}); err == nil {
		t.Fatal("expected U2 edit to fail")
	}

	if _, err := svc.ConcludeExperiment(ctx, u1, exp.ID, ConcludeInput{
		Validation:        ValidationGood,
		ResultDescription: "CTR +30%",
	}); err == nil {
		t.Fatal("expected evidence gate to reject conclude")
	}

	if _, err := svc.AddLinkEvidence(ctx, u1, exp.ID, "https://ads.example/123", ""); err != nil {
		t.Fatalf("add evidence: %v", err)
	}
	trailBefore := len(svc.AuditHistory(ctx, exp.ID))
	concluded, err := svc.ConcludeExperiment(ctx, u1, exp.ID, ConcludeInput{
		Validation:        ValidationGood,
		ResultDescription: "CTR +30%",
	})
	if err != nil {
		t.Fatalf("conclude: %v", err)
	}
	if concluded.Status != StatusConcluded || concluded.Validation != ValidationGood || concluded.EndDate == nil {
		t.Fatalf("unexpected concluded state %+v", concluded)
	}
	if len(svc.ListComments(ctx, exp.ID)) != 1 {
		t.Fatal("expected one result comment")
	}
	history := svc.AuditHistory(ctx, exp.ID)
	if len(history) != trailBefore+1 {
		t.Fatalf("expected exactly one new audit entry, got %d new", len(history)-trailBefore)
	}
	if history[len(history)-1].Action != AuditStatusChanged {
		t.Fatalf("expected status_alterado, got %s", history[len(history)-1].Action)
	}

	report := svc.GetReport(ctx, Filter{})
	if report.CompletionRate != 1 || report.WinRate != 1 {
		t.Fatalf("expected 100%% rates, got completion=%v win=%v", report.CompletionRate, report.WinRate)
	}
}
