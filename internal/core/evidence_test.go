package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"experimentcore/internal/blob"
	"experimentcore/pkg/domain"
)

func TestAddLinkEvidence(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	created := mustCreate(t, svc, manager, draftExperiment(manager.ID))

	ev, err := svc.AddLinkEvidence(ctx, manager, created.ID, "https://ads.example/123", "campaign dashboard")
	if err != nil {
		t.Fatalf("add link evidence: %v", err)
	}
	if ev.Kind != domain.EvidenceLink || ev.URL != "https://ads.example/123" {
		t.Fatalf("unexpected evidence %+v", ev)
	}

	latest := svc.AuditTrail(ctx, created.ID)[0]
	if latest.Action != AuditEdited || latest.Field != "evidencias" {
		t.Fatalf("unexpected audit entry %+v", latest)
	}

	_, err = svc.AddLinkEvidence(ctx, manager, created.ID, "", "")
	var ve domain.ValidationError
	if !errors.As(err, &ve) || ve.Field != "url" {
		t.Fatalf("expected url validation error, got %v", err)
	}

	_, err = svc.AddLinkEvidence(ctx, manager, "missing", "https://x.example", "")
	var nfe domain.NotFoundError
	if !errors.As(err, &nfe) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestAddLinkEvidencePermission(t *testing.T) {
	svc, _ := newTestService(t)
	created := mustCreate(t, svc, manager, draftExperiment(manager.ID))
	other := Actor{ID: "u-other", Role: RoleManager}
	_, err := svc.AddLinkEvidence(context.Background(), other, created.ID, "https://x.example", "")
	var pe domain.PermissionError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PermissionError, got %v", err)
	}
}

func TestAddImageEvidenceUploadsBeforeRecord(t *testing.T) {
	blobs := blob.NewMemory()
	svc, _ := newTestService(t, WithBlobStore(blobs))
	ctx := context.Background()
	created := mustCreate(t, svc, manager, draftExperiment(manager.ID))

	ev, err := svc.AddImageEvidence(ctx, manager, created.ID, "screenshot.png", "image/png", strings.NewReader("png-bytes"), "variant B")
	if err != nil {
		t.Fatalf("add image evidence: %v", err)
	}
	if ev.Kind != domain.EvidenceImage {
		t.Fatalf("unexpected kind %s", ev.Kind)
	}
	if ev.URL == "" || ev.BlobKey == "" {
		t.Fatalf("expected durable URL and blob key, got %+v", ev)
	}
	if !strings.HasPrefix(ev.BlobKey, "evidence/"+created.ID+"/") {
		t.Fatalf("unexpected blob key %q", ev.BlobKey)
	}
	if _, err := blobs.Head(ctx, ev.BlobKey); err != nil {
		t.Fatalf("expected stored object: %v", err)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, fmt.Errorf("connection reset") }

func TestAddImageEvidenceUploadFailureLeavesNothing(t *testing.T) {
	blobs := blob.NewMemory()
	svc, _ := newTestService(t, WithBlobStore(blobs))
	ctx := context.Background()
	created := mustCreate(t, svc, manager, draftExperiment(manager.ID))
	trailBefore := len(svc.AuditHistory(ctx, created.ID))

	_, err := svc.AddImageEvidence(ctx, manager, created.ID, "x.png", "image/png", failingReader{}, "")
	if err == nil {
		t.Fatal("expected upload failure")
	}
	if len(svc.ListEvidence(ctx, created.ID)) != 0 {
		t.Fatal("evidence record created despite failed upload")
	}
	if len(svc.AuditHistory(ctx, created.ID)) != trailBefore {
		t.Fatal("audit entry written despite failed upload")
	}
}

func TestAddImageEvidenceWithoutBlobStore(t *testing.T) {
	svc, _ := newTestService(t)
	created := mustCreate(t, svc, manager, draftExperiment(manager.ID))
	if _, err := svc.AddImageEvidence(context.Background(), manager, created.ID, "x.png", "image/png", strings.NewReader("x"), ""); err == nil {
		t.Fatal("expected error without configured object storage")
	}
}

func TestRemoveEvidence(t *testing.T) {
	blobs := blob.NewMemory()
	svc, _ := newTestService(t, WithBlobStore(blobs))
	ctx := context.Background()
	created := mustCreate(t, svc, manager, draftExperiment(manager.ID))

	ev, err := svc.AddImageEvidence(ctx, manager, created.ID, "s.png", "image/png", strings.NewReader("x"), "")
	if err != nil {
		t.Fatalf("add image evidence: %v", err)
	}
	expBefore, _ := svc.GetExperiment(ctx, created.ID)

	if err := svc.RemoveEvidence(ctx, manager, ev.ID); err != nil {
		t.Fatalf("remove evidence: %v", err)
	}
	if len(svc.ListEvidence(ctx, created.ID)) != 0 {
		t.Fatal("evidence record still present")
	}
	if _, err := blobs.Head(ctx, ev.BlobKey); err == nil {
		t.Fatal("expected stored object released")
	}

	// Removal never cascades to the experiment.
	expAfter, _ := svc.GetExperiment(ctx, created.ID)
	if expAfter.Status != expBefore.Status || expAfter.Name != expBefore.Name {
		t.Fatalf("experiment changed by evidence removal: %+v", expAfter)
	}

	err = svc.RemoveEvidence(ctx, manager, ev.ID)
	var nfe domain.NotFoundError
	if !errors.As(err, &nfe) {
		t.Fatalf("expected NotFoundError on second removal, got %v", err)
	}
}
