package opsapi_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"experimentcore/internal/adapters/opsapi"
	"experimentcore/internal/blob"
	"experimentcore/internal/core"
	"experimentcore/internal/directory"
	domain "experimentcore/pkg/domain"
)

type commentsResponse struct {
	Comments []domain.Comment `json:"comments"`
}

type evidenceResponse struct {
	Evidence []domain.Evidence `json:"evidence"`
}

type auditResponse struct {
	Entries []domain.AuditEntry `json:"entries"`
}

type templatesResponse struct {
	Templates []domain.Template `json:"templates"`
}

type funnelsResponse struct {
	Funnels []string `json:"funnels"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func setupHandler(t *testing.T) (*core.Service, *opsapi.Handler) {
	t.Helper()
	dir := directory.NewStatic()
	dir.AddCollaborator(domain.CollaboratorInfo{ID: "u-admin", Name: "Alice", Role: domain.RoleAdmin})
	dir.AddCollaborator(domain.CollaboratorInfo{ID: "u-manager", Name: "Marta", Role: domain.RoleManager})
	dir.AddCollaborator(domain.CollaboratorInfo{ID: "u-viewer", Name: "Vera", Role: domain.RoleViewer})
	dir.AddClient(domain.ClientInfo{ID: "c-1", Name: "Acme"})
	dir.SetFunnels("c-1", []string{"awareness", "conversion"})

	svc := core.NewInMemoryService(core.NewDefaultRulesEngine(),
		core.WithBlobStore(blob.NewMemory()),
		core.WithDirectories(dir, dir, dir))
	handler := opsapi.NewHandler(svc, dir)
	handler.Funnels = dir
	return svc, handler
}

func do(t *testing.T, handler http.Handler, method, target, actorID string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, body)
	if actorID != "" {
		req.Header.Set("X-Actor-Id", actorID)
	}
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp
}

func decode[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func createExperiment(t *testing.T, handler http.Handler, actorID string) domain.Experiment {
	t.Helper()
	resp := do(t, handler, http.MethodPost, "/api/v1/experiments", actorID, domain.Experiment{
		Name:       "Headline A/B",
		ClientID:   "c-1",
		Type:       domain.TypeCopy,
		Channel:    domain.ChannelPaidSocial,
		MetricKind: "ctr",
		Hypothesis: "shorter headline lifts CTR",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("create experiment: status %d body %s", resp.Code, resp.Body.String())
	}
	return decode[domain.Experiment](t, resp)
}

func TestHandlerCreateAndGetExperiment(t *testing.T) {
	_, handler := setupHandler(t)

	created := createExperiment(t, handler, "u-manager")
	if created.Status != domain.StatusPlanned {
		t.Fatalf("unexpected status: %s", created.Status)
	}
	if created.OwnerID != "u-manager" {
		t.Fatalf("unexpected owner: %s", created.OwnerID)
	}

	resp := do(t, handler, http.MethodGet, "/api/v1/experiments/"+created.ID, "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.Code)
	}
	fetched := decode[domain.Experiment](t, resp)
	if fetched.ID != created.ID || fetched.Name != "Headline A/B" {
		t.Fatalf("unexpected experiment: %+v", fetched)
	}
}

func TestHandlerRequiresKnownActor(t *testing.T) {
	_, handler := setupHandler(t)

	resp := do(t, handler, http.MethodPost, "/api/v1/experiments", "", domain.Experiment{Name: "x"})
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("missing header: status %d", resp.Code)
	}
	resp = do(t, handler, http.MethodPost, "/api/v1/experiments", "u-ghost", domain.Experiment{Name: "x"})
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("unknown actor: status %d", resp.Code)
	}
}

func TestHandlerErrorStatusMapping(t *testing.T) {
	_, handler := setupHandler(t)
	created := createExperiment(t, handler, "u-manager")

	// viewer cannot create
	resp := do(t, handler, http.MethodPost, "/api/v1/experiments", "u-viewer", domain.Experiment{
		Name: "nope", ClientID: "c-1", Type: domain.TypeCopy, Channel: domain.ChannelPaidSocial, MetricKind: "ctr",
	})
	if resp.Code != http.StatusForbidden {
		t.Fatalf("viewer create: status %d", resp.Code)
	}

	// validation failure
	resp = do(t, handler, http.MethodPost, "/api/v1/experiments", "u-admin", domain.Experiment{Name: ""})
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid draft: status %d", resp.Code)
	}

	// conclude from planned is an invalid transition
	resp = do(t, handler, http.MethodPost, "/api/v1/experiments/"+created.ID+"/conclude", "u-manager",
		core.ConcludeInput{Validation: domain.ValidationGood, ResultDescription: "n/a"})
	if resp.Code != http.StatusConflict {
		t.Fatalf("invalid transition: status %d", resp.Code)
	}

	// unknown experiment
	resp = do(t, handler, http.MethodGet, "/api/v1/experiments/missing", "", nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("missing experiment: status %d", resp.Code)
	}

	// malformed body
	req := httptest.NewRequest(http.MethodPost, "/api/v1/experiments", strings.NewReader("{"))
	req.Header.Set("X-Actor-Id", "u-admin")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: status %d", rec.Code)
	}
	if msg := decode[errorResponse](t, rec); msg.Error == "" {
		t.Fatalf("expected error message")
	}
}

func TestHandlerLifecycleEndpoints(t *testing.T) {
	_, handler := setupHandler(t)
	created := createExperiment(t, handler, "u-manager")
	base := "/api/v1/experiments/" + created.ID

	resp := do(t, handler, http.MethodPost, base+"/start", "u-manager", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("start: status %d body %s", resp.Code, resp.Body.String())
	}
	started := decode[domain.Experiment](t, resp)
	if started.Status != domain.StatusRunning || started.StartDate == nil {
		t.Fatalf("unexpected started state: %+v", started)
	}

	// evidence gate holds over HTTP too
	resp = do(t, handler, http.MethodPost, base+"/conclude", "u-manager",
		core.ConcludeInput{Validation: domain.ValidationGood, ResultDescription: "CTR +30%"})
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("conclude without evidence: status %d", resp.Code)
	}

	resp = do(t, handler, http.MethodPost, base+"/evidence", "u-manager",
		map[string]string{"url": "https://ads.example/123", "description": "dashboard"})
	if resp.Code != http.StatusCreated {
		t.Fatalf("link evidence: status %d body %s", resp.Code, resp.Body.String())
	}

	resp = do(t, handler, http.MethodPost, base+"/conclude", "u-manager",
		core.ConcludeInput{Validation: domain.ValidationGood, ResultDescription: "CTR +30%"})
	if resp.Code != http.StatusOK {
		t.Fatalf("conclude: status %d body %s", resp.Code, resp.Body.String())
	}
	concluded := decode[domain.Experiment](t, resp)
	if concluded.Status != domain.StatusConcluded || concluded.Validation != domain.ValidationGood {
		t.Fatalf("unexpected concluded state: %+v", concluded)
	}
}

func TestHandlerPatchUpdate(t *testing.T) {
	_, handler := setupHandler(t)
	created := createExperiment(t, handler, "u-manager")
	target := "/api/v1/experiments/" + created.ID

	resp := do(t, handler, http.MethodPatch, target, "u-manager",
		map[string]any{"version": created.Version, "hypothesis": "longer headline reads better", "notes": "second round"})
	if resp.Code != http.StatusOK {
		t.Fatalf("patch: status %d body %s", resp.Code, resp.Body.String())
	}
	updated := decode[domain.Experiment](t, resp)
	if updated.Hypothesis != "longer headline reads better" || updated.Notes != "second round" {
		t.Fatalf("unexpected update: %+v", updated)
	}
	if updated.Name != "Headline A/B" {
		t.Fatalf("absent fields must be untouched, got name %q", updated.Name)
	}

	// stale version
	resp = do(t, handler, http.MethodPatch, target, "u-manager",
		map[string]any{"version": created.Version, "notes": "stale"})
	if resp.Code != http.StatusConflict {
		t.Fatalf("stale version: status %d", resp.Code)
	}

	// version 0 skips the concurrency check
	resp = do(t, handler, http.MethodPatch, target, "u-admin",
		map[string]any{"notes": "admin override"})
	if resp.Code != http.StatusOK {
		t.Fatalf("admin edit: status %d", resp.Code)
	}
}

func TestHandlerListExperiments(t *testing.T) {
	_, handler := setupHandler(t)
	for i := 0; i < 3; i++ {
		resp := do(t, handler, http.MethodPost, "/api/v1/experiments", "u-manager", domain.Experiment{
			Name: fmt.Sprintf("exp-%d", i), ClientID: "c-1",
			Type: domain.TypeCopy, Channel: domain.ChannelPaidSocial, MetricKind: "ctr",
		})
		if resp.Code != http.StatusCreated {
			t.Fatalf("seed %d: status %d", i, resp.Code)
		}
	}

	resp := do(t, handler, http.MethodGet, "/api/v1/experiments?sort=name&limit=2", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("list: status %d", resp.Code)
	}
	page := decode[domain.ExperimentPage](t, resp)
	if page.Total != 3 || len(page.Items) != 2 {
		t.Fatalf("unexpected page: total=%d items=%d", page.Total, len(page.Items))
	}
	if page.Items[0].Name != "exp-0" || page.Items[1].Name != "exp-1" {
		t.Fatalf("unexpected order: %s, %s", page.Items[0].Name, page.Items[1].Name)
	}
}

func TestHandlerCommentsAndAudit(t *testing.T) {
	_, handler := setupHandler(t)
	created := createExperiment(t, handler, "u-manager")
	base := "/api/v1/experiments/" + created.ID

	resp := do(t, handler, http.MethodPost, base+"/comments", "u-viewer", map[string]string{"text": "looks promising"})
	if resp.Code != http.StatusCreated {
		t.Fatalf("comment: status %d body %s", resp.Code, resp.Body.String())
	}
	resp = do(t, handler, http.MethodGet, base+"/comments", "", nil)
	comments := decode[commentsResponse](t, resp)
	if len(comments.Comments) != 1 || comments.Comments[0].Text != "looks promising" {
		t.Fatalf("unexpected comments: %+v", comments.Comments)
	}

	resp = do(t, handler, http.MethodGet, base+"/audit", "", nil)
	trail := decode[auditResponse](t, resp)
	if len(trail.Entries) != 2 {
		t.Fatalf("expected create + comment entries, got %d", len(trail.Entries))
	}
	if trail.Entries[0].Seq < trail.Entries[1].Seq {
		t.Fatalf("default order must be newest first")
	}

	resp = do(t, handler, http.MethodGet, base+"/audit?order=asc", "", nil)
	history := decode[auditResponse](t, resp)
	if history.Entries[0].Action != domain.AuditCreated {
		t.Fatalf("ascending order must start with creation, got %s", history.Entries[0].Action)
	}
}

func TestHandlerImageEvidenceUploadAndDelete(t *testing.T) {
	_, handler := setupHandler(t)
	created := createExperiment(t, handler, "u-manager")
	base := "/api/v1/experiments/" + created.ID

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "before-after.png")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte("png-bytes")); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.WriteField("description", "screenshot"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, base+"/evidence", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Actor-Id", "u-manager")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload: status %d body %s", rec.Code, rec.Body.String())
	}
	uploaded := decode[domain.Evidence](t, rec)
	if uploaded.BlobKey == "" || uploaded.URL == "" {
		t.Fatalf("expected stored evidence, got %+v", uploaded)
	}

	resp := do(t, handler, http.MethodGet, base+"/evidence", "", nil)
	listed := decode[evidenceResponse](t, resp)
	if len(listed.Evidence) != 1 {
		t.Fatalf("expected one evidence record, got %d", len(listed.Evidence))
	}

	resp = do(t, handler, http.MethodDelete, "/api/v1/evidence/"+uploaded.ID, "u-manager", nil)
	if resp.Code != http.StatusNoContent {
		t.Fatalf("delete evidence: status %d", resp.Code)
	}
	resp = do(t, handler, http.MethodGet, base+"/evidence", "", nil)
	if listed = decode[evidenceResponse](t, resp); len(listed.Evidence) != 0 {
		t.Fatalf("evidence should be gone")
	}
}

func TestHandlerReport(t *testing.T) {
	_, handler := setupHandler(t)
	created := createExperiment(t, handler, "u-manager")
	base := "/api/v1/experiments/" + created.ID
	for _, step := range []string{"start"} {
		if resp := do(t, handler, http.MethodPost, base+"/"+step, "u-manager", nil); resp.Code != http.StatusOK {
			t.Fatalf("%s: status %d", step, resp.Code)
		}
	}
	do(t, handler, http.MethodPost, base+"/evidence", "u-manager", map[string]string{"url": "https://ads.example/123"})
	resp := do(t, handler, http.MethodPost, base+"/conclude", "u-manager",
		core.ConcludeInput{Validation: domain.ValidationGood, ResultDescription: "CTR +30%"})
	if resp.Code != http.StatusOK {
		t.Fatalf("conclude: status %d body %s", resp.Code, resp.Body.String())
	}

	resp = do(t, handler, http.MethodGet, "/api/v1/reports", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("report: status %d", resp.Code)
	}
	report := decode[core.Report](t, resp)
	if report.Total != 1 || report.WinRate != 1 || report.CompletionRate != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(report.TopClients) != 1 || report.TopClients[0].Name != "Acme" {
		t.Fatalf("expected resolved client name, got %+v", report.TopClients)
	}
}

func TestHandlerTemplates(t *testing.T) {
	_, handler := setupHandler(t)

	target := 0.05
	resp := do(t, handler, http.MethodPost, "/api/v1/templates", "u-admin", domain.Template{
		Name: "CTR preset", Type: domain.TypeCopy, Channel: domain.ChannelPaidSocial,
		MetricKind: "ctr", TargetValue: &target,
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("create template: status %d body %s", resp.Code, resp.Body.String())
	}
	template := decode[domain.Template](t, resp)
	if !template.Active {
		t.Fatalf("templates must start active")
	}

	// manager cannot manage templates
	resp = do(t, handler, http.MethodPost, "/api/v1/templates", "u-manager", domain.Template{Name: "nope"})
	if resp.Code != http.StatusForbidden {
		t.Fatalf("manager template create: status %d", resp.Code)
	}

	resp = do(t, handler, http.MethodPost, "/api/v1/templates/"+template.ID+"/apply", "",
		domain.Experiment{Name: "draft", Hypothesis: "keep mine"})
	if resp.Code != http.StatusOK {
		t.Fatalf("apply template: status %d body %s", resp.Code, resp.Body.String())
	}
	merged := decode[domain.Experiment](t, resp)
	if merged.Type != domain.TypeCopy || merged.Hypothesis != "keep mine" {
		t.Fatalf("unexpected merge: %+v", merged)
	}
	if merged.MetricKind != "ctr" || merged.TargetValue == nil || *merged.TargetValue != 0.05 {
		t.Fatalf("template fields not applied: %+v", merged)
	}

	resp = do(t, handler, http.MethodDelete, "/api/v1/templates/"+template.ID, "u-admin", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("deactivate template: status %d", resp.Code)
	}
	resp = do(t, handler, http.MethodGet, "/api/v1/templates", "", nil)
	if listed := decode[templatesResponse](t, resp); len(listed.Templates) != 0 {
		t.Fatalf("inactive templates must be hidden by default")
	}
	resp = do(t, handler, http.MethodGet, "/api/v1/templates?include_inactive=true", "", nil)
	if listed := decode[templatesResponse](t, resp); len(listed.Templates) != 1 {
		t.Fatalf("include_inactive must surface deactivated templates")
	}
}

func TestHandlerFunnels(t *testing.T) {
	_, handler := setupHandler(t)

	resp := do(t, handler, http.MethodGet, "/api/v1/clients/c-1/funnels", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("funnels: status %d", resp.Code)
	}
	funnels := decode[funnelsResponse](t, resp)
	if len(funnels.Funnels) != 2 || funnels.Funnels[0] != "awareness" {
		t.Fatalf("unexpected funnels: %v", funnels.Funnels)
	}
}

func TestHandlerUnknownRoute(t *testing.T) {
	_, handler := setupHandler(t)
	resp := do(t, handler, http.MethodGet, "/api/v1/unknown", "", nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: %d", resp.Code)
	}
}
