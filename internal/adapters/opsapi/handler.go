// Package opsapi exposes the experiment lifecycle service over HTTP for the
// operations console.
package opsapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"experimentcore/internal/core"
	"experimentcore/pkg/domain"
)

// actorHeader carries the authenticated collaborator id resolved upstream.
const actorHeader = "X-Actor-Id"

// Handler provides HTTP access to experiments, reports and templates.
type Handler struct {
	Service       *core.Service
	Collaborators domain.CollaboratorDirectory
	Funnels       domain.FunnelListing
}

// NewHandler constructs the API handler.
func NewHandler(service *core.Service, collaborators domain.CollaboratorDirectory) *Handler {
	return &Handler{Service: service, Collaborators: collaborators}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		writeError(w, http.StatusInternalServerError, "service not configured")
		return
	}

	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case path == "/api/v1/experiments":
		h.handleExperiments(w, r)
	case strings.HasPrefix(path, "/api/v1/experiments/"):
		h.handleExperiment(w, r, strings.TrimPrefix(path, "/api/v1/experiments/"))
	case strings.HasPrefix(path, "/api/v1/evidence/"):
		h.handleEvidence(w, r, strings.TrimPrefix(path, "/api/v1/evidence/"))
	case path == "/api/v1/reports":
		h.handleReport(w, r)
	case path == "/api/v1/templates":
		h.handleTemplates(w, r)
	case strings.HasPrefix(path, "/api/v1/templates/"):
		h.handleTemplate(w, r, strings.TrimPrefix(path, "/api/v1/templates/"))
	case strings.HasPrefix(path, "/api/v1/clients/") && strings.HasSuffix(path, "/funnels"):
		id := strings.TrimSuffix(strings.TrimPrefix(path, "/api/v1/clients/"), "/funnels")
		h.handleFunnels(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

// actor resolves the acting collaborator from the request header.
func (h *Handler) actor(r *http.Request) (domain.Actor, error) {
	id := r.Header.Get(actorHeader)
	if id == "" {
		return domain.Actor{}, errors.New("missing " + actorHeader + " header")
	}
	if h.Collaborators == nil {
		return domain.Actor{ID: id}, nil
	}
	info, err := h.Collaborators.ResolveCollaborator(r.Context(), id)
	if err != nil {
		return domain.Actor{}, err
	}
	return domain.Actor{ID: info.ID, Name: info.Name, Role: info.Role}, nil
}

func (h *Handler) requireActor(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
	actor, err := h.actor(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return domain.Actor{}, false
	}
	return actor, true
}

func (h *Handler) handleExperiments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		filter, sort, page := listParams(r)
		writeJSON(w, http.StatusOK, h.Service.ListExperiments(r.Context(), filter, sort, page))
	case http.MethodPost:
		actor, ok := h.requireActor(w, r)
		if !ok {
			return
		}
		var draft domain.Experiment
		if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON payload")
			return
		}
		created, err := h.Service.CreateExperiment(r.Context(), actor, draft)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) handleExperiment(w http.ResponseWriter, r *http.Request, remainder string) {
	segments := strings.Split(remainder, "/")
	id := segments[0]
	if id == "" {
		http.NotFound(w, r)
		return
	}

	if len(segments) == 1 {
		switch r.Method {
		case http.MethodGet:
			experiment, err := h.Service.GetExperiment(r.Context(), id)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, experiment)
		case http.MethodPatch:
			h.handleUpdate(w, r, id)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}

	if len(segments) != 2 {
		http.NotFound(w, r)
		return
	}

	sub := segments[1]
	switch sub {
	case "comments":
		h.handleComments(w, r, id)
		return
	case "evidence":
		h.handleExperimentEvidence(w, r, id)
		return
	case "audit":
		h.handleAudit(w, r, id)
		return
	}

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	var (
		experiment domain.Experiment
		err        error
	)
	switch sub {
	case "start":
		experiment, err = h.Service.StartExperiment(r.Context(), actor, id)
	case "pause":
		experiment, err = h.Service.PauseExperiment(r.Context(), actor, id)
	case "resume":
		experiment, err = h.Service.ResumeExperiment(r.Context(), actor, id)
	case "cancel":
		experiment, err = h.Service.CancelExperiment(r.Context(), actor, id)
	case "reopen":
		experiment, err = h.Service.ReopenExperiment(r.Context(), actor, id)
	case "archive":
		experiment, err = h.Service.ArchiveExperiment(r.Context(), actor, id)
	case "duplicate":
		experiment, err = h.Service.DuplicateExperiment(r.Context(), actor, id)
		if err == nil {
			writeJSON(w, http.StatusCreated, experiment)
			return
		}
	case "conclude":
		var input core.ConcludeInput
		if decodeErr := json.NewDecoder(r.Body).Decode(&input); decodeErr != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON payload")
			return
		}
		experiment, err = h.Service.ConcludeExperiment(r.Context(), actor, id, input)
	default:
		http.NotFound(w, r)
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, experiment)
}

// experimentUpdate is the PATCH payload: only fields present in the JSON
// body are applied. Version enables the optimistic concurrency check.
type experimentUpdate struct {
	Version           int                    `json:"version,omitempty"`
	Name              *string                `json:"name,omitempty"`
	ClientID          *string                `json:"client_id,omitempty"`
	Funnel            *string                `json:"funnel,omitempty"`
	Type              *domain.ExperimentType `json:"type,omitempty"`
	Channel           *domain.Channel        `json:"channel,omitempty"`
	Validation        *domain.Validation     `json:"validation,omitempty"`
	MetricKind        *string                `json:"metric_kind,omitempty"`
	TargetValue       *float64               `json:"target_value,omitempty"`
	ObservedValue     *float64               `json:"observed_value,omitempty"`
	Hypothesis        *string                `json:"hypothesis,omitempty"`
	ChangeDescription *string                `json:"change_description,omitempty"`
	TeamObservation   *string                `json:"team_observation,omitempty"`
	Notes             *string                `json:"notes,omitempty"`
	Learnings         *string                `json:"learnings,omitempty"`
	NextExperiments   *string                `json:"next_experiments,omitempty"`
	Links             *[]string              `json:"links,omitempty"`
}

func (u experimentUpdate) apply(e *domain.Experiment) {
	if u.Name != nil {
		e.Name = *u.Name
	}
	if u.ClientID != nil {
		e.ClientID = *u.ClientID
	}
	if u.Funnel != nil {
		e.Funnel = *u.Funnel
	}
	if u.Type != nil {
		e.Type = *u.Type
	}
	if u.Channel != nil {
		e.Channel = *u.Channel
	}
	if u.Validation != nil {
		e.Validation = *u.Validation
	}
	if u.MetricKind != nil {
		e.MetricKind = *u.MetricKind
	}
	if u.TargetValue != nil {
		e.TargetValue = u.TargetValue
	}
	if u.ObservedValue != nil {
		e.ObservedValue = u.ObservedValue
	}
	if u.Hypothesis != nil {
		e.Hypothesis = *u.Hypothesis
	}
	if u.ChangeDescription != nil {
		e.ChangeDescription = *u.ChangeDescription
	}
	if u.TeamObservation != nil {
		e.TeamObservation = *u.TeamObservation
	}
	if u.Notes != nil {
		e.Notes = *u.Notes
	}
	if u.Learnings != nil {
		e.Learnings = *u.Learnings
	}
	if u.NextExperiments != nil {
		e.NextExperiments = *u.NextExperiments
	}
	if u.Links != nil {
		e.Links = append([]string(nil), (*u.Links)...)
	}
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	var update experimentUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	updated, err := h.Service.UpdateExperiment(r.Context(), actor, id, update.Version, func(e *domain.Experiment) error {
		update.apply(e)
		return nil
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleComments(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"comments": h.Service.ListComments(r.Context(), id)})
	case http.MethodPost:
		actor, ok := h.requireActor(w, r)
		if !ok {
			return
		}
		var payload struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON payload")
			return
		}
		comment, err := h.Service.AddComment(r.Context(), actor, id, payload.Text)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, comment)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) handleExperimentEvidence(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"evidence": h.Service.ListEvidence(r.Context(), id)})
	case http.MethodPost:
		actor, ok := h.requireActor(w, r)
		if !ok {
			return
		}
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			h.handleImageEvidence(w, r, actor, id)
			return
		}
		var payload struct {
			URL         string `json:"url"`
			Description string `json:"description"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON payload")
			return
		}
		evidence, err := h.Service.AddLinkEvidence(r.Context(), actor, id, payload.URL, payload.Description)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, evidence)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleImageEvidence accepts a multipart upload with a "file" part and an
// optional "description" field.
func (h *Handler) handleImageEvidence(w http.ResponseWriter, r *http.Request, actor domain.Actor, id string) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file part")
		return
	}
	defer func() { _ = file.Close() }()

	evidence, err := h.Service.AddImageEvidence(r.Context(), actor, id,
		header.Filename, header.Header.Get("Content-Type"), file, r.FormValue("description"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, evidence)
}

func (h *Handler) handleEvidence(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	if err := h.Service.RemoveEvidence(r.Context(), actor, id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAudit(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var entries []domain.AuditEntry
	if r.URL.Query().Get("order") == "asc" {
		entries = h.Service.AuditHistory(r.Context(), id)
	} else {
		entries = h.Service.AuditTrail(r.Context(), id)
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	filter, _, _ := listParams(r)
	writeJSON(w, http.StatusOK, h.Service.GetReport(r.Context(), filter))
}

func (h *Handler) handleTemplates(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		includeInactive := r.URL.Query().Get("include_inactive") == "true"
		writeJSON(w, http.StatusOK, map[string]any{"templates": h.Service.ListTemplates(r.Context(), includeInactive)})
	case http.MethodPost:
		actor, ok := h.requireActor(w, r)
		if !ok {
			return
		}
		var template domain.Template
		if err := json.NewDecoder(r.Body).Decode(&template); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON payload")
			return
		}
		created, err := h.Service.CreateTemplate(r.Context(), actor, template)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) handleTemplate(w http.ResponseWriter, r *http.Request, remainder string) {
	segments := strings.Split(remainder, "/")
	id := segments[0]
	if id == "" {
		http.NotFound(w, r)
		return
	}

	if len(segments) == 2 && segments[1] == "apply" {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		var draft domain.Experiment
		if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON payload")
			return
		}
		merged, err := h.Service.ApplyTemplate(r.Context(), draft, id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, merged)
		return
	}
	if len(segments) != 1 {
		http.NotFound(w, r)
		return
	}

	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodPatch:
		var template domain.Template
		if err := json.NewDecoder(r.Body).Decode(&template); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON payload")
			return
		}
		updated, err := h.Service.UpdateTemplate(r.Context(), actor, id, func(t *domain.Template) error {
			if template.Name != "" {
				t.Name = template.Name
			}
			if template.Type != "" {
				t.Type = template.Type
			}
			if template.Channel != "" {
				t.Channel = template.Channel
			}
			if template.Hypothesis != "" {
				t.Hypothesis = template.Hypothesis
			}
			if template.MetricKind != "" {
				t.MetricKind = template.MetricKind
			}
			if template.TargetValue != nil {
				t.TargetValue = template.TargetValue
			}
			if template.Checklist != nil {
				t.Checklist = template.Checklist
			}
			return nil
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	case http.MethodDelete:
		deactivated, err := h.Service.DeactivateTemplate(r.Context(), actor, id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, deactivated)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) handleFunnels(w http.ResponseWriter, r *http.Request, clientID string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.Funnels == nil {
		http.NotFound(w, r)
		return
	}
	labels, err := h.Funnels.ListFunnels(r.Context(), clientID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"funnels": labels})
}

// listParams extracts filter, sort and page settings from query parameters.
func listParams(r *http.Request) (domain.Filter, domain.Sort, domain.Page) {
	q := r.URL.Query()
	filter := domain.Filter{
		Status:          domain.Status(q.Get("status")),
		Validation:      domain.Validation(q.Get("validation")),
		Type:            domain.ExperimentType(q.Get("type")),
		Channel:         domain.Channel(q.Get("channel")),
		ClientID:        q.Get("client_id"),
		OwnerID:         q.Get("owner_id"),
		Query:           q.Get("q"),
		IncludeArchived: q.Get("include_archived") == "true",
	}
	sort := domain.Sort{
		Field:      domain.SortField(q.Get("sort")),
		Descending: q.Get("desc") == "true",
	}
	offset, _ := strconv.Atoi(q.Get("offset"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	return filter, sort, domain.Page{Offset: offset, Limit: limit}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

// writeDomainError maps the typed domain errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	var (
		validationErr domain.ValidationError
		permissionErr domain.PermissionError
		transitionErr domain.InvalidTransitionError
		evidenceErr   domain.EvidenceRequiredError
		notFoundErr   domain.NotFoundError
		conflictErr   domain.ConflictError
		ruleErr       domain.RuleViolationError
	)
	switch {
	case errors.As(err, &notFoundErr):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &permissionErr):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.As(err, &conflictErr), errors.As(err, &transitionErr):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &validationErr), errors.As(err, &evidenceErr), errors.As(err, &ruleErr):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
