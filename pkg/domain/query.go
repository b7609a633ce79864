package domain

import (
	"sort"
	"strings"
)

// Filter narrows an experiment listing. Zero values mean "no constraint".
// Archived records are excluded unless IncludeArchived is set.
type Filter struct {
	Status          Status         `json:"status,omitempty"`
	Validation      Validation     `json:"validation,omitempty"`
	Type            ExperimentType `json:"type,omitempty"`
	Channel         Channel        `json:"channel,omitempty"`
	ClientID        string         `json:"client_id,omitempty"`
	OwnerID         string         `json:"owner_id,omitempty"`
	Query           string         `json:"query,omitempty"`
	IncludeArchived bool           `json:"include_archived,omitempty"`
}

// Matches reports whether the experiment satisfies every set constraint.
func (f Filter) Matches(e Experiment) bool {
	if e.Archived && !f.IncludeArchived {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if f.Validation != "" && e.Validation != f.Validation {
		return false
	}
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if f.Channel != "" && e.Channel != f.Channel {
		return false
	}
	if f.ClientID != "" && e.ClientID != f.ClientID {
		return false
	}
	if f.OwnerID != "" && e.OwnerID != f.OwnerID {
		return false
	}
	if f.Query != "" {
		q := strings.ToLower(f.Query)
		if !strings.Contains(strings.ToLower(e.Name), q) &&
			!strings.Contains(strings.ToLower(e.Hypothesis), q) {
			return false
		}
	}
	return true
}

// SortField names an experiment listing sort key.
type SortField string

// Supported sort keys.
const (
	SortByName      SortField = "name"
	SortByCreatedAt SortField = "created_at"
	SortByStartDate SortField = "start_date"
	SortByStatus    SortField = "status"
)

// Sort describes a listing order.
type Sort struct {
	Field      SortField `json:"field,omitempty"`
	Descending bool      `json:"descending,omitempty"`
}

// Page bounds a listing result.
type Page struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// ExperimentPage is one page of a filtered, sorted listing.
type ExperimentPage struct {
	Items  []Experiment `json:"items"`
	Total  int          `json:"total"`
	Offset int          `json:"offset"`
	Limit  int          `json:"limit"`
}

// FilterExperiments returns the experiments matching the filter, preserving
// input order.
func FilterExperiments(list []Experiment, f Filter) []Experiment {
	out := make([]Experiment, 0, len(list))
	for _, e := range list {
		if f.Matches(e) {
			out = append(out, e)
		}
	}
	return out
}

// SortExperiments orders the slice in place. Ties and the unset field fall
// back to name ascending, then id, so listings are deterministic.
func SortExperiments(list []Experiment, s Sort) {
	less := func(a, b Experiment) bool {
		switch s.Field {
		case SortByCreatedAt:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
		case SortByStartDate:
			switch {
			case a.StartDate == nil && b.StartDate != nil:
				return true
			case a.StartDate != nil && b.StartDate == nil:
				return false
			case a.StartDate != nil && b.StartDate != nil && !a.StartDate.Equal(*b.StartDate):
				return a.StartDate.Before(*b.StartDate)
			}
		case SortByStatus:
			if a.Status != b.Status {
				return a.Status < b.Status
			}
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	}
	sort.SliceStable(list, func(i, j int) bool {
		if s.Descending {
			return less(list[j], list[i])
		}
		return less(list[i], list[j])
	})
}

// Paginate slices the list according to the page bounds. A zero or negative
// limit returns everything past the offset.
func Paginate(list []Experiment, p Page) ExperimentPage {
	total := len(list)
	offset := p.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	items := list[offset:]
	if p.Limit > 0 && p.Limit < len(items) {
		items = items[:p.Limit]
	}
	return ExperimentPage{Items: items, Total: total, Offset: offset, Limit: p.Limit}
}
