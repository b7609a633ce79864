package core

import (
	"context"
	"math"
	"sort"

	"experimentcore/pkg/domain"
)

// topGroupLimit caps the per-group breakdowns in a report.
const topGroupLimit = 10

// GroupCount is one row of a report grouping.
type GroupCount struct {
	Key   string `json:"key"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Report aggregates the experiment collection for a read-side view. It is
// recomputed from committed data on every call; nothing is cached.
type Report struct {
	Total               int                `json:"total"`
	StatusCounts        map[Status]int     `json:"status_counts"`
	ValidationCounts    map[Validation]int `json:"validation_counts"`
	WinRate             float64            `json:"win_rate"`
	CompletionRate      float64            `json:"completion_rate"`
	AverageDurationDays int                `json:"average_duration_days"`
	TopClients          []GroupCount       `json:"top_clients"`
	TopOwners           []GroupCount       `json:"top_owners"`
}

// GetReport computes aggregate statistics over the filtered experiment
// collection. Archived records are excluded unless the filter includes them.
// Validation counts cover concluded experiments only; zero denominators
// yield zero rates rather than an error.
func (s *Service) GetReport(ctx context.Context, filter Filter) Report {
	experiments := domain.FilterExperiments(s.store.ListExperiments(), filter)

	report := Report{
		Total:            len(experiments),
		StatusCounts:     make(map[Status]int),
		ValidationCounts: make(map[Validation]int),
	}

	var concluded, wins int
	var durationDays float64
	var durationCount int
	clientCounts := make(map[string]int)
	ownerCounts := make(map[string]int)

	for _, e := range experiments {
		report.StatusCounts[e.Status]++
		clientCounts[e.ClientID]++
		ownerCounts[e.OwnerID]++
		if e.Status == StatusConcluded {
			concluded++
			report.ValidationCounts[e.Validation]++
			if e.Validation == ValidationGood {
				wins++
			}
		}
		if e.StartDate != nil && e.EndDate != nil {
			durationDays += e.EndDate.Sub(*e.StartDate).Hours() / 24
			durationCount++
		}
	}

	if concluded > 0 {
		report.WinRate = float64(wins) / float64(concluded)
	}
	if report.Total > 0 {
		report.CompletionRate = float64(concluded) / float64(report.Total)
	}
	if durationCount > 0 {
		report.AverageDurationDays = int(math.Round(durationDays / float64(durationCount)))
	}

	report.TopClients = s.topGroups(ctx, clientCounts, s.resolveClientName)
	report.TopOwners = s.topGroups(ctx, ownerCounts, s.resolveOwnerName)
	return report
}

// topGroups ranks a count map, counts descending with name-ascending
// tiebreak, truncated to the group limit.
func (s *Service) topGroups(ctx context.Context, counts map[string]int, resolve func(context.Context, string) string) []GroupCount {
	groups := make([]GroupCount, 0, len(counts))
	for key, count := range counts {
		groups = append(groups, GroupCount{Key: key, Name: resolve(ctx, key), Count: count})
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Count != groups[j].Count {
			return groups[i].Count > groups[j].Count
		}
		return groups[i].Name < groups[j].Name
	})
	if len(groups) > topGroupLimit {
		groups = groups[:topGroupLimit]
	}
	return groups
}

func (s *Service) resolveClientName(ctx context.Context, id string) string {
	if s.clients != nil {
		if info, err := s.clients.ResolveClient(ctx, id); err == nil && info.Name != "" {
			return info.Name
		}
	}
	return id
}

func (s *Service) resolveOwnerName(ctx context.Context, id string) string {
	if s.collaborators != nil {
		if info, err := s.collaborators.ResolveCollaborator(ctx, id); err == nil && info.Name != "" {
			return info.Name
		}
	}
	return id
}
