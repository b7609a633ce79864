package core

import (
	"context"
	"sort"
)

// AuditTrail returns an experiment's audit entries newest-first, the display
// order.
func (s *Service) AuditTrail(ctx context.Context, experimentID string) []AuditEntry {
	entries := s.store.ListAuditEntries(experimentID)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Seq > entries[j].Seq })
	return entries
}

// AuditHistory returns an experiment's audit entries oldest-first, the order
// needed to reconstruct its history.
func (s *Service) AuditHistory(ctx context.Context, experimentID string) []AuditEntry {
	entries := s.store.ListAuditEntries(experimentID)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Seq < entries[j].Seq })
	return entries
}
