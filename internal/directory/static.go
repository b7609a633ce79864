// Package directory provides in-memory implementations of the external
// directory interfaces, used by tests and as a standalone deployment's
// default wiring.
package directory

import (
	"context"
	"log/slog"
	"sync"

	"experimentcore/pkg/domain"
)

// Static is a fixed, concurrency-safe directory of clients, collaborators
// and funnels.
type Static struct {
	mu            sync.RWMutex
	clients       map[string]domain.ClientInfo
	collaborators map[string]domain.CollaboratorInfo
	funnels       map[string][]string
}

// NewStatic builds an empty static directory.
func NewStatic() *Static {
	return &Static{
		clients:       make(map[string]domain.ClientInfo),
		collaborators: make(map[string]domain.CollaboratorInfo),
		funnels:       make(map[string][]string),
	}
}

// AddClient registers a client record.
func (s *Static) AddClient(info domain.ClientInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[info.ID] = info
}

// AddCollaborator registers a collaborator record.
func (s *Static) AddCollaborator(info domain.CollaboratorInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collaborators[info.ID] = info
}

// SetFunnels replaces the funnel labels associated with a client.
func (s *Static) SetFunnels(clientID string, labels []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.funnels[clientID] = append([]string(nil), labels...)
}

// ResolveClient implements domain.ClientDirectory.
func (s *Static) ResolveClient(_ context.Context, id string) (domain.ClientInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.clients[id]
	if !ok {
		return domain.ClientInfo{}, domain.NotFoundError{Entity: "client", ID: id}
	}
	return info, nil
}

// ResolveCollaborator implements domain.CollaboratorDirectory.
func (s *Static) ResolveCollaborator(_ context.Context, id string) (domain.CollaboratorInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.collaborators[id]
	if !ok {
		return domain.CollaboratorInfo{}, domain.NotFoundError{Entity: "collaborator", ID: id}
	}
	return info, nil
}

// ListFunnels implements domain.FunnelListing.
func (s *Static) ListFunnels(_ context.Context, clientID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.funnels[clientID]...), nil
}

// LogNotifier satisfies domain.Notifier by logging each status change. It is
// the notifier of record for deployments without an outbound channel.
type LogNotifier struct {
	Logger *slog.Logger
}

// NotifyStatusChange implements domain.Notifier.
func (n LogNotifier) NotifyStatusChange(_ context.Context, experiment domain.Experiment, actor domain.Actor) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("experiment status changed",
		slog.String("experiment_id", experiment.ID),
		slog.String("status", string(experiment.Status)),
		slog.String("actor_id", actor.ID))
	return nil
}
