package domain

import "context"

// ClientInfo is the directory projection of a client record.
type ClientInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CollaboratorInfo is the directory projection of a collaborator record.
type CollaboratorInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Role      Role   `json:"role"`
}

// ClientDirectory resolves client references to display data. Read-only.
type ClientDirectory interface {
	ResolveClient(ctx context.Context, id string) (ClientInfo, error)
}

// CollaboratorDirectory resolves collaborator references and actor identity.
type CollaboratorDirectory interface {
	ResolveCollaborator(ctx context.Context, id string) (CollaboratorInfo, error)
}

// FunnelListing lists the funnel labels associated with a client. The labels
// populate a selection aid only; they are never an invariant source.
type FunnelListing interface {
	ListFunnels(ctx context.Context, clientID string) ([]string, error)
}

// Notifier receives fire-and-forget notifications about committed lifecycle
// events. Failures must never abort the primary mutation; callers log and
// move on.
type Notifier interface {
	NotifyStatusChange(ctx context.Context, experiment Experiment, actor Actor) error
}
