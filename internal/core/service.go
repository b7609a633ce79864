// Package core implements the experiment lifecycle engine: transactional
// commands over the experiment collection, permission gating, the append-only
// audit trail, reporting, and templates.
package core

import (
	"context"
	"log/slog"
	"time"

	"experimentcore/internal/blob"
	"experimentcore/internal/infra/persistence/memory"
	"experimentcore/pkg/domain"
)

type (
	Transaction     = domain.Transaction
	TransactionView = domain.TransactionView
	PersistentStore = domain.PersistentStore
)

// Service exposes the transactional command and query surface of the engine.
// Every mutating operation authorizes the actor, applies the mutation and
// appends exactly one audit entry within a single store transaction.
type Service struct {
	store         PersistentStore
	blobs         blob.Store
	logger        *slog.Logger
	metrics       MetricsRecorder
	tracer        Tracer
	notifier      domain.Notifier
	clients       domain.ClientDirectory
	collaborators domain.CollaboratorDirectory
	funnels       domain.FunnelListing
	now           func() time.Time
}

// Option customizes service construction.
type Option func(*Service)

// WithLogger sets the structured logger used for rule warnings and
// fire-and-forget failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsRecorder observes every service operation outcome.
func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(s *Service) { s.metrics = recorder }
}

// WithTracer wraps every service operation in a trace span.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) { s.tracer = tracer }
}

// WithNotifier delivers status-change notifications after committed
// transitions. Delivery is fire-and-forget.
func WithNotifier(notifier domain.Notifier) Option {
	return func(s *Service) { s.notifier = notifier }
}

// WithBlobStore supplies the object storage backend for image evidence.
func WithBlobStore(store blob.Store) Option {
	return func(s *Service) { s.blobs = store }
}

// WithDirectories wires the external client/collaborator/funnel lookups.
// Any of the arguments may be nil.
func WithDirectories(clients domain.ClientDirectory, collaborators domain.CollaboratorDirectory, funnels domain.FunnelListing) Option {
	return func(s *Service) {
		s.clients = clients
		s.collaborators = collaborators
		s.funnels = funnels
	}
}

// WithClock overrides the time source. Tests use this for deterministic
// start/end dates.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInMemoryService creates a service over a fresh in-memory store with the
// given rules engine.
func NewInMemoryService(engine *RulesEngine, opts ...Option) *Service {
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying persistent store.
func (s *Service) Store() PersistentStore { return s.store }

// instrument wraps an operation with tracing, metrics and warning logs for
// non-blocking rule violations.
func (s *Service) instrument(ctx context.Context, operation string, fn func(ctx context.Context) (Result, error)) error {
	var span TraceSpan
	if s.tracer != nil {
		ctx, span = s.tracer.Start(ctx, operation)
	}
	started := time.Now()
	res, err := fn(ctx)
	if span != nil {
		span.End(err)
	}
	if s.metrics != nil {
		s.metrics.Observe(ctx, operation, err == nil, time.Since(started))
	}
	for _, v := range res.Violations {
		if v.Severity != SeverityBlock {
			s.logger.Warn("rule violation",
				slog.String("operation", operation),
				slog.String("rule", v.Rule),
				slog.String("severity", string(v.Severity)),
				slog.String("entity_id", v.EntityID),
				slog.String("message", v.Message))
		}
	}
	return err
}

// notifyStatusChange dispatches to the configured notifier without blocking
// the caller. Failures are logged and dropped.
func (s *Service) notifyStatusChange(experiment Experiment, actor Actor) {
	if s.notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.notifier.NotifyStatusChange(ctx, experiment, actor); err != nil {
			s.logger.Error("status change notification failed",
				slog.String("experiment_id", experiment.ID),
				slog.String("status", string(experiment.Status)),
				slog.String("error", err.Error()))
		}
	}()
}

// requireCapability returns a PermissionError unless ok.
func requireCapability(actor Actor, capability string, ok bool) error {
	if ok {
		return nil
	}
	return domain.PermissionError{ActorID: actor.ID, Capability: capability}
}

// requireEdit authorizes a mutation of an experiment owned by ownerID.
func requireEdit(actor Actor, ownerID string) error {
	if actor.Capabilities().CanEdit(actor.ID, ownerID) {
		return nil
	}
	return domain.PermissionError{ActorID: actor.ID, Capability: "edit"}
}
