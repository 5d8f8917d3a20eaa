// Package service implements the task lifecycle, custom stages, methodology
// migration, milestone handoff and team membership rules on top of the
// SQLite store. Every mutation runs in a single transaction.
package service

import (
	"context"
	"io"
	"log/slog"
	"time"

	"taskboard/internal/methodology"
	"taskboard/internal/models"
	"taskboard/internal/storage/sqlite"
)

// FeedLimit bounds the activity feed returned to a user.
const FeedLimit = 100

// Service is the application core consumed by the HTTP layer.
type Service struct {
	store     *sqlite.Store
	catalog   *methodology.Registry
	logger    *slog.Logger
	now       func() time.Time
	retention int
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithActivityRetention caps the stored activity entries per user. Zero keeps everything.
func WithActivityRetention(n int) Option {
	return func(s *Service) { s.retention = n }
}

// New wires the service.
func New(store *sqlite.Store, catalog *methodology.Registry, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Service{
		store:   store,
		catalog: catalog,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

// SyncPrincipal records the caller supplied by the auth collaborator.
func (s *Service) SyncPrincipal(ctx context.Context, p models.Principal) error {
	if p.UserID <= 0 {
		return models.InvalidInputf("principal has no user id")
	}
	if p.Username == "" {
		p.Username = p.Name
	}
	return s.store.UpsertUser(ctx, p, s.catalog.Default().ID, s.clock())
}

// Ping reports storage health.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
