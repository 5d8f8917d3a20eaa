package service

import (
	"context"
	"fmt"

	"taskboard/internal/models"
	"taskboard/internal/storage/sqlite"
)

// ActivityFeed returns the caller's most recent activity, newest first.
func (s *Service) ActivityFeed(ctx context.Context, p models.Principal) ([]models.ActivityEntry, error) {
	entries, err := s.store.ActivityFeed(ctx, p.UserID, FeedLimit)
	if err != nil {
		return nil, fmt.Errorf("activity feed: %w", err)
	}
	return entries, nil
}

func (s *Service) logActivity(ctx context.Context, q *sqlite.Queries, p models.Principal, t models.Task, action, details string) error {
	err := q.AppendActivity(ctx, models.ActivityEntry{
		UserID:    p.UserID,
		TaskID:    t.ID,
		TaskTitle: t.Title,
		Action:    action,
		Details:   details,
		Timestamp: s.clock(),
	})
	if err != nil {
		return err
	}
	if s.retention > 0 {
		return q.PruneActivity(ctx, p.UserID, s.retention)
	}
	return nil
}
