package sqlite

import (
	"context"
	"fmt"

	"taskboard/internal/models"
)

// AppendActivity writes one log entry.
func (q *Queries) AppendActivity(ctx context.Context, e models.ActivityEntry) error {
	_, err := q.q.ExecContext(ctx, `INSERT INTO activity_log(user_id, task_id, task_title, action, details, created_at) VALUES(?, ?, ?, ?, ?, ?)`,
		e.UserID, e.TaskID, e.TaskTitle, e.Action, e.Details, e.Timestamp)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

// ActivityFeed returns the most recent entries for a user, newest first.
func (q *Queries) ActivityFeed(ctx context.Context, userID int64, limit int) ([]models.ActivityEntry, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT id, user_id, task_id, task_title, action, details, created_at
        FROM activity_log WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	var entries []models.ActivityEntry
	for rows.Next() {
		var e models.ActivityEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.TaskID, &e.TaskTitle, &e.Action, &e.Details, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PruneActivity keeps only the newest keep entries of a user.
func (q *Queries) PruneActivity(ctx context.Context, userID int64, keep int) error {
	_, err := q.q.ExecContext(ctx, `DELETE FROM activity_log WHERE user_id = ? AND id NOT IN (
            SELECT id FROM activity_log WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?)`, userID, userID, keep)
	if err != nil {
		return fmt.Errorf("prune activity: %w", err)
	}
	return nil
}
