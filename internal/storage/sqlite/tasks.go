package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"taskboard/internal/models"
)

const taskSelect = `SELECT id, owner_user_id, team_id, title, description, priority, status, assignee, assignee_name,
        milestone_id, created_at, updated_at, completed_at FROM tasks`

func scanTask(scanner interface{ Scan(dest ...any) error }) (models.Task, error) {
	var (
		t           models.Task
		teamID      sql.NullInt64
		assignee    sql.NullInt64
		milestoneID sql.NullInt64
		completedAt sql.NullTime
	)
	err := scanner.Scan(&t.ID, &t.OwnerUserID, &teamID, &t.Title, &t.Description, &t.Priority, &t.Status, &assignee, &t.AssigneeName,
		&milestoneID, &t.CreatedAt, &t.UpdatedAt, &completedAt)
	if err != nil {
		return models.Task{}, err
	}
	t.TeamID = int64Ptr(teamID)
	t.Assignee = int64Ptr(assignee)
	t.MilestoneID = int64Ptr(milestoneID)
	t.CompletedAt = timePtr(completedAt)
	return t, nil
}

// CreateTask inserts a task exactly as given and returns its id.
func (q *Queries) CreateTask(ctx context.Context, t models.Task) (int64, error) {
	if strings.TrimSpace(t.Title) == "" {
		return 0, models.InvalidInputf("task title must not be empty")
	}
	res, err := q.q.ExecContext(ctx, `INSERT INTO tasks(owner_user_id, team_id, title, description, priority, status, assignee, assignee_name,
        created_at, updated_at, completed_at) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.OwnerUserID, nullInt64(t.TeamID), strings.TrimSpace(t.Title), strings.TrimSpace(t.Description), t.Priority, t.Status,
		nullInt64(t.Assignee), t.AssigneeName, t.CreatedAt, t.UpdatedAt, nullTime(t.CompletedAt))
	if err != nil {
		return 0, fmt.Errorf("insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("task id: %w", err)
	}
	return id, nil
}

// GetTask retrieves a task by id without any visibility filtering.
func (q *Queries) GetTask(ctx context.Context, id int64) (models.Task, error) {
	t, err := scanTask(q.q.QueryRowContext(ctx, taskSelect+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Task{}, models.NotFoundf("task %d", id)
	}
	if err != nil {
		return models.Task{}, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// ListTasks returns the tasks of a scope, newest first. A nil filter.TeamID
// selects the personal tasks of ownerID.
func (q *Queries) ListTasks(ctx context.Context, ownerID int64, filter models.TaskFilter) ([]models.Task, error) {
	var (
		where []string
		args  []any
	)
	if filter.TeamID != nil {
		where = append(where, "team_id = ?")
		args = append(args, *filter.TeamID)
	} else {
		where = append(where, "owner_user_id = ?", "team_id IS NULL")
		args = append(args, ownerID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Priority != "" {
		where = append(where, "priority = ?")
		args = append(args, filter.Priority)
	}
	if filter.MilestoneID != nil {
		where = append(where, "milestone_id = ?")
		args = append(args, *filter.MilestoneID)
	}

	rows, err := q.q.QueryContext(ctx, taskSelect+` WHERE `+strings.Join(where, " AND ")+` ORDER BY created_at DESC, id DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return collectTasks(rows)
}

// ListMilestoneTasks returns the tasks linked to a milestone through the join table.
func (q *Queries) ListMilestoneTasks(ctx context.Context, milestoneID int64) ([]models.Task, error) {
	rows, err := q.q.QueryContext(ctx, taskSelect+` WHERE id IN (SELECT task_id FROM task_milestones WHERE milestone_id = ?) ORDER BY id ASC`, milestoneID)
	if err != nil {
		return nil, fmt.Errorf("list milestone tasks: %w", err)
	}
	return collectTasks(rows)
}

func collectTasks(rows *sql.Rows) ([]models.Task, error) {
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// UpdateTask writes every mutable column of t.
func (q *Queries) UpdateTask(ctx context.Context, t models.Task) error {
	if strings.TrimSpace(t.Title) == "" {
		return models.InvalidInputf("task title must not be empty")
	}
	res, err := q.q.ExecContext(ctx, `UPDATE tasks SET title = ?, description = ?, priority = ?, status = ?, assignee = ?, assignee_name = ?,
        updated_at = ?, completed_at = ? WHERE id = ?`,
		strings.TrimSpace(t.Title), strings.TrimSpace(t.Description), t.Priority, t.Status, nullInt64(t.Assignee), t.AssigneeName,
		t.UpdatedAt, nullTime(t.CompletedAt), t.ID)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return affectedOne(res, fmt.Sprintf("task %d", t.ID))
}

// DeleteTask removes a task by id; its milestone link cascades.
func (q *Queries) DeleteTask(ctx context.Context, id int64) error {
	res, err := q.q.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return affectedOne(res, fmt.Sprintf("task %d", id))
}
