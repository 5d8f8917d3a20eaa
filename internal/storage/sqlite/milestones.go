package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"taskboard/internal/models"
)

const milestoneSelect = `SELECT m.id, m.team_id, m.owner_user_id, m.name, m.description, m.due_date, m.handoff_to,
        COALESCE(u.name, ''), m.handoff_stage, m.completed_at, m.created_at, m.updated_at,
        (SELECT COUNT(*) FROM task_milestones tm WHERE tm.milestone_id = m.id)
        FROM milestones m LEFT JOIN users u ON u.id = m.handoff_to`

func scanMilestone(scanner interface{ Scan(dest ...any) error }) (models.Milestone, error) {
	var (
		m            models.Milestone
		teamID       sql.NullInt64
		dueDate      sql.NullTime
		handoffTo    sql.NullInt64
		handoffStage sql.NullString
		completedAt  sql.NullTime
	)
	err := scanner.Scan(&m.ID, &teamID, &m.OwnerUserID, &m.Name, &m.Description, &dueDate, &handoffTo, &m.HandoffToName,
		&handoffStage, &completedAt, &m.CreatedAt, &m.UpdatedAt, &m.TaskCount)
	if err != nil {
		return models.Milestone{}, err
	}
	m.TeamID = int64Ptr(teamID)
	m.DueDate = timePtr(dueDate)
	m.HandoffTo = int64Ptr(handoffTo)
	m.HandoffStage = handoffStage.String
	m.CompletedAt = timePtr(completedAt)
	return m, nil
}

// CreateMilestone inserts a milestone and returns its id.
func (q *Queries) CreateMilestone(ctx context.Context, m models.Milestone) (int64, error) {
	if strings.TrimSpace(m.Name) == "" {
		return 0, models.InvalidInputf("milestone name must not be empty")
	}
	res, err := q.q.ExecContext(ctx, `INSERT INTO milestones(team_id, owner_user_id, name, description, due_date, handoff_to, handoff_stage, created_at, updated_at)
        VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullInt64(m.TeamID), m.OwnerUserID, strings.TrimSpace(m.Name), strings.TrimSpace(m.Description), nullTime(m.DueDate),
		nullInt64(m.HandoffTo), nullString(m.HandoffStage), m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return 0, fmt.Errorf("insert milestone: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("milestone id: %w", err)
	}
	return id, nil
}

// GetMilestone fetches a milestone with its handoff assignee name and task count.
func (q *Queries) GetMilestone(ctx context.Context, id int64) (models.Milestone, error) {
	m, err := scanMilestone(q.q.QueryRowContext(ctx, milestoneSelect+` WHERE m.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Milestone{}, models.NotFoundf("milestone %d", id)
	}
	if err != nil {
		return models.Milestone{}, fmt.Errorf("get milestone: %w", err)
	}
	return m, nil
}

// ListMilestones returns the milestones of a team, or the personal milestones
// of ownerID when teamID is nil. Earliest due date first; undated last.
func (q *Queries) ListMilestones(ctx context.Context, ownerID int64, teamID *int64) ([]models.Milestone, error) {
	query := milestoneSelect + ` WHERE m.owner_user_id = ? AND m.team_id IS NULL`
	args := []any{ownerID}
	if teamID != nil {
		query = milestoneSelect + ` WHERE m.team_id = ?`
		args = []any{*teamID}
	}
	rows, err := q.q.QueryContext(ctx, query+` ORDER BY m.due_date IS NULL, m.due_date ASC, m.created_at DESC, m.id DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list milestones: %w", err)
	}
	defer rows.Close()

	var milestones []models.Milestone
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, fmt.Errorf("scan milestone: %w", err)
		}
		milestones = append(milestones, m)
	}
	return milestones, rows.Err()
}

// UpdateMilestone writes the editable fields of a milestone.
func (q *Queries) UpdateMilestone(ctx context.Context, m models.Milestone) error {
	if strings.TrimSpace(m.Name) == "" {
		return models.InvalidInputf("milestone name must not be empty")
	}
	res, err := q.q.ExecContext(ctx, `UPDATE milestones SET name = ?, description = ?, due_date = ?, handoff_to = ?, handoff_stage = ?, updated_at = ?
        WHERE id = ?`,
		strings.TrimSpace(m.Name), strings.TrimSpace(m.Description), nullTime(m.DueDate), nullInt64(m.HandoffTo), nullString(m.HandoffStage),
		m.UpdatedAt, m.ID)
	if err != nil {
		return fmt.Errorf("update milestone: %w", err)
	}
	return affectedOne(res, fmt.Sprintf("milestone %d", m.ID))
}

// MarkMilestoneComplete sets completed_at once. It reports false when the
// milestone was already complete.
func (q *Queries) MarkMilestoneComplete(ctx context.Context, id int64, now time.Time) (bool, error) {
	res, err := q.q.ExecContext(ctx, `UPDATE milestones SET completed_at = ?, updated_at = ? WHERE id = ? AND completed_at IS NULL`, now, now, id)
	if err != nil {
		return false, fmt.Errorf("complete milestone: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// DeleteMilestone unlinks every task and removes the milestone.
func (q *Queries) DeleteMilestone(ctx context.Context, id int64, now time.Time) error {
	if _, err := q.q.ExecContext(ctx, `UPDATE tasks SET milestone_id = NULL, updated_at = ? WHERE milestone_id = ?`, now, id); err != nil {
		return fmt.Errorf("unlink milestone tasks: %w", err)
	}
	if _, err := q.q.ExecContext(ctx, `DELETE FROM task_milestones WHERE milestone_id = ?`, id); err != nil {
		return fmt.Errorf("delete milestone links: %w", err)
	}
	res, err := q.q.ExecContext(ctx, `DELETE FROM milestones WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete milestone: %w", err)
	}
	return affectedOne(res, fmt.Sprintf("milestone %d", id))
}

// LinkTask attaches a task to a milestone, moving it off any previous one.
// The join row and tasks.milestone_id are always written together.
func (q *Queries) LinkTask(ctx context.Context, milestoneID, taskID int64, now time.Time) error {
	if _, err := q.q.ExecContext(ctx, `DELETE FROM task_milestones WHERE task_id = ?`, taskID); err != nil {
		return fmt.Errorf("clear task link: %w", err)
	}
	if _, err := q.q.ExecContext(ctx, `INSERT INTO task_milestones(task_id, milestone_id, created_at) VALUES(?, ?, ?)`, taskID, milestoneID, now); err != nil {
		return fmt.Errorf("insert task link: %w", err)
	}
	res, err := q.q.ExecContext(ctx, `UPDATE tasks SET milestone_id = ?, updated_at = ? WHERE id = ?`, milestoneID, now, taskID)
	if err != nil {
		return fmt.Errorf("set task milestone: %w", err)
	}
	return affectedOne(res, fmt.Sprintf("task %d", taskID))
}

// UnlinkTask detaches a task from a milestone.
func (q *Queries) UnlinkTask(ctx context.Context, milestoneID, taskID int64, now time.Time) error {
	res, err := q.q.ExecContext(ctx, `DELETE FROM task_milestones WHERE task_id = ? AND milestone_id = ?`, taskID, milestoneID)
	if err != nil {
		return fmt.Errorf("delete task link: %w", err)
	}
	if err := affectedOne(res, fmt.Sprintf("task %d in milestone %d", taskID, milestoneID)); err != nil {
		return err
	}
	if _, err := q.q.ExecContext(ctx, `UPDATE tasks SET milestone_id = NULL, updated_at = ? WHERE id = ?`, now, taskID); err != nil {
		return fmt.Errorf("clear task milestone: %w", err)
	}
	return nil
}

// ClearHandoffTo drops the handoff rule of a team's open milestones that hand
// off to userID and reports how many were changed.
func (q *Queries) ClearHandoffTo(ctx context.Context, teamID, userID int64, now time.Time) (int, error) {
	res, err := q.q.ExecContext(ctx, `UPDATE milestones SET handoff_to = NULL, handoff_stage = NULL, updated_at = ?
        WHERE team_id = ? AND handoff_to = ? AND completed_at IS NULL`, now, teamID, userID)
	if err != nil {
		return 0, fmt.Errorf("clear milestone handoff: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

// CountOpenHandoffsToStage counts open milestones whose handoff targets stageID.
func (q *Queries) CountOpenHandoffsToStage(ctx context.Context, stageID string) (int, error) {
	var count int
	err := q.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM milestones WHERE handoff_stage = ? AND completed_at IS NULL`, stageID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count milestone handoffs: %w", err)
	}
	return count, nil
}
