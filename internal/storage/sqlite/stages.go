package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"taskboard/internal/models"
)

const stageSelect = `SELECT id, team_id, name, description, icon, color, order_index, is_initial, is_final, created_at FROM team_stages`

func scanStage(scanner interface{ Scan(dest ...any) error }) (models.Stage, error) {
	var (
		s      models.Stage
		teamID int64
	)
	err := scanner.Scan(&s.ID, &teamID, &s.Name, &s.Description, &s.Icon, &s.Color, &s.OrderIndex, &s.IsInitial, &s.IsFinal, &s.CreatedAt)
	if err != nil {
		return models.Stage{}, err
	}
	s.TeamID = &teamID
	s.Custom = true
	return s, nil
}

// ListStages returns a team's custom stages in board order.
func (q *Queries) ListStages(ctx context.Context, teamID int64) ([]models.Stage, error) {
	rows, err := q.q.QueryContext(ctx, stageSelect+` WHERE team_id = ? ORDER BY order_index ASC`, teamID)
	if err != nil {
		return nil, fmt.Errorf("list stages: %w", err)
	}
	defer rows.Close()

	var stages []models.Stage
	for rows.Next() {
		s, err := scanStage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stage: %w", err)
		}
		stages = append(stages, s)
	}
	return stages, rows.Err()
}

// GetStage fetches a custom stage by id.
func (q *Queries) GetStage(ctx context.Context, id string) (models.Stage, error) {
	s, err := scanStage(q.q.QueryRowContext(ctx, stageSelect+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Stage{}, models.NotFoundf("stage %s", id)
	}
	if err != nil {
		return models.Stage{}, fmt.Errorf("get stage: %w", err)
	}
	return s, nil
}

// CreateStage inserts a custom stage at the end of the team's board.
func (q *Queries) CreateStage(ctx context.Context, s models.Stage) (models.Stage, error) {
	if s.TeamID == nil {
		return models.Stage{}, fmt.Errorf("custom stage requires a team")
	}
	if strings.TrimSpace(s.Name) == "" {
		return models.Stage{}, models.InvalidInputf("stage name must not be empty")
	}
	if s.Color == "" {
		s.Color = "gray"
	}

	pos, err := q.nextStageIndex(ctx, *s.TeamID)
	if err != nil {
		return models.Stage{}, err
	}

	_, err = q.q.ExecContext(ctx, `INSERT INTO team_stages(id, team_id, name, description, icon, color, order_index, is_initial, is_final, created_at)
        VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, *s.TeamID, strings.TrimSpace(s.Name), strings.TrimSpace(s.Description), s.Icon, s.Color, pos, s.IsInitial, s.IsFinal, s.CreatedAt)
	if err != nil {
		return models.Stage{}, fmt.Errorf("insert stage: %w", err)
	}
	return q.GetStage(ctx, s.ID)
}

// UpdateStage writes a stage's editable fields. Order is managed by SetStageOrder.
func (q *Queries) UpdateStage(ctx context.Context, s models.Stage) error {
	if strings.TrimSpace(s.Name) == "" {
		return models.InvalidInputf("stage name must not be empty")
	}
	res, err := q.q.ExecContext(ctx, `UPDATE team_stages SET name = ?, description = ?, icon = ?, color = ?, is_initial = ?, is_final = ? WHERE id = ?`,
		strings.TrimSpace(s.Name), strings.TrimSpace(s.Description), s.Icon, s.Color, s.IsInitial, s.IsFinal, s.ID)
	if err != nil {
		return fmt.Errorf("update stage: %w", err)
	}
	return affectedOne(res, "stage "+s.ID)
}

// ClearInitialStage drops the initial flag from every team stage except keep.
func (q *Queries) ClearInitialStage(ctx context.Context, teamID int64, keep string) error {
	if _, err := q.q.ExecContext(ctx, `UPDATE team_stages SET is_initial = 0 WHERE team_id = ? AND id <> ?`, teamID, keep); err != nil {
		return fmt.Errorf("clear initial stage: %w", err)
	}
	return nil
}

// SetStageOrder rewrites order_index so ids[i] sits at position i. Indices are
// moved out of the way first because (team_id, order_index) is unique.
func (q *Queries) SetStageOrder(ctx context.Context, teamID int64, ids []string) error {
	for i, id := range ids {
		if _, err := q.q.ExecContext(ctx, `UPDATE team_stages SET order_index = ? WHERE id = ? AND team_id = ?`, -1-i, id, teamID); err != nil {
			return fmt.Errorf("park stage order: %w", err)
		}
	}
	for i, id := range ids {
		res, err := q.q.ExecContext(ctx, `UPDATE team_stages SET order_index = ? WHERE id = ? AND team_id = ?`, i, id, teamID)
		if err != nil {
			return fmt.Errorf("set stage order: %w", err)
		}
		if err := affectedOne(res, "stage "+id); err != nil {
			return err
		}
	}
	return nil
}

// DeleteStage removes a custom stage.
func (q *Queries) DeleteStage(ctx context.Context, id string) error {
	res, err := q.q.ExecContext(ctx, `DELETE FROM team_stages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete stage: %w", err)
	}
	return affectedOne(res, "stage "+id)
}

// CountTasksInStatus counts tasks currently sitting in status.
func (q *Queries) CountTasksInStatus(ctx context.Context, status string) (int, error) {
	var count int
	if err := q.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE status = ?`, status).Scan(&count); err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return count, nil
}

func (q *Queries) nextStageIndex(ctx context.Context, teamID int64) (int, error) {
	var position sql.NullInt64
	err := q.q.QueryRowContext(ctx, `SELECT MAX(order_index) FROM team_stages WHERE team_id = ?`, teamID).Scan(&position)
	if err != nil {
		return 0, fmt.Errorf("select stage position: %w", err)
	}
	if position.Valid {
		return int(position.Int64) + 1, nil
	}
	return 0, nil
}
