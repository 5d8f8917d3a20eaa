package service

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"taskboard/internal/authz"
	"taskboard/internal/models"
	"taskboard/internal/storage/sqlite"
)

// StageInput carries the fields of a new custom stage.
type StageInput struct {
	Name        string
	Description string
	Icon        string
	Color       string
	IsInitial   bool
	IsFinal     bool
}

// StagePatch lists the stage fields to change.
type StagePatch struct {
	Name        *string
	Description *string
	Icon        *string
	Color       *string
	IsInitial   *bool
	IsFinal     *bool
}

// ListStages returns a team's custom stages in board order.
func (s *Service) ListStages(ctx context.Context, p models.Principal, teamID int64) ([]models.Stage, error) {
	if _, _, err := requireMember(ctx, s.store.Queries, p, teamID); err != nil {
		return nil, err
	}
	return s.store.ListStages(ctx, teamID)
}

// CreateStage appends a custom stage to the team's board.
func (s *Service) CreateStage(ctx context.Context, p models.Principal, teamID int64, in StageInput) (models.Stage, error) {
	var created models.Stage
	err := s.store.WithTx(ctx, func(q *sqlite.Queries) error {
		if _, _, err := requirePermission(ctx, q, p, teamID, authz.EditTeam); err != nil {
			return err
		}

		id := "stage_" + uuid.NewString()
		var err error
		created, err = q.CreateStage(ctx, models.Stage{
			ID:          id,
			TeamID:      &teamID,
			Name:        in.Name,
			Description: in.Description,
			Icon:        in.Icon,
			Color:       in.Color,
			IsInitial:   in.IsInitial,
			IsFinal:     in.IsFinal,
			CreatedAt:   s.clock(),
		})
		if err != nil {
			return err
		}
		if created.IsInitial {
			return q.ClearInitialStage(ctx, teamID, created.ID)
		}
		return nil
	})
	if err != nil {
		return models.Stage{}, err
	}

	s.logger.Info("stage created", "team_id", teamID, "stage_id", created.ID, "order", created.OrderIndex)
	return created, nil
}

// UpdateStage applies a partial update to a custom stage.
func (s *Service) UpdateStage(ctx context.Context, p models.Principal, stageID string, patch StagePatch) (models.Stage, error) {
	var updated models.Stage
	err := s.store.WithTx(ctx, func(q *sqlite.Queries) error {
		stage, err := s.editableStage(ctx, q, p, stageID)
		if err != nil {
			return err
		}

		if patch.Name != nil {
			stage.Name = *patch.Name
		}
		if patch.Description != nil {
			stage.Description = *patch.Description
		}
		if patch.Icon != nil {
			stage.Icon = *patch.Icon
		}
		if patch.Color != nil {
			stage.Color = strings.TrimSpace(*patch.Color)
		}
		if patch.IsInitial != nil {
			stage.IsInitial = *patch.IsInitial
		}
		if patch.IsFinal != nil && *patch.IsFinal != stage.IsFinal {
			count, err := q.CountTasksInStatus(ctx, stage.ID)
			if err != nil {
				return err
			}
			if count > 0 {
				return &models.StageInUseError{StageID: stage.ID, Count: count}
			}
			stage.IsFinal = *patch.IsFinal
		}

		if err := q.UpdateStage(ctx, stage); err != nil {
			return err
		}
		if stage.IsInitial {
			if err := q.ClearInitialStage(ctx, *stage.TeamID, stage.ID); err != nil {
				return err
			}
		}
		updated, err = q.GetStage(ctx, stage.ID)
		return err
	})
	return updated, err
}

// ReorderStages places the team's custom stages in the given order. The list
// must name every stage of the team exactly once.
func (s *Service) ReorderStages(ctx context.Context, p models.Principal, teamID int64, ids []string) ([]models.Stage, error) {
	var stages []models.Stage
	err := s.store.WithTx(ctx, func(q *sqlite.Queries) error {
		if _, _, err := requirePermission(ctx, q, p, teamID, authz.EditTeam); err != nil {
			return err
		}
		current, err := q.ListStages(ctx, teamID)
		if err != nil {
			return err
		}

		owned := make(map[string]bool, len(current))
		for _, st := range current {
			owned[st.ID] = true
		}
		seen := make(map[string]bool, len(ids))
		for _, id := range ids {
			if !owned[id] {
				return models.NotFoundf("stage %s in team %d", id, teamID)
			}
			if seen[id] {
				return models.InvalidInputf("stage %s listed twice", id)
			}
			seen[id] = true
		}
		if len(ids) != len(current) {
			return models.InvalidInputf("expected %d stage ids, got %d", len(current), len(ids))
		}

		if err := q.SetStageOrder(ctx, teamID, ids); err != nil {
			return err
		}
		stages, err = q.ListStages(ctx, teamID)
		return err
	})
	return stages, err
}

// DeleteStage removes a custom stage that no task sits in and no open
// milestone hands off to, then closes the gap it leaves.
func (s *Service) DeleteStage(ctx context.Context, p models.Principal, stageID string) error {
	return s.store.WithTx(ctx, func(q *sqlite.Queries) error {
		stage, err := s.editableStage(ctx, q, p, stageID)
		if err != nil {
			return err
		}
		count, err := q.CountTasksInStatus(ctx, stage.ID)
		if err != nil {
			return err
		}
		handoffs, err := q.CountOpenHandoffsToStage(ctx, stage.ID)
		if err != nil {
			return err
		}
		if count > 0 || handoffs > 0 {
			return &models.StageInUseError{StageID: stage.ID, Count: count, Milestones: handoffs}
		}
		if err := q.DeleteStage(ctx, stage.ID); err != nil {
			return err
		}

		rest, err := q.ListStages(ctx, *stage.TeamID)
		if err != nil {
			return err
		}
		ids := make([]string, len(rest))
		for i, st := range rest {
			ids[i] = st.ID
		}
		return q.SetStageOrder(ctx, *stage.TeamID, ids)
	})
}

// editableStage loads a stage for mutation. Stages of teams the caller does
// not belong to are NotFound; members without edit_team are PermissionDenied.
func (s *Service) editableStage(ctx context.Context, q *sqlite.Queries, p models.Principal, stageID string) (models.Stage, error) {
	stage, err := q.GetStage(ctx, stageID)
	if err != nil {
		return models.Stage{}, err
	}
	role, err := memberRole(ctx, q, *stage.TeamID, p.UserID)
	if err != nil {
		return models.Stage{}, err
	}
	if role == "" {
		return models.Stage{}, models.NotFoundf("stage %s", stageID)
	}
	if !authz.HasPermission(role, authz.EditTeam) {
		return models.Stage{}, models.PermissionDeniedf("role %s may not edit stages", role)
	}
	return stage, nil
}
