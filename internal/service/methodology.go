package service

import (
	"context"
	"time"

	"taskboard/internal/authz"
	"taskboard/internal/methodology"
	"taskboard/internal/models"
	"taskboard/internal/storage/sqlite"
)

// MigrationResult summarises a methodology switch.
type MigrationResult struct {
	Methodology string `json:"methodology"`
	From        string `json:"from"`
	Migrated    int    `json:"migrated"`
	Total       int    `json:"total"`
}

// Methodologies lists the catalog.
func (s *Service) Methodologies() []models.Methodology {
	return s.catalog.List()
}

// Methodology returns one catalog entry.
func (s *Service) Methodology(id string) (models.Methodology, error) {
	return s.catalog.Get(id)
}

// Workflow returns the effective stage set of the caller's personal
// workspace, or of a team when teamID is set.
func (s *Service) Workflow(ctx context.Context, p models.Principal, teamID *int64) (StageSet, error) {
	if teamID != nil {
		if _, _, err := requireMember(ctx, s.store.Queries, p, *teamID); err != nil {
			return StageSet{}, err
		}
	}
	return s.loadStageSet(ctx, s.store.Queries, p.UserID, teamID)
}

// SwitchMethodology changes the active methodology of the caller's personal
// workspace (teamID nil) or of a team, and moves every task of that scope
// onto a stage of the new methodology. Tasks whose status is still valid are
// left alone; the rest go through the regular update path.
func (s *Service) SwitchMethodology(ctx context.Context, p models.Principal, teamID *int64, methodologyID string) (MigrationResult, error) {
	target, err := s.catalog.Get(methodologyID)
	if err != nil {
		return MigrationResult{}, err
	}

	result := MigrationResult{Methodology: target.ID}
	err = s.store.WithTx(ctx, func(q *sqlite.Queries) error {
		now := s.clock()
		if teamID == nil {
			user, err := q.GetUser(ctx, p.UserID)
			if err != nil {
				return err
			}
			result.From = user.Methodology
			if err := q.SetUserMethodology(ctx, p.UserID, target.ID, now); err != nil {
				return err
			}
		} else {
			team, _, err := requirePermission(ctx, q, p, *teamID, authz.EditTeam)
			if err != nil {
				return err
			}
			result.From = team.Methodology
			if err := q.SetTeamMethodology(ctx, *teamID, target.ID, now); err != nil {
				return err
			}
		}

		set, err := s.loadStageSet(ctx, q, p.UserID, teamID)
		if err != nil {
			return err
		}
		tasks, err := q.ListTasks(ctx, p.UserID, models.TaskFilter{TeamID: teamID})
		if err != nil {
			return err
		}
		result.Total = len(tasks)

		buckets := s.catalog.Buckets()
		for _, t := range tasks {
			if _, ok := set.Resolve(t.Status); ok {
				continue
			}
			status := methodology.Migrate(t.Status, target.Stages, buckets)
			if _, err := s.updateTask(ctx, q, p, t.ID, TaskPatch{Status: &status}); err != nil {
				return err
			}
			result.Migrated++
		}

		return s.migrateHandoffStages(ctx, q, p.UserID, teamID, set, target, buckets, now)
	})
	if err != nil {
		return MigrationResult{}, err
	}

	s.logger.Info("methodology switched",
		"user_id", p.UserID, "team_id", teamID, "from", result.From, "to", result.Methodology,
		"migrated", result.Migrated, "total", result.Total)
	return result, nil
}

// migrateHandoffStages keeps open milestones pointing at a valid stage.
func (s *Service) migrateHandoffStages(ctx context.Context, q *sqlite.Queries, ownerID int64, teamID *int64, set StageSet, target models.Methodology, buckets methodology.Buckets, now time.Time) error {
	milestones, err := q.ListMilestones(ctx, ownerID, teamID)
	if err != nil {
		return err
	}
	for _, m := range milestones {
		if m.CompletedAt != nil || m.HandoffStage == "" {
			continue
		}
		if _, ok := set.Resolve(m.HandoffStage); ok {
			continue
		}
		m.HandoffStage = methodology.Migrate(m.HandoffStage, target.Stages, buckets)
		m.UpdatedAt = now
		if err := q.UpdateMilestone(ctx, m); err != nil {
			return err
		}
	}
	return nil
}
