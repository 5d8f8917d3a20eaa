package service

import (
	"context"
	"fmt"
	"time"

	"taskboard/internal/authz"
	"taskboard/internal/models"
	"taskboard/internal/storage/sqlite"
)

// MilestoneInput carries the fields of a new milestone.
type MilestoneInput struct {
	TeamID       *int64
	Name         string
	Description  string
	DueDate      *time.Time
	HandoffTo    *int64
	HandoffStage string
}

// MilestonePatch lists the milestone fields to change. The Clear flags
// remove optional values.
type MilestonePatch struct {
	Name         *string
	Description  *string
	DueDate      *time.Time
	ClearDueDate bool
	HandoffTo    *int64
	HandoffStage *string
	ClearHandoff bool
}

// MilestoneDetail is a milestone with its linked tasks.
type MilestoneDetail struct {
	models.Milestone
	Tasks []models.Task `json:"tasks"`
}

// CompletionResult reports what CompleteMilestone did.
type CompletionResult struct {
	Milestone        models.Milestone `json:"milestone"`
	HandedOff        int              `json:"handed_off"`
	Total            int              `json:"total"`
	AlreadyCompleted bool             `json:"already_completed"`
}

// ListMilestones lists the caller's personal milestones or a team's.
func (s *Service) ListMilestones(ctx context.Context, p models.Principal, teamID *int64) ([]models.Milestone, error) {
	if teamID != nil {
		if _, _, err := requireMember(ctx, s.store.Queries, p, *teamID); err != nil {
			return nil, err
		}
	}
	return s.store.ListMilestones(ctx, p.UserID, teamID)
}

// GetMilestone returns a visible milestone and its tasks.
func (s *Service) GetMilestone(ctx context.Context, p models.Principal, id int64) (MilestoneDetail, error) {
	m, _, err := visibleMilestone(ctx, s.store.Queries, p, id)
	if err != nil {
		return MilestoneDetail{}, err
	}
	tasks, err := s.store.ListMilestoneTasks(ctx, id)
	if err != nil {
		return MilestoneDetail{}, err
	}
	return MilestoneDetail{Milestone: m, Tasks: tasks}, nil
}

// CreateMilestone inserts a milestone in the caller's workspace or a team.
func (s *Service) CreateMilestone(ctx context.Context, p models.Principal, in MilestoneInput) (models.Milestone, error) {
	var created models.Milestone
	err := s.store.WithTx(ctx, func(q *sqlite.Queries) error {
		if in.TeamID != nil {
			if _, _, err := requirePermission(ctx, q, p, *in.TeamID, authz.AssignTask); err != nil {
				return err
			}
		}

		now := s.clock()
		m := models.Milestone{
			TeamID:       in.TeamID,
			OwnerUserID:  p.UserID,
			Name:         in.Name,
			Description:  in.Description,
			DueDate:      in.DueDate,
			HandoffTo:    in.HandoffTo,
			HandoffStage: in.HandoffStage,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.validateHandoff(ctx, q, m); err != nil {
			return err
		}
		id, err := q.CreateMilestone(ctx, m)
		if err != nil {
			return err
		}
		created, err = q.GetMilestone(ctx, id)
		return err
	})
	return created, err
}

// UpdateMilestone edits a milestone's fields and handoff rule.
func (s *Service) UpdateMilestone(ctx context.Context, p models.Principal, id int64, patch MilestonePatch) (models.Milestone, error) {
	var updated models.Milestone
	err := s.store.WithTx(ctx, func(q *sqlite.Queries) error {
		m, err := s.editableMilestone(ctx, q, p, id)
		if err != nil {
			return err
		}

		if patch.Name != nil {
			m.Name = *patch.Name
		}
		if patch.Description != nil {
			m.Description = *patch.Description
		}
		switch {
		case patch.ClearDueDate:
			m.DueDate = nil
		case patch.DueDate != nil:
			m.DueDate = patch.DueDate
		}
		if patch.ClearHandoff {
			m.HandoffTo = nil
			m.HandoffStage = ""
		} else {
			if patch.HandoffTo != nil {
				m.HandoffTo = patch.HandoffTo
			}
			if patch.HandoffStage != nil {
				m.HandoffStage = *patch.HandoffStage
			}
		}
		if err := s.validateHandoff(ctx, q, m); err != nil {
			return err
		}

		m.UpdatedAt = s.clock()
		if err := q.UpdateMilestone(ctx, m); err != nil {
			return err
		}
		updated, err = q.GetMilestone(ctx, id)
		return err
	})
	return updated, err
}

// DeleteMilestone removes a milestone and unlinks its tasks.
func (s *Service) DeleteMilestone(ctx context.Context, p models.Principal, id int64) error {
	return s.store.WithTx(ctx, func(q *sqlite.Queries) error {
		m, err := s.editableMilestone(ctx, q, p, id)
		if err != nil {
			return err
		}
		tasks, err := q.ListMilestoneTasks(ctx, id)
		if err != nil {
			return err
		}
		for _, t := range tasks {
			if err := s.logActivity(ctx, q, p, t, models.ActionUpdated, fmt.Sprintf("Milestone %q deleted", m.Name)); err != nil {
				return err
			}
		}
		return q.DeleteMilestone(ctx, id, s.clock())
	})
}

// AddTaskToMilestone links a task from the milestone's scope. A task already
// on another milestone moves to this one.
func (s *Service) AddTaskToMilestone(ctx context.Context, p models.Principal, milestoneID, taskID int64) (models.Task, error) {
	var linked models.Task
	err := s.store.WithTx(ctx, func(q *sqlite.Queries) error {
		m, err := s.editableMilestone(ctx, q, p, milestoneID)
		if err != nil {
			return err
		}
		if m.CompletedAt != nil {
			return models.InvalidOperationf("milestone %d is already complete", milestoneID)
		}
		t, _, err := visibleTask(ctx, q, p, taskID)
		if err != nil {
			return err
		}
		if !sameScope(t.TeamID, m.TeamID) || (t.TeamID == nil && t.OwnerUserID != m.OwnerUserID) {
			return models.InvalidInputf("task %d is outside the scope of milestone %d", taskID, milestoneID)
		}
		if t.MilestoneID != nil && *t.MilestoneID == milestoneID {
			linked = t
			return nil
		}

		if err := q.LinkTask(ctx, milestoneID, taskID, s.clock()); err != nil {
			return err
		}
		if linked, err = q.GetTask(ctx, taskID); err != nil {
			return err
		}
		return s.logActivity(ctx, q, p, linked, models.ActionUpdated, fmt.Sprintf("Added to milestone %q", m.Name))
	})
	return linked, err
}

// RemoveTaskFromMilestone unlinks a task.
func (s *Service) RemoveTaskFromMilestone(ctx context.Context, p models.Principal, milestoneID, taskID int64) (models.Task, error) {
	var unlinked models.Task
	err := s.store.WithTx(ctx, func(q *sqlite.Queries) error {
		m, err := s.editableMilestone(ctx, q, p, milestoneID)
		if err != nil {
			return err
		}
		if _, _, err := visibleTask(ctx, q, p, taskID); err != nil {
			return err
		}
		if err := q.UnlinkTask(ctx, milestoneID, taskID, s.clock()); err != nil {
			return err
		}
		if unlinked, err = q.GetTask(ctx, taskID); err != nil {
			return err
		}
		return s.logActivity(ctx, q, p, unlinked, models.ActionUpdated, fmt.Sprintf("Removed from milestone %q", m.Name))
	})
	return unlinked, err
}

// CompleteMilestone marks a milestone complete and runs its handoff. A second
// call is a no-op. Each linked task goes through the regular update path; if
// any of them fails nothing is written and a HandoffError reports progress.
// The completion flag is the last write.
func (s *Service) CompleteMilestone(ctx context.Context, p models.Principal, id int64) (CompletionResult, error) {
	var result CompletionResult
	err := s.store.WithTx(ctx, func(q *sqlite.Queries) error {
		m, err := s.editableMilestone(ctx, q, p, id)
		if err != nil {
			return err
		}
		if m.CompletedAt != nil {
			result = CompletionResult{Milestone: m, Total: m.TaskCount, AlreadyCompleted: true}
			return nil
		}

		tasks, err := q.ListMilestoneTasks(ctx, id)
		if err != nil {
			return err
		}
		result.Total = len(tasks)

		if m.HandoffTo != nil && m.HandoffStage != "" {
			for i, t := range tasks {
				patch := TaskPatch{Status: &m.HandoffStage, Assignee: m.HandoffTo}
				if _, err := s.updateTask(ctx, q, p, t.ID, patch); err != nil {
					return &models.HandoffError{MilestoneID: id, Succeeded: i, Total: len(tasks), Cause: err}
				}
				result.HandedOff++
			}
		}

		marked, err := q.MarkMilestoneComplete(ctx, id, s.clock())
		if err != nil {
			return err
		}
		if !marked {
			result.AlreadyCompleted = true
		}
		result.Milestone, err = q.GetMilestone(ctx, id)
		return err
	})
	if err != nil {
		return CompletionResult{}, err
	}

	if !result.AlreadyCompleted {
		s.logger.Info("milestone completed", "milestone_id", id, "handed_off", result.HandedOff, "total", result.Total)
	}
	return result, nil
}

// editableMilestone loads a milestone for mutation. Team milestones need
// assign_task since completion reassigns tasks; personal ones are owner-only.
func (s *Service) editableMilestone(ctx context.Context, q *sqlite.Queries, p models.Principal, id int64) (models.Milestone, error) {
	m, role, err := visibleMilestone(ctx, q, p, id)
	if err != nil {
		return models.Milestone{}, err
	}
	if m.TeamID != nil && !authz.HasPermission(role, authz.AssignTask) {
		return models.Milestone{}, models.PermissionDeniedf("role %s may not manage milestones", role)
	}
	return m, nil
}

// validateHandoff checks that the handoff target can receive tasks and the
// handoff stage exists in the milestone's scope.
func (s *Service) validateHandoff(ctx context.Context, q *sqlite.Queries, m models.Milestone) error {
	if m.HandoffTo != nil {
		if m.TeamID == nil {
			if *m.HandoffTo != m.OwnerUserID {
				return models.InvalidInputf("personal milestones can only hand off to their owner")
			}
		} else {
			role, err := memberRole(ctx, q, *m.TeamID, *m.HandoffTo)
			if err != nil {
				return err
			}
			if role == "" {
				return models.InvalidInputf("user %d is not a member of team %d", *m.HandoffTo, *m.TeamID)
			}
		}
	}
	if m.HandoffStage != "" {
		set, err := s.loadStageSet(ctx, q, m.OwnerUserID, m.TeamID)
		if err != nil {
			return err
		}
		if _, err := set.validate(m.HandoffStage); err != nil {
			return err
		}
	}
	return nil
}
