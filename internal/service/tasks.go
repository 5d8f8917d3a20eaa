package service

import (
	"context"
	"fmt"
	"strings"

	"taskboard/internal/authz"
	"taskboard/internal/models"
	"taskboard/internal/storage/sqlite"
)

// TaskInput carries the fields of a new task.
type TaskInput struct {
	TeamID      *int64
	Title       string
	Description string
	Priority    string
	Status      string
	Assignee    *int64
}

// TaskPatch lists the fields to change; nil leaves a field untouched.
type TaskPatch struct {
	Title         *string
	Description   *string
	Priority      *string
	Status        *string
	Assignee      *int64
	ClearAssignee bool
}

// CreateTask inserts a task in the caller's personal workspace or in a team.
func (s *Service) CreateTask(ctx context.Context, p models.Principal, in TaskInput) (models.Task, error) {
	if strings.TrimSpace(in.Title) == "" {
		return models.Task{}, models.InvalidInputf("title is required")
	}
	priority, err := normalizePriority(in.Priority)
	if err != nil {
		return models.Task{}, err
	}

	var created models.Task
	err = s.store.WithTx(ctx, func(q *sqlite.Queries) error {
		role := authz.RoleOwner
		if in.TeamID != nil {
			_, r, err := requirePermission(ctx, q, p, *in.TeamID, authz.CreateTask)
			if err != nil {
				return err
			}
			role = r
		}

		set, err := s.loadStageSet(ctx, q, p.UserID, in.TeamID)
		if err != nil {
			return err
		}
		stage := set.Initial()
		if in.Status != "" {
			if stage, err = set.validate(in.Status); err != nil {
				return err
			}
		}

		now := s.clock()
		t := models.Task{
			OwnerUserID: p.UserID,
			TeamID:      in.TeamID,
			Title:       strings.TrimSpace(in.Title),
			Description: strings.TrimSpace(in.Description),
			Priority:    priority,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		applyStatus(&t, stage, now)
		if in.Assignee != nil {
			if err := s.assign(ctx, q, p, role, &t, *in.Assignee); err != nil {
				return err
			}
		}

		id, err := q.CreateTask(ctx, t)
		if err != nil {
			return err
		}
		if created, err = q.GetTask(ctx, id); err != nil {
			return err
		}
		return s.logActivity(ctx, q, p, created, models.ActionCreated, fmt.Sprintf("Created in %s", created.Status))
	})
	if err != nil {
		return models.Task{}, err
	}

	s.logger.Debug("task created", "task_id", created.ID, "status", created.Status)
	return created, nil
}

// GetTask returns a task visible to the caller.
func (s *Service) GetTask(ctx context.Context, p models.Principal, id int64) (models.Task, error) {
	t, _, err := visibleTask(ctx, s.store.Queries, p, id)
	return t, err
}

// ListTasks lists the caller's personal tasks, or a team's tasks when
// filter.TeamID is set. Teams the caller does not belong to are NotFound.
func (s *Service) ListTasks(ctx context.Context, p models.Principal, filter models.TaskFilter) ([]models.Task, error) {
	if filter.TeamID != nil {
		role, err := memberRole(ctx, s.store.Queries, *filter.TeamID, p.UserID)
		if err != nil {
			return nil, err
		}
		if role == "" {
			return nil, models.NotFoundf("team %d", *filter.TeamID)
		}
	}
	return s.store.ListTasks(ctx, p.UserID, filter)
}

// UpdateTask applies a patch and returns the stored task.
func (s *Service) UpdateTask(ctx context.Context, p models.Principal, id int64, patch TaskPatch) (models.Task, error) {
	var updated models.Task
	err := s.store.WithTx(ctx, func(q *sqlite.Queries) error {
		var err error
		updated, err = s.updateTask(ctx, q, p, id, patch)
		return err
	})
	return updated, err
}

// updateTask is the single write path for task changes. Milestone handoff
// and methodology migration call it inside their own transactions so status
// validation, completion bookkeeping and activity logging always apply.
func (s *Service) updateTask(ctx context.Context, q *sqlite.Queries, p models.Principal, id int64, patch TaskPatch) (models.Task, error) {
	before, role, err := visibleTask(ctx, q, p, id)
	if err != nil {
		return models.Task{}, err
	}
	if before.TeamID != nil && !canEditTask(role, before, p) {
		return models.Task{}, models.PermissionDeniedf("role %s may not edit task %d", role, id)
	}

	now := s.clock()
	after := before
	if patch.Title != nil {
		if strings.TrimSpace(*patch.Title) == "" {
			return models.Task{}, models.InvalidInputf("title must not be empty")
		}
		after.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Description != nil {
		after.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Priority != nil {
		if after.Priority, err = normalizePriority(*patch.Priority); err != nil {
			return models.Task{}, err
		}
	}
	if patch.Status != nil && *patch.Status != before.Status {
		set, err := s.loadStageSet(ctx, q, before.OwnerUserID, before.TeamID)
		if err != nil {
			return models.Task{}, err
		}
		stage, err := set.validate(*patch.Status)
		if err != nil {
			return models.Task{}, err
		}
		applyStatus(&after, stage, now)
	}
	switch {
	case patch.ClearAssignee:
		after.Assignee = nil
		after.AssigneeName = ""
	case patch.Assignee != nil && (before.Assignee == nil || *before.Assignee != *patch.Assignee):
		if err := s.assign(ctx, q, p, role, &after, *patch.Assignee); err != nil {
			return models.Task{}, err
		}
	}

	after.UpdatedAt = now
	if err := q.UpdateTask(ctx, after); err != nil {
		return models.Task{}, err
	}
	stored, err := q.GetTask(ctx, id)
	if err != nil {
		return models.Task{}, err
	}
	if err := s.logActivity(ctx, q, p, stored, activityAction(before, stored), activityDetails(before, stored)); err != nil {
		return models.Task{}, err
	}
	return stored, nil
}

// assign sets the assignee and its denormalised display name. Team tasks
// may be assigned to members only, personal tasks to their owner.
func (s *Service) assign(ctx context.Context, q *sqlite.Queries, p models.Principal, role authz.Role, t *models.Task, userID int64) error {
	if t.TeamID == nil {
		if userID != t.OwnerUserID {
			return models.InvalidInputf("personal tasks can only be assigned to their owner")
		}
	} else {
		if !authz.HasPermission(role, authz.AssignTask) {
			return models.PermissionDeniedf("role %s may not assign tasks", role)
		}
		assigneeRole, err := memberRole(ctx, q, *t.TeamID, userID)
		if err != nil {
			return err
		}
		if assigneeRole == "" {
			return models.InvalidInputf("user %d is not a member of team %d", userID, *t.TeamID)
		}
	}

	user, err := q.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	t.Assignee = &user.ID
	t.AssigneeName = displayName(user)
	return nil
}

// DeleteTask logs the deletion and removes the task.
func (s *Service) DeleteTask(ctx context.Context, p models.Principal, id int64) error {
	return s.store.WithTx(ctx, func(q *sqlite.Queries) error {
		t, role, err := visibleTask(ctx, q, p, id)
		if err != nil {
			return err
		}
		if t.TeamID != nil && !canDeleteTask(role, t, p) {
			return models.PermissionDeniedf("role %s may not delete task %d", role, id)
		}
		if err := s.logActivity(ctx, q, p, t, models.ActionDeleted, "Deleted from board"); err != nil {
			return err
		}
		return q.DeleteTask(ctx, id)
	})
}

func normalizePriority(raw string) (string, error) {
	p := strings.ToLower(strings.TrimSpace(raw))
	if p == "" {
		return models.PriorityMed, nil
	}
	if p == "medium" {
		p = models.PriorityMed
	}
	if _, ok := models.ValidPriorities[p]; !ok {
		return "", models.InvalidInputf("invalid priority %q", raw)
	}
	return p, nil
}
