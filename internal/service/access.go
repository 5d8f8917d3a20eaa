package service

import (
	"context"
	"errors"

	"taskboard/internal/authz"
	"taskboard/internal/models"
	"taskboard/internal/storage/sqlite"
)

// memberRole returns the caller's role in a team, or "" when not a member.
func memberRole(ctx context.Context, q *sqlite.Queries, teamID, userID int64) (authz.Role, error) {
	m, err := q.GetMember(ctx, teamID, userID)
	if errors.Is(err, models.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return authz.Role(m.Role), nil
}

// requireMember resolves the caller's role for a team-addressed operation.
// Unknown teams are NotFound; non-members are PermissionDenied.
func requireMember(ctx context.Context, q *sqlite.Queries, p models.Principal, teamID int64) (models.Team, authz.Role, error) {
	team, err := q.GetTeam(ctx, teamID)
	if err != nil {
		return models.Team{}, "", err
	}
	role, err := memberRole(ctx, q, teamID, p.UserID)
	if err != nil {
		return models.Team{}, "", err
	}
	if role == "" {
		return models.Team{}, "", models.PermissionDeniedf("not a member of team %d", teamID)
	}
	return team, role, nil
}

// requirePermission is requireMember plus a capability check.
func requirePermission(ctx context.Context, q *sqlite.Queries, p models.Principal, teamID int64, perm authz.Permission) (models.Team, authz.Role, error) {
	team, role, err := requireMember(ctx, q, p, teamID)
	if err != nil {
		return models.Team{}, "", err
	}
	if !authz.HasPermission(role, perm) {
		return models.Team{}, "", models.PermissionDeniedf("role %s lacks %s on team %d", role, perm, teamID)
	}
	return team, role, nil
}

// visibleTask loads a task the caller may see. Personal tasks are visible to
// their owner and team tasks to team members; anything else is NotFound so
// existence never leaks across ownership boundaries.
func visibleTask(ctx context.Context, q *sqlite.Queries, p models.Principal, id int64) (models.Task, authz.Role, error) {
	t, err := q.GetTask(ctx, id)
	if err != nil {
		return models.Task{}, "", err
	}
	if t.TeamID == nil {
		if t.OwnerUserID != p.UserID {
			return models.Task{}, "", models.NotFoundf("task %d", id)
		}
		return t, authz.RoleOwner, nil
	}
	role, err := memberRole(ctx, q, *t.TeamID, p.UserID)
	if err != nil {
		return models.Task{}, "", err
	}
	if role == "" {
		return models.Task{}, "", models.NotFoundf("task %d", id)
	}
	return t, role, nil
}

// canEditTask applies edit_task, or edit_own_task for the task's owner.
func canEditTask(role authz.Role, t models.Task, p models.Principal) bool {
	if authz.HasPermission(role, authz.EditTask) {
		return true
	}
	return t.OwnerUserID == p.UserID && authz.HasPermission(role, authz.EditOwnTask)
}

func canDeleteTask(role authz.Role, t models.Task, p models.Principal) bool {
	if authz.HasPermission(role, authz.DeleteTask) {
		return true
	}
	return t.OwnerUserID == p.UserID && authz.HasPermission(role, authz.EditOwnTask)
}

// visibleMilestone mirrors visibleTask for milestones.
func visibleMilestone(ctx context.Context, q *sqlite.Queries, p models.Principal, id int64) (models.Milestone, authz.Role, error) {
	m, err := q.GetMilestone(ctx, id)
	if err != nil {
		return models.Milestone{}, "", err
	}
	if m.TeamID == nil {
		if m.OwnerUserID != p.UserID {
			return models.Milestone{}, "", models.NotFoundf("milestone %d", id)
		}
		return m, authz.RoleOwner, nil
	}
	role, err := memberRole(ctx, q, *m.TeamID, p.UserID)
	if err != nil {
		return models.Milestone{}, "", err
	}
	if role == "" {
		return models.Milestone{}, "", models.NotFoundf("milestone %d", id)
	}
	return m, role, nil
}

func sameScope(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
