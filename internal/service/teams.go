package service

import (
	"context"
	"fmt"

	"taskboard/internal/authz"
	"taskboard/internal/models"
	"taskboard/internal/storage/sqlite"
)

// TeamDetail is a team as seen by one of its members.
type TeamDetail struct {
	models.Team
	Members     []models.Member    `json:"members"`
	Permissions []authz.Permission `json:"permissions"`
}

// TeamInput carries the fields of a new team.
type TeamInput struct {
	Name        string
	Description string
	Methodology string
}

// ListTeams returns the caller's teams with their role in each.
func (s *Service) ListTeams(ctx context.Context, p models.Principal) ([]models.Team, error) {
	return s.store.ListTeamsForUser(ctx, p.UserID)
}

// CreateTeam creates a team owned by the caller.
func (s *Service) CreateTeam(ctx context.Context, p models.Principal, in TeamInput) (TeamDetail, error) {
	methodologyID := in.Methodology
	if methodologyID == "" {
		methodologyID = s.catalog.Default().ID
	}
	if _, err := s.catalog.Get(methodologyID); err != nil {
		return TeamDetail{}, err
	}

	var id int64
	err := s.store.WithTx(ctx, func(q *sqlite.Queries) error {
		var err error
		id, err = q.CreateTeam(ctx, models.Team{
			Name:        in.Name,
			Description: in.Description,
			OwnerID:     p.UserID,
			Methodology: methodologyID,
		}, s.clock())
		return err
	})
	if err != nil {
		return TeamDetail{}, err
	}

	s.logger.Info("team created", "team_id", id, "owner_id", p.UserID, "methodology", methodologyID)
	return s.GetTeam(ctx, p, id)
}

// GetTeam returns a team with its members and the caller's permissions.
func (s *Service) GetTeam(ctx context.Context, p models.Principal, id int64) (TeamDetail, error) {
	team, role, err := requireMember(ctx, s.store.Queries, p, id)
	if err != nil {
		return TeamDetail{}, err
	}
	members, err := s.store.ListMembers(ctx, id)
	if err != nil {
		return TeamDetail{}, err
	}
	team.UserRole = string(role)
	return TeamDetail{Team: team, Members: members, Permissions: authz.Permissions(role)}, nil
}

// UpdateTeam renames a team and replaces its description.
func (s *Service) UpdateTeam(ctx context.Context, p models.Principal, id int64, name, description string) (TeamDetail, error) {
	err := s.store.WithTx(ctx, func(q *sqlite.Queries) error {
		if _, _, err := requirePermission(ctx, q, p, id, authz.EditTeam); err != nil {
			return err
		}
		return q.UpdateTeam(ctx, id, name, description, s.clock())
	})
	if err != nil {
		return TeamDetail{}, err
	}
	return s.GetTeam(ctx, p, id)
}

// DeleteTeam removes a team with its members, stages, milestones and tasks.
func (s *Service) DeleteTeam(ctx context.Context, p models.Principal, id int64) error {
	err := s.store.WithTx(ctx, func(q *sqlite.Queries) error {
		team, _, err := requirePermission(ctx, q, p, id, authz.DeleteTeam)
		if err != nil {
			return err
		}
		tasks, err := q.ListTasks(ctx, p.UserID, models.TaskFilter{TeamID: &id})
		if err != nil {
			return err
		}
		for _, t := range tasks {
			if err := s.logActivity(ctx, q, p, t, models.ActionDeleted, fmt.Sprintf("Team %q deleted", team.Name)); err != nil {
				return err
			}
		}
		return q.DeleteTeam(ctx, id)
	})
	if err != nil {
		return err
	}
	s.logger.Info("team deleted", "team_id", id, "by", p.UserID)
	return nil
}

// ListMembers returns a team's members.
func (s *Service) ListMembers(ctx context.Context, p models.Principal, teamID int64) ([]models.Member, error) {
	if _, _, err := requireMember(ctx, s.store.Queries, p, teamID); err != nil {
		return nil, err
	}
	return s.store.ListMembers(ctx, teamID)
}

// AddMember enrols an existing user with a non-owner role.
func (s *Service) AddMember(ctx context.Context, p models.Principal, teamID, userID int64, rawRole string) (models.Member, error) {
	role, err := s.assignableRole(rawRole)
	if err != nil {
		return models.Member{}, err
	}

	var added models.Member
	err = s.store.WithTx(ctx, func(q *sqlite.Queries) error {
		if _, _, err := requirePermission(ctx, q, p, teamID, authz.InviteMember); err != nil {
			return err
		}
		if _, err := q.GetUser(ctx, userID); err != nil {
			return err
		}
		existing, err := memberRole(ctx, q, teamID, userID)
		if err != nil {
			return err
		}
		if existing != "" {
			return fmt.Errorf("user %d is already a member of team %d: %w", userID, teamID, models.ErrConflict)
		}
		if err := q.AddMember(ctx, teamID, userID, string(role), s.clock()); err != nil {
			return err
		}
		added, err = q.GetMember(ctx, teamID, userID)
		return err
	})
	return added, err
}

// ChangeMemberRole changes a member's role. The owner can never be changed
// and nobody can be promoted to owner.
func (s *Service) ChangeMemberRole(ctx context.Context, p models.Principal, teamID, userID int64, rawRole string) (models.Member, error) {
	var changed models.Member
	err := s.store.WithTx(ctx, func(q *sqlite.Queries) error {
		if err := rejectOwnerTarget(ctx, q, teamID, userID, "cannot change role"); err != nil {
			return err
		}
		if _, _, err := requirePermission(ctx, q, p, teamID, authz.ChangeRoles); err != nil {
			return err
		}
		newRole, err := s.assignableRole(rawRole)
		if err != nil {
			return err
		}
		if err := q.UpdateMemberRole(ctx, teamID, userID, string(newRole)); err != nil {
			return err
		}
		changed, err = q.GetMember(ctx, teamID, userID)
		return err
	})
	return changed, err
}

// RemoveMember removes a member other than the owner.
func (s *Service) RemoveMember(ctx context.Context, p models.Principal, teamID, userID int64) error {
	return s.store.WithTx(ctx, func(q *sqlite.Queries) error {
		if err := rejectOwnerTarget(ctx, q, teamID, userID, "cannot be removed"); err != nil {
			return err
		}
		if _, _, err := requirePermission(ctx, q, p, teamID, authz.RemoveMember); err != nil {
			return err
		}
		return s.dropMember(ctx, q, teamID, userID)
	})
}

// LeaveTeam removes the caller from a team. Owners delete the team instead.
func (s *Service) LeaveTeam(ctx context.Context, p models.Principal, teamID int64) error {
	return s.store.WithTx(ctx, func(q *sqlite.Queries) error {
		team, _, err := requireMember(ctx, q, p, teamID)
		if err != nil {
			return err
		}
		if team.OwnerID == p.UserID {
			return models.InvalidOperationf("the owner cannot leave team %d", teamID)
		}
		return s.dropMember(ctx, q, teamID, p.UserID)
	})
}

// rejectOwnerTarget fails with InvalidOperation when userID owns the team,
// whoever the caller is.
func rejectOwnerTarget(ctx context.Context, q *sqlite.Queries, teamID, userID int64, what string) error {
	team, err := q.GetTeam(ctx, teamID)
	if err != nil {
		return err
	}
	if team.OwnerID == userID {
		return models.InvalidOperationf("the owner of team %d %s", teamID, what)
	}
	return nil
}

// dropMember removes a membership and the handoff rules of open milestones
// that would hand tasks to the departing user.
func (s *Service) dropMember(ctx context.Context, q *sqlite.Queries, teamID, userID int64) error {
	if err := q.RemoveMember(ctx, teamID, userID); err != nil {
		return err
	}
	cleared, err := q.ClearHandoffTo(ctx, teamID, userID, s.clock())
	if err != nil {
		return err
	}
	if cleared > 0 {
		s.logger.Info("handoff rules cleared", "team_id", teamID, "user_id", userID, "milestones", cleared)
	}
	return nil
}

func (s *Service) assignableRole(raw string) (authz.Role, error) {
	if raw == "" {
		return authz.RoleMember, nil
	}
	role, err := authz.ParseRole(raw)
	if err != nil {
		return "", models.InvalidInputf("%v", err)
	}
	if !authz.Assignable(role) {
		return "", models.InvalidOperationf("role %s cannot be assigned", role)
	}
	return role, nil
}
