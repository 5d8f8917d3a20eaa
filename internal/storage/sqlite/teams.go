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

const teamSelect = `SELECT t.id, t.name, t.description, t.owner_id, t.methodology, t.created_at, t.updated_at,
        (SELECT COUNT(*) FROM team_members m WHERE m.team_id = t.id)
        FROM teams t`

func scanTeam(scanner interface{ Scan(dest ...any) error }, extra ...any) (models.Team, error) {
	var t models.Team
	dest := append([]any{&t.ID, &t.Name, &t.Description, &t.OwnerID, &t.Methodology, &t.CreatedAt, &t.UpdatedAt, &t.MemberCount}, extra...)
	if err := scanner.Scan(dest...); err != nil {
		return models.Team{}, err
	}
	return t, nil
}

// CreateTeam inserts a team and enrolls its owner in one step.
func (q *Queries) CreateTeam(ctx context.Context, t models.Team, now time.Time) (int64, error) {
	if strings.TrimSpace(t.Name) == "" {
		return 0, models.InvalidInputf("team name must not be empty")
	}
	res, err := q.q.ExecContext(ctx, `INSERT INTO teams(name, description, owner_id, methodology, created_at, updated_at) VALUES(?, ?, ?, ?, ?, ?)`,
		strings.TrimSpace(t.Name), strings.TrimSpace(t.Description), t.OwnerID, t.Methodology, now, now)
	if err != nil {
		return 0, fmt.Errorf("insert team: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("team id: %w", err)
	}
	if err := q.AddMember(ctx, id, t.OwnerID, "owner", now); err != nil {
		return 0, err
	}
	return id, nil
}

// GetTeam fetches a team by id.
func (q *Queries) GetTeam(ctx context.Context, id int64) (models.Team, error) {
	t, err := scanTeam(q.q.QueryRowContext(ctx, teamSelect+` WHERE t.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Team{}, models.NotFoundf("team %d", id)
	}
	if err != nil {
		return models.Team{}, fmt.Errorf("get team: %w", err)
	}
	return t, nil
}

// ListTeamsForUser returns the teams a user belongs to with their role.
func (q *Queries) ListTeamsForUser(ctx context.Context, userID int64) ([]models.Team, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT t.id, t.name, t.description, t.owner_id, t.methodology, t.created_at, t.updated_at,
        (SELECT COUNT(*) FROM team_members m WHERE m.team_id = t.id), me.role
        FROM teams t INNER JOIN team_members me ON me.team_id = t.id
        WHERE me.user_id = ? ORDER BY t.updated_at DESC, t.id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	defer rows.Close()

	var teams []models.Team
	for rows.Next() {
		var role string
		t, err := scanTeam(rows, &role)
		if err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		t.UserRole = role
		teams = append(teams, t)
	}
	return teams, rows.Err()
}

// UpdateTeam renames a team and replaces its description.
func (q *Queries) UpdateTeam(ctx context.Context, id int64, name, description string, now time.Time) error {
	if strings.TrimSpace(name) == "" {
		return models.InvalidInputf("team name must not be empty")
	}
	res, err := q.q.ExecContext(ctx, `UPDATE teams SET name = ?, description = ?, updated_at = ? WHERE id = ?`,
		strings.TrimSpace(name), strings.TrimSpace(description), now, id)
	if err != nil {
		return fmt.Errorf("update team: %w", err)
	}
	return affectedOne(res, fmt.Sprintf("team %d", id))
}

// SetTeamMethodology switches the team's active methodology.
func (q *Queries) SetTeamMethodology(ctx context.Context, id int64, methodology string, now time.Time) error {
	res, err := q.q.ExecContext(ctx, `UPDATE teams SET methodology = ?, updated_at = ? WHERE id = ?`, methodology, now, id)
	if err != nil {
		return fmt.Errorf("update team methodology: %w", err)
	}
	return affectedOne(res, fmt.Sprintf("team %d", id))
}

// DeleteTeam removes a team; members, stages, milestones and team tasks cascade.
func (q *Queries) DeleteTeam(ctx context.Context, id int64) error {
	res, err := q.q.ExecContext(ctx, `DELETE FROM teams WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete team: %w", err)
	}
	return affectedOne(res, fmt.Sprintf("team %d", id))
}

const memberSelect = `SELECT tm.team_id, tm.user_id, u.username, u.name, tm.role, tm.joined_at
        FROM team_members tm INNER JOIN users u ON u.id = tm.user_id`

func scanMember(scanner interface{ Scan(dest ...any) error }) (models.Member, error) {
	var m models.Member
	err := scanner.Scan(&m.TeamID, &m.UserID, &m.Username, &m.Name, &m.Role, &m.JoinedAt)
	return m, err
}

// AddMember enrolls a user in a team.
func (q *Queries) AddMember(ctx context.Context, teamID, userID int64, role string, now time.Time) error {
	_, err := q.q.ExecContext(ctx, `INSERT INTO team_members(team_id, user_id, role, joined_at) VALUES(?, ?, ?, ?)`, teamID, userID, role, now)
	if err != nil {
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

// GetMember fetches one membership.
func (q *Queries) GetMember(ctx context.Context, teamID, userID int64) (models.Member, error) {
	m, err := scanMember(q.q.QueryRowContext(ctx, memberSelect+` WHERE tm.team_id = ? AND tm.user_id = ?`, teamID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Member{}, models.NotFoundf("member %d of team %d", userID, teamID)
	}
	if err != nil {
		return models.Member{}, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

// ListMembers returns a team's members in join order.
func (q *Queries) ListMembers(ctx context.Context, teamID int64) ([]models.Member, error) {
	rows, err := q.q.QueryContext(ctx, memberSelect+` WHERE tm.team_id = ? ORDER BY tm.joined_at ASC, tm.user_id ASC`, teamID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []models.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// UpdateMemberRole changes a member's role.
func (q *Queries) UpdateMemberRole(ctx context.Context, teamID, userID int64, role string) error {
	res, err := q.q.ExecContext(ctx, `UPDATE team_members SET role = ? WHERE team_id = ? AND user_id = ?`, role, teamID, userID)
	if err != nil {
		return fmt.Errorf("update member: %w", err)
	}
	return affectedOne(res, fmt.Sprintf("member %d of team %d", userID, teamID))
}

// RemoveMember deletes a membership.
func (q *Queries) RemoveMember(ctx context.Context, teamID, userID int64) error {
	res, err := q.q.ExecContext(ctx, `DELETE FROM team_members WHERE team_id = ? AND user_id = ?`, teamID, userID)
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	return affectedOne(res, fmt.Sprintf("member %d of team %d", userID, teamID))
}
