package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"taskboard/internal/models"
)

func notFound(what string) error {
	return models.NotFoundf("%s", what)
}

// UpsertUser records the principal of an authenticated request. New users
// start on the given methodology; existing users keep theirs.
func (q *Queries) UpsertUser(ctx context.Context, p models.Principal, methodology string, now time.Time) error {
	_, err := q.q.ExecContext(ctx, `INSERT INTO users(id, username, name, methodology, created_at, updated_at)
        VALUES(?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET username = excluded.username, name = excluded.name, updated_at = excluded.updated_at`,
		p.UserID, p.Username, p.Name, methodology, now, now)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// GetUser fetches a user by id.
func (q *Queries) GetUser(ctx context.Context, id int64) (models.User, error) {
	var u models.User
	err := q.q.QueryRowContext(ctx, `SELECT id, username, name, methodology FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Username, &u.Name, &u.Methodology)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, models.NotFoundf("user %d", id)
	}
	if err != nil {
		return models.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// SetUserMethodology switches the personal workspace methodology.
func (q *Queries) SetUserMethodology(ctx context.Context, id int64, methodology string, now time.Time) error {
	res, err := q.q.ExecContext(ctx, `UPDATE users SET methodology = ?, updated_at = ? WHERE id = ?`, methodology, now, id)
	if err != nil {
		return fmt.Errorf("update user methodology: %w", err)
	}
	return affectedOne(res, fmt.Sprintf("user %d", id))
}
