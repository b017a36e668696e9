package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/cardauth/internal/apperror"
	"github.com/sakif/cardauth/internal/model"
	"github.com/sakif/cardauth/internal/repository"
)

var _ repository.StaffRepository = (*DB)(nil)

// UpsertStaff inserts a staff member on first GitHub login and refreshes the
// profile fields on later logins. The internal ID never changes once
// assigned.
func (db *DB) UpsertStaff(ctx context.Context, s *model.Staff) error {
	var existingID string
	err := db.conn.QueryRowContext(ctx,
		`SELECT id FROM staff WHERE github_id = ?`, s.GitHubID,
	).Scan(&existingID)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("sqlite: looking up staff by github_id %d: %w", s.GitHubID, err)
	}

	now := time.Now()

	if existingID != "" {
		s.ID = existingID
		s.UpdatedAt = now
		_, err = db.conn.ExecContext(ctx,
			`UPDATE staff SET login = ?, email = ?, avatar_url = ?, updated_at = ?
			 WHERE id = ?`,
			s.Login, s.Email, s.AvatarURL, s.UpdatedAt, s.ID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: updating staff %s: %w", s.ID, err)
		}
		return nil
	}

	s.ID = xid.New().String()
	s.CreatedAt = now
	s.UpdatedAt = now

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO staff (id, github_id, login, email, avatar_url, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.GitHubID, s.Login, s.Email, s.AvatarURL, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting staff (githubID=%d): %w", s.GitHubID, err)
	}

	return nil
}

// GetStaffByID returns apperror.ErrNotFound if no staff member has that ID.
func (db *DB) GetStaffByID(ctx context.Context, id string) (*model.Staff, error) {
	var s model.Staff

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, github_id, login, email, avatar_url, created_at, updated_at
		 FROM staff WHERE id = ?`,
		id,
	).Scan(&s.ID, &s.GitHubID, &s.Login, &s.Email, &s.AvatarURL, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("staff", id)
		}
		return nil, fmt.Errorf("sqlite: getting staff %s: %w", id, err)
	}

	return &s, nil
}
