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

var _ repository.GovernmentUserRepository = (*DB)(nil)

const governmentColumns = `id, email, full_name, mobile_number, department, designation,
	password_hash, active, created_at, updated_at`

// CreateGovernmentUser inserts an active account. Email and mobile number
// are unique.
func (db *DB) CreateGovernmentUser(ctx context.Context, u *model.GovernmentUser) error {
	now := time.Now()
	u.ID = xid.New().String()
	u.CreatedAt = now
	u.UpdatedAt = now
	u.Active = true

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO government_users (`+governmentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID,
		u.Email,
		u.FullName,
		u.MobileNumber,
		u.Department,
		u.Designation,
		u.PasswordHash,
		u.Active,
		u.CreatedAt,
		u.UpdatedAt,
	)
	if err != nil {
		return governmentUserError(err, u)
	}
	return nil
}

func (db *DB) GetGovernmentUserByID(ctx context.Context, id string) (*model.GovernmentUser, error) {
	return db.getGovernmentUser(ctx, "id", id)
}

func (db *DB) GetGovernmentUserByEmail(ctx context.Context, email string) (*model.GovernmentUser, error) {
	return db.getGovernmentUser(ctx, "email", email)
}

func (db *DB) UpdateGovernmentUser(ctx context.Context, u *model.GovernmentUser) error {
	u.UpdatedAt = time.Now()

	res, err := db.conn.ExecContext(ctx,
		`UPDATE government_users
		 SET full_name = ?, mobile_number = ?, department = ?, designation = ?,
		     password_hash = ?, active = ?, updated_at = ?
		 WHERE id = ?`,
		u.FullName,
		u.MobileNumber,
		u.Department,
		u.Designation,
		u.PasswordHash,
		u.Active,
		u.UpdatedAt,
		u.ID,
	)
	if err != nil {
		return governmentUserError(err, u)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: updating government user %s: %w", u.ID, err)
	}
	if n == 0 {
		return apperror.NotFound("government user", u.ID)
	}
	return nil
}

func governmentUserError(err error, u *model.GovernmentUser) error {
	switch {
	case uniqueViolation(err, "government_users.email"):
		return apperror.AlreadyRegistered("email", u.Email)
	case uniqueViolation(err, "government_users.mobile_number"):
		return apperror.AlreadyRegistered("mobile number", u.MobileNumber)
	}
	return fmt.Errorf("sqlite: writing government user (email=%s): %w", u.Email, err)
}

func (db *DB) getGovernmentUser(ctx context.Context, column, value string) (*model.GovernmentUser, error) {
	var u model.GovernmentUser

	err := db.conn.QueryRowContext(ctx,
		`SELECT `+governmentColumns+` FROM government_users WHERE `+column+` = ?`,
		value,
	).Scan(
		&u.ID,
		&u.Email,
		&u.FullName,
		&u.MobileNumber,
		&u.Department,
		&u.Designation,
		&u.PasswordHash,
		&u.Active,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("government user", value)
		}
		return nil, fmt.Errorf("sqlite: getting government user by %s %s: %w", column, value, err)
	}

	return &u, nil
}
