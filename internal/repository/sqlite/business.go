package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/cardauth/internal/apperror"
	"github.com/sakif/cardauth/internal/model"
	"github.com/sakif/cardauth/internal/repository"
)

var _ repository.BusinessRepository = (*DB)(nil)

const businessColumns = `id, business_code, name, email, mobile_number, pin_hash,
	is_institute, active, created_at, updated_at`

// CreateBusiness inserts a business. A clash on business_code (generated)
// is a number collision; a clash on mobile or email is a conflict.
func (db *DB) CreateBusiness(ctx context.Context, b *model.Business) error {
	now := time.Now()
	b.ID = xid.New().String()
	b.CreatedAt = now
	b.UpdatedAt = now
	b.Active = true

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO businesses (`+businessColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID,
		b.Code,
		b.Name,
		nullString(b.Email),
		b.MobileNumber,
		b.PINHash,
		b.IsInstitute,
		b.Active,
		b.CreatedAt,
		b.UpdatedAt,
	)
	if err != nil {
		switch {
		case uniqueViolation(err, "businesses.business_code"):
			code, _ := strconv.ParseInt(b.Code, 10, 64)
			return apperror.NumberCollision("business code", code)
		case uniqueViolation(err, "businesses.mobile_number"):
			return apperror.AlreadyRegistered("mobile number", b.MobileNumber)
		case uniqueViolation(err, "businesses.email"):
			return apperror.AlreadyRegistered("email", b.Email)
		}
		return fmt.Errorf("sqlite: creating business (mobile=%s): %w", b.MobileNumber, err)
	}

	return nil
}

func (db *DB) GetBusinessByCode(ctx context.Context, code string) (*model.Business, error) {
	return db.getBusiness(ctx, "business_code", code)
}

func (db *DB) GetBusinessByMobile(ctx context.Context, mobile string) (*model.Business, error) {
	return db.getBusiness(ctx, "mobile_number", mobile)
}

func (db *DB) GetBusinessByEmail(ctx context.Context, email string) (*model.Business, error) {
	return db.getBusiness(ctx, "email", email)
}

// BusinessCodeExists is the idgen predicate for business codes.
func (db *DB) BusinessCodeExists(ctx context.Context, code int64) (bool, error) {
	var one int
	err := db.conn.QueryRowContext(ctx,
		`SELECT 1 FROM businesses WHERE business_code = ?`, strconv.FormatInt(code, 10),
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlite: checking business code %d: %w", code, err)
	}
	return true, nil
}

func (db *DB) getBusiness(ctx context.Context, column, value string) (*model.Business, error) {
	var (
		b     model.Business
		email sql.NullString
	)

	err := db.conn.QueryRowContext(ctx,
		`SELECT `+businessColumns+` FROM businesses WHERE `+column+` = ?`,
		value,
	).Scan(
		&b.ID,
		&b.Code,
		&b.Name,
		&email,
		&b.MobileNumber,
		&b.PINHash,
		&b.IsInstitute,
		&b.Active,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("business", value)
		}
		return nil, fmt.Errorf("sqlite: getting business by %s %s: %w", column, value, err)
	}
	b.Email = email.String

	return &b, nil
}
