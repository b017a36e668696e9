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

var _ repository.MemberRepository = (*DB)(nil)

const memberColumns = `id, mobile_number, email, full_name, pin_hash, primary_card_number,
	created_by, active, created_at, updated_at`

// CreateMember inserts the member together with its card number reservation
// and its digital self-mapping (secondary = primary, no business).
//
// Constraint failures are translated:
//   - card_numbers.number        → apperror.ErrNumberCollision (caller regenerates)
//   - members.mobile_number/email → apperror.ErrConflict
func (db *DB) CreateMember(ctx context.Context, member *model.Member) error {
	now := time.Now()
	member.ID = xid.New().String()
	member.CreatedAt = now
	member.UpdatedAt = now
	member.Active = true

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if err := reserveCardNumber(ctx, tx, member.PrimaryCardNumber, "primary"); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx,
			`INSERT INTO members (`+memberColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			member.ID,
			member.MobileNumber,
			nullString(member.Email),
			member.FullName,
			member.PINHash,
			member.PrimaryCardNumber,
			member.CreatedBy,
			member.Active,
			member.CreatedAt,
			member.UpdatedAt,
		)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO card_mappings (id, business_code, primary_card_number, secondary_card_number, card_type, created_at)
			 VALUES (?, NULL, ?, ?, ?, ?)`,
			xid.New().String(),
			member.PrimaryCardNumber,
			member.PrimaryCardNumber,
			string(model.CardKindDigital),
			now,
		)
		return err
	})
	if err != nil {
		switch {
		case uniqueViolation(err, "card_numbers.number"),
			uniqueViolation(err, "members.primary_card_number"),
			uniqueViolation(err, "card_mappings.secondary_card_number"):
			return apperror.NumberCollision("card number", member.PrimaryCardNumber)
		case uniqueViolation(err, "members.mobile_number"):
			return apperror.AlreadyRegistered("mobile number", member.MobileNumber)
		case uniqueViolation(err, "members.email"):
			return apperror.AlreadyRegistered("email", member.Email)
		}
		return fmt.Errorf("sqlite: creating member (mobile=%s): %w", member.MobileNumber, err)
	}

	return nil
}

func (db *DB) GetMemberByID(ctx context.Context, id string) (*model.Member, error) {
	return db.getMember(ctx, "id", id, id)
}

func (db *DB) GetMemberByMobile(ctx context.Context, mobile string) (*model.Member, error) {
	return db.getMember(ctx, "mobile_number", mobile, mobile)
}

func (db *DB) GetMemberByEmail(ctx context.Context, email string) (*model.Member, error) {
	return db.getMember(ctx, "email", email, email)
}

func (db *DB) GetMemberByCardNumber(ctx context.Context, primary int64) (*model.Member, error) {
	return db.getMember(ctx, "primary_card_number", primary, strconv.FormatInt(primary, 10))
}

// getMember looks a member up by one column. column is always a constant
// from this file, never caller input.
func (db *DB) getMember(ctx context.Context, column string, value any, label string) (*model.Member, error) {
	var (
		m     model.Member
		email sql.NullString
	)

	err := db.conn.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM members WHERE `+column+` = ?`,
		value,
	).Scan(
		&m.ID,
		&m.MobileNumber,
		&email,
		&m.FullName,
		&m.PINHash,
		&m.PrimaryCardNumber,
		&m.CreatedBy,
		&m.Active,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("member", label)
		}
		return nil, fmt.Errorf("sqlite: getting member by %s %s: %w", column, label, err)
	}
	m.Email = email.String

	return &m, nil
}
