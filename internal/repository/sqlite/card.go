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

var _ repository.CardRepository = (*DB)(nil)

// =========================================================================
// PHYSICAL CARD POOL
// =========================================================================

// InsertPhysicalCards stores a minted batch in a single transaction. If any
// number was taken since it was generated the whole batch is rolled back and
// apperror.ErrNumberCollision is returned.
func (db *DB) InsertPhysicalCards(ctx context.Context, cards []*model.PhysicalCard) error {
	if len(cards) == 0 {
		return nil
	}

	now := time.Now()
	var current int64

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO physical_cards (id, card_number, business_code, issued, created_at)
			 VALUES (?, ?, ?, 0, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, c := range cards {
			current = c.CardNumber
			c.ID = xid.New().String()
			c.CreatedAt = now
			c.Issued = false

			if err := reserveCardNumber(ctx, tx, c.CardNumber, "physical"); err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, c.ID, c.CardNumber, c.BusinessCode, c.CreatedAt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if uniqueViolation(err, "card_numbers.number") || uniqueViolation(err, "physical_cards.card_number") {
			return apperror.NumberCollision("card number", current)
		}
		return fmt.Errorf("sqlite: inserting %d physical cards: %w", len(cards), err)
	}

	return nil
}

// GetPhysicalCard finds a card by number within one business.
func (db *DB) GetPhysicalCard(ctx context.Context, number int64, businessCode string) (*model.PhysicalCard, error) {
	var c model.PhysicalCard

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, card_number, business_code, issued, created_at
		 FROM physical_cards
		 WHERE card_number = ? AND business_code = ?`,
		number, businessCode,
	).Scan(&c.ID, &c.CardNumber, &c.BusinessCode, &c.Issued, &c.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("physical card", strconv.FormatInt(number, 10))
		}
		return nil, fmt.Errorf("sqlite: getting physical card %d: %w", number, err)
	}

	return &c, nil
}

// ListPhysicalCards returns a business's cards, newest first.
func (db *DB) ListPhysicalCards(ctx context.Context, businessCode string) ([]*model.PhysicalCard, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, card_number, business_code, issued, created_at
		 FROM physical_cards
		 WHERE business_code = ?
		 ORDER BY created_at DESC, card_number`,
		businessCode,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing physical cards for %s: %w", businessCode, err)
	}
	defer rows.Close()

	cards := []*model.PhysicalCard{}
	for rows.Next() {
		var c model.PhysicalCard
		if err := rows.Scan(&c.ID, &c.CardNumber, &c.BusinessCode, &c.Issued, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning physical card: %w", err)
		}
		cards = append(cards, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating physical cards: %w", err)
	}

	return cards, nil
}

// =========================================================================
// MAPPING LEDGER
// =========================================================================

const mappingColumns = `id, business_code, primary_card_number, secondary_card_number, card_type, created_at`

func insertMapping(ctx context.Context, tx *sql.Tx, m *model.CardMapping) error {
	m.ID = xid.New().String()
	m.CreatedAt = time.Now()

	_, err := tx.ExecContext(ctx,
		`INSERT INTO card_mappings (`+mappingColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID,
		nullString(m.BusinessCode),
		m.PrimaryCardNumber,
		m.SecondaryCardNumber,
		string(m.Kind),
		m.CreatedAt,
	)
	return err
}

func mappingError(err error, m *model.CardMapping) error {
	if uniqueViolation(err, "card_mappings.secondary_card_number") {
		return apperror.Conflict("card mapping", strconv.FormatInt(m.SecondaryCardNumber, 10))
	}
	if uniqueViolation(err, "card_numbers.number") {
		return apperror.Conflict("card number", strconv.FormatInt(m.SecondaryCardNumber, 10))
	}
	return fmt.Errorf("sqlite: creating mapping %d -> %d: %w", m.SecondaryCardNumber, m.PrimaryCardNumber, err)
}

// CreateMapping appends a mapping. A digital or prepaid secondary is
// reserved in card_numbers in the same transaction, so it can never be
// minted or handed out as a primary later. A secondary number can only be
// mapped once; a second attempt, or a number already taken in any domain,
// returns apperror.ErrConflict.
func (db *DB) CreateMapping(ctx context.Context, m *model.CardMapping) error {
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if m.Kind != model.CardKindPhysical {
			if err := reserveCardNumber(ctx, tx, m.SecondaryCardNumber, string(m.Kind)); err != nil {
				return err
			}
		}
		return insertMapping(ctx, tx, m)
	})
	if err != nil {
		return mappingError(err, m)
	}
	return nil
}

// IssuePhysicalCard marks the card issued and records its mapping in one
// transaction. The guarded UPDATE (issued = 0) makes the second of two
// concurrent issuances see zero affected rows and back out.
func (db *DB) IssuePhysicalCard(ctx context.Context, m *model.CardMapping) error {
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE physical_cards SET issued = 1
			 WHERE card_number = ? AND business_code = ? AND issued = 0`,
			m.SecondaryCardNumber, m.BusinessCode,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return apperror.Conflict("physical card", strconv.FormatInt(m.SecondaryCardNumber, 10))
		}

		return insertMapping(ctx, tx, m)
	})
	if err != nil {
		if _, ok := err.(*apperror.AppError); ok {
			return err
		}
		return mappingError(err, m)
	}
	return nil
}

// GetMappingBySecondary returns the mapping for a secondary card number.
func (db *DB) GetMappingBySecondary(ctx context.Context, secondary int64) (*model.CardMapping, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+mappingColumns+` FROM card_mappings WHERE secondary_card_number = ?`,
		secondary,
	)

	m, err := scanMapping(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("card mapping", strconv.FormatInt(secondary, 10))
		}
		return nil, fmt.Errorf("sqlite: getting mapping for %d: %w", secondary, err)
	}

	return m, nil
}

// ListMappingsByBusiness returns every mapping recorded under a business.
func (db *DB) ListMappingsByBusiness(ctx context.Context, businessCode string) ([]*model.CardMapping, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+mappingColumns+` FROM card_mappings
		 WHERE business_code = ?
		 ORDER BY created_at DESC`,
		businessCode,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing mappings for %s: %w", businessCode, err)
	}
	defer rows.Close()

	mappings := []*model.CardMapping{}
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning mapping: %w", err)
		}
		mappings = append(mappings, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating mappings: %w", err)
	}

	return mappings, nil
}

// HasMappingForBusiness reports whether the primary card holds any mapping
// recorded under the business.
func (db *DB) HasMappingForBusiness(ctx context.Context, primary int64, businessCode string) (bool, error) {
	var one int
	err := db.conn.QueryRowContext(ctx,
		`SELECT 1 FROM card_mappings
		 WHERE primary_card_number = ? AND business_code = ?
		 LIMIT 1`,
		primary, businessCode,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlite: checking mappings of %d for %s: %w", primary, businessCode, err)
	}
	return true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMapping(row rowScanner) (*model.CardMapping, error) {
	var (
		m        model.CardMapping
		business sql.NullString
	)
	if err := row.Scan(
		&m.ID,
		&business,
		&m.PrimaryCardNumber,
		&m.SecondaryCardNumber,
		&m.Kind,
		&m.CreatedAt,
	); err != nil {
		return nil, err
	}
	m.BusinessCode = business.String
	return &m, nil
}
