package service

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/cardauth/internal/auth"
	"github.com/sakif/cardauth/internal/idgen"
	"github.com/sakif/cardauth/internal/model"
	"github.com/sakif/cardauth/internal/notify"
	"github.com/sakif/cardauth/internal/otp"
	"github.com/sakif/cardauth/internal/repository"
	"github.com/sakif/cardauth/internal/repository/sqlite"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// recorder is a Notifier that keeps every message it is given.
type recorder struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (r *recorder) Notify(_ context.Context, msg notify.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recorder) sent(ch notify.Channel) []notify.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Message
	for _, m := range r.msgs {
		if m.Channel == ch {
			out = append(out, m)
		}
	}
	return out
}

var otpPattern = regexp.MustCompile(`\b\d{6}\b`)

// lastCode pulls the most recent OTP out of the SMS sent to mobile.
func (r *recorder) lastCode(t *testing.T, mobile string) string {
	t.Helper()
	var code string
	for _, m := range r.sent(notify.ChannelSMS) {
		if m.To == mobile {
			code = otpPattern.FindString(m.Text)
		}
	}
	require.NotEmpty(t, code, "no OTP sent to %s", mobile)
	return code
}

// stubAssociation answers every association query the same way and counts
// how often it was asked.
type stubAssociation struct {
	mu    sync.Mutex
	ok    bool
	err   error
	calls int
}

func (s *stubAssociation) IsAssociated(context.Context, int64, string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.ok, s.err
}

type testEnv struct {
	db         *sqlite.DB
	registry   *Registry
	cards      *CardService
	members    *MemberService
	businesses *BusinessService
	staff      *StaffService
	institutes *InstituteService
	government *GovernmentService
	tokens     *auth.TokenService
	notes      *recorder
	redis      *miniredis.Miniredis
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEnv wires every service against a temp SQLite file and miniredis.
// assoc may be nil to use the ledger-backed checker.
func newTestEnv(t *testing.T, assoc AssociationChecker) *testEnv {
	t.Helper()

	db, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars!!", time.Hour)
	require.NoError(t, err)

	logger := discardLogger()
	gen := idgen.New()
	pins := auth.NewPINHasherForTest(bcrypt.MinCost)
	notes := &recorder{}
	signups := NewSignupFlow(otp.NewRedisStore(rdb), auth.NewOTPIssuer(5*time.Minute), notes, 5*time.Minute, logger)

	if assoc == nil {
		assoc = NewLedgerAssociation(db, db)
	}

	registry := NewRegistry(db, db, gen, pins, logger)
	members := NewMemberService(registry, signups, pins, tokens, notes, logger)
	return &testEnv{
		db:         db,
		registry:   registry,
		cards:      NewCardService(db, db, registry, assoc, gen, logger),
		members:    members,
		businesses: NewBusinessService(db, gen, signups, pins, tokens, logger),
		staff:      NewStaffService(db, tokens, nil, logger),
		institutes: NewInstituteService(db, members, logger),
		government: NewGovernmentService(db, pins, tokens, logger),
		tokens:     tokens,
		notes:      notes,
		redis:      mr,
	}
}

func (e *testEnv) business(t *testing.T, mobile string) *model.Business {
	t.Helper()
	b, err := e.businesses.Create(context.Background(), NewBusiness{
		Name:         "Shop " + mobile,
		MobileNumber: mobile,
		PIN:          "1234",
	})
	require.NoError(t, err)
	return b
}

func (e *testEnv) member(t *testing.T, mobile, createdBy string) *model.Member {
	t.Helper()
	m, err := e.registry.CreateMember(context.Background(), NewMember{
		MobileNumber: mobile,
		FullName:     "Member " + mobile,
		PIN:          "1234",
		CreatedBy:    createdBy,
	})
	require.NoError(t, err)
	return m
}

func (e *testEnv) mint(t *testing.T, businessCode string, n int) []*model.PhysicalCard {
	t.Helper()
	res, err := e.cards.MintBatch(context.Background(), businessCode, n)
	require.NoError(t, err)
	require.Len(t, res.Cards, n)
	return res.Cards
}

// crowdedCards reports every card number as taken except every 20th
// candidate, to starve batch generation.
type crowdedCards struct {
	repository.CardRepository
	mu    sync.Mutex
	calls int
}

func (c *crowdedCards) CardNumberExists(context.Context, int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.calls%20 != 0, nil
}
