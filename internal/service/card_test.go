package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/cardauth/internal/apperror"
	"github.com/sakif/cardauth/internal/idgen"
	"github.com/sakif/cardauth/internal/model"
)

// =========================================================================
// MINT TESTS
// =========================================================================

func TestMintBatch(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	b := env.business(t, "01811000001")

	res, err := env.cards.MintBatch(ctx, b.Code, 5)
	require.NoError(t, err)
	assert.Equal(t, b.Code, res.BusinessCode)
	assert.Equal(t, 5, res.Requested)
	assert.Equal(t, 5, res.Count)

	seen := map[int64]bool{}
	for _, c := range res.Cards {
		assert.False(t, c.Issued)
		assert.Equal(t, b.Code, c.BusinessCode)
		assert.GreaterOrEqual(t, c.CardNumber, idgen.CardNumberRange.Min)
		assert.False(t, seen[c.CardNumber], "duplicate card %d", c.CardNumber)
		seen[c.CardNumber] = true
	}

	listed, err := env.cards.ListPhysicalCards(ctx, b.Code)
	require.NoError(t, err)
	assert.Len(t, listed, 5)
}

func TestMintBatch_Validation(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	b := env.business(t, "01811000001")

	_, err := env.cards.MintBatch(ctx, b.Code, 0)
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = env.cards.MintBatch(ctx, b.Code, MaxMintBatch+1)
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = env.cards.MintBatch(ctx, "12ab", 1)
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = env.cards.MintBatch(ctx, "999999", 1)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestMintBatch_PartialWhenNumbersRunOut(t *testing.T) {
	env := newTestEnv(t, nil)
	b := env.business(t, "01811000001")

	crowded := &crowdedCards{CardRepository: env.db}
	svc := NewCardService(crowded, env.db, env.registry, &stubAssociation{}, idgen.New(), discardLogger())

	res, err := svc.MintBatch(context.Background(), b.Code, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, res.Requested)
	assert.Equal(t, 5, res.Count)
	assert.Len(t, res.Cards, 5)

	listed, err := env.cards.ListPhysicalCards(context.Background(), b.Code)
	require.NoError(t, err)
	assert.Len(t, listed, 5)
}

func TestFindPhysicalCard_ScopedToBusiness(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	b1 := env.business(t, "01811000001")
	b2 := env.business(t, "01811000002")
	card := env.mint(t, b1.Code, 1)[0]

	found, err := env.cards.FindPhysicalCard(ctx, card.CardNumber, b1.Code)
	require.NoError(t, err)
	assert.Equal(t, card.CardNumber, found.CardNumber)

	_, err = env.cards.FindPhysicalCard(ctx, card.CardNumber, b2.Code)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

// =========================================================================
// RESOLUTION TESTS
// =========================================================================

func TestResolve_MappedPhysicalCard(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	b := env.business(t, "01811000001")
	m := env.member(t, "01711000001", "")
	card := env.mint(t, b.Code, 1)[0]

	iss, err := env.cards.AssignCard(ctx, AssignRequest{BusinessCode: b.Code, CardNumber: card.CardNumber, MobileNumber: m.MobileNumber})
	require.NoError(t, err)
	require.Equal(t, model.OutcomeAssigned, iss.Outcome)

	res, err := env.cards.Resolve(ctx, card.CardNumber, b.Code)
	require.NoError(t, err)
	assert.Equal(t, model.Resolved(card.CardNumber, m.PrimaryCardNumber, model.SourceMappedSecondary), res)
}

func TestResolve_UnmappedPhysicalCard(t *testing.T) {
	env := newTestEnv(t, nil)
	b := env.business(t, "01811000001")
	card := env.mint(t, b.Code, 1)[0]

	res, err := env.cards.Resolve(context.Background(), card.CardNumber, b.Code)
	require.NoError(t, err)
	assert.False(t, res.Resolved)
	assert.Equal(t, model.ReasonPhysicalCardUnmapped, res.Reason)
}

func TestResolve_DirectPrimary(t *testing.T) {
	env := newTestEnv(t, nil)
	b := env.business(t, "01811000001")
	m := env.member(t, "01711000001", b.Code)

	res, err := env.cards.Resolve(context.Background(), m.PrimaryCardNumber, b.Code)
	require.NoError(t, err)
	assert.True(t, res.Resolved)
	assert.Equal(t, model.SourceDirectPrimary, res.Source)
	assert.Equal(t, m.PrimaryCardNumber, res.PrimaryCardNumber)
}

func TestResolve_NotAssociated(t *testing.T) {
	env := newTestEnv(t, nil)
	b1 := env.business(t, "01811000001")
	b2 := env.business(t, "01811000002")
	m := env.member(t, "01711000001", b2.Code)

	res, err := env.cards.Resolve(context.Background(), m.PrimaryCardNumber, b1.Code)
	require.NoError(t, err)
	assert.Equal(t, model.Unresolved(m.PrimaryCardNumber, model.ReasonNotAssociatedWithBusiness), res)
}

func TestResolve_OtherBusinessPhysicalCardIsNotAccepted(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	b1 := env.business(t, "01811000001")
	b2 := env.business(t, "01811000002")
	m := env.member(t, "01711000001", "")
	card := env.mint(t, b2.Code, 1)[0]

	_, err := env.cards.AssignCard(ctx, AssignRequest{BusinessCode: b2.Code, CardNumber: card.CardNumber, MobileNumber: m.MobileNumber})
	require.NoError(t, err)

	res, err := env.cards.Resolve(ctx, card.CardNumber, b1.Code)
	require.NoError(t, err)
	assert.False(t, res.Resolved)
	assert.Equal(t, model.ReasonNotAssociatedWithBusiness, res.Reason)
}

func TestResolve_PhysicalPoolTakesPrecedence(t *testing.T) {
	assoc := &stubAssociation{ok: true}
	env := newTestEnv(t, assoc)
	b := env.business(t, "01811000001")
	card := env.mint(t, b.Code, 1)[0]

	res, err := env.cards.Resolve(context.Background(), card.CardNumber, b.Code)
	require.NoError(t, err)
	assert.Equal(t, model.ReasonPhysicalCardUnmapped, res.Reason)
	assert.Zero(t, assoc.calls)
}

func TestResolve_AssociationFailureIsAnError(t *testing.T) {
	assoc := &stubAssociation{err: errors.New("rewards: connection refused")}
	env := newTestEnv(t, assoc)
	b := env.business(t, "01811000001")

	_, err := env.cards.Resolve(context.Background(), 1234567890123456, b.Code)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestResolve_Validation(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.cards.Resolve(context.Background(), 0, "100000")
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = env.cards.Resolve(context.Background(), 1234567890123456, "")
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

// =========================================================================
// ISSUANCE TESTS
// =========================================================================

func TestAssignCard_NewMember(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	b := env.business(t, "01811000001")
	card := env.mint(t, b.Code, 1)[0]

	iss, err := env.cards.AssignCard(ctx, AssignRequest{
		BusinessCode: b.Code,
		CardNumber:   card.CardNumber,
		MobileNumber: "01711000001",
		FullName:     "Karim",
		PIN:          "1234",
	})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeAssigned, iss.Outcome)
	assert.False(t, iss.ExistingMember)

	m, err := env.registry.FindByMobile(ctx, "01711000001")
	require.NoError(t, err)
	assert.Equal(t, m.PrimaryCardNumber, iss.PrimaryCardNumber)
	assert.Equal(t, b.Code, m.CreatedBy)

	issued, err := env.cards.FindPhysicalCard(ctx, card.CardNumber, b.Code)
	require.NoError(t, err)
	assert.True(t, issued.Issued)

	mappings, err := env.cards.ListMappings(ctx, b.Code)
	require.NoError(t, err)
	require.Len(t, mappings, 1)
	assert.Equal(t, card.CardNumber, mappings[0].SecondaryCardNumber)
	assert.Equal(t, model.CardKindPhysical, mappings[0].Kind)
}

func TestAssignCard_ExistingMember(t *testing.T) {
	env := newTestEnv(t, nil)
	b := env.business(t, "01811000001")
	m := env.member(t, "01711000001", "")
	card := env.mint(t, b.Code, 1)[0]

	iss, err := env.cards.AssignCard(context.Background(), AssignRequest{
		BusinessCode: b.Code, CardNumber: card.CardNumber, MobileNumber: m.MobileNumber,
	})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeAssigned, iss.Outcome)
	assert.True(t, iss.ExistingMember)
	assert.Equal(t, m.PrimaryCardNumber, iss.PrimaryCardNumber)
}

func TestAssignCard_AlreadyIssued(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	b := env.business(t, "01811000001")
	first := env.member(t, "01711000001", "")
	second := env.member(t, "01711000002", "")
	card := env.mint(t, b.Code, 1)[0]

	_, err := env.cards.AssignCard(ctx, AssignRequest{BusinessCode: b.Code, CardNumber: card.CardNumber, MobileNumber: first.MobileNumber})
	require.NoError(t, err)

	for _, mobile := range []string{first.MobileNumber, second.MobileNumber} {
		iss, err := env.cards.AssignCard(ctx, AssignRequest{BusinessCode: b.Code, CardNumber: card.CardNumber, MobileNumber: mobile})
		require.NoError(t, err)
		assert.Equal(t, model.OutcomeAlreadyIssued, iss.Outcome)
		assert.Equal(t, first.PrimaryCardNumber, iss.PrimaryCardNumber)
	}

	mappings, err := env.cards.ListMappings(ctx, b.Code)
	require.NoError(t, err)
	assert.Len(t, mappings, 1)
}

func TestAssignCard_CardNotFound(t *testing.T) {
	env := newTestEnv(t, nil)
	b1 := env.business(t, "01811000001")
	b2 := env.business(t, "01811000002")
	card := env.mint(t, b2.Code, 1)[0]

	for _, n := range []int64{1234567890123456, card.CardNumber} {
		iss, err := env.cards.AssignCard(context.Background(), AssignRequest{
			BusinessCode: b1.Code, CardNumber: n, MobileNumber: "01711000001", FullName: "A", PIN: "1234",
		})
		require.NoError(t, err)
		assert.Equal(t, model.OutcomeCardNotFound, iss.Outcome)
	}

	_, err := env.registry.FindByMobile(context.Background(), "01711000001")
	assert.ErrorIs(t, err, apperror.ErrNotFound, "no member should be created for a missing card")
}

func TestAssignCard_NewMemberNeedsDetails(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	b := env.business(t, "01811000001")
	card := env.mint(t, b.Code, 1)[0]

	_, err := env.cards.AssignCard(ctx, AssignRequest{BusinessCode: b.Code, CardNumber: card.CardNumber, MobileNumber: "01711000001"})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	still, err := env.cards.FindPhysicalCard(ctx, card.CardNumber, b.Code)
	require.NoError(t, err)
	assert.False(t, still.Issued)
}

func TestAssignCard_ConcurrentIssuersOneWinner(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	b := env.business(t, "01811000001")
	card := env.mint(t, b.Code, 1)[0]

	const workers = 8
	members := make([]*model.Member, workers)
	for i := range members {
		members[i] = env.member(t, fmt.Sprintf("0171100000%d", i), "")
	}

	var wg sync.WaitGroup
	results := make([]*model.Issuance, workers)
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = env.cards.AssignCard(ctx, AssignRequest{
				BusinessCode: b.Code, CardNumber: card.CardNumber, MobileNumber: members[i].MobileNumber,
			})
		}(i)
	}
	wg.Wait()

	var winner int64
	assigned := 0
	for i := range workers {
		require.NoError(t, errs[i])
		if results[i].Outcome == model.OutcomeAssigned {
			assigned++
			winner = results[i].PrimaryCardNumber
		}
	}
	require.Equal(t, 1, assigned)

	for i := range workers {
		assert.Equal(t, winner, results[i].PrimaryCardNumber)
	}

	res, err := env.cards.Resolve(ctx, card.CardNumber, b.Code)
	require.NoError(t, err)
	assert.Equal(t, winner, res.PrimaryCardNumber)
}

// =========================================================================
// MAPPING TESTS
// =========================================================================

func TestMapCard_Prepaid(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	b := env.business(t, "01811000001")
	m := env.member(t, "01711000001", "")

	mapping, err := env.cards.MapCard(ctx, MapRequest{
		PrimaryCardNumber:   m.PrimaryCardNumber,
		SecondaryCardNumber: 5555000011112222,
		Kind:                model.CardKindPrepaid,
		BusinessCode:        b.Code,
	})
	require.NoError(t, err)
	assert.Equal(t, model.CardKindPrepaid, mapping.Kind)

	_, err = env.cards.MapCard(ctx, MapRequest{
		PrimaryCardNumber:   m.PrimaryCardNumber,
		SecondaryCardNumber: 5555000011112222,
		Kind:                model.CardKindDigital,
	})
	assert.ErrorIs(t, err, apperror.ErrConflict)

	ok, err := NewLedgerAssociation(env.db, env.db).IsAssociated(ctx, m.PrimaryCardNumber, b.Code)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMapCard_Physical(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	b := env.business(t, "01811000001")
	m := env.member(t, "01711000001", "")
	card := env.mint(t, b.Code, 1)[0]

	req := MapRequest{
		PrimaryCardNumber:   m.PrimaryCardNumber,
		SecondaryCardNumber: card.CardNumber,
		Kind:                model.CardKindPhysical,
		BusinessCode:        b.Code,
	}
	_, err := env.cards.MapCard(ctx, req)
	require.NoError(t, err)

	_, err = env.cards.MapCard(ctx, req)
	assert.ErrorIs(t, err, apperror.ErrConflict)

	res, err := env.cards.Resolve(ctx, card.CardNumber, b.Code)
	require.NoError(t, err)
	assert.Equal(t, m.PrimaryCardNumber, res.PrimaryCardNumber)
}

func TestMapCard_Rejections(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	b := env.business(t, "01811000001")
	m := env.member(t, "01711000001", "")
	other := env.member(t, "01711000002", "")

	tests := []struct {
		name string
		req  MapRequest
		want error
	}{
		{"unknown kind", MapRequest{PrimaryCardNumber: m.PrimaryCardNumber, SecondaryCardNumber: 5, Kind: "gift"}, apperror.ErrValidation},
		{"self mapping", MapRequest{PrimaryCardNumber: m.PrimaryCardNumber, SecondaryCardNumber: m.PrimaryCardNumber, Kind: model.CardKindDigital}, apperror.ErrValidation},
		{"unknown primary", MapRequest{PrimaryCardNumber: 1111222233334444, SecondaryCardNumber: 5, Kind: model.CardKindDigital}, apperror.ErrNotFound},
		{"physical without business", MapRequest{PrimaryCardNumber: m.PrimaryCardNumber, SecondaryCardNumber: 5, Kind: model.CardKindPhysical}, apperror.ErrValidation},
		{"physical not in pool", MapRequest{PrimaryCardNumber: m.PrimaryCardNumber, SecondaryCardNumber: 5, Kind: model.CardKindPhysical, BusinessCode: b.Code}, apperror.ErrNotFound},
		{"another member's primary", MapRequest{PrimaryCardNumber: m.PrimaryCardNumber, SecondaryCardNumber: other.PrimaryCardNumber, Kind: model.CardKindDigital}, apperror.ErrConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.cards.MapCard(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestMapCard_PrepaidNumberIsNeverMinted(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	b := env.business(t, "01811000001")
	m := env.member(t, "01711000001", "")

	// A generator with the same seed draws the same first number.
	first, err := idgen.NewSeeded(7, 11).Unique(ctx, idgen.CardNumberRange)
	require.NoError(t, err)

	_, err = env.cards.MapCard(ctx, MapRequest{
		PrimaryCardNumber:   m.PrimaryCardNumber,
		SecondaryCardNumber: first,
		Kind:                model.CardKindPrepaid,
	})
	require.NoError(t, err)

	svc := NewCardService(env.db, env.db, env.registry, &stubAssociation{}, idgen.NewSeeded(7, 11), discardLogger())
	res, err := svc.MintBatch(ctx, b.Code, 3)
	require.NoError(t, err)
	require.Equal(t, 3, res.Count)
	for _, c := range res.Cards {
		assert.NotEqual(t, first, c.CardNumber)
	}

	_, err = env.cards.FindPhysicalCard(ctx, first, b.Code)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	issued, err := env.cards.AssignCard(ctx, AssignRequest{
		BusinessCode: b.Code,
		CardNumber:   first,
		MobileNumber: "01711000002",
		FullName:     "Someone",
		PIN:          "1234",
	})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeCardNotFound, issued.Outcome)
}

// =========================================================================
// UNIQUENESS ACROSS DOMAINS
// =========================================================================

func TestCardNumbers_UniqueAcrossMintsAndMembers(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	b := env.business(t, "01811000001")

	const (
		workers = 5
		rounds  = 10
		batch   = 20
	)

	var (
		mu      sync.Mutex
		numbers []int64
		wg      sync.WaitGroup
	)
	errs := make(chan error, workers*rounds*2)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				res, err := env.cards.MintBatch(ctx, b.Code, batch)
				if err != nil {
					errs <- err
					continue
				}
				m, err := env.registry.CreateMember(ctx, NewMember{
					MobileNumber: fmt.Sprintf("0172%02d%05d", w, r),
					FullName:     "Member",
					PIN:          "1234",
				})
				if err != nil {
					errs <- err
					continue
				}

				mu.Lock()
				for _, c := range res.Cards {
					numbers = append(numbers, c.CardNumber)
				}
				numbers = append(numbers, m.PrimaryCardNumber)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	require.Len(t, numbers, workers*rounds*(batch+1))
	seen := make(map[int64]bool, len(numbers))
	for _, n := range numbers {
		assert.False(t, seen[n], "card number %d issued twice", n)
		seen[n] = true
	}

	listed, err := env.cards.ListPhysicalCards(ctx, b.Code)
	require.NoError(t, err)
	assert.Len(t, listed, workers*rounds*batch)
}
