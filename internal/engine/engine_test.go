package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltanReisoglu/UCP-AGENT/internal/catalog"
	"github.com/AltanReisoglu/UCP-AGENT/internal/domain"
	"github.com/AltanReisoglu/UCP-AGENT/internal/mandate"
	"github.com/AltanReisoglu/UCP-AGENT/internal/pipeline"
	"github.com/AltanReisoglu/UCP-AGENT/internal/store"
)

func int32ptr(v int32) *int32 { return &v }
func int64ptr(v int64) *int64 { return &v }
func strptr(s string) *string { return &s }

func testCatalog() catalog.Catalog {
	return catalog.NewMemoryCatalog([]domain.Product{
		{ID: "p1", Name: "Classic Potato Chips", Description: "Crispy salted potato chips", Price: 379, Currency: "USD"},
		{ID: "p2", Name: "Sparkling Water 12-pack", Description: "Lime flavored sparkling water", Price: 649, Currency: "USD"},
		{ID: "p3", Name: "Cold Brew Coffee", Description: "Slow steeped concentrate", Price: 1099, Currency: "USD", Available: int32ptr(5)},
	})
}

func setupEngine(t *testing.T, cfg Config) *Engine {
	key, err := mandate.GenerateKey()
	require.NoError(t, err)
	signer := mandate.NewSigner(key, "test-key-1")

	pipe := pipeline.New(
		pipeline.NewConsentStage(),
		pipeline.NewDiscountStage(pipeline.DefaultDiscounts()),
		pipeline.NewFulfillmentStage(nil),
		pipeline.NewMandateStage(signer),
	)

	sessions := store.NewMemoryStore(time.Minute)
	t.Cleanup(func() { sessions.Close() })

	return New(testCatalog(), sessions, pipe, cfg)
}

func createChips(t *testing.T, e *Engine, qty int32) *domain.CheckoutSession {
	result, err := e.Create(context.Background(), []domain.ItemInput{{ProductID: "p1", Quantity: qty}})
	require.NoError(t, err)
	return result.Session
}

func grantConsent(t *testing.T, e *Engine, id string) *domain.CheckoutSession {
	result, err := e.Update(context.Background(), id, &domain.UpdatePatch{
		Consent: []domain.ConsentGrant{{Scope: domain.ConsentScopeTransaction, Granted: true}},
	}, nil)
	require.NoError(t, err)
	return result.Session
}

func TestEngine_Create(t *testing.T) {
	e := setupEngine(t, Config{})
	s := createChips(t, e, 2)

	assert.NotEmpty(t, s.ID)
	assert.Equal(t, domain.CheckoutStatusOpen, s.Status)
	assert.Equal(t, domain.SubStatusNeedsFulfillment, s.SubStatus)
	assert.Equal(t, int64(1), s.Version)
	assert.Equal(t, "USD", s.Currency)

	require.Len(t, s.LineItems, 1)
	assert.Equal(t, "Classic Potato Chips", s.LineItems[0].ProductName)
	assert.Equal(t, int64(379), s.LineItems[0].UnitPrice)
	assert.Equal(t, int64(758), s.Totals.Subtotal)
	assert.Equal(t, int64(758), s.Totals.GrandTotal)
}

func TestEngine_Create_MergesDuplicateItems(t *testing.T) {
	e := setupEngine(t, Config{})

	result, err := e.Create(context.Background(), []domain.ItemInput{
		{ProductID: "p1", Quantity: 1},
		{ProductID: "p1", Quantity: 2},
	})
	require.NoError(t, err)

	require.Len(t, result.Session.LineItems, 1)
	assert.Equal(t, int32(3), result.Session.LineItems[0].Quantity)
}

func TestEngine_Create_Validation(t *testing.T) {
	e := setupEngine(t, Config{})
	ctx := context.Background()

	_, err := e.Create(ctx, nil)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = e.Create(ctx, []domain.ItemInput{{ProductID: "nope", Quantity: 1}})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = e.Create(ctx, []domain.ItemInput{{ProductID: "p1", Quantity: 0}})
	assert.ErrorIs(t, err, ErrValidation)

	// p3 has only 5 available
	_, err = e.Create(ctx, []domain.ItemInput{{ProductID: "p3", Quantity: 6}})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestEngine_Create_DuplicateItemsRespectAvailability(t *testing.T) {
	e := setupEngine(t, Config{})
	ctx := context.Background()

	// p3 has 5 available; the merged quantity is what must be checked
	_, err := e.Create(ctx, []domain.ItemInput{
		{ProductID: "p3", Quantity: 3},
		{ProductID: "p3", Quantity: 3},
	})
	assert.ErrorIs(t, err, ErrValidation)

	result, err := e.Create(ctx, []domain.ItemInput{
		{ProductID: "p3", Quantity: 2},
		{ProductID: "p3", Quantity: 3},
	})
	require.NoError(t, err)
	require.Len(t, result.Session.LineItems, 1)
	assert.Equal(t, int32(5), result.Session.LineItems[0].Quantity)
}

func TestEngine_Get(t *testing.T) {
	e := setupEngine(t, Config{})
	s := createChips(t, e, 2)

	got, err := e.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)

	_, err = e.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEngine_Update_AppliesDiscount(t *testing.T) {
	e := setupEngine(t, Config{})
	s := createChips(t, e, 2)

	result, err := e.Update(context.Background(), s.ID, &domain.UpdatePatch{
		DiscountCodes: &[]string{"SAVE10"},
	}, nil)
	require.NoError(t, err)

	updated := result.Session
	assert.Equal(t, int64(2), updated.Version)
	assert.Equal(t, int64(758), updated.Totals.Subtotal)
	assert.Equal(t, int64(76), updated.Totals.DiscountTotal)
	assert.Equal(t, int64(682), updated.Totals.GrandTotal)
	assert.Empty(t, result.Warnings)
}

func TestEngine_Update_RemovingItemsInvalidatesDiscount(t *testing.T) {
	e := setupEngine(t, Config{})
	s := createChips(t, e, 14) // subtotal 5306, above SAVE20's floor

	result, err := e.Update(context.Background(), s.ID, &domain.UpdatePatch{
		DiscountCodes: &[]string{"SAVE20"},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, int64(2000), result.Session.Totals.DiscountTotal)

	// Shrinking the cart below the floor drops the code with a warning
	result, err = e.Update(context.Background(), s.ID, &domain.UpdatePatch{
		Items: []domain.ItemPatch{{ProductID: "p1", Quantity: 2}},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(0), result.Session.Totals.DiscountTotal)
	assert.Empty(t, result.Session.DiscountCodes)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, pipeline.WarningDiscountInvalidated, result.Warnings[0].Code)
}

func TestEngine_Update_RemovesItemAtZeroQuantity(t *testing.T) {
	e := setupEngine(t, Config{})
	s := createChips(t, e, 2)

	result, err := e.Update(context.Background(), s.ID, &domain.UpdatePatch{
		Items: []domain.ItemPatch{
			{ProductID: "p2", Quantity: 1},
			{ProductID: "p1", Quantity: 0},
		},
	}, nil)
	require.NoError(t, err)

	require.Len(t, result.Session.LineItems, 1)
	assert.Equal(t, "p2", result.Session.LineItems[0].ProductID)
	assert.Equal(t, int64(649), result.Session.Totals.Subtotal)
}

func TestEngine_Update_VersionConflict(t *testing.T) {
	e := setupEngine(t, Config{})
	s := createChips(t, e, 2)

	_, err := e.Update(context.Background(), s.ID, &domain.UpdatePatch{
		DiscountCodes: &[]string{"SAVE10"},
	}, int64ptr(99))
	assert.ErrorIs(t, err, ErrConflict)

	// The failed update left the stored session untouched
	got, err := e.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
	assert.Empty(t, got.DiscountCodes)
}

func TestEngine_Update_FailedStageLeavesStateUntouched(t *testing.T) {
	e := setupEngine(t, Config{})
	s := createChips(t, e, 2)

	// Invalid fulfillment selection fails the pipeline mid-run even
	// though the consent grant before it was valid
	_, err := e.Update(context.Background(), s.ID, &domain.UpdatePatch{
		Consent:     []domain.ConsentGrant{{Scope: domain.ConsentScopeTransaction, Granted: true}},
		Fulfillment: &domain.FulfillmentPatch{SelectedOptionID: strptr("drone")},
	}, nil)
	assert.ErrorIs(t, err, ErrValidation)

	got, err := e.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
	assert.Empty(t, got.Consent)
	assert.False(t, got.FulfillmentResolved())
}

func TestEngine_Update_TerminalSessionRejected(t *testing.T) {
	e := setupEngine(t, Config{})
	s := createChips(t, e, 2)

	_, err := e.Cancel(context.Background(), s.ID, nil)
	require.NoError(t, err)

	_, err = e.Update(context.Background(), s.ID, &domain.UpdatePatch{
		DiscountCodes: &[]string{"SAVE10"},
	}, nil)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestEngine_Complete_RequiresConsent(t *testing.T) {
	e := setupEngine(t, Config{ConsentRequired: true})
	s := createChips(t, e, 2)

	_, err := e.Complete(context.Background(), s.ID, nil)
	assert.ErrorIs(t, err, ErrIncompleteRequirements)

	// Granting consent unblocks completion
	grantConsent(t, e, s.ID)
	result, err := e.Complete(context.Background(), s.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutStatusCompleted, result.Session.Status)
}

func TestEngine_Complete_RequiresFulfillment(t *testing.T) {
	e := setupEngine(t, Config{FulfillmentRequired: true})
	s := createChips(t, e, 2)

	_, err := e.Complete(context.Background(), s.ID, nil)
	assert.ErrorIs(t, err, ErrIncompleteRequirements)

	_, err = e.Update(context.Background(), s.ID, &domain.UpdatePatch{
		Fulfillment: &domain.FulfillmentPatch{SelectedOptionID: strptr("pickup")},
	}, nil)
	require.NoError(t, err)

	result, err := e.Complete(context.Background(), s.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutStatusCompleted, result.Session.Status)
}

func TestEngine_Complete_ProducesSignedOrder(t *testing.T) {
	e := setupEngine(t, Config{OrderPermalinkBase: "https://shop.example"})
	s := createChips(t, e, 2)

	result, err := e.Complete(context.Background(), s.ID, nil)
	require.NoError(t, err)

	session := result.Session
	assert.Equal(t, domain.CheckoutStatusCompleted, session.Status)
	assert.Empty(t, session.SubStatus)
	assert.Equal(t, int64(2), session.Version)

	require.NotNil(t, session.Mandate)
	assert.Equal(t, "ES256", session.Mandate.Algorithm)
	assert.NotEmpty(t, session.Mandate.Authorization)

	order := result.Order
	require.NotNil(t, order)
	assert.Equal(t, s.ID, order.CheckoutID)
	assert.Equal(t, session.Mandate.Digest, order.MandateDigest)
	assert.Equal(t, "https://shop.example/orders/"+order.ID, order.PermalinkURL)
	require.NotNil(t, order.Snapshot)
	assert.Equal(t, int64(758), order.Snapshot.Totals.GrandTotal)
}

func TestEngine_Complete_Idempotent(t *testing.T) {
	e := setupEngine(t, Config{})
	s := createChips(t, e, 2)

	first, err := e.Complete(context.Background(), s.ID, nil)
	require.NoError(t, err)

	// Retrying returns the same order without bumping the version
	second, err := e.Complete(context.Background(), s.ID, nil)
	require.NoError(t, err)

	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Equal(t, first.Session.Version, second.Session.Version)
}

func TestEngine_Complete_VersionConflict(t *testing.T) {
	e := setupEngine(t, Config{})
	s := createChips(t, e, 2)

	_, err := e.Complete(context.Background(), s.ID, int64ptr(99))
	assert.ErrorIs(t, err, ErrConflict)

	got, err := e.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutStatusOpen, got.Status)
}

func TestEngine_Complete_CanceledSessionRejected(t *testing.T) {
	e := setupEngine(t, Config{})
	s := createChips(t, e, 2)

	_, err := e.Cancel(context.Background(), s.ID, nil)
	require.NoError(t, err)

	_, err = e.Complete(context.Background(), s.ID, nil)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestEngine_Complete_ReevaluatesDiscounts(t *testing.T) {
	e := setupEngine(t, Config{})
	s := createChips(t, e, 2)

	_, err := e.Update(context.Background(), s.ID, &domain.UpdatePatch{
		DiscountCodes: &[]string{"SAVE10"},
	}, nil)
	require.NoError(t, err)

	result, err := e.Complete(context.Background(), s.ID, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(76), result.Session.Totals.DiscountTotal)
	assert.Equal(t, int64(682), result.Session.Totals.GrandTotal)
	assert.Equal(t, int64(682), result.Order.Snapshot.Totals.GrandTotal)
}

func TestEngine_Cancel(t *testing.T) {
	e := setupEngine(t, Config{})
	s := createChips(t, e, 2)

	result, err := e.Cancel(context.Background(), s.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutStatusCanceled, result.Session.Status)
	assert.Equal(t, int64(2), result.Session.Version)
	assert.Nil(t, result.Session.Mandate)

	// Canceling again is a no-op
	again, err := e.Cancel(context.Background(), s.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), again.Session.Version)
}

func TestEngine_Cancel_CompletedSessionRejected(t *testing.T) {
	e := setupEngine(t, Config{})
	s := createChips(t, e, 2)

	_, err := e.Complete(context.Background(), s.ID, nil)
	require.NoError(t, err)

	_, err = e.Cancel(context.Background(), s.ID, nil)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestEngine_Cancel_VersionConflict(t *testing.T) {
	e := setupEngine(t, Config{})
	s := createChips(t, e, 2)

	_, err := e.Cancel(context.Background(), s.ID, int64ptr(99))
	assert.ErrorIs(t, err, ErrConflict)
}

func TestEngine_ListenersNotifiedOnCommitOnly(t *testing.T) {
	e := setupEngine(t, Config{})
	listener := &recordingListener{}
	e.AddListener(listener)

	s := createChips(t, e, 2)
	assert.Equal(t, 1, listener.count())

	// A failed update does not notify
	_, err := e.Update(context.Background(), s.ID, &domain.UpdatePatch{
		DiscountCodes: &[]string{"SAVE10"},
	}, int64ptr(99))
	require.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, 1, listener.count())

	_, err = e.Complete(context.Background(), s.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, listener.count())
	assert.Equal(t, domain.CheckoutStatusCompleted, listener.last().Status)
}

func TestEngine_StorePutFailureSurfaced(t *testing.T) {
	key, err := mandate.GenerateKey()
	require.NoError(t, err)
	pipe := pipeline.New(pipeline.NewMandateStage(mandate.NewSigner(key, "k")))

	backing := store.NewMemoryStore(time.Minute)
	t.Cleanup(func() { backing.Close() })
	failing := &failingStore{SessionStore: backing, putErr: store.ErrVersionConflict}

	e := New(testCatalog(), failing, pipe, Config{})

	_, err = e.Create(context.Background(), []domain.ItemInput{{ProductID: "p1", Quantity: 1}})
	assert.Error(t, err)
}

func TestEngine_ConcurrentUpdatesSameExpectedVersion(t *testing.T) {
	e := setupEngine(t, Config{})
	s := createChips(t, e, 2)

	// Two writers race with the same expected version; exactly one
	// commits and the other observes the conflict
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for _, code := range []string{"SAVE10", "WELCOME"} {
		wg.Add(1)
		go func(code string) {
			defer wg.Done()
			_, err := e.Update(context.Background(), s.ID, &domain.UpdatePatch{
				DiscountCodes: &[]string{code},
			}, int64ptr(1))
			errs <- err
		}(code)
	}
	wg.Wait()
	close(errs)

	var conflicts, commits int
	for err := range errs {
		if err == nil {
			commits++
			continue
		}
		assert.ErrorIs(t, err, ErrConflict)
		conflicts++
	}
	assert.Equal(t, 1, commits)
	assert.Equal(t, 1, conflicts)

	got, err := e.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	require.Len(t, got.DiscountCodes, 1)
}

func TestEngine_ConcurrentUpdatesSerialize(t *testing.T) {
	e := setupEngine(t, Config{})
	s := createChips(t, e, 2)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Update(context.Background(), s.ID, &domain.UpdatePatch{
				DiscountCodes: &[]string{"WELCOME"},
			}, nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := e.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(11), got.Version)
}
