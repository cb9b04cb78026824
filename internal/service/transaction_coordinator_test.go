package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"exchange-service/internal/apperr"
	"exchange-service/internal/catalog"
	"exchange-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCoordinator() (*TransactionCoordinator, *recordingPublisher) {
	s := seededStore()
	pub := &recordingPublisher{}
	return NewTransactionCoordinator(s, s, pub), pub
}

func inquire(t *testing.T, tc *TransactionCoordinator, buyerID, materialID, qty string) *models.Transaction {
	t.Helper()
	tx, err := tc.CreateTransaction(context.Background(), &CreateTransactionRequest{
		MaterialID:        materialID,
		BuyerID:           buyerID,
		RequestedQuantity: qty,
		PurposeNote:       "site refit",
	})
	require.NoError(t, err)
	return tx
}

func TestCreateTransaction(t *testing.T) {
	tc, pub := newCoordinator()

	tx := inquire(t, tc, "B1", "M1", "5 units")

	assert.NotEmpty(t, tx.ID)
	assert.Equal(t, models.TransactionStatusPending, tx.Status)
	assert.Equal(t, "S1", tx.SellerOrgID)
	assert.Equal(t, "Reclaimed Timber", tx.MaterialTitle)
	assert.Equal(t, "5 units", tx.RequestedQuantity)
	assert.Equal(t, []string{models.EventTypeTransactionCreated}, pub.transactionTypes())
}

func TestCreateTransactionDeclines(t *testing.T) {
	cases := []struct {
		name     string
		material string
		buyer    string
		qty      string
		kind     apperr.Kind
	}{
		{"blank material", "", "B1", "1", apperr.KindValidation},
		{"blank buyer", "M1", "", "1", apperr.KindValidation},
		{"blank quantity", "M1", "B1", "  ", apperr.KindValidation},
		{"unknown material", "nope", "B1", "1", apperr.KindNotFound},
		{"unavailable material", "M2", "B1", "1", apperr.KindValidation},
		{"blocked seller", "M3", "B1", "1", apperr.KindValidation},
		{"exceeds advertised", "M1", "B1", "11 units", apperr.KindValidation},
		{"zero quantity", "M1", "B1", "0", apperr.KindValidation},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			tc, _ := newCoordinator()
			_, err := tc.CreateTransaction(context.Background(), &CreateTransactionRequest{
				MaterialID:        c.material,
				BuyerID:           c.buyer,
				RequestedQuantity: c.qty,
			})
			require.Error(t, err)
			assert.Equal(t, c.kind, apperr.KindOf(err))
		})
	}
}

func TestCreateTransactionAcceptsOpaqueQuantities(t *testing.T) {
	tc, _ := newCoordinator()

	inquire(t, tc, "B1", "M4", "99 crates")
	inquire(t, tc, "B2", "M1", "a couple of planks")
}

func TestCreateTransactionOneOpenPerMaterial(t *testing.T) {
	tc, _ := newCoordinator()
	ctx := context.Background()

	first := inquire(t, tc, "B1", "M1", "2")
	_, err := tc.CreateTransaction(ctx, &CreateTransactionRequest{MaterialID: "M1", BuyerID: "B1", RequestedQuantity: "1"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = tc.RejectTransaction(ctx, first.ID, "S1")
	require.NoError(t, err)

	inquire(t, tc, "B1", "M1", "1")
}

func TestAcceptTransaction(t *testing.T) {
	tc, pub := newCoordinator()
	ctx := context.Background()
	tx := inquire(t, tc, "B1", "M1", "5 units")

	accepted, err := tc.AcceptTransaction(ctx, tx.ID, "S1")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusInProgress, accepted.Status)

	_, err = tc.AcceptTransaction(ctx, tx.ID, "S1")
	assert.True(t, apperr.Is(err, apperr.KindInvalidState))

	assert.Equal(t, []string{
		models.EventTypeTransactionCreated,
		models.EventTypeTransactionAccepted,
	}, pub.transactionTypes())
	assert.Equal(t, models.TransactionStatusPending, pub.transactions[1].FromStatus)
}

func TestAcceptTransactionByNonOwner(t *testing.T) {
	tc, _ := newCoordinator()
	ctx := context.Background()
	tx := inquire(t, tc, "B1", "M1", "5 units")

	_, err := tc.AcceptTransaction(ctx, tx.ID, "S2")
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	_, err = tc.AcceptTransaction(ctx, tx.ID, "")
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	got, err := tc.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusPending, got.Status)
}

func TestAcceptUnknownTransaction(t *testing.T) {
	tc, _ := newCoordinator()
	_, err := tc.AcceptTransaction(context.Background(), "missing", "S1")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestAcceptByBlockedOrganization(t *testing.T) {
	s := seededStore()
	tc := NewTransactionCoordinator(s, s, &recordingPublisher{})
	tx := inquire(t, tc, "B1", "M1", "1")

	s.PutOrganization(models.Organization{ID: "S1", Name: "Acme Salvage", Blocked: true})

	_, err := tc.AcceptTransaction(context.Background(), tx.ID, "S1")
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	// rejecting is still allowed
	_, err = tc.RejectTransaction(context.Background(), tx.ID, "S1")
	assert.NoError(t, err)
}

func TestTerminalStatesAreFinal(t *testing.T) {
	tc, _ := newCoordinator()
	ctx := context.Background()

	rejected := inquire(t, tc, "B1", "M1", "1")
	_, err := tc.RejectTransaction(ctx, rejected.ID, "S1")
	require.NoError(t, err)
	_, err = tc.AcceptTransaction(ctx, rejected.ID, "S1")
	assert.True(t, apperr.Is(err, apperr.KindInvalidState))
	_, err = tc.CompleteTransaction(ctx, rejected.ID)
	assert.True(t, apperr.Is(err, apperr.KindInvalidState))

	completed := inquire(t, tc, "B2", "M1", "1")
	_, err = tc.AcceptTransaction(ctx, completed.ID, "S1")
	require.NoError(t, err)
	done, err := tc.CompleteTransaction(ctx, completed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusCompleted, done.Status)

	_, err = tc.RejectTransaction(ctx, completed.ID, "S1")
	assert.True(t, apperr.Is(err, apperr.KindInvalidState))
}

func TestCompleteRequiresInProgress(t *testing.T) {
	tc, _ := newCoordinator()
	tx := inquire(t, tc, "B1", "M1", "1")

	_, err := tc.CompleteTransaction(context.Background(), tx.ID)
	assert.True(t, apperr.Is(err, apperr.KindInvalidState))
}

func TestConcurrentDecisionsApplyOnce(t *testing.T) {
	tc, _ := newCoordinator()
	ctx := context.Background()
	tx := inquire(t, tc, "B1", "M1", "1")

	const workers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
		invalid int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = tc.AcceptTransaction(ctx, tx.ID, "S1")
			} else {
				_, err = tc.RejectTransaction(ctx, tx.ID, "S1")
			}
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				applied++
			} else if apperr.Is(err, apperr.KindInvalidState) {
				invalid++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, applied)
	assert.Equal(t, workers-1, invalid)
}

func TestListsAreNewestFirst(t *testing.T) {
	tc, _ := newCoordinator()
	ctx := context.Background()

	first := inquire(t, tc, "B1", "M1", "1")
	second := inquire(t, tc, "B1", "M4", "1")
	inquire(t, tc, "B2", "M1", "1")

	buyer, err := tc.ListForBuyer(ctx, "B1")
	require.NoError(t, err)
	require.Len(t, buyer, 2)
	assert.Equal(t, second.ID, buyer[0].ID)
	assert.Equal(t, first.ID, buyer[1].ID)

	seller, err := tc.ListForSeller(ctx, "S1", "")
	require.NoError(t, err)
	assert.Len(t, seller, 3)

	perListing, err := tc.ListForSeller(ctx, "S1", "M1")
	require.NoError(t, err)
	require.Len(t, perListing, 2)
	for _, tx := range perListing {
		assert.Equal(t, "M1", tx.MaterialID)
	}

	none, err := tc.ListForSeller(ctx, "S1", "M2")
	require.NoError(t, err)
	assert.Empty(t, none)

	counts, err := tc.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, counts[models.TransactionStatusPending])
}

func TestPublishFailureDoesNotFailMutation(t *testing.T) {
	s := seededStore()
	tc := NewTransactionCoordinator(s, s, &recordingPublisher{err: assert.AnError})

	tx := inquire(t, tc, "B1", "M1", "1")
	_, err := tc.AcceptTransaction(context.Background(), tx.ID, "S1")
	assert.NoError(t, err)
}

func TestCreateTransactionSeesAvailabilityPastCache(t *testing.T) {
	s := seededStore()
	tc := NewTransactionCoordinator(s, catalog.NewCached(s, 16, 30*time.Second), &recordingPublisher{})

	inquire(t, tc, "B1", "M1", "5 units")

	s.PutMaterial(models.Material{ID: "M1", SellerOrgID: "S1", Title: "Reclaimed Timber", Quantity: "10 units", Available: false})
	_, err := tc.CreateTransaction(context.Background(), &CreateTransactionRequest{
		MaterialID: "M1", BuyerID: "B2", RequestedQuantity: "1",
	})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	// the advertised quantity is also read fresh
	s.PutMaterial(models.Material{ID: "M1", SellerOrgID: "S1", Title: "Reclaimed Timber", Quantity: "2 units", Available: true})
	_, err = tc.CreateTransaction(context.Background(), &CreateTransactionRequest{
		MaterialID: "M1", BuyerID: "B2", RequestedQuantity: "5",
	})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}
