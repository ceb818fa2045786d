package service_test

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	chargebackdomain "github.com/smallbiznis/creatorpay/internal/chargeback/domain"
	"github.com/smallbiznis/creatorpay/internal/events"
	ledgerdomain "github.com/smallbiznis/creatorpay/internal/ledger/domain"
	"github.com/smallbiznis/creatorpay/internal/payout/domain"
	payoutrepo "github.com/smallbiznis/creatorpay/internal/payout/repository"
	"github.com/smallbiznis/creatorpay/internal/testutil"
	transactiondomain "github.com/smallbiznis/creatorpay/internal/transaction/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newHarness(t *testing.T) *testutil.Harness {
	t.Helper()
	h := testutil.NewHarness(t, now)
	h.SeedDefaultSchedule(t)
	return h
}

func countRows(t *testing.T, h *testutil.Harness, model any) int64 {
	t.Helper()
	var n int64
	if err := h.DB.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

// createPayout books 22500 of eligible funds for creatorID and claims them.
func createPayout(t *testing.T, h *testutil.Harness, creatorID string) domain.Payout {
	t.Helper()
	h.Pay(t, creatorID, 10000, now.AddDate(0, 0, -8))
	h.Pay(t, creatorID, 15000, now.AddDate(0, 0, -9))
	res, err := h.Payouts.CreatePayout(context.Background(), creatorID)
	if err != nil {
		t.Fatalf("create payout: %v", err)
	}
	if !res.Created {
		t.Fatalf("expected payout, got reason %s", res.Eligibility.Reason)
	}
	return *res.Payout
}

func TestCreatePayoutClaimsEligibleFunds(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.Pay(t, "creator_1", 10000, now.AddDate(0, 0, -8))
	h.Pay(t, "creator_1", 15000, now.AddDate(0, 0, -9))

	elig, err := h.Payouts.CalculateEligibility(ctx, "creator_1", now)
	require.NoError(t, err)
	assert.True(t, elig.CanCreatePayout)
	assert.Equal(t, domain.ReasonEligible, elig.Reason)
	assert.Equal(t, int64(22500), elig.EligibleAmount)
	assert.Equal(t, 2, elig.EligibleCount)
	assert.Equal(t, now.AddDate(0, 0, -7), elig.HoldReleaseDate)

	res, err := h.Payouts.CreatePayout(ctx, "creator_1")
	require.NoError(t, err)
	require.True(t, res.Created)
	p := res.Payout
	assert.Equal(t, domain.StatusCalculated, p.Status)
	assert.Equal(t, int64(22500), p.PayoutAmount)
	assert.Equal(t, int64(25000), p.GrossTotal)
	assert.Equal(t, int64(2500), p.PlatformFeeTotal)
	assert.Equal(t, "USD", p.Currency)
	assert.True(t, p.PeriodStart.Equal(now.AddDate(0, 0, -9)))
	assert.True(t, p.PeriodEnd.Equal(now))
	assert.Len(t, p.Items, 2)

	again, err := h.Payouts.CreatePayout(ctx, "creator_1")
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Equal(t, domain.ReasonNoEligibleFunds, again.Eligibility.Reason)
	assert.Equal(t, int64(20000), again.Eligibility.Shortfall)

	assert.Equal(t, int64(1), countRows(t, h, &domain.Payout{}))
	assert.Equal(t, int64(2), countRows(t, h, &domain.PayoutItem{}))
	assert.Len(t, h.OutboxEvents(t, events.EventPayoutCalculated), 1)

	// Claiming does not move money; settlement happens at send time.
	balance, err := h.Ledger.CreatorBalance(ctx, "creator_1")
	require.NoError(t, err)
	assert.Equal(t, int64(22500), balance.Payable)
}

func TestCreatePayoutBelowMinimum(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.Pay(t, "creator_1", 10000, now.AddDate(0, 0, -8))

	res, err := h.Payouts.CreatePayout(ctx, "creator_1")
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Nil(t, res.Payout)
	assert.Equal(t, domain.ReasonBelowMinimumPayout, res.Eligibility.Reason)
	assert.Equal(t, int64(9000), res.Eligibility.EligibleAmount)
	assert.Equal(t, int64(11000), res.Eligibility.Shortfall)
	assert.Equal(t, int64(0), countRows(t, h, &domain.Payout{}))
}

func TestHoldWindowGatesEligibility(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.Pay(t, "creator_1", 25000, now.AddDate(0, 0, -6))

	res, err := h.Payouts.CreatePayout(ctx, "creator_1")
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, domain.ReasonNoEligibleFunds, res.Eligibility.Reason)

	later, err := h.Payouts.CalculateEligibility(ctx, "creator_1", now.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.True(t, later.CanCreatePayout)

	h.Clock.Advance(24 * time.Hour)
	res, err = h.Payouts.CreatePayout(ctx, "creator_1")
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, int64(22500), res.Payout.PayoutAmount)
}

func TestRefundedTransactionsAreNotEligible(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.Pay(t, "creator_1", 25000, now.AddDate(0, 0, -8))
	refunded := h.Pay(t, "creator_1", 25000, now.AddDate(0, 0, -8))
	_, err := h.Transactions.RefundTransaction(ctx, transactiondomain.RefundRequest{TransactionID: refunded.ID})
	require.NoError(t, err)

	elig, err := h.Payouts.CalculateEligibility(ctx, "creator_1", now)
	require.NoError(t, err)
	assert.Equal(t, 1, elig.EligibleCount)
	assert.Equal(t, int64(22500), elig.EligibleAmount)
}

func TestMarkSentSettlesLedger(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := createPayout(t, h, "creator_1")

	h.Clock.Advance(time.Hour)
	sent, err := h.Payouts.MarkSent(ctx, p.ID, "tr_1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, sent.Status)
	require.NotNil(t, sent.ProviderTransferID)
	assert.Equal(t, "tr_1", *sent.ProviderTransferID)
	require.NotNil(t, sent.SentAt)
	assert.True(t, sent.SentAt.Equal(now.Add(time.Hour)))

	balance, err := h.Ledger.CreatorBalance(ctx, "creator_1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance.Payable)
	assert.Equal(t, int64(22500), balance.Paid)

	for _, item := range sent.Items {
		check, err := h.Ledger.VerifyBalance(ctx, item.TransactionID)
		require.NoError(t, err)
		assert.True(t, check.Balanced)
	}

	var settlements int64
	require.NoError(t, h.DB.Model(&ledgerdomain.LedgerJournal{}).
		Where("source_type = ?", ledgerdomain.SourceTypePayout).
		Count(&settlements).Error)
	assert.Equal(t, int64(2), settlements)

	// Same transfer id is a replay; a different one is a conflict.
	replay, err := h.Payouts.MarkSent(ctx, p.ID, "tr_1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, replay.Status)
	_, err = h.Payouts.MarkSent(ctx, p.ID, "tr_2")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	assert.Len(t, h.OutboxEvents(t, events.EventPayoutSent), 1)

	_, err = h.Payouts.MarkSent(ctx, p.ID, " ")
	assert.ErrorIs(t, err, domain.ErrInvalidTransferID)
	_, err = h.Payouts.MarkSent(ctx, h.Node.Generate(), "tr_3")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func decodeClawback(t *testing.T, h *testutil.Harness) *events.PayoutClawbackRequired {
	t.Helper()
	rows := h.OutboxEvents(t, events.EventClawbackRequired)
	require.Len(t, rows, 1)
	_, payload, err := events.DecodeEnvelope(rows[0].Payload)
	require.NoError(t, err)
	claw, ok := payload.(*events.PayoutClawbackRequired)
	require.True(t, ok)
	return claw
}

func TestMarkSentAfterChargebackRequiresClawback(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	txn := h.Pay(t, "creator_1", 25000, now.AddDate(0, 0, -8))

	res, err := h.Payouts.CreatePayout(ctx, "creator_1")
	require.NoError(t, err)
	require.True(t, res.Created)

	_, _, err = h.Chargebacks.CreateChargeback(ctx, chargebackdomain.CreateRequest{TransactionID: txn.ID, ProviderCaseID: "dp_1"})
	require.NoError(t, err)

	sent, err := h.Payouts.MarkSent(ctx, res.Payout.ID, "tr_1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, sent.Status)

	claw := decodeClawback(t, h)
	assert.Equal(t, res.Payout.ID.String(), claw.PayoutID)
	assert.Equal(t, int64(22500), claw.ClawbackAmount)
	assert.Equal(t, "tr_1", claw.ProviderTransferID)
	require.Len(t, claw.Items, 1)
	assert.Equal(t, txn.ID.String(), claw.Items[0].TransactionID)
	assert.Equal(t, string(transactiondomain.StatusChargedBack), claw.Items[0].TransactionStatus)

	rows := h.OutboxEvents(t, events.EventPayoutSent)
	require.Len(t, rows, 1)
	_, payload, err := events.DecodeEnvelope(rows[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, int64(22500), payload.(*events.PayoutSent).ClawbackAmount)

	// The money left, so the creator owes the reversed amount.
	balance, err := h.Ledger.CreatorBalance(ctx, "creator_1")
	require.NoError(t, err)
	assert.Equal(t, int64(-22500), balance.Payable)

	// A replay of the send does not report the clawback twice.
	_, err = h.Payouts.MarkSent(ctx, res.Payout.ID, "tr_1")
	require.NoError(t, err)
	assert.Len(t, h.OutboxEvents(t, events.EventClawbackRequired), 1)
}

func TestMarkSentAfterRefundRequiresClawback(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := createPayout(t, h, "creator_1")
	require.Len(t, p.Items, 2)
	refundedID := p.Items[0].TransactionID

	refunded, err := h.Transactions.RefundTransaction(ctx, transactiondomain.RefundRequest{TransactionID: refundedID})
	require.NoError(t, err)
	assert.Equal(t, transactiondomain.StatusRefunded, refunded.Status)

	rows := h.OutboxEvents(t, events.EventTransactionRefunded)
	require.Len(t, rows, 1)
	_, payload, err := events.DecodeEnvelope(rows[0].Payload)
	require.NoError(t, err)
	refundEvt := payload.(*events.TransactionRefunded)
	assert.False(t, refundEvt.WasAlreadyPaid)
	assert.Equal(t, p.ID.String(), refundEvt.ClaimedByPayoutID)
	assert.Equal(t, string(domain.StatusCalculated), refundEvt.PayoutStatus)

	_, err = h.Payouts.MarkSent(ctx, p.ID, "tr_1")
	require.NoError(t, err)

	claw := decodeClawback(t, h)
	require.Len(t, claw.Items, 1)
	assert.Equal(t, refundedID.String(), claw.Items[0].TransactionID)
	assert.Equal(t, string(transactiondomain.StatusRefunded), claw.Items[0].TransactionStatus)
	assert.Equal(t, p.Items[0].Amount, claw.ClawbackAmount)
}

func TestMarkSentWithoutReversalsEmitsNoClawback(t *testing.T) {
	h := newHarness(t)
	p := createPayout(t, h, "creator_1")

	_, err := h.Payouts.MarkSent(context.Background(), p.ID, "tr_1")
	require.NoError(t, err)
	assert.Empty(t, h.OutboxEvents(t, events.EventClawbackRequired))
}

func TestMarkFailedRetryPolicy(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := createPayout(t, h, "creator_1")

	first, err := h.Payouts.MarkFailed(ctx, p.ID, "bank_rejected")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, first.Status)
	assert.Equal(t, 1, first.RetryCount)
	require.NotNil(t, first.NextRetryAt)
	assert.True(t, first.NextRetryAt.Equal(now.Add(24*time.Hour)))

	due, err := h.Payouts.GetPendingRetry(ctx)
	require.NoError(t, err)
	assert.Empty(t, due)

	h.Clock.Advance(24 * time.Hour)
	due, err = h.Payouts.GetPendingRetry(ctx)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, p.ID, due[0].ID)

	second, err := h.Payouts.MarkFailed(ctx, p.ID, "bank_rejected")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, second.Status)
	assert.Equal(t, 2, second.RetryCount)

	h.Clock.Advance(24 * time.Hour)
	third, err := h.Payouts.MarkFailed(ctx, p.ID, "account_closed")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, third.Status)
	assert.Equal(t, 3, third.RetryCount)
	assert.Nil(t, third.NextRetryAt)

	due, err = h.Payouts.GetPendingRetry(ctx)
	require.NoError(t, err)
	assert.Empty(t, due)

	_, err = h.Payouts.MarkSent(ctx, p.ID, "tr_late")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = h.Payouts.MarkFailed(ctx, p.ID, "again")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	assert.Len(t, h.OutboxEvents(t, events.EventPayoutFailed), 3)

	// Failed payouts keep their claim; the funds stay payable.
	balance, err := h.Ledger.CreatorBalance(ctx, "creator_1")
	require.NoError(t, err)
	assert.Equal(t, int64(22500), balance.Payable)
}

func TestPendingPayoutCanStillBeSent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := createPayout(t, h, "creator_1")

	_, err := h.Payouts.MarkFailed(ctx, p.ID, "timeout")
	require.NoError(t, err)

	sent, err := h.Payouts.MarkSent(ctx, p.ID, "tr_retry")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, sent.Status)
	assert.Nil(t, sent.NextRetryAt)
	assert.Equal(t, 1, sent.RetryCount)

	_, err = h.Payouts.MarkFailed(ctx, p.ID, " ")
	assert.ErrorIs(t, err, domain.ErrInvalidFailureReason)
}

func TestCalculateAllPayouts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.Pay(t, "creator_a", 25000, now.AddDate(0, 0, -8))
	h.Pay(t, "creator_b", 10000, now.AddDate(0, 0, -8))
	h.Pay(t, "creator_c", 50000, now.AddDate(0, 0, -1))

	res, err := h.Payouts.CalculateAllPayouts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 2, res.Skipped)
	assert.Empty(t, res.Errors)

	list, err := h.Payouts.List(ctx, domain.ListRequest{CreatorID: "creator_a"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(22500), list[0].PayoutAmount)

	res, err = h.Payouts.CalculateAllPayouts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Created)
}

func TestConcurrentClaimsNeverDoubleClaim(t *testing.T) {
	h := testutil.NewConcurrentHarness(t, now)
	h.SeedDefaultSchedule(t)
	ctx := context.Background()

	h.Pay(t, "creator_1", 10000, now.AddDate(0, 0, -8))
	h.Pay(t, "creator_1", 15000, now.AddDate(0, 0, -9))

	const workers = 5
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		errs    []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.Payouts.CreatePayout(ctx, "creator_1")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if res.Created {
				created++
			}
		}()
	}
	wg.Wait()

	assert.Empty(t, errs)
	assert.Equal(t, 1, created)
	assert.Equal(t, int64(1), countRows(t, h, &domain.Payout{}))
	assert.Equal(t, int64(2), countRows(t, h, &domain.PayoutItem{}))
}

// rivalClaimRepo writes a competing claim for the first candidate item right
// before the real insert, for the first conflicts calls.
type rivalClaimRepo struct {
	domain.Repository
	h         *testutil.Harness
	conflicts int

	mu    sync.Mutex
	calls int
}

func (r *rivalClaimRepo) InsertItems(ctx context.Context, db *gorm.DB, items []domain.PayoutItem) error {
	r.mu.Lock()
	r.calls++
	rival := r.calls <= r.conflicts
	r.mu.Unlock()

	if rival && len(items) > 0 {
		item := items[0]
		item.ID = r.h.Node.Generate()
		if err := db.WithContext(ctx).Create(&item).Error; err != nil {
			return err
		}
	}
	return r.Repository.InsertItems(ctx, db, items)
}

func (r *rivalClaimRepo) insertCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestCreatePayoutRetriesAfterClaimConflict(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.Pay(t, "creator_1", 10000, now.AddDate(0, 0, -8))
	h.Pay(t, "creator_1", 15000, now.AddDate(0, 0, -9))

	repo := &rivalClaimRepo{Repository: payoutrepo.Provide(), h: h, conflicts: 1}
	svc := h.NewPayoutService(repo)

	res, err := svc.CreatePayout(ctx, "creator_1")
	require.NoError(t, err)
	require.True(t, res.Created)
	assert.Equal(t, 2, repo.insertCalls())
	assert.Equal(t, int64(22500), res.Payout.PayoutAmount)

	// The failed attempt rolled back entirely.
	assert.Equal(t, int64(1), countRows(t, h, &domain.Payout{}))
	assert.Equal(t, int64(2), countRows(t, h, &domain.PayoutItem{}))
	assert.Len(t, h.OutboxEvents(t, events.EventPayoutCalculated), 1)

	var stored []domain.PayoutItem
	require.NoError(t, h.DB.Find(&stored).Error)
	for _, item := range stored {
		assert.Equal(t, res.Payout.ID, item.PayoutID)
	}
}

func TestCreatePayoutGivesUpAfterClaimRetries(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.Pay(t, "creator_1", 25000, now.AddDate(0, 0, -8))

	repo := &rivalClaimRepo{Repository: payoutrepo.Provide(), h: h, conflicts: 100}
	svc := h.NewPayoutService(repo)

	_, err := svc.CreatePayout(ctx, "creator_1")
	require.ErrorIs(t, err, domain.ErrClaimConflict)
	assert.Equal(t, h.Finance.Get().Payout.ClaimRetries, repo.insertCalls())

	assert.Equal(t, int64(0), countRows(t, h, &domain.Payout{}))
	assert.Equal(t, int64(0), countRows(t, h, &domain.PayoutItem{}))
	assert.Empty(t, h.OutboxEvents(t, events.EventPayoutCalculated))

	elig, err := h.Payouts.CalculateEligibility(ctx, "creator_1", now)
	require.NoError(t, err)
	assert.True(t, elig.CanCreatePayout)
}

func TestRenderStatement(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := createPayout(t, h, "creator_1")

	_, err := h.Payouts.MarkSent(ctx, p.ID, "tr_1")
	require.NoError(t, err)

	doc, err := h.Payouts.RenderStatement(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(doc, []byte("%PDF")))

	_, err = h.Payouts.RenderStatement(ctx, h.Node.Generate())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	got, err := h.Payouts.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, got.Items, 2)
}

func TestCalculateEligibilityValidation(t *testing.T) {
	h := newHarness(t)

	_, err := h.Payouts.CalculateEligibility(context.Background(), "", now)
	assert.ErrorIs(t, err, domain.ErrInvalidCreator)
	_, err = h.Payouts.CreatePayout(context.Background(), " ")
	assert.ErrorIs(t, err, domain.ErrInvalidCreator)
}
