package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	payoutdomain "github.com/smallbiznis/creatorpay/internal/payout/domain"
	"github.com/smallbiznis/creatorpay/internal/testutil"
	"github.com/smallbiznis/creatorpay/internal/transaction/domain"
	"github.com/smallbiznis/creatorpay/internal/transaction/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTransaction(node *snowflake.Node, eventID string) domain.Transaction {
	return domain.Transaction{
		ID:                   node.Generate(),
		CreatorID:            "creator_1",
		FanUserID:            "fan_1",
		ProductType:          domain.ProductTip,
		GrossAmount:          10000,
		AppliedFeeBps:        1000,
		PlatformFeeAmount:    1000,
		CreatorPayableAmount: 9000,
		Currency:             testutil.Currency,
		Status:               domain.StatusSucceeded,
		Provider:             "stripe",
		ProviderPaymentID:    "pi_" + eventID,
		ProviderEventID:      eventID,
		FeeScheduleID:        node.Generate(),
		OccurredAt:           now,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

func TestInsertIfAbsentReturnsStoredRowOnConflict(t *testing.T) {
	db := testutil.NewDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	repo := repository.Provide()
	ctx := context.Background()

	first := newTransaction(node, "evt_1")
	stored, created, err := repo.InsertIfAbsent(ctx, db, &first)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, first.ID, stored.ID)

	// A second delivery loses the insert and gets the winner back.
	second := newTransaction(node, "evt_1")
	second.GrossAmount = 99999
	stored, created, err = repo.InsertIfAbsent(ctx, db, &second)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, stored.ID)
	assert.Equal(t, int64(10000), stored.GrossAmount)

	var n int64
	require.NoError(t, db.Model(&domain.Transaction{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestPayoutClaimFor(t *testing.T) {
	db := testutil.NewDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	repo := repository.Provide()
	ctx := context.Background()

	txn := newTransaction(node, "evt_claim")
	_, _, err = repo.InsertIfAbsent(ctx, db, &txn)
	require.NoError(t, err)

	claim, err := repo.PayoutClaimFor(ctx, db, txn.ID)
	require.NoError(t, err)
	assert.Nil(t, claim)

	payout := payoutdomain.Payout{
		ID:           node.Generate(),
		CreatorID:    txn.CreatorID,
		PeriodStart:  now,
		PeriodEnd:    now,
		GrossTotal:   txn.GrossAmount,
		PayoutAmount: txn.CreatorPayableAmount,
		Currency:     txn.Currency,
		Status:       payoutdomain.StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, db.Create(&payout).Error)
	require.NoError(t, db.Create(&payoutdomain.PayoutItem{
		ID:            node.Generate(),
		PayoutID:      payout.ID,
		TransactionID: txn.ID,
		Amount:        txn.CreatorPayableAmount,
		OccurredAt:    now,
		CreatedAt:     now,
	}).Error)

	claim, err = repo.PayoutClaimFor(ctx, db, txn.ID)
	require.NoError(t, err)
	require.NotNil(t, claim)
	assert.Equal(t, payout.ID, claim.PayoutID)
	assert.Equal(t, string(payoutdomain.StatusPending), claim.Status)
	assert.False(t, claim.Sent())
}
