package outbox_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/golang/mock/gomock"
	"github.com/smallbiznis/creatorpay/internal/events"
	"github.com/smallbiznis/creatorpay/internal/outbox"
	"github.com/smallbiznis/creatorpay/internal/outbox/mocks"
	"github.com/smallbiznis/creatorpay/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newHarness(t *testing.T) *testutil.Harness {
	t.Helper()
	h := testutil.NewHarness(t, now)
	h.SeedDefaultSchedule(t)
	return h
}

func TestProcessEventsPublishesInOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first := h.Pay(t, "creator_1", 10000, now.Add(-time.Hour))
	h.Clock.Advance(time.Second)
	second := h.Pay(t, "creator_1", 5000, now.Add(-time.Hour))

	ctrl := gomock.NewController(t)
	pub := mocks.NewMockPublisher(ctrl)
	pub.EXPECT().Name().Return("mock").AnyTimes()
	gomock.InOrder(
		pub.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, evt events.OutboxEvent) error {
			assert.Equal(t, first.ID.String(), evt.AggregateID)
			return nil
		}),
		pub.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, evt events.OutboxEvent) error {
			assert.Equal(t, second.ID.String(), evt.AggregateID)
			return nil
		}),
	)

	res, err := h.Processor.ProcessEvents(ctx, pub, 10, 5)
	require.NoError(t, err)
	assert.Equal(t, outbox.ProcessResult{Published: 2}, res)

	// Nothing left to deliver.
	res, err = h.Processor.ProcessEvents(ctx, pub, 10, 5)
	require.NoError(t, err)
	assert.Equal(t, outbox.ProcessResult{}, res)

	stats, err := h.Processor.Stats(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, outbox.Stats{Published: 2}, stats)
}

func TestFailingEventIsParkedAfterMaxRetries(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.Pay(t, "creator_1", 10000, now.Add(-time.Hour))

	ctrl := gomock.NewController(t)
	pub := mocks.NewMockPublisher(ctrl)
	pub.EXPECT().Name().Return("mock").AnyTimes()
	pub.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("broker unavailable")).Times(5)

	for i := 0; i < 5; i++ {
		res, err := h.Processor.ProcessEvents(ctx, pub, 10, 5)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Failed)
	}

	// Parked: a sixth pass selects nothing.
	res, err := h.Processor.ProcessEvents(ctx, pub, 10, 5)
	require.NoError(t, err)
	assert.Equal(t, outbox.ProcessResult{}, res)

	rows := h.OutboxEvents(t, events.EventTransactionCreated)
	require.Len(t, rows, 1)
	assert.Equal(t, 5, rows[0].RetryCount)
	require.NotNil(t, rows[0].LastError)
	assert.Contains(t, *rows[0].LastError, "broker unavailable")
	assert.Nil(t, rows[0].PublishedAt)

	stats, err := h.Processor.Stats(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Stuck)
	assert.Equal(t, int64(0), stats.Pending)

	requeued, err := h.Processor.RetryFailedEvents(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(1), requeued)

	pub.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)
	res, err = h.Processor.ProcessEvents(ctx, pub, 10, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Published)

	rows = h.OutboxEvents(t, events.EventTransactionCreated)
	require.NotNil(t, rows[0].PublishedAt)
	assert.Nil(t, rows[0].LastError)
}

func TestLastErrorIsCutOnRuneBoundary(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.Pay(t, "creator_1", 10000, now.Add(-time.Hour))

	// The two-byte rune straddles the 1024-byte limit.
	msg := strings.Repeat("a", 1023) + strings.Repeat("é", 10)

	ctrl := gomock.NewController(t)
	pub := mocks.NewMockPublisher(ctrl)
	pub.EXPECT().Name().Return("mock").AnyTimes()
	pub.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New(msg))

	res, err := h.Processor.ProcessEvents(ctx, pub, 10, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)

	rows := h.OutboxEvents(t, events.EventTransactionCreated)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].LastError)
	stored := *rows[0].LastError
	assert.True(t, utf8.ValidString(stored))
	assert.Equal(t, strings.Repeat("a", 1023), stored)
	assert.Equal(t, 1, rows[0].RetryCount)
}

func TestCleanupPublishedEvents(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.Pay(t, "creator_1", 10000, now.Add(-time.Hour))

	ctrl := gomock.NewController(t)
	pub := mocks.NewMockPublisher(ctrl)
	pub.EXPECT().Name().Return("mock").AnyTimes()
	pub.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)

	_, err := h.Processor.ProcessEvents(ctx, pub, 10, 5)
	require.NoError(t, err)

	// An unpublished event must survive cleanup.
	h.Pay(t, "creator_1", 5000, now.Add(-time.Hour))

	removed, err := h.Processor.CleanupPublishedEvents(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed)

	h.Clock.Advance(31 * 24 * time.Hour)
	removed, err = h.Processor.CleanupPublishedEvents(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	assert.Len(t, h.OutboxEvents(t, events.EventTransactionCreated), 1)
}

func TestProcessEventsRequiresPublisher(t *testing.T) {
	h := newHarness(t)
	_, err := h.Processor.ProcessEvents(context.Background(), nil, 10, 5)
	assert.ErrorIs(t, err, outbox.ErrNilPublisher)
}
