package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang/mock/gomock"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/smallbiznis/creatorpay/internal/clock"
	"github.com/smallbiznis/creatorpay/internal/events"
	obsmetrics "github.com/smallbiznis/creatorpay/internal/observability/metrics"
	"github.com/smallbiznis/creatorpay/internal/outbox/mocks"
	payoutdomain "github.com/smallbiznis/creatorpay/internal/payout/domain"
	"github.com/smallbiznis/creatorpay/internal/testutil"
	"go.uber.org/zap"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func TestRunJobTimeoutDoesNotReturnErrorAndIncrementsTimeout(t *testing.T) {
	registry := useFreshRegistry(t)
	obsmetrics.SchedulerWithConfig(obsmetrics.Config{
		ServiceName: "creatorpay",
		Environment: "test",
	})

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	s := &Scheduler{log: zap.NewNop(), genID: node, clock: clock.NewFakeClock(time.Time{})}
	err = s.runJob(context.Background(), "timeout_job", 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	labels := map[string]string{
		"service": "creatorpay",
		"env":     "test",
		"job":     "timeout_job",
	}
	if got := getCounterValue(t, registry, "creatorpay_scheduler_job_timeouts_total", labels); got != 1 {
		t.Fatalf("expected timeout count 1, got %v", got)
	}

	errorLabels := map[string]string{
		"service": "creatorpay",
		"env":     "test",
		"job":     "timeout_job",
		"reason":  obsmetrics.SchedulerJobReasonDeadlineExceeded,
	}
	if got := getCounterValue(t, registry, "creatorpay_scheduler_job_errors_total", errorLabels); got != 1 {
		t.Fatalf("expected error count 1, got %v", got)
	}
}

func TestRunOnceClaimsPayoutsAndDrainsOutbox(t *testing.T) {
	useFreshRegistry(t)
	h := testutil.NewHarness(t, now)
	h.SeedDefaultSchedule(t)
	h.Pay(t, "creator_1", 25000, now.AddDate(0, 0, -8))

	ctrl := gomock.NewController(t)
	pub := mocks.NewMockPublisher(ctrl)
	pub.EXPECT().Name().Return("mock").AnyTimes()
	var published []events.EventType
	pub.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, evt events.OutboxEvent) error {
		published = append(published, evt.EventType)
		return nil
	}).Times(2)

	s := newScheduler(t, h, pub, Config{})
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	payouts, err := h.Payouts.List(context.Background(), payoutdomain.ListRequest{CreatorID: "creator_1"})
	if err != nil {
		t.Fatalf("list payouts: %v", err)
	}
	if len(payouts) != 1 || payouts[0].PayoutAmount != 22500 {
		t.Fatalf("expected one 22500 payout, got %+v", payouts)
	}
	if len(published) != 2 || published[0] != events.EventTransactionCreated || published[1] != events.EventPayoutCalculated {
		t.Fatalf("unexpected publish order: %v", published)
	}

	stats, err := h.Processor.Stats(context.Background(), 5)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Pending != 0 || stats.Published != 2 {
		t.Fatalf("unexpected outbox stats: %+v", stats)
	}
}

func TestEnabledJobsFilter(t *testing.T) {
	useFreshRegistry(t)
	h := testutil.NewHarness(t, now)
	h.SeedDefaultSchedule(t)
	h.Pay(t, "creator_1", 25000, now.AddDate(0, 0, -8))

	ctrl := gomock.NewController(t)
	pub := mocks.NewMockPublisher(ctrl)
	pub.EXPECT().Name().Return("mock").AnyTimes()

	s := newScheduler(t, h, pub, Config{EnabledJobs: []string{"CALCULATE_PAYOUTS"}})
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	stats, err := h.Processor.Stats(context.Background(), 5)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Published != 0 || stats.Pending != 2 {
		t.Fatalf("outbox should be untouched, got %+v", stats)
	}
}

func TestLeaderLockSkipsTickWhenHeldElsewhere(t *testing.T) {
	useFreshRegistry(t)
	h := testutil.NewHarness(t, now)
	h.SeedDefaultSchedule(t)
	h.Pay(t, "creator_1", 25000, now.AddDate(0, 0, -8))

	ctrl := gomock.NewController(t)
	pub := mocks.NewMockPublisher(ctrl)

	s := newScheduler(t, h, pub, Config{LeaderLock: true})
	locker := &fakeLocker{held: true}
	s.locker = locker

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	payouts, err := h.Payouts.List(context.Background(), payoutdomain.ListRequest{})
	if err != nil {
		t.Fatalf("list payouts: %v", err)
	}
	if len(payouts) != 0 {
		t.Fatalf("non-leader must not claim payouts")
	}

	locker.failWith = errors.New("redis down")
	if err := s.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected lock error")
	}
}

func TestLeaderLockReleasedAfterTick(t *testing.T) {
	useFreshRegistry(t)
	h := testutil.NewHarness(t, now)
	h.SeedDefaultSchedule(t)

	ctrl := gomock.NewController(t)
	pub := mocks.NewMockPublisher(ctrl)
	pub.EXPECT().Name().Return("mock").AnyTimes()

	s := newScheduler(t, h, pub, Config{LeaderLock: true})
	locker := &fakeLocker{}
	s.locker = locker

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if locker.acquired != 1 || locker.released != 1 || locker.held {
		t.Fatalf("unexpected lock usage: %+v", locker)
	}
}

func TestOutboxCleanupRunsOncePerInterval(t *testing.T) {
	useFreshRegistry(t)
	h := testutil.NewHarness(t, now)

	ctrl := gomock.NewController(t)
	pub := mocks.NewMockPublisher(ctrl)

	s := newScheduler(t, h, pub, Config{CleanupInterval: time.Hour})
	if err := s.OutboxCleanupJob(context.Background()); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	first := s.lastCleanup
	if !first.Equal(now) {
		t.Fatalf("expected cleanup at %v, got %v", now, first)
	}

	h.Clock.Advance(30 * time.Minute)
	if err := s.OutboxCleanupJob(context.Background()); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if !s.lastCleanup.Equal(first) {
		t.Fatalf("cleanup ran before the interval elapsed")
	}

	h.Clock.Advance(time.Hour)
	if err := s.OutboxCleanupJob(context.Background()); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if !s.lastCleanup.After(first) {
		t.Fatalf("cleanup did not run after the interval")
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := New(Params{}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func newScheduler(t *testing.T, h *testutil.Harness, pub *mocks.MockPublisher, cfg Config) *Scheduler {
	t.Helper()
	s, err := New(Params{
		Log:       zap.NewNop(),
		GenID:     h.Node,
		Clock:     h.Clock,
		Finance:   h.Finance,
		Payouts:   h.Payouts,
		Processor: h.Processor,
		Publisher: pub,
		Config:    cfg,
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return s
}

type fakeLocker struct {
	held     bool
	failWith error
	acquired int
	released int
}

func (l *fakeLocker) TryLock(_ context.Context, _ string, _ time.Duration) (string, bool, error) {
	if l.failWith != nil {
		return "", false, l.failWith
	}
	if l.held {
		return "", false, nil
	}
	l.held = true
	l.acquired++
	return "token", true, nil
}

func (l *fakeLocker) Release(_ context.Context, _, token string) error {
	if token == "token" {
		l.held = false
		l.released++
	}
	return nil
}

// useFreshRegistry points the default prometheus registry at a private one
// for the duration of the test so the scheduler metrics singleton can be
// registered again.
func useFreshRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	registry := prometheus.NewRegistry()
	oldRegisterer := prometheus.DefaultRegisterer
	oldGatherer := prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	obsmetrics.ResetSchedulerMetricsForTest()
	t.Cleanup(func() {
		prometheus.DefaultRegisterer = oldRegisterer
		prometheus.DefaultGatherer = oldGatherer
		obsmetrics.ResetSchedulerMetricsForTest()
	})
	return registry
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			if metric.Counter == nil {
				t.Fatalf("metric %s is not a counter", name)
			}
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
