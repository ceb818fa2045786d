// Package testutil wires the finance core against an in-memory sqlite
// database for service tests.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	chargebackdomain "github.com/smallbiznis/creatorpay/internal/chargeback/domain"
	chargebackrepo "github.com/smallbiznis/creatorpay/internal/chargeback/repository"
	chargebackservice "github.com/smallbiznis/creatorpay/internal/chargeback/service"
	"github.com/smallbiznis/creatorpay/internal/clock"
	"github.com/smallbiznis/creatorpay/internal/config"
	"github.com/smallbiznis/creatorpay/internal/events"
	feescheduledomain "github.com/smallbiznis/creatorpay/internal/feeschedule/domain"
	feeschedulerepo "github.com/smallbiznis/creatorpay/internal/feeschedule/repository"
	feescheduleservice "github.com/smallbiznis/creatorpay/internal/feeschedule/service"
	ledgerdomain "github.com/smallbiznis/creatorpay/internal/ledger/domain"
	ledgerservice "github.com/smallbiznis/creatorpay/internal/ledger/service"
	"github.com/smallbiznis/creatorpay/internal/migration"
	"github.com/smallbiznis/creatorpay/internal/outbox"
	payoutdomain "github.com/smallbiznis/creatorpay/internal/payout/domain"
	payoutrepo "github.com/smallbiznis/creatorpay/internal/payout/repository"
	payoutservice "github.com/smallbiznis/creatorpay/internal/payout/service"
	"github.com/smallbiznis/creatorpay/internal/providers/pdf"
	"github.com/smallbiznis/creatorpay/internal/seed"
	transactiondomain "github.com/smallbiznis/creatorpay/internal/transaction/domain"
	transactionrepo "github.com/smallbiznis/creatorpay/internal/transaction/repository"
	transactionservice "github.com/smallbiznis/creatorpay/internal/transaction/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const Currency = "USD"

var dbSeq atomic.Int64

// NewDB opens a private in-memory sqlite database with the schema and the
// chart of accounts installed. A single connection keeps every statement on
// the same database, so callers never overlap.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:creatorpay_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), dbSeq.Add(1))
	return openDB(t, dsn, 1)
}

// NewConcurrentDB opens a file-backed sqlite database that serves several
// connections at once. Transactions begin IMMEDIATE and wait on the busy
// timeout, so concurrent writers queue behind each other the way row locks
// make them queue on postgres.
func NewConcurrentDB(t testing.TB) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "creatorpay.db")
	dsn := "file:" + path + "?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_txlock=immediate"
	return openDB(t, dsn, 8)
}

func openDB(t testing.TB, dsn string, maxOpen int) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := migration.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type Harness struct {
	DB      *gorm.DB
	Node    *snowflake.Node
	Clock   *clock.FakeClock
	Cfg     config.Config
	Finance *config.FinanceConfigHolder
	Log     *zap.Logger

	ScheduleCache   *feescheduleservice.MemoryCache
	Schedules       *feescheduleservice.Service
	Ledger          ledgerdomain.Service
	Outbox          *events.Outbox
	TransactionRepo transactiondomain.Repository
	Transactions    transactiondomain.Service
	Chargebacks     chargebackdomain.Service
	Payouts         payoutdomain.Service
	Processor       *outbox.Processor
}

// NewHarness builds every core service over one database with the clock
// pinned at now.
func NewHarness(t testing.TB, now time.Time) *Harness {
	t.Helper()
	return newHarness(t, now, NewDB(t))
}

// NewConcurrentHarness is NewHarness over NewConcurrentDB, for tests that
// drive services from several goroutines.
func NewConcurrentHarness(t testing.TB, now time.Time) *Harness {
	t.Helper()
	return newHarness(t, now, NewConcurrentDB(t))
}

func newHarness(t testing.TB, now time.Time, db *gorm.DB) *Harness {
	t.Helper()

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	clk := clock.NewFakeClock(now)
	log := zap.NewNop()
	cfg := config.Config{SettlementCurrency: Currency}
	finance := config.NewStaticFinanceConfigHolder(config.DefaultFinanceConfig())

	if err := seed.EnsureChartOfAccounts(context.Background(), db, node, now); err != nil {
		t.Fatalf("seed accounts: %v", err)
	}

	scheduleCache := feescheduleservice.NewMemoryCache(clk, time.Minute)
	schedules := feescheduleservice.NewService(feescheduleservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: clk,
		Repo:  feeschedulerepo.Provide(),
		Cache: scheduleCache,
	})
	ledger := ledgerservice.NewService(ledgerservice.Params{
		DB:       db,
		Log:      log,
		GenID:    node,
		Clock:    clk,
		Accounts: ledgerservice.NewAccountCache(),
	})
	ob := events.NewOutbox(events.OutboxParams{GenID: node, Clock: clk, Log: log})
	txnRepo := transactionrepo.Provide()

	h := &Harness{
		DB:              db,
		Node:            node,
		Clock:           clk,
		Cfg:             cfg,
		Finance:         finance,
		Log:             log,
		ScheduleCache:   scheduleCache,
		Schedules:       schedules,
		Ledger:          ledger,
		Outbox:          ob,
		TransactionRepo: txnRepo,
	}
	h.Transactions = transactionservice.NewService(transactionservice.Params{
		DB:        db,
		Log:       log,
		GenID:     node,
		Clock:     clk,
		Cfg:       cfg,
		Repo:      txnRepo,
		Schedules: schedules,
		Tiers:     schedules,
		Ledger:    ledger,
		Outbox:    ob,
	})
	h.Chargebacks = chargebackservice.NewService(chargebackservice.Params{
		DB:           db,
		Log:          log,
		GenID:        node,
		Clock:        clk,
		Repo:         chargebackrepo.Provide(),
		Transactions: txnRepo,
		Ledger:       ledger,
		Outbox:       ob,
	})
	h.Payouts = h.NewPayoutService(payoutrepo.Provide())
	h.Processor = outbox.NewProcessor(outbox.ProcessorParams{DB: db, Log: log, Clock: clk})
	return h
}

// NewPayoutService builds a payout service over the harness with repo in
// place of the gorm repository.
func (h *Harness) NewPayoutService(repo payoutdomain.Repository) payoutdomain.Service {
	return payoutservice.NewService(payoutservice.Params{
		DB:        h.DB,
		Log:       h.Log,
		GenID:     h.Node,
		Clock:     h.Clock,
		Finance:   h.Finance,
		Repo:      repo,
		Schedules: h.Schedules,
		Ledger:    h.Ledger,
		Outbox:    h.Outbox,
		PDF:       pdf.New(),
	})
}

// SeedSchedule inserts a fee schedule row directly, bypassing the
// not-in-the-past rule so tests can backdate timelines.
func (h *Harness) SeedSchedule(t testing.TB, s feescheduledomain.FeeSchedule) feescheduledomain.FeeSchedule {
	t.Helper()
	if s.ID == 0 {
		s.ID = h.Node.Generate()
	}
	if s.PayoutFrequency == "" {
		s.PayoutFrequency = feescheduledomain.PayoutFrequencyWeekly
	}
	s.EffectiveFrom = s.EffectiveFrom.UTC()
	s.CreatedAt = h.Clock.Now()
	if err := h.DB.Create(&s).Error; err != nil {
		t.Fatalf("seed schedule: %v", err)
	}
	h.ScheduleCache.Invalidate(context.Background())
	return s
}

// SeedDefaultSchedule installs 10% standard, 7% VIP, 7 hold days and a
// 20000 minimum payout, effective long before any test payment.
func (h *Harness) SeedDefaultSchedule(t testing.TB) feescheduledomain.FeeSchedule {
	t.Helper()
	return h.SeedSchedule(t, seed.DefaultFeeSchedule)
}

// Pay ingests a payment for creatorID with a unique provider event id.
func (h *Harness) Pay(t testing.TB, creatorID string, gross int64, occurredAt time.Time) transactiondomain.Transaction {
	t.Helper()
	txn, created, err := h.Transactions.CreateTransaction(context.Background(), transactiondomain.CreateTransactionRequest{
		CreatorID:         creatorID,
		FanUserID:         "fan_1",
		ProductType:       transactiondomain.ProductSubscription,
		GrossAmount:       gross,
		Currency:          Currency,
		Provider:          "stripe",
		ProviderPaymentID: fmt.Sprintf("pi_%d", h.Node.Generate()),
		ProviderEventID:   fmt.Sprintf("evt_%d", h.Node.Generate()),
		OccurredAt:        occurredAt,
	})
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	if !created {
		t.Fatalf("expected a new transaction")
	}
	return txn
}

// OutboxEvents returns stored events of the given type, oldest first.
func (h *Harness) OutboxEvents(t testing.TB, eventType events.EventType) []events.OutboxEvent {
	t.Helper()
	var rows []events.OutboxEvent
	if err := h.DB.Where("event_type = ?", eventType).Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
		t.Fatalf("list outbox events: %v", err)
	}
	return rows
}
