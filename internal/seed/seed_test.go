package seed_test

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	feescheduledomain "github.com/smallbiznis/creatorpay/internal/feeschedule/domain"
	ledgerdomain "github.com/smallbiznis/creatorpay/internal/ledger/domain"
	"github.com/smallbiznis/creatorpay/internal/seed"
	"github.com/smallbiznis/creatorpay/internal/testutil"
)

func TestRunIsIdempotent(t *testing.T) {
	db := testutil.NewDB(t)
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("node: %v", err)
	}
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		if err := seed.Run(db, node, now); err != nil {
			t.Fatalf("seed run %d: %v", i, err)
		}
	}

	var accounts int64
	if err := db.Model(&ledgerdomain.LedgerAccount{}).Count(&accounts).Error; err != nil {
		t.Fatalf("count accounts: %v", err)
	}
	if accounts != int64(len(ledgerdomain.ChartOfAccounts)) {
		t.Fatalf("expected %d accounts, got %d", len(ledgerdomain.ChartOfAccounts), accounts)
	}

	var schedules []feescheduledomain.FeeSchedule
	if err := db.Find(&schedules).Error; err != nil {
		t.Fatalf("list schedules: %v", err)
	}
	if len(schedules) != 1 {
		t.Fatalf("expected one default schedule, got %d", len(schedules))
	}
	if schedules[0].StandardFeeBps != 1000 || schedules[0].MinPayoutAmount != 20000 {
		t.Fatalf("unexpected default schedule: %+v", schedules[0])
	}
}

func TestRunRequiresHandles(t *testing.T) {
	if err := seed.Run(nil, nil, time.Now()); err == nil {
		t.Fatalf("expected error for missing handles")
	}
}
