package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	obscontext "github.com/smallbiznis/creatorpay/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func statementFunc(sql string, rows int64) func() (string, int64) {
	return func() (string, int64) { return sql, rows }
}

func TestClassifyStatement(t *testing.T) {
	cases := []struct {
		sql       string
		statement string
		table     string
	}{
		{`SELECT * FROM "transactions" WHERE id = $1`, "SELECT", "transactions"},
		{"INSERT INTO `payout_items` (`id`) VALUES (?)", "INSERT", "payout_items"},
		{`UPDATE "public"."payouts" SET status = $1`, "UPDATE", "payouts"},
		{`DELETE FROM outbox_events WHERE id = ?`, "DELETE", "outbox_events"},
		{`WITH x AS (SELECT 1) SELECT * FROM ledger_entries`, "SELECT", "ledger_entries"},
		{``, "UNKNOWN", ""},
	}
	for _, tc := range cases {
		statement, table := classifyStatement(tc.sql)
		if statement != tc.statement || table != tc.table {
			t.Fatalf("classifyStatement(%q) = (%s, %s), want (%s, %s)", tc.sql, statement, table, tc.statement, tc.table)
		}
	}
}

func TestQueryLoggerUsesTighterThresholdForMoneyTables(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewQueryLogger(zap.New(core), QueryLogConfig{
		Level:          gormlogger.Warn,
		SlowQuery:      time.Second,
		MoneySlowQuery: 10 * time.Millisecond,
	})
	ctx := obscontext.WithCreatorID(context.Background(), "creator-1")
	begin := time.Now().Add(-50 * time.Millisecond)

	l.Trace(ctx, begin, statementFunc(`SELECT * FROM "fee_schedules"`, 1), nil)
	if logs.Len() != 0 {
		t.Fatalf("expected fee schedule read under the general threshold to stay quiet, got %d entries", logs.Len())
	}

	l.Trace(ctx, begin, statementFunc(`SELECT * FROM "payouts" FOR UPDATE`, 1), nil)
	entries := logs.FilterMessage("slow db statement").All()
	if len(entries) != 1 {
		t.Fatalf("expected one slow statement entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["table"] != "payouts" || fields["money_path"] != true || fields["creator_id"] != "creator-1" {
		t.Fatalf("unexpected fields: %v", fields)
	}
	if entries[0].LoggerName != "db" {
		t.Fatalf("expected logger name db, got %q", entries[0].LoggerName)
	}
}

func TestQueryLoggerDoesNotReportUniqueViolationsAsFailures(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewQueryLogger(zap.New(core), DefaultQueryLogConfig())

	l.Trace(context.Background(), time.Now(), statementFunc(`INSERT INTO transactions (id) VALUES (?)`, 0),
		errors.New("constraint failed: UNIQUE constraint failed: transactions.processor_event_id (2067)"))
	if logs.Len() != 0 {
		t.Fatalf("expected unique violation to stay below warn, got %d entries", logs.Len())
	}

	l.Trace(context.Background(), time.Now(), statementFunc(`INSERT INTO transactions (id) VALUES (?)`, 0),
		errors.New("disk I/O error"))
	if logs.FilterMessage("db statement failed").Len() != 1 {
		t.Fatalf("expected failure entry, got %v", logs.All())
	}
}

func TestQueryLoggerSilentLevel(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewQueryLogger(zap.New(core), DefaultQueryLogConfig()).LogMode(gormlogger.Silent)

	l.Trace(context.Background(), time.Now().Add(-time.Hour), statementFunc(`SELECT * FROM payouts`, 1), errors.New("boom"))
	if logs.Len() != 0 {
		t.Fatalf("expected silent logger to drop entries, got %d", logs.Len())
	}
	if ParseQueryLogLevel("off") != gormlogger.Silent || ParseQueryLogLevel("nonsense") != gormlogger.Warn {
		t.Fatalf("unexpected level parsing")
	}
}
