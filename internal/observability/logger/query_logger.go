package logger

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// QueryLogConfig controls which database statements reach the log.
type QueryLogConfig struct {
	Level gormlogger.LogLevel
	// SlowQuery marks statements on any table as slow.
	SlowQuery time.Duration
	// MoneySlowQuery is the tighter threshold for ledger, transaction and
	// payout tables. Those statements run inside row-locking transactions.
	MoneySlowQuery time.Duration
	LogNotFound    bool
}

// DefaultQueryLogConfig logs failures and slow statements only.
func DefaultQueryLogConfig() QueryLogConfig {
	return QueryLogConfig{
		Level:          gormlogger.Warn,
		SlowQuery:      200 * time.Millisecond,
		MoneySlowQuery: 50 * time.Millisecond,
	}
}

// ParseQueryLogLevel maps silent, error, warn and info to gorm levels.
func ParseQueryLogLevel(level string) gormlogger.LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "silent", "off":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info", "debug":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}

var moneyTables = map[string]struct{}{
	"transactions":    {},
	"chargebacks":     {},
	"payouts":         {},
	"payout_items":    {},
	"ledger_journals": {},
	"ledger_entries":  {},
	"ledger_accounts": {},
}

// QueryLogger writes gorm statements through the service logger, tagged with
// the table they touch and the request's creator and correlation ids.
type QueryLogger struct {
	base *zap.Logger
	cfg  QueryLogConfig
}

func NewQueryLogger(base *zap.Logger, cfg QueryLogConfig) *QueryLogger {
	if base == nil {
		base = zap.NewNop()
	}
	return &QueryLogger{base: base.Named("db"), cfg: cfg}
}

func (l *QueryLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	next := *l
	next.cfg.Level = level
	return &next
}

func (l *QueryLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.cfg.Level >= gormlogger.Info {
		WithContext(ctx, l.base).Info(msg, zap.Any("data", data))
	}
}

func (l *QueryLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.cfg.Level >= gormlogger.Warn {
		WithContext(ctx, l.base).Warn(msg, zap.Any("data", data))
	}
}

func (l *QueryLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.cfg.Level >= gormlogger.Error {
		WithContext(ctx, l.base).Error(msg, zap.Any("data", data))
	}
}

func (l *QueryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.cfg.Level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)

	switch {
	case err != nil && errors.Is(err, gormlogger.ErrRecordNotFound):
		if l.cfg.LogNotFound && l.cfg.Level >= gormlogger.Info {
			l.write(ctx, fc, elapsed, err).Debug("db statement found no rows")
		}
	case err != nil && isUniqueViolation(err):
		// Replayed events and rival payout claims surface as unique
		// violations; callers resolve them.
		if l.cfg.Level >= gormlogger.Info {
			l.write(ctx, fc, elapsed, err).Info("db statement hit unique key")
		}
	case err != nil:
		if l.cfg.Level >= gormlogger.Error {
			l.write(ctx, fc, elapsed, err).Error("db statement failed")
		}
	case l.cfg.Level >= gormlogger.Warn && l.slow(fc, elapsed):
		l.write(ctx, fc, elapsed, nil).Warn("slow db statement")
	case l.cfg.Level >= gormlogger.Info:
		l.write(ctx, fc, elapsed, nil).Debug("db statement")
	}
}

// ParamsFilter drops bound values; they carry amounts and processor ids.
func (l *QueryLogger) ParamsFilter(_ context.Context, sql string, _ ...interface{}) (string, []interface{}) {
	return sql, nil
}

func (l *QueryLogger) slow(fc func() (string, int64), elapsed time.Duration) bool {
	threshold := l.cfg.SlowQuery
	if l.cfg.MoneySlowQuery > 0 {
		sql, _ := fc()
		if _, table := classifyStatement(sql); isMoneyTable(table) {
			threshold = l.cfg.MoneySlowQuery
		}
	}
	return threshold > 0 && elapsed > threshold
}

func (l *QueryLogger) write(ctx context.Context, fc func() (string, int64), elapsed time.Duration, err error) *zap.Logger {
	sql, rows := fc()
	statement, table := classifyStatement(sql)
	fields := []zap.Field{
		zap.String("statement", statement),
		zap.String("table", table),
		zap.Bool("money_path", isMoneyTable(table)),
		zap.Int64("elapsed_ms", elapsed.Milliseconds()),
		zap.String("sql", strings.TrimSpace(sql)),
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows", rows))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	return WithContext(ctx, l.base).With(fields...)
}

// classifyStatement returns the verb and first table of a SQL statement.
func classifyStatement(sql string) (string, string) {
	tokens := strings.Fields(sql)
	statement := "UNKNOWN"
	for i, token := range tokens {
		word := strings.ToUpper(strings.Trim(token, "();"))
		switch word {
		case "SELECT", "INSERT", "UPDATE", "DELETE":
			if statement == "UNKNOWN" {
				statement = word
			}
			if word == "UPDATE" && i+1 < len(tokens) {
				return statement, tableName(tokens[i+1])
			}
		case "FROM", "INTO":
			if i+1 < len(tokens) {
				return statement, tableName(tokens[i+1])
			}
		}
	}
	return statement, ""
}

func tableName(token string) string {
	token = strings.Trim(token, "`\"();")
	if dot := strings.LastIndex(token, "."); dot >= 0 {
		token = strings.Trim(token[dot+1:], "`\"")
	}
	return strings.ToLower(token)
}

func isMoneyTable(table string) bool {
	_, ok := moneyTables[table]
	return ok
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "SQLSTATE 23505") ||
		strings.Contains(msg, "Error 1062")
}

var _ gormlogger.Interface = (*QueryLogger)(nil)
