package logger

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

// DefaultLedgerTables are the tables written under a version check. An update
// on one of them that matches no row means a concurrent writer won.
var DefaultLedgerTables = []string{"payments", "refund_records", "balance_accounts"}

const defaultMaxSQLLength = 4096

// GormLogger implements gormlogger.Interface on zap. Statement entries carry
// the request, trace, payment and batch IDs found in the context, and
// version-checked ledger updates that miss are reported at warn.
type GormLogger struct {
	logger                    *zap.Logger
	logLevel                  gormlogger.LogLevel
	slowThreshold             time.Duration
	ignoreRecordNotFoundError bool
	ledgerTables              map[string]bool
	maxSQLLength              int
}

// GormLoggerOption is a function that configures a GormLogger
type GormLoggerOption func(*GormLogger)

// WithSlowThreshold sets the slow query threshold
func WithSlowThreshold(threshold time.Duration) GormLoggerOption {
	return func(l *GormLogger) {
		l.slowThreshold = threshold
	}
}

// WithIgnoreRecordNotFoundError configures whether to ignore record not found errors
func WithIgnoreRecordNotFoundError(ignore bool) GormLoggerOption {
	return func(l *GormLogger) {
		l.ignoreRecordNotFoundError = ignore
	}
}

// WithLedgerTables replaces the tables whose missed updates are reported.
// No tables turns the report off.
func WithLedgerTables(tables ...string) GormLoggerOption {
	return func(l *GormLogger) {
		l.ledgerTables = tableSet(tables)
	}
}

// WithMaxSQLLength caps the logged statement. Stored callback payloads can be
// large. n <= 0 disables the cap.
func WithMaxSQLLength(n int) GormLoggerOption {
	return func(l *GormLogger) {
		l.maxSQLLength = n
	}
}

// NewGormLogger creates a statement logger for the ledger database
func NewGormLogger(zapLogger *zap.Logger, level gormlogger.LogLevel, opts ...GormLoggerOption) *GormLogger {
	gl := &GormLogger{
		logger:                    zapLogger.Named("gorm"),
		logLevel:                  level,
		slowThreshold:             200 * time.Millisecond,
		ignoreRecordNotFoundError: true,
		ledgerTables:              tableSet(DefaultLedgerTables),
		maxSQLLength:              defaultMaxSQLLength,
	}

	for _, opt := range opts {
		opt(gl)
	}

	return gl
}

// LogMode implements gormlogger.Interface
func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	newLogger := *l
	newLogger.logLevel = level
	return &newLogger
}

func (l *GormLogger) Info(_ context.Context, msg string, data ...any) {
	if l.logLevel >= gormlogger.Info {
		l.logger.Sugar().Infof(msg, data...)
	}
}

func (l *GormLogger) Warn(_ context.Context, msg string, data ...any) {
	if l.logLevel >= gormlogger.Warn {
		l.logger.Sugar().Warnf(msg, data...)
	}
}

func (l *GormLogger) Error(_ context.Context, msg string, data ...any) {
	if l.logLevel >= gormlogger.Error {
		l.logger.Sugar().Errorf(msg, data...)
	}
}

// Trace logs one statement. Errors go to error. Slow statements and missed
// ledger updates go to warn. Everything else goes to debug.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.logLevel <= gormlogger.Silent {
		return
	}
	if err != nil && l.ignoreRecordNotFoundError && errors.Is(err, gormlogger.ErrRecordNotFound) {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := l.statementFields(ctx, sql, rows, elapsed)

	switch {
	case err != nil && l.logLevel >= gormlogger.Error:
		fields = append(fields, zap.Error(err))
		l.logger.Error("SQL Error", fields...)

	case elapsed > l.slowThreshold && l.slowThreshold != 0 && l.logLevel >= gormlogger.Warn:
		fields = append(fields, zap.Duration("threshold", l.slowThreshold))
		l.logger.Warn("Slow SQL", fields...)

	case rows == 0 && l.logLevel >= gormlogger.Warn && l.isLedgerUpdate(sql):
		fields = append(fields, zap.String("table", updatedTable(sql)))
		l.logger.Warn("Ledger update matched no rows", fields...)

	case l.logLevel >= gormlogger.Info:
		l.logger.Debug("SQL Query", fields...)
	}
}

func (l *GormLogger) statementFields(ctx context.Context, sql string, rows int64, elapsed time.Duration) []zap.Field {
	fields := []zap.Field{
		zap.Duration("elapsed", elapsed),
		zap.Int64("rows", rows),
	}
	if l.maxSQLLength > 0 && len(sql) > l.maxSQLLength {
		fields = append(fields, zap.String("sql", sql[:l.maxSQLLength]), zap.Int("sql_length", len(sql)))
	} else {
		fields = append(fields, zap.String("sql", sql))
	}
	if requestID := GetRequestID(ctx); requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}
	if traceID := GetTraceID(ctx); traceID != "" {
		fields = append(fields, zap.String("trace_id", traceID))
	}
	if paymentNo := GetPaymentNo(ctx); paymentNo != "" {
		fields = append(fields, zap.String("payment_no", paymentNo))
	}
	if batchNo := GetBatchNo(ctx); batchNo != "" {
		fields = append(fields, zap.String("batch_no", batchNo))
	}
	return fields
}

func (l *GormLogger) isLedgerUpdate(sql string) bool {
	if len(l.ledgerTables) == 0 {
		return false
	}
	table := updatedTable(sql)
	return table != "" && l.ledgerTables[table]
}

// updatedTable returns the target of an UPDATE statement, or "" for anything else
func updatedTable(sql string) string {
	parts := strings.Fields(sql)
	if len(parts) < 2 || !strings.EqualFold(parts[0], "UPDATE") {
		return ""
	}
	return strings.ToLower(strings.Trim(parts[1], "\"`"))
}

func tableSet(tables []string) map[string]bool {
	set := make(map[string]bool, len(tables))
	for _, t := range tables {
		set[strings.ToLower(t)] = true
	}
	return set
}

// MapGormLogLevel maps string log level to GORM log level
func MapGormLogLevel(level string) gormlogger.LogLevel {
	switch level {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "warn":
		return gormlogger.Warn
	case "info", "debug":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}
