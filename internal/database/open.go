package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// QueryObserver receives the duration of every executed statement.
type QueryObserver interface {
	RecordDBQuery(database, operation string, duration time.Duration)
}

// OpenOptions tunes Open.
type OpenOptions struct {
	// SlowThreshold marks statements logged at warn level. Zero disables it.
	SlowThreshold time.Duration
	// Observer, when set, receives per-statement timings.
	Observer QueryObserver
}

// Open connects gorm to driver (postgres, mysql or sqlite) using dsn.
func Open(driver, dsn string, opts OpenOptions, logger *zap.Logger) (*gorm.DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dsn == "" {
		return nil, fmt.Errorf("database dsn not configured")
	}

	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s (supported: postgres, mysql, sqlite)", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: NewGormLogger(logger, driver, opts),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	logger.Info("database connected", zap.String("driver", driver))
	return db, nil
}

// GormLogger routes gorm's logging through zap.
type GormLogger struct {
	logger   *zap.Logger
	database string
	opts     OpenOptions
	level    gormlogger.LogLevel
}

// NewGormLogger creates a gorm logger that writes to logger.
func NewGormLogger(logger *zap.Logger, database string, opts OpenOptions) *GormLogger {
	return &GormLogger{
		logger:   logger.With(zap.String("component", "gorm")),
		database: database,
		opts:     opts,
		level:    gormlogger.Warn,
	}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *l
	cp.level = level
	return &cp
}

func (l *GormLogger) Info(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Info {
		l.logger.Info(fmt.Sprintf(msg, args...))
	}
}

func (l *GormLogger) Warn(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Warn {
		l.logger.Warn(fmt.Sprintf(msg, args...))
	}
}

func (l *GormLogger) Error(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Error {
		l.logger.Error(fmt.Sprintf(msg, args...))
	}
}

func (l *GormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	if l.opts.Observer == nil && l.level <= gormlogger.Silent {
		return
	}
	sql, rows := fc()
	if l.opts.Observer != nil {
		l.opts.Observer.RecordDBQuery(l.database, operation(sql), elapsed)
	}

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= gormlogger.Error:
		l.logger.Error("query failed",
			zap.Error(err), zap.Duration("elapsed", elapsed), zap.Int64("rows", rows), zap.String("sql", sql))
	case l.opts.SlowThreshold > 0 && elapsed > l.opts.SlowThreshold && l.level >= gormlogger.Warn:
		l.logger.Warn("slow query",
			zap.Duration("elapsed", elapsed), zap.Duration("threshold", l.opts.SlowThreshold), zap.String("sql", sql))
	case l.level >= gormlogger.Info:
		l.logger.Debug("query", zap.Duration("elapsed", elapsed), zap.Int64("rows", rows), zap.String("sql", sql))
	}
}

// operation returns the statement verb, e.g. SELECT.
func operation(sql string) string {
	sql = strings.TrimSpace(sql)
	if i := strings.IndexAny(sql, " \t\n"); i > 0 {
		sql = sql[:i]
	}
	if sql == "" {
		return "UNKNOWN"
	}
	return strings.ToUpper(sql)
}
