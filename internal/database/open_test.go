package database

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

type queryRecorder struct {
	mu  sync.Mutex
	ops []string
}

func (r *queryRecorder) RecordDBQuery(database, operation string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, database+":"+operation)
}

func TestOpen_SQLite(t *testing.T) {
	rec := &queryRecorder{}
	db, err := Open("sqlite", ":memory:", OpenOptions{Observer: rec}, zap.NewNop())
	require.NoError(t, err)

	var n int
	require.NoError(t, db.Raw("select 1").Scan(&n).Error)
	assert.Equal(t, 1, n)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Contains(t, rec.ops, "sqlite:SELECT")
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open("oracle", "x", OpenOptions{}, nil)
	assert.ErrorContains(t, err, "unsupported database driver")

	_, err = Open("sqlite", "", OpenOptions{}, nil)
	assert.ErrorContains(t, err, "dsn not configured")
}

func TestGormLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := NewGormLogger(zap.New(core), "postgres", OpenOptions{SlowThreshold: 10 * time.Millisecond})
	ctx := context.Background()
	sql := func() (string, int64) { return "UPDATE conversations SET status = 'RESOLVED'", 1 }

	l.Trace(ctx, time.Now().Add(-time.Second), sql, nil)
	require.Equal(t, 1, logs.FilterMessage("slow query").Len())

	l.Trace(ctx, time.Now(), sql, errors.New("relation does not exist"))
	require.Equal(t, 1, logs.FilterMessage("query failed").Len())

	silent := l.LogMode(gormlogger.Silent)
	silent.Trace(ctx, time.Now(), sql, errors.New("boom"))
	silent.Error(ctx, "ignored %d", 1)
	assert.Equal(t, 1, logs.FilterMessage("query failed").Len())

	l.Warn(ctx, "pool %s", "low")
	assert.Equal(t, 1, logs.FilterMessage("pool low").Len())
	l.Info(ctx, "hidden at warn level")
	assert.Zero(t, logs.FilterMessage("hidden at warn level").Len())
}

func TestOperation(t *testing.T) {
	assert.Equal(t, "SELECT", operation("  select * from conversations"))
	assert.Equal(t, "INSERT", operation("INSERT\tINTO x"))
	assert.Equal(t, "UNKNOWN", operation(""))
	assert.Equal(t, "VACUUM", operation("vacuum"))
}
