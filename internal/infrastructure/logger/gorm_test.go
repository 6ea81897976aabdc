package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestGormLogger_Trace(t *testing.T) {
	sql := func() (string, int64) { return `SELECT * FROM "receivables"`, 2 }
	ctx := WithRequestID(context.Background(), "req-9")

	tests := []struct {
		name    string
		level   gormlogger.LogLevel
		begin   time.Time
		err     error
		wantMsg string
	}{
		{name: "error", level: gormlogger.Warn, begin: time.Now(), err: errors.New("boom"), wantMsg: "SQL error"},
		{name: "slow", level: gormlogger.Warn, begin: time.Now().Add(-time.Second), wantMsg: "Slow SQL"},
		{name: "fast below info", level: gormlogger.Warn, begin: time.Now()},
		{name: "fast at info", level: gormlogger.Info, begin: time.Now(), wantMsg: "SQL"},
		{name: "not found is quiet", level: gormlogger.Warn, begin: time.Now(), err: gormlogger.ErrRecordNotFound},
		{name: "silent", level: gormlogger.Silent, begin: time.Now().Add(-time.Second), err: errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			l := NewGormLogger(zap.New(core), tt.level, 100*time.Millisecond)
			l.Trace(ctx, tt.begin, sql, tt.err)

			if tt.wantMsg == "" {
				assert.Zero(t, logs.Len())
				return
			}
			entries := logs.FilterMessage(tt.wantMsg).All()
			if assert.Len(t, entries, 1) {
				fields := entries[0].ContextMap()
				assert.Equal(t, "req-9", fields["request_id"])
				assert.Equal(t, int64(2), fields["rows"])
				assert.Equal(t, "gorm", entries[0].LoggerName)
			}
		})
	}
}

func TestGormLogger_LogMode(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	base := NewGormLogger(zap.New(core), gormlogger.Silent, 0)

	loud := base.LogMode(gormlogger.Info)
	loud.Info(context.Background(), "migrated %d tables", 3)
	base.Info(context.Background(), "hidden")

	assert.Equal(t, 1, logs.Len())
	assert.Equal(t, "migrated 3 tables", logs.All()[0].Message)
}

func TestGormLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Info, GormLevel("debug"))
	assert.Equal(t, gormlogger.Warn, GormLevel("info"))
	assert.Equal(t, gormlogger.Error, GormLevel("error"))
}
