package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestOperationAndTableFromSQL(t *testing.T) {
	cases := []struct {
		sql       string
		operation string
		table     string
	}{
		{`SELECT * FROM "alerts" WHERE metric_type = $1`, "SELECT", "alerts"},
		{`INSERT INTO snapshots (id, snapshot_date) VALUES ($1, $2)`, "INSERT", "snapshots"},
		{`UPDATE export_jobs SET status = $1`, "UPDATE", "export_jobs"},
		{`WITH next AS (SELECT id FROM queue_jobs) SELECT * FROM next`, "SELECT", "queue_jobs"},
		{``, "UNKNOWN", ""},
	}
	for _, tc := range cases {
		if got := operationFromSQL(tc.sql); got != tc.operation {
			t.Fatalf("operation for %q: expected %q, got %q", tc.sql, tc.operation, got)
		}
		if got := tableFromSQL(tc.sql); got != tc.table {
			t.Fatalf("table for %q: expected %q, got %q", tc.sql, tc.table, got)
		}
	}
}

func TestGormLoggerSkipsPolledTables(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	l := NewGormLogger(GormLoggerConfig{Level: gormlogger.Info, SlowThreshold: time.Second, PolledTables: []string{"queue_jobs"}})
	begin := time.Now()
	l.Trace(context.Background(), begin, func() (string, int64) {
		return `SELECT * FROM queue_jobs WHERE status = 'queued'`, 0
	}, nil)
	l.Trace(context.Background(), begin, func() (string, int64) {
		return `SELECT * FROM alerts`, 3
	}, nil)
	l.Trace(context.Background(), begin, func() (string, int64) {
		return `UPDATE queue_jobs SET status = 'running'`, 0
	}, errors.New("database is locked"))

	entries := logs.FilterMessage("db.query").All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 query logs, got %d", len(entries))
	}
	if entries[0].ContextMap()["table"] != "alerts" {
		t.Fatalf("expected alerts statement first, got %v", entries[0].ContextMap())
	}
	if entries[1].Level != zapcore.ErrorLevel {
		t.Fatalf("expected failed queue statement at error, got %s", entries[1].Level)
	}
}

func TestGormLoggerIgnoresRecordNotFound(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	l := NewGormLogger(DefaultGormLoggerConfig())
	l.Trace(context.Background(), time.Now(), func() (string, int64) {
		return `SELECT * FROM snapshots WHERE snapshot_date = ?`, 0
	}, gormlogger.ErrRecordNotFound)

	if n := logs.Len(); n != 0 {
		t.Fatalf("expected no logs for record not found, got %d", n)
	}
}
