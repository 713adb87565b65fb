package cleanup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/lexcms/internal/metrics"
)

type mockDeleter struct {
	deleted int64
	err     error
	calls   int
}

func (m *mockDeleter) DeleteExpired(ctx context.Context) (int64, error) {
	m.calls++
	return m.deleted, m.err
}

type cleanedCollector struct {
	metrics.Nop
	cleaned []int64
}

func (c *cleanedCollector) RecordSessionsCleaned(n int64) {
	c.cleaned = append(c.cleaned, n)
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func TestCleanupJob_Run_SumsAllTargets(t *testing.T) {
	var buf bytes.Buffer
	remote := &mockDeleter{deleted: 3}
	local := &mockDeleter{deleted: 2}
	collector := &cleanedCollector{}

	job := NewCleanupJob(newTestLogger(&buf), collector,
		Target{Name: "remote", Store: remote},
		Target{Name: "local", Store: local},
	)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if remote.calls != 1 || local.calls != 1 {
		t.Errorf("calls = %d/%d, want 1/1", remote.calls, local.calls)
	}
	if len(collector.cleaned) != 1 || collector.cleaned[0] != 5 {
		t.Errorf("RecordSessionsCleaned = %v, want [5]", collector.cleaned)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid log output: %v", err)
	}
	if entry["deleted_count"] != float64(5) {
		t.Errorf("deleted_count = %v, want 5", entry["deleted_count"])
	}
}

func TestCleanupJob_Run_ContinuesAfterFailure(t *testing.T) {
	var buf bytes.Buffer
	failing := &mockDeleter{err: errors.New("connection refused")}
	local := &mockDeleter{deleted: 4}
	collector := &cleanedCollector{}

	job := NewCleanupJob(newTestLogger(&buf), collector,
		Target{Name: "remote", Store: failing},
		Target{Name: "local", Store: local},
	)

	err := job.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "remote") {
		t.Fatalf("Run() error = %v, want failure naming remote", err)
	}
	if local.calls != 1 {
		t.Error("local target should still run")
	}
	if len(collector.cleaned) != 1 || collector.cleaned[0] != 4 {
		t.Errorf("RecordSessionsCleaned = %v, want [4]", collector.cleaned)
	}
	if !strings.Contains(buf.String(), `"level":"ERROR"`) {
		t.Errorf("expected error log, got %s", buf.String())
	}
}

func TestCleanupJob_Start_StopsOnCancel(t *testing.T) {
	var buf bytes.Buffer
	local := &mockDeleter{}
	job := NewCleanupJob(newTestLogger(&buf), nil, Target{Name: "local", Store: local})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx, time.Hour)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
	if local.calls < 1 {
		t.Error("Start should run once immediately")
	}
}
