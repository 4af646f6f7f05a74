package async

import (
	"strings"
	"sync"
	"testing"
	"time"
)

type panicRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (p *panicRecorder) Error(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lines = append(p.lines, format)
}

func (p *panicRecorder) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.lines)
}

func TestGuardRecoversPanic(t *testing.T) {
	rec := &panicRecorder{}

	ok := Guard(rec, "bad-request", func() {
		panic("boom")
	})
	if ok {
		t.Fatal("Guard reported ok for a panicking fn")
	}
	if rec.count() != 1 {
		t.Fatalf("expected 1 panic log, got %d", rec.count())
	}
	if !strings.Contains(rec.lines[0], "goroutine panic [%s]") {
		t.Errorf("panic log missing name placeholder: %q", rec.lines[0])
	}
}

func TestGuardPassesThrough(t *testing.T) {
	rec := &panicRecorder{}
	ran := false

	if ok := Guard(rec, "fine", func() { ran = true }); !ok {
		t.Fatal("Guard reported failure for a clean fn")
	}
	if !ran {
		t.Fatal("Guard did not run fn")
	}
	if rec.count() != 0 {
		t.Fatalf("unexpected panic logs: %d", rec.count())
	}
}

func TestGoRecoversWithoutLogger(t *testing.T) {
	done := make(chan struct{})
	Go(nil, "", func() {
		defer close(done)
		panic("should not crash the test binary")
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("goroutine did not finish")
	}
}
