package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"delta-trading-bot/config"
)

// recordingRunner records cycle invocations and can panic on a chosen
// config id.
type recordingRunner struct {
	mu      sync.Mutex
	calls   []string
	panicOn string
}

func (r *recordingRunner) RunTradingCycle(ctx context.Context, cfg *config.StrategyConfig) error {
	r.mu.Lock()
	r.calls = append(r.calls, cfg.ID)
	r.mu.Unlock()
	if cfg.ID == r.panicOn {
		panic("malformed candle data")
	}
	return nil
}

func (r *recordingRunner) callIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	copy(out, r.calls)
	return out
}

// onceSource serves its configs on the first page request only.
type onceSource struct {
	mu      sync.Mutex
	served  bool
	configs []*config.StrategyConfig
}

func (s *onceSource) GetEnabledStrategyConfigs(ctx context.Context, limit, offset int) ([]*config.StrategyConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.served {
		return nil, nil
	}
	s.served = true
	return s.configs, nil
}

func waitForCalls(t *testing.T, r *recordingRunner, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(r.callIDs()) >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Expected %d cycle calls, got %d", want, len(r.callIDs()))
}

// TestWorkerSurvivesPanickingCycle verifies a panic inside one config's
// cycle is contained and the worker keeps processing the rest of the
// round.
func TestWorkerSurvivesPanickingCycle(t *testing.T) {
	runner := &recordingRunner{panicOn: "cfg-boom"}
	source := &onceSource{configs: []*config.StrategyConfig{
		{ID: "cfg-boom", Symbol: "BTCUSD"},
		{ID: "cfg-ok", Symbol: "ETHUSD"},
	}}

	sched := New(runner, source, config.SchedulerConfig{
		Enabled:     true,
		Interval:    time.Hour,
		WorkerCount: 1,
		QueueSize:   10,
	})
	sched.Start()
	defer sched.Stop()

	waitForCalls(t, runner, 2)

	calls := runner.callIDs()
	if calls[0] != "cfg-boom" || calls[1] != "cfg-ok" {
		t.Errorf("Expected [cfg-boom cfg-ok], got %v", calls)
	}
}

// TestSchedulerDisabled verifies a disabled scheduler never touches the
// runner.
func TestSchedulerDisabled(t *testing.T) {
	runner := &recordingRunner{}
	source := &onceSource{configs: []*config.StrategyConfig{{ID: "cfg-1"}}}

	sched := New(runner, source, config.SchedulerConfig{Enabled: false})
	sched.Start()

	time.Sleep(20 * time.Millisecond)
	if len(runner.callIDs()) != 0 {
		t.Errorf("Expected no cycle calls, got %v", runner.callIDs())
	}
}
