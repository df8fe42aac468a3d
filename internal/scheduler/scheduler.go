package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"delta-trading-bot/config"
	"delta-trading-bot/internal/bot"
	"delta-trading-bot/internal/logging"
)

// ConfigSource pages through the enabled strategy configs
type ConfigSource interface {
	GetEnabledStrategyConfigs(ctx context.Context, limit, offset int) ([]*config.StrategyConfig, error)
}

// CycleRunner runs one trading cycle for a strategy config
type CycleRunner interface {
	RunTradingCycle(ctx context.Context, cfg *config.StrategyConfig) error
}

// Scheduler triggers a trading cycle for every enabled strategy config
// on a fixed interval. Cycles run on a bounded worker pool; per-key
// overlap protection is the cycle lock's job, not the scheduler's.
type Scheduler struct {
	runner   CycleRunner
	source   ConfigSource
	cfg      config.SchedulerConfig
	log      *logging.Logger
	jobs     chan *config.StrategyConfig
	stopChan chan struct{}
	wg       sync.WaitGroup
	round    atomic.Int64
}

// New creates a scheduler
func New(runner CycleRunner, source ConfigSource, cfg config.SchedulerConfig) *Scheduler {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1000
	}
	return &Scheduler{
		runner:   runner,
		source:   source,
		cfg:      cfg,
		log:      logging.WithComponent("scheduler"),
		jobs:     make(chan *config.StrategyConfig, queueSize),
		stopChan: make(chan struct{}),
	}
}

// Start launches the worker pool and the trigger loop
func (s *Scheduler) Start() {
	if !s.cfg.Enabled {
		s.log.Info("scheduler is disabled")
		return
	}

	workers := s.cfg.WorkerCount
	if workers <= 0 {
		workers = 5
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go s.runTriggerLoop()

	s.log.Info("scheduler started", "workers", workers, "interval", s.cfg.Interval.String())
}

// Stop halts the trigger loop and drains the workers
func (s *Scheduler) Stop() {
	close(s.stopChan)
	s.wg.Wait()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) runTriggerLoop() {
	defer s.wg.Done()
	defer close(s.jobs)

	interval := s.cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Fire the first round immediately
	s.enqueueRound()

	for {
		select {
		case <-ticker.C:
			s.enqueueRound()
		case <-s.stopChan:
			return
		}
	}
}

// enqueueRound pages through all enabled configs and queues one job per
// config. A full queue drops the rest of the round; the next tick
// retries everything from persisted state.
func (s *Scheduler) enqueueRound() {
	round := s.round.Add(1)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pageSize := s.cfg.ConfigLimit
	if pageSize <= 0 {
		pageSize = 500
	}

	total := 0
	for offset := 0; ; offset += pageSize {
		configs, err := s.source.GetEnabledStrategyConfigs(ctx, pageSize, offset)
		if err != nil {
			s.log.Error("failed to fetch strategy configs", "round", round, "error", err)
			return
		}
		if len(configs) == 0 {
			break
		}

		for _, c := range configs {
			select {
			case s.jobs <- c:
				total++
			default:
				s.log.Warn("job queue full, dropping remainder of round", "round", round, "queued", total)
				return
			}
		}

		if len(configs) < pageSize {
			break
		}
	}

	logging.SchedulerContext(round, total).Info("round enqueued")
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for cfg := range s.jobs {
		s.runJob(id, cfg)
	}
}

// runJob executes one cycle. A panicking cycle must not take the worker
// (and with it every other config's cycles) down with it.
func (s *Scheduler) runJob(id int, cfg *config.StrategyConfig) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("trading cycle panicked",
				"worker", id,
				"config_id", cfg.ID,
				"symbol", cfg.Symbol,
				"panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	err := s.runner.RunTradingCycle(ctx, cfg)
	if err != nil && !errors.Is(err, bot.ErrLockBusy) && !errors.Is(err, bot.ErrDataUnavailable) {
		s.log.Error("trading cycle failed",
			"worker", id,
			"config_id", cfg.ID,
			"symbol", cfg.Symbol,
			"error", err)
	}
}
