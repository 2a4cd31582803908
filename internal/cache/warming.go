package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-chat-assistant/internal/models"
	"github.com/kjstillabower/weather-chat-assistant/internal/observability"
)

// WeatherFetcher is satisfied by the gateway. A successful Fetch populates the cache.
type WeatherFetcher interface {
	Fetch(ctx context.Context, query models.CityQuery) (models.WeatherRecord, error)
}

// Warmer prefetches weather for a fixed list of cities, on demand or on a cron schedule.
type Warmer struct {
	fetcher WeatherFetcher
	logger  *zap.Logger
	timeout time.Duration

	mu    sync.Mutex
	sched *cron.Cron
}

// NewWarmer creates a Warmer. Each scheduled run is bounded by timeout (default 30s).
func NewWarmer(fetcher WeatherFetcher, logger *zap.Logger, timeout time.Duration) *Warmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Warmer{fetcher: fetcher, logger: logger, timeout: timeout}
}

// Warm fetches every city concurrently. Returns the joined per-city errors, if any.
func (w *Warmer) Warm(ctx context.Context, cities []string) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	w.logger.Info("warming cache", zap.Int("cities", len(cities)))

	var wg sync.WaitGroup
	errCh := make(chan error, len(cities))
	for _, city := range cities {
		wg.Add(1)
		go func(city string) {
			defer wg.Done()
			if _, err := w.fetcher.Fetch(ctx, models.ByName(city)); err != nil {
				errCh <- fmt.Errorf("warm %s: %w", city, err)
			}
		}(city)
	}
	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	w.logger.Info("cache warming complete",
		zap.Int("cities", len(cities)),
		zap.Int("errors", len(errs)),
		zap.Float64("duration_seconds", duration),
	)
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("cache warming: %w", errors.Join(errs...))
	}
	return nil
}

// Start runs an initial Warm, then schedules Warm on the cron spec
// (standard five-field or "@every 10m"). Stop ends the schedule.
func (w *Warmer) Start(ctx context.Context, spec string, cities []string) error {
	sched := cron.New()
	_, err := sched.AddFunc(spec, func() {
		runCtx, cancel := context.WithTimeout(ctx, w.timeout)
		defer cancel()
		if err := w.Warm(runCtx, cities); err != nil {
			w.logger.Warn("scheduled cache warm failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid warm schedule %q: %w", spec, err)
	}

	initCtx, cancel := context.WithTimeout(ctx, w.timeout)
	if err := w.Warm(initCtx, cities); err != nil {
		w.logger.Warn("initial cache warm failed", zap.Error(err))
	}
	cancel()

	w.mu.Lock()
	w.sched = sched
	w.mu.Unlock()
	sched.Start()
	return nil
}

// Stop halts the schedule and waits for a running warm to finish or ctx to end.
func (w *Warmer) Stop(ctx context.Context) {
	w.mu.Lock()
	sched := w.sched
	w.sched = nil
	w.mu.Unlock()
	if sched == nil {
		return
	}
	select {
	case <-sched.Stop().Done():
	case <-ctx.Done():
	}
}
