package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when the sync API rate limit is exceeded.
var ErrRateLimited = errors.New("rate limit exceeded")

// SyncCooldown is the minimum spacing of on-demand syncs.
const SyncCooldown = 30 * time.Second

// SyncResult summarizes one pass over the storage bucket.
type SyncResult struct {
	FilesAdded      int       `json:"files_added"`
	FilesRemoved    int       `json:"files_removed"`
	FilesTotal      int       `json:"files_total"`
	RegionsAdded    int       `json:"regions_added"`
	RegionsRemoved  int       `json:"regions_removed"`
	RegionsTotal    int       `json:"regions_total"`
	SyncedAt        time.Time `json:"synced_at"`
	NextScheduledAt time.Time `json:"next_scheduled_at,omitempty"`
}

// SyncService keeps storage-backed regions current. Scheduled passes wait
// until the initial session restore has run.
type SyncService struct {
	registry *RegionRegistry
	interval time.Duration
	limiter  *rate.Limiter
	bus      *EventBus
	logger   *slog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup

	opMu sync.Mutex // one pass at a time

	mu       sync.RWMutex
	nextSync time.Time
	last     SyncResult
}

// NewSyncService creates a sync service over a registry. bus may be nil.
func NewSyncService(registry *RegionRegistry, interval time.Duration, logger *slog.Logger) *SyncService {
	return &SyncService{
		registry: registry,
		interval: interval,
		limiter:  rate.NewLimiter(rate.Every(SyncCooldown), 1),
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// WithBus publishes a regions event after every pass that changed something.
func (s *SyncService) WithBus(bus *EventBus) *SyncService {
	s.bus = bus
	return s
}

// Start begins the periodic scheduler.
func (s *SyncService) Start(ctx context.Context) {
	s.logger.Info("starting region sync service", "interval", s.interval)
	s.wg.Add(1)
	go s.run(ctx)
}

func (s *SyncService) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.schedule()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("region sync service stopped: context canceled")
			return
		case <-s.stopCh:
			s.logger.Info("region sync service stopped")
			return
		case <-ticker.C:
			if !s.registry.Restored() {
				s.logger.Debug("scheduled sync skipped: restore pending")
				s.schedule()
				continue
			}
			if _, err := s.syncOnce(ctx); err != nil {
				s.logger.Error("scheduled region sync failed", "error", err)
			}
			s.schedule()
		}
	}
}

// Stop ends the scheduler and waits for a running pass.
func (s *SyncService) Stop() {
	s.logger.Info("stopping region sync service")
	close(s.stopCh)
	s.wg.Wait()
}

// TriggerSync runs a pass on demand. Calls within SyncCooldown of the
// previous one fail with ErrRateLimited.
func (s *SyncService) TriggerSync(ctx context.Context) (SyncResult, error) {
	if !s.limiter.Allow() {
		return SyncResult{}, ErrRateLimited
	}
	return s.syncOnce(ctx)
}

// Last returns the result of the most recent successful pass.
func (s *SyncService) Last() (SyncResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, !s.last.SyncedAt.IsZero()
}

func (s *SyncService) syncOnce(ctx context.Context) (SyncResult, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	stats, err := s.registry.Sync(ctx)
	if err != nil {
		return SyncResult{}, err
	}

	s.mu.Lock()
	s.last = SyncResult{
		FilesAdded:      stats.Added,
		FilesRemoved:    stats.Removed,
		FilesTotal:      s.registry.FileCount(),
		RegionsAdded:    stats.RegionsAdded,
		RegionsRemoved:  stats.RegionsRemoved,
		RegionsTotal:    s.registry.RegionCount(),
		SyncedAt:        time.Now(),
		NextScheduledAt: s.nextSync,
	}
	result := s.last
	s.mu.Unlock()

	if stats.RegionsAdded > 0 || stats.RegionsRemoved > 0 {
		s.bus.Publish(Event{Resource: ResourceRegions, Action: "synced"})
	}
	return result, nil
}

func (s *SyncService) schedule() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSync = time.Now().Add(s.interval)
}

// Interval returns the sync interval.
func (s *SyncService) Interval() time.Duration {
	return s.interval
}
