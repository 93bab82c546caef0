// internal/poller/scheduler.go
package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tamzrod/modbus-bridge/internal/bus"
	"github.com/tamzrod/modbus-bridge/internal/model"
	"github.com/tamzrod/modbus-bridge/internal/store"
)

// ControllerRunner is one pipeline stage executed per controller per
// cycle. Both the read and the write pipeline satisfy it.
type ControllerRunner interface {
	Run(ctx context.Context, c model.Controller) error
}

// SchedulerConfig is the loop cadence.
type SchedulerConfig struct {
	// PollInterval is the sleep between completed poll iterations.
	PollInterval time.Duration
	// RetryInterval is the sleep when there is nothing to poll or the
	// controller list cannot be loaded.
	RetryInterval time.Duration
	// CatalogMaxAge bounds the staleness of the item catalog.
	CatalogMaxAge time.Duration
}

// Scheduler owns the top-level loop: refresh configuration, dispatch
// per-host groups concurrently, join, sleep, repeat until cancelled.
type Scheduler struct {
	store   store.Store
	catalog *store.ItemCatalog
	writer  ControllerRunner
	reader  ControllerRunner
	bus     bus.Publisher
	cfg     SchedulerConfig
	log     *zap.Logger

	// last known online state per controller, for transition-only
	// health publishing. Touched from concurrent group goroutines.
	healthMu sync.Mutex
	online   map[int64]bool
}

// NewScheduler wires the loop.
func NewScheduler(s store.Store, catalog *store.ItemCatalog, writer, reader ControllerRunner, pub bus.Publisher, cfg SchedulerConfig, log *zap.Logger) *Scheduler {
	return &Scheduler{
		store:   s,
		catalog: catalog,
		writer:  writer,
		reader:  reader,
		bus:     pub,
		cfg:     cfg,
		log:     log,
		online:  make(map[int64]bool),
	}
}

// Run loops until ctx is cancelled. Cancellation is cooperative: it is
// observed between iterations and between controllers, never mid
// transport call.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			s.log.Info("scheduler stopped")
			return
		}

		controllers, err := s.store.ListEnabledControllers(ctx)
		if err != nil {
			s.log.Error("controller list refresh failed", zap.Error(err))
			if !sleep(ctx, s.cfg.RetryInterval) {
				return
			}
			continue
		}
		if len(controllers) == 0 {
			if !sleep(ctx, s.cfg.RetryInterval) {
				return
			}
			continue
		}

		if _, err := s.catalog.GetOrRefresh(ctx, s.cfg.CatalogMaxAge); err != nil {
			s.log.Warn("item catalog refresh failed", zap.Error(err))
		}

		s.dispatch(ctx, controllers)

		if !sleep(ctx, s.cfg.PollInterval) {
			return
		}
	}
}

// dispatch runs one poll iteration: controllers sharing a host are
// visited sequentially to serialize contention on one physical link;
// distinct hosts run concurrently. All groups are joined before the
// iteration ends, and a group failure never escapes the iteration.
func (s *Scheduler) dispatch(ctx context.Context, controllers []model.Controller) {
	groups := groupByHost(controllers)

	var wg sync.WaitGroup
	for host, group := range groups {
		wg.Add(1)
		go func(host string, group []model.Controller) {
			defer wg.Done()
			s.runGroup(ctx, host, group)
		}(host, group)
	}
	wg.Wait()
}

func (s *Scheduler) runGroup(ctx context.Context, host string, group []model.Controller) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("controller group panicked",
				zap.String("host", host),
				zap.Any("panic", r))
		}
	}()

	for _, c := range group {
		if ctx.Err() != nil {
			return
		}

		err := s.runController(ctx, c)
		if err != nil {
			s.log.Error("controller cycle failed",
				zap.Int64("controller_id", c.ID),
				zap.String("endpoint", c.Endpoint()),
				zap.Error(err))
		}
		s.reportHealth(ctx, c, err)
	}
}

// runController executes one controller's cycle: the write pipeline,
// then the matching read. A panic in either pipeline is contained here
// and surfaces as this controller's error for the cycle.
func (s *Scheduler) runController(ctx context.Context, c model.Controller) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if err := s.writer.Run(ctx, c); err != nil {
		return err
	}
	return s.reader.Run(ctx, c)
}

// reportHealth publishes online/offline transitions only.
func (s *Scheduler) reportHealth(ctx context.Context, c model.Controller, cycleErr error) {
	online := cycleErr == nil

	s.healthMu.Lock()
	prev, seen := s.online[c.ID]
	s.online[c.ID] = online
	s.healthMu.Unlock()

	if seen && prev == online {
		return
	}

	msg := bus.HealthMessage{
		ControllerID: c.ID,
		Name:         c.Name,
		Endpoint:     c.Endpoint(),
		Online:       online,
		Timestamp:    time.Now(),
	}
	if cycleErr != nil {
		msg.Error = cycleErr.Error()
	}

	if err := s.bus.PublishHealth(ctx, msg); err != nil {
		s.log.Warn("health publish failed",
			zap.Int64("controller_id", c.ID), zap.Error(err))
	}
}

func groupByHost(controllers []model.Controller) map[string][]model.Controller {
	groups := make(map[string][]model.Controller)
	for _, c := range controllers {
		groups[c.Host] = append(groups[c.Host], c)
	}
	return groups
}

// sleep waits for d or cancellation; false means cancelled.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
