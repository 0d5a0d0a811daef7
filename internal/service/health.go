package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/DevRickLin/chat-relay/internal/metrics"
)

// Pinger is anything whose liveness can be checked
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthMonitor periodically pings the store and remembers the outcome
type HealthMonitor struct {
	store        Pinger
	pollInterval time.Duration
	log          zerolog.Logger

	healthy atomic.Bool
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewHealthMonitor creates a new health monitor
func NewHealthMonitor(store Pinger, pollInterval time.Duration, log zerolog.Logger) *HealthMonitor {
	if pollInterval <= 0 {
		pollInterval = 15 * time.Second
	}
	return &HealthMonitor{
		store:        store,
		pollInterval: pollInterval,
		log:          log,
		stopCh:       make(chan struct{}),
	}
}

// Start starts the monitor
func (m *HealthMonitor) Start() {
	if m.running {
		return
	}
	m.running = true
	m.wg.Add(1)
	go m.loop()
	m.log.Info().Dur("interval", m.pollInterval).Msg("health monitor started")
}

// Stop stops the monitor
func (m *HealthMonitor) Stop() {
	if !m.running {
		return
	}
	m.running = false
	close(m.stopCh)
	m.wg.Wait()
}

// Healthy reports the result of the latest check
func (m *HealthMonitor) Healthy() bool {
	return m.healthy.Load()
}

// Check pings the store once
func (m *HealthMonitor) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := m.store.Ping(ctx)
	ok := err == nil
	if was := m.healthy.Swap(ok); was != ok {
		if ok {
			m.log.Info().Msg("store reachable")
		} else {
			m.log.Error().Err(err).Msg("store unreachable")
		}
	}
	if ok {
		metrics.StoreUp.Set(1)
	} else {
		metrics.StoreUp.Set(0)
	}
	return ok
}

func (m *HealthMonitor) loop() {
	defer m.wg.Done()

	// Initial run
	m.Check(context.Background())

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Check(context.Background())
		case <-m.stopCh:
			return
		}
	}
}
