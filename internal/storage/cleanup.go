package storage

import (
	"context"
	"time"

	"github.com/dgellow/pkce-front/internal/log"
)

// Sweeper removes stale entries and reports how many it removed
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// SweepFunc adapts a function to Sweeper
type SweepFunc func(ctx context.Context) (int, error)

// Sweep calls f(ctx)
func (f SweepFunc) Sweep(ctx context.Context) (int, error) {
	return f(ctx)
}

// ExpiredScopes returns a Sweeper that drops scopes idle for longer than ttl
func ExpiredScopes(store Store, ttl time.Duration) Sweeper {
	return SweepFunc(func(ctx context.Context) (int, error) {
		return store.CleanupExpired(ctx, ttl)
	})
}

// CleanupManager runs a Sweeper periodically
type CleanupManager struct {
	name     string
	sweeper  Sweeper
	interval time.Duration
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(name string, sweeper Sweeper, interval time.Duration) *CleanupManager {
	return &CleanupManager{
		name:     name,
		sweeper:  sweeper,
		interval: interval,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start begins the cleanup loop in a goroutine
func (cm *CleanupManager) Start(ctx context.Context) {
	log.LogInfoWithFields("cleanup", "Starting cleanup manager", map[string]any{
		"name":     cm.name,
		"interval": cm.interval.String(),
	})

	go cm.run(ctx)
}

// Stop gracefully stops the cleanup loop
func (cm *CleanupManager) Stop() {
	close(cm.stopChan)
	<-cm.doneChan // Wait for cleanup loop to finish
	log.LogInfoWithFields("cleanup", "Cleanup manager stopped", map[string]any{
		"name": cm.name,
	})
}

// run is the main cleanup loop
func (cm *CleanupManager) run(ctx context.Context) {
	defer close(cm.doneChan)

	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run cleanup immediately on start
	cm.cleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.cleanup(ctx)
		case <-cm.stopChan:
			// Final cleanup on shutdown
			cm.cleanup(ctx)
			return
		case <-ctx.Done():
			return
		}
	}
}

// cleanup performs the actual cleanup operation
func (cm *CleanupManager) cleanup(ctx context.Context) {
	count, err := cm.sweeper.Sweep(ctx)
	if err != nil {
		log.LogErrorWithFields("cleanup", "Cleanup failed", map[string]any{
			"name":  cm.name,
			"error": err.Error(),
		})
		return
	}

	if count > 0 {
		log.LogInfoWithFields("cleanup", "Cleaned up stale entries", map[string]any{
			"name":  cm.name,
			"count": count,
		})
	}
}
