package worker

import (
	"context"
	"log"
	"sync"
	"time"

	"shejire/utils"

	"gorm.io/gorm"
)

// HealthWorker periodically polls every active deployed project. A run that
// overlaps the previous one is skipped rather than queued.
type HealthWorker struct {
	DB      *gorm.DB
	Checker *utils.HealthChecker
	Logger  *log.Logger

	Interval time.Duration

	mu sync.Mutex
}

func NewHealthWorker(db *gorm.DB, checker *utils.HealthChecker, logger *log.Logger) *HealthWorker {
	return &HealthWorker{
		DB:       db,
		Checker:  checker,
		Logger:   logger,
		Interval: 5 * time.Minute,
	}
}

func (hw *HealthWorker) Start(ctx context.Context) {
	// Initial delay to let the server start up
	time.Sleep(10 * time.Second)

	hw.Logger.Println("Health worker started")

	hw.runChecks()

	ticker := time.NewTicker(hw.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			hw.Logger.Println("Health worker shutting down...")
			return
		case <-ticker.C:
			hw.runChecks()
		}
	}
}

func (hw *HealthWorker) runChecks() {
	if !hw.mu.TryLock() {
		hw.Logger.Println("Previous health check run still in progress, skipping")
		return
	}
	defer hw.mu.Unlock()

	start := time.Now()
	results := hw.Checker.CheckAllProjects()
	hw.Logger.Printf("Health check run finished: %d projects in %s", len(results), time.Since(start))
}
