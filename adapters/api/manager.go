package api

import (
	"context"
	"sync"
	"time"

	"goboot/app"
	"goboot/domain/boot"
	"goboot/domain/core"
	"goboot/internal"
	"goboot/internal/errors"
)

// activeRun tracks one in-flight run.
type activeRun struct {
	cancel  context.CancelFunc
	tracker *boot.Tracker
}

// RunManager executes bootstrap runs in the background, fans progress
// out to the SSE hub, and owns cancellation for in-flight runs.
type RunManager struct {
	service *app.BootstrapService
	hub     *SSEHub
	logger  *internal.Logger

	mu     sync.RWMutex
	active map[core.RunID]*activeRun
}

// NewRunManager creates a manager over the given service and hub.
func NewRunManager(service *app.BootstrapService, hub *SSEHub) *RunManager {
	return &RunManager{
		service: service,
		hub:     hub,
		logger:  internal.DefaultLogger,
		active:  make(map[core.RunID]*activeRun),
	}
}

// Submit launches a run in the background and returns its pre-assigned
// ID immediately. The run's lifetime is detached from the submitting
// request; only Cancel or completion ends it.
func (m *RunManager) Submit(req app.RunRequest) core.RunID {
	runID := core.NewRunID()
	runCtx, cancel := context.WithCancel(context.Background())

	tracker := boot.NewTracker(req.Iterations)
	req.RunID = runID
	req.Tracker = tracker
	req.OnProgress = m.progressFunc(runID)

	m.mu.Lock()
	m.active[runID] = &activeRun{cancel: cancel, tracker: tracker}
	m.mu.Unlock()

	go func() {
		defer func() {
			cancel()
			m.mu.Lock()
			delete(m.active, runID)
			m.mu.Unlock()
		}()

		result, err := m.service.Run(runCtx, req)
		if err != nil {
			m.logger.Error("Background run %s failed: %v", runID, err)
			m.hub.Broadcast(RunEvent{
				RunID:     runID.String(),
				EventType: EventFailed,
				Data: map[string]interface{}{
					"error": err.Error(),
					"code":  errors.FromDomain(err).Code,
				},
				Timestamp: time.Now(),
			})
			return
		}

		m.hub.Broadcast(RunEvent{
			RunID:     runID.String(),
			EventType: EventCompleted,
			Completed: result.Completed,
			Total:     result.Requested,
			Data: map[string]interface{}{
				"partial": result.Partial,
				"usable":  result.Usable,
			},
			Timestamp: time.Now(),
		})
	}()

	return runID
}

// progressFunc throttles per-replicate progress to roughly one event
// per percent, always including the final replicate.
func (m *RunManager) progressFunc(runID core.RunID) boot.ProgressFunc {
	return func(completed, total int) {
		step := total / 100
		if step < 1 {
			step = 1
		}
		if completed%step != 0 && completed != total {
			return
		}
		m.hub.Broadcast(RunEvent{
			RunID:     runID.String(),
			EventType: EventProgress,
			Completed: completed,
			Total:     total,
			Timestamp: time.Now(),
		})
	}
}

// Cancel signals an in-flight run to stop. The run persists whatever
// replicates finished before the signal landed. Returns false when the
// run is not currently executing.
func (m *RunManager) Cancel(runID core.RunID) bool {
	m.mu.RLock()
	run, ok := m.active[runID]
	m.mu.RUnlock()
	if ok {
		run.cancel()
	}
	return ok
}

// Progress reports (completed, total) for an in-flight run. The second
// return is false once the run has left the active set.
func (m *RunManager) Progress(runID core.RunID) (int, int, bool) {
	m.mu.RLock()
	run, ok := m.active[runID]
	m.mu.RUnlock()
	if !ok {
		return 0, 0, false
	}
	completed, total := run.tracker.Snapshot()
	return completed, total, true
}

// ActiveCount reports how many runs are executing right now.
func (m *RunManager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}
