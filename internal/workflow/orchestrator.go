// -----------------------------------------------------------------------
// Orchestrator - Owns the supervisor loop lifecycle
// -----------------------------------------------------------------------

package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/laboro/internal/common"
)

// Orchestrator runs the supervisor sweep on a fixed interval. Start and
// Stop are idempotent; Stop waits for an in-flight sweep to finish.
type Orchestrator struct {
	engine     *Engine
	supervisor *Supervisor
	interval   time.Duration
	logger     arbor.ILogger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewOrchestrator(engine *Engine, logger arbor.ILogger) *Orchestrator {
	return &Orchestrator{
		engine:     engine,
		supervisor: NewSupervisor(engine, logger),
		interval:   engine.opts.SweepInterval,
		logger:     logger,
	}
}

// Supervisor exposes the sweep for tests and manual triggers.
func (o *Orchestrator) Supervisor() *Supervisor { return o.supervisor }

// Start launches the background sweep loop.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running {
		o.logger.Debug().Msg("Orchestrator already running")
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.done = make(chan struct{})
	o.running = true

	done := o.done
	common.SafeGo(o.logger, "workflow-supervisor", func() {
		defer close(done)
		o.loop(loopCtx)
	})

	o.logger.Info().
		Dur("interval", o.interval).
		Msg("Workflow orchestrator started")
}

func (o *Orchestrator) loop(ctx context.Context) {
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.supervisor.Sweep(ctx)
		}
	}
}

// Stop halts the sweep loop and waits for it to exit.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.running {
		return
	}

	o.cancel()
	<-o.done
	o.running = false

	o.logger.Info().Msg("Workflow orchestrator stopped")
}

// IsRunning reports whether the sweep loop is active.
func (o *Orchestrator) IsRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// GetSystemStatus reports orchestrator and workflow health for the
// status endpoint.
func (o *Orchestrator) GetSystemStatus(ctx context.Context) (map[string]interface{}, error) {
	stats, err := o.engine.GetWorkflowStats(ctx)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"orchestrator_running": o.IsRunning(),
		"pending_timers":       o.engine.timers.Len(),
		"workflow":             stats,
		"timestamp":            time.Now().UTC().Format(time.RFC3339),
	}, nil
}
