package worker

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/kirkomrk2-web/registry-worker/internal/db"
	"github.com/kirkomrk2-web/registry-worker/internal/observability"
)

// DefaultPollInterval is the time between poll ticks.
const DefaultPollInterval = 10 * time.Second

// JobSource yields the next job to process.
type JobSource interface {
	NextPendingJob(ctx context.Context) (*db.Job, error)
}

// JobRunner processes a single job and reports its terminal status.
type JobRunner interface {
	Process(ctx context.Context, job *db.Job) (string, error)
}

// Status is a snapshot of the poller state served on /status.
type Status struct {
	InFlight     bool       `json:"in_flight"`
	LastTickAt   *time.Time `json:"last_tick_at,omitempty"`
	LastJobID    *uuid.UUID `json:"last_job_id,omitempty"`
	LastStatus   string     `json:"last_status,omitempty"`
	TicksSkipped int64      `json:"ticks_skipped"`
}

// Poller fetches the oldest pending job on a fixed schedule and hands it to
// a JobRunner. At most one tick runs at a time.
type Poller struct {
	source JobSource
	runner JobRunner
	cron   *cron.Cron
	spec   string

	running atomic.Bool
	skipped atomic.Int64
	wg      sync.WaitGroup

	mu     sync.Mutex
	status Status
}

// NewPoller creates a Poller that ticks every interval.
func NewPoller(source JobSource, runner JobRunner, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		source: source,
		runner: runner,
		cron:   cron.New(cron.WithLogger(cron.DefaultLogger)),
		spec:   fmt.Sprintf("@every %s", interval),
	}
}

// Start registers the tick with the scheduler, starts it and runs one tick
// immediately without waiting for the first interval.
func (p *Poller) Start(ctx context.Context) error {
	_, err := p.cron.AddFunc(p.spec, func() {
		p.Tick(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	p.cron.Start()
	log.Printf("[poller] Cron started, spec: %s", p.spec)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.Tick(ctx)
	}()
	return nil
}

// Stop halts the schedule and waits for a running tick to finish.
func (p *Poller) Stop() {
	<-p.cron.Stop().Done()
	p.wg.Wait()
	log.Println("[poller] Cron stopped")
}

// Tick processes at most one pending job. It returns false, doing nothing,
// when a previous tick is still in flight. Errors and panics are logged.
func (p *Poller) Tick(ctx context.Context) (ran bool) {
	if !p.running.CompareAndSwap(false, true) {
		p.skipped.Add(1)
		observability.TicksSkipped.Inc()
		log.Println("[poller] Previous run still in progress, skipping this tick")
		return false
	}
	ran = true
	defer p.running.Store(false)

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[poller] Unexpected panic during tick: %v\n%s", r, debug.Stack())
		}
	}()

	now := time.Now()
	p.mu.Lock()
	p.status.LastTickAt = &now
	p.mu.Unlock()

	if ctx.Err() != nil {
		return true
	}

	job, err := p.source.NextPendingJob(ctx)
	if err != nil {
		log.Printf("[poller] Error fetching pending job: %v", err)
		return true
	}
	if job == nil {
		log.Println("[poller] No pending jobs")
		return true
	}

	log.Printf("[poller] Processing job %s (%s)", job.ID, job.FullName)
	status, err := p.runner.Process(ctx, job)
	if err != nil {
		log.Printf("[poller] Error processing job %s: %v", job.ID, err)
	}

	id := job.ID
	p.mu.Lock()
	p.status.LastJobID = &id
	p.status.LastStatus = status
	p.mu.Unlock()
	return true
}

// Status returns a snapshot of the poller state.
func (p *Poller) Status() Status {
	p.mu.Lock()
	s := p.status
	p.mu.Unlock()

	s.InFlight = p.running.Load()
	s.TicksSkipped = p.skipped.Load()
	return s
}
