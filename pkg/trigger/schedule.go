package trigger

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rzbill/slipway/pkg/log"
	"github.com/rzbill/slipway/pkg/types"
)

// cronParser accepts standard 5-field cron expressions plus descriptors
// like @daily.
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseCron validates a cron expression without scheduling anything.
func ParseCron(expr string) (cron.Schedule, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return sched, nil
}

// NextRuns returns the next n fire times of a schedule after from.
func NextRuns(s types.ScheduleSpec, from time.Time, n int) ([]time.Time, error) {
	sched, err := ParseCron(s.Cron)
	if err != nil {
		return nil, err
	}

	times := make([]time.Time, 0, n)
	next := from
	for i := 0; i < n; i++ {
		next = sched.Next(next)
		if next.IsZero() {
			break
		}
		times = append(times, next)
	}
	return times, nil
}

// ScheduledEntry tracks one registered schedule for status display.
type ScheduledEntry struct {
	ID       cron.EntryID
	Pipeline string
	Name     string
	Cron     string
	AddedAt  time.Time
}

// Scheduler fires pipeline runs on cron schedules.
type Scheduler struct {
	cron    *cron.Cron
	logger  log.Logger
	mu      sync.Mutex
	entries map[cron.EntryID]*ScheduledEntry
	started bool
}

// NewScheduler creates a scheduler with a 5-field cron parser.
func NewScheduler(logger log.Logger) *Scheduler {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}

	c := cron.New(cron.WithParser(cronParser))

	return &Scheduler{
		cron:    c,
		logger:  logger.WithComponent("scheduler"),
		entries: make(map[cron.EntryID]*ScheduledEntry),
	}
}

// Add registers a schedule and the function to run when it fires.
func (s *Scheduler) Add(pipeline string, spec types.ScheduleSpec, fn func()) (cron.EntryID, error) {
	if fn == nil {
		return 0, fmt.Errorf("schedule %q has no function to run", spec.DisplayName)
	}

	name := spec.DisplayName
	logger := s.logger.
		WithField("pipeline", pipeline).
		WithField("schedule", name)

	id, err := s.cron.AddFunc(spec.Cron, func() {
		logger.Info("Schedule fired")
		start := time.Now()
		fn()
		logger.Info("Schedule handler finished", log.Duration("elapsed", time.Since(start)))
	})
	if err != nil {
		return 0, fmt.Errorf("failed to add schedule %q: %w", name, err)
	}

	s.mu.Lock()
	s.entries[id] = &ScheduledEntry{
		ID:       id,
		Pipeline: pipeline,
		Name:     name,
		Cron:     spec.Cron,
		AddedAt:  time.Now(),
	}
	s.mu.Unlock()

	logger.Info("Schedule registered", log.Str("cron", spec.Cron))
	return id, nil
}

// Remove drops a registered schedule.
func (s *Scheduler) Remove(id cron.EntryID) {
	s.cron.Remove(id)

	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
}

// Entries returns the registered schedules with their next fire time.
func (s *Scheduler) Entries() []ScheduledEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ScheduledEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, *e)
	}
	return out
}

// Next returns the next fire time for a registered schedule.
func (s *Scheduler) Next(id cron.EntryID) time.Time {
	return s.cron.Entry(id).Next
}

// Start begins firing schedules in a background goroutine.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("Scheduler started")
}

// Stop halts the scheduler and waits for running handlers to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Scheduler stopped")
}
