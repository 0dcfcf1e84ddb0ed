// Package supervisor replaces a long-running crawler process with a fresh
// copy of itself, either on a schedule (to shed accumulated state) or when
// the crawl reports a fatal condition. The replacement resumes from the
// page the old process was on.
package supervisor

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/internetarchive/Talos/internal/pkg/log"
)

// Trigger decides whether the process should be replaced.
type Trigger interface {
	Name() string
	ShouldRestart() bool
}

// AgeTrigger fires once the process has been alive longer than MaxAge.
// A MaxAge of 0 never fires.
type AgeTrigger struct {
	Started time.Time
	MaxAge  time.Duration
}

func (t *AgeTrigger) Name() string { return "age" }

func (t *AgeTrigger) ShouldRestart() bool {
	return t.MaxAge > 0 && time.Since(t.Started) >= t.MaxAge
}

// FatalErrTrigger fires once Fire has been called with the fatal error
// that ended the crawl loop.
type FatalErrTrigger struct {
	fired atomic.Bool
	err   atomic.Value
}

func (t *FatalErrTrigger) Name() string { return "fatal" }

func (t *FatalErrTrigger) Fire(err error) {
	if err != nil {
		t.err.Store(err)
	}
	t.fired.Store(true)
}

func (t *FatalErrTrigger) ShouldRestart() bool {
	return t.fired.Load()
}

func (t *FatalErrTrigger) Err() error {
	if err, ok := t.err.Load().(error); ok {
		return err
	}
	return nil
}

// Action performs the actual process replacement. It only returns on
// failure.
type Action interface {
	Restart(resumePage int) error
}

// Supervisor evaluates triggers on an interval and runs the action at most
// once per process lifetime.
type Supervisor struct {
	triggers []Trigger
	action   Action
	page     func() int
	interval time.Duration

	once   sync.Once
	stopCh chan struct{}
	wg     sync.WaitGroup

	logger *log.FieldedLogger
}

// New builds a supervisor. page reports the crawl position to resume from.
func New(action Action, page func() int, interval time.Duration, triggers ...Trigger) *Supervisor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Supervisor{
		triggers: triggers,
		action:   action,
		page:     page,
		interval: interval,
		stopCh:   make(chan struct{}),
		logger: log.NewFieldedLogger(&log.Fields{
			"component": "supervisor",
		}),
	}
}

// Start launches the evaluation loop.
func (s *Supervisor) Start() {
	s.wg.Add(1)
	go s.loop()
}

// Stop ends the evaluation loop without restarting.
func (s *Supervisor) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// Evaluate checks the triggers once and restarts when one fires. It is
// safe to call concurrently with the loop; the action runs at most once.
func (s *Supervisor) Evaluate() {
	for _, trigger := range s.triggers {
		if trigger.ShouldRestart() {
			s.restart(trigger)
			return
		}
	}
}

func (s *Supervisor) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Evaluate()
		}
	}
}

func (s *Supervisor) restart(trigger Trigger) {
	s.once.Do(func() {
		resumePage := s.page()
		s.logger.Info("restart trigger fired, replacing process", "trigger", trigger.Name(), "resume_page", resumePage)

		if err := s.action.Restart(resumePage); err != nil {
			s.logger.Error("process replacement failed", "err", err.Error())
		}
	})
}
