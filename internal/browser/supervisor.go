package browser

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Restart policy: bounded attempts with a fixed backoff between them.
const (
	restartAttempts = 3
	restartBackoff  = 2 * time.Second
)

// browserCore is the engine facade the supervisor drives. *Core implements
// it; tests substitute fakes.
type browserCore interface {
	Initialize(ctx context.Context) error
	Terminate()
	Dispatch(ctx context.Context, method string, args CallArgs) (*ActionResult, error)
}

// Supervisor is the single entry point for all page operations. It owns the
// engine lifecycle, serializes dispatch through one lock, and runs a
// background monitor that stops an idle engine and restarts a bloated one.
type Supervisor struct {
	cfg *ResolvedConfig
	log *slog.Logger

	// callMu serializes every dispatched operation; the shared context and
	// its pages are not safe for concurrent structural mutation.
	callMu sync.Mutex

	// engineMu guards core replacement. Separate from callMu so the monitor
	// can tear down and rebuild without contending with dispatch for its own
	// internal steps.
	engineMu sync.Mutex
	core     browserCore

	// lastActive is unix nanos of the last successful dispatch; atomic so
	// the monitor reads it without taking the dispatch lock.
	lastActive atomic.Int64

	stopCh chan struct{}
	doneCh chan struct{}

	// Test seams.
	newCore    func(*ResolvedConfig) browserCore
	memPercent func() (float64, error)
	backoff    time.Duration
}

// NewSupervisor creates a stopped supervisor. Call Start to begin monitoring;
// the engine itself launches lazily on the first Call.
func NewSupervisor(cfg *ResolvedConfig) *Supervisor {
	return &Supervisor{
		cfg:        cfg,
		log:        slog.Default().With("component", "supervisor"),
		newCore:    func(c *ResolvedConfig) browserCore { return NewCore(c) },
		memPercent: hostMemoryPercent,
		backoff:    restartBackoff,
	}
}

// Start launches the background monitor if it is not already running. The
// engine stays down until the first Call.
func (s *Supervisor) Start() {
	s.callMu.Lock()
	defer s.callMu.Unlock()

	if s.stopCh != nil {
		return
	}
	s.touch()
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go s.monitor(s.stopCh, s.doneCh)
}

// Stop cancels the monitor, waits for it to finish, then tears down the
// engine. Idempotent; safe to call when nothing is running.
func (s *Supervisor) Stop() {
	s.callMu.Lock()
	defer s.callMu.Unlock()

	if s.stopCh != nil {
		close(s.stopCh)
		<-s.doneCh
		s.stopCh, s.doneCh = nil, nil
	}
	s.stopEngine()
}

// Call dispatches one operation. Calls are serialized in arrival order; the
// engine is lazily (re)launched when absent. Only successful dispatches count
// as activity for the idle clock. Unknown method names fail with
// ErrUnsupportedOperation.
func (s *Supervisor) Call(ctx context.Context, method string, args CallArgs) (*ActionResult, error) {
	s.callMu.Lock()
	defer s.callMu.Unlock()

	core, err := s.ensureCore(ctx)
	if err != nil {
		return nil, err
	}
	result, err := core.Dispatch(ctx, method, args)
	if err == nil {
		s.touch()
	}
	return result, err
}

// StopEngine tears the engine down immediately, leaving the monitor running.
// The next Call relaunches lazily.
func (s *Supervisor) StopEngine() {
	s.callMu.Lock()
	defer s.callMu.Unlock()
	s.stopEngine()
}

// Running reports whether the engine is currently up.
func (s *Supervisor) Running() bool {
	s.engineMu.Lock()
	defer s.engineMu.Unlock()
	return s.core != nil
}

func (s *Supervisor) ensureCore(ctx context.Context) (browserCore, error) {
	s.engineMu.Lock()
	defer s.engineMu.Unlock()

	if s.core != nil {
		return s.core, nil
	}
	core := s.newCore(s.cfg)
	if err := core.Initialize(ctx); err != nil {
		return nil, err
	}
	s.core = core
	s.touch()
	return core, nil
}

func (s *Supervisor) stopEngine() {
	s.engineMu.Lock()
	defer s.engineMu.Unlock()

	if s.core == nil {
		return
	}
	s.core.Terminate()
	s.core = nil
	s.touch()
}

// restartEngine tears down the current engine and rebuilds it, retrying a
// bounded number of times with a fixed backoff. On exhaustion the engine is
// left unset and subsequent Calls retry lazily.
func (s *Supervisor) restartEngine(ctx context.Context) error {
	s.engineMu.Lock()
	defer s.engineMu.Unlock()

	if s.core != nil {
		s.core.Terminate()
		s.core = nil
	}

	var lastErr error
	for attempt := 1; attempt <= restartAttempts; attempt++ {
		core := s.newCore(s.cfg)
		err := core.Initialize(ctx)
		if err == nil {
			s.core = core
			s.touch()
			return nil
		}
		lastErr = err
		s.log.Warn("engine start failed", "attempt", attempt, "error", err)
		if attempt < restartAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.backoff):
			}
		}
	}

	s.log.Error("engine restart failed, giving up", "attempts", restartAttempts, "error", lastErr)
	return lastErr
}

func (s *Supervisor) touch() {
	s.lastActive.Store(time.Now().UnixNano())
}

func (s *Supervisor) monitor(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(s.cfg.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			s.checkOnce()
		}
	}
}

// checkOnce runs one monitor iteration. Failures are logged and never kill
// the loop.
func (s *Supervisor) checkOnce() {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("monitor iteration panicked", "panic", r)
		}
	}()

	if !s.Running() {
		return
	}

	idle := time.Since(time.Unix(0, s.lastActive.Load()))
	if idle > s.cfg.IdleTimeout {
		s.log.Warn("engine idle, shutting it down", "idle", idle.Round(time.Second))
		s.stopEngine()
		return
	}

	used, err := s.memPercent()
	if err != nil {
		s.log.Warn("memory probe failed", "error", err)
		return
	}
	if used > s.cfg.MaxMemoryPercent {
		s.log.Warn("host memory pressure, restarting engine",
			"usedPercent", used, "maxPercent", s.cfg.MaxMemoryPercent)
		if err := s.restartEngine(context.Background()); err != nil {
			s.log.Error("restart after memory pressure failed", "error", err)
		}
	}
}
