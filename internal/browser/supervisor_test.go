package browser

import (
	"context"
	"errors"
	"testing"
	"time"
)

// newTestSupervisor wires a supervisor to fakeCore instances. coreErr, when
// non-nil, makes every core fail Initialize.
func newTestSupervisor(t *testing.T, coreErr error) (*Supervisor, *[]*fakeCore) {
	t.Helper()
	s := NewSupervisor(testConfig(t.TempDir()))
	cores := &[]*fakeCore{}
	s.newCore = func(*ResolvedConfig) browserCore {
		c := &fakeCore{initErr: coreErr}
		*cores = append(*cores, c)
		return c
	}
	s.memPercent = func() (float64, error) { return 10, nil }
	s.backoff = 0
	return s, cores
}

func TestCallLaunchesEngineLazily(t *testing.T) {
	s, cores := newTestSupervisor(t, nil)
	defer s.Stop()

	if s.Running() {
		t.Fatal("engine running before first call")
	}

	result, err := s.Call(context.Background(), "getAllTabsTitles", CallArgs{})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if !result.Success {
		t.Fatalf("call failed: %s", result.Message)
	}
	if !s.Running() || len(*cores) != 1 {
		t.Fatalf("running=%v cores=%d after first call", s.Running(), len(*cores))
	}

	// Second call reuses the same core.
	if _, err := s.Call(context.Background(), "goBack", CallArgs{}); err != nil {
		t.Fatalf("call: %v", err)
	}
	if len(*cores) != 1 {
		t.Fatalf("cores=%d, want the first one reused", len(*cores))
	}
	if got := (*cores)[0].dispatched; len(got) != 2 {
		t.Fatalf("dispatched=%v", got)
	}
}

func TestCallSurfacesLaunchFailure(t *testing.T) {
	s, _ := newTestSupervisor(t, errors.New("no browser binary"))
	defer s.Stop()

	if _, err := s.Call(context.Background(), "search", CallArgs{URL: "https://a.test/"}); err == nil {
		t.Fatal("want launch error")
	}
	if s.Running() {
		t.Fatal("engine marked running after failed launch")
	}
}

func TestStopTerminatesEngineAndIsIdempotent(t *testing.T) {
	s, cores := newTestSupervisor(t, nil)
	s.Start()

	if _, err := s.Call(context.Background(), "goBack", CallArgs{}); err != nil {
		t.Fatalf("call: %v", err)
	}

	s.Stop()
	if s.Running() {
		t.Fatal("engine running after Stop")
	}
	if (*cores)[0].terminated != 1 {
		t.Fatalf("terminated=%d, want 1", (*cores)[0].terminated)
	}

	s.Stop() // second stop is a no-op
	if (*cores)[0].terminated != 1 {
		t.Fatal("second Stop terminated again")
	}
}

func TestStopEngineTearsDownAndRelaunchesLazily(t *testing.T) {
	s, cores := newTestSupervisor(t, nil)
	defer s.Stop()

	if _, err := s.Call(context.Background(), "goBack", CallArgs{}); err != nil {
		t.Fatalf("call: %v", err)
	}

	s.StopEngine()
	if s.Running() {
		t.Fatal("engine running after StopEngine")
	}
	if (*cores)[0].terminated != 1 {
		t.Fatalf("terminated=%d, want 1", (*cores)[0].terminated)
	}

	if _, err := s.Call(context.Background(), "goBack", CallArgs{}); err != nil {
		t.Fatalf("call after StopEngine: %v", err)
	}
	if len(*cores) != 2 {
		t.Fatalf("cores=%d, want relaunch", len(*cores))
	}
}

func TestFailedDispatchDoesNotRefreshIdleClock(t *testing.T) {
	s, _ := newTestSupervisor(t, nil)
	defer s.Stop()

	if _, err := s.Call(context.Background(), "goBack", CallArgs{}); err != nil {
		t.Fatalf("call: %v", err)
	}

	past := time.Now().Add(-time.Hour).UnixNano()
	s.lastActive.Store(past)

	if _, err := s.Call(context.Background(), "boom", CallArgs{}); err == nil {
		t.Fatal("want dispatch error")
	}
	if s.lastActive.Load() != past {
		t.Fatal("failed dispatch refreshed the idle clock")
	}

	if _, err := s.Call(context.Background(), "goBack", CallArgs{}); err != nil {
		t.Fatalf("call: %v", err)
	}
	if s.lastActive.Load() == past {
		t.Fatal("successful dispatch did not refresh the idle clock")
	}
}

func TestIdleEngineIsStopped(t *testing.T) {
	s, cores := newTestSupervisor(t, nil)
	defer s.Stop()

	if _, err := s.Call(context.Background(), "goBack", CallArgs{}); err != nil {
		t.Fatalf("call: %v", err)
	}

	// Age the activity stamp past the idle limit and run one monitor pass.
	s.lastActive.Store(time.Now().Add(-s.cfg.IdleTimeout - time.Second).UnixNano())
	s.checkOnce()

	if s.Running() {
		t.Fatal("idle engine still running")
	}
	if (*cores)[0].terminated != 1 {
		t.Fatalf("terminated=%d, want 1", (*cores)[0].terminated)
	}

	// The next call relaunches.
	if _, err := s.Call(context.Background(), "goBack", CallArgs{}); err != nil {
		t.Fatalf("call after idle stop: %v", err)
	}
	if len(*cores) != 2 {
		t.Fatalf("cores=%d, want relaunch", len(*cores))
	}
}

func TestMemoryPressureRestartsEngine(t *testing.T) {
	s, cores := newTestSupervisor(t, nil)
	defer s.Stop()

	if _, err := s.Call(context.Background(), "goBack", CallArgs{}); err != nil {
		t.Fatalf("call: %v", err)
	}

	s.memPercent = func() (float64, error) { return 95, nil }
	s.checkOnce()

	if !s.Running() {
		t.Fatal("engine not running after restart")
	}
	if len(*cores) != 2 {
		t.Fatalf("cores=%d, want a fresh one after restart", len(*cores))
	}
	if (*cores)[0].terminated != 1 {
		t.Fatal("old core was not terminated")
	}
}

func TestMonitorSkipsStoppedEngine(t *testing.T) {
	s, cores := newTestSupervisor(t, nil)
	defer s.Stop()

	s.memPercent = func() (float64, error) { return 95, nil }
	s.checkOnce()

	if len(*cores) != 0 {
		t.Fatalf("cores=%d, monitor should not launch", len(*cores))
	}
}

func TestRestartGivesUpAfterBoundedAttempts(t *testing.T) {
	s, cores := newTestSupervisor(t, nil)
	defer s.Stop()

	if _, err := s.Call(context.Background(), "goBack", CallArgs{}); err != nil {
		t.Fatalf("call: %v", err)
	}

	// Every replacement core fails to start.
	launchErr := errors.New("driver crashed")
	s.newCore = func(*ResolvedConfig) browserCore {
		c := &fakeCore{initErr: launchErr}
		*cores = append(*cores, c)
		return c
	}

	err := s.restartEngine(context.Background())
	if !errors.Is(err, launchErr) {
		t.Fatalf("err=%v, want launch error", err)
	}
	if len(*cores) != 1+restartAttempts {
		t.Fatalf("attempted %d launches, want %d", len(*cores)-1, restartAttempts)
	}
	if s.Running() {
		t.Fatal("engine marked running after exhausted restart")
	}

	// A later call retries lazily and can succeed again.
	s.newCore = func(*ResolvedConfig) browserCore {
		c := &fakeCore{}
		*cores = append(*cores, c)
		return c
	}
	if _, err := s.Call(context.Background(), "goBack", CallArgs{}); err != nil {
		t.Fatalf("call after give-up: %v", err)
	}
	if !s.Running() {
		t.Fatal("engine should be running again")
	}
}

func TestStartIsIdempotent(t *testing.T) {
	s, _ := newTestSupervisor(t, nil)
	s.Start()
	s.Start()
	s.Stop()
}
