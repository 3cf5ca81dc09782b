// Package scheduler implements the frame-pacing logic of spec section
// 4.9: it drives prepare/idle/timer callbacks on a reactor.Reactor to
// drain X events, repaint, and arm/disarm the fade timer, without
// knowing anything about epoll or a live X connection itself.
package scheduler

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/vellumwm/vellum/internal/reactor"
)

const (
	fadeTimerName  = "fade"
	phaseTimerName = "refresh-phase"
)

// Hooks are the callbacks the scheduler drives. All of them are supplied
// by cmd/vellumd; the scheduler itself holds no X state.
type Hooks struct {
	// PollQueuedEvents drains and dispatches already-queued X events
	// (xcb_poll_for_queued_event in the original), returning the number
	// dispatched. Called from prepare, per spec section 4.9: "prepare
	// drains the queued X events... This is the only point at which
	// events may be handled."
	PollQueuedEvents func() int
	// FlushOutgoing flushes the outgoing X request buffer, called at the
	// end of every prepare.
	FlushOutgoing func()
	// PaintPreprocessAndPaint runs preprocess (F) then paint (G) for one
	// frame.
	PaintPreprocessAndPaint func()
	// AnyFading reports whether at least one window is mid-fade, used to
	// arm/disarm the periodic fade timer.
	AnyFading func() bool
	// OnSigint is invoked on SIGINT; the scheduler itself just calls
	// Reactor.Break() afterward.
	OnSigint func()
	// OnSigusr1 is invoked on SIGUSR1 to trigger a full session
	// reinitialization; like OnSigint, the loop breaks afterward so the
	// caller can tear down and rebuild the session before calling Run
	// again.
	OnSigusr1 func()
}

// Scheduler owns the idle/timer state described in spec section 4.9. It
// depends only on the reactor.Reactor interface so it can be driven by a
// fake in tests.
type Scheduler struct {
	r     reactor.Reactor
	hooks Hooks

	softwarePacing  bool
	refreshInterval time.Duration
	phaseOffset     time.Duration
	benchmark       bool

	fadeDelta time.Duration
	clock     func() time.Time

	redrawQueued bool
	fadeArmed    bool
}

// Option configures a Scheduler at construction time.
type Option func(*Scheduler)

// WithSoftwarePacing enables the two-stage idle/timer handle spec
// section 4.9 describes for displays without reliable vblank signaling:
// refresh is the nominal interval between frames and phase is the
// constant offset from the refresh edge to target.
func WithSoftwarePacing(refresh, phase time.Duration) Option {
	return func(s *Scheduler) {
		s.softwarePacing = true
		s.refreshInterval = refresh
		s.phaseOffset = phase
	}
}

// WithBenchmarkMode keeps the idle callback re-arming itself every
// iteration instead of clearing after one paint, per spec section 4.9:
// "the idle callback... clears itself unless benchmark mode is on."
func WithBenchmarkMode() Option {
	return func(s *Scheduler) { s.benchmark = true }
}

// WithClock overrides the wall clock software pacing measures phase
// against. Tests supply a fixed or stepped clock; production code leaves
// the New default of time.Now in place.
func WithClock(clock func() time.Time) Option {
	return func(s *Scheduler) { s.clock = clock }
}

// New builds a Scheduler over r and installs its prepare/fd/signal
// handlers. fadeDelta is the fade step period (config.FadeDeltaMs).
func New(r reactor.Reactor, hooks Hooks, fadeDelta time.Duration, opts ...Option) *Scheduler {
	s := &Scheduler{r: r, hooks: hooks, fadeDelta: fadeDelta, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	r.SetPrepare(s.prepare)
	r.NotifySignal(s.onSignal, unix.SIGINT, unix.SIGUSR1)
	return s
}

// Run starts the reactor loop. It returns once Break is called, which
// happens automatically after SIGINT/SIGUSR1 are handled.
func (s *Scheduler) Run() error {
	return s.r.Run()
}

// prepare implements spec section 4.9's prepare hook: drain queued X
// events, dispatch them, then flush the outgoing buffer. FDReadable below
// runs the same PollQueuedEvents hook but does not flush.
func (s *Scheduler) prepare() {
	if s.hooks.PollQueuedEvents != nil {
		s.hooks.PollQueuedEvents()
	}
	if s.hooks.FlushOutgoing != nil {
		s.hooks.FlushOutgoing()
	}
}

// FDReadable implements spec section 4.9's fd_readable: it merely polls
// once; prepare does the bulk work on the next tick. Callers wire this
// to the X connection's fd via Reactor.AddFD.
func (s *Scheduler) FDReadable() {
	if s.hooks.PollQueuedEvents != nil {
		s.hooks.PollQueuedEvents()
	}
}

// QueueRedraw arms a repaint for the next loop iteration, per spec
// section 4.9's "queue_redraw starts an idle handle." Calling it while
// a redraw is already queued is a no-op.
func (s *Scheduler) QueueRedraw() {
	if s.redrawQueued {
		return
	}
	s.redrawQueued = true
	if s.softwarePacing {
		s.armPhaseTimer()
		return
	}
	s.r.ArmIdle(s.onIdlePaint)
}

// onIdlePaint runs one preprocess+paint cycle and clears the redraw flag
// unless benchmark mode keeps it armed for continuous repainting.
func (s *Scheduler) onIdlePaint() {
	s.redrawQueued = s.benchmark
	if s.hooks.PaintPreprocessAndPaint != nil {
		s.hooks.PaintPreprocessAndPaint()
	}
	if !s.benchmark {
		s.r.DisarmIdle()
	}
	s.syncFadeTimer()
}

// armPhaseTimer implements the software-pacing two-stage handle: compute
// the delay until the next refresh edge plus phase offset, and arm a
// one-shot timer for it (or paint immediately if under a microsecond is
// needed).
func (s *Scheduler) armPhaseTimer() {
	delay := s.delayUntilNextRefresh()
	if delay < time.Microsecond {
		s.onIdlePaint()
		return
	}
	s.r.ArmTimer(phaseTimerName, delay, false, s.onIdlePaint)
}

// delayUntilNextRefresh computes the wait until the next refresh_interval
// boundary plus phase_offset, per spec section 4.9.
func (s *Scheduler) delayUntilNextRefresh() time.Duration {
	if s.refreshInterval <= 0 {
		return 0
	}
	elapsed := time.Duration(s.clock().UnixNano()) % s.refreshInterval
	remaining := s.refreshInterval - elapsed
	return remaining + s.phaseOffset
}

// syncFadeTimer arms or disarms the periodic fade_delta timer based on
// whether any window is mid-fade, per spec section 4.9's "a
// fade-running flag from F arms/disarms a periodic timer with period
// fade_delta."
func (s *Scheduler) syncFadeTimer() {
	running := s.hooks.AnyFading != nil && s.hooks.AnyFading()
	if running && !s.fadeArmed {
		s.fadeArmed = true
		s.r.ArmTimer(fadeTimerName, s.fadeDelta, true, s.onFadeTick)
	} else if !running && s.fadeArmed {
		s.fadeArmed = false
		s.r.DisarmTimer(fadeTimerName)
	}
}

// onFadeTick fires every fade_delta while any window is fading, queuing
// a redraw so the fade step actually gets painted.
func (s *Scheduler) onFadeTick() {
	s.QueueRedraw()
}

// onSignal implements spec section 4.9's "SIGINT quits cleanly; SIGUSR1
// breaks the loop to trigger a full session reinitialization."
func (s *Scheduler) onSignal(sig unix.Signal) {
	switch sig {
	case unix.SIGINT:
		if s.hooks.OnSigint != nil {
			s.hooks.OnSigint()
		}
		s.r.Break()
	case unix.SIGUSR1:
		if s.hooks.OnSigusr1 != nil {
			s.hooks.OnSigusr1()
		}
		s.r.Break()
	}
}
