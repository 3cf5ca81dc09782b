package scheduler

import (
	"time"

	"golang.org/x/sys/unix"
)

// fakeReactor is an in-memory reactor.Reactor stand-in: it runs nothing
// on its own clock, only in response to test-driven calls to
// firePrepare/fireIdle/fireTimer/fireSignal, per SPEC_FULL.md's testing
// note that the scheduler is exercised without a real epoll loop.
type fakeReactor struct {
	prepareFn func()

	idleFn    func()
	idleArmed bool

	timers map[string]fakeTimer

	sigHandlers map[unix.Signal]func(unix.Signal)

	broken bool
}

type fakeTimer struct {
	delay    time.Duration
	periodic bool
	fn       func()
}

func newFakeReactor() *fakeReactor {
	return &fakeReactor{
		timers:      make(map[string]fakeTimer),
		sigHandlers: make(map[unix.Signal]func(unix.Signal)),
	}
}

func (f *fakeReactor) AddFD(fd int, onReadable func()) error { return nil }
func (f *fakeReactor) RemoveFD(fd int) error                 { return nil }

func (f *fakeReactor) SetPrepare(fn func()) { f.prepareFn = fn }

func (f *fakeReactor) ArmIdle(fn func()) {
	f.idleFn = fn
	f.idleArmed = true
}
func (f *fakeReactor) DisarmIdle() { f.idleArmed = false }

func (f *fakeReactor) ArmTimer(name string, d time.Duration, periodic bool, fn func()) {
	f.timers[name] = fakeTimer{delay: d, periodic: periodic, fn: fn}
}
func (f *fakeReactor) DisarmTimer(name string) { delete(f.timers, name) }

func (f *fakeReactor) NotifySignal(fn func(sig unix.Signal), signals ...unix.Signal) {
	for _, s := range signals {
		f.sigHandlers[s] = fn
	}
}

func (f *fakeReactor) Run() error { return nil }
func (f *fakeReactor) Break()     { f.broken = true }

func (f *fakeReactor) firePrepare() {
	if f.prepareFn != nil {
		f.prepareFn()
	}
}

func (f *fakeReactor) fireIdle() {
	if f.idleArmed && f.idleFn != nil {
		f.idleFn()
	}
}

func (f *fakeReactor) fireTimer(name string) {
	t, ok := f.timers[name]
	if !ok {
		return
	}
	if !t.periodic {
		delete(f.timers, name)
	}
	t.fn()
}

func (f *fakeReactor) fireSignal(sig unix.Signal) {
	if h, ok := f.sigHandlers[sig]; ok {
		h(sig)
	}
}

func (f *fakeReactor) hasTimer(name string) bool {
	_, ok := f.timers[name]
	return ok
}
