//go:build linux

// Package reactor implements the single-threaded cooperative event loop
// spec section 4.9 assumes: an epoll-backed reactor exposing fd-readable,
// prepare, idle, timer and signal callbacks, built on
// golang.org/x/sys/unix's epoll/timerfd/signalfd primitives.
package reactor

import (
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Reactor is the minimal callback-registration surface
// internal/scheduler depends on, per spec section 9's note that the
// scheduler "should depend on a small Reactor interface, not a concrete
// event loop library" so it can be tested against a fake. Epoll is the
// concrete implementation.
type Reactor interface {
	// AddFD registers fd for read-readiness notifications.
	AddFD(fd int, onReadable func()) error
	// RemoveFD unregisters a previously added fd.
	RemoveFD(fd int) error
	// SetPrepare installs the callback run once per loop iteration before
	// the reactor blocks, per spec section 4.9's "prepare" hook.
	SetPrepare(fn func())
	// ArmIdle schedules fn to run once on the next loop iteration with no
	// blocking wait, re-arming itself every iteration until DisarmIdle is
	// called (benchmark mode keeps it armed; normal mode disarms after
	// one paint).
	ArmIdle(fn func())
	// DisarmIdle cancels a pending idle callback.
	DisarmIdle()
	// ArmTimer (re)arms a named timer to fire fn after d, repeating every
	// d if periodic is true.
	ArmTimer(name string, d time.Duration, periodic bool, fn func())
	// DisarmTimer cancels a named timer armed with ArmTimer.
	DisarmTimer(name string)
	// NotifySignal routes the given signals to fn instead of the
	// process's default disposition, via signalfd.
	NotifySignal(fn func(sig unix.Signal), signals ...unix.Signal)
	// Run blocks, servicing callbacks, until Break is called or an
	// unrecoverable epoll error occurs.
	Run() error
	// Break causes a running Run to return at the next loop iteration.
	Break()
}

// Epoll is the concrete Reactor built on epoll_wait plus one timerfd per
// armed timer and one signalfd for NotifySignal, following the same
// non-blocking-fd-plus-epoll shape the teacher's event loop uses for its
// PulseAudio socket.
type Epoll struct {
	epfd int

	readers map[int]func()

	prepare func()

	idleFn     func()
	idleArmed  bool
	idleTimer  int // timerfd dedicated to firing idle callbacks at next tick

	timers map[string]*namedTimer

	sigFD      int
	sigHandler func(unix.Signal)

	breakRequested bool
}

type namedTimer struct {
	fd       int
	periodic bool
	fn       func()
}

// New creates an Epoll reactor with its own epoll instance and a
// dedicated zero-delay timerfd used to implement ArmIdle.
func New() (*Epoll, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("reactor: epoll_create1: %w", err)
	}
	idleTimer, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_CLOEXEC|unix.TFD_NONBLOCK)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("reactor: timerfd_create for idle: %w", err)
	}
	e := &Epoll{
		epfd:      epfd,
		readers:   make(map[int]func()),
		idleTimer: idleTimer,
		timers:    make(map[string]*namedTimer),
		sigFD:     -1,
	}
	if err := e.addEpollFD(idleTimer); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

// Close releases every fd the reactor owns. Run must not be called
// afterward.
func (e *Epoll) Close() {
	for fd := range e.readers {
		unix.Close(fd)
	}
	for _, t := range e.timers {
		unix.Close(t.fd)
	}
	if e.sigFD >= 0 {
		unix.Close(e.sigFD)
	}
	unix.Close(e.idleTimer)
	unix.Close(e.epfd)
}

func (e *Epoll) addEpollFD(fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	return unix.EpollCtl(e.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

// AddFD implements Reactor.
func (e *Epoll) AddFD(fd int, onReadable func()) error {
	if err := e.addEpollFD(fd); err != nil {
		return fmt.Errorf("reactor: epoll_ctl add %d: %w", fd, err)
	}
	e.readers[fd] = onReadable
	return nil
}

// RemoveFD implements Reactor.
func (e *Epoll) RemoveFD(fd int) error {
	delete(e.readers, fd)
	if err := unix.EpollCtl(e.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("reactor: epoll_ctl del %d: %w", fd, err)
	}
	return nil
}

// SetPrepare implements Reactor.
func (e *Epoll) SetPrepare(fn func()) { e.prepare = fn }

// ArmIdle implements Reactor.
func (e *Epoll) ArmIdle(fn func()) {
	e.idleFn = fn
	e.idleArmed = true
	_ = unix.TimerfdSettime(e.idleTimer, 0, &unix.ItimerSpec{
		Value: unix.Timespec{Sec: 0, Nsec: 1},
	}, nil)
}

// DisarmIdle implements Reactor.
func (e *Epoll) DisarmIdle() {
	e.idleArmed = false
	_ = unix.TimerfdSettime(e.idleTimer, 0, &unix.ItimerSpec{}, nil)
}

// ArmTimer implements Reactor.
func (e *Epoll) ArmTimer(name string, d time.Duration, periodic bool, fn func()) {
	if t, ok := e.timers[name]; ok {
		unix.Close(t.fd)
		delete(e.readers, t.fd)
		delete(e.timers, name)
	}
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_CLOEXEC|unix.TFD_NONBLOCK)
	if err != nil {
		return
	}
	spec := durationToItimerspec(d, periodic)
	if err := unix.TimerfdSettime(fd, 0, &spec, nil); err != nil {
		unix.Close(fd)
		return
	}
	t := &namedTimer{fd: fd, periodic: periodic, fn: fn}
	e.timers[name] = t
	_ = e.addEpollFD(fd)
	e.readers[fd] = func() {
		drainTimerfd(fd)
		fn()
	}
}

// DisarmTimer implements Reactor.
func (e *Epoll) DisarmTimer(name string) {
	t, ok := e.timers[name]
	if !ok {
		return
	}
	delete(e.timers, name)
	delete(e.readers, t.fd)
	_ = unix.EpollCtl(e.epfd, unix.EPOLL_CTL_DEL, t.fd, nil)
	unix.Close(t.fd)
}

// NotifySignal implements Reactor.
func (e *Epoll) NotifySignal(fn func(sig unix.Signal), signals ...unix.Signal) {
	var set unix.Sigset_t
	for _, s := range signals {
		addSignal(&set, s)
	}
	_ = unix.SigprocMask(unix.SIG_BLOCK, &set, nil)

	fd, err := unix.Signalfd(-1, &set, unix.SFD_CLOEXEC|unix.SFD_NONBLOCK)
	if err != nil {
		return
	}
	if e.sigFD >= 0 {
		unix.Close(e.sigFD)
		delete(e.readers, e.sigFD)
	}
	e.sigFD = fd
	e.sigHandler = fn
	_ = e.addEpollFD(fd)
	e.readers[fd] = e.handleSignalReadable
}

func (e *Epoll) handleSignalReadable() {
	var buf [unix.SizeofSignalfdSiginfo]byte
	n, err := unix.Read(e.sigFD, buf[:])
	if err != nil || n != unix.SizeofSignalfdSiginfo {
		return
	}
	info := (*unix.SignalfdSiginfo)(unsafe.Pointer(&buf[0]))
	if e.sigHandler != nil {
		e.sigHandler(unix.Signal(info.Signo))
	}
}

// addSignal sets sig's bit in set. Sigset_t is a fixed-size bitmap of
// 64-bit words indexed from signal 1; this mirrors what sigaddset does
// in libc, since x/sys/unix exposes the raw struct but not the macro.
func addSignal(set *unix.Sigset_t, sig unix.Signal) {
	bit := uint(sig) - 1
	set.Val[bit/64] |= 1 << (bit % 64)
}

// Run implements Reactor.
func (e *Epoll) Run() error {
	e.breakRequested = false
	events := make([]unix.EpollEvent, 16)
	for !e.breakRequested {
		if e.prepare != nil {
			e.prepare()
		}
		n, err := unix.EpollWait(e.epfd, events, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("reactor: epoll_wait: %w", err)
		}
		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			if fd == e.idleTimer {
				drainTimerfd(fd)
				if e.idleArmed && e.idleFn != nil {
					e.idleFn()
				}
				if e.idleArmed {
					// The idle timerfd is one-shot; set it again so a
					// still-armed callback runs on the next iteration too.
					e.ArmIdle(e.idleFn)
				}
				continue
			}
			if cb, ok := e.readers[fd]; ok {
				cb()
			}
		}
	}
	return nil
}

// Break implements Reactor.
func (e *Epoll) Break() { e.breakRequested = true }

func drainTimerfd(fd int) {
	var buf [8]byte
	_, _ = unix.Read(fd, buf[:])
}

func durationToItimerspec(d time.Duration, periodic bool) unix.ItimerSpec {
	ts := unix.NsecToTimespec(d.Nanoseconds())
	if ts.Sec == 0 && ts.Nsec == 0 {
		ts.Nsec = 1 // timerfd_settime treats an all-zero value as "disarm"
	}
	spec := unix.ItimerSpec{Value: ts}
	if periodic {
		spec.Interval = ts
	}
	return spec
}
