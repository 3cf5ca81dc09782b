// Command vellumd is the compositor daemon: it owns the X connection,
// the compositor session, and the frame scheduler's reactor loop.
package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"

	"github.com/vellumwm/vellum/internal/backend"
	_ "github.com/vellumwm/vellum/internal/backend/gltex"
	_ "github.com/vellumwm/vellum/internal/backend/xrender"
	"github.com/vellumwm/vellum/internal/compositor"
	"github.com/vellumwm/vellum/internal/config"
	"github.com/vellumwm/vellum/internal/dbusctl"
	"github.com/vellumwm/vellum/internal/pidfile"
	"github.com/vellumwm/vellum/internal/privsep"
	"github.com/vellumwm/vellum/internal/reactor"
	"github.com/vellumwm/vellum/internal/region"
	"github.com/vellumwm/vellum/internal/scheduler"
	"github.com/vellumwm/vellum/internal/xconn"
	"github.com/vellumwm/vellum/internal/xevent"
	"github.com/vellumwm/vellum/internal/xprop"
)

var version = "unknown" // set by build

func main() {
	opt := parseCLIOpts()

	if opt.verbose {
		log.SetOutput(os.Stderr)
	} else {
		log.SetOutput(io.Discard)
	}
	log.Printf("vellumd starting, version %s\n", version)

	if opt.setcap {
		os.Exit(runSetcap())
	}
	if opt.elevate {
		if err := privsep.PkexecSetcapSelf("-setcap"); err != nil {
			log.Fatalf("elevate: %v\n", err)
		}
		return
	}

	if err := config.InitializeIfNot(); err != nil {
		log.Printf("config: %v\n", err)
		os.Exit(compositor.ExitConfigError)
	}
	cfg, err := config.Read()
	if err != nil {
		log.Printf("config: %v\n", err)
		os.Exit(compositor.ExitConfigError)
	}
	if opt.backend != "" {
		cfg.Backend = opt.backend
	}
	if opt.benchmark {
		cfg.Benchmark = true
	}

	if cfg.PidFilePath != "" {
		if err := pidfile.Write(cfg.PidFilePath); err != nil {
			log.Fatalf("pidfile: %v\n", err)
		}
		defer pidfile.Remove(cfg.PidFilePath)
	}

	if ok, _ := privsep.HasSysNice(); ok {
		log.Printf("CAP_SYS_NICE available; it is dropped before the frame loop starts\n")
	}

	d := newDaemon(cfg)
	if err := d.run(opt.display); err != nil {
		var fatal *compositor.FatalError
		if errors.As(err, &fatal) {
			log.Printf("vellumd: %v\n", fatal)
			os.Exit(fatal.Code)
		}
		log.Printf("vellumd: %v\n", err)
		os.Exit(compositor.ExitFatalRuntime)
	}
}

func runSetcap() int {
	if err := privsep.EnsureFileCapSysNice(); err != nil {
		log.Printf("setcap failed: %v\n", err)
		return 1
	}
	return 0
}

// daemon bundles the long-lived collaborators main wires together:
// connection, session, backend, event dispatcher, scheduler.
type daemon struct {
	cfg  config.Config
	conn *xconn.Conn
	xu   *xgbutil.XUtil
	prop *xprop.Reader

	sess *compositor.Session
	ctrl *dbusctl.Server
	disp *xevent.Dispatcher

	react *reactor.Epoll
	sched *scheduler.Scheduler

	eventMu  sync.Mutex
	pending  []pumpedEvent
	wakeRead *os.File

	unredirArmed bool
}

type pumpedEvent struct {
	ev  xgb.Event
	err error
}

func newDaemon(cfg config.Config) *daemon {
	return &daemon{cfg: cfg}
}

func (d *daemon) run(display string) error {
	conn, err := xconn.Connect(display)
	if err != nil {
		return compositor.NewFatalError(compositor.ExitXConnectFailed, fmt.Errorf("connect: %w", err))
	}
	d.conn = conn
	defer conn.Close()

	root, width, height := conn.Root()

	xu, err := xgbutil.NewConnXgb(conn.X)
	if err != nil {
		return fmt.Errorf("xgbutil wrap: %w", err)
	}
	d.xu = xu
	d.prop = xprop.NewReader(xu)

	owner, selAtom, err := conn.AcquireCMSelection(root, 0)
	if err != nil {
		return fmt.Errorf("acquire CM selection: %w", err)
	}
	defer conn.ReleaseCMSelection(owner)

	// The overlay window itself is acquired once up front and released once
	// at shutdown; whether the screen is actually redirected to it toggles
	// over the session's lifetime under the redirect controller (see
	// Session.redirStart/redirStop in internal/compositor), not here.
	overlay, err := conn.AcquireOverlay(root)
	if err != nil {
		return fmt.Errorf("acquire overlay: %w", err)
	}
	defer conn.ReleaseOverlay(root)

	var ctrl *dbusctl.Server
	if d.cfg.EnableDbus {
		ctrl, err = dbusctl.New()
		if err != nil {
			log.Printf("dbusctl: %v (continuing without a control surface)\n", err)
			ctrl = nil
		} else {
			defer ctrl.Close()
		}
	}
	d.ctrl = ctrl
	var control compositor.ControlSurface
	if ctrl != nil {
		control = ctrl
	}

	sess := compositor.NewSession(conn, root, width, height, d.cfg, nil, control)
	sess.OverlayWindow = overlay
	d.sess = sess
	// redir_stop on the way out, mirroring the per-frame path
	// stepRedirectController takes when the unredirect-delay timer fires,
	// so a clean shutdown always undoes subwindow redirect and unmaps the
	// overlay rather than leaving that to process exit.
	defer sess.StopRedirect()

	be, err := backend.Open(d.cfg.Backend, backend.Session{
		Conn: conn, Root: root, OverlayWindow: overlay,
		RootWidth: width, RootHeight: height,
	})
	if err != nil {
		return compositor.NewFatalError(compositor.ExitBackendFailed, fmt.Errorf("open backend %q: %w", d.cfg.Backend, err))
	}
	defer be.Deinit()
	sess.AttachBackend(be)

	if pm, ok := d.prop.RootBackgroundPixmap(root); ok {
		sess.RefreshRootTile(xproto.Window(pm))
	} else {
		sess.RefreshRootTile(0)
	}

	if err := d.seedInitialWindows(); err != nil {
		return fmt.Errorf("seed initial windows: %w", err)
	}

	d.prop.WriteStartupProperties(root, uint32(os.Getpid()), "vellum "+version)

	disp := &xevent.Dispatcher{
		Sess:            sess,
		Props:           d.prop,
		CMSelectionAtom: selAtom,
		RefreshBoundingShape: func(w xproto.Window) (*region.Region, error) {
			return xprop.BoundingShape(conn.X, w)
		},
	}
	d.disp = disp

	react, err := reactor.New()
	if err != nil {
		return fmt.Errorf("reactor: %w", err)
	}
	d.react = react
	defer react.Close()

	disp.OnSelectionLost = func() {
		log.Printf("another compositor took the manager selection, exiting\n")
		react.Break()
	}

	wakeRead, wakeWrite, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("wakeup pipe: %w", err)
	}
	d.wakeRead = wakeRead
	defer wakeRead.Close()
	defer wakeWrite.Close()

	go d.pumpXEvents(wakeWrite)

	if err := react.AddFD(int(wakeRead.Fd()), d.onWakeReadable); err != nil {
		return fmt.Errorf("reactor: add wakeup fd: %w", err)
	}

	hooks := scheduler.Hooks{
		PollQueuedEvents: d.dispatchPending,
		FlushOutgoing:    func() { conn.X.Sync() },
		PaintPreprocessAndPaint: func() {
			sess.Preprocess(nowMillis())
			repaint := sess.Damage.ReadBack(be.BufferAge())
			if err := sess.Paint(repaint); err != nil {
				log.Printf("paint: %v\n", err)
			}
			sess.Damage.Rotate()
			d.syncUnredirTimer()
		},
		AnyFading: sess.AnyFading,
		OnSigint: func() {
			log.Printf("SIGINT received, shutting down\n")
		},
		OnSigusr1: func() {
			log.Printf("SIGUSR1 received, reinitialization requested\n")
		},
	}

	var opts []scheduler.Option
	if d.cfg.Benchmark {
		opts = append(opts, scheduler.WithBenchmarkMode())
	}
	if d.cfg.SWOpacityFading && d.cfg.RefreshRateHz > 0 {
		refresh := time.Duration(float64(time.Second) / d.cfg.RefreshRateHz)
		opts = append(opts, scheduler.WithSoftwarePacing(refresh, time.Millisecond))
	}

	sched := scheduler.New(react, hooks, time.Duration(d.cfg.FadeDeltaMs)*time.Millisecond, opts...)
	d.sched = sched

	if err := privsep.DropSysNice(); err != nil {
		log.Printf("privsep: drop CAP_SYS_NICE: %v (continuing)\n", err)
	}

	sched.QueueRedraw()
	return sched.Run()
}

// seedInitialWindows enumerates root's current children via QueryTree
// and registers each as a Window in its current stacking position and
// map state, per spec section 4's "Created on CreateNotify / initial
// query tree" lifecycle note. QueryTree returns children bottom to top,
// so the previous iteration's id is always the correct stacking
// reference for the next Insert.
func (d *daemon) seedInitialWindows() error {
	children, err := d.conn.QueryTree(d.sess.Root)
	if err != nil {
		return err
	}
	var prevID xproto.Window
	for _, child := range children {
		if child == d.sess.OverlayWindow {
			continue
		}
		x, y, w, h, bw, err := d.conn.Geometry(child)
		if err != nil {
			continue
		}
		win := compositor.NewWindow(d.sess, child, child)
		win.Geometry = compositor.Geometry{X: x, Y: y, Width: w, Height: h, BorderWidth: bw}
		d.sess.TrackWindow(win, prevID)
		prevID = child

		if viewable, _ := d.conn.IsViewable(child); viewable {
			win.MapState = true
			win.MapNow()
		}
		if err := d.conn.SelectInput(child, xprop.EventMask()); err != nil {
			log.Printf("seed: SelectInput on %v: %v\n", child, err)
		}
	}
	return nil
}

// pumpXEvents runs xgb's blocking WaitForEvent in its own goroutine,
// queuing each event for the reactor goroutine to dispatch and writing a
// byte to wake so epoll_wait returns. xgb has no exposed socket fd to
// register with epoll directly, so this pipe is the handoff between
// xgb's internal reader goroutine and the single-threaded reactor loop.
func (d *daemon) pumpXEvents(wake *os.File) {
	for {
		ev, err := d.conn.X.WaitForEvent()
		if ev == nil && err == nil {
			return // connection closed
		}
		d.eventMu.Lock()
		d.pending = append(d.pending, pumpedEvent{ev: ev, err: err})
		d.eventMu.Unlock()
		if _, werr := wake.Write([]byte{0}); werr != nil {
			return
		}
	}
}

func (d *daemon) onWakeReadable() {
	buf := make([]byte, 64)
	for {
		n, err := d.wakeRead.Read(buf)
		if n == 0 || err != nil {
			break
		}
		if n < len(buf) {
			break
		}
	}
	d.dispatchPending()
}

// dispatchPending drains and dispatches whatever pumpXEvents has queued
// so far, per spec section 4.9's prepare contract: this (and fd_readable
// above, which calls the same path) are the only points events are
// handled.
func (d *daemon) dispatchPending() int {
	d.eventMu.Lock()
	batch := d.pending
	d.pending = nil
	d.eventMu.Unlock()

	for _, pe := range batch {
		if pe.err != nil {
			log.Printf("xconn: protocol error: %v\n", pe.err)
			continue
		}
		d.disp.Dispatch(pe.ev)
	}
	return len(batch)
}

// syncUnredirTimer arms or disarms the unredirect-delay timer to track
// Session.UnredirPending, the flag stepRedirectController sets and clears
// every frame. A timer fired while the flag has since gone false means the
// redirect controller changed its mind before the delay elapsed, and
// Session.UnredirTimerFired already no-ops in that case; disarming here
// additionally avoids a stale fire changing state after a later frame
// re-armed for an unrelated reason.
func (d *daemon) syncUnredirTimer() {
	const timerName = "unredir-delay"
	switch {
	case d.sess.UnredirPending && !d.unredirArmed:
		d.unredirArmed = true
		delay := time.Duration(d.cfg.UnredirIfPossibleDelayMs) * time.Millisecond
		d.react.ArmTimer(timerName, delay, false, func() {
			d.unredirArmed = false
			d.sess.UnredirTimerFired()
		})
	case !d.sess.UnredirPending && d.unredirArmed:
		d.unredirArmed = false
		d.react.DisarmTimer(timerName)
	}
}

func nowMillis() int64 { return time.Now().UnixNano() / int64(time.Millisecond) }
