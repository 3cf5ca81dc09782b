package scheduler

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func TestQueueRedrawArmsIdleAndRunsPaintOnce(t *testing.T) {
	fr := newFakeReactor()
	painted := 0
	s := New(fr, Hooks{
		PaintPreprocessAndPaint: func() { painted++ },
	}, 10*time.Millisecond)

	s.QueueRedraw()
	if !fr.idleArmed {
		t.Fatalf("expected idle to be armed after QueueRedraw")
	}
	fr.fireIdle()

	if painted != 1 {
		t.Fatalf("expected exactly one paint, got %d", painted)
	}
	if fr.idleArmed {
		t.Fatalf("expected idle to be disarmed after a non-benchmark paint")
	}
}

func TestQueueRedrawIsNoOpWhileAlreadyQueued(t *testing.T) {
	fr := newFakeReactor()
	s := New(fr, Hooks{}, 10*time.Millisecond)

	s.QueueRedraw()
	fr.idleArmed = false // forget the first arm so a second one would show
	s.QueueRedraw()      // already queued: must not re-arm

	if fr.idleArmed {
		t.Fatalf("expected QueueRedraw not to re-arm idle while a redraw is already queued")
	}
}

func TestBenchmarkModeKeepsIdleArmed(t *testing.T) {
	fr := newFakeReactor()
	painted := 0
	s := New(fr, Hooks{
		PaintPreprocessAndPaint: func() { painted++ },
	}, 10*time.Millisecond, WithBenchmarkMode())

	s.QueueRedraw()
	fr.fireIdle()
	if !fr.idleArmed {
		t.Fatalf("expected idle to remain armed in benchmark mode")
	}
	fr.fireIdle()
	if painted != 2 {
		t.Fatalf("expected two paints under repeated idle firing, got %d", painted)
	}
}

func TestFadeTimerArmsWhileFadingAndDisarmsWhenIdle(t *testing.T) {
	fr := newFakeReactor()
	fading := true
	s := New(fr, Hooks{
		AnyFading: func() bool { return fading },
	}, 10*time.Millisecond)

	s.QueueRedraw()
	fr.fireIdle()
	if !fr.hasTimer(fadeTimerName) {
		t.Fatalf("expected fade timer armed while a window is fading")
	}

	fading = false
	fr.fireTimer(fadeTimerName)
	fr.fireIdle() // the tick's redraw re-checks AnyFading after painting
	if fr.hasTimer(fadeTimerName) {
		t.Fatalf("expected fade timer disarmed once fading stops")
	}
}

func TestFadeTickQueuesARedraw(t *testing.T) {
	fr := newFakeReactor()
	painted := 0
	fading := true
	s := New(fr, Hooks{
		PaintPreprocessAndPaint: func() { painted++ },
		AnyFading:               func() bool { return fading },
	}, 10*time.Millisecond)

	s.QueueRedraw()
	fr.fireIdle() // first paint, arms the fade timer since fading is true

	fr.fireTimer(fadeTimerName) // periodic fade tick fires onFadeTick -> QueueRedraw
	fr.fireIdle()

	if painted != 2 {
		t.Fatalf("expected the fade tick to trigger a second paint, got %d paints", painted)
	}
}

func TestPrepareDrainsEventsAndFlushesEveryIteration(t *testing.T) {
	fr := newFakeReactor()
	polled, flushed := 0, 0
	s := New(fr, Hooks{
		PollQueuedEvents: func() int { polled++; return 0 },
		FlushOutgoing:    func() { flushed++ },
	}, 10*time.Millisecond)

	fr.firePrepare()
	fr.firePrepare()

	if polled != 2 || flushed != 2 {
		t.Fatalf("expected prepare to poll and flush every call, got polled=%d flushed=%d", polled, flushed)
	}
	_ = s
}

func TestSigintBreaksTheLoop(t *testing.T) {
	fr := newFakeReactor()
	quitCalled := false
	New(fr, Hooks{
		OnSigint: func() { quitCalled = true },
	}, 10*time.Millisecond)

	fr.fireSignal(unix.SIGINT)

	if !quitCalled {
		t.Fatalf("expected OnSigint hook to fire")
	}
	if !fr.broken {
		t.Fatalf("expected SIGINT to break the reactor loop")
	}
}

func TestSigusr1TriggersReinitAndBreaks(t *testing.T) {
	fr := newFakeReactor()
	reinitCalled := false
	New(fr, Hooks{
		OnSigusr1: func() { reinitCalled = true },
	}, 10*time.Millisecond)

	fr.fireSignal(unix.SIGUSR1)

	if !reinitCalled {
		t.Fatalf("expected OnSigusr1 hook to fire")
	}
	if !fr.broken {
		t.Fatalf("expected SIGUSR1 to break the reactor loop too, so the caller can rebuild the session")
	}
}

func TestSoftwarePacingArmsPhaseTimerInsteadOfIdle(t *testing.T) {
	fr := newFakeReactor()
	s := New(fr, Hooks{}, 10*time.Millisecond,
		WithSoftwarePacing(16*time.Millisecond, 2*time.Millisecond),
		WithClock(func() time.Time { return time.Unix(0, 5*int64(time.Millisecond)) }),
	)

	s.QueueRedraw()

	if fr.idleArmed {
		t.Fatalf("software pacing should not use the plain idle handle")
	}
	if !fr.hasTimer(phaseTimerName) {
		t.Fatalf("expected the refresh-phase timer to be armed")
	}
}
