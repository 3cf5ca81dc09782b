package compositor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// Invariant 3: state == UNMAPPED => no backend image bound.
func TestUnmappedWindowHasNoImage(t *testing.T) {
	s := newTestSession()
	w := NewWindow(s, 1, 1)
	w.Geometry = Geometry{X: 0, Y: 0, Width: 10, Height: 10}
	s.TrackWindow(w, 0)

	s.Preprocess(0)

	require.Equal(t, "UNMAPPED", w.State().String())
	require.Nil(t, w.Image)
}

// Invariant 5: a frame with redirected == false emits no paint at all.
func TestPaintNoopWhileUnredirected(t *testing.T) {
	s := newTestSession()
	w := mappedWindow(s, 1, Geometry{X: 0, Y: 0, Width: 10, Height: 10})
	s.TrackWindow(w, 0)
	s.Preprocess(0)
	require.False(t, s.Redirected, "a single solid window does not force redirection on")

	fb := s.Backend.(*fakeBackend)
	require.NoError(t, s.Paint(nil))
	require.Zero(t, fb.presented, "Paint must not touch the backend while unredirected")
}

// Boundary 11: a mapped solid fullscreen window not excluded causes
// unredir_possible == true after one frame; with a delay configured the
// actual redir_stop only fires once the delay elapses.
func TestFullscreenSolidWindowArmsDelayedUnredirect(t *testing.T) {
	s := newTestSession()
	s.Config.UnredirIfPossible = true
	w := mappedWindow(s, 1, Geometry{X: 0, Y: 0, Width: 1920, Height: 1080})
	s.TrackWindow(w, 0)
	s.Redirected = true

	s.Preprocess(0)
	require.True(t, s.UnredirPending, "unredir_possible must go true after one frame")
	require.True(t, s.Redirected, "redir_stop must wait for the delay timer, not fire immediately")

	s.UnredirTimerFired()
	require.False(t, s.Redirected, "redir_stop fires once the delay timer elapses")
}

// redirStart/redirStop must be idempotent: calling either while already in
// the target state is a no-op, so a spurious second call from the
// controller can't double-release resources.
func TestRedirStartStopIdempotent(t *testing.T) {
	s := newTestSession()
	s.redirStart()
	require.True(t, s.Redirected)
	ringAfterFirstStart := s.Damage
	s.redirStart() // already redirected: no-op
	require.Same(t, ringAfterFirstStart, s.Damage)

	s.redirStop()
	require.False(t, s.Redirected)
	ringAfterFirstStop := s.Damage
	s.redirStop() // already stopped: no-op
	require.Same(t, ringAfterFirstStop, s.Damage)
}
