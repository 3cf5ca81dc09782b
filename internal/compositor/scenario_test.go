package compositor

import (
	"testing"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/stretchr/testify/require"

	"github.com/vellumwm/vellum/internal/backend"
)

// S1 — fade-in opacity trajectory: fade_in_step = 0.1, fade_delta = 10ms,
// active_opacity = 1.0, ticks at t = 5, 15, 25, 35, 45, 95ms.
func TestScenarioFadeInTrajectory(t *testing.T) {
	s := newTestSession()
	s.Redirected = true
	s.Config.FadeDeltaMs = 10
	s.Config.FadeInStep = 0.1
	s.Config.FadeOutStep = 0.1
	s.Config.ActiveOpacity = 1.0

	w := NewWindow(s, 0x10, 0x10)
	w.Geometry = Geometry{X: 0, Y: 0, Width: 10, Height: 10}
	w.MapState = true
	s.TrackWindow(w, 0)
	w.MapNow() // MapNotify at t=0, redirected fade-in

	want := []float64{0.0, 0.1, 0.2, 0.3, 0.4, 0.9}
	for i, tick := range []int64{5, 15, 25, 35, 45, 95} {
		s.Preprocess(tick)
		require.InDelta(t, want[i], w.Opacity(), 1e-6, "at t=%d", tick)
	}
	require.Equal(t, "FADING", w.State().String())

	s.Preprocess(105)
	require.InDelta(t, 1.0, w.Opacity(), 1e-6)
	require.Equal(t, "MAPPED", w.State().String())
}

// S2 — destroy mid-fade: the window leaves the id-index immediately but
// stays in the stack until its fade-out finishes, and a fresh
// CreateNotify for the same id afterward gets independent state.
func TestScenarioDestroyMidFade(t *testing.T) {
	s := newTestSession()
	s.Redirected = true
	s.Config.FadeDeltaMs = 10
	s.Config.FadeOutStep = 0.1

	w := NewWindow(s, 0x10, 0x10)
	w.Geometry = Geometry{X: 0, Y: 0, Width: 10, Height: 10}
	w.MapState = true
	s.TrackWindow(w, 0)
	w.MapNow()
	s.Preprocess(50) // mid fade-in

	w.DestroyNow()
	_, stillIndexed := s.Window(0x10)
	require.False(t, stillIndexed, "id-index entry must be gone immediately on destroy")
	require.Equal(t, "DESTROYING", w.State().String())

	for tick := int64(60); !w.machine.Finished() && tick < 5000; tick += 10 {
		s.Preprocess(tick)
	}
	require.True(t, w.machine.Finished())

	fresh := NewWindow(s, 0x10, 0x10)
	fresh.Geometry = Geometry{X: 0, Y: 0, Width: 10, Height: 10}
	require.Equal(t, "UNMAPPED", fresh.State().String(), "a fresh Window for a reused id starts independent")
}

// S3 — unredirect with delay: a fullscreen solid window arms the
// unredirect timer; a second, non-fullscreen window disarms it while
// mapped, and it re-arms once that window goes away.
func TestScenarioUnredirectWithDelay(t *testing.T) {
	s := newTestSession()
	s.Config.UnredirIfPossible = true
	s.Redirected = true

	fullscreen := mappedWindow(s, 0x20, Geometry{X: 0, Y: 0, Width: 1920, Height: 1080})
	s.TrackWindow(fullscreen, 0)
	s.Preprocess(0)
	require.True(t, s.UnredirPending)

	small := mappedWindow(s, 0x21, Geometry{X: 0, Y: 0, Width: 100, Height: 100})
	small.HasAlpha = true // non-solid, needs compositing
	s.TrackWindow(small, fullscreen.ID())
	s.Preprocess(100)
	require.False(t, s.UnredirPending, "a second window needing composition cancels the pending unredirect")
	require.True(t, s.Redirected)

	small.MapState = false
	small.UnmapNow()
	s.Preprocess(150)
	require.True(t, s.UnredirPending, "removing the blocking window re-arms the timer")

	s.UnredirTimerFired()
	require.False(t, s.Redirected)
}

// S5 — restack invalidates reg_ignore: moving the bottom window of three
// solid, stacked windows to the top clears the ignore regions that are no
// longer valid and redamages the windows whose visibility changed.
func TestScenarioRestackInvalidatesRegIgnore(t *testing.T) {
	s := newTestSession()
	a := mappedWindow(s, 1, Geometry{X: 0, Y: 0, Width: 100, Height: 100}) // top
	b := mappedWindow(s, 2, Geometry{X: 0, Y: 0, Width: 100, Height: 100}) // middle
	c := mappedWindow(s, 3, Geometry{X: 0, Y: 0, Width: 100, Height: 100}) // bottom
	s.TrackWindow(c, 0)
	s.TrackWindow(b, c.ID())
	s.TrackWindow(a, b.ID())

	s.Preprocess(0)
	require.True(t, c.regIgnore.Rects() != nil, "C starts fully covered by A and B")

	s.Registry.Restack(c.ID(), a.ID()) // C moves above A
	require.False(t, c.regIgnoreValid, "InvalidateRegIgnore must fire on restack")
	require.False(t, a.regIgnoreValid)

	s.Preprocess(10)
	require.True(t, c.regIgnore.IsEmpty(), "C is now topmost, nothing above it")
	wantA := windowRegion(c)
	require.ElementsMatch(t, wantA.Rects(), a.regIgnore.Rects())
	wantA.Unref()
}

// failingBindBackend fails BindPixmap for one designated pixmap id, then
// succeeds for everything else, to exercise S6's non-fatal bind failure.
type failingBindBackend struct {
	fakeBackend
	failPixmap xproto.Pixmap
	bindCalls  int
}

func (b *failingBindBackend) BindPixmap(pixmap xproto.Pixmap, vi backend.VisualInfo, owned bool) (backend.Image, error) {
	b.bindCalls++
	if pixmap == b.failPixmap {
		return nil, backend.ErrBind
	}
	return fakeImage{alpha: vi.HasAlpha}, nil
}

// S6 — image bind failure is non-fatal: the affected window gets
// IMAGE_ERROR and stops painting, but other windows keep rendering; a
// later unmap/remap clears the error and retries the bind.
func TestScenarioImageBindFailureNonFatal(t *testing.T) {
	s := newTestSession()
	fb := &failingBindBackend{fakeBackend: fakeBackend{maxAge: 2}, failPixmap: xproto.Pixmap(1)}
	s.AttachBackend(fb)
	s.Redirected = true

	w := mappedWindow(s, 1, Geometry{X: 0, Y: 0, Width: 10, Height: 10})
	other := mappedWindow(s, 2, Geometry{X: 50, Y: 50, Width: 10, Height: 10})
	s.TrackWindow(w, 0)
	s.TrackWindow(other, w.ID())

	s.Preprocess(0)
	require.NoError(t, s.Paint(nil))
	require.True(t, w.ImageError)
	require.Nil(t, w.Image)
	require.NotNil(t, other.Image, "other windows must keep rendering despite one bind failure")

	callsAfterFirstPaint := fb.bindCalls
	s.Preprocess(10)
	require.NoError(t, s.Paint(nil))
	require.Equal(t, callsAfterFirstPaint, fb.bindCalls, "a window in IMAGE_ERROR must not retry the bind every frame")

	w.MapState = false
	w.UnmapNow()
	s.Preprocess(20)
	w.MapState = true
	w.MapNow()
	w.ImageError = false
	w.StaleImage = true
	s.Preprocess(30)
	require.NoError(t, s.Paint(nil))
	require.Greater(t, fb.bindCalls, callsAfterFirstPaint, "remapping must retry the bind")
}
