package compositor

import (
	"testing"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/stretchr/testify/require"

	"github.com/vellumwm/vellum/internal/backend"
	"github.com/vellumwm/vellum/internal/config"
	"github.com/vellumwm/vellum/internal/region"
)

// fakeImage is a no-op backend.Image for tests.
type fakeImage struct{ alpha bool }

// fakeBackend is a minimal backend.Backend recording the calls Paint
// makes, so tests can assert on paint order without a real X connection.
type fakeBackend struct {
	composed  []xproto.Window
	presented int
	maxAge    int
}

func (b *fakeBackend) Deinit() {}
func (b *fakeBackend) BindPixmap(pixmap xproto.Pixmap, vi backend.VisualInfo, owned bool) (backend.Image, error) {
	return fakeImage{alpha: vi.HasAlpha}, nil
}
func (b *fakeBackend) ReleaseImage(img backend.Image) {}
func (b *fakeBackend) Compose(img backend.Image, dstX, dstY int32, regPaint, regVisible *region.Region) {
}
func (b *fakeBackend) RenderShadow(w, h int, kernel *backend.Kernel, r, g, bch, a uint16) (backend.Image, error) {
	return fakeImage{}, nil
}
func (b *fakeBackend) Blur(opacity float64, regBlur, regVisible *region.Region) bool { return false }
func (b *fakeBackend) Fill(c backend.Color, reg *region.Region) error                { return backend.ErrUnsupported }
func (b *fakeBackend) Present()                                                      { b.presented++ }
func (b *fakeBackend) ImageOp(op backend.ImageOp, img backend.Image, regOp, regVisible *region.Region, args backend.ImageOpArgs) bool {
	return true
}
func (b *fakeBackend) IsImageTransparent(img backend.Image) bool { return false }
func (b *fakeBackend) BufferAge() int                            { return -1 }
func (b *fakeBackend) MaxBufferAge() int                          { return b.maxAge }

func newTestSession() *Session {
	cfg := config.Default()
	s := NewSession(nil, 1, 1920, 1080, cfg, nil, nil)
	s.AttachBackend(&fakeBackend{maxAge: 2})
	return s
}

func mappedWindow(s *Session, id xproto.Window, geom Geometry) *Window {
	w := NewWindow(s, id, id)
	w.Geometry = geom
	w.MapState = true
	w.machine.Map(1.0, false) // unredirected map: snaps straight to Mapped at opacity 1
	return w
}

func TestPreprocessCullsFullyOccludedWindow(t *testing.T) {
	s := newTestSession()

	bottom := mappedWindow(s, 1, Geometry{X: 0, Y: 0, Width: 100, Height: 100})
	top := mappedWindow(s, 2, Geometry{X: 0, Y: 0, Width: 100, Height: 100})

	s.TrackWindow(bottom, 0)
	s.TrackWindow(top, bottom.ID()) // top stacked above bottom

	s.Preprocess(0)

	require.True(t, top.ToPaint, "fully covering top window must paint")
	require.False(t, bottom.ToPaint, "fully occluded bottom window must be culled")
}

func TestPreprocessPartialOverlapBothPaint(t *testing.T) {
	s := newTestSession()

	bottom := mappedWindow(s, 1, Geometry{X: 0, Y: 0, Width: 100, Height: 100})
	top := mappedWindow(s, 2, Geometry{X: 50, Y: 50, Width: 100, Height: 100})

	s.TrackWindow(bottom, 0)
	s.TrackWindow(top, bottom.ID())

	s.Preprocess(0)

	require.True(t, top.ToPaint)
	require.True(t, bottom.ToPaint, "partially visible bottom window must still paint")
}

func TestPreprocessSkipsUnmappedWindow(t *testing.T) {
	s := newTestSession()
	w := NewWindow(s, 1, 1)
	w.Geometry = Geometry{X: 0, Y: 0, Width: 10, Height: 10}
	s.TrackWindow(w, 0)

	s.Preprocess(0)

	require.False(t, w.ToPaint)
	require.Equal(t, w.State().String(), "UNMAPPED")
}

func TestPreprocessBuildsBottomToTopPaintOrder(t *testing.T) {
	s := newTestSession()

	bottom := mappedWindow(s, 1, Geometry{X: 0, Y: 0, Width: 10, Height: 10})
	middle := mappedWindow(s, 2, Geometry{X: 20, Y: 0, Width: 10, Height: 10})
	top := mappedWindow(s, 3, Geometry{X: 40, Y: 0, Width: 10, Height: 10})

	s.TrackWindow(bottom, 0)
	s.TrackWindow(middle, bottom.ID())
	s.TrackWindow(top, middle.ID())

	s.Preprocess(0)

	order := s.paintOrderBottomToTop()
	require.Len(t, order, 3)
	require.Equal(t, []xproto.Window{1, 2, 3}, []xproto.Window{order[0].ID(), order[1].ID(), order[2].ID()})
}

func TestPreprocessReapsFinishedDestroyingWindow(t *testing.T) {
	s := newTestSession()
	w := mappedWindow(s, 1, Geometry{X: 0, Y: 0, Width: 10, Height: 10})
	s.TrackWindow(w, 0)

	w.machine.Destroy(false) // unredirected destroy finishes immediately
	s.Preprocess(0)

	_, ok := s.Window(1)
	require.False(t, ok, "a finished Destroying window must be forgotten")
}

func TestPaintPresentsOncePerFrame(t *testing.T) {
	s := newTestSession()
	w := mappedWindow(s, 1, Geometry{X: 0, Y: 0, Width: 10, Height: 10})
	s.TrackWindow(w, 0)
	s.Preprocess(0)
	s.Redirected = true // Paint emits nothing while unredirected; force it on to test Present

	fb := s.Backend.(*fakeBackend)
	require.NoError(t, s.Paint(nil))
	require.Equal(t, 1, fb.presented)
}

func TestRedirectControllerStaysRedirectedWhileFading(t *testing.T) {
	s := newTestSession()
	w := NewWindow(s, 1, 1)
	w.Geometry = Geometry{X: 0, Y: 0, Width: 10, Height: 10}
	w.MapState = true
	s.TrackWindow(w, 0)
	w.machine.Map(1.0, true) // redirected map enters Mapping, i.e. fading in

	s.Preprocess(0)

	require.True(t, s.Redirected)
	require.False(t, s.UnredirPending)
}

func TestRedirectControllerArmsUnredirDelayWhenIdle(t *testing.T) {
	s := newTestSession()
	s.Config.UnredirIfPossible = true
	w := mappedWindow(s, 1, Geometry{X: 0, Y: 0, Width: 1920, Height: 1080})
	w.HasAlpha = false
	s.TrackWindow(w, 0)
	s.Redirected = true

	s.Preprocess(0)

	require.True(t, s.UnredirPending)

	s.UnredirTimerFired()
	require.False(t, s.Redirected)
}

func TestUnredirTimerCancelledByNewFade(t *testing.T) {
	s := newTestSession()
	s.Config.UnredirIfPossible = true
	w := mappedWindow(s, 1, Geometry{X: 0, Y: 0, Width: 1920, Height: 1080})
	s.TrackWindow(w, 0)
	s.Redirected = true

	s.Preprocess(0)
	require.True(t, s.UnredirPending)

	// Something now needs redirection again before the timer fires.
	w.machine.Retarget(0.5, true)
	s.Preprocess(10)
	require.False(t, s.UnredirPending)

	s.UnredirTimerFired()
	require.True(t, s.Redirected, "cancelled timer must not drop redirection")
}
