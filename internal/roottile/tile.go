// Package roottile resolves and paints the desktop background tile spec
// section 4's paint pass calls "root tile": either the pixmap named by
// _XROOTPMAP_ID/_XSETROOT_ID, or a solid fallback fill when neither root
// property is set.
package roottile

import (
	"github.com/BurntSushi/xgb/xproto"

	"github.com/vellumwm/vellum/internal/backend"
	"github.com/vellumwm/vellum/internal/region"
)

// FallbackColor is painted when the root window carries no recognizable
// background pixmap property, matching most window managers' plain-gray
// default desktop.
var FallbackColor = backend.Color{R: 0x2020, G: 0x2020, B: 0x2020, A: 0xffff}

// Tile holds the bound root background image, rebuilt whenever
// PropertyNotify on the root window reports the background atoms
// changed, per spec section 4.8's event table entry for it.
type Tile struct {
	image  backend.Image
	owned  bool
	width  uint16
	height uint16
}

// Resolve binds pixmap (0 meaning "none found") as the new root tile,
// falling back to a solid Fill-painted tile of the given root geometry
// when pixmap is 0 or the bind fails.
func Resolve(be backend.Backend, pixmap xproto.Pixmap, width, height uint16) *Tile {
	t := &Tile{width: width, height: height}
	if pixmap != 0 {
		img, err := be.BindPixmap(pixmap, backend.VisualInfo{}, false)
		if err == nil {
			t.image = img
			return t
		}
	}
	t.owned = true
	return t
}

// Release frees any backend resources the tile holds, called before
// Resolve produces a replacement.
func (t *Tile) Release(be backend.Backend) {
	if t.image != nil {
		be.ReleaseImage(t.image)
		t.image = nil
	}
}

// Paint draws the tile across the full root region, clipped to repaint
// (nil meaning "the whole screen").
func (t *Tile) Paint(be backend.Backend, repaint *region.Region) {
	full := region.FromRect(region.Rect{X: 0, Y: 0, W: int32(t.width), H: int32(t.height)})
	defer full.Unref()

	clip := full
	if repaint != nil {
		clip = full.Intersect(repaint)
		defer clip.Unref()
	}

	if t.image != nil {
		be.Compose(t.image, 0, 0, clip, nil)
		return
	}
	// No root pixmap resolved: fill with the solid fallback rather than
	// leaving whatever the backend's back buffer already held.
	_ = be.Fill(FallbackColor, clip)
}
