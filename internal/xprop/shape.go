package xprop

import (
	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/shape"
	"github.com/BurntSushi/xgb/xproto"

	"github.com/vellumwm/vellum/internal/region"
)

// BoundingShape queries a window's bounding-shape rectangles via the
// Shape extension, in window-local coordinates, per spec section 3's
// "bounding shape (region in window-local coordinates)". If the Shape
// extension is unavailable, callers should fall back to the window's
// full geometry rectangle.
func BoundingShape(conn *xgb.Conn, w xproto.Window) (*region.Region, error) {
	reply, err := shape.GetRectangles(conn, xproto.Drawable(w), shape.SkBounding).Reply()
	if err != nil {
		return nil, err
	}
	rects := make([]region.Rect, 0, len(reply.Rectangles))
	for _, r := range reply.Rectangles {
		rects = append(rects, region.Rect{X: int32(r.X), Y: int32(r.Y), W: int32(r.Width), H: int32(r.Height)})
	}
	return region.FromRects(rects), nil
}

// EventMask builds the cursor-of-event-masks spec section 3 references:
// the set of X event types the compositor must select on a newly
// registered window so property/shape/configure changes reach the event
// dispatcher.
func EventMask() uint32 {
	return uint32(xproto.EventMaskPropertyChange | xproto.EventMaskStructureNotify)
}
