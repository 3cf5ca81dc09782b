package xconn

import (
	"fmt"

	"github.com/BurntSushi/xgb/composite"
	"github.com/BurntSushi/xgb/shape"
	"github.com/BurntSushi/xgb/xproto"
)

// RedirectSubwindows puts the whole screen under manual compositor
// control, per spec section 6's "Composite (>= 0.2, REDIRECT_MANUAL)."
// Manual mode means the core owns exactly when each window's contents
// pixmap is refreshed, rather than the server doing it automatically.
func (c *Conn) RedirectSubwindows(root xproto.Window) error {
	return composite.RedirectSubwindowsChecked(c.X, root, composite.RedirectManual).Check()
}

// UnredirectSubwindows releases screen-wide redirection, used on
// shutdown and by the redirect controller's "go unredirected" path when
// REDIRECT_MANUAL still lets individual windows be addressed directly.
func (c *Conn) UnredirectSubwindows(root xproto.Window) error {
	return composite.UnredirectSubwindowsChecked(c.X, root, composite.RedirectManual).Check()
}

// AcquireOverlay creates (or reuses) the composite overlay window on
// root, the surface the backend paints into so window contents never
// flash through to the real screen, per spec section 3's "overlay
// window."
func (c *Conn) AcquireOverlay(root xproto.Window) (xproto.Window, error) {
	reply, err := composite.GetOverlayWindow(c.X, root).Reply()
	if err != nil {
		return 0, fmt.Errorf("xconn: GetOverlayWindow: %w", err)
	}
	return reply.OverlayWin, nil
}

// ReleaseOverlay gives the overlay window back to the server.
func (c *Conn) ReleaseOverlay(root xproto.Window) error {
	return composite.ReleaseOverlayWindowChecked(c.X, root).Check()
}

// SetOverlayInputShape empties the overlay window's bounding and input
// shapes, per spec section 6: the overlay must let clicks pass through to
// the windows it is drawn over rather than intercepting them itself. A
// no-op when the Shape extension is unavailable (HasShape false); the
// overlay then stays click-opaque, degraded the same way bounding-shape
// reads degrade elsewhere in this package.
func (c *Conn) SetOverlayInputShape(overlay xproto.Window) error {
	if !c.HasShape {
		return nil
	}
	const orderingUnsorted = 0 // xproto's ClipOrdering "Unsorted", shared by the Shape extension's Rectangles request
	for _, kind := range []byte{shape.SkBounding, shape.SkInput} {
		err := shape.RectanglesChecked(
			c.X, shape.SoSet, kind, orderingUnsorted,
			overlay, 0, 0, nil,
		).Check()
		if err != nil {
			return fmt.Errorf("xconn: set overlay %v shape: %w", kind, err)
		}
	}
	return nil
}

// MapWindow maps w, used by the redirect controller to map the overlay
// window on redir_start.
func (c *Conn) MapWindow(w xproto.Window) error {
	return xproto.MapWindowChecked(c.X, w).Check()
}

// UnmapWindow unmaps w, used by the redirect controller to unmap the
// overlay window on redir_stop.
func (c *Conn) UnmapWindow(w xproto.Window) error {
	return xproto.UnmapWindowChecked(c.X, w).Check()
}

// NameWindowPixmap names a fresh contents pixmap for w through Composite's
// NameWindowPixmap request. No caller in this module uses it; the
// compositor's rebindImage binds the window id directly.
func (c *Conn) NameWindowPixmap(w xproto.Window) (xproto.Pixmap, error) {
	pixmap, err := xproto.NewPixmapId(c.X)
	if err != nil {
		return 0, fmt.Errorf("xconn: allocate pixmap id: %w", err)
	}
	if err := composite.NameWindowPixmapChecked(c.X, w, pixmap).Check(); err != nil {
		return 0, fmt.Errorf("xconn: NameWindowPixmap: %w", err)
	}
	return pixmap, nil
}

// QueryTree enumerates root's current children bottom to top (the order
// XQueryTree returns them in), for the initial window-stack population
// spec section 4's lifecycle names: "Created on CreateNotify / initial
// query tree."
func (c *Conn) QueryTree(root xproto.Window) ([]xproto.Window, error) {
	reply, err := xproto.QueryTree(c.X, root).Reply()
	if err != nil {
		return nil, fmt.Errorf("xconn: QueryTree: %w", err)
	}
	return reply.Children, nil
}
