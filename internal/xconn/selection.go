package xconn

import (
	"fmt"
	"strconv"

	"github.com/BurntSushi/xgb/xproto"
)

// AcquireCMSelection creates a throwaway input-only window and sets it
// as the owner of _NET_WM_CM_S<screen>, the standard handshake other
// clients use to detect "a compositor is running" and, via
// SelectionClear, to detect when it stops (spec section 4.8's
// "SelectionClear on our CM selection -> exit with an error").
func (c *Conn) AcquireCMSelection(root xproto.Window, screen int) (owner xproto.Window, atom xproto.Atom, err error) {
	atomName := "_NET_WM_CM_S" + strconv.Itoa(screen)
	atomReply, err := xproto.InternAtom(c.X, false, uint16(len(atomName)), atomName).Reply()
	if err != nil {
		return 0, 0, fmt.Errorf("xconn: intern %s: %w", atomName, err)
	}

	win, err := xproto.NewWindowId(c.X)
	if err != nil {
		return 0, 0, fmt.Errorf("xconn: allocate selection window id: %w", err)
	}
	screenInfo := xproto.Setup(c.X).DefaultScreen(c.X)
	err = xproto.CreateWindowChecked(
		c.X, screenInfo.RootDepth, win, root,
		-1, -1, 1, 1, 0,
		xproto.WindowClassInputOnly, screenInfo.RootVisual, 0, nil,
	).Check()
	if err != nil {
		return 0, 0, fmt.Errorf("xconn: create selection window: %w", err)
	}

	if err := xproto.SetSelectionOwnerChecked(c.X, win, atomReply.Atom, xproto.TimeCurrentTime).Check(); err != nil {
		return 0, 0, fmt.Errorf("xconn: SetSelectionOwner %s: %w", atomName, err)
	}
	return win, atomReply.Atom, nil
}

// ReleaseCMSelection destroys the selection-owner window, implicitly
// releasing the selection so the next compositor to start can acquire
// it without waiting for a timeout.
func (c *Conn) ReleaseCMSelection(owner xproto.Window) error {
	return xproto.DestroyWindowChecked(c.X, owner).Check()
}

// Geometry reads a window's current geometry, used when building the
// initial Window record for each child QueryTree returns.
func (c *Conn) Geometry(w xproto.Window) (x, y int32, width, height, borderWidth uint16, err error) {
	reply, err := xproto.GetGeometry(c.X, xproto.Drawable(w)).Reply()
	if err != nil {
		return 0, 0, 0, 0, 0, fmt.Errorf("xconn: GetGeometry: %w", err)
	}
	return int32(reply.X), int32(reply.Y), reply.Width, reply.Height, reply.BorderWidth, nil
}

// IsViewable reports a window's current map state, used alongside
// QueryTree to seed MapState correctly for windows that were already
// mapped before the compositor started.
func (c *Conn) IsViewable(w xproto.Window) (bool, error) {
	reply, err := xproto.GetWindowAttributes(c.X, w).Reply()
	if err != nil {
		return false, fmt.Errorf("xconn: GetWindowAttributes: %w", err)
	}
	return reply.MapState == xproto.MapStateViewable, nil
}

// SelectInput registers w for the event mask spec section 3 requires
// (property and structure notifications), per xprop.EventMask.
func (c *Conn) SelectInput(w xproto.Window, mask uint32) error {
	return xproto.ChangeWindowAttributesChecked(c.X, w, xproto.CwEventMask, []uint32{mask}).Check()
}
