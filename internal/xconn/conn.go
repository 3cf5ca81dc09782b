// Package xconn wraps the raw X11 wire connection and the extension
// bindings spec section 6 requires (Composite, Damage, XFixes, Render)
// plus the optional Shape and RandR. Connect does not set HasXinerama,
// HasPresent or HasSync.
package xconn

import (
	"fmt"
	"log"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/composite"
	"github.com/BurntSushi/xgb/damage"
	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/render"
	"github.com/BurntSushi/xgb/shape"
	"github.com/BurntSushi/xgb/xfixes"
	"github.com/BurntSushi/xgb/xproto"
)

// Required minimum Composite extension version, per spec section 6
// ("Composite (>= 0.2, REDIRECT_MANUAL)").
const (
	compositeMajor, compositeMinor = 0, 2
)

// Conn owns the xgb connection and the extension query results the rest
// of the compositor consults. It satisfies backend.Conn.
type Conn struct {
	X *xgb.Conn

	HasShape, HasRandR, HasXinerama, HasPresent, HasSync bool

	Ignore IgnoreQueue
}

// XGBConn implements backend.Conn.
func (c *Conn) XGBConn() any { return c.X }

// Connect opens the X11 connection and verifies/binds the required and
// optional extensions named in spec section 6. Missing required
// extensions are fatal per spec section 7; missing optional ones degrade
// with a warning.
func Connect(display string) (*Conn, error) {
	x, err := xgb.NewConnDisplay(display)
	if err != nil {
		return nil, fmt.Errorf("xconn: connect: %w", err)
	}

	c := &Conn{X: x}

	if err := composite.Init(x); err != nil {
		return nil, fmt.Errorf("xconn: Composite extension required: %w", err)
	}
	ver, err := composite.QueryVersion(x, compositeMajor, compositeMinor).Reply()
	if err != nil {
		return nil, fmt.Errorf("xconn: Composite QueryVersion: %w", err)
	}
	if ver.MajorVersion == 0 && ver.MinorVersion < compositeMinor {
		return nil, fmt.Errorf("xconn: Composite extension too old: got %d.%d, need >= %d.%d",
			ver.MajorVersion, ver.MinorVersion, compositeMajor, compositeMinor)
	}

	if err := damage.Init(x); err != nil {
		return nil, fmt.Errorf("xconn: Damage extension required: %w", err)
	}
	if err := xfixes.Init(x); err != nil {
		return nil, fmt.Errorf("xconn: XFixes extension required: %w", err)
	}
	if err := render.Init(x); err != nil {
		return nil, fmt.Errorf("xconn: Render extension required: %w", err)
	}

	if err := shape.Init(x); err != nil {
		log.Printf("xconn: Shape extension unavailable, bounding-shape features degraded: %v\n", err)
	} else {
		c.HasShape = true
	}
	if err := randr.Init(x); err != nil {
		log.Printf("xconn: RandR extension unavailable, multi-screen refresh tracking degraded: %v\n", err)
	} else {
		c.HasRandR = true
	}

	return c, nil
}

// Close releases the connection.
func (c *Conn) Close() {
	c.X.Close()
}

// Root returns the default screen's root window and its current
// dimensions.
func (c *Conn) Root() (xproto.Window, uint16, uint16) {
	screen := xproto.Setup(c.X).DefaultScreen(c.X)
	return screen.Root, screen.WidthInPixels, screen.HeightInPixels
}
