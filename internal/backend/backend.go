// Package backend defines the capability set the compositor's paint pass
// consumes polymorphically, per spec section 4.6. It mirrors the shape of
// a driver.Driver/driver.GPU split: a Backend is opened once per session
// and produces Image handles that the core treats as opaque.
package backend

import (
	"errors"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/vellumwm/vellum/internal/region"
)

// ErrUnsupported is returned by an operation a backend does not implement
// (e.g. the optional Fill debug path, or any method on a backend that is
// still a placeholder per spec section 1's "their internals are not
// [specified]").
var ErrUnsupported = errors.New("backend: operation not supported")

// ErrBind is returned when binding a pixmap as an image fails. Per spec
// section 7, this is locally recoverable: the caller marks the affected
// window IMAGE_ERROR and continues.
var ErrBind = errors.New("backend: pixmap bind failed")

// Image is an opaque, backend-owned handle to bound pixel storage (either
// a picture wrapping a redirected pixmap, or a GPU texture). The core
// never inspects it beyond passing it back into the Backend that produced
// it. It carries no methods so that each concrete backend package (which
// necessarily lives outside package backend, to avoid a dependency cycle
// with BurntSushi/xgb/render et al.) can define its own image type.
type Image interface{}

// ImageOp enumerates the batch pixel operations of spec section 4.6's
// image_op.
type ImageOp int

const (
	InvertColorAll ImageOp = iota
	DimAll
	ApplyAlpha
	ApplyAlphaAll
	ResizeTile
)

// ImageOpArgs carries the operation-specific parameters for ImageOp.
// Only the fields relevant to op need to be set; backends ignore the
// rest.
type ImageOpArgs struct {
	Alpha        float64 // ApplyAlpha, ApplyAlphaAll, DimAll
	DimColor     [4]uint16
	ResizeWidth  int
	ResizeHeight int
}

// VisualInfo carries the pixel-format information BindPixmap needs to
// build a correctly-typed picture/texture (depth, whether the visual
// carries an alpha channel).
type VisualInfo struct {
	Depth    uint8
	HasAlpha bool
	Visual   xproto.Visualid
}

// Color is a straightforward RGBA color used by the optional Fill debug
// operation.
type Color struct {
	R, G, B, A uint16
}

// Kernel is a precomputed convolution kernel (e.g. a Gaussian shadow
// kernel), row-major, Width*Height entries.
type Kernel struct {
	Width, Height int
	Data          []float64
}

// Session is the subset of compositor.Session a Backend needs at Init
// time: the X connection details and target window. It is defined here,
// rather than imported from internal/compositor, to avoid a dependency
// cycle (compositor depends on backend, not the reverse).
type Session struct {
	Conn          Conn
	Root          xproto.Window
	OverlayWindow xproto.Window // 0 if no overlay was acquired
	RootWidth     uint16
	RootHeight    uint16
}

// Conn is the minimal connection surface a Backend needs; internal/xconn
// satisfies it.
type Conn interface {
	XGBConn() any
}

// Backend is the capability set of spec section 4.6. Implementations
// must be safe to use from the single compositor loop goroutine only;
// nothing here needs to be concurrency-safe.
type Backend interface {
	// Deinit releases everything Init acquired.
	Deinit()

	// BindPixmap wraps an already-redirected pixmap as a paintable Image.
	// owned indicates whether the backend should free the underlying
	// pixmap when the Image is released (true for pixmaps the backend
	// itself allocated, e.g. the root tile).
	BindPixmap(pixmap xproto.Pixmap, vi VisualInfo, owned bool) (Image, error)

	// ReleaseImage frees a previously bound image.
	ReleaseImage(img Image)

	// Compose draws img at (dstX, dstY), clipped to regPaint (authoritative)
	// and optionally accelerated by regVisible (a hint; ignoring it must
	// still produce correct output, per section 4.6's contract notes).
	Compose(img Image, dstX, dstY int32, regPaint, regVisible *region.Region)

	// RenderShadow rasterizes a drop shadow of size w x h using kernel,
	// tinted (r,g,b,a).
	RenderShadow(w, h int, kernel *Kernel, r, g, b, a uint16) (Image, error)

	// Blur applies the backend's configured convolution passes to the
	// current back buffer within regBlur, respecting opacity, and reports
	// whether it did anything (false if blur is unsupported/disabled).
	Blur(opacity float64, regBlur, regVisible *region.Region) bool

	// Fill is optional, used only for debug overlays; backends that don't
	// support it return ErrUnsupported.
	Fill(c Color, reg *region.Region) error

	// Present flips/copies the back buffer to the screen.
	Present()

	// ImageOp performs one of the batch pixel operations of ImageOp on
	// img, within regOp (clipped by regVisible as a hint), and reports
	// success.
	ImageOp(op ImageOp, img Image, regOp, regVisible *region.Region, args ImageOpArgs) bool

	// IsImageTransparent reports whether img carries any pixels with
	// alpha < 1, used to decide SOLID vs TRANS painting.
	IsImageTransparent(img Image) bool

	// BufferAge returns how many Present calls ago the current back
	// buffer was the front buffer (1 meaning "just presented"), or -1 if
	// the buffer is uninitialized/empty.
	BufferAge() int

	// MaxBufferAge is the static buffer-age ceiling the damage ring is
	// sized to.
	MaxBufferAge() int
}

// RootChanger is implemented by backends that can adapt in place to a
// root geometry change (spec section 4.6: "root_change ... optional; if
// absent, core deinits and reinits on root geometry change").
type RootChanger interface {
	RootChange(sess Session) (Backend, error)
}

// EventIntegration lets a backend hook directly into the event loop for
// backend-internal bookkeeping (e.g. GPU fence callbacks); optional.
type EventIntegration interface {
	HandleEvents()
	SetReadyCallback(cb func())
}

// Opener constructs a Backend for a session, implementing spec section
// 4.6's init operation. Each concrete backend package registers one of
// these via Register.
type Opener func(sess Session) (Backend, error)

var openers = map[string]Opener{}

// Register makes a named backend available to session setup. Concrete
// backend packages call this from an init func, mirroring the
// driver.Register pattern used for pluggable GPU backends elsewhere in
// the ecosystem.
func Register(name string, open Opener) {
	openers[name] = open
}

// Open looks up a registered backend by name and opens it.
func Open(name string, sess Session) (Backend, error) {
	open, ok := openers[name]
	if !ok {
		return nil, errors.New("backend: unknown backend " + name)
	}
	return open(sess)
}

// Names returns the currently registered backend names, for CLI/config
// validation and error messages.
func Names() []string {
	names := make([]string, 0, len(openers))
	for n := range openers {
		names = append(names, n)
	}
	return names
}
