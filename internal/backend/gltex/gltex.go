// Package gltex is a placeholder for the second concrete rendering
// backend spec section 1 mentions ("a GPU texture pipeline") and section
// 4.6's "their internals are not [specified]." It implements backend.Backend
// fully enough to register, be selected, and satisfy the interface at
// compile time; every drawing operation returns backend.ErrUnsupported (or
// a harmless zero value) until a real GL context is wired in. It does not
// implement backend.RootChanger, and internal/compositor's tests use their
// own fake backend rather than this one.
package gltex

import (
	"fmt"

	"github.com/BurntSushi/xgb/xproto"

	"github.com/vellumwm/vellum/internal/backend"
	"github.com/vellumwm/vellum/internal/region"
)

func init() {
	backend.Register("gltex", Open)
}

type image struct{ id uint32 }

// Backend is the gltex placeholder implementation.
type Backend struct {
	sess backend.Session
	next uint32
}

// Open implements backend.Opener. It never fails: acquiring a GL context
// is deferred to the first real drawing call, at which point every method
// below currently returns backend.ErrUnsupported.
func Open(sess backend.Session) (backend.Backend, error) {
	return &Backend{sess: sess}, nil
}

func (b *Backend) Deinit() {}

func (b *Backend) BindPixmap(pixmap xproto.Pixmap, vi backend.VisualInfo, owned bool) (backend.Image, error) {
	return nil, fmt.Errorf("gltex: %w (EGL/GLX texture-from-pixmap not wired in this build)", backend.ErrUnsupported)
}

func (b *Backend) ReleaseImage(img backend.Image) {}

func (b *Backend) Compose(img backend.Image, dstX, dstY int32, regPaint, regVisible *region.Region) {
}

func (b *Backend) RenderShadow(w, h int, kernel *backend.Kernel, r, g, bch, a uint16) (backend.Image, error) {
	return nil, backend.ErrUnsupported
}

func (b *Backend) Blur(opacity float64, regBlur, regVisible *region.Region) bool { return false }

func (b *Backend) Fill(c backend.Color, reg *region.Region) error { return backend.ErrUnsupported }

func (b *Backend) Present() {}

func (b *Backend) ImageOp(op backend.ImageOp, img backend.Image, regOp, regVisible *region.Region, args backend.ImageOpArgs) bool {
	return false
}

func (b *Backend) IsImageTransparent(img backend.Image) bool { return false }

func (b *Backend) BufferAge() int { return -1 }

func (b *Backend) MaxBufferAge() int { return 2 }
