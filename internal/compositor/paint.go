package compositor

import (
	"github.com/BurntSushi/xgb/xproto"

	"github.com/vellumwm/vellum/internal/backend"
	"github.com/vellumwm/vellum/internal/region"
)

// maxBlurPass is spec section 4.5 step 4's MAX_BLUR_PASS.
const maxBlurPass = 4

// Paint implements spec section 4.4's paint pass: it walks the paint list
// Preprocess built, bottom to top, compositing each window's shadow, body
// and dim layer in turn, then presents the frame.
//
// repaint is the damage region to redraw, in root coordinates, as
// resolved from the damage ring via backend.BufferAge; a nil repaint
// means "redraw everything."
func (s *Session) Paint(repaint *region.Region) error {
	if s.Backend == nil {
		return nil
	}
	if !s.Redirected {
		// Testable invariant: redirected==false emits no paint at all —
		// windows render directly and the backend's back buffer must not
		// be touched while redir_stop has it torn down.
		return nil
	}

	if s.RootTile != nil {
		s.RootTile.Paint(s.Backend, repaint)
	}

	order := s.paintOrderBottomToTop()

	for _, w := range order {
		if !w.ToPaint {
			continue
		}
		if w.StaleImage {
			if err := s.rebindImage(w); err != nil {
				s.logf("window %v: rebind failed: %v", w.ID(), err)
				w.ImageError = true
				continue
			}
			w.StaleImage = false
		}
		if w.Image == nil {
			continue
		}

		winRegion := windowRegion(w)
		paintReg := winRegion
		if repaint != nil {
			paintReg = winRegion.Intersect(repaint)
		}
		if w.regIgnoreValid && w.regIgnore != nil && !w.regIgnore.IsEmpty() {
			culled := paintReg.Subtract(w.regIgnore)
			if paintReg != winRegion {
				paintReg.Unref()
			}
			paintReg = culled
		}

		if w.ShadowFlag {
			s.paintShadow(w, paintReg)
		}
		s.paintBody(w, paintReg)
		if w.Dim {
			s.paintDim(w, paintReg)
		}

		if paintReg != winRegion {
			paintReg.Unref()
		}
		winRegion.Unref()
	}

	s.Backend.Present()
	return nil
}

// paintOrderBottomToTop reverses Preprocess's top-to-bottom prevTrans
// chain into a bottom-to-top slice, since X stacking order and natural
// painting order run opposite ways.
func (s *Session) paintOrderBottomToTop() []*Window {
	var topToBottom []*Window
	for w := s.paintHead; w != nil; w = w.prevTrans {
		topToBottom = append(topToBottom, w)
	}
	out := make([]*Window, len(topToBottom))
	for i, w := range topToBottom {
		out[len(topToBottom)-1-i] = w
	}
	return out
}

// rebindImage releases any stale backend image and binds the window's
// current contents pixmap, per spec section 4.6's BindPixmap contract.
func (s *Session) rebindImage(w *Window) error {
	if w.Image != nil {
		s.Backend.ReleaseImage(w.Image)
		w.Image = nil
	}
	vi := backend.VisualInfo{HasAlpha: w.HasAlpha}
	img, err := s.Backend.BindPixmap(xproto.Pixmap(w.id), vi, false)
	if err != nil {
		return err
	}
	w.Image = img
	w.HasAlpha = s.Backend.IsImageTransparent(img)
	return nil
}

// paintShadow composes w's precomputed shadow image beneath its body,
// per spec section 4.5/L. The shadow is faded at the same opacity as the
// window itself via ApplyAlphaAll, since Compose has no opacity
// parameter of its own.
func (s *Session) paintShadow(w *Window, paintReg *region.Region) {
	if w.ShadowImage == nil {
		return
	}
	if w.ShadowOpacity < 1.0 {
		s.Backend.ImageOp(backend.ApplyAlphaAll, w.ShadowImage, nil, nil, backend.ImageOpArgs{Alpha: w.ShadowOpacity})
	}
	s.Backend.Compose(w.ShadowImage, w.Geometry.X, w.Geometry.Y, paintReg, nil)
}

// blurApplies reports whether w qualifies for blur_background, per spec
// section 4.5 step 4: not fully SOLID, or the frame is translucent and
// blur_background_frame is configured.
func (s *Session) blurApplies(w *Window) bool {
	if !w.BlurBackground {
		return false
	}
	if w.Mode != ModeSolid {
		return true
	}
	return s.Config.BlurBackgroundFrame && w.Mode == ModeFrameTrans
}

// paintBody composes w's bound window image at its current opacity. If
// blur_background applies, the intermediate buffer under the window is
// blurred first, per spec section 4.5 step 4, up to MAX_BLUR_PASS passes.
func (s *Session) paintBody(w *Window, paintReg *region.Region) {
	if s.blurApplies(w) {
		opacity := w.Opacity()
		if s.Config.BlurBackgroundFixed {
			opacity = 1.0
		}
		passes := s.Config.BlurKernelPasses
		if passes > maxBlurPass {
			passes = maxBlurPass
		}
		for i := 0; i < passes; i++ {
			s.Backend.Blur(opacity, paintReg, nil)
		}
	}
	if op := w.Opacity(); op < 1.0 {
		s.Backend.ImageOp(backend.ApplyAlphaAll, w.Image, nil, nil, backend.ImageOpArgs{Alpha: op})
	}
	if w.InvertColor {
		s.Backend.ImageOp(backend.InvertColorAll, w.Image, nil, nil, backend.ImageOpArgs{})
	}
	s.Backend.Compose(w.Image, w.Geometry.X, w.Geometry.Y, paintReg, nil)
}

// paintDim darkens w's body by a translucent black rectangle of alpha
// inactive_dim * (dim_fixed ? 1 : opacity), per spec section 4.5 step 4.
func (s *Session) paintDim(w *Window, paintReg *region.Region) {
	alpha := s.Config.InactiveDim
	if !s.Config.DimFixed {
		alpha *= w.Opacity()
	}
	args := backend.ImageOpArgs{Alpha: alpha, DimColor: [4]uint16{0, 0, 0, uint16(alpha * 0xffff)}}
	s.Backend.ImageOp(backend.DimAll, w.Image, paintReg, nil, args)
}
