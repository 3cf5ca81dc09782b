package shadow

import (
	"image"
	"image/color"

	"github.com/anthonynsimon/bild/blur"

	"github.com/vellumwm/vellum/internal/backend"
)

// Rasterize builds the raw shadow pixels for a w x h window: a solid
// alpha-channel rectangle tinted (r,g,b,a), blurred by radius so its
// edges fall off the way BuildKernel's Gaussian does. Backends without a
// native convolution filter (spec section 4.6's RenderShadow) call this
// to get software-rasterized pixels to upload as a Picture/texture,
// grounding the CPU blur path on bild's separable Gaussian rather than
// hand-rolling convolution.
//
// radius is in source pixels, consistent with the radius BuildKernel
// took; Cache keys are independent of the rasterization method so a
// software-rasterized shadow and a GPU-convolved one share the same
// cache slot as long as their geometry and tint match.
func Rasterize(w, h, radius int, r, g, b, a uint16) *image.RGBA {
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	src := image.NewRGBA(image.Rect(0, 0, w, h))
	tint := color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: uint8(a >> 8)}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			src.SetRGBA(x, y, tint)
		}
	}
	if radius < 1 {
		return src
	}
	return blur.Gaussian(src, float64(radius)/gaussianRadius)
}

// RasterizeFromKernel is a convenience wrapper for callers that only have
// a *backend.Kernel (as returned by BuildKernel) on hand and want to
// recover the radius it was built for.
func RasterizeFromKernel(k *backend.Kernel, w, h int, r, g, b, a uint16) *image.RGBA {
	radius := (k.Width - 1) / 2
	return Rasterize(w, h, radius, r, g, b, a)
}
