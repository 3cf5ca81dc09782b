package shadow

import "github.com/vellumwm/vellum/internal/backend"

// BuildBlurKernel returns the 3x3 convolution kernel blur_background
// uses, per spec section 4.5 step 4: all eight neighbors weighted 1, the
// center weighted 8*p/(1.1-p) where p = 1 - opacity*(1-1/9), then
// normalized to sum to 1. Callers pass opacity=1 for blur_background_fixed,
// which disables the opacity-driven center-weight adjustment.
func BuildBlurKernel(opacity float64) *backend.Kernel {
	p := 1 - opacity*(1-1.0/9.0)
	center := 8 * p / (1.1 - p)

	data := []float64{
		1, 1, 1,
		1, center, 1,
		1, 1, 1,
	}
	var sum float64
	for _, v := range data {
		sum += v
	}
	for i := range data {
		data[i] /= sum
	}
	return &backend.Kernel{Width: 3, Height: 3, Data: data}
}
