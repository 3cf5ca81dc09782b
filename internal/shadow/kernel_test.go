package shadow

import (
	"math"
	"testing"
)

func TestBuildKernelIsNormalizedGaussian(t *testing.T) {
	k := BuildKernel(4)
	if k.Width != 9 || k.Height != 9 {
		t.Fatalf("expected a 9x9 kernel for radius 4, got %dx%d", k.Width, k.Height)
	}
	var sum float64
	center := k.Width/2*k.Width + k.Width/2
	for i, v := range k.Data {
		sum += v
		if i != center && v >= k.Data[center] {
			t.Fatalf("expected the center to be the largest tap: center=%v tap %d=%v", k.Data[center], i, v)
		}
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Fatalf("expected the kernel weights to sum to 1, got %v", sum)
	}
}

func TestBlurKernelCenterWeightGrowsAsOpacityFalls(t *testing.T) {
	opaque := BuildBlurKernel(1.0).Data[4]
	half := BuildBlurKernel(0.5).Data[4]
	if !(half > opaque) {
		t.Fatalf("expected a larger center weight at lower opacity: opacity 1.0=%v opacity 0.5=%v", opaque, half)
	}
}

func TestCacheRoundTrip(t *testing.T) {
	c, err := NewCache(2)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	img := fakeShadowImage{}
	c.Put(100, 50, 0, 0, 0, 0xc000, img)

	got, ok := c.Get(100, 50, 0, 0, 0, 0xc000)
	if !ok || got != img {
		t.Fatalf("expected cached shadow image to round-trip")
	}

	_, ok = c.Get(999, 999, 0, 0, 0, 0xc000)
	if ok {
		t.Fatalf("expected a miss for an unrelated size")
	}
}

type fakeShadowImage struct{}
