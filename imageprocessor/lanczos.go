package imageprocessor

import (
	"math"

	"golang.org/x/image/draw"
)

// Lanczos3 is a windowed-sinc resampling kernel with three lobes. The draw
// package widens the kernel support when downscaling, so shrinking a large
// photo to the model input does not alias.
var Lanczos3 = &draw.Kernel{Support: 3, At: lanczos3}

func lanczos3(t float64) float64 {
	if t == 0 {
		return 1
	}
	if t >= 3 {
		return 0
	}
	pt := math.Pi * t
	return 3 * math.Sin(pt) * math.Sin(pt/3) / (pt * pt)
}
