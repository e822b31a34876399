package audio

import "math"

const (
	// minVolumeExp is the effects.Volume exponent (base 2) at 1%.
	minVolumeExp = -7.0
	// volumeCurve shapes the percent scale so low settings stay audible.
	volumeCurve = 0.5
)

// percentToExponent maps 0-100% onto an effects.Volume exponent with base 2.
// 100% is unity gain.
func percentToExponent(p int) float64 {
	if p <= 0 {
		return minVolumeExp
	}
	if p >= 100 {
		return 0
	}
	adjusted := math.Pow(float64(p)/100.0, volumeCurve)
	return (1.0 - adjusted) * minVolumeExp
}
