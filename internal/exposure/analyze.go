// Package exposure implements the per-pixel exposure/tone-correction engine.
package exposure

// Analysis holds the values derived from a single read-only pass over an
// image. It is computed once per image in auto mode and discarded afterwards.
type Analysis struct {
	AvgBrightness  float64
	MinBrightness  float64
	MaxBrightness  float64
	ContrastRange  float64
	AutoExposure   float64
	AutoBrightness float64
	AutoContrast   float64
}

// Thresholds that drive the automatic deltas. The exact values are part of
// the engine contract; changing them changes output pixels.
const (
	autoBrightnessDarkLimit   = 100.0
	autoBrightnessBrightLimit = 155.0
	autoBrightnessPivot       = 100.0
	autoBrightnessDivisor     = 2.0
	autoBrightnessCap         = 50.0

	autoContrastRangeLimit = 100.0
	autoContrastDivisor    = 2.0
	autoContrastCap        = 50.0

	autoExposureDarkLimit   = 80.0
	autoExposureBrightLimit = 175.0
	autoExposurePivot       = 80.0
	autoExposureDivisor     = 3.0
	autoExposureCap         = 30.0
)

// Analyze scans every pixel of an RGBA8 buffer once and derives the automatic
// exposure, brightness and contrast deltas. The buffer is not modified.
//
// Per-pixel brightness is the plain channel average (R+G+B)/3; the deltas are
// pure functions of the resulting average and min/max range, so a given image
// always yields the same analysis.
func Analyze(pix []uint8, width, height int) Analysis {
	pixelCount := width * height
	if pixelCount == 0 {
		return Analysis{
			AvgBrightness:  0,
			MinBrightness:  0,
			MaxBrightness:  0,
			ContrastRange:  0,
			AutoExposure:   0,
			AutoBrightness: 0,
			AutoContrast:   0,
		}
	}

	var sum float64

	minBrightness := 255.0
	maxBrightness := 0.0

	for offset := 0; offset+3 < len(pix); offset += 4 {
		brightness := (float64(pix[offset]) +
			float64(pix[offset+1]) +
			float64(pix[offset+2])) / 3.0

		sum += brightness
		minBrightness = min(minBrightness, brightness)
		maxBrightness = max(maxBrightness, brightness)
	}

	avg := sum / float64(pixelCount)
	contrastRange := maxBrightness - minBrightness

	return Analysis{
		AvgBrightness:  avg,
		MinBrightness:  minBrightness,
		MaxBrightness:  maxBrightness,
		ContrastRange:  contrastRange,
		AutoExposure:   autoExposureDelta(avg),
		AutoBrightness: autoBrightnessDelta(avg),
		AutoContrast:   autoContrastDelta(contrastRange),
	}
}

// autoBrightnessDelta lifts dark images and pulls down bright ones, capped at
// +/-50.
func autoBrightnessDelta(avg float64) float64 {
	if avg < autoBrightnessDarkLimit {
		return min(autoBrightnessCap, (autoBrightnessPivot-avg)/autoBrightnessDivisor)
	}

	if avg > autoBrightnessBrightLimit {
		return max(-autoBrightnessCap, (autoBrightnessPivot-avg)/autoBrightnessDivisor)
	}

	return 0
}

// autoContrastDelta widens a narrow brightness range, capped at +50. A wide
// range is left alone.
func autoContrastDelta(contrastRange float64) float64 {
	if contrastRange < autoContrastRangeLimit {
		return min(autoContrastCap, (autoContrastRangeLimit-contrastRange)/autoContrastDivisor)
	}

	return 0
}

// autoExposureDelta applies a photographic-stop correction for clearly under-
// or overexposed images, capped at +/-30.
func autoExposureDelta(avg float64) float64 {
	if avg < autoExposureDarkLimit {
		return min(autoExposureCap, (autoExposurePivot-avg)/autoExposureDivisor)
	}

	if avg > autoExposureBrightLimit {
		return max(-autoExposureCap, (autoExposurePivot-avg)/autoExposureDivisor)
	}

	return 0
}
