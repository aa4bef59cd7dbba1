// Package exposure implements the per-pixel exposure/tone-correction engine.
package exposure

import "math"

// Pipeline constants. The midpoint partitions highlights from shadows and is
// the pivot for contrast scaling; the luminance weights are the usual
// perceptual ones.
const (
	channelMax = 255.0
	midpoint   = 128.0

	percentScale = 100.0

	lumWeightR = 0.299
	lumWeightG = 0.587
	lumWeightB = 0.114

	hdrBoostStrength     = 0.3
	lowlightLumLimit     = 100.0
	overexposedLumLimit  = 200.0
	overexposedReduction = 0.7
)

// deltas are the effective per-stage adjustments for one run, combining the
// manual settings with the automatic analysis.
type deltas struct {
	brightnessFactor float64
	contrastFactor   float64
	exposureFactor   float64
	highlightsFactor float64
	shadowsFactor    float64
	hasBrightness    bool
	hasContrast      bool
	hasExposure      bool
	hasHighlights    bool
	hasShadows       bool
}

// Correct applies the exposure-correction pipeline to an RGBA8 buffer in
// place. The buffer is a flat [R,G,B,A,...] sequence of width*height pixels;
// the alpha channel is never modified.
//
// In auto mode the automatic deltas are derived from a one-pass analysis of
// the buffer; for every other mode they are zero. The per-pixel stages run in
// a fixed order, brightness, contrast, exposure, highlights, shadows, then
// the mode tone curve, and each stage consumes the previous stage's clamped
// output. The 128 midpoint threshold is shared by the highlight and shadow
// stages, so contrast can push a value just under the midpoint and the shadow
// stage then picks it up; callers rely on that interaction.
func Correct(pix []uint8, width, height int, settings Settings) {
	analysis := Analysis{
		AvgBrightness:  0,
		MinBrightness:  0,
		MaxBrightness:  0,
		ContrastRange:  0,
		AutoExposure:   0,
		AutoBrightness: 0,
		AutoContrast:   0,
	}
	if settings.Mode == ModeAuto {
		analysis = Analyze(pix, width, height)
	}

	CorrectWithAnalysis(pix, width, height, settings, analysis)
}

// CorrectWithAnalysis is Correct with a caller-supplied analysis. It allows
// the analysis pass to be reused or replayed; pass a zero Analysis for the
// non-auto modes.
func CorrectWithAnalysis(
	pix []uint8,
	width, height int,
	settings Settings,
	analysis Analysis,
) {
	d := newDeltas(settings, analysis)

	pixelCount := width * height
	for i := range pixelCount {
		offset := i * 4

		r := float64(pix[offset])
		g := float64(pix[offset+1])
		b := float64(pix[offset+2])

		r, g, b = applyAdjustments(r, g, b, d)
		r, g, b = applyToneCurve(r, g, b, settings.Mode)

		pix[offset] = uint8(math.Round(r))
		pix[offset+1] = uint8(math.Round(g))
		pix[offset+2] = uint8(math.Round(b))
	}
}

// newDeltas folds the manual settings and automatic analysis into per-stage
// factors, computed once per run rather than once per pixel.
func newDeltas(settings Settings, analysis Analysis) deltas {
	brightness := float64(settings.Brightness) + analysis.AutoBrightness
	contrast := float64(settings.Contrast) + analysis.AutoContrast
	exposure := float64(settings.Exposure) + analysis.AutoExposure

	return deltas{
		brightnessFactor: 1 + brightness/percentScale,
		contrastFactor:   1 + contrast/percentScale,
		exposureFactor:   math.Pow(2, exposure/percentScale),
		highlightsFactor: 1 + float64(settings.Highlights)/percentScale,
		shadowsFactor:    1 + float64(settings.Shadows)/percentScale,
		hasBrightness:    brightness != 0,
		hasContrast:      contrast != 0,
		hasExposure:      exposure != 0,
		hasHighlights:    settings.Highlights != 0,
		hasShadows:       settings.Shadows != 0,
	}
}

// applyAdjustments runs stages 1-5 on one pixel, clamping after every stage.
func applyAdjustments(r, g, b float64, d deltas) (float64, float64, float64) {
	if d.hasBrightness {
		r = clamp(r*d.brightnessFactor, 0, channelMax)
		g = clamp(g*d.brightnessFactor, 0, channelMax)
		b = clamp(b*d.brightnessFactor, 0, channelMax)
	}

	if d.hasContrast {
		r = clamp((r-midpoint)*d.contrastFactor+midpoint, 0, channelMax)
		g = clamp((g-midpoint)*d.contrastFactor+midpoint, 0, channelMax)
		b = clamp((b-midpoint)*d.contrastFactor+midpoint, 0, channelMax)
	}

	if d.hasExposure {
		r = clamp(r*d.exposureFactor, 0, channelMax)
		g = clamp(g*d.exposureFactor, 0, channelMax)
		b = clamp(b*d.exposureFactor, 0, channelMax)
	}

	if d.hasHighlights {
		r = compressHighlight(r, d.highlightsFactor)
		g = compressHighlight(g, d.highlightsFactor)
		b = compressHighlight(b, d.highlightsFactor)
	}

	if d.hasShadows {
		r = compressShadow(r, d.shadowsFactor)
		g = compressShadow(g, d.shadowsFactor)
		b = compressShadow(b, d.shadowsFactor)
	}

	return r, g, b
}

// compressHighlight scales a channel above the midpoint, never pushing it
// back below the midpoint.
func compressHighlight(value, factor float64) float64 {
	if value > midpoint {
		return clamp(value*factor, midpoint, channelMax)
	}

	return value
}

// compressShadow scales a channel below the midpoint, never pushing it above
// the midpoint.
func compressShadow(value, factor float64) float64 {
	if value < midpoint {
		return clamp(value*factor, 0, midpoint)
	}

	return value
}

// applyToneCurve runs the mode-specific stage 6 on one pixel. The luminance
// is computed from the post-stage-5 values. Auto and manual modes apply no
// additional curve.
func applyToneCurve(r, g, b float64, mode Mode) (float64, float64, float64) {
	switch mode {
	case ModeHDR:
		luminance := luminanceOf(r, g, b)
		factor := 1 + (luminance/channelMax)*hdrBoostStrength

		return scaleClamped(r, g, b, factor)
	case ModeLowLight:
		luminance := luminanceOf(r, g, b)
		if luminance < lowlightLumLimit {
			boost := 1 + (lowlightLumLimit-luminance)/percentScale

			return scaleClamped(r, g, b, boost)
		}

		return r, g, b
	case ModeOverexposed:
		luminance := luminanceOf(r, g, b)
		if luminance > overexposedLumLimit {
			return scaleClamped(r, g, b, overexposedReduction)
		}

		return r, g, b
	case ModeAuto, ModeManual:
		return r, g, b
	default:
		return r, g, b
	}
}

func luminanceOf(r, g, b float64) float64 {
	return lumWeightR*r + lumWeightG*g + lumWeightB*b
}

func scaleClamped(r, g, b, factor float64) (float64, float64, float64) {
	return clamp(r*factor, 0, channelMax),
		clamp(g*factor, 0, channelMax),
		clamp(b*factor, 0, channelMax)
}

// clamp constrains a value to the closed range [lo, hi].
func clamp(value, lo, hi float64) float64 {
	if value < lo {
		return lo
	}

	if value > hi {
		return hi
	}

	return value
}
