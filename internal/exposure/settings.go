// Package exposure implements the per-pixel exposure/tone-correction engine.
package exposure

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownMode is returned when a correction mode string is not recognized.
	ErrUnknownMode = errors.New("unknown correction mode")
	// ErrUnknownFormat is returned when an output format string is not recognized.
	ErrUnknownFormat = errors.New("unknown output format")
	// ErrUnknownQuality is returned when a quality level string is not recognized.
	ErrUnknownQuality = errors.New("unknown quality level")
	// ErrAdjustmentOutOfRange is returned when an adjustment value is outside [-100, 100].
	ErrAdjustmentOutOfRange = errors.New("adjustment value out of range [-100, 100]")
)

// Mode selects the correction behavior. Auto derives its own deltas from a
// one-pass image analysis; the remaining modes apply the manual adjustments
// plus (for hdr, lowlight and overexposed) a mode-specific tone curve.
type Mode string

// Supported correction modes.
const (
	ModeAuto        Mode = "auto"
	ModeManual      Mode = "manual"
	ModeHDR         Mode = "hdr"
	ModeLowLight    Mode = "lowlight"
	ModeOverexposed Mode = "overexposed"
)

// Format selects the output image encoding.
type Format string

// Supported output formats.
const (
	FormatPNG  Format = "png"
	FormatJPG  Format = "jpg"
	FormatWebP Format = "webp"
)

// Quality selects the lossy-encoder quality level.
type Quality string

// Supported quality levels.
const (
	QualityHigh   Quality = "high"
	QualityMedium Quality = "medium"
	QualityLow    Quality = "low"
)

// Encoder quality values for the lossy formats. PNG is lossless and ignores
// them.
const (
	encoderQualityHigh   = 90
	encoderQualityMedium = 70
	encoderQualityLow    = 50

	adjustmentMin = -100
	adjustmentMax = 100
)

// Settings holds the immutable per-run correction configuration. A Settings
// value is copied into each image task, so concurrent tasks can never observe
// a mutation mid-flight.
type Settings struct {
	Mode       Mode
	Format     Format
	Quality    Quality
	Exposure   int
	Brightness int
	Contrast   int
	Highlights int
	Shadows    int
}

// DefaultSettings returns the settings used when nothing is configured:
// automatic correction, PNG output.
func DefaultSettings() Settings {
	return Settings{
		Mode:       ModeAuto,
		Format:     FormatPNG,
		Quality:    QualityHigh,
		Exposure:   0,
		Brightness: 0,
		Contrast:   0,
		Highlights: 0,
		Shadows:    0,
	}
}

// Validate checks that every field of the settings holds a supported value.
func (s Settings) Validate() error {
	_, modeErr := ParseMode(string(s.Mode))
	if modeErr != nil {
		return modeErr
	}

	_, formatErr := ParseFormat(string(s.Format))
	if formatErr != nil {
		return formatErr
	}

	_, qualityErr := ParseQuality(string(s.Quality))
	if qualityErr != nil {
		return qualityErr
	}

	for _, value := range []int{
		s.Exposure,
		s.Brightness,
		s.Contrast,
		s.Highlights,
		s.Shadows,
	} {
		if value < adjustmentMin || value > adjustmentMax {
			return fmt.Errorf("value %d: %w", value, ErrAdjustmentOutOfRange)
		}
	}

	return nil
}

// EncoderQuality maps the quality level to the 0-100 scale the lossy encoders
// take: high=90, medium=70, low=50.
func (q Quality) EncoderQuality() int {
	switch q {
	case QualityMedium:
		return encoderQualityMedium
	case QualityLow:
		return encoderQualityLow
	case QualityHigh:
		return encoderQualityHigh
	default:
		return encoderQualityHigh
	}
}

// Extension returns the output file extension for the format, without a dot.
func (f Format) Extension() string {
	return string(f)
}

// ParseMode converts a mode name to a Mode. Matching is case-insensitive.
func ParseMode(name string) (Mode, error) {
	switch Mode(strings.ToLower(name)) {
	case ModeAuto, ModeManual, ModeHDR, ModeLowLight, ModeOverexposed:
		return Mode(strings.ToLower(name)), nil
	default:
		return "", fmt.Errorf("mode %q: %w", name, ErrUnknownMode)
	}
}

// ParseFormat converts a format name to a Format. Matching is
// case-insensitive, and "jpeg" is accepted as an alias for "jpg".
func ParseFormat(name string) (Format, error) {
	normalized := strings.ToLower(name)
	if normalized == "jpeg" {
		normalized = string(FormatJPG)
	}

	switch Format(normalized) {
	case FormatPNG, FormatJPG, FormatWebP:
		return Format(normalized), nil
	default:
		return "", fmt.Errorf("format %q: %w", name, ErrUnknownFormat)
	}
}

// ParseQuality converts a quality name to a Quality. Matching is
// case-insensitive.
func ParseQuality(name string) (Quality, error) {
	switch Quality(strings.ToLower(name)) {
	case QualityHigh, QualityMedium, QualityLow:
		return Quality(strings.ToLower(name)), nil
	default:
		return "", fmt.Errorf("quality %q: %w", name, ErrUnknownQuality)
	}
}
