// Package imgcodec decodes input images into an owned RGBA8 buffer and
// encodes corrected buffers back to PNG, JPEG, or WebP.
package imgcodec

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg" // Import the JPEG decoder.
	"image/png"
	"io"

	// The webp import also registers the WebP decoder with the image package.
	"github.com/chai2010/webp"
	"github.com/gen2brain/jpegli"

	"github.com/book-expert/exposure-service/internal/exposure"
)

var (
	// ErrUnsupportedFormat is returned when an output format has no encoder.
	ErrUnsupportedFormat = errors.New("unsupported output format")
	// ErrUndecodableImage is returned when input bytes cannot be decoded as
	// any registered image format. Retrying the same bytes cannot succeed.
	ErrUndecodableImage = errors.New("image could not be decoded")
)

// Decode reads an image from r and converts it to an NRGBA image whose Pix
// slice is a flat, zero-origin [R,G,B,A,...] buffer of exactly
// width*height*4 bytes, the layout the exposure engine operates on. The
// returned buffer is owned by the caller.
func Decode(r io.Reader) (*image.NRGBA, error) {
	src, _, decodeErr := image.Decode(r)
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrUndecodableImage, decodeErr)
	}

	return toNRGBA(src), nil
}

// toNRGBA normalizes any decoded image to a zero-origin NRGBA with a dense
// stride.
func toNRGBA(src image.Image) *image.NRGBA {
	bounds := src.Bounds()

	dst := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Src)

	return dst
}

// Encode writes img to w in the requested format. Quality applies to the
// lossy formats; PNG is lossless and ignores it.
func Encode(
	w io.Writer,
	img *image.NRGBA,
	format exposure.Format,
	quality exposure.Quality,
) error {
	switch format {
	case exposure.FormatPNG:
		encodeErr := png.Encode(w, img)
		if encodeErr != nil {
			return fmt.Errorf("png encoding failed: %w", encodeErr)
		}

		return nil
	case exposure.FormatJPG:
		encodeErr := jpegli.Encode(w, img, &jpegli.EncodingOptions{
			Quality:           quality.EncoderQuality(),
			ChromaSubsampling: image.YCbCrSubsampleRatio420,
		})
		if encodeErr != nil {
			return fmt.Errorf("jpeg encoding failed: %w", encodeErr)
		}

		return nil
	case exposure.FormatWebP:
		encodeErr := webp.Encode(w, img, &webp.Options{
			Lossless: false,
			Quality:  float32(quality.EncoderQuality()),
			Exact:    false,
		})
		if encodeErr != nil {
			return fmt.Errorf("webp encoding failed: %w", encodeErr)
		}

		return nil
	default:
		return fmt.Errorf("format %q: %w", format, ErrUnsupportedFormat)
	}
}
