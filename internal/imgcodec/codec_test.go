package imgcodec_test

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/exposure-service/internal/exposure"
	"github.com/book-expert/exposure-service/internal/imgcodec"
)

// testImage builds a small NRGBA image with a recognizable gradient.
func testImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(x * 40 % 256),
				G: uint8(y * 40 % 256),
				B: uint8((x + y) * 20 % 256),
				A: 255,
			})
		}
	}

	return img
}

func TestDecode_PNGRoundTrip(t *testing.T) {
	t.Parallel()

	src := testImage(5, 3)

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	decoded, err := imgcodec.Decode(&buf)
	require.NoError(t, err)

	bounds := decoded.Bounds()
	assert.Equal(t, 5, bounds.Dx())
	assert.Equal(t, 3, bounds.Dy())

	// The decoded buffer must be dense RGBA: exactly width*height*4 bytes,
	// matching the source pixel for pixel.
	require.Len(t, decoded.Pix, 5*3*4)
	assert.Equal(t, src.Pix, decoded.Pix)
}

func TestDecode_CorruptDataFails(t *testing.T) {
	t.Parallel()

	_, err := imgcodec.Decode(bytes.NewReader([]byte("this is not an image")))
	require.ErrorIs(t, err, imgcodec.ErrUndecodableImage)
}

func TestDecode_NormalizesNonZeroOrigin(t *testing.T) {
	t.Parallel()

	// A sub-image has a non-zero origin and a sparse stride; Decode output
	// never does. Encode through PNG to exercise the whole path.
	full := testImage(8, 8)
	sub, ok := full.SubImage(image.Rect(2, 2, 6, 6)).(*image.NRGBA)
	require.True(t, ok)

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, sub))

	decoded, err := imgcodec.Decode(&buf)
	require.NoError(t, err)

	assert.Equal(t, image.Rect(0, 0, 4, 4), decoded.Bounds())
	assert.Len(t, decoded.Pix, 4*4*4)
	assert.Equal(t, 4*4, decoded.Stride)
}

func TestEncode_PNGIsLossless(t *testing.T) {
	t.Parallel()

	src := testImage(4, 4)

	var buf bytes.Buffer
	require.NoError(
		t,
		imgcodec.Encode(&buf, src, exposure.FormatPNG, exposure.QualityLow),
	)

	decoded, err := imgcodec.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, src.Pix, decoded.Pix)
}

func TestEncode_JPEGProducesDecodableOutput(t *testing.T) {
	t.Parallel()

	src := testImage(16, 16)

	var buf bytes.Buffer
	require.NoError(
		t,
		imgcodec.Encode(&buf, src, exposure.FormatJPG, exposure.QualityMedium),
	)
	require.NotZero(t, buf.Len())

	decoded, err := imgcodec.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 16, decoded.Bounds().Dx())
	assert.Equal(t, 16, decoded.Bounds().Dy())
}

func TestEncode_WebPProducesDecodableOutput(t *testing.T) {
	t.Parallel()

	src := testImage(16, 16)

	var buf bytes.Buffer
	require.NoError(
		t,
		imgcodec.Encode(&buf, src, exposure.FormatWebP, exposure.QualityHigh),
	)
	require.NotZero(t, buf.Len())

	decoded, err := imgcodec.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 16, decoded.Bounds().Dx())
	assert.Equal(t, 16, decoded.Bounds().Dy())
}

func TestEncode_UnsupportedFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	err := imgcodec.Encode(&buf, testImage(2, 2), "bmp", exposure.QualityHigh)
	require.ErrorIs(t, err, imgcodec.ErrUnsupportedFormat)
}
