package imaging

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8((x + y) % 256),
				G: uint8((x * 2) % 256),
				B: uint8((y * 2) % 256),
				A: 255,
			})
		}
	}
	return img
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	return buf.Bytes()
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// pngHeader returns a PNG holding only a grayscale IHDR chunk: enough for DecodeConfig,
// with no pixel data behind it.
func pngHeader(width, height uint32) []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], width)
	binary.BigEndian.PutUint32(ihdr[4:8], height)
	ihdr[8] = 8 // bit depth; the remaining IHDR fields stay 0

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	chunk := append([]byte("IHDR"), ihdr...)
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

// withOrientation inserts an APP1 EXIF segment carrying only the orientation tag.
func withOrientation(t *testing.T, jpegData []byte, orientation uint16) []byte {
	t.Helper()
	require.True(t, bytes.HasPrefix(jpegData, []byte{0xFF, 0xD8}))

	var tiff bytes.Buffer
	tiff.WriteString("MM\x00\x2a")
	_ = binary.Write(&tiff, binary.BigEndian, uint32(8))
	_ = binary.Write(&tiff, binary.BigEndian, uint16(1))
	_ = binary.Write(&tiff, binary.BigEndian, []uint16{0x0112, 3})
	_ = binary.Write(&tiff, binary.BigEndian, uint32(1))
	_ = binary.Write(&tiff, binary.BigEndian, []uint16{orientation, 0})
	_ = binary.Write(&tiff, binary.BigEndian, uint32(0))

	payload := append([]byte("Exif\x00\x00"), tiff.Bytes()...)
	var out bytes.Buffer
	out.Write(jpegData[:2])
	out.Write([]byte{0xFF, 0xE1})
	_ = binary.Write(&out, binary.BigEndian, uint16(len(payload)+2))
	out.Write(payload)
	out.Write(jpegData[2:])
	return out.Bytes()
}

func TestDimensions(t *testing.T) {
	w, h, err := Dimensions(pngHeader(30000, 20000))
	require.NoError(t, err)
	assert.Equal(t, 30000, w)
	assert.Equal(t, 20000, h)

	_, _, err = Dimensions([]byte("not an image"))
	assert.Error(t, err)
}

func TestCheckPixels(t *testing.T) {
	tests := []struct {
		name      string
		data      []byte
		maxPixels int
		wantErr   bool
	}{
		{"oversized header", pngHeader(30000, 20000), 40_000_000, true},
		{"one pixel over", pngHeader(101, 100), 10_000, true},
		{"exactly at limit", pngHeader(100, 100), 10_000, false},
		{"limit disabled", pngHeader(30000, 20000), 0, false},
		{"unreadable header", []byte("not an image"), 10, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckPixels(tt.data, tt.maxPixels)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrTooManyPixels)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPrepareSkipsOversizedImageWithoutDecoding(t *testing.T) {
	// A full decode of this header would need gigabytes; the guard must return first.
	bomb := pngHeader(60000, 60000)

	out, mimeType := Prepare(bomb, "image/png", 1024, 40_000_000)
	assert.Equal(t, bomb, out)
	assert.Equal(t, "image/png", mimeType)
}

func TestPrepareDownscalesLargeImage(t *testing.T) {
	original := encodeJPEG(t, createTestImage(2000, 1500))

	out, mimeType := Prepare(original, "image/jpeg", 1024, 0)
	assert.Equal(t, "image/jpeg", mimeType)
	assert.Less(t, len(out), len(original))

	img, _, err := image.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	b := img.Bounds()
	assert.Equal(t, 1024, b.Dx())

	expectedHeight := 1500 * 1024 / 2000
	assert.InDelta(t, expectedHeight, b.Dy(), 2)
}

func TestPrepareConvertsLargePNGToJPEG(t *testing.T) {
	original := encodePNG(t, createTestImage(300, 1200))

	out, mimeType := Prepare(original, "image/png", 600, 0)
	assert.Equal(t, "image/jpeg", mimeType)

	img, format, err := image.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 600, img.Bounds().Dy())
	assert.Equal(t, 150, img.Bounds().Dx())
}

func TestPrepareKeepsSmallImage(t *testing.T) {
	original := encodePNG(t, createTestImage(64, 48))

	out, mimeType := Prepare(original, "image/png", 1024, 0)
	assert.Equal(t, original, out)
	assert.Equal(t, "image/png", mimeType)
}

func TestPreparePassesThroughUndecodable(t *testing.T) {
	garbage := []byte("definitely not an image")

	out, mimeType := Prepare(garbage, "image/webp", 1024, 0)
	assert.Equal(t, garbage, out)
	assert.Equal(t, "image/webp", mimeType)
}

func TestPrepareOrientsAfterScaling(t *testing.T) {
	original := encodeJPEG(t, createTestImage(2000, 1000))
	rotated := withOrientation(t, original, 6)
	require.Equal(t, 6, Orientation(rotated))

	out, mimeType := Prepare(rotated, "image/jpeg", 1000, 0)
	assert.Equal(t, "image/jpeg", mimeType)

	img, _, err := image.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 500, img.Bounds().Dx())
	assert.Equal(t, 1000, img.Bounds().Dy())
}

func TestApplyOrientation(t *testing.T) {
	// 2x3 source with a single marked pixel at the top-left corner.
	src := image.NewRGBA(image.Rect(0, 0, 2, 3))
	marker := color.RGBA{R: 255, A: 255}
	src.Set(0, 0, marker)

	tests := []struct {
		orientation int
		w, h        int
		mx, my      int
	}{
		{1, 2, 3, 0, 0},
		{2, 2, 3, 1, 0},
		{3, 2, 3, 1, 2},
		{4, 2, 3, 0, 2},
		{5, 3, 2, 0, 0},
		{6, 3, 2, 2, 0},
		{7, 3, 2, 2, 1},
		{8, 3, 2, 0, 1},
	}

	for _, tt := range tests {
		out := ApplyOrientation(src, tt.orientation)
		b := out.Bounds()
		assert.Equal(t, tt.w, b.Dx(), "orientation %d width", tt.orientation)
		assert.Equal(t, tt.h, b.Dy(), "orientation %d height", tt.orientation)

		r, _, _, _ := out.At(tt.mx, tt.my).RGBA()
		assert.Equal(t, uint32(0xffff), r, "orientation %d marker position", tt.orientation)
	}
}

func TestDetectMimeType(t *testing.T) {
	pngData := encodePNG(t, createTestImage(4, 4))
	jpegData := encodeJPEG(t, createTestImage(4, 4))

	assert.Equal(t, "image/png", DetectMimeType(pngData))
	assert.Equal(t, "image/jpeg", DetectMimeType(jpegData))
	assert.Equal(t, "image/gif", DetectMimeType([]byte("GIF89a\x01\x00\x01\x00")))
	assert.Equal(t, DefaultMimeType, DetectMimeType([]byte("hello")))
}

func TestIsSupported(t *testing.T) {
	for _, m := range []string{"image/jpeg", "image/jpg", "IMAGE/PNG", "image/gif", "image/webp", "image/bmp", "image/png; charset=binary"} {
		assert.True(t, IsSupported(m), m)
	}
	for _, m := range []string{"", "image/tiff", "application/pdf", "text/plain"} {
		assert.False(t, IsSupported(m), m)
	}
}

func TestDecodeBase64(t *testing.T) {
	payload := []byte("leaf-bytes")
	std := base64.StdEncoding.EncodeToString(payload)

	tests := []struct {
		name     string
		input    string
		declared string
	}{
		{"standard", std, ""},
		{"unpadded", base64.RawStdEncoding.EncodeToString(payload), ""},
		{"wrapped lines", std[:4] + "\n" + std[4:], ""},
		{"data url", "data:image/png;base64," + std, "image/png"},
		{"data url jpg alias", "data:image/jpg;base64," + std, "image/jpeg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, declared, err := DecodeBase64(tt.input)
			require.NoError(t, err)
			assert.Equal(t, payload, data)
			assert.Equal(t, tt.declared, declared)
		})
	}
}

func TestDecodeBase64Errors(t *testing.T) {
	_, _, err := DecodeBase64("   ")
	assert.ErrorIs(t, err, ErrEmptyImage)

	_, _, err = DecodeBase64("!!!not base64!!!")
	assert.Error(t, err)

	_, _, err = DecodeBase64("data:image/png;base64")
	assert.Error(t, err)
}
