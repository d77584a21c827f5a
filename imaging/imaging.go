package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"strings"

	// Decoders for every supported upload format.
	_ "image/gif"
	_ "image/png"

	"github.com/apex/log"
	"github.com/gabriel-vasile/mimetype"
	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	DefaultMimeType = "image/jpeg"

	jpegQuality = 85
)

// SupportedMimeTypes lists the upload formats accepted for diagnosis.
var SupportedMimeTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp", "image/bmp"}

var (
	ErrEmptyImage    = errors.New("image data is empty")
	ErrTooManyPixels = errors.New("image declares too many pixels")
)

// NormalizeMimeType lowercases a mime type, drops parameters and maps image/jpg to image/jpeg.
func NormalizeMimeType(mimeType string) string {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if mimeType == "image/jpg" || mimeType == "image/pjpeg" {
		return "image/jpeg"
	}
	return mimeType
}

func IsSupported(mimeType string) bool {
	mimeType = NormalizeMimeType(mimeType)
	for _, s := range SupportedMimeTypes {
		if s == mimeType {
			return true
		}
	}
	return false
}

// DetectMimeType sniffs the content; anything unrecognized is treated as JPEG.
func DetectMimeType(data []byte) string {
	detected := mimetype.Detect(data)
	for _, s := range SupportedMimeTypes {
		if detected.Is(s) {
			return s
		}
	}
	return DefaultMimeType
}

// DecodeBase64 decodes standard or unpadded base64, optionally wrapped in a data URL.
// The mime type declared by a data URL is returned, empty otherwise.
func DecodeBase64(encoded string) ([]byte, string, error) {
	encoded = strings.TrimSpace(encoded)

	declared := ""
	if strings.HasPrefix(encoded, "data:") {
		header, payload, ok := strings.Cut(encoded, ",")
		if !ok {
			return nil, "", fmt.Errorf("malformed data URL")
		}
		declared = NormalizeMimeType(strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64"))
		encoded = payload
	}

	encoded = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, encoded)
	if encoded == "" {
		return nil, declared, ErrEmptyImage
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		var rawErr error
		if data, rawErr = base64.RawStdEncoding.DecodeString(strings.TrimRight(encoded, "=")); rawErr != nil {
			return nil, declared, fmt.Errorf("invalid base64 image data: %w", err)
		}
	}
	if len(data) == 0 {
		return nil, declared, ErrEmptyImage
	}
	return data, declared, nil
}

// Orientation reads the EXIF orientation tag, 1 when absent or unreadable.
func Orientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	v, err := tag.Int(0)
	if err != nil {
		return 1
	}
	return v
}

// ApplyOrientation returns img transformed so that it displays upright for the given EXIF value.
func ApplyOrientation(img image.Image, orientation int) image.Image {
	if orientation < 2 || orientation > 8 {
		return img
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	dw, dh := w, h
	if orientation >= 5 {
		dw, dh = h, w
	}

	out := image.NewRGBA(image.Rect(0, 0, dw, dh))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var dx, dy int
			switch orientation {
			case 2:
				dx, dy = w-1-x, y
			case 3:
				dx, dy = w-1-x, h-1-y
			case 4:
				dx, dy = x, h-1-y
			case 5:
				dx, dy = y, x
			case 6:
				dx, dy = h-1-y, x
			case 7:
				dx, dy = h-1-y, w-1-x
			case 8:
				dx, dy = y, w-1-x
			}
			out.Set(dx, dy, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return out
}

// Dimensions reads the image header without decoding pixel data.
func Dimensions(data []byte) (width, height int, err error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

// CheckPixels returns ErrTooManyPixels when the header declares more than maxPixels.
// Data without a readable header passes; Prepare hands it through untouched.
func CheckPixels(data []byte, maxPixels int) error {
	if maxPixels <= 0 {
		return nil
	}
	w, h, err := Dimensions(data)
	if err != nil {
		return nil
	}
	if int64(w)*int64(h) > int64(maxPixels) {
		return fmt.Errorf("%w: %dx%d", ErrTooManyPixels, w, h)
	}
	return nil
}

// Prepare downscales so neither side exceeds maxDimension and fixes EXIF orientation,
// re-encoding as JPEG when anything changed. Undecodable data, images declaring more
// than maxPixels and images already within limits are returned untouched.
func Prepare(data []byte, mimeType string, maxDimension, maxPixels int) ([]byte, string) {
	if err := CheckPixels(data, maxPixels); err != nil {
		log.WithError(err).Warn("image.prepare.too_many_pixels")
		return data, mimeType
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		log.WithError(err).Debug("image.prepare.undecodable")
		return data, mimeType
	}

	orientation := Orientation(data)
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	needsScale := maxDimension > 0 && (width > maxDimension || height > maxDimension)
	if !needsScale && orientation == 1 {
		return data, mimeType
	}

	newWidth, newHeight := width, height
	if needsScale {
		if width >= height {
			newWidth, newHeight = maxDimension, max(1, height*maxDimension/width)
		} else {
			newWidth, newHeight = max(1, width*maxDimension/height), maxDimension
		}
	}

	// Orientation is applied to the scaled copy; its per-pixel pass is bounded by maxDimension.
	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	out := ApplyOrientation(dst, orientation)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: jpegQuality}); err != nil {
		log.WithError(err).Warn("image.prepare.encode_failed")
		return data, mimeType
	}

	log.WithFields(log.Fields{
		"from_bytes":  len(data),
		"to_bytes":    buf.Len(),
		"original":    fmt.Sprintf("%dx%d", width, height),
		"resized":     fmt.Sprintf("%dx%d", newWidth, newHeight),
		"orientation": orientation,
	}).Debug("image.prepare.reencoded")
	return buf.Bytes(), DefaultMimeType
}
