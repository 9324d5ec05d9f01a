package upload

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
)

const (
	// MaxPhotoBytes bounds a single source photo upload.
	MaxPhotoBytes = 15 * 1024 * 1024

	// maxEdge is the longest edge we hand to the generation provider.
	// Larger sources are downscaled before leaving the service.
	maxEdge = 2048

	jpegQuality = 90
)

var ErrPhotoTooLarge = fmt.Errorf("photo exceeds the %d MB upload limit", MaxPhotoBytes/(1024*1024))

// NormalizePhoto decodes a source photo, applies the EXIF orientation, caps
// the longest edge and re-encodes as JPEG. The returned bytes are what the
// generation provider receives.
func NormalizePhoto(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("photo payload is empty")
	}
	if len(data) > MaxPhotoBytes {
		return nil, ErrPhotoTooLarge
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode photo: %w", err)
	}

	img = applyOrientation(img, readOrientation(data))

	bounds := img.Bounds()
	if bounds.Dx() > maxEdge || bounds.Dy() > maxEdge {
		img = imaging.Fit(img, maxEdge, maxEdge, imaging.Lanczos)
	}

	var out bytes.Buffer
	if err := imaging.Encode(&out, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, fmt.Errorf("failed to encode photo: %w", err)
	}
	return out.Bytes(), nil
}

// readOrientation extracts the EXIF orientation tag; 1 (normal) when absent.
func readOrientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	orientation, err := tag.Int(0)
	if err != nil {
		return 1
	}
	return orientation
}

// applyOrientation bakes the EXIF orientation into the pixels so the
// re-encoded JPEG renders upright everywhere.
func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}

// PayloadHash fingerprints a submission (photo bytes plus the sorted style
// list) so identical retries can be recognized in the request log.
func PayloadHash(photo []byte, styles []string) string {
	sorted := make([]string, len(styles))
	copy(sorted, styles)
	sort.Strings(sorted)

	h := sha256.New()
	h.Write(photo)
	h.Write([]byte("\n"))
	h.Write([]byte(strings.Join(sorted, ",")))
	return hex.EncodeToString(h.Sum(nil))
}
