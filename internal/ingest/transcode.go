package ingest

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/disintegration/imaging"
)

// =============================================================================
// Transcoding
// =============================================================================

// Transcoder converts images browsers cannot display into JPEG.
type Transcoder interface {
	ToJPEG(data []byte) ([]byte, error)
}

// imagingTranscoder implements Transcoder using the imaging library.
type imagingTranscoder struct {
	quality int
}

// NewImagingTranscoder encodes at the given JPEG quality (1-100).
func NewImagingTranscoder(quality int) Transcoder {
	if quality < 1 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	return &imagingTranscoder{quality: quality}
}

// ToJPEG decodes any format registered with the image package (TIFF and BMP
// come with imaging) and re-encodes it. EXIF orientation is applied so the
// JPEG displays upright without the original metadata.
func (t *imagingTranscoder) ToJPEG(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(t.quality)); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// Thumbnail fits an image within maxWidth x maxHeight, preserving aspect
// ratio, and returns it as JPEG.
func Thumbnail(data []byte, maxWidth, maxHeight, quality int) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	thumb := imaging.Fit(img, maxWidth, maxHeight, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// =============================================================================
// Data URIs
// =============================================================================

// EncodeDataURI builds the durable payload form: data:<type>;base64,<data>.
func EncodeDataURI(contentType string, data []byte) string {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURI reverses EncodeDataURI.
func DecodeDataURI(uri string) (contentType string, data []byte, err error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, errors.New("not a data URI")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, errors.New("malformed data URI")
	}
	contentType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return "", nil, errors.New("data URI is not base64 encoded")
	}
	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode data URI: %w", err)
	}
	return contentType, data, nil
}
