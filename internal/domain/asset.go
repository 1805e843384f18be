package domain

import (
	"bytes"
	"net/http"
	"strings"
	"time"
)

// Encoding enumerates raster encodings handled by the service.
type Encoding string

const (
	EncodingPNG  Encoding = "png"
	EncodingJPEG Encoding = "jpeg"
	EncodingWebP Encoding = "webp"
)

// ParseEncoding accepts extensions, short names and MIME types.
func ParseEncoding(v string) (Encoding, bool) {
	v = strings.ToLower(strings.TrimSpace(v))
	v = strings.TrimPrefix(v, ".")
	v = strings.TrimPrefix(v, "image/")
	if i := strings.IndexByte(v, ';'); i >= 0 {
		v = strings.TrimSpace(v[:i])
	}
	switch v {
	case "png":
		return EncodingPNG, true
	case "jpg", "jpeg", "pjpeg":
		return EncodingJPEG, true
	case "webp":
		return EncodingWebP, true
	}
	return "", false
}

// Ext returns the file extension (without dot) used when storing the encoding.
func (e Encoding) Ext() string {
	if e == EncodingJPEG {
		return "jpg"
	}
	return string(e)
}

// MIME returns the content type for the encoding.
func (e Encoding) MIME() string {
	switch e {
	case EncodingJPEG:
		return "image/jpeg"
	case EncodingWebP:
		return "image/webp"
	default:
		return "image/png"
	}
}

// UploadHandle identifies a locally stored source image.
type UploadHandle struct {
	ID        string
	Ext       string
	Size      int64
	CreatedAt time.Time
}

// Filename is the on-disk name of the upload.
func (h UploadHandle) Filename() string {
	return h.ID + "." + h.Ext
}

// GeneratedAsset is a downloaded provider result persisted locally.
type GeneratedAsset struct {
	ID           string
	SourceURL    string
	GenerationID string
	Encoding     Encoding
	Size         int64
	CreatedAt    time.Time
	Data         []byte
}

// Filename is the on-disk name of the generated asset.
func (a GeneratedAsset) Filename() string {
	return a.ID + "." + a.Encoding.Ext()
}

// DetectEncoding reports the raster encoding of data from its leading bytes.
// ok is false for anything that is not png, jpeg or webp.
func DetectEncoding(data []byte) (Encoding, bool) {
	if len(data) >= 12 && bytes.HasPrefix(data, []byte("RIFF")) && string(data[8:12]) == "WEBP" {
		return EncodingWebP, true
	}
	return ParseEncoding(http.DetectContentType(data))
}

// SniffEncoding is DetectEncoding defaulting to PNG.
func SniffEncoding(data []byte) Encoding {
	if enc, ok := DetectEncoding(data); ok {
		return enc
	}
	return EncodingPNG
}
