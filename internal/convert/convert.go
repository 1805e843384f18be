package convert

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
	"golang.org/x/image/webp"

	"photogen/internal/domain"
)

// JPEGQuality is the fixed quality used for every JPEG encode.
const JPEGQuality = 92

// AssetSource loads generated assets by id.
type AssetSource interface {
	ResolveGenerated(ctx context.Context, assetID string) (*domain.GeneratedAsset, error)
}

// Converter re-encodes stored assets on demand. It keeps no cache.
type Converter struct {
	source AssetSource
}

func NewConverter(source AssetSource) *Converter {
	return &Converter{source: source}
}

// Convert loads assetID and returns it encoded as target. When the stored
// encoding already matches the original bytes are returned untouched.
func (c *Converter) Convert(ctx context.Context, assetID string, target domain.Encoding) ([]byte, domain.Encoding, error) {
	if err := checkTarget(target); err != nil {
		return nil, "", err
	}
	asset, err := c.source.ResolveGenerated(ctx, assetID)
	if err != nil {
		return nil, "", err
	}
	if asset.Encoding == target {
		return asset.Data, target, nil
	}
	out, err := ConvertBytes(asset.Data, target)
	if err != nil {
		return nil, "", err
	}
	return out, target, nil
}

// ConvertBytes decodes png, jpeg or webp data and encodes it as target.
// Sources with transparency are flattened onto white.
func ConvertBytes(data []byte, target domain.Encoding) ([]byte, error) {
	if err := checkTarget(target); err != nil {
		return nil, err
	}
	img, err := decode(data)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	switch target {
	case domain.EncodingJPEG:
		err = jpeg.Encode(&buf, flatten(img), &jpeg.Options{Quality: JPEGQuality})
	case domain.EncodingPNG:
		err = png.Encode(&buf, flatten(img))
	}
	if err != nil {
		return nil, fmt.Errorf("convert: encode %s: %w", target, err)
	}
	return buf.Bytes(), nil
}

func checkTarget(target domain.Encoding) error {
	switch target {
	case domain.EncodingJPEG, domain.EncodingPNG:
		return nil
	}
	return domain.NewError(domain.ErrInvalidInput, "convert", 0, fmt.Sprintf("cannot encode to %q", target), nil)
}

func decode(data []byte) (image.Image, error) {
	var (
		img image.Image
		err error
	)
	switch enc := domain.SniffEncoding(data); {
	case enc == domain.EncodingWebP:
		img, err = webp.Decode(bytes.NewReader(data))
	case enc == domain.EncodingJPEG:
		img, err = jpeg.Decode(bytes.NewReader(data))
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		img, err = png.Decode(bytes.NewReader(data))
	default:
		err = fmt.Errorf("unrecognized image header")
	}
	if err != nil {
		return nil, domain.NewError(domain.ErrUnsupportedSourceFormat, "convert: decode", 0, "", err)
	}
	return img, nil
}

type opaquer interface {
	Opaque() bool
}

// flatten composites img over opaque white unless it is already opaque.
func flatten(img image.Image) image.Image {
	if o, ok := img.(opaquer); ok && o.Opaque() {
		return img
	}
	b := img.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(dst, b, img, b.Min, draw.Over)
	return dst
}
