package intake

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	_ "image/png"

	"github.com/apex/log"
	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/image/draw"

	_ "golang.org/x/image/webp"
)

const (
	jpegQuality    = 85
	maxPreviewEdge = 512
)

// transcodeToJPEG decodes the image and re-encodes it as JPEG at fixed
// quality, correcting EXIF orientation first. Formats the registered decoders
// cannot read (HEIC among them) return an error and the caller falls back to
// the original bytes.
func transcodeToJPEG(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	if o := orientation(data); o != 1 {
		img = reorient(img, o)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

// renderPreview produces the displayable preview for an accepted photo: a
// JPEG scaled to at most maxPreviewEdge on the long side. When the source
// cannot be decoded the original bytes double as the preview.
func renderPreview(data []byte) []byte {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		log.Warnf("Preview decode failed, using original bytes: %v", err)
		return data
	}

	if o := orientation(data); o != 1 {
		img = reorient(img, o)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w > maxPreviewEdge || h > maxPreviewEdge {
		scale := float64(maxPreviewEdge) / float64(w)
		if sy := float64(maxPreviewEdge) / float64(h); sy < scale {
			scale = sy
		}
		nw, nh := int(float64(w)*scale), int(float64(h)*scale)
		scaled := image.NewRGBA(image.Rect(0, 0, nw, nh))
		draw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), img, bounds, draw.Over, nil)
		img = scaled
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		log.Warnf("Preview encode failed, using original bytes: %v", err)
		return data
	}
	return buf.Bytes()
}

// orientation reads the EXIF orientation tag, defaulting to 1.
func orientation(data []byte) int {
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

// reorient applies the EXIF orientation to the decoded image.
func reorient(img image.Image, o int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	switch o {
	case 3: // rotate 180
		out := image.NewRGBA(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				out.Set(w-1-x, h-1-y, img.At(bounds.Min.X+x, bounds.Min.Y+y))
			}
		}
		return out
	case 6: // rotate 90 clockwise
		out := image.NewRGBA(image.Rect(0, 0, h, w))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				out.Set(h-1-y, x, img.At(bounds.Min.X+x, bounds.Min.Y+y))
			}
		}
		return out
	case 8: // rotate 90 counter-clockwise
		out := image.NewRGBA(image.Rect(0, 0, h, w))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				out.Set(y, w-1-x, img.At(bounds.Min.X+x, bounds.Min.Y+y))
			}
		}
		return out
	default:
		return img
	}
}
