// Package processing covers the image work of the pipeline: loading pages
// from disk or URL, cropping detection thumbnails, drawing labelled overlays
// and saving in jpg, png or webp.
package processing

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/heritage-imaging/ornaflow/pkg/types"
)

// Load reads an image from a file, falling back to an explicit WebP decode
// for files the registered decoders reject.
func Load(path string) (image.Image, error) {
	if img, err := imaging.Open(path); err == nil {
		return img, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if img, err := webp.Decode(f); err == nil {
		return img, nil
	}
	if _, err := f.Seek(0, 0); err == nil {
		if img, _, err := image.Decode(f); err == nil {
			return img, nil
		}
	}
	return nil, fmt.Errorf("image: unknown format for %s", path)
}

// LoadURL downloads and decodes an image over HTTP(S).
func LoadURL(imageURL string) (image.Image, error) {
	client := &http.Client{Timeout: 30 * time.Second}
	req, err := http.NewRequest(http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "ornaflow/1.0 (+https://github.com/heritage-imaging/ornaflow)")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %d %s", resp.StatusCode, resp.Status)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "image/") {
		return nil, fmt.Errorf("URL does not point to an image (Content-Type: %s)", ct)
	}
	return Decode(resp.Body)
}

// LoadSmart loads an image from either a file path or an http(s) URL.
func LoadSmart(source string) (image.Image, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return LoadURL(source)
	}
	return Load(source)
}

// Decode decodes image bytes with a WebP fallback.
func Decode(r io.Reader) (image.Image, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	if img, _, err := image.Decode(bytes.NewReader(buf.Bytes())); err == nil {
		return img, nil
	}
	if img, err := webp.Decode(bytes.NewReader(buf.Bytes())); err == nil {
		return img, nil
	}
	return nil, fmt.Errorf("image: unknown or unsupported format")
}

// EncodeJPEG encodes an image as JPEG bytes, optionally capping the long
// side at maxDim pixels first (0 keeps the original size).
func EncodeJPEG(img image.Image, maxDim, quality int) ([]byte, error) {
	if maxDim > 0 {
		b := img.Bounds()
		if b.Dx() > maxDim || b.Dy() > maxDim {
			if b.Dx() >= b.Dy() {
				img = imaging.Resize(img, maxDim, 0, imaging.Lanczos)
			} else {
				img = imaging.Resize(img, 0, maxDim, imaging.Lanczos)
			}
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CropBox extracts the pixel rectangle covered by a detection box.
func CropBox(img image.Image, box types.Box) (image.Image, error) {
	rect := image.Rect(
		int(box.XMin+0.5), int(box.YMin+0.5),
		int(box.XMax+0.5), int(box.YMax+0.5),
	).Intersect(img.Bounds())
	if rect.Empty() {
		return nil, fmt.Errorf("empty crop rectangle")
	}
	return imaging.Crop(img, rect), nil
}

// Save writes an image in the requested format. quality applies to jpg and
// webp, lossless to webp only.
func Save(img image.Image, path, format string, quality int, lossless bool) error {
	switch strings.ToLower(format) {
	case "webp":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		return webp.Encode(f, img, &webp.Options{Lossless: lossless, Quality: float32(quality)})
	case "png":
		return imaging.Save(img, path)
	default: // jpg/jpeg
		return imaging.Save(img, path, imaging.JPEGQuality(quality))
	}
}

// classColors matches the palette used across the annotation exports.
var classColors = map[string]color.NRGBA{
	"Vignette": {0x04, 0x92, 0xC2, 0xFF},
	"Lettrine": {0xFF, 0x69, 0xB4, 0xFF},
	"Ornement": {0x86, 0x01, 0xAF, 0xFF},
}

// ClassColor returns the overlay colour for a category, red for unknown ones.
func ClassColor(class string) color.NRGBA {
	if c, ok := classColors[class]; ok {
		return c
	}
	return color.NRGBA{0xFF, 0, 0, 0xFF}
}
