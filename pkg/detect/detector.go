// Package detect defines the detector abstraction shared by the hosted and
// local inference backends.
package detect

import (
	"context"
	"image"

	"github.com/heritage-imaging/ornaflow/pkg/types"
)

// Detector runs an object-detection model over one image and returns the
// regions it found, in the pixel space of that image.
type Detector interface {
	Detect(ctx context.Context, model string, img image.Image) ([]types.Detection, error)
}

// ClampToImage clips a detection box to the image bounds and repairs
// inverted corners, which hosted models occasionally emit on edge objects.
func ClampToImage(d types.Detection, width, height int) types.Detection {
	w, h := float64(width), float64(height)
	d.XMin = clamp(d.XMin, 0, w)
	d.YMin = clamp(d.YMin, 0, h)
	d.XMax = clamp(d.XMax, 0, w)
	d.YMax = clamp(d.YMax, 0, h)
	if d.XMax < d.XMin {
		d.XMin, d.XMax = d.XMax, d.XMin
	}
	if d.YMax < d.YMin {
		d.YMin, d.YMax = d.YMax, d.YMin
	}
	return d
}

// Filter drops detections below a confidence threshold or with an empty box.
func Filter(dets []types.Detection, minConfidence float64) []types.Detection {
	out := make([]types.Detection, 0, len(dets))
	for _, d := range dets {
		if d.Confidence < minConfidence {
			continue
		}
		if d.Box().Empty() {
			continue
		}
		out = append(out, d)
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
