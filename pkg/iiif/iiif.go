// Package iiif builds Gallica IIIF Image API URLs and downloads images
// through them.
package iiif

import (
	"errors"
	"fmt"
	"math"

	"github.com/heritage-imaging/ornaflow/pkg/ark"
	"github.com/heritage-imaging/ornaflow/pkg/types"
)

// DefaultBaseURL is the v3 endpoint of the BnF IIIF Image API.
const DefaultBaseURL = "https://openapi.bnf.fr/iiif/image/v3/ark:/12148/"

// gallicaViewerURL is the root of the human-facing Gallica viewer.
const gallicaViewerURL = "https://gallica.bnf.fr/"

// SizeMax requests an image at its maximum available size.
const SizeMax = "max"

// ErrInvalidRatio is returned for a resolution ratio outside (0, 1].
var ErrInvalidRatio = errors.New("ratio must be in (0, 1]")

// SizeForRatio maps a resolution ratio in (0, 1] to an IIIF size parameter:
// "max" for 1.0, "pct:n" otherwise.
func SizeForRatio(ratio float64) (string, error) {
	if ratio <= 0 || ratio > 1 {
		return "", fmt.Errorf("%w: %g", ErrInvalidRatio, ratio)
	}
	if ratio == 1 {
		return SizeMax, nil
	}
	return fmt.Sprintf("pct:%d", int(math.Round(ratio*100))), nil
}

// PageURL builds the IIIF URL for a full document page at the given size.
func PageURL(base, id string, view int, size string) string {
	return fmt.Sprintf("%s%s/f%d/full/%s/0/default.jpg", base, ark.ID(id), view, size)
}

// ImageURL is the canonical identifier-based URL of a document page, without
// region or size parameters. Region annotations target this URL.
func ImageURL(base, id string, view int) string {
	return fmt.Sprintf("%s%s/f%d", base, ark.ID(id), view)
}

// RegionURL builds the IIIF URL for a rectangular region of a page, with the
// region expressed as percentages of the full image so the URL stays valid at
// any served resolution.
func RegionURL(base, id string, view int, box types.Box, imgW, imgH int, size string) string {
	pct := func(v, full float64) float64 {
		return math.Round(v/full*100*100) / 100
	}
	w, h := float64(imgW), float64(imgH)
	region := fmt.Sprintf("pct:%g,%g,%g,%g",
		pct(box.XMin, w), pct(box.YMin, h), pct(box.Width(), w), pct(box.Height(), h))
	return fmt.Sprintf("%s%s/f%d/%s/%s/0/default.jpg", base, ark.ID(id), view, region, size)
}

// ViewerURL is the Gallica viewer page for one view of a document.
func ViewerURL(id string, view int) string {
	return fmt.Sprintf("%s%s/f%d.item", gallicaViewerURL, ark.Full(id), view)
}
