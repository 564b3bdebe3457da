// Package ornaflow extracts printed ornaments from Gallica documents.
//
// The pipeline has four stages, each also available as a standalone command:
//
//  1. fetch page images of ARK-identified documents through the IIIF Image
//     API at a chosen resolution ratio (cmd/iiif-fetch);
//  2. import a COCO annotation export into thumbnails, overlays and tabular
//     summaries (cmd/coco-extract);
//  3. run a hosted or local detection model over page images, writing one
//     detection file per page (cmd/infer);
//  4. convert detection files into Web Annotation pages in the coordinate
//     space of the original full-resolution scans (cmd/annotate).
//
// Basic library usage:
//
//	client, err := roboflow.NewClient("", os.Getenv("ROBOFLOW_API_KEY"))
//	if err != nil {
//		log.Fatal(err)
//	}
//	pipeline := ornaflow.New(client)
//	dets, err := pipeline.DetectFile(ctx, "snooptypo/2", "bpt6k70557r/bpt6k70557r-0012.jpg")
//	if err != nil {
//		log.Fatal(err)
//	}
//	page, skipped, err := pipeline.Annotate("bpt6k70557r", 12, dets, 0.7)
package ornaflow

import (
	"context"
	"fmt"

	"github.com/heritage-imaging/ornaflow/pkg/annotation"
	"github.com/heritage-imaging/ornaflow/pkg/detect"
	"github.com/heritage-imaging/ornaflow/pkg/processing"
	"github.com/heritage-imaging/ornaflow/pkg/types"
)

// Version of the ornaflow library.
const Version = "1.0.0"

// Pipeline ties a detection backend to the annotation converter.
type Pipeline struct {
	detector  detect.Detector
	converter *annotation.Converter
}

// New creates a pipeline around a detection backend, targeting the default
// IIIF endpoint.
func New(detector detect.Detector) *Pipeline {
	return &Pipeline{
		detector:  detector,
		converter: annotation.NewConverter(""),
	}
}

// NewWithBase creates a pipeline whose annotations reference a specific IIIF
// base URL.
func NewWithBase(detector detect.Detector, baseURL string) *Pipeline {
	return &Pipeline{
		detector:  detector,
		converter: annotation.NewConverter(baseURL),
	}
}

// DetectFile loads an image from a path or URL and runs detection on it.
func (p *Pipeline) DetectFile(ctx context.Context, model, source string) ([]types.Detection, error) {
	img, err := processing.LoadSmart(source)
	if err != nil {
		return nil, fmt.Errorf("failed to load image: %w", err)
	}
	dets, err := p.detector.Detect(ctx, model, img)
	if err != nil {
		return nil, fmt.Errorf("detection failed: %w", err)
	}
	for i := range dets {
		dets[i].File = source
	}
	return dets, nil
}

// Annotate converts detections made on a page fetched at the given ratio
// into a Web Annotation page in original-scan coordinates.
func (p *Pipeline) Annotate(id string, view int, dets []types.Detection, ratio float64) (types.AnnotationPage, []annotation.Warning, error) {
	recs := make([]annotation.Record, len(dets))
	for i, d := range dets {
		d := d
		recs[i] = annotation.Record{
			XMin:       &d.XMin,
			YMin:       &d.YMin,
			XMax:       &d.XMax,
			YMax:       &d.YMax,
			ClassID:    d.ClassID,
			Confidence: d.Confidence,
			ClassName:  d.ClassName,
			File:       d.File,
			Model:      d.Model,
		}
	}
	return p.converter.Convert(id, view, recs, ratio, 0, 0)
}

// GetVersion returns the library version.
func GetVersion() string {
	return Version
}
