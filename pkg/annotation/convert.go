// Package annotation converts detection records into W3C Web Annotation
// pages whose rectangles live in the coordinate space of the original
// full-resolution image, so generic IIIF viewers can overlay them.
package annotation

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/heritage-imaging/ornaflow/pkg/ark"
	"github.com/heritage-imaging/ornaflow/pkg/iiif"
	"github.com/heritage-imaging/ornaflow/pkg/types"
)

// ErrInvalidRatio mirrors the fetch-side ratio validation: conversion refuses
// to start for a ratio outside (0, 1].
var ErrInvalidRatio = iiif.ErrInvalidRatio

// Record is a leniently-parsed detection record. Coordinates are pointers so
// a missing field can be told apart from a zero, which drives the
// skip-with-warning policy for malformed records.
type Record struct {
	XMin       *float64 `json:"x_min"`
	YMin       *float64 `json:"y_min"`
	XMax       *float64 `json:"x_max"`
	YMax       *float64 `json:"y_max"`
	ClassID    int      `json:"class_id"`
	Confidence float64  `json:"confidence"`
	ClassName  string   `json:"class_name"`
	File       string   `json:"file"`
	Model      string   `json:"model"`
}

// malformed reports why a record cannot be converted, or "" when it can.
func (r Record) malformed() string {
	if r.XMin == nil || r.YMin == nil || r.XMax == nil || r.YMax == nil {
		return "missing box coordinate"
	}
	if r.ClassName == "" {
		return "missing category label"
	}
	return ""
}

// Warning records one detection that was skipped during conversion.
type Warning struct {
	File   string
	Index  int
	Reason string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s record %d: %s", w.File, w.Index, w.Reason)
}

// Result is the outcome of converting a batch of detection records.
type Result struct {
	// Pages holds one annotation page per document view, keyed by the
	// "<arkID>-<view>" filename stem.
	Pages map[string]types.AnnotationPage
	// Skipped lists records dropped with a warning.
	Skipped []Warning
}

// Converter rewrites detections into region annotations.
type Converter struct {
	baseURL string
}

// NewConverter creates a converter targeting the given IIIF base URL. An
// empty base selects the BnF endpoint.
func NewConverter(baseURL string) *Converter {
	if baseURL == "" {
		baseURL = iiif.DefaultBaseURL
	}
	return &Converter{baseURL: baseURL}
}

// rescale maps a pixel coordinate from fetched-image space back to the
// original full-resolution space, rounding half-up to whole pixels.
func rescale(v, ratio float64) float64 {
	return math.Floor(v/ratio + 0.5)
}

// clampBox keeps a rescaled box inside [0,w]x[0,h]. Zero bounds mean the
// original dimensions are unknown and only negatives are clipped.
func clampBox(b types.Box, w, h float64) types.Box {
	clamp := func(v, hi float64) float64 {
		if v < 0 {
			return 0
		}
		if hi > 0 && v > hi {
			return hi
		}
		return v
	}
	return types.Box{
		XMin: clamp(b.XMin, w),
		YMin: clamp(b.YMin, h),
		XMax: clamp(b.XMax, w),
		YMax: clamp(b.YMax, h),
	}
}

// Convert builds the annotation page for one document view from the
// detections recorded on its fetched image. origW and origH are the
// full-resolution dimensions when known, zero otherwise. ratio is the
// fraction of full resolution the image was fetched at.
//
// Malformed records are skipped with a warning; an empty input produces a
// valid page with no items.
func (c *Converter) Convert(id string, view int, recs []Record, ratio float64, origW, origH int) (types.AnnotationPage, []Warning, error) {
	if ratio <= 0 || ratio > 1 {
		return types.AnnotationPage{}, nil, fmt.Errorf("%w: %g", ErrInvalidRatio, ratio)
	}

	imageURL := iiif.ImageURL(c.baseURL, id, view)
	page := types.AnnotationPage{
		Context: types.AnnotationContext,
		ID:      imageURL + "/annotations",
		Type:    "AnnotationPage",
		Items:   []types.Annotation{},
	}

	var skipped []Warning
	for i, rec := range recs {
		if reason := rec.malformed(); reason != "" {
			skipped = append(skipped, Warning{File: rec.File, Index: i, Reason: reason})
			continue
		}
		box := clampBox(types.Box{
			XMin: rescale(*rec.XMin, ratio),
			YMin: rescale(*rec.YMin, ratio),
			XMax: rescale(*rec.XMax, ratio),
			YMax: rescale(*rec.YMax, ratio),
		}, float64(origW), float64(origH))

		page.Items = append(page.Items, types.Annotation{
			ID:         fmt.Sprintf("%s/annotations/%d", imageURL, len(page.Items)+1),
			Type:       "Annotation",
			Motivation: "tagging",
			Generator:  rec.Model,
			Body: types.AnnotationBody{
				Type:    "TextualBody",
				Value:   rec.ClassName,
				Purpose: "tagging",
			},
			Target: types.AnnotationTarget{
				Source: imageURL,
				Selector: types.FragmentSelector{
					Type:       "FragmentSelector",
					ConformsTo: types.MediaFragsSpec,
					Value: fmt.Sprintf("xywh=%d,%d,%d,%d",
						int(box.XMin), int(box.YMin),
						int(box.Width()), int(box.Height())),
				},
			},
		})
	}
	return page, skipped, nil
}

// ConvertAll groups records by source image filename, derives the document
// and view from each canonical "<arkID>-<view>" name, and converts every
// group. Files whose name carries no view number are skipped with one
// warning per record.
func (c *Converter) ConvertAll(recs []Record, ratio float64) (*Result, error) {
	if ratio <= 0 || ratio > 1 {
		return nil, fmt.Errorf("%w: %g", ErrInvalidRatio, ratio)
	}

	groups := make(map[string][]Record)
	var order []string
	for _, rec := range recs {
		key := filepath.Base(rec.File)
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], rec)
	}
	sort.Strings(order)

	result := &Result{Pages: make(map[string]types.AnnotationPage, len(groups))}
	for _, file := range order {
		group := groups[file]
		stem := strings.TrimSuffix(file, filepath.Ext(file))
		view, err := ark.View(file)
		if err != nil {
			for i := range group {
				result.Skipped = append(result.Skipped, Warning{
					File:   file,
					Index:  i,
					Reason: err.Error(),
				})
			}
			continue
		}
		id := stem[:strings.LastIndex(stem, "-")]

		page, skipped, err := c.Convert(id, view, group, ratio, 0, 0)
		if err != nil {
			return nil, err
		}
		result.Pages[ark.BaseFilename(id, view)] = page
		result.Skipped = append(result.Skipped, skipped...)
	}
	return result, nil
}

// LoadRecords reads a detection file: a JSON array of detection records.
func LoadRecords(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read detection file: %w", err)
	}
	var recs []Record
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("failed to parse detection file %s: %w", path, err)
	}
	return recs, nil
}

// ConvertDir loads every detection file under dir (recursively) and converts
// the union of their records.
func (c *Converter) ConvertDir(dir string, ratio float64) (*Result, error) {
	if ratio <= 0 || ratio > 1 {
		return nil, fmt.Errorf("%w: %g", ErrInvalidRatio, ratio)
	}

	var recs []Record
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".json") {
			return nil
		}
		loaded, err := LoadRecords(path)
		if err != nil {
			return err
		}
		recs = append(recs, loaded...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk detections directory: %w", err)
	}
	return c.ConvertAll(recs, ratio)
}

// WritePage serialises one annotation page next to its detection file,
// as "<stem>.annotations.json".
func WritePage(dir, stem string, page types.AnnotationPage) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(dir, stem+".annotations.json")
	data, err := json.MarshalIndent(page, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal annotation page: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write annotation page: %w", err)
	}
	return path, nil
}
