// Package report writes the tabular summaries consumed by downstream
// cataloguing tools: one general CSV and one Panoptic import file.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
)

// Row summarises one detection for the tabular outputs.
type Row struct {
	Ark        string
	View       int
	ImageFile  string
	ThumbFile  string
	Category   string
	GallicaURL string
	IIIFURL    string
	Confidence float64
}

// summaryHeader matches the column layout of the general summary.
var summaryHeader = []string{
	"ARK", "Vue", "Image_filename", "Annotation_filename",
	"Category_name", "Gallica", "IIIF", "Confidence",
}

// panopticHeader matches the typed-column convention Panoptic expects on
// import.
var panopticHeader = []string{
	"path", "Gallica[url]", "IIIF[url]", "Classe[tag]", "ARK[text]",
}

// WriteSummary writes the general one-row-per-detection CSV.
func WriteSummary(path string, rows []Row) error {
	return writeCSV(path, ',', summaryHeader, rows, func(r Row) []string {
		return []string{
			r.Ark,
			strconv.Itoa(r.View),
			r.ImageFile,
			r.ThumbFile,
			r.Category,
			r.GallicaURL,
			r.IIIFURL,
			strconv.FormatFloat(r.Confidence, 'f', -1, 64),
		}
	})
}

// WritePanoptic writes the semicolon-separated Panoptic import file.
func WritePanoptic(path string, rows []Row) error {
	return writeCSV(path, ';', panopticHeader, rows, func(r Row) []string {
		return []string{r.ThumbFile, r.GallicaURL, r.IIIFURL, r.Category, r.Ark}
	})
}

// WriteArkList writes the processed-ARKs list, one identifier per row.
func WriteArkList(path string, arks []string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create ARK list: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	for _, a := range arks {
		if err := w.Write([]string{a}); err != nil {
			return fmt.Errorf("failed to write ARK list: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

func writeCSV(path string, comma rune, header []string, rows []Row, record func(Row) []string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = comma
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write summary header: %w", err)
	}
	for _, r := range rows {
		if err := w.Write(record(r)); err != nil {
			return fmt.Errorf("failed to write summary row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush summary file: %w", err)
	}
	return nil
}
