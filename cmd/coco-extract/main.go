package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/heritage-imaging/ornaflow/internal/config"
	"github.com/heritage-imaging/ornaflow/internal/utils"
	"github.com/heritage-imaging/ornaflow/pkg/ark"
	"github.com/heritage-imaging/ornaflow/pkg/coco"
	"github.com/heritage-imaging/ornaflow/pkg/iiif"
	"github.com/heritage-imaging/ornaflow/pkg/processing"
	"github.com/heritage-imaging/ornaflow/pkg/report"
	"github.com/heritage-imaging/ornaflow/pkg/types"
)

func main() {
	var ratio float64
	var arksPath, outDir, model string
	var downloadIIIF bool

	flag.Float64Var(&ratio, "ratio", 1.0, "ratio between the exported images and the original scans (0 < ratio <= 1)")
	flag.StringVar(&arksPath, "arks", "arks_database.csv", "title/ARK lookup table ('#'-separated CSV)")
	flag.StringVar(&outDir, "out", "output", "output directory")
	flag.StringVar(&model, "model", "manual", "model name recorded in detection files")
	flag.BoolVar(&downloadIIIF, "iiif", false, "download full-resolution thumbnails via the IIIF API")
	flag.Parse()

	if flag.NArg() != 1 {
		log.Fatalf("usage: %s [-ratio 0.7] [-arks arks_database.csv] [-iiif] coco_folder", filepath.Base(os.Args[0]))
	}
	cocoDir := flag.Arg(0)

	if _, err := iiif.SizeForRatio(ratio); err != nil {
		log.Fatal(err)
	}

	cfg := config.Default()
	cfg.ApplyEnv()

	dataset, err := coco.Load(filepath.Join(cocoDir, coco.AnnotationsFile))
	if err != nil {
		log.Fatal(err)
	}
	arkDB, err := ark.LoadDatabase(arksPath)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("ARK database entries: %d", arkDB.Len())

	thumbsDir := filepath.Join(outDir, cfg.Output.ThumbsDir)
	iiifThumbsDir := filepath.Join(outDir, cfg.Output.IIIFThumbsDir)
	detectionsDir := filepath.Join(outDir, cfg.Output.DetectionsDir)
	for _, dir := range []string{outDir, thumbsDir, iiifThumbsDir, detectionsDir} {
		if err := utils.EnsureDir(dir); err != nil {
			log.Fatal(err)
		}
	}

	// Group annotations per image so overlays are drawn in one pass.
	byImage := make(map[int][]coco.Annotation)
	var imageIDs []int
	for _, a := range dataset.Annotations {
		if _, seen := byImage[a.ImageID]; !seen {
			imageIDs = append(imageIDs, a.ImageID)
		}
		byImage[a.ImageID] = append(byImage[a.ImageID], a)
	}
	sort.Ints(imageIDs)

	client := iiif.NewClient(cfg.IIIF.BaseURL, time.Duration(cfg.IIIF.TimeoutSeconds)*time.Second)
	ctx := context.Background()

	var rows []report.Row
	processedArks := map[string]bool{}
	var imagesNotFound, imagesProcessed, iiifErrors int

	for _, imageID := range imageIDs {
		entry, ok := dataset.ImageByID(imageID)
		if !ok {
			log.Printf("# image id %d not in dataset, skipping #", imageID)
			continue
		}
		imagePath := filepath.Join(cocoDir, entry.FileName)
		if !utils.FileExists(imagePath) {
			log.Printf("# image file %s not found, skipping #", imagePath)
			imagesNotFound++
			continue
		}

		// Annotation platforms suffix exported names with "_jpg..."; drop it
		// to recover the original filename stem.
		stem, _, _ := strings.Cut(filepath.Base(entry.FileName), "_jpg")

		id, view, err := resolveDocument(stem, arkDB)
		if err != nil {
			log.Printf("# %v, skipping %s #", err, stem)
			continue
		}
		processedArks[ark.Full(id)] = true
		log.Printf("processing image %s (ark %s view %d)", stem, id, view)

		img, err := processing.Load(imagePath)
		if err != nil {
			log.Fatal(err)
		}
		bounds := img.Bounds()

		annotations := byImage[imageID]
		dets := make([]types.Detection, 0, len(annotations))
		for _, a := range annotations {
			box := a.Box()
			dets = append(dets, types.Detection{
				XMin:       box.XMin,
				YMin:       box.YMin,
				XMax:       box.XMax,
				YMax:       box.YMax,
				ClassID:    a.CategoryID,
				Confidence: 1.0,
				ClassName:  dataset.CategoryName(a.CategoryID),
				File:       ark.PageFilename(id, view, "jpg"),
				Model:      model,
			})
		}

		// Annotated overlay copy of the page.
		overlay := processing.Overlay(img, dets)
		overlayPath := filepath.Join(outDir, stem+".jpg")
		if err := processing.Save(overlay, overlayPath, "jpg", cfg.Thumbnails.Quality, false); err != nil {
			log.Fatal(err)
		}

		// Detection file for the page, consumed later by the converter.
		if err := writeDetections(detectionsDir, id, view, dets); err != nil {
			log.Fatal(err)
		}

		for i, a := range annotations {
			d := dets[i]
			category := utils.SanitizeFilename(d.ClassName)

			thumb, err := processing.CropBox(img, a.Box())
			if err != nil {
				log.Printf("# crop failed for annotation %d: %v #", a.ID, err)
				continue
			}
			thumbName := fmt.Sprintf("%s-%s_%d.%s", stem, category, a.ID, cfg.Thumbnails.Format)
			thumbDir := filepath.Join(thumbsDir, id, category)
			if err := utils.EnsureDir(thumbDir); err != nil {
				log.Fatal(err)
			}
			thumbPath := filepath.Join(thumbDir, thumbName)
			if err := processing.Save(thumb, thumbPath, cfg.Thumbnails.Format, cfg.Thumbnails.Quality, cfg.Thumbnails.Lossless); err != nil {
				log.Fatal(err)
			}

			regionURL := iiif.RegionURL(cfg.IIIF.BaseURL, id, view, a.Box(), bounds.Dx(), bounds.Dy(), iiif.SizeMax)
			if downloadIIIF {
				iiifName := fmt.Sprintf("%s-%s_%d.jpg", ark.BaseFilename(id, view), category, a.ID)
				if _, err := client.Download(ctx, regionURL, filepath.Join(iiifThumbsDir, id, iiifName)); err != nil {
					log.Printf("# IIIF download failed: %v #", err)
					iiifErrors++
				}
			}

			rows = append(rows, report.Row{
				Ark:        ark.Full(id),
				View:       view,
				ImageFile:  entry.FileName,
				ThumbFile:  filepath.Join(id, category, thumbName),
				Category:   d.ClassName,
				GallicaURL: iiif.ViewerURL(id, view),
				IIIFURL:    regionURL,
				Confidence: 1.0,
			})
		}
		imagesProcessed++
	}

	if err := report.WriteSummary(filepath.Join(outDir, "processed_data.csv"), rows); err != nil {
		log.Fatal(err)
	}
	if err := report.WritePanoptic(filepath.Join(outDir, "import_pano.csv"), rows); err != nil {
		log.Fatal(err)
	}
	arks := make([]string, 0, len(processedArks))
	for a := range processedArks {
		arks = append(arks, a)
	}
	sort.Strings(arks)
	if err := report.WriteArkList(filepath.Join(outDir, "processed_arks_list.csv"), arks); err != nil {
		log.Fatal(err)
	}
	if missing := arkDB.Missing(); len(missing) > 0 {
		if err := os.WriteFile(filepath.Join(outDir, "arks_errors.txt"),
			[]byte(strings.Join(missing, "\n")+"\n"), 0o644); err != nil {
			log.Fatal(err)
		}
		log.Printf("titles with no ARK identified: %d (see arks_errors.txt)", len(missing))
	}

	fmt.Println("----------------------------------------")
	fmt.Printf("annotations in the dataset: %d\n", len(dataset.Annotations))
	fmt.Printf("images in the dataset: %d\n", len(dataset.Images))
	fmt.Printf("images processed: %d (not found: %d)\n", imagesProcessed, imagesNotFound)
	fmt.Printf("ARKs processed: %d\n", len(arks))
	if iiifErrors != 0 {
		fmt.Printf("## warning: %d IIIF error(s) ##\n", iiifErrors)
	}
}

// resolveDocument maps an exported image name to its document and view.
// Canonical "<arkID>-<view>" names are parsed directly; legacy title-based
// names go through the ARK database.
func resolveDocument(stem string, db *ark.Database) (string, int, error) {
	if strings.HasPrefix(stem, "bpt") || strings.HasPrefix(stem, "btv") {
		view, err := ark.View(stem + ".jpg")
		if err != nil {
			return "", 0, err
		}
		return stem[:strings.LastIndex(stem, "-")], view, nil
	}
	full, ok := db.Lookup(stem)
	if !ok {
		return "", 0, fmt.Errorf("no ARK found for title %q", stem)
	}
	view, err := ark.ViewFromTitle(stem)
	if err != nil {
		return "", 0, err
	}
	return ark.ID(full), view, nil
}

// writeDetections stores one detection file per document view under
// <dir>/<arkID>/<arkID>-<view>.json.
func writeDetections(dir, id string, view int, dets []types.Detection) error {
	target := filepath.Join(dir, id)
	if err := utils.EnsureDir(target); err != nil {
		return err
	}
	data, err := json.MarshalIndent(dets, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal detections: %w", err)
	}
	path := filepath.Join(target, ark.BaseFilename(id, view)+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write detection file: %w", err)
	}
	return nil
}
