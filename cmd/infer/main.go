package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/heritage-imaging/ornaflow/internal/config"
	"github.com/heritage-imaging/ornaflow/internal/utils"
	"github.com/heritage-imaging/ornaflow/pkg/ark"
	"github.com/heritage-imaging/ornaflow/pkg/detect"
	"github.com/heritage-imaging/ornaflow/pkg/iiif"
	"github.com/heritage-imaging/ornaflow/pkg/ollama"
	"github.com/heritage-imaging/ornaflow/pkg/processing"
	"github.com/heritage-imaging/ornaflow/pkg/report"
	"github.com/heritage-imaging/ornaflow/pkg/roboflow"
)

func main() {
	var model, backend, endpoint, outDir string
	var minConf float64
	var saveOverlays, downloadIIIF bool

	flag.StringVar(&model, "model", "", "detection model name (e.g. snooptypo/2)")
	flag.StringVar(&backend, "backend", "", "inference backend: roboflow or ollama (default from config)")
	flag.StringVar(&endpoint, "url", "", "backend endpoint URL")
	flag.StringVar(&outDir, "out", "JSON", "output directory for detection files")
	flag.Float64Var(&minConf, "min-conf", -1, "minimum confidence kept (default from config)")
	flag.BoolVar(&saveOverlays, "save", false, "save annotated copies next to the input images")
	flag.BoolVar(&downloadIIIF, "iiif", false, "download full-resolution thumbnails of detected regions")
	flag.Parse()

	if flag.NArg() != 1 || model == "" {
		log.Fatalf("usage: %s -model name [-backend roboflow|ollama] [-save] [-iiif] images_folder", filepath.Base(os.Args[0]))
	}
	imagesDir := flag.Arg(0)
	if info, err := os.Stat(imagesDir); err != nil || !info.IsDir() {
		log.Fatalf("# not a folder: %s #", imagesDir)
	}

	// A .env file is honoured for ROBOFLOW_API_KEY and the config overrides.
	_ = godotenv.Load()

	cfg := config.Default()
	cfg.ApplyEnv()
	if backend != "" {
		cfg.Inference.Backend = backend
	}
	if endpoint != "" {
		cfg.Inference.EndpointURL = endpoint
	}
	if minConf >= 0 {
		cfg.Inference.MinConfidence = minConf
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	var detector detect.Detector
	var err error
	switch cfg.Inference.Backend {
	case "roboflow":
		detector, err = roboflow.NewClient(cfg.Inference.EndpointURL, os.Getenv("ROBOFLOW_API_KEY"))
	case "ollama":
		url := cfg.Inference.EndpointURL
		if url == "" {
			url = "http://localhost:11434"
		}
		detector, err = ollama.NewClient(url)
	}
	if err != nil {
		log.Fatalf("failed to create %s backend: %v", cfg.Inference.Backend, err)
	}

	files, err := utils.ListImageFiles(imagesDir)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("%d image file(s) found in %s", len(files), imagesDir)
	if len(files) == 0 {
		return
	}
	if err := utils.EnsureDir(outDir); err != nil {
		log.Fatal(err)
	}

	client := iiif.NewClient(cfg.IIIF.BaseURL, time.Duration(cfg.IIIF.TimeoutSeconds)*time.Second)
	iiifThumbsDir := filepath.Join(outDir, cfg.Output.IIIFThumbsDir)
	ctx := context.Background()

	var rows []report.Row
	var withObjects, objects, iiifErrors int

	for _, f := range files {
		log.Printf("processing image: %s", f)
		img, err := processing.Load(f)
		if err != nil {
			log.Printf("# failed to load %s: %v #", f, err)
			continue
		}
		bounds := img.Bounds()

		dets, err := detector.Detect(ctx, model, img)
		if err != nil {
			log.Printf("# inference failed for %s: %v #", f, err)
			continue
		}
		dets = detect.Filter(dets, cfg.Inference.MinConfidence)
		if len(dets) == 0 {
			log.Printf("no object found, skipping")
			continue
		}
		withObjects++
		objects += len(dets)
		log.Printf("objects found: %d", len(dets))

		// The folder name is the document identifier by convention.
		id := filepath.Base(filepath.Dir(f))
		stem := utils.Stem(f)
		view, err := ark.View(f)
		if err != nil {
			log.Printf("# %v, skipping #", err)
			continue
		}
		for i := range dets {
			dets[i].File = filepath.Base(f)
			dets[i].Model = model
		}

		jsonDir := filepath.Join(outDir, id)
		if err := utils.EnsureDir(jsonDir); err != nil {
			log.Fatal(err)
		}
		jsonPath := filepath.Join(jsonDir, stem+".json")
		data, err := json.MarshalIndent(dets, "", "  ")
		if err != nil {
			log.Fatal(err)
		}
		if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
			log.Fatal(err)
		}
		log.Printf("detection data written to %s", jsonPath)

		if saveOverlays {
			overlayPath := strings.TrimSuffix(f, filepath.Ext(f)) + "_annotated.jpg"
			if err := processing.Save(processing.Overlay(img, dets), overlayPath, "jpg", cfg.Thumbnails.Quality, false); err != nil {
				log.Printf("# overlay save failed: %v #", err)
			} else {
				log.Printf("annotated image written to %s", overlayPath)
			}
		}

		for i, d := range dets {
			regionURL := iiif.RegionURL(cfg.IIIF.BaseURL, id, view, d.Box(), bounds.Dx(), bounds.Dy(), iiif.SizeMax)
			thumbName := fmt.Sprintf("%s-%s_%d.jpg", ark.BaseFilename(id, view), utils.SanitizeFilename(d.ClassName), i)
			if downloadIIIF {
				if _, err := client.Download(ctx, regionURL, filepath.Join(iiifThumbsDir, id, thumbName)); err != nil {
					log.Printf("# IIIF download failed: %v #", err)
					iiifErrors++
				}
			}
			rows = append(rows, report.Row{
				Ark:        ark.Full(id),
				View:       view,
				ImageFile:  filepath.Base(f),
				ThumbFile:  filepath.Join(id, thumbName),
				Category:   d.ClassName,
				GallicaURL: iiif.ViewerURL(id, view),
				IIIFURL:    regionURL,
				Confidence: d.Confidence,
			})
		}
	}

	if err := report.WriteSummary(filepath.Join(outDir, "processed_data.csv"), rows); err != nil {
		log.Fatal(err)
	}
	if err := report.WritePanoptic(filepath.Join(outDir, "import_pano.csv"), rows); err != nil {
		log.Fatal(err)
	}

	fmt.Println("-------------------------")
	fmt.Printf("%d image(s) contain an object (model %s)\n", withObjects, model)
	fmt.Printf("%d object(s) found in total\n", objects)
	fmt.Printf("detection files saved in: %s\n", outDir)
	if iiifErrors != 0 {
		fmt.Printf("# warning: %d IIIF error(s) #\n", iiifErrors)
	}
}
