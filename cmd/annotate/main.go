package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/heritage-imaging/ornaflow/internal/config"
	"github.com/heritage-imaging/ornaflow/pkg/annotation"
)

func main() {
	var ratio float64
	var baseURL, outDir string

	flag.Float64Var(&ratio, "ratio", 1.0, "ratio the source images were fetched at (0 < ratio <= 1)")
	flag.StringVar(&baseURL, "base", "", "IIIF base URL referenced by the annotations (default BnF endpoint)")
	flag.StringVar(&outDir, "out", "annotations", "output directory")
	flag.Parse()

	if flag.NArg() != 1 {
		log.Fatalf("usage: %s [-ratio 0.7] [-out dir] detections_folder|detections.json", filepath.Base(os.Args[0]))
	}
	input := flag.Arg(0)

	cfg := config.Default()
	cfg.ApplyEnv()
	if baseURL == "" {
		baseURL = cfg.IIIF.BaseURL
	}

	converter := annotation.NewConverter(baseURL)

	info, err := os.Stat(input)
	if err != nil {
		log.Fatalf("# input not found: %s #", input)
	}

	var result *annotation.Result
	if info.IsDir() {
		result, err = converter.ConvertDir(input, ratio)
	} else {
		var recs []annotation.Record
		recs, err = annotation.LoadRecords(input)
		if err == nil {
			result, err = converter.ConvertAll(recs, ratio)
		}
	}
	if err != nil {
		log.Fatal(err)
	}

	stems := make([]string, 0, len(result.Pages))
	for stem := range result.Pages {
		stems = append(stems, stem)
	}
	sort.Strings(stems)

	var annotations int
	for _, stem := range stems {
		page := result.Pages[stem]
		annotations += len(page.Items)
		path, err := annotation.WritePage(outDir, stem, page)
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("wrote %s (%d annotation(s))", path, len(page.Items))
	}

	for _, w := range result.Skipped {
		log.Printf("# skipped %s #", w)
	}

	fmt.Println("-------------------------")
	fmt.Printf("annotation pages written: %d (%d annotation(s))\n", len(result.Pages), annotations)
	if n := len(result.Skipped); n != 0 {
		fmt.Printf("# warning: %d record(s) skipped #\n", n)
	}
}
