package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/heritage-imaging/ornaflow/internal/config"
	"github.com/heritage-imaging/ornaflow/internal/fetchcache"
	"github.com/heritage-imaging/ornaflow/pkg/ark"
	"github.com/heritage-imaging/ornaflow/pkg/iiif"
)

func main() {
	var ratio float64
	var outDir, cachePath string

	flag.Float64Var(&ratio, "ratio", 1.0, "image dimension ratio compared to the original scan (0 < ratio <= 1)")
	flag.StringVar(&outDir, "out", "IIIF_images", "output directory")
	flag.StringVar(&cachePath, "cache", "", "fetch journal path (default <out>/fetch.db)")
	flag.Parse()

	if flag.NArg() != 1 {
		log.Fatalf("usage: %s [-ratio 0.7] [-out dir] arks.txt", filepath.Base(os.Args[0]))
	}
	arksFile := flag.Arg(0)

	// Ratio is checked before anything is touched on disk.
	size, err := iiif.SizeForRatio(ratio)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("using IIIF size: %s", size)

	cfg := config.Default()
	cfg.ApplyEnv()

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		log.Fatal(err)
	}
	if cachePath == "" {
		cachePath = filepath.Join(outDir, cfg.Output.CacheFile)
	}
	cache, err := fetchcache.Open(cachePath)
	if err != nil {
		log.Fatal(err)
	}
	defer cache.Close()

	arks, err := readArkList(arksFile)
	if err != nil {
		log.Fatal(err)
	}

	client := iiif.NewClient(cfg.IIIF.BaseURL, time.Duration(cfg.IIIF.TimeoutSeconds)*time.Second)
	ctx := context.Background()

	var processed, unpaged, downloaded, skipped, failed int
	for _, a := range arks {
		processed++
		id := ark.ID(a)

		pages, known, err := cache.PageCount(id)
		if err != nil {
			log.Fatal(err)
		}
		if !known {
			pages, err = client.PageCount(ctx, id)
			if err != nil {
				log.Printf("# pagination failed for %s: %v #", a, err)
				unpaged++
				continue
			}
			if err := cache.SetPageCount(id, pages); err != nil {
				log.Fatal(err)
			}
		}
		if pages == 0 {
			unpaged++
			continue
		}
		log.Printf("processing %s with %d pages", a, pages)

		for view := 1; view <= pages; view++ {
			done, err := cache.Fetched(id, view)
			if err != nil {
				log.Fatal(err)
			}
			if done {
				skipped++
				continue
			}

			url := iiif.PageURL(client.BaseURL(), id, view, size)
			path := filepath.Join(outDir, id, ark.PageFilename(id, view, "jpg"))
			onDisk, err := client.Download(ctx, url, path)
			if err != nil {
				log.Printf("# download failed: %s: %v #", url, err)
				failed++
				continue
			}
			if onDisk {
				skipped++
			} else {
				downloaded++
			}
			if err := cache.MarkFetched(id, view, path); err != nil {
				log.Fatal(err)
			}
		}
	}

	fmt.Println("----------------------------------------")
	fmt.Printf("ARKs processed: %d\n", processed)
	fmt.Printf("ARKs without pagination data: %d\n", unpaged)
	fmt.Printf("images downloaded: %d (skipped as already fetched: %d)\n", downloaded, skipped)
	if failed != 0 {
		fmt.Printf("## warning: %d download error(s); rerun to resume ##\n", failed)
	}
}

// readArkList reads one ARK per non-empty line.
func readArkList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ARK list: %w", err)
	}
	defer f.Close()

	var arks []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line != "" {
			arks = append(arks, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ARK list: %w", err)
	}
	return arks, nil
}
