package iiif

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/heritage-imaging/ornaflow/pkg/types"
)

func TestSizeForRatio(t *testing.T) {
	tests := []struct {
		ratio   float64
		want    string
		wantErr bool
	}{
		{1.0, "max", false},
		{0.7, "pct:70", false},
		{0.05, "pct:5", false},
		{0, "", true},
		{-0.3, "", true},
		{1.5, "", true},
	}
	for _, tt := range tests {
		got, err := SizeForRatio(tt.ratio)
		if (err != nil) != tt.wantErr {
			t.Errorf("SizeForRatio(%g) error = %v, wantErr %v", tt.ratio, err, tt.wantErr)
			continue
		}
		if tt.wantErr && !errors.Is(err, ErrInvalidRatio) {
			t.Errorf("SizeForRatio(%g) error should wrap ErrInvalidRatio, got %v", tt.ratio, err)
		}
		if got != tt.want {
			t.Errorf("SizeForRatio(%g) = %q, want %q", tt.ratio, got, tt.want)
		}
	}
}

func TestURLBuilding(t *testing.T) {
	base := DefaultBaseURL

	got := PageURL(base, "ark:/12148/bpt6k70557r", 12, "pct:70")
	want := base + "bpt6k70557r/f12/full/pct:70/0/default.jpg"
	if got != want {
		t.Errorf("PageURL = %q, want %q", got, want)
	}

	got = ImageURL(base, "bpt6k70557r", 12)
	want = base + "bpt6k70557r/f12"
	if got != want {
		t.Errorf("ImageURL = %q, want %q", got, want)
	}

	got = ViewerURL("bpt6k70557r", 3)
	want = "https://gallica.bnf.fr/ark:/12148/bpt6k70557r/f3.item"
	if got != want {
		t.Errorf("ViewerURL = %q, want %q", got, want)
	}
}

func TestRegionURL(t *testing.T) {
	box := types.Box{XMin: 220, YMin: 306, XMax: 375, YMax: 460}
	got := RegionURL(DefaultBaseURL, "bpt6k70557r", 12, box, 1000, 2000, SizeMax)
	if !strings.Contains(got, "/f12/pct:22,15.3,15.5,7.7/max/") {
		t.Errorf("unexpected region URL: %q", got)
	}
}

func TestParsePageCount(t *testing.T) {
	xml := `<?xml version="1.0"?>
<livre>
  <structure>
    <nbVueImages> 245 </nbVueImages>
  </structure>
</livre>`
	n, err := parsePageCount(strings.NewReader(xml))
	if err != nil {
		t.Fatalf("parsePageCount failed: %v", err)
	}
	if n != 245 {
		t.Errorf("expected 245 pages, got %d", n)
	}

	if _, err := parsePageCount(strings.NewReader("<livre></livre>")); err == nil {
		t.Error("expected an error when nbVueImages is absent")
	}
	if _, err := parsePageCount(strings.NewReader("<livre><nbVueImages>abc</nbVueImages></livre>")); err == nil {
		t.Error("expected an error for a non-numeric page count")
	}
}

func TestClientPageCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("ark") != "bpt6k70557r" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("<livre><nbVueImages>17</nbVueImages></livre>"))
	}))
	defer srv.Close()

	c := NewClient("", time.Second)
	c.pagination = srv.URL

	n, err := c.PageCount(context.Background(), "ark:/12148/bpt6k70557r")
	if err != nil {
		t.Fatalf("PageCount failed: %v", err)
	}
	if n != 17 {
		t.Errorf("expected 17 pages, got %d", n)
	}
}

func TestClientDownload(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("not-really-a-jpeg"))
	}))
	defer srv.Close()

	c := NewClient("", time.Second)
	path := filepath.Join(t.TempDir(), "bpt6k1", "bpt6k1-0001.jpg")

	skipped, err := c.Download(context.Background(), srv.URL, path)
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if skipped {
		t.Error("first download should not be skipped")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "not-really-a-jpeg" {
		t.Errorf("unexpected file content: %q", data)
	}

	// Second run is idempotent: the existing file is kept, nothing fetched.
	skipped, err = c.Download(context.Background(), srv.URL, path)
	if err != nil {
		t.Fatalf("second Download failed: %v", err)
	}
	if !skipped {
		t.Error("second download should be skipped")
	}
	if hits != 1 {
		t.Errorf("expected 1 HTTP request, got %d", hits)
	}
}

func TestClientDownloadRejectsNonImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>error page</html>"))
	}))
	defer srv.Close()

	c := NewClient("", time.Second)
	path := filepath.Join(t.TempDir(), "x.jpg")
	if _, err := c.Download(context.Background(), srv.URL, path); err == nil {
		t.Error("expected an error for a non-image response")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("no file should be written for a failed download")
	}
}
