package annotation

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/heritage-imaging/ornaflow/pkg/types"
)

func f(v float64) *float64 { return &v }

func record(xmin, ymin, xmax, ymax float64, class, file string) Record {
	return Record{
		XMin: f(xmin), YMin: f(ymin), XMax: f(xmax), YMax: f(ymax),
		Confidence: 0.9,
		ClassName:  class,
		File:       file,
		Model:      "snooptypo/2",
	}
}

func TestConvertRescalesToOriginalResolution(t *testing.T) {
	c := NewConverter("")
	recs := []Record{record(220, 306, 375, 460, "Lettrine", "bpt6k70557r-0012.jpg")}

	page, skipped, err := c.Convert("bpt6k70557r", 12, recs, 0.5, 0, 0)
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if len(skipped) != 0 {
		t.Fatalf("expected no skipped records, got %d", len(skipped))
	}
	if len(page.Items) != 1 {
		t.Fatalf("expected 1 annotation, got %d", len(page.Items))
	}

	item := page.Items[0]
	// (220,306)-(375,460) at ratio 0.5 lands on (440,612)-(750,920).
	want := "xywh=440,612,310,308"
	if item.Target.Selector.Value != want {
		t.Errorf("expected selector %q, got %q", want, item.Target.Selector.Value)
	}
	if item.Body.Value != "Lettrine" {
		t.Errorf("expected category Lettrine, got %q", item.Body.Value)
	}
	if !strings.Contains(item.Target.Source, "bpt6k70557r/f12") {
		t.Errorf("expected target to reference bpt6k70557r/f12, got %q", item.Target.Source)
	}
	if item.Generator != "snooptypo/2" {
		t.Errorf("expected generator snooptypo/2, got %q", item.Generator)
	}
}

func TestConvertInvalidRatio(t *testing.T) {
	c := NewConverter("")
	recs := []Record{record(0, 0, 10, 10, "Vignette", "bpt6k1-0001.jpg")}

	for _, ratio := range []float64{0, -0.5, 1.01, 2} {
		_, _, err := c.Convert("bpt6k1", 1, recs, ratio, 0, 0)
		if !errors.Is(err, ErrInvalidRatio) {
			t.Errorf("ratio %g: expected ErrInvalidRatio, got %v", ratio, err)
		}
	}
}

func TestConvertEmptyInput(t *testing.T) {
	c := NewConverter("")
	page, skipped, err := c.Convert("bpt6k1", 3, nil, 1.0, 0, 0)
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if len(skipped) != 0 {
		t.Errorf("expected no warnings, got %d", len(skipped))
	}
	if page.Items == nil || len(page.Items) != 0 {
		t.Errorf("expected valid empty item list, got %#v", page.Items)
	}
	if page.Context != types.AnnotationContext || page.Type != "AnnotationPage" {
		t.Errorf("empty page is not a valid annotation page: %+v", page)
	}

	data, err := json.Marshal(page)
	if err != nil {
		t.Fatalf("empty page failed to marshal: %v", err)
	}
	if !strings.Contains(string(data), `"items":[]`) {
		t.Errorf("expected empty items array in JSON, got %s", data)
	}
}

func TestConvertSkipsMalformedRecords(t *testing.T) {
	c := NewConverter("")
	noCoord := record(0, 0, 50, 50, "Ornement", "bpt6k1-0001.jpg")
	noCoord.YMax = nil
	noLabel := record(5, 5, 60, 60, "", "bpt6k1-0001.jpg")

	recs := []Record{
		record(10, 10, 20, 20, "Lettrine", "bpt6k1-0001.jpg"),
		noCoord,
		record(30, 30, 40, 40, "Vignette", "bpt6k1-0001.jpg"),
		noLabel,
		record(50, 50, 70, 70, "Ornement", "bpt6k1-0001.jpg"),
	}

	page, skipped, err := c.Convert("bpt6k1", 1, recs, 1.0, 0, 0)
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if len(page.Items) != 3 {
		t.Errorf("expected 3 annotations, got %d", len(page.Items))
	}
	if len(skipped) != 2 {
		t.Fatalf("expected 2 warnings, got %d", len(skipped))
	}
	if skipped[0].Reason != "missing box coordinate" {
		t.Errorf("unexpected first warning: %s", skipped[0])
	}
	if skipped[1].Reason != "missing category label" {
		t.Errorf("unexpected second warning: %s", skipped[1])
	}
}

func TestConvertClampsToOriginalBounds(t *testing.T) {
	c := NewConverter("")
	// 699/0.7 rounds to 999, then 1000 caps nothing; 700/0.7 rounds past the
	// original width and must be clamped.
	recs := []Record{record(690, 0, 700, 10, "Lettrine", "bpt6k1-0001.jpg")}

	page, _, err := c.Convert("bpt6k1", 1, recs, 0.7, 990, 1400)
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	sel := page.Items[0].Target.Selector.Value
	var x, y, w, h int
	if _, err := fmt.Sscanf(sel, "xywh=%d,%d,%d,%d", &x, &y, &w, &h); err != nil {
		t.Fatalf("bad selector %q: %v", sel, err)
	}
	if x+w > 990 {
		t.Errorf("box exceeds original width: %s", sel)
	}
	if y+h > 1400 {
		t.Errorf("box exceeds original height: %s", sel)
	}
}

func TestRescaleRoundTrip(t *testing.T) {
	boxes := []types.Box{
		{XMin: 220, YMin: 306, XMax: 375, YMax: 460},
		{XMin: 0, YMin: 0, XMax: 1, YMax: 1},
		{XMin: 13, YMin: 999, XMax: 777, YMax: 1501},
	}
	for _, ratio := range []float64{1.0, 0.7, 0.5, 0.33, 0.08} {
		for _, b := range boxes {
			for _, v := range []float64{b.XMin, b.YMin, b.XMax, b.YMax} {
				up := rescale(v, ratio)
				back := math.Floor(up*ratio + 0.5)
				if math.Abs(back-v) > 1 {
					t.Errorf("ratio %g: %g -> %g -> %g drifts more than one pixel", ratio, v, up, back)
				}
			}
		}
	}
}

func TestConvertAllGroupsByFile(t *testing.T) {
	c := NewConverter("")
	recs := []Record{
		record(10, 10, 20, 20, "Lettrine", "bpt6k1/bpt6k1-0001.jpg"),
		record(30, 30, 40, 40, "Vignette", "bpt6k1/bpt6k1-0002.jpg"),
		record(50, 50, 60, 60, "Ornement", "bpt6k1/bpt6k1-0001.jpg"),
		record(5, 5, 15, 15, "Lettrine", "not_a_canonical_name.jpg"),
	}

	result, err := c.ConvertAll(recs, 1.0)
	if err != nil {
		t.Fatalf("ConvertAll failed: %v", err)
	}
	if len(result.Pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(result.Pages))
	}
	if page, ok := result.Pages["bpt6k1-0001"]; !ok || len(page.Items) != 2 {
		t.Errorf("expected 2 annotations for view 1, got %+v", page)
	}
	if page, ok := result.Pages["bpt6k1-0002"]; !ok || len(page.Items) != 1 {
		t.Errorf("expected 1 annotation for view 2, got %+v", page)
	}
	if len(result.Skipped) != 1 {
		t.Errorf("expected 1 warning for the non-canonical filename, got %d", len(result.Skipped))
	}
}

func TestConvertDirAndWritePage(t *testing.T) {
	dir := t.TempDir()
	detDir := filepath.Join(dir, "JSON", "bpt6k1")
	if err := os.MkdirAll(detDir, 0o755); err != nil {
		t.Fatal(err)
	}

	recs := []Record{record(220, 306, 375, 460, "Lettrine", "bpt6k1-0001.jpg")}
	data, err := json.Marshal(recs)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(detDir, "bpt6k1-0001.json"), data, 0o644); err != nil {
		t.Fatal(err)
	}

	c := NewConverter("")
	result, err := c.ConvertDir(filepath.Join(dir, "JSON"), 0.5)
	if err != nil {
		t.Fatalf("ConvertDir failed: %v", err)
	}
	page, ok := result.Pages["bpt6k1-0001"]
	if !ok {
		t.Fatalf("expected page bpt6k1-0001, got %v", result.Pages)
	}

	outDir := filepath.Join(dir, "annotations")
	path, err := WritePage(outDir, "bpt6k1-0001", page)
	if err != nil {
		t.Fatalf("WritePage failed: %v", err)
	}

	written, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var reread types.AnnotationPage
	if err := json.Unmarshal(written, &reread); err != nil {
		t.Fatalf("written page is not valid JSON: %v", err)
	}
	if len(reread.Items) != 1 || reread.Items[0].Target.Selector.Value != "xywh=440,612,310,308" {
		t.Errorf("unexpected written page: %+v", reread)
	}
}

func TestConvertDirInvalidRatio(t *testing.T) {
	c := NewConverter("")
	if _, err := c.ConvertDir(t.TempDir(), 1.5); !errors.Is(err, ErrInvalidRatio) {
		t.Errorf("expected ErrInvalidRatio, got %v", err)
	}
}

func BenchmarkConvert(b *testing.B) {
	c := NewConverter("")
	recs := make([]Record, 50)
	for i := range recs {
		recs[i] = record(float64(i), float64(i), float64(i+40), float64(i+40), "Lettrine", "bpt6k1-0001.jpg")
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := c.Convert("bpt6k1", 1, recs, 0.7, 0, 0); err != nil {
			b.Fatal(err)
		}
	}
}
