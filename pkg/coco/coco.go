// Package coco reads COCO object-detection exports, the format annotation
// platforms use when handing back a labelled dataset.
package coco

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/heritage-imaging/ornaflow/pkg/types"
)

// AnnotationsFile is the conventional name of the dataset file inside an
// exported COCO folder.
const AnnotationsFile = "_annotations.coco.json"

// Dataset is a parsed COCO export.
type Dataset struct {
	Images      []Image      `json:"images"`
	Annotations []Annotation `json:"annotations"`
	Categories  []Category   `json:"categories"`

	imageFiles map[int]Image
	categories map[int]string
}

// Image is one image entry of the dataset.
type Image struct {
	ID       int    `json:"id"`
	FileName string `json:"file_name"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// Annotation is one bounding-box entry. BBox is [x, y, width, height] in
// absolute pixels of the exported image.
type Annotation struct {
	ID         int        `json:"id"`
	ImageID    int        `json:"image_id"`
	CategoryID int        `json:"category_id"`
	BBox       [4]float64 `json:"bbox"`
}

// Box returns the annotation rectangle in corner form.
func (a Annotation) Box() types.Box {
	return types.Box{
		XMin: a.BBox[0],
		YMin: a.BBox[1],
		XMax: a.BBox[0] + a.BBox[2],
		YMax: a.BBox[1] + a.BBox[3],
	}
}

// Category is one label class of the dataset.
type Category struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Load reads and indexes a COCO dataset file.
func Load(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read COCO file: %w", err)
	}
	var ds Dataset
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("failed to parse COCO file: %w", err)
	}
	ds.index()
	return &ds, nil
}

func (ds *Dataset) index() {
	ds.imageFiles = make(map[int]Image, len(ds.Images))
	for _, img := range ds.Images {
		ds.imageFiles[img.ID] = img
	}
	ds.categories = make(map[int]string, len(ds.Categories))
	for _, cat := range ds.Categories {
		ds.categories[cat.ID] = cat.Name
	}
}

// ImageByID returns the image entry for an annotation's image reference.
func (ds *Dataset) ImageByID(id int) (Image, bool) {
	img, ok := ds.imageFiles[id]
	return img, ok
}

// CategoryName resolves a category id, falling back to "Unknown".
func (ds *Dataset) CategoryName(id int) string {
	if name, ok := ds.categories[id]; ok {
		return name
	}
	return "Unknown"
}
