package types

// Box is an axis-aligned rectangle in pixel coordinates, corner-based.
type Box struct {
	XMin float64 `json:"x_min"`
	YMin float64 `json:"y_min"`
	XMax float64 `json:"x_max"`
	YMax float64 `json:"y_max"`
}

// Width returns the horizontal extent of the box.
func (b Box) Width() float64 {
	return b.XMax - b.XMin
}

// Height returns the vertical extent of the box.
func (b Box) Height() float64 {
	return b.YMax - b.YMin
}

// Empty reports whether the box has no area.
func (b Box) Empty() bool {
	return b.XMax <= b.XMin || b.YMax <= b.YMin
}

// Detection is one detected region in a page image, expressed in the pixel
// space of the image it was detected on. Records are immutable once written
// by the inference step; the annotation converter is their only consumer.
type Detection struct {
	XMin       float64 `json:"x_min"`
	YMin       float64 `json:"y_min"`
	XMax       float64 `json:"x_max"`
	YMax       float64 `json:"y_max"`
	ClassID    int     `json:"class_id"`
	Confidence float64 `json:"confidence"`
	ClassName  string  `json:"class_name"`
	File       string  `json:"file"`
	Model      string  `json:"model"`
}

// Box returns the detection rectangle.
func (d Detection) Box() Box {
	return Box{XMin: d.XMin, YMin: d.YMin, XMax: d.XMax, YMax: d.YMax}
}

// AnnotationPage is a W3C Web Annotation page holding every region annotation
// produced for one document view.
type AnnotationPage struct {
	Context string       `json:"@context"`
	ID      string       `json:"id"`
	Type    string       `json:"type"`
	Items   []Annotation `json:"items"`
}

// Annotation is one rectangular region annotation targeting an IIIF image.
type Annotation struct {
	ID         string           `json:"id"`
	Type       string           `json:"type"`
	Motivation string           `json:"motivation"`
	Generator  string           `json:"generator,omitempty"`
	Body       AnnotationBody   `json:"body"`
	Target     AnnotationTarget `json:"target"`
}

// AnnotationBody carries the category label as a tagging body.
type AnnotationBody struct {
	Type    string `json:"type"`
	Value   string `json:"value"`
	Purpose string `json:"purpose"`
}

// AnnotationTarget ties a media-fragment rectangle to a source image URL.
type AnnotationTarget struct {
	Source   string           `json:"source"`
	Selector FragmentSelector `json:"selector"`
}

// FragmentSelector selects an xywh media fragment on the target image.
type FragmentSelector struct {
	Type       string `json:"type"`
	ConformsTo string `json:"conformsTo"`
	Value      string `json:"value"`
}

// AnnotationContext is the JSON-LD context for Web Annotation documents.
const AnnotationContext = "http://www.w3.org/ns/anno.jsonld"

// MediaFragsSpec identifies the media-fragments convention used by selectors.
const MediaFragsSpec = "http://www.w3.org/TR/media-frags/"
