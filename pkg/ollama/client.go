// Package ollama runs detection through a locally served vision model, as an
// offline alternative to the hosted endpoint.
package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/heritage-imaging/ornaflow/pkg/detect"
	"github.com/heritage-imaging/ornaflow/pkg/processing"
	"github.com/heritage-imaging/ornaflow/pkg/types"
)

// detectPrompt asks the model for pixel-coordinate boxes over printed
// ornaments. The categories match the annotation exports.
const detectPrompt = `You locate printed ornaments on scans of early printed books.
The image is %d pixels wide and %d pixels tall.

Return JSON only:
{
  "detections": [
    {"label": "Lettrine|Vignette|Ornement", "confidence": 0.0,
     "box": {"x_min": 0, "y_min": 0, "x_max": 0, "y_max": 0}}
  ]
}

HARD RULES
- Box coordinates are PIXELS within the stated image size.
- A Lettrine is a decorated initial letter, a Vignette an illustration,
  an Ornement any other decorative printed element.
- Report every distinct ornament once; skip plain text blocks.
- If nothing is found return {"detections": []}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// Client adapts the Ollama chat API to the detect.Detector interface.
type Client struct {
	client  *api.Client
	maxSide int
	quality int
}

// NewClient creates a client for an Ollama server URL (any path component is
// ignored, only scheme and host are kept).
func NewClient(serverURL string) (*Client, error) {
	parsed, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	base := &url.URL{Scheme: parsed.Scheme, Host: parsed.Host}
	return &Client{
		client:  api.NewClient(base, http.DefaultClient),
		maxSide: 1536,
		quality: 85,
	}, nil
}

type modelReply struct {
	Detections []modelDetection `json:"detections"`
}

type modelDetection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        struct {
		XMin float64 `json:"x_min"`
		YMin float64 `json:"y_min"`
		XMax float64 `json:"x_max"`
		YMax float64 `json:"y_max"`
	} `json:"box"`
}

// Detect sends the image to the model and parses its JSON reply into
// detections clamped to the image bounds. Boxes the model reports in
// normalized [0,1] form are scaled up to pixels.
func (c *Client) Detect(ctx context.Context, model string, img image.Image) ([]types.Detection, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 300*time.Second)
		defer cancel()
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	jpg, err := processing.EncodeJPEG(img, c.maxSide, c.quality)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	streamFalse := false
	req := &api.ChatRequest{
		Model: model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: fmt.Sprintf(detectPrompt, w, h),
				Images:  []api.ImageData{api.ImageData(jpg)},
			},
		},
		Stream: &streamFalse,
	}

	var content string
	err = c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		content = resp.Message.Content
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama chat error: %w", err)
	}
	if content == "" {
		return nil, fmt.Errorf("empty response from ollama")
	}

	reply, err := parseReply(content)
	if err != nil {
		return nil, err
	}

	dets := make([]types.Detection, 0, len(reply.Detections))
	for _, md := range reply.Detections {
		d := types.Detection{
			XMin:       md.Box.XMin,
			YMin:       md.Box.YMin,
			XMax:       md.Box.XMax,
			YMax:       md.Box.YMax,
			Confidence: md.Confidence,
			ClassName:  md.Label,
			Model:      model,
		}
		// Some models ignore the pixel instruction and answer normalized.
		if d.XMax <= 1 && d.YMax <= 1 {
			d.XMin *= float64(w)
			d.XMax *= float64(w)
			d.YMin *= float64(h)
			d.YMax *= float64(h)
		}
		dets = append(dets, detect.ClampToImage(d, w, h))
	}
	return dets, nil
}

// parseReply unwraps the model output, tolerating code fences, comments and
// trailing commas around the JSON.
func parseReply(raw string) (*modelReply, error) {
	raw = sanitizeModelJSON(raw)
	if !strings.HasPrefix(raw, "{") {
		// Non-JSON chatter counts as "nothing found" rather than an error;
		// the model was asked for detections and produced none.
		return &modelReply{}, nil
	}
	var reply modelReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return nil, fmt.Errorf("failed to parse model reply: %w", err)
	}
	return &reply, nil
}

var (
	reBlockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLineComment  = regexp.MustCompile(`(?m)^\s*//.*$`)
	reTrailingComa = regexp.MustCompile(`,(\s*[}\]])`)
)

// sanitizeModelJSON removes code fences, comments and trailing commas, and
// keeps only the outermost JSON object.
func sanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.Trim(strings.TrimSpace(raw), "`")
	raw = reBlockComment.ReplaceAllString(raw, "")
	raw = reLineComment.ReplaceAllString(raw, "")
	raw = reTrailingComa.ReplaceAllString(raw, "$1")
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}
