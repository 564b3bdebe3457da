// Package roboflow talks to a hosted Roboflow-style detection endpoint.
package roboflow

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/heritage-imaging/ornaflow/pkg/detect"
	"github.com/heritage-imaging/ornaflow/pkg/processing"
	"github.com/heritage-imaging/ornaflow/pkg/types"
)

// DefaultBaseURL is the hosted inference endpoint.
const DefaultBaseURL = "https://detect.roboflow.com"

// Client is an HTTP client for a hosted detection model.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	quality    int
}

// NewClient creates a client for the given endpoint. apiKey must be set; the
// hosted service rejects anonymous calls.
func NewClient(baseURL, apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("missing API key")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid endpoint URL: %w", err)
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		quality:    90,
	}, nil
}

// response is the hosted endpoint's reply. Prediction boxes are
// center-based: x,y is the box center, width/height its extent.
type response struct {
	Image struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"image"`
	Predictions []prediction `json:"predictions"`
}

type prediction struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Confidence float64 `json:"confidence"`
	Class      string  `json:"class"`
	ClassID    int     `json:"class_id"`
}

// Detect sends the image to the hosted model and maps its predictions to
// corner-based detections clamped to the image bounds.
func (c *Client) Detect(ctx context.Context, model string, img image.Image) ([]types.Detection, error) {
	jpg, err := processing.EncodeJPEG(img, 0, c.quality)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	body := base64.StdEncoding.EncodeToString(jpg)

	endpoint := fmt.Sprintf("%s/%s?api_key=%s", c.baseURL, model, url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create inference request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inference request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("inference request failed: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var parsed response
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to parse inference reply: %w", err)
	}

	bounds := img.Bounds()
	dets := make([]types.Detection, 0, len(parsed.Predictions))
	for _, p := range parsed.Predictions {
		d := types.Detection{
			XMin:       p.X - p.Width/2,
			YMin:       p.Y - p.Height/2,
			XMax:       p.X + p.Width/2,
			YMax:       p.Y + p.Height/2,
			ClassID:    p.ClassID,
			Confidence: p.Confidence,
			ClassName:  p.Class,
			Model:      model,
		}
		dets = append(dets, detect.ClampToImage(d, bounds.Dx(), bounds.Dy()))
	}
	return dets, nil
}
