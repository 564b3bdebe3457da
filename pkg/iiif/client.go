package iiif

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/heritage-imaging/ornaflow/pkg/ark"
)

// paginationURL is the Gallica service reporting the number of views of a
// document.
const paginationURL = "https://gallica.bnf.fr/services/Pagination"

// Client downloads images and pagination data from the Gallica APIs.
type Client struct {
	base       string
	pagination string
	httpClient *http.Client
	userAgent  string
}

// NewClient creates a client for the given IIIF base URL. An empty base
// selects the BnF v3 endpoint.
func NewClient(base string, timeout time.Duration) *Client {
	if base == "" {
		base = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		base:       base,
		pagination: paginationURL,
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  "ornaflow/1.0 (+https://github.com/heritage-imaging/ornaflow)",
	}
}

// BaseURL returns the IIIF base URL the client was built with.
func (c *Client) BaseURL() string {
	return c.base
}

// PageCount asks the pagination service how many views a document has.
func (c *Client) PageCount(ctx context.Context, id string) (int, error) {
	url := fmt.Sprintf("%s?ark=%s&format=xml", c.pagination, ark.ID(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create pagination request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("pagination request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("pagination request failed: HTTP %d %s", resp.StatusCode, resp.Status)
	}

	n, err := parsePageCount(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("pagination reply for %s: %w", id, err)
	}
	return n, nil
}

// parsePageCount scans the pagination XML for the first nbVueImages element,
// wherever it sits in the document tree.
func parsePageCount(r io.Reader) (int, error) {
	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return 0, fmt.Errorf("no nbVueImages element found")
		}
		if err != nil {
			return 0, fmt.Errorf("malformed XML: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "nbVueImages" {
			continue
		}
		var text string
		if err := dec.DecodeElement(&text, &start); err != nil {
			return 0, fmt.Errorf("malformed nbVueImages element: %w", err)
		}
		n, err := strconv.Atoi(strings.TrimSpace(text))
		if err != nil {
			return 0, fmt.Errorf("non-numeric nbVueImages value %q", text)
		}
		return n, nil
	}
}

// Fetch retrieves an image URL and returns its raw bytes after checking the
// response is an image.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create image request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image request failed: HTTP %d %s", resp.StatusCode, resp.Status)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "image/") {
		return nil, fmt.Errorf("URL does not serve an image (Content-Type: %s)", ct)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	return data, nil
}

// Download fetches an image URL into a file, creating parent directories as
// needed. An existing file is left untouched and reported via the skipped
// return, which is what makes reruns of a fetch idempotent.
func (c *Client) Download(ctx context.Context, url, path string) (skipped bool, err error) {
	if _, err := os.Stat(path); err == nil {
		return true, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create output directory: %w", err)
	}
	data, err := c.Fetch(ctx, url)
	if err != nil {
		return false, err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false, fmt.Errorf("failed to write image file: %w", err)
	}
	return false, nil
}
