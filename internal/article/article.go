// Package article fetches article content from the CMS content API and
// distills it into plain text for suggestion requests.
package article

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/newsdesk/tagsuggest/internal/textutil"
)

// bodyLimit caps the fallback body field so a single huge article cannot
// dominate the composed text.
const bodyLimit = 2000

// Client talks to the CMS content API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option is a functional option for configuring Client.
type Option func(*Client)

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// NewClient creates a new CMS content client.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 25 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// content mirrors the fields of the CMS content payload used for text
// extraction. Draft responses wrap the document in an "ans" envelope.
type content struct {
	Type string   `json:"type"`
	ANS  *content `json:"ans"`

	Headlines struct {
		Basic string `json:"basic"`
	} `json:"headlines"`
	Subheadlines struct {
		Basic string `json:"basic"`
	} `json:"subheadlines"`
	ContentElements []struct {
		Content string `json:"content"`
	} `json:"content_elements"`
	Body string `json:"body"`
}

// FetchText retrieves an article by ID and returns its distilled plain
// text: headline, subheadline, content elements, and a trimmed body
// fallback, joined and stripped of inline HTML.
func (c *Client) FetchText(ctx context.Context, articleID string) (string, error) {
	doc, err := c.fetch(ctx, articleID)
	if err != nil {
		return "", err
	}
	return composeText(doc), nil
}

func (c *Client) fetch(ctx context.Context, articleID string) (*content, error) {
	url := fmt.Sprintf("%s/content/v4/stories/%s", c.baseURL, articleID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching article %s: %w", articleID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return nil, fmt.Errorf("content API error (status %d): %s", resp.StatusCode, string(body))
	}

	ct := resp.Header.Get("Content-Type")
	if !strings.Contains(strings.ToLower(ct), "json") {
		return nil, fmt.Errorf("content API returned %q, expected JSON", ct)
	}

	var doc content
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding article %s: %w", articleID, err)
	}

	// Draft API responses carry the document inside an envelope.
	if doc.Type == "DRAFT" && doc.ANS != nil {
		return doc.ANS, nil
	}
	return &doc, nil
}

// composeText builds compact, high-signal text from the content payload.
func composeText(doc *content) string {
	parts := make([]string, 0, 4)
	if s := strings.TrimSpace(doc.Headlines.Basic); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(doc.Subheadlines.Basic); s != "" {
		parts = append(parts, s)
	}

	elems := make([]string, 0, len(doc.ContentElements))
	for _, el := range doc.ContentElements {
		if el.Content != "" {
			elems = append(elems, el.Content)
		}
	}
	if len(elems) > 0 {
		parts = append(parts, strings.Join(elems, " "))
	}

	if body := strings.TrimSpace(doc.Body); body != "" {
		parts = append(parts, textutil.Truncate(body, bodyLimit))
	}

	return textutil.StripHTML(strings.Join(parts, " "))
}
