package extractor

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Kind is what the caller asked to retrieve
type Kind string

const (
	KindPost  Kind = "post"
	KindStory Kind = "story"
)

// ParseKind validates a user-supplied media type
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindPost, KindStory:
		return k, nil
	}
	return "", fmt.Errorf("invalid media type %q: must be post or story", s)
}

// MediaType is the type recorded for a downloaded asset
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

// Candidate is a discovered media URL
type Candidate struct {
	URL  string    `json:"url"`
	Type MediaType `json:"type"`
}

// Extension returns the file extension a candidate is stored under
func (c Candidate) Extension() string {
	if c.Type == MediaVideo {
		return "mp4"
	}
	return "jpg"
}

// RenderedPage is a snapshot of a page after scripts ran and scrolling finished
type RenderedPage struct {
	URL  string
	HTML string
	doc  *goquery.Document
}

// NewRenderedPage parses html into a page snapshot
func NewRenderedPage(url, html string) (*RenderedPage, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page html: %w", err)
	}
	return &RenderedPage{URL: url, HTML: html, doc: doc}, nil
}

// Document returns the parsed document
func (p *RenderedPage) Document() *goquery.Document {
	return p.doc
}
