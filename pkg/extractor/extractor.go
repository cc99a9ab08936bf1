package extractor

import (
	"context"
	"fmt"
	"strings"

	errs "igfetch/pkg/errors"
	"igfetch/pkg/logger"
)

// DefaultDomain scopes the DOM strategy's img selector
const DefaultDomain = "instagram"

var mediaExtensions = []string{".jpg", ".jpeg", ".png", ".mp4"}

// Extractor runs its strategies over a page and merges their results
type Extractor struct {
	strategies []Strategy
	logger     logger.Logger
}

// New creates an extractor running strategies in order
func New(log logger.Logger, strategies ...Strategy) *Extractor {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Extractor{strategies: strategies, logger: log}
}

// NewDefault creates the meta, script and dom extractor for domain
func NewDefault(domain string, log logger.Logger) (*Extractor, error) {
	if domain == "" {
		domain = DefaultDomain
	}
	dom, err := NewDOMStrategy(domain)
	if err != nil {
		return nil, err
	}
	return New(log, MetaStrategy{}, ScriptStrategy{}, dom), nil
}

// Extract returns the page's media candidates in first-seen order. A
// strategy that fails is logged and skipped. No candidates is an
// extraction failure.
func (e *Extractor) Extract(ctx context.Context, page *RenderedPage, kind Kind) ([]Candidate, error) {
	var raw []string
	for _, s := range e.strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !s.Applies(kind) {
			continue
		}
		urls, err := e.run(s, page)
		if err != nil {
			e.logger.WithError(err).WarnWithFields("Extraction strategy failed", map[string]interface{}{
				"strategy": s.Name(),
				"page":     page.URL,
			})
			continue
		}
		e.logger.DebugWithFields("Extraction strategy finished", map[string]interface{}{
			"strategy": s.Name(),
			"found":    len(urls),
		})
		raw = append(raw, urls...)
	}

	candidates := Dedupe(Filter(raw))
	if len(candidates) == 0 {
		return nil, errs.Extraction(nil, "no media found for %s", kind)
	}

	e.logger.InfoWithFields("Media discovered", map[string]interface{}{
		"page":       page.URL,
		"candidates": len(candidates),
	})
	return candidates, nil
}

func (e *Extractor) run(s Strategy, page *RenderedPage) (urls []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("strategy %s panicked: %v", s.Name(), r)
		}
	}()
	return s.Extract(page)
}

// IsMediaURL reports whether u looks like a downloadable asset
func IsMediaURL(u string) bool {
	if !strings.HasPrefix(u, "http") {
		return false
	}
	lower := strings.ToLower(u)
	for _, ext := range mediaExtensions {
		if strings.Contains(lower, ext) {
			return true
		}
	}
	return false
}

// Filter drops URLs that are not media assets
func Filter(urls []string) []string {
	kept := make([]string, 0, len(urls))
	for _, u := range urls {
		if IsMediaURL(u) {
			kept = append(kept, u)
		}
	}
	return kept
}

// Dedupe removes exact duplicates, keeping the first occurrence
func Dedupe(urls []string) []Candidate {
	seen := make(map[string]bool, len(urls))
	var out []Candidate
	for _, u := range urls {
		if seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, Candidate{URL: u, Type: TypeOf(u)})
	}
	return out
}

// TypeOf infers the media type from the URL path. The query string is
// ignored, so signed CDN links still classify correctly.
func TypeOf(u string) MediaType {
	p := u
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if strings.HasSuffix(strings.ToLower(p), ".mp4") {
		return MediaVideo
	}
	return MediaImage
}
