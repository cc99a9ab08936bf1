package extractor

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

// Strategy finds raw media URLs in a rendered page
type Strategy interface {
	Name() string
	// Applies reports whether the strategy runs for kind
	Applies(kind Kind) bool
	Extract(page *RenderedPage) ([]string, error)
}

// MetaStrategy reads og:image and og:video meta tags
type MetaStrategy struct{}

func (MetaStrategy) Name() string      { return "meta" }
func (MetaStrategy) Applies(Kind) bool { return true }

func (MetaStrategy) Extract(page *RenderedPage) ([]string, error) {
	var urls []string
	page.Document().Find(`meta[property="og:image"], meta[property="og:video"]`).Each(func(_ int, s *goquery.Selection) {
		if content, ok := s.Attr("content"); ok && content != "" {
			urls = append(urls, content)
		}
	})
	return urls, nil
}

var mediaURLPattern = regexp.MustCompile(`https?://[^\s<>"]+?\.(?:jpg|jpeg|png|mp4)`)

// embedded JSON escapes slashes and ampersands
var scriptUnescaper = strings.NewReplacer(`\/`, `/`, `\u0026`, `&`, `\u002F`, `/`)

// ScriptStrategy scans inline script text for media URLs
type ScriptStrategy struct{}

func (ScriptStrategy) Name() string      { return "script" }
func (ScriptStrategy) Applies(Kind) bool { return true }

func (ScriptStrategy) Extract(page *RenderedPage) ([]string, error) {
	var urls []string
	page.Document().Find("script").Each(func(_ int, s *goquery.Selection) {
		if _, external := s.Attr("src"); external {
			return
		}
		text := scriptUnescaper.Replace(s.Text())
		urls = append(urls, mediaURLPattern.FindAllString(text, -1)...)
	})
	return urls, nil
}

// DOMStrategy collects img sources served from the target domain. It only
// runs for posts; story pages render unrelated avatars the same way.
type DOMStrategy struct {
	selector cascadia.Selector
}

// NewDOMStrategy compiles the img selector for domain
func NewDOMStrategy(domain string) (*DOMStrategy, error) {
	if domain == "" || strings.ContainsAny(domain, `"\`) {
		return nil, fmt.Errorf("invalid domain %q", domain)
	}
	sel, err := cascadia.Compile(fmt.Sprintf(`img[src*="%s"]`, domain))
	if err != nil {
		return nil, fmt.Errorf("failed to compile selector: %w", err)
	}
	return &DOMStrategy{selector: sel}, nil
}

func (d *DOMStrategy) Name() string { return "dom" }

func (d *DOMStrategy) Applies(kind Kind) bool { return kind == KindPost }

func (d *DOMStrategy) Extract(page *RenderedPage) ([]string, error) {
	var urls []string
	page.Document().FindMatcher(d.selector).Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok {
			urls = append(urls, src)
		}
	})
	return urls, nil
}
