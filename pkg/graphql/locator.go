package graphql

import (
	"bytes"
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"

	errs "igfetch/pkg/errors"
	"igfetch/pkg/instagram"
	"igfetch/pkg/logger"
)

// PageFetcher loads an HTML page. *instagram.Client implements it.
type PageFetcher interface {
	GetPage(ctx context.Context, url string) ([]byte, error)
}

// Locator resolves post links to timeline nodes
type Locator struct {
	pages       PageFetcher
	paginator   *Paginator
	lookupPages int
	logger      logger.Logger
}

// NewLocator creates a locator that searches the first lookupPages pages of
// the owner's timeline. lookupPages <= 0 searches one page.
func NewLocator(pages PageFetcher, paginator *Paginator, lookupPages int, log logger.Logger) *Locator {
	if lookupPages <= 0 {
		lookupPages = 1
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Locator{
		pages:       pages,
		paginator:   paginator,
		lookupPages: lookupPages,
		logger:      log,
	}
}

// Owner returns the username of the post's author. Links that carry the
// username are answered without a request; otherwise the post page's
// og:title is read.
func (l *Locator) Owner(ctx context.Context, link instagram.Link) (string, error) {
	if link.Username != "" {
		return link.Username, nil
	}
	if link.Shortcode == "" {
		return "", errs.Validation(nil, "not a post link: %s", link.URL)
	}

	postURL := instagram.GetPostURL(link.Shortcode)
	html, err := l.pages.GetPage(ctx, postURL)
	if err != nil {
		return "", errs.Fetch(err, "failed to load post page %s", postURL)
	}

	username := UsernameFromPage(html)
	if username == "" {
		return "", errs.Extraction(nil, "could not determine the owner of post %s", link.Shortcode)
	}
	l.logger.DebugWithFields("Resolved post owner", map[string]interface{}{
		"shortcode": link.Shortcode,
		"username":  username,
	})
	return username, nil
}

// FindPost walks the owner's timeline and returns the node whose code
// matches the link's shortcode.
func (l *Locator) FindPost(ctx context.Context, link instagram.Link) (instagram.PostNode, error) {
	username, err := l.Owner(ctx, link)
	if err != nil {
		return instagram.PostNode{}, err
	}

	req := Request{Username: username, MaxPages: l.lookupPages}
	for node := range l.paginator.Posts(ctx, req) {
		if node.Shortcode() == link.Shortcode {
			return node, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return instagram.PostNode{}, err
	}
	return instagram.PostNode{}, errs.Extraction(nil,
		"post %s not found in the latest %d page(s) of %s", link.Shortcode, l.lookupPages, username)
}

// UsernameFromPage reads the author from a post page's og:title, falling
// back to the document title.
func UsernameFromPage(html []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return ""
	}

	if title, ok := doc.Find(`meta[property="og:title"]`).First().Attr("content"); ok {
		if u := instagram.UsernameFromTitle(title); u != "" {
			return u
		}
	}
	return instagram.UsernameFromTitle(strings.TrimSpace(doc.Find("title").First().Text()))
}
