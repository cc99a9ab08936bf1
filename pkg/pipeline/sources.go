package pipeline

import (
	"context"

	"igfetch/pkg/browser"
	"igfetch/pkg/config"
	errs "igfetch/pkg/errors"
	"igfetch/pkg/extractor"
	"igfetch/pkg/graphql"
	"igfetch/pkg/instagram"
	"igfetch/pkg/logger"
	"igfetch/pkg/session"
)

// Renderer is the part of a browser session the pipeline drives.
// *browser.Session implements it.
type Renderer interface {
	InjectCookies(ctx context.Context, baseURL string) (int, error)
	Render(ctx context.Context, url string) (*extractor.RenderedPage, error)
	Close()
}

// LaunchFunc starts a browser bound to sess
type LaunchFunc func(ctx context.Context, cfg config.BrowserConfig, sess *session.Session, log logger.Logger) (Renderer, error)

// LaunchBrowser is the default LaunchFunc
func LaunchBrowser(ctx context.Context, cfg config.BrowserConfig, sess *session.Session, log logger.Logger) (Renderer, error) {
	s, err := browser.Launch(ctx, cfg, sess, log)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// source discovers media for one request. prepare moves a run to
// SessionReady; close releases whatever prepare acquired.
type source interface {
	prepare(ctx context.Context) error
	discover(ctx context.Context, req Request) ([]extractor.Candidate, error)
	close()
}

type browserSource struct {
	cfg     *config.Config
	sess    *session.Session
	launch  LaunchFunc
	extract *extractor.Extractor
	logger  logger.Logger

	renderer Renderer
}

func (b *browserSource) prepare(ctx context.Context) error {
	r, err := b.launch(ctx, b.cfg.Browser, b.sess, b.logger)
	if err != nil {
		return err
	}
	b.renderer = r

	if _, err := r.InjectCookies(ctx, b.cfg.Instagram.BaseURL); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b.logger.WithError(err).Warn("Cookie injection failed, continuing with a partial session")
	}
	return nil
}

func (b *browserSource) discover(ctx context.Context, req Request) ([]extractor.Candidate, error) {
	page, err := b.renderer.Render(ctx, req.URL)
	if err != nil {
		return nil, errs.Fetch(err, "failed to load %s", req.URL)
	}
	return b.extract.Extract(ctx, page, req.Kind)
}

func (b *browserSource) close() {
	if b.renderer != nil {
		b.renderer.Close()
		b.renderer = nil
	}
}

type graphQLSource struct {
	paginator *graphql.Paginator
	locator   *graphql.Locator
	pageSize  int
	maxPages  int
	logger    logger.Logger
}

func (g *graphQLSource) prepare(ctx context.Context) error {
	return ctx.Err()
}

func (g *graphQLSource) discover(ctx context.Context, req Request) ([]extractor.Candidate, error) {
	link, err := instagram.ParseLink(req.URL)
	if err != nil {
		return nil, errs.Validation(err, "invalid instagram link: %s", req.URL)
	}

	var nodes []instagram.PostNode
	switch link.Kind {
	case instagram.LinkPost:
		node, err := g.locator.FindPost(ctx, link)
		if err != nil {
			return nil, err
		}
		nodes = []instagram.PostNode{node}
	case instagram.LinkProfile:
		nodes = g.paginator.FetchAllPosts(ctx, link.Username, g.pageSize, g.maxPages)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	default:
		return nil, errs.Validation(nil, "unsupported %s link for the graphql strategy: %s", link.Kind, req.URL)
	}

	candidates := CandidatesFromNodes(nodes)
	if len(candidates) == 0 {
		return nil, errs.Extraction(nil, "no media found for %s", req.Kind)
	}
	g.logger.InfoWithFields("Media discovered from timeline", map[string]interface{}{
		"posts":      len(nodes),
		"candidates": len(candidates),
	})
	return candidates, nil
}

func (g *graphQLSource) close() {}

// CandidatesFromNodes flattens the nodes' media in order, dropping repeats
func CandidatesFromNodes(nodes []instagram.PostNode) []extractor.Candidate {
	var out []extractor.Candidate
	seen := make(map[string]bool)
	for _, node := range nodes {
		for _, ref := range node.MediaRefs() {
			if ref.URL == "" || seen[ref.URL] {
				continue
			}
			seen[ref.URL] = true
			typ := extractor.MediaImage
			if ref.Video {
				typ = extractor.MediaVideo
			}
			out = append(out, extractor.Candidate{URL: ref.URL, Type: typ})
		}
	}
	return out
}
