package graphql

import (
	"context"
	"errors"
	"iter"

	"igfetch/pkg/instagram"
	"igfetch/pkg/logger"
	"igfetch/pkg/ratelimit"
	"igfetch/pkg/storage"
)

// Querier runs one timeline query. *instagram.Client implements it.
type Querier interface {
	QueryTimeline(ctx context.Context, endpoint, docID string, vars instagram.TimelineVariables) (*instagram.TimelineResponse, []byte, error)
}

// StopReason says why a walk ended
type StopReason int

const (
	// StopMissingContainer means the response had no timeline connection
	StopMissingContainer StopReason = iota
	// StopLastPage means the server reported no further pages
	StopLastPage
	// StopStaleCursor means the end cursor did not advance
	StopStaleCursor
	// StopMaxPages means the page budget was used up
	StopMaxPages
	// StopFetchFailed means a request or its decoding failed
	StopFetchFailed
	// StopCanceled means the context ended or the visitor asked to stop
	StopCanceled
)

func (r StopReason) String() string {
	switch r {
	case StopMissingContainer:
		return "missing_container"
	case StopLastPage:
		return "last_page"
	case StopStaleCursor:
		return "stale_cursor"
	case StopMaxPages:
		return "max_pages"
	case StopFetchFailed:
		return "fetch_failed"
	case StopCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Options configures a Paginator
type Options struct {
	Endpoint string
	DocID    string
	// PageSize is used when a request leaves it unset
	PageSize int
	// Limiter spaces consecutive page requests. Nil means no spacing.
	Limiter ratelimit.Limiter
	// Dumper receives every successfully fetched page body. Nil disables dumps.
	Dumper *storage.DebugDumper
	Logger logger.Logger
}

// Request describes one walk over a user's timeline
type Request struct {
	Username string
	PageSize int
	// MaxPages bounds the walk; zero or less means unlimited
	MaxPages int
	// After resumes from a saved cursor; nil starts at the newest post
	After *string
}

// Page is one fetched timeline page
type Page struct {
	Number int
	// Cursor is the cursor the page was requested with
	Cursor    *string
	Nodes     []instagram.PostNode
	EndCursor *string
	HasNext   bool
}

// Result summarizes a finished walk
type Result struct {
	Pages  int
	Posts  int
	Reason StopReason
	// Err is set for StopFetchFailed and StopCanceled
	Err error
	// LastCursor is the end cursor of the last page received
	LastCursor *string
}

// Paginator walks the timeline GraphQL connection one page at a time
type Paginator struct {
	q        Querier
	endpoint string
	docID    string
	pageSize int
	limiter  ratelimit.Limiter
	dumper   *storage.DebugDumper
	logger   logger.Logger
}

// NewPaginator creates a paginator over q
func NewPaginator(q Querier, opts Options) *Paginator {
	if opts.Endpoint == "" {
		opts.Endpoint = instagram.GraphQLEndpoint
	}
	if opts.DocID == "" {
		opts.DocID = instagram.TimelineDocID
	}
	if opts.PageSize <= 0 {
		opts.PageSize = instagram.DefaultPageSize
	}
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.Unlimited()
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNopLogger()
	}
	return &Paginator{
		q:        q,
		endpoint: opts.Endpoint,
		docID:    opts.DocID,
		pageSize: opts.PageSize,
		limiter:  opts.Limiter,
		dumper:   opts.Dumper,
		logger:   opts.Logger,
	}
}

// Walk fetches pages until a stop condition holds, handing each page to
// visit. A false return from visit ends the walk. After a page's edges are
// visited the checks run in order: more pages announced, cursor advanced,
// page budget left. A response without the timeline container stops the walk
// before anything is visited. Failures end the walk; they are logged and
// reported in the Result, never returned as an error.
func (p *Paginator) Walk(ctx context.Context, req Request, visit func(Page) bool) Result {
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = p.pageSize
	}
	log := p.logger.WithField("username", req.Username)

	var res Result
	cursor := req.After
	for {
		if err := p.limiter.Wait(ctx); err != nil {
			return p.finish(log, res, StopCanceled, err)
		}

		vars := instagram.NewTimelineVariables(req.Username, pageSize, cursor)
		resp, raw, err := p.q.QueryTimeline(ctx, p.endpoint, p.docID, vars)
		if err != nil {
			if ctx.Err() != nil {
				return p.finish(log, res, StopCanceled, err)
			}
			return p.finish(log, res, StopFetchFailed, err)
		}
		res.Pages++
		p.dumper.Dump(req.Username, res.Pages, raw)

		conn := resp.Data.Connection
		if conn == nil {
			log.WarnWithFields("Timeline container missing from response", map[string]interface{}{
				"page":   res.Pages,
				"status": resp.Status,
			})
			return p.finish(log, res, StopMissingContainer, nil)
		}

		page := Page{
			Number:    res.Pages,
			Cursor:    cursor,
			Nodes:     make([]instagram.PostNode, 0, len(conn.Edges)),
			EndCursor: conn.PageInfo.EndCursor,
			HasNext:   conn.PageInfo.HasNextPage,
		}
		for _, edge := range conn.Edges {
			page.Nodes = append(page.Nodes, edge.Node)
		}
		res.Posts += len(page.Nodes)
		res.LastCursor = page.EndCursor
		logger.LogPage(p.logger, req.Username, page.Number, len(page.Nodes), page.HasNext)

		if !visit(page) {
			return p.finish(log, res, StopCanceled, nil)
		}

		switch {
		case !page.HasNext:
			return p.finish(log, res, StopLastPage, nil)
		case page.EndCursor == nil || sameCursor(page.EndCursor, cursor):
			return p.finish(log, res, StopStaleCursor, nil)
		case req.MaxPages > 0 && res.Pages >= req.MaxPages:
			return p.finish(log, res, StopMaxPages, nil)
		}
		cursor = page.EndCursor
	}
}

func (p *Paginator) finish(log logger.Logger, res Result, reason StopReason, err error) Result {
	res.Reason = reason
	res.Err = err

	fields := map[string]interface{}{
		"pages":  res.Pages,
		"posts":  res.Posts,
		"reason": reason.String(),
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).WarnWithFields("Timeline walk stopped early", fields)
	} else {
		log.InfoWithFields("Timeline walk finished", fields)
	}
	return res
}

func sameCursor(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Posts returns the timeline as a single-pass sequence. Pages are fetched
// lazily; stopping the range loop stops fetching.
func (p *Paginator) Posts(ctx context.Context, req Request) iter.Seq[instagram.PostNode] {
	return func(yield func(instagram.PostNode) bool) {
		p.Walk(ctx, req, func(page Page) bool {
			for _, node := range page.Nodes {
				if !yield(node) {
					return false
				}
			}
			return true
		})
	}
}

// FetchAllPosts collects every node the walk returns. A failed page keeps
// what was gathered before it.
func (p *Paginator) FetchAllPosts(ctx context.Context, username string, pageSize, maxPages int) []instagram.PostNode {
	var posts []instagram.PostNode
	p.Walk(ctx, Request{Username: username, PageSize: pageSize, MaxPages: maxPages}, func(page Page) bool {
		posts = append(posts, page.Nodes...)
		return true
	})
	return posts
}
