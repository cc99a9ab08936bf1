package pipeline

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"

	"igfetch/internal/downloader"
	"igfetch/pkg/config"
	errs "igfetch/pkg/errors"
	"igfetch/pkg/extractor"
	"igfetch/pkg/graphql"
	"igfetch/pkg/instagram"
	"igfetch/pkg/logger"
	"igfetch/pkg/pacing"
	"igfetch/pkg/ratelimit"
	"igfetch/pkg/session"
	"igfetch/pkg/storage"
)

// setupFailed is the message every session or browser setup error surfaces as
const setupFailed = "driver/session setup failed"

// Request is one retrieval
type Request struct {
	URL  string
	Kind extractor.Kind
}

// MediaItem is one manifest entry
type MediaItem struct {
	URL      string              `json:"url"`
	Filename string              `json:"filename"`
	Type     extractor.MediaType `json:"type"`
}

// Result is a completed run
type Result struct {
	Items []MediaItem
	// Dir is the run directory holding the files
	Dir string
	// Discovered counts candidates before downloading
	Discovered int
	// Dropped counts candidates that failed or came back empty
	Dropped int
}

// Deps carries what a run needs. Only Config is required.
type Deps struct {
	Config *config.Config
	Logger logger.Logger

	// Launch starts the browser; nil uses LaunchBrowser
	Launch LaunchFunc
	// Transport replaces the HTTP transport, for tests
	Transport http.RoundTripper
	// RetryDelay replaces the configured pause between download attempts
	RetryDelay pacing.Policy
	// PageLimiter replaces the configured spacing between GraphQL pages
	PageLimiter ratelimit.Limiter
	// OnState observes every state change
	OnState func(from, to State)
}

// Orchestrator runs the retrieval state machine
type Orchestrator struct {
	cfg      *config.Config
	strategy Strategy
	deps     Deps
	logger   logger.Logger
}

// New validates deps and returns an orchestrator for the configured strategy
func New(deps Deps) (*Orchestrator, error) {
	if deps.Config == nil {
		return nil, errors.New("pipeline: config is required")
	}
	strategy, err := ParseStrategy(deps.Config.Strategy)
	if err != nil {
		return nil, err
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNopLogger()
	}
	if deps.Launch == nil {
		deps.Launch = LaunchBrowser
	}
	return &Orchestrator{
		cfg:      deps.Config,
		strategy: strategy,
		deps:     deps,
		logger:   deps.Logger.WithField("component", "pipeline"),
	}, nil
}

// Strategy returns the strategy runs use
func (o *Orchestrator) Strategy() Strategy {
	return o.strategy
}

// run tracks one invocation's state
type run struct {
	o     *Orchestrator
	state State
}

func (r *run) to(s State) {
	if !CanTransition(r.state, s) {
		r.o.logger.WarnWithFields("Illegal state transition", map[string]interface{}{
			"from": r.state.String(),
			"to":   s.String(),
		})
		return
	}
	logger.LogStateChange(r.o.logger, r.state.String(), s.String())
	if r.o.deps.OnState != nil {
		r.o.deps.OnState(r.state, s)
	}
	r.state = s
}

// Run retrieves the media behind req into a fresh run directory. The
// browser, when one was launched, is closed on every path. On failure the
// returned error is an *errors.Error whose message is fit for the caller.
func (o *Orchestrator) Run(ctx context.Context, req Request) (res *Result, err error) {
	r := &run{o: o, state: StateInit}
	log := o.logger.WithFields(map[string]interface{}{
		"url":      req.URL,
		"type":     string(req.Kind),
		"strategy": o.strategy.String(),
	})
	defer func() {
		if err != nil {
			r.to(StateFailed)
			log.WithError(err).Error("Retrieval failed")
		}
	}()

	kind, kerr := extractor.ParseKind(string(req.Kind))
	if kerr != nil {
		return nil, errs.Usage("%v", kerr)
	}
	req.Kind = kind
	if o.strategy == GraphQLStrategy && req.Kind == extractor.KindStory {
		return nil, errs.Usage("the %s strategy does not support stories", o.strategy)
	}

	sess, serr := o.bootstrap()
	if serr != nil {
		return nil, errs.Setup(serr, setupFailed)
	}
	client := o.newClient(sess)

	src, serr := o.newSource(sess, client)
	if serr != nil {
		return nil, errs.Setup(serr, setupFailed)
	}
	defer src.close()

	if perr := src.prepare(ctx); perr != nil {
		return nil, errs.Setup(perr, setupFailed)
	}
	r.to(StateSessionReady)

	candidates, derr := src.discover(ctx, req)
	if derr != nil {
		var classified *errs.Error
		if ctx.Err() != nil {
			return nil, errs.Fetch(derr, "retrieval interrupted")
		}
		if errors.As(derr, &classified) {
			return nil, classified
		}
		return nil, errs.Extraction(derr, "no media found for %s", req.Kind)
	}
	if len(candidates) == 0 {
		return nil, errs.Extraction(nil, "no media found for %s", req.Kind)
	}
	log.InfoWithFields("Media discovered", map[string]interface{}{"candidates": len(candidates)})
	r.to(StateMediaDiscovered)

	r.to(StateDownloading)
	res, err = o.download(ctx, client, req, candidates)
	if err != nil {
		return nil, err
	}
	r.to(StateCompleted)

	log.InfoWithFields("Retrieval completed", map[string]interface{}{
		"files":   len(res.Items),
		"dropped": res.Dropped,
		"dir":     res.Dir,
	})
	return res, nil
}

func (o *Orchestrator) bootstrap() (*session.Session, error) {
	ig := o.cfg.Instagram
	opts := []session.Option{session.WithCookieDomain(ig.CookieDomain)}
	if ig.UserAgent != "" {
		opts = append(opts, session.WithUserAgent(ig.UserAgent))
	}
	pool := ig.UserAgents
	if len(pool) == 0 {
		pool = config.DefaultUserAgents
	}
	opts = append(opts, session.WithUserAgentPool(pool))

	sess, err := session.Bootstrap(ig.Cookies, o.cfg.Proxy.URL, opts...)
	if err != nil {
		return nil, err
	}
	o.logger.InfoWithFields("Session ready", map[string]interface{}{
		"cookies": sess.CookieNames(),
		"proxy":   sess.ProxyHost(),
	})
	return sess, nil
}

func (o *Orchestrator) newClient(sess *session.Session) *instagram.Client {
	return instagram.NewClient(instagram.ClientOptions{
		Session:        sess,
		BaseURL:        o.cfg.Instagram.BaseURL,
		Timeout:        o.cfg.GraphQL.Timeout,
		TLSFingerprint: o.cfg.Instagram.TLSFingerprint,
		Logger:         o.logger,
		Transport:      o.deps.Transport,
	})
}

func (o *Orchestrator) newSource(sess *session.Session, client *instagram.Client) (source, error) {
	if o.strategy == BrowserStrategy {
		ext, err := extractor.NewDefault(extractor.DefaultDomain, o.logger)
		if err != nil {
			return nil, err
		}
		return &browserSource{
			cfg:     o.cfg,
			sess:    sess,
			launch:  o.deps.Launch,
			extract: ext,
			logger:  o.logger,
		}, nil
	}

	return o.newGraphQLSource(client), nil
}

func (o *Orchestrator) newGraphQLSource(client *instagram.Client) *graphQLSource {
	gq := o.cfg.GraphQL
	limiter := o.deps.PageLimiter
	if limiter == nil {
		limiter = ratelimit.NewInterval(gq.PageDelay)
	}
	var dumper *storage.DebugDumper
	if gq.DebugDumps {
		dumper = storage.NewDebugDumper(o.cfg.Output.DebugDir, o.logger)
	}
	paginator := graphql.NewPaginator(client, graphql.Options{
		Endpoint: gq.Endpoint,
		DocID:    gq.DocID,
		PageSize: gq.PageSize,
		Limiter:  limiter,
		Dumper:   dumper,
		Logger:   o.logger,
	})
	return &graphQLSource{
		paginator: paginator,
		locator:   graphql.NewLocator(client, paginator, gq.LookupPages, o.logger),
		pageSize:  gq.PageSize,
		maxPages:  gq.MaxPages,
		logger:    o.logger,
	}
}

// Timeline returns a paginator and locator bound to a fresh session, for
// callers that want timeline nodes rather than files
func (o *Orchestrator) Timeline() (*graphql.Paginator, *graphql.Locator, error) {
	sess, err := o.bootstrap()
	if err != nil {
		return nil, nil, errs.Setup(err, setupFailed)
	}
	src := o.newGraphQLSource(o.newClient(sess))
	return src.paginator, src.locator, nil
}

func (o *Orchestrator) download(ctx context.Context, client *instagram.Client, req Request, candidates []extractor.Candidate) (*Result, error) {
	out, err := storage.NewRun(o.cfg.Output.UploadsDir, string(req.Kind))
	if err != nil {
		return nil, errs.Download(err, "failed to create output directory")
	}

	jobs := make([]downloader.DownloadJob, len(candidates))
	for i, c := range candidates {
		jobs[i] = downloader.DownloadJob{URL: c.URL, Dest: out.MediaPath(i+1, c.Extension())}
	}

	dl := downloader.New(client, downloader.Options{
		Attempts:    o.cfg.Download.Attempts,
		IdleTimeout: o.cfg.Download.Timeout,
		Delay:       o.retryDelay(),
		Logger:      o.logger,
	})
	results := dl.FetchAll(ctx, jobs)

	res := &Result{Dir: out.Dir(), Discovered: len(candidates)}
	for i, result := range results {
		if !result.Success() || result.Size == 0 {
			// Failed attempts leave nothing behind; empty files do
			if err := out.Discard(result.Job.Dest); err != nil {
				o.logger.WithError(err).Warn("Failed to discard download")
			}
			res.Dropped++
			continue
		}
		filename := filepath.Base(result.Job.Dest)
		res.Items = append(res.Items, MediaItem{
			URL:      out.PublicURL(o.cfg.Output.PublicPrefix, filename),
			Filename: filename,
			Type:     candidates[i].Type,
		})
	}

	if len(res.Items) == 0 {
		if err := out.Remove(); err != nil {
			o.logger.WithError(err).Warn("Failed to remove empty run directory")
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errs.Download(ctxErr, "download interrupted")
		}
		return nil, errs.Validation(nil, "no valid media downloaded for %s", req.Kind)
	}

	if o.cfg.Output.WriteManifest {
		if _, err := out.WriteManifest(res.Items); err != nil {
			o.logger.WithError(err).Warn("Failed to write manifest file")
		}
	}
	return res, nil
}

func (o *Orchestrator) retryDelay() pacing.Policy {
	if o.deps.RetryDelay != nil {
		return o.deps.RetryDelay
	}
	d := o.cfg.Download.RetryDelay
	return pacing.Between(d.Min, d.Max)
}
