package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"igfetch/pkg/checkpoint"
	"igfetch/pkg/config"
	errs "igfetch/pkg/errors"
	"igfetch/pkg/graphql"
	"igfetch/pkg/instagram"
	"igfetch/pkg/logger"
	"igfetch/pkg/pipeline"
)

type postsOptions struct {
	pageSize     int
	maxPages     int
	resume       bool
	forceRestart bool
}

func newPostsCmd(a *app) *cobra.Command {
	var opts postsOptions
	cmd := &cobra.Command{
		Use:   "posts <username>",
		Short: "Print a user's timeline posts as JSON",
		Long: `Walk a user's timeline through the GraphQL endpoint and print the raw
post nodes as a JSON array.

With --resume the walk continues from the last saved cursor and skips
posts printed by earlier runs. The checkpoint is removed once the last
page has been reached.`,
		Example: `  igfetch posts jane --max-pages 3
  igfetch posts jane --resume`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runPosts(cmd, args, opts)
		},
	}
	cmd.Flags().IntVar(&opts.pageSize, "page-size", 0, "posts per page (default from config)")
	cmd.Flags().IntVar(&opts.maxPages, "max-pages", 0, "pages to fetch, 0 for all")
	cmd.Flags().BoolVar(&opts.resume, "resume", false, "continue from the saved checkpoint")
	cmd.Flags().BoolVar(&opts.forceRestart, "force-restart", false, "discard the saved checkpoint first")
	return cmd
}

func (a *app) runPosts(cmd *cobra.Command, args []string, opts postsOptions) error {
	if len(args) != 1 {
		return reportError(a.stdout, errs.Usage("usage: igfetch posts <username>"))
	}
	username := instagram.SanitizeUsername(args[0])
	if !instagram.IsValidUsername(username) {
		return reportError(a.stdout, errs.Usage("invalid username %q", args[0]))
	}

	extra := map[string]interface{}{"strategy": pipeline.GraphQLStrategy.String()}
	if cmd.Flags().Changed("page-size") {
		extra["page-size"] = opts.pageSize
	}
	if cmd.Flags().Changed("max-pages") {
		extra["max-pages"] = opts.maxPages
	}
	cfg, log, err := a.load(cmd, extra)
	if err != nil {
		return reportError(a.stdout, err)
	}
	paginator, _, err := a.timeline(cfg, log)
	if err != nil {
		return reportError(a.stdout, err)
	}

	var (
		mgr *checkpoint.Manager
		cp  *checkpoint.Checkpoint
	)
	if opts.resume || opts.forceRestart {
		mgr, err = checkpoint.NewManager(a.checkpointDir, username, log)
		if err != nil {
			return reportError(a.stdout, errs.Setup(err, "checkpoint unavailable"))
		}
		if opts.forceRestart {
			if err := mgr.Delete(); err != nil {
				log.WithError(err).Warn("Failed to discard checkpoint")
			}
		}
		if cp, err = mgr.LoadOrCreate(username); err != nil {
			return reportError(a.stdout, errs.Setup(err, "checkpoint unavailable"))
		}
		if cp.EndCursor != "" {
			log.InfoWithFields("Resuming timeline", map[string]interface{}{
				"page":  cp.LastProcessedPage,
				"posts": cp.TotalPosts,
			})
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	req := graphql.Request{
		Username: username,
		PageSize: cfg.GraphQL.PageSize,
		MaxPages: cfg.GraphQL.MaxPages,
		After:    cp.Cursor(),
	}
	posts := make([]instagram.PostNode, 0)
	res := paginator.Walk(ctx, req, func(page graphql.Page) bool {
		codes := make([]string, 0, len(page.Nodes))
		for _, node := range page.Nodes {
			code := node.Shortcode()
			codes = append(codes, code)
			if cp == nil || !cp.HasSeen(code) {
				posts = append(posts, node)
			}
		}
		if mgr != nil && page.EndCursor != nil {
			if _, err := mgr.RecordPage(cp, cp.LastProcessedPage+1, *page.EndCursor, codes); err != nil {
				log.WithError(err).Warn("Failed to save checkpoint")
			}
		}
		return true
	})

	if mgr != nil && res.Reason == graphql.StopLastPage {
		if err := mgr.Delete(); err != nil {
			log.WithError(err).Warn("Failed to remove checkpoint")
		}
	}
	if len(posts) == 0 && res.Err != nil {
		return reportError(a.stdout, errs.Fetch(res.Err, "failed to fetch the timeline of %s", username))
	}
	return writeJSON(a.stdout, posts)
}

func newPostCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "post <url>",
		Short: "Print the timeline node of a single post as JSON",
		Long: `Locate a post on its owner's timeline and print its GraphQL node.
Links that carry the username (instagram.com/<user>/p/<code>/) skip the
post page lookup.`,
		Args: cobra.ArbitraryArgs,
		RunE: a.runPost,
	}
}

func (a *app) runPost(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return reportError(a.stdout, errs.Usage("usage: igfetch post <url>"))
	}
	link, err := instagram.ParseLink(args[0])
	if err != nil {
		return reportError(a.stdout, errs.Validation(err, "invalid instagram link"))
	}
	if link.Kind != instagram.LinkPost {
		return reportError(a.stdout, errs.Usage("not a post link: %s", args[0]))
	}

	cfg, log, err := a.load(cmd, map[string]interface{}{"strategy": pipeline.GraphQLStrategy.String()})
	if err != nil {
		return reportError(a.stdout, err)
	}
	_, locator, err := a.timeline(cfg, log)
	if err != nil {
		return reportError(a.stdout, err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	node, err := locator.FindPost(ctx, link)
	if err != nil {
		return reportError(a.stdout, err)
	}
	return writeJSON(a.stdout, node)
}

func (a *app) timeline(cfg *config.Config, log logger.Logger) (*graphql.Paginator, *graphql.Locator, error) {
	deps := pipeline.Deps{Config: cfg, Logger: log}
	if a.configure != nil {
		a.configure(&deps)
	}
	orch, err := pipeline.New(deps)
	if err != nil {
		return nil, nil, err
	}
	return orch.Timeline()
}
