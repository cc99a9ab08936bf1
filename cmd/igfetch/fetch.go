package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	errs "igfetch/pkg/errors"
	"igfetch/pkg/extractor"
	"igfetch/pkg/pipeline"
)

func newFetchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <url> <post|story>",
		Short: "Download the media of a post or story",
		Long: `Download every photo and video of one post or story.

On success a JSON array of {url, filename, type} is printed to stdout.
On failure a JSON object {"error": "..."} is printed and the exit code is 1.`,
		Example: `  igfetch https://www.instagram.com/p/ABC123/ post
  igfetch fetch https://www.instagram.com/stories/jane/3141592653/ story
  igfetch --strategy graphql https://www.instagram.com/jane/p/ABC123/ post`,
		Args: cobra.ArbitraryArgs,
		RunE: a.runFetch,
	}
}

func (a *app) runFetch(cmd *cobra.Command, args []string) error {
	if len(args) != 2 {
		return reportError(a.stdout, errs.Usage("usage: igfetch <url> <post|story>"))
	}
	kind, err := extractor.ParseKind(args[1])
	if err != nil {
		return reportError(a.stdout, errs.Usage("%v", err))
	}

	cfg, log, err := a.load(cmd, nil)
	if err != nil {
		return reportError(a.stdout, err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := pipeline.Deps{Config: cfg, Logger: log}
	if a.configure != nil {
		a.configure(&deps)
	}
	orch, err := pipeline.New(deps)
	if err != nil {
		return reportError(a.stdout, err)
	}

	res, err := orch.Run(ctx, pipeline.Request{URL: strings.TrimSpace(args[0]), Kind: kind})
	if err != nil {
		return reportError(a.stdout, err)
	}
	return writeJSON(a.stdout, res.Items)
}
