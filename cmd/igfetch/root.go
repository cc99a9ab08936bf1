package main

import (
	"errors"
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"

	"igfetch/pkg/auth"
	"igfetch/pkg/config"
	"igfetch/pkg/logger"
	"igfetch/pkg/pipeline"
)

var (
	// Version information
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// errReported marks a failure whose JSON error object is already on stdout
var errReported = errors.New("error already reported")

// app carries the global flags and the streams of one invocation
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	configFile    string
	logLevel      string
	strategy      string
	uploads       string
	proxy         string
	profile       string
	headless      bool
	manifest      bool
	checkpointDir string

	// overridable in tests
	newAuth   func() (*auth.Manager, error)
	configure func(*pipeline.Deps)
}

func newApp(stdin io.Reader, stdout, stderr io.Writer) *app {
	return &app{
		stdin:   stdin,
		stdout:  stdout,
		stderr:  stderr,
		newAuth: func() (*auth.Manager, error) { return auth.NewManager("") },
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "igfetch <url> <post|story>",
		Short: "Download the photos and videos behind an Instagram link",
		Long: `igfetch downloads the media of an Instagram post or story into
uploads/<type>_<uuid>/ and prints a JSON manifest of the saved files.

Cookies come from INSTAGRAM_COOKIES, the config file, or a profile saved
with 'igfetch auth login'. PROXY_URL routes all traffic through a proxy.

Without a subcommand the arguments are handed to 'fetch'.`,
		Args:          cobra.ArbitraryArgs,
		RunE:          a.runFetch,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configFile, "config", "c", "", "config file (default is ./.igfetch.yaml or ~/.config/igfetch/config.yaml)")
	pf.StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVar(&a.strategy, "strategy", "", "discovery strategy (browser, graphql)")
	pf.StringVar(&a.uploads, "uploads", "", "directory that receives run directories")
	pf.StringVar(&a.proxy, "proxy", "", "proxy URL (overrides PROXY_URL)")
	pf.StringVar(&a.profile, "profile", "", "stored cookie profile to use")
	pf.BoolVar(&a.headless, "headless", true, "run the browser headless")
	pf.BoolVar(&a.manifest, "manifest-file", false, "also write manifest.json into the run directory")

	root.SetVersionTemplate(`{{printf "igfetch %s\n" .Version}}` + fmt.Sprintf("Go %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH))
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetIn(a.stdin)
	root.SetOut(a.stderr)
	root.SetErr(a.stderr)

	root.AddCommand(
		newFetchCmd(a),
		newPostsCmd(a),
		newPostCmd(a),
		newAuthCmd(a),
		newConfigCmd(a),
	)
	return root
}

// Execute runs the command line and returns the process exit code
func Execute(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	a := newApp(stdin, stdout, stderr)
	return a.execute(args)
}

func (a *app) execute(args []string) int {
	root := newRootCmd(a)
	if args == nil {
		// cobra reads os.Args for a nil slice
		args = []string{}
	}
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(a.stderr, "Error:", err)
		}
		return 1
	}
	return 0
}

// load builds the effective configuration and logger for a command
func (a *app) load(cmd *cobra.Command, extra map[string]interface{}) (*config.Config, logger.Logger, error) {
	flags := a.flagMap(cmd)
	for k, v := range extra {
		flags[k] = v
	}

	cfg, err := config.Load(a.configFile, flags)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if err := a.resolveCookies(cfg, log); err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

// resolveCookies fills in cookies from a stored profile when neither the
// environment nor the config file supplied them
func (a *app) resolveCookies(cfg *config.Config, log logger.Logger) error {
	if cfg.Instagram.Cookies != "" && a.profile == "" {
		return nil
	}

	manager, err := a.newAuth()
	if err != nil {
		log.WithError(err).Warn("Cookie store unavailable")
		if a.profile != "" {
			return fmt.Errorf("cannot load profile %q: %w", a.profile, err)
		}
		return nil
	}

	profile, err := manager.Resolve(a.profile)
	switch {
	case errors.Is(err, auth.ErrProfileNotFound) && a.profile == "":
		log.Warn("No Instagram cookies configured, continuing without a session")
		return nil
	case err != nil:
		return fmt.Errorf("cannot load profile %q: %w", a.profile, err)
	}

	cfg.Instagram.Cookies = profile.Cookies
	if cfg.Instagram.UserAgent == "" {
		cfg.Instagram.UserAgent = profile.UserAgent
	}
	log.WithField("profile", profile.Name).Debug("Using stored cookie profile")
	return nil
}
