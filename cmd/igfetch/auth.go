package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"igfetch/pkg/auth"
)

func newAuthCmd(a *app) *cobra.Command {
	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage stored Instagram cookie profiles",
		Long: `Manage Instagram cookie strings stored on this machine.

Profiles are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation

INSTAGRAM_COOKIES always takes precedence over stored profiles.
Never share your cookie string or the files that hold it!`,
	}

	var userAgent string
	login := &cobra.Command{
		Use:   "login [profile]",
		Short: "Store a cookie string",
		Long: `Store the Cookie header of a logged-in browser session under a profile
name (default: "default"). The value is read from the terminal without
echo, or from stdin when it is not a terminal.`,
		Example: `  igfetch auth login
  igfetch auth login work --user-agent "Mozilla/5.0 ..."
  pbpaste | igfetch auth login`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runLogin(args, userAgent)
		},
	}
	login.Flags().StringVar(&userAgent, "user-agent", "", "user agent to send with this profile")

	var all bool
	logout := &cobra.Command{
		Use:   "logout [profile]",
		Short: "Remove a stored profile",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runLogout(args, all)
		},
	}
	logout.Flags().BoolVar(&all, "all", false, "remove every stored profile")

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored profiles with masked cookies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runList()
		},
	}

	guide := &cobra.Command{
		Use:   "guide",
		Short: "Explain how to copy cookies out of a browser",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			auth.WriteCookieGuide(a.stdout)
		},
	}

	authCmd.AddCommand(login, logout, list, guide)
	return authCmd
}

func (a *app) runLogin(args []string, userAgent string) error {
	name := auth.DefaultProfile
	if len(args) > 0 {
		name = strings.TrimSpace(args[0])
	}

	manager, err := a.newAuth()
	if err != nil {
		return fmt.Errorf("failed to initialize cookie store: %w", err)
	}

	interactive := a.isTerminal()
	if interactive {
		auth.WriteQuickGuide(a.stderr)
		fmt.Fprint(a.stderr, "\nCookie string: ")
	}
	cookies, err := a.readSecret()
	if interactive {
		fmt.Fprintln(a.stderr)
	}
	if err != nil {
		return fmt.Errorf("failed to read cookies: %w", err)
	}
	if cookies == "" {
		auth.WriteCookieGuide(a.stderr)
		return errors.New("no cookie string given")
	}

	profile := &auth.Profile{Name: name, Cookies: cookies, UserAgent: userAgent}
	if missing := profile.MissingCookies(); len(missing) > 0 {
		fmt.Fprintf(a.stderr, "Warning: cookie string lacks %s, requests may be treated as logged out\n",
			strings.Join(missing, ", "))
	}
	if err := manager.Store(profile); err != nil {
		return fmt.Errorf("failed to store profile %q: %w", name, err)
	}
	fmt.Fprintf(a.stdout, "Stored cookies for profile %q\n", name)
	return nil
}

func (a *app) runLogout(args []string, all bool) error {
	manager, err := a.newAuth()
	if err != nil {
		return fmt.Errorf("failed to initialize cookie store: %w", err)
	}

	if all {
		if err := manager.DeleteAll(); err != nil {
			return fmt.Errorf("failed to remove profiles: %w", err)
		}
		fmt.Fprintln(a.stdout, "Removed all stored profiles")
		return nil
	}

	name := auth.DefaultProfile
	if len(args) > 0 {
		name = args[0]
	}
	if err := manager.Delete(name); err != nil {
		return fmt.Errorf("failed to remove profile %q: %w", name, err)
	}
	fmt.Fprintf(a.stdout, "Removed profile %q\n", name)
	return nil
}

func (a *app) runList() error {
	manager, err := a.newAuth()
	if err != nil {
		return fmt.Errorf("failed to initialize cookie store: %w", err)
	}
	profiles, err := manager.List()
	if err != nil {
		return fmt.Errorf("failed to list profiles: %w", err)
	}
	clean := make([]*auth.Profile, 0, len(profiles))
	for _, p := range profiles {
		clean = append(clean, auth.SanitizeProfile(p))
	}
	return writeJSON(a.stdout, clean)
}

func (a *app) isTerminal() bool {
	f, ok := a.stdin.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// readSecret reads one line, without echo when stdin is a terminal
func (a *app) readSecret() (string, error) {
	if a.isTerminal() {
		b, err := term.ReadPassword(int(a.stdin.(*os.File).Fd()))
		return strings.TrimSpace(string(b)), err
	}
	line, err := bufio.NewReader(a.stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
