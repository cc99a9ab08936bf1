package main

import (
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"igfetch/pkg/auth"
	"igfetch/pkg/config"
)

const defaultConfigPath = ".igfetch.yaml"

func newConfigCmd(a *app) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration files",
		Long: `Manage igfetch configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables
  - .env files
  - Configuration file
  - Default values (lowest priority)`,
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a configuration file with every default",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := defaultConfigPath
			switch {
			case len(args) > 0:
				path = args[0]
			case a.configFile != "":
				path = a.configFile
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite", path)
			}
			if err := config.DefaultConfig().Save(path); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Long: `Print the configuration merged from every source. Cookies and proxy
passwords are masked.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configFile, a.flagMap(cmd))
			if err != nil {
				return err
			}
			masked := *cfg
			masked.Instagram.Cookies = maskCookies(cfg.Instagram.Cookies)
			masked.Proxy.URL = redactURL(cfg.Proxy.URL)
			data, err := yaml.Marshal(&masked)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			_, err = a.stdout.Write(data)
			return err
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration for errors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(a.configFile, a.flagMap(cmd)); err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, "Configuration is valid")
			return nil
		},
	}

	configCmd.AddCommand(initCmd, showCmd, validateCmd)
	return configCmd
}

// flagMap collects the global flags in the shape config.Load expects
func (a *app) flagMap(cmd *cobra.Command) map[string]interface{} {
	flags := map[string]interface{}{
		"strategy":  a.strategy,
		"uploads":   a.uploads,
		"proxy":     a.proxy,
		"log-level": a.logLevel,
	}
	if cmd.Flags().Changed("headless") {
		flags["headless"] = a.headless
	}
	if cmd.Flags().Changed("manifest-file") {
		flags["manifest-file"] = a.manifest
	}
	return flags
}

func maskCookies(cookies string) string {
	if cookies == "" {
		return ""
	}
	return auth.SanitizeProfile(&auth.Profile{Cookies: cookies}).Cookies
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || raw == "" {
		return raw
	}
	return u.Redacted()
}
