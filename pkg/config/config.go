package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Retrieval strategies accepted by Config.Strategy.
const (
	StrategyBrowser = "browser"
	StrategyGraphQL = "graphql"
)

// Config holds all configuration options for igfetch
type Config struct {
	// Strategy selects how media is discovered: "browser" or "graphql"
	Strategy string `yaml:"strategy" json:"strategy"`

	Instagram InstagramConfig `yaml:"instagram" json:"instagram"`
	Proxy     ProxyConfig     `yaml:"proxy" json:"proxy"`
	Browser   BrowserConfig   `yaml:"browser" json:"browser"`
	GraphQL   GraphQLConfig   `yaml:"graphql" json:"graphql"`
	Download  DownloadConfig  `yaml:"download" json:"download"`
	Output    OutputConfig    `yaml:"output" json:"output"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// InstagramConfig holds session and endpoint settings
type InstagramConfig struct {
	// Cookies is the raw "name=value; name2=value2" cookie string
	Cookies      string   `yaml:"cookies" json:"-"`
	UserAgent    string   `yaml:"user_agent" json:"user_agent"`
	UserAgents   []string `yaml:"user_agents" json:"user_agents"`
	BaseURL      string   `yaml:"base_url" json:"base_url"`
	CookieDomain string   `yaml:"cookie_domain" json:"cookie_domain"`
	// TLSFingerprint enables the Chrome ClientHello transport for HTTP calls
	TLSFingerprint bool `yaml:"tls_fingerprint" json:"tls_fingerprint"`
}

// ProxyConfig holds the optional outbound proxy
type ProxyConfig struct {
	URL string `yaml:"url" json:"url"`
}

// DurationRange is an inclusive [Min, Max] window for randomized waits
type DurationRange struct {
	Min time.Duration `yaml:"min" json:"min"`
	Max time.Duration `yaml:"max" json:"max"`
}

// IntRange is an inclusive [Min, Max] integer window
type IntRange struct {
	Min int `yaml:"min" json:"min"`
	Max int `yaml:"max" json:"max"`
}

// BrowserConfig holds settings for the browser strategy
type BrowserConfig struct {
	Bin               string        `yaml:"bin" json:"bin"`
	Headless          bool          `yaml:"headless" json:"headless"`
	NoSandbox         bool          `yaml:"no_sandbox" json:"no_sandbox"`
	WindowWidth       int           `yaml:"window_width" json:"window_width"`
	WindowHeight      int           `yaml:"window_height" json:"window_height"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout" json:"navigation_timeout"`
	SettleDelay       DurationRange `yaml:"settle_delay" json:"settle_delay"`
	HumanDelay        DurationRange `yaml:"human_delay" json:"human_delay"`
	ScrollStep        IntRange      `yaml:"scroll_step" json:"scroll_step"`
	ScrollDelay       DurationRange `yaml:"scroll_delay" json:"scroll_delay"`
}

// GraphQLConfig holds settings for the timeline paginator
type GraphQLConfig struct {
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	DocID    string `yaml:"doc_id" json:"doc_id"`
	PageSize int    `yaml:"page_size" json:"page_size"`
	// MaxPages bounds a profile walk; 0 means unlimited
	MaxPages int `yaml:"max_pages" json:"max_pages"`
	// LookupPages bounds the walk used to locate a single post
	LookupPages int           `yaml:"lookup_pages" json:"lookup_pages"`
	PageDelay   time.Duration `yaml:"page_delay" json:"page_delay"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
	DebugDumps  bool          `yaml:"debug_dumps" json:"debug_dumps"`
}

// DownloadConfig holds download-specific configuration
type DownloadConfig struct {
	Attempts   int           `yaml:"attempts" json:"attempts"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
	RetryDelay DurationRange `yaml:"retry_delay" json:"retry_delay"`
}

// OutputConfig holds output directory configuration
type OutputConfig struct {
	UploadsDir string `yaml:"uploads_dir" json:"uploads_dir"`
	// PublicPrefix is prepended to manifest URLs, e.g. "/uploads"
	PublicPrefix  string `yaml:"public_prefix" json:"public_prefix"`
	DebugDir      string `yaml:"debug_dir" json:"debug_dir"`
	WriteManifest bool   `yaml:"write_manifest" json:"write_manifest"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	File   string `yaml:"file" json:"file"`
	Pretty bool   `yaml:"pretty" json:"pretty"`
}

// DefaultUserAgents is the pool a session picks its user agent from
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Strategy: StrategyBrowser,
		Instagram: InstagramConfig{
			UserAgents:   append([]string(nil), DefaultUserAgents...),
			BaseURL:      "https://www.instagram.com",
			CookieDomain: ".instagram.com",
		},
		Browser: BrowserConfig{
			Headless:          true,
			NoSandbox:         true,
			WindowWidth:       1920,
			WindowHeight:      1080,
			NavigationTimeout: 60 * time.Second,
			SettleDelay:       DurationRange{Min: 2 * time.Second, Max: 4 * time.Second},
			HumanDelay:        DurationRange{Min: 1 * time.Second, Max: 3 * time.Second},
			ScrollStep:        IntRange{Min: 100, Max: 300},
			ScrollDelay:       DurationRange{Min: 100 * time.Millisecond, Max: 300 * time.Millisecond},
		},
		GraphQL: GraphQLConfig{
			Endpoint:    "https://www.instagram.com/graphql/query",
			DocID:       "9310670392322965",
			PageSize:    12,
			MaxPages:    0,
			LookupPages: 1,
			PageDelay:   2 * time.Second,
			Timeout:     30 * time.Second,
			DebugDumps:  true,
		},
		Download: DownloadConfig{
			Attempts:   3,
			Timeout:    10 * time.Second,
			RetryDelay: DurationRange{Min: 1 * time.Second, Max: 2 * time.Second},
		},
		Output: OutputConfig{
			UploadsDir:    "uploads",
			PublicPrefix:  "/uploads",
			DebugDir:      filepath.Join("uploads", "debug"),
			WriteManifest: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	// Names shared with the rest of the deployment
	if cookies := os.Getenv("INSTAGRAM_COOKIES"); cookies != "" {
		c.Instagram.Cookies = cookies
	}
	if proxy := os.Getenv("PROXY_URL"); proxy != "" {
		c.Proxy.URL = proxy
	}

	if ua := os.Getenv("IGFETCH_USER_AGENT"); ua != "" {
		c.Instagram.UserAgent = ua
	}
	if strategy := os.Getenv("IGFETCH_STRATEGY"); strategy != "" {
		c.Strategy = strings.ToLower(strategy)
	}
	if dir := os.Getenv("IGFETCH_UPLOADS_DIR"); dir != "" {
		c.Output.UploadsDir = dir
		c.Output.DebugDir = filepath.Join(dir, "debug")
	}
	if bin := os.Getenv("IGFETCH_BROWSER_BIN"); bin != "" {
		c.Browser.Bin = bin
	}
	if headless := os.Getenv("IGFETCH_HEADLESS"); headless != "" {
		val, err := strconv.ParseBool(headless)
		if err != nil {
			return fmt.Errorf("invalid IGFETCH_HEADLESS %q: %w", headless, err)
		}
		c.Browser.Headless = val
	}
	if dumps := os.Getenv("IGFETCH_DEBUG_DUMPS"); dumps != "" {
		val, err := strconv.ParseBool(dumps)
		if err != nil {
			return fmt.Errorf("invalid IGFETCH_DEBUG_DUMPS %q: %w", dumps, err)
		}
		c.GraphQL.DebugDumps = val
	}
	if logLevel := os.Getenv("IGFETCH_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".igfetch.yaml",
		".igfetch.yml",
		filepath.Join(home, ".config", "igfetch", "config.yaml"),
		filepath.Join(home, ".config", "igfetch", "config.yml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	switch c.Strategy {
	case StrategyBrowser, StrategyGraphQL:
	default:
		errs = append(errs, fmt.Errorf("unknown strategy %q", c.Strategy))
	}

	if c.Instagram.UserAgent == "" && len(c.Instagram.UserAgents) == 0 {
		errs = append(errs, errors.New("at least one user agent is required"))
	}
	if c.Instagram.BaseURL == "" {
		errs = append(errs, errors.New("instagram base URL is required"))
	}

	if c.Browser.WindowWidth <= 0 || c.Browser.WindowHeight <= 0 {
		errs = append(errs, errors.New("browser window size must be positive"))
	}
	errs = append(errs, c.Browser.SettleDelay.validate("browser settle delay"))
	errs = append(errs, c.Browser.HumanDelay.validate("browser human delay"))
	errs = append(errs, c.Browser.ScrollDelay.validate("browser scroll delay"))
	if c.Browser.ScrollStep.Min <= 0 || c.Browser.ScrollStep.Max < c.Browser.ScrollStep.Min {
		errs = append(errs, errors.New("browser scroll step must be a positive range"))
	}

	if c.GraphQL.PageSize <= 0 {
		errs = append(errs, errors.New("graphql page size must be positive"))
	}
	if c.GraphQL.MaxPages < 0 {
		errs = append(errs, errors.New("graphql max pages cannot be negative"))
	}
	if c.GraphQL.PageDelay < 0 {
		errs = append(errs, errors.New("graphql page delay cannot be negative"))
	}
	if c.GraphQL.DocID == "" {
		errs = append(errs, errors.New("graphql doc id is required"))
	}

	if c.Download.Attempts <= 0 {
		errs = append(errs, errors.New("download attempts must be positive"))
	}
	if c.Download.Timeout <= 0 {
		errs = append(errs, errors.New("download timeout must be positive"))
	}
	errs = append(errs, c.Download.RetryDelay.validate("download retry delay"))

	if c.Output.UploadsDir == "" {
		errs = append(errs, errors.New("uploads directory is required"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	// errors.Join drops the nil entries appended by the range checks
	return errors.Join(errs...)
}

func (r DurationRange) validate(name string) error {
	if r.Min < 0 || r.Max < r.Min {
		return fmt.Errorf("%s must satisfy 0 <= min <= max (got %s..%s)", name, r.Min, r.Max)
	}
	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if strategy, ok := flags["strategy"].(string); ok && strategy != "" {
		c.Strategy = strings.ToLower(strategy)
	}
	if uploads, ok := flags["uploads"].(string); ok && uploads != "" {
		c.Output.UploadsDir = uploads
		c.Output.DebugDir = filepath.Join(uploads, "debug")
	}
	if proxy, ok := flags["proxy"].(string); ok && proxy != "" {
		c.Proxy.URL = proxy
	}
	if pageSize, ok := flags["page-size"].(int); ok && pageSize > 0 {
		c.GraphQL.PageSize = pageSize
	}
	if maxPages, ok := flags["max-pages"].(int); ok && maxPages >= 0 {
		c.GraphQL.MaxPages = maxPages
	}
	if headless, ok := flags["headless"].(bool); ok {
		c.Browser.Headless = headless
	}
	if manifest, ok := flags["manifest-file"].(bool); ok {
		c.Output.WriteManifest = manifest
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Missing .env files are fine
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".igfetch.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
