package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"igfetch/pkg/config"
	"igfetch/pkg/extractor"
	"igfetch/pkg/logger"
	"igfetch/pkg/pacing"
	"igfetch/pkg/session"
)

// Timing groups the randomized waits of a browser session
type Timing struct {
	// Settle follows navigations made while setting up cookies
	Settle pacing.Policy
	// Human follows the target page load, before scrolling
	Human       pacing.Policy
	ScrollStep  pacing.IntRange
	ScrollDelay pacing.Policy
}

// TimingFromConfig builds Timing from configured ranges
func TimingFromConfig(cfg config.BrowserConfig) Timing {
	return Timing{
		Settle:      pacing.Between(cfg.SettleDelay.Min, cfg.SettleDelay.Max),
		Human:       pacing.Between(cfg.HumanDelay.Min, cfg.HumanDelay.Max),
		ScrollStep:  pacing.IntRange{Min: cfg.ScrollStep.Min, Max: cfg.ScrollStep.Max},
		ScrollDelay: pacing.Between(cfg.ScrollDelay.Min, cfg.ScrollDelay.Max),
	}
}

// Session is one launched browser with a single stealth page
type Session struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page

	navTimeout time.Duration
	timing     Timing
	sess       *session.Session
	logger     logger.Logger
}

// Launch starts the browser, applies the anti-automation flags and opens a
// stealth page carrying the session's user agent.
func Launch(ctx context.Context, cfg config.BrowserConfig, sess *session.Session, log logger.Logger) (s *Session, err error) {
	if log == nil {
		log = logger.NewNopLogger()
	}

	l := launcher.New().
		Context(ctx).
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox)

	if cfg.Bin != "" {
		l = l.Bin(cfg.Bin)
	}
	if proxy := sess.ProxyHost(); proxy != "" {
		l = l.Proxy(proxy)
	}

	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-gpu"))
	l.Set(flags.Flag("disable-notifications"))
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("no-first-run"))
	if cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
		l.Set(flags.Flag("window-size"), fmt.Sprintf("%d,%d", cfg.WindowWidth, cfg.WindowHeight))
	}

	s = &Session{
		launcher:   l,
		navTimeout: cfg.NavigationTimeout,
		timing:     TimingFromConfig(cfg),
		sess:       sess,
		logger:     log.WithField("component", "browser"),
	}
	defer func() {
		if err != nil {
			s.Close()
			s = nil
		}
	}()

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	s.logger.DebugWithFields("Browser launched", map[string]interface{}{"control_url": controlURL})

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}
	s.browser = browser

	page, err := stealth.Page(browser)
	if err != nil {
		return nil, fmt.Errorf("failed to open stealth page: %w", err)
	}
	s.page = page

	if ua := sess.UserAgent(); ua != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      ua,
			AcceptLanguage: "en-US,en;q=0.9",
		}); err != nil {
			return nil, fmt.Errorf("failed to set user agent: %w", err)
		}
	}
	if cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
		if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             cfg.WindowWidth,
			Height:            cfg.WindowHeight,
			DeviceScaleFactor: 1,
		}); err != nil {
			return nil, fmt.Errorf("failed to set viewport: %w", err)
		}
	}

	logger.LogComponentStart(s.logger, "browser", map[string]interface{}{
		"headless": cfg.Headless,
		"proxy":    sess.ProxyHost() != "",
	})
	return s, nil
}

// navigate loads url and waits for the load event, bounded by the
// navigation timeout
func (s *Session) navigate(ctx context.Context, url string) error {
	p := s.page.Context(ctx)
	if s.navTimeout > 0 {
		p = p.Timeout(s.navTimeout)
		defer p.CancelTimeout()
	}
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("failed to load %s: %w", url, err)
	}
	return nil
}

// InjectCookies opens baseURL so the cookie domain is live, sets every
// session cookie, then reloads. Nothing but cancellation is fatal: a failed
// navigation, cookie or reload is logged and the run goes on with whatever
// cookies did stick. It returns how many cookies were set.
func (s *Session) InjectCookies(ctx context.Context, baseURL string) (int, error) {
	return injectSession(ctx, rodCookieTarget{s}, baseURL, s.sess.Cookies(), s.timing.Settle, s.logger)
}

// cookieTarget is the page surface cookie injection drives
type cookieTarget interface {
	Open(ctx context.Context, url string) error
	SetCookie(ctx context.Context, c session.Cookie) error
	Reload(ctx context.Context) error
}

type rodCookieTarget struct{ s *Session }

func (t rodCookieTarget) Open(ctx context.Context, url string) error {
	return t.s.navigate(ctx, url)
}

func (t rodCookieTarget) SetCookie(ctx context.Context, c session.Cookie) error {
	_, err := proto.NetworkSetCookie{
		Name:   c.Name,
		Value:  c.Value,
		Domain: c.Domain,
		Path:   c.Path,
		Secure: true,
	}.Call(t.s.page.Context(ctx))
	return err
}

func (t rodCookieTarget) Reload(ctx context.Context) error {
	p := t.s.page.Context(ctx)
	if err := p.Reload(); err != nil {
		return fmt.Errorf("failed to reload: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("failed to load after reload: %w", err)
	}
	return nil
}

func injectSession(ctx context.Context, target cookieTarget, baseURL string, cookies []session.Cookie, settle pacing.Policy, log logger.Logger) (int, error) {
	if len(cookies) == 0 {
		log.Warn("No cookies configured, continuing unauthenticated")
		return 0, nil
	}

	if err := target.Open(ctx, baseURL); err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		log.WithError(err).WarnWithFields("Could not open home page, continuing unauthenticated", map[string]interface{}{
			"url": baseURL,
		})
		return 0, nil
	}
	if err := pacing.Wait(ctx, settle); err != nil {
		return 0, err
	}

	injected := 0
	for _, c := range cookies {
		if err := target.SetCookie(ctx, c); err != nil {
			if ctx.Err() != nil {
				return injected, ctx.Err()
			}
			log.WithError(err).WarnWithFields("Failed to inject cookie", map[string]interface{}{
				"cookie": c.Name,
			})
			continue
		}
		injected++
	}
	log.InfoWithFields("Cookies injected", map[string]interface{}{
		"injected": injected,
		"total":    len(cookies),
	})

	if err := target.Reload(ctx); err != nil {
		if ctx.Err() != nil {
			return injected, ctx.Err()
		}
		log.WithError(err).Warn("Reload after cookie injection failed, continuing")
		return injected, nil
	}
	if err := pacing.Wait(ctx, settle); err != nil {
		return injected, err
	}
	return injected, nil
}

// Render loads url, behaves like a reader for a moment, scrolls to the
// bottom so lazy media loads, and snapshots the resulting HTML.
func (s *Session) Render(ctx context.Context, url string) (*extractor.RenderedPage, error) {
	if err := s.navigate(ctx, url); err != nil {
		return nil, err
	}
	if err := pacing.Wait(ctx, s.timing.Human); err != nil {
		return nil, err
	}

	steps, err := HumanScroll(ctx, rodScroller{s.page.Context(ctx)}, s.timing.ScrollStep, s.timing.ScrollDelay)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// A page that refuses to scroll still has its initial content
		s.logger.WithError(err).Warn("Scrolling failed, using the page as loaded")
	}

	html, err := s.page.Context(ctx).HTML()
	if err != nil {
		return nil, fmt.Errorf("failed to read page html: %w", err)
	}
	s.logger.DebugWithFields("Page rendered", map[string]interface{}{
		"url":          url,
		"scroll_steps": steps,
		"html_bytes":   len(html),
	})
	return extractor.NewRenderedPage(url, html)
}

// Close shuts the page, browser and launcher down. Errors are logged only.
func (s *Session) Close() {
	if s == nil {
		return
	}
	if s.page != nil {
		if err := s.page.Close(); err != nil {
			s.logger.WithError(err).Debug("Closing page failed")
		}
		s.page = nil
	}
	if s.browser != nil {
		if err := s.browser.Close(); err != nil && !strings.Contains(err.Error(), "closed") {
			s.logger.WithError(err).Debug("Closing browser failed")
		}
		s.browser = nil
	}
	if s.launcher != nil {
		s.launcher.Kill()
		s.launcher.Cleanup()
		s.launcher = nil
	}
	logger.LogComponentStop(s.logger, "browser", "closed")
}
