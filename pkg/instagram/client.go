package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"igfetch/pkg/logger"
	"igfetch/pkg/session"
)

const (
	graphQLAccept  = "*/*"
	pageAccept     = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8"
	mediaAccept    = "image/jpeg,image/png,video/mp4;q=0.9,*/*;q=0.8"
	acceptLanguage = "en-US,en;q=0.9"
)

// ClientOptions configures NewClient
type ClientOptions struct {
	Session *session.Session
	BaseURL string
	// Timeout bounds connecting and waiting for response headers.
	// JSON and page requests also use it as a total deadline.
	Timeout time.Duration
	// TLSFingerprint presents a Chrome ClientHello on direct connections
	TLSFingerprint bool
	Logger         logger.Logger
	// Transport replaces the built transport, for tests
	Transport http.RoundTripper
}

// Client represents an Instagram web client bound to one session
type Client struct {
	rc      *resty.Client
	baseURL string
	timeout time.Duration
	logger  logger.Logger
	sess    *session.Session
}

// NewClient creates a new Instagram client
func NewClient(opts ClientOptions) *Client {
	log := opts.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}
	sess := opts.Session
	if sess == nil {
		sess, _ = session.Bootstrap("", "")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = BaseURL
	}

	transport := opts.Transport
	if transport == nil {
		transport = newTransport(sess.ProxyURL(), opts.TLSFingerprint, opts.Timeout)
	}

	rc := resty.New().
		SetTransport(transport).
		SetLogger(restyLogger{log}).
		SetHeader("Accept-Language", acceptLanguage)
	if ua := sess.UserAgent(); ua != "" {
		rc.SetHeader("User-Agent", ua)
	}
	if cookie := sess.CookieHeader(); cookie != "" {
		rc.SetHeader("Cookie", cookie)
	}

	c := &Client{
		rc:      rc,
		baseURL: baseURL,
		timeout: opts.Timeout,
		logger:  log,
		sess:    sess,
	}

	rc.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
		logger.LogRequest(c.logger, resp.Request.Method, resp.Request.URL, resp.StatusCode(), resp.Time())
		return nil
	})

	return c
}

// SetHeader sets a header sent on every request
func (c *Client) SetHeader(key, value string) {
	c.rc.SetHeader(key, value)
}

// BaseURL returns the origin requests are made against
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// QueryTimeline posts one timeline query. It returns the decoded page and
// the raw body, which callers may persist for debugging.
func (c *Client) QueryTimeline(ctx context.Context, endpoint, docID string, vars TimelineVariables) (*TimelineResponse, []byte, error) {
	form, err := TimelineForm(vars, docID)
	if err != nil {
		return nil, nil, &Error{Type: ErrorTypeParsing, Message: err.Error(), URL: endpoint, Err: err}
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req := c.rc.R().
		SetContext(ctx).
		SetFormData(form).
		SetHeaders(map[string]string{
			"Accept":           graphQLAccept,
			"X-Requested-With": "XMLHttpRequest",
			"X-IG-App-ID":      WebAppID,
			"Origin":           c.baseURL,
			"Referer":          c.baseURL + "/",
			"Sec-Fetch-Dest":   "empty",
			"Sec-Fetch-Mode":   "cors",
			"Sec-Fetch-Site":   "same-origin",
		})
	if token, ok := c.sess.Cookie("csrftoken"); ok {
		req.SetHeader("X-CSRFToken", token)
	}

	c.logger.DebugWithFields("querying timeline", map[string]interface{}{
		"username":  vars.Username,
		"first":     vars.First,
		"has_after": vars.After != nil,
	})

	resp, err := req.Post(endpoint)
	if err != nil {
		return nil, nil, networkError(endpoint, err)
	}
	body := resp.Body()
	if resp.StatusCode() != http.StatusOK {
		return nil, body, statusError(endpoint, resp.StatusCode())
	}

	var page TimelineResponse
	if err := json.Unmarshal(body, &page); err != nil {
		preview := string(body)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
			"url":          endpoint,
			"error":        err.Error(),
			"body_preview": preview,
		})
		return nil, body, &Error{
			Type:    ErrorTypeParsing,
			Message: fmt.Sprintf("failed to parse JSON: %v", err),
			Code:    resp.StatusCode(),
			URL:     endpoint,
			Err:     err,
		}
	}

	return &page, body, nil
}

// GetPage fetches an HTML page
func (c *Client) GetPage(ctx context.Context, pageURL string) ([]byte, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.rc.R().
		SetContext(ctx).
		SetHeaders(map[string]string{
			"Accept":         pageAccept,
			"Sec-Fetch-Dest": "document",
			"Sec-Fetch-Mode": "navigate",
			"Sec-Fetch-Site": "none",
		}).
		Get(pageURL)
	if err != nil {
		return nil, networkError(pageURL, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, statusError(pageURL, resp.StatusCode())
	}
	return resp.Body(), nil
}

// Download streams a media file into w and returns the bytes written.
// Anything but 200 is an error and nothing is written.
func (c *Client) Download(ctx context.Context, mediaURL string, w io.Writer) (int64, error) {
	resp, err := c.rc.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		SetHeaders(map[string]string{
			"Accept":  mediaAccept,
			"Referer": c.baseURL + "/",
		}).
		Get(mediaURL)
	if err != nil {
		return 0, networkError(mediaURL, err)
	}
	body := resp.RawBody()
	defer body.Close()
	// streamed responses skip resty's response middleware
	logger.LogRequest(c.logger, http.MethodGet, mediaURL, resp.StatusCode(), resp.Time())

	if resp.StatusCode() != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10))
		return 0, statusError(mediaURL, resp.StatusCode())
	}

	n, err := io.Copy(w, body)
	if err != nil {
		return n, networkError(mediaURL, fmt.Errorf("read body: %w", err))
	}
	return n, nil
}

// restyLogger routes resty's internal messages into our logger
type restyLogger struct {
	log logger.Logger
}

func (l restyLogger) Errorf(format string, v ...interface{}) {
	l.log.Error(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l restyLogger) Warnf(format string, v ...interface{}) {
	l.log.Warn(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l restyLogger) Debugf(format string, v ...interface{}) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}
