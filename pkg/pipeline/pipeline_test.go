package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igfetch/pkg/config"
	errs "igfetch/pkg/errors"
	"igfetch/pkg/extractor"
	"igfetch/pkg/instagram"
	"igfetch/pkg/logger"
	"igfetch/pkg/pacing"
	"igfetch/pkg/ratelimit"
	"igfetch/pkg/session"
	"igfetch/pkg/storage"
)

type fakeRenderer struct {
	html      string
	injectErr error
	renderErr error

	mu       sync.Mutex
	injected bool
	rendered []string
	closed   int
}

func (f *fakeRenderer) InjectCookies(ctx context.Context, baseURL string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.injected = true
	return 0, f.injectErr
}

func (f *fakeRenderer) Render(ctx context.Context, url string) (*extractor.RenderedPage, error) {
	f.mu.Lock()
	f.rendered = append(f.rendered, url)
	f.mu.Unlock()
	if f.renderErr != nil {
		return nil, f.renderErr
	}
	return extractor.NewRenderedPage(url, f.html)
}

func (f *fakeRenderer) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
}

func launchWith(r *fakeRenderer) LaunchFunc {
	return func(context.Context, config.BrowserConfig, *session.Session, logger.Logger) (Renderer, error) {
		return r, nil
	}
}

// mediaServer serves /ok/* as bytes, /empty/* as zero bytes and /fail/* as 500
func mediaServer(t *testing.T) (*httptest.Server, *sync.Map) {
	t.Helper()
	hits := &sync.Map{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n, _ := hits.LoadOrStore(r.URL.Path, new(int))
		*(n.(*int))++
		switch filepath.Dir(r.URL.Path) {
		case "/ok":
			_, _ = w.Write([]byte("media:" + r.URL.Path))
		case "/empty":
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, hits
}

func testConfig(t *testing.T, strategy string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Strategy = strategy
	cfg.Instagram.Cookies = "sessionid=s; csrftoken=tok"
	cfg.Output.UploadsDir = t.TempDir()
	cfg.Output.DebugDir = filepath.Join(cfg.Output.UploadsDir, "debug")
	cfg.Download.Timeout = 2 * time.Second
	cfg.GraphQL.Timeout = 2 * time.Second
	return cfg
}

func newOrchestrator(t *testing.T, cfg *config.Config, launch LaunchFunc) (*Orchestrator, *logger.TestLogger, *[]State) {
	t.Helper()
	log := logger.NewTestLogger()
	var states []State
	o, err := New(Deps{
		Config:      cfg,
		Logger:      log,
		Launch:      launch,
		RetryDelay:  pacing.None,
		PageLimiter: ratelimit.Unlimited(),
		OnState: func(from, to State) {
			states = append(states, to)
		},
	})
	require.NoError(t, err)
	return o, log, &states
}

func pageWithMedia(urls ...string) string {
	html := "<html><head>"
	for _, u := range urls {
		prop := "og:image"
		if filepath.Ext(u) == ".mp4" {
			prop = "og:video"
		}
		html += fmt.Sprintf(`<meta property="%s" content="%s">`, prop, u)
	}
	return html + "</head><body></body></html>"
}

func runDirs(t *testing.T, root string) []string {
	t.Helper()
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	var dirs []string
	for _, e := range entries {
		if e.IsDir() && e.Name() != "debug" {
			dirs = append(dirs, e.Name())
		}
	}
	return dirs
}

func TestBrowserRunCompletes(t *testing.T) {
	srv, _ := mediaServer(t)
	cfg := testConfig(t, config.StrategyBrowser)
	r := &fakeRenderer{html: pageWithMedia(srv.URL+"/ok/a.jpg", srv.URL+"/ok/b.mp4", srv.URL+"/ok/a.jpg")}
	o, log, states := newOrchestrator(t, cfg, launchWith(r))

	res, err := o.Run(context.Background(), Request{URL: "https://www.instagram.com/p/ABC/", Kind: extractor.KindPost})
	require.NoError(t, err)

	assert.Equal(t, []State{StateSessionReady, StateMediaDiscovered, StateDownloading, StateCompleted}, *states)
	assert.True(t, r.injected)
	assert.Equal(t, 1, r.closed)
	assert.Equal(t, 2, res.Discovered)

	require.Len(t, res.Items, 2)
	dir := filepath.Base(res.Dir)
	assert.Equal(t, MediaItem{URL: "/uploads/" + dir + "/media_1.jpg", Filename: "media_1.jpg", Type: extractor.MediaImage}, res.Items[0])
	assert.Equal(t, MediaItem{URL: "/uploads/" + dir + "/media_2.mp4", Filename: "media_2.mp4", Type: extractor.MediaVideo}, res.Items[1])
	assert.Regexp(t, `^post_[0-9a-f-]{36}$`, dir)

	data, err := os.ReadFile(filepath.Join(res.Dir, "media_2.mp4"))
	require.NoError(t, err)
	assert.Equal(t, "media:/ok/b.mp4", string(data))

	assert.NoFileExists(t, filepath.Join(res.Dir, storage.ManifestFile))
	assert.True(t, log.HasMessage("Retrieval completed"))
}

func TestBrowserRunContinuesWhenCookieInjectionFails(t *testing.T) {
	srv, _ := mediaServer(t)
	cfg := testConfig(t, config.StrategyBrowser)
	r := &fakeRenderer{
		html:      pageWithMedia(srv.URL + "/ok/a.jpg"),
		injectErr: errors.New("home page navigation timeout"),
	}
	o, log, states := newOrchestrator(t, cfg, launchWith(r))

	res, err := o.Run(context.Background(), Request{URL: "https://www.instagram.com/p/ABC/", Kind: extractor.KindPost})
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, (*states)[len(*states)-1])
	assert.Equal(t, []string{"https://www.instagram.com/p/ABC/"}, r.rendered)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "media_1.jpg", res.Items[0].Filename)
	assert.True(t, log.HasMessage("Cookie injection failed, continuing with a partial session"))
	assert.Equal(t, 1, r.closed)
}

func TestBrowserRunDropsFailedAndEmptyDownloads(t *testing.T) {
	srv, hits := mediaServer(t)
	cfg := testConfig(t, config.StrategyBrowser)
	cfg.Output.WriteManifest = true
	r := &fakeRenderer{html: pageWithMedia(srv.URL+"/fail/a.jpg", srv.URL+"/empty/b.jpg", srv.URL+"/ok/c.jpg")}
	o, _, _ := newOrchestrator(t, cfg, launchWith(r))

	res, err := o.Run(context.Background(), Request{URL: "https://www.instagram.com/p/ABC/", Kind: extractor.KindPost})
	require.NoError(t, err)

	require.Len(t, res.Items, 1)
	assert.Equal(t, "media_3.jpg", res.Items[0].Filename)
	assert.Equal(t, 2, res.Dropped)

	failed, _ := hits.Load("/fail/a.jpg")
	assert.Equal(t, 3, *(failed.(*int)))

	assert.NoFileExists(t, filepath.Join(res.Dir, "media_1.jpg"))
	assert.NoFileExists(t, filepath.Join(res.Dir, "media_2.jpg"))

	raw, err := os.ReadFile(filepath.Join(res.Dir, storage.ManifestFile))
	require.NoError(t, err)
	var manifest []MediaItem
	require.NoError(t, json.Unmarshal(raw, &manifest))
	assert.Equal(t, res.Items, manifest)
}

func TestBrowserRunNothingDownloadedRemovesDir(t *testing.T) {
	srv, _ := mediaServer(t)
	cfg := testConfig(t, config.StrategyBrowser)
	r := &fakeRenderer{html: pageWithMedia(srv.URL+"/fail/a.jpg", srv.URL+"/empty/b.mp4")}
	o, _, states := newOrchestrator(t, cfg, launchWith(r))

	_, err := o.Run(context.Background(), Request{URL: "https://www.instagram.com/stories/jane/1/", Kind: extractor.KindStory})
	require.Error(t, err)

	assert.Equal(t, "no valid media downloaded for story", err.Error())
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
	assert.Equal(t, StateFailed, (*states)[len(*states)-1])
	assert.Empty(t, runDirs(t, cfg.Output.UploadsDir))
	assert.Equal(t, 1, r.closed)
}

func TestBrowserRunFailures(t *testing.T) {
	tests := []struct {
		name     string
		renderer *fakeRenderer
		launch   error
		wantKind errs.Kind
		wantMsg  string
	}{
		{
			name:     "launch fails",
			launch:   errors.New("no chrome"),
			wantKind: errs.KindSetup,
			wantMsg:  "driver/session setup failed",
		},
		{
			name:     "render fails",
			renderer: &fakeRenderer{renderErr: errors.New("net::ERR_ABORTED")},
			wantKind: errs.KindFetch,
		},
		{
			name:     "page without media",
			renderer: &fakeRenderer{html: "<html><body><p>nothing</p></body></html>"},
			wantKind: errs.KindExtraction,
			wantMsg:  "no media found for post",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t, config.StrategyBrowser)
			launch := func(context.Context, config.BrowserConfig, *session.Session, logger.Logger) (Renderer, error) {
				if tt.launch != nil {
					return nil, tt.launch
				}
				return tt.renderer, nil
			}
			o, log, states := newOrchestrator(t, cfg, launch)

			_, err := o.Run(context.Background(), Request{URL: "https://www.instagram.com/p/ABC/", Kind: extractor.KindPost})
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, errs.KindOf(err))
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, err.Error())
			}
			assert.Equal(t, StateFailed, (*states)[len(*states)-1])
			assert.True(t, log.HasMessage("Retrieval failed"))
			if tt.renderer != nil {
				assert.Equal(t, 1, tt.renderer.closed, "browser is closed on every path")
			}
			assert.Empty(t, runDirs(t, cfg.Output.UploadsDir))
		})
	}
}

func TestRunNormalizesKind(t *testing.T) {
	srv, _ := mediaServer(t)
	cfg := testConfig(t, config.StrategyBrowser)
	// only the DOM strategy sees an <img>, and it runs for posts alone
	r := &fakeRenderer{html: fmt.Sprintf(`<html><body><img src="%s/ok/cdninstagram.com-a.jpg"></body></html>`, srv.URL)}
	o, _, _ := newOrchestrator(t, cfg, launchWith(r))

	res, err := o.Run(context.Background(), Request{URL: "https://www.instagram.com/p/ABC/", Kind: " POST "})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Regexp(t, `^post_[0-9a-f-]{36}$`, filepath.Base(res.Dir))
}

func TestRunRejectsBadRequests(t *testing.T) {
	cfg := testConfig(t, config.StrategyBrowser)
	r := &fakeRenderer{}
	o, _, states := newOrchestrator(t, cfg, launchWith(r))

	_, err := o.Run(context.Background(), Request{URL: "https://www.instagram.com/p/ABC/", Kind: "reel"})
	require.Error(t, err)
	assert.Equal(t, errs.KindUsage, errs.KindOf(err))
	assert.Equal(t, []State{StateFailed}, *states)
	assert.Empty(t, r.rendered)

	gq, _, _ := newOrchestrator(t, testConfig(t, config.StrategyGraphQL), nil)
	_, err = gq.Run(context.Background(), Request{URL: "https://www.instagram.com/stories/jane/", Kind: extractor.KindStory})
	assert.Equal(t, errs.KindUsage, errs.KindOf(err))
}

func TestRunBadProxyIsSetupFailure(t *testing.T) {
	cfg := testConfig(t, config.StrategyBrowser)
	cfg.Proxy.URL = "ftp://proxy.test:21"
	r := &fakeRenderer{}
	o, _, _ := newOrchestrator(t, cfg, launchWith(r))

	_, err := o.Run(context.Background(), Request{URL: "https://www.instagram.com/p/ABC/", Kind: extractor.KindPost})
	require.Error(t, err)
	assert.Equal(t, "driver/session setup failed", err.Error())
	assert.Zero(t, r.closed, "nothing was launched")
}

func TestNewRejectsUnknownStrategy(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Strategy = "carrier-pigeon"
	_, err := New(Deps{Config: cfg})
	assert.Equal(t, errs.KindUsage, errs.KindOf(err))

	_, err = New(Deps{})
	assert.Error(t, err)
}

const timelineTemplate = `{
  "data": {
    "xdt_api__v1__feed__user_timeline_graphql_connection": {
      "edges": [%s],
      "page_info": {"has_next_page": %t, "end_cursor": %q}
    }
  },
  "status": "ok"
}`

func timelineNode(code, media string) string {
	return fmt.Sprintf(`{"node":{"code":%q,"user":{"username":"jane"},%s}}`, code, media)
}

// graphQLServer serves pages in turn at /graphql/query, with {{host}}
// replaced by the server URL, and echoes every other path as media
func graphQLServer(t *testing.T, pages []string) (*httptest.Server, *int) {
	t.Helper()
	queries := new(int)
	var mu sync.Mutex
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/graphql/query" {
			mu.Lock()
			i := *queries
			*queries++
			mu.Unlock()
			if i >= len(pages) {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(strings.ReplaceAll(pages[i], "{{host}}", srv.URL)))
			return
		}
		_, _ = w.Write([]byte("media:" + r.URL.Path))
	}))
	t.Cleanup(srv.Close)
	return srv, queries
}

func graphQLConfig(t *testing.T, srv *httptest.Server) *config.Config {
	cfg := testConfig(t, config.StrategyGraphQL)
	cfg.Instagram.BaseURL = srv.URL
	cfg.GraphQL.Endpoint = srv.URL + "/graphql/query"
	return cfg
}

func TestGraphQLRunLocatesPost(t *testing.T) {
	page := fmt.Sprintf(timelineTemplate,
		timelineNode("OTHER", `"image_versions2":{"candidates":[{"url":"{{host}}/ok/other.jpg"}]}`)+","+
			timelineNode("ABC", `"carousel_media":[
				{"image_versions2":{"candidates":[{"url":"{{host}}/ok/1.jpg"}]}},
				{"video_versions":[{"url":"{{host}}/ok/2.mp4"}]}]`),
		true, "c1")
	srv, queries := graphQLServer(t, []string{page})
	cfg := graphQLConfig(t, srv)
	o, _, states := newOrchestrator(t, cfg, nil)

	res, err := o.Run(context.Background(), Request{URL: "https://www.instagram.com/jane/p/ABC/", Kind: extractor.KindPost})
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, (*states)[len(*states)-1])
	assert.Equal(t, 1, *queries, "lookup walks one page")
	require.Len(t, res.Items, 2)
	assert.Equal(t, extractor.MediaImage, res.Items[0].Type)
	assert.Equal(t, "media_2.mp4", res.Items[1].Filename)
	assert.Equal(t, extractor.MediaVideo, res.Items[1].Type)

	dumps, err := os.ReadDir(cfg.Output.DebugDir)
	require.NoError(t, err)
	assert.Len(t, dumps, 1)
}

func TestGraphQLRunProfileWalksAllPages(t *testing.T) {
	first := fmt.Sprintf(timelineTemplate,
		timelineNode("A", `"image_versions2":{"candidates":[{"url":"{{host}}/ok/a.jpg"}]}`), true, "c1")
	second := fmt.Sprintf(timelineTemplate,
		timelineNode("B", `"video_versions":[{"url":"{{host}}/ok/b.mp4"}]`), false, "c2")
	srv, queries := graphQLServer(t, []string{first, second})
	cfg := graphQLConfig(t, srv)
	cfg.GraphQL.DebugDumps = false
	o, _, _ := newOrchestrator(t, cfg, nil)

	res, err := o.Run(context.Background(), Request{URL: "https://www.instagram.com/jane/", Kind: extractor.KindPost})
	require.NoError(t, err)
	assert.Equal(t, 2, *queries)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "media_1.jpg", res.Items[0].Filename)
	assert.Equal(t, "media_2.mp4", res.Items[1].Filename)
	assert.NoDirExists(t, cfg.Output.DebugDir)
}

func TestGraphQLRunPostNotFound(t *testing.T) {
	page := fmt.Sprintf(timelineTemplate,
		timelineNode("OTHER", `"image_versions2":{"candidates":[{"url":"{{host}}/ok/x.jpg"}]}`), true, "c1")
	srv, _ := graphQLServer(t, []string{page})
	o, _, _ := newOrchestrator(t, graphQLConfig(t, srv), nil)

	_, err := o.Run(context.Background(), Request{URL: "https://www.instagram.com/jane/p/ABC/", Kind: extractor.KindPost})
	require.Error(t, err)
	assert.Equal(t, errs.KindExtraction, errs.KindOf(err))
	assert.Contains(t, err.Error(), "post ABC not found")
}

func TestGraphQLRunRejectsUnsupportedLinks(t *testing.T) {
	srv, _ := graphQLServer(t, nil)
	o, _, _ := newOrchestrator(t, graphQLConfig(t, srv), nil)

	_, err := o.Run(context.Background(), Request{URL: "https://www.instagram.com/explore/", Kind: extractor.KindPost})
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))

	_, err = o.Run(context.Background(), Request{URL: "https://example.com/p/ABC/", Kind: extractor.KindPost})
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestRunCanceledDuringDiscovery(t *testing.T) {
	cfg := testConfig(t, config.StrategyBrowser)
	ctx, cancel := context.WithCancel(context.Background())
	r := &fakeRenderer{renderErr: context.Canceled}
	launch := func(context.Context, config.BrowserConfig, *session.Session, logger.Logger) (Renderer, error) {
		cancel()
		return r, nil
	}
	o, _, _ := newOrchestrator(t, cfg, launch)

	_, err := o.Run(ctx, Request{URL: "https://www.instagram.com/p/ABC/", Kind: extractor.KindPost})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, r.closed)
}

func nodes(raw ...map[string]interface{}) []instagram.PostNode {
	out := make([]instagram.PostNode, len(raw))
	for i, r := range raw {
		out[i] = instagram.NewPostNode(r)
	}
	return out
}

func TestCandidatesFromNodesDedupes(t *testing.T) {
	var a, b map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(`{"image_versions2":{"candidates":[{"url":"https://cdn/a.jpg"}]}}`), &a))
	require.NoError(t, json.Unmarshal([]byte(`{"carousel_media":[
		{"image_versions2":{"candidates":[{"url":"https://cdn/a.jpg"}]}},
		{"video_versions":[{"url":"https://cdn/c.mp4"}]}]}`), &b))

	got := CandidatesFromNodes(nodes(a, b))
	assert.Equal(t, []extractor.Candidate{
		{URL: "https://cdn/a.jpg", Type: extractor.MediaImage},
		{URL: "https://cdn/c.mp4", Type: extractor.MediaVideo},
	}, got)
	assert.Empty(t, CandidatesFromNodes(nil))
}

func TestStateTransitions(t *testing.T) {
	assert.True(t, CanTransition(StateInit, StateSessionReady))
	assert.True(t, CanTransition(StateDownloading, StateCompleted))
	assert.True(t, CanTransition(StateMediaDiscovered, StateFailed))
	assert.False(t, CanTransition(StateInit, StateDownloading))
	assert.False(t, CanTransition(StateCompleted, StateFailed))
	assert.False(t, CanTransition(StateFailed, StateInit))
	assert.Equal(t, "media_discovered", StateMediaDiscovered.String())
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, BrowserStrategy, s)

	s, err = ParseStrategy(" GraphQL ")
	require.NoError(t, err)
	assert.Equal(t, GraphQLStrategy, s)
	assert.Equal(t, "graphql", s.String())

	_, err = ParseStrategy("selenium")
	assert.Error(t, err)
}
