package graphql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igfetch/pkg/instagram"
	"igfetch/pkg/logger"
	"igfetch/pkg/ratelimit"
	"igfetch/pkg/storage"
)

// fakeQuerier serves scripted responses in order and records the cursors it saw
type fakeQuerier struct {
	mu      sync.Mutex
	pages   []string
	errs    map[int]error
	cursors []*string
	sizes   []int
}

func (f *fakeQuerier) QueryTimeline(ctx context.Context, endpoint, docID string, vars instagram.TimelineVariables) (*instagram.TimelineResponse, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	i := len(f.cursors)
	f.cursors = append(f.cursors, vars.After)
	f.sizes = append(f.sizes, vars.First)
	if err := f.errs[i]; err != nil {
		return nil, nil, err
	}
	if i >= len(f.pages) {
		return nil, nil, fmt.Errorf("unexpected request %d", i)
	}
	raw := []byte(f.pages[i])
	var resp instagram.TimelineResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, raw, err
	}
	return &resp, raw, nil
}

func page(codes []string, hasNext bool, endCursor interface{}) string {
	edges := make([]map[string]interface{}, 0, len(codes))
	for _, c := range codes {
		edges = append(edges, map[string]interface{}{"node": map[string]interface{}{"code": c}})
	}
	body := map[string]interface{}{
		"data": map[string]interface{}{
			"xdt_api__v1__feed__user_timeline_graphql_connection": map[string]interface{}{
				"edges":     edges,
				"page_info": map[string]interface{}{"has_next_page": hasNext, "end_cursor": endCursor},
			},
		},
		"status": "ok",
	}
	b, _ := json.Marshal(body)
	return string(b)
}

const missingContainer = `{"data":{"user":null},"status":"ok"}`

func codes(nodes []instagram.PostNode) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Shortcode())
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return "<nil>"
	}
	return *s
}

func newTestPaginator(q Querier) *Paginator {
	return NewPaginator(q, Options{Limiter: ratelimit.Unlimited(), Logger: logger.NewTestLogger()})
}

func TestWalkStopConditions(t *testing.T) {
	tests := []struct {
		name      string
		pages     []string
		maxPages  int
		want      []string
		reason    StopReason
		requests  int
		wantPages int
	}{
		{
			name:      "last page",
			pages:     []string{page([]string{"a", "b"}, true, "c1"), page([]string{"c"}, false, nil)},
			want:      []string{"a", "b", "c"},
			reason:    StopLastPage,
			requests:  2,
			wantPages: 2,
		},
		{
			name:      "stale cursor keeps the repeated page",
			pages:     []string{page([]string{"a"}, true, "c1"), page([]string{"b"}, true, "c1")},
			want:      []string{"a", "b"},
			reason:    StopStaleCursor,
			requests:  2,
			wantPages: 2,
		},
		{
			name:      "missing end cursor",
			pages:     []string{page([]string{"a"}, true, nil)},
			want:      []string{"a"},
			reason:    StopStaleCursor,
			requests:  1,
			wantPages: 1,
		},
		{
			name:      "max pages",
			pages:     []string{page([]string{"a"}, true, "c1"), page([]string{"b"}, true, "c2"), page([]string{"c"}, true, "c3")},
			maxPages:  2,
			want:      []string{"a", "b"},
			reason:    StopMaxPages,
			requests:  2,
			wantPages: 2,
		},
		{
			name:      "last page wins over max pages",
			pages:     []string{page([]string{"a"}, false, "c1")},
			maxPages:  1,
			want:      []string{"a"},
			reason:    StopLastPage,
			requests:  1,
			wantPages: 1,
		},
		{
			name:      "missing container",
			pages:     []string{page([]string{"a"}, true, "c1"), missingContainer},
			want:      []string{"a"},
			reason:    StopMissingContainer,
			requests:  2,
			wantPages: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &fakeQuerier{pages: tt.pages}
			p := newTestPaginator(q)

			var got []instagram.PostNode
			res := p.Walk(context.Background(), Request{Username: "jane", MaxPages: tt.maxPages}, func(pg Page) bool {
				got = append(got, pg.Nodes...)
				return true
			})

			assert.Equal(t, tt.want, codes(got))
			assert.Equal(t, tt.reason, res.Reason, res.Reason.String())
			assert.Len(t, q.cursors, tt.requests)
			assert.Equal(t, tt.wantPages, res.Pages)
			assert.Equal(t, len(tt.want), res.Posts)
			assert.NoError(t, res.Err)
		})
	}
}

func TestWalkForwardsCursors(t *testing.T) {
	q := &fakeQuerier{pages: []string{
		page([]string{"a"}, true, "c1"),
		page([]string{"b"}, true, "c2"),
		page([]string{"c"}, false, "c3"),
	}}
	p := newTestPaginator(q)

	res := p.Walk(context.Background(), Request{Username: "jane", PageSize: 5}, func(Page) bool { return true })
	require.Equal(t, StopLastPage, res.Reason)

	require.Len(t, q.cursors, 3)
	assert.Nil(t, q.cursors[0])
	assert.Equal(t, "c1", deref(q.cursors[1]))
	assert.Equal(t, "c2", deref(q.cursors[2]))
	assert.Equal(t, []int{5, 5, 5}, q.sizes)
	assert.Equal(t, "c3", deref(res.LastCursor))
}

func TestWalkResumesFromCursor(t *testing.T) {
	q := &fakeQuerier{pages: []string{page([]string{"x"}, false, nil)}}
	start := "saved"

	res := newTestPaginator(q).Walk(context.Background(), Request{Username: "jane", After: &start}, func(Page) bool { return true })
	assert.Equal(t, StopLastPage, res.Reason)
	assert.Equal(t, "saved", deref(q.cursors[0]))
}

func TestWalkFetchFailureKeepsPartialResults(t *testing.T) {
	boom := errors.New("connection reset")
	q := &fakeQuerier{
		pages: []string{page([]string{"a", "b"}, true, "c1")},
		errs:  map[int]error{1: boom},
	}
	log := logger.NewTestLogger()
	p := NewPaginator(q, Options{Logger: log})

	posts := p.FetchAllPosts(context.Background(), "jane", 12, 0)
	assert.Equal(t, []string{"a", "b"}, codes(posts))
	assert.True(t, log.HasMessage("Timeline walk stopped early"))

	q2 := &fakeQuerier{errs: map[int]error{0: boom}}
	res := newTestPaginator(q2).Walk(context.Background(), Request{Username: "jane"}, func(Page) bool { return true })
	assert.Equal(t, StopFetchFailed, res.Reason)
	assert.ErrorIs(t, res.Err, boom)
	assert.Zero(t, res.Pages)
}

func TestWalkDecodeFailureStops(t *testing.T) {
	q := &fakeQuerier{pages: []string{page([]string{"a"}, true, "c1"), "<html>"}}
	posts := newTestPaginator(q).FetchAllPosts(context.Background(), "jane", 0, 0)
	assert.Equal(t, []string{"a"}, codes(posts))
}

func TestWalkHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	q := &fakeQuerier{pages: []string{page([]string{"a"}, true, "c1")}}
	res := newTestPaginator(q).Walk(ctx, Request{Username: "jane"}, func(Page) bool { return true })
	assert.Equal(t, StopCanceled, res.Reason)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Empty(t, q.cursors)
}

func TestWalkSpacesPages(t *testing.T) {
	q := &fakeQuerier{pages: []string{
		page([]string{"a"}, true, "c1"),
		page([]string{"b"}, true, "c2"),
		page([]string{"c"}, false, nil),
	}}
	p := NewPaginator(q, Options{Limiter: ratelimit.NewInterval(30 * time.Millisecond)})

	start := time.Now()
	posts := p.FetchAllPosts(context.Background(), "jane", 12, 0)
	assert.Len(t, posts, 3)
	assert.GreaterOrEqual(t, time.Since(start), 55*time.Millisecond)
}

func TestPostsStopsFetchingWhenLoopBreaks(t *testing.T) {
	q := &fakeQuerier{pages: []string{
		page([]string{"a", "b"}, true, "c1"),
		page([]string{"c"}, false, nil),
	}}
	p := newTestPaginator(q)

	var seen []string
	for node := range p.Posts(context.Background(), Request{Username: "jane"}) {
		seen = append(seen, node.Shortcode())
		if node.Shortcode() == "b" {
			break
		}
	}
	assert.Equal(t, []string{"a", "b"}, seen)
	assert.Len(t, q.cursors, 1)
}

func TestWalkWritesDebugDumps(t *testing.T) {
	dir := t.TempDir()
	q := &fakeQuerier{pages: []string{page([]string{"a"}, true, "c1"), page([]string{"b"}, false, nil)}}
	p := NewPaginator(q, Options{Dumper: storage.NewDebugDumper(dir, nil)})

	p.FetchAllPosts(context.Background(), "jane", 12, 0)

	matches, err := filepath.Glob(filepath.Join(dir, "debug_jane_*_p*.json"))
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestWalkDumpFailureIsNotFatal(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	q := &fakeQuerier{pages: []string{page([]string{"a"}, false, nil)}}
	p := NewPaginator(q, Options{Dumper: storage.NewDebugDumper(filepath.Join(blocker, "debug"), nil)})

	assert.Len(t, p.FetchAllPosts(context.Background(), "jane", 12, 0), 1)
}

func TestStopReasonString(t *testing.T) {
	assert.Equal(t, "stale_cursor", StopStaleCursor.String())
	assert.Equal(t, "unknown", StopReason(99).String())
}
