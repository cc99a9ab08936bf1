package graphql

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "igfetch/pkg/errors"
	"igfetch/pkg/instagram"
)

type fakePages struct {
	html  string
	err   error
	calls []string
}

func (f *fakePages) GetPage(ctx context.Context, url string) ([]byte, error) {
	f.calls = append(f.calls, url)
	return []byte(f.html), f.err
}

const postPage = `<html><head>
<title>Instagram</title>
<meta property="og:title" content="jane.doe on Instagram: &quot;sunset&quot;">
</head><body></body></html>`

func mustLink(t *testing.T, raw string) instagram.Link {
	t.Helper()
	link, err := instagram.ParseLink(raw)
	require.NoError(t, err)
	return link
}

func TestFindPost(t *testing.T) {
	pages := &fakePages{html: postPage}
	q := &fakeQuerier{pages: []string{page([]string{"AAA", "BBB", "CCC"}, true, "c1")}}
	loc := NewLocator(pages, newTestPaginator(q), 1, nil)

	node, err := loc.FindPost(context.Background(), mustLink(t, "https://www.instagram.com/p/BBB/"))
	require.NoError(t, err)
	assert.Equal(t, "BBB", node.Shortcode())
	assert.Equal(t, []string{"https://www.instagram.com/p/BBB/"}, pages.calls)
	assert.Len(t, q.cursors, 1)
}

func TestFindPostUsesUsernameFromLink(t *testing.T) {
	pages := &fakePages{err: errors.New("should not be called")}
	q := &fakeQuerier{pages: []string{page([]string{"AAA"}, false, nil)}}
	loc := NewLocator(pages, newTestPaginator(q), 1, nil)

	node, err := loc.FindPost(context.Background(), mustLink(t, "https://www.instagram.com/jane/p/AAA/"))
	require.NoError(t, err)
	assert.Equal(t, "AAA", node.Shortcode())
	assert.Empty(t, pages.calls)
}

func TestFindPostNotInLookupWindow(t *testing.T) {
	q := &fakeQuerier{pages: []string{
		page([]string{"AAA"}, true, "c1"),
		page([]string{"ZZZ"}, false, nil),
	}}
	loc := NewLocator(&fakePages{html: postPage}, newTestPaginator(q), 1, nil)

	_, err := loc.FindPost(context.Background(), mustLink(t, "https://www.instagram.com/p/ZZZ/"))
	require.Error(t, err)
	assert.Equal(t, errs.KindExtraction, errs.KindOf(err))
	assert.Len(t, q.cursors, 1, "only the lookup window is fetched")

	q.cursors = nil
	loc = NewLocator(&fakePages{html: postPage}, newTestPaginator(q), 2, nil)
	q.pages = []string{page([]string{"AAA"}, true, "c1"), page([]string{"ZZZ"}, false, nil)}
	node, err := loc.FindPost(context.Background(), mustLink(t, "https://www.instagram.com/p/ZZZ/"))
	require.NoError(t, err)
	assert.Equal(t, "ZZZ", node.Shortcode())
}

func TestFindPostOwnerErrors(t *testing.T) {
	loc := NewLocator(&fakePages{err: errors.New("refused")}, newTestPaginator(&fakeQuerier{}), 1, nil)
	_, err := loc.FindPost(context.Background(), mustLink(t, "https://www.instagram.com/p/AAA/"))
	assert.Equal(t, errs.KindFetch, errs.KindOf(err))

	loc = NewLocator(&fakePages{html: "<html><title>Login</title></html>"}, newTestPaginator(&fakeQuerier{}), 1, nil)
	_, err = loc.FindPost(context.Background(), mustLink(t, "https://www.instagram.com/p/AAA/"))
	assert.Equal(t, errs.KindExtraction, errs.KindOf(err))

	_, err = loc.Owner(context.Background(), instagram.Link{URL: "https://www.instagram.com/"})
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestUsernameFromPage(t *testing.T) {
	assert.Equal(t, "jane.doe", UsernameFromPage([]byte(postPage)))
	assert.Equal(t, "bob", UsernameFromPage([]byte(`<title>Bob (@bob) • Instagram photos and videos</title>`)))
	assert.Empty(t, UsernameFromPage([]byte(`<html></html>`)))
}
