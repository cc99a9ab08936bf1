package instagram

import (
	"strconv"
	"strings"

	"github.com/ysmood/gson"
)

// TimelineResponse is the envelope of a timeline GraphQL page
type TimelineResponse struct {
	Data struct {
		// Connection is nil when the response has no timeline container
		Connection *TimelineConnection `json:"xdt_api__v1__feed__user_timeline_graphql_connection"`
	} `json:"data"`
	Status string `json:"status"`
}

// TimelineConnection holds one page of edges
type TimelineConnection struct {
	Edges    []Edge   `json:"edges"`
	PageInfo PageInfo `json:"page_info"`
}

// PageInfo contains pagination information
type PageInfo struct {
	HasNextPage bool    `json:"has_next_page"`
	EndCursor   *string `json:"end_cursor"`
}

// Edge wraps a single post node
type Edge struct {
	Node PostNode `json:"node"`
}

// PostNode is an opaque timeline node. Only identifiers and media references are read.
type PostNode struct {
	gson.JSON
}

// NewPostNode wraps an already decoded value, mostly for tests
func NewPostNode(v interface{}) PostNode {
	return PostNode{gson.New(v)}
}

// Shortcode returns the post code used in /p/<code>/ URLs
func (n PostNode) Shortcode() string {
	return n.firstString("code", "shortcode")
}

// ID returns the media id
func (n PostNode) ID() string {
	return n.firstString("id", "pk")
}

// Username returns the owner's username, if present
func (n PostNode) Username() string {
	return n.firstString("user.username", "owner.username")
}

func (n PostNode) firstString(paths ...string) string {
	for _, p := range paths {
		if !n.Has(p) {
			continue
		}
		if s := scalarString(n.Get(p)); s != "" {
			return s
		}
	}
	return ""
}

func scalarString(j gson.JSON) string {
	switch v := j.Val().(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// MediaRef is one downloadable asset referenced by a node
type MediaRef struct {
	URL   string
	Video bool
}

// MediaRefs lists the node's assets. Carousel children come first-to-last;
// each item contributes its video when it has one and its best image otherwise.
func (n PostNode) MediaRefs() []MediaRef {
	if n.Has("carousel_media") {
		var refs []MediaRef
		for _, child := range n.Get("carousel_media").Arr() {
			if ref, ok := itemRef(child); ok {
				refs = append(refs, ref)
			}
		}
		if len(refs) > 0 {
			return refs
		}
	}
	if ref, ok := itemRef(n.JSON); ok {
		return []MediaRef{ref}
	}
	return nil
}

func itemRef(item gson.JSON) (MediaRef, bool) {
	if item.Has("video_versions.0.url") {
		if u := scalarString(item.Get("video_versions.0.url")); u != "" {
			return MediaRef{URL: u, Video: true}, true
		}
	}
	if item.Has("image_versions2.candidates.0.url") {
		if u := scalarString(item.Get("image_versions2.candidates.0.url")); u != "" {
			return MediaRef{URL: u}, true
		}
	}
	// Older node shapes
	if item.Has("display_url") {
		if u := scalarString(item.Get("display_url")); u != "" {
			return MediaRef{URL: u, Video: item.Get("is_video").Bool()}, true
		}
	}
	return MediaRef{}, false
}

// UsernameFromTitle extracts the owner from an og:title such as
// `Jane (@jane.doe) • Instagram photos and videos` or `jane.doe on Instagram: "caption"`.
func UsernameFromTitle(title string) string {
	if i := strings.Index(title, "(@"); i >= 0 {
		rest := title[i+2:]
		if j := strings.IndexByte(rest, ')'); j > 0 {
			if u := rest[:j]; IsValidUsername(u) {
				return u
			}
		}
	}
	if i := strings.Index(title, " on Instagram"); i > 0 {
		if u := SanitizeUsername(title[:i]); IsValidUsername(u) {
			return u
		}
	}
	return ""
}
