package instagram

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeNode(t *testing.T, raw string) PostNode {
	t.Helper()
	var edge Edge
	require.NoError(t, json.Unmarshal([]byte(`{"node":`+raw+`}`), &edge))
	return edge.Node
}

func TestPostNodeIdentifiers(t *testing.T) {
	n := decodeNode(t, `{"code":"ABC","id":"123_456","user":{"username":"jane"}}`)
	assert.Equal(t, "ABC", n.Shortcode())
	assert.Equal(t, "123_456", n.ID())
	assert.Equal(t, "jane", n.Username())

	legacy := decodeNode(t, `{"shortcode":"XYZ","pk":3141592653,"owner":{"username":"old"}}`)
	assert.Equal(t, "XYZ", legacy.Shortcode())
	assert.Equal(t, "3141592653", legacy.ID())
	assert.Equal(t, "old", legacy.Username())

	empty := decodeNode(t, `{}`)
	assert.Empty(t, empty.Shortcode())
	assert.Empty(t, empty.ID())
}

func TestPostNodeMediaRefs(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []MediaRef
	}{
		{
			name: "single image",
			raw:  `{"image_versions2":{"candidates":[{"url":"https://cdn/a.jpg"},{"url":"https://cdn/a_small.jpg"}]}}`,
			want: []MediaRef{{URL: "https://cdn/a.jpg"}},
		},
		{
			name: "video wins over its cover",
			raw: `{"video_versions":[{"url":"https://cdn/v.mp4"}],
			       "image_versions2":{"candidates":[{"url":"https://cdn/cover.jpg"}]}}`,
			want: []MediaRef{{URL: "https://cdn/v.mp4", Video: true}},
		},
		{
			name: "carousel keeps order",
			raw: `{"carousel_media":[
			        {"image_versions2":{"candidates":[{"url":"https://cdn/1.jpg"}]}},
			        {"video_versions":[{"url":"https://cdn/2.mp4"}]},
			        {"nothing":true},
			        {"image_versions2":{"candidates":[{"url":"https://cdn/3.jpg"}]}}
			      ],
			      "image_versions2":{"candidates":[{"url":"https://cdn/cover.jpg"}]}}`,
			want: []MediaRef{
				{URL: "https://cdn/1.jpg"},
				{URL: "https://cdn/2.mp4", Video: true},
				{URL: "https://cdn/3.jpg"},
			},
		},
		{
			name: "legacy display url",
			raw:  `{"display_url":"https://cdn/d.jpg","is_video":false}`,
			want: []MediaRef{{URL: "https://cdn/d.jpg"}},
		},
		{
			name: "no media",
			raw:  `{"code":"ABC"}`,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, decodeNode(t, tt.raw).MediaRefs())
		})
	}
}

func TestNewPostNode(t *testing.T) {
	n := NewPostNode(map[string]interface{}{"code": "ABC"})
	assert.Equal(t, "ABC", n.Shortcode())
}

func TestUsernameFromTitle(t *testing.T) {
	tests := map[string]string{
		"Jane Doe (@jane.doe) • Instagram photos and videos": "jane.doe",
		`jane_doe on Instagram: "sunset"`:                    "jane_doe",
		"Instagram":                                          "",
		"(@bad user) • Instagram":                            "",
		"":                                                   "",
	}
	for title, want := range tests {
		assert.Equal(t, want, UsernameFromTitle(title), title)
	}
}
