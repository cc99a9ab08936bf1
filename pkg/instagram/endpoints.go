package instagram

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

const (
	// BaseURL is the base URL for Instagram
	BaseURL = "https://www.instagram.com"

	// GraphQLEndpoint accepts form-encoded persisted queries
	GraphQLEndpoint = BaseURL + "/graphql/query"

	// TimelineDocID is the persisted query id for a user's post timeline
	TimelineDocID = "9310670392322965"

	// WebAppID is sent as X-IG-App-ID by the web client
	WebAppID = "936619743392459"

	// DefaultPageSize is the number of timeline items requested per page
	DefaultPageSize = 12

	// MaxPageSize is the largest page the endpoint honors
	MaxPageSize = 50
)

// LinkKind says what an Instagram URL points at
type LinkKind int

const (
	LinkUnknown LinkKind = iota
	LinkPost
	LinkStory
	LinkProfile
)

func (k LinkKind) String() string {
	switch k {
	case LinkPost:
		return "post"
	case LinkStory:
		return "story"
	case LinkProfile:
		return "profile"
	default:
		return "unknown"
	}
}

// Link is a parsed Instagram URL
type Link struct {
	Kind      LinkKind
	URL       string
	Shortcode string
	Username  string
	// StoryID is the numeric media id of a single story item, if present
	StoryID string
}

// first path segments that are never usernames
var reservedPaths = map[string]bool{
	"explore": true, "accounts": true, "direct": true, "about": true,
	"developer": true, "legal": true, "api": true, "graphql": true,
	"static": true, "web": true, "emails": true, "challenge": true,
}

// ParseLink classifies an instagram.com URL
func ParseLink(raw string) (Link, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Link{}, fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Link{}, fmt.Errorf("invalid URL %q: scheme must be http or https", raw)
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")
	if host != "instagram.com" {
		return Link{}, fmt.Errorf("not an instagram.com URL: %q", raw)
	}

	link := Link{URL: u.String()}
	segs := splitPath(u.Path)
	if len(segs) == 0 {
		return link, nil
	}

	switch segs[0] {
	case "p", "reel", "reels", "tv":
		if len(segs) >= 2 {
			link.Kind, link.Shortcode = LinkPost, segs[1]
		}
	case "stories":
		if len(segs) >= 2 {
			link.Kind, link.Username = LinkStory, segs[1]
			if len(segs) >= 3 {
				link.StoryID = segs[2]
			}
		}
	default:
		// /<username>/p/<code>/ is also a post link
		if len(segs) >= 3 && (segs[1] == "p" || segs[1] == "reel") {
			link.Kind, link.Shortcode, link.Username = LinkPost, segs[2], segs[0]
		} else if !reservedPaths[segs[0]] && IsValidUsername(segs[0]) {
			link.Kind, link.Username = LinkProfile, segs[0]
		}
	}
	return link, nil
}

func splitPath(p string) []string {
	var segs []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

// TimelineVariables are the GraphQL variables of the timeline query
type TimelineVariables struct {
	After      *string      `json:"after"`
	Before     *string      `json:"before"`
	Data       TimelineData `json:"data"`
	First      int          `json:"first"`
	Last       *int         `json:"last"`
	Username   string       `json:"username"`
	LoggedIn   bool         `json:"__relay_internal__pv__PolarisIsLoggedInrelayprovider"`
	ShareSheet bool         `json:"__relay_internal__pv__PolarisShareSheetV3relayprovider"`
}

// TimelineData is the nested "data" object of TimelineVariables
type TimelineData struct {
	Count                         int  `json:"count"`
	IncludeReelMediaSeenTimestamp bool `json:"include_reel_media_seen_timestamp"`
	IncludeRelationshipInfo       bool `json:"include_relationship_info"`
	LatestBestiesReelMedia        bool `json:"latest_besties_reel_media"`
	LatestReelMedia               bool `json:"latest_reel_media"`
}

// NewTimelineVariables builds the variables for one page. A nil cursor asks for the first page.
func NewTimelineVariables(username string, pageSize int, after *string) TimelineVariables {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	} else if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return TimelineVariables{
		After: after,
		Data: TimelineData{
			Count:                         pageSize,
			IncludeReelMediaSeenTimestamp: true,
			IncludeRelationshipInfo:       true,
			LatestBestiesReelMedia:        true,
			LatestReelMedia:               true,
		},
		First:      pageSize,
		Username:   username,
		LoggedIn:   true,
		ShareSheet: true,
	}
}

// TimelineForm encodes the form body of a timeline query
func TimelineForm(vars TimelineVariables, docID string) (map[string]string, error) {
	encoded, err := json.Marshal(vars)
	if err != nil {
		return nil, fmt.Errorf("encode variables: %w", err)
	}
	return map[string]string{
		"variables": string(encoded),
		"doc_id":    docID,
	}, nil
}

// GetPostURL constructs the URL for a specific post
func GetPostURL(shortcode string) string {
	if shortcode == "" {
		return ""
	}
	return fmt.Sprintf("%s/p/%s/", BaseURL, shortcode)
}

// GetUserProfileURL constructs the public profile URL for a user
func GetUserProfileURL(username string) string {
	if username == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s/", BaseURL, username)
}

// IsValidUsername checks if a username is valid according to Instagram rules
func IsValidUsername(username string) bool {
	if username == "" || len(username) > 30 {
		return false
	}

	// Instagram usernames can only contain letters, numbers, periods, and underscores
	for _, char := range username {
		if !((char >= 'a' && char <= 'z') ||
			(char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') ||
			char == '.' || char == '_') {
			return false
		}
	}

	return true
}

// SanitizeUsername strips a leading @ and trailing slashes or spaces
func SanitizeUsername(username string) string {
	username = strings.TrimSpace(username)
	username = strings.TrimPrefix(username, "@")
	return strings.TrimRight(username, "/ ")
}
