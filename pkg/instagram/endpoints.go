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

	// GraphQLEndpoint serves both the post document query and the timeline query
	GraphQLEndpoint = "/graphql/query"

	// PostDocID identifies the persisted query returning a single post
	PostDocID = "8845758582119845"

	// MediaQueryHash is the query hash for fetching user media
	MediaQueryHash = "e769aa130647d2354c40ea6a439bfc08"

	// DefaultPageSize is the number of posts requested per timeline page
	DefaultPageSize = 24

	// MaxPageSize is the largest page the timeline query accepts
	MaxPageSize = 50
)

// PostQueryBody builds the form body of the single-post query
func PostQueryBody(shortcode string) string {
	variables, _ := json.Marshal(map[string]interface{}{
		"shortcode":               shortcode,
		"fetch_tagged_user_count": nil,
		"hoisted_comment_id":      nil,
		"hoisted_reply_id":        nil,
	})

	form := url.Values{}
	form.Set("variables", string(variables))
	form.Set("doc_id", PostDocID)
	return form.Encode()
}

// UserPostsURL constructs the URL of one timeline page of a user's posts.
// An empty after requests the first page.
func UserPostsURL(baseURL, userID, after string, pageSize int) string {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	} else if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	vars := struct {
		ID    string  `json:"id"`
		First int     `json:"first"`
		After *string `json:"after"`
	}{ID: userID, First: pageSize}
	if after != "" {
		vars.After = &after
	}
	variables, _ := json.Marshal(vars)

	params := url.Values{}
	params.Set("query_hash", MediaQueryHash)
	params.Set("variables", string(variables))

	return fmt.Sprintf("%s%s/?%s", strings.TrimRight(baseURL, "/"), GraphQLEndpoint, params.Encode())
}

// GetPostURL constructs the public URL of a post
func GetPostURL(shortcode string) string {
	if shortcode == "" {
		return ""
	}
	return fmt.Sprintf("%s/p/%s/", BaseURL, shortcode)
}

// ExtractShortcode accepts a bare shortcode or a post URL such as
// https://www.instagram.com/p/<code>/ and returns the shortcode
func ExtractShortcode(input string) string {
	input = strings.TrimSpace(input)
	if !strings.Contains(input, "http") && !strings.Contains(input, "/") {
		return input
	}

	for _, marker := range []string{"/p/", "/reel/", "/tv/"} {
		if idx := strings.Index(input, marker); idx >= 0 {
			rest := input[idx+len(marker):]
			if end := strings.IndexAny(rest, "/?#"); end >= 0 {
				rest = rest[:end]
			}
			return rest
		}
	}
	return strings.Trim(input, "/")
}

// NormalizeShortcodes maps every input through ExtractShortcode
func NormalizeShortcodes(inputs []string) []string {
	out := make([]string, 0, len(inputs))
	for _, in := range inputs {
		if code := ExtractShortcode(in); code != "" {
			out = append(out, code)
		}
	}
	return out
}
