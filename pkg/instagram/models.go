package instagram

import (
	"encoding/json"
	"strings"
	"time"

	"igharvest/pkg/models"
)

// PostResponse is the envelope of the single-post document query
type PostResponse struct {
	Data struct {
		ShortcodeMedia *Node `json:"xdt_shortcode_media"`
	} `json:"data"`
	Status string `json:"status"`
}

// TimelineResponse is the envelope of the user timeline query
type TimelineResponse struct {
	RequiresToLogin bool `json:"requires_to_login"`
	Data            struct {
		User *struct {
			EdgeOwnerToTimelineMedia EdgeOwnerToTimelineMedia `json:"edge_owner_to_timeline_media"`
		} `json:"user"`
	} `json:"data"`
	Status string `json:"status"`
}

// EdgeOwnerToTimelineMedia contains the user's media information
type EdgeOwnerToTimelineMedia struct {
	Count    int      `json:"count"`
	PageInfo PageInfo `json:"page_info"`
	Edges    []Edge   `json:"edges"`
}

// PageInfo contains pagination information
type PageInfo struct {
	HasNextPage bool   `json:"has_next_page"`
	EndCursor   string `json:"end_cursor"`
}

// Edge wraps a single media node
type Edge struct {
	Node Node `json:"node"`
}

// Count is any edge of which only the size matters
type Count struct {
	Count int `json:"count"`
}

// CommentEdges is the first page of top-level comments on a post
type CommentEdges struct {
	Count    int      `json:"count"`
	PageInfo PageInfo `json:"page_info"`
	Edges    []struct {
		Node CommentNode `json:"node"`
	} `json:"edges"`
}

// CommentNode is a single top-level comment
type CommentNode struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	CreatedAt int64  `json:"created_at"`
	Owner     struct {
		Username string `json:"username"`
	} `json:"owner"`
	EdgeLikedBy          Count `json:"edge_liked_by"`
	EdgeThreadedComments Count `json:"edge_threaded_comments"`
	DidReportAsSpam      bool  `json:"did_report_as_spam"`
}

// Node is a post as returned by either query. Sidecar children reuse it.
type Node struct {
	Typename             string `json:"__typename"`
	ID                   string `json:"id"`
	Shortcode            string `json:"shortcode"`
	DisplayURL           string `json:"display_url"`
	VideoURL             string `json:"video_url"`
	VideoViewCount       int    `json:"video_view_count"`
	VideoPlayCount       int    `json:"video_play_count"`
	IsVideo              bool   `json:"is_video"`
	TakenAtTimestamp     int64  `json:"taken_at_timestamp"`
	AccessibilityCaption string `json:"accessibility_caption"`
	ProductType          string `json:"product_type"`
	CommentsDisabled     bool   `json:"comments_disabled"`
	IsPaidPartnership    bool   `json:"is_paid_partnership"`
	// fact check and sensitivity blocks are kept verbatim
	FactCheckOverallRating  string          `json:"fact_check_overall_rating"`
	FactCheckInformation    json.RawMessage `json:"fact_check_information"`
	SensitivityFrictionInfo json.RawMessage `json:"sensitivity_friction_info"`
	Owner                   struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"owner"`
	Location *struct {
		Name string `json:"name"`
	} `json:"location"`
	EdgeMediaToCaption struct {
		Edges []struct {
			Node struct {
				Text string `json:"text"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"edge_media_to_caption"`
	EdgeMediaPreviewLike     Count        `json:"edge_media_preview_like"`
	EdgeLikedBy              Count        `json:"edge_liked_by"`
	EdgeMediaToComment       Count        `json:"edge_media_to_comment"`
	EdgeMediaToParentComment CommentEdges `json:"edge_media_to_parent_comment"`
	EdgeSidecarToChildren    struct {
		Edges []Edge `json:"edges"`
	} `json:"edge_sidecar_to_children"`
	EdgeMediaToTaggedUser struct {
		Edges []struct {
			Node struct {
				User struct {
					Username string `json:"username"`
				} `json:"user"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"edge_media_to_tagged_user"`
}

// Post is the reduced view of a post carried as the record payload
type Post struct {
	ID                   string    `json:"id"`
	Shortcode            string    `json:"shortcode"`
	URL                  string    `json:"url"`
	OwnerID              string    `json:"owner_id"`
	Owner                string    `json:"owner"`
	TakenAt              time.Time `json:"taken_at"`
	MediaType            string    `json:"media_type"`
	ProductType          string    `json:"product_type,omitempty"`
	Caption              string    `json:"caption,omitempty"`
	Likes                int       `json:"likes"`
	Comments             int       `json:"comments"`
	CommentsDisabled     bool      `json:"comments_disabled"`
	Location             string    `json:"location,omitempty"`
	IsVideo              bool      `json:"is_video"`
	TaggedUsers          []string  `json:"tagged_users,omitempty"`
	DisplayURL           string    `json:"display_url,omitempty"`
	VideoURL             string    `json:"video_url,omitempty"`
	VideoViews           int       `json:"video_views,omitempty"`
	AccessibilityCaption string    `json:"accessibility_caption,omitempty"`
	IsPaidPartnership    bool      `json:"is_paid_partnership"`
	// Media lists the image or video of a single post, or every child of a
	// sidecar in carousel order
	Media               []Media   `json:"media,omitempty"`
	CommentThread       []Comment `json:"comment_thread,omitempty"`
	CommentsNextPage    string    `json:"comments_next_page,omitempty"`
	CommentsHasNextPage bool      `json:"comments_has_next_page"`
}

// Media is one image or video of a post
type Media struct {
	Shortcode              string          `json:"shortcode,omitempty"`
	URL                    string          `json:"url"`
	AltText                string          `json:"alt_text,omitempty"`
	FactCheckRating        string          `json:"factcheck_rating,omitempty"`
	FactCheckInformation   json.RawMessage `json:"factcheck_information,omitempty"`
	SensitivityInformation json.RawMessage `json:"sensitivity_information,omitempty"`
	VideoViews             int             `json:"video_views,omitempty"`
	VideoPlays             int             `json:"video_plays,omitempty"`
}

// Comment is a top-level comment from the first comment page
type Comment struct {
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	Username  string    `json:"username"`
	Likes     int       `json:"likes"`
	Replies   int       `json:"replies"`
	Spam      bool      `json:"spam"`
}

// MediaType maps the GraphQL typename to image, video or sidecar
func (n *Node) MediaType() string {
	t := strings.ToLower(n.Typename)
	switch {
	case strings.Contains(t, "sidecar"):
		return "sidecar"
	case strings.Contains(t, "video"), n.IsVideo:
		return "video"
	default:
		return "image"
	}
}

// ToPost reduces a node to the fields kept in results
func (n *Node) ToPost() Post {
	post := Post{
		ID:                   n.ID,
		Shortcode:            n.Shortcode,
		URL:                  GetPostURL(n.Shortcode),
		OwnerID:              n.Owner.ID,
		Owner:                n.Owner.Username,
		MediaType:            n.MediaType(),
		ProductType:          n.ProductType,
		CommentsDisabled:     n.CommentsDisabled,
		IsVideo:              n.IsVideo,
		DisplayURL:           n.DisplayURL,
		VideoURL:             n.VideoURL,
		VideoViews:           n.VideoViewCount,
		AccessibilityCaption: n.AccessibilityCaption,
		IsPaidPartnership:    n.IsPaidPartnership,
		CommentsNextPage:     n.EdgeMediaToParentComment.PageInfo.EndCursor,
		CommentsHasNextPage:  n.EdgeMediaToParentComment.PageInfo.HasNextPage,
	}

	if n.TakenAtTimestamp > 0 {
		post.TakenAt = time.Unix(n.TakenAtTimestamp, 0).UTC()
	}
	if n.Location != nil {
		post.Location = n.Location.Name
	}

	var captions []string
	for _, e := range n.EdgeMediaToCaption.Edges {
		captions = append(captions, e.Node.Text)
	}
	post.Caption = strings.Join(captions, "\n\n")

	for _, e := range n.EdgeMediaToTaggedUser.Edges {
		post.TaggedUsers = append(post.TaggedUsers, e.Node.User.Username)
	}

	post.Likes = n.EdgeMediaPreviewLike.Count
	if post.Likes == 0 {
		post.Likes = n.EdgeLikedBy.Count
	}
	post.Comments = n.EdgeMediaToComment.Count
	if post.Comments == 0 {
		post.Comments = n.EdgeMediaToParentComment.Count
	}

	if post.MediaType == "sidecar" {
		for i := range n.EdgeSidecarToChildren.Edges {
			post.Media = append(post.Media, n.EdgeSidecarToChildren.Edges[i].Node.toMedia())
		}
	} else {
		post.Media = []Media{n.toMedia()}
	}

	for _, e := range n.EdgeMediaToParentComment.Edges {
		post.CommentThread = append(post.CommentThread, e.Node.toComment())
	}

	return post
}

func (n *Node) toMedia() Media {
	m := Media{
		Shortcode:              n.Shortcode,
		URL:                    n.DisplayURL,
		AltText:                n.AccessibilityCaption,
		FactCheckRating:        n.FactCheckOverallRating,
		FactCheckInformation:   rawOrNil(n.FactCheckInformation),
		SensitivityInformation: rawOrNil(n.SensitivityFrictionInfo),
	}
	if n.MediaType() == "video" {
		m.URL = n.VideoURL
		m.VideoViews = n.VideoViewCount
		m.VideoPlays = n.VideoPlayCount
	}
	return m
}

func (c *CommentNode) toComment() Comment {
	comment := Comment{
		Text:     c.Text,
		Username: c.Owner.Username,
		Likes:    c.EdgeLikedBy.Count,
		Replies:  c.EdgeThreadedComments.Count,
		Spam:     c.DidReportAsSpam,
	}
	if c.CreatedAt > 0 {
		comment.CreatedAt = time.Unix(c.CreatedAt, 0).UTC()
	}
	return comment
}

// rawOrNil drops JSON null so empty blocks are omitted from results
func rawOrNil(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return raw
}

// ToRecord converts a node into the engine's record type
func (n *Node) ToRecord() models.PostRecord {
	post := n.ToPost()
	return models.PostRecord{
		ID:        post.ID,
		OwnerID:   post.OwnerID,
		Shortcode: post.Shortcode,
		PostedAt:  post.TakenAt,
		Payload:   post,
	}
}
