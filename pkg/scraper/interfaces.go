package scraper

import (
	"context"

	"igharvest/pkg/models"
)

// FetchPort performs single fetches against the remote content source. The
// engine decides when and how often to call it; implementations decide how a
// post or page is fetched and parsed.
//
// Both methods must be safe for concurrent use. A FetchUserPage result with
// an empty NextCursor signals the end of the user's history.
type FetchPort interface {
	FetchByShortcode(ctx context.Context, shortcode string) (models.PostRecord, error)
	FetchUserPage(ctx context.Context, req models.PageRequest) (models.Page, error)
}
