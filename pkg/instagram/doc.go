// Package instagram is the HTTP fetch adapter the harvest engine runs
// against.
//
// Single posts are fetched with the persisted post document query (a form
// POST carrying doc_id and the shortcode variables); user histories are read
// page by page from the timeline query, following end_cursor while
// has_next_page is set. Responses are reduced to a Post payload and wrapped
// in models.PostRecord.
//
// Failures come back as *errors.FetchError typed by HTTP status. The default
// retry policy retries all of them; retry.TransientOnly gives up early on
// 401/403, 404 and unparseable JSON.
//
//	client := instagram.NewClient(cfg.Instagram,
//		instagram.WithLimiter(limiter),
//		instagram.WithLogger(log),
//	)
//	page, err := client.FetchUserPage(ctx, models.PageRequest{UserID: "1067259270"})
package instagram
