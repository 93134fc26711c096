package instagram

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"igharvest/pkg/config"
	errs "igharvest/pkg/errors"
	"igharvest/pkg/logger"
	"igharvest/pkg/metrics"
	"igharvest/pkg/models"
	"igharvest/pkg/ratelimit"
)

// Client fetches posts from Instagram's GraphQL endpoints. It implements the
// engine's FetchPort and is safe for concurrent use: headers are fixed by
// NewClient and only read afterwards.
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	baseURL    string
	pageSize   int
	limiter    ratelimit.Limiter
	logger     logger.Logger
	metrics    *metrics.Metrics
}

// ClientOption customises a Client
type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURL points the client at another host, mostly for tests
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(baseURL, "/") }
}

// WithLimiter paces every request through l
func WithLimiter(l ratelimit.Limiter) ClientOption {
	return func(c *Client) { c.limiter = l }
}

// WithLogger sets the client logger
func WithLogger(l logger.Logger) ClientOption {
	return func(c *Client) { c.logger = logger.OrNop(l) }
}

// WithMetrics records rate limiter waits
func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a client from the instagram configuration section
func NewClient(cfg config.InstagramConfig, opts ...ClientOption) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		headers: map[string]string{
			"Accept":           "*/*",
			"Accept-Language":  "en-US,en;q=0.9",
			"X-Requested-With": "XMLHttpRequest",
		},
		baseURL:  BaseURL,
		pageSize: cfg.PageSize,
		logger:   logger.NewNopLogger(),
	}

	if cfg.UserAgent != "" {
		c.headers["User-Agent"] = cfg.UserAgent
	}
	if cfg.AppID != "" {
		c.headers["X-IG-App-ID"] = cfg.AppID
	}

	var cookies []string
	if cfg.SessionID != "" {
		cookies = append(cookies, "sessionid="+cfg.SessionID)
	}
	if cfg.CSRFToken != "" {
		cookies = append(cookies, "csrftoken="+cfg.CSRFToken)
		c.headers["X-CSRFToken"] = cfg.CSRFToken
	}
	if len(cookies) > 0 {
		c.headers["Cookie"] = strings.Join(cookies, "; ")
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchByShortcode fetches a single post. Post URLs are accepted in place of
// a bare shortcode.
func (c *Client) FetchByShortcode(ctx context.Context, shortcode string) (models.PostRecord, error) {
	shortcode = ExtractShortcode(shortcode)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+GraphQLEndpoint, strings.NewReader(PostQueryBody(shortcode)))
	if err != nil {
		return models.PostRecord{}, errs.NewFetchError(errs.ErrorTypeUnknown, 0, "failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var response PostResponse
	if err := c.doJSON(req, &response); err != nil {
		return models.PostRecord{}, err
	}

	node := response.Data.ShortcodeMedia
	if node == nil {
		return models.PostRecord{}, errs.NewFetchError(errs.ErrorTypeNotFound, http.StatusOK, "post %s not found", shortcode)
	}

	c.logger.DebugWithFields("fetched post", map[string]interface{}{
		"shortcode": shortcode,
	})
	return node.ToRecord(), nil
}

// FetchUserPage fetches one page of a user's timeline
func (c *Client) FetchUserPage(ctx context.Context, pageReq models.PageRequest) (models.Page, error) {
	url := UserPostsURL(c.baseURL, pageReq.UserID, pageReq.Cursor, c.pageSize)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.Page{}, errs.NewFetchError(errs.ErrorTypeUnknown, 0, "failed to create request: %v", err)
	}

	var response TimelineResponse
	if err := c.doJSON(req, &response); err != nil {
		return models.Page{}, err
	}

	if response.RequiresToLogin {
		return models.Page{}, errs.NewFetchError(errs.ErrorTypeAuth, http.StatusUnauthorized, "login required to list posts of %s", pageReq.UserID)
	}
	if response.Data.User == nil {
		return models.Page{}, errs.NewFetchError(errs.ErrorTypeNotFound, http.StatusOK, "user %s not found", pageReq.UserID)
	}

	media := response.Data.User.EdgeOwnerToTimelineMedia
	page := models.Page{Records: make([]models.PostRecord, 0, len(media.Edges))}
	for i := range media.Edges {
		rec := media.Edges[i].Node.ToRecord()
		if rec.OwnerID == "" {
			rec.OwnerID = pageReq.UserID
		}
		page.Records = append(page.Records, rec)
	}
	if media.PageInfo.HasNextPage {
		page.NextCursor = media.PageInfo.EndCursor
	}

	fields := map[string]interface{}{
		"user_id": pageReq.UserID,
		"page":    pageReq.PageIndex,
		"posts":   len(page.Records),
	}
	if pageReq.PageIndex == 0 {
		fields["total_posts"] = media.Count
	}
	c.logger.DebugWithFields("fetched user page", fields)

	return page, nil
}

// doJSON waits for the rate limiter, sends req and decodes a 200 response
// into target. Failures are returned as *errors.FetchError, except context
// cancellation which is returned as is.
func (c *Client) doJSON(req *http.Request, target interface{}) error {
	ctx := req.Context()

	if c.limiter != nil {
		start := time.Now()
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		if waited := time.Since(start); waited > time.Millisecond {
			c.metrics.ObserveRateLimitWait(waited)
			logger.LogRateLimit(c.logger, req.URL.Path, waited)
		}
	}

	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.WarnWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"url":      req.URL.String(),
			"error":    err.Error(),
			"duration": time.Since(start),
		})
		return errs.NewFetchError(errs.ErrorTypeNetwork, 0, "network error: %v", err)
	}
	defer resp.Body.Close()

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"method":   req.Method,
		"url":      req.URL.String(),
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	})

	if err := c.checkResponseStatus(resp); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.NewFetchError(errs.ErrorTypeNetwork, resp.StatusCode, "failed to read response body: %v", err)
	}

	if err := json.Unmarshal(body, target); err != nil {
		bodyPreview := string(body)
		if len(bodyPreview) > 200 {
			bodyPreview = bodyPreview[:200] + "..."
		}
		c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
			"url":          req.URL.String(),
			"status":       resp.StatusCode,
			"error":        err.Error(),
			"body_preview": bodyPreview,
		})
		return errs.NewFetchError(errs.ErrorTypeParsing, resp.StatusCode, "failed to parse JSON: %v", err)
	}

	return nil
}

// checkResponseStatus maps HTTP status codes onto fetch error types
func (c *Client) checkResponseStatus(resp *http.Response) error {
	code := resp.StatusCode
	var errorType errs.ErrorType

	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		errorType = errs.ErrorTypeAuth
	case code == http.StatusNotFound:
		errorType = errs.ErrorTypeNotFound
	case code == http.StatusTooManyRequests:
		errorType = errs.ErrorTypeRateLimit
	case code >= 500:
		errorType = errs.ErrorTypeServerError
	default:
		errorType = errs.ErrorTypeUnknown
	}

	c.logger.WarnWithFields("unexpected response status", map[string]interface{}{
		"status": code,
		"url":    resp.Request.URL.String(),
		"type":   string(errorType),
	})
	return errs.NewFetchError(errorType, code, "%s returned status %d", resp.Request.URL.Path, code)
}
