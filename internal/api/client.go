package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// Client talks to a Lemmy-compatible API. Every call waits on the shared
// rate limiter first and is recorded in the requests audit log afterwards,
// regardless of outcome.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *Limiter
	audit      *RequestLog
}

func NewClient(baseURL string, limiter *Limiter, audit *RequestLog) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: limiter,
		audit:   audit,
	}
}

// GetSite fetches instance metadata. Used as the startup connectivity check.
func (c *Client) GetSite(ctx context.Context) (*Site, error) {
	body, err := c.get(ctx, "site", nil)
	if err != nil {
		return nil, err
	}
	var resp siteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode site response: %w", err)
	}
	site := resp.SiteView.Site
	site.Version = resp.Version
	return &site, nil
}

// GetCommunity resolves a community by its name@host identifier.
func (c *Client) GetCommunity(ctx context.Context, name string) (*Community, error) {
	body, err := c.get(ctx, "community", url.Values{"name": {name}})
	if err != nil {
		return nil, err
	}
	var resp communityResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode community response: %w", err)
	}
	return &resp.CommunityView.Community, nil
}

// ListPosts fetches one page of a community's post listing, newest first.
func (c *Client) ListPosts(ctx context.Context, community string, page, limit int) ([]PostView, error) {
	body, err := c.get(ctx, "post/list", url.Values{
		"community": {community},
		"page":      {strconv.Itoa(page)},
		"limit":     {strconv.Itoa(limit)},
		"sort":      {"New"},
	})
	if err != nil {
		return nil, err
	}
	var resp postListResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode post list: %w", err)
	}
	return resp.Posts, nil
}

// ListComments fetches the full comment listing for a post.
func (c *Client) ListComments(ctx context.Context, community string, postID int64) ([]CommentView, error) {
	body, err := c.get(ctx, "comment/list", url.Values{
		"post_id":        {strconv.FormatInt(postID, 10)},
		"community_name": {community},
	})
	if err != nil {
		return nil, err
	}
	var resp commentListResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode comment list: %w", err)
	}
	return resp.Comments, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	target := c.baseURL + "/" + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	start := time.Now()
	body, status, err := c.doGet(ctx, target)

	entry := RequestEntry{
		Timestamp:  start.UTC(),
		URL:        target,
		Status:     status,
		DurationMS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if auditErr := c.audit.Append(entry); auditErr != nil {
		log.Error().Err(auditErr).Str("url", target).Msg("Failed to append request audit entry")
	}

	return body, err
}

func (c *Client) doGet(ctx context.Context, target string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, fmt.Errorf("API returned %d: %s", resp.StatusCode, truncate(body, 200))
	}
	return body, resp.StatusCode, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
