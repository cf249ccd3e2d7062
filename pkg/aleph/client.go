// Package aleph adapts the aleph.im data/indexing service: paginated post
// retrieval for registrations and daily network snapshots, and the
// aggregate publish sink. These are thin collaborators of the computation
// core; the core treats every fetch as all-or-nothing.
package aleph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/libertai/ltai-points/pkg/retry"
	"github.com/libertai/ltai-points/pkg/utils"
)

const defaultPageSize = 200

// Client is a paginated JSON client for an aleph.im API endpoint.
type Client struct {
	endpoint string
	http     *http.Client
	logger   *zap.Logger
	retry    retry.Config
	pageSize int
}

// NewClient builds a client for the given API endpoint.
func NewClient(endpoint string, logger *zap.Logger) *Client {
	eps := utils.Dedup([]string{endpoint})
	if len(eps) > 0 {
		endpoint = eps[0]
	}
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: 30 * time.Second},
		logger:   logger,
		retry:    retry.DefaultConfig(),
		pageSize: defaultPageSize,
	}
}

// Post is one aleph.im post as returned by the posts index.
type Post struct {
	Sender  string          `json:"sender"`
	Type    string          `json:"type"`
	Channel string          `json:"channel"`
	Time    float64         `json:"time"`
	Content json.RawMessage `json:"content"`
}

// PostFilter restricts a posts query.
type PostFilter struct {
	Channels  []string
	Addresses []string
	Tags      []string
	Types     []string
}

type postsPage struct {
	Posts            []Post `json:"posts"`
	PaginationTotal  int    `json:"pagination_total"`
	PaginationPage   int    `json:"pagination_page"`
	PaginationPerPag int    `json:"pagination_per_page"`
}

// Posts fetches every page matching the filter, oldest pages last, exactly
// like the upstream pagination walks them. A partial page set is an error;
// callers never see an incomplete result.
func (c *Client) Posts(ctx context.Context, filter PostFilter) ([]Post, error) {
	first, err := c.postsPage(ctx, filter, 1)
	if err != nil {
		return nil, err
	}
	perPage := first.PaginationPerPag
	if perPage <= 0 {
		perPage = c.pageSize
	}
	totalPages := (first.PaginationTotal + perPage - 1) / perPage

	all := make([]Post, 0, first.PaginationTotal)
	all = append(all, first.Posts...)
	for page := 2; page <= totalPages; page++ {
		c.logger.Debug("fetching posts page",
			zap.Int("page", page), zap.Int("total_pages", totalPages))
		pg, err := c.postsPage(ctx, filter, page)
		if err != nil {
			return nil, err
		}
		all = append(all, pg.Posts...)
	}
	return all, nil
}

func (c *Client) postsPage(ctx context.Context, filter PostFilter, page int) (*postsPage, error) {
	q := url.Values{}
	if len(filter.Channels) > 0 {
		q.Set("channels", strings.Join(filter.Channels, ","))
	}
	if len(filter.Addresses) > 0 {
		q.Set("addresses", strings.Join(filter.Addresses, ","))
	}
	if len(filter.Tags) > 0 {
		q.Set("tags", strings.Join(filter.Tags, ","))
	}
	if len(filter.Types) > 0 {
		q.Set("types", strings.Join(filter.Types, ","))
	}
	q.Set("page", strconv.Itoa(page))
	q.Set("pagination", strconv.Itoa(c.pageSize))

	var out postsPage
	err := retry.WithBackoff(ctx, c.retry, c.logger, "fetch posts page", func() error {
		return c.getJSON(ctx, "/api/v0/posts.json?"+q.Encode(), &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		_ = utils.DrainAndClose(resp.Body)
		return fmt.Errorf("http %d from %s", resp.StatusCode, path)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		_ = utils.DrainAndClose(resp.Body)
		return fmt.Errorf("decode response: %w", err)
	}
	return utils.DrainAndClose(resp.Body)
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		_ = utils.DrainAndClose(resp.Body)
		return fmt.Errorf("http %d from %s", resp.StatusCode, path)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			_ = utils.DrainAndClose(resp.Body)
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return utils.DrainAndClose(resp.Body)
}
