// Package s2 is a rate-limited client for the Semantic Scholar Graph API.
//
// All calls share one single-slot limiter, so requests are strictly
// serialized with a minimum inter-call spacing. Unauthenticated use gets
// the conservative default spacing; an API key tightens it. An optional
// on-disk cache sits in front of both the limiter and the network.
package s2

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/matsen/lineage/internal/cache"
	"github.com/matsen/lineage/internal/paper"
)

const (
	// BaseURL is the Semantic Scholar API host.
	BaseURL = "https://api.semanticscholar.org"

	graphPath = "/graph/v1"
	recPath   = "/recommendations/v1"

	// DefaultFields are the paper fields requested on every lookup.
	DefaultFields = "paperId,title,abstract,year,authors,citationCount"

	// DefaultDelay is the inter-call spacing for unauthenticated use.
	// The public tier allows roughly 1 request/second; stay under it.
	DefaultDelay = 1100 * time.Millisecond

	// AuthenticatedDelay is the spacing when an API key is present.
	AuthenticatedDelay = 150 * time.Millisecond

	// PageSize is the citations page size. Pagination stops at the first
	// short page, not at a fixed page count.
	PageSize = 100

	// Retry policy for 429 responses: exponential backoff starting at
	// retryBaseDelay, doubling per attempt, bounded by both an attempt
	// count and a total wall-clock budget.
	retryBaseDelay   = time.Second
	maxRetryAttempts = 8
	retryBudget      = 20 * time.Second

	// DefaultRecommendationsLimit caps recommendation lookups.
	DefaultRecommendationsLimit = 50
)

// Client is a rate-limited HTTP client for the Semantic Scholar API.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	apiKey     string
	baseURL    string
	cache      *cache.Cache
	logger     *slog.Logger

	// titleIDs memoizes title -> paper ID resolutions for the session.
	titleIDs map[string]string

	// sleep is swappable in tests; it must respect ctx cancellation.
	sleep func(ctx context.Context, d time.Duration) error
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithAPIKey sets the API key and tightens the inter-call spacing.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
		if key != "" {
			c.limiter = rate.NewLimiter(rate.Every(AuthenticatedDelay), 1)
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithDelay overrides the inter-call spacing.
func WithDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.limiter = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

// WithCache attaches an on-disk response cache. A cache hit bypasses the
// limiter and the network entirely; callers see no difference.
func WithCache(disk *cache.Cache) ClientOption {
	return func(c *Client) {
		c.cache = disk
	}
}

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a Semantic Scholar client. The S2_API_KEY environment
// variable is honored unless WithAPIKey overrides it.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(DefaultDelay), 1),
		baseURL:    BaseURL,
		logger:     slog.Default(),
		titleIDs:   make(map[string]string),
		sleep:      sleepCtx,
	}

	if key := os.Getenv("S2_API_KEY"); key != "" {
		WithAPIKey(key)(c)
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// get performs a GET with caching, rate limiting, and 429 retry.
// Non-429 HTTP errors fail immediately.
func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	full := c.baseURL + path
	if len(query) > 0 {
		full += "?" + query.Encode()
	}

	key := cache.Key(http.MethodGet, full, nil)
	if c.cache != nil {
		if body, ok := c.cache.Get(key); ok {
			return body, nil
		}
	}

	deadline := time.Now().Add(retryBudget)
	backoff := retryBaseDelay

	for attempt := 1; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		body, status, err := c.doRequest(ctx, full)
		if err != nil {
			return nil, err
		}

		if status == http.StatusTooManyRequests {
			if attempt >= maxRetryAttempts || time.Now().Add(backoff).After(deadline) {
				return nil, fmt.Errorf("%w: gave up after %d attempts", ErrRateLimited, attempt)
			}
			c.logger.Warn("rate limited, backing off", "attempt", attempt, "backoff", backoff)
			if err := c.sleep(ctx, backoff); err != nil {
				return nil, err
			}
			backoff *= 2
			continue
		}

		if status == http.StatusNotFound {
			return nil, ErrNotFound
		}
		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			return nil, fmt.Errorf("%w: status %d", ErrAuthError, status)
		}
		if status < 200 || status >= 300 {
			return nil, &APIError{StatusCode: status, Message: string(truncate(body, 200))}
		}

		if c.cache != nil {
			if err := c.cache.Put(key, status, body); err != nil {
				c.logger.Warn("cache write failed", "error", err)
			}
		}
		return body, nil
	}
}

func (c *Client) doRequest(ctx context.Context, full string) (body []byte, status int, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrNetworkError, err)
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("reading response: %w", err)
	}
	return body, resp.StatusCode, nil
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}

// Search searches papers by keyword relevance. A minYear > 0 restricts
// results to that year onward.
func (c *Client) Search(ctx context.Context, query string, minYear int) ([]paper.Paper, error) {
	q := url.Values{}
	q.Set("query", query)
	q.Set("fields", DefaultFields)
	q.Set("limit", "30")
	if minYear > 0 {
		q.Set("year", fmt.Sprintf("%d-", minYear))
	}

	body, err := c.get(ctx, graphPath+"/paper/search", q)
	if err != nil {
		return nil, fmt.Errorf("searching %q: %w", query, err)
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: parsing search results: %v", ErrInvalidResponse, err)
	}
	return MapPapers(resp.Data), nil
}

// Citations fetches all papers citing the given paper, paginating until a
// batch comes back shorter than the page size. If a later page fails
// after earlier batches succeeded, the partial set is returned with a
// warning logged rather than discarding paid-for results.
func (c *Client) Citations(ctx context.Context, paperID string) ([]paper.Paper, error) {
	var all []paper.Paper
	for offset := 0; ; offset += PageSize {
		q := url.Values{}
		q.Set("fields", DefaultFields)
		q.Set("offset", strconv.Itoa(offset))
		q.Set("limit", strconv.Itoa(PageSize))

		body, err := c.get(ctx, graphPath+"/paper/"+url.PathEscape(paperID)+"/citations", q)
		if err != nil {
			if len(all) > 0 {
				c.logger.Warn("citation pagination degraded, returning partial set",
					"paper", paperID, "fetched", len(all), "error", err)
				return all, nil
			}
			return nil, fmt.Errorf("fetching citations of %s: %w", paperID, err)
		}

		var resp citationsResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("%w: parsing citations: %v", ErrInvalidResponse, err)
		}

		batch := make([]S2Paper, 0, len(resp.Data))
		for _, d := range resp.Data {
			batch = append(batch, d.CitingPaper)
		}
		all = append(all, MapPapers(batch)...)

		if len(resp.Data) < PageSize {
			return all, nil
		}
	}
}

// References fetches the papers referenced by the given paper.
func (c *Client) References(ctx context.Context, paperID string) ([]paper.Paper, error) {
	q := url.Values{}
	q.Set("fields", DefaultFields)
	q.Set("limit", strconv.Itoa(PageSize))

	body, err := c.get(ctx, graphPath+"/paper/"+url.PathEscape(paperID)+"/references", q)
	if err != nil {
		return nil, fmt.Errorf("fetching references of %s: %w", paperID, err)
	}

	var resp referencesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: parsing references: %v", ErrInvalidResponse, err)
	}
	batch := make([]S2Paper, 0, len(resp.Data))
	for _, d := range resp.Data {
		batch = append(batch, d.CitedPaper)
	}
	return MapPapers(batch), nil
}

// Recommendations fetches content-based recommendations for a paper.
func (c *Client) Recommendations(ctx context.Context, paperID string) ([]paper.Paper, error) {
	q := url.Values{}
	q.Set("fields", DefaultFields)
	q.Set("limit", strconv.Itoa(DefaultRecommendationsLimit))

	body, err := c.get(ctx, recPath+"/papers/forpaper/"+url.PathEscape(paperID), q)
	if err != nil {
		return nil, fmt.Errorf("fetching recommendations for %s: %w", paperID, err)
	}

	var resp recommendationsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: parsing recommendations: %v", ErrInvalidResponse, err)
	}
	return MapPapers(resp.RecommendedPapers), nil
}

// AuthorPapers fetches papers by an author ID.
func (c *Client) AuthorPapers(ctx context.Context, authorID string) ([]paper.Paper, error) {
	q := url.Values{}
	q.Set("fields", DefaultFields)
	q.Set("limit", strconv.Itoa(PageSize))

	body, err := c.get(ctx, graphPath+"/author/"+url.PathEscape(authorID)+"/papers", q)
	if err != nil {
		return nil, fmt.Errorf("fetching papers by author %s: %w", authorID, err)
	}

	var resp authorPapersResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: parsing author papers: %v", ErrInvalidResponse, err)
	}
	return MapPapers(resp.Data), nil
}

// GetPaper fetches one paper by any supported identifier.
func (c *Client) GetPaper(ctx context.Context, paperID string) (*paper.Paper, error) {
	q := url.Values{}
	q.Set("fields", DefaultFields)

	body, err := c.get(ctx, graphPath+"/paper/"+url.PathEscape(paperID), q)
	if err != nil {
		return nil, fmt.Errorf("fetching paper %s: %w", paperID, err)
	}

	var sp S2Paper
	if err := json.Unmarshal(body, &sp); err != nil {
		return nil, fmt.Errorf("%w: parsing paper: %v", ErrInvalidResponse, err)
	}
	if sp.PaperID == "" {
		return nil, ErrNotFound
	}
	p := MapPaper(sp)
	return &p, nil
}

// ResolveID resolves a paper title to its stable S2 ID via title match
// search. Resolutions are memoized for the session so sibling threads
// revisiting the same frontier never pay for the lookup twice.
func (c *Client) ResolveID(ctx context.Context, title string) (string, error) {
	if id, ok := c.titleIDs[title]; ok {
		return id, nil
	}

	q := url.Values{}
	q.Set("query", title)
	q.Set("fields", "paperId,title")

	body, err := c.get(ctx, graphPath+"/paper/search/match", q)
	if err != nil {
		return "", fmt.Errorf("resolving %q: %w", title, err)
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: parsing title match: %v", ErrInvalidResponse, err)
	}
	if len(resp.Data) == 0 || resp.Data[0].PaperID == "" {
		return "", ErrNotFound
	}

	id := resp.Data[0].PaperID
	c.titleIDs[title] = id
	return id, nil
}
