package kb

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/atoombs-lib/kb-linkcheck/internal/fetch"
)

// KBART column names carrying the fields the checker needs.
const (
	columnResourceID = "oclc_number"
	columnTitle      = "publication_title"
	columnLink       = "title_url"
)

// credentialHeader carries the API key on every request (WSKey-style
// authentication).
const credentialHeader = "wskey"

// HTTPClient is the slice of the politeness fetcher the kb client needs.
type HTTPClient interface {
	Get(ctx context.Context, rawURL string) fetch.Response
	SetHeader(key, value string)
}

// Client talks to the knowledge-base collection search API. Credential and
// connectivity failures are logged here and surfaced through status codes;
// malformed payloads degrade to sentinel values so one bad collection never
// aborts a run.
type Client struct {
	http     HTTPClient
	endpoint string
	pageSize int
	logger   *zap.Logger
}

// NewClient builds a Client that authenticates with the given API key.
func NewClient(http HTTPClient, endpoint, key string, pageSize int, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	http.SetHeader(credentialHeader, key)
	return &Client{
		http:     http,
		endpoint: endpoint,
		pageSize: pageSize,
		logger:   logger,
	}
}

// SetKey swaps the API credential without rebuilding the client.
func (c *Client) SetKey(key string) {
	c.http.SetHeader(credentialHeader, key)
	c.logger.Debug("knowledge-base API key changed")
}

// ConnectionTest requests a single item from the search endpoint and returns
// the resulting status code so the caller can classify the run as healthy,
// unauthenticated, or unreachable.
func (c *Client) ConnectionTest(ctx context.Context) int {
	resp := c.get(ctx, 1, 1)
	return resp.StatusCode
}

// Collections lists every collection enabled by the institution. Pages of
// results are fetched concurrently; a page that cannot be retrieved or parsed
// contributes one zero-value collection and is logged, never fatal.
func (c *Client) Collections(ctx context.Context) []Collection {
	total := c.totalCollections(ctx)
	if total == 0 {
		return nil
	}

	type batch struct {
		start, count int
	}
	var batches []batch
	for start := 1; start <= total; start += c.pageSize {
		count := c.pageSize
		if remaining := total - start + 1; remaining < count {
			count = remaining
		}
		batches = append(batches, batch{start: start, count: count})
	}

	pages := make([][]Collection, len(batches))
	var g errgroup.Group
	for i, b := range batches {
		g.Go(func() error {
			pages[i] = c.collectionPage(ctx, b.start, b.count)
			return nil
		})
	}
	_ = g.Wait()

	var collections []Collection
	for _, page := range pages {
		collections = append(collections, page...)
	}
	return collections
}

func (c *Client) collectionPage(ctx context.Context, start, count int) []Collection {
	resp := c.get(ctx, start, count)

	var result searchResult
	if err := json.Unmarshal([]byte(resp.Body), &result); err != nil {
		c.logger.Error("failed to retrieve collections: API did not return a JSON object",
			zap.String("endpoint", c.endpoint),
			zap.Int("start_index", start),
			zap.Error(err))
		return []Collection{{}}
	}
	collections := make([]Collection, 0, len(result.Entries))
	for _, e := range result.Entries {
		collections = append(collections, Collection{
			ID:           e.UID,
			Title:        e.Title,
			DownloadLink: e.enclosure(),
		})
	}
	return collections
}

// Resources downloads and parses a collection's tab-delimited inventory.
// Unreachable or malformed inventories yield a single empty-resource
// sentinel so the failure stays scoped to this collection.
func (c *Client) Resources(ctx context.Context, collection Collection) []Resource {
	resp := c.http.Get(ctx, collection.DownloadLink)
	if resp.StatusCode >= 400 {
		c.logger.Warn("failed to find resources: could not download collection inventory",
			zap.String("collection_id", collection.ID),
			zap.Int("status", resp.StatusCode))
		return []Resource{{CollectionID: collection.ID}}
	}

	resources, err := parseInventory(collection.ID, resp.Body)
	if err != nil {
		c.logger.Warn("failed to find resources: inventory was not tab-delimited KBART",
			zap.String("collection_id", collection.ID),
			zap.Error(err))
		return []Resource{{CollectionID: collection.ID}}
	}
	return resources
}

func parseInventory(collectionID, body string) ([]Resource, error) {
	r := csv.NewReader(strings.NewReader(body))
	r.Comma = '\t'
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse inventory: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	columns := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		columns[strings.TrimSpace(name)] = i
	}
	field := func(row []string, name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return row[idx]
	}

	resources := make([]Resource, 0, len(rows)-1)
	for _, row := range rows[1:] {
		resources = append(resources, Resource{
			CollectionID: collectionID,
			ResourceID:   field(row, columnResourceID),
			Title:        field(row, columnTitle),
			Link:         field(row, columnLink),
		})
	}
	return resources, nil
}

func (c *Client) totalCollections(ctx context.Context) int {
	resp := c.get(ctx, 1, 1)
	if resp.StatusCode != http.StatusOK {
		return 0
	}
	var result searchResult
	if err := json.Unmarshal([]byte(resp.Body), &result); err != nil {
		c.logger.Error("failed to count collections: API did not return a JSON object",
			zap.Error(err))
		return 0
	}
	total, err := strconv.Atoi(result.TotalResults.String())
	if err != nil || total < 0 {
		return 0
	}
	return total
}

// get issues one search request and logs credential or connectivity problems
// by status class before handing the response back.
func (c *Client) get(ctx context.Context, startIndex, itemsPerPage int) fetch.Response {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		c.logger.Error("invalid knowledge-base endpoint",
			zap.String("endpoint", c.endpoint), zap.Error(err))
		return fetch.Sentinel(c.endpoint)
	}
	q := u.Query()
	q.Set("startIndex", strconv.Itoa(startIndex))
	q.Set("itemsPerPage", strconv.Itoa(itemsPerPage))
	u.RawQuery = q.Encode()

	resp := c.http.Get(ctx, u.String())
	switch resp.StatusCode {
	case http.StatusOK, http.StatusAccepted:
	case http.StatusUnauthorized, http.StatusForbidden:
		c.logger.Error("failed to connect to knowledge base: invalid or expired API key",
			zap.Int("status", resp.StatusCode))
	case http.StatusMethodNotAllowed:
		c.logger.Error("failed to connect to knowledge base: service rejected HTTP GET",
			zap.Int("status", resp.StatusCode))
	default:
		c.logger.Error("failed to connect to knowledge base: could not reach API endpoint",
			zap.String("endpoint", c.endpoint),
			zap.Int("status", resp.StatusCode))
	}
	return resp
}
