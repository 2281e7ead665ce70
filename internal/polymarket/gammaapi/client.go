package gammaapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shnfxl/polymarket-whale-tracker/internal/config"
	"github.com/shnfxl/polymarket-whale-tracker/internal/metrics"
	"github.com/shnfxl/polymarket-whale-tracker/internal/ratelimit"
)

// Client handles communication with the Polymarket Gamma API and maintains
// the market cache. Trade payloads vary in id casing, so entries are keyed
// by both the raw and lower-cased identifier.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	log        *logrus.Logger

	cacheMu sync.RWMutex
	cache   map[string]*Market
}

// NewClient creates a new Gamma API client
func NewClient(cfg *config.Config, log *logrus.Logger) *Client {
	return &Client{
		baseURL:    cfg.GammaAPIBaseURL,
		httpClient: &http.Client{Timeout: cfg.APITimeout},
		limiter:    ratelimit.New(cfg.GammaAPIMarketsRPS),
		log:        log,
		cache:      make(map[string]*Market),
	}
}

// FetchMarkets fetches active markets and refreshes the market cache.
// Failures degrade to an empty list after a warning.
func (c *Client) FetchMarkets(ctx context.Context, limit int, active bool, sortBy string) []Market {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil
	}

	u, err := url.Parse(c.baseURL + "/markets")
	if err != nil {
		c.log.WithError(err).Warn("Error building markets URL")
		return nil
	}
	q := u.Query()
	q.Set("limit", strconv.Itoa(limit))
	q.Set("active", strconv.FormatBool(active))
	q.Set("closed", "false")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		c.log.WithError(err).Warn("Error creating markets request")
		return nil
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.RecordAPIRequest("gamma", "/markets", time.Since(start), err)
	if err != nil {
		c.log.WithError(err).Warn("Error fetching markets")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		c.log.WithFields(logrus.Fields{
			"status": resp.StatusCode,
			"body":   truncate(string(body), 200),
		}).Warn("Unexpected status fetching markets")
		return nil
	}

	var raw []rawMarket
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		c.log.WithError(err).Warn("Error decoding markets response")
		return nil
	}

	markets := make([]Market, 0, len(raw))
	for _, r := range raw {
		m := normalizeMarket(r)
		markets = append(markets, m)
		if m.ID != "" {
			c.storeCached(m)
		}
	}

	switch sortBy {
	case "volume":
		sort.Slice(markets, func(i, j int) bool { return markets[i].Volume24h > markets[j].Volume24h })
	case "liquidity":
		sort.Slice(markets, func(i, j int) bool { return markets[i].Liquidity > markets[j].Liquidity })
	}
	return markets
}

func (c *Client) storeCached(m Market) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	entry := m
	c.cache[m.ID] = &entry
	c.cache[strings.ToLower(m.ID)] = &entry
}

// CachedMarket looks up a market by identifier, trying the raw key first
// and the lower-cased key second.
func (c *Client) CachedMarket(id string) (*Market, bool) {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	if m, ok := c.cache[id]; ok {
		return m, true
	}
	if m, ok := c.cache[strings.ToLower(id)]; ok {
		return m, true
	}
	return nil, false
}

// CachedMarketByTitle finds a cached market whose whitespace-normalized
// title matches, used when trades carry a title but an unrecognized id.
func (c *Client) CachedMarketByTitle(title string) (*Market, bool) {
	wanted := normalizeTitle(title)
	if wanted == "" {
		return nil, false
	}
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	for _, m := range c.cache {
		if normalizeTitle(m.Title) == wanted {
			return m, true
		}
	}
	return nil, false
}

// CachedMarkets returns all cached markets deduplicated by identifier.
func (c *Client) CachedMarkets() []Market {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	seen := make(map[string]struct{}, len(c.cache))
	out := make([]Market, 0, len(c.cache))
	for _, m := range c.cache {
		if m.ID == "" {
			continue
		}
		if _, ok := seen[m.ID]; ok {
			continue
		}
		seen[m.ID] = struct{}{}
		out = append(out, *m)
	}
	return out
}

func normalizeTitle(title string) string {
	return strings.ToLower(strings.Join(strings.Fields(title), " "))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
