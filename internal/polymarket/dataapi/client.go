package dataapi

import (
	"context"
	"encoding/json"
	"fmt"
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

// Client handles communication with the Polymarket Data API. Fetch failures
// degrade to empty results so the gate pipeline never sees a raw transport
// error; the first failure per class is logged, later ones are dropped to
// avoid log storms.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	authMode    config.AuthMode
	bearerToken string
	apiKey      string
	log         *logrus.Logger

	pageSize        int
	maxPages        int
	retries         int
	smartWindowDays int

	tradesLimiter *ratelimit.Limiter
	userLimiter   *ratelimit.Limiter

	statsTTL   time.Duration
	statsMu    sync.Mutex
	statsCache map[string]TraderStats

	volumeMu      sync.Mutex
	volumeHistory map[string]map[time.Time]float64

	tradeErrOnce    sync.Once
	positionErrOnce sync.Once
}

// NewClient creates a new Data API client
func NewClient(cfg *config.Config, log *logrus.Logger) *Client {
	return &Client{
		baseURL:         cfg.DataAPIBaseURL,
		httpClient:      &http.Client{Timeout: cfg.APITimeout},
		authMode:        cfg.DataAPIAuthMode,
		bearerToken:     cfg.DataAPIBearerToken,
		apiKey:          cfg.DataAPIAPIKey,
		log:             log,
		pageSize:        maxInt(1, cfg.TradePageSize),
		maxPages:        maxInt(1, cfg.TradeMaxPages),
		retries:         maxInt(0, cfg.APIRetries),
		smartWindowDays: cfg.SmartWindowDays,
		tradesLimiter:   ratelimit.New(cfg.DataAPITradesRPS),
		userLimiter:     ratelimit.New(cfg.DataAPIUserRPS),
		statsTTL:        cfg.TraderStatsCacheTTL,
		statsCache:      make(map[string]TraderStats),
		volumeHistory:   make(map[string]map[time.Time]float64),
	}
}

// TradeQuery narrows a recent-trades fetch
type TradeQuery struct {
	Market       string
	User         string
	SinceMinutes int
	MinCash      float64 // 0 means no cash filter
}

// FetchRecentTrades fetches trades within the lookback window, paginating
// until the oldest row on a page falls outside the window. Timestamps are
// re-validated locally regardless of server-side filtering.
func (c *Client) FetchRecentTrades(ctx context.Context, q TradeQuery) []Trade {
	base := url.Values{}
	base.Set("limit", strconv.Itoa(c.pageSize))
	base.Set("takerOnly", "true")
	if q.Market != "" {
		base.Set("market", q.Market)
	}
	if q.User != "" {
		base.Set("user", q.User)
	}
	if q.MinCash > 0 {
		base.Set("filterType", "CASH")
		base.Set("filterAmount", strconv.FormatFloat(q.MinCash, 'f', 2, 64))
	}

	cutoff := time.Now().UTC().Add(-time.Duration(q.SinceMinutes) * time.Minute)
	var raw []rawTrade

	for page := 0; page < c.maxPages; page++ {
		params := url.Values{}
		for k, v := range base {
			params[k] = v
		}
		params.Set("offset", strconv.Itoa(page*c.pageSize))

		var rows []rawTrade
		if err := c.getJSON(ctx, "/trades", params, &rows); err != nil {
			c.tradeErrOnce.Do(func() {
				c.log.WithError(err).Warn("Error fetching trades from Data API")
			})
			break
		}
		if len(rows) == 0 {
			break
		}
		raw = append(raw, rows...)

		oldest := time.Unix(rows[len(rows)-1].Timestamp, 0).UTC()
		if oldest.Before(cutoff) {
			break
		}
		if len(rows) < c.pageSize {
			break
		}
	}

	trades := make([]Trade, 0, len(raw))
	for _, r := range raw {
		if r.Timestamp == 0 {
			continue
		}
		t := normalizeTrade(r)
		if t.Timestamp.Before(cutoff) {
			continue
		}
		trades = append(trades, t)
	}
	return trades
}

// TraderStats computes credibility and closed-position aggregates for a
// wallet. Results are TTL-cached; forceRefresh recomputes unconditionally
// and overwrites the entry.
func (c *Client) TraderStats(ctx context.Context, address string, forceRefresh bool) TraderStats {
	if !forceRefresh {
		c.statsMu.Lock()
		cached, ok := c.statsCache[address]
		c.statsMu.Unlock()
		if ok && time.Since(cached.LastUpdated) < c.statsTTL {
			return cached
		}
	}

	trades := c.FetchRecentTrades(ctx, TradeQuery{User: address, SinceMinutes: 60 * 24 * 7})
	wanted := strings.ToLower(address)
	var own []Trade
	for _, t := range trades {
		if t.Wallet == wanted {
			own = append(own, t)
		}
	}

	stats := TraderStats{Address: address, LastUpdated: time.Now()}
	if len(own) == 0 {
		c.storeStats(address, stats)
		return stats
	}

	var totalVolume float64
	for _, t := range own {
		totalVolume += t.Amount
	}
	stats.TradeCount = len(own)
	stats.TotalVolume = totalVolume
	stats.AvgBet = totalVolume / float64(len(own))

	// Credibility blends experience, bankroll, and bet confidence.
	stats.Credibility = float64(stats.TradeCount)*0.25 +
		totalVolume/50000 +
		minFloat(stats.AvgBet/2000, 5)

	closed := c.FetchClosedPositions(ctx, address, c.smartWindowDays)
	wins := 0
	var totalBought, totalPnL float64
	for _, p := range closed {
		totalBought += p.TotalBought
		totalPnL += p.RealizedPnL
		if p.RealizedPnL > 0 {
			wins++
		}
	}
	stats.ClosedPositions = len(closed)
	stats.RealizedPnL = totalPnL
	if len(closed) > 0 {
		stats.WinRate = float64(wins) / float64(len(closed))
		stats.AvgPosition = totalBought / float64(len(closed))
	}

	c.storeStats(address, stats)
	return stats
}

func (c *Client) storeStats(address string, stats TraderStats) {
	c.statsMu.Lock()
	c.statsCache[address] = stats
	c.statsMu.Unlock()
}

// FetchClosedPositions fetches settled positions for a wallet, filtered to
// the given number of days.
func (c *Client) FetchClosedPositions(ctx context.Context, address string, sinceDays int) []ClosedPosition {
	params := url.Values{}
	params.Set("user", address)
	params.Set("limit", "200")
	params.Set("offset", "0")

	var raw []ClosedPosition
	if err := c.getJSON(ctx, "/closed-positions", params, &raw); err != nil {
		c.tradeErrOnce.Do(func() {
			c.log.WithError(err).Warn("Error fetching closed positions")
		})
		return nil
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -sinceDays)
	var out []ClosedPosition
	for _, p := range raw {
		if p.Timestamp == 0 {
			continue
		}
		if time.Unix(p.Timestamp, 0).UTC().Before(cutoff) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// MarketFlowStats computes net inflow and YES price stats for a market
// window. YES notional counts positive, NO negative.
func (c *Client) MarketFlowStats(ctx context.Context, marketID string, minutes int) FlowStats {
	trades := c.FetchRecentTrades(ctx, TradeQuery{Market: marketID, SinceMinutes: minutes})

	var stats FlowStats
	var yesPrices []float64
	for _, t := range trades {
		switch t.Side {
		case SideYes:
			stats.NetInflow += t.Amount
			if t.Price != 0 {
				yesPrices = append(yesPrices, t.Price)
			}
		case SideNo:
			stats.NetInflow -= t.Amount
		}
	}
	stats.TradeCount = len(trades)
	if len(yesPrices) > 0 {
		var sum float64
		for _, p := range yesPrices {
			sum += p
		}
		avg := sum / float64(len(yesPrices))
		last := yesPrices[0] // pages are newest-first
		stats.AvgYesPrice = &avg
		stats.LastYesPrice = &last
	}
	return stats
}

// NetPositionChange computes the signed YES/NO flow for a wallet in one
// market over the window, in USD.
func (c *Client) NetPositionChange(ctx context.Context, address, marketID string, minutes int) float64 {
	trades := c.FetchRecentTrades(ctx, TradeQuery{User: address, SinceMinutes: minutes})
	var net float64
	for _, t := range trades {
		if t.Market != marketID {
			continue
		}
		switch t.Side {
		case SideYes:
			net += t.Amount
		case SideNo:
			net -= t.Amount
		}
	}
	return net
}

// MarketPositionSize returns the wallet's current position value in the
// market, or nil when unavailable.
func (c *Client) MarketPositionSize(ctx context.Context, address, marketID string) *float64 {
	params := url.Values{}
	params.Set("user", address)
	params.Set("market", marketID)
	params.Set("limit", "50")

	var raw []rawPosition
	if err := c.getJSON(ctx, "/positions", params, &raw); err != nil {
		c.positionErrOnce.Do(func() {
			c.log.WithError(err).Warn("Error fetching positions")
		})
		return nil
	}

	var total float64
	found := false
	for _, p := range raw {
		if p.ConditionID != "" && p.ConditionID != marketID {
			continue
		}
		total += p.CurrentValue
		found = true
	}
	if !found {
		return nil
	}
	return &total
}

// MarketVolumeHistory returns hourly volume buckets for a market over the
// window, oldest first. Buckets persist across calls so quiet hours are not
// forgotten between scans.
func (c *Client) MarketVolumeHistory(ctx context.Context, marketID string, hours int) []float64 {
	trades := c.FetchRecentTrades(ctx, TradeQuery{Market: marketID, SinceMinutes: hours * 60})

	c.volumeMu.Lock()
	defer c.volumeMu.Unlock()

	buckets := c.volumeHistory[marketID]
	if buckets == nil {
		buckets = make(map[time.Time]float64)
		c.volumeHistory[marketID] = buckets
	}

	fresh := make(map[time.Time]float64)
	for _, t := range trades {
		hour := t.Timestamp.Truncate(time.Hour)
		fresh[hour] += t.Amount
	}
	for hour, volume := range fresh {
		if _, ok := buckets[hour]; !ok {
			buckets[hour] = volume
		}
	}

	cutoff := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	hoursSorted := make([]time.Time, 0, len(buckets))
	for hour := range buckets {
		if hour.Before(cutoff) {
			delete(buckets, hour)
			continue
		}
		hoursSorted = append(hoursSorted, hour)
	}
	sort.Slice(hoursSorted, func(i, j int) bool { return hoursSorted[i].Before(hoursSorted[j]) })

	out := make([]float64, 0, len(hoursSorted))
	for _, hour := range hoursSorted {
		out = append(out, buckets[hour])
	}
	return out
}

// getJSON performs a rate-limited GET, retrying transport errors and 5xx
// responses. Client errors are terminal.
func (c *Client) getJSON(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	limiter := c.tradesLimiter
	if params.Get("user") != "" {
		limiter = c.userLimiter
	}

	u, err := url.Parse(c.baseURL + endpoint)
	if err != nil {
		return fmt.Errorf("parse URL: %w", err)
	}
	u.RawQuery = params.Encode()

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		c.setAuthHeaders(req)

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		metrics.RecordAPIRequest("data", endpoint, time.Since(start), err)
		if err != nil {
			lastErr = fmt.Errorf("execute request: %w", err)
			continue
		}

		if resp.StatusCode >= http.StatusInternalServerError {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("server status %d: %s", resp.StatusCode, string(body))
			continue
		}
		if resp.StatusCode == http.StatusUnauthorized {
			resp.Body.Close()
			return fmt.Errorf("401 Unauthorized (auth_mode=%s) - check credentials", c.authMode)
		}
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return lastErr
}

func (c *Client) setAuthHeaders(req *http.Request) {
	switch c.authMode {
	case config.AuthModeBearer:
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	case config.AuthModeAPIKey:
		req.Header.Set("X-API-KEY", c.apiKey)
	case config.AuthModeNone:
		// No auth headers
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
