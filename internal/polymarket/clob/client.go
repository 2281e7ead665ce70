package clob

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shnfxl/polymarket-whale-tracker/internal/config"
	"github.com/shnfxl/polymarket-whale-tracker/internal/metrics"
)

// Client reads the CLOB orderbook, best-effort. All failures return nil;
// callers fall back to cached outcome prices.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new CLOB client
func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL:    cfg.CLOBAPIBaseURL,
		httpClient: &http.Client{Timeout: cfg.APITimeout},
	}
}

type book struct {
	Bids []level `json:"bids"`
	Asks []level `json:"asks"`
}

type level struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// OrderbookMid returns the bid/ask mid for an outcome token, the single
// available side when the book is one-sided, or nil when no book exists.
func (c *Client) OrderbookMid(ctx context.Context, tokenID string) *float64 {
	if tokenID == "" {
		return nil
	}

	u, err := url.Parse(c.baseURL + "/book")
	if err != nil {
		return nil
	}
	q := u.Query()
	q.Set("token_id", tokenID)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.RecordAPIRequest("clob", "/book", time.Since(start), err)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil
	}

	var b book
	if err := json.NewDecoder(resp.Body).Decode(&b); err != nil {
		return nil
	}

	bestBid := bestPrice(b.Bids)
	bestAsk := bestPrice(b.Asks)
	switch {
	case bestBid != nil && bestAsk != nil:
		mid := (*bestBid + *bestAsk) / 2
		return &mid
	case bestBid != nil:
		return bestBid
	default:
		return bestAsk
	}
}

func bestPrice(levels []level) *float64 {
	if len(levels) == 0 {
		return nil
	}
	p, err := strconv.ParseFloat(levels[0].Price, 64)
	if err != nil || p == 0 {
		return nil
	}
	return &p
}
