package detector

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/shnfxl/polymarket-whale-tracker/internal/polymarket/dataapi"
)

// CycleCache memoizes enrichment lookups for the duration of one scan
// cycle. Keys are normalized (lower-cased address, integer window) so
// repeated lookups for the same candidate data hit the cache instead of
// the external source. Clear is called at every cycle boundary.
type CycleCache struct {
	mu             sync.Mutex
	traderStats    map[string]dataapi.TraderStats
	traderRecent   map[userWindowKey][]dataapi.Trade
	marketFlow     map[marketWindowKey]dataapi.FlowStats
	netPosition    map[userMarketWindowKey]float64
	marketPosition map[userMarketKey]*float64
}

type userWindowKey struct {
	user    string
	minutes int
}

type marketWindowKey struct {
	market  string
	minutes int
}

type userMarketWindowKey struct {
	user    string
	market  string
	minutes int
}

type userMarketKey struct {
	user   string
	market string
}

// NewCycleCache returns an empty cycle cache.
func NewCycleCache() *CycleCache {
	c := &CycleCache{}
	c.Clear()
	return c
}

// Clear drops all memoized results. Called at the start of each scan.
func (c *CycleCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.traderStats = make(map[string]dataapi.TraderStats)
	c.traderRecent = make(map[userWindowKey][]dataapi.Trade)
	c.marketFlow = make(map[marketWindowKey]dataapi.FlowStats)
	c.netPosition = make(map[userMarketWindowKey]float64)
	c.marketPosition = make(map[userMarketKey]*float64)
}

// runLimited routes an external call through the concurrency semaphore.
func (d *Detector) runLimited(ctx context.Context, fn func()) {
	if err := d.sem.Acquire(ctx); err != nil {
		return
	}
	defer d.sem.Release()
	fn()
}

func (d *Detector) cachedTraderStats(ctx context.Context, address string) dataapi.TraderStats {
	key := strings.ToLower(address)
	d.cycle.mu.Lock()
	if stats, ok := d.cycle.traderStats[key]; ok {
		d.cycle.mu.Unlock()
		return stats
	}
	d.cycle.mu.Unlock()

	var stats dataapi.TraderStats
	d.runLimited(ctx, func() {
		stats = d.data.TraderStats(ctx, address, false)
	})

	d.cycle.mu.Lock()
	d.cycle.traderStats[key] = stats
	d.cycle.mu.Unlock()
	return stats
}

// cachedRecentTrades memoizes only the user+window query shape; market or
// cash-filtered fetches are passed through uncached.
func (d *Detector) cachedRecentTrades(ctx context.Context, q dataapi.TradeQuery) []dataapi.Trade {
	cacheable := q.User != "" && q.Market == "" && q.MinCash == 0
	var key userWindowKey
	if cacheable {
		key = userWindowKey{user: strings.ToLower(q.User), minutes: q.SinceMinutes}
		d.cycle.mu.Lock()
		if trades, ok := d.cycle.traderRecent[key]; ok {
			d.cycle.mu.Unlock()
			return trades
		}
		d.cycle.mu.Unlock()
	}

	var trades []dataapi.Trade
	d.runLimited(ctx, func() {
		trades = d.data.FetchRecentTrades(ctx, q)
	})

	if cacheable {
		d.cycle.mu.Lock()
		d.cycle.traderRecent[key] = trades
		d.cycle.mu.Unlock()
	}
	return trades
}

func (d *Detector) cachedMarketFlow(ctx context.Context, marketID string, minutes int) dataapi.FlowStats {
	key := marketWindowKey{market: marketID, minutes: minutes}
	d.cycle.mu.Lock()
	if flow, ok := d.cycle.marketFlow[key]; ok {
		d.cycle.mu.Unlock()
		return flow
	}
	d.cycle.mu.Unlock()

	var flow dataapi.FlowStats
	d.runLimited(ctx, func() {
		flow = d.data.MarketFlowStats(ctx, marketID, minutes)
	})

	d.cycle.mu.Lock()
	d.cycle.marketFlow[key] = flow
	d.cycle.mu.Unlock()
	return flow
}

func (d *Detector) cachedNetPositionChange(ctx context.Context, address, marketID string, minutes int) float64 {
	key := userMarketWindowKey{user: strings.ToLower(address), market: marketID, minutes: minutes}
	d.cycle.mu.Lock()
	if net, ok := d.cycle.netPosition[key]; ok {
		d.cycle.mu.Unlock()
		return net
	}
	d.cycle.mu.Unlock()

	var net float64
	d.runLimited(ctx, func() {
		net = d.data.NetPositionChange(ctx, address, marketID, minutes)
	})

	d.cycle.mu.Lock()
	d.cycle.netPosition[key] = net
	d.cycle.mu.Unlock()
	return net
}

func (d *Detector) cachedMarketPositionSize(ctx context.Context, address, marketID string) *float64 {
	key := userMarketKey{user: strings.ToLower(address), market: marketID}
	d.cycle.mu.Lock()
	if size, ok := d.cycle.marketPosition[key]; ok {
		d.cycle.mu.Unlock()
		return size
	}
	d.cycle.mu.Unlock()

	var size *float64
	d.runLimited(ctx, func() {
		size = d.data.MarketPositionSize(ctx, address, marketID)
	})

	d.cycle.mu.Lock()
	d.cycle.marketPosition[key] = size
	d.cycle.mu.Unlock()
	return size
}

// marketQuality computes anti-noise market stats with its own TTL cache,
// independent of the cycle cache: quality aggregates are expensive and stay
// fresh enough across a couple of cycles.
func (d *Detector) marketQuality(ctx context.Context, marketID string) QualityStats {
	now := time.Now()
	d.qualityMu.Lock()
	if entry, ok := d.qualityCache[marketID]; ok && now.Sub(entry.at) < qualityCacheTTL {
		d.qualityMu.Unlock()
		return entry.stats
	}
	d.qualityMu.Unlock()

	recent := d.cachedRecentTrades(ctx, dataapi.TradeQuery{
		Market:       marketID,
		SinceMinutes: d.cfg.MarketQualityLookbackMinutes,
	})

	wallets := make(map[string]struct{})
	sawYes, sawNo := false, false
	var volume float64
	for _, t := range recent {
		if t.Wallet != "" {
			wallets[t.Wallet] = struct{}{}
		}
		switch t.Side {
		case dataapi.SideYes:
			sawYes = true
		case dataapi.SideNo:
			sawNo = true
		}
		volume += t.Amount
	}
	stats := QualityStats{
		TradeCount:    len(recent),
		UniqueTraders: len(wallets),
		TwoSided:      sawYes && sawNo,
		Volume:        volume,
	}

	d.qualityMu.Lock()
	d.qualityCache[marketID] = qualityEntry{at: now, stats: stats}
	d.qualityMu.Unlock()
	return stats
}

func (d *Detector) passesMarketQuality(stats QualityStats) bool {
	if stats.TradeCount < d.cfg.MinMarketQualityTrades {
		return false
	}
	if stats.UniqueTraders < d.cfg.MinMarketQualityUniqueTraders {
		return false
	}
	if d.cfg.RequireTwoSidedQuality && !stats.TwoSided {
		return false
	}
	return true
}

// whaleEnrichment carries the six fanned-out lookups for one candidate.
type whaleEnrichment struct {
	traderStats        dataapi.TraderStats
	traderRecent       []dataapi.Trade
	netChange          float64
	flow1h             dataapi.FlowStats
	flow24h            dataapi.FlowStats
	marketPositionSize *float64
}

// enrichWhale fans out the per-candidate lookups concurrently and joins
// them. Each lookup degrades to a zero value on failure, so siblings are
// never cancelled; the gates see degraded results instead of errors.
func (d *Detector) enrichWhale(ctx context.Context, address, marketID string) whaleEnrichment {
	var e whaleEnrichment
	var wg sync.WaitGroup
	wg.Add(6)

	go func() {
		defer wg.Done()
		e.traderStats = d.cachedTraderStats(ctx, address)
	}()
	go func() {
		defer wg.Done()
		e.traderRecent = d.cachedRecentTrades(ctx, dataapi.TradeQuery{User: address, SinceMinutes: 60 * 24})
	}()
	go func() {
		defer wg.Done()
		e.netChange = d.cachedNetPositionChange(ctx, address, marketID, 60)
	}()
	go func() {
		defer wg.Done()
		e.flow1h = d.cachedMarketFlow(ctx, marketID, 60)
	}()
	go func() {
		defer wg.Done()
		e.flow24h = d.cachedMarketFlow(ctx, marketID, 60*24)
	}()
	go func() {
		defer wg.Done()
		e.marketPositionSize = d.cachedMarketPositionSize(ctx, address, marketID)
	}()

	wg.Wait()
	return e
}
