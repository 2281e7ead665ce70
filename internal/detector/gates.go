package detector

import "sync"

// Gate counter keys. One reject counter per gate; the pipeline short-circuits
// so each trade increments at most one of them.
const (
	gateInputTrades = "input_trades"
	gateAccepted    = "accepted"

	rejectDuplicate       = "reject_duplicate"
	rejectMissingMarket   = "reject_missing_market"
	rejectShortDuration   = "reject_short_duration"
	rejectNotPopular      = "reject_not_popular"
	rejectSportsThreshold = "reject_sports_threshold"
	rejectMarketLiquidity = "reject_market_liquidity"
	rejectMarketVolume    = "reject_market_volume"
	rejectRelativeSize    = "reject_relative_size"
	rejectMarketTarget    = "reject_market_target"
	rejectMarketQuality   = "reject_market_quality"
	rejectTailPrice       = "reject_tail_price"
	rejectWalletQuality   = "reject_wallet_quality"
	rejectFlowQuality     = "reject_flow_quality"
	rejectImpactQuality   = "reject_impact_quality"
)

var gateCounterKeys = []string{
	gateInputTrades,
	gateAccepted,
	rejectDuplicate,
	rejectMissingMarket,
	rejectMarketLiquidity,
	rejectMarketVolume,
	rejectRelativeSize,
	rejectNotPopular,
	rejectMarketTarget,
	rejectMarketQuality,
	rejectTailPrice,
	rejectWalletQuality,
	rejectFlowQuality,
	rejectImpactQuality,
	rejectShortDuration,
	rejectSportsThreshold,
}

// GateCounters tracks per-gate accept/reject counts for one pipeline run.
type GateCounters struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewGateCounters returns a zeroed counter set.
func NewGateCounters() *GateCounters {
	c := &GateCounters{}
	c.Reset()
	return c
}

// Reset zeroes every counter.
func (c *GateCounters) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts = make(map[string]int, len(gateCounterKeys))
	for _, key := range gateCounterKeys {
		c.counts[key] = 0
	}
}

func (c *GateCounters) add(key string, n int) {
	c.mu.Lock()
	c.counts[key] += n
	c.mu.Unlock()
}

func (c *GateCounters) count(key string) {
	c.add(key, 1)
}

// Snapshot returns a copy of the current counts.
func (c *GateCounters) Snapshot() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}
