package detector

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shnfxl/polymarket-whale-tracker/internal/polymarket/gammaapi"
)

// categoryKeywords classifies markets by title/slug keyword match. Sports
// gets a higher whale threshold since it carries the most retail noise.
var categoryKeywords = map[string][]string{
	"sports": {"nfl", "nba", "mlb", "nhl", "soccer", "football", "ufc", "boxing", "tennis", "golf", "f1", "formula 1", "premier league", "champions league", "world cup", "olympics"},
	"crypto": {"btc", "bitcoin", "eth", "ethereum", "sol", "solana", "xrp", "doge", "crypto", "memecoin", "stablecoin"},
	"stocks": {"stock", "stocks", "nasdaq", "nyse", "sp500", "s&p", "dow", "earnings", "sec", "ipo"},
	"politics": {"election", "president", "senate", "house", "congress", "governor", "parliament", "prime minister", "referendum", "vote", "campaign", "poll", "approval"},
}

// Percentile computes the q-th percentile of values with linear
// interpolation between ranks. q is clamped to [0,1]. Returns nil for an
// empty sample; a single-element sample returns that element for any q.
func Percentile(values []float64, q float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	q = math.Min(math.Max(q, 0.0), 1.0)
	arr := make([]float64, len(values))
	copy(arr, values)
	sort.Float64s(arr)
	if len(arr) == 1 {
		return &arr[0]
	}
	pos := float64(len(arr)-1) * q
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return &arr[lo]
	}
	weight := pos - float64(lo)
	v := arr[lo]*(1.0-weight) + arr[hi]*weight
	return &v
}

func marketText(m *gammaapi.Market) string {
	return strings.ToLower(m.Title) + " " + strings.ToLower(m.Slug)
}

func isSportsMarket(m *gammaapi.Market) bool {
	text := marketText(m)
	for _, kw := range categoryKeywords["sports"] {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func isPopularCategory(m *gammaapi.Market) bool {
	text := marketText(m)
	for _, keywords := range categoryKeywords {
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				return true
			}
		}
	}
	return false
}

func marketCategory(m *gammaapi.Market) string {
	text := marketText(m)
	// Stable iteration so the same market always classifies the same way.
	for _, category := range []string{"sports", "crypto", "stocks", "politics"} {
		for _, kw := range categoryKeywords[category] {
			if strings.Contains(text, kw) {
				return category
			}
		}
	}
	return "other"
}

// isHighSignalMarket allows deep markets through category filters even when
// no keyword matches.
func (d *Detector) isHighSignalMarket(m *gammaapi.Market) bool {
	return m.Volume24h >= d.cfg.MinMarketVolume24h*d.cfg.HighSignalVolumeMultiplier ||
		m.Liquidity >= d.cfg.MinLiquidityUSD*d.cfg.HighSignalLiquidityMultiplier
}

// marketInScope is the toggleable category gate for the smart-money and
// volume-spike pipelines.
func (d *Detector) marketInScope(m *gammaapi.Market) bool {
	if len(d.cfg.MarketCategories) > 0 {
		cat := marketCategory(m)
		for _, want := range d.cfg.MarketCategories {
			if cat == want {
				return true
			}
		}
		return false
	}
	if !d.cfg.RequirePopularCategory {
		return true
	}
	return isPopularCategory(m) || d.isHighSignalMarket(m)
}

// marketTargetScore balances market depth against live whale activity so
// alerting does not rely on static keyword categories alone.
func (d *Detector) marketTargetScore(m *gammaapi.Market, tradeCount, uniqueWallets, largeTradeCount int) float64 {
	volScore := math.Min(m.Volume24h/math.Max(d.cfg.MinMarketVolume24h, 1.0), 3.0)
	liqScore := math.Min(m.Liquidity/math.Max(d.cfg.MinLiquidityUSD, 1.0), 3.0)
	activityScore := math.Min(float64(tradeCount)/6.0, 2.0)
	uniqueScore := math.Min(float64(uniqueWallets)/4.0, 2.0)
	clusterScore := math.Min(float64(largeTradeCount)/2.0, 1.5)
	categoryBonus := 0.0
	if isPopularCategory(m) {
		categoryBonus = 0.5
	}
	return 0.9*volScore + 0.8*liqScore + 0.7*activityScore + 0.6*uniqueScore + 0.8*clusterScore + categoryBonus
}

// adaptiveThreshold resolves the absolute whale threshold for a market:
// market-level percentile, else the global percentile, else the static
// minimum, clamped into [floor, cap].
func (d *Detector) adaptiveThreshold(marketSample []float64, global *float64) float64 {
	var raw *float64
	if d.cfg.AdaptiveThresholdEnabled && len(marketSample) >= maxInt(3, d.cfg.AdaptiveMinSamples) {
		raw = Percentile(marketSample, d.cfg.AdaptivePercentile)
	}
	if raw == nil {
		raw = global
	}
	if raw == nil {
		return d.cfg.MinWhaleBetUSD
	}
	return math.Min(d.cfg.AdaptiveCapUSD, math.Max(d.cfg.AdaptiveFloorUSD, *raw))
}

// effectiveThreshold applies the sports multiplier on top of the adaptive
// absolute threshold.
func (d *Detector) effectiveThreshold(m *gammaapi.Market, base float64) float64 {
	if isSportsMarket(m) {
		return base * d.cfg.SportsThresholdMultiplier
	}
	return base
}

func (d *Detector) inTailPriceBand(price *float64) bool {
	if price == nil {
		return false
	}
	return *price < d.cfg.MinPriceBand || *price > d.cfg.MaxPriceBand
}

// isShortDurationMarket rejects markets resolving too soon (5-minute
// binaries and the like). Unknown end dates pass.
func (d *Detector) isShortDurationMarket(m *gammaapi.Market, now time.Time) bool {
	hours := m.HoursRemaining(now)
	if hours == nil {
		return false
	}
	return *hours < float64(d.cfg.MinMarketDurationHours)
}

func walletTier(lifetimeVolume float64) string {
	switch {
	case lifetimeVolume > 1_000_000:
		return "legend"
	case lifetimeVolume > 250_000:
		return "pro"
	case lifetimeVolume > 50_000:
		return "semi-pro"
	default:
		return "retail"
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
