package detector

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shnfxl/polymarket-whale-tracker/internal/config"
	"github.com/shnfxl/polymarket-whale-tracker/internal/polymarket/dataapi"
	"github.com/shnfxl/polymarket-whale-tracker/internal/polymarket/gammaapi"
	"github.com/shnfxl/polymarket-whale-tracker/internal/state"
)

// testConfig mirrors the production defaults that matter to the gate
// pipeline so tests break when a default changes silently.
func testConfig() *config.Config {
	return &config.Config{
		MinWhaleBetUSD:          20000,
		MinMarketVolume24h:      50000,
		MinLiquidityUSD:         10000,
		HardMinLiquidityUSD:     20000,
		HardMinVolume24hUSD:     10000,
		RelWhaleVolumePct:       0.02,
		RelWhaleLiquidityPct:    0.03,
		LowLiquidityWhaleLiqPct: 0.10,
		LowLiquidityWhaleVolPct: 0.05,

		AdaptiveThresholdEnabled: true,
		AdaptivePercentile:       0.90,
		AdaptiveMinSamples:       12,
		AdaptiveFloorUSD:         12000,
		AdaptiveCapUSD:           50000,

		MinPriceBand:                  0.08,
		MaxPriceBand:                  0.92,
		MinMarketDurationHours:        8,
		SportsThresholdMultiplier:     1.35,
		HighSignalVolumeMultiplier:    2.0,
		HighSignalLiquidityMultiplier: 2.0,
		MinMarketTargetScore:          1.6,
		MarketTargetOverrideMult:      1.7,
		MinMarketQualityTrades:        2,
		MinMarketQualityUniqueTraders: 1,

		FlowGateNetPositionUSD:  10000,
		FlowGateMarketInflowUSD: 10000,
		FlowGateClusterMin:      3,
		AllowSparseFlowBypass:   true,
		SparseFlowMinTrades:     3,
		ImpactGateMinAbs:        0.003,
		ImpactGateMinPct:        0.008,

		MinSmartTraders:         1,
		MinSmartTraderBetUSD:    100,
		MinConsensusTotalUSD:    200,
		SmartMinClosedPositions: 10,
		SmartMinAvgPositionUSD:  500,
		SmartMinRealizedPnLUSD:  5000,

		MinVolumeSpike1hUSD:      4000,
		MinVolumeSpikeMultiplier: 5,

		WhaleLookbackMinutes:         5,
		SmartLookbackMinutes:         30,
		SmartWindowMinutes:           15,
		VolumeNotableLookbackMinutes: 60,
		MarketQualityLookbackMinutes: 60,

		MarketLimit:           300,
		VolumeMarketScanLimit: 120,
		MarketSortBy:          "volume",

		MaxWhaleEnrichTrades: 20,
		MaxCandidatesPerType: 5,
		APIConcurrency:       8,
	}
}

// fakeData is a canned DataSource. Trade queries route by shape the way the
// real client is called: cash-filtered fetches feed the whale scan, market
// fetches feed quality and history, user fetches feed trader profiling.
type fakeData struct {
	scanTrades   []dataapi.Trade
	marketTrades map[string][]dataapi.Trade
	stats        map[string]dataapi.TraderStats
	flowByWindow map[int]dataapi.FlowStats
	netChange    float64
	positionSize *float64
	history      map[string][]float64
}

func (f *fakeData) FetchRecentTrades(ctx context.Context, q dataapi.TradeQuery) []dataapi.Trade {
	if q.Market != "" {
		return f.marketTrades[q.Market]
	}
	if q.User != "" {
		var out []dataapi.Trade
		for _, t := range f.scanTrades {
			if t.Wallet == strings.ToLower(q.User) {
				out = append(out, t)
			}
		}
		return out
	}
	var out []dataapi.Trade
	for _, t := range f.scanTrades {
		if q.MinCash > 0 && t.Amount < q.MinCash {
			continue
		}
		out = append(out, t)
	}
	return out
}

func (f *fakeData) TraderStats(ctx context.Context, address string, forceRefresh bool) dataapi.TraderStats {
	return f.stats[strings.ToLower(address)]
}

func (f *fakeData) MarketFlowStats(ctx context.Context, marketID string, minutes int) dataapi.FlowStats {
	return f.flowByWindow[minutes]
}

func (f *fakeData) NetPositionChange(ctx context.Context, address, marketID string, minutes int) float64 {
	return f.netChange
}

func (f *fakeData) MarketPositionSize(ctx context.Context, address, marketID string) *float64 {
	return f.positionSize
}

func (f *fakeData) MarketVolumeHistory(ctx context.Context, marketID string, hours int) []float64 {
	return f.history[marketID]
}

type fakeMarkets struct {
	markets []gammaapi.Market
}

func (f *fakeMarkets) FetchMarkets(ctx context.Context, limit int, active bool, sortBy string) []gammaapi.Market {
	return f.markets
}

func (f *fakeMarkets) CachedMarket(id string) (*gammaapi.Market, bool) {
	for i := range f.markets {
		if f.markets[i].ID == id {
			return &f.markets[i], true
		}
	}
	return nil, false
}

func (f *fakeMarkets) CachedMarketByTitle(title string) (*gammaapi.Market, bool) {
	for i := range f.markets {
		if strings.EqualFold(f.markets[i].Title, title) {
			return &f.markets[i], true
		}
	}
	return nil, false
}

func (f *fakeMarkets) CachedMarkets() []gammaapi.Market {
	return f.markets
}

func newTestDetector(cfg *config.Config, data *fakeData, markets *fakeMarkets) *Detector {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return New(cfg, log, data, markets, nil, state.NewMemoryStore(1000, 500))
}

func mustParseTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse time %q: %v", s, err)
	}
	return ts
}

func avgYes(v float64) *float64 { return &v }

// electionMarket is a deep, liquid, non-sports market that clears every
// static market gate.
func electionMarket() gammaapi.Market {
	return gammaapi.Market{
		ID:            "0xelection",
		ConditionID:   "0xelection",
		Title:         "Will the incumbent win the election?",
		Slug:          "incumbent-election",
		Liquidity:     100000,
		Volume24h:     500000,
		OutcomePrices: []float64{0.71, 0.29},
	}
}

func whaleTrade(id, wallet, market string, amount float64) dataapi.Trade {
	return dataapi.Trade{
		ID:        id,
		Wallet:    wallet,
		Market:    market,
		Amount:    amount,
		Price:     0.71,
		Side:      dataapi.SideYes,
		SideLabel: dataapi.SideYes,
		Timestamp: time.Now().UTC(),
	}
}

func TestGenerateWhaleBetsAcceptsQualifyingTrade(t *testing.T) {
	cfg := testConfig()
	market := electionMarket()

	trade := whaleTrade("0xtx1", "0xwhale1", market.ID, 25000)
	counter := whaleTrade("0xtx2", "0xother", market.ID, 900)
	counter.Side = dataapi.SideNo
	counter.SideLabel = dataapi.SideNo

	data := &fakeData{
		scanTrades:   []dataapi.Trade{trade},
		marketTrades: map[string][]dataapi.Trade{market.ID: {trade, counter}},
		stats: map[string]dataapi.TraderStats{
			"0xwhale1": {Address: "0xwhale1", TotalVolume: 300000, TradeCount: 40, AvgBet: 7500, Credibility: 19.75},
		},
		flowByWindow: map[int]dataapi.FlowStats{
			60:      {NetInflow: 12000, TradeCount: 5, AvgYesPrice: avgYes(0.70)},
			60 * 24: {NetInflow: 40000, TradeCount: 80, AvgYesPrice: avgYes(0.66)},
		},
		netChange: 15000,
	}
	d := newTestDetector(cfg, data, &fakeMarkets{markets: []gammaapi.Market{market}})

	candidates := d.GenerateWhaleBets(context.Background(), 0)
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}

	c := candidates[0]
	if c.Type != TypeWhaleBet {
		t.Errorf("expected whale_bet, got %s", c.Type)
	}
	if c.Amount != 25000 {
		t.Errorf("expected amount 25000, got %v", c.Amount)
	}
	// No orderbook source wired, so odds fall back to the cached outcome price.
	if !almostEqual(c.OddsBefore, 0.71) || !almostEqual(c.OddsAfter, 0.71) {
		t.Errorf("expected odds fallback to 0.71, got before=%v after=%v", c.OddsBefore, c.OddsAfter)
	}
	if c.SameSideWhales != 1 {
		t.Errorf("expected same-side whales 1, got %d", c.SameSideWhales)
	}
	if c.SameSideOtherWhales != 0 {
		t.Errorf("expected zero other whales, got %d", c.SameSideOtherWhales)
	}
	if c.Whale == nil || c.Whale.Tier != "pro" {
		t.Errorf("expected pro tier whale, got %+v", c.Whale)
	}
	if c.MarketCategory != "politics" {
		t.Errorf("expected politics category, got %s", c.MarketCategory)
	}

	counters := d.GateCounterSnapshot()
	if counters["accepted"] != 1 {
		t.Errorf("expected accepted counter 1, got %d", counters["accepted"])
	}
	if counters["input_trades"] != 1 {
		t.Errorf("expected input_trades 1, got %d", counters["input_trades"])
	}

	// The accepted trade is now remembered; a second cycle rejects it as a
	// duplicate instead of alerting again.
	d.StartCycle()
	candidates = d.GenerateWhaleBets(context.Background(), 0)
	if len(candidates) != 0 {
		t.Fatalf("expected no candidates on second cycle, got %d", len(candidates))
	}
	counters = d.GateCounterSnapshot()
	if counters["reject_duplicate"] != 1 {
		t.Errorf("expected reject_duplicate 1, got %d", counters["reject_duplicate"])
	}
}

func TestGateCountersPartitionEvaluatedTrades(t *testing.T) {
	cfg := testConfig()
	good := electionMarket()
	thin := gammaapi.Market{
		ID:          "0xthin",
		ConditionID: "0xthin",
		Title:       "Will the senate confirm the nominee?",
		Liquidity:   5000,
		Volume24h:   500000,
	}

	accept := whaleTrade("0xtx-accept", "0xwhale1", good.ID, 25000)
	duplicate := whaleTrade("0xtx-dup", "0xwhale2", good.ID, 30000)
	noMarket := whaleTrade("0xtx-nomkt", "0xwhale3", "", 26000)
	thinTrade := whaleTrade("0xtx-thin", "0xwhale4", thin.ID, 25000)
	small := whaleTrade("0xtx-small", "0xwhale5", good.ID, 2500)

	counterSide := whaleTrade("0xtx-counter", "0xother", good.ID, 900)
	counterSide.Side = dataapi.SideNo

	data := &fakeData{
		scanTrades:   []dataapi.Trade{accept, duplicate, noMarket, thinTrade, small},
		marketTrades: map[string][]dataapi.Trade{good.ID: {accept, counterSide}},
		stats: map[string]dataapi.TraderStats{
			"0xwhale1": {Address: "0xwhale1", TotalVolume: 300000, TradeCount: 40},
		},
		flowByWindow: map[int]dataapi.FlowStats{
			60:      {NetInflow: 12000, TradeCount: 5, AvgYesPrice: avgYes(0.70)},
			60 * 24: {NetInflow: 40000, TradeCount: 80, AvgYesPrice: avgYes(0.66)},
		},
		netChange: 15000,
	}
	d := newTestDetector(cfg, data, &fakeMarkets{markets: []gammaapi.Market{good, thin}})
	if err := d.store.Remember(duplicate.ID); err != nil {
		t.Fatalf("seed duplicate: %v", err)
	}

	candidates := d.GenerateWhaleBets(context.Background(), 0)
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}

	counters := d.GateCounterSnapshot()
	expected := map[string]int{
		"input_trades":          5,
		"accepted":              1,
		"reject_duplicate":      1,
		"reject_missing_market": 1,
		"reject_market_liquidity": 1,
		"reject_relative_size":  1,
	}
	for key, want := range expected {
		if counters[key] != want {
			t.Errorf("counter %s = %d, want %d", key, counters[key], want)
		}
	}

	// Every evaluated trade lands in exactly one bucket.
	rejects := 0
	for key, n := range counters {
		if strings.HasPrefix(key, "reject_") {
			rejects += n
		}
	}
	if counters["accepted"]+rejects != counters["input_trades"] {
		t.Errorf("accepted (%d) + rejects (%d) != evaluated (%d)",
			counters["accepted"], rejects, counters["input_trades"])
	}
}

func TestSportsMarketNeedsHigherThreshold(t *testing.T) {
	cfg := testConfig()
	market := gammaapi.Market{
		ID:          "0xnba",
		ConditionID: "0xnba",
		Title:       "Will the Lakers win the NBA finals?",
		Liquidity:   100000,
		Volume24h:   500000,
	}

	// 25000 clears the static threshold but not 20000 * 1.35.
	trade := whaleTrade("0xtx-sports", "0xwhale1", market.ID, 25000)
	data := &fakeData{scanTrades: []dataapi.Trade{trade}}
	d := newTestDetector(cfg, data, &fakeMarkets{markets: []gammaapi.Market{market}})

	candidates := d.GenerateWhaleBets(context.Background(), 0)
	if len(candidates) != 0 {
		t.Fatalf("expected no candidates, got %d", len(candidates))
	}
	counters := d.GateCounterSnapshot()
	if counters["reject_sports_threshold"] != 1 {
		t.Errorf("expected reject_sports_threshold 1, got %d", counters["reject_sports_threshold"])
	}
}

func TestTailPriceRejected(t *testing.T) {
	cfg := testConfig()
	market := electionMarket()
	market.OutcomePrices = []float64{0.97, 0.03}

	trade := whaleTrade("0xtx-tail", "0xwhale1", market.ID, 25000)
	trade.Price = 0.97
	counterSide := whaleTrade("0xtx-counter", "0xother", market.ID, 900)
	counterSide.Side = dataapi.SideNo

	data := &fakeData{
		scanTrades:   []dataapi.Trade{trade},
		marketTrades: map[string][]dataapi.Trade{market.ID: {trade, counterSide}},
		stats: map[string]dataapi.TraderStats{
			"0xwhale1": {Address: "0xwhale1", TotalVolume: 300000},
		},
		flowByWindow: map[int]dataapi.FlowStats{
			60:      {NetInflow: 12000, TradeCount: 5},
			60 * 24: {NetInflow: 40000, TradeCount: 80},
		},
		netChange: 15000,
	}
	d := newTestDetector(cfg, data, &fakeMarkets{markets: []gammaapi.Market{market}})

	candidates := d.GenerateWhaleBets(context.Background(), 0)
	if len(candidates) != 0 {
		t.Fatalf("expected no candidates, got %d", len(candidates))
	}
	counters := d.GateCounterSnapshot()
	if counters["reject_tail_price"] != 1 {
		t.Errorf("expected reject_tail_price 1, got %d", counters["reject_tail_price"])
	}
}

func TestRetailWalletWithoutClusterRejected(t *testing.T) {
	cfg := testConfig()
	market := electionMarket()

	trade := whaleTrade("0xtx-retail", "0xretail", market.ID, 25000)
	counterSide := whaleTrade("0xtx-counter", "0xother", market.ID, 900)
	counterSide.Side = dataapi.SideNo

	data := &fakeData{
		scanTrades:   []dataapi.Trade{trade},
		marketTrades: map[string][]dataapi.Trade{market.ID: {trade, counterSide}},
		stats: map[string]dataapi.TraderStats{
			"0xretail": {Address: "0xretail", TotalVolume: 8000, TradeCount: 2, Credibility: 0.7},
		},
		flowByWindow: map[int]dataapi.FlowStats{
			60:      {NetInflow: 12000, TradeCount: 5, AvgYesPrice: avgYes(0.70)},
			60 * 24: {NetInflow: 40000, TradeCount: 80, AvgYesPrice: avgYes(0.66)},
		},
		netChange: 15000,
	}
	d := newTestDetector(cfg, data, &fakeMarkets{markets: []gammaapi.Market{market}})

	candidates := d.GenerateWhaleBets(context.Background(), 0)
	if len(candidates) != 0 {
		t.Fatalf("expected no candidates, got %d", len(candidates))
	}
	counters := d.GateCounterSnapshot()
	if counters["reject_wallet_quality"] != 1 {
		t.Errorf("expected reject_wallet_quality 1, got %d", counters["reject_wallet_quality"])
	}
}

func TestSparseFlowBypass(t *testing.T) {
	cfg := testConfig()
	market := electionMarket()

	trade := whaleTrade("0xtx-sparse", "0xwhale1", market.ID, 25000)
	counterSide := whaleTrade("0xtx-counter", "0xother", market.ID, 900)
	counterSide.Side = dataapi.SideNo

	// No flow signal at all, but the 1h window is nearly empty and the trade
	// clears the adaptive threshold, so the sparse bypass applies. Impact
	// still needs a price move, supplied via the 1h average.
	data := &fakeData{
		scanTrades:   []dataapi.Trade{trade},
		marketTrades: map[string][]dataapi.Trade{market.ID: {trade, counterSide}},
		stats: map[string]dataapi.TraderStats{
			"0xwhale1": {Address: "0xwhale1", TotalVolume: 300000},
		},
		flowByWindow: map[int]dataapi.FlowStats{
			60:      {NetInflow: 500, TradeCount: 1, AvgYesPrice: avgYes(0.68)},
			60 * 24: {NetInflow: 900, TradeCount: 30, AvgYesPrice: avgYes(0.66)},
		},
		netChange: 200,
	}
	d := newTestDetector(cfg, data, &fakeMarkets{markets: []gammaapi.Market{market}})

	candidates := d.GenerateWhaleBets(context.Background(), 0)
	if len(candidates) != 1 {
		counters := d.GateCounterSnapshot()
		t.Fatalf("expected sparse bypass acceptance, got %d candidates (counters %v)", len(candidates), counters)
	}
}

func TestGenerateVolumeSpikes(t *testing.T) {
	cfg := testConfig()
	market := electionMarket()

	data := &fakeData{
		history: map[string][]float64{
			// 1000/hr trailing average, 8000 in the current hour.
			market.ID: {1000, 1000, 1000, 8000},
		},
		flowByWindow: map[int]dataapi.FlowStats{
			60:      {NetInflow: 6000, TradeCount: 12, AvgYesPrice: avgYes(0.55)},
			60 * 24: {NetInflow: 9000, TradeCount: 50, AvgYesPrice: avgYes(0.50)},
		},
	}
	d := newTestDetector(cfg, data, &fakeMarkets{markets: []gammaapi.Market{market}})

	candidates := d.GenerateVolumeSpikes(context.Background(), 0)
	if len(candidates) != 1 {
		t.Fatalf("expected 1 spike, got %d", len(candidates))
	}
	c := candidates[0]
	if c.Type != TypeVolumeSpike {
		t.Errorf("expected volume_spike, got %s", c.Type)
	}
	if !almostEqual(c.Volume1h, 8000) {
		t.Errorf("expected 1h volume 8000, got %v", c.Volume1h)
	}
	if !almostEqual(c.SpikeRatio, 8.0) {
		t.Errorf("expected spike ratio 8.0, got %v", c.SpikeRatio)
	}
}

func TestGenerateSmartMoneyMoves(t *testing.T) {
	cfg := testConfig()
	cfg.MinSmartTraders = 2
	market := electionMarket()

	now := time.Now().UTC()
	t1 := whaleTrade("0xsm1", "0xsmart1", market.ID, 800)
	t1.Timestamp = now.Add(-2 * time.Minute)
	t2 := whaleTrade("0xsm2", "0xsmart2", market.ID, 600)
	t2.Timestamp = now.Add(-5 * time.Minute)

	data := &fakeData{
		scanTrades: []dataapi.Trade{t1, t2},
		stats: map[string]dataapi.TraderStats{
			"0xsmart1": {Address: "0xsmart1", ClosedPositions: 25, AvgPosition: 1500, RealizedPnL: 12000, TotalVolume: 400000},
			"0xsmart2": {Address: "0xsmart2", ClosedPositions: 15, AvgPosition: 900, RealizedPnL: 8000, TotalVolume: 150000},
		},
		flowByWindow: map[int]dataapi.FlowStats{
			60:      {NetInflow: 3000, TradeCount: 6, AvgYesPrice: avgYes(0.60)},
			60 * 24: {NetInflow: 5000, TradeCount: 40, AvgYesPrice: avgYes(0.55)},
		},
	}
	d := newTestDetector(cfg, data, &fakeMarkets{markets: []gammaapi.Market{market}})

	candidates := d.GenerateSmartMoneyMoves(context.Background(), 0)
	if len(candidates) != 1 {
		t.Fatalf("expected 1 consensus, got %d", len(candidates))
	}
	c := candidates[0]
	if c.Type != TypeSmartMoney {
		t.Errorf("expected smart_money, got %s", c.Type)
	}
	if c.ConsensusSide != dataapi.SideYes {
		t.Errorf("expected YES consensus, got %s", c.ConsensusSide)
	}
	if len(c.Traders) != 2 {
		t.Errorf("expected 2 smart traders, got %d", len(c.Traders))
	}
	if !almostEqual(c.TotalAmount, 1400) {
		t.Errorf("expected total 1400, got %v", c.TotalAmount)
	}
}
