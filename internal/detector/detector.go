package detector

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shnfxl/polymarket-whale-tracker/internal/config"
	"github.com/shnfxl/polymarket-whale-tracker/internal/metrics"
	"github.com/shnfxl/polymarket-whale-tracker/internal/polymarket/dataapi"
	"github.com/shnfxl/polymarket-whale-tracker/internal/polymarket/gammaapi"
	"github.com/shnfxl/polymarket-whale-tracker/internal/ratelimit"
	"github.com/shnfxl/polymarket-whale-tracker/internal/state"
)

const qualityCacheTTL = 2 * time.Minute

// DataSource is the trade/market data collaborator. Implementations degrade
// failures to empty results; the pipeline never sees transport errors.
type DataSource interface {
	FetchRecentTrades(ctx context.Context, q dataapi.TradeQuery) []dataapi.Trade
	TraderStats(ctx context.Context, address string, forceRefresh bool) dataapi.TraderStats
	MarketFlowStats(ctx context.Context, marketID string, minutes int) dataapi.FlowStats
	NetPositionChange(ctx context.Context, address, marketID string, minutes int) float64
	MarketPositionSize(ctx context.Context, address, marketID string) *float64
	MarketVolumeHistory(ctx context.Context, marketID string, hours int) []float64
}

// MarketSource provides the market list and cache lookups.
type MarketSource interface {
	FetchMarkets(ctx context.Context, limit int, active bool, sortBy string) []gammaapi.Market
	CachedMarket(id string) (*gammaapi.Market, bool)
	CachedMarketByTitle(title string) (*gammaapi.Market, bool)
	CachedMarkets() []gammaapi.Market
}

// BookSource provides live orderbook mids; may be nil.
type BookSource interface {
	OrderbookMid(ctx context.Context, tokenID string) *float64
}

// Detector runs the candidate generation and gating engine.
type Detector struct {
	cfg     *config.Config
	log     *logrus.Logger
	data    DataSource
	markets MarketSource
	book    BookSource
	store   state.Store
	sem     *ratelimit.Semaphore

	cycle        *CycleCache
	qualityMu    sync.Mutex
	qualityCache map[string]qualityEntry
	counters     *GateCounters
}

type qualityEntry struct {
	at    time.Time
	stats QualityStats
}

// New creates a detector. book may be nil, in which case odds fall back to
// cached outcome prices.
func New(cfg *config.Config, log *logrus.Logger, data DataSource, markets MarketSource, book BookSource, store state.Store) *Detector {
	return &Detector{
		cfg:          cfg,
		log:          log,
		data:         data,
		markets:      markets,
		book:         book,
		store:        store,
		sem:          ratelimit.NewSemaphore(cfg.APIConcurrency),
		cycle:        NewCycleCache(),
		qualityCache: make(map[string]qualityEntry),
		counters:     NewGateCounters(),
	}
}

// StartCycle clears the per-cycle caches.
func (d *Detector) StartCycle() {
	d.cycle.Clear()
}

// GateCounterSnapshot returns the current gate counters.
func (d *Detector) GateCounterSnapshot() map[string]int {
	return d.counters.Snapshot()
}

func (d *Detector) orderbookMid(ctx context.Context, tokenID string) *float64 {
	if d.book == nil || tokenID == "" {
		return nil
	}
	var mid *float64
	d.runLimited(ctx, func() {
		mid = d.book.OrderbookMid(ctx, tokenID)
	})
	return mid
}

// resolveMarket finds the market for a trade: exact id, lower-cased id,
// title match, then a synthetic entry built from trade data so unknown
// markets still flow through the pipeline with zero depth stats.
func (d *Detector) resolveMarket(marketID, marketTitle string) *gammaapi.Market {
	if m, ok := d.markets.CachedMarket(marketID); ok {
		return m
	}
	if marketTitle != "" {
		if m, ok := d.markets.CachedMarketByTitle(marketTitle); ok {
			return m
		}
	}
	title := marketTitle
	if title == "" {
		short := marketID
		if len(short) > 8 {
			short = short[:8]
		}
		title = "Market " + short
	}
	return &gammaapi.Market{ID: marketID, Title: title}
}

// Scan refreshes the market cache, clears cycle state, and runs all three
// generators. Returned candidates are ordered whale bets, then smart money,
// then volume spikes.
func (d *Detector) Scan(ctx context.Context) []*Candidate {
	start := time.Now()

	d.runLimited(ctx, func() {
		d.markets.FetchMarkets(ctx, d.cfg.MarketLimit, true, d.cfg.MarketSortBy)
	})
	d.StartCycle()

	var out []*Candidate
	out = append(out, d.GenerateWhaleBets(ctx, 0)...)
	out = append(out, d.GenerateSmartMoneyMoves(ctx, 0)...)
	out = append(out, d.GenerateVolumeSpikes(ctx, 0)...)

	for _, c := range out {
		metrics.RecordCandidate(c.Type)
	}
	metrics.RecordScan(time.Since(start), d.counters.Snapshot())

	d.log.WithFields(logrus.Fields{
		"candidates": len(out),
		"duration":   time.Since(start).Round(time.Millisecond).String(),
	}).Info("Scan complete")
	return out
}

// GenerateWhaleBets detects individually significant trades in the recent
// window. limit <= 0 uses the configured per-type cap.
func (d *Detector) GenerateWhaleBets(ctx context.Context, limit int) []*Candidate {
	if limit <= 0 {
		limit = maxInt(1, d.cfg.MaxCandidatesPerType)
	}
	d.counters.Reset()

	whaleMinFetch := math.Min(d.cfg.MinWhaleBetUSD, d.cfg.MinMarketVolume24h*d.cfg.RelWhaleVolumePct)
	trades := d.cachedRecentTrades(ctx, dataapi.TradeQuery{
		SinceMinutes: d.cfg.WhaleLookbackMinutes,
		MinCash:      whaleMinFetch,
	})
	d.counters.add(gateInputTrades, len(trades))
	if len(trades) == 0 {
		return nil
	}

	agg := d.aggregateTrades(trades)
	global := d.globalThreshold(agg)

	// Enrichment is the expensive part; pre-sort by size and bound the
	// enriched subset per cycle no matter how many raw trades arrived.
	sorted := make([]dataapi.Trade, len(trades))
	copy(sorted, trades)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Amount > sorted[j].Amount })
	if enrichCap := maxInt(1, d.cfg.MaxWhaleEnrichTrades); len(sorted) > enrichCap {
		sorted = sorted[:enrichCap]
	}

	var candidates []*Candidate
	for _, trade := range sorted {
		cand, reason := d.evaluateWhaleTrade(ctx, trade, agg, global)
		if reason != "" {
			d.counters.count(reason)
			continue
		}
		if err := d.store.Remember(trade.ID); err != nil {
			d.log.WithError(err).Warn("Failed to persist processed trade id")
		}
		candidates = append(candidates, cand)
		d.counters.count(gateAccepted)
		if len(candidates) >= limit {
			break
		}
	}
	return candidates
}

// evaluateWhaleTrade runs the full gate chain for one trade. An empty
// reason means the trade was accepted; otherwise exactly one reject reason
// is returned (short-circuit).
func (d *Detector) evaluateWhaleTrade(ctx context.Context, trade dataapi.Trade, agg *tradeAggregates, global *float64) (*Candidate, string) {
	if d.store.IsProcessed(trade.ID) {
		return nil, rejectDuplicate
	}
	if trade.Market == "" {
		return nil, rejectMissingMarket
	}

	market := d.resolveMarket(trade.Market, trade.MarketTitle)
	marketGates := !d.cfg.DisableMarketGates
	now := time.Now().UTC()

	if marketGates && d.isShortDurationMarket(market, now) {
		return nil, rejectShortDuration
	}

	isSports := isSportsMarket(market)
	if d.cfg.ExcludeSportsMarkets && isSports {
		return nil, rejectNotPopular
	}

	amount := trade.Amount
	adaptive := d.adaptiveThreshold(agg.marketAmounts[trade.Market], global)
	effective := d.effectiveThreshold(market, adaptive)
	if marketGates && isSports && amount < effective {
		return nil, rejectSportsThreshold
	}

	// Unknown depth stats are "unknown", not "bad"; sparse API payloads
	// must not kill every candidate before the downstream quality checks.
	liquidityKnown := market.Liquidity > 0
	volumeKnown := market.Volume24h > 0

	var quality *QualityStats
	targetScore := d.marketTargetScore(
		market,
		agg.marketTradeCounts[trade.Market],
		len(agg.marketWallets[trade.Market]),
		agg.marketLargeCounts[trade.Market],
	)
	if marketGates {
		if liquidityKnown && market.Liquidity < d.cfg.HardMinLiquidityUSD {
			return nil, rejectMarketLiquidity
		}
		if volumeKnown && market.Volume24h < d.cfg.HardMinVolume24hUSD {
			return nil, rejectMarketVolume
		}

		meetsAbs := amount >= adaptive
		meetsRelVol := volumeKnown && amount >= market.Volume24h*d.cfg.RelWhaleVolumePct
		meetsRelLiq := liquidityKnown && amount >= market.Liquidity*d.cfg.RelWhaleLiquidityPct
		meetsBasic := meetsAbs || meetsRelVol || meetsRelLiq

		lowLiquidity := liquidityKnown && market.Liquidity < d.cfg.MinLiquidityUSD
		lowVolume := volumeKnown && market.Volume24h < d.cfg.MinMarketVolume24h
		if lowLiquidity || lowVolume {
			// Thin markets need an exceptionally large trade to qualify.
			override := (liquidityKnown && amount >= market.Liquidity*d.cfg.LowLiquidityWhaleLiqPct) ||
				(volumeKnown && amount >= market.Volume24h*d.cfg.LowLiquidityWhaleVolPct) ||
				amount >= adaptive*2
			if !override {
				return nil, rejectRelativeSize
			}
		}
		if !meetsBasic {
			return nil, rejectRelativeSize
		}

		if targetScore < d.cfg.MinMarketTargetScore && amount < adaptive*d.cfg.MarketTargetOverrideMult {
			return nil, rejectMarketTarget
		}

		q := d.marketQuality(ctx, trade.Market)
		if !d.passesMarketQuality(q) {
			return nil, rejectMarketQuality
		}
		quality = &q
	}

	e := d.enrichWhale(ctx, trade.Wallet, trade.Market)
	tier := walletTier(e.traderStats.TotalVolume)
	profile, activeMarkets := classifyTrader(e.traderRecent)

	// Odds baseline is the cached outcome price, upgraded to a live
	// orderbook mid when one exists.
	oddsBefore := trade.Price
	if p := market.OutcomePrice(trade.Side); p != nil && *p != 0 {
		oddsBefore = *p
	}
	oddsAfter := oddsBefore
	if mid := d.orderbookMid(ctx, market.TokenID(trade.Side)); mid != nil && *mid != 0 {
		oddsAfter = *mid
	}
	if marketGates && d.inTailPriceBand(&oddsAfter) {
		return nil, rejectTailPrice
	}

	cluster := d.detectCluster(agg, trade.Market, trade.Side, trade.Wallet, amount, effective)

	if !d.cfg.DisableWalletGate {
		if tier == "retail" && e.traderStats.Credibility < 4 && cluster.whales < 3 {
			return nil, rejectWalletQuality
		}
	}

	var oddsMove1h, oddsMove24h, oddsMovePct1h, oddsMovePct24h *float64
	if e.flow1h.AvgYesPrice != nil {
		base := *e.flow1h.AvgYesPrice
		mv := oddsAfter - base
		oddsMove1h = &mv
		if base != 0 {
			pct := mv / math.Max(base, 0.01)
			oddsMovePct1h = &pct
		}
	}
	if e.flow24h.AvgYesPrice != nil {
		base := *e.flow24h.AvgYesPrice
		mv := oddsAfter - base
		oddsMove24h = &mv
		if base != 0 {
			pct := mv / math.Max(base, 0.01)
			oddsMovePct24h = &pct
		}
	}

	sparseFlow := e.flow1h.TradeCount < maxInt(1, d.cfg.SparseFlowMinTrades)
	clusterSignal := !d.cfg.DisableClusterGate && cluster.whales >= d.cfg.FlowGateClusterMin
	flowSignal := math.Abs(e.netChange) >= d.cfg.FlowGateNetPositionUSD ||
		math.Abs(e.flow1h.NetInflow) >= d.cfg.FlowGateMarketInflowUSD ||
		clusterSignal
	if !d.cfg.DisableTrendGate {
		if !flowSignal && !(d.cfg.AllowSparseFlowBypass && sparseFlow && amount >= adaptive) {
			return nil, rejectFlowQuality
		}
	}

	oddsImpact := math.Abs(oddsAfter - oddsBefore)
	impactSignal := oddsImpact >= d.cfg.ImpactGateMinAbs ||
		(oddsMovePct1h != nil && math.Abs(*oddsMovePct1h) >= d.cfg.ImpactGateMinPct)
	if !d.cfg.DisableImpactGate {
		if !impactSignal && !(d.cfg.AllowSparseFlowBypass && sparseFlow && cluster.whales >= d.cfg.FlowGateClusterMin) {
			return nil, rejectImpactQuality
		}
	}

	return &Candidate{
		Type:           TypeWhaleBet,
		Market:         market,
		MarketURL:      market.URL(),
		MarketCategory: marketCategory(market),
		IsSportsMarket: isSports,
		Timestamp:      trade.Timestamp,
		Whale: &WhaleInfo{
			Address:       trade.Wallet,
			Nickname:      nickname(trade.Wallet),
			TotalVolume:   e.traderStats.TotalVolume,
			Credibility:   e.traderStats.Credibility,
			AvgBet:        e.traderStats.AvgBet,
			TradeCount:    e.traderStats.TradeCount,
			Tier:          tier,
			Profile:       profile,
			ActiveMarkets: activeMarkets,
		},
		Amount:                amount,
		Side:                  trade.Side,
		SideLabel:             trade.SideLabel,
		SameSideWhales:        cluster.whales,
		SameSideOtherWhales:   cluster.otherWhales,
		SameSideNotional:      cluster.notional,
		IsNewTrader:           e.traderStats.TradeCount <= 3,
		MarketPositionSizeUSD: e.marketPositionSize,
		OddsBefore:            oddsBefore,
		OddsAfter:             oddsAfter,
		NetPosition1h:         e.netChange,
		MarketNetInflow1h:     e.flow1h.NetInflow,
		MarketNetInflow24h:    e.flow24h.NetInflow,
		MarketAvgYes1h:        e.flow1h.AvgYesPrice,
		MarketAvgYes24h:       e.flow24h.AvgYesPrice,
		OddsMove1h:            oddsMove1h,
		OddsMove24h:           oddsMove24h,
		OddsMovePct1h:         oddsMovePct1h,
		OddsMovePct24h:        oddsMovePct24h,
		MarketQuality:         quality,
		MarketTargetScore:     targetScore,
		AdaptiveThreshold:     adaptive,
		EffectiveThreshold:    effective,
		MarketLiveTradeCount:  agg.marketTradeCounts[trade.Market],
	}, ""
}

// GenerateSmartMoneyMoves detects per-market, per-side consensus among
// wallets with a strong closed-position track record.
func (d *Detector) GenerateSmartMoneyMoves(ctx context.Context, limit int) []*Candidate {
	if limit <= 0 {
		limit = maxInt(1, d.cfg.MaxCandidatesPerType)
	}
	d.log.Info("Running smart money detection")

	trades := d.cachedRecentTrades(ctx, dataapi.TradeQuery{
		SinceMinutes: d.cfg.SmartLookbackMinutes,
		MinCash:      d.cfg.MinSmartTraderBetUSD,
	})
	recentCutoff := time.Now().UTC().Add(-time.Duration(d.cfg.SmartWindowMinutes) * time.Minute)

	type sideKey struct {
		market string
		side   string
	}
	grouped := make(map[sideKey][]dataapi.Trade)
	var keyOrder []sideKey
	for _, t := range trades {
		if t.Market == "" || t.Wallet == "" {
			continue
		}
		if t.Side != dataapi.SideYes && t.Side != dataapi.SideNo {
			continue
		}
		key := sideKey{market: t.Market, side: t.Side}
		if _, ok := grouped[key]; !ok {
			keyOrder = append(keyOrder, key)
		}
		grouped[key] = append(grouped[key], t)
	}

	var candidates []*Candidate
	for _, key := range keyOrder {
		sideTrades := grouped[key]
		if len(sideTrades) < d.cfg.MinSmartTraders {
			continue
		}

		byAddress := make(map[string][]dataapi.Trade)
		var addrOrder []string
		for _, t := range sideTrades {
			if _, ok := byAddress[t.Wallet]; !ok {
				addrOrder = append(addrOrder, t.Wallet)
			}
			byAddress[t.Wallet] = append(byAddress[t.Wallet], t)
		}

		var smartTraders []SmartTrader
		for _, addr := range addrOrder {
			stats := d.cachedTraderStats(ctx, addr)
			var total float64
			for _, t := range byAddress[addr] {
				total += t.Amount
			}
			if stats.ClosedPositions >= d.cfg.SmartMinClosedPositions &&
				stats.AvgPosition >= d.cfg.SmartMinAvgPositionUSD &&
				stats.RealizedPnL >= d.cfg.SmartMinRealizedPnLUSD &&
				total >= d.cfg.MinSmartTraderBetUSD {
				smartTraders = append(smartTraders, SmartTrader{
					Address:         addr,
					Nickname:        nickname(addr),
					TotalVolume:     stats.TotalVolume,
					TradeCount:      stats.TradeCount,
					AvgBet:          stats.AvgBet,
					Credibility:     stats.Credibility,
					WinRate:         stats.WinRate,
					AvgPosition:     stats.AvgPosition,
					RealizedPnL:     stats.RealizedPnL,
					ClosedPositions: stats.ClosedPositions,
					Amount:          total,
				})
			}
		}
		if len(smartTraders) < d.cfg.MinSmartTraders {
			continue
		}

		var totalAmount float64
		smartAddresses := make(map[string]struct{}, len(smartTraders))
		for _, t := range smartTraders {
			totalAmount += t.Amount
			smartAddresses[t.Address] = struct{}{}
		}
		if totalAmount < d.cfg.MinConsensusTotalUSD {
			continue
		}

		// Require at least two distinct smart wallets active in the
		// tight consensus window, not just the wide lookback.
		recentWallets := make(map[string]struct{})
		for _, t := range sideTrades {
			if t.Timestamp.Before(recentCutoff) {
				continue
			}
			if _, ok := smartAddresses[t.Wallet]; ok {
				recentWallets[t.Wallet] = struct{}{}
			}
		}
		if len(recentWallets) < 2 {
			continue
		}

		market := d.resolveMarket(key.market, sideTrades[0].MarketTitle)
		isSports := isSportsMarket(market)
		if d.cfg.ExcludeSportsMarkets && isSports {
			continue
		}
		if market.Liquidity > 0 && market.Liquidity < d.cfg.MinLiquidityUSD {
			continue
		}
		if market.Volume24h < d.cfg.MinMarketVolume24h {
			continue
		}
		if !d.marketInScope(market) {
			continue
		}
		if d.isShortDurationMarket(market, time.Now().UTC()) {
			continue
		}

		flow1h, flow24h := d.fetchFlowPair(ctx, key.market)
		if d.inTailPriceBand(flow1h.AvgYesPrice) {
			continue
		}
		currentYes := d.orderbookMid(ctx, market.TokenID(dataapi.SideYes))
		if currentYes == nil || *currentYes == 0 {
			currentYes = flow1h.AvgYesPrice
		}
		if d.inTailPriceBand(currentYes) {
			continue
		}

		oddsMovePct1h := relativeMove(currentYes, flow1h.AvgYesPrice)
		oddsMovePct24h := relativeMove(currentYes, flow24h.AvgYesPrice)

		candidates = append(candidates, &Candidate{
			Type:               TypeSmartMoney,
			Market:             market,
			MarketURL:          market.URL(),
			MarketCategory:     marketCategory(market),
			IsSportsMarket:     isSports,
			Timestamp:          time.Now().UTC(),
			Traders:            smartTraders,
			TotalAmount:        totalAmount,
			ConsensusSide:      key.side,
			MarketNetInflow1h:  flow1h.NetInflow,
			MarketNetInflow24h: flow24h.NetInflow,
			MarketAvgYes1h:     flow1h.AvgYesPrice,
			MarketAvgYes24h:    flow24h.AvgYesPrice,
			OddsMovePct1h:      oddsMovePct1h,
			OddsMovePct24h:     oddsMovePct24h,
		})
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].TotalAmount > candidates[j].TotalAmount })
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates
}

// GenerateVolumeSpikes detects markets whose current-hour volume is a
// multiple of their trailing hourly average.
func (d *Detector) GenerateVolumeSpikes(ctx context.Context, limit int) []*Candidate {
	if limit <= 0 {
		limit = maxInt(1, d.cfg.MaxCandidatesPerType)
	}

	markets := d.markets.CachedMarkets()
	if len(markets) == 0 {
		d.runLimited(ctx, func() {
			markets = d.markets.FetchMarkets(ctx, d.cfg.MarketLimit, true, d.cfg.MarketSortBy)
		})
	}
	sort.Slice(markets, func(i, j int) bool {
		if markets[i].Volume24h != markets[j].Volume24h {
			return markets[i].Volume24h > markets[j].Volume24h
		}
		return markets[i].Liquidity > markets[j].Liquidity
	})
	if scanCap := d.cfg.VolumeMarketScanLimit; scanCap > 0 && len(markets) > scanCap {
		markets = markets[:scanCap]
	}
	d.log.WithField("markets", len(markets)).Info("Markets scanned for volume spikes")

	var candidates []*Candidate
	for i := range markets {
		market := &markets[i]
		if market.ID == "" {
			continue
		}
		isSports := isSportsMarket(market)
		if d.cfg.ExcludeSportsMarkets && isSports {
			continue
		}
		if market.Liquidity > 0 && market.Liquidity < d.cfg.MinLiquidityUSD {
			continue
		}
		if market.Volume24h < d.cfg.MinMarketVolume24h {
			continue
		}
		if !d.marketInScope(market) {
			continue
		}
		if d.isShortDurationMarket(market, time.Now().UTC()) {
			continue
		}

		var history []float64
		d.runLimited(ctx, func() {
			history = d.data.MarketVolumeHistory(ctx, market.ID, 24)
		})
		if len(history) < 2 {
			continue
		}

		var trailing float64
		for _, v := range history[:len(history)-1] {
			trailing += v
		}
		avgHourly := trailing / float64(len(history)-1)
		currentHour := history[len(history)-1]
		if avgHourly == 0 {
			continue
		}
		if currentHour < d.cfg.MinVolumeSpike1hUSD {
			continue
		}
		ratio := currentHour / avgHourly
		if ratio < d.cfg.MinVolumeSpikeMultiplier {
			continue
		}

		notable := d.notableTrades(ctx, market.ID)

		flow1h, flow24h := d.fetchFlowPair(ctx, market.ID)
		currentYes := d.orderbookMid(ctx, market.TokenID(dataapi.SideYes))
		if currentYes == nil || *currentYes == 0 {
			currentYes = flow1h.AvgYesPrice
		}
		if d.inTailPriceBand(currentYes) {
			continue
		}

		candidates = append(candidates, &Candidate{
			Type:               TypeVolumeSpike,
			Market:             market,
			MarketURL:          market.URL(),
			MarketCategory:     marketCategory(market),
			IsSportsMarket:     isSports,
			Timestamp:          time.Now().UTC(),
			Volume24h:          market.Volume24h,
			Volume1h:           currentHour,
			SpikeRatio:         ratio,
			NotableTrades:      notable,
			MarketNetInflow1h:  flow1h.NetInflow,
			MarketNetInflow24h: flow24h.NetInflow,
			MarketAvgYes1h:     flow1h.AvgYesPrice,
			MarketAvgYes24h:    flow24h.AvgYesPrice,
			OddsMovePct1h:      relativeMove(currentYes, flow1h.AvgYesPrice),
			OddsMovePct24h:     relativeMove(currentYes, flow24h.AvgYesPrice),
		})

		if len(candidates) >= limit {
			break
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Volume1h != candidates[j].Volume1h {
			return candidates[i].Volume1h > candidates[j].Volume1h
		}
		return candidates[i].Volume24h > candidates[j].Volume24h
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates
}

// notableTrades collects whale-sized trades inside a spike window with
// trader stats fetched concurrently.
func (d *Detector) notableTrades(ctx context.Context, marketID string) []NotableTrade {
	recent := d.cachedRecentTrades(ctx, dataapi.TradeQuery{
		Market:       marketID,
		SinceMinutes: d.cfg.VolumeNotableLookbackMinutes,
	})

	addresses := make(map[string]struct{})
	for _, t := range recent {
		if t.Amount >= d.cfg.MinWhaleBetUSD && t.Wallet != "" {
			addresses[t.Wallet] = struct{}{}
		}
	}

	statsByAddr := make(map[string]dataapi.TraderStats, len(addresses))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for addr := range addresses {
		wg.Add(1)
		go func(addr string) {
			defer wg.Done()
			stats := d.cachedTraderStats(ctx, addr)
			mu.Lock()
			statsByAddr[addr] = stats
			mu.Unlock()
		}(addr)
	}
	wg.Wait()

	var notable []NotableTrade
	for _, t := range recent {
		if t.Amount < d.cfg.MinWhaleBetUSD {
			continue
		}
		stats := statsByAddr[t.Wallet]
		notable = append(notable, NotableTrade{
			Whale: WhaleInfo{
				Address:     t.Wallet,
				Nickname:    nickname(t.Wallet),
				TotalVolume: stats.TotalVolume,
				Credibility: stats.Credibility,
			},
			Amount: t.Amount,
			Side:   t.Side,
		})
	}
	return notable
}

// fetchFlowPair fans out the 1h and 24h flow lookups together.
func (d *Detector) fetchFlowPair(ctx context.Context, marketID string) (dataapi.FlowStats, dataapi.FlowStats) {
	var flow1h, flow24h dataapi.FlowStats
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		flow1h = d.cachedMarketFlow(ctx, marketID, 60)
	}()
	go func() {
		defer wg.Done()
		flow24h = d.cachedMarketFlow(ctx, marketID, 60*24)
	}()
	wg.Wait()
	return flow1h, flow24h
}

// relativeMove returns (current-base)/max(base, 0.01), or nil when either
// side is unknown.
func relativeMove(current, base *float64) *float64 {
	if current == nil || *current == 0 || base == nil || *base == 0 {
		return nil
	}
	pct := (*current - *base) / math.Max(*base, 0.01)
	return &pct
}
