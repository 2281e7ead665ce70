package detector

import "github.com/shnfxl/polymarket-whale-tracker/internal/polymarket/dataapi"

type clusterKey struct {
	market string
	side   string
}

type clusterMember struct {
	wallet string
	amount float64
}

// tradeAggregates is the single pre-pass over the raw trade window feeding
// the cluster detector, the adaptive threshold engine, and the market
// target score.
type tradeAggregates struct {
	clusters           map[clusterKey][]clusterMember
	marketTradeCounts  map[string]int
	marketWallets      map[string]map[string]struct{}
	marketLargeCounts  map[string]int
	marketAmounts      map[string][]float64
	allAmounts         []float64
}

func (d *Detector) aggregateTrades(trades []dataapi.Trade) *tradeAggregates {
	agg := &tradeAggregates{
		clusters:          make(map[clusterKey][]clusterMember),
		marketTradeCounts: make(map[string]int),
		marketWallets:     make(map[string]map[string]struct{}),
		marketLargeCounts: make(map[string]int),
		marketAmounts:     make(map[string][]float64),
	}
	for _, t := range trades {
		if t.Market == "" || t.Wallet == "" {
			continue
		}
		if t.Side != dataapi.SideYes && t.Side != dataapi.SideNo {
			continue
		}
		key := clusterKey{market: t.Market, side: t.Side}
		agg.clusters[key] = append(agg.clusters[key], clusterMember{wallet: t.Wallet, amount: t.Amount})
		agg.marketTradeCounts[t.Market]++
		if agg.marketWallets[t.Market] == nil {
			agg.marketWallets[t.Market] = make(map[string]struct{})
		}
		agg.marketWallets[t.Market][t.Wallet] = struct{}{}
		if t.Amount >= d.cfg.MinWhaleBetUSD {
			agg.marketLargeCounts[t.Market]++
		}
		agg.marketAmounts[t.Market] = append(agg.marketAmounts[t.Market], t.Amount)
		agg.allAmounts = append(agg.allAmounts, t.Amount)
	}
	return agg
}

// globalThreshold computes the cycle-wide adaptive percentile, or nil when
// the sample is too small.
func (d *Detector) globalThreshold(agg *tradeAggregates) *float64 {
	if !d.cfg.AdaptiveThresholdEnabled {
		return nil
	}
	if len(agg.allAmounts) < maxInt(3, d.cfg.AdaptiveMinSamples) {
		return nil
	}
	return Percentile(agg.allAmounts, d.cfg.AdaptivePercentile)
}

// clusterStats describes the same-side whale cluster around one trade.
type clusterStats struct {
	whales      int
	otherWhales int
	notional    float64
}

// detectCluster finds the distinct wallets whose same-market/same-side
// trades meet the effective threshold. The triggering wallet is always a
// member even when its own trade did not qualify, since it is by
// definition the trigger. With clustering disabled the cluster degenerates
// to the single trade.
func (d *Detector) detectCluster(agg *tradeAggregates, marketID, side, wallet string, amount, effectiveThreshold float64) clusterStats {
	if d.cfg.DisableClusterGate {
		return clusterStats{whales: 0, otherWhales: 0, notional: amount}
	}

	members := agg.clusters[clusterKey{market: marketID, side: side}]
	wallets := make(map[string]struct{})
	var notional float64
	for _, m := range members {
		if m.amount < effectiveThreshold || m.wallet == "" {
			continue
		}
		wallets[m.wallet] = struct{}{}
		notional += m.amount
	}
	if wallet != "" {
		if _, ok := wallets[wallet]; !ok {
			wallets[wallet] = struct{}{}
			notional += amount
		}
	}
	whales := len(wallets)
	return clusterStats{
		whales:      whales,
		otherWhales: maxInt(0, whales-1),
		notional:    notional,
	}
}
