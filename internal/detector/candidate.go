package detector

import (
	"strings"
	"time"

	"github.com/shnfxl/polymarket-whale-tracker/internal/polymarket/dataapi"
	"github.com/shnfxl/polymarket-whale-tracker/internal/polymarket/gammaapi"
)

// Candidate types
const (
	TypeWhaleBet    = "whale_bet"
	TypeSmartMoney  = "smart_money"
	TypeVolumeSpike = "volume_spike"
)

// WhaleInfo describes the wallet behind a candidate trade
type WhaleInfo struct {
	Address       string
	Nickname      string
	TotalVolume   float64
	Credibility   float64
	AvgBet        float64
	TradeCount    int
	Tier          string
	Profile       string
	ActiveMarkets int
}

// SmartTrader is one qualifying wallet in a smart-money consensus
type SmartTrader struct {
	Address         string
	Nickname        string
	TotalVolume     float64
	TradeCount      int
	AvgBet          float64
	Credibility     float64
	WinRate         float64
	AvgPosition     float64
	RealizedPnL     float64
	ClosedPositions int
	Amount          float64
}

// NotableTrade is a large trade observed inside a volume spike
type NotableTrade struct {
	Whale  WhaleInfo
	Amount float64
	Side   string
}

// QualityStats summarizes recent market activity for the quality gate
type QualityStats struct {
	TradeCount    int
	UniqueTraders int
	TwoSided      bool
	Volume        float64
}

// Candidate is one accepted alert, tagged by Type. The shared fields are
// always set; the type-specific blocks are populated per variant.
type Candidate struct {
	Type           string
	Market         *gammaapi.Market
	MarketURL      string
	MarketCategory string
	IsSportsMarket bool
	Timestamp      time.Time

	// whale_bet
	Whale                 *WhaleInfo
	Amount                float64
	Side                  string
	SideLabel             string
	SameSideWhales        int
	SameSideOtherWhales   int
	SameSideNotional      float64
	IsNewTrader           bool
	MarketPositionSizeUSD *float64
	OddsBefore            float64
	OddsAfter             float64
	NetPosition1h         float64
	MarketNetInflow1h     float64
	MarketNetInflow24h    float64
	MarketAvgYes1h        *float64
	MarketAvgYes24h       *float64
	OddsMove1h            *float64
	OddsMove24h           *float64
	OddsMovePct1h         *float64
	OddsMovePct24h        *float64
	MarketQuality         *QualityStats
	MarketTargetScore     float64
	AdaptiveThreshold     float64
	EffectiveThreshold    float64
	MarketLiveTradeCount  int

	// smart_money
	Traders       []SmartTrader
	TotalAmount   float64
	ConsensusSide string

	// volume_spike
	Volume24h     float64
	Volume1h      float64
	SpikeRatio    float64
	NotableTrades []NotableTrade
}

func nickname(address string) string {
	if len(address) > 8 {
		return address[:8] + "..."
	}
	return address
}

// classifyTrader labels a wallet by category concentration across its
// recent trades.
func classifyTrader(trades []dataapi.Trade) (label string, markets int) {
	if len(trades) == 0 {
		return "unknown", 0
	}

	marketTitles := make(map[string]struct{})
	categoryCounts := make(map[string]int)

	for _, t := range trades {
		title := strings.ToLower(t.MarketTitle)
		key := t.Market
		if key == "" {
			key = title
		}
		marketTitles[key] = struct{}{}
		for _, cat := range []string{"sports", "crypto", "stocks", "politics"} {
			matched := false
			for _, kw := range categoryKeywords[cat] {
				if strings.Contains(title, kw) {
					categoryCounts[cat]++
					matched = true
					break
				}
			}
			if matched {
				break
			}
		}
	}

	total := 0
	topCat := ""
	topCount := 0
	for _, cat := range []string{"sports", "crypto", "stocks", "politics"} {
		n := categoryCounts[cat]
		total += n
		if n > topCount {
			topCat, topCount = cat, n
		}
	}
	distinct := len(marketTitles)

	if total == 0 {
		return "generalist", distinct
	}
	if float64(topCount)/float64(total) >= 0.6 && distinct >= 3 {
		return topCat + " specialist", distinct
	}
	if distinct >= 4 {
		return "event-driven", distinct
	}
	return "generalist", distinct
}
