package dataapi

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Trade sides
const (
	SideYes     = "YES"
	SideNo      = "NO"
	SideUnknown = "UNKNOWN"
)

// rawTrade is the wire shape of a Data API trade
type rawTrade struct {
	ProxyWallet     string          `json:"proxyWallet"`
	ConditionID     string          `json:"conditionId"`
	Title           string          `json:"title"`
	Size            float64         `json:"size"`
	Price           float64         `json:"price"`
	USDCSize        *float64        `json:"usdcSize"`
	Timestamp       int64           `json:"timestamp"` // Unix seconds
	Outcome         string          `json:"outcome"`
	OutcomeIndex    json.RawMessage `json:"outcomeIndex"`
	TransactionHash string          `json:"transactionHash"`
}

// Trade is a normalized trade event
type Trade struct {
	ID          string    // stable: tx hash, or wallet+timestamp
	Wallet      string    // lower-cased
	Market      string    // condition id
	MarketTitle string
	Amount      float64 // USD notional
	Price       float64
	Side        string // YES, NO, UNKNOWN
	SideLabel   string // raw outcome text for categorical markets
	Timestamp   time.Time
	TxHash      string
	Outcome     string
}

// TraderStats holds per-wallet aggregates and the derived credibility score
type TraderStats struct {
	Address         string
	TotalVolume     float64
	TradeCount      int
	AvgBet          float64
	Credibility     float64
	ClosedPositions int
	WinRate         float64
	AvgPosition     float64
	RealizedPnL     float64
	LastUpdated     time.Time
}

// FlowStats summarizes directional trade flow in a market window
type FlowStats struct {
	NetInflow   float64
	AvgYesPrice *float64
	LastYesPrice *float64
	TradeCount  int
}

// ClosedPosition is a settled position from the Data API
type ClosedPosition struct {
	RealizedPnL float64 `json:"realizedPnl"`
	TotalBought float64 `json:"totalBought"`
	Timestamp   int64   `json:"timestamp"`
}

// rawPosition is the wire shape of an open position
type rawPosition struct {
	ConditionID  string  `json:"conditionId"`
	CurrentValue float64 `json:"currentValue"`
	InitialValue float64 `json:"initialValue"`
}

// parseOutcomeIndex extracts an integer outcome index from the raw field,
// which arrives as a number, a quoted number, or garbage.
func parseOutcomeIndex(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	idx, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return idx, true
}

// resolveSide applies the side resolution rule: a parseable outcome index
// wins (0 is YES, anything else NO); otherwise exact yes/no outcome text;
// otherwise UNKNOWN. The label preserves categorical outcome text verbatim.
func resolveSide(outcomeIndex json.RawMessage, outcome string) (side, label string) {
	outcomeRaw := strings.TrimSpace(outcome)
	outcomeLower := strings.ToLower(outcomeRaw)

	if idx, ok := parseOutcomeIndex(outcomeIndex); ok {
		if idx == 0 {
			side = SideYes
		} else {
			side = SideNo
		}
	} else if outcomeLower == "yes" {
		side = SideYes
	} else if outcomeLower == "no" {
		side = SideNo
	} else {
		side = SideUnknown
	}

	label = side
	if outcomeRaw != "" {
		if outcomeLower == "yes" || outcomeLower == "no" {
			label = strings.ToUpper(outcomeLower)
		} else {
			label = outcomeRaw
		}
	}
	return side, label
}

// normalizeTrade converts a wire trade into the normalized form
func normalizeTrade(raw rawTrade) Trade {
	var amount float64
	switch {
	case raw.USDCSize != nil:
		amount = *raw.USDCSize
	case raw.Price != 0 && raw.Size != 0:
		amount = raw.Price * raw.Size
	default:
		amount = raw.Size
	}

	side, label := resolveSide(raw.OutcomeIndex, raw.Outcome)

	id := raw.TransactionHash
	if id == "" {
		id = raw.ProxyWallet + "-" + strconv.FormatInt(raw.Timestamp, 10)
	}

	return Trade{
		ID:          id,
		Wallet:      strings.ToLower(raw.ProxyWallet),
		Market:      raw.ConditionID,
		MarketTitle: raw.Title,
		Amount:      amount,
		Price:       raw.Price,
		Side:        side,
		SideLabel:   label,
		Timestamp:   time.Unix(raw.Timestamp, 0).UTC(),
		TxHash:      raw.TransactionHash,
		Outcome:     raw.Outcome,
	}
}
