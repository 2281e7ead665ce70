package gammaapi

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Market is a normalized Gamma API market
type Market struct {
	ID              string
	ConditionID     string
	Title           string
	Slug            string
	Liquidity       float64
	Volume24h       float64
	EndDate         string
	Image           string
	Outcomes        []string
	OutcomePrices   []float64
	OutcomeTokenIDs []string
}

// rawMarket is the wire shape; numeric and list fields arrive as numbers,
// strings, or JSON-encoded strings depending on endpoint vintage.
type rawMarket struct {
	ID              string          `json:"id"`
	ConditionID     string          `json:"conditionId"`
	Question        string          `json:"question"`
	Slug            string          `json:"slug"`
	Liquidity       json.RawMessage `json:"liquidity"`
	Volume24h       json.RawMessage `json:"volume24h"`
	Volume24hr      json.RawMessage `json:"volume24hr"`
	EndDate         string          `json:"endDate"`
	Image           string          `json:"image"`
	Outcomes        json.RawMessage `json:"outcomes"`
	OutcomePrices   json.RawMessage `json:"outcomePrices"`
	OutcomeTokenIDs json.RawMessage `json:"clobTokenIds"`
}

// OutcomePrice returns the cached outcome price for YES/NO, or nil when the
// market has no usable price list.
func (m *Market) OutcomePrice(side string) *float64 {
	if len(m.OutcomePrices) < 2 {
		return nil
	}
	idx := 0
	if side != "YES" {
		idx = 1
	}
	p := m.OutcomePrices[idx]
	return &p
}

// TokenID returns the outcome token id for YES/NO, or empty when unknown.
func (m *Market) TokenID(side string) string {
	if len(m.OutcomeTokenIDs) < 2 {
		return ""
	}
	if side == "YES" {
		return m.OutcomeTokenIDs[0]
	}
	return m.OutcomeTokenIDs[1]
}

// URL returns the public market page, or empty when the slug is unknown.
func (m *Market) URL() string {
	if m.Slug == "" {
		return ""
	}
	return "https://polymarket.com/market/" + m.Slug
}

// HoursRemaining returns hours until the market ends, or nil when unknown.
func (m *Market) HoursRemaining(now time.Time) *float64 {
	if m.EndDate == "" {
		return nil
	}
	end, err := time.Parse(time.RFC3339, m.EndDate)
	if err != nil {
		return nil
	}
	hours := end.Sub(now).Hours()
	return &hours
}

func normalizeMarket(raw rawMarket) Market {
	id := raw.ConditionID
	if id == "" {
		id = raw.ID
	}
	volume := parseFlexFloat(raw.Volume24h)
	if volume == 0 {
		volume = parseFlexFloat(raw.Volume24hr)
	}
	return Market{
		ID:              id,
		ConditionID:     raw.ConditionID,
		Title:           raw.Question,
		Slug:            raw.Slug,
		Liquidity:       parseFlexFloat(raw.Liquidity),
		Volume24h:       volume,
		EndDate:         raw.EndDate,
		Image:           raw.Image,
		Outcomes:        parseFlexStrings(raw.Outcomes),
		OutcomePrices:   parseFlexFloats(raw.OutcomePrices),
		OutcomeTokenIDs: parseFlexStrings(raw.OutcomeTokenIDs),
	}
}

// parseFlexFloat accepts a JSON number or a quoted numeric string.
func parseFlexFloat(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// parseFlexStrings accepts a JSON string array or a JSON-encoded string
// containing one ("[\"Yes\",\"No\"]").
func parseFlexStrings(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var direct []string
	if err := json.Unmarshal(raw, &direct); err == nil {
		return direct
	}
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		var nested []string
		if err := json.Unmarshal([]byte(encoded), &nested); err == nil {
			return nested
		}
	}
	return nil
}

func parseFlexFloats(raw json.RawMessage) []float64 {
	strs := parseFlexStrings(raw)
	if strs == nil {
		var direct []float64
		if err := json.Unmarshal(raw, &direct); err == nil {
			return direct
		}
		return nil
	}
	out := make([]float64, 0, len(strs))
	for _, s := range strs {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		out = append(out, f)
	}
	return out
}
