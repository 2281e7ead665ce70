package gammaapi

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNormalizeMarketFlexibleFields(t *testing.T) {
	t.Run("quoted numerics and encoded lists", func(t *testing.T) {
		raw := rawMarket{
			ID:              "12345",
			ConditionID:     "0xcond",
			Question:        "Will it happen?",
			Slug:            "will-it-happen",
			Liquidity:       json.RawMessage(`"150000.5"`),
			Volume24hr:      json.RawMessage(`"980000"`),
			Outcomes:        json.RawMessage(`"[\"Yes\",\"No\"]"`),
			OutcomePrices:   json.RawMessage(`"[\"0.71\",\"0.29\"]"`),
			OutcomeTokenIDs: json.RawMessage(`"[\"111\",\"222\"]"`),
		}
		m := normalizeMarket(raw)

		if m.ID != "0xcond" {
			t.Errorf("ID = %q, want condition id preferred", m.ID)
		}
		if m.Liquidity != 150000.5 {
			t.Errorf("Liquidity = %v", m.Liquidity)
		}
		if m.Volume24h != 980000 {
			t.Errorf("Volume24h = %v, want volume24hr fallback", m.Volume24h)
		}
		if len(m.OutcomePrices) != 2 || m.OutcomePrices[0] != 0.71 {
			t.Errorf("OutcomePrices = %v", m.OutcomePrices)
		}
		if len(m.OutcomeTokenIDs) != 2 || m.OutcomeTokenIDs[1] != "222" {
			t.Errorf("OutcomeTokenIDs = %v", m.OutcomeTokenIDs)
		}
	})

	t.Run("plain numerics and direct arrays", func(t *testing.T) {
		raw := rawMarket{
			ID:            "12345",
			Question:      "Q",
			Liquidity:     json.RawMessage(`42000`),
			Volume24h:     json.RawMessage(`100000`),
			OutcomePrices: json.RawMessage(`[0.4, 0.6]`),
		}
		m := normalizeMarket(raw)

		if m.ID != "12345" {
			t.Errorf("ID = %q, want gamma id fallback", m.ID)
		}
		if m.Liquidity != 42000 || m.Volume24h != 100000 {
			t.Errorf("depth = %v/%v", m.Liquidity, m.Volume24h)
		}
		if len(m.OutcomePrices) != 2 || m.OutcomePrices[1] != 0.6 {
			t.Errorf("OutcomePrices = %v", m.OutcomePrices)
		}
	})

	t.Run("garbage degrades to zero values", func(t *testing.T) {
		raw := rawMarket{
			ID:            "1",
			Liquidity:     json.RawMessage(`"n/a"`),
			OutcomePrices: json.RawMessage(`"not json"`),
		}
		m := normalizeMarket(raw)
		if m.Liquidity != 0 {
			t.Errorf("Liquidity = %v, want 0", m.Liquidity)
		}
		if m.OutcomePrices != nil {
			t.Errorf("OutcomePrices = %v, want nil", m.OutcomePrices)
		}
	})
}

func TestMarketAccessors(t *testing.T) {
	m := &Market{
		Slug:            "some-market",
		OutcomePrices:   []float64{0.71, 0.29},
		OutcomeTokenIDs: []string{"111", "222"},
	}

	if p := m.OutcomePrice("YES"); p == nil || *p != 0.71 {
		t.Errorf("OutcomePrice(YES) = %v", p)
	}
	if p := m.OutcomePrice("NO"); p == nil || *p != 0.29 {
		t.Errorf("OutcomePrice(NO) = %v", p)
	}
	if p := (&Market{}).OutcomePrice("YES"); p != nil {
		t.Errorf("expected nil price without a price list, got %v", *p)
	}

	if id := m.TokenID("YES"); id != "111" {
		t.Errorf("TokenID(YES) = %q", id)
	}
	if id := m.TokenID("NO"); id != "222" {
		t.Errorf("TokenID(NO) = %q", id)
	}

	if url := m.URL(); url != "https://polymarket.com/market/some-market" {
		t.Errorf("URL() = %q", url)
	}
	if url := (&Market{}).URL(); url != "" {
		t.Errorf("expected empty URL without slug, got %q", url)
	}
}

func TestHoursRemaining(t *testing.T) {
	now, _ := time.Parse(time.RFC3339, "2026-01-10T12:00:00Z")

	m := &Market{EndDate: "2026-01-11T12:00:00Z"}
	h := m.HoursRemaining(now)
	if h == nil || *h != 24 {
		t.Errorf("HoursRemaining = %v, want 24", h)
	}

	if h := (&Market{}).HoursRemaining(now); h != nil {
		t.Errorf("expected nil for unknown end date, got %v", *h)
	}
	if h := (&Market{EndDate: "not-a-date"}).HoursRemaining(now); h != nil {
		t.Errorf("expected nil for malformed end date, got %v", *h)
	}
}
