package detector

import (
	"math"
	"testing"

	"github.com/shnfxl/polymarket-whale-tracker/internal/polymarket/gammaapi"
)

func floatPtr(v float64) *float64 { return &v }

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestPercentile(t *testing.T) {
	tests := []struct {
		name     string
		values   []float64
		q        float64
		expected *float64
	}{
		{
			name:     "empty sample returns nil",
			values:   nil,
			q:        0.9,
			expected: nil,
		},
		{
			name:     "single element returns itself for any quantile",
			values:   []float64{42},
			q:        0.9,
			expected: floatPtr(42),
		},
		{
			name:     "single element at zero quantile",
			values:   []float64{42},
			q:        0,
			expected: floatPtr(42),
		},
		{
			name:     "median interpolates between middle ranks",
			values:   []float64{10, 20, 30, 40},
			q:        0.5,
			expected: floatPtr(25),
		},
		{
			name:     "interpolated high percentile",
			values:   []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
			q:        0.9,
			expected: floatPtr(9.1),
		},
		{
			name:     "unsorted input is sorted first",
			values:   []float64{40, 10, 30, 20},
			q:        0.5,
			expected: floatPtr(25),
		},
		{
			name:     "quantile above one clamps to max",
			values:   []float64{5, 10, 15},
			q:        1.5,
			expected: floatPtr(15),
		},
		{
			name:     "negative quantile clamps to min",
			values:   []float64{5, 10, 15},
			q:        -0.3,
			expected: floatPtr(5),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Percentile(tt.values, tt.q)
			if tt.expected == nil {
				if got != nil {
					t.Fatalf("expected nil, got %v", *got)
				}
				return
			}
			if got == nil {
				t.Fatalf("expected %v, got nil", *tt.expected)
			}
			if !almostEqual(*got, *tt.expected) {
				t.Errorf("expected %v, got %v", *tt.expected, *got)
			}
		})
	}
}

func TestPercentileMonotonic(t *testing.T) {
	values := []float64{120, 5, 800, 42, 9000, 3, 67, 310}
	prev := math.Inf(-1)
	for q := 0.0; q <= 1.0; q += 0.05 {
		got := Percentile(values, q)
		if got == nil {
			t.Fatalf("unexpected nil at q=%v", q)
		}
		if *got < prev {
			t.Fatalf("percentile not monotonic: q=%v gave %v after %v", q, *got, prev)
		}
		prev = *got
	}
}

func TestAdaptiveThreshold(t *testing.T) {
	cfg := testConfig()
	cfg.AdaptiveMinSamples = 3
	cfg.AdaptivePercentile = 0.5
	d := newTestDetector(cfg, &fakeData{}, &fakeMarkets{})

	t.Run("market sample preferred over global", func(t *testing.T) {
		got := d.adaptiveThreshold([]float64{20000, 30000, 40000}, floatPtr(15000))
		if !almostEqual(got, 30000) {
			t.Errorf("expected market percentile 30000, got %v", got)
		}
	})

	t.Run("small market sample falls back to global", func(t *testing.T) {
		got := d.adaptiveThreshold([]float64{20000, 30000}, floatPtr(25000))
		if !almostEqual(got, 25000) {
			t.Errorf("expected global 25000, got %v", got)
		}
	})

	t.Run("no sample falls back to static minimum", func(t *testing.T) {
		got := d.adaptiveThreshold(nil, nil)
		if !almostEqual(got, cfg.MinWhaleBetUSD) {
			t.Errorf("expected static %v, got %v", cfg.MinWhaleBetUSD, got)
		}
	})

	t.Run("result clamped to floor", func(t *testing.T) {
		got := d.adaptiveThreshold([]float64{100, 200, 300}, nil)
		if !almostEqual(got, cfg.AdaptiveFloorUSD) {
			t.Errorf("expected floor %v, got %v", cfg.AdaptiveFloorUSD, got)
		}
	})

	t.Run("result clamped to cap", func(t *testing.T) {
		got := d.adaptiveThreshold([]float64{80000, 90000, 100000}, nil)
		if !almostEqual(got, cfg.AdaptiveCapUSD) {
			t.Errorf("expected cap %v, got %v", cfg.AdaptiveCapUSD, got)
		}
	})

	t.Run("disabled engine ignores market sample", func(t *testing.T) {
		disabled := testConfig()
		disabled.AdaptiveThresholdEnabled = false
		dd := newTestDetector(disabled, &fakeData{}, &fakeMarkets{})
		got := dd.adaptiveThreshold([]float64{20000, 30000, 40000}, nil)
		if !almostEqual(got, disabled.MinWhaleBetUSD) {
			t.Errorf("expected static %v, got %v", disabled.MinWhaleBetUSD, got)
		}
	})
}

func TestEffectiveThreshold(t *testing.T) {
	cfg := testConfig()
	d := newTestDetector(cfg, &fakeData{}, &fakeMarkets{})

	sports := &gammaapi.Market{Title: "Will the Lakers win the NBA finals?"}
	got := d.effectiveThreshold(sports, 20000)
	if !almostEqual(got, 20000*cfg.SportsThresholdMultiplier) {
		t.Errorf("expected sports multiplier applied, got %v", got)
	}

	politics := &gammaapi.Market{Title: "Will the incumbent win the election?"}
	got = d.effectiveThreshold(politics, 20000)
	if !almostEqual(got, 20000) {
		t.Errorf("expected base threshold for non-sports market, got %v", got)
	}
}

func TestMarketCategory(t *testing.T) {
	tests := []struct {
		title    string
		expected string
	}{
		{"Will BTC hit 150k this year?", "crypto"},
		{"NFL week 12 upset?", "sports"},
		{"Will the senate pass the bill?", "politics"},
		{"Tesla earnings beat estimates?", "stocks"},
		{"Will it rain in Paris tomorrow?", "other"},
	}
	for _, tt := range tests {
		m := &gammaapi.Market{Title: tt.title}
		if got := marketCategory(m); got != tt.expected {
			t.Errorf("marketCategory(%q) = %q, want %q", tt.title, got, tt.expected)
		}
	}
}

func TestMarketTargetScore(t *testing.T) {
	cfg := testConfig()
	d := newTestDetector(cfg, &fakeData{}, &fakeMarkets{})

	m := &gammaapi.Market{
		Title:     "Will the Lakers win the NBA finals?",
		Volume24h: 500000,
		Liquidity: 100000,
	}
	// All components capped plus the category bonus.
	got := d.marketTargetScore(m, 100, 100, 100)
	want := 0.9*3.0 + 0.8*3.0 + 0.7*2.0 + 0.6*2.0 + 0.8*1.5 + 0.5
	if !almostEqual(got, want) {
		t.Errorf("expected capped score %v, got %v", want, got)
	}

	dead := &gammaapi.Market{Title: "Obscure niche question"}
	if got := d.marketTargetScore(dead, 0, 0, 0); !almostEqual(got, 0) {
		t.Errorf("expected zero score for dead market, got %v", got)
	}
}

func TestWalletTier(t *testing.T) {
	tests := []struct {
		volume   float64
		expected string
	}{
		{2_000_000, "legend"},
		{1_000_000, "pro"},
		{300_000, "pro"},
		{250_000, "semi-pro"},
		{60_000, "semi-pro"},
		{50_000, "retail"},
		{0, "retail"},
	}
	for _, tt := range tests {
		if got := walletTier(tt.volume); got != tt.expected {
			t.Errorf("walletTier(%v) = %q, want %q", tt.volume, got, tt.expected)
		}
	}
}

func TestShortDurationMarket(t *testing.T) {
	cfg := testConfig()
	d := newTestDetector(cfg, &fakeData{}, &fakeMarkets{})
	now := mustParseTime(t, "2026-01-10T12:00:00Z")

	soon := &gammaapi.Market{EndDate: "2026-01-10T14:00:00Z"}
	if !d.isShortDurationMarket(soon, now) {
		t.Error("market ending in 2h should be short duration")
	}

	far := &gammaapi.Market{EndDate: "2026-01-12T12:00:00Z"}
	if d.isShortDurationMarket(far, now) {
		t.Error("market ending in 48h should not be short duration")
	}

	unknown := &gammaapi.Market{}
	if d.isShortDurationMarket(unknown, now) {
		t.Error("market with unknown end date should pass")
	}
}
