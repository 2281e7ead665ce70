package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shnfxl/polymarket-whale-tracker/internal/secrets"
)

// AuthMode represents the authentication mode for the Data API
type AuthMode string

const (
	AuthModeNone   AuthMode = "none"
	AuthModeBearer AuthMode = "bearer"
	AuthModeAPIKey AuthMode = "api_key"
)

// Config holds all application configuration. It is built once at startup
// and nothing mutates it after Load returns.
type Config struct {
	// Environment
	Environment string

	// API endpoints
	DataAPIBaseURL     string
	GammaAPIBaseURL    string
	CLOBAPIBaseURL     string
	DataAPIAuthMode    AuthMode
	DataAPIBearerToken string
	DataAPIAPIKey      string

	// HTTP behaviour
	APITimeout         time.Duration
	APIRetries         int
	TradePageSize      int
	TradeMaxPages      int
	APIConcurrency     int
	DataAPITradesRPS   float64
	DataAPIUserRPS     float64
	GammaAPIMarketsRPS float64

	// Lookback windows
	WhaleLookbackMinutes         int
	SmartLookbackMinutes         int
	VolumeNotableLookbackMinutes int
	MarketQualityLookbackMinutes int
	SmartWindowMinutes           int
	SmartWindowDays              int

	// Market scanning
	MarketLimit           int
	VolumeMarketScanLimit int
	MarketSortBy          string
	MarketCategories      []string

	// Whale thresholds
	MinWhaleBetUSD          float64
	MinMarketVolume24h      float64
	MinLiquidityUSD         float64
	HardMinLiquidityUSD     float64
	HardMinVolume24hUSD     float64
	RelWhaleVolumePct       float64
	RelWhaleLiquidityPct    float64
	LowLiquidityWhaleLiqPct float64
	LowLiquidityWhaleVolPct float64

	// Adaptive threshold engine
	AdaptiveThresholdEnabled bool
	AdaptivePercentile       float64
	AdaptiveMinSamples       int
	AdaptiveFloorUSD         float64
	AdaptiveCapUSD           float64

	// Market filters
	MinPriceBand                  float64
	MaxPriceBand                  float64
	MinMarketDurationHours        int
	SportsThresholdMultiplier     float64
	ExcludeSportsMarkets          bool
	RequirePopularCategory        bool
	HighSignalVolumeMultiplier    float64
	HighSignalLiquidityMultiplier float64
	MinMarketTargetScore          float64
	MarketTargetOverrideMult      float64
	MinMarketQualityTrades        int
	MinMarketQualityUniqueTraders int
	RequireTwoSidedQuality        bool

	// Flow and impact gates
	FlowGateNetPositionUSD  float64
	FlowGateMarketInflowUSD float64
	FlowGateClusterMin      int
	AllowSparseFlowBypass   bool
	SparseFlowMinTrades     int
	ImpactGateMinAbs        float64
	ImpactGateMinPct        float64

	// Smart money thresholds
	MinSmartTraders         int
	MinSmartTraderBetUSD    float64
	MinConsensusTotalUSD    float64
	SmartMinClosedPositions int
	SmartMinAvgPositionUSD  float64
	SmartMinRealizedPnLUSD  float64

	// Volume spikes
	MinVolumeSpike1hUSD      float64
	MinVolumeSpikeMultiplier float64

	// Pipeline caps
	MaxWhaleEnrichTrades int
	MaxCandidatesPerType int

	// Gate disable switches
	DisableMarketGates bool
	DisableClusterGate bool
	DisableWalletGate  bool
	DisableTrendGate   bool
	DisableImpactGate  bool

	// Dedup store
	ProcessedTradesMax    int
	ProcessedTradesTrimTo int
	StateFilePath         string

	// Caching
	TraderStatsCacheTTL time.Duration

	// Polling
	PollInterval time.Duration

	// Alerts
	AlertMode        string // comma-separated: log, telegram
	TelegramBotToken string
	TelegramChatID   string

	// Optional alert archive
	DatabaseDSN         string
	DatabaseMaxConns    int
	DatabaseMaxIdleTime time.Duration

	// Health + metrics HTTP server
	HTTPPort int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "production"),

		DataAPIBaseURL:     getEnvAlias([]string{"POLYMARKET_DATA_API", "POLY_DATA_API"}, "https://data-api.polymarket.com"),
		GammaAPIBaseURL:    getEnvAlias([]string{"POLYMARKET_GAMMA_API", "POLY_GAMMA_API"}, "https://gamma-api.polymarket.com"),
		CLOBAPIBaseURL:     getEnv("POLYMARKET_CLOB_API", "https://clob.polymarket.com"),
		DataAPIAuthMode:    AuthMode(getEnv("DATA_API_AUTH_MODE", "none")),
		DataAPIBearerToken: secrets.GetOptionalSecret("DATA_API_BEARER_TOKEN", ""),
		DataAPIAPIKey:      secrets.GetOptionalSecret("DATA_API_API_KEY", ""),

		APITimeout:         time.Duration(getEnvInt("API_TIMEOUT_SECONDS", 45)) * time.Second,
		APIRetries:         getEnvInt("API_RETRIES", 2),
		TradePageSize:      getEnvInt("TRADE_PAGE_SIZE", 200),
		TradeMaxPages:      getEnvInt("TRADE_MAX_PAGES", 8),
		APIConcurrency:     getEnvInt("API_CONCURRENCY_LIMIT", 8),
		DataAPITradesRPS:   getEnvFloat("DATA_API_TRADES_RPS", 2.0),
		DataAPIUserRPS:     getEnvFloat("DATA_API_USER_RPS", 1.0),
		GammaAPIMarketsRPS: getEnvFloat("GAMMA_API_MARKETS_RPS", 5.0),

		WhaleLookbackMinutes:         getEnvInt("WHALE_LOOKBACK_MINUTES", 5),
		SmartLookbackMinutes:         getEnvInt("SMART_LOOKBACK_MINUTES", 30),
		VolumeNotableLookbackMinutes: getEnvInt("VOLUME_NOTABLE_LOOKBACK_MINUTES", 60),
		MarketQualityLookbackMinutes: getEnvInt("MARKET_QUALITY_LOOKBACK_MINUTES", 60),
		SmartWindowMinutes:           getEnvInt("SMART_WINDOW_MINUTES", 15),
		SmartWindowDays:              getEnvInt("SMART_WINDOW_DAYS", 30),

		MarketLimit:           getEnvInt("MARKET_LIMIT", 300),
		VolumeMarketScanLimit: getEnvInt("VOLUME_MARKET_SCAN_LIMIT", 120),
		MarketSortBy:          strings.ToLower(getEnv("MARKET_SORT_BY", "volume")),
		MarketCategories:      parseCSV(strings.ToLower(getEnv("MARKET_CATEGORIES", ""))),

		MinWhaleBetUSD:          getEnvFloatAlias([]string{"MIN_WHALE_BET_USD", "MIN_WHALE_USD"}, 20000),
		MinMarketVolume24h:      getEnvFloat("MIN_MARKET_VOLUME_24H", 50000),
		MinLiquidityUSD:         getEnvFloat("MIN_LIQUIDITY_USD", 10000),
		HardMinLiquidityUSD:     getEnvFloat("HARD_MIN_LIQUIDITY_USD", 20000),
		HardMinVolume24hUSD:     getEnvFloat("HARD_MIN_VOLUME_24H_USD", 10000),
		RelWhaleVolumePct:       getEnvFloat("REL_WHALE_VOLUME_PCT", 0.02),
		RelWhaleLiquidityPct:    getEnvFloat("REL_WHALE_LIQUIDITY_PCT", 0.03),
		LowLiquidityWhaleLiqPct: getEnvFloat("LOW_LIQUIDITY_WHALE_LIQ_PCT", 0.10),
		LowLiquidityWhaleVolPct: getEnvFloat("LOW_LIQUIDITY_WHALE_VOL_PCT", 0.05),

		AdaptiveThresholdEnabled: getEnvBool("ADAPTIVE_WHALE_THRESHOLD_ENABLED", true),
		AdaptivePercentile:       getEnvFloat("ADAPTIVE_WHALE_PERCENTILE", 0.90),
		AdaptiveMinSamples:       getEnvInt("ADAPTIVE_WHALE_MIN_SAMPLES", 12),
		AdaptiveFloorUSD:         getEnvFloat("ADAPTIVE_WHALE_FLOOR_USD", 12000),
		AdaptiveCapUSD:           getEnvFloat("ADAPTIVE_WHALE_CAP_USD", 50000),

		MinPriceBand:                  getEnvFloat("MIN_PRICE_BAND", 0.08),
		MaxPriceBand:                  getEnvFloat("MAX_PRICE_BAND", 0.92),
		MinMarketDurationHours:        getEnvInt("MIN_MARKET_DURATION_HOURS", 8),
		SportsThresholdMultiplier:     getEnvFloat("SPORTS_THRESHOLD_MULTIPLIER", 1.35),
		ExcludeSportsMarkets:          getEnvBool("EXCLUDE_SPORTS_MARKETS", false),
		RequirePopularCategory:        getEnvBool("REQUIRE_POPULAR_CATEGORY", false),
		HighSignalVolumeMultiplier:    getEnvFloat("HIGH_SIGNAL_MARKET_VOLUME_MULTIPLIER", 2.0),
		HighSignalLiquidityMultiplier: getEnvFloat("HIGH_SIGNAL_MARKET_LIQUIDITY_MULTIPLIER", 2.0),
		MinMarketTargetScore:          getEnvFloat("MIN_MARKET_TARGET_SCORE", 1.6),
		MarketTargetOverrideMult:      getEnvFloat("MARKET_TARGET_OVERRIDE_MULTIPLIER", 1.7),
		MinMarketQualityTrades:        getEnvInt("MIN_MARKET_QUALITY_TRADES", 2),
		MinMarketQualityUniqueTraders: getEnvInt("MIN_MARKET_QUALITY_UNIQUE_TRADERS", 1),
		RequireTwoSidedQuality:        getEnvBool("REQUIRE_TWO_SIDED_QUALITY", false),

		FlowGateNetPositionUSD:  getEnvFloat("FLOW_GATE_NET_POSITION_USD", 10000),
		FlowGateMarketInflowUSD: getEnvFloat("FLOW_GATE_MARKET_INFLOW_USD", 10000),
		FlowGateClusterMin:      getEnvInt("FLOW_GATE_CLUSTER_MIN", 3),
		AllowSparseFlowBypass:   getEnvBool("ALLOW_SPARSE_FLOW_BYPASS", true),
		SparseFlowMinTrades:     getEnvInt("SPARSE_FLOW_MIN_TRADES", 3),
		ImpactGateMinAbs:        getEnvFloat("IMPACT_GATE_MIN_ABS", 0.003),
		ImpactGateMinPct:        getEnvFloat("IMPACT_GATE_MIN_PCT", 0.008),

		MinSmartTraders:         getEnvInt("MIN_SMART_TRADERS", 1),
		MinSmartTraderBetUSD:    getEnvFloat("MIN_SMART_TRADER_BET", 100),
		MinConsensusTotalUSD:    getEnvFloat("MIN_CONSENSUS_TOTAL", 200),
		SmartMinClosedPositions: getEnvInt("SMART_MIN_CLOSED_POSITIONS", 10),
		SmartMinAvgPositionUSD:  getEnvFloat("SMART_MIN_AVG_POSITION_USD", 500),
		SmartMinRealizedPnLUSD:  getEnvFloat("SMART_MIN_REALIZED_PNL_USD", 5000),

		MinVolumeSpike1hUSD:      getEnvFloat("MIN_VOLUME_SPIKE_1H_USD", 4000),
		MinVolumeSpikeMultiplier: getEnvFloat("MIN_VOLUME_SPIKE_MULTIPLIER", 5),

		MaxWhaleEnrichTrades: getEnvInt("MAX_WHALE_ENRICH_TRADES", 20),
		MaxCandidatesPerType: getEnvInt("MAX_CANDIDATES_PER_TYPE", 5),

		DisableMarketGates: getEnvBool("DISABLE_MARKET_GATES", false),
		DisableClusterGate: getEnvBool("DISABLE_CLUSTER_GATE", false),
		DisableWalletGate:  getEnvBool("DISABLE_WALLET_GATE", false),
		DisableTrendGate:   getEnvBool("DISABLE_TREND_GATE", false),
		DisableImpactGate:  getEnvBool("DISABLE_IMPACT_GATE", false),

		ProcessedTradesMax:    getEnvInt("PROCESSED_TRADES_MAX", 10000),
		ProcessedTradesTrimTo: getEnvInt("PROCESSED_TRADES_TRIM_TO", 5000),
		StateFilePath:         getEnv("BOT_STATE_FILE", "state/processed_trades.json"),

		TraderStatsCacheTTL: time.Duration(getEnvInt("TRADER_STATS_CACHE_TTL_SECONDS", 21600)) * time.Second,

		PollInterval: time.Duration(getEnvInt("POLL_INTERVAL_SECONDS", 60)) * time.Second,

		AlertMode:        getEnv("ALERT_MODE", "log"),
		TelegramBotToken: secrets.GetOptionalSecret("TELEGRAM_BOT_TOKEN", getEnvAlias([]string{"TELEGRAM_TOKEN", "TG_BOT_TOKEN"}, "")),
		TelegramChatID:   getEnvAlias([]string{"TELEGRAM_CHAT_ID", "TELEGRAM_CHANNEL_ID"}, ""),

		DatabaseDSN:         getEnv("DATABASE_DSN", ""),
		DatabaseMaxConns:    getEnvInt("DATABASE_MAX_CONNS", 10),
		DatabaseMaxIdleTime: time.Duration(getEnvInt("DATABASE_MAX_IDLE_TIME_MINS", 5)) * time.Minute,

		HTTPPort: getEnvInt("HTTP_PORT", 8080),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	switch c.DataAPIAuthMode {
	case AuthModeNone:
		// No validation needed
	case AuthModeBearer:
		if c.DataAPIBearerToken == "" {
			return fmt.Errorf("DATA_API_BEARER_TOKEN is required when AUTH_MODE is bearer")
		}
	case AuthModeAPIKey:
		if c.DataAPIAPIKey == "" {
			return fmt.Errorf("DATA_API_API_KEY is required when AUTH_MODE is api_key")
		}
	default:
		return fmt.Errorf("invalid DATA_API_AUTH_MODE: %s (must be none, bearer, or api_key)", c.DataAPIAuthMode)
	}

	// Validate alert mode (comma-separated list)
	hasTelegram := false
	for _, mode := range strings.Split(c.AlertMode, ",") {
		switch strings.TrimSpace(mode) {
		case "log":
		case "telegram":
			hasTelegram = true
		default:
			return fmt.Errorf("invalid ALERT_MODE value: %s (valid values: log, telegram)", mode)
		}
	}
	if hasTelegram && (c.TelegramBotToken == "" || c.TelegramChatID == "") {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID are required when telegram is in ALERT_MODE")
	}

	if c.ProcessedTradesTrimTo > c.ProcessedTradesMax {
		return fmt.Errorf("PROCESSED_TRADES_TRIM_TO (%d) must not exceed PROCESSED_TRADES_MAX (%d)",
			c.ProcessedTradesTrimTo, c.ProcessedTradesMax)
	}
	if c.MinPriceBand >= c.MaxPriceBand {
		return fmt.Errorf("MIN_PRICE_BAND must be below MAX_PRICE_BAND")
	}
	if c.AdaptiveFloorUSD > c.AdaptiveCapUSD {
		return fmt.Errorf("ADAPTIVE_WHALE_FLOOR_USD must not exceed ADAPTIVE_WHALE_CAP_USD")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAlias returns the first non-empty value among the given keys.
// The first key is canonical; the rest are legacy aliases.
func getEnvAlias(keys []string, defaultValue string) string {
	for _, key := range keys {
		if value := os.Getenv(key); value != "" {
			return value
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvFloatAlias(keys []string, defaultValue float64) float64 {
	for _, key := range keys {
		if value := os.Getenv(key); value != "" {
			if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
				return floatVal
			}
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "1", "true", "yes":
			return true
		case "0", "false", "no":
			return false
		}
	}
	return defaultValue
}

func parseCSV(s string) []string {
	var result []string
	for _, item := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
