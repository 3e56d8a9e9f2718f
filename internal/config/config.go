// Package config defines the top-level configuration for the crossarb engine
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by CROSSARB_* environment variables.
type Config struct {
	Mode          string   `toml:"mode"` // live | paper | scan
	LogLevel      string   `toml:"log_level"`
	Assets        []string `toml:"assets"`
	CycleInterval Duration `toml:"cycle_interval"`

	Venues    map[string]VenueConfig `toml:"venues"`
	Qualifier QualifierConfig        `toml:"qualifier"`
	Scheduler SchedulerConfig        `toml:"scheduler"`
	Executor  ExecutorConfig         `toml:"executor"`
	Risk      RiskConfig             `toml:"risk"`
	Postgres  PostgresConfig         `toml:"postgres"`
	Redis     RedisConfig            `toml:"redis"`
	S3        S3Config               `toml:"s3"`
	Notify    NotifyConfig           `toml:"notify"`
}

// Duration lets TOML carry values like "3s" / "250ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// VenueConfig holds one exchange's endpoints, credentials, fee schedule, and
// quality tier.
type VenueConfig struct {
	BaseURL          string  `toml:"base_url"`
	WsURL            string  `toml:"ws_url"`
	APIKey           string  `toml:"api_key"`
	APISecret        string  `toml:"api_secret"`
	EncryptedKeyPath string  `toml:"encrypted_key_path"`
	KeyPassword      string  `toml:"key_password"`
	TakerFeeBps      float64 `toml:"taker_fee_bps"`
	MakerFeeBps      float64 `toml:"maker_fee_bps"`
	Tier             int     `toml:"tier"` // 1 = most trusted
	BatchQuotes      bool    `toml:"batch_quotes"`
	RateLimitPerSec  float64 `toml:"rate_limit_per_sec"`
	Stream           bool    `toml:"stream"` // subscribe to the ws ticker feed
}

// QualifierConfig gathers the admission-control knobs: spread floor, scoring
// tables, sizing, slippage, and the manual-approval threshold.
type QualifierConfig struct {
	MinNetSpreadPct      float64  `toml:"min_net_spread_pct"`
	ApprovalThresholdUSD float64  `toml:"approval_threshold_usd"`
	ResizeOnSlippage     bool     `toml:"resize_on_slippage"`
	Scoring              Scoring  `toml:"scoring"`
	Sizing               Sizing   `toml:"sizing"`
	Slippage             Slippage `toml:"slippage"`
}

// Scoring configures the 0-100 quality score. Weights must sum to 1.
type Scoring struct {
	SpreadWeight     float64 `toml:"spread_weight"`
	VenueWeight      float64 `toml:"venue_weight"`
	LiquidityWeight  float64 `toml:"liquidity_weight"`
	VolatilityWeight float64 `toml:"volatility_weight"`
	// FullScoreSpreadPct is the net spread at which the spread component
	// saturates at 100.
	FullScoreSpreadPct float64 `toml:"full_score_spread_pct"`
	// MaxVolatilityPct is the volatility at which the volatility component
	// bottoms out at 0.
	MaxVolatilityPct float64 `toml:"max_volatility_pct"`
	MinQuality       float64 `toml:"min_quality"`
	// AssetTiers maps asset → liquidity tier (1 = deepest). Unlisted assets
	// default to tier 3.
	AssetTiers map[string]int `toml:"asset_tiers"`
	// AssetVolatilityPct maps asset → recent volatility estimate. Fed by an
	// external analytics process; static here.
	AssetVolatilityPct map[string]float64 `toml:"asset_volatility_pct"`
}

// Sizing configures heuristic and Kelly position sizing.
type Sizing struct {
	BaseSizeUSD         float64 `toml:"base_size_usd"`
	ReferenceSpreadPct  float64 `toml:"reference_spread_pct"`
	MinSizeUSD          float64 `toml:"min_size_usd"`
	MaxSizeUSD          float64 `toml:"max_size_usd"`
	HighVolatilityPct   float64 `toml:"high_volatility_pct"`
	HighVolFactor       float64 `toml:"high_vol_factor"`
	KellyEnabled        bool    `toml:"kelly_enabled"`
	KellyConfidence     float64 `toml:"kelly_confidence"`
	KellyFraction       float64 `toml:"kelly_fraction"`
	MaxCapitalFraction  float64 `toml:"max_capital_fraction"`
	AvailableCapitalUSD float64 `toml:"available_capital_usd"`
}

// Slippage configures the tiered market-impact estimate.
type Slippage struct {
	// TierDepthUSD is the assumed book depth per liquidity tier (index 0 =
	// tier 1). Estimated slippage is size/depth × ImpactPct.
	TierDepthUSD [3]float64 `toml:"tier_depth_usd"`
	ImpactPct    float64    `toml:"impact_pct"`
}

// SchedulerConfig bounds the concurrent trade engine.
type SchedulerConfig struct {
	MaxConcurrent    int      `toml:"max_concurrent"`
	QueueCapacity    int      `toml:"queue_capacity"`
	MaxRetries       int      `toml:"max_retries"`
	PriorityDecay    float64  `toml:"priority_decay"`
	ExecutionTimeout Duration `toml:"execution_timeout"`
}

// ExecutorConfig controls the two-leg executor's sell-retry policy.
type ExecutorConfig struct {
	SellRetryAttempts int      `toml:"sell_retry_attempts"`
	SellRetryDelay    Duration `toml:"sell_retry_delay"`
}

// RiskConfig holds the hard safety caps. These are hot-reloadable through
// Provider; the rest of Config is fixed at startup.
type RiskConfig struct {
	DailyVolumeCapUSD    float64 `toml:"daily_volume_cap_usd"`
	DailyLossCapUSD      float64 `toml:"daily_loss_cap_usd"`
	MaxConsecutiveLosses int     `toml:"max_consecutive_losses"`
}

// PostgresConfig holds connection parameters for the results/audit database.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds object-storage parameters for the results archiver.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	RetainDays     int    `toml:"retain_days"`
}

// NotifyConfig configures alert delivery channels.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Mode) {
	case "live", "paper", "scan":
	default:
		return fmt.Errorf("config: unsupported mode %q", c.Mode)
	}
	if len(c.Assets) == 0 {
		return fmt.Errorf("config: at least one asset is required")
	}
	if len(c.Venues) < 2 {
		return fmt.Errorf("config: at least two venues are required, got %d", len(c.Venues))
	}
	if c.CycleInterval.Duration <= 0 {
		return fmt.Errorf("config: cycle_interval must be positive")
	}
	q := c.Qualifier
	if q.MinNetSpreadPct < 0 {
		return fmt.Errorf("config: min_net_spread_pct must not be negative")
	}
	wsum := q.Scoring.SpreadWeight + q.Scoring.VenueWeight + q.Scoring.LiquidityWeight + q.Scoring.VolatilityWeight
	if wsum < 0.999 || wsum > 1.001 {
		return fmt.Errorf("config: scoring weights must sum to 1, got %.3f", wsum)
	}
	if q.Sizing.MinSizeUSD <= 0 || q.Sizing.MaxSizeUSD < q.Sizing.MinSizeUSD {
		return fmt.Errorf("config: sizing bounds invalid (min=%.2f max=%.2f)", q.Sizing.MinSizeUSD, q.Sizing.MaxSizeUSD)
	}
	if q.Sizing.KellyEnabled && (q.Sizing.KellyConfidence <= 0 || q.Sizing.KellyConfidence >= 1) {
		return fmt.Errorf("config: kelly_confidence must be in (0, 1)")
	}
	s := c.Scheduler
	if s.MaxConcurrent <= 0 {
		return fmt.Errorf("config: max_concurrent must be positive")
	}
	if s.QueueCapacity <= 0 {
		return fmt.Errorf("config: queue_capacity must be positive")
	}
	if s.PriorityDecay <= 0 || s.PriorityDecay > 1 {
		return fmt.Errorf("config: priority_decay must be in (0, 1]")
	}
	if s.ExecutionTimeout.Duration <= 0 {
		return fmt.Errorf("config: execution_timeout must be positive")
	}
	if c.Executor.SellRetryAttempts <= 0 {
		return fmt.Errorf("config: sell_retry_attempts must be positive")
	}
	if c.Risk.DailyVolumeCapUSD <= 0 || c.Risk.DailyLossCapUSD <= 0 {
		return fmt.Errorf("config: risk caps must be positive")
	}
	for name, v := range c.Venues {
		if strings.ToLower(c.Mode) == "live" && v.BaseURL == "" {
			return fmt.Errorf("config: venue %s: base_url required in live mode", name)
		}
		if v.Tier < 0 || v.Tier > 3 {
			return fmt.Errorf("config: venue %s: tier must be 0-3", name)
		}
	}
	return nil
}

// Defaults returns a Config with sensible defaults for every tunable. Loaded
// files override these field by field.
func Defaults() Config {
	return Config{
		Mode:          "paper",
		LogLevel:      "info",
		CycleInterval: Duration{3 * time.Second},
		Venues:        map[string]VenueConfig{},
		Qualifier: QualifierConfig{
			MinNetSpreadPct:      0.5,
			ApprovalThresholdUSD: 500,
			ResizeOnSlippage:     true,
			Scoring: Scoring{
				SpreadWeight:       0.4,
				VenueWeight:        0.3,
				LiquidityWeight:    0.2,
				VolatilityWeight:   0.1,
				FullScoreSpreadPct: 2.0,
				MaxVolatilityPct:   10,
				MinQuality:         40,
				AssetTiers:         map[string]int{},
				AssetVolatilityPct: map[string]float64{},
			},
			Sizing: Sizing{
				BaseSizeUSD:         50,
				ReferenceSpreadPct:  1.0,
				MinSizeUSD:          25,
				MaxSizeUSD:          250,
				HighVolatilityPct:   5,
				HighVolFactor:       0.5,
				KellyEnabled:        true,
				KellyConfidence:     0.8,
				KellyFraction:       0.5,
				MaxCapitalFraction:  0.1,
				AvailableCapitalUSD: 1000,
			},
			Slippage: Slippage{
				TierDepthUSD: [3]float64{50_000, 10_000, 2_000},
				ImpactPct:    2.0,
			},
		},
		Scheduler: SchedulerConfig{
			MaxConcurrent:    5,
			QueueCapacity:    50,
			MaxRetries:       2,
			PriorityDecay:    0.8,
			ExecutionTimeout: Duration{30 * time.Second},
		},
		Executor: ExecutorConfig{
			SellRetryAttempts: 3,
			SellRetryDelay:    Duration{500 * time.Millisecond},
		},
		Risk: RiskConfig{
			DailyVolumeCapUSD:    10_000,
			DailyLossCapUSD:      500,
			MaxConsecutiveLosses: 5,
		},
		Postgres: PostgresConfig{SSLMode: "disable", PoolMaxConns: 4},
		Redis:    RedisConfig{Addr: "localhost:6379", PoolSize: 8},
		S3:       S3Config{Region: "us-east-1", RetainDays: 30},
	}
}
