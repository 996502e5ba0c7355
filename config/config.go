package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	// Environment
	IsProd bool `yaml:"is_prod"`

	// Leader discovery engine
	Engine EngineConfig `yaml:"engine"`

	// Tier thresholds
	Tiers TiersConfig `yaml:"tiers"`

	// Trade fetching
	Fetch FetchConfig `yaml:"fetch"`

	// Deduplication
	Dedup DedupConfig `yaml:"dedup"`

	// Persisted state files
	State StateConfig `yaml:"state"`

	// Polymarket API
	Polymarket PolymarketConfig `yaml:"polymarket"`

	// Downstream copy-candidate publishing
	NATS NATSConfig `yaml:"nats"`

	// Discord
	Discord DiscordConfig `yaml:"discord"`

	// Telegram
	Telegram TelegramConfig `yaml:"telegram"`

	// Signing collaborator - excluded from files (env var only)
	Signer SignerConfig `yaml:"-"`

	// Health server
	HealthServer HealthServerConfig `yaml:"health_server"`
}

// EngineConfig holds the rolling-window engine configuration.
type EngineConfig struct {
	WindowDuration  time.Duration `yaml:"window_duration"`  // Trailing window leaders are judged over (e.g., 24h)
	RefreshInterval time.Duration `yaml:"refresh_interval"` // How often a full fetch+classify cycle runs
	CandidateWindow time.Duration `yaml:"candidate_window"` // Max age of a leader trade to still be copyable
	CopyFactor      float64       `yaml:"copy_factor"`      // Fraction of the leader's size to paper-copy
	TopK            int           `yaml:"top_k"`            // Max leaders kept in a report
	SampleCap       int           `yaml:"sample_cap"`       // Recent trades kept per wallet in stats
	UseWebSocket    bool          `yaml:"use_websocket"`    // If true, run the push feed alongside polling
}

// TiersConfig holds the whale and qualified-trader thresholds. Whale
// thresholds must be at least the qualified ones; see Validate.
type TiersConfig struct {
	WhaleMinVolume      float64  `yaml:"whale_min_volume"`
	WhaleMinTrades      int      `yaml:"whale_min_trades"`
	WhaleMinMarkets     int      `yaml:"whale_min_markets"`
	QualifiedMinVolume  float64  `yaml:"qualified_min_volume"`
	QualifiedMinTrades  int      `yaml:"qualified_min_trades"`
	QualifiedMinMarkets int      `yaml:"qualified_min_markets"`
	Categories          []string `yaml:"categories"` // Allow-list gating the qualified tier
}

// FetchConfig holds paginated trade fetching configuration.
type FetchConfig struct {
	PageSize     int           `yaml:"page_size"`
	MaxPages     int           `yaml:"max_pages"` // Hard ceiling, also bounds the unordered fallback scan
	PageTimeout  time.Duration `yaml:"page_timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`

	MarketRefreshInterval time.Duration `yaml:"market_refresh_interval"` // CLOB metadata refresh cadence
}

// DedupConfig holds deduplicator configuration.
type DedupConfig struct {
	Capacity int `yaml:"capacity"` // Must comfortably exceed one window's trade volume
}

// StateConfig holds the persisted state file layout. Each file has exactly
// one writer and is safe to delete between runs.
type StateConfig struct {
	Dir                string        `yaml:"dir"`
	WindowFileName     string        `yaml:"window_file_name"`
	ReportFileName     string        `yaml:"report_file_name"`
	WatermarkFileName  string        `yaml:"watermark_file_name"`
	CandidatesFileName string        `yaml:"candidates_file_name"`
	SaveInterval       time.Duration `yaml:"save_interval"` // Streaming-mode snapshot cadence
}

// PolymarketConfig holds Polymarket API configuration.
type PolymarketConfig struct {
	DataAPIURL string `yaml:"data_api_url"`
	ClobAPIURL string `yaml:"clob_api_url"`
	RTDSWSURL  string `yaml:"rtds_ws_url"`
}

// NATSConfig holds copy-candidate publishing configuration. Publishing is
// disabled when URL is empty.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// DiscordConfig holds Discord-related configuration.
type DiscordConfig struct {
	BotToken      string `yaml:"-"` // Excluded - env var only
	ProdChannelID string `yaml:"prod_channel_id"`
	BetaChannelID string `yaml:"beta_channel_id"`
}

// TelegramConfig holds Telegram-related configuration.
type TelegramConfig struct {
	BotToken   string `yaml:"-"` // Excluded - env var only
	ProdChatID string `yaml:"prod_chat_id"`
	BetaChatID string `yaml:"beta_chat_id"`
}

// SignerConfig holds the signing key configuration. The engine only needs
// the derived address, to exclude its own wallet from leader lists.
type SignerConfig struct {
	PrivateKeyHex string `yaml:"-"` // Excluded - env var only
}

// HealthServerConfig holds health check server configuration.
type HealthServerConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Defaults returns a config with hardcoded default values.
func Defaults() *Config {
	return &Config{
		IsProd: false,
		Engine: EngineConfig{
			WindowDuration:  24 * time.Hour,
			RefreshInterval: 15 * time.Minute,
			CandidateWindow: 15 * time.Minute,
			CopyFactor:      0.25,
			TopK:            25,
			SampleCap:       10,
			UseWebSocket:    true,
		},
		Tiers: TiersConfig{
			WhaleMinVolume:      50000.0,
			WhaleMinTrades:      20,
			WhaleMinMarkets:     3,
			QualifiedMinVolume:  1000.0,
			QualifiedMinTrades:  5,
			QualifiedMinMarkets: 2,
			Categories:          []string{"Politics", "Sports", "Pop Culture", "Crypto", "Economics"},
		},
		Fetch: FetchConfig{
			PageSize:              1000,
			MaxPages:              120,
			PageTimeout:           20 * time.Second,
			MaxRetries:            3,
			RetryBackoff:          500 * time.Millisecond,
			MarketRefreshInterval: 30 * time.Minute,
		},
		Dedup: DedupConfig{
			Capacity: 50000,
		},
		State: StateConfig{
			Dir:                "state",
			WindowFileName:     "window.json",
			ReportFileName:     "report.json",
			WatermarkFileName:  "watermarks.json",
			CandidatesFileName: "candidates.json",
			SaveInterval:       1 * time.Minute,
		},
		Polymarket: PolymarketConfig{
			DataAPIURL: "https://data-api.polymarket.com",
			ClobAPIURL: "https://clob.polymarket.com",
			RTDSWSURL:  "wss://ws-live-data.polymarket.com",
		},
		NATS: NATSConfig{
			Subject: "polyleader.candidates",
		},
		HealthServer: HealthServerConfig{
			Enabled: true,
			Port:    8080,
		},
	}
}

// Load loads configuration from environment variables with defaults. If
// CONFIG_FILE points at a YAML file it is applied on top of the defaults
// first; individual env vars still win.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// mergeFile overlays a YAML config file onto the receiver.
func (c *Config) mergeFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, c)
}

func (c *Config) applyEnv() {
	c.IsProd = c.IsProd || envBool("STAGE", "PROD")

	c.Engine.WindowDuration = envDuration("WINDOW_DURATION", c.Engine.WindowDuration)
	c.Engine.RefreshInterval = envDuration("REFRESH_INTERVAL", c.Engine.RefreshInterval)
	c.Engine.CandidateWindow = envDuration("CANDIDATE_WINDOW", c.Engine.CandidateWindow)
	c.Engine.CopyFactor = envFloat("COPY_FACTOR", c.Engine.CopyFactor)
	c.Engine.TopK = envInt("LEADER_TOP_K", c.Engine.TopK)
	c.Engine.SampleCap = envInt("LEADER_SAMPLE_CAP", c.Engine.SampleCap)
	c.Engine.UseWebSocket = envBoolDefault("USE_WEBSOCKET", c.Engine.UseWebSocket)

	c.Tiers.WhaleMinVolume = envFloat("WHALE_MIN_VOLUME", c.Tiers.WhaleMinVolume)
	c.Tiers.WhaleMinTrades = envInt("WHALE_MIN_TRADES", c.Tiers.WhaleMinTrades)
	c.Tiers.WhaleMinMarkets = envInt("WHALE_MIN_MARKETS", c.Tiers.WhaleMinMarkets)
	c.Tiers.QualifiedMinVolume = envFloat("QUALIFIED_MIN_VOLUME", c.Tiers.QualifiedMinVolume)
	c.Tiers.QualifiedMinTrades = envInt("QUALIFIED_MIN_TRADES", c.Tiers.QualifiedMinTrades)
	c.Tiers.QualifiedMinMarkets = envInt("QUALIFIED_MIN_MARKETS", c.Tiers.QualifiedMinMarkets)
	if cats := envStringSlice("CATEGORY_ALLOWLIST"); cats != nil {
		c.Tiers.Categories = cats
	}

	c.Fetch.PageSize = envInt("FETCH_PAGE_SIZE", c.Fetch.PageSize)
	c.Fetch.MaxPages = envInt("FETCH_MAX_PAGES", c.Fetch.MaxPages)
	c.Fetch.PageTimeout = envDuration("FETCH_PAGE_TIMEOUT", c.Fetch.PageTimeout)
	c.Fetch.MaxRetries = envInt("FETCH_MAX_RETRIES", c.Fetch.MaxRetries)
	c.Fetch.RetryBackoff = envDuration("FETCH_RETRY_BACKOFF", c.Fetch.RetryBackoff)
	c.Fetch.MarketRefreshInterval = envDuration("MARKET_REFRESH_INTERVAL", c.Fetch.MarketRefreshInterval)

	c.Dedup.Capacity = envInt("DEDUP_CAPACITY", c.Dedup.Capacity)

	c.State.Dir = envString("STATE_DIR", c.State.Dir)
	c.State.WindowFileName = envString("WINDOW_FILE_NAME", c.State.WindowFileName)
	c.State.ReportFileName = envString("REPORT_FILE_NAME", c.State.ReportFileName)
	c.State.WatermarkFileName = envString("WATERMARK_FILE_NAME", c.State.WatermarkFileName)
	c.State.CandidatesFileName = envString("CANDIDATES_FILE_NAME", c.State.CandidatesFileName)
	c.State.SaveInterval = envDuration("STATE_SAVE_INTERVAL", c.State.SaveInterval)

	c.Polymarket.DataAPIURL = envString("POLYMARKET_DATA_API_URL", c.Polymarket.DataAPIURL)
	c.Polymarket.ClobAPIURL = envString("POLYMARKET_CLOB_API_URL", c.Polymarket.ClobAPIURL)
	c.Polymarket.RTDSWSURL = envString("POLYMARKET_RTDS_WS_URL", c.Polymarket.RTDSWSURL)

	c.NATS.URL = envString("NATS_URL", c.NATS.URL)
	c.NATS.Subject = envString("NATS_SUBJECT", c.NATS.Subject)

	c.Discord.BotToken = envString("DISCORD_BOT_TOKEN", "")
	c.Discord.ProdChannelID = envString("DISCORD_PROD_CHANNEL_ID", c.Discord.ProdChannelID)
	c.Discord.BetaChannelID = envString("DISCORD_BETA_CHANNEL_ID", c.Discord.BetaChannelID)

	c.Telegram.BotToken = envString("TELEGRAM_BOT_KEY", "")
	c.Telegram.ProdChatID = envString("TELEGRAM_PROD_CHAT_ID", c.Telegram.ProdChatID)
	c.Telegram.BetaChatID = envString("TELEGRAM_BETA_CHAT_ID", c.Telegram.BetaChatID)

	c.Signer.PrivateKeyHex = envString("SIGNER_PRIVATE_KEY", "")

	c.HealthServer.Enabled = envBoolDefault("HEALTH_SERVER_ENABLED", c.HealthServer.Enabled)
	c.HealthServer.Port = envInt("HEALTH_SERVER_PORT", c.HealthServer.Port)
}

// Helper functions for parsing environment variables

func envString(key, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func envBool(key, trueValue string) bool {
	return strings.EqualFold(strings.TrimSpace(os.Getenv(key)), trueValue)
}

func envBoolDefault(key string, defaultVal bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	return strings.EqualFold(v, "true") || strings.EqualFold(v, "1") || strings.EqualFold(v, "yes")
}

func envStringSlice(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	parts := strings.Split(val, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
