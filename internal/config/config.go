package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App          AppConfig          `yaml:"app"`
	Logging      LoggingConfig      `yaml:"logging"`
	Alerting     AlertingConfig     `yaml:"alerting"`
	Chains       []ChainAssets      `yaml:"chains"`
	Window       WindowConfig       `yaml:"window"`
	Safety       SafetyConfig       `yaml:"safety"`
	Providers    ProvidersConfig    `yaml:"providers"`
	Dedupe       DedupeConfig       `yaml:"dedupe"`
	Alerts       AlertsConfig       `yaml:"alerts"`
	Housekeeping HousekeepingConfig `yaml:"housekeeping"`
	Ingest       IngestConfig       `yaml:"ingest"`
	Stores       StoresConfig       `yaml:"stores"`
	PubSub       PubSubConfig       `yaml:"pubsub"`
	API          APIConfig          `yaml:"api"`
	Security     SecurityConfig     `yaml:"security"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit"`
	Metrics      MetricsConfig      `yaml:"metrics"`
}

type AppConfig struct {
	InstanceID      string        `yaml:"instance_id"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // json|console
}

type AlertingConfig struct {
	AppName string `yaml:"app_name"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
}

// Base assets one chain: buys are swaps paying wrapped native or a stable
type ChainAssets struct {
	ChainID       uint32   `yaml:"chain_id"`
	WrappedNative string   `yaml:"wrapped_native"`
	Stables       []string `yaml:"stables"`
}

type WindowConfig struct {
	Duration       time.Duration `yaml:"duration"`          // fixed window, anchored first sighting
	MinWhaleBuyUSD float64       `yaml:"min_whale_buy_usd"` // smaller buys are ignored whole
	BigBuyUSD      float64       `yaml:"big_buy_usd"`       // single buy trigger
	MinWhales      int           `yaml:"min_whales"`        // unique buyers trigger
}

type SafetyConfig struct {
	MinScore        int           `yaml:"min_score"`
	MaxTaxPct       float64       `yaml:"max_tax_pct"`
	MinLiquidityUSD float64       `yaml:"min_liquidity_usd"`
	MaxLiquidityUSD float64       `yaml:"max_liquidity_usd"`
	MinMarketCapUSD float64       `yaml:"min_market_cap_usd"`
	MaxMarketCapUSD float64       `yaml:"max_market_cap_usd"`
	MaxAgeHours     float64       `yaml:"max_age_hours"`
	DeepAnalysis    bool          `yaml:"deep_analysis"`
	HoneypotTimeout time.Duration `yaml:"honeypot_timeout"`
	DeepTimeout     time.Duration `yaml:"deep_timeout"`
	MaxInflight     int           `yaml:"max_inflight"` // parallel cascade evaluations
}

type ProviderEndpoint struct {
	BaseURL  string        `yaml:"base_url"`
	Timeout  time.Duration `yaml:"timeout"`
	Throttle time.Duration `yaml:"throttle"` // min gap between calls, 0 -> off
}

type ProvidersConfig struct {
	Market   ProviderEndpoint `yaml:"market"`
	Price    ProviderEndpoint `yaml:"price"`
	Security ProviderEndpoint `yaml:"security"`

	MetadataTTL time.Duration `yaml:"metadata_ttl"` // market stats cache
	PriceTTL    time.Duration `yaml:"price_ttl"`    // native quote cache
	ReportTTL   time.Duration `yaml:"report_ttl"`   // safety report cache
	MaxEntries  int           `yaml:"max_entries"`  // per cache LRU bound
}

type DedupeConfig struct {
	Backend    string        `yaml:"backend"` // memory|redis
	MaxEntries int           `yaml:"max_entries"`
	TTL        time.Duration `yaml:"ttl"`    // redis backend only
	Prefix     string        `yaml:"prefix"` // redis backend only
}

type AlertsConfig struct {
	Sender         string        `yaml:"sender"` // nats|webhook|log
	MinDelay       time.Duration `yaml:"min_delay"`
	Subject        string        `yaml:"subject"`
	WebhookURL     string        `yaml:"webhook_url"`
	WebhookTimeout time.Duration `yaml:"webhook_timeout"`
}

type HousekeepingConfig struct {
	Interval time.Duration `yaml:"interval"`
}

type PollSourceConfig struct {
	Name      string        `yaml:"name"`
	BaseURL   string        `yaml:"base_url"`
	Interval  time.Duration `yaml:"interval"`
	PageLimit int           `yaml:"page_limit"`
	Timeout   time.Duration `yaml:"timeout"`
}

type IngestConfig struct {
	NATSSubject string             `yaml:"nats_subject"` // push network, empty -> off
	Poll        []PollSourceConfig `yaml:"poll"`
}

type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type ClickHouseWriterConfig struct {
	BatchMaxRows     int           `yaml:"batch_max_rows"`
	BatchMaxInterval time.Duration `yaml:"batch_max_interval"`
	MaxRetries       int           `yaml:"max_retries"`
	RetryBackoff     time.Duration `yaml:"retry_backoff"`
}

type ClickHouseConfig struct {
	Enabled bool                   `yaml:"enabled"` // alert archive, optional
	DSN     string                 `yaml:"dsn"`
	Writer  ClickHouseWriterConfig `yaml:"writer"`
}

type StoresConfig struct {
	Redis      RedisConfig      `yaml:"redis"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

type NATSConfig struct {
	URL            string        `yaml:"url"`
	StatusSubject  string        `yaml:"status_subject"`
	StatusInterval time.Duration `yaml:"status_interval"`
}

type PubSubConfig struct {
	NATS NATSConfig `yaml:"nats"`
}

type CORSConfig struct {
	Enabled bool     `yaml:"enabled"`
	Origins []string `yaml:"origins"`
	Methods []string `yaml:"methods"`
	Headers []string `yaml:"headers"`
}

type HTTPConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	CORS         CORSConfig    `yaml:"cors"`
}

type APIConfig struct {
	HTTP HTTPConfig `yaml:"http"`
}

type JWTConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Alg            string        `yaml:"alg"` // RS256
	PublicKeyPath  string        `yaml:"public_key_path"`
	PrivateKeyPath string        `yaml:"private_key_path"`
	Audience       string        `yaml:"audience"`
	Issuer         string        `yaml:"issuer"`
	Leeway         time.Duration `yaml:"leeway"`
}

type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

type RateBucket struct {
	RefillPerSec int           `yaml:"refill_per_sec"` // how many tokens are add every second
	Burst        int           `yaml:"burst"`          // max len bucket
	TTL          time.Duration `yaml:"ttl"`            // how long keep a key if it isn't use
}

type RateLimitConfig struct {
	ByJWT              RateBucket `yaml:"by_jwt"`
	ByIP               RateBucket `yaml:"by_ip"`
	TrustedProxiesList []string   `yaml:"trusted_proxies"` // IPs/CIDRs allowed to set forwarding headers
}

type PyroscopeConfig struct {
	Enabled    bool              `yaml:"enabled"`
	AppName    string            `yaml:"app_name"`
	ServerAddr string            `yaml:"server_addr"`
	AuthToken  string            `yaml:"auth_token"`
	Tags       map[string]string `yaml:"tags"`
}

type MetricsConfig struct {
	Pyroscope PyroscopeConfig `yaml:"pyroscope"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err = yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
