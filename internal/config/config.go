// Package config handles configuration management with validation
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration structure. It is loaded once
// at process start and treated as read-only during cycles.
type Config struct {
	App         AppConfig          `yaml:"app"`
	Credentials CredentialsConfig  `yaml:"credentials"`
	URLs        URLConfig          `yaml:"urls"`
	Browser     BrowserConfig      `yaml:"browser"`
	Market      MarketSearchConfig `yaml:"market"`
	Buying      BuyingConfig       `yaml:"buying"`
	Selling     SellingConfig      `yaml:"selling"`
	Risk        RiskConfig         `yaml:"risk"`
	Pacing      PacingConfig       `yaml:"pacing"`
	Timeouts    TimeoutConfig      `yaml:"timeouts"`
	System      SystemConfig       `yaml:"system"`
	Telemetry   TelemetryConfig    `yaml:"telemetry"`
	Alert       AlertConfig        `yaml:"alert"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	DatabasePath string `yaml:"database_path"`
	DryRun       bool   `yaml:"dry_run"`
	MaxCycles    int    `yaml:"max_cycles"` // 0 = run until cancelled
}

// CredentialsConfig carries the login credentials. Values support ${ENV}
// expansion so secrets can stay in the environment or a .env file.
type CredentialsConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// URLConfig contains the game page addresses
type URLConfig struct {
	Login       string `yaml:"login"`
	Home        string `yaml:"home"`
	Marketplace string `yaml:"marketplace"`
	Bank        string `yaml:"bank"`
	Storage     string `yaml:"storage"`
}

// BrowserConfig contains browser transport settings
type BrowserConfig struct {
	DevToolsURL        string `yaml:"devtools_url"` // ws:// endpoint of the controlled browser
	NavTimeoutSeconds  int    `yaml:"nav_timeout_seconds"`
	CallTimeoutSeconds int    `yaml:"call_timeout_seconds"`
}

// MarketSearchConfig contains the target item list. The two arrays are
// positionally paired and must have equal length.
type MarketSearchConfig struct {
	TargetItems         []string  `yaml:"target_items"`
	MaxPricePerUnit     []float64 `yaml:"max_price_per_unit"`
	MaxItemsPerSearch   int       `yaml:"max_items_per_search"`
	MaxPurchasesPerItem int       `yaml:"max_purchases_per_item"`
}

// BuyingConfig contains buying strategy parameters
type BuyingConfig struct {
	MinProfitMargin      float64 `yaml:"min_profit_margin"`
	MaxItemTotalPrice    int64   `yaml:"max_item_total_price"`
	MaxTotalInvestment   int64   `yaml:"max_total_investment"`
	DiversificationLimit int     `yaml:"diversification_limit"`
	MaxHighRiskPurchases int     `yaml:"max_high_risk_purchases"`
	PriceHistoryWindow   int     `yaml:"price_history_window"`
}

// SellingConfig contains selling strategy parameters
type SellingConfig struct {
	MarkupPercentage       float64 `yaml:"markup_percentage"`
	MinMarkupPercentage    float64 `yaml:"min_markup_percentage"`
	MaxMarkupPercentage    float64 `yaml:"max_markup_percentage"`
	MinSlotValue           int64   `yaml:"min_slot_value"`
	SpaceClearMarkupFactor float64 `yaml:"space_clear_markup_factor"`
}

// RiskConfig contains failure handling and wait settings
type RiskConfig struct {
	MinCashThreshold        int64 `yaml:"min_cash_threshold"`
	NormalWaitSeconds       int   `yaml:"normal_wait_seconds"`
	BlockedWaitSeconds      int   `yaml:"blocked_wait_seconds"`
	LoginRetryWaitSeconds   int   `yaml:"login_retry_wait_seconds"`
	MaxRetries              int   `yaml:"max_retries"`
	MaxLoginRetries         int   `yaml:"max_login_retries"`
	MaxConsecutiveErrors    int   `yaml:"max_consecutive_errors"`
	CriticalCooldownSeconds int   `yaml:"critical_cooldown_seconds"`
}

// PacingConfig contains the anti-detection timing constants. All delays are
// in milliseconds.
type PacingConfig struct {
	ActionDelayMinMs       int     `yaml:"action_delay_min_ms"`
	ActionDelayMaxMs       int     `yaml:"action_delay_max_ms"`
	TypingDelayMinMs       int     `yaml:"typing_delay_min_ms"`
	TypingDelayMaxMs       int     `yaml:"typing_delay_max_ms"`
	RandomPauseProbability float64 `yaml:"random_pause_probability"`
	ActionMinIntervalMs    int     `yaml:"action_min_interval_ms"`
	AfterNavMinMs          int     `yaml:"after_nav_min_ms"`
	AfterNavMaxMs          int     `yaml:"after_nav_max_ms"`
}

// TimeoutConfig contains per-stage wall-clock timeouts in seconds
type TimeoutConfig struct {
	LoginSeconds           int `yaml:"login_seconds"`
	ProbeSeconds           int `yaml:"probe_seconds"`
	MarketScanSeconds      int `yaml:"market_scan_seconds"`
	PurchaseSeconds        int `yaml:"purchase_seconds"`
	ListingPerOrderSeconds int `yaml:"listing_per_order_seconds"`
}

// SystemConfig contains system settings
type SystemConfig struct {
	LogLevel string `yaml:"log_level"`
}

// TelemetryConfig contains telemetry settings
type TelemetryConfig struct {
	MetricsPort   int  `yaml:"metrics_port"`
	EnableMetrics bool `yaml:"enable_metrics"`
}

// AlertConfig contains operator alert settings
type AlertConfig struct {
	Enabled          bool   `yaml:"enabled"`
	SlackWebhookURL  string `yaml:"slack_webhook_url"`
	TelegramBotToken string `yaml:"telegram_bot_token"`
	TelegramChatID   string `yaml:"telegram_chat_id"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads configuration from a YAML file with environment variable expansion
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	config := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expandedData), config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	var errs []string

	for _, fn := range []func() error{
		c.validateCredentials,
		c.validateMarket,
		c.validateBuying,
		c.validateSelling,
		c.validateRisk,
		c.validatePacing,
		c.validateSystem,
	} {
		if err := fn(); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errs, "\n"))
	}

	return nil
}

func (c *Config) validateCredentials() error {
	if c.Credentials.Username == "" {
		return ValidationError{
			Field:   "credentials.username",
			Message: "username is required",
		}
	}
	if c.Credentials.Password == "" {
		return ValidationError{
			Field:   "credentials.password",
			Message: "password is required",
		}
	}
	return nil
}

func (c *Config) validateMarket() error {
	if len(c.Market.TargetItems) == 0 {
		return ValidationError{
			Field:   "market.target_items",
			Message: "at least one target item is required",
		}
	}
	if len(c.Market.TargetItems) != len(c.Market.MaxPricePerUnit) {
		return ValidationError{
			Field: "market.max_price_per_unit",
			Value: len(c.Market.MaxPricePerUnit),
			Message: fmt.Sprintf("must have the same length as target_items (%d)",
				len(c.Market.TargetItems)),
		}
	}
	for i, price := range c.Market.MaxPricePerUnit {
		if price < 0 {
			return ValidationError{
				Field:   fmt.Sprintf("market.max_price_per_unit[%d]", i),
				Value:   price,
				Message: "must not be negative",
			}
		}
	}
	return nil
}

func (c *Config) validateBuying() error {
	if c.Buying.MinProfitMargin <= 0 || c.Buying.MinProfitMargin >= 1 {
		return ValidationError{
			Field:   "buying.min_profit_margin",
			Value:   c.Buying.MinProfitMargin,
			Message: "must be between 0 and 1 exclusive",
		}
	}
	if c.Buying.MaxItemTotalPrice <= 0 {
		return ValidationError{
			Field:   "buying.max_item_total_price",
			Value:   c.Buying.MaxItemTotalPrice,
			Message: "must be positive",
		}
	}
	if c.Buying.MaxTotalInvestment <= 0 {
		return ValidationError{
			Field:   "buying.max_total_investment",
			Value:   c.Buying.MaxTotalInvestment,
			Message: "must be positive",
		}
	}
	if c.Buying.DiversificationLimit < 1 {
		return ValidationError{
			Field:   "buying.diversification_limit",
			Value:   c.Buying.DiversificationLimit,
			Message: "must be at least 1",
		}
	}
	if c.Buying.MaxHighRiskPurchases < 0 {
		return ValidationError{
			Field:   "buying.max_high_risk_purchases",
			Value:   c.Buying.MaxHighRiskPurchases,
			Message: "must not be negative",
		}
	}
	return nil
}

func (c *Config) validateSelling() error {
	if c.Selling.MarkupPercentage < c.Selling.MinMarkupPercentage ||
		c.Selling.MarkupPercentage > c.Selling.MaxMarkupPercentage {
		return ValidationError{
			Field: "selling.markup_percentage",
			Value: c.Selling.MarkupPercentage,
			Message: fmt.Sprintf("must be within [%v, %v]",
				c.Selling.MinMarkupPercentage, c.Selling.MaxMarkupPercentage),
		}
	}
	if c.Selling.SpaceClearMarkupFactor <= 0 || c.Selling.SpaceClearMarkupFactor > 1 {
		return ValidationError{
			Field:   "selling.space_clear_markup_factor",
			Value:   c.Selling.SpaceClearMarkupFactor,
			Message: "must be in (0, 1]",
		}
	}
	return nil
}

func (c *Config) validateRisk() error {
	if c.Risk.NormalWaitSeconds < 1 {
		return ValidationError{
			Field:   "risk.normal_wait_seconds",
			Value:   c.Risk.NormalWaitSeconds,
			Message: "must be at least 1",
		}
	}
	if c.Risk.BlockedWaitSeconds < c.Risk.NormalWaitSeconds {
		return ValidationError{
			Field:   "risk.blocked_wait_seconds",
			Value:   c.Risk.BlockedWaitSeconds,
			Message: "must not be shorter than normal_wait_seconds",
		}
	}
	if c.Risk.MaxRetries < 1 || c.Risk.MaxLoginRetries < 1 {
		return ValidationError{
			Field:   "risk.max_retries",
			Message: "retry limits must be at least 1",
		}
	}
	return nil
}

func (c *Config) validatePacing() error {
	if c.Pacing.ActionDelayMinMs >= c.Pacing.ActionDelayMaxMs {
		return ValidationError{
			Field:   "pacing.action_delay_min_ms",
			Value:   c.Pacing.ActionDelayMinMs,
			Message: "must be less than action_delay_max_ms",
		}
	}
	if c.Pacing.TypingDelayMinMs >= c.Pacing.TypingDelayMaxMs {
		return ValidationError{
			Field:   "pacing.typing_delay_min_ms",
			Value:   c.Pacing.TypingDelayMinMs,
			Message: "must be less than typing_delay_max_ms",
		}
	}
	if c.Pacing.RandomPauseProbability < 0 || c.Pacing.RandomPauseProbability > 1 {
		return ValidationError{
			Field:   "pacing.random_pause_probability",
			Value:   c.Pacing.RandomPauseProbability,
			Message: "must be within [0, 1]",
		}
	}
	return nil
}

func (c *Config) validateSystem() error {
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.System.LogLevel)) {
		return ValidationError{
			Field:   "system.log_level",
			Value:   c.System.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		}
	}
	return nil
}

// MaxUnitPriceFor returns the configured cap for an item and whether the
// item is a purchase target at all.
func (c *Config) MaxUnitPriceFor(itemName string) (float64, bool) {
	for i, name := range c.Market.TargetItems {
		if name == itemName {
			return c.Market.MaxPricePerUnit[i], true
		}
	}
	return 0, false
}

// String returns a string representation of the configuration (with sensitive data masked)
func (c *Config) String() string {
	configCopy := *c
	configCopy.Credentials.Username = maskString(c.Credentials.Username)
	configCopy.Credentials.Password = maskString(c.Credentials.Password)
	configCopy.Alert.SlackWebhookURL = maskString(c.Alert.SlackWebhookURL)
	configCopy.Alert.TelegramBotToken = maskString(c.Alert.TelegramBotToken)

	data, _ := yaml.Marshal(&configCopy)
	return string(data)
}

// Helper functions

func expandEnvVars(s string) string {
	return os.Expand(s, os.Getenv)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func maskString(s string) string {
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}

// DefaultConfig returns the baseline configuration. LoadConfig starts from
// it so partial YAML files only override what they mention.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			DatabasePath: "auto_trader.db",
		},
		URLs: URLConfig{
			Login:       "https://www.example-game.com/index.php?autologin=1",
			Home:        "https://play.example-game.com/index.php",
			Marketplace: "https://play.example-game.com/index.php?page=35",
			Bank:        "https://play.example-game.com/index.php?page=15",
			Storage:     "https://play.example-game.com/index.php?page=50",
		},
		Browser: BrowserConfig{
			DevToolsURL:        "ws://127.0.0.1:9222/devtools/page/main",
			NavTimeoutSeconds:  30,
			CallTimeoutSeconds: 10,
		},
		Market: MarketSearchConfig{
			TargetItems:         []string{"12.7mm Rifle Bullets", "9mm Rifle Bullets", "Pain Killers", "Bandages"},
			MaxPricePerUnit:     []float64{13.0, 15.0, 25.0, 8.0},
			MaxItemsPerSearch:   75,
			MaxPurchasesPerItem: 10,
		},
		Buying: BuyingConfig{
			MinProfitMargin:      0.15,
			MaxItemTotalPrice:    50_000,
			MaxTotalInvestment:   100_000,
			DiversificationLimit: 5,
			MaxHighRiskPurchases: 3,
			PriceHistoryWindow:   20,
		},
		Selling: SellingConfig{
			MarkupPercentage:       0.25,
			MinMarkupPercentage:    0.10,
			MaxMarkupPercentage:    0.50,
			MinSlotValue:           1_000,
			SpaceClearMarkupFactor: 0.5,
		},
		Risk: RiskConfig{
			MinCashThreshold:        5_000,
			NormalWaitSeconds:       60,
			BlockedWaitSeconds:      300,
			LoginRetryWaitSeconds:   30,
			MaxRetries:              3,
			MaxLoginRetries:         5,
			MaxConsecutiveErrors:    3,
			CriticalCooldownSeconds: 300,
		},
		Pacing: PacingConfig{
			ActionDelayMinMs:       300,
			ActionDelayMaxMs:       800,
			TypingDelayMinMs:       50,
			TypingDelayMaxMs:       150,
			RandomPauseProbability: 0.1,
			ActionMinIntervalMs:    250,
			AfterNavMinMs:          500,
			AfterNavMaxMs:          2000,
		},
		Timeouts: TimeoutConfig{
			LoginSeconds:           60,
			ProbeSeconds:           20,
			MarketScanSeconds:      90,
			PurchaseSeconds:        30,
			ListingPerOrderSeconds: 30,
		},
		System: SystemConfig{
			LogLevel: "INFO",
		},
		Telemetry: TelemetryConfig{
			MetricsPort:   9091,
			EnableMetrics: false,
		},
	}
}
