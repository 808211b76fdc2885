package store

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Mode string `yaml:"mode"`

	Deriv struct {
		Endpoint                 string `yaml:"endpoint"`
		AppID                    string `yaml:"app_id"`
		RequestTimeoutSeconds    int    `yaml:"request_timeout_seconds"`
		MaxReconnectDelaySeconds int    `yaml:"max_reconnect_delay_seconds"`
		TokenEnv                 string `yaml:"token_env"`
	} `yaml:"deriv"`

	Market struct {
		Category  string `yaml:"category"`
		Symbol    string `yaml:"symbol"`
		Timeframe string `yaml:"timeframe"`
	} `yaml:"market"`

	Analysis struct {
		RiskTolerance      string `yaml:"risk_tolerance"`
		PriorityIndicators string `yaml:"priority_indicators"`
		EnableSentiment    bool   `yaml:"enable_sentiment"`
		ContextBars        int    `yaml:"context_bars"`
	} `yaml:"analysis"`

	Indicators struct {
		RSIPeriod  int   `yaml:"rsi_period"`
		SMAWindows []int `yaml:"sma_windows"`
		ATRPeriod  int   `yaml:"atr_period"`
		MACDFast   int   `yaml:"macd_fast"`
		MACDSlow   int   `yaml:"macd_slow"`
		MACDSignal int   `yaml:"macd_signal"`
	} `yaml:"indicators"`

	LLM struct {
		Provider       string  `yaml:"provider"`
		Model          string  `yaml:"model"`
		MaxTokens      int     `yaml:"max_tokens"`
		Temperature    float32 `yaml:"temperature"`
		System         string  `yaml:"system"`
		TimeoutSeconds int     `yaml:"timeout_seconds"`
		BaseURL        string  `yaml:"base_url"`
	} `yaml:"llm"`

	Backtest struct {
		InitialBalance      float64  `yaml:"initial_balance"`
		ConfidenceThreshold *float64 `yaml:"confidence_threshold"` // nil when absent
		WarmupBars          int      `yaml:"warmup_bars"`
		ContractSize        float64  `yaml:"contract_size"`
		StartDate           string   `yaml:"start_date"`
		EndDate             string   `yaml:"end_date"`
		DefaultLookbackDays int      `yaml:"default_lookback_days"`
	} `yaml:"backtest"`

	Account struct {
		MT5Login  string `yaml:"mt5_login"`
		MT5Server string `yaml:"mt5_server"`
	} `yaml:"account"`

	News struct {
		Provider     string   `yaml:"provider"` // mock or scrape
		Sources      []string `yaml:"sources"`
		CacheMinutes int      `yaml:"cache_minutes"`
		MaxHeadlines int      `yaml:"max_headlines"`
		Seed         int64    `yaml:"seed"`
	} `yaml:"news"`

	Journal struct {
		Dir               string `yaml:"dir"`
		ExportDir         string `yaml:"export_dir"`
		CompressOlder     bool   `yaml:"compress_older"`
		CompressAfterDays int    `yaml:"compress_after_days"`
	} `yaml:"journal"`
}

// DefaultConfidenceThreshold applies only when confidence_threshold is absent; an explicit 0 is kept.
const DefaultConfidenceThreshold = 50.0

var (
	validModes      = []string{"stream", "backtest", "symbols", "validate"}
	validProviders  = []string{"gemini", "openai", "claude", "noop"}
	validRisk       = []string{"low", "medium", "high"}
	validCategories = []string{"synthetic_indices", "forex", "crypto", "stocks"}
)

func (c *Config) Validate() error {
	if !oneOf(c.Mode, validModes) {
		return fmt.Errorf("invalid mode '%s': must be one of %s", c.Mode, strings.Join(validModes, ", "))
	}
	if c.Market.Symbol == "" {
		return errors.New("market.symbol cannot be empty")
	}
	if !oneOf(c.Market.Category, validCategories) {
		return fmt.Errorf("market.category must be one of %s, got '%s'", strings.Join(validCategories, ", "), c.Market.Category)
	}
	if !oneOf(c.Analysis.RiskTolerance, validRisk) {
		return fmt.Errorf("analysis.risk_tolerance must be low, medium or high, got '%s'", c.Analysis.RiskTolerance)
	}
	if !oneOf(strings.ToLower(c.LLM.Provider), validProviders) {
		return fmt.Errorf("llm.provider must be one of %s, got '%s'", strings.Join(validProviders, ", "), c.LLM.Provider)
	}
	if c.Backtest.InitialBalance <= 0 {
		return fmt.Errorf("backtest.initial_balance must be positive, got %.2f", c.Backtest.InitialBalance)
	}
	if t := c.Backtest.ConfidenceThreshold; t != nil && (*t < 0 || *t > 100) {
		return fmt.Errorf("backtest.confidence_threshold must be between 0-100, got %.2f", *t)
	}
	if c.Backtest.WarmupBars < 1 {
		return fmt.Errorf("backtest.warmup_bars must be at least 1, got %d", c.Backtest.WarmupBars)
	}
	if c.News.Provider != "mock" && c.News.Provider != "scrape" {
		return fmt.Errorf("news.provider must be 'mock' or 'scrape', got '%s'", c.News.Provider)
	}
	if c.News.Provider == "scrape" && c.Analysis.EnableSentiment && len(c.News.Sources) == 0 {
		return errors.New("news.sources cannot be empty when scraping is enabled")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = "stream"
	}
	c.Mode = strings.ToLower(c.Mode)

	if c.Deriv.Endpoint == "" {
		c.Deriv.Endpoint = "wss://ws.binaryws.com/websockets/v3"
	}
	if c.Deriv.AppID == "" {
		c.Deriv.AppID = "1089"
	}
	if c.Deriv.RequestTimeoutSeconds == 0 {
		c.Deriv.RequestTimeoutSeconds = 10
	}
	if c.Deriv.MaxReconnectDelaySeconds == 0 {
		c.Deriv.MaxReconnectDelaySeconds = 30
	}
	if c.Deriv.TokenEnv == "" {
		c.Deriv.TokenEnv = "DERIV_API_TOKEN"
	}

	if c.Market.Category == "" {
		c.Market.Category = "synthetic_indices"
	}
	if c.Market.Timeframe == "" {
		c.Market.Timeframe = "M1"
	}

	if c.Analysis.RiskTolerance == "" {
		c.Analysis.RiskTolerance = "medium"
	}
	c.Analysis.RiskTolerance = strings.ToLower(c.Analysis.RiskTolerance)
	if c.Analysis.PriorityIndicators == "" {
		c.Analysis.PriorityIndicators = "RSI, MACD"
	}
	if c.Analysis.ContextBars == 0 {
		c.Analysis.ContextBars = 20
	}

	if c.Indicators.RSIPeriod == 0 {
		c.Indicators.RSIPeriod = 14
	}
	if len(c.Indicators.SMAWindows) == 0 {
		c.Indicators.SMAWindows = []int{20}
	}
	if c.Indicators.ATRPeriod == 0 {
		c.Indicators.ATRPeriod = 14
	}
	if c.Indicators.MACDFast == 0 {
		c.Indicators.MACDFast = 12
	}
	if c.Indicators.MACDSlow == 0 {
		c.Indicators.MACDSlow = 26
	}
	if c.Indicators.MACDSignal == 0 {
		c.Indicators.MACDSignal = 9
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "gemini"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = defaultModel(c.LLM.Provider)
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 512
	}
	if c.LLM.TimeoutSeconds == 0 {
		c.LLM.TimeoutSeconds = 60
	}

	if c.Backtest.InitialBalance == 0 {
		c.Backtest.InitialBalance = 10000
	}
	if c.Backtest.ConfidenceThreshold == nil {
		t := DefaultConfidenceThreshold
		c.Backtest.ConfidenceThreshold = &t
	}
	if c.Backtest.WarmupBars == 0 {
		c.Backtest.WarmupBars = 20
	}
	if c.Backtest.ContractSize == 0 {
		c.Backtest.ContractSize = 100
	}
	if c.Backtest.DefaultLookbackDays == 0 {
		c.Backtest.DefaultLookbackDays = 30
	}

	if c.News.Provider == "" {
		c.News.Provider = "mock"
	}
	if c.News.CacheMinutes == 0 {
		c.News.CacheMinutes = 15
	}
	if c.News.MaxHeadlines == 0 {
		c.News.MaxHeadlines = 3
	}

	if c.Journal.Dir == "" {
		c.Journal.Dir = "journal"
	}
	if c.Journal.ExportDir == "" {
		c.Journal.ExportDir = "reports"
	}
	if c.Journal.CompressAfterDays == 0 {
		c.Journal.CompressAfterDays = 7
	}
}

func defaultModel(provider string) string {
	switch strings.ToLower(provider) {
	case "openai":
		return "gpt-4o-mini"
	case "claude":
		return "claude-3-5-haiku-latest"
	default:
		return "gemini-2.5-flash"
	}
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(b)
}

// ParseConfig decodes YAML, fills defaults and validates.
func ParseConfig(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &c, nil
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
