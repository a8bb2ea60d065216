package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"crossarb/pkg/crypto"
	"crossarb/pkg/utils"
)

// Config содержит всю конфигурацию приложения.
//
// Источники по возрастанию приоритета: значения по умолчанию, TOML файл
// (CONFIG_FILE), переменные окружения (.env подмешивается в окружение,
// уже выставленные переменные не перезаписывает).
type Config struct {
	Server      ServerConfig      `toml:"server"`
	Database    DatabaseConfig    `toml:"database"`
	Redis       RedisConfig       `toml:"redis"`
	Security    SecurityConfig    `toml:"security"`
	Bot         BotConfig         `toml:"bot"`
	Feeds       FeedsConfig       `toml:"feeds"`
	Fees        FeesConfig        `toml:"fees"`
	Credentials CredentialsConfig `toml:"credentials"`
	Logging     LoggingConfig     `toml:"logging"`
}

// ServerConfig - настройки HTTP сервера статуса
type ServerConfig struct {
	Enabled     bool          `toml:"enabled"`
	Port        int           `toml:"port"`
	Host        string        `toml:"host"`
	GracePeriod time.Duration `toml:"grace_period"`

	// AllowedOrigins Origin для CORS и /ws/stream через запятую, пусто = все
	AllowedOrigins string `toml:"allowed_origins"`
}

// DatabaseConfig - настройки журнала исполнений в PostgreSQL
type DatabaseConfig struct {
	Enabled  bool   `toml:"enabled"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Name     string `toml:"name"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	SSLMode  string `toml:"ssl_mode"`

	// Retention сколько хранить архив; 0 = без очистки
	Retention time.Duration `toml:"retention"`
}

// RedisConfig - зеркало снимков. Пустой Addr = выключено.
type RedisConfig struct {
	Addr     string        `toml:"addr"`
	Password string        `toml:"password"`
	DB       int           `toml:"db"`
	TTL      time.Duration `toml:"ttl"`
}

// SecurityConfig - настройки безопасности
type SecurityConfig struct {
	EncryptionKey string `toml:"encryption_key"` // 32 байта, AES-256 для секретов API
	APITokenHash  string `toml:"api_token_hash"` // bcrypt hash токена статус API
}

// BotConfig - параметры решения и исполнения
type BotConfig struct {
	Mode   string `toml:"mode"` // paper, live
	Symbol string `toml:"symbol"`
	DryRun bool   `toml:"dry_run"`

	TargetSize decimal.Decimal `toml:"target_size"`
	MinVolume  decimal.Decimal `toml:"min_volume"`
	MaxVolume  decimal.Decimal `toml:"max_volume"`
	LotSize    decimal.Decimal `toml:"lot_size"` // шаг объёма ордера, 0 = без округления

	MinProfit      decimal.Decimal `toml:"min_profit"`
	MinProfitPct   decimal.Decimal `toml:"min_profit_pct"`
	MinSpreadBps   decimal.Decimal `toml:"min_spread_bps"`
	SlippageBps    decimal.Decimal `toml:"slippage_bps"`
	MaxSlippageBps decimal.Decimal `toml:"max_slippage_bps"` // граница проскальзывания внутри стакана
	ReconfirmBps   decimal.Decimal `toml:"reconfirm_tolerance_bps"`
	MinConfidence  float64         `toml:"min_confidence"`

	BookDepth     int `toml:"book_depth"`
	MinBookLevels int `toml:"min_book_levels"`

	UseMakerOrders        bool `toml:"use_maker_orders"`
	IncludeWithdrawalFees bool `toml:"include_withdrawal_fees"`

	OrderTimeout     time.Duration `toml:"order_timeout"`
	FillPollInterval time.Duration `toml:"fill_poll_interval"`
	CycleInterval    time.Duration `toml:"cycle_interval"`
	Cooldown         time.Duration `toml:"cooldown_after_execution"`
	StopAfterSuccess bool          `toml:"stop_after_success"`
	HaltOnPartial    bool          `toml:"halt_on_partial"`
	BalanceRefresh   time.Duration `toml:"balance_refresh_interval"`
	ExecutionLogSize int           `toml:"execution_log_size"`

	// Стартовые балансы paper режима
	PaperQuoteBalance decimal.Decimal `toml:"paper_quote_balance"`
	PaperBaseBalance  decimal.Decimal `toml:"paper_base_balance"`
}

// FeedsConfig - WebSocket подключения
type FeedsConfig struct {
	ReconnectDelay    time.Duration `toml:"reconnect_delay"`
	MaxReconnectDelay time.Duration `toml:"max_reconnect_delay"`
	ReadTimeout       time.Duration `toml:"read_timeout"`
	MEXCPingInterval  time.Duration `toml:"mexc_ping_interval"`
	BingXPingInterval time.Duration `toml:"bingx_ping_interval"`
	TradesEnabled     bool          `toml:"trades_enabled"`
	TradesIntervalMs  int           `toml:"trades_interval_ms"`
}

// VenueFees ставки комиссий площадки (доли, не проценты)
type VenueFees struct {
	Maker    decimal.Decimal `toml:"maker"`
	Taker    decimal.Decimal `toml:"taker"`
	Withdraw decimal.Decimal `toml:"withdraw"` // в базовой валюте
}

// FeesConfig - комиссии по площадкам
type FeesConfig struct {
	MEXC  VenueFees `toml:"mexc"`
	BingX VenueFees `toml:"bingx"`
}

// VenueCredentials ключи API площадки
type VenueCredentials struct {
	APIKey    string `toml:"api_key"`
	SecretKey string `toml:"secret_key"`
}

// CredentialsConfig - ключи API для live режима
type CredentialsConfig struct {
	MEXC  VenueCredentials `toml:"mexc"`
	BingX VenueCredentials `toml:"bingx"`
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level       string `toml:"level"`
	Format      string `toml:"format"`
	Output      string `toml:"output"`
	Development bool   `toml:"development"`
}

// Defaults значения по умолчанию
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Enabled:     true,
			Port:        8080,
			Host:        "0.0.0.0",
			GracePeriod: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			Name:    "crossarb",
			User:    "crossarb",
			SSLMode: "disable",
		},
		Redis: RedisConfig{TTL: 10 * time.Second},
		Bot: BotConfig{
			Mode:   "paper",
			Symbol: "BTC-USDC",
			DryRun: true,

			TargetSize: decimal.RequireFromString("0.001"),
			MinVolume:  decimal.RequireFromString("0.001"),
			MaxVolume:  decimal.RequireFromString("0.1"),
			LotSize:    decimal.RequireFromString("0.000001"),

			MinProfit:      decimal.NewFromInt(5),
			MinProfitPct:   decimal.Zero,
			MinSpreadBps:   decimal.NewFromInt(10),
			SlippageBps:    decimal.NewFromInt(5),
			MaxSlippageBps: decimal.NewFromInt(10),
			ReconfirmBps:   decimal.NewFromInt(10),
			MinConfidence:  0.6,

			BookDepth:     20,
			MinBookLevels: 3,

			UseMakerOrders: true,

			OrderTimeout:     30 * time.Second,
			FillPollInterval: 500 * time.Millisecond,
			CycleInterval:    time.Second,
			Cooldown:         2 * time.Second,
			HaltOnPartial:    true,
			BalanceRefresh:   time.Minute,
			ExecutionLogSize: 100,

			PaperQuoteBalance: decimal.NewFromInt(10000),
			PaperBaseBalance:  decimal.RequireFromString("0.1"),
		},
		Feeds: FeedsConfig{
			ReconnectDelay:    time.Second,
			MaxReconnectDelay: 16 * time.Second,
			ReadTimeout:       90 * time.Second,
			MEXCPingInterval:  30 * time.Second,
			BingXPingInterval: 15 * time.Second,
			TradesIntervalMs:  100,
		},
		Fees: FeesConfig{
			MEXC: VenueFees{
				Maker:    decimal.Zero,
				Taker:    decimal.RequireFromString("0.002"),
				Withdraw: decimal.RequireFromString("0.0005"),
			},
			BingX: VenueFees{
				Maker:    decimal.RequireFromString("0.0002"),
				Taker:    decimal.RequireFromString("0.0004"),
				Withdraw: decimal.RequireFromString("0.0005"),
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load загружает конфигурацию: defaults → CONFIG_FILE (TOML) → окружение.
// Результат уже провалидирован.
func Load() (*Config, error) {
	// .env не обязателен
	_ = godotenv.Load()

	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, errors.Wrapf(err, "decode config file %s", path)
		}
	}

	applyEnv(&cfg)

	if err := cfg.decryptCredentials(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv накладывает переменные окружения поверх текущих значений
func applyEnv(c *Config) {
	c.Server.Enabled = getEnvAsBool("SERVER_ENABLED", c.Server.Enabled)
	c.Server.Port = getEnvAsInt("SERVER_PORT", c.Server.Port)
	c.Server.Host = getEnv("SERVER_HOST", c.Server.Host)
	c.Server.GracePeriod = getEnvAsDuration("SHUTDOWN_GRACE_PERIOD", c.Server.GracePeriod)
	c.Server.AllowedOrigins = getEnv("CORS_ALLOWED_ORIGINS", c.Server.AllowedOrigins)

	c.Database.Enabled = getEnvAsBool("DB_ENABLED", c.Database.Enabled)
	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnvAsInt("DB_PORT", c.Database.Port)
	c.Database.Name = getEnv("DB_NAME", c.Database.Name)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.SSLMode = getEnv("DB_SSL_MODE", c.Database.SSLMode)
	c.Database.Retention = getEnvAsDuration("DB_RETENTION", c.Database.Retention)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvAsInt("REDIS_DB", c.Redis.DB)
	c.Redis.TTL = getEnvAsDuration("REDIS_TTL", c.Redis.TTL)

	c.Security.EncryptionKey = getEnv("ENCRYPTION_KEY", c.Security.EncryptionKey)
	c.Security.APITokenHash = getEnv("API_TOKEN_HASH", c.Security.APITokenHash)

	b := &c.Bot
	b.Mode = strings.ToLower(getEnv("TRADING_MODE", b.Mode))
	b.Symbol = getEnv("SYMBOL", b.Symbol)
	b.DryRun = getEnvAsBool("DRY_RUN", b.DryRun)
	b.TargetSize = getEnvAsDecimal("TARGET_SIZE", b.TargetSize)
	b.LotSize = getEnvAsDecimal("LOT_SIZE", b.LotSize)
	b.MinVolume = getEnvAsDecimal("MIN_VOLUME", b.MinVolume)
	b.MaxVolume = getEnvAsDecimal("MAX_VOLUME", b.MaxVolume)
	b.MinProfit = getEnvAsDecimal("MIN_PROFIT", b.MinProfit)
	b.MinProfitPct = getEnvAsDecimal("MIN_PROFIT_PCT", b.MinProfitPct)
	b.MinSpreadBps = getEnvAsDecimal("MIN_SPREAD_BPS", b.MinSpreadBps)
	b.SlippageBps = getEnvAsDecimal("SLIPPAGE_BPS", b.SlippageBps)
	b.MaxSlippageBps = getEnvAsDecimal("MAX_SLIPPAGE_BPS", b.MaxSlippageBps)
	b.ReconfirmBps = getEnvAsDecimal("RECONFIRM_TOLERANCE_BPS", b.ReconfirmBps)
	b.MinConfidence = getEnvAsFloat("MIN_CONFIDENCE", b.MinConfidence)
	b.BookDepth = getEnvAsInt("BOOK_DEPTH", b.BookDepth)
	b.MinBookLevels = getEnvAsInt("MIN_BOOK_LEVELS", b.MinBookLevels)
	b.UseMakerOrders = getEnvAsBool("USE_MAKER_ORDERS", b.UseMakerOrders)
	b.IncludeWithdrawalFees = getEnvAsBool("INCLUDE_WITHDRAWAL_FEES", b.IncludeWithdrawalFees)
	b.OrderTimeout = getEnvAsDuration("ORDER_TIMEOUT", b.OrderTimeout)
	b.FillPollInterval = getEnvAsDuration("FILL_POLL_INTERVAL", b.FillPollInterval)
	b.CycleInterval = getEnvAsDuration("CYCLE_INTERVAL", b.CycleInterval)
	b.Cooldown = getEnvAsDuration("COOLDOWN_AFTER_EXECUTION", b.Cooldown)
	b.StopAfterSuccess = getEnvAsBool("STOP_AFTER_SUCCESS", b.StopAfterSuccess)
	b.HaltOnPartial = getEnvAsBool("HALT_ON_PARTIAL", b.HaltOnPartial)
	b.BalanceRefresh = getEnvAsDuration("BALANCE_REFRESH_INTERVAL", b.BalanceRefresh)
	b.ExecutionLogSize = getEnvAsInt("EXECUTION_LOG_SIZE", b.ExecutionLogSize)
	b.PaperQuoteBalance = getEnvAsDecimal("PAPER_QUOTE_BALANCE", b.PaperQuoteBalance)
	b.PaperBaseBalance = getEnvAsDecimal("PAPER_BASE_BALANCE", b.PaperBaseBalance)

	f := &c.Feeds
	f.ReconnectDelay = getEnvAsDuration("WS_RECONNECT_DELAY", f.ReconnectDelay)
	f.MaxReconnectDelay = getEnvAsDuration("WS_MAX_RECONNECT_DELAY", f.MaxReconnectDelay)
	f.ReadTimeout = getEnvAsDuration("WS_READ_TIMEOUT", f.ReadTimeout)
	f.MEXCPingInterval = getEnvAsDuration("MEXC_PING_INTERVAL", f.MEXCPingInterval)
	f.BingXPingInterval = getEnvAsDuration("BINGX_PING_INTERVAL", f.BingXPingInterval)
	f.TradesEnabled = getEnvAsBool("TRADES_ENABLED", f.TradesEnabled)
	f.TradesIntervalMs = getEnvAsInt("TRADES_INTERVAL_MS", f.TradesIntervalMs)

	applyVenueFees(&c.Fees.MEXC, "MEXC")
	applyVenueFees(&c.Fees.BingX, "BINGX")

	c.Credentials.MEXC.APIKey = getEnv("MEXC_API_KEY", c.Credentials.MEXC.APIKey)
	c.Credentials.MEXC.SecretKey = getEnv("MEXC_SECRET", c.Credentials.MEXC.SecretKey)
	c.Credentials.BingX.APIKey = getEnv("BINGX_API_KEY", c.Credentials.BingX.APIKey)
	c.Credentials.BingX.SecretKey = getEnv("BINGX_SECRET", c.Credentials.BingX.SecretKey)

	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("LOG_FORMAT", c.Logging.Format)
	c.Logging.Output = getEnv("LOG_OUTPUT", c.Logging.Output)
	c.Logging.Development = getEnvAsBool("LOG_DEVELOPMENT", c.Logging.Development)
}

func applyVenueFees(v *VenueFees, prefix string) {
	v.Maker = getEnvAsDecimal(prefix+"_MAKER_FEE", v.Maker)
	v.Taker = getEnvAsDecimal(prefix+"_TAKER_FEE", v.Taker)
	v.Withdraw = getEnvAsDecimal(prefix+"_WITHDRAW_FEE", v.Withdraw)
}

// decryptCredentials расшифровывает секреты с префиксом "enc:" ключом ENCRYPTION_KEY
func (c *Config) decryptCredentials() error {
	for _, v := range []*VenueCredentials{&c.Credentials.MEXC, &c.Credentials.BingX} {
		for _, field := range []*string{&v.APIKey, &v.SecretKey} {
			plain, err := crypto.Open(*field, c.Security.EncryptionKey)
			if err != nil {
				return errors.Wrap(err, "decrypt credential")
			}
			*field = plain
		}
	}
	return nil
}

// IsLive торговля реальными ордерами
func (c *Config) IsLive() bool {
	return c.Bot.Mode == "live"
}

// Validate проверяет диапазоны параметров
func (c *Config) Validate() error {
	if err := c.validateRanges(); err != nil {
		return err
	}
	if err := c.validateTrading(); err != nil {
		return err
	}
	return c.validateSecurity()
}

// validateSecurity проверяет параметры безопасности
func (c *Config) validateSecurity() error {
	if c.Security.EncryptionKey != "" && len(c.Security.EncryptionKey) != 32 {
		return fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes for AES-256")
	}
	if !c.IsLive() {
		return nil
	}
	// live режим без ключей бессмыслен
	for name, v := range map[string]VenueCredentials{"MEXC": c.Credentials.MEXC, "BINGX": c.Credentials.BingX} {
		if v.APIKey == "" || v.SecretKey == "" {
			return fmt.Errorf("%s_API_KEY and %s_SECRET are required in live mode", name, name)
		}
		if err := utils.ValidateAPIKey(v.APIKey); err != nil {
			return fmt.Errorf("%s_API_KEY: %w", name, err)
		}
		if err := utils.ValidateAPISecret(v.SecretKey); err != nil {
			return fmt.Errorf("%s_SECRET: %w", name, err)
		}
	}
	return nil
}

// validateRanges проверяет числовые диапазоны параметров
func (c *Config) validateRanges() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Database.Enabled && (c.Database.Port < 1 || c.Database.Port > 65535) {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
	}
	if c.Database.Retention < 0 {
		return fmt.Errorf("DB_RETENTION cannot be negative, got %v", c.Database.Retention)
	}
	if c.Server.GracePeriod <= 0 {
		return fmt.Errorf("SHUTDOWN_GRACE_PERIOD must be positive, got %v", c.Server.GracePeriod)
	}

	b := c.Bot
	if b.OrderTimeout <= 0 {
		return fmt.Errorf("ORDER_TIMEOUT must be positive, got %v", b.OrderTimeout)
	}
	if b.FillPollInterval <= 0 {
		return fmt.Errorf("FILL_POLL_INTERVAL must be positive, got %v", b.FillPollInterval)
	}
	if b.CycleInterval <= 0 {
		return fmt.Errorf("CYCLE_INTERVAL must be positive, got %v", b.CycleInterval)
	}
	if b.Cooldown < 0 {
		return fmt.Errorf("COOLDOWN_AFTER_EXECUTION cannot be negative, got %v", b.Cooldown)
	}
	if b.BalanceRefresh <= 0 {
		return fmt.Errorf("BALANCE_REFRESH_INTERVAL must be positive, got %v", b.BalanceRefresh)
	}
	if c.Feeds.ReconnectDelay <= 0 {
		return fmt.Errorf("WS_RECONNECT_DELAY must be positive, got %v", c.Feeds.ReconnectDelay)
	}
	if c.Feeds.ReadTimeout <= 0 {
		return fmt.Errorf("WS_READ_TIMEOUT must be positive, got %v", c.Feeds.ReadTimeout)
	}
	if b.BookDepth < 1 || b.BookDepth > 100 {
		return fmt.Errorf("BOOK_DEPTH must be between 1 and 100, got %d", b.BookDepth)
	}
	if b.MinBookLevels < 1 || b.MinBookLevels > b.BookDepth {
		return fmt.Errorf("MIN_BOOK_LEVELS must be between 1 and BOOK_DEPTH, got %d", b.MinBookLevels)
	}
	if b.ExecutionLogSize < 1 {
		return fmt.Errorf("EXECUTION_LOG_SIZE must be positive, got %d", b.ExecutionLogSize)
	}
	return nil
}

// validateTrading проверяет торговые параметры
func (c *Config) validateTrading() error {
	b := c.Bot
	if b.Mode != "paper" && b.Mode != "live" {
		return fmt.Errorf("TRADING_MODE must be paper or live, got %q", b.Mode)
	}
	if b.Symbol == "" {
		return fmt.Errorf("SYMBOL is required")
	}
	if err := utils.ValidateSymbol(b.Symbol); err != nil {
		return fmt.Errorf("SYMBOL: %w", err)
	}
	if utils.ExtractQuoteCurrency(b.Symbol) == "" {
		return fmt.Errorf("SYMBOL %q has no recognizable quote currency", b.Symbol)
	}
	if err := utils.ValidateVolume(b.MinVolume); err != nil {
		return fmt.Errorf("MIN_VOLUME: %w", err)
	}
	if b.MinVolume.GreaterThan(b.MaxVolume) {
		return fmt.Errorf("MIN_VOLUME %s exceeds MAX_VOLUME %s", b.MinVolume, b.MaxVolume)
	}
	if err := utils.ValidateVolume(b.TargetSize); err != nil {
		return fmt.Errorf("TARGET_SIZE: %w", err)
	}
	if b.LotSize.IsNegative() {
		return fmt.Errorf("LOT_SIZE cannot be negative, got %s", b.LotSize)
	}
	for name, v := range map[string]decimal.Decimal{
		"MIN_SPREAD_BPS":          b.MinSpreadBps,
		"SLIPPAGE_BPS":            b.SlippageBps,
		"MAX_SLIPPAGE_BPS":        b.MaxSlippageBps,
		"RECONFIRM_TOLERANCE_BPS": b.ReconfirmBps,
	} {
		if err := utils.ValidateBps(name, v); err != nil {
			return err
		}
	}
	for name, v := range map[string]decimal.Decimal{
		"MIN_PROFIT":     b.MinProfit,
		"MIN_PROFIT_PCT": b.MinProfitPct,
	} {
		if v.IsNegative() {
			return fmt.Errorf("%s cannot be negative, got %s", name, v)
		}
	}
	if b.MinConfidence < 0 || b.MinConfidence > 1 {
		return fmt.Errorf("MIN_CONFIDENCE must be in [0,1], got %v", b.MinConfidence)
	}

	for name, fees := range map[string]VenueFees{"MEXC": c.Fees.MEXC, "BINGX": c.Fees.BingX} {
		for kind, rate := range map[string]decimal.Decimal{"MAKER": fees.Maker, "TAKER": fees.Taker} {
			if err := utils.ValidateFeeRate(name+"_"+kind+"_FEE", rate); err != nil {
				return err
			}
		}
		if fees.Withdraw.IsNegative() {
			return fmt.Errorf("%s_WITHDRAW_FEE cannot be negative, got %s", name, fees.Withdraw)
		}
	}
	return nil
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// Вспомогательные функции для чтения переменных окружения.
// При пустом или некорректном значении возвращается defaultValue.

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := decimal.NewFromString(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
