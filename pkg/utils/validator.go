package utils

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// validator.go - валидация входных данных (символы, bps, объёмы, комиссии)
//
// Возвращает error с описанием проблемы или nil.

var (
	symbolPattern = regexp.MustCompile(`^[A-Za-z0-9]+([-_/][A-Za-z0-9]+)?$`)
	apiKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// knownQuotes котируемые валюты в порядке проверки (длинные раньше коротких)
var knownQuotes = []string{"USDT", "USDC", "FDUSD", "BUSD", "USD", "BTC", "ETH", "EUR"}

// ValidateSymbol проверяет формат символа (BTCUSDT, BTC-USDC, btc/usdc)
func ValidateSymbol(symbol string) error {
	if len(symbol) < 2 {
		return fmt.Errorf("symbol %q is too short", symbol)
	}
	if len(symbol) > 30 {
		return fmt.Errorf("symbol %q is too long", symbol)
	}
	if !symbolPattern.MatchString(symbol) {
		return fmt.Errorf("symbol %q contains invalid characters", symbol)
	}
	return nil
}

// NormalizeSymbol приводит символ к виду BTCUSDC (верхний регистр, без разделителей)
func NormalizeSymbol(symbol string) string {
	r := strings.NewReplacer("-", "", "_", "", "/", "")
	return strings.ToUpper(r.Replace(symbol))
}

// splitSymbol разбивает символ на base/quote.
// С разделителем - по разделителю, без него - по известным котируемым валютам.
func splitSymbol(symbol string) (string, string) {
	upper := strings.ToUpper(symbol)
	for _, sep := range []string{"-", "_", "/"} {
		if i := strings.Index(upper, sep); i > 0 {
			return upper[:i], upper[i+1:]
		}
	}
	for _, q := range knownQuotes {
		if strings.HasSuffix(upper, q) && len(upper) > len(q) {
			return strings.TrimSuffix(upper, q), q
		}
	}
	return upper, ""
}

// ExtractBaseCurrency базовая валюта символа (BTC для BTC-USDC)
func ExtractBaseCurrency(symbol string) string {
	base, _ := splitSymbol(symbol)
	return base
}

// ExtractQuoteCurrency котируемая валюта символа (USDC для BTC-USDC)
func ExtractQuoteCurrency(symbol string) string {
	_, quote := splitSymbol(symbol)
	return quote
}

// ValidateBps значение в базисных пунктах: 0 <= bps <= 10000
func ValidateBps(name string, bps decimal.Decimal) error {
	if bps.IsNegative() {
		return fmt.Errorf("%s cannot be negative, got %s", name, bps)
	}
	if bps.GreaterThan(BpsMultiplier) {
		return fmt.Errorf("%s must not exceed 10000 bps, got %s", name, bps)
	}
	return nil
}

// ValidateVolume объём должен быть положительным
func ValidateVolume(volume decimal.Decimal) error {
	if !volume.IsPositive() {
		return fmt.Errorf("volume must be positive, got %s", volume)
	}
	return nil
}

// ValidateFeeRate ставка комиссии в долях: 0 <= rate < 1
func ValidateFeeRate(name string, rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("%s must be in [0, 1), got %s", name, rate)
	}
	return nil
}

// ValidateAPIKey базовая проверка API ключа
func ValidateAPIKey(apiKey string) error {
	if apiKey == "" {
		return fmt.Errorf("api key is empty")
	}
	if len(apiKey) < 16 {
		return fmt.Errorf("api key is too short")
	}
	if !apiKeyPattern.MatchString(apiKey) {
		return fmt.Errorf("api key contains invalid characters")
	}
	return nil
}

// ValidateAPISecret базовая проверка секрета (любые символы, минимум 16)
func ValidateAPISecret(secret string) error {
	if secret == "" {
		return fmt.Errorf("api secret is empty")
	}
	if len(secret) < 16 {
		return fmt.Errorf("api secret is too short")
	}
	return nil
}
