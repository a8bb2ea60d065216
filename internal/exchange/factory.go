package exchange

import (
	"fmt"
	"strings"

	"crossarb/internal/models"
	"crossarb/pkg/utils"
)

// SupportedVenues - список поддерживаемых площадок
var SupportedVenues = []models.Venue{
	models.VenueMEXC,
	models.VenueBingX,
}

// ParseVenue имя площадки без учёта регистра
func ParseVenue(name string) (models.Venue, error) {
	v := models.Venue(strings.ToLower(strings.TrimSpace(name)))
	if !IsSupported(v) {
		return "", fmt.Errorf("unsupported venue: %s", name)
	}
	return v, nil
}

// IsSupported проверяет, поддерживается ли площадка
func IsSupported(venue models.Venue) bool {
	for _, supported := range SupportedVenues {
		if venue == supported {
			return true
		}
	}
	return false
}

// NewOrderBookFeed потоковый адаптер площадки
func NewOrderBookFeed(venue models.Venue, cfg FeedConfig, log *utils.Logger) (OrderBookFeed, error) {
	switch venue {
	case models.VenueMEXC:
		return NewMEXCFeed(cfg, log), nil
	case models.VenueBingX:
		return NewBingXFeed(cfg, log), nil
	default:
		return nil, fmt.Errorf("unsupported venue: %s", venue)
	}
}

// NewLiveTradingClient боевой REST клиент площадки
func NewLiveTradingClient(venue models.Venue, cfg RESTConfig, log *utils.Logger) (TradingClient, error) {
	if cfg.Credentials.APIKey == "" || cfg.Credentials.SecretKey == "" {
		return nil, fmt.Errorf("%s: api credentials are required for live trading", venue)
	}
	switch venue {
	case models.VenueMEXC:
		return NewMEXCClient(cfg, log), nil
	case models.VenueBingX:
		return NewBingXClient(cfg, log), nil
	default:
		return nil, fmt.Errorf("unsupported venue: %s", venue)
	}
}
