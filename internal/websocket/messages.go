package websocket

import (
	"time"

	"crossarb/internal/models"
)

// MessageType определяет тип WebSocket сообщения
type MessageType string

// Типы WebSocket сообщений
const (
	// MessageTypeBook - верх стакана площадки
	// Отправляется не чаще BookInterval на площадку
	MessageTypeBook MessageType = "book"

	// MessageTypeOpportunity - возможность, прошедшая порог confidence
	MessageTypeOpportunity MessageType = "opportunity"

	// MessageTypeExecution - исполнение в терминальном состоянии
	MessageTypeExecution MessageType = "execution"

	// MessageTypeStats - статистика движка после каждого исполнения
	MessageTypeStats MessageType = "stats"

	// MessageTypeNotification - уведомление (PARTIAL с severity critical)
	MessageTypeNotification MessageType = "notification"
)

// Message - конверт всех сообщений потока /ws/stream
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// BookData - верх стакана для UI
type BookData struct {
	Venue      models.Venue        `json:"venue"`
	Symbol     string              `json:"symbol"`
	Bids       []models.PriceLevel `json:"bids"`
	Asks       []models.PriceLevel `json:"asks"`
	SequenceID int64               `json:"sequence_id"`
	ObservedAt time.Time           `json:"observed_at"`
}

// NewBookData обрезает снимок до depth уровней с каждой стороны.
// Срезы снимка не копируются: снимок после публикации неизменяем.
func NewBookData(snap *models.OrderBookSnapshot, depth int) *BookData {
	return &BookData{
		Venue:      snap.Venue,
		Symbol:     snap.Symbol,
		Bids:       head(snap.Bids, depth),
		Asks:       head(snap.Asks, depth),
		SequenceID: snap.SequenceID,
		ObservedAt: snap.ObservedAt,
	}
}

func head(levels []models.PriceLevel, depth int) []models.PriceLevel {
	if depth <= 0 || depth >= len(levels) {
		return levels
	}
	return levels[:depth]
}
