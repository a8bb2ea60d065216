package models

import "time"

// Notification уведомление о событии движка (уходит в лог и в UI-поток)
type Notification struct {
	ID          int                    `json:"id"`
	Timestamp   time.Time              `json:"timestamp"`
	Type        string                 `json:"type"`     // OPPORTUNITY, SUCCESS, PARTIAL, FAILED, ABORTED, FEED
	Severity    string                 `json:"severity"` // info, warn, error, critical
	ExecutionID string                 `json:"execution_id,omitempty"`
	Message     string                 `json:"message"`
	Meta        map[string]interface{} `json:"meta,omitempty"`
}

// Типы уведомлений
const (
	NotificationTypeOpportunity = "OPPORTUNITY" // найдена возможность
	NotificationTypeSuccess     = "SUCCESS"     // обе ноги исполнены
	NotificationTypePartial     = "PARTIAL"     // куплено, но не продано: открытая позиция
	NotificationTypeFailed      = "FAILED"      // ошибка размещения/исполнения
	NotificationTypeAborted     = "ABORTED"     // отмена до размещения ордеров
	NotificationTypeFeed        = "FEED"        // проблемы с потоком данных
)

// Уровни важности
const (
	SeverityInfo     = "info"
	SeverityWarn     = "warn"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// SeverityForStatus уровень уведомления по итогу исполнения.
// PARTIAL самый громкий сигнал: реальная незахеджированная позиция.
func SeverityForStatus(s ExecutionStatus) string {
	switch s {
	case ExecSuccess:
		return SeverityInfo
	case ExecAborted:
		return SeverityWarn
	case ExecFailed:
		return SeverityError
	case ExecPartial:
		return SeverityCritical
	default:
		return SeverityInfo
	}
}

// NotificationForExecution строит уведомление по завершённому исполнению
func NotificationForExecution(e *ArbitrageExecution) Notification {
	n := Notification{
		Timestamp:   time.Now(),
		Type:        string(e.Status),
		Severity:    SeverityForStatus(e.Status),
		ExecutionID: e.ID,
		Message:     e.Reason,
		Meta: map[string]interface{}{
			"direction":       e.Opportunity.Direction(),
			"volume":          e.Opportunity.Volume.String(),
			"expected_profit": e.ExpectedProfit.String(),
			"dry_run":         e.DryRun,
		},
	}
	if e.CompletedAt != nil {
		n.Timestamp = *e.CompletedAt
	}
	if e.ActualProfit != nil {
		n.Meta["actual_profit"] = e.ActualProfit.String()
	}
	if n.Message == "" {
		n.Message = string(e.Status)
	}
	return n
}
