package bot

import (
	"fmt"

	"crossarb/internal/models"
)

// ValidTransitions определяет допустимые переходы машины исполнения.
// Терминальные состояния переходов не имеют.
var ValidTransitions = map[models.ExecutionStatus][]models.ExecutionStatus{
	models.ExecIdle:       {models.ExecValidating},
	models.ExecValidating: {models.ExecReconfirm, models.ExecAborted},
	models.ExecReconfirm:  {models.ExecBothLegs, models.ExecAborted},
	models.ExecBothLegs:   {models.ExecAwaitFills, models.ExecFailed, models.ExecPartial}, // Partial при неудачной компенсации
	models.ExecAwaitFills: {models.ExecSuccess, models.ExecPartial, models.ExecFailed},
}

// CanTransition проверяет допустимость перехода
func CanTransition(from, to models.ExecutionStatus) bool {
	allowed, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// transition переводит исполнение в новое состояние.
// Недопустимый переход это ошибка программиста, а не рынка.
func transition(exec *models.ArbitrageExecution, to models.ExecutionStatus) error {
	if !CanTransition(exec.Status, to) {
		return fmt.Errorf("invalid execution transition %s -> %s", exec.Status, to)
	}
	exec.Status = to
	return nil
}

// StateInfo возвращает описание состояния для UI
func StateInfo(s models.ExecutionStatus) string {
	switch s {
	case models.ExecIdle:
		return "Ожидание возможности"
	case models.ExecValidating:
		return "Проверка глубины стаканов"
	case models.ExecReconfirm:
		return "Повторная проверка цен перед коммитом"
	case models.ExecBothLegs:
		return "Размещение обеих ног..."
	case models.ExecAwaitFills:
		return "Ожидание исполнения ордеров"
	case models.ExecSuccess:
		return "Обе ноги исполнены"
	case models.ExecPartial:
		return "Частичное исполнение! Открытая позиция без хеджа"
	case models.ExecFailed:
		return "Ошибка размещения или исполнения"
	case models.ExecAborted:
		return "Отменено до размещения ордеров"
	default:
		return "Неизвестное состояние"
	}
}

// HasCommittedCapital true если ордера уже могли уйти на биржу.
// Начиная с этого момента исполнение нельзя бросать при остановке.
func HasCommittedCapital(s models.ExecutionStatus) bool {
	return s == models.ExecBothLegs || s == models.ExecAwaitFills || s == models.ExecSuccess || s == models.ExecPartial || s == models.ExecFailed
}
