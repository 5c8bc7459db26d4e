package bot

import "pairsbot/internal/models"

// ValidTransitions определяет допустимые переходы состояний пары.
// Два автомата (решения Signal Engine и исполнение Execution Engine)
// связаны событиями, но состояние пары одно.
var ValidTransitions = map[string][]string{
	models.StateFlat:     {models.StateEntering},
	models.StateEntering: {models.StateOpen, models.StateFlat, models.StateDegraded}, // Flat при abort входа
	models.StateOpen:     {models.StateExiting, models.StateDegraded},
	models.StateExiting:  {models.StateFlat, models.StateDegraded},
	models.StateDegraded: {models.StateFlat}, // только ручной сброс / успешный flatten
}

// CanTransition проверяет допустимость перехода
func CanTransition(from, to string) bool {
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

// StateInfo возвращает описание состояния для панели
func StateInfo(s string) string {
	switch s {
	case models.StateFlat:
		return "Позиции нет, мониторинг спреда"
	case models.StateEntering:
		return "Открытие ног..."
	case models.StateOpen:
		return "Позиция открыта"
	case models.StateExiting:
		return "Закрытие ног..."
	case models.StateDegraded:
		return "Деградация! Требуется вмешательство"
	default:
		return "Неизвестное состояние"
	}
}

// HasOpenExposure возвращает true если у пары может быть ненулевая нога
func HasOpenExposure(s string) bool {
	return s == models.StateEntering || s == models.StateOpen ||
		s == models.StateExiting || s == models.StateDegraded
}
