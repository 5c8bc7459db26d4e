package utils

import (
	"math"
)

// math.go - математические утилиты для парного трейдинга
//
// Назначение:
// Чистые функции без побочных эффектов для расчётов объёмов,
// проскальзывания и PNL по ногам позиции.
//
// Функции:
// - RoundToLotSize: округление объёма до шага биржи
// - WalkDepth: средневзвешенная цена исполнения по стакану
// - SlippageBps: проскальзывание в базисных пунктах
// - CalculateLegPNL: PNL одной ноги (знаковый объём)

// RoundToLotSize округляет значение ВНИЗ до ближайшего кратного lotSize.
//
// Округление вниз гарантирует, что объём ордера не превысит
// доступные средства.
//
// Примеры:
//   - RoundToLotSize(0.123456, 0.001) = 0.123
//   - RoundToLotSize(1.999, 0.01) = 1.99
func RoundToLotSize(value, lotSize float64) float64 {
	if lotSize <= 0 {
		return value
	}
	return math.Floor(value/lotSize) * lotSize
}

// RoundToLotSizeUp округляет значение ВВЕРХ до ближайшего кратного lotSize.
// Используется когда нужно гарантировать минимальный объём (minQty).
func RoundToLotSizeUp(value, lotSize float64) float64 {
	if lotSize <= 0 {
		return value
	}
	return math.Ceil(value/lotSize) * lotSize
}

// DepthLevel представляет один уровень стакана ордеров
type DepthLevel struct {
	Price  float64
	Volume float64
}

// WalkDepth моделирует исполнение рыночного ордера заданного объёма.
//
// Проходит по уровням стакана (от лучшего к худшему) и рассчитывает
// средневзвешенную цену исполнения с учётом глубины.
//
// Параметры:
//   - levels: уровни стакана, отсортированы от лучшей цены к худшей
//     (asks по возрастанию для покупки, bids по убыванию для продажи)
//   - targetVolume: требуемый объём в монетах базового актива
//
// Возвращает:
//   - avgPrice: средневзвешенная цена исполнения
//   - filledVolume: реально доступный объём (может быть < targetVolume)
func WalkDepth(levels []DepthLevel, targetVolume float64) (avgPrice, filledVolume float64) {
	if len(levels) == 0 || targetVolume <= 0 {
		return 0, 0
	}

	var sumCost float64 // Σ(price × volume)
	remaining := targetVolume

	for _, level := range levels {
		if level.Price <= 0 || level.Volume <= 0 {
			continue
		}

		take := math.Min(remaining, level.Volume)
		sumCost += level.Price * take
		filledVolume += take
		remaining -= take

		if remaining <= 0 {
			break
		}
	}

	if filledVolume == 0 {
		return 0, 0
	}

	return sumCost / filledVolume, filledVolume
}

// SlippageBps рассчитывает ожидаемое проскальзывание в базисных пунктах
// относительно лучшей цены стакана.
//
// Возвращает абсолютное значение: для покупки средняя цена хуже (выше)
// лучшего ask, для продажи хуже (ниже) лучшего bid.
func SlippageBps(levels []DepthLevel, targetVolume float64) float64 {
	if len(levels) == 0 || levels[0].Price <= 0 {
		return 0
	}

	bestPrice := levels[0].Price
	avgPrice, filled := WalkDepth(levels, targetVolume)
	if filled == 0 {
		return 0
	}

	return math.Abs(avgPrice-bestPrice) / bestPrice * 10000
}

// CalculateLegPNL расчитывает PNL одной ноги по знаковому объёму.
//
// Формула:
//
//	PNL = (P_current - P_entry) × qty
//
// Для шорта qty отрицательный, поэтому прибыль при падении цены
// получается автоматически.
func CalculateLegPNL(entryPrice, currentPrice, signedQty float64) float64 {
	return (currentPrice - entryPrice) * signedQty
}

// CalculatePairPNL расчитывает суммарный PNL двухногой позиции.
func CalculatePairPNL(entryA, currentA, qtyA, entryB, currentB, qtyB float64) float64 {
	return CalculateLegPNL(entryA, currentA, qtyA) + CalculateLegPNL(entryB, currentB, qtyB)
}

// Clamp ограничивает значение диапазоном [min, max].
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
