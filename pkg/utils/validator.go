package utils

import (
	"fmt"
	"regexp"
	"strings"
)

// validator.go - валидация входных данных
//
// Проверки возвращают error с описанием проблемы или nil.

var symbolRe = regexp.MustCompile(`^[A-Z0-9]{2,20}$`)

// ValidateSymbol проверяет формат торгового символа (например BTCUSDT).
func ValidateSymbol(symbol string) error {
	if symbol == "" {
		return fmt.Errorf("symbol is empty")
	}
	if !symbolRe.MatchString(symbol) {
		return fmt.Errorf("invalid symbol format: %s", symbol)
	}
	return nil
}

// ValidateVenue проверяет идентификатор биржи.
func ValidateVenue(venue string) error {
	if venue == "" {
		return fmt.Errorf("venue is empty")
	}
	if strings.ContainsAny(venue, " :/") {
		return fmt.Errorf("invalid venue identifier: %s", venue)
	}
	return nil
}

// ValidateVolume проверяет объём ордера.
func ValidateVolume(volume float64) error {
	if volume <= 0 {
		return fmt.Errorf("volume must be positive, got %f", volume)
	}
	return nil
}

// ValidatePrice проверяет цену.
func ValidatePrice(price float64) error {
	if price <= 0 {
		return fmt.Errorf("price must be positive, got %f", price)
	}
	return nil
}

// ValidateAPIKey выполняет базовую проверку API ключа.
func ValidateAPIKey(key string) error {
	if len(key) < 16 {
		return fmt.Errorf("api key too short")
	}
	if strings.TrimSpace(key) != key {
		return fmt.Errorf("api key has leading or trailing whitespace")
	}
	return nil
}
