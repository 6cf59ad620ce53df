package validation

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"cardvault-backend/internal/domain"
	"cardvault-backend/internal/pkg/constants"

	"github.com/google/uuid"
)

// ParseID parses a required UUID request field. Errors wrap domain.ErrInvalidArgument.
func ParseID(field, raw string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, fmt.Errorf("%s is required: %w", field, domain.ErrInvalidArgument)
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%s must be a valid UUID: %w", field, domain.ErrInvalidArgument)
	}
	return id, nil
}

// ParseOptionalID is ParseID for fields that may be omitted.
func ParseOptionalID(field, raw string) (uuid.UUID, error) {
	if strings.TrimSpace(raw) == "" {
		return uuid.Nil, nil
	}
	return ParseID(field, raw)
}

// Reason trims and checks an unlock or release reason.
func Reason(raw string) (string, error) {
	r := strings.TrimSpace(raw)
	if r == "" {
		return "", fmt.Errorf("reason is required: %w", domain.ErrInvalidArgument)
	}
	if utf8.RuneCountInString(r) > constants.MaxReasonLength {
		return "", fmt.Errorf("reason exceeds %d characters: %w", constants.MaxReasonLength, domain.ErrInvalidArgument)
	}
	return r, nil
}

// Amount rejects negative, NaN and infinite monetary values.
func Amount(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return fmt.Errorf("%s must be a non-negative number: %w", field, domain.ErrInvalidArgument)
	}
	return nil
}
