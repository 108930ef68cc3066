package products

import (
	"regexp"
	"strconv"
	"strings"

	pkgerrors "github.com/credenza-market/credenza-backend/pkg/errors"
)

var durationNumber = regexp.MustCompile(`\d+`)

// DurationDays extracts the total subscription length in days from a product
// duration label. Labels are free text like "30 días", "30 dias" or "1 mes";
// month units count as 30 days.
func DurationDays(label string) (int, error) {
	match := durationNumber.FindString(label)
	if match == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "duration label has no day count")
	}
	value, err := strconv.Atoi(match)
	if err != nil || value <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "duration label has no day count")
	}

	lower := strings.ToLower(label)
	if strings.Contains(lower, "mes") || strings.Contains(lower, "month") {
		return value * 30, nil
	}
	return value, nil
}
