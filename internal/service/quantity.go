package service

import (
	"regexp"
	"strconv"
	"strings"

	"exchange-service/internal/apperr"
)

var (
	// commas only as thousands separators: "1,200" but not "5,5"
	leadingNumber = regexp.MustCompile(`^([+-]?(?:\d{1,3}(?:,\d{3})+|\d+)(?:\.\d+)?)(.*)$`)
	exponent      = regexp.MustCompile(`^[eE][+-]?\d`)
)

// parseQuantity reads the leading number of free-form quantities such as
// "20 Tons", "5 units", "5kg" or "1,200 kg". ok is false when there is no
// unambiguous leading number ("5,5 units", "1e3", "1.2.3").
func parseQuantity(raw string) (float64, bool) {
	m := leadingNumber.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return 0, false
	}

	if rest := m[2]; rest != "" {
		switch ch := rest[0]; {
		case ch >= '0' && ch <= '9', ch == ',', ch == '.':
			return 0, false
		case exponent.MatchString(rest):
			return 0, false
		}
	}

	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// validateRequestedQuantity is best-effort: quantities without a leading number
// on either side are accepted as opaque strings.
func validateRequestedQuantity(requested, advertised string) error {
	if strings.TrimSpace(requested) == "" {
		return apperr.Validation("requested quantity is required")
	}

	want, ok := parseQuantity(requested)
	if !ok {
		return nil
	}
	if want <= 0 {
		return apperr.Validation("requested quantity must be positive")
	}

	have, ok := parseQuantity(advertised)
	if ok && want > have {
		return apperr.Validation("requested quantity %s exceeds available quantity %s", requested, advertised)
	}
	return nil
}
