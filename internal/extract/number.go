package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

var (
	digitsRe     = regexp.MustCompile(`\d+`)
	decimalRe    = regexp.MustCompile(`\d+(?:[.,]\d+)?`)
	nbspReplacer = strings.NewReplacer(" ", " ", " ", " ")
)

// parsePrice converts a portal price string to an integer amount.
// "7 750 000 ₽" → 7750000. Thousands separators (spaces, NBSP) and the
// currency symbol are dropped; anything without digits is an error, never a
// silent zero.
func parsePrice(text string) (int64, error) {
	clean := nbspReplacer.Replace(text)

	var b strings.Builder
	for _, r := range clean {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0, eris.Errorf("no digits in price %q", text)
	}

	n, err := strconv.ParseInt(b.String(), 10, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "price %q", text)
	}
	if n < 0 {
		return 0, eris.Errorf("negative price %q", text)
	}
	return n, nil
}

// parseDecimal reads the leading decimal number from a measurement string,
// tolerating a comma decimal separator and unit suffixes: "12,4 м²" → 12.4.
func parseDecimal(text string) (float64, error) {
	m := decimalRe.FindString(nbspReplacer.Replace(text))
	if m == "" {
		return 0, eris.Errorf("no number in %q", text)
	}

	f, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", "."), 64)
	if err != nil {
		return 0, eris.Wrapf(err, "decimal %q", text)
	}
	if f < 0 {
		return 0, eris.Errorf("negative value %q", text)
	}
	return f, nil
}

// parseInteger reads the first integer from a string: "10 этаж" → 10.
func parseInteger(text string) (int, error) {
	m := digitsRe.FindString(text)
	if m == "" {
		return 0, eris.Errorf("no integer in %q", text)
	}

	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, eris.Wrapf(err, "integer %q", text)
	}
	return n, nil
}

// parseCoordinate parses a latitude or longitude value.
func parseCoordinate(text string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return 0, eris.Wrapf(err, "coordinate %q", text)
	}
	return f, nil
}
