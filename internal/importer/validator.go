package importer

// validator.go checks mapped rows against the catalog entry: required
// fields must be present and non-empty, and formatted fields must parse.
// Validation is per-row and never fatal; each failure becomes one entry in
// the session's error set.

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/openledgerhq/importd/internal/catalog"
)

var (
	emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phoneRe = regexp.MustCompile(`^[\d\s\-\+\(\)\.]+$`)

	// currencyJunkRe strips currency symbols, thousands separators and
	// other decoration before the numeric parse.
	currencyJunkRe = regexp.MustCompile(`[^0-9.\-]`)
)

// dateLayouts are the calendar shapes accepted for date-formatted fields.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"2006-01-02T15:04:05Z07:00",
	"Jan 2, 2006",
	"January 2, 2006",
	"2-Jan-2006",
}

// ValidateRows produces the session's validation error set for the given
// rows under the resolved mapping. Runs once per transition into preview.
func ValidateRows(rows []Row, headers []string, mapping map[string]string, entry catalog.Entry) []ValidationError {
	mapped := MapRows(rows, headers, mapping)

	var errs []ValidationError
	for _, mr := range mapped {
		for _, f := range entry.Fields {
			value := mr.Values[f.Name]

			if f.Required && strings.TrimSpace(value) == "" {
				errs = append(errs, ValidationError{
					RowIndex: mr.Index,
					Field:    f.Name,
					Message:  fmt.Sprintf("%s is required", f.Label),
				})
				continue
			}

			if value != "" && f.Format != catalog.FormatNone {
				if msg := checkFormat(f.Format, value); msg != "" {
					errs = append(errs, ValidationError{
						RowIndex: mr.Index,
						Field:    f.Name,
						Message:  msg,
					})
				}
			}
		}
	}
	return errs
}

// checkFormat validates a non-empty value against a field format.
// Returns a user-facing message, or "" when the value is acceptable.
func checkFormat(format catalog.Format, value string) string {
	switch format {
	case catalog.FormatEmail:
		if !emailRe.MatchString(value) {
			return "Invalid email format"
		}
	case catalog.FormatPhone:
		if !phoneRe.MatchString(value) {
			return "Invalid phone format"
		}
	case catalog.FormatCurrency:
		stripped := currencyJunkRe.ReplaceAllString(value, "")
		if _, err := decimal.NewFromString(stripped); err != nil {
			return "Invalid number"
		}
	case catalog.FormatNumber:
		if _, err := decimal.NewFromString(strings.TrimSpace(value)); err != nil {
			return "Invalid number"
		}
	case catalog.FormatDate:
		if !parseableDate(value) {
			return "Invalid date format"
		}
	}
	return ""
}

func parseableDate(value string) bool {
	v := strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, v); err == nil {
			return true
		}
	}
	return false
}
