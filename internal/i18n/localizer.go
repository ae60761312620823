package i18n

import (
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/conneroisu/reactive/internal/errors"
)

// DateStyle selects a date layout.
type DateStyle int

const (
	DateShort DateStyle = iota
	DateTime
	DateISO
)

// dateLayouts maps a base language to its short date and time layouts.
// Languages missing here use ISO 8601.
var dateLayouts = map[string][2]string{
	"en": {"01/02/2006", "3:04 PM"},
	"de": {"02.01.2006", "15:04"},
	"fr": {"02/01/2006", "15:04"},
	"es": {"02/01/2006", "15:04"},
	"it": {"02/01/2006", "15:04"},
	"pt": {"02/01/2006", "15:04"},
	"nl": {"02-01-2006", "15:04"},
	"ru": {"02.01.2006", "15:04"},
	"ja": {"2006/01/02", "15:04"},
	"zh": {"2006/01/02", "15:04"},
	"ko": {"2006. 01. 02.", "15:04"},
}

// Localizer formats values for one language.
type Localizer struct {
	tag     language.Tag
	printer *message.Printer
}

// NewLocalizer creates a localizer for lang.
func NewLocalizer(lang string) (*Localizer, error) {
	tag, err := language.Parse(lang)
	if err != nil {
		return nil, errors.WrapValidation(err, errors.ErrCodeValidationFailed, "invalid language "+lang)
	}
	return &Localizer{
		tag:     tag,
		printer: message.NewPrinter(tag),
	}, nil
}

// Language returns the localizer's language tag.
func (l *Localizer) Language() string {
	return l.tag.String()
}

// Number formats v with the language's grouping and decimal separators. A
// negative decimals keeps the default precision.
func (l *Localizer) Number(v any, decimals int) string {
	if decimals < 0 {
		return l.printer.Sprint(number.Decimal(v))
	}
	return l.printer.Sprint(number.Decimal(v,
		number.MinFractionDigits(decimals),
		number.MaxFractionDigits(decimals)))
}

// Percent formats a ratio as a percentage, 0.25 being 25%.
func (l *Localizer) Percent(v float64) string {
	return l.printer.Sprint(number.Percent(v))
}

// Currency formats amount in the ISO 4217 currency code.
func (l *Localizer) Currency(code string, amount float64) (string, error) {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return "", errors.WrapValidation(err, errors.ErrCodeValidationFailed, "unknown currency "+code)
	}
	return l.printer.Sprint(currency.Symbol(unit.Amount(amount))), nil
}

// Date formats t in the given style.
func (l *Localizer) Date(t time.Time, style DateStyle) string {
	base, _ := l.tag.Base()
	layouts, ok := dateLayouts[base.String()]
	if !ok || style == DateISO {
		if style == DateTime {
			return t.Format("2006-01-02 15:04")
		}
		return t.Format("2006-01-02")
	}
	if style == DateTime {
		return t.Format(layouts[0] + " " + layouts[1])
	}
	return t.Format(layouts[0])
}

// Title title-cases s by the language's rules.
func (l *Localizer) Title(s string) string {
	// A Caser keeps state, so each call gets its own.
	return cases.Title(l.tag).String(s)
}

// Sprintf formats like fmt.Sprintf with localized numbers.
func (l *Localizer) Sprintf(format string, args ...any) string {
	return l.printer.Sprintf(format, args...)
}
