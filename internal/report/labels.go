package report

import (
	"time"

	"golang.org/x/text/language"

	"cestas/internal/core"
)

// MonthLabeler produces the display label for a chart row.
type MonthLabeler interface {
	Label(k core.MonthKey) string
}

// abbreviations is a fixed table of month abbreviations, January first.
type abbreviations [12]string

func (a abbreviations) Label(k core.MonthKey) string {
	if k.Month < time.January || k.Month > time.December {
		return ""
	}
	return a[k.Month-1]
}

var (
	portuguese = abbreviations{"jan", "fev", "mar", "abr", "mai", "jun", "jul", "ago", "set", "out", "nov", "dez"}
	english    = abbreviations{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}
	spanish    = abbreviations{"ene", "feb", "mar", "abr", "may", "jun", "jul", "ago", "sept", "oct", "nov", "dic"}
)

// The first entry is the fallback when nothing matches.
var supportedLocales = []language.Tag{
	language.BrazilianPortuguese,
	language.English,
	language.Spanish,
}

var (
	localeTables  = []abbreviations{portuguese, english, spanish}
	localeMatcher = language.NewMatcher(supportedLocales)
)

// DefaultLabeler returns Brazilian Portuguese abbreviations.
func DefaultLabeler() MonthLabeler {
	return portuguese
}

// NewMonthLabeler picks the closest supported table for a BCP 47 locale
// such as "pt-BR" or "en-US". Unknown or malformed locales fall back to
// Brazilian Portuguese.
func NewMonthLabeler(locale string) MonthLabeler {
	tag, err := language.Parse(locale)
	if err != nil {
		return portuguese
	}
	_, idx, conf := localeMatcher.Match(tag)
	if conf == language.No {
		return portuguese
	}
	return localeTables[idx]
}
