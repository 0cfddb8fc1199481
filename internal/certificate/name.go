// Package certificate renders, archives and delivers completion certificates.
package certificate

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// MaxNameRunes is the longest name printed in full.
const MaxNameRunes = 24

// DisplayName title-cases name and shortens long names to first name plus
// the initial of the second one ("Alexandria Ocasio-Cortez Smith" becomes
// "Alexandria O.").
func DisplayName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	full := cases.Title(language.English).String(strings.Join(fields, " "))
	if utf8.RuneCountInString(full) <= MaxNameRunes {
		return full
	}
	words := strings.Fields(full)
	first := truncateRunes(words[0], MaxNameRunes)
	if len(words) == 1 {
		return first
	}
	initial, _ := utf8.DecodeRuneInString(words[1])
	short := first + " " + string(initial) + "."
	if utf8.RuneCountInString(short) > MaxNameRunes {
		return first
	}
	return short
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
