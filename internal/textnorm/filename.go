package textnorm

import (
	"strings"
	"unicode"
)

var fileNameReplacer = strings.NewReplacer(
	"<", "",
	">", "",
	":", "",
	"\"", "",
	"/", "",
	"\\", "",
	"|", "",
	"?", "",
	"*", "",
)

// SanitizeFileName removes characters that are unsafe in file and directory
// names. Returns fallback when nothing usable is left.
func SanitizeFileName(name, fallback string) string {
	name = fileNameReplacer.Replace(name)
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	name = strings.Trim(strings.TrimSpace(name), ".")
	if name == "" {
		return fallback
	}
	return name
}
