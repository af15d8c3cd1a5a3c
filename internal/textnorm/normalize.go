package textnorm

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var separatorReplacer = strings.NewReplacer(
	"–", " ",
	"—", " ",
	"-", " ",
	":", " ",
)

var (
	// bracketedMetaPattern matches "(official audio)", "[4k remaster]" and similar groups.
	bracketedMetaPattern = regexp.MustCompile(`[\(\[]\s*(?:official|music video|lyric video|lyrics|audio|mv|hd|4k)\b[^\)\]]*[\)\]]`)
	// metaTokenPattern lists longer phrases first so they win over their prefixes.
	metaTokenPattern = regexp.MustCompile(`\b(?:official music video|official audio|official video|lyric video|music video|lyrics|official|audio|mv|hd|4k)\b`)
	emptyBracketPattern = regexp.MustCompile(`\(\s*\)|\[\s*\]`)
	featPattern         = regexp.MustCompile(`\b(?:feat|ft)\b\.?`)
)

// Normalize returns the comparison form of text. It never fails; empty input
// yields an empty string.
func Normalize(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	s := norm.NFC.String(text)
	s = cases.Lower(language.Und).String(s)
	s = separatorReplacer.Replace(s)
	s = bracketedMetaPattern.ReplaceAllString(s, " ")
	s = metaTokenPattern.ReplaceAllString(s, " ")
	s = emptyBracketPattern.ReplaceAllString(s, " ")
	s = featPattern.ReplaceAllString(s, "feat")
	return strings.Join(strings.Fields(s), " ")
}

// Tokens splits the normalized form of text on whitespace.
func Tokens(text string) []string {
	return strings.Fields(Normalize(text))
}
