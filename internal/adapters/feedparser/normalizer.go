package feedparser

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	tagPattern       = regexp.MustCompile(`<[^>]*>`)
	extraNewlines    = regexp.MustCompile(`\n{3,}`)
	entitiesReplacer = strings.NewReplacer(
		"&nbsp;", " ",
		"&amp;", "&",
		"&quot;", `"`,
		"&apos;", "'",
		"&#13;", "\n",
	)
)

// TextNormalizer очищает описания из фида от разметки и HTML-сущностей
type TextNormalizer struct{}

func NewTextNormalizer() *TextNormalizer {
	return &TextNormalizer{}
}

// Normalize повторяет очистку до неподвижной точки, поэтому
// Normalize(Normalize(s)) == Normalize(s) для любой строки.
// После первого прохода каждое изменение укорачивает строку, так что цикл конечен.
func (n *TextNormalizer) Normalize(s string) string {
	for {
		next := normalizePass(s)
		if next == s {
			return s
		}
		s = next
	}
}

func normalizePass(s string) string {
	s = tagPattern.ReplaceAllString(s, "")
	s = entitiesReplacer.Replace(s)
	s = extraNewlines.ReplaceAllString(s, "\n\n")
	s = strings.TrimSpace(s)
	return norm.NFC.String(s)
}
