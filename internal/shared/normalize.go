package shared

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// featMarkers open a featured-artist parenthetical. Only the first one found is stripped by [PruneTitle].
var featMarkers = []string{"(feat.", "(ft.", "(with "}

// titleReplacer removes the fixed literal set of punctuation and space characters.
var titleReplacer = strings.NewReplacer(
	" ", "",
	".", "",
	",", "",
	"'", "",
	"\"", "",
	"!", "",
	"?", "",
	"-", "",
	"&", "",
	"/", "",
	"(", "",
	")", "",
	"[", "",
	"]", "",
)

// searchReplacer strips brackets and dashes from search queries.
var searchReplacer = strings.NewReplacer(
	"(", "",
	")", "",
	"[", "",
	"]", "",
	"–", " ",
	"—", " ",
)

var (
	searchFeatPattern      = regexp.MustCompile(`(?i)\((?:feat\.|ft\.)[^)]*\)`)
	searchRadioEditPattern = regexp.MustCompile(`(?i)\(?radio edit\)?`)
	whitespacePattern      = regexp.MustCompile(`\s+`)
)

// FoldASCII decomposes s (NFD), drops combining marks, then drops any remaining non-ASCII code point.
func FoldASCII(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if r <= unicode.MaxASCII {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// stripFirstFeat removes the first "(feat. …)", "(ft. …)" or "(with …)" span, up to and including the next
// closing parenthesis. Input must already be lowercase.
func stripFirstFeat(s string) string {
	start := -1
	for _, marker := range featMarkers {
		if i := strings.Index(s, marker); i >= 0 && (start < 0 || i < start) {
			start = i
		}
	}
	if start < 0 {
		return s
	}
	end := strings.Index(s[start:], ")")
	if end < 0 {
		return s
	}
	return s[:start] + s[start+end+1:]
}

// PruneTitle reduces a title (or album name) to a compact comparison key: lowercase, no featured-artist
// parenthetical, no punctuation or spaces, ASCII only.
//
// PruneTitle is idempotent.
func PruneTitle(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	s = stripFirstFeat(s)
	s = FoldASCII(s)
	s = titleReplacer.Replace(s)
	return strings.TrimSpace(strings.ToLower(s))
}

// PruneTitleForSearch is the looser variant used to build search queries. Case and word boundaries survive.
func PruneTitleForSearch(s string) string {
	s = searchFeatPattern.ReplaceAllString(s, "")
	s = searchRadioEditPattern.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "-", " ")
	s = searchReplacer.Replace(s)
	s = FoldASCII(s)
	s = whitespacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// PrunePunctuation keeps only letters and digits.
func PrunePunctuation(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeTrackKey builds a "title|artist" key with lowercase, collapsed whitespace.
func NormalizeTrackKey(title, artist string) string {
	normalize := func(s string) string {
		return strings.Join(strings.Fields(strings.ToLower(s)), " ")
	}
	return normalize(title) + "|" + normalize(artist)
}
