package names

import (
	"regexp"
	"strings"
	"unicode"
)

// ── Normalizer ─────────────────────────────────────────────
// Canonicalizes a noisy company name into its display form.
// The regex passes run in a fixed order; each one assumes the
// output of the previous pass.

// space matches any whitespace rune, including \v and Unicode separators.
const space = `[\s\v\p{Z}\x{85}]`

var (
	reSpacedHyphen = regexp.MustCompile(space + `-` + space)
	reParenthesis  = regexp.MustCompile(`\(.+\)`)
	reSpaces       = regexp.MustCompile(space + `+`)
	reDisallowed   = regexp.MustCompile(`[^\p{L}\p{N}_\s\v\p{Z}\x{85}&-]`)
)

// Normalizer cleans company names. The zero value is not usable; use NewNormalizer.
type Normalizer struct {
	suffixes SuffixStripper
}

// NewNormalizer returns a Normalizer that delegates legal-entity suffix
// removal to s. A nil s keeps suffixes untouched.
func NewNormalizer(s SuffixStripper) *Normalizer {
	if s == nil {
		s = NopStripper{}
	}
	return &Normalizer{suffixes: s}
}

// Clean returns the canonical form of name.
func (n *Normalizer) Clean(name string) string {
	s := strings.ReplaceAll(TitleCase(name), "Uk", "UK")
	s = CapitalizeAcronyms(s)
	s = reSpacedHyphen.ReplaceAllLiteralString(s, "-")
	s = reParenthesis.ReplaceAllLiteralString(s, "")
	s = reSpaces.ReplaceAllLiteralString(s, " ")
	s = reDisallowed.ReplaceAllLiteralString(s, " ")
	return n.suffixes.Strip(s)
}

// CleanAll cleans every name and returns the results in input order.
func (n *Normalizer) CleanAll(in []string) []string {
	out := make([]string, len(in))
	for i, name := range in {
		out[i] = n.Clean(name)
	}
	return out
}

// TitleCase uppercases the first cased letter of every word and lowercases
// the rest. A word starts after any rune that is not a cased letter, so
// "o'neil" becomes "O'Neil" and "is&hs" becomes "Is&Hs".
func TitleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevCased := false
	for _, r := range s {
		cased := isCased(r)
		if cased {
			if prevCased {
				r = unicode.ToLower(r)
			} else {
				r = unicode.ToTitle(r)
			}
		}
		prevCased = cased
		b.WriteRune(r)
	}
	return b.String()
}

func isCased(r rune) bool {
	return unicode.IsUpper(r) || unicode.IsLower(r) || unicode.IsTitle(r)
}
