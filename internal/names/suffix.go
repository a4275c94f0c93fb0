package names

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"slices"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// SuffixStripper removes legal-entity designators ("Ltd", "GmbH", ...) from
// the end of a company name.
type SuffixStripper interface {
	Strip(name string) string
}

// NopStripper returns names unchanged.
type NopStripper struct{}

func (NopStripper) Strip(name string) string { return name }

//go:embed terms.yaml
var defaultTerms []byte

// termFile is the on-disk shape of a suffix dictionary.
type termFile struct {
	Terms []string `yaml:"terms"`
}

// DictionaryStripper strips suffixes found in a term dictionary.
// Terms with more words are tried first; each term is tried once,
// so "Acme Co Ltd" loses both "Ltd" and "Co".
type DictionaryStripper struct {
	terms [][]string // folded tokens, longest first
}

// NewDictionaryStripper builds a stripper from raw terms such as "l.l.c." or "co ltd".
func NewDictionaryStripper(terms []string) *DictionaryStripper {
	seen := make(map[string]bool, len(terms))
	folded := make([][]string, 0, len(terms))
	for _, t := range terms {
		toks := foldTokens(t)
		if len(toks) == 0 {
			continue
		}
		key := strings.Join(toks, " ")
		if seen[key] {
			continue
		}
		seen[key] = true
		folded = append(folded, toks)
	}
	sort.SliceStable(folded, func(i, j int) bool {
		return len(folded[i]) > len(folded[j])
	})
	return &DictionaryStripper{terms: folded}
}

// LoadDictionary reads a YAML term file ({terms: [...]}).
func LoadDictionary(r io.Reader) (*DictionaryStripper, error) {
	var tf termFile
	if err := yaml.NewDecoder(r).Decode(&tf); err != nil {
		return nil, fmt.Errorf("decode suffix terms: %w", err)
	}
	if len(tf.Terms) == 0 {
		return nil, fmt.Errorf("suffix dictionary has no terms")
	}
	return NewDictionaryStripper(tf.Terms), nil
}

// LoadDictionaryFile reads a YAML term file from disk.
// An empty path returns the built-in dictionary.
func LoadDictionaryFile(path string) (*DictionaryStripper, error) {
	if path == "" {
		return DefaultDictionary(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open suffix terms: %w", err)
	}
	defer f.Close()
	return LoadDictionary(f)
}

// DefaultDictionary returns the built-in dictionary.
func DefaultDictionary() *DictionaryStripper {
	var tf termFile
	if err := yaml.Unmarshal(defaultTerms, &tf); err != nil {
		panic(fmt.Sprintf("names: embedded terms.yaml: %v", err))
	}
	return NewDictionaryStripper(tf.Terms)
}

// Len returns the number of distinct terms.
func (d *DictionaryStripper) Len() int { return len(d.terms) }

// Strip removes every dictionary term found at the end of name.
func (d *DictionaryStripper) Strip(name string) string {
	name = stripTail(name)
	parts := strings.Fields(name)
	folded := make([]string, len(parts))
	for i, p := range parts {
		folded[i] = foldToken(p)
	}

	for _, term := range d.terms {
		n := len(term)
		if n > len(folded) {
			continue
		}
		if slices.Equal(folded[len(folded)-n:], term) {
			folded = folded[:len(folded)-n]
			parts = parts[:len(parts)-n]
		}
	}
	return stripTail(strings.Join(parts, " "))
}

// stripTail drops trailing runes that are neither word characters nor dots,
// and surrounding whitespace.
func stripTail(s string) string {
	s = strings.TrimRightFunc(s, func(r rune) bool {
		return r != '.' && r != '_' && !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	return strings.TrimSpace(s)
}

var punct = strings.NewReplacer(".", "", ",", "", "-", "")

func foldTokens(term string) []string {
	var out []string
	for _, tok := range strings.Fields(term) {
		if f := foldToken(tok); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// foldToken lowercases, strips accents and drops ". , -".
func foldToken(tok string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	s, _, err := transform.String(t, strings.ToLower(tok))
	if err != nil {
		s = strings.ToLower(tok)
	}
	return punct.Replace(s)
}
