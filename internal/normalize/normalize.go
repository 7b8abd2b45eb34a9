// Package normalize computes the canonicalization keys used to link records
// that describe the same work. Every function is pure and returns "" when the
// input yields no usable key.
package normalize

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/helixir/paper-harvester/internal/domain"
)

var yearPattern = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// doiPrefixes are stripped after lower-casing, longest first.
var doiPrefixes = []string{
	"https://www.doi.org/",
	"https://dx.doi.org/",
	"http://www.doi.org/",
	"http://dx.doi.org/",
	"https://doi.org/",
	"http://doi.org/",
	"www.doi.org/",
	"dx.doi.org/",
	"doi.org/",
	"doi:",
}

// doiTrimSet is the punctuation that may surround a DOI copied from prose.
const doiTrimSet = " \t\r\n\"'.,;"

// doiClosers and doiOpeners pair the brackets that may wrap a DOI.
var (
	doiClosers = map[byte]byte{'(': ')', '[': ']', '{': '}', '<': '>'}
	doiOpeners = map[byte]byte{')': '(', ']': '[', '}': '{', '>': '<'}
)

// DOI returns the lower-cased bare DOI with resolver prefixes, surrounding
// punctuation and wrapping brackets removed. Brackets that belong to the DOI
// itself, as in 10.1002/(sici)1097, are kept.
func DOI(raw string) string {
	s := trimDOI(strings.ToLower(raw))
	for _, prefix := range doiPrefixes {
		if strings.HasPrefix(s, prefix) {
			s = strings.TrimPrefix(s, prefix)
			break
		}
	}
	return trimDOI(s)
}

func trimDOI(s string) string {
	for {
		t := trimBrackets(strings.Trim(s, doiTrimSet))
		if t == s {
			return t
		}
		s = t
	}
}

// trimBrackets removes one wrapping bracket pair, or one unmatched bracket at
// either end.
func trimBrackets(s string) string {
	if s == "" {
		return s
	}
	first, last := s[0], s[len(s)-1]
	if closer, ok := doiClosers[first]; ok {
		if len(s) > 1 && last == closer && balanced(s[1:len(s)-1], first, closer) {
			return s[1 : len(s)-1]
		}
		if strings.Count(s, string(first)) > strings.Count(s, string(closer)) {
			return s[1:]
		}
	}
	if opener, ok := doiOpeners[last]; ok {
		if strings.Count(s, string(last)) > strings.Count(s, string(opener)) {
			return s[:len(s)-1]
		}
	}
	return s
}

func balanced(s string, open, close byte) bool {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case open:
			depth++
		case close:
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}

// Title lower-cases a title, replaces every character that is not a letter,
// digit or space with a space and collapses runs of whitespace.
func Title(raw string) string {
	return foldWords(raw)
}

// Author normalizes a single author name the same way as Title.
func Author(raw string) string {
	return foldWords(raw)
}

// Year returns the first 19xx or 20xx token found anywhere in raw.
func Year(raw string) string {
	return yearPattern.FindString(raw)
}

// FirstAuthor returns the normalized first entry of an author list.
func FirstAuthor(authors []string) string {
	if len(authors) == 0 {
		return ""
	}
	return Author(authors[0])
}

// PDFURL reduces a PDF link to scheme, lower-cased host and path without a
// trailing slash. Query strings and fragments are dropped.
func PDFURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host) + strings.TrimRight(u.Path, "/")
}

// ExternalIDs returns the de-duplicated "kind:value" keys of ids, lower-cased
// and ordered by identifier kind so the result is stable. The kind prefix keeps
// numeric identifiers from different registries apart.
func ExternalIDs(ids map[string]string) []string {
	if len(ids) == 0 {
		return nil
	}
	kinds := make([]string, 0, len(ids))
	for k := range ids {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)

	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, k := range kinds {
		v := strings.ToLower(strings.TrimSpace(ids[k]))
		if v == "" {
			continue
		}
		v = strings.ToLower(k) + ":" + v
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Keys is the full set of linkage keys for one record.
type Keys struct {
	DOI         string
	Title       string
	Year        string
	FirstAuthor string
	PDFURL      string
	ExternalIDs []string
}

// For computes the linkage keys of a record. Placeholder titles and authors
// written by the search mapper never produce a key.
func For(r *domain.PaperRecord) Keys {
	k := Keys{
		DOI:         DOI(r.DOI),
		Year:        Year(r.Year),
		PDFURL:      PDFURL(r.PDFURL),
		ExternalIDs: ExternalIDs(r.ExternalIDs),
	}
	if strings.TrimSpace(r.Title) != domain.PlaceholderTitle {
		k.Title = Title(r.Title)
	}
	if len(r.Authors) > 0 && strings.TrimSpace(r.Authors[0]) != domain.UnknownAuthor {
		k.FirstAuthor = FirstAuthor(r.Authors)
	}
	return k
}

// Composite returns "title|year|first author", or "" unless all three parts
// are present.
func (k Keys) Composite() string {
	if k.Title == "" || k.Year == "" || k.FirstAuthor == "" {
		return ""
	}
	return k.Title + "|" + k.Year + "|" + k.FirstAuthor
}

func foldWords(raw string) string {
	s := strings.ToLower(norm.NFC.String(raw))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
