package dedup

import (
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/helixir/paper-harvester/internal/domain"
	"github.com/helixir/paper-harvester/internal/normalize"
)

// canonicalScore ranks candidate base records. Fields compare in order:
// has DOI, has PDF URL, has abstract, has summary, citations, abstract
// length, title length.
type canonicalScore [7]int

func scoreOf(r *domain.PaperRecord) canonicalScore {
	return canonicalScore{
		boolInt(normalize.DOI(r.DOI) != ""),
		boolInt(r.PDFURL != ""),
		boolInt(r.HasAbstract()),
		boolInt(r.HasSummary()),
		r.CitationCount,
		utf8.RuneCountInString(r.Abstract),
		titleLength(r.Title),
	}
}

func (s canonicalScore) greater(o canonicalScore) bool {
	for i := range s {
		if s[i] != o[i] {
			return s[i] > o[i]
		}
	}
	return false
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// pickBase returns the highest-scoring member. Equal scores keep the earlier
// member.
func pickBase(members []*domain.PaperRecord) *domain.PaperRecord {
	best := members[0]
	bestScore := scoreOf(best)
	for _, m := range members[1:] {
		if s := scoreOf(m); s.greater(bestScore) {
			best, bestScore = m, s
		}
	}
	return best
}

// Merge reduces a cluster to one canonical record. The base member is copied
// and then overlaid with the best value of each field across the cluster.
// Members are never modified.
func Merge(c *Cluster) domain.CanonicalRecord {
	base := pickBase(c.Members)
	out := domain.CanonicalRecord{PaperRecord: *base.Clone()}

	mergeDOI(&out, c.Members)
	mergePDF(&out, base, c.Members)
	mergeTitleAuthors(&out, c.Members)
	mergeYear(&out, c.Members)
	mergeCounts(&out, c.Members)
	mergeText(&out, c.Members)
	mergeConcepts(&out, c.Members)
	mergeVenue(&out, c.Members)
	mergeProvenance(&out, base, c.Members)

	return out
}

func mergeDOI(out *domain.CanonicalRecord, members []*domain.PaperRecord) {
	seen := make(map[string]struct{})
	dois := make([]string, 0, 1)
	for _, m := range members {
		d := normalize.DOI(m.DOI)
		if d == "" {
			continue
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		dois = append(dois, d)
	}
	if len(dois) == 0 {
		return
	}
	sort.Strings(dois)
	out.DOI = dois[0]
}

func mergePDF(out *domain.CanonicalRecord, base *domain.PaperRecord, members []*domain.PaperRecord) {
	best := base
	bestRank := base.PDFRank()
	for _, m := range members {
		if r := m.PDFRank(); r > bestRank {
			best, bestRank = m, r
		}
	}
	if best.PDFURL != "" {
		out.PDFURL = best.PDFURL
	}
	if best.PDFSource != "" {
		out.PDFSource = best.PDFSource
	}
}

func mergeTitleAuthors(out *domain.CanonicalRecord, members []*domain.PaperRecord) {
	titleLen := titleLength(out.Title)
	authorsLen := authorsLength(out.Authors)
	for _, m := range members {
		if l := titleLength(m.Title); l > titleLen {
			out.Title, titleLen = m.Title, l
		}
		if l := authorsLength(m.Authors); l > authorsLen {
			out.Authors, authorsLen = append([]string(nil), m.Authors...), l
		}
	}
}

// titleLength counts runes of a real title. The placeholder counts as zero.
func titleLength(title string) int {
	if title == domain.PlaceholderTitle {
		return 0
	}
	return utf8.RuneCountInString(title)
}

// authorsLength counts runes of the joined author list. The unknown-author
// placeholder counts as zero.
func authorsLength(authors []string) int {
	if len(authors) == 1 && authors[0] == domain.UnknownAuthor {
		return 0
	}
	return utf8.RuneCountInString(strings.Join(authors, ", "))
}

func mergeYear(out *domain.CanonicalRecord, members []*domain.PaperRecord) {
	year := normalize.Year(out.Year)
	for _, m := range members {
		cand := normalize.Year(m.Year)
		if cand == "" {
			continue
		}
		if year == "" || yearValue(cand) < yearValue(year) {
			year = cand
		}
	}
	if year != "" {
		out.Year = year
	}
}

func yearValue(y string) int {
	v, _ := strconv.Atoi(y)
	return v
}

func mergeCounts(out *domain.CanonicalRecord, members []*domain.PaperRecord) {
	for _, m := range members {
		if m.CitationCount > out.CitationCount {
			out.CitationCount = m.CitationCount
		}
		if m.InfluentialCitationCount > out.InfluentialCitationCount {
			out.InfluentialCitationCount = m.InfluentialCitationCount
		}
	}
}

func mergeText(out *domain.CanonicalRecord, members []*domain.PaperRecord) {
	if !out.HasAbstract() {
		for _, m := range members {
			if m.HasAbstract() {
				out.Abstract = m.Abstract
				break
			}
		}
	}
	if !out.HasSummary() {
		for _, m := range members {
			if m.HasSummary() {
				out.Summary = m.Summary
				break
			}
		}
	}
}

func mergeConcepts(out *domain.CanonicalRecord, members []*domain.PaperRecord) {
	seen := make(map[string]struct{})
	var concepts []string
	for _, m := range members {
		for _, c := range m.Concepts {
			if c == "" {
				continue
			}
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			concepts = append(concepts, c)
		}
	}
	if len(concepts) == 0 {
		return
	}
	if len(concepts) > domain.MaxConcepts {
		concepts = concepts[:domain.MaxConcepts]
	}
	out.Concepts = concepts
}

func mergeVenue(out *domain.CanonicalRecord, members []*domain.PaperRecord) {
	if out.Venue == "" {
		for _, m := range members {
			if m.Venue != "" {
				out.Venue = m.Venue
				out.VenueType = m.VenueType
				break
			}
		}
	}
	if out.Impact == 0 {
		for _, m := range members {
			if m.Impact != 0 {
				out.Impact = m.Impact
				break
			}
		}
	}
}

func mergeProvenance(out *domain.CanonicalRecord, base *domain.PaperRecord, members []*domain.PaperRecord) {
	queries := newOrderedSet()
	groups := newOrderedSet()
	dups := newOrderedSet()
	for _, m := range members {
		queries.add(m.Query)
		groups.add(m.Group)
		if m.ID != base.ID {
			dups.add(m.ID)
		}
	}
	out.ContributingQueries = queries.items
	out.ContributingGroups = groups.items
	out.DuplicateIDs = dups.items
}

// orderedSet keeps the first occurrence of each non-empty string.
type orderedSet struct {
	seen  map[string]struct{}
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]struct{}), items: []string{}}
}

func (s *orderedSet) add(v string) {
	if v == "" {
		return
	}
	if _, ok := s.seen[v]; ok {
		return
	}
	s.seen[v] = struct{}{}
	s.items = append(s.items, v)
}
