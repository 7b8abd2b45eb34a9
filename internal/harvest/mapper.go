package harvest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/helixir/paper-harvester/internal/domain"
	"github.com/helixir/paper-harvester/internal/papersources"
)

const (
	// maxAuthors is the number of author names kept before "et al.".
	maxAuthors = 3

	etAl = "et al."
)

// errNotObject is returned for search hits that are not JSON objects.
var errNotObject = errors.New("item is not an object")

// Mapper converts raw search items into paper records one field at a time.
// A field that cannot be coerced keeps its placeholder and is reported as
// degraded; it never fails the whole item. Mapper is safe for concurrent use.
type Mapper struct {
	validate *validator.Validate
}

// NewMapper creates a new Mapper.
func NewMapper() *Mapper {
	return &Mapper{validate: validator.New()}
}

// Map builds a record for item tagged with group and query. It returns the
// names of the fields that had to fall back to a default. A panic while
// mapping is recovered and returned as an error.
func (m *Mapper) Map(item papersources.RawItem, group, query string) (rec *domain.PaperRecord, degraded []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			rec, degraded = nil, nil
			err = fmt.Errorf("mapping item: %v", r)
		}
	}()

	if item == nil {
		return nil, nil, errNotObject
	}

	rec = domain.NewPaperRecord(group, query)
	note := func(field string, ok bool) {
		if !ok {
			degraded = append(degraded, field)
		}
	}

	if s, ok := stringField(item, "title"); ok && s != "" {
		rec.Title = s
	} else {
		note("title", ok)
	}

	if s, ok := scalarField(item, "year"); ok && s != "" {
		rec.Year = s
	} else {
		note("year", ok)
	}

	if authors, ok := authorsField(item, "authors"); ok && len(authors) > 0 {
		rec.Authors = authors
	} else {
		note("authors", ok)
	}

	n, ok := intField(item, "citationCount")
	rec.CitationCount = n
	note("citationCount", ok)

	n, ok = intField(item, "influentialCitationCount")
	rec.InfluentialCitationCount = n
	note("influentialCitationCount", ok)

	if s, ok := stringField(item, "abstract"); ok && s != "" {
		rec.Abstract = s
	} else {
		note("abstract", ok)
	}

	if s, ok := textField(item, "tldr"); ok && s != "" {
		rec.Summary = s
	} else {
		note("tldr", ok)
	}

	ids, ok := externalIDsField(item, "externalIds")
	note("externalIds", ok)
	if len(ids) > 0 {
		rec.ExternalIDs = ids
	}

	if doi := lookupFold(ids, "DOI"); doi != "" {
		rec.DOI = doi
	} else if s, ok := stringField(item, "doi"); ok {
		rec.DOI = s
	} else {
		note("doi", ok)
	}

	if u, ok := textFieldKey(item, "openAccessPdf", "url"); ok && u != "" {
		if m.validate.Var(u, "http_url") == nil {
			rec.PDFURL = u
		} else {
			note("openAccessPdf", false)
		}
	} else {
		note("openAccessPdf", ok)
	}

	if s, ok := stringField(item, "venue"); ok {
		rec.Venue = s
	} else {
		note("venue", ok)
	}

	return rec, degraded, nil
}

// stringField decodes a trimmed string. ok is false only when the field is
// present with a non-string value.
func stringField(item papersources.RawItem, key string) (string, bool) {
	if !item.Has(key) {
		return "", true
	}
	raw := item[key]
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return strings.TrimSpace(s), true
}

// scalarField decodes a string, number or boolean into its text form.
func scalarField(item papersources.RawItem, key string) (string, bool) {
	if !item.Has(key) {
		return "", true
	}
	return scalarText(item[key])
}

func scalarText(raw json.RawMessage) (string, bool) {
	var v interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	case nil:
		return "", true
	default:
		return "", false
	}
}

// intField decodes a non-negative count from a number or numeric string.
func intField(item papersources.RawItem, key string) (int, bool) {
	s, ok := scalarField(item, key)
	if !ok {
		return 0, false
	}
	if s == "" {
		return 0, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

// textField decodes a value that is either a string or an object carrying a
// "text" member.
func textField(item papersources.RawItem, key string) (string, bool) {
	return textFieldKey(item, key, "text")
}

// textFieldKey decodes a value that is either a string or an object whose
// member inner is a string.
func textFieldKey(item papersources.RawItem, key, inner string) (string, bool) {
	if !item.Has(key) {
		return "", true
	}
	raw := item[key]

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s), true
	}

	var obj papersources.RawItem
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", false
	}
	return stringField(obj, inner)
}

// authorsField keeps at most maxAuthors names, appending "et al." when the
// list is longer. The value may be a list whose entries are strings or
// objects with a "name" member, or one string delimited by commas or
// semicolons. List entries of any other shape are skipped.
func authorsField(item papersources.RawItem, key string) ([]string, bool) {
	if !item.Has(key) {
		return nil, true
	}
	raw := item[key]

	var joined string
	if err := json.Unmarshal(raw, &joined); err == nil {
		return capAuthors(strings.FieldsFunc(joined, isAuthorDelimiter)), true
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, false
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		var name string
		if err := json.Unmarshal(entry, &name); err != nil {
			var obj papersources.RawItem
			if err := json.Unmarshal(entry, &obj); err != nil {
				continue
			}
			name, _ = stringField(obj, "name")
		}
		names = append(names, name)
	}
	return capAuthors(names), true
}

func isAuthorDelimiter(r rune) bool {
	return r == ',' || r == ';'
}

// capAuthors drops blank names and keeps the first maxAuthors, appending
// "et al." when more remain.
func capAuthors(names []string) []string {
	out := make([]string, 0, maxAuthors+1)
	more := false
	for _, name := range names {
		if name = strings.TrimSpace(name); name == "" {
			continue
		}
		if len(out) == maxAuthors {
			more = true
			break
		}
		out = append(out, name)
	}
	if more {
		out = append(out, etAl)
	}
	return out
}

// externalIDsField decodes an identifier map, coercing scalar values to
// strings. Non-scalar and blank values are dropped.
func externalIDsField(item papersources.RawItem, key string) (map[string]string, bool) {
	if !item.Has(key) {
		return nil, true
	}
	raw := item[key]

	var obj papersources.RawItem
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, false
	}

	ids := make(map[string]string, len(obj))
	for k, v := range obj {
		if s, ok := scalarText(v); ok && s != "" {
			ids[k] = s
		}
	}
	return ids, true
}

// lookupFold returns the value for key matched case-insensitively.
func lookupFold(m map[string]string, key string) string {
	if v, ok := m[key]; ok {
		return v
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}
