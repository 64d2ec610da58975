package tariff

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeName folds a place name for comparison: accents removed, lower case,
// hyphens and apostrophes treated as spaces, whitespace collapsed.
// "Béjaïa" and "bejaia" normalize identically, as do "Centre-ville" and "centre ville".
func NormalizeName(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.Map(func(r rune) rune {
		switch r {
		case '-', '_', '\'', '’', '`':
			return ' '
		}
		return unicode.ToLower(r)
	}, folded)
	return strings.Join(strings.Fields(folded), " ")
}

// MatchCommunes returns communes matching term: exact (normalized) matches when any
// exist, otherwise substring matches. Results are ordered alphabetically by
// commune name, then by province code, so the first element is the stable pick.
func MatchCommunes(communes []Commune, provinces map[int]Province, term string) []CommuneMatch {
	needle := NormalizeName(term)
	if needle == "" {
		return nil
	}

	var exact, partial []CommuneMatch
	for _, c := range communes {
		name := NormalizeName(c.Name)
		switch {
		case name == needle:
			exact = append(exact, CommuneMatch{Commune: c, ProvinceName: provinces[c.ProvinceCode].Name, Exact: true})
		case strings.Contains(name, needle):
			partial = append(partial, CommuneMatch{Commune: c, ProvinceName: provinces[c.ProvinceCode].Name})
		}
	}

	matches := exact
	if len(matches) == 0 {
		matches = partial
	}
	SortMatches(matches)
	return matches
}

// SortMatches orders matches alphabetically by commune name, then province code.
func SortMatches(matches []CommuneMatch) {
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := NormalizeName(matches[i].Commune.Name), NormalizeName(matches[j].Commune.Name)
		if a != b {
			return a < b
		}
		return matches[i].Commune.ProvinceCode < matches[j].Commune.ProvinceCode
	})
}

// FindProvince resolves a province by code-free name (normalized exact match first,
// then substring). It returns false when nothing matches.
func FindProvince(provinces []Province, name string) (Province, bool) {
	needle := NormalizeName(name)
	if needle == "" {
		return Province{}, false
	}
	sorted := make([]Province, len(provinces))
	copy(sorted, provinces)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Code < sorted[j].Code })

	for _, p := range sorted {
		if NormalizeName(p.Name) == needle {
			return p, true
		}
	}
	for _, p := range sorted {
		if strings.Contains(NormalizeName(p.Name), needle) {
			return p, true
		}
	}
	return Province{}, false
}

// ProvinceIndex builds a code-keyed lookup.
func ProvinceIndex(provinces []Province) map[int]Province {
	idx := make(map[int]Province, len(provinces))
	for _, p := range provinces {
		idx[p.Code] = p
	}
	return idx
}
