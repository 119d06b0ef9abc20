package directory

import (
	"slices"
	"strings"

	"github.com/repromitra/telehealth/services/directory-service/internal/model"
)

// Filter narrows the doctor list. Empty fields and "all" match everything.
type Filter struct {
	Query          string
	Specialization string
	Language       string
}

func (f Filter) normalized() Filter {
	clean := func(s string) string {
		s = strings.TrimSpace(s)
		if strings.EqualFold(s, "all") {
			return ""
		}
		return s
	}
	return Filter{
		Query:          strings.ToLower(strings.TrimSpace(f.Query)),
		Specialization: clean(f.Specialization),
		Language:       clean(f.Language),
	}
}

func (f Filter) matches(d model.Doctor) bool {
	if f.Query != "" &&
		!strings.Contains(strings.ToLower(d.Name), f.Query) &&
		!strings.Contains(strings.ToLower(d.Specialization), f.Query) {
		return false
	}
	if f.Specialization != "" && d.Specialization != f.Specialization {
		return false
	}
	if f.Language != "" && !slices.Contains(d.Languages, f.Language) {
		return false
	}
	return true
}

// Listing is the directory page: matching doctors plus the filter options.
// Facets come from the whole catalogue so the dropdowns never shrink.
type Listing struct {
	Doctors         []model.Doctor `json:"doctors"`
	Specializations []string       `json:"specializations"`
	Languages       []string       `json:"languages"`
}

func Apply(all []model.Doctor, f Filter) Listing {
	f = f.normalized()
	out := Listing{Doctors: make([]model.Doctor, 0, len(all))}
	for _, d := range all {
		if f.matches(d) {
			out.Doctors = append(out.Doctors, d)
		}
	}
	out.Specializations, out.Languages = facets(all)
	return out
}

func facets(all []model.Doctor) ([]string, []string) {
	specs := make([]string, 0, len(all))
	langs := make([]string, 0, len(all))
	for _, d := range all {
		if d.Specialization != "" {
			specs = append(specs, d.Specialization)
		}
		for _, l := range d.Languages {
			if l != "" {
				langs = append(langs, l)
			}
		}
	}
	slices.Sort(specs)
	slices.Sort(langs)
	return slices.Compact(specs), slices.Compact(langs)
}
