// Package details builds the read-only detail layout of a property.
package details

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/DeafMist/parcel-search/internal/models"
)

// NotAvailable is shown for missing values.
const NotAvailable = "N/A"

// Field is one labelled value.
type Field struct {
	Label string
	Value string
	Mono  bool
	Badge bool
}

// Section groups fields under a title.
type Section struct {
	Title  string
	Fields []Field
}

// View is the rendered details layout.
type View struct {
	PIN      string
	Address  string
	Sections []Section

	// MapURL is empty when the record has neither address nor coordinates.
	MapURL      string
	AssessorURL string
}

// MapEnabled reports whether the "View on Map" action is available.
func (v View) MapEnabled() bool { return v.MapURL != "" }

// Section returns the section with the given title.
func (v View) Section(title string) (Section, bool) {
	for _, s := range v.Sections {
		if s.Title == title {
			return s, true
		}
	}
	return Section{}, false
}

// Value returns the value of the labelled field, if present.
func (s Section) Value(label string) (string, bool) {
	for _, f := range s.Fields {
		if f.Label == label {
			return f.Value, true
		}
	}
	return "", false
}

// Build lays out p and any supplemental records in extra.
func Build(p models.Property, extra Extras) View {
	v := View{
		PIN:         p.PIN,
		Address:     p.DisplayAddress(),
		MapURL:      MapURL(p),
		AssessorURL: p.AssessorOfficeLink,
	}

	v.Sections = append(v.Sections, Section{
		Title: "Property Information",
		Fields: []Field{
			{Label: "PIN", Value: orNA(p.PIN)},
			{Label: "Address", Value: orNA(p.DisplayAddress())},
			{Label: "Business", Value: orNA(p.Business)},
			{Label: "Property Class", Value: orNA(p.Class()), Badge: true},
			{Label: "Year", Value: intOrNA(p.Year)},
			{Label: "ZIP Code", Value: orNA(p.ZipCode)},
			{Label: "Total Assessed Value", Value: moneyOrNA(p.TotalAssessedValue)},
		},
	})

	v.Sections = append(v.Sections, Section{
		Title: "Location",
		Fields: []Field{
			{Label: "Community Area", Value: orNA(p.Area())},
			{Label: "Township", Value: orNA(p.TownshipName)},
			{Label: "Latitude", Value: coordOrNA(p.Latitude), Mono: true},
			{Label: "Longitude", Value: coordOrNA(p.Longitude), Mono: true},
		},
	})

	district := presentFields(
		Field{Label: "Elementary School District", Value: p.SchoolElementaryDistrict},
		Field{Label: "Secondary School District", Value: p.SchoolSecondaryDistrict},
		Field{Label: "Municipality", Value: p.TaxMunicipality},
		Field{Label: "Library District", Value: p.TaxLibraryDistrict},
	)
	if len(district) > 0 {
		v.Sections = append(v.Sections, Section{Title: "District Information", Fields: district})
	}

	v.Sections = append(v.Sections, extra.sections()...)
	return v
}

// MapURL links to an external map search by address, or by coordinates when
// the address is missing. It is empty when neither is known.
func MapURL(p models.Property) string {
	if p.Address != "" {
		return "https://www.google.com/maps/search/" + url.PathEscape(p.Address)
	}
	if p.Latitude != nil && p.Longitude != nil && *p.Latitude != 0 && *p.Longitude != 0 {
		return fmt.Sprintf("https://www.google.com/maps?q=%s,%s",
			strconv.FormatFloat(*p.Latitude, 'f', -1, 64),
			strconv.FormatFloat(*p.Longitude, 'f', -1, 64))
	}
	return ""
}

func presentFields(fields ...Field) []Field {
	out := fields[:0]
	for _, f := range fields {
		if f.Value != "" {
			out = append(out, f)
		}
	}
	return out
}

func orNA(s string) string {
	if s == "" {
		return NotAvailable
	}
	return s
}

func intOrNA(v *int) string {
	if v == nil || *v == 0 {
		return NotAvailable
	}
	return strconv.Itoa(*v)
}

func coordOrNA(v *float64) string {
	if v == nil || *v == 0 {
		return NotAvailable
	}
	return strconv.FormatFloat(*v, 'f', 6, 64)
}

func floatOrNA(v *float64) string {
	if v == nil {
		return NotAvailable
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func moneyOrNA(v *float64) string {
	if v == nil {
		return NotAvailable
	}
	amount := int64(*v)
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	whole := strconv.FormatInt(amount, 10)
	n := len(whole)
	out := make([]byte, 0, n+n/3)
	for i, c := range []byte(whole) {
		if i > 0 && (n-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, c)
	}
	return sign + "$" + string(out)
}

func boolOrNA(v *bool) string {
	switch {
	case v == nil:
		return NotAvailable
	case *v:
		return "Yes"
	default:
		return "No"
	}
}
