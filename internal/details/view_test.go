package details_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/parcel-search/internal/details"
	"github.com/DeafMist/parcel-search/internal/models"
)

func ptr[T any](v T) *T { return &v }

func TestBuildFillsMissingWithNA(t *testing.T) {
	v := details.Build(models.Property{PIN: "17-10-100"}, details.Extras{})

	info, ok := v.Section("Property Information")
	require.True(t, ok)
	business, _ := info.Value("Business")
	require.Equal(t, details.NotAvailable, business)
	year, _ := info.Value("Year")
	require.Equal(t, details.NotAvailable, year)

	loc, ok := v.Section("Location")
	require.True(t, ok)
	lat, _ := loc.Value("Latitude")
	require.Equal(t, details.NotAvailable, lat)

	_, ok = v.Section("District Information")
	require.False(t, ok)
	require.False(t, v.MapEnabled())
}

func TestBuildFormatsValues(t *testing.T) {
	p := models.Property{
		PIN:                "17-10-100",
		Address:            "123 Main St",
		Year:               ptr(1925),
		Latitude:           ptr(41.8781234567),
		Longitude:          ptr(-87.6298),
		TotalAssessedValue: ptr(1234567.0),
		TaxMunicipality:    "Chicago",
		AssessorOfficeLink: "https://assessor.example/pin/17-10-100",
	}
	v := details.Build(p, details.Extras{})

	require.Equal(t, "123 Main St", v.Address)
	require.Equal(t, "https://assessor.example/pin/17-10-100", v.AssessorURL)

	info, _ := v.Section("Property Information")
	year, _ := info.Value("Year")
	require.Equal(t, "1925", year)
	total, _ := info.Value("Total Assessed Value")
	require.Equal(t, "$1,234,567", total)

	loc, _ := v.Section("Location")
	lat, _ := loc.Value("Latitude")
	require.Equal(t, "41.878123", lat)
	lon, _ := loc.Value("Longitude")
	require.Equal(t, "-87.629800", lon)

	district, ok := v.Section("District Information")
	require.True(t, ok)
	require.Len(t, district.Fields, 1)
	require.Equal(t, "Municipality", district.Fields[0].Label)
}

func TestBuildFormatsMoney(t *testing.T) {
	tests := []struct {
		value float64
		want  string
	}{
		{value: 0, want: "$0"},
		{value: 999, want: "$999"},
		{value: 1000, want: "$1,000"},
		{value: 123456.78, want: "$123,456"},
		{value: -123456, want: "-$123,456"},
		{value: -1234567, want: "-$1,234,567"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			v := details.Build(models.Property{PIN: "1", TotalAssessedValue: ptr(tt.value)}, details.Extras{})
			info, _ := v.Section("Property Information")
			got, _ := info.Value("Total Assessed Value")
			require.Equal(t, tt.want, got)
		})
	}
}

func TestMapURL(t *testing.T) {
	tests := []struct {
		name string
		p    models.Property
		want string
	}{
		{
			name: "address",
			p:    models.Property{Address: "123 Main St #2", Latitude: ptr(41.0), Longitude: ptr(-87.0)},
			want: "https://www.google.com/maps/search/123%20Main%20St%20%232",
		},
		{
			name: "coordinates",
			p:    models.Property{Latitude: ptr(41.8781), Longitude: ptr(-87.6298)},
			want: "https://www.google.com/maps?q=41.8781,-87.6298",
		},
		{
			name: "zero latitude",
			p:    models.Property{Latitude: ptr(0.0), Longitude: ptr(-87.6298)},
			want: "",
		},
		{
			name: "longitude only",
			p:    models.Property{Longitude: ptr(-87.6298)},
			want: "",
		},
		{
			name: "nothing",
			p:    models.Property{PIN: "1"},
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, details.MapURL(tt.p))
		})
	}
}

type fakeSource struct {
	detailErr error
	taxErr    error
}

func (f fakeSource) PropertyDetail(_ context.Context, pin string) (*models.Property, error) {
	if f.detailErr != nil {
		return nil, f.detailErr
	}
	return &models.Property{PIN: pin, Address: "1 Loop Rd"}, nil
}

func (f fakeSource) PropertySchools(_ context.Context, pin string) (*models.SchoolInfo, error) {
	return &models.SchoolInfo{PIN: pin, ElementaryDistrict: "District 299"}, nil
}

func (f fakeSource) PropertyTax(_ context.Context, pin string) (*models.TaxInfo, error) {
	if f.taxErr != nil {
		return nil, f.taxErr
	}
	return &models.TaxInfo{PIN: pin, Municipality: "Chicago"}, nil
}

func (f fakeSource) PropertyEnvironment(_ context.Context, pin string) (*models.EnvironmentInfo, error) {
	return &models.EnvironmentInfo{PIN: pin, FloodFEMASFHA: ptr(false)}, nil
}

func TestLoadToleratesMissingSubResources(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	v, err := details.Load(context.Background(), fakeSource{taxErr: errors.New("404")}, "17", log)
	require.NoError(t, err)

	require.Equal(t, "17", v.PIN)
	schools, ok := v.Section("Schools")
	require.True(t, ok)
	elem, _ := schools.Value("Elementary")
	require.Equal(t, "District 299", elem)

	_, ok = v.Section("Tax Districts")
	require.False(t, ok)

	env, ok := v.Section("Environment")
	require.True(t, ok)
	flood, _ := env.Value("FEMA Flood Hazard Area")
	require.Equal(t, "No", flood)
}

func TestLoadFailsWhenPropertyMissing(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := details.Load(context.Background(), fakeSource{detailErr: errors.New("not found")}, "17", log)
	require.Error(t, err)
	require.Contains(t, err.Error(), "get property 17")
}
