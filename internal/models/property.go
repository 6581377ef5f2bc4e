package models

// Property is a parcel record as served by the property API. Strings are empty
// when the backend omits them; optional numbers and flags are nil.
type Property struct {
	PIN            string    `json:"pin"`
	PIN10          string    `json:"pin10,omitempty"`
	Address        string    `json:"address,omitempty"`
	AddressDisplay string    `json:"address_display,omitempty"`
	Business       string    `json:"business,omitempty"`
	Year           *int      `json:"year,omitempty"`
	PropertyClass  string    `json:"property_class,omitempty"`
	ClassCode      string    `json:"class_code,omitempty"`
	TownshipName   string    `json:"township_name,omitempty"`
	ZipCode        string    `json:"zip_code,omitempty"`
	Latitude       *float64  `json:"latitude,omitempty"`
	Longitude      *float64  `json:"longitude,omitempty"`
	Coordinates    []float64 `json:"coordinates,omitempty"`
	CommunityArea  string    `json:"community_area_name,omitempty"`
	ChicagoArea    string    `json:"chicago_community_area_name,omitempty"`
	WardNum        *int      `json:"ward_num,omitempty"`

	PropertyAddress string `json:"property_address,omitempty"`
	PropertyCity    string `json:"property_city,omitempty"`
	PropertyState   string `json:"property_state,omitempty"`

	TotalAssessedValue    *float64 `json:"total_assessed_value,omitempty"`
	LandAssessedValue     *float64 `json:"land_assessed_value,omitempty"`
	BuildingAssessedValue *float64 `json:"building_assessed_value,omitempty"`
	SquareFootageLand     *float64 `json:"square_footage_land,omitempty"`
	VacancyType           string   `json:"vacancy_type,omitempty"`
	MailingName           string   `json:"mailing_name,omitempty"`
	TaxCode               string   `json:"tax_code,omitempty"`
	AssessorOfficeLink    string   `json:"assessor_office_link,omitempty"`

	TriadName    string `json:"triad_name,omitempty"`
	TriadCode    *int   `json:"triad_code,omitempty"`
	TownshipCode *int   `json:"township_code,omitempty"`
	NbhdCode     string `json:"nbhd_code,omitempty"`

	SchoolElementaryDistrict string `json:"school_elementary_district_name,omitempty"`
	SchoolSecondaryDistrict  string `json:"school_secondary_district_name,omitempty"`
	SchoolUnifiedDistrict    string `json:"school_unified_district_name,omitempty"`

	TaxMunicipality    string `json:"tax_municipality_name,omitempty"`
	TaxLibraryDistrict string `json:"tax_library_district_name,omitempty"`
	TaxParkDistrict    string `json:"tax_park_district_name,omitempty"`
	TaxTIFDistrict     string `json:"tax_tif_district_name,omitempty"`
	TaxFireDistrict    string `json:"tax_fire_protection_district_name,omitempty"`
	TaxCollegeDistrict string `json:"tax_community_college_district_name,omitempty"`

	EnvFloodFEMASFHA *bool    `json:"env_flood_fema_sfha,omitempty"`
	EnvFloodFSFactor *float64 `json:"env_flood_fs_factor,omitempty"`
	EnvAirportNoise  *float64 `json:"env_airport_noise_dnl,omitempty"`
	EconEnterprise   string   `json:"econ_enterprise_zone_num,omitempty"`
	EconOpportunity  string   `json:"econ_qualified_opportunity_zone_num,omitempty"`
	WalkTotalScore   *float64 `json:"access_cmap_walk_total_score,omitempty"`

	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// DisplayAddress prefers the street address and falls back to the
// backend-composed display string.
func (p Property) DisplayAddress() string {
	if p.Address != "" {
		return p.Address
	}
	if p.PropertyAddress != "" {
		return p.PropertyAddress
	}
	return p.AddressDisplay
}

// Area returns the community area under either of its field names.
func (p Property) Area() string {
	if p.CommunityArea != "" {
		return p.CommunityArea
	}
	return p.ChicagoArea
}

// Class returns the property class under either of its field names.
func (p Property) Class() string {
	if p.PropertyClass != "" {
		return p.PropertyClass
	}
	return p.ClassCode
}

// Location returns latitude and longitude, falling back to the [lon, lat]
// coordinates pair. ok is false when neither is usable.
func (p Property) Location() (lat, lon float64, ok bool) {
	if p.Latitude != nil && p.Longitude != nil && (*p.Latitude != 0 || *p.Longitude != 0) {
		return *p.Latitude, *p.Longitude, true
	}
	if len(p.Coordinates) == 2 && (p.Coordinates[0] != 0 || p.Coordinates[1] != 0) {
		return p.Coordinates[1], p.Coordinates[0], true
	}
	return 0, 0, false
}

// PropertyPage is one page of the paginated property listing.
type PropertyPage struct {
	Count    int        `json:"count"`
	Next     string     `json:"next,omitempty"`
	Previous string     `json:"previous,omitempty"`
	Results  []Property `json:"results"`
}

// NearbyResult is returned by the nearby endpoint.
type NearbyResult struct {
	Count    int        `json:"count"`
	Center   []float64  `json:"center"`
	RadiusKm float64    `json:"radius_km"`
	Results  []Property `json:"results"`
}

// AreaCount is a community area with its property count.
type AreaCount struct {
	Name  string `json:"chicago_community_area_name"`
	Count int    `json:"count"`
}

// Stats summarizes the property database.
type Stats struct {
	TotalProperties   int         `json:"total_properties"`
	CommunityAreas    int         `json:"community_areas"`
	ZipCodes          int         `json:"zip_codes"`
	Wards             int         `json:"wards"`
	PropertyClasses   int         `json:"property_classes"`
	TopCommunityAreas []AreaCount `json:"top_community_areas"`
}

// SchoolInfo is the /schools/ sub-resource of a property.
type SchoolInfo struct {
	PIN                string `json:"pin"`
	ElementaryDistrict string `json:"school_elementary_district_name,omitempty"`
	SecondaryDistrict  string `json:"school_secondary_district_name,omitempty"`
	UnifiedDistrict    string `json:"school_unified_district_name,omitempty"`
	SchoolYear         string `json:"school_school_year,omitempty"`
	DataYear           *int   `json:"school_data_year,omitempty"`
}

// TaxInfo is the /tax/ sub-resource of a property.
type TaxInfo struct {
	PIN                string `json:"pin"`
	Municipality       string `json:"tax_municipality_name,omitempty"`
	ElementaryDistrict string `json:"tax_school_elementary_district_name,omitempty"`
	SecondaryDistrict  string `json:"tax_school_secondary_district_name,omitempty"`
	CollegeDistrict    string `json:"tax_community_college_district_name,omitempty"`
	FireDistrict       string `json:"tax_fire_protection_district_name,omitempty"`
	LibraryDistrict    string `json:"tax_library_district_name,omitempty"`
	ParkDistrict       string `json:"tax_park_district_name,omitempty"`
	TIFDistrict        string `json:"tax_tif_district_name,omitempty"`
	DataYear           *int   `json:"tax_data_year,omitempty"`
}

// EnvironmentInfo is the /environment/ sub-resource of a property.
type EnvironmentInfo struct {
	PIN                  string   `json:"pin"`
	FloodFEMASFHA        *bool    `json:"env_flood_fema_sfha,omitempty"`
	FloodFSFactor        *float64 `json:"env_flood_fs_factor,omitempty"`
	FloodRiskDirection   string   `json:"env_flood_fs_risk_direction,omitempty"`
	NoiseContour         *bool    `json:"env_ohare_noise_contour_no_buffer_bool,omitempty"`
	NoiseContourHalfMile *bool    `json:"env_ohare_noise_contour_half_mile_buffer_bool,omitempty"`
	AirportNoiseDNL      *float64 `json:"env_airport_noise_dnl,omitempty"`
	EnterpriseZone       string   `json:"econ_enterprise_zone_num,omitempty"`
	OpportunityZone      string   `json:"econ_qualified_opportunity_zone_num,omitempty"`
}
