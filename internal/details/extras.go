package details

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/DeafMist/parcel-search/internal/models"
)

// Extras are the optional per-property sub-resources.
type Extras struct {
	Schools     *models.SchoolInfo
	Tax         *models.TaxInfo
	Environment *models.EnvironmentInfo
}

func (e Extras) sections() []Section {
	var out []Section
	if s := e.Schools; s != nil {
		out = append(out, Section{Title: "Schools", Fields: []Field{
			{Label: "Elementary", Value: orNA(s.ElementaryDistrict)},
			{Label: "Secondary", Value: orNA(s.SecondaryDistrict)},
			{Label: "Unified", Value: orNA(s.UnifiedDistrict)},
			{Label: "School Year", Value: orNA(s.SchoolYear)},
		}})
	}
	if t := e.Tax; t != nil {
		out = append(out, Section{Title: "Tax Districts", Fields: []Field{
			{Label: "Municipality", Value: orNA(t.Municipality)},
			{Label: "Park District", Value: orNA(t.ParkDistrict)},
			{Label: "Fire Protection District", Value: orNA(t.FireDistrict)},
			{Label: "TIF District", Value: orNA(t.TIFDistrict)},
			{Label: "Tax Year", Value: intOrNA(t.DataYear)},
		}})
	}
	if env := e.Environment; env != nil {
		out = append(out, Section{Title: "Environment", Fields: []Field{
			{Label: "FEMA Flood Hazard Area", Value: boolOrNA(env.FloodFEMASFHA)},
			{Label: "Flood Factor", Value: floatOrNA(env.FloodFSFactor)},
			{Label: "O'Hare Noise Contour", Value: boolOrNA(env.NoiseContour)},
			{Label: "Airport Noise (DNL)", Value: floatOrNA(env.AirportNoiseDNL)},
			{Label: "Enterprise Zone", Value: orNA(env.EnterpriseZone)},
			{Label: "Opportunity Zone", Value: orNA(env.OpportunityZone)},
		}})
	}
	return out
}

// Source is the part of the property API the details page reads.
type Source interface {
	PropertyDetail(ctx context.Context, pin string) (*models.Property, error)
	PropertySchools(ctx context.Context, pin string) (*models.SchoolInfo, error)
	PropertyTax(ctx context.Context, pin string) (*models.TaxInfo, error)
	PropertyEnvironment(ctx context.Context, pin string) (*models.EnvironmentInfo, error)
}

// Load fetches a property and its sub-resources concurrently. Only a failed
// property fetch is an error; missing sub-resources leave their section out.
func Load(ctx context.Context, src Source, pin string, log *slog.Logger) (View, error) {
	var (
		prop  *models.Property
		extra Extras
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := src.PropertyDetail(gctx, pin)
		if err != nil {
			return fmt.Errorf("get property %s: %w", pin, err)
		}
		prop = p
		return nil
	})
	g.Go(func() error {
		s, err := src.PropertySchools(gctx, pin)
		if err != nil {
			log.Debug("schools unavailable", slog.String("pin", pin), slog.Any("err", err))
			return nil
		}
		extra.Schools = s
		return nil
	})
	g.Go(func() error {
		t, err := src.PropertyTax(gctx, pin)
		if err != nil {
			log.Debug("tax unavailable", slog.String("pin", pin), slog.Any("err", err))
			return nil
		}
		extra.Tax = t
		return nil
	})
	g.Go(func() error {
		e, err := src.PropertyEnvironment(gctx, pin)
		if err != nil {
			log.Debug("environment unavailable", slog.String("pin", pin), slog.Any("err", err))
			return nil
		}
		extra.Environment = e
		return nil
	})

	if err := g.Wait(); err != nil {
		return View{}, err
	}
	return Build(*prop, extra), nil
}
