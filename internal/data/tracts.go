package data

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/cascadia-health/epiforecast/internal/model"
)

// geoidFields lists the attribute names that carry the tract FIPS code
// across TIGER/Line vintages.
var geoidFields = []string{"geoid", "geoid20", "geoid10"}

// ImportTracts reads a TIGER/Line tract shapefile into snapshot records.
// Boundary polygons are retained as GeoJSON; records without a FIPS
// attribute are skipped.
func ImportTracts(shpPath, jurisdictionID string) ([]model.TractRecord, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "data: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	fieldIdx := make(map[string]int, len(fields))
	for i, f := range fields {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[strings.ToLower(name)] = i
	}

	geoidIdx := -1
	for _, name := range geoidFields {
		if idx, ok := fieldIdx[name]; ok {
			geoidIdx = idx
			break
		}
	}
	if geoidIdx < 0 {
		return nil, eris.Errorf("data: shapefile %s has no GEOID field", shpPath)
	}

	var tracts []model.TractRecord
	var skipped int

	for reader.Next() {
		_, shape := reader.Shape()

		fips := strings.TrimSpace(strings.TrimRight(reader.Attribute(geoidIdx), "\x00"))
		if fips == "" {
			skipped++
			continue
		}

		boundary, err := boundaryGeoJSON(shape)
		if err != nil {
			zap.L().Debug("data: skipping tract boundary", zap.String("fips", fips), zap.Error(err))
			boundary = ""
		}

		tracts = append(tracts, model.TractRecord{
			FIPS:            fips,
			JurisdictionID:  jurisdictionID,
			BoundaryGeoJSON: boundary,
		})
	}

	if skipped > 0 {
		zap.L().Debug("data: skipped shapefile records without GEOID",
			zap.String("path", shpPath),
			zap.Int("skipped", skipped),
		)
	}

	if len(tracts) == 0 {
		return nil, eris.Errorf("data: shapefile %s contains no tracts", shpPath)
	}
	return tracts, nil
}

// boundaryGeoJSON converts a shapefile polygon to a GeoJSON string. Shapes
// other than polygons yield an empty boundary.
func boundaryGeoJSON(shape shp.Shape) (string, error) {
	p, ok := shape.(*shp.Polygon)
	if !ok || p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return "", nil
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(4326)
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}

		flat := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}

		ring := geom.NewLinearRingFlat(geom.XY, flat)
		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(ring); err != nil {
			zap.L().Debug("data: skipping malformed polygon ring", zap.Int32("part", i), zap.Error(err))
			continue
		}
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("data: skipping malformed polygon part", zap.Int32("part", i), zap.Error(err))
			continue
		}
	}
	if mp.NumPolygons() == 0 {
		return "", nil
	}

	raw, err := geojson.Marshal(mp)
	if err != nil {
		return "", eris.Wrap(err, "data: encode boundary geojson")
	}
	return string(raw), nil
}
