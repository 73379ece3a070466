package service

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/tidwall/sjson"

	"github.com/msomdec/locomotiva-cache/internal/domain"
	"github.com/msomdec/locomotiva-cache/internal/schema"
)

type cityListDocument struct {
	Gauge     domain.Gauge `json:"gauge"`
	Cities    []string     `json:"cities"`
	Timestamp int64        `json:"timestamp"`
}

type railwayDocument struct {
	ID        string          `json:"id"`
	Geometry  json.RawMessage `json:"geometry"`
	Timestamp int64           `json:"timestamp"`
}

// SaveCities stores the ordered city list for a gauge, replacing any list
// already cached for it.
func (c *Cache) SaveCities(ctx context.Context, gauge domain.Gauge, cities []string) bool {
	if gauge == "" {
		c.logger.Warn("refusing to cache cities without a gauge")
		return false
	}
	if cities == nil {
		cities = []string{}
	}
	doc, err := json.Marshal(cityListDocument{Gauge: gauge, Cities: cities, Timestamp: c.now().UnixMilli()})
	if err != nil {
		c.logger.Error("encode city list", "gauge", gauge, "error", err)
		return false
	}
	return c.save(ctx, schema.CityLists, doc)
}

// LoadCities returns the cached city list for a gauge. Expired, empty and
// suspect lists are misses; a suspect list is also purged in the background.
func (c *Cache) LoadCities(ctx context.Context, gauge domain.Gauge) ([]string, bool) {
	doc, ok := c.load(ctx, schema.CityLists, string(gauge))
	if !ok {
		return nil, false
	}
	var rec cityListDocument
	if err := json.Unmarshal(doc, &rec); err != nil {
		c.logger.Error("decode cached city list", "gauge", gauge, "error", err)
		return nil, false
	}
	return rec.Cities, true
}

// InvalidateCities drops the cached city list for a gauge.
func (c *Cache) InvalidateCities(ctx context.Context, gauge domain.Gauge) bool {
	return c.invalidate(ctx, schema.CityLists, string(gauge))
}

// coordinatesDocument merges the coordinate payload with the city key and
// the write timestamp.
func coordinatesDocument(city string, coords domain.Coordinates, ts int64) ([]byte, error) {
	doc, err := json.Marshal(coords)
	if err != nil {
		return nil, err
	}
	if doc, err = sjson.SetBytes(doc, "city", city); err != nil {
		return nil, err
	}
	return sjson.SetBytes(doc, "timestamp", ts)
}

// SaveCoordinates stores the coordinates of one city.
func (c *Cache) SaveCoordinates(ctx context.Context, city string, coords domain.Coordinates) bool {
	if city == "" {
		c.logger.Warn("refusing to cache coordinates without a city")
		return false
	}
	doc, err := coordinatesDocument(city, coords, c.now().UnixMilli())
	if err != nil {
		c.logger.Error("encode coordinates", "city", city, "error", err)
		return false
	}
	return c.save(ctx, schema.CityCoordinates, doc)
}

// SaveCoordinatesBatch stores many cities in one transaction: either all of
// them are written or none.
func (c *Cache) SaveCoordinatesBatch(ctx context.Context, coords map[string]domain.Coordinates) bool {
	if len(coords) == 0 {
		return true
	}
	cities := make([]string, 0, len(coords))
	for city := range coords {
		cities = append(cities, city)
	}
	sort.Strings(cities)

	ts := c.now().UnixMilli()
	docs := make([][]byte, 0, len(cities))
	for _, city := range cities {
		if city == "" {
			c.logger.Warn("refusing to cache coordinates without a city")
			return false
		}
		doc, err := coordinatesDocument(city, coords[city], ts)
		if err != nil {
			c.logger.Error("encode coordinates", "city", city, "error", err)
			return false
		}
		docs = append(docs, doc)
	}
	return c.save(ctx, schema.CityCoordinates, docs...)
}

// LoadCoordinates returns the cached coordinates of a city. Coordinates
// never expire.
func (c *Cache) LoadCoordinates(ctx context.Context, city string) (domain.Coordinates, bool) {
	doc, ok := c.load(ctx, schema.CityCoordinates, city)
	if !ok {
		return domain.Coordinates{}, false
	}
	var coords domain.Coordinates
	if err := json.Unmarshal(doc, &coords); err != nil {
		c.logger.Error("decode cached coordinates", "city", city, "error", err)
		return domain.Coordinates{}, false
	}
	return coords, true
}

// LoadCoordinatesBatch looks up many cities in one read. It returns the
// cities found and, in request order, those the caller still has to fetch.
func (c *Cache) LoadCoordinatesBatch(ctx context.Context, cities []string) (map[string]domain.Coordinates, []string) {
	found := make(map[string]domain.Coordinates, len(cities))
	if len(cities) == 0 {
		return found, nil
	}

	docs, err := c.loadMany(ctx, schema.CityCoordinates, cities)
	if err != nil {
		c.logger.Warn("batch coordinates lookup failed, treating as miss", "cities", len(cities), "error", err)
		return found, append([]string(nil), cities...)
	}

	var missing []string
	for _, city := range cities {
		doc, ok := docs[city]
		if !ok {
			missing = append(missing, city)
			continue
		}
		var coords domain.Coordinates
		if err := json.Unmarshal(doc, &coords); err != nil {
			c.logger.Error("decode cached coordinates", "city", city, "error", err)
			missing = append(missing, city)
			continue
		}
		found[city] = coords
	}
	return found, missing
}

// InvalidateCoordinates drops the cached coordinates of a city.
func (c *Cache) InvalidateCoordinates(ctx context.Context, city string) bool {
	return c.invalidate(ctx, schema.CityCoordinates, city)
}

// SaveRailwayGeometry stores the railway-line geometry document.
func (c *Cache) SaveRailwayGeometry(ctx context.Context, geometry json.RawMessage) bool {
	doc, err := json.Marshal(railwayDocument{
		ID:        schema.RailwayGeometryID,
		Geometry:  geometry,
		Timestamp: c.now().UnixMilli(),
	})
	if err != nil {
		c.logger.Error("encode railway geometry", "error", err)
		return false
	}
	return c.save(ctx, schema.RailwayGeometry, doc)
}

// LoadRailwayGeometry returns the cached railway-line geometry.
func (c *Cache) LoadRailwayGeometry(ctx context.Context) (json.RawMessage, bool) {
	doc, ok := c.load(ctx, schema.RailwayGeometry, schema.RailwayGeometryID)
	if !ok {
		return nil, false
	}
	var rec railwayDocument
	if err := json.Unmarshal(doc, &rec); err != nil {
		c.logger.Error("decode cached railway geometry", "error", err)
		return nil, false
	}
	return rec.Geometry, true
}

// InvalidateRailwayGeometry drops the cached railway-line geometry.
func (c *Cache) InvalidateRailwayGeometry(ctx context.Context) bool {
	return c.invalidate(ctx, schema.RailwayGeometry, schema.RailwayGeometryID)
}
