// Package metadata collects and flattens the descriptive attributes
// attached to every stored vector: landmark detail, associated
// buildings, and PLUTO tax-lot data.
package metadata

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nyc-landmarks/vectordb/internal/catalog"
	"github.com/nyc-landmarks/vectordb/internal/logging"
	"github.com/nyc-landmarks/vectordb/internal/models"
)

// Config tunes the collector.
type Config struct {
	CacheTTL     time.Duration
	MaxBuildings int
}

// Collector assembles the enhanced metadata for one landmark. Results
// are cached so a landmark processed for both sources collects once.
type Collector struct {
	cfg     Config
	catalog *catalog.Client
	cache   *TTLCache[string, models.FlatMetadata]
	logger  *zap.Logger
}

// NewCollector builds a collector over the catalog client.
func NewCollector(cfg Config, catalogClient *catalog.Client, logger *zap.Logger) *Collector {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	if cfg.MaxBuildings <= 0 {
		cfg.MaxBuildings = 50
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{
		cfg:     cfg,
		catalog: catalogClient,
		cache:   NewTTLCache[string, models.FlatMetadata](cfg.CacheTTL, 1000),
		logger:  logging.Module(logger, "metadata"),
	}
}

// Collect fetches landmark detail, buildings, and PLUTO records
// concurrently and flattens them. A missing landmark fails the collect;
// missing buildings or PLUTO data degrade to warnings. The returned map
// is the caller's to mutate.
func (c *Collector) Collect(ctx context.Context, lpNumber string) (models.FlatMetadata, error) {
	if cached, ok := c.cache.Get(lpNumber); ok {
		return cached.Clone(), nil
	}

	var (
		landmark  *models.Landmark
		buildings []models.Building
		pluto     []models.PlutoRecord
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lm, err := c.catalog.GetLandmark(gctx, lpNumber)
		if err != nil {
			return fmt.Errorf("landmark detail: %w", err)
		}
		landmark = lm
		return nil
	})
	g.Go(func() error {
		b, err := c.catalog.GetLandmarkBuildings(gctx, lpNumber, c.cfg.MaxBuildings)
		if err != nil {
			c.logger.Warn("building metadata unavailable",
				zap.String("lp_number", lpNumber),
				zap.Error(err),
			)
			return nil
		}
		buildings = b
		return nil
	})
	g.Go(func() error {
		p, err := c.catalog.GetPlutoData(gctx, lpNumber)
		if err != nil {
			c.logger.Warn("pluto metadata unavailable",
				zap.String("lp_number", lpNumber),
				zap.Error(err),
			)
			return nil
		}
		pluto = p
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	meta := c.flatten(landmark, buildings, pluto)
	c.cache.Set(lpNumber, meta)
	return meta.Clone(), nil
}

// BaseMetadata flattens a landmark record the caller already holds,
// without buildings or PLUTO data. Processors fall back to it when a
// full collect fails mid-run.
func (c *Collector) BaseMetadata(lm *models.Landmark) models.FlatMetadata {
	return c.flatten(lm, nil, nil)
}

// CacheLen reports how many landmarks the collector currently caches.
func (c *Collector) CacheLen() int {
	return c.cache.Len()
}

// flatten maps the collected records onto flat metadata keys. Scalars
// are written as strings except booleans; empty values are dropped.
func (c *Collector) flatten(lm *models.Landmark, buildings []models.Building, pluto []models.PlutoRecord) models.FlatMetadata {
	meta := models.FlatMetadata{}
	put := func(key, value string) {
		if value != "" {
			meta[key] = value
		}
	}
	putInt := func(key string, value int) {
		if value != 0 {
			meta[key] = strconv.Itoa(value)
		}
	}
	putFloat := func(key string, value float64) {
		if value != 0 {
			meta[key] = strconv.FormatFloat(value, 'f', -1, 64)
		}
	}

	meta[models.MetaLandmarkID] = lm.LpNumber
	put("name", lm.Name)
	put("borough", lm.Borough)
	put("neighborhood", lm.Neighborhood)
	put("object_type", lm.ObjectType)
	put("architect", lm.ArchitectName)
	put("style", lm.Style)
	put("designation_date", lm.DateDesignated)
	meta["has_photo"] = lm.PhotoStatus

	if len(buildings) > c.cfg.MaxBuildings {
		buildings = buildings[:c.cfg.MaxBuildings]
	}
	var names []string
	for i, b := range buildings {
		prefix := fmt.Sprintf("building_%d_", i)
		put(prefix+"name", b.Name)
		put(prefix+"address", b.Address)
		put(prefix+"bbl", b.BBL)
		putInt(prefix+"bin", b.BinNumber)
		putInt(prefix+"block", b.Block)
		putInt(prefix+"lot", b.Lot)
		putFloat(prefix+"latitude", b.Latitude)
		putFloat(prefix+"longitude", b.Longitude)
		if b.Name != "" {
			names = append(names, b.Name)
		}
	}
	if len(names) > 0 {
		meta["building_names"] = names
	}

	// PLUTO joins can return one row per tax lot; the first carries the
	// landmark-level attributes.
	if len(pluto) > 0 {
		p := pluto[0]
		put("pluto_year_built", p.YearBuilt)
		put("pluto_land_use", p.LandUse)
		put("pluto_historic_district", p.HistoricDistrict)
		put("pluto_zoning", p.ZoningDistrict)
		putFloat("pluto_lot_area", p.LotArea)
		put("pluto_building_class", p.BuildingClass)
	}
	return meta
}
