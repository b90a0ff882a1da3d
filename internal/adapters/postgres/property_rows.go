package postgres

import (
	"property-feed-service/internal/core/domain"
	"strings"
	"time"

	"github.com/mmcloughlin/geohash"
)

type column struct {
	name    string
	sqlType string
}

// propertyColumns - порядок колонок совпадает с порядком значений в toRow
var propertyColumns = []column{
	{"ref", "TEXT"},
	{"internal_id", "TEXT"},
	{"price", "DOUBLE PRECISION"},
	{"currency", "TEXT"},
	{"price_freq", "TEXT"},
	{"new_build", "BOOLEAN"},
	{"leasehold", "BOOLEAN"},
	{"part_ownership", "BOOLEAN"},
	{"property_type", "TEXT"},
	{"status", "TEXT"},
	{"town", "TEXT"},
	{"province", "TEXT"},
	{"region", "TEXT"},
	{"country", "TEXT"},
	{"latitude", "DOUBLE PRECISION"},
	{"longitude", "DOUBLE PRECISION"},
	{"location_detail", "TEXT"},
	{"postal_code", "TEXT"},
	{"bedrooms", "INTEGER"},
	{"bathrooms", "INTEGER"},
	{"built_m2", "DOUBLE PRECISION"},
	{"plot_m2", "DOUBLE PRECISION"},
	{"terrace_m2", "DOUBLE PRECISION"},
	{"solarium_m2", "DOUBLE PRECISION"},
	{"usable_m2", "DOUBLE PRECISION"},
	{"distance_to_beach_m", "DOUBLE PRECISION"},
	{"pool", "BOOLEAN"},
	{"energy_consumption", "TEXT"},
	{"energy_emissions", "TEXT"},
	{"title_no", "TEXT"},
	{"title_en", "TEXT"},
	{"title_es", "TEXT"},
	{"title_de", "TEXT"},
	{"title_fr", "TEXT"},
	{"title_ru", "TEXT"},
	{"description_no", "TEXT"},
	{"description_en", "TEXT"},
	{"description_es", "TEXT"},
	{"description_de", "TEXT"},
	{"description_fr", "TEXT"},
	{"description_ru", "TEXT"},
	{"image_url", "TEXT"},
	{"gallery", "TEXT[]"},
	{"floorplan_urls", "TEXT[]"},
	{"features", "TEXT[]"},
	{"developer", "TEXT"},
	{"feed_date", "TEXT"},
	{"geohash", "TEXT"},
	{"updated_at", "TIMESTAMPTZ"},
}

const geohashPrecision = 9

func columnNames() []string {
	out := make([]string, len(propertyColumns))
	for i, c := range propertyColumns {
		out[i] = c.name
	}
	return out
}

func columnTypes() []string {
	out := make([]string, len(propertyColumns))
	for i, c := range propertyColumns {
		out[i] = c.sqlType
	}
	return out
}

// toRow раскладывает объект в плоскую строку таблицы. Пустые строки
// уходят как NULL, массивы никогда не бывают NULL.
func toRow(p domain.Property, updatedAt time.Time) []interface{} {
	row := []interface{}{
		p.Key(),
		nullString(p.InternalID),
		p.Price,
		nullString(p.Currency),
		nullString(p.PriceFrequency),
		p.IsNewBuild,
		p.IsLeasehold,
		p.IsPartOwnership,
		nullString(p.PropertyType),
		nullString(p.Status),
		nullString(p.Town),
		nullString(p.Province),
		nullString(p.Region),
		nullString(p.Country),
		p.Latitude,
		p.Longitude,
		nullString(p.LocationDetail),
		nullString(p.PostalCode),
		p.Bedrooms,
		p.Bathrooms,
		p.BuiltArea,
		p.PlotSize,
		p.TerraceSize,
		p.SolariumArea,
		p.UsableArea,
		p.DistanceToBeachMeters,
		p.HasPool,
		nullString(p.ConsumptionRating),
		nullString(p.EmissionsRating),
	}
	for _, lang := range domain.SupportedLanguages {
		row = append(row, nullString(p.Title.Get(lang)))
	}
	for _, lang := range domain.SupportedLanguages {
		row = append(row, nullString(p.Description.Get(lang)))
	}
	row = append(row,
		nullString(p.ImageURL),
		nonNil(p.Gallery),
		nonNil(p.FloorplanURLs),
		nonNil(p.Features),
		nullString(p.Developer),
		nullString(p.FeedDate),
		nullString(encodeGeohash(p.Latitude, p.Longitude)),
		updatedAt,
	)
	return row
}

// dedupeByRef оставляет последнюю запись для каждого ref: один INSERT ... ON CONFLICT
// не может затронуть одну строку дважды.
func dedupeByRef(records []domain.Property) []domain.Property {
	index := make(map[string]int, len(records))
	out := make([]domain.Property, 0, len(records))
	for _, rec := range records {
		key := rec.Key()
		if key == "" {
			continue
		}
		if i, seen := index[key]; seen {
			out[i] = rec
			continue
		}
		index[key] = len(out)
		out = append(out, rec)
	}
	return out
}

func encodeGeohash(lat, lon float64) string {
	if lat == 0 && lon == 0 {
		return ""
	}
	return geohash.EncodeWithPrecision(lat, lon, geohashPrecision)
}

func nullString(s string) interface{} {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// propertyRow - строка таблицы properties для pgx.RowToStructByName
type propertyRow struct {
	Ref               string    `db:"ref"`
	InternalID        *string   `db:"internal_id"`
	Price             float64   `db:"price"`
	Currency          *string   `db:"currency"`
	PriceFreq         *string   `db:"price_freq"`
	NewBuild          bool      `db:"new_build"`
	Leasehold         bool      `db:"leasehold"`
	PartOwnership     bool      `db:"part_ownership"`
	PropertyType      *string   `db:"property_type"`
	Status            *string   `db:"status"`
	Town              *string   `db:"town"`
	Province          *string   `db:"province"`
	Region            *string   `db:"region"`
	Country           *string   `db:"country"`
	Latitude          float64   `db:"latitude"`
	Longitude         float64   `db:"longitude"`
	LocationDetail    *string   `db:"location_detail"`
	PostalCode        *string   `db:"postal_code"`
	Bedrooms          int       `db:"bedrooms"`
	Bathrooms         int       `db:"bathrooms"`
	BuiltM2           float64   `db:"built_m2"`
	PlotM2            float64   `db:"plot_m2"`
	TerraceM2         float64   `db:"terrace_m2"`
	SolariumM2        float64   `db:"solarium_m2"`
	UsableM2          float64   `db:"usable_m2"`
	DistanceToBeachM  *float64  `db:"distance_to_beach_m"`
	Pool              bool      `db:"pool"`
	EnergyConsumption *string   `db:"energy_consumption"`
	EnergyEmissions   *string   `db:"energy_emissions"`
	TitleNO           *string   `db:"title_no"`
	TitleEN           *string   `db:"title_en"`
	TitleES           *string   `db:"title_es"`
	TitleDE           *string   `db:"title_de"`
	TitleFR           *string   `db:"title_fr"`
	TitleRU           *string   `db:"title_ru"`
	DescriptionNO     *string   `db:"description_no"`
	DescriptionEN     *string   `db:"description_en"`
	DescriptionES     *string   `db:"description_es"`
	DescriptionDE     *string   `db:"description_de"`
	DescriptionFR     *string   `db:"description_fr"`
	DescriptionRU     *string   `db:"description_ru"`
	ImageURL          *string   `db:"image_url"`
	Gallery           []string  `db:"gallery"`
	FloorplanURLs     []string  `db:"floorplan_urls"`
	Features          []string  `db:"features"`
	Developer         *string   `db:"developer"`
	FeedDate          *string   `db:"feed_date"`
	Geohash           *string   `db:"geohash"`
	UpdatedAt         time.Time `db:"updated_at"`
}

func (r propertyRow) toDomain() domain.Property {
	return domain.Property{
		ExternalID:            r.Ref,
		InternalID:            deref(r.InternalID),
		Price:                 r.Price,
		Currency:              deref(r.Currency),
		PriceFrequency:        deref(r.PriceFreq),
		IsNewBuild:            r.NewBuild,
		IsLeasehold:           r.Leasehold,
		IsPartOwnership:       r.PartOwnership,
		PropertyType:          deref(r.PropertyType),
		Status:                deref(r.Status),
		Town:                  deref(r.Town),
		Province:              deref(r.Province),
		Region:                deref(r.Region),
		Country:               deref(r.Country),
		Latitude:              r.Latitude,
		Longitude:             r.Longitude,
		LocationDetail:        deref(r.LocationDetail),
		PostalCode:            deref(r.PostalCode),
		Bedrooms:              r.Bedrooms,
		Bathrooms:             r.Bathrooms,
		BuiltArea:             r.BuiltM2,
		PlotSize:              r.PlotM2,
		TerraceSize:           r.TerraceM2,
		SolariumArea:          r.SolariumM2,
		UsableArea:            r.UsableM2,
		DistanceToBeachMeters: r.DistanceToBeachM,
		HasPool:               r.Pool,
		ConsumptionRating:     deref(r.EnergyConsumption),
		EmissionsRating:       deref(r.EnergyEmissions),
		Title: domain.LocalizedText{
			NO: deref(r.TitleNO), EN: deref(r.TitleEN), ES: deref(r.TitleES),
			DE: deref(r.TitleDE), FR: deref(r.TitleFR), RU: deref(r.TitleRU),
		},
		Description: domain.LocalizedText{
			NO: deref(r.DescriptionNO), EN: deref(r.DescriptionEN), ES: deref(r.DescriptionES),
			DE: deref(r.DescriptionDE), FR: deref(r.DescriptionFR), RU: deref(r.DescriptionRU),
		},
		ImageURL:      deref(r.ImageURL),
		Gallery:       r.Gallery,
		FloorplanURLs: r.FloorplanURLs,
		Features:      r.Features,
		Developer:     deref(r.Developer),
		FeedDate:      deref(r.FeedDate),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
