package postgres

import (
	"property-feed-service/internal/core/domain"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildValuesPlaceholders(t *testing.T) {
	assert.Equal(t, "($1::TEXT, $2::BIGINT), ($3::TEXT, $4::BIGINT)",
		buildValuesPlaceholders([]string{"TEXT", "BIGINT"}, 2))
	assert.Equal(t, "", buildValuesPlaceholders(nil, 3))
	assert.Equal(t, "", buildValuesPlaceholders([]string{"TEXT"}, 0))
}

func TestFlatten(t *testing.T) {
	assert.Nil(t, flatten(nil))
	assert.Equal(t, []interface{}{1, "a", 2, "b"}, flatten([][]interface{}{{1, "a"}, {2, "b"}}))
}

func TestBuildUpdateSet(t *testing.T) {
	set := buildUpdateSet([]string{"ref", "price", "updated_at"}, "ref")
	assert.NotContains(t, set, "ref =")
	assert.Contains(t, set, "price = EXCLUDED.price")
	assert.Contains(t, set, "updated_at = EXCLUDED.updated_at")
}

func TestToRow_Defaults(t *testing.T) {
	updatedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	row := toRow(domain.Property{ExternalID: "X1"}, updatedAt)

	require.Len(t, row, len(propertyColumns))
	values := make(map[string]interface{}, len(row))
	for i, c := range propertyColumns {
		values[c.name] = row[i]
	}

	assert.Equal(t, "X1", values["ref"])
	assert.Nil(t, values["internal_id"])
	assert.Nil(t, values["town"])
	assert.Nil(t, values["title_no"])
	assert.Nil(t, values["geohash"])
	assert.Equal(t, 0.0, values["price"])
	assert.Equal(t, 0, values["bedrooms"])
	assert.Equal(t, false, values["pool"])
	assert.Equal(t, false, values["new_build"])
	assert.Equal(t, []string{}, values["gallery"])
	assert.Equal(t, []string{}, values["floorplan_urls"])
	assert.Equal(t, updatedAt, values["updated_at"])
	assert.Nil(t, values["distance_to_beach_m"].(*float64))
}

func TestToRow_FieldRenames(t *testing.T) {
	rec := domain.Property{
		ExternalID:    "X2",
		BuiltArea:     120,
		PlotSize:      400,
		TerraceSize:   30,
		ImageURL:      "a.jpg",
		FloorplanURLs: []string{"b.jpg"},
		Latitude:      37.98,
		Longitude:     -0.68,
		Title:         domain.LocalizedText{NO: "Villa", RU: "Вилла"},
	}
	row := toRow(rec, time.Now())

	values := make(map[string]interface{}, len(row))
	for i, c := range propertyColumns {
		values[c.name] = row[i]
	}
	assert.Equal(t, 120.0, values["built_m2"])
	assert.Equal(t, 400.0, values["plot_m2"])
	assert.Equal(t, 30.0, values["terrace_m2"])
	assert.Equal(t, "a.jpg", values["image_url"])
	assert.Equal(t, []string{"b.jpg"}, values["floorplan_urls"])
	assert.Equal(t, "Villa", values["title_no"])
	assert.Equal(t, "Вилла", values["title_ru"])
	assert.Len(t, values["geohash"], geohashPrecision)
}

func TestDedupeByRef(t *testing.T) {
	out := dedupeByRef([]domain.Property{
		{ExternalID: "A", Price: 1},
		{ExternalID: "B", Price: 2},
		{ExternalID: "A", Price: 3},
		{},
	})

	require.Len(t, out, 2)
	assert.Equal(t, "A", out[0].ExternalID)
	assert.Equal(t, 3.0, out[0].Price)
	assert.Equal(t, "B", out[1].ExternalID)
}

func TestPropertyRow_ToDomain(t *testing.T) {
	town := "Torrevieja"
	title := "Villa"
	rec := propertyRow{Ref: "R1", Town: &town, TitleNO: &title, BuiltM2: 90, Bedrooms: 2}.toDomain()

	assert.Equal(t, "R1", rec.ExternalID)
	assert.Equal(t, "Torrevieja", rec.Town)
	assert.Equal(t, "Villa", rec.Title.Default())
	assert.Equal(t, 90.0, rec.BuiltArea)
	assert.Equal(t, 2, rec.Bedrooms)
	assert.Empty(t, rec.Province)
}

func TestCreateTableSQL(t *testing.T) {
	ddl := createTableSQL()
	assert.Contains(t, ddl, "ref TEXT PRIMARY KEY")
	assert.Contains(t, ddl, "built_m2 DOUBLE PRECISION NOT NULL DEFAULT 0")
	assert.Contains(t, ddl, "distance_to_beach_m DOUBLE PRECISION,")
	assert.Equal(t, 1, strings.Count(ddl, "CREATE TABLE"))
}
