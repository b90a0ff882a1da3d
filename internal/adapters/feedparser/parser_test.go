package feedparser

import (
	"context"
	"errors"
	"fmt"
	"property-feed-service/internal/constants"
	"property-feed-service/internal/core/domain"
	"strings"
	"testing"
	"time"

	"github.com/antchfx/xmlquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestParser(stable bool) *FeedParser {
	return NewFeedParser(Config{
		StableSyntheticIDs: stable,
		Now:                func() time.Time { return fixedNow },
	})
}

func parseSingle(t *testing.T, p *FeedParser, body string) domain.Property {
	t.Helper()
	doc, err := p.Parse(context.Background(), strings.NewReader("<root><property>"+body+"</property></root>"))
	require.NoError(t, err)
	require.Equal(t, 1, doc.Len())

	rec, ok := doc.Extract(context.Background(), 0)
	require.True(t, ok)
	return rec
}

func TestParse_ConcreteNode(t *testing.T) {
	rec := parseSingle(t, newTestParser(false), `<ref>X1</ref><price>250000</price><beds>3</beds>`+
		`<images><image><url>a.jpg</url></image><image><tag>floorplan</tag><url>b.jpg</url></image></images>`)

	assert.Equal(t, "X1", rec.ExternalID)
	assert.Equal(t, "X1", rec.InternalID)
	assert.Equal(t, 250000.0, rec.Price)
	assert.Equal(t, 3, rec.Bedrooms)
	assert.Equal(t, "a.jpg", rec.ImageURL)
	assert.Equal(t, []string{"a.jpg"}, rec.Gallery)
	assert.Equal(t, []string{"b.jpg"}, rec.FloorplanURLs)
}

func TestParse_Defaults(t *testing.T) {
	rec := parseSingle(t, newTestParser(false), `<ref>D1</ref><town>Torrevieja</town>`)

	assert.Zero(t, rec.Price)
	assert.Zero(t, rec.Bedrooms)
	assert.Zero(t, rec.Bathrooms)
	assert.Zero(t, rec.BuiltArea)
	assert.Zero(t, rec.Latitude)
	assert.Nil(t, rec.DistanceToBeachMeters)
	assert.Equal(t, constants.DefaultCurrency, rec.Currency)
	assert.Equal(t, domain.PriceFrequencySale, rec.PriceFrequency)
	assert.Equal(t, constants.DefaultCountry, rec.Country)
	assert.Equal(t, constants.DefaultPropertyType, rec.PropertyType)
	assert.Equal(t, constants.DefaultDeveloper, rec.Developer)
	assert.Equal(t, domain.StatusAvailable, rec.Status)
	assert.Equal(t, constants.PlaceholderImageURL, rec.ImageURL)
	assert.Empty(t, rec.Gallery)
	assert.Empty(t, rec.FloorplanURLs)
	assert.Equal(t, "Torrevieja", rec.LocationDetail)
}

func TestParse_UnparsableNumbers(t *testing.T) {
	rec := parseSingle(t, newTestParser(false), `<ref>N1</ref><price>on request</price><beds>three</beds>`+
		`<baths>2.5</baths><surface_area><built>120 m2</built><plot>NaN</plot></surface_area>`+
		`<distance_to_beach_m>800</distance_to_beach_m>`)

	assert.Zero(t, rec.Price)
	assert.Zero(t, rec.Bedrooms)
	assert.Equal(t, 2, rec.Bathrooms)
	assert.Equal(t, 120.0, rec.BuiltArea)
	assert.Zero(t, rec.PlotSize)
	require.NotNil(t, rec.DistanceToBeachMeters)
	assert.Equal(t, 800.0, *rec.DistanceToBeachMeters)
}

func TestParse_FloorplanSeparation(t *testing.T) {
	rec := parseSingle(t, newTestParser(false), `<ref>F1</ref><images>`+
		`<image><url>1.jpg</url></image>`+
		`<image><tag>FloorPlan</tag><url>2.jpg</url></image>`+
		`<image><tag>pool</tag><url>3.jpg</url></image>`+
		`</images>`)

	assert.Len(t, rec.Gallery, 2)
	assert.Len(t, rec.FloorplanURLs, 1)
	for _, url := range rec.FloorplanURLs {
		assert.NotContains(t, rec.Gallery, url)
	}
}

func TestParse_OnlyFloorplans(t *testing.T) {
	rec := parseSingle(t, newTestParser(false), `<ref>F2</ref><images><image tag="floorplan"><url>plan.jpg</url></image></images>`)

	assert.Empty(t, rec.Gallery)
	assert.Equal(t, []string{"plan.jpg"}, rec.FloorplanURLs)
	assert.Equal(t, "plan.jpg", rec.ImageURL)
}

func TestParse_LanguageFallbacks(t *testing.T) {
	rec := parseSingle(t, newTestParser(false), `<ref>L1</ref>`+
		`<title><en>Sea view villa</en><es>Villa con vistas</es><de>Villa mit Meerblick</de></title>`+
		`<desc lang="no">Flott villa</desc><desc lang="en">Great villa</desc>`)

	assert.Equal(t, "Sea view villa", rec.Title.NO, "no falls back to en")
	assert.Equal(t, "Sea view villa", rec.Title.EN)
	assert.Equal(t, "Villa con vistas", rec.Title.ES)
	assert.Equal(t, "Villa mit Meerblick", rec.Title.DE)
	assert.Equal(t, "Sea view villa", rec.Title.FR)
	assert.Equal(t, "Sea view villa", rec.Title.Default())

	assert.Equal(t, "Flott villa", rec.Description.NO)
	assert.Equal(t, "Great villa", rec.Description.RU)
}

func TestParse_UntaggedTitle(t *testing.T) {
	rec := parseSingle(t, newTestParser(false), `<ref>L2</ref><title>Apartment</title>`)

	for _, lang := range domain.SupportedLanguages {
		assert.Equal(t, "Apartment", rec.Title.Get(lang), lang)
	}
}

func TestParse_DeveloperPriority(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"developer", `<developer>Dev</developer><complex>Cx</complex><urbanization>Urb</urbanization>`, "Dev"},
		{"complex", `<complex>Cx</complex><urbanization>Urb</urbanization>`, "Cx"},
		{"urbanization", `<urbanization>Urb</urbanization>`, "Urb"},
		{"default", ``, constants.DefaultDeveloper},
	}
	p := newTestParser(false)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := parseSingle(t, p, `<ref>D</ref>`+tt.body)
			assert.Equal(t, tt.want, rec.Developer)
		})
	}
}

func TestParse_FlagsAndLocation(t *testing.T) {
	rec := parseSingle(t, newTestParser(false), `<ref>G1</ref><pool>1</pool><new_build>1</new_build>`+
		`<leasehold>0</leasehold><part_ownership>true</part_ownership>`+
		`<costa>Costa Blanca South</costa><province>Alicante</province><town>Orihuela</town>`+
		`<location><latitude>37.93</latitude><longitude>-0.73</longitude></location>`+
		`<features><feature>Garden</feature><feature> </feature><feature>Lift</feature></features>`+
		`<energy_rating><consumption>B</consumption><emissions>C</emissions></energy_rating>`)

	assert.True(t, rec.HasPool)
	assert.True(t, rec.IsNewBuild)
	assert.False(t, rec.IsLeasehold)
	assert.True(t, rec.IsPartOwnership)
	assert.Equal(t, "Costa Blanca South", rec.Region)
	assert.InDelta(t, 37.93, rec.Latitude, 1e-9)
	assert.InDelta(t, -0.73, rec.Longitude, 1e-9)
	assert.Equal(t, []string{"Garden", "Lift"}, rec.Features)
	assert.Equal(t, "B", rec.ConsumptionRating)
	assert.Equal(t, "C", rec.EmissionsRating)
	assert.Equal(t, "Orihuela, Alicante", rec.LocationDetail)
}

func TestParse_SyntheticIdentity(t *testing.T) {
	doc, err := newTestParser(false).Parse(context.Background(),
		strings.NewReader(`<feed><property><town>A</town></property><property><town>B</town></property></feed>`))
	require.NoError(t, err)

	first, ok := doc.Extract(context.Background(), 0)
	require.True(t, ok)
	second, ok := doc.Extract(context.Background(), 1)
	require.True(t, ok)

	assert.Equal(t, fmt.Sprintf("REDSP-0-%d", fixedNow.UnixMilli()), first.ExternalID)
	assert.Equal(t, first.ExternalID, first.InternalID)
	assert.NotEqual(t, first.ExternalID, second.ExternalID)
}

func TestParse_StableSyntheticIdentity(t *testing.T) {
	feed := `<feed><property><town>A</town><price>100</price></property></feed>`

	run := func(now time.Time) string {
		p := NewFeedParser(Config{StableSyntheticIDs: true, Now: func() time.Time { return now }})
		doc, err := p.Parse(context.Background(), strings.NewReader(feed))
		require.NoError(t, err)
		rec, ok := doc.Extract(context.Background(), 0)
		require.True(t, ok)
		return rec.ExternalID
	}

	first := run(fixedNow)
	second := run(fixedNow.Add(time.Hour))
	assert.Equal(t, first, second)
	assert.True(t, strings.HasPrefix(first, "REDSP-H-"))
}

func TestParse_ItemNodes(t *testing.T) {
	doc, err := newTestParser(false).Parse(context.Background(),
		strings.NewReader(`<rss><channel><item><id>I1</id></item><item><id>I2</id></item></channel></rss>`))
	require.NoError(t, err)
	assert.Equal(t, 2, doc.Len())

	rec, ok := doc.Extract(context.Background(), 1)
	require.True(t, ok)
	assert.Equal(t, "I2", rec.ExternalID)
}

func TestParse_TotalFailures(t *testing.T) {
	p := newTestParser(false)

	_, err := p.Parse(context.Background(), strings.NewReader(`<feed><listing/></feed>`))
	assert.True(t, errors.Is(err, domain.ErrNoFeedNodes))

	_, err = p.Parse(context.Background(), strings.NewReader(`<feed><property><ref>1</ref></feed>`))
	assert.True(t, errors.Is(err, domain.ErrMalformedFeed))
}

func TestExtract_OutOfRange(t *testing.T) {
	doc, err := newTestParser(false).Parse(context.Background(), strings.NewReader(`<feed><property/></feed>`))
	require.NoError(t, err)

	_, ok := doc.Extract(context.Background(), 5)
	assert.False(t, ok)
}

func TestSafeExtract_NotElement(t *testing.T) {
	p := newTestParser(false)
	now := time.Now()

	_, ok := p.safeExtract(context.Background(), &xmlquery.Node{Type: xmlquery.TextNode, Data: "x"}, 0, now)
	assert.False(t, ok)

	_, ok = p.safeExtract(context.Background(), nil, 0, now)
	assert.False(t, ok)
}
