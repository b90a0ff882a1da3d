package feedparser

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"property-feed-service/internal/constants"
	"property-feed-service/internal/contextkeys"
	"property-feed-service/internal/core/domain"
	"property-feed-service/internal/core/port"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"
	"github.com/mmcloughlin/geohash"
)

// Config для FeedParser
type Config struct {
	// StableSyntheticIDs - для узлов без ref строить ID из хэша содержимого,
	// а не из позиции в фиде и времени импорта
	StableSyntheticIDs bool
	// Now - источник времени импорта. По умолчанию time.Now.
	Now func() time.Time
}

// FeedParser реализует FeedParserPort для XML-фида RedSP
type FeedParser struct {
	stableIDs bool
	now       func() time.Time
}

func NewFeedParser(cfg Config) *FeedParser {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &FeedParser{
		stableIDs: cfg.StableSyntheticIDs,
		now:       now,
	}
}

// Parse разбирает документ целиком и собирает список узлов объектов.
// Узлы <property> имеют приоритет; <item> берутся, только если <property> нет.
func (p *FeedParser) Parse(ctx context.Context, r io.Reader) (port.FeedDocument, error) {
	logger := contextkeys.LoggerFromContext(ctx).WithFields(port.Fields{"component": "FeedParser"})

	doc, err := xmlquery.Parse(r)
	if err != nil {
		logger.Warn("Feed is not well-formed XML", port.Fields{"error": err.Error()})
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedFeed, err)
	}

	nodes, err := xmlquery.QueryAll(doc, "//property")
	if err != nil {
		return nil, fmt.Errorf("failed to query property nodes: %w", err)
	}
	if len(nodes) == 0 {
		nodes, err = xmlquery.QueryAll(doc, "//item")
		if err != nil {
			return nil, fmt.Errorf("failed to query item nodes: %w", err)
		}
	}

	if len(nodes) == 0 {
		return nil, domain.ErrNoFeedNodes
	}

	logger.Debug("Feed document parsed", port.Fields{"nodes": len(nodes)})

	return &feedDocument{
		parser:     p,
		nodes:      nodes,
		importedAt: p.now(),
	}, nil
}

type feedDocument struct {
	parser     *FeedParser
	nodes      []*xmlquery.Node
	importedAt time.Time
}

func (d *feedDocument) Len() int {
	return len(d.nodes)
}

// Extract никогда не паникует наружу: любой сбой на узле означает "записи нет"
func (d *feedDocument) Extract(ctx context.Context, index int) (domain.Property, bool) {
	if index < 0 || index >= len(d.nodes) {
		return domain.Property{}, false
	}
	return d.parser.safeExtract(ctx, d.nodes[index], index, d.importedAt)
}

func (p *FeedParser) safeExtract(ctx context.Context, node *xmlquery.Node, index int, importedAt time.Time) (record domain.Property, ok bool) {
	if node == nil || node.Type != xmlquery.ElementNode {
		return domain.Property{}, false
	}

	defer func() {
		if r := recover(); r != nil {
			contextkeys.LoggerFromContext(ctx).Warn("Feed node extraction failed, node skipped", port.Fields{
				"component": "FeedParser",
				"index":     index,
				"panic":     fmt.Sprint(r),
			})
			record, ok = domain.Property{}, false
		}
	}()

	return p.extract(node, index, importedAt), true
}

func (p *FeedParser) extract(node *xmlquery.Node, index int, importedAt time.Time) domain.Property {
	rec := domain.Property{
		Price:           parseNumber(firstText(node, "price")),
		Currency:        textOr(firstText(node, "currency"), constants.DefaultCurrency),
		PriceFrequency:  textOr(firstText(node, "price_freq"), domain.PriceFrequencySale),
		IsNewBuild:      parseFlag(firstText(node, "new_build")),
		IsLeasehold:     parseFlag(firstText(node, "leasehold")),
		IsPartOwnership: parseFlag(firstText(node, "part_ownership")),

		PropertyType: textOr(firstText(node, "type", "property_type"), constants.DefaultPropertyType),
		Status:       domain.StatusAvailable,

		Town:       firstText(node, "town"),
		Province:   firstText(node, "province"),
		Region:     firstText(node, "costa", "region"),
		Country:    textOr(firstText(node, "country"), constants.DefaultCountry),
		Latitude:   parseNumber(firstText(node, "location/latitude", "latitude")),
		Longitude:  parseNumber(firstText(node, "location/longitude", "longitude")),
		PostalCode: firstText(node, "postal_code", "location/postal_code"),

		Bedrooms:          parseInteger(firstText(node, "beds")),
		Bathrooms:         parseInteger(firstText(node, "baths")),
		BuiltArea:         parseNumber(firstText(node, "surface_area/built")),
		PlotSize:          parseNumber(firstText(node, "surface_area/plot")),
		TerraceSize:       parseNumber(firstText(node, "terrace_m2", "surface_area/terrace")),
		SolariumArea:      parseNumber(firstText(node, "solarium_area_m2")),
		UsableArea:        parseNumber(firstText(node, "usable_living_area_m2")),
		HasPool:           parseFlag(firstText(node, "pool")),
		ConsumptionRating: firstText(node, "energy_rating/consumption"),
		EmissionsRating:   firstText(node, "energy_rating/emissions"),

		Developer: textOr(firstText(node, "developer", "complex", "urbanization"), constants.DefaultDeveloper),
		FeedDate:  firstText(node, "date"),
		Features:  allTexts(node, "features/feature"),
	}

	if raw := firstText(node, "distance_to_beach_m"); raw != "" {
		if d, ok := parseNumberStrict(raw); ok {
			rec.DistanceToBeachMeters = &d
		}
	}

	rec.LocationDetail = firstText(node, "location_detail", "location/address", "address")
	if rec.LocationDetail == "" {
		rec.LocationDetail = joinNonEmpty(", ", rec.Town, rec.Province)
	}

	for _, lang := range domain.SupportedLanguages {
		rec.Title.Set(lang, localizedText(node, []string{"title"}, lang))
		rec.Description.Set(lang, localizedText(node, []string{"desc", "description"}, lang))
	}

	rec.Gallery, rec.FloorplanURLs = extractImages(node)
	switch {
	case len(rec.Gallery) > 0:
		rec.ImageURL = rec.Gallery[0]
	case len(rec.FloorplanURLs) > 0:
		rec.ImageURL = rec.FloorplanURLs[0]
	default:
		rec.ImageURL = constants.PlaceholderImageURL
	}

	rec.ExternalID = firstText(node, "ref", "id")
	if rec.ExternalID == "" {
		rec.ExternalID = p.syntheticID(rec, index, importedAt)
	}
	rec.InternalID = textOr(firstText(node, "id"), rec.ExternalID)

	return rec
}

// syntheticID - ключ для узла без ref. Позиционный вариант уникален только
// в пределах одного запуска импорта.
func (p *FeedParser) syntheticID(rec domain.Property, index int, importedAt time.Time) string {
	if !p.stableIDs {
		return fmt.Sprintf("%s-%d-%d", constants.SyntheticIDPrefix, index, importedAt.UnixMilli())
	}

	hash := sha256.Sum256([]byte(buildHashPayload(rec)))
	return fmt.Sprintf("%s-H-%s", constants.SyntheticIDPrefix, hex.EncodeToString(hash[:])[:16])
}

const geohashPrecision = 7

// buildHashPayload создает стабильную строку из ключевых полей объекта для хэширования.
func buildHashPayload(rec domain.Property) string {
	geo := "null"
	if rec.Latitude != 0 || rec.Longitude != 0 {
		geo = geohash.EncodeWithPrecision(rec.Latitude, rec.Longitude, geohashPrecision)
	}

	parts := []string{
		geo,
		strings.ToLower(strings.TrimSpace(rec.PropertyType)),
		strings.ToLower(strings.TrimSpace(rec.Town)),
		strconv.FormatFloat(rec.Price, 'f', 2, 64),
		strconv.FormatFloat(rec.BuiltArea, 'f', 2, 64),
		strconv.Itoa(rec.Bedrooms),
		strings.ToLower(strings.TrimSpace(rec.Title.Default())),
	}
	return strings.Join(parts, "|")
}

// --- селекторы ---

// firstText перебирает пути по порядку и возвращает первый непустой текст
func firstText(node *xmlquery.Node, paths ...string) string {
	for _, path := range paths {
		matches, err := xmlquery.QueryAll(node, path)
		if err != nil {
			continue
		}
		for _, m := range matches {
			if text := strings.TrimSpace(m.InnerText()); text != "" {
				return text
			}
		}
	}
	return ""
}

func allTexts(node *xmlquery.Node, path string) []string {
	matches, err := xmlquery.QueryAll(node, path)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if text := strings.TrimSpace(m.InnerText()); text != "" {
			out = append(out, text)
		}
	}
	return out
}

// languageFallbacks - порядок поиска варианта: сам язык, затем en, затем es
func languageFallbacks(lang string) []string {
	chain := []string{lang}
	for _, fb := range []string{domain.LangEN, domain.LangES} {
		if fb != lang {
			chain = append(chain, fb)
		}
	}
	return chain
}

// localizedText ищет вариант текста по цепочке языков. Язык может быть задан
// дочерним тегом (<title><no>..</no></title>) или атрибутом (<title lang="no">).
func localizedText(node *xmlquery.Node, elements []string, lang string) string {
	var paths []string
	for _, l := range languageFallbacks(lang) {
		for _, el := range elements {
			paths = append(paths,
				el+"/"+l,
				el+"[@lang='"+l+"']",
				el+"[@language='"+l+"']",
			)
		}
	}
	// последний шанс: элемент без языковой разметки
	for _, el := range elements {
		paths = append(paths, el+"[not(@lang) and not(@language) and not(*)]")
	}
	return firstText(node, paths...)
}

// extractImages разделяет изображения на галерею и планировки
func extractImages(node *xmlquery.Node) (gallery, floorplans []string) {
	images, err := xmlquery.QueryAll(node, "images/image")
	if err != nil {
		return nil, nil
	}

	seen := make(map[string]struct{}, len(images))
	for _, img := range images {
		url := firstText(img, "url")
		if url == "" && len(childElements(img)) == 0 {
			url = strings.TrimSpace(img.InnerText())
		}
		if url == "" {
			continue
		}
		if _, dup := seen[url]; dup {
			continue
		}
		seen[url] = struct{}{}

		tag := firstText(img, "tag")
		if tag == "" {
			tag = strings.TrimSpace(img.SelectAttr("tag"))
		}

		if strings.EqualFold(tag, constants.FloorplanTag) {
			floorplans = append(floorplans, url)
		} else {
			gallery = append(gallery, url)
		}
	}
	return gallery, floorplans
}

func childElements(node *xmlquery.Node) []*xmlquery.Node {
	var out []*xmlquery.Node
	for c := node.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode {
			out = append(out, c)
		}
	}
	return out
}

// --- разбор значений ---

var (
	floatPrefix = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)
	intPrefix   = regexp.MustCompile(`^[+-]?\d+`)
)

// parseNumber разбирает числовой префикс строки. Всё, что не число, дает 0.
func parseNumber(raw string) float64 {
	v, _ := parseNumberStrict(raw)
	return v
}

func parseNumberStrict(raw string) (float64, bool) {
	m := floatPrefix.FindString(strings.TrimSpace(raw))
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func parseInteger(raw string) int {
	m := intPrefix.FindString(strings.TrimSpace(raw))
	if m == "" {
		return 0
	}
	v, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return v
}

func parseFlag(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "si":
		return true
	}
	return false
}

func textOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
