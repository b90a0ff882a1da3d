package domain

import "slices"

// Языки, в которых фид может содержать заголовок и описание
const (
	LangNO = "no"
	LangEN = "en"
	LangES = "es"
	LangDE = "de"
	LangFR = "fr"
	LangRU = "ru"
)

// SupportedLanguages в порядке, в котором варианты хранятся и отдаются наружу
var SupportedLanguages = []string{LangNO, LangEN, LangES, LangDE, LangFR, LangRU}

// DefaultLanguage - вариант, который приложение показывает по умолчанию
const DefaultLanguage = LangNO

const (
	StatusAvailable    = "Available"
	PriceFrequencySale = "sale"
)

// LocalizedText - текст в нескольких языковых вариантах
type LocalizedText struct {
	NO string `json:"no"`
	EN string `json:"en"`
	ES string `json:"es"`
	DE string `json:"de"`
	FR string `json:"fr"`
	RU string `json:"ru"`
}

// Get возвращает вариант для языка; для неизвестного языка - пустую строку
func (t LocalizedText) Get(lang string) string {
	switch lang {
	case LangNO:
		return t.NO
	case LangEN:
		return t.EN
	case LangES:
		return t.ES
	case LangDE:
		return t.DE
	case LangFR:
		return t.FR
	case LangRU:
		return t.RU
	}
	return ""
}

// Set записывает вариант для языка. Неизвестные языки игнорируются.
func (t *LocalizedText) Set(lang, value string) {
	switch lang {
	case LangNO:
		t.NO = value
	case LangEN:
		t.EN = value
	case LangES:
		t.ES = value
	case LangDE:
		t.DE = value
	case LangFR:
		t.FR = value
	case LangRU:
		t.RU = value
	}
}

// Default - вариант, видимый в приложении
func (t LocalizedText) Default() string {
	return t.Get(DefaultLanguage)
}

// Map применяет fn к каждому варианту
func (t LocalizedText) Map(fn func(string) string) LocalizedText {
	var out LocalizedText
	for _, lang := range SupportedLanguages {
		out.Set(lang, fn(t.Get(lang)))
	}
	return out
}

// Property - денормализованная запись об одном объекте недвижимости из фида
type Property struct {
	ExternalID string `json:"externalId"`
	InternalID string `json:"internalId"`

	Price           float64 `json:"price"`
	Currency        string  `json:"currency"`
	PriceFrequency  string  `json:"priceFrequency"`
	IsNewBuild      bool    `json:"isNewBuild"`
	IsLeasehold     bool    `json:"isLeasehold"`
	IsPartOwnership bool    `json:"isPartOwnership"`

	PropertyType string `json:"propertyType"`
	Status       string `json:"status"`

	Town           string  `json:"town"`
	Province       string  `json:"province"`
	Region         string  `json:"region"`
	Country        string  `json:"country"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	LocationDetail string  `json:"locationDetail"`
	PostalCode     string  `json:"postalCode"`

	Bedrooms              int      `json:"bedrooms"`
	Bathrooms             int      `json:"bathrooms"`
	BuiltArea             float64  `json:"builtArea"`
	PlotSize              float64  `json:"plotSize"`
	TerraceSize           float64  `json:"terraceSize"`
	SolariumArea          float64  `json:"solariumArea"`
	UsableArea            float64  `json:"usableArea"`
	DistanceToBeachMeters *float64 `json:"distanceToBeachMeters,omitempty"`
	HasPool               bool     `json:"hasPool"`
	ConsumptionRating     string   `json:"consumptionRating"`
	EmissionsRating       string   `json:"emissionsRating"`

	Title       LocalizedText `json:"title"`
	Description LocalizedText `json:"description"`

	ImageURL      string   `json:"imageUrl"`
	Gallery       []string `json:"gallery"`
	FloorplanURLs []string `json:"floorplanUrls"`

	Features  []string `json:"features"`
	Developer string   `json:"developer"`
	FeedDate  string   `json:"feedDate,omitempty"`
}

// Key - ключ слияния: внешний референс, иначе внутренний ID
func (p Property) Key() string {
	if p.ExternalID != "" {
		return p.ExternalID
	}
	return p.InternalID
}

// Clone возвращает копию, не разделяющую срезы и указатели с оригиналом
func (p Property) Clone() Property {
	out := p
	out.Gallery = slices.Clone(p.Gallery)
	out.FloorplanURLs = slices.Clone(p.FloorplanURLs)
	out.Features = slices.Clone(p.Features)
	if p.DistanceToBeachMeters != nil {
		d := *p.DistanceToBeachMeters
		out.DistanceToBeachMeters = &d
	}
	return out
}

// PricePerBuiltArea - цена за м² построенной площади, 0 если площадь неизвестна
func (p Property) PricePerBuiltArea() float64 {
	if p.BuiltArea <= 0 {
		return 0
	}
	return p.Price / p.BuiltArea
}
