package constants

// Параметры импорта фида
const (
	DefaultImportChunkSize = 25

	// сколько последних записей кэша сохраняется на диск и запасной размер при переполнении
	DefaultCachePersistLimit         = 200
	DefaultCachePersistFallbackLimit = 50
	CacheStorageKey                  = "properties_cache"

	DefaultRemoteReloadLimit = 2000

	// DefaultLocalStoreQuotaBytes - как у localStorage в браузере
	DefaultLocalStoreQuotaBytes = 5 * 1024 * 1024
)

// Значения по умолчанию для полей объекта
const (
	PlaceholderImageURL = "https://placehold.co/800x600?text=No+Image"
	DefaultDeveloper    = "Zeneco Partner"
	DefaultPropertyType = "Bolig"
	DefaultCountry      = "Spain"
	DefaultCurrency     = "EUR"

	SyntheticIDPrefix = "REDSP"
	FloorplanTag      = "floorplan"
)

// Источники запуска импорта
const (
	ImportSourceUpload = "upload"
	ImportSourceURL    = "url"
	ImportSourceQueue  = "queue"
)
