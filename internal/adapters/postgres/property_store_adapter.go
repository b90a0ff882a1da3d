package postgres

import (
	"context"
	"fmt"
	"property-feed-service/internal/contextkeys"
	"property-feed-service/internal/core/domain"
	"property-feed-service/internal/core/port"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresPropertyStore реализует RemotePropertyStorePort для PostgreSQL
type PostgresPropertyStore struct {
	pool *pgxpool.Pool
}

// NewPostgresPropertyStore создает новый экземпляр адаптера
func NewPostgresPropertyStore(pool *pgxpool.Pool) (*PostgresPropertyStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pgxpool.Pool cannot be nil")
	}
	return &PostgresPropertyStore{pool: pool}, nil
}

const upsertPropertiesSQL = `
		INSERT INTO properties (%s)
		VALUES %s
		ON CONFLICT (ref) DO UPDATE SET
			%s;
	`

// UpsertProperties пишет чанк одним запросом. Конфликтующие по ref строки перезаписываются.
func (a *PostgresPropertyStore) UpsertProperties(ctx context.Context, records []domain.Property, updatedAt time.Time) error {
	repoLogger := contextkeys.LoggerFromContext(ctx).WithFields(port.Fields{
		"component":    "PostgresPropertyStore",
		"method":       "UpsertProperties",
		"record_count": len(records),
	})

	unique := dedupeByRef(records)
	if len(unique) == 0 {
		repoLogger.Debug("No records to upsert", nil)
		return nil
	}

	rows := make([][]interface{}, len(unique))
	for i, rec := range unique {
		rows[i] = toRow(rec, updatedAt)
	}

	names := columnNames()
	query := fmt.Sprintf(upsertPropertiesSQL,
		strings.Join(names, ", "),
		buildValuesPlaceholders(columnTypes(), len(rows)),
		buildUpdateSet(names, "ref"),
	)

	tag, err := a.pool.Exec(ctx, query, flatten(rows)...)
	if err != nil {
		repoLogger.Error("Failed to upsert properties", err, nil)
		return fmt.Errorf("PostgresPropertyStore: failed to upsert %d properties: %w", len(rows), err)
	}

	repoLogger.Debug("Properties upserted", port.Fields{"rows_affected": tag.RowsAffected()})
	return nil
}

// FetchRecentProperties возвращает до limit строк, начиная с самых свежих
func (a *PostgresPropertyStore) FetchRecentProperties(ctx context.Context, limit int) ([]domain.Property, error) {
	query := fmt.Sprintf(`SELECT %s FROM properties ORDER BY updated_at DESC LIMIT $1`,
		strings.Join(columnNames(), ", "))

	rows, err := a.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("PostgresPropertyStore: failed to query recent properties: %w", err)
	}

	dbRows, err := pgx.CollectRows(rows, pgx.RowToStructByName[propertyRow])
	if err != nil {
		return nil, fmt.Errorf("PostgresPropertyStore: failed to scan recent properties: %w", err)
	}

	out := make([]domain.Property, len(dbRows))
	for i, r := range dbRows {
		out[i] = r.toDomain()
	}
	return out, nil
}

// EnsureSchema создает таблицу properties, если ее еще нет
func (a *PostgresPropertyStore) EnsureSchema(ctx context.Context) error {
	if _, err := a.pool.Exec(ctx, createTableSQL()); err != nil {
		return fmt.Errorf("PostgresPropertyStore: failed to ensure schema: %w", err)
	}
	return nil
}

func createTableSQL() string {
	defs := make([]string, 0, len(propertyColumns))
	for _, c := range propertyColumns {
		def := c.name + " " + c.sqlType
		switch {
		case c.name == "ref":
			def += " PRIMARY KEY"
		case c.name == "updated_at":
			def += " NOT NULL DEFAULT NOW()"
		case c.sqlType == "BOOLEAN":
			def += " NOT NULL DEFAULT FALSE"
		case c.sqlType == "TEXT[]":
			def += " NOT NULL DEFAULT '{}'"
		case c.name != "distance_to_beach_m" && (c.sqlType == "DOUBLE PRECISION" || c.sqlType == "INTEGER"):
			def += " NOT NULL DEFAULT 0"
		}
		defs = append(defs, def)
	}

	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS properties (
			%s
		);
		CREATE INDEX IF NOT EXISTS idx_properties_updated_at ON properties (updated_at DESC);
	`, strings.Join(defs, ",\n\t\t\t"))
}
