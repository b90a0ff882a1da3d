package postgres

import (
	"fmt"
	"strings"
)

// flatten преобразует срез срезов [][]interface{} в один плоский срез []interface{}
// для передачи в variadic-аргументы pool.Exec.
func flatten(data [][]interface{}) []interface{} {
	if len(data) == 0 {
		return nil
	}

	flat := make([]interface{}, 0, len(data)*len(data[0]))
	for _, row := range data {
		flat = append(flat, row...)
	}
	return flat
}

// buildValuesPlaceholders генерирует плейсхолдеры VALUES с явным приведением типов.
// Для 2 строк с типами ["TEXT", "BIGINT"] вернет "($1::TEXT, $2::BIGINT), ($3::TEXT, $4::BIGINT)".
func buildValuesPlaceholders(types []string, rows int) string {
	if rows == 0 || len(types) == 0 {
		return ""
	}

	rowPlaceholders := make([]string, rows)
	paramIndex := 1
	for i := 0; i < rows; i++ {
		colPlaceholders := make([]string, len(types))
		for j, typ := range types {
			colPlaceholders[j] = fmt.Sprintf("$%d::%s", paramIndex, typ)
			paramIndex++
		}
		rowPlaceholders[i] = "(" + strings.Join(colPlaceholders, ", ") + ")"
	}
	return strings.Join(rowPlaceholders, ", ")
}

// buildUpdateSet - "col = EXCLUDED.col" для всех колонок, кроме ключа
func buildUpdateSet(columns []string, key string) string {
	parts := make([]string, 0, len(columns))
	for _, col := range columns {
		if col == key {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
	}
	return strings.Join(parts, ",\n\t\t\t")
}
