package crud

import (
	"database/sql"

	"github.com/conduit-lang/pgmeta/internal/orm/schema"
)

// scanRows scans every row into a map keyed by property key.
// Columns the entity does not declare keep their column name.
func scanRows(rows *sql.Rows, entity *schema.Entity) ([]map[string]interface{}, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	keys := make([]string, len(columns))
	for i, name := range columns {
		keys[i] = name
		if col, ok := entity.ColumnByName(name); ok {
			keys[i] = col.PropertyKey
		}
	}

	var results []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		record := make(map[string]interface{}, len(columns))
		for i, key := range keys {
			record[key] = normalize(values[i])
		}
		results = append(results, record)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return results, nil
}

// normalize converts driver byte slices to strings so text and enum values compare naturally
func normalize(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
