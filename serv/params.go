package serv

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

var errValuesShape = errors.New("Values are neither positional nor named")

// decodeValues parses a values payload into driver arguments. A JSON
// object produces named parameters (:key), a JSON array positional ones.
func decodeValues(raw json.RawMessage) ([]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var decoded any
	if err := dec.Decode(&decoded); err != nil {
		return nil, err
	}

	switch v := decoded.(type) {
	case map[string]any:
		args := make([]any, 0, len(v))
		for k, val := range v {
			sv, err := toSQLValue(val)
			if err != nil {
				return nil, err
			}
			args = append(args, sql.Named(k, sv))
		}
		return args, nil
	case []any:
		args := make([]any, 0, len(v))
		for _, val := range v {
			sv, err := toSQLValue(val)
			if err != nil {
				return nil, err
			}
			args = append(args, sv)
		}
		return args, nil
	default:
		return nil, errValuesShape
	}
}

// toSQLValue converts a decoded JSON value to a driver-bindable one.
// Integers bind as INTEGER, other numbers as REAL, strings as TEXT;
// nested arrays and objects are re-serialized and bound as JSON text.
func toSQLValue(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i, nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number '%s'", val.String())
		}
		return f, nil
	case string:
		return val, nil
	case bool:
		return val, nil
	case map[string]any, []any:
		b, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

// rowValue converts a scanned SQLite column value to its JSON shape.
// BLOBs emerge as arrays of byte integers.
func rowValue(v any) any {
	switch val := v.(type) {
	case []byte:
		ints := make([]int, len(val))
		for i, b := range val {
			ints[i] = int(b)
		}
		return ints
	default:
		return v
	}
}

// readRows materializes a result set as a list of column-name keyed maps
func readRows(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	resultSet := []map[string]any{}
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = rowValue(raw[i])
		}
		resultSet = append(resultSet, row)
	}
	return resultSet, rows.Err()
}
