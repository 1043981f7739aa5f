package apiclient

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Keys returns the record's field names in display order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	SortFields(keys)
	return keys
}

// FilterRecords keeps records where any value contains query, ignoring case.
func FilterRecords(records []Record, query string) []Record {
	if query == "" {
		return records
	}
	needle := strings.ToLower(query)
	var out []Record
	for _, rec := range records {
		for _, v := range rec {
			if strings.Contains(strings.ToLower(FormatValue(v)), needle) {
				out = append(out, rec)
				break
			}
		}
	}
	return out
}

// Columns picks up to limit table columns from the scalar fields of records.
// A limit <= 0 keeps every column.
func Columns(records []Record, limit int) []string {
	seen := make(map[string]bool)
	var cols []string
	for _, rec := range records {
		for k, v := range rec {
			if seen[k] {
				continue
			}
			switch v.(type) {
			case map[string]any, []any:
				continue
			}
			seen[k] = true
			cols = append(cols, k)
		}
	}
	SortFields(cols)
	if limit > 0 && len(cols) > limit {
		cols = cols[:limit]
	}
	return cols
}

// SortFields orders identifiers first, then names, then the rest
// alphabetically.
func SortFields(fields []string) {
	rank := func(c string) int {
		switch strings.ToLower(c) {
		case "id", "codigo":
			return 0
		case "nome", "name", "descricao", "razaosocial":
			return 1
		default:
			return 2
		}
	}
	sort.SliceStable(fields, func(i, j int) bool {
		ri, rj := rank(fields[i]), rank(fields[j])
		if ri != rj {
			return ri < rj
		}
		return fields[i] < fields[j]
	})
}

// FormatValue renders a decoded JSON value for display.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "-"
	case string:
		if x == "" {
			return "-"
		}
		return x
	case bool:
		if x {
			return "Sim"
		}
		return "Não"
	case float64:
		if x == float64(int64(x)) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', 2, 64)
	case json.Number:
		return x.String()
	default:
		buf, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(buf)
	}
}
