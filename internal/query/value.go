package query

import (
	"strconv"

	"github.com/earn-network/payout-engine/internal/storage"
)

// reserved names are never sent to storage: pagination fields belong to the
// query window, collectionName is engine-injected union metadata.
var reservedFields = map[string]struct{}{
	"sort":           {},
	"order":          {},
	"pageNumber":     {},
	"pageSize":       {},
	"collectionName": {},
}

// Typecast normalizes one filter value before it is matched against storage.
//
// Booleans written as strings become booleans. A scalar that parses as a
// number becomes a disjunction of its numeric and string forms, so filters
// stay tolerant of legacy documents that stored numbers as strings. Arrays
// are sanitized element-wise and flattened into a single disjunction.
// Everything else passes through unchanged.
func Typecast(value interface{}) interface{} {
	switch v := value.(type) {
	case string:
		switch v {
		case "true":
			return true
		case "false":
			return false
		}
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return storage.Disjunction{Alternatives: []interface{}{n, v}}
		}
		return v
	case []interface{}:
		alternatives := make([]interface{}, 0, len(v))
		for _, element := range v {
			cast := Typecast(element)
			if d, ok := cast.(storage.Disjunction); ok {
				alternatives = append(alternatives, d.Alternatives...)
				continue
			}
			alternatives = append(alternatives, cast)
		}
		return storage.Disjunction{Alternatives: alternatives}
	case int:
		return numberDisjunction(float64(v))
	case int32:
		return numberDisjunction(float64(v))
	case int64:
		return numberDisjunction(float64(v))
	case float32:
		return numberDisjunction(float64(v))
	case float64:
		return numberDisjunction(v)
	default:
		return value
	}
}

func numberDisjunction(n float64) storage.Disjunction {
	return storage.Disjunction{
		Alternatives: []interface{}{n, strconv.FormatFloat(n, 'f', -1, 64)},
	}
}

// Sanitize typecasts every filter field. Fields with nil values and reserved
// field names are dropped entirely so they never reach storage.
func Sanitize(filter map[string]interface{}) storage.Filter {
	out := make(storage.Filter, len(filter))
	for field, value := range filter {
		if value == nil {
			continue
		}
		if _, reserved := reservedFields[field]; reserved {
			continue
		}
		out[field] = Typecast(value)
	}
	return out
}
