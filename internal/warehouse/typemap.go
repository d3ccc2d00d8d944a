package warehouse

import "strings"

// FallbackType is the destination type for source types the mapper does not
// recognize. Introspection must never abort over an exotic type; its textual
// representation can always be stored.
const FallbackType = "TEXT"

// kind buckets source type families into destination types.
type kind int

const (
	kindNumeric kind = iota
	kindText
	kindBoolean
	kindTimestamp
	kindBinary
)

// sourceTypeKinds maps normalized Postgres catalog type names to their
// destination family.
var sourceTypeKinds = map[string]kind{
	// integer / decimal / float / money families
	"smallint":         kindNumeric,
	"integer":          kindNumeric,
	"int":              kindNumeric,
	"int2":             kindNumeric,
	"int4":             kindNumeric,
	"int8":             kindNumeric,
	"bigint":           kindNumeric,
	"numeric":          kindNumeric,
	"decimal":          kindNumeric,
	"real":             kindNumeric,
	"float4":           kindNumeric,
	"float8":           kindNumeric,
	"double precision": kindNumeric,
	"money":            kindNumeric,
	"smallserial":      kindNumeric,
	"serial":           kindNumeric,
	"bigserial":        kindNumeric,
	"oid":              kindNumeric,

	// character / text / identifier / xml families
	"character varying": kindText,
	"varchar":           kindText,
	"character":         kindText,
	"char":              kindText,
	"bpchar":            kindText,
	"text":              kindText,
	"name":              kindText,
	"uuid":              kindText,
	"xml":               kindText,
	"json":              kindText,
	"jsonb":             kindText,
	"citext":            kindText,
	"inet":              kindText,
	"cidr":              kindText,
	"macaddr":           kindText,
	"interval":          kindText,

	// boolean family
	"boolean": kindBoolean,
	"bool":    kindBoolean,

	// date / time families
	"date":                        kindTimestamp,
	"timestamp":                   kindTimestamp,
	"timestamp without time zone": kindTimestamp,
	"timestamp with time zone":    kindTimestamp,
	"timestamptz":                 kindTimestamp,
	"time":                        kindTimestamp,
	"time without time zone":      kindTimestamp,
	"time with time zone":         kindTimestamp,
	"timetz":                      kindTimestamp,

	// binary families
	"bytea": kindBinary,
	"blob":  kindBinary,
}

// RecognizedType reports whether the source catalog type has a dedicated
// destination mapping. Unrecognized types still map, via FallbackType.
func RecognizedType(sourceType string) bool {
	_, ok := sourceTypeKinds[normalizeType(sourceType)]
	return ok
}

// MapType maps a source catalog type to the destination column type for the
// given dialect. It is total: unrecognized types map to FallbackType.
func MapType(d Dialect, sourceType string) string {
	k, ok := sourceTypeKinds[normalizeType(sourceType)]
	if !ok {
		return FallbackType
	}
	switch k {
	case kindNumeric:
		return "NUMERIC"
	case kindBoolean:
		return "BOOLEAN"
	case kindTimestamp:
		return "TIMESTAMP"
	case kindBinary:
		return d.BinaryType()
	default:
		return "TEXT"
	}
}

// LoadCast returns the SQL cast suffix applied to the column in the
// bulk-transfer SELECT. Arbitrary-precision and exotic source types are cast
// on the source side so their values bind cleanly as destination
// parameters; everything a driver handles natively is left uncast.
func LoadCast(sourceType string) string {
	t := normalizeType(sourceType)
	if _, ok := sourceTypeKinds[t]; !ok {
		// Unrecognized types land in the textual fallback column.
		return "::text"
	}
	switch t {
	case "numeric", "decimal", "money":
		return "::float8"
	case "uuid", "xml", "json", "jsonb", "citext", "inet", "cidr", "macaddr", "interval", "name":
		return "::text"
	}
	return ""
}

// normalizeType lowercases the type name and strips any length or precision
// suffix, so "NUMERIC(10,2)" and "character varying(255)" map like their
// bare forms. Array types map to the fallback.
func normalizeType(sourceType string) string {
	t := strings.ToLower(strings.TrimSpace(sourceType))
	if i := strings.IndexByte(t, '('); i > 0 {
		t = strings.TrimSpace(t[:i])
	}
	return t
}
