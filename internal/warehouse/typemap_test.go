package warehouse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		sourceType string
		dialect    Dialect
		want       string
	}{
		{"integer", DialectDuckDB, "NUMERIC"},
		{"bigint", DialectDuckDB, "NUMERIC"},
		{"NUMERIC(10,2)", DialectDuckDB, "NUMERIC"},
		{"double precision", DialectPostgres, "NUMERIC"},
		{"money", DialectDuckDB, "NUMERIC"},
		{"character varying(255)", DialectDuckDB, "TEXT"},
		{"text", DialectPostgres, "TEXT"},
		{"uuid", DialectDuckDB, "TEXT"},
		{"jsonb", DialectDuckDB, "TEXT"},
		{"boolean", DialectDuckDB, "BOOLEAN"},
		{"timestamp with time zone", DialectDuckDB, "TIMESTAMP"},
		{"date", DialectPostgres, "TIMESTAMP"},
		{"bytea", DialectDuckDB, "BLOB"},
		{"bytea", DialectPostgres, "BYTEA"},
		// unrecognized types fall back to text instead of failing
		{"geography", DialectDuckDB, "TEXT"},
		{"integer[]", DialectDuckDB, "TEXT"},
		{"some_custom_enum", DialectPostgres, "TEXT"},
		{"", DialectDuckDB, "TEXT"},
	}

	for _, tt := range tests {
		t.Run(tt.sourceType+"/"+string(tt.dialect), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, MapType(tt.dialect, tt.sourceType))
		})
	}
}

func TestRecognizedType(t *testing.T) {
	t.Parallel()

	assert.True(t, RecognizedType("integer"))
	assert.True(t, RecognizedType("NUMERIC(10,2)"))
	assert.True(t, RecognizedType("timestamp with time zone"))
	assert.False(t, RecognizedType("geography"))
	assert.False(t, RecognizedType("integer[]"))
	assert.False(t, RecognizedType(""))
}

func TestLoadCast(t *testing.T) {
	t.Parallel()

	tests := []struct {
		sourceType string
		want       string
	}{
		// driver-native types transfer uncast
		{"integer", ""},
		{"bigint", ""},
		{"text", ""},
		{"boolean", ""},
		{"timestamp without time zone", ""},
		{"bytea", ""},
		// arbitrary precision is cast to float8 for clean binding
		{"numeric", "::float8"},
		{"NUMERIC(12,4)", "::float8"},
		{"money", "::float8"},
		// structured types transfer as text
		{"uuid", "::text"},
		{"jsonb", "::text"},
		{"inet", "::text"},
		{"interval", "::text"},
		// unrecognized types transfer as text
		{"geography", "::text"},
		{"integer[]", "::text"},
	}

	for _, tt := range tests {
		t.Run(tt.sourceType, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, LoadCast(tt.sourceType))
		})
	}
}

func TestNormalizeType(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "numeric", normalizeType(" NUMERIC(10,2) "))
	assert.Equal(t, "character varying", normalizeType("character varying(64)"))
	assert.Equal(t, "text", normalizeType("TEXT"))
}
