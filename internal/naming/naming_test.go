package naming

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToCamel(t *testing.T) {
	tests := []struct {
		attr string
		want string
	}{
		{"this", "this"},
		{"this_attr", "thisAttr"},
		{"From", "from"},
		{"store_blank_cells_as_nulls", "storeBlankCellsAsNulls"},
		{"column_name", "columnName"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.attr, func(t *testing.T) {
			assert.Equal(t, tt.want, ToCamel(tt.attr))
		})
	}
}

func TestFromCamel(t *testing.T) {
	tests := []struct {
		attr string
		want string
	}{
		{"this", "this"},
		{"This", "this"},
		{"thisAttr", "this_attr"},
		{"ThisAttr", "this_attr"},
		{"From", "from"},
		{"blankChoice", "blank_choice"},
		{"baseBins", "base_bins"},
	}

	for _, tt := range tests {
		t.Run(tt.attr, func(t *testing.T) {
			assert.Equal(t, tt.want, FromCamel(tt.attr))
		})
	}
}

func TestKeysToCamel(t *testing.T) {
	in := map[string]any{
		"header_lines":     0,
		"store_blank_rows": false,
		"separator":        "\t",
	}

	got := KeysToCamel(in)

	assert.Equal(t, map[string]any{
		"headerLines":    0,
		"storeBlankRows": false,
		"separator":      "\t",
	}, got)
	// Исходная map не меняется
	assert.Contains(t, in, "header_lines")
}

func TestKeysFromCamel(t *testing.T) {
	got := KeysFromCamel(map[string]any{"columnName": "a", "omitBlank": true})
	assert.Equal(t, map[string]any{"column_name": "a", "omit_blank": true}, got)

	assert.Nil(t, KeysFromCamel(nil))
}
