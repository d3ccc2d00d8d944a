package sqlident

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "plain name passes unchanged",
			input: "order_lines_2024",
			want:  "order_lines_2024",
		},
		{
			name:  "upper case is normalized",
			input: "OrderLines",
			want:  "orderlines",
		},
		{
			name:  "leading underscore is allowed",
			input: "_synced_at",
			want:  "_synced_at",
		},
		{
			name:    "injection attempt is rejected",
			input:   "orders; DROP TABLE x",
			wantErr: true,
		},
		{
			name:    "empty name is rejected",
			input:   "",
			wantErr: true,
		},
		{
			name:    "overlong name is rejected",
			input:   strings.Repeat("a", 1000),
			wantErr: true,
		},
		{
			name:    "just over the limit is rejected",
			input:   strings.Repeat("a", MaxLength+1),
			wantErr: true,
		},
		{
			name:  "exactly at the limit passes",
			input: strings.Repeat("a", MaxLength),
			want:  strings.Repeat("a", MaxLength),
		},
		{
			name:    "leading digit is rejected",
			input:   "2024_orders",
			wantErr: true,
		},
		{
			name:    "quote character is rejected",
			input:   `orders"`,
			wantErr: true,
		},
		{
			name:    "reserved word is rejected",
			input:   "select",
			wantErr: true,
		},
		{
			name:    "reserved word in any case is rejected",
			input:   "DROP",
			wantErr: true,
		},
		{
			name:    "unicode is rejected",
			input:   "zamówienia",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Sanitize(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidIdentifier)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
