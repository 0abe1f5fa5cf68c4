package dcb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "simple", input: "account_id", wantErr: false},
		{name: "leading underscore", input: "_cart", wantErr: false},
		{name: "digits allowed after first char", input: "cart1", wantErr: false},
		{name: "empty", input: "", wantErr: true},
		{name: "leading digit", input: "1cart", wantErr: true},
		{name: "hyphen", input: "cart-id", wantErr: true},
		{name: "reserved event_id", input: "event_id", wantErr: true},
		{name: "reserved payload", input: "payload", wantErr: true},
		{name: "reserved event_type", input: "event_type", wantErr: true},
		{name: "reserved inserted_at", input: "inserted_at", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := NewIdentifier(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsValidationError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.input, id.String())
		})
	}
}

func TestIdentifierValueEquality(t *testing.T) {
	assert.True(t, Text("1").Equal(Text("1")))
	assert.False(t, Text("1").Equal(Int64(1)), "text and int64 carrying the same digits must not be equal")
	assert.False(t, Int64(1).Equal(Int64(2)))
}
