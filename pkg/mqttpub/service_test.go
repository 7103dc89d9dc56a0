package mqttpub

import (
	"testing"
	"time"

	"github.com/NotCoffee418/gazpar_bridge/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	var nilInt *int64

	tests := []struct {
		name    string
		payload any
		want    string
		ok      bool
	}{
		{"nil", nil, "", false},
		{"nil pointer", nilInt, "", false},
		{"string", "ON", "ON", true},
		{"int", 125, "125", true},
		{"int64 pointer", types.Ptr(int64(1012)), "1012", true},
		{"float", 11.25, "11.25", true},
		{"day", types.Date(2024, 1, 31), "2024-01-31", true},
		{"timestamp", types.Ptr(time.Date(2024, 1, 31, 6, 0, 0, 0, time.UTC)), "2024-01-31 06:00:00", true},
		{"map", map[string]string{"pce_id": "GI1"}, `{"pce_id":"GI1"}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Format(tt.payload)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
