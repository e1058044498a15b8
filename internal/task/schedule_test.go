package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecurrence(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{name: "every five minutes", expr: "*/5 * * * *"},
		{name: "weekday mornings", expr: "30 9 * * 1-5"},
		{name: "surrounding spaces", expr: "  0 * * * *  "},
		{name: "seconds field", expr: "0 */5 * * * *", wantErr: true},
		{name: "descriptor", expr: "@hourly", wantErr: true},
		{name: "too few fields", expr: "* * *", wantErr: true},
		{name: "out of range", expr: "61 * * * *", wantErr: true},
		{name: "empty", expr: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRecurrence(tt.expr)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNextRunAfterIsStrictlyLater(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC)
	next, err := NextRunAfter("*/5 * * * *", at, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, at.Add(5*time.Minute), next)

	next, err = NextRunAfter("*/5 * * * *", at.Add(time.Second), time.UTC)
	require.NoError(t, err)
	assert.Equal(t, at.Add(5*time.Minute), next)
}

func TestNextRunAfterUsesLocation(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	at := time.Date(2026, 3, 1, 0, 30, 0, 0, time.UTC) // 09:30 JST
	next, err := NextRunAfter("0 10 * * *", at, tokyo)
	require.NoError(t, err)
	assert.True(t, next.Equal(time.Date(2026, 3, 1, 1, 0, 0, 0, time.UTC)))
}
