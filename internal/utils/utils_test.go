package utils

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumericToMinorUnits(t *testing.T) {
	var n pgtype.Numeric
	require.NoError(t, n.Scan("12.50"))
	assert.Equal(t, int64(1250), NumericToMinorUnits(n))

	require.NoError(t, n.Scan("7.125"))
	assert.Equal(t, int64(713), NumericToMinorUnits(n))

	assert.Zero(t, NumericToMinorUnits(pgtype.Numeric{}))
}

func TestFormatAndParseMinorUnits(t *testing.T) {
	tests := []struct {
		amount int64
		text   string
	}{
		{amount: 0, text: "0.00"},
		{amount: 5, text: "0.05"},
		{amount: 1250, text: "12.50"},
		{amount: -1999, text: "-19.99"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.text, FormatMinorUnits(tt.amount))
			got, err := ParseMinorUnits(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.amount, got)
		})
	}

	_, err := ParseMinorUnits("twelve")
	assert.Error(t, err)
}

func TestInTimezone(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, time.UTC, InTimezone(ts, "Nowhere/Invalid").Location())
	assert.True(t, ts.Equal(InTimezone(ts, "America/Mexico_City")))
}
