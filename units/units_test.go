package units_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/batch-ledger/units"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestTable_Convert(t *testing.T) {
	table := units.Default()

	cases := []struct {
		name     string
		qty      string
		from, to string
		want     string
	}{
		{"identity", "3", "kg", "kg", "3"},
		{"case insensitive", "3", " KG ", "kg", "3"},
		{"empty unit", "3", "", "kg", "3"},
		{"kg to g", "1.5", "kg", "g", "1500"},
		{"g to kg", "250", "g", "kg", "0.25"},
		{"lb to kg", "10", "lb", "kg", "4.53592"},
		{"ml to liter", "500", "ml", "liter", "0.5"},
		{"l alias", "2", "l", "ml", "2000"},
		{"case to kg", "2", "case", "kg", "20"},
		{"case to g through kg", "1", "case", "g", "10000"},
		{"bottle to ml", "2", "bottle", "ml", "1500"},
		{"kg to bag", "10", "kg", "bag", "2"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := table.Convert(dec(tc.qty), tc.from, tc.to)
			require.NoError(t, err)
			assert.True(t, got.Equal(dec(tc.want)), "got %s want %s", got, tc.want)
		})
	}
}

func TestTable_Incompatible(t *testing.T) {
	table := units.Default()

	_, err := table.Convert(dec("1"), "kg", "liter")
	assert.ErrorIs(t, err, units.ErrIncompatible)

	_, err = table.Convert(dec("1"), "bottle", "kg")
	var convErr *units.ConversionError
	require.ErrorAs(t, err, &convErr)
	assert.Equal(t, "bottle", convErr.From)

	_, err = table.Convert(dec("1"), "pinch", "g")
	assert.ErrorIs(t, err, units.ErrIncompatible)
}
