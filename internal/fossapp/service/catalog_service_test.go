package service

import (
	"context"
	"strings"
	"testing"

	"github.com/fosslighting/fossapp/internal/config"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

func TestFold(t *testing.T) {
	cases := map[string]string{
		"  Φωτιστικό   LED ": "φωτιστικο led",
		"Café Crème":         "cafe creme",
		"DOWNLIGHT":          "downlight",
		"":                   "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Fold(in), "input %q", in)
	}
}

func TestParseProductRows(t *testing.T) {
	rows := [][]string{
		{"\ufeffFOSS PID", "Description", "Price", "Family", "IP Rating", "CCT"},
		{"DL-100", "Recessed downlight", "42,50", "Downlights", "IP44", "3000K"},
		{"", "no pid", "1", "", "", ""},
		{"DL-200", "Bad price", "abc", "", "", ""},
		{"", "", "", "", "", ""},
		{"DL-100", "Recessed downlight v2", "45", "Downlights", "IP65", ""},
	}

	products, result, err := ParseProductRows(rows)
	require.NoError(t, err)
	require.Len(t, products, 1)

	p := products[0]
	assert.Equal(t, "DL-100", p.FossPID)
	assert.Equal(t, "Recessed downlight v2", p.DescriptionShort)
	assert.True(t, decimal.NewFromInt(45).Equal(p.Price))
	assert.Equal(t, "EUR", p.Currency)
	assert.Equal(t, "IP65", p.Specs["IP Rating"])
	assert.NotContains(t, p.Specs, "CCT")
	assert.Contains(t, p.SearchText, "recessed downlight v2")

	assert.Equal(t, 3, result.Skipped)
	assert.Len(t, result.Errors, 2)
}

func TestParseProductRows_DecimalComma(t *testing.T) {
	products, _, err := ParseProductRows([][]string{
		{"pid", "price"},
		{"A-1", "42,50"},
	})
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "42.5", products[0].Price.String())
}

func TestParsePrice(t *testing.T) {
	cases := map[string]string{
		"42":          "42",
		"42,50":       "42.5",
		"1.234,56":    "1234.56",
		"1,234.56":    "1234.56",
		"1.234.567":   "1234567",
		"1.234.567,8": "1234567.8",
		" 1 234,00 ":  "1234",
	}
	for in, want := range cases {
		got, err := parsePrice(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got.String(), in)
	}

	_, err := parsePrice("12,3,4.5x")
	assert.Error(t, err)
}

func TestParseProductRows_GreekThousands(t *testing.T) {
	products, result, err := ParseProductRows([][]string{
		{"pid", "price"},
		{"A-1", "1.234,56"},
	})
	require.NoError(t, err)
	assert.Zero(t, result.Skipped)
	require.Len(t, products, 1)
	assert.Equal(t, "1234.56", products[0].Price.String())
}

func TestParseProductRows_RequiresPIDColumn(t *testing.T) {
	_, _, err := ParseProductRows([][]string{{"name", "price"}, {"x", "1"}})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, _, err = ParseProductRows(nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestReadCSVRows_Windows1253(t *testing.T) {
	encoded, err := charmap.Windows1253.NewEncoder().String("foss_pid,description\nGR-1,Φωτιστικό οροφής\n")
	require.NoError(t, err)

	rows, err := ReadCSVRows(strings.NewReader(encoded), "windows-1253")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Φωτιστικό οροφής", rows[1][1])

	_, err = ReadCSVRows(strings.NewReader("a"), "latin-9")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestNormalizeAreaCode(t *testing.T) {
	code, err := NormalizeAreaCode(" lobby-1 ")
	require.NoError(t, err)
	assert.Equal(t, "LOBBY-1", code)

	for _, bad := range []string{"", "has space", "ΑΒΓ", strings.Repeat("A", 33)} {
		_, err := NormalizeAreaCode(bad)
		assert.ErrorIs(t, err, ErrInvalidInput, "code %q", bad)
	}
}

func TestFloorPlanObjectKey(t *testing.T) {
	assert.Equal(t, "v3_ground_floor.dwg", FloorPlanObjectKey(3, "ground floor.dwg"))
	assert.Equal(t, "v1_plan.dwg", FloorPlanObjectKey(1, `C:\drawings\plan.dwg`))
}

func TestValidateLine(t *testing.T) {
	assert.NoError(t, validateLine(1, decimal.NewFromInt(10), decimal.Zero))
	assert.NoError(t, validateLine(5, decimal.Zero, decimal.NewFromInt(100)))
	assert.ErrorIs(t, validateLine(0, decimal.NewFromInt(10), decimal.Zero), ErrInvalidInput)
	assert.ErrorIs(t, validateLine(1, decimal.NewFromInt(-1), decimal.Zero), ErrInvalidInput)
	assert.ErrorIs(t, validateLine(1, decimal.NewFromInt(10), decimal.NewFromInt(101)), ErrInvalidInput)
	assert.ErrorIs(t, validateLine(1, decimal.NewFromInt(10), decimal.NewFromInt(-5)), ErrInvalidInput)
}

func TestConvertCurrency_ConfigRates(t *testing.T) {
	svc := NewCurrencyService(nil, config.CurrencyConfig{
		Base:  "EUR",
		Rates: map[string]float64{"USD": 1.1, "GBP": 0.85},
	}, nil)
	ctx := context.Background()

	usd, err := svc.ConvertCurrency(ctx, decimal.NewFromInt(100), "EUR", "usd")
	require.NoError(t, err)
	assert.Equal(t, "110", usd.String())

	eur, err := svc.ConvertCurrency(ctx, decimal.NewFromInt(110), "USD", "EUR")
	require.NoError(t, err)
	assert.Equal(t, "100", eur.String())

	same, err := svc.ConvertCurrency(ctx, decimal.RequireFromString("12.345"), "GBP", "GBP")
	require.NoError(t, err)
	assert.Equal(t, "12.35", same.String())

	_, err = svc.ConvertCurrency(ctx, decimal.NewFromInt(1), "EUR", "JPY")
	assert.ErrorIs(t, err, ErrUnknownCurrency)
}

func TestReadCSVRows_SemicolonDelimiter(t *testing.T) {
	rows, err := ReadCSVRows(strings.NewReader("foss_pid;price\nDL-1;42,50\n"), CharsetUTF8)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"DL-1", "42,50"}, rows[1])
}
