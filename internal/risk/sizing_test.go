package risk

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"channel-trader/internal/config"
)

func TestSize_Scenario(t *testing.T) {
	qty, err := Size(1000, 0.25, 20, 2000)
	require.NoError(t, err)
	assert.Equal(t, "2.5", qty.String())
}

func TestSize_TruncatesToSixPlaces(t *testing.T) {
	qty, err := Size(100, 0.25, 1, 3)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("8.333333").Equal(qty), qty.String())
}

func TestSize_NonPositiveIsFatal(t *testing.T) {
	cases := []struct {
		name    string
		balance float64
		price   float64
	}{
		{"zero balance", 0, 2000},
		{"dust balance", 0.00000001, 2000},
		{"zero price", 1000, 0},
		{"nan price", 1000, math.NaN()},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Size(tc.balance, 0.25, 20, tc.price)
			assert.ErrorIs(t, err, ErrFatalSizing)
		})
	}
}

func TestSizer_UsesStrategyConfig(t *testing.T) {
	s := NewSizer(config.StrategyConfig{Leverage: 20, WalletFraction: 0.25})
	qty, err := s.Size(1000, 2000)
	require.NoError(t, err)
	assert.Equal(t, "2.5", qty.String())
	assert.Equal(t, 20, s.Leverage())
}
