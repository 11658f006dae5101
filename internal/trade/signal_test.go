package trade

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFactoryBuildScalesSize(t *testing.T) {
	f := NewFactory(0.1)
	trade := NormalizedTrade{
		ID:            "t-1",
		MarketToken:   "m1",
		Side:          SideBuy,
		Price:         0.6,
		Size:          100,
		Timestamp:     1700000000000,
		SourceAddress: "0xwhale",
	}

	sig := f.Build(trade, SignalSmartMoney, FixedStrength(0.9), "tracked trader")

	assert.Equal(t, SignalSmartMoney, sig.Type)
	assert.Equal(t, "m1", sig.MarketToken)
	assert.Equal(t, SideBuy, sig.Direction)
	assert.Equal(t, 0.6, sig.Price)
	assert.Equal(t, 10.0, sig.Size)
	assert.Equal(t, 0.9, sig.Strength)
	assert.Equal(t, "0xwhale", sig.SourceAddress)
	assert.Equal(t, int64(1700000000000), sig.Timestamp)
}

func TestFactoryBuildZeroExpectedProfit(t *testing.T) {
	f := NewFactory(0.5)
	sig := f.Build(NormalizedTrade{MarketToken: "m", Side: SideSell, Price: 0.4, Size: 50}, SignalLargeTrade, FixedStrength(0.8), "")

	// Copy signals carry no profit estimate.
	assert.Zero(t, sig.ExpectedProfit)
}

func TestNewFactoryDefaultRatio(t *testing.T) {
	assert.Equal(t, DefaultCopyRatio, NewFactory(0).CopyRatio)
	assert.Equal(t, DefaultCopyRatio, NewFactory(-1).CopyRatio)
	assert.Equal(t, 0.25, NewFactory(0.25).CopyRatio)
}

func TestFixedStrengthClamped(t *testing.T) {
	assert.Equal(t, 1.0, FixedStrength(1.5).Strength())
	assert.Equal(t, 0.0, FixedStrength(-0.2).Strength())
	assert.Equal(t, 0.9, FixedStrength(0.9).Strength())
}

func TestTraderStrengthTiers(t *testing.T) {
	cases := []struct {
		name      string
		winRate   float64
		avgProfit float64
		want      float64
	}{
		{"baseline", 0.5, 0.0, 0.7},
		{"decent win rate", 0.55, 0.0, 0.8},
		{"strong win rate", 0.7, 0.0, 0.9},
		{"profitable too", 0.7, 0.2, 1.0},
		{"profit bump only", 0.4, 0.2, 0.8},
		{"capped at one", 0.9, 0.5, 1.0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := TraderStrength{WinRate: tc.winRate, AvgProfit: tc.avgProfit}.Strength()
			assert.InDelta(t, tc.want, got, 1e-9)
		})
	}
}
