package trade

// StrengthPolicy assigns a confidence score in [0,1] to a copy signal
// based on its provenance.
type StrengthPolicy interface {
	Strength() float64
}

// FixedStrength is a constant-confidence policy, used by the simple
// smart-money path and for precomputed majority ratios.
type FixedStrength float64

func (f FixedStrength) Strength() float64 {
	return clamp01(float64(f))
}

// TraderStrength scores a signal from the tracked performance of the
// source account: base 0.7, bumped for win rate and average profit.
// The constants are tunable policy, monotonic in confidence.
type TraderStrength struct {
	WinRate   float64
	AvgProfit float64
}

func (t TraderStrength) Strength() float64 {
	strength := 0.7
	switch {
	case t.WinRate > 0.6:
		strength += 0.2
	case t.WinRate > 0.5:
		strength += 0.1
	}
	if t.AvgProfit > 0.1 {
		strength += 0.1
	}
	return clamp01(strength)
}

// Factory builds sized copy signals from normalized trades. CopyRatio
// is the fraction of the observed size mirrored into the new order.
type Factory struct {
	CopyRatio float64
}

// DefaultCopyRatio follows at 10% of the original size.
const DefaultCopyRatio = 0.1

// NewFactory creates a Factory with the given copy ratio, falling back
// to the default when the ratio is not positive.
func NewFactory(copyRatio float64) Factory {
	if copyRatio <= 0 {
		copyRatio = DefaultCopyRatio
	}
	return Factory{CopyRatio: copyRatio}
}

// Build converts a normalized trade into a copy signal. ExpectedProfit
// is deliberately zero: copy signals are not profit-estimated, which
// keeps them from being misclassified as arbitrage-grade opportunities
// downstream.
func (f Factory) Build(t NormalizedTrade, signalType string, policy StrengthPolicy, reason string) CopySignal {
	size := t.Size * f.CopyRatio
	if size < 0 {
		size = 0
	}

	return CopySignal{
		Type:           signalType,
		MarketToken:    t.MarketToken,
		Direction:      t.Side,
		Price:          t.Price,
		Size:           size,
		Strength:       policy.Strength(),
		ExpectedProfit: 0,
		Reason:         reason,
		SourceAddress:  t.SourceAddress,
		Timestamp:      t.Timestamp,
	}
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
