package domain

// TrustTier is a discrete autonomy level. Higher tiers permit more
// unsupervised action and require strictly tighter factor minimums.
type TrustTier string

const (
	TierT0 TrustTier = "T0" // Sandbox
	TierT1 TrustTier = "T1" // Probation
	TierT2 TrustTier = "T2" // Limited
	TierT3 TrustTier = "T3" // Standard
	TierT4 TrustTier = "T4" // Trusted
	TierT5 TrustTier = "T5" // Sovereign
)

// TierBand is the inclusive [Min,Max] score band for a tier on the
// 0-1000 scale.
type TierBand struct {
	Min int
	Max int
}

var tierOrder = []TrustTier{TierT0, TierT1, TierT2, TierT3, TierT4, TierT5}

var tierBands = map[TrustTier]TierBand{
	TierT0: {Min: 0, Max: 99},
	TierT1: {Min: 100, Max: 299},
	TierT2: {Min: 300, Max: 499},
	TierT3: {Min: 500, Max: 699},
	TierT4: {Min: 700, Max: 899},
	TierT5: {Min: 900, Max: 1000},
}

var tierLabels = map[TrustTier]string{
	TierT0: "Sandbox",
	TierT1: "Probation",
	TierT2: "Limited",
	TierT3: "Standard",
	TierT4: "Trusted",
	TierT5: "Sovereign",
}

// AllTiers returns tiers in ascending order.
func AllTiers() []TrustTier {
	out := make([]TrustTier, len(tierOrder))
	copy(out, tierOrder)
	return out
}

// Band returns the score band for the tier.
func (t TrustTier) Band() TierBand {
	return tierBands[t]
}

// Label returns the human-readable tier name.
func (t TrustTier) Label() string {
	return tierLabels[t]
}

// Index returns the ordinal position of the tier, -1 for unknown tiers.
func (t TrustTier) Index() int {
	for i, tier := range tierOrder {
		if tier == t {
			return i
		}
	}
	return -1
}

// Next returns the next tier up and false when already at the top.
func (t TrustTier) Next() (TrustTier, bool) {
	i := t.Index()
	if i < 0 || i >= len(tierOrder)-1 {
		return t, false
	}
	return tierOrder[i+1], true
}

// Prev returns the next tier down and false when already at the bottom.
func (t TrustTier) Prev() (TrustTier, bool) {
	i := t.Index()
	if i <= 0 {
		return t, false
	}
	return tierOrder[i-1], true
}

// TierFromScore maps a 0-1000 score onto its tier. The lower boundary of
// each band is inclusive; scores are clamped into [0,1000] first so the
// function is total and monotonic.
func TierFromScore(score int) TrustTier {
	if score < 0 {
		score = 0
	}
	if score > 1000 {
		score = 1000
	}
	for i := len(tierOrder) - 1; i >= 0; i-- {
		if score >= tierBands[tierOrder[i]].Min {
			return tierOrder[i]
		}
	}
	return TierT0
}
