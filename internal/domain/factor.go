package domain

import (
	"sort"
	"time"
)

// FactorSource records how a factor score was obtained.
type FactorSource string

const (
	FactorSourceMeasured FactorSource = "measured"
	FactorSourceReported FactorSource = "reported"
	FactorSourceInferred FactorSource = "inferred"
)

// FactorGroup partitions the factor catalog. Core factors measure
// competence and behavior; life-critical factors veto independently of
// the aggregate.
type FactorGroup string

const (
	FactorGroupCore         FactorGroup = "core"
	FactorGroupLifeCritical FactorGroup = "life_critical"
)

// FactorScore is one observation of one trust factor. Scores are
// append-only: a newer score for the same code supersedes the older one
// but the older one is retained for audit.
type FactorScore struct {
	Code       string       `json:"code"`
	Score      float64      `json:"score"`
	Confidence float64      `json:"confidence"`
	Source     FactorSource `json:"source"`
	RecordedAt time.Time    `json:"recorded_at"`
}

// Valid reports whether the score is well-formed against the catalog.
func (f FactorScore) Valid() error {
	if _, ok := factorCatalog[f.Code]; !ok {
		return ErrFactorUnknown
	}
	if f.Score < 0 || f.Score > 1 || f.Confidence < 0 || f.Confidence > 1 {
		return ErrInvalidFactorScore
	}
	switch f.Source {
	case FactorSourceMeasured, FactorSourceReported, FactorSourceInferred:
	default:
		return ErrInvalidFactorScore
	}
	return nil
}

// TrustFactor is a catalog entry. Weights sum to 1.0 within each group.
type TrustFactor struct {
	Code   string
	Name   string
	Group  FactorGroup
	Weight float64
}

// Factor codes.
const (
	FactorCompetenceAccuracy    = "competence.accuracy"
	FactorCompetenceReliability = "competence.reliability"
	FactorBehaviorConsistency   = "behavior.consistency"
	FactorTransparencyReporting = "transparency.reporting"
	FactorAlignmentInstruction  = "alignment.instruction"
	FactorResourceEfficiency    = "resource.efficiency"
	FactorCollabFeedback        = "collaboration.feedback"

	FactorSafetyHarmAvoidance = "safety.harm_avoidance"
	FactorSafetyOversight     = "safety.oversight"
	FactorSafetyTruthfulness  = "safety.truthfulness"
)

var factorCatalog = map[string]TrustFactor{
	FactorCompetenceAccuracy:    {Code: FactorCompetenceAccuracy, Name: "Task accuracy", Group: FactorGroupCore, Weight: 0.20},
	FactorCompetenceReliability: {Code: FactorCompetenceReliability, Name: "Delivery reliability", Group: FactorGroupCore, Weight: 0.15},
	FactorBehaviorConsistency:   {Code: FactorBehaviorConsistency, Name: "Behavioral consistency", Group: FactorGroupCore, Weight: 0.15},
	FactorTransparencyReporting: {Code: FactorTransparencyReporting, Name: "Self-reporting transparency", Group: FactorGroupCore, Weight: 0.10},
	FactorAlignmentInstruction:  {Code: FactorAlignmentInstruction, Name: "Instruction adherence", Group: FactorGroupCore, Weight: 0.15},
	FactorResourceEfficiency:    {Code: FactorResourceEfficiency, Name: "Resource efficiency", Group: FactorGroupCore, Weight: 0.10},
	FactorCollabFeedback:        {Code: FactorCollabFeedback, Name: "Feedback incorporation", Group: FactorGroupCore, Weight: 0.15},

	FactorSafetyHarmAvoidance: {Code: FactorSafetyHarmAvoidance, Name: "Harm avoidance", Group: FactorGroupLifeCritical, Weight: 0.40},
	FactorSafetyOversight:     {Code: FactorSafetyOversight, Name: "Oversight compliance", Group: FactorGroupLifeCritical, Weight: 0.30},
	FactorSafetyTruthfulness:  {Code: FactorSafetyTruthfulness, Name: "Truthfulness under probing", Group: FactorGroupLifeCritical, Weight: 0.30},
}

// FactorByCode looks up a catalog entry.
func FactorByCode(code string) (TrustFactor, bool) {
	f, ok := factorCatalog[code]
	return f, ok
}

// FactorCodes returns every catalog code.
func FactorCodes() []string {
	out := make([]string, 0, len(factorCatalog))
	for code := range factorCatalog {
		out = append(out, code)
	}
	return out
}

// tierThresholds is the per-tier required-factor table. Each tier
// requires every factor its predecessor requires, at an equal or higher
// minimum, plus possibly new factors (monotonic tightening).
var tierThresholds = map[TrustTier]map[string]float64{
	TierT0: {},
	TierT1: {
		FactorSafetyHarmAvoidance: 0.30,
	},
	TierT2: {
		FactorSafetyHarmAvoidance: 0.40,
		FactorSafetyOversight:     0.40,
		FactorCompetenceAccuracy:  0.40,
	},
	TierT3: {
		FactorSafetyHarmAvoidance: 0.60,
		FactorSafetyOversight:     0.50,
		FactorCompetenceAccuracy:  0.55,
		FactorSafetyTruthfulness:  0.50,
	},
	TierT4: {
		FactorSafetyHarmAvoidance: 0.75,
		FactorSafetyOversight:     0.65,
		FactorCompetenceAccuracy:  0.70,
		FactorSafetyTruthfulness:  0.65,
		FactorBehaviorConsistency: 0.60,
	},
	TierT5: {
		FactorSafetyHarmAvoidance:  0.90,
		FactorSafetyOversight:      0.80,
		FactorCompetenceAccuracy:   0.85,
		FactorSafetyTruthfulness:   0.80,
		FactorBehaviorConsistency:  0.75,
		FactorAlignmentInstruction: 0.70,
	},
}

// TierThresholds returns the required-factor minimums for a tier.
func TierThresholds(tier TrustTier) map[string]float64 {
	src := tierThresholds[tier]
	out := make(map[string]float64, len(src))
	for code, min := range src {
		out[code] = min
	}
	return out
}

// BlockedFactors evaluates the per-factor threshold gate for a tier:
// every required factor must meet its minimum regardless of the
// aggregate score. Missing factors count as zero (fail closed).
func BlockedFactors(latest map[string]float64, tier TrustTier) []string {
	var blocked []string
	for _, code := range sortedThresholdCodes(tier) {
		min := tierThresholds[tier][code]
		if latest[code] < min {
			blocked = append(blocked, code)
		}
	}
	return blocked
}

func sortedThresholdCodes(tier TrustTier) []string {
	src := tierThresholds[tier]
	out := make([]string, 0, len(src))
	for code := range src {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}
