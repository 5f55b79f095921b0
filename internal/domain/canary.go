package domain

import "time"

// ProbeCategory groups canary probes by what they test.
type ProbeCategory string

const (
	ProbeFactual     ProbeCategory = "FACTUAL"
	ProbeLogical     ProbeCategory = "LOGICAL"
	ProbeEthical     ProbeCategory = "ETHICAL"
	ProbeBehavioral  ProbeCategory = "BEHAVIORAL"
	ProbeConsistency ProbeCategory = "CONSISTENCY"
)

// ProbeCategories returns every category in catalog order.
func ProbeCategories() []ProbeCategory {
	return []ProbeCategory{ProbeFactual, ProbeLogical, ProbeEthical, ProbeBehavioral, ProbeConsistency}
}

// ValidationMode is a closed set; adding a mode requires updating every
// switch over it.
type ValidationMode string

const (
	ValidateExact       ValidationMode = "EXACT"
	ValidateContains    ValidationMode = "CONTAINS"
	ValidateNotContains ValidationMode = "NOT_CONTAINS"
	ValidateRegex       ValidationMode = "REGEX"
	ValidateOneOf       ValidationMode = "ONE_OF"
	ValidateSemantic    ValidationMode = "SEMANTIC"
)

// ProbeDifficulty grades a probe.
type ProbeDifficulty string

const (
	DifficultyEasy   ProbeDifficulty = "easy"
	DifficultyMedium ProbeDifficulty = "medium"
	DifficultyHard   ProbeDifficulty = "hard"
)

// CanaryProbe is an immutable catalog entry: a hidden verification query
// with a known correct answer. Catalog entries are never mutated at
// runtime.
type CanaryProbe struct {
	ProbeID         string          `json:"probe_id"`
	Category        ProbeCategory   `json:"category"`
	Subcategory     string          `json:"subcategory"`
	Prompt          string          `json:"prompt"`
	ExpectedAnswers []string        `json:"expected_answers"`
	ValidationMode  ValidationMode  `json:"validation_mode"`
	Difficulty      ProbeDifficulty `json:"difficulty"`
	Critical        bool            `json:"critical"`
}

// CanaryProbeResult records one probe execution. Produced once, never
// mutated.
type CanaryProbeResult struct {
	ProbeID                 string        `json:"probe_id"`
	AgentID                 string        `json:"agent_id"`
	Passed                  bool          `json:"passed"`
	ActualResponse          string        `json:"actual_response"`
	ResponseTimeMs          int64         `json:"response_time_ms"`
	ExecutedAt              time.Time     `json:"executed_at"`
	FailureReason           string        `json:"failure_reason,omitempty"`
	TriggeredCircuitBreaker bool          `json:"triggered_circuit_breaker"`
	DegradedValidation      bool          `json:"degraded_validation,omitempty"`
	Category                ProbeCategory `json:"category"`
}

// CategoryStats is the per-category slice of an agent's probe stats.
type CategoryStats struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
}

// CanaryProbeStats is a per-agent running aggregate. Counts only ever
// grow; the aggregate is mutated solely by the probe service.
type CanaryProbeStats struct {
	AgentID             string                          `json:"agent_id"`
	TotalProbes         int                             `json:"total_probes"`
	ProbesPassed        int                             `json:"probes_passed"`
	ProbesFailed        int                             `json:"probes_failed"`
	PassRate            float64                         `json:"pass_rate"`
	ConsecutiveFailures int                             `json:"consecutive_failures"`
	ByCategory          map[ProbeCategory]CategoryStats `json:"by_category"`
	LastProbeAt         time.Time                       `json:"last_probe_at"`
}

// Apply folds one result into the aggregate.
func (s *CanaryProbeStats) Apply(result CanaryProbeResult) {
	if s.ByCategory == nil {
		s.ByCategory = make(map[ProbeCategory]CategoryStats)
	}
	s.TotalProbes++
	cat := s.ByCategory[result.Category]
	cat.Total++
	if result.Passed {
		s.ProbesPassed++
		s.ConsecutiveFailures = 0
		cat.Passed++
	} else {
		s.ProbesFailed++
		s.ConsecutiveFailures++
	}
	s.ByCategory[result.Category] = cat
	s.PassRate = float64(s.ProbesPassed) / float64(s.TotalProbes)
	if result.ExecutedAt.After(s.LastProbeAt) {
		s.LastProbeAt = result.ExecutedAt
	}
}
