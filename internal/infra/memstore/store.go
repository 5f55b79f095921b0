// Package memstore holds in-memory repositories used when the service
// runs without Postgres. Every store is safe for concurrent use and
// honors the same append contracts as the db package.
package memstore

// Store bundles one of every repository.
type Store struct {
	Factors         *FactorScoreStore
	Evaluations     *EvaluationStore
	Breaker         *BreakerStore
	TierState       *TierStateStore
	GatingRuns      *GatingRunStore
	ProbeState      *ProbeStateStore
	ProbeResults    *ProbeResultStore
	Origins         *OriginStore
	Ownership       *OwnershipLedger
	Actions         *ActionLedger
	Transformations *TransformationLedger
	AuditEvents     *AuditEventStore
}

func New() *Store {
	return &Store{
		Factors:         NewFactorScoreStore(),
		Evaluations:     NewEvaluationStore(),
		Breaker:         NewBreakerStore(),
		TierState:       NewTierStateStore(),
		GatingRuns:      NewGatingRunStore(),
		ProbeState:      NewProbeStateStore(),
		ProbeResults:    NewProbeResultStore(),
		Origins:         NewOriginStore(),
		Ownership:       NewOwnershipLedger(),
		Actions:         NewActionLedger(),
		Transformations: NewTransformationLedger(),
		AuditEvents:     NewAuditEventStore(),
	}
}
