package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"aci/internal/domain"
)

type ownershipRepoStub struct {
	recs map[string][]domain.OwnershipRecord
}

func (s *ownershipRepoStub) Append(_ context.Context, rec domain.OwnershipRecord) (domain.OwnershipRecord, error) {
	if s.recs == nil {
		s.recs = make(map[string][]domain.OwnershipRecord)
	}
	list := s.recs[rec.AgentID]
	rec.Sequence = int64(len(list)) + 1
	if len(list) > 0 {
		prev := list[len(list)-1].RecordHash
		rec.PrevHash = &prev
	}
	hash, err := domain.ComputeOwnershipRecordHash(rec)
	if err != nil {
		return domain.OwnershipRecord{}, err
	}
	rec.RecordHash = hash
	s.recs[rec.AgentID] = append(list, rec)
	return rec, nil
}

func (s *ownershipRepoStub) ListByAgent(_ context.Context, agentID string) ([]domain.OwnershipRecord, error) {
	out := make([]domain.OwnershipRecord, len(s.recs[agentID]))
	copy(out, s.recs[agentID])
	return out, nil
}

type actionRepoStub struct {
	recs map[string][]domain.ActionRecord
}

func (s *actionRepoStub) Append(_ context.Context, rec domain.ActionRecord) (domain.ActionRecord, error) {
	if s.recs == nil {
		s.recs = make(map[string][]domain.ActionRecord)
	}
	list := s.recs[rec.AgentID]
	rec.Sequence = int64(len(list)) + 1
	if len(list) > 0 {
		prev := list[len(list)-1].RecordHash
		rec.PrevHash = &prev
	}
	hash, err := domain.ComputeActionRecordHash(rec)
	if err != nil {
		return domain.ActionRecord{}, err
	}
	rec.RecordHash = hash
	s.recs[rec.AgentID] = append(list, rec)
	return rec, nil
}

func (s *actionRepoStub) ListByAgent(_ context.Context, agentID string) ([]domain.ActionRecord, error) {
	out := make([]domain.ActionRecord, len(s.recs[agentID]))
	copy(out, s.recs[agentID])
	return out, nil
}

type transformationRepoStub struct {
	recs map[string][]domain.TransformationRecord
}

func (s *transformationRepoStub) Append(_ context.Context, rec domain.TransformationRecord) (domain.TransformationRecord, error) {
	if s.recs == nil {
		s.recs = make(map[string][]domain.TransformationRecord)
	}
	list := s.recs[rec.AgentID]
	rec.Sequence = int64(len(list)) + 1
	if len(list) > 0 {
		prev := list[len(list)-1].RecordHash
		rec.PrevHash = &prev
	}
	hash, err := domain.ComputeTransformationRecordHash(rec)
	if err != nil {
		return domain.TransformationRecord{}, err
	}
	rec.RecordHash = hash
	s.recs[rec.AgentID] = append(list, rec)
	return rec, nil
}

func (s *transformationRepoStub) ListByAgent(_ context.Context, agentID string) ([]domain.TransformationRecord, error) {
	out := make([]domain.TransformationRecord, len(s.recs[agentID]))
	copy(out, s.recs[agentID])
	return out, nil
}

func newProvenanceFixture(now time.Time) (*ProvenanceService, *ownershipRepoStub) {
	ownership := &ownershipRepoStub{}
	svc := NewProvenanceService(&originRepoStub{}, ownership, &actionRepoStub{}, &transformationRepoStub{}, fixedClock(now))
	return svc, ownership
}

func TestRegisterOriginWritesRecordAndGenesisOwnership(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, ownership := newProvenanceFixture(now)

	rec, err := svc.RegisterOrigin(context.Background(), RegisterOriginInput{
		AgentID:      "agent-1",
		CreationType: domain.CreationFresh,
		ModelLineage: []domain.ModelRef{{Provider: "acme", Family: "atlas", Version: "4"}},
		Creators:     []string{"team-robotics"},
		SystemPrompt: "You are a warehouse assistant.",

		OwnerPrincipal: "alice",
	})
	if err != nil {
		t.Fatalf("RegisterOrigin: %v", err)
	}
	if rec.RecordHash == "" {
		t.Fatalf("origin record missing hash")
	}
	if len(rec.Instructions) != 1 || rec.Instructions[0].Version != 1 {
		t.Fatalf("instruction v1 not recorded: %+v", rec.Instructions)
	}
	if rec.CurrentInstructionHash != rec.Instructions[0].Hash {
		t.Fatalf("current instruction hash out of sync")
	}
	if check := domain.VerifyOrigin(&rec); !check.Valid {
		t.Fatalf("fresh origin failed verification: %v", check.Errors)
	}

	chain := ownership.recs["agent-1"]
	if len(chain) != 1 {
		t.Fatalf("genesis ownership not written")
	}
	if chain[0].PrincipalID != "alice" || chain[0].Role != domain.RoleOwner || chain[0].TransferType != domain.TransferCreation {
		t.Fatalf("genesis ownership = %+v", chain[0])
	}
	if chain[0].PrevHash != nil {
		t.Fatalf("genesis record carries a prev hash")
	}
}

func TestRegisterOriginRejectsDuplicate(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newProvenanceFixture(now)
	input := RegisterOriginInput{AgentID: "agent-1", CreationType: domain.CreationFresh}

	if _, err := svc.RegisterOrigin(context.Background(), input); err != nil {
		t.Fatalf("first RegisterOrigin: %v", err)
	}
	if _, err := svc.RegisterOrigin(context.Background(), input); !errors.Is(err, domain.ErrOriginExists) {
		t.Fatalf("err = %v, want ErrOriginExists", err)
	}
}

func TestRegisterOriginRequiresParentForClones(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newProvenanceFixture(now)

	_, err := svc.RegisterOrigin(context.Background(), RegisterOriginInput{
		AgentID:      "agent-1",
		CreationType: domain.CreationCloned,
	})
	if err == nil {
		t.Fatalf("clone without parent accepted")
	}
}

func TestAccountabilityReportAfterDelegationAndRevocation(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newProvenanceFixture(now)
	ctx := context.Background()

	if _, err := svc.RegisterOrigin(ctx, RegisterOriginInput{
		AgentID:        "agent-1",
		CreationType:   domain.CreationFresh,
		OwnerPrincipal: "alice",
	}); err != nil {
		t.Fatalf("RegisterOrigin: %v", err)
	}
	if _, err := svc.TransferOwnership(ctx, domain.OwnershipRecord{
		AgentID:       "agent-1",
		PrincipalID:   "bob",
		Role:          domain.RoleOperator,
		TransferType:  domain.TransferDelegation,
		FromPrincipal: "alice",
	}); err != nil {
		t.Fatalf("delegation: %v", err)
	}
	if _, err := svc.TransferOwnership(ctx, domain.OwnershipRecord{
		AgentID:       "agent-1",
		PrincipalID:   "bob",
		Role:          domain.RoleOperator,
		TransferType:  domain.TransferRevocation,
		FromPrincipal: "alice",
	}); err != nil {
		t.Fatalf("revocation: %v", err)
	}

	report, err := svc.GenerateAccountabilityReport(ctx, "agent-1")
	if err != nil {
		t.Fatalf("GenerateAccountabilityReport: %v", err)
	}
	if report.Owner == nil || report.Owner.PrincipalID != "alice" {
		t.Fatalf("owner = %+v, want alice", report.Owner)
	}
	if len(report.ActiveRoles) != 1 || report.ActiveRoles[0].PrincipalID != "alice" {
		t.Fatalf("active roles = %+v, want only alice", report.ActiveRoles)
	}
	for _, principal := range report.EscalationPath {
		if principal == "bob" {
			t.Fatalf("revoked principal in escalation path")
		}
	}
	if len(report.EscalationPath) != 1 || report.EscalationPath[0] != "alice" {
		t.Fatalf("escalation path = %v, want [alice]", report.EscalationPath)
	}
}

func TestAccountabilityReportDropsExpiredGrants(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newProvenanceFixture(now)
	ctx := context.Background()

	expired := now.Add(-time.Hour)
	if _, err := svc.TransferOwnership(ctx, domain.OwnershipRecord{
		AgentID:      "agent-1",
		PrincipalID:  "carol",
		Role:         domain.RoleOperator,
		TransferType: domain.TransferAssignment,
		ExpiresAt:    &expired,
	}); err != nil {
		t.Fatalf("assignment: %v", err)
	}

	report, err := svc.GenerateAccountabilityReport(ctx, "agent-1")
	if err != nil {
		t.Fatalf("GenerateAccountabilityReport: %v", err)
	}
	if len(report.ActiveRoles) != 0 {
		t.Fatalf("expired grant still active: %+v", report.ActiveRoles)
	}
}

func TestAppendInstructionVersionRecordsTransformation(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newProvenanceFixture(now)
	ctx := context.Background()

	if _, err := svc.RegisterOrigin(ctx, RegisterOriginInput{
		AgentID:      "agent-1",
		CreationType: domain.CreationFresh,
		SystemPrompt: "v1 prompt",
	}); err != nil {
		t.Fatalf("RegisterOrigin: %v", err)
	}

	version, err := svc.AppendInstructionVersion(ctx, "agent-1", "v2 prompt", "carol")
	if err != nil {
		t.Fatalf("AppendInstructionVersion: %v", err)
	}
	if version.Version != 2 {
		t.Fatalf("version = %d, want 2", version.Version)
	}

	origin, err := svc.GetOrigin(ctx, "agent-1")
	if err != nil {
		t.Fatalf("GetOrigin: %v", err)
	}
	if origin.CurrentInstructionHash != domain.HashSystemPrompt("v2 prompt") {
		t.Fatalf("current instruction hash not updated")
	}
	if check := domain.VerifyOrigin(origin); !check.Valid {
		t.Fatalf("origin invalid after sanctioned update: %v", check.Errors)
	}

	history, err := svc.VersionHistory(ctx, "agent-1")
	if err != nil {
		t.Fatalf("VersionHistory: %v", err)
	}
	if len(history.Entries) != 1 {
		t.Fatalf("transformation ledger entries = %d, want 1", len(history.Entries))
	}
	entry := history.Entries[0]
	if entry.BeforeHash != domain.HashSystemPrompt("v1 prompt") || entry.AfterHash != domain.HashSystemPrompt("v2 prompt") {
		t.Fatalf("before/after hashes wrong: %+v", entry)
	}
	if history.CurrentInstr != entry.AfterHash {
		t.Fatalf("history current instruction out of sync")
	}
}

func TestCheckInstructionDrift(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newProvenanceFixture(now)
	ctx := context.Background()

	if _, err := svc.RegisterOrigin(ctx, RegisterOriginInput{
		AgentID:      "agent-1",
		CreationType: domain.CreationFresh,
		SystemPrompt: "sanctioned prompt",
	}); err != nil {
		t.Fatalf("RegisterOrigin: %v", err)
	}

	drifted, err := svc.CheckInstructionDrift(ctx, "agent-1", "sanctioned prompt")
	if err != nil {
		t.Fatalf("CheckInstructionDrift: %v", err)
	}
	if drifted {
		t.Fatalf("unchanged prompt reported as drift")
	}
	drifted, err = svc.CheckInstructionDrift(ctx, "agent-1", "sanctioned prompt with an injected suffix")
	if err != nil {
		t.Fatalf("CheckInstructionDrift: %v", err)
	}
	if !drifted {
		t.Fatalf("modified prompt not reported as drift")
	}
}

func TestRecordActionHashesPayload(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newProvenanceFixture(now)

	payload := []byte(`{"tool":"forklift.move","aisle":7}`)
	rec, err := svc.RecordAction(context.Background(), domain.ActionRecord{
		AgentID:            "agent-1",
		ActionType:         domain.ActionToolCall,
		Name:               "forklift.move",
		TrustScoreAtAction: 640,
		TierAtAction:       domain.TierT3,
	}, payload)
	if err != nil {
		t.Fatalf("RecordAction: %v", err)
	}
	if rec.PayloadHash != domain.SHA256Hex(payload) {
		t.Fatalf("payload hash mismatch")
	}
	if rec.Sequence != 1 || rec.PrevHash != nil {
		t.Fatalf("genesis linkage wrong: seq=%d prev=%v", rec.Sequence, rec.PrevHash)
	}
}

func TestVerifyAgentProvenanceDetectsTamper(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, ownership := newProvenanceFixture(now)
	ctx := context.Background()

	if _, err := svc.RegisterOrigin(ctx, RegisterOriginInput{
		AgentID:        "agent-1",
		CreationType:   domain.CreationFresh,
		OwnerPrincipal: "alice",
	}); err != nil {
		t.Fatalf("RegisterOrigin: %v", err)
	}
	if _, err := svc.TransferOwnership(ctx, domain.OwnershipRecord{
		AgentID:      "agent-1",
		PrincipalID:  "bob",
		Role:         domain.RoleOperator,
		TransferType: domain.TransferDelegation,
	}); err != nil {
		t.Fatalf("delegation: %v", err)
	}

	verification, err := svc.VerifyAgentProvenance(ctx, "agent-1")
	if err != nil {
		t.Fatalf("VerifyAgentProvenance: %v", err)
	}
	if !verification.Valid {
		t.Fatalf("untampered provenance invalid: %v", verification.Errors)
	}

	// Rewrite history: swap the delegated principal in place.
	ownership.recs["agent-1"][1].PrincipalID = "mallory"

	verification, err = svc.VerifyAgentProvenance(ctx, "agent-1")
	if err != nil {
		t.Fatalf("VerifyAgentProvenance: %v", err)
	}
	if verification.Valid {
		t.Fatalf("tampered ownership chain verified")
	}
	if verification.Ownership.BrokenAt != 2 {
		t.Fatalf("broken at = %d, want 2", verification.Ownership.BrokenAt)
	}
	if len(verification.Errors) == 0 {
		t.Fatalf("aggregate errors empty")
	}
}

func TestVerifyAgentProvenanceEmptyLedgersValid(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newProvenanceFixture(now)
	ctx := context.Background()

	if _, err := svc.RegisterOrigin(ctx, RegisterOriginInput{
		AgentID:      "agent-1",
		CreationType: domain.CreationFresh,
	}); err != nil {
		t.Fatalf("RegisterOrigin: %v", err)
	}

	verification, err := svc.VerifyAgentProvenance(ctx, "agent-1")
	if err != nil {
		t.Fatalf("VerifyAgentProvenance: %v", err)
	}
	if !verification.Valid {
		t.Fatalf("agent with empty ledgers invalid: %v", verification.Errors)
	}
}
