package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"aci/internal/domain"
)

// RegisterOriginInput describes an agent at creation time.
type RegisterOriginInput struct {
	AgentID        string
	CreationType   domain.CreationType
	ParentAgentID  string
	ModelLineage   []domain.ModelRef
	Creators       []string
	DataSources    []string
	SystemPrompt   string
	OwnerPrincipal string
}

// ProvenanceService owns the four provenance ledgers: the origin
// record, and the hash-chained ownership, action, and transformation
// ledgers. Repositories assign sequence numbers and hash linkage inside
// their append; the service shapes records, enforces the sanctioned
// mutation paths, and serializes writes per agent.
type ProvenanceService struct {
	Origins         OriginRepository
	Ownership       OwnershipRepository
	Actions         ActionRepository
	Transformations TransformationRepository
	Audit           *AuditEmitter
	Clock           Clock

	mu     sync.Mutex
	agents map[string]*sync.Mutex
}

func NewProvenanceService(origins OriginRepository, ownership OwnershipRepository, actions ActionRepository, transformations TransformationRepository, clock Clock) *ProvenanceService {
	return &ProvenanceService{
		Origins:         origins,
		Ownership:       ownership,
		Actions:         actions,
		Transformations: transformations,
		Clock:           clock,
	}
}

// RegisterOrigin creates the immutable origin record for a new agent
// and, when an owner principal is given, the genesis entry of its
// ownership ledger. An agent's origin can be written exactly once.
func (s *ProvenanceService) RegisterOrigin(ctx context.Context, input RegisterOriginInput) (domain.OriginRecord, error) {
	if input.AgentID == "" {
		return domain.OriginRecord{}, domain.ErrAgentUnknown
	}
	if input.CreationType.ScoreModifier() == 0 && input.CreationType != domain.CreationFresh {
		return domain.OriginRecord{}, fmt.Errorf("unknown creation type %q", input.CreationType)
	}
	if (input.CreationType == domain.CreationCloned || input.CreationType == domain.CreationEvolved) && input.ParentAgentID == "" {
		return domain.OriginRecord{}, errors.New("cloned and evolved agents require a parent agent")
	}

	lock := s.agentLock(input.AgentID)
	lock.Lock()
	defer lock.Unlock()

	if existing, err := s.Origins.Get(ctx, input.AgentID); err == nil && existing != nil {
		return domain.OriginRecord{}, domain.ErrOriginExists
	}

	now := s.now()
	rec := domain.OriginRecord{
		AgentID:       input.AgentID,
		CreationType:  input.CreationType,
		ParentAgentID: input.ParentAgentID,
		ModelLineage:  input.ModelLineage,
		Creators:      input.Creators,
		DataSources:   input.DataSources,
		CreatedAt:     now,
	}
	if input.SystemPrompt != "" {
		version := domain.InstructionVersion{
			Version:      1,
			SystemPrompt: input.SystemPrompt,
			Hash:         domain.HashSystemPrompt(input.SystemPrompt),
			CreatedAt:    now,
		}
		rec.Instructions = []domain.InstructionVersion{version}
		rec.CurrentInstructionHash = version.Hash
	}
	hash, err := domain.ComputeOriginRecordHash(rec)
	if err != nil {
		return domain.OriginRecord{}, err
	}
	rec.RecordHash = hash

	if err := s.Origins.Put(ctx, rec); err != nil {
		return domain.OriginRecord{}, err
	}

	if input.OwnerPrincipal != "" {
		_, err := s.appendOwnership(ctx, domain.OwnershipRecord{
			AgentID:      input.AgentID,
			PrincipalID:  input.OwnerPrincipal,
			Role:         domain.RoleOwner,
			TransferType: domain.TransferCreation,
		})
		if err != nil {
			return domain.OriginRecord{}, err
		}
	}

	if s.Audit != nil {
		if err := s.Audit.EmitOriginRegistered(ctx, domain.AuditActorService, "", rec); err != nil {
			return domain.OriginRecord{}, err
		}
	}
	return rec, nil
}

// GetOrigin returns an agent's origin record.
func (s *ProvenanceService) GetOrigin(ctx context.Context, agentID string) (*domain.OriginRecord, error) {
	if agentID == "" {
		return nil, domain.ErrAgentUnknown
	}
	return s.Origins.Get(ctx, agentID)
}

// AppendInstructionVersion is the sanctioned system prompt update path.
// It appends a new instruction version to the origin record and records
// the change in the transformation ledger with before and after hashes.
func (s *ProvenanceService) AppendInstructionVersion(ctx context.Context, agentID, systemPrompt, changedBy string) (domain.InstructionVersion, error) {
	if agentID == "" {
		return domain.InstructionVersion{}, domain.ErrAgentUnknown
	}
	if systemPrompt == "" {
		return domain.InstructionVersion{}, errors.New("system prompt is required")
	}

	lock := s.agentLock(agentID)
	lock.Lock()
	defer lock.Unlock()

	rec, err := s.Origins.Get(ctx, agentID)
	if err != nil {
		return domain.InstructionVersion{}, err
	}
	if rec == nil {
		return domain.InstructionVersion{}, domain.ErrOriginMissing
	}

	now := s.now()
	before := rec.CurrentInstructionHash
	version := domain.InstructionVersion{
		Version:      len(rec.Instructions) + 1,
		SystemPrompt: systemPrompt,
		Hash:         domain.HashSystemPrompt(systemPrompt),
		CreatedAt:    now,
		ChangedBy:    changedBy,
	}
	rec.Instructions = append(rec.Instructions, version)
	rec.CurrentInstructionHash = version.Hash

	if err := s.Origins.Put(ctx, *rec); err != nil {
		return domain.InstructionVersion{}, err
	}

	_, err = s.appendTransformation(ctx, domain.TransformationRecord{
		AgentID:     agentID,
		Type:        domain.TransformInstruction,
		BeforeHash:  before,
		AfterHash:   version.Hash,
		Description: "instruction version appended",
		Version:     version.Version,
		ChangedBy:   changedBy,
	})
	if err != nil {
		return domain.InstructionVersion{}, err
	}

	if s.Audit != nil {
		if err := s.Audit.EmitInstructionChanged(ctx, domain.AuditActorService, changedBy, agentID, version.Version, before, version.Hash); err != nil {
			return domain.InstructionVersion{}, err
		}
	}
	return version, nil
}

// CheckInstructionDrift reports whether a live system prompt diverged
// from the sanctioned instruction history.
func (s *ProvenanceService) CheckInstructionDrift(ctx context.Context, agentID, livePrompt string) (bool, error) {
	rec, err := s.Origins.Get(ctx, agentID)
	if err != nil {
		return true, err
	}
	return domain.HasInstructionChanged(rec, livePrompt), nil
}

// TransferOwnership appends one record to the ownership ledger. Grants
// are never edited: revocation and transfer are new records referencing
// the prior principal.
func (s *ProvenanceService) TransferOwnership(ctx context.Context, rec domain.OwnershipRecord) (domain.OwnershipRecord, error) {
	if rec.AgentID == "" {
		return domain.OwnershipRecord{}, domain.ErrAgentUnknown
	}
	if rec.PrincipalID == "" {
		return domain.OwnershipRecord{}, errors.New("principal_id is required")
	}
	switch rec.Role {
	case domain.RoleOwner, domain.RoleOperator, domain.RoleDeployer, domain.RoleDeveloper, domain.RoleAuditor, domain.RoleGuardian:
	default:
		return domain.OwnershipRecord{}, fmt.Errorf("unknown role %q", rec.Role)
	}
	switch rec.TransferType {
	case domain.TransferCreation, domain.TransferAssignment, domain.TransferDelegation, domain.TransferRevocation, domain.TransferEscalation, domain.TransferSuccession:
	default:
		return domain.OwnershipRecord{}, fmt.Errorf("unknown transfer type %q", rec.TransferType)
	}

	lock := s.agentLock(rec.AgentID)
	lock.Lock()
	defer lock.Unlock()

	stored, err := s.appendOwnership(ctx, rec)
	if err != nil {
		return domain.OwnershipRecord{}, err
	}
	if s.Audit != nil {
		if err := s.Audit.EmitOwnershipTransferred(ctx, domain.AuditActorService, "", stored); err != nil {
			return domain.OwnershipRecord{}, err
		}
	}
	return stored, nil
}

// RecordAction appends a tool call or decision to the action ledger,
// capturing the trust standing in effect.
func (s *ProvenanceService) RecordAction(ctx context.Context, rec domain.ActionRecord, payload []byte) (domain.ActionRecord, error) {
	if rec.AgentID == "" {
		return domain.ActionRecord{}, domain.ErrAgentUnknown
	}
	if rec.Name == "" {
		return domain.ActionRecord{}, errors.New("action name is required")
	}
	switch rec.ActionType {
	case domain.ActionToolCall, domain.ActionDecision:
	default:
		return domain.ActionRecord{}, fmt.Errorf("unknown action type %q", rec.ActionType)
	}
	if rec.PayloadHash == "" {
		rec.PayloadHash = domain.SHA256Hex(payload)
	}

	lock := s.agentLock(rec.AgentID)
	lock.Lock()
	defer lock.Unlock()

	rec.RecordedAt = s.now()
	return s.Actions.Append(ctx, rec)
}

// RecordTransformation appends a model or instruction change to the
// transformation ledger.
func (s *ProvenanceService) RecordTransformation(ctx context.Context, rec domain.TransformationRecord) (domain.TransformationRecord, error) {
	if rec.AgentID == "" {
		return domain.TransformationRecord{}, domain.ErrAgentUnknown
	}
	switch rec.Type {
	case domain.TransformInstruction, domain.TransformModel:
	default:
		return domain.TransformationRecord{}, fmt.Errorf("unknown transformation type %q", rec.Type)
	}
	if rec.AfterHash == "" {
		return domain.TransformationRecord{}, errors.New("after_hash is required")
	}

	lock := s.agentLock(rec.AgentID)
	lock.Lock()
	defer lock.Unlock()

	return s.appendTransformation(ctx, rec)
}

// GenerateAccountabilityReport answers who is responsible for an agent
// right now. It folds the ownership ledger in sequence order: later
// grants supersede earlier ones per principal and role, revocations
// remove them, and expired grants are dropped. The escalation path is
// owner first, then operators, then guardians.
func (s *ProvenanceService) GenerateAccountabilityReport(ctx context.Context, agentID string) (domain.AccountabilityReport, error) {
	if agentID == "" {
		return domain.AccountabilityReport{}, domain.ErrAgentUnknown
	}
	records, err := s.Ownership.ListByAgent(ctx, agentID)
	if err != nil {
		return domain.AccountabilityReport{}, err
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Sequence < records[j].Sequence })

	now := s.now()
	type grantKey struct {
		principal string
		role      domain.OwnershipRole
	}
	active := make(map[grantKey]domain.RoleGrant)
	order := make(map[grantKey]int64)
	for _, rec := range records {
		key := grantKey{rec.PrincipalID, rec.Role}
		if rec.TransferType == domain.TransferRevocation {
			delete(active, key)
			delete(order, key)
			continue
		}
		active[key] = domain.RoleGrant{
			PrincipalID:  rec.PrincipalID,
			Role:         rec.Role,
			Capabilities: rec.Capabilities,
			GrantedAt:    rec.RecordedAt,
			ExpiresAt:    rec.ExpiresAt,
		}
		order[key] = rec.Sequence
	}
	for key, grant := range active {
		if grant.ExpiresAt != nil && grant.ExpiresAt.Before(now) {
			delete(active, key)
			delete(order, key)
		}
	}

	report := domain.AccountabilityReport{
		AgentID:     agentID,
		GeneratedAt: now,
	}
	grants := make([]domain.RoleGrant, 0, len(active))
	for _, grant := range active {
		grants = append(grants, grant)
	}
	sort.Slice(grants, func(i, j int) bool {
		a := order[grantKey{grants[i].PrincipalID, grants[i].Role}]
		b := order[grantKey{grants[j].PrincipalID, grants[j].Role}]
		return a < b
	})
	report.ActiveRoles = grants

	for i := range grants {
		if grants[i].Role == domain.RoleOwner {
			owner := grants[i]
			report.Owner = &owner
		}
	}

	seen := make(map[string]struct{})
	appendPath := func(role domain.OwnershipRole) {
		for _, grant := range grants {
			if grant.Role != role {
				continue
			}
			if _, dup := seen[grant.PrincipalID]; dup {
				continue
			}
			seen[grant.PrincipalID] = struct{}{}
			report.EscalationPath = append(report.EscalationPath, grant.PrincipalID)
		}
	}
	appendPath(domain.RoleOwner)
	appendPath(domain.RoleOperator)
	appendPath(domain.RoleGuardian)

	return report, nil
}

// VersionHistory summarizes an agent's transformation ledger with the
// latest instruction and model hashes.
func (s *ProvenanceService) VersionHistory(ctx context.Context, agentID string) (domain.VersionHistory, error) {
	if agentID == "" {
		return domain.VersionHistory{}, domain.ErrAgentUnknown
	}
	entries, err := s.Transformations.ListByAgent(ctx, agentID)
	if err != nil {
		return domain.VersionHistory{}, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Sequence < entries[j].Sequence })

	history := domain.VersionHistory{AgentID: agentID, Entries: entries}
	for _, entry := range entries {
		switch entry.Type {
		case domain.TransformInstruction:
			history.CurrentInstr = entry.AfterHash
		case domain.TransformModel:
			history.CurrentModel = entry.AfterHash
		}
	}
	return history, nil
}

// VerifyAgentProvenance verifies all four chains. Valid is their
// conjunction; per-chain findings are aggregated with a chain prefix.
func (s *ProvenanceService) VerifyAgentProvenance(ctx context.Context, agentID string) (domain.ProvenanceVerification, error) {
	if agentID == "" {
		return domain.ProvenanceVerification{}, domain.ErrAgentUnknown
	}

	origin, err := s.Origins.Get(ctx, agentID)
	if err != nil && !errors.Is(err, domain.ErrOriginMissing) {
		return domain.ProvenanceVerification{}, err
	}
	ownership, err := s.Ownership.ListByAgent(ctx, agentID)
	if err != nil {
		return domain.ProvenanceVerification{}, err
	}
	actions, err := s.Actions.ListByAgent(ctx, agentID)
	if err != nil {
		return domain.ProvenanceVerification{}, err
	}
	transformations, err := s.Transformations.ListByAgent(ctx, agentID)
	if err != nil {
		return domain.ProvenanceVerification{}, err
	}

	result := domain.ProvenanceVerification{
		AgentID:         agentID,
		Origin:          domain.VerifyOrigin(origin),
		Ownership:       domain.VerifyOwnershipChain(ownership),
		Actions:         domain.VerifyActionChain(actions),
		Transformations: domain.VerifyTransformationChain(transformations),
		VerifiedAt:      s.now(),
	}
	result.Valid = result.Origin.Valid && result.Ownership.Valid && result.Actions.Valid && result.Transformations.Valid
	for _, msg := range result.Origin.Errors {
		result.Errors = append(result.Errors, "origin: "+msg)
	}
	for _, msg := range result.Ownership.Errors {
		result.Errors = append(result.Errors, "ownership: "+msg)
	}
	for _, msg := range result.Actions.Errors {
		result.Errors = append(result.Errors, "actions: "+msg)
	}
	for _, msg := range result.Transformations.Errors {
		result.Errors = append(result.Errors, "transformations: "+msg)
	}
	return result, nil
}

// Report assembles the agent-level provenance summary.
func (s *ProvenanceService) Report(ctx context.Context, agentID string) (domain.ProvenanceReport, error) {
	verification, err := s.VerifyAgentProvenance(ctx, agentID)
	if err != nil {
		return domain.ProvenanceReport{}, err
	}
	origin, err := s.Origins.Get(ctx, agentID)
	if err != nil && !errors.Is(err, domain.ErrOriginMissing) {
		return domain.ProvenanceReport{}, err
	}
	accountability, err := s.GenerateAccountabilityReport(ctx, agentID)
	if err != nil {
		return domain.ProvenanceReport{}, err
	}
	history, err := s.VersionHistory(ctx, agentID)
	if err != nil {
		return domain.ProvenanceReport{}, err
	}
	actions, err := s.Actions.ListByAgent(ctx, agentID)
	if err != nil {
		return domain.ProvenanceReport{}, err
	}

	return domain.ProvenanceReport{
		AgentID:         agentID,
		Origin:          origin,
		Accountability:  &accountability,
		ActionCount:     len(actions),
		Transformations: history,
		Verification:    verification,
		GeneratedAt:     s.now(),
	}, nil
}

func (s *ProvenanceService) appendOwnership(ctx context.Context, rec domain.OwnershipRecord) (domain.OwnershipRecord, error) {
	rec.RecordedAt = s.now()
	return s.Ownership.Append(ctx, rec)
}

func (s *ProvenanceService) appendTransformation(ctx context.Context, rec domain.TransformationRecord) (domain.TransformationRecord, error) {
	rec.RecordedAt = s.now()
	return s.Transformations.Append(ctx, rec)
}

func (s *ProvenanceService) agentLock(agentID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.agents == nil {
		s.agents = make(map[string]*sync.Mutex)
	}
	lock, ok := s.agents[agentID]
	if !ok {
		lock = &sync.Mutex{}
		s.agents[agentID] = lock
	}
	return lock
}

func (s *ProvenanceService) now() time.Time {
	if s.Clock != nil {
		return s.Clock().UTC()
	}
	return time.Now().UTC()
}
