package domain

import "time"

// Hash is a lowercase hex SHA-256 digest.
type Hash string

// CreationType records how an agent came to exist. Each type carries a
// bounded trust score modifier applied by the trust engine.
type CreationType string

const (
	CreationFresh    CreationType = "FRESH"
	CreationCloned   CreationType = "CLONED"
	CreationEvolved  CreationType = "EVOLVED"
	CreationPromoted CreationType = "PROMOTED"
	CreationImported CreationType = "IMPORTED"
)

var creationModifiers = map[CreationType]int{
	CreationFresh:    0,
	CreationCloned:   -50,
	CreationEvolved:  100,
	CreationPromoted: 150,
	CreationImported: -100,
}

// ScoreModifier returns the trust score adjustment for the creation
// type, zero for unknown types.
func (c CreationType) ScoreModifier() int {
	return creationModifiers[c]
}

// OwnershipRole is a role a principal can hold over an agent.
type OwnershipRole string

const (
	RoleOwner     OwnershipRole = "owner"
	RoleOperator  OwnershipRole = "operator"
	RoleDeployer  OwnershipRole = "deployer"
	RoleDeveloper OwnershipRole = "developer"
	RoleAuditor   OwnershipRole = "auditor"
	RoleGuardian  OwnershipRole = "guardian"
)

// TransferType classifies an ownership ledger record.
type TransferType string

const (
	TransferCreation   TransferType = "creation"
	TransferAssignment TransferType = "assignment"
	TransferDelegation TransferType = "delegation"
	TransferRevocation TransferType = "revocation"
	TransferEscalation TransferType = "escalation"
	TransferSuccession TransferType = "succession"
)

// ChainLink is the hash linkage shared by every ledger record. A nil
// PrevHash marks the genesis record (sequence 1); it is an explicit
// absent value, never a sentinel string that could collide with a real
// digest.
type ChainLink struct {
	Sequence   int64     `json:"sequence"`
	PrevHash   *Hash     `json:"prev_hash,omitempty"`
	RecordHash Hash      `json:"record_hash"`
	RecordedAt time.Time `json:"recorded_at"`
}

// ChainVerification is the structured result of verifying one ledger
// chain. A broken chain is a finding to report, not an error to throw.
type ChainVerification struct {
	Valid        bool     `json:"valid"`
	BrokenAt     int64    `json:"broken_at,omitempty"`
	ExpectedHash Hash     `json:"expected_hash,omitempty"`
	ActualHash   Hash     `json:"actual_hash,omitempty"`
	Errors       []string `json:"errors,omitempty"`
}

// InstructionVersion is one sanctioned version of an agent's system
// prompt. Hash covers the prompt text only.
type InstructionVersion struct {
	Version      int       `json:"version"`
	SystemPrompt string    `json:"system_prompt"`
	Hash         Hash      `json:"hash"`
	CreatedAt    time.Time `json:"created_at"`
	ChangedBy    string    `json:"changed_by,omitempty"`
}

// ModelRef identifies one model in an agent's lineage.
type ModelRef struct {
	Provider    string `json:"provider"`
	Family      string `json:"family"`
	Version     string `json:"version"`
	WeightsHash Hash   `json:"weights_hash,omitempty"`
}

// OriginRecord captures an agent's creation: model lineage, creators,
// data sources, and the versioned instruction history. The creation
// fields are immutable and covered by RecordHash; instruction versions
// are appended through the sanctioned update path and each carries its
// own hash. CurrentInstructionHash always reflects the latest version.
type OriginRecord struct {
	AgentID                string               `json:"agent_id"`
	CreationType           CreationType         `json:"creation_type"`
	ParentAgentID          string               `json:"parent_agent_id,omitempty"`
	ModelLineage           []ModelRef           `json:"model_lineage"`
	Creators               []string             `json:"creators"`
	DataSources            []string             `json:"data_sources,omitempty"`
	Instructions           []InstructionVersion `json:"instructions"`
	CurrentInstructionHash Hash                 `json:"current_instruction_hash"`
	RecordHash             Hash                 `json:"record_hash"`
	CreatedAt              time.Time            `json:"created_at"`
}

// OwnershipRecord is one entry in an agent's ownership ledger. A grant
// is never edited: revocation and transfer are new records referencing
// the old principal.
type OwnershipRecord struct {
	ChainLink
	AgentID       string        `json:"agent_id"`
	PrincipalID   string        `json:"principal_id"`
	Role          OwnershipRole `json:"role"`
	Capabilities  []string      `json:"capabilities,omitempty"`
	TransferType  TransferType  `json:"transfer_type"`
	FromPrincipal string        `json:"from_principal,omitempty"`
	ExpiresAt     *time.Time    `json:"expires_at,omitempty"`
}

// ActionType classifies an action ledger record.
type ActionType string

const (
	ActionToolCall ActionType = "tool_call"
	ActionDecision ActionType = "decision"
)

// ActionRecord captures a tool call or decision at the moment it
// happened, including the trust standing in effect, so later queries can
// ask whether an action was taken while the agent was under-trusted.
type ActionRecord struct {
	ChainLink
	AgentID            string     `json:"agent_id"`
	ActionType         ActionType `json:"action_type"`
	Name               string     `json:"name"`
	PayloadHash        Hash       `json:"payload_hash"`
	TrustScoreAtAction int        `json:"trust_score_at_action"`
	TierAtAction       TrustTier  `json:"tier_at_action"`
}

// TransformationType classifies a transformation ledger record.
type TransformationType string

const (
	TransformInstruction TransformationType = "instruction"
	TransformModel       TransformationType = "model"
)

// TransformationRecord captures an instruction or model change with
// before/after hashes.
type TransformationRecord struct {
	ChainLink
	AgentID     string             `json:"agent_id"`
	Type        TransformationType `json:"type"`
	BeforeHash  Hash               `json:"before_hash"`
	AfterHash   Hash               `json:"after_hash"`
	Description string             `json:"description,omitempty"`
	Version     int                `json:"version"`
	ChangedBy   string             `json:"changed_by,omitempty"`
}

// VersionHistory summarizes an agent's transformation ledger.
type VersionHistory struct {
	AgentID      string                 `json:"agent_id"`
	Entries      []TransformationRecord `json:"entries"`
	CurrentModel Hash                   `json:"current_model,omitempty"`
	CurrentInstr Hash                   `json:"current_instruction,omitempty"`
}

// RoleGrant is one active grant in an accountability report.
type RoleGrant struct {
	PrincipalID  string        `json:"principal_id"`
	Role         OwnershipRole `json:"role"`
	Capabilities []string      `json:"capabilities,omitempty"`
	GrantedAt    time.Time     `json:"granted_at"`
	ExpiresAt    *time.Time    `json:"expires_at,omitempty"`
}

// AccountabilityReport identifies who answers for an agent right now:
// the current owner, every active role, and the escalation path ordered
// owner, then operators, then guardians.
type AccountabilityReport struct {
	AgentID        string      `json:"agent_id"`
	Owner          *RoleGrant  `json:"owner,omitempty"`
	ActiveRoles    []RoleGrant `json:"active_roles"`
	EscalationPath []string    `json:"escalation_path"`
	GeneratedAt    time.Time   `json:"generated_at"`
}

// ProvenanceVerification aggregates the four chain checks. Valid is the
// conjunction of all of them; there is no partial trust.
type ProvenanceVerification struct {
	AgentID         string            `json:"agent_id"`
	Valid           bool              `json:"valid"`
	Origin          ChainVerification `json:"origin"`
	Ownership       ChainVerification `json:"ownership"`
	Actions         ChainVerification `json:"actions"`
	Transformations ChainVerification `json:"transformations"`
	Errors          []string          `json:"errors,omitempty"`
	VerifiedAt      time.Time         `json:"verified_at"`
}

// ProvenanceReport is the agent-level provenance summary.
type ProvenanceReport struct {
	AgentID         string                 `json:"agent_id"`
	Origin          *OriginRecord          `json:"origin,omitempty"`
	Accountability  *AccountabilityReport  `json:"accountability,omitempty"`
	ActionCount     int                    `json:"action_count"`
	Transformations VersionHistory         `json:"transformations"`
	Verification    ProvenanceVerification `json:"verification"`
	GeneratedAt     time.Time              `json:"generated_at"`
}
