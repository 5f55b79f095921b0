package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"aci/internal/domain"
	"aci/internal/usecase"

	"github.com/gin-gonic/gin"
)

type errorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type factorScoreRequest struct {
	Code       string  `json:"code"`
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

type breakerTripRequest struct {
	Reason string `json:"reason"`
}

type executeProbeRequest struct {
	ProbeID string `json:"probe_id,omitempty"`
	Count   int    `json:"count,omitempty"`
}

type shouldInjectResponse struct {
	AgentID      string `json:"agent_id"`
	ShouldInject bool   `json:"should_inject"`
}

type registerOriginRequest struct {
	CreationType   string            `json:"creation_type"`
	ParentAgentID  string            `json:"parent_agent_id,omitempty"`
	ModelLineage   []domain.ModelRef `json:"model_lineage"`
	Creators       []string          `json:"creators"`
	DataSources    []string          `json:"data_sources,omitempty"`
	SystemPrompt   string            `json:"system_prompt"`
	OwnerPrincipal string            `json:"owner_principal,omitempty"`
}

type instructionRequest struct {
	SystemPrompt string `json:"system_prompt"`
	ChangedBy    string `json:"changed_by,omitempty"`
}

type instructionDriftRequest struct {
	LivePrompt string `json:"live_prompt"`
}

type instructionDriftResponse struct {
	AgentID string `json:"agent_id"`
	Drift   bool   `json:"drift"`
}

type ownershipRequest struct {
	PrincipalID   string     `json:"principal_id"`
	Role          string     `json:"role"`
	Capabilities  []string   `json:"capabilities,omitempty"`
	TransferType  string     `json:"transfer_type"`
	FromPrincipal string     `json:"from_principal,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	Sequence      int64      `json:"sequence,omitempty"`
}

type actionRequest struct {
	ActionType string          `json:"action_type"`
	Name       string          `json:"name"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Sequence   int64           `json:"sequence,omitempty"`
}

type transformationRequest struct {
	Type        string `json:"type"`
	BeforeHash  string `json:"before_hash,omitempty"`
	AfterHash   string `json:"after_hash"`
	Description string `json:"description,omitempty"`
	Version     int    `json:"version,omitempty"`
	ChangedBy   string `json:"changed_by,omitempty"`
	Sequence    int64  `json:"sequence,omitempty"`
}

type auditListResponse struct {
	AgentID    string              `json:"agent_id"`
	Events     []auditEventPayload `json:"events"`
	ChainValid *bool               `json:"chain_valid,omitempty"`
	ChainError string              `json:"chain_error,omitempty"`
}

type auditEventPayload struct {
	ID            string          `json:"id"`
	AgentID       string          `json:"agent_id"`
	Seq           int64           `json:"seq"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	PayloadHash   string          `json:"payload_hash"`
	ActorType     string          `json:"actor_type,omitempty"`
	TargetType    string          `json:"target_type,omitempty"`
	TargetID      string          `json:"target_id,omitempty"`
	Result        string          `json:"result,omitempty"`
	ErrorCode     string          `json:"error_code,omitempty"`
	PrevEventHash string          `json:"prev_event_hash"`
	EventHash     string          `json:"event_hash"`
	CreatedAt     time.Time       `json:"created_at"`
}

func (s *Server) handleGetTrust(c *gin.Context) {
	if _, ok := s.requireAuth(c, routeTrustRead, false); !ok {
		return
	}
	agentID := c.Param("agent_id")
	if !s.enforceRateLimit(c, routeTrustRead, agentID) {
		return
	}
	if target := c.Query("target_tier"); target != "" {
		tier := domain.TrustTier(target)
		if tier.Index() < 0 {
			writeErrorCode(c, http.StatusBadRequest, "INVALID_TIER", "unknown target tier")
			return
		}
		eval, err := s.trust.CalculateTrustScore(c.Request.Context(), agentID, tier)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, eval)
		return
	}
	eval, err := s.trust.CurrentEvaluation(c.Request.Context(), agentID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, eval)
}

func (s *Server) handleRecordFactor(c *gin.Context) {
	if _, ok := s.requireAuth(c, routeTrustWrite, true); !ok {
		return
	}
	agentID := c.Param("agent_id")
	if !s.enforceRateLimit(c, routeTrustWrite, agentID) {
		return
	}
	var req factorScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	score := domain.FactorScore{
		Code:       req.Code,
		Score:      req.Score,
		Confidence: req.Confidence,
		Source:     domain.FactorSource(req.Source),
	}
	if err := s.trust.RecordFactorScore(c.Request.Context(), agentID, score); err != nil {
		writeError(c, err)
		return
	}
	eval, err := s.trust.CurrentEvaluation(c.Request.Context(), agentID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, eval)
}

func (s *Server) handleTripBreaker(c *gin.Context) {
	if _, ok := s.requireAuth(c, "admin:breaker:trip", true); !ok {
		return
	}
	agentID := c.Param("agent_id")
	var req breakerTripRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
			return
		}
	}
	if req.Reason == "" {
		req.Reason = "manual trip"
	}
	if err := s.trust.TripBreaker(c.Request.Context(), agentID, req.Reason); err != nil {
		writeError(c, err)
		return
	}
	if s.audit != nil {
		_ = s.audit.EmitCircuitBreakerTripped(c.Request.Context(), agentID, "", req.Reason)
	}
	c.JSON(http.StatusOK, gin.H{"agent_id": agentID, "circuit_breaker": true})
}

func (s *Server) handleResetBreaker(c *gin.Context) {
	if _, ok := s.requireAuth(c, "admin:breaker:reset", true); !ok {
		return
	}
	agentID := c.Param("agent_id")
	if err := s.trust.ResetBreaker(c.Request.Context(), agentID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"agent_id": agentID, "circuit_breaker": false})
}

func (s *Server) handleFleet(c *gin.Context) {
	if _, ok := s.requireAuth(c, routeTrustRead, false); !ok {
		return
	}
	view, err := s.fleet.Snapshot(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) handleRunGating(c *gin.Context) {
	if _, ok := s.requireAuth(c, "admin:gating:run", true); !ok {
		return
	}
	run, err := s.gating.RunAll(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) handleLastGatingRun(c *gin.Context) {
	if _, ok := s.requireAuth(c, routeTrustRead, false); !ok {
		return
	}
	run, err := s.gating.LastRun(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	if run == nil {
		writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "no gating run recorded")
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) handleShouldInject(c *gin.Context) {
	if _, ok := s.requireAuth(c, routeCanaryInject, false); !ok {
		return
	}
	agentID := c.Param("agent_id")
	if !s.enforceRateLimit(c, routeCanaryInject, agentID) {
		return
	}
	inject, err := s.canary.ShouldInjectProbe(c.Request.Context(), agentID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, shouldInjectResponse{AgentID: agentID, ShouldInject: inject})
}

func (s *Server) handleExecuteProbe(c *gin.Context) {
	if _, ok := s.requireAuth(c, routeCanaryExecute, true); !ok {
		return
	}
	agentID := c.Param("agent_id")
	if !s.enforceRateLimit(c, routeCanaryExecute, agentID) {
		return
	}
	if s.canary.Client == nil {
		writeErrorCode(c, http.StatusServiceUnavailable, "AGENT_CLIENT_UNCONFIGURED", "no agent client configured")
		return
	}
	var req executeProbeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
			return
		}
	}
	ctx := c.Request.Context()
	if req.Count > 1 {
		results, err := s.canary.ExecuteProbes(ctx, agentID, req.Count)
		if err != nil && len(results) == 0 {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"agent_id": agentID, "results": results})
		return
	}
	var probe *domain.CanaryProbe
	if req.ProbeID != "" {
		found, ok := s.canary.Library.ByID(req.ProbeID)
		if !ok {
			writeError(c, domain.ErrProbeUnknown)
			return
		}
		probe = &found
	}
	result, err := s.canary.ExecuteProbe(ctx, agentID, probe)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleCanaryStats(c *gin.Context) {
	if _, ok := s.requireAuth(c, routeTrustRead, false); !ok {
		return
	}
	agentID := c.Param("agent_id")
	stats, err := s.canary.Stats(c.Request.Context(), agentID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleRegisterOrigin(c *gin.Context) {
	if _, ok := s.requireAuth(c, routeProvenanceWrite, true); !ok {
		return
	}
	agentID := c.Param("agent_id")
	if !s.enforceRateLimit(c, routeProvenanceWrite, agentID) {
		return
	}
	var req registerOriginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	rec, err := s.provenance.RegisterOrigin(c.Request.Context(), usecase.RegisterOriginInput{
		AgentID:        agentID,
		CreationType:   domain.CreationType(req.CreationType),
		ParentAgentID:  req.ParentAgentID,
		ModelLineage:   req.ModelLineage,
		Creators:       req.Creators,
		DataSources:    req.DataSources,
		SystemPrompt:   req.SystemPrompt,
		OwnerPrincipal: req.OwnerPrincipal,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (s *Server) handleGetOrigin(c *gin.Context) {
	if _, ok := s.requireAuth(c, routeProvenanceRead, false); !ok {
		return
	}
	agentID := c.Param("agent_id")
	rec, err := s.provenance.GetOrigin(c.Request.Context(), agentID)
	if err != nil {
		writeError(c, err)
		return
	}
	if rec == nil {
		writeError(c, domain.ErrOriginMissing)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleAppendInstruction(c *gin.Context) {
	if _, ok := s.requireAuth(c, routeProvenanceWrite, true); !ok {
		return
	}
	agentID := c.Param("agent_id")
	var req instructionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	version, err := s.provenance.AppendInstructionVersion(c.Request.Context(), agentID, req.SystemPrompt, req.ChangedBy)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, version)
}

func (s *Server) handleInstructionDrift(c *gin.Context) {
	if _, ok := s.requireAuth(c, routeProvenanceRead, false); !ok {
		return
	}
	agentID := c.Param("agent_id")
	var req instructionDriftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	drift, err := s.provenance.CheckInstructionDrift(c.Request.Context(), agentID, req.LivePrompt)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, instructionDriftResponse{AgentID: agentID, Drift: drift})
}

func (s *Server) handleTransferOwnership(c *gin.Context) {
	if _, ok := s.requireAuth(c, routeProvenanceWrite, true); !ok {
		return
	}
	agentID := c.Param("agent_id")
	if !s.enforceRateLimit(c, routeProvenanceWrite, agentID) {
		return
	}
	var req ownershipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	rec := domain.OwnershipRecord{
		AgentID:       agentID,
		PrincipalID:   req.PrincipalID,
		Role:          domain.OwnershipRole(req.Role),
		Capabilities:  req.Capabilities,
		TransferType:  domain.TransferType(req.TransferType),
		FromPrincipal: req.FromPrincipal,
		ExpiresAt:     req.ExpiresAt,
	}
	rec.Sequence = req.Sequence
	stored, err := s.provenance.TransferOwnership(c.Request.Context(), rec)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, stored)
}

func (s *Server) handleListOwnership(c *gin.Context) {
	if _, ok := s.requireAuth(c, routeProvenanceRead, false); !ok {
		return
	}
	agentID := c.Param("agent_id")
	records, err := s.provenance.Ownership.ListByAgent(c.Request.Context(), agentID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"agent_id": agentID, "records": records})
}

func (s *Server) handleRecordAction(c *gin.Context) {
	if _, ok := s.requireAuth(c, routeProvenanceWrite, true); !ok {
		return
	}
	agentID := c.Param("agent_id")
	if !s.enforceRateLimit(c, routeProvenanceWrite, agentID) {
		return
	}
	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	rec := domain.ActionRecord{
		AgentID:    agentID,
		ActionType: domain.ActionType(req.ActionType),
		Name:       req.Name,
	}
	rec.Sequence = req.Sequence
	// The trust standing in effect is captured with the action.
	if eval, err := s.trust.CurrentEvaluation(c.Request.Context(), agentID); err == nil {
		rec.TrustScoreAtAction = eval.TotalScore
		rec.TierAtAction = eval.Tier
	}
	stored, err := s.provenance.RecordAction(c.Request.Context(), rec, req.Payload)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, stored)
}

func (s *Server) handleListActions(c *gin.Context) {
	if _, ok := s.requireAuth(c, routeProvenanceRead, false); !ok {
		return
	}
	agentID := c.Param("agent_id")
	records, err := s.provenance.Actions.ListByAgent(c.Request.Context(), agentID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"agent_id": agentID, "records": records})
}

func (s *Server) handleRecordTransformation(c *gin.Context) {
	if _, ok := s.requireAuth(c, routeProvenanceWrite, true); !ok {
		return
	}
	agentID := c.Param("agent_id")
	if !s.enforceRateLimit(c, routeProvenanceWrite, agentID) {
		return
	}
	var req transformationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	rec := domain.TransformationRecord{
		AgentID:     agentID,
		Type:        domain.TransformationType(req.Type),
		BeforeHash:  domain.Hash(req.BeforeHash),
		AfterHash:   domain.Hash(req.AfterHash),
		Description: req.Description,
		Version:     req.Version,
		ChangedBy:   req.ChangedBy,
	}
	rec.Sequence = req.Sequence
	stored, err := s.provenance.RecordTransformation(c.Request.Context(), rec)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, stored)
}

func (s *Server) handleListTransformations(c *gin.Context) {
	if _, ok := s.requireAuth(c, routeProvenanceRead, false); !ok {
		return
	}
	agentID := c.Param("agent_id")
	history, err := s.provenance.VersionHistory(c.Request.Context(), agentID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

func (s *Server) handleProvenanceReport(c *gin.Context) {
	if _, ok := s.requireAuth(c, routeProvenanceRead, false); !ok {
		return
	}
	agentID := c.Param("agent_id")
	if !s.enforceRateLimit(c, routeProvenanceRead, agentID) {
		return
	}
	report, err := s.provenance.Report(c.Request.Context(), agentID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleProvenanceVerify(c *gin.Context) {
	if _, ok := s.requireAuth(c, routeProvenanceRead, false); !ok {
		return
	}
	agentID := c.Param("agent_id")
	verification, err := s.provenance.VerifyAgentProvenance(c.Request.Context(), agentID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, verification)
}

func (s *Server) handleListAudit(c *gin.Context) {
	if _, ok := s.requireAuth(c, routeAuditRead, true); !ok {
		return
	}
	agentID := c.Query("agent_id")
	if agentID == "" {
		agentID = domain.AuditSystemAgentID
	}
	events, err := s.auditRepo.ListByAgent(c.Request.Context(), agentID)
	if err != nil {
		writeError(c, err)
		return
	}
	if limitParam := c.Query("limit"); limitParam != "" {
		if limit, err := strconv.Atoi(limitParam); err == nil && limit > 0 && limit < len(events) {
			events = events[len(events)-limit:]
		}
	}
	resp := auditListResponse{AgentID: agentID, Events: make([]auditEventPayload, 0, len(events))}
	for _, event := range events {
		resp.Events = append(resp.Events, buildAuditEventPayload(event))
	}
	if c.Query("verify") == "true" {
		valid := true
		if err := usecase.VerifyAgentAuditChain(c.Request.Context(), s.auditRepo, agentID); err != nil {
			valid = false
			resp.ChainError = err.Error()
		}
		resp.ChainValid = &valid
	}
	c.JSON(http.StatusOK, resp)
}

func buildAuditEventPayload(event domain.AuditEvent) auditEventPayload {
	out := auditEventPayload{
		ID:            event.ID,
		AgentID:       event.AgentID,
		Seq:           event.Seq,
		EventType:     string(event.EventType),
		PayloadHash:   event.PayloadHash,
		ActorType:     string(event.ActorType),
		TargetType:    string(event.TargetType),
		TargetID:      event.TargetID,
		Result:        string(event.Result),
		ErrorCode:     event.ErrorCode,
		PrevEventHash: event.PrevEventHash,
		EventHash:     event.EventHash,
		CreatedAt:     event.CreatedAt,
	}
	if raw, ok := event.Payload.([]byte); ok {
		out.Payload = json.RawMessage(raw)
	}
	return out
}

func writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL"
	switch {
	case errors.Is(err, domain.ErrFactorUnknown):
		status, code = http.StatusBadRequest, "FACTOR_UNKNOWN"
	case errors.Is(err, domain.ErrInvalidFactorScore):
		status, code = http.StatusBadRequest, "INVALID_FACTOR_SCORE"
	case errors.Is(err, domain.ErrProbeUnknown):
		status, code = http.StatusBadRequest, "PROBE_UNKNOWN"
	case errors.Is(err, domain.ErrOriginExists):
		status, code = http.StatusConflict, "ORIGIN_EXISTS"
	case errors.Is(err, domain.ErrOriginMissing):
		status, code = http.StatusNotFound, "ORIGIN_MISSING"
	case errors.Is(err, domain.ErrSequenceConflict):
		status, code = http.StatusConflict, "SEQUENCE_CONFLICT"
	case errors.Is(err, domain.ErrAgentUnknown):
		status, code = http.StatusBadRequest, "AGENT_UNKNOWN"
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrUnauthorized):
		status, code = http.StatusUnauthorized, "UNAUTHORIZED"
	}
	writeErrorCode(c, status, code, err.Error())
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{
		Code:    code,
		Message: message,
	})
}
