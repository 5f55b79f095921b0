package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"aci/internal/config"
	"aci/internal/domain"
	"aci/internal/infra/agentclient"
	"aci/internal/infra/auth/oidc"
	"aci/internal/infra/auth/rbac"
	"aci/internal/infra/cachemem"
	"aci/internal/infra/db"
	"aci/internal/infra/memstore"
	"aci/internal/infra/policyopa"
	"aci/internal/infra/ratelimit"
	"aci/internal/probelib"
	"aci/internal/usecase"

	"github.com/gin-gonic/gin"
)

const defaultEvaluationCacheTTL = 30 * time.Second

type Server struct {
	cfg   config.Config
	store *db.Store
	r     *gin.Engine

	trust      *usecase.TrustEngine
	gating     *usecase.GatingEngine
	canary     *usecase.CanaryService
	provenance *usecase.ProvenanceService
	fleet      *usecase.FleetService
	audit      *usecase.AuditEmitter
	auditRepo  usecase.AuditEventRepository

	adminAPIKey string

	authenticator domain.Authenticator
	authorizer    domain.Authorizer
	authInitErr   error

	rateLimiter         domain.RateLimiter
	rateLimitRequests   int
	rateLimitWindow     time.Duration
	rateLimitFailClosed bool
}

func NewServer(cfg config.Config, store *db.Store) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{cfg: cfg, store: store, r: r}
	s.initDeps()
	s.routes()
	return s
}

type ServerDeps struct {
	Trust         *usecase.TrustEngine
	Gating        *usecase.GatingEngine
	Canary        *usecase.CanaryService
	Provenance    *usecase.ProvenanceService
	Fleet         *usecase.FleetService
	Audit         *usecase.AuditEmitter
	AuditRepo     usecase.AuditEventRepository
	AdminAPIKey   string
	Authenticator domain.Authenticator
	Authorizer    domain.Authorizer
	RateLimiter   domain.RateLimiter
}

func NewServerWithDeps(cfg config.Config, deps ServerDeps) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		cfg:           cfg,
		r:             r,
		trust:         deps.Trust,
		gating:        deps.Gating,
		canary:        deps.Canary,
		provenance:    deps.Provenance,
		fleet:         deps.Fleet,
		audit:         deps.Audit,
		auditRepo:     deps.AuditRepo,
		adminAPIKey:   deps.AdminAPIKey,
		authenticator: deps.Authenticator,
		authorizer:    deps.Authorizer,
	}
	if s.auditRepo == nil && s.audit != nil {
		s.auditRepo = s.audit.Repo
	}
	s.initRateLimit(deps.RateLimiter)
	s.initAuth()
	s.routes()
	return s
}

func (s *Server) initDeps() {
	s.adminAPIKey = s.cfg.AdminAPIKey

	var (
		factorRepo    usecase.FactorScoreRepository
		evalRepo      usecase.EvaluationRepository
		breakerRepo   usecase.BreakerRepository
		tierRepo      usecase.TierStateRepository
		runRepo       usecase.GatingRunRepository
		probeState    usecase.ProbeStateRepository
		probeResults  usecase.ProbeResultRepository
		originRepo    usecase.OriginRepository
		ownershipRepo usecase.OwnershipRepository
		actionRepo    usecase.ActionRepository
		transformRepo usecase.TransformationRepository
		auditRepo     usecase.AuditEventRepository
	)
	if s.store != nil && s.store.DB != nil {
		factorRepo = db.NewFactorScoreRepository(s.store.DB)
		evalRepo = db.NewEvaluationRepository(s.store.DB)
		breakerRepo = db.NewBreakerRepository(s.store.DB)
		tierRepo = db.NewTierStateRepository(s.store.DB)
		runRepo = db.NewGatingRunRepository(s.store.DB)
		probeState = db.NewProbeStateRepository(s.store.DB)
		probeResults = db.NewProbeResultRepository(s.store.DB)
		originRepo = db.NewOriginRepository(s.store.DB)
		ownershipRepo = db.NewOwnershipLedgerRepository(s.store.DB)
		actionRepo = db.NewActionLedgerRepository(s.store.DB)
		transformRepo = db.NewTransformationLedgerRepository(s.store.DB)
		auditRepo = db.NewAuditEventRepository(s.store.DB)
	} else {
		mem := memstore.New()
		factorRepo = mem.Factors
		evalRepo = mem.Evaluations
		breakerRepo = mem.Breaker
		tierRepo = mem.TierState
		runRepo = mem.GatingRuns
		probeState = mem.ProbeState
		probeResults = mem.ProbeResults
		originRepo = mem.Origins
		ownershipRepo = mem.Ownership
		actionRepo = mem.Actions
		transformRepo = mem.Transformations
		auditRepo = mem.AuditEvents
	}
	s.auditRepo = auditRepo
	s.audit = usecase.NewAuditEmitter(auditRepo, nil)

	s.trust = usecase.NewTrustEngine(factorRepo, evalRepo, breakerRepo, originRepo, nil)
	s.trust.Cache = cachemem.New()
	s.trust.CacheTTL = defaultEvaluationCacheTTL
	if s.cfg.CircuitBreakerFloor > 0 {
		s.trust.BreakerFloor = s.cfg.CircuitBreakerFloor
	}

	s.gating = usecase.NewGatingEngine(s.trust, tierRepo, runRepo, nil)
	s.gating.Audit = s.audit
	if s.cfg.GatingBundlePath != "" {
		if engine, err := policyopa.NewEngineFromBundlePath(context.Background(), s.cfg.GatingBundlePath, ""); err == nil {
			s.gating.Policy = engine
		}
	}

	library, err := probelib.New()
	if err != nil {
		s.authInitErr = err
		return
	}
	var client usecase.AgentClient
	if s.cfg.AgentBaseURL != "" {
		if c, err := agentclient.New(s.cfg.AgentBaseURL, nil); err == nil {
			client = c
		}
	}
	s.canary = usecase.NewCanaryService(library, client, probeState, probeResults, s.trust, nil)
	s.canary.Audit = s.audit
	if s.cfg.CanaryLambdaPerHour > 0 {
		s.canary.LambdaPerHour = s.cfg.CanaryLambdaPerHour
	}
	if interval := s.cfg.CanaryMinInterval(); interval > 0 {
		s.canary.MinInterval = interval
	}
	if timeout := s.cfg.CanaryTimeout(); timeout > 0 {
		s.canary.ProbeTimeout = timeout
	}

	s.provenance = usecase.NewProvenanceService(originRepo, ownershipRepo, actionRepo, transformRepo, nil)
	s.provenance.Audit = s.audit
	s.fleet = usecase.NewFleetService(evalRepo, tierRepo, breakerRepo, probeState, nil)

	s.initRateLimit(nil)
	s.initAuth()
}

func (s *Server) initAuth() {
	if s.cfg.AuthMode == "" {
		s.authInitErr = errors.New("AUTH_MODE is required")
		return
	}
	switch s.cfg.AuthMode {
	case "none":
		return
	case "oidc":
		if s.authenticator != nil && s.authorizer != nil {
			return
		}
		if s.authenticator == nil {
			authenticator, err := oidc.NewAuthenticator(s.cfg)
			if err != nil {
				s.authInitErr = err
				return
			}
			s.authenticator = authenticator
		}
		if s.authorizer == nil {
			s.authorizer = rbac.NewAuthorizer()
		}
	default:
		s.authInitErr = errors.New("unsupported auth mode")
	}
}

func (s *Server) initRateLimit(override domain.RateLimiter) {
	if override != nil {
		s.rateLimiter = override
	}
	if s.rateLimiter == nil && s.cfg.RateLimitRequests > 0 {
		if s.cfg.RedisAddr != "" {
			if limiter, err := ratelimit.NewRedisLimiter(s.cfg.RedisAddr, s.cfg.RedisPassword, s.cfg.RedisDB, nil); err == nil {
				s.rateLimiter = limiter
			}
		}
		if s.rateLimiter == nil {
			s.rateLimiter = ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterConfig{
				MaxKeys: s.cfg.RateLimitMaxKeys,
			})
		}
	}
	s.rateLimitRequests = s.cfg.RateLimitRequests
	if s.cfg.RateLimitWindowSeconds > 0 {
		s.rateLimitWindow = time.Duration(s.cfg.RateLimitWindowSeconds) * time.Second
	}
	s.rateLimitFailClosed = s.cfg.RateLimitFailClosed
}

func (s *Server) routes() {
	s.r.GET("/healthz", func(c *gin.Context) {
		dbMode := "no-db"
		if s.store != nil && s.store.DB != nil {
			dbMode = "db"
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "mode": dbMode})
	})

	v1 := s.r.Group("/v1")
	{
		v1.GET("/trust/:agent_id", s.handleGetTrust)
		v1.POST("/trust/:agent_id/factors", s.handleRecordFactor)
		v1.POST("/trust/:agent_id/breaker/trip", s.handleTripBreaker)
		v1.POST("/trust/:agent_id/breaker/reset", s.handleResetBreaker)
		v1.GET("/trust/fleet", s.handleFleet)
		v1.POST("/trust/auto-gating", s.handleRunGating)
		v1.GET("/trust/auto-gating", s.handleLastGatingRun)

		v1.GET("/canary/:agent_id/should-inject", s.handleShouldInject)
		v1.POST("/canary/:agent_id/execute", s.handleExecuteProbe)
		v1.GET("/canary/:agent_id/stats", s.handleCanaryStats)

		v1.POST("/provenance/:agent_id/origin", s.handleRegisterOrigin)
		v1.GET("/provenance/:agent_id/origin", s.handleGetOrigin)
		v1.POST("/provenance/:agent_id/instructions", s.handleAppendInstruction)
		v1.POST("/provenance/:agent_id/instructions/drift", s.handleInstructionDrift)
		v1.POST("/provenance/:agent_id/ownership", s.handleTransferOwnership)
		v1.GET("/provenance/:agent_id/ownership", s.handleListOwnership)
		v1.POST("/provenance/:agent_id/actions", s.handleRecordAction)
		v1.GET("/provenance/:agent_id/actions", s.handleListActions)
		v1.POST("/provenance/:agent_id/transformations", s.handleRecordTransformation)
		v1.GET("/provenance/:agent_id/transformations", s.handleListTransformations)
		v1.GET("/provenance/:agent_id/report", s.handleProvenanceReport)
		v1.GET("/provenance/:agent_id/verify", s.handleProvenanceVerify)

		v1.GET("/audit", s.handleListAudit)
	}

	s.r.NoRoute(func(c *gin.Context) {
		writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
}

func (s *Server) Run() error {
	if s.authInitErr != nil {
		return s.authInitErr
	}
	return s.r.Run(s.cfg.HTTPAddr)
}
